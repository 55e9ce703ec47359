package emulator

import (
	"sync"

	"golang.org/x/time/rate"

	"github.com/kartikbazzad/docfeed/internal/feedrange"
)

// Fault is a failure injected into one page request.
type Fault int

const (
	FaultNone Fault = iota
	// FaultThrottle answers 429 with the request-budget sub-status.
	FaultThrottle
	// FaultGone answers 410 with the partition-gone sub-status.
	FaultGone
	// FaultEmptyPage answers an empty page that keeps the caller's position.
	FaultEmptyPage
)

// Request describes one page request seen by a FaultPolicy.
type Request struct {
	Operation string
	FeedRange feedrange.FeedRange
	// Sequence numbers page requests container-wide, starting at 1.
	Sequence uint64
}

// FaultPolicy decides which fault, if any, to inject into a page request.
// Implementations must be safe for concurrent use.
type FaultPolicy interface {
	Inject(req Request) Fault
}

// FaultFunc adapts a function to FaultPolicy.
type FaultFunc func(req Request) Fault

func (f FaultFunc) Inject(req Request) Fault { return f(req) }

// NoFaults never injects anything.
func NoFaults() FaultPolicy {
	return FaultFunc(func(Request) Fault { return FaultNone })
}

// Throttle rejects page requests beyond rps requests per second with the given burst.
func Throttle(rps float64, burst int) FaultPolicy {
	limiter := rate.NewLimiter(rate.Limit(rps), burst)
	return FaultFunc(func(Request) Fault {
		if limiter.Allow() {
			return FaultNone
		}
		return FaultThrottle
	})
}

// GoneOnce answers gone to the first request for each listed range.
func GoneOnce(ranges ...feedrange.FeedRange) FaultPolicy {
	var mu sync.Mutex
	pending := make(map[feedrange.FeedRange]bool, len(ranges))
	for _, r := range ranges {
		pending[r] = true
	}
	return FaultFunc(func(req Request) Fault {
		mu.Lock()
		defer mu.Unlock()
		if pending[req.FeedRange] {
			delete(pending, req.FeedRange)
			return FaultGone
		}
		return FaultNone
	})
}

// EmptyPageEvery answers an empty page to every n-th request.
func EmptyPageEvery(n uint64) FaultPolicy {
	return FaultFunc(func(req Request) Fault {
		if n > 0 && req.Sequence%n == 0 {
			return FaultEmptyPage
		}
		return FaultNone
	})
}

// Faults combines policies; the first one that injects a fault wins.
func Faults(policies ...FaultPolicy) FaultPolicy {
	return FaultFunc(func(req Request) Fault {
		for _, p := range policies {
			if f := p.Inject(req); f != FaultNone {
				return f
			}
		}
		return FaultNone
	})
}

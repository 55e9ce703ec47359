package feedrange

import (
	"fmt"
	"math/big"
	"strconv"

	"github.com/cespare/xxhash/v2"
)

const (
	// MinEPK is the inclusive start of the EPK space.
	MinEPK = ""
	// MaxEPK is the exclusive end of the EPK space.
	MaxEPK = "FF"
)

// point is a position in the 64-bit EPK space; end is one past the last hash.
type point struct {
	v   uint64
	end bool
}

func parsePoint(s string) (point, error) {
	switch s {
	case MinEPK:
		return point{}, nil
	case MaxEPK:
		return point{end: true}, nil
	}
	if len(s) != 16 {
		return point{}, fmt.Errorf("%w: epk %q must be 16 hex digits", ErrInvalidFeedRange, s)
	}
	v, err := strconv.ParseUint(s, 16, 64)
	if err != nil {
		return point{}, fmt.Errorf("%w: epk %q: %v", ErrInvalidFeedRange, s, err)
	}
	return point{v: v}, nil
}

func (p point) String() string {
	if p.end {
		return MaxEPK
	}
	if p.v == 0 {
		return MinEPK
	}
	return fmt.Sprintf("%016X", p.v)
}

func (p point) less(o point) bool {
	if p.end {
		return false
	}
	if o.end {
		return true
	}
	return p.v < o.v
}

func (p point) big() *big.Int {
	if p.end {
		return new(big.Int).Lsh(big.NewInt(1), 64)
	}
	return new(big.Int).SetUint64(p.v)
}

func pointFromBig(b *big.Int) point {
	if b.BitLen() > 64 {
		return point{end: true}
	}
	return point{v: b.Uint64()}
}

// bounds returns the parsed bounds; callers have already checked the kind.
func (r FeedRange) bounds() (point, point) {
	lo, _ := parsePoint(r.min)
	hi, _ := parsePoint(r.max)
	return lo, hi
}

// HashPartitionKey maps a logical partition key to its EPK.
func HashPartitionKey(key string) string {
	return point{v: xxhash.Sum64String(key)}.String()
}

// Contains reports whether the EPK lies inside r. Only EPK ranges contain points.
func (r FeedRange) Contains(epk string) bool {
	if r.kind != KindEPK {
		return false
	}
	p, err := parsePoint(epk)
	if err != nil || p.end {
		return false
	}
	lo, hi := r.bounds()
	return !p.less(lo) && p.less(hi)
}

// ContainsRange reports whether the EPK range o lies entirely inside r.
func (r FeedRange) ContainsRange(o FeedRange) bool {
	if r.kind != KindEPK || o.kind != KindEPK {
		return false
	}
	lo, hi := r.bounds()
	olo, ohi := o.bounds()
	return !olo.less(lo) && !hi.less(ohi)
}

// Overlaps reports whether two EPK ranges share at least one point.
func (r FeedRange) Overlaps(o FeedRange) bool {
	if r.kind != KindEPK || o.kind != KindEPK {
		return false
	}
	lo, hi := r.bounds()
	olo, ohi := o.bounds()
	return lo.less(ohi) && olo.less(hi)
}

// Intersect returns the overlap of two EPK ranges.
func (r FeedRange) Intersect(o FeedRange) (FeedRange, bool) {
	if !r.Overlaps(o) {
		return FeedRange{}, false
	}
	lo, hi := r.bounds()
	olo, ohi := o.bounds()
	if lo.less(olo) {
		lo = olo
	}
	if ohi.less(hi) {
		hi = ohi
	}
	return FeedRange{kind: KindEPK, min: lo.String(), max: hi.String()}, true
}

// Adjacent reports whether r ends exactly where o starts.
func (r FeedRange) Adjacent(o FeedRange) bool {
	return r.kind == KindEPK && o.kind == KindEPK && r.max == o.min
}

// Union joins two adjacent EPK ranges.
func Union(a, b FeedRange) (FeedRange, error) {
	if a.kind != KindEPK || b.kind != KindEPK {
		return FeedRange{}, ErrNotEPK
	}
	switch {
	case a.Adjacent(b):
		return FeedRange{kind: KindEPK, min: a.min, max: b.max}, nil
	case b.Adjacent(a):
		return FeedRange{kind: KindEPK, min: b.min, max: a.max}, nil
	default:
		return FeedRange{}, fmt.Errorf("%w: %s and %s are not adjacent", ErrInvalidFeedRange, a, b)
	}
}

// SplitEPK divides an EPK range into n contiguous sub-ranges of near equal width.
// The last sub-range absorbs the remainder.
func SplitEPK(r FeedRange, n int) ([]FeedRange, error) {
	if r.kind != KindEPK {
		return nil, ErrNotEPK
	}
	if n < 1 {
		return nil, fmt.Errorf("%w: split count %d", ErrInvalidFeedRange, n)
	}
	lo, hi := r.bounds()
	start, end := lo.big(), hi.big()
	width := new(big.Int).Sub(end, start)
	step := new(big.Int).Div(width, big.NewInt(int64(n)))
	if step.Sign() == 0 {
		return nil, fmt.Errorf("%w: %s is too narrow to split %d ways", ErrInvalidFeedRange, r, n)
	}

	out := make([]FeedRange, 0, n)
	cur := new(big.Int).Set(start)
	for i := 0; i < n; i++ {
		next := new(big.Int).Add(cur, step)
		if i == n-1 {
			next = end
		}
		out = append(out, FeedRange{
			kind: KindEPK,
			min:  pointFromBig(cur).String(),
			max:  pointFromBig(next).String(),
		})
		cur = next
	}
	return out, nil
}

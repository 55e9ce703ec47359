// Package feedrange defines the identifiers of units of parallel work in a
// partitioned container.
//
// A FeedRange is one of:
//   - a physical partition, addressed by partition key range id
//   - a slice of the effective partition key (EPK) space, [Min, Max)
//   - a single logical partition key
//
// FeedRange values are immutable and comparable, so they can be used as map keys.
package feedrange

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Kind tags the concrete shape of a FeedRange.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindPartitionKeyRange
	KindEPK
	KindPartitionKey
)

func (k Kind) String() string {
	switch k {
	case KindPartitionKeyRange:
		return "pkrange"
	case KindEPK:
		return "epk"
	case KindPartitionKey:
		return "pk"
	default:
		return "unknown"
	}
}

func parseKind(s string) (Kind, error) {
	switch s {
	case "pkrange":
		return KindPartitionKeyRange, nil
	case "epk":
		return KindEPK, nil
	case "pk":
		return KindPartitionKey, nil
	default:
		return KindUnknown, fmt.Errorf("%w: unknown kind %q", ErrInvalidFeedRange, s)
	}
}

var (
	// ErrInvalidFeedRange is returned when a feed range cannot be built or decoded.
	ErrInvalidFeedRange = errors.New("invalid feed range")

	// ErrNotEPK is returned by EPK-only operations on other kinds.
	ErrNotEPK = errors.New("feed range is not an EPK range")
)

// FeedRange identifies a contiguous slice of the partition key space.
type FeedRange struct {
	kind Kind
	id   string
	min  string
	max  string
	key  string
}

// FromPartitionKeyRangeID returns the feed range of one physical partition.
func FromPartitionKeyRangeID(id string) FeedRange {
	return FeedRange{kind: KindPartitionKeyRange, id: id}
}

// FromEPK returns the EPK range [min, max). Bounds are 16 hex digits, MinEPK or MaxEPK.
func FromEPK(min, max string) (FeedRange, error) {
	lo, err := parsePoint(min)
	if err != nil {
		return FeedRange{}, err
	}
	hi, err := parsePoint(max)
	if err != nil {
		return FeedRange{}, err
	}
	if !lo.less(hi) {
		return FeedRange{}, fmt.Errorf("%w: empty range [%s,%s)", ErrInvalidFeedRange, min, max)
	}
	return FeedRange{kind: KindEPK, min: lo.String(), max: hi.String()}, nil
}

// MustEPK is FromEPK for constant bounds.
func MustEPK(min, max string) FeedRange {
	r, err := FromEPK(min, max)
	if err != nil {
		panic(err)
	}
	return r
}

// FromPartitionKey returns the feed range of one logical partition key.
func FromPartitionKey(key string) FeedRange {
	return FeedRange{kind: KindPartitionKey, key: key}
}

// FullRange covers the whole EPK space.
func FullRange() FeedRange {
	return FeedRange{kind: KindEPK, min: MinEPK, max: MaxEPK}
}

func (r FeedRange) Kind() Kind { return r.kind }

// PartitionKeyRangeID is set for KindPartitionKeyRange.
func (r FeedRange) PartitionKeyRangeID() string { return r.id }

// Min is the inclusive lower EPK bound for KindEPK.
func (r FeedRange) Min() string { return r.min }

// Max is the exclusive upper EPK bound for KindEPK.
func (r FeedRange) Max() string { return r.max }

// PartitionKey is set for KindPartitionKey.
func (r FeedRange) PartitionKey() string { return r.key }

// IsZero reports whether r is the zero FeedRange.
func (r FeedRange) IsZero() bool { return r.kind == KindUnknown }

func (r FeedRange) String() string {
	switch r.kind {
	case KindPartitionKeyRange:
		return "pkrange:" + r.id
	case KindEPK:
		return "epk:[" + r.min + "," + r.max + ")"
	case KindPartitionKey:
		return "pk:" + r.key
	default:
		return "unknown"
	}
}

// wireRange is the JSON shape of a FeedRange. Pointers keep "" bounds on the wire.
type wireRange struct {
	Kind string  `json:"kind"`
	ID   string  `json:"id,omitempty"`
	Min  *string `json:"min,omitempty"`
	Max  *string `json:"max,omitempty"`
	Key  *string `json:"key,omitempty"`
}

func (r FeedRange) MarshalJSON() ([]byte, error) {
	w := wireRange{Kind: r.kind.String()}
	switch r.kind {
	case KindPartitionKeyRange:
		w.ID = r.id
	case KindEPK:
		min, max := r.min, r.max
		w.Min, w.Max = &min, &max
	case KindPartitionKey:
		key := r.key
		w.Key = &key
	default:
		return nil, fmt.Errorf("%w: cannot encode zero feed range", ErrInvalidFeedRange)
	}
	return json.Marshal(w)
}

func (r *FeedRange) UnmarshalJSON(data []byte) error {
	var w wireRange
	if err := json.Unmarshal(data, &w); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidFeedRange, err)
	}
	kind, err := parseKind(w.Kind)
	if err != nil {
		return err
	}
	switch kind {
	case KindPartitionKeyRange:
		if w.ID == "" {
			return fmt.Errorf("%w: missing partition key range id", ErrInvalidFeedRange)
		}
		*r = FromPartitionKeyRangeID(w.ID)
	case KindEPK:
		if w.Min == nil || w.Max == nil {
			return fmt.Errorf("%w: missing epk bounds", ErrInvalidFeedRange)
		}
		parsed, err := FromEPK(*w.Min, *w.Max)
		if err != nil {
			return err
		}
		*r = parsed
	case KindPartitionKey:
		if w.Key == nil {
			return fmt.Errorf("%w: missing partition key", ErrInvalidFeedRange)
		}
		*r = FromPartitionKey(*w.Key)
	}
	return nil
}

package pagination

import (
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"strings"

	docerrors "github.com/kartikbazzad/docfeed/internal/errors"
)

// Reserved response headers. They are derived from Page fields and may not be
// supplied as additional headers.
const (
	HeaderRequestCharge       = "x-ms-request-charge"
	HeaderActivityID          = "x-ms-activity-id"
	HeaderItemCount           = "x-ms-item-count"
	HeaderSerializationFormat = "x-ms-documentdb-content-serialization-format"
)

// SerializationFormatJSON is the only content format pages carry.
const SerializationFormatJSON = "JsonText"

var reservedHeaders = map[string]struct{}{
	HeaderRequestCharge:       {},
	HeaderActivityID:          {},
	HeaderItemCount:           {},
	HeaderSerializationFormat: {},
}

// IsReservedHeader reports whether key is one of the reserved header names.
// Header names are case-insensitive.
func IsReservedHeader(key string) bool {
	_, ok := reservedHeaders[strings.ToLower(key)]
	return ok
}

// Page is one response from one partition.
type Page[S State] struct {
	items             []json.RawMessage
	requestCharge     float64
	activityID        string
	additionalHeaders map[string]string
	state             S
}

// NewPage validates and builds a page. A zero state marks the last page of its range.
func NewPage[S State](items []json.RawMessage, requestCharge float64, activityID string, additionalHeaders map[string]string, state S) (Page[S], error) {
	if requestCharge < 0 {
		return Page[S]{}, fmt.Errorf("%w: %v", docerrors.ErrNegativeRequestCharge, requestCharge)
	}
	for key := range additionalHeaders {
		if IsReservedHeader(key) {
			return Page[S]{}, fmt.Errorf("%w: %q", docerrors.ErrReservedHeader, key)
		}
	}
	return Page[S]{
		items:             items,
		requestCharge:     requestCharge,
		activityID:        activityID,
		additionalHeaders: maps.Clone(additionalHeaders),
		state:             state,
	}, nil
}

// Items returns the page payloads. The slice must not be modified.
func (p Page[S]) Items() []json.RawMessage { return p.items }

func (p Page[S]) ItemCount() int { return len(p.items) }

func (p Page[S]) RequestCharge() float64 { return p.requestCharge }

func (p Page[S]) ActivityID() string { return p.activityID }

// State is the cursor to resume the partition after this page.
func (p Page[S]) State() S { return p.state }

// AdditionalHeaders returns a copy of the non-reserved headers.
func (p Page[S]) AdditionalHeaders() map[string]string {
	return maps.Clone(p.additionalHeaders)
}

// Headers returns the full header view, reserved headers included.
func (p Page[S]) Headers() map[string]string {
	h := make(map[string]string, len(p.additionalHeaders)+len(reservedHeaders))
	maps.Copy(h, p.additionalHeaders)
	h[HeaderRequestCharge] = strconv.FormatFloat(p.requestCharge, 'f', -1, 64)
	h[HeaderActivityID] = p.activityID
	h[HeaderItemCount] = strconv.Itoa(len(p.items))
	h[HeaderSerializationFormat] = SerializationFormatJSON
	return h
}

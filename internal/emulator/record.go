package emulator

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ResourceID orders records within the container. Partition is the id of the
// partition that created the record plus one; Document grows per partition.
type ResourceID struct {
	Partition uint32
	Document  uint64
}

func (r ResourceID) String() string {
	return fmt.Sprintf("%d.%d", r.Partition, r.Document)
}

// Less orders resource ids by partition, then document.
func (r ResourceID) Less(o ResourceID) bool {
	if r.Partition != o.Partition {
		return r.Partition < o.Partition
	}
	return r.Document < o.Document
}

// ParseResourceID parses the "<partition>.<document>" form.
func ParseResourceID(s string) (ResourceID, error) {
	part, doc, ok := strings.Cut(s, ".")
	if !ok {
		return ResourceID{}, fmt.Errorf("resource id %q: missing separator", s)
	}
	p, err := strconv.ParseUint(part, 10, 32)
	if err != nil {
		return ResourceID{}, fmt.Errorf("resource id %q: %w", s, err)
	}
	d, err := strconv.ParseUint(doc, 10, 64)
	if err != nil {
		return ResourceID{}, fmt.Errorf("resource id %q: %w", s, err)
	}
	return ResourceID{Partition: uint32(p), Document: d}, nil
}

// Record is an immutable stored item.
type Record struct {
	ResourceID   ResourceID
	Timestamp    time.Time
	ID           string
	PartitionKey string
	Payload      json.RawMessage

	epk string
}

// Document renders the record as returned by feeds: the payload plus the
// system properties id, _rid and _ts.
func (r Record) Document() json.RawMessage {
	doc := make(map[string]any)
	_ = json.Unmarshal(r.Payload, &doc)
	doc["id"] = r.ID
	doc["_rid"] = r.ResourceID.String()
	doc["_ts"] = r.Timestamp.Unix()
	data, err := json.Marshal(doc)
	if err != nil {
		return r.Payload
	}
	return data
}

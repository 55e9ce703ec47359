// Package emulator implements an in-process partitioned document container.
//
// The container routes records to partitions by the EPK hash of a partition key
// field and supports live partition splits and merges. Its provider view of the
// topology is cached and only refreshed on request, so callers observe stale
// routing the way they would against a real service.
package emulator

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/xeipuuv/gojsonschema"

	"github.com/kartikbazzad/docfeed/internal/config"
	docerrors "github.com/kartikbazzad/docfeed/internal/errors"
	"github.com/kartikbazzad/docfeed/internal/feedrange"
	"github.com/kartikbazzad/docfeed/internal/logger"
)

const (
	defaultPageSize         = 100
	defaultPartitionKeyPath = "pk"
)

type partition struct {
	id      int
	rng     feedrange.FeedRange
	records []Record
}

// nextResourceID allocates the id of a record created in p.
func (p *partition) nextResourceID() ResourceID {
	doc := uint64(1)
	if n := len(p.records); n > 0 {
		doc = p.records[n-1].ResourceID.Document + 1
	}
	return ResourceID{Partition: uint32(p.id) + 1, Document: doc}
}

// Container is an in-memory partitioned container. It is safe for concurrent use.
type Container struct {
	mu         sync.RWMutex
	partitions map[int]*partition
	cached     map[int]feedrange.FeedRange
	children   map[int][]int
	nextID     int

	partitionCount int
	pageSize       int
	requestCharge  float64
	pkPath         string
	schema         *gojsonschema.Schema
	schemaErr      error
	faults         FaultPolicy
	log            *slog.Logger

	requests atomic.Uint64
}

// Option configures a Container.
type Option func(*Container)

// WithPartitions sets the initial number of partitions.
func WithPartitions(n int) Option {
	return func(c *Container) { c.partitionCount = n }
}

// WithPageSize sets the default maximum number of items per page.
func WithPageSize(n int) Option {
	return func(c *Container) { c.pageSize = n }
}

// WithRequestCharge sets the charge reported for every page.
func WithRequestCharge(charge float64) Option {
	return func(c *Container) { c.requestCharge = charge }
}

// WithPartitionKeyPath names the payload field holding the partition key.
// Nested fields are separated by "/" or ".".
func WithPartitionKeyPath(path string) Option {
	return func(c *Container) { c.pkPath = path }
}

// WithFaults installs a fault injection policy for page requests.
func WithFaults(p FaultPolicy) Option {
	return func(c *Container) { c.faults = p }
}

// WithSchema validates every created item against a JSON schema.
func WithSchema(schema string) Option {
	return func(c *Container) {
		if schema == "" {
			return
		}
		c.schema, c.schemaErr = gojsonschema.NewSchema(gojsonschema.NewStringLoader(schema))
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(c *Container) { c.log = l }
}

// OptionsFromConfig translates the emulator config section.
func OptionsFromConfig(cfg config.EmulatorConfig) []Option {
	opts := []Option{
		WithPartitions(cfg.PartitionCount),
		WithPageSize(cfg.PageSize),
		WithRequestCharge(cfg.RequestCharge),
		WithPartitionKeyPath(cfg.PartitionKeyPath),
		WithSchema(cfg.Schema),
	}
	if cfg.ThrottleRPS > 0 {
		burst := cfg.ThrottleBurst
		if burst < 1 {
			burst = 1
		}
		opts = append(opts, WithFaults(Throttle(cfg.ThrottleRPS, burst)))
	}
	return opts
}

// New creates a container whose key space is split evenly across partitions.
func New(opts ...Option) (*Container, error) {
	c := &Container{
		partitions:     make(map[int]*partition),
		cached:         make(map[int]feedrange.FeedRange),
		children:       make(map[int][]int),
		partitionCount: 1,
		pageSize:       defaultPageSize,
		pkPath:         defaultPartitionKeyPath,
		faults:         NoFaults(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.schemaErr != nil {
		return nil, fmt.Errorf("%w: schema: %v", docerrors.ErrInvalidOptions, c.schemaErr)
	}
	if c.partitionCount < 1 || c.pageSize < 1 || c.requestCharge < 0 {
		return nil, fmt.Errorf("%w: partitions=%d page size=%d charge=%v",
			docerrors.ErrInvalidOptions, c.partitionCount, c.pageSize, c.requestCharge)
	}
	if c.faults == nil {
		c.faults = NoFaults()
	}
	c.log = logger.WithComponent(c.log, "emulator")

	ranges, err := feedrange.SplitEPK(feedrange.FullRange(), c.partitionCount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", docerrors.ErrInvalidOptions, err)
	}
	for i, r := range ranges {
		c.partitions[i] = &partition{id: i, rng: r}
		c.cached[i] = r
	}
	c.nextID = len(ranges)
	return c, nil
}

// CreateItem stores a JSON object. The id property is used when it is a string,
// otherwise a new one is generated.
func (c *Container) CreateItem(ctx context.Context, payload json.RawMessage) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil || doc == nil {
		return Record{}, badRequest(docerrors.ErrInvalidJSON, "create item")
	}
	if c.schema != nil {
		result, err := c.schema.Validate(gojsonschema.NewGoLoader(doc))
		if err != nil {
			return Record{}, badRequest(docerrors.ErrSchemaViolation, err.Error())
		}
		if !result.Valid() {
			msgs := make([]string, 0, len(result.Errors()))
			for _, desc := range result.Errors() {
				msgs = append(msgs, desc.String())
			}
			return Record{}, badRequest(docerrors.ErrSchemaViolation, fmt.Sprintf("%v", msgs))
		}
	}

	id, _ := doc["id"].(string)
	if id == "" {
		id = uuid.NewString()
	}
	pk := partitionKeyOf(doc, c.pkPath)
	epk := feedrange.HashPartitionKey(pk)

	c.mu.Lock()
	defer c.mu.Unlock()
	p := c.ownerLocked(epk)
	rec := Record{
		ResourceID:   p.nextResourceID(),
		Timestamp:    time.Now().UTC(),
		ID:           id,
		PartitionKey: pk,
		Payload:      slices.Clone(payload),
		epk:          epk,
	}
	p.records = append(p.records, rec)
	return rec, nil
}

// ReadItem returns the record with the given partition key and id.
func (c *Container) ReadItem(ctx context.Context, partitionKey, id string) (Record, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, err
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	p := c.ownerLocked(feedrange.HashPartitionKey(partitionKey))
	for _, rec := range p.records {
		if rec.ID == id && rec.PartitionKey == partitionKey {
			return rec, nil
		}
	}
	se := docerrors.NotFound(fmt.Sprintf("item with partition key %q and id %q not found", partitionKey, id))
	se.ActivityID = uuid.NewString()
	return Record{}, se
}

// Split divides a partition into two halves of its key range. Records keep
// their resource ids. The provider view is not refreshed.
func (c *Container) Split(ctx context.Context, partitionID int) ([2]int, error) {
	if err := ctx.Err(); err != nil {
		return [2]int{}, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	parent, err := c.partitionLocked(partitionID)
	if err != nil {
		return [2]int{}, err
	}
	halves, err := feedrange.SplitEPK(parent.rng, 2)
	if err != nil {
		return [2]int{}, badRequest(docerrors.ErrInvalidOptions, err.Error())
	}

	left := &partition{id: c.nextID, rng: halves[0]}
	right := &partition{id: c.nextID + 1, rng: halves[1]}
	c.nextID += 2
	for _, rec := range parent.records {
		if left.rng.Contains(rec.epk) {
			left.records = append(left.records, rec)
		} else {
			right.records = append(right.records, rec)
		}
	}

	delete(c.partitions, parent.id)
	c.partitions[left.id] = left
	c.partitions[right.id] = right
	c.children[parent.id] = []int{left.id, right.id}

	c.log.Info("partition split", "partition", parent.id, "left", left.id, "right", right.id)
	return [2]int{left.id, right.id}, nil
}

// Merge joins two partitions with adjacent key ranges into a new one.
func (c *Container) Merge(ctx context.Context, a, b int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	pa, err := c.partitionLocked(a)
	if err != nil {
		return 0, err
	}
	pb, err := c.partitionLocked(b)
	if err != nil {
		return 0, err
	}
	rng, err := feedrange.Union(pa.rng, pb.rng)
	if err != nil {
		return 0, badRequest(docerrors.ErrInvalidOptions, err.Error())
	}

	merged := &partition{id: c.nextID, rng: rng}
	c.nextID++
	merged.records = append(merged.records, pa.records...)
	merged.records = append(merged.records, pb.records...)
	slices.SortFunc(merged.records, func(x, y Record) int {
		switch {
		case x.ResourceID.Less(y.ResourceID):
			return -1
		case y.ResourceID.Less(x.ResourceID):
			return 1
		default:
			return 0
		}
	})

	delete(c.partitions, pa.id)
	delete(c.partitions, pb.id)
	c.partitions[merged.id] = merged
	c.children[pa.id] = []int{merged.id}
	c.children[pb.id] = []int{merged.id}

	c.log.Info("partitions merged", "left", pa.id, "right", pb.id, "into", merged.id)
	return merged.id, nil
}

// PartitionIDs lists the live partitions in key order.
func (c *Container) PartitionIDs() []int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ids := make([]int, 0, len(c.partitions))
	for id := range c.partitions {
		ids = append(ids, id)
	}
	slices.SortFunc(ids, func(x, y int) int {
		return compareMin(c.partitions[x].rng, c.partitions[y].rng)
	})
	return ids
}

// PartitionRange returns the key range of a live partition.
func (c *Container) PartitionRange(id int) (feedrange.FeedRange, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	p, ok := c.partitions[id]
	if !ok {
		return feedrange.FeedRange{}, false
	}
	return p.rng, true
}

// Count returns the number of stored records.
func (c *Container) Count() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	n := 0
	for _, p := range c.partitions {
		n += len(p.records)
	}
	return n
}

// ownerLocked returns the live partition whose range holds epk. The live
// ranges always cover the whole key space.
func (c *Container) ownerLocked(epk string) *partition {
	for _, p := range c.partitions {
		if p.rng.Contains(epk) {
			return p
		}
	}
	panic(fmt.Sprintf("emulator: no partition owns %s", epk))
}

func (c *Container) partitionLocked(id int) (*partition, error) {
	if p, ok := c.partitions[id]; ok {
		return p, nil
	}
	if id >= 0 && id < c.nextID {
		return nil, gone(fmt.Sprintf("partition key range %d is gone", id))
	}
	return nil, notFound(fmt.Errorf("%w: %d", docerrors.ErrUnknownPartition, id))
}

// routeLocked resolves the partition that serves r. EPK ranges must lie inside
// a single live partition.
func (c *Container) routeLocked(r feedrange.FeedRange) (*partition, error) {
	switch r.Kind() {
	case feedrange.KindPartitionKeyRange:
		id, err := strconv.Atoi(r.PartitionKeyRangeID())
		if err != nil {
			return nil, badRequest(feedrange.ErrInvalidFeedRange, r.String())
		}
		return c.partitionLocked(id)
	case feedrange.KindEPK:
		var match *partition
		for _, p := range c.partitions {
			if p.rng.ContainsRange(r) {
				match = p
				break
			}
		}
		if match == nil {
			return nil, gone(fmt.Sprintf("epk range %s is gone", r))
		}
		return match, nil
	case feedrange.KindPartitionKey:
		return c.ownerLocked(feedrange.HashPartitionKey(r.PartitionKey())), nil
	default:
		return nil, badRequest(feedrange.ErrInvalidFeedRange, r.String())
	}
}

func inRange(rec Record, r feedrange.FeedRange) bool {
	switch r.Kind() {
	case feedrange.KindEPK:
		return r.Contains(rec.epk)
	case feedrange.KindPartitionKey:
		return rec.PartitionKey == r.PartitionKey()
	default:
		return true
	}
}

// partitionKeyOf reads the partition key at path. Strings are used as is, other
// values by their JSON encoding, and a missing key is the empty string.
func partitionKeyOf(doc map[string]any, path string) string {
	var cur any = doc
	for _, part := range splitPath(path) {
		obj, ok := cur.(map[string]any)
		if !ok {
			return ""
		}
		cur = obj[part]
	}
	switch v := cur.(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		data, _ := json.Marshal(v)
		return string(data)
	}
}

func splitPath(path string) []string {
	var parts []string
	start := 0
	for i := 0; i <= len(path); i++ {
		if i == len(path) || path[i] == '/' || path[i] == '.' {
			if i > start {
				parts = append(parts, path[start:i])
			}
			start = i + 1
		}
	}
	return parts
}

func compareMin(a, b feedrange.FeedRange) int {
	switch {
	case a.Min() < b.Min():
		return -1
	case a.Min() > b.Min():
		return 1
	default:
		return 0
	}
}

func gone(msg string) *docerrors.StatusError {
	se := docerrors.Gone(msg)
	se.ActivityID = uuid.NewString()
	return se
}

func notFound(err error) *docerrors.StatusError {
	return &docerrors.StatusError{
		StatusCode: docerrors.StatusNotFound,
		Message:    "not found",
		ActivityID: uuid.NewString(),
		Err:        err,
	}
}

func badRequest(err error, msg string) *docerrors.StatusError {
	return &docerrors.StatusError{
		StatusCode: docerrors.StatusBadRequest,
		Message:    msg,
		ActivityID: uuid.NewString(),
		Err:        err,
	}
}

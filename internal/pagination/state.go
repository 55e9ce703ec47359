// Package pagination implements cross-partition paging over a partitioned container.
//
// A RangeEnumerator pages through a single feed range. A BufferedEnumerator puts a
// prefetch buffer in front of it. A CrossPartitionEnumerator drains a working set of
// buffered enumerators, one per feed range, and merges their pages into one stream.
// It repairs partition splits as it goes and exposes a resumable CrossFeedRangeState
// after every page.
package pagination

// State is an opaque per-partition cursor produced by a PageSource.
//
// The zero value of a State type means absent: before the first page it means
// "start from the beginning", after a page it means the partition is exhausted.
// Concrete states are pointer types so that nil is the absent value.
type State interface {
	comparable
}

// IsAbsent reports whether s is the zero value of its type.
func IsAbsent[S State](s S) bool {
	var zero S
	return s == zero
}

// ReadFeedState resumes a read feed after the record with the given resource id.
type ReadFeedState struct {
	ResourceID string `json:"rid"`
}

// NewReadFeedState returns the state that resumes after rid.
func NewReadFeedState(rid string) *ReadFeedState {
	return &ReadFeedState{ResourceID: rid}
}

// QueryState resumes a query from a source-defined continuation token.
type QueryState struct {
	Continuation string `json:"continuation"`
}

// NewQueryState returns the state that resumes a query at token.
func NewQueryState(token string) *QueryState {
	return &QueryState{Continuation: token}
}

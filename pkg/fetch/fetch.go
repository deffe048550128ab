// Package fetch defines the per-item fetch boundary: the Fetcher capability,
// the Outcome classification of a single item, and a retrying wrapper that
// turns transient connectivity failures into a bounded number of attempts.
package fetch

import (
	"context"
	"fmt"
)

// Record is a flat mapping of field name to text value for one item.
type Record map[string]string

// Clone returns a copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Without returns a copy of the record with the given field removed.
func (r Record) Without(field string) Record {
	out := r.Clone()
	delete(out, field)
	return out
}

// Fetcher retrieves a single item by its numeric ID.
//
// Implementations return ErrAbsent when no record exists at id, a
// *ConnectionError for transient connectivity failures, and any other
// error for structural failures that must not be retried.
type Fetcher interface {
	Fetch(ctx context.Context, id int) (Record, error)
}

// FetcherFunc adapts a plain function to the Fetcher interface.
type FetcherFunc func(ctx context.Context, id int) (Record, error)

// Fetch calls f(ctx, id).
func (f FetcherFunc) Fetch(ctx context.Context, id int) (Record, error) {
	return f(ctx, id)
}

// OutcomeKind classifies the result of fetching one item.
type OutcomeKind int

const (
	// Found means a record was retrieved.
	Found OutcomeKind = iota + 1

	// Absent means no record exists at the ID. Not an error.
	Absent

	// Failed means the record could not be obtained.
	Failed
)

// String returns the lower-case name of the kind.
func (k OutcomeKind) String() string {
	switch k {
	case Found:
		return "found"
	case Absent:
		return "absent"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("OutcomeKind(%d)", int(k))
	}
}

// Outcome is the per-item result. Record is set only when Kind is Found.
type Outcome struct {
	Kind   OutcomeKind
	Record Record
}

// FoundOutcome wraps a record.
func FoundOutcome(r Record) Outcome { return Outcome{Kind: Found, Record: r} }

// AbsentOutcome reports a missing record.
func AbsentOutcome() Outcome { return Outcome{Kind: Absent} }

// FailedOutcome reports a failed fetch.
func FailedOutcome() Outcome { return Outcome{Kind: Failed} }

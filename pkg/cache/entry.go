package cache

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/Sternrassler/batchdl/pkg/fetch"
)

var nullEntry = []byte("null")

// EncodeEntry serializes a cacheable outcome. Only Found and Absent outcomes
// are cacheable.
func EncodeEntry(o fetch.Outcome) ([]byte, error) {
	switch o.Kind {
	case fetch.Found:
		record := o.Record
		if record == nil {
			record = fetch.Record{}
		}
		return json.Marshal(record)
	case fetch.Absent:
		return nullEntry, nil
	default:
		return nil, fmt.Errorf("%w: %s outcomes are not cached", ErrInvalidEntry, o.Kind)
	}
}

// DecodeEntry parses a stored entry back into an outcome.
func DecodeEntry(data []byte) (fetch.Outcome, error) {
	if bytes.Equal(bytes.TrimSpace(data), nullEntry) {
		return fetch.AbsentOutcome(), nil
	}

	var record fetch.Record
	if err := json.Unmarshal(data, &record); err != nil {
		return fetch.Outcome{}, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	if record == nil {
		return fetch.Outcome{}, fmt.Errorf("%w: empty entry", ErrInvalidEntry)
	}
	return fetch.FoundOutcome(record), nil
}

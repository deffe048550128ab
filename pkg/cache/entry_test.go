package cache

import (
	"errors"
	"testing"

	"github.com/Sternrassler/batchdl/pkg/fetch"
)

func TestEncodeEntry(t *testing.T) {
	tests := []struct {
		name     string
		outcome  fetch.Outcome
		expected string
		err      error
	}{
		{"found", fetch.FoundOutcome(fetch.Record{"nombre": "Ana"}), `{"nombre":"Ana"}`, nil},
		{"found nil record", fetch.FoundOutcome(nil), `{}`, nil},
		{"absent", fetch.AbsentOutcome(), `null`, nil},
		{"failed", fetch.FailedOutcome(), "", ErrInvalidEntry},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := EncodeEntry(tt.outcome)
			if !errors.Is(err, tt.err) {
				t.Fatalf("EncodeEntry() error = %v, want %v", err, tt.err)
			}
			if string(data) != tt.expected {
				t.Errorf("EncodeEntry() = %s, want %s", data, tt.expected)
			}
		})
	}
}

func TestDecodeEntry(t *testing.T) {
	o, err := DecodeEntry([]byte(`{"nombre":"Ana","number":"3"}`))
	if err != nil {
		t.Fatalf("DecodeEntry() error = %v", err)
	}
	if o.Kind != fetch.Found || o.Record["nombre"] != "Ana" || o.Record["number"] != "3" {
		t.Errorf("DecodeEntry() = %+v", o)
	}

	o, err = DecodeEntry([]byte(" null\n"))
	if err != nil {
		t.Fatalf("DecodeEntry(null) error = %v", err)
	}
	if o.Kind != fetch.Absent {
		t.Errorf("DecodeEntry(null) kind = %v, want Absent", o.Kind)
	}

	for _, bad := range []string{"", "false", `{"a":1}`, "[]"} {
		if _, err := DecodeEntry([]byte(bad)); !errors.Is(err, ErrInvalidEntry) {
			t.Errorf("DecodeEntry(%q) error = %v, want ErrInvalidEntry", bad, err)
		}
	}
}

package fetch

import (
	"errors"
	"fmt"
	"testing"
)

func TestConnectionError(t *testing.T) {
	base := errors.New("dial tcp: connection refused")
	err := &ConnectionError{ID: 42, Err: base}

	if err.Error() != "connection failure fetching 42: dial tcp: connection refused" {
		t.Errorf("Error() = %q", err.Error())
	}
	if !errors.Is(err, base) {
		t.Error("ConnectionError should unwrap to the underlying error")
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected bool
	}{
		{"nil", nil, false},
		{"absent", ErrAbsent, false},
		{"missing fields", ErrMissingFields, false},
		{"connection", &ConnectionError{ID: 1, Err: errors.New("eof")}, true},
		{"wrapped connection", fmt.Errorf("outer: %w", &ConnectionError{ID: 1}), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsTransient(tt.err); got != tt.expected {
				t.Errorf("IsTransient(%v) = %v, want %v", tt.err, got, tt.expected)
			}
		})
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		record   Record
		err      error
		expected OutcomeKind
	}{
		{"record", Record{"x": "y"}, nil, Found},
		{"absent", nil, ErrAbsent, Absent},
		{"wrapped absent", nil, fmt.Errorf("cache: %w", ErrAbsent), Absent},
		{"missing fields", nil, ErrMissingFields, Failed},
		{"other", nil, errors.New("boom"), Failed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Classify(tt.record, tt.err); got.Kind != tt.expected {
				t.Errorf("Classify() = %v, want %v", got.Kind, tt.expected)
			}
		})
	}
}

func TestRecord_Without(t *testing.T) {
	r := Record{"number": "5", "name": "Luis"}
	stripped := r.Without("number")

	if _, ok := stripped["number"]; ok {
		t.Error("Without should remove the field")
	}
	if r["number"] != "5" {
		t.Error("Without must not mutate the original record")
	}
	if stripped["name"] != "Luis" {
		t.Errorf("stripped = %v", stripped)
	}
}

func TestOutcomeKind_String(t *testing.T) {
	if Found.String() != "found" || Absent.String() != "absent" || Failed.String() != "failed" {
		t.Error("unexpected kind names")
	}
	if OutcomeKind(0).String() != "OutcomeKind(0)" {
		t.Errorf("zero kind = %q", OutcomeKind(0).String())
	}
}

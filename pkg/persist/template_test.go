package persist

import (
	"errors"
	"testing"
	"time"
)

func TestRenderName(t *testing.T) {
	created := time.Date(2020, 5, 1, 9, 30, 0, 0, time.UTC)
	values := NameValues{
		BatchNumber: 3,
		BatchSize:   10,
		Now:         time.Date(2020, 5, 2, 12, 0, 0, 0, time.UTC),
		Created:     created,
		Completed:   created.Add(time.Hour),
	}

	tests := []struct {
		name     string
		format   string
		expected string
	}{
		{"plain", "results.json", "results.json"},
		{"batch number", "batch_{batch_number}.json", "batch_3.json"},
		{"zero padded", "batch_{batch_number:03}.json", "batch_003.json"},
		{"zero padded with verb", "batch_{batch_number:04d}.json", "batch_0003.json"},
		{"max width", "{batch_number:032}.json", "00000000000000000000000000000003.json"},
		{"batch size", "{batch_number}-{batch_size}.json", "3-10.json"},
		{"now default layout", "{now}.json", "2020-05-02T12-00-00.json"},
		{"now strftime", "{now:%Y%m%d}.json", "20200502.json"},
		{"created day", "day_{created:%d}.json", "day_01.json"},
		{"completed hour", "{completed:%H%M}.json", "1030.json"},
		{"escaped braces", "{{x}}_{batch_number}.json", "{x}_3.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := RenderName(tt.format, values)
			if err != nil {
				t.Fatalf("RenderName(%q) error = %v", tt.format, err)
			}
			if got != tt.expected {
				t.Errorf("RenderName(%q) = %q, want %q", tt.format, got, tt.expected)
			}
		})
	}
}

func TestRenderName_Invalid(t *testing.T) {
	tests := []struct {
		name   string
		format string
	}{
		{"unknown placeholder", "data_{unknown}.json"},
		{"unclosed", "data_{batch_number.json"},
		{"stray close", "data}.json"},
		{"bad int spec", "data_{batch_number:xx}.json"},
		{"int width too large", "data_{batch_number:0999999999}.json"},
		{"int width just over cap", "data_{batch_size:33}.json"},
		{"empty", ""},
		{"path separator", "../{batch_number}.json"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := RenderName(tt.format, NameValues{BatchNumber: 1})
			if !errors.Is(err, ErrInvalidName) {
				t.Errorf("RenderName(%q) error = %v, want ErrInvalidName", tt.format, err)
			}
		})
	}
}

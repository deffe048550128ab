package persist

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/lestrrat-go/strftime"
)

// DefaultTimeLayout renders time placeholders that carry no format spec.
const DefaultTimeLayout = "2006-01-02T15-04-05"

// MaxIntWidth is the largest padding width accepted in an integer placeholder.
const MaxIntWidth = 32

// NameValues are the values available to a filename template.
type NameValues struct {
	BatchNumber int
	BatchSize   int
	Now         time.Time
	Created     time.Time
	Completed   time.Time
}

// RenderName expands a filename template.
//
// Placeholders: {batch_number}, {batch_size}, {now}, {created}, {completed}.
// Integer placeholders accept a zero-padded width spec ({batch_number:03}).
// Time placeholders accept strftime syntax ({now:%Y%m%d}). Literal braces are
// written as {{ and }}. Unknown placeholders and malformed templates yield
// ErrInvalidName.
func RenderName(format string, v NameValues) (string, error) {
	var b strings.Builder

	for i := 0; i < len(format); i++ {
		c := format[i]
		switch c {
		case '{':
			if i+1 < len(format) && format[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(format[i+1:], '}')
			if end < 0 {
				return "", fmt.Errorf("%w: unclosed placeholder in %q", ErrInvalidName, format)
			}
			field := format[i+1 : i+1+end]
			out, err := renderField(field, v)
			if err != nil {
				return "", err
			}
			b.WriteString(out)
			i += end + 1
		case '}':
			if i+1 < len(format) && format[i+1] == '}' {
				b.WriteByte('}')
				i++
				continue
			}
			return "", fmt.Errorf("%w: single '}' in %q", ErrInvalidName, format)
		default:
			b.WriteByte(c)
		}
	}

	name := b.String()
	if name == "" || strings.ContainsAny(name, `/\`) || name == "." || name == ".." {
		return "", fmt.Errorf("%w: %q is not a file name", ErrInvalidName, name)
	}
	return name, nil
}

func renderField(field string, v NameValues) (string, error) {
	name, spec, _ := strings.Cut(field, ":")

	switch name {
	case "batch_number":
		return formatInt(v.BatchNumber, spec)
	case "batch_size":
		return formatInt(v.BatchSize, spec)
	case "now":
		return formatTime(v.Now, spec)
	case "created":
		return formatTime(v.Created, spec)
	case "completed":
		return formatTime(v.Completed, spec)
	default:
		return "", fmt.Errorf("%w: unknown placeholder {%s}", ErrInvalidName, name)
	}
}

// formatInt supports an optional zero flag and width, with an optional
// trailing 'd' ("03", "3", "03d").
func formatInt(n int, spec string) (string, error) {
	if spec == "" {
		return strconv.Itoa(n), nil
	}

	spec = strings.TrimSuffix(spec, "d")
	zero := strings.HasPrefix(spec, "0")
	width := 0
	if digits := strings.TrimPrefix(spec, "0"); digits != "" {
		w, err := strconv.Atoi(digits)
		if err != nil || w < 0 {
			return "", fmt.Errorf("%w: bad integer format %q", ErrInvalidName, spec)
		}
		if w > MaxIntWidth {
			return "", fmt.Errorf("%w: integer width %d exceeds %d", ErrInvalidName, w, MaxIntWidth)
		}
		width = w
	}

	if zero {
		return fmt.Sprintf("%0*d", width, n), nil
	}
	return fmt.Sprintf("%*d", width, n), nil
}

func formatTime(t time.Time, spec string) (string, error) {
	if spec == "" {
		return t.Format(DefaultTimeLayout), nil
	}
	out, err := strftime.Format(spec, t)
	if err != nil {
		return "", fmt.Errorf("%w: bad time format %q: %v", ErrInvalidName, spec, err)
	}
	return out, nil
}

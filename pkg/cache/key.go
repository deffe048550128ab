package cache

import (
	"fmt"
	"strings"
)

// DefaultPrefix is used when Config.Prefix is empty.
const DefaultPrefix = "batchdl"

// Key identifies a cached outcome.
type Key struct {
	// Prefix namespaces the keys of one record source.
	Prefix string

	// ID is the record ID.
	ID int
}

// String generates the Redis key.
// Format: <prefix>:record:<id>
//
// Example:
//
//	batchdl:record:42
func (k Key) String() string {
	prefix := strings.Trim(k.Prefix, ":")
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return fmt.Sprintf("%s:record:%d", prefix, k.ID)
}

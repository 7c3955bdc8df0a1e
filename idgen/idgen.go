// Package idgen generates identifiers for runs and MCP requests.
package idgen

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Generator produces unique string identifiers.
type Generator func() string

// UUIDv7 returns a Generator of RFC 9562 version 7 UUIDs, which sort by
// creation time.
func UUIDv7() Generator {
	return func() string {
		return uuid.Must(uuid.NewV7()).String()
	}
}

// Prefixed prepends prefix to every ID of gen.
func Prefixed(prefix string, gen Generator) Generator {
	return func() string {
		return prefix + gen()
	}
}

// Timestamped prefixes IDs with a UTC "20060102T150405Z_" stamp.
func Timestamped(gen Generator, now func() time.Time) Generator {
	if now == nil {
		now = time.Now
	}
	return func() string {
		return now().UTC().Format("20060102T150405Z") + "_" + gen()
	}
}

// Short keeps the last n hex digits of a UUID generator, dropping dashes.
func Short(gen Generator, n int) Generator {
	return func() string {
		s := strings.ReplaceAll(gen(), "-", "")
		if n > 0 && n < len(s) {
			s = s[len(s)-n:]
		}
		return s
	}
}

// RunID names campaign runs: "run_20260101T120000Z_<12 hex>".
var RunID Generator = Prefixed("run_", Timestamped(Short(UUIDv7(), 12), nil))

// New produces a plain UUIDv7.
func New() string {
	return uuid.Must(uuid.NewV7()).String()
}

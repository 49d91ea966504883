// Package id mints opaque identifiers for design jobs and usage records.
package id

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"sync/atomic"
	"time"
)

var fallbackSeq atomic.Uint64

// New returns a 32-character hex identifier. When the system's entropy
// source fails it falls back to a timestamped counter so callers still
// get a unique value rather than an error.
func New() string {
	var b [16]byte
	if _, err := rand.Read(b[:]); err != nil {
		return fmt.Sprintf("fb-%d-%d", time.Now().UnixNano(), fallbackSeq.Add(1))
	}
	return hex.EncodeToString(b[:])
}

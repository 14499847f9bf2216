package util

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"
)

// NewID returns prefix_<millis><random>. The millisecond part is fixed-width
// hex, so ids created later sort after earlier ones.
func NewID(prefix string) string {
	return newIDAt(prefix, time.Now())
}

func newIDAt(prefix string, at time.Time) string {
	random := make([]byte, 8)
	_, _ = rand.Read(random)
	id := fmt.Sprintf("%012x%s", at.UnixMilli(), hex.EncodeToString(random))
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}

package repo

import (
	"errors"
	"time"
)

// ErrStaleRecord is returned when a conditional update lost a race with another writer.
var ErrStaleRecord = errors.New("record was modified concurrently")

// toMillis normalizes timestamps into millisecond precision for storage.
func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

// fromMillis restores a stored timestamp in UTC.
func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

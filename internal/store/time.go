package store

import (
	"fmt"
	"time"
)

// storedTimeLayout is RFC-3339 with nanosecond precision, matching the
// precision SaveMeta timestamps carry in memory.
const storedTimeLayout = time.RFC3339Nano

func formatStoredTime(t time.Time) string {
	return t.UTC().Format(storedTimeLayout)
}

func parseStoredTime(s string) (time.Time, error) {
	t, err := time.Parse(storedTimeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("store: parse stored timestamp %q: %w", s, err)
	}
	return t, nil
}

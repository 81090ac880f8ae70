package store

import (
	"errors"
	"time"
)

var ErrNotFound = errors.New("not found")

type List struct {
	ID        int64
	Title     string
	Position  int64
	CreatedAt time.Time
}

type Card struct {
	ID          int64
	ListID      int64
	Title       string
	Description string
	Position    int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Now is the clock used for created_at/updated_at, truncated to what both
// dialects store losslessly.
func Now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}

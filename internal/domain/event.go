package domain

import "time"

// Event is the catalog entity ticket types belong to. The engine only
// checks that it exists.
type Event struct {
	ID       string
	Name     string
	StartsAt time.Time
}

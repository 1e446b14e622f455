package connection

import "sync/atomic"

// IDCounter allocates the per-request connection IDs logged throughout the
// proxy. It guarantees uniqueness via atomic fetch-add, not ordering across
// goroutines. ID 0 is reserved to mean "not yet assigned" and is rendered
// as "(no-id)" by the logger.
type IDCounter struct {
	next atomic.Uint64
}

// Next returns a fresh, never-zero ID.
func (c *IDCounter) Next() uint64 {
	return c.next.Add(1)
}

package model

import "github.com/oklog/ulid/v2"

// NewID generates a ULID string. Used for run records and for per-call IPC
// artifact names, where the monotonic ordering keeps overlapping invocations
// from colliding on disk.
func NewID() string {
	return ulid.Make().String()
}

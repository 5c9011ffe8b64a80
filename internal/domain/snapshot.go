package domain

import "time"

// Snapshot is the complete exported rate set for one cycle. It is replaced
// only as a whole; readers never observe a partially built snapshot.
type Snapshot struct {
	Content     string
	GeneratedAt time.Time
	Count       int
}

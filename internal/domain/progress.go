package domain

import "time"

// PlaybackProgress is the locally persisted playback position for one book.
// One row per book; merged with server progress last-write-wins by UpdatedAt.
type PlaybackProgress struct {
	BookID      string    `json:"book_id"`
	CurrentTime float64   `json:"current_time"` // seconds
	Progress    float64   `json:"progress"`     // 0-100
	IsFinished  bool      `json:"is_finished"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewerThan reports whether this progress record is strictly newer than other.
// A nil other never wins.
func (p *PlaybackProgress) NewerThan(other *PlaybackProgress) bool {
	if other == nil {
		return true
	}
	return p.UpdatedAt.After(other.UpdatedAt)
}

// PendingProgressEntry is one buffered position update awaiting replay to the
// server. Entries are append-only until a drain succeeds; Seq is assigned by
// the store and defines the replay order.
type PendingProgressEntry struct {
	Seq         uint64    `json:"seq"`
	ItemID      string    `json:"item_id"`
	CurrentTime float64   `json:"current_time"`
	IsFinished  bool      `json:"is_finished"`
	Timestamp   time.Time `json:"timestamp"`
}

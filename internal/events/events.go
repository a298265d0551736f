// Package events is the client's in-process event bus. Components publish
// typed events (download lifecycle, sync passes, connectivity flips, progress
// drains) and consumers subscribe with bounded channels. Delivery is
// at-least-once from the consumer's point of view only in the sense that slow
// consumers lose events, so consumers must be idempotent and able to re-read
// state from the store.
package events

import "time"

// EventType represents the type of bus event.
type EventType string

const (
	// EventDownloadQueued represents a download being accepted into the queue.
	EventDownloadQueued EventType = "download.queued"
	// EventDownloadProgress represents byte-level progress on an active download.
	EventDownloadProgress EventType = "download.progress"
	// EventDownloadCompleted represents a download finishing all files.
	EventDownloadCompleted EventType = "download.completed"
	// EventDownloadFailed represents a download exhausting its retries.
	EventDownloadFailed EventType = "download.failed"
	// EventDownloadCancelled represents a user-initiated cancellation.
	EventDownloadCancelled EventType = "download.cancelled"

	// EventSyncStarted represents the start of a sync pass.
	EventSyncStarted EventType = "sync.started"
	// EventSyncCompleted represents a finished sync pass (success or failure
	// is carried in the payload).
	EventSyncCompleted EventType = "sync.completed"

	// EventConnectivityChanged represents an online/offline transition.
	EventConnectivityChanged EventType = "connectivity.changed"

	// EventProgressDrained represents pending progress entries replayed to
	// the server.
	EventProgressDrained EventType = "progress.drained"

	// EventProgressUpdated represents a playback progress record changing in
	// the local store, from playback or from a sync pull.
	EventProgressUpdated EventType = "progress.updated"
)

// Event is a single bus event. Data carries the event-specific payload.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Type      EventType `json:"type"`
}

// New creates an event stamped with the current time.
func New(eventType EventType, data any) Event {
	return Event{
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// DownloadEventData is the payload for download lifecycle events.
type DownloadEventData struct {
	ItemID          string  `json:"item_id"`
	BookID          string  `json:"book_id"`
	Title           string  `json:"title"`
	Status          string  `json:"status"`
	TotalBytes      int64   `json:"total_bytes"`
	DownloadedBytes int64   `json:"downloaded_bytes"`
	Error           string  `json:"error,omitempty"`
	Percent         float64 `json:"percent"`
}

// SyncEventData is the payload for sync pass events.
type SyncEventData struct {
	Libraries int    `json:"libraries"`
	Books     int    `json:"books"`
	Duration  string `json:"duration,omitempty"`
	Error     string `json:"error,omitempty"`
}

// ConnectivityEventData is the payload for connectivity transitions.
type ConnectivityEventData struct {
	Online bool   `json:"online"`
	Reason string `json:"reason,omitempty"`
}

// ProgressEventData is the payload for progress update events.
type ProgressEventData struct {
	BookID      string  `json:"book_id"`
	CurrentTime float64 `json:"current_time"`
	Progress    float64 `json:"progress"`
	IsFinished  bool    `json:"is_finished"`
}

// NewProgressUpdatedEvent builds the event the store emits when a progress
// record is written.
func NewProgressUpdatedEvent(bookID string, currentTime, percent float64, finished bool) Event {
	return New(EventProgressUpdated, ProgressEventData{
		BookID:      bookID,
		CurrentTime: currentTime,
		Progress:    percent,
		IsFinished:  finished,
	})
}

// DrainEventData is the payload for progress drain events.
type DrainEventData struct {
	Drained   int `json:"drained"`
	Remaining int `json:"remaining"`
}

package domain

import "time"

// DownloadStatus is the state of a download job.
type DownloadStatus int

const (
	// DownloadQueued means the item is waiting for a free transfer slot.
	DownloadQueued DownloadStatus = iota
	// DownloadDownloading means a transfer task is actively fetching files.
	DownloadDownloading
	// DownloadPaused means the transfer was cancelled by the user but
	// partial bytes remain on disk for resumption.
	DownloadPaused
	// DownloadCompleted is terminal: every file was fetched and renamed.
	DownloadCompleted
	// DownloadFailed means the last transfer attempt errored. Terminal once
	// RetryCount exceeds MaxRetries.
	DownloadFailed
	// DownloadCancelled is terminal: the user abandoned the download and
	// partial files were removed.
	DownloadCancelled
)

func (s DownloadStatus) String() string {
	switch s {
	case DownloadQueued:
		return "queued"
	case DownloadDownloading:
		return "downloading"
	case DownloadPaused:
		return "paused"
	case DownloadCompleted:
		return "completed"
	case DownloadFailed:
		return "failed"
	case DownloadCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// MaxDownloadRetries is the retry cap after which a failed download
// becomes terminal.
const MaxDownloadRetries = 3

// DownloadItem is a persistent download job for one audiobook.
type DownloadItem struct {
	ID     string         `json:"id"`
	BookID string         `json:"book_id"`
	Title  string         `json:"title"`
	Status DownloadStatus `json:"status"`

	// Dir is the target directory: <root>/<Author> - <Title>/.
	Dir string `json:"dir"`

	Files []DownloadFile `json:"files"`

	TotalBytes      int64 `json:"total_bytes"`
	DownloadedBytes int64 `json:"downloaded_bytes"`

	RetryCount   int    `json:"retry_count"`
	MaxRetries   int    `json:"max_retries"`
	ErrorMessage string `json:"error_message,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// DownloadFile is a single remote file to fetch.
type DownloadFile struct {
	RemoteURI string `json:"remote_uri"`
	Filename  string `json:"filename"`
	Size      int64  `json:"size"`
	// AudioFileID links back to the book's audio file so its LocalPath can
	// be set on completion. Empty for cover art.
	AudioFileID string `json:"audio_file_id,omitempty"`
	Done        bool   `json:"done"`
}

// IsTerminal reports whether the item can never transition again.
// Failed is terminal only once retries are exhausted.
func (d *DownloadItem) IsTerminal() bool {
	switch d.Status {
	case DownloadCompleted, DownloadCancelled:
		return true
	case DownloadFailed:
		return !d.CanRetry()
	default:
		return false
	}
}

// CanRetry reports whether a failed transfer may re-enter Downloading.
func (d *DownloadItem) CanRetry() bool {
	return d.RetryCount <= d.MaxRetries
}

// AllFilesDone reports whether every file has been fetched and renamed.
func (d *DownloadItem) AllFilesDone() bool {
	for _, f := range d.Files {
		if !f.Done {
			return false
		}
	}
	return len(d.Files) > 0
}

// MarkFailed records a transfer failure with a human-readable message.
func (d *DownloadItem) MarkFailed(msg string) {
	d.Status = DownloadFailed
	d.ErrorMessage = msg
}

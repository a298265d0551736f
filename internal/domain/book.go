// Package domain contains the entities the ListenUp client caches locally:
// the server's catalog (books, libraries), download jobs, and playback progress.
package domain

import "time"

// AudioBook is the client's cached view of a server library item, merged with
// locally owned download state. The server is authoritative for catalog metadata;
// the client is authoritative for IsDownloaded, LocalPath, and per-file LocalPath.
type AudioBook struct {
	ID          string `json:"id"`
	LibraryID   string `json:"library_id"`
	Title       string `json:"title"`
	Author      string `json:"author,omitempty"`
	Narrator    string `json:"narrator,omitempty"`
	Description string `json:"description,omitempty"`

	AudioFiles []AudioFile `json:"audio_files"`
	Chapters   []Chapter   `json:"chapters,omitempty"`

	// Playback state. Progress is normalized to 0-100 regardless of the
	// scale the server reports.
	CurrentTime float64 `json:"current_time"`
	Progress    float64 `json:"progress"`
	IsFinished  bool    `json:"is_finished"`

	// Download-derived state, owned by the download orchestrator.
	IsDownloaded bool   `json:"is_downloaded"`
	LocalPath    string `json:"local_path,omitempty"`

	// ServerUpdatedAt is the server-reported last-modified timestamp,
	// used for last-write-wins progress merging.
	ServerUpdatedAt time.Time `json:"server_updated_at"`
}

// AudioFile is a single audio file within a book.
type AudioFile struct {
	ID       string  `json:"id"`
	Ino      string  `json:"ino"` // server-assigned stable reference, survives renames
	Index    int     `json:"index"`
	Filename string  `json:"filename"`
	// LocalPath is set once the file has been downloaded. Empty for
	// stream-only files.
	LocalPath string  `json:"local_path,omitempty"`
	Duration  float64 `json:"duration"` // seconds
	Size      int64   `json:"size"`
}

// Chapter is a chapter marker. Chapters are sorted ascending by Start,
// Start < End, and no two chapters overlap.
type Chapter struct {
	Start float64 `json:"start"` // seconds
	End   float64 `json:"end"`   // seconds
	Title string  `json:"title"`
}

// Contains reports whether position p falls inside [Start, End).
func (c Chapter) Contains(p float64) bool {
	return p >= c.Start && p < c.End
}

// GetAudioFileByIno finds an audio file by its stable server reference.
// Used during sync to match files after server-side renames or re-indexing.
func (b *AudioBook) GetAudioFileByIno(ino string) *AudioFile {
	if ino == "" {
		return nil
	}
	for i := range b.AudioFiles {
		if b.AudioFiles[i].Ino == ino {
			return &b.AudioFiles[i]
		}
	}
	return nil
}

// GetAudioFileByFilename finds an audio file by filename.
func (b *AudioBook) GetAudioFileByFilename(filename string) *AudioFile {
	if filename == "" {
		return nil
	}
	for i := range b.AudioFiles {
		if b.AudioFiles[i].Filename == filename {
			return &b.AudioFiles[i]
		}
	}
	return nil
}

// GetAudioFileByIndex finds an audio file by positional index.
func (b *AudioBook) GetAudioFileByIndex(index int) *AudioFile {
	for i := range b.AudioFiles {
		if b.AudioFiles[i].Index == index {
			return &b.AudioFiles[i]
		}
	}
	return nil
}

// MatchAudioFile correlates a remote file against this book's local file list
// using tiered matching: stable reference first, then filename, then index.
// The first tier that produces a match wins.
func (b *AudioBook) MatchAudioFile(remote AudioFile) *AudioFile {
	if f := b.GetAudioFileByIno(remote.Ino); f != nil {
		return f
	}
	if f := b.GetAudioFileByFilename(remote.Filename); f != nil {
		return f
	}
	return b.GetAudioFileByIndex(remote.Index)
}

// TotalDuration returns the summed duration of all audio files in seconds.
func (b *AudioBook) TotalDuration() float64 {
	var total float64
	for _, f := range b.AudioFiles {
		total += f.Duration
	}
	return total
}

// FindChapter returns the index of the chapter containing position p,
// or -1 if p falls outside every chapter. Binary search over the sorted,
// non-overlapping chapter list; chapter counts run into the hundreds for
// long works and this is called on every position tick.
func FindChapter(chapters []Chapter, p float64) int {
	lo, hi := 0, len(chapters)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		c := chapters[mid]
		switch {
		case p < c.Start:
			hi = mid - 1
		case p >= c.End:
			lo = mid + 1
		default:
			return mid
		}
	}
	return -1
}

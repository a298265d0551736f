// Package trackmap translates an audiobook-level playback position into a
// concrete file and offset across a multi-file book. Everything here is pure
// arithmetic over ordered track lists; file-existence checks are injected so
// tests never touch the filesystem.
package trackmap

import (
	"os"
	"path/filepath"
	"sort"

	"github.com/listenupapp/listenup-client/internal/domain"
)

// Stat reports whether a file exists on disk. Overridable in tests.
type Stat func(path string) bool

// DiskStat is the default Stat backed by os.Stat.
func DiskStat(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// Track is one playable file in a TrackList.
type Track struct {
	Path string
	// FileIndex is the original AudioFile.Index, kept so chapter-to-file
	// lookups can detect when a missing middle file shifted positions.
	FileIndex  int
	Duration   float64
	Cumulative float64 // running total including this track
}

// TrackList is the ordered set of locally playable files for one book plus a
// cumulative-duration table. Derived, never persisted.
type TrackList struct {
	Tracks []Track
}

// Cumulative returns the cumulative-duration table, one bound per track.
func (tl TrackList) Cumulative() []float64 {
	out := make([]float64, len(tl.Tracks))
	for i, t := range tl.Tracks {
		out[i] = t.Cumulative
	}
	return out
}

// Paths returns the ordered local paths.
func (tl TrackList) Paths() []string {
	out := make([]string, len(tl.Tracks))
	for i, t := range tl.Tracks {
		out[i] = t.Path
	}
	return out
}

// Aligned reports whether every track kept its original position, i.e. no
// middle file was skipped for being missing on disk.
func (tl TrackList) Aligned() bool {
	for i, t := range tl.Tracks {
		if t.FileIndex != i {
			return false
		}
	}
	return true
}

// BuildLocalTrackList builds the ordered playable-file list for a downloaded
// book. Books with at most one file play from primaryPath directly. For
// multi-file books, files are ordered by index and each file's path resolves
// to its recorded LocalPath when that exists, else to a sibling of
// primaryPath named after the file. Files that resolve to nothing on disk are
// skipped; if none resolve, the list falls back to primaryPath alone.
func BuildLocalTrackList(book *domain.AudioBook, primaryPath string, stat Stat) TrackList {
	if stat == nil {
		stat = DiskStat
	}

	single := TrackList{Tracks: []Track{{
		Path:       primaryPath,
		FileIndex:  0,
		Duration:   book.TotalDuration(),
		Cumulative: book.TotalDuration(),
	}}}

	if len(book.AudioFiles) <= 1 {
		return single
	}

	files := make([]domain.AudioFile, len(book.AudioFiles))
	copy(files, book.AudioFiles)
	sort.Slice(files, func(i, j int) bool { return files[i].Index < files[j].Index })

	dir := filepath.Dir(primaryPath)

	var tracks []Track
	var total float64
	for _, f := range files {
		path := resolvePath(f, dir, stat)
		if path == "" {
			continue
		}
		total += f.Duration
		tracks = append(tracks, Track{
			Path:       path,
			FileIndex:  f.Index,
			Duration:   f.Duration,
			Cumulative: total,
		})
	}

	if len(tracks) == 0 {
		return single
	}
	return TrackList{Tracks: tracks}
}

// resolvePath picks the on-disk path for one file: the recorded LocalPath if
// it still exists, else dir/filename if that exists, else nothing.
func resolvePath(f domain.AudioFile, dir string, stat Stat) string {
	if f.LocalPath != "" && stat(f.LocalPath) {
		return f.LocalPath
	}
	if f.Filename != "" {
		candidate := filepath.Join(dir, f.Filename)
		if stat(candidate) {
			return candidate
		}
	}
	return ""
}

// BuildStreamTrackDurations builds the cumulative table for streamed playback,
// where every remote track is assumed present.
func BuildStreamTrackDurations(files []domain.AudioFile) []float64 {
	sorted := make([]domain.AudioFile, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Index < sorted[j].Index })

	out := make([]float64, len(sorted))
	var total float64
	for i, f := range sorted {
		total += f.Duration
		out[i] = total
	}
	return out
}

// DetermineStartingTrack returns the index of the track containing
// currentTime: the first index whose cumulative bound exceeds it. An empty
// table yields 0; a position past the last bound yields the last index.
func DetermineStartingTrack(cumulative []float64, currentTime float64) int {
	if len(cumulative) == 0 {
		return 0
	}
	idx := sort.Search(len(cumulative), func(i int) bool {
		return cumulative[i] > currentTime
	})
	if idx >= len(cumulative) {
		return len(cumulative) - 1
	}
	return idx
}

// FindTrackForPosition locates the track for an absolute position after a
// seek. Same rule as DetermineStartingTrack.
func FindTrackForPosition(cumulative []float64, position float64) int {
	return DetermineStartingTrack(cumulative, position)
}

// WithinTrackOffset converts an overall position to an offset inside the
// given track. Never negative.
func WithinTrackOffset(trackIndex int, cumulative []float64, overallPosition float64) float64 {
	offset := overallPosition
	if trackIndex > 0 && trackIndex <= len(cumulative) {
		offset -= cumulative[trackIndex-1]
	}
	if offset < 0 {
		return 0
	}
	return offset
}

// FindChapterForPosition returns the index of the chapter containing the
// position, or -1 when the position falls in a gap or past the end.
func FindChapterForPosition(chapters []domain.Chapter, position float64) int {
	return domain.FindChapter(chapters, position)
}

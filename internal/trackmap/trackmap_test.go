package trackmap

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/listenup-client/internal/domain"
)

// statFor returns a Stat that reports only the given paths as existing.
func statFor(paths ...string) Stat {
	set := make(map[string]bool, len(paths))
	for _, p := range paths {
		set[p] = true
	}
	return func(path string) bool { return set[path] }
}

func multiFileBook() *domain.AudioBook {
	return &domain.AudioBook{
		ID:    "book-1",
		Title: "The Long Way",
		AudioFiles: []domain.AudioFile{
			{ID: "af-2", Index: 2, Filename: "part3.m4a", Duration: 300},
			{ID: "af-0", Index: 0, Filename: "part1.m4a", Duration: 100, LocalPath: "/dl/book/part1.m4a"},
			{ID: "af-1", Index: 1, Filename: "part2.m4a", Duration: 200},
		},
	}
}

func TestBuildLocalTrackList_SingleFile(t *testing.T) {
	book := &domain.AudioBook{
		AudioFiles: []domain.AudioFile{{Index: 0, Filename: "book.m4b", Duration: 3600}},
	}

	tl := BuildLocalTrackList(book, "/dl/book/book.m4b", statFor())

	require.Len(t, tl.Tracks, 1)
	assert.Equal(t, "/dl/book/book.m4b", tl.Tracks[0].Path)
	assert.Equal(t, 3600.0, tl.Tracks[0].Cumulative)
}

func TestBuildLocalTrackList_OrdersByIndex(t *testing.T) {
	book := multiFileBook()
	primary := "/dl/book/part1.m4a"
	stat := statFor(
		"/dl/book/part1.m4a",
		"/dl/book/part2.m4a",
		"/dl/book/part3.m4a",
	)

	tl := BuildLocalTrackList(book, primary, stat)

	require.Len(t, tl.Tracks, 3)
	assert.Equal(t, []string{
		"/dl/book/part1.m4a",
		"/dl/book/part2.m4a",
		"/dl/book/part3.m4a",
	}, tl.Paths())
	assert.Equal(t, []float64{100, 300, 600}, tl.Cumulative())
	assert.True(t, tl.Aligned())
}

func TestBuildLocalTrackList_PrefersRecordedLocalPath(t *testing.T) {
	book := multiFileBook()
	book.AudioFiles[1].LocalPath = "/elsewhere/part1.m4a"
	stat := statFor(
		"/elsewhere/part1.m4a",
		"/dl/book/part2.m4a",
		"/dl/book/part3.m4a",
	)

	tl := BuildLocalTrackList(book, "/dl/book/part1.m4a", stat)

	require.Len(t, tl.Tracks, 3)
	assert.Equal(t, "/elsewhere/part1.m4a", tl.Tracks[0].Path)
}

func TestBuildLocalTrackList_SkipsMissingMiddleFile(t *testing.T) {
	book := multiFileBook()
	stat := statFor(
		"/dl/book/part1.m4a",
		// part2 missing
		"/dl/book/part3.m4a",
	)

	tl := BuildLocalTrackList(book, "/dl/book/part1.m4a", stat)

	require.Len(t, tl.Tracks, 2)
	assert.Equal(t, []string{"/dl/book/part1.m4a", "/dl/book/part3.m4a"}, tl.Paths())
	assert.Equal(t, []float64{100, 400}, tl.Cumulative())
	// Original indexes survive so callers can see the hole.
	assert.Equal(t, 0, tl.Tracks[0].FileIndex)
	assert.Equal(t, 2, tl.Tracks[1].FileIndex)
	assert.False(t, tl.Aligned())
}

func TestBuildLocalTrackList_FallsBackToPrimaryWhenNothingResolves(t *testing.T) {
	book := multiFileBook()

	tl := BuildLocalTrackList(book, "/dl/book/primary.m4b", statFor())

	require.Len(t, tl.Tracks, 1)
	assert.Equal(t, "/dl/book/primary.m4b", tl.Tracks[0].Path)
	assert.Equal(t, book.TotalDuration(), tl.Tracks[0].Duration)
}

func TestBuildLocalTrackList_DefaultStatUsesDisk(t *testing.T) {
	dir := t.TempDir()
	primary := filepath.Join(dir, "part1.m4a")

	tl := BuildLocalTrackList(multiFileBook(), primary, nil)

	// Nothing exists in the temp dir, so the primary-path fallback applies.
	require.Len(t, tl.Tracks, 1)
	assert.Equal(t, primary, tl.Tracks[0].Path)
}

func TestBuildStreamTrackDurations(t *testing.T) {
	cumulative := BuildStreamTrackDurations(multiFileBook().AudioFiles)
	assert.Equal(t, []float64{100, 300, 600}, cumulative)

	assert.Empty(t, BuildStreamTrackDurations(nil))
}

func TestDetermineStartingTrack(t *testing.T) {
	cumulative := []float64{100, 300, 600}

	tests := []struct {
		name string
		pos  float64
		want int
	}{
		{"start", 0, 0},
		{"inside first", 50, 0},
		{"first boundary", 100, 1},
		{"inside second", 250, 1},
		{"inside last", 599, 2},
		{"at end", 600, 2},
		{"past end", 10000, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DetermineStartingTrack(cumulative, tt.pos))
		})
	}

	assert.Equal(t, 0, DetermineStartingTrack(nil, 42))
}

func TestWithinTrackOffset(t *testing.T) {
	cumulative := []float64{100, 300, 600}

	assert.Equal(t, 50.0, WithinTrackOffset(0, cumulative, 50))
	assert.Equal(t, 150.0, WithinTrackOffset(1, cumulative, 250))
	assert.Equal(t, 0.0, WithinTrackOffset(2, cumulative, 600-300))
	// Clamped, never negative.
	assert.Equal(t, 0.0, WithinTrackOffset(2, cumulative, 100))
}

func TestTrackOffsetRoundTrip(t *testing.T) {
	cumulative := []float64{123.5, 456.25, 789.75, 1000}

	for _, pos := range []float64{0, 1, 123.5, 200, 456.25, 700, 999.9} {
		idx := FindTrackForPosition(cumulative, pos)
		require.GreaterOrEqual(t, idx, 0)
		require.Less(t, idx, len(cumulative))

		offset := WithinTrackOffset(idx, cumulative, pos)
		assert.GreaterOrEqual(t, offset, 0.0)

		base := 0.0
		if idx > 0 {
			base = cumulative[idx-1]
		}
		assert.InDelta(t, pos, base+offset, 1e-9)
	}
}

func TestFindChapterForPosition(t *testing.T) {
	chapters := []domain.Chapter{
		{Start: 0, End: 100, Title: "One"},
		{Start: 100, End: 250, Title: "Two"},
		{Start: 300, End: 500, Title: "Three"}, // gap before this one
	}

	assert.Equal(t, 0, FindChapterForPosition(chapters, 0))
	assert.Equal(t, 1, FindChapterForPosition(chapters, 100))
	assert.Equal(t, 2, FindChapterForPosition(chapters, 499.9))
	assert.Equal(t, -1, FindChapterForPosition(chapters, 275)) // in the gap
	assert.Equal(t, -1, FindChapterForPosition(chapters, 500))
	assert.Equal(t, -1, FindChapterForPosition(nil, 0))
}

package sync

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/listenup-client/internal/domain"
)

func localBook() *domain.AudioBook {
	return &domain.AudioBook{
		ID:           "book-1",
		Title:        "Old Title",
		IsDownloaded: true,
		LocalPath:    "/dl/Author - Book",
		CurrentTime:  120,
		Progress:     10,
		AudioFiles: []domain.AudioFile{
			{ID: "af-1", Ino: "abc", Index: 0, Filename: "part1.m4a",
				LocalPath: "/dl/Author - Book/part1.m4a", Duration: 100},
			{ID: "af-2", Ino: "def", Index: 1, Filename: "part2.m4a",
				LocalPath: "/dl/Author - Book/part2.m4a", Duration: 200},
		},
	}
}

func TestMergeMatchesByInoBeforeFilenameAndIndex(t *testing.T) {
	local := localBook()
	// The server renamed and re-indexed the first file; only Ino survives.
	remote := &domain.AudioBook{
		ID:    "book-1",
		Title: "New Title",
		AudioFiles: []domain.AudioFile{
			{Ino: "abc", Index: 5, Filename: "renamed.m4a", Duration: 100},
		},
	}

	merged := mergeBook(local, remote)

	assert.Equal(t, "New Title", merged.Title) // remote wins on metadata
	require.Len(t, merged.AudioFiles, 1)
	f := merged.AudioFiles[0]
	assert.Equal(t, "renamed.m4a", f.Filename)
	assert.Equal(t, 5, f.Index)
	assert.Equal(t, "/dl/Author - Book/part1.m4a", f.LocalPath) // matched by Ino
	assert.Equal(t, "af-1", f.ID)
}

func TestMergeFallsBackToFilenameThenIndex(t *testing.T) {
	local := localBook()
	remote := &domain.AudioBook{
		ID: "book-1",
		AudioFiles: []domain.AudioFile{
			// New Ino, same filename: filename tier matches.
			{Ino: "zzz", Index: 9, Filename: "part2.m4a", Duration: 200},
			// New Ino and filename, same index: index tier matches.
			{Ino: "yyy", Index: 0, Filename: "brand-new.m4a", Duration: 100},
		},
	}

	merged := mergeBook(local, remote)

	require.Len(t, merged.AudioFiles, 2)
	assert.Equal(t, "/dl/Author - Book/part2.m4a", merged.AudioFiles[0].LocalPath)
	assert.Equal(t, "/dl/Author - Book/part1.m4a", merged.AudioFiles[1].LocalPath)
}

func TestMergePreservesLocalStateWhenRemoteOmitsFiles(t *testing.T) {
	local := localBook()
	remote := &domain.AudioBook{ID: "book-1", Title: "New Title"}

	merged := mergeBook(local, remote)

	assert.True(t, merged.IsDownloaded)
	assert.Equal(t, "/dl/Author - Book", merged.LocalPath)
	assert.Len(t, merged.AudioFiles, 2)
	assert.Equal(t, "New Title", merged.Title)
}

func TestMergePreservesPlaybackScalars(t *testing.T) {
	local := localBook()
	remote := &domain.AudioBook{
		ID:          "book-1",
		CurrentTime: 999, // remote scalar ignored; progress moves via LWW pull
		AudioFiles:  []domain.AudioFile{{Ino: "abc", Index: 0, Filename: "part1.m4a"}},
	}

	merged := mergeBook(local, remote)

	assert.Equal(t, 120.0, merged.CurrentTime)
	assert.Equal(t, 10.0, merged.Progress)
}

func TestMergeWithoutLocalRecord(t *testing.T) {
	remote := &domain.AudioBook{ID: "book-2", Title: "Fresh"}
	merged := mergeBook(nil, remote)
	assert.Same(t, remote, merged)
}

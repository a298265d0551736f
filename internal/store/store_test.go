package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/listenup-client/internal/domain"
	"github.com/listenupapp/listenup-client/internal/errors"
	"github.com/listenupapp/listenup-client/internal/events"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir(), nil, NewNoopEmitter())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestEntityCRUD(t *testing.T) {
	s := newTestStore(t)

	book := &domain.AudioBook{ID: "book-1", LibraryID: "lib-1", Title: "Dune"}
	require.NoError(t, s.Books.Put(t.Context(), book.ID, book))

	got, err := s.Books.Get(t.Context(), "book-1")
	require.NoError(t, err)
	assert.Equal(t, "Dune", got.Title)

	// Upsert replaces.
	book.Title = "Dune Messiah"
	require.NoError(t, s.Books.Put(t.Context(), book.ID, book))
	got, err = s.Books.Get(t.Context(), "book-1")
	require.NoError(t, err)
	assert.Equal(t, "Dune Messiah", got.Title)

	require.NoError(t, s.Books.Delete(t.Context(), "book-1"))
	_, err = s.Books.Get(t.Context(), "book-1")
	assert.True(t, errors.Is(err, ErrNotFound))

	// Delete is idempotent.
	assert.NoError(t, s.Books.Delete(t.Context(), "book-1"))
}

func TestDownloadIndexByBook(t *testing.T) {
	s := newTestStore(t)

	item := &domain.DownloadItem{ID: "dl-1", BookID: "book-1", Status: domain.DownloadQueued}
	require.NoError(t, s.Downloads.Put(t.Context(), item.ID, item))

	got, err := s.Downloads.ListByIndex(t.Context(), "book", "book-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "dl-1", got[0].ID)

	got, err = s.Downloads.ListByIndex(t.Context(), "book", "book-unknown")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestDownloadIndexSurvivesSiblingDelete(t *testing.T) {
	s := newTestStore(t)

	// Two items for the same book: a finished old one and a live new one.
	old := &domain.DownloadItem{ID: "dl-old", BookID: "book-1", Status: domain.DownloadCompleted}
	live := &domain.DownloadItem{ID: "dl-new", BookID: "book-1", Status: domain.DownloadQueued}
	require.NoError(t, s.Downloads.Put(t.Context(), old.ID, old))
	require.NoError(t, s.Downloads.Put(t.Context(), live.ID, live))

	require.NoError(t, s.Downloads.Delete(t.Context(), "dl-old"))

	// Deleting the old record must not hide the live one from index lookups.
	got, err := s.Downloads.ListByIndex(t.Context(), "book", "book-1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "dl-new", got[0].ID)
}

func TestPendingLogKeepsEnqueueOrder(t *testing.T) {
	s := newTestStore(t)

	for i := 0; i < 5; i++ {
		_, err := s.AppendPending(t.Context(), "book-1", float64(i*10), false)
		require.NoError(t, err)
	}

	entries, err := s.ListPending(t.Context())
	require.NoError(t, err)
	require.Len(t, entries, 5)
	for i := 1; i < len(entries); i++ {
		assert.Greater(t, entries[i].Seq, entries[i-1].Seq)
		assert.GreaterOrEqual(t, entries[i].CurrentTime, entries[i-1].CurrentTime)
	}

	// Delete the first three exactly; the rest keep their order.
	require.NoError(t, s.DeletePending(t.Context(),
		[]uint64{entries[0].Seq, entries[1].Seq, entries[2].Seq}))

	remaining, err := s.ListPending(t.Context())
	require.NoError(t, err)
	require.Len(t, remaining, 2)
	assert.Equal(t, entries[3].Seq, remaining[0].Seq)

	count, err := s.PendingCount(t.Context())
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestPendingSequenceSurvivesReopen(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, nil, NewNoopEmitter())
	require.NoError(t, err)

	first, err := s.AppendPending(t.Context(), "book-1", 1, false)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = New(dir, nil, NewNoopEmitter())
	require.NoError(t, err)
	defer s.Close()

	second, err := s.AppendPending(t.Context(), "book-1", 2, false)
	require.NoError(t, err)
	assert.Greater(t, second.Seq, first.Seq)

	entries, err := s.ListPending(t.Context())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 1.0, entries[0].CurrentTime)
}

func TestPutProgressIfNewer(t *testing.T) {
	s := newTestStore(t)

	older := time.Now().Add(-time.Hour)
	newer := time.Now()

	applied, err := s.PutProgressIfNewer(t.Context(), &domain.PlaybackProgress{
		BookID: "book-1", CurrentTime: 10, UpdatedAt: older,
	})
	require.NoError(t, err)
	assert.True(t, applied, "first write always applies")

	applied, err = s.PutProgressIfNewer(t.Context(), &domain.PlaybackProgress{
		BookID: "book-1", CurrentTime: 99, UpdatedAt: older,
	})
	require.NoError(t, err)
	assert.False(t, applied, "equal timestamp does not win")

	applied, err = s.PutProgressIfNewer(t.Context(), &domain.PlaybackProgress{
		BookID: "book-1", CurrentTime: 50, UpdatedAt: newer,
	})
	require.NoError(t, err)
	assert.True(t, applied)

	got, err := s.GetProgress(t.Context(), "book-1")
	require.NoError(t, err)
	assert.Equal(t, 50.0, got.CurrentTime)
}

func TestReplaceLibrariesIsWholesale(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.ReplaceLibraries(t.Context(), []*domain.Library{
		{ID: "lib-1", Name: "One"},
		{ID: "lib-2", Name: "Two"},
	}))
	require.NoError(t, s.ReplaceLibraries(t.Context(), []*domain.Library{
		{ID: "lib-3", Name: "Three"},
	}))

	libs, err := s.Libraries.ListAll(t.Context())
	require.NoError(t, err)
	require.Len(t, libs, 1)
	assert.Equal(t, "lib-3", libs[0].ID)
}

func TestCompleteDownloadIsAtomic(t *testing.T) {
	s := newTestStore(t)

	book := &domain.AudioBook{ID: "book-1", LibraryID: "lib-1", Title: "Dune"}
	require.NoError(t, s.Books.Put(t.Context(), book.ID, book))

	item := &domain.DownloadItem{
		ID: "dl-1", BookID: "book-1", Status: domain.DownloadDownloading,
		Files: []domain.DownloadFile{{Filename: "f.m4a", Done: true}},
	}
	require.NoError(t, s.Downloads.Put(t.Context(), item.ID, item))

	book.IsDownloaded = true
	book.LocalPath = "/dl/Author - Dune"
	applied, err := s.CompleteDownload(t.Context(), item, book)
	require.NoError(t, err)
	require.True(t, applied)

	gotItem, err := s.Downloads.Get(t.Context(), "dl-1")
	require.NoError(t, err)
	assert.Equal(t, domain.DownloadCompleted, gotItem.Status)
	require.NotNil(t, gotItem.CompletedAt)

	gotBook, err := s.Books.Get(t.Context(), "book-1")
	require.NoError(t, err)
	assert.True(t, gotBook.IsDownloaded)
	assert.Equal(t, "/dl/Author - Dune", gotBook.LocalPath)
}

func TestCompleteDownloadSkipsInactiveItem(t *testing.T) {
	s := newTestStore(t)

	book := &domain.AudioBook{ID: "book-1", Title: "Dune"}
	require.NoError(t, s.Books.Put(t.Context(), book.ID, book))

	// The user cancelled while the transfer goroutine was finishing up.
	item := &domain.DownloadItem{ID: "dl-1", BookID: "book-1", Status: domain.DownloadCancelled}
	require.NoError(t, s.Downloads.Put(t.Context(), item.ID, item))

	stale := *item
	stale.Status = domain.DownloadDownloading
	book.IsDownloaded = true
	applied, err := s.CompleteDownload(t.Context(), &stale, book)
	require.NoError(t, err)
	assert.False(t, applied)

	gotItem, err := s.Downloads.Get(t.Context(), "dl-1")
	require.NoError(t, err)
	assert.Equal(t, domain.DownloadCancelled, gotItem.Status)

	gotBook, err := s.Books.Get(t.Context(), "book-1")
	require.NoError(t, err)
	assert.False(t, gotBook.IsDownloaded)
}

func TestPutDownloadIfStatus(t *testing.T) {
	s := newTestStore(t)

	item := &domain.DownloadItem{ID: "dl-1", BookID: "book-1", Status: domain.DownloadDownloading}
	require.NoError(t, s.Downloads.Put(t.Context(), item.ID, item))

	// Matching stored status applies the write.
	item.DownloadedBytes = 512
	applied, err := s.PutDownloadIfStatus(t.Context(), item, domain.DownloadDownloading)
	require.NoError(t, err)
	require.True(t, applied)

	got, err := s.Downloads.Get(t.Context(), "dl-1")
	require.NoError(t, err)
	assert.Equal(t, int64(512), got.DownloadedBytes)

	// A user pause between the transfer's reads must win over a stale write.
	paused := *got
	paused.Status = domain.DownloadPaused
	require.NoError(t, s.Downloads.Put(t.Context(), paused.ID, &paused))

	item.DownloadedBytes = 1024
	applied, err = s.PutDownloadIfStatus(t.Context(), item, domain.DownloadDownloading)
	require.NoError(t, err)
	assert.False(t, applied)

	got, err = s.Downloads.Get(t.Context(), "dl-1")
	require.NoError(t, err)
	assert.Equal(t, domain.DownloadPaused, got.Status)
	assert.Equal(t, int64(512), got.DownloadedBytes)

	// A deleted record is never resurrected.
	require.NoError(t, s.Downloads.Delete(t.Context(), "dl-1"))
	applied, err = s.PutDownloadIfStatus(t.Context(), item, domain.DownloadDownloading)
	require.NoError(t, err)
	assert.False(t, applied)
	_, err = s.Downloads.Get(t.Context(), "dl-1")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestDeviceIDIsStable(t *testing.T) {
	s := newTestStore(t)

	first, err := s.DeviceID(t.Context())
	require.NoError(t, err)
	require.NotEmpty(t, first)

	second, err := s.DeviceID(t.Context())
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestMigrateIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.Migrate(t.Context()))
	require.NoError(t, s.Migrate(t.Context()))
}

type captureEmitter struct {
	events []any
}

func (c *captureEmitter) Emit(event any) { c.events = append(c.events, event) }

func TestProgressWritesEmitEvents(t *testing.T) {
	emitter := &captureEmitter{}
	s, err := New(t.TempDir(), nil, emitter)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	require.NoError(t, s.PutProgress(t.Context(), &domain.PlaybackProgress{
		BookID: "book-1", CurrentTime: 10, UpdatedAt: time.Now().Add(-time.Hour),
	}))
	require.Len(t, emitter.events, 1)

	ev, ok := emitter.events[0].(events.Event)
	require.True(t, ok)
	assert.Equal(t, events.EventProgressUpdated, ev.Type)
	data, ok := ev.Data.(events.ProgressEventData)
	require.True(t, ok)
	assert.Equal(t, "book-1", data.BookID)
	assert.Equal(t, 10.0, data.CurrentTime)

	// A losing write emits nothing.
	applied, err := s.PutProgressIfNewer(t.Context(), &domain.PlaybackProgress{
		BookID: "book-1", CurrentTime: 99, UpdatedAt: time.Now().Add(-2 * time.Hour),
	})
	require.NoError(t, err)
	require.False(t, applied)
	assert.Len(t, emitter.events, 1)

	// A winning write emits.
	applied, err = s.PutProgressIfNewer(t.Context(), &domain.PlaybackProgress{
		BookID: "book-1", CurrentTime: 50, UpdatedAt: time.Now(),
	})
	require.NoError(t, err)
	require.True(t, applied)
	assert.Len(t, emitter.events, 2)
}

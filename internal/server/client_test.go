package server

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listenupapp/listenup-client/internal/domain"
	"github.com/listenupapp/listenup-client/internal/errors"
)

func TestPing(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/ping", r.URL.Path)
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"success":true}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "tok-123", nil)
	require.NoError(t, c.Ping(t.Context()))
	assert.Equal(t, "Bearer tok-123", gotAuth)
}

func TestPingUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // refuse connections

	c := NewHTTPClient(srv.URL, "", nil)
	err := c.Ping(t.Context())
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrUnreachable))
}

func TestGetLibraries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/libraries", r.URL.Path)
		w.Write([]byte(`{"libraries":[
			{"id":"lib-1","name":"Audiobooks","displayOrder":1,"icon":"book","mediaType":"book",
			 "folders":[{"id":"fol-1","fullPath":"/srv/audiobooks"}]},
			{"id":"lib-2","name":"Podcasts","displayOrder":2,"icon":"mic","mediaType":"podcast","folders":[]}
		]}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "", nil)
	libs, err := c.GetLibraries(t.Context())
	require.NoError(t, err)
	require.Len(t, libs, 2)

	assert.Equal(t, "lib-1", libs[0].ID)
	assert.Equal(t, "Audiobooks", libs[0].Name)
	assert.Equal(t, 1, libs[0].DisplayOrder)
	require.Len(t, libs[0].Folders, 1)
	assert.Equal(t, "/srv/audiobooks", libs[0].Folders[0].Path)
}

func TestGetLibraryItems(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/libraries/lib-1/items", r.URL.Path)
		w.Write([]byte(`{"results":[{
			"id":"item-1",
			"media":{
				"metadata":{"title":"Dune","authorName":"Frank Herbert","narratorName":"Simon Vance"},
				"audioFiles":[
					{"ino":"9021","index":0,"duration":1800.5,"metadata":{"filename":"dune-01.m4a","size":123456}},
					{"ino":"9022","index":1,"duration":2000,"metadata":{"filename":"dune-02.m4a","size":234567}}
				],
				"chapters":[{"start":0,"end":900,"title":"Chapter 1"}]
			},
			"updatedAt":1700000000000
		}]}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "", nil)
	books, err := c.GetLibraryItems(t.Context(), "lib-1")
	require.NoError(t, err)
	require.Len(t, books, 1)

	book := books[0]
	assert.Equal(t, "item-1", book.ID)
	assert.Equal(t, "lib-1", book.LibraryID) // filled when payload omits it
	assert.Equal(t, "Dune", book.Title)
	assert.Equal(t, "Frank Herbert", book.Author)
	require.Len(t, book.AudioFiles, 2)
	assert.Equal(t, "9021", book.AudioFiles[0].Ino)
	assert.Equal(t, "dune-01.m4a", book.AudioFiles[0].Filename)
	assert.Equal(t, int64(123456), book.AudioFiles[0].Size)
	require.Len(t, book.Chapters, 1)
	assert.Equal(t, "Chapter 1", book.Chapters[0].Title)
	assert.Equal(t, time.UnixMilli(1700000000000), book.ServerUpdatedAt)
}

func TestGetProgress(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/me/progress/item-1", r.URL.Path)
		w.Write([]byte(`{"libraryItemId":"item-1","currentTime":120.5,"progress":0.25,
			"isFinished":false,"lastUpdate":1700000000000}`))
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "", nil)
	p, err := c.GetProgress(t.Context(), "item-1")
	require.NoError(t, err)

	assert.Equal(t, "item-1", p.BookID)
	assert.Equal(t, 120.5, p.CurrentTime)
	assert.Equal(t, 25.0, p.Progress) // normalized to 0-100
	assert.Equal(t, time.UnixMilli(1700000000000), p.UpdatedAt)
}

func TestGetProgressNotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "", nil)
	_, err := c.GetProgress(t.Context(), "item-x")
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrNotFound))
}

func TestPushProgress(t *testing.T) {
	var gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPatch, r.Method)
		require.Equal(t, "/api/me/progress/item-1", r.URL.Path)
		buf := make([]byte, r.ContentLength)
		r.Body.Read(buf)
		gotBody = string(buf)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "", nil)
	err := c.PushProgress(t.Context(), "dev-1", &domain.PlaybackProgress{
		BookID:      "item-1",
		CurrentTime: 300,
		Progress:    50,
		UpdatedAt:   time.UnixMilli(1700000000000),
	})
	require.NoError(t, err)

	assert.Contains(t, gotBody, `"currentTime":300`)
	assert.Contains(t, gotBody, `"progress":0.5`) // back to 0..1 on the wire
	assert.Contains(t, gotBody, `"deviceId":"dev-1"`)
}

func TestPushProgressServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "", nil)
	err := c.PushProgress(t.Context(), "", &domain.PlaybackProgress{BookID: "item-1"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, errors.ErrTransient))
}

func TestFileAndCoverURLs(t *testing.T) {
	c := NewHTTPClient("https://listenup.example/", "tok", nil)

	assert.Equal(t,
		"https://listenup.example/api/items/item-1/file/9021/download",
		c.FileURL("item-1", "9021"))
	assert.Equal(t,
		"https://listenup.example/api/items/item-1/cover",
		c.CoverURL("item-1"))

	req, err := c.NewFileRequest(t.Context(), c.FileURL("item-1", "9021"))
	require.NoError(t, err)
	assert.Equal(t, "Bearer tok", req.Header.Get("Authorization"))
}

// Package server is the HTTP client for the remote catalog server. It maps
// the server's wire payloads to domain types and classifies failures so
// callers can tell a dead network from a flaky response.
package server

import (
	"bytes"
	"context"
	"encoding/json/v2"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/listenupapp/listenup-client/internal/domain"
	"github.com/listenupapp/listenup-client/internal/errors"
	"github.com/listenupapp/listenup-client/internal/ratelimit"
)

// Client is the catalog server surface the sync engine, progress queue, and
// download orchestrator depend on.
type Client interface {
	// Ping checks that the server is reachable and the token is accepted.
	Ping(ctx context.Context) error
	// GetLibraries fetches the full library list.
	GetLibraries(ctx context.Context) ([]*domain.Library, error)
	// GetLibraryItems fetches every item in a library.
	GetLibraryItems(ctx context.Context, libraryID string) ([]*domain.AudioBook, error)
	// GetItem fetches a single item with full file and chapter detail.
	GetItem(ctx context.Context, itemID string) (*domain.AudioBook, error)
	// GetProgress fetches the server's playback progress for an item.
	// Returns errors.ErrNotFound when the server has none.
	GetProgress(ctx context.Context, itemID string) (*domain.PlaybackProgress, error)
	// PushProgress reports local playback progress to the server.
	PushProgress(ctx context.Context, deviceID string, progress *domain.PlaybackProgress) error
	// FileURL builds the download URL for one audio file.
	FileURL(itemID, ino string) string
	// CoverURL builds the cover art URL for an item.
	CoverURL(itemID string) string
	// NewFileRequest builds an authorized GET request for a file URL. The
	// caller adds Range headers and executes it with its own http.Client.
	NewFileRequest(ctx context.Context, rawURL string) (*http.Request, error)
}

// Rate-limit keys. Catalog reads are bursty during a sync pass; progress
// pushes trickle steadily; both stay within the server's per-client budget.
const (
	limitCatalog  = "catalog"
	limitProgress = "progress"
)

// HTTPClient is the production Client.
type HTTPClient struct {
	baseURL     string
	token       string
	httpClient  *http.Client
	rateLimiter *ratelimit.KeyedRateLimiter
	logger      *slog.Logger
}

// NewHTTPClient creates a client for the given server. baseURL must include
// the scheme; a trailing slash is tolerated.
func NewHTTPClient(baseURL, token string, logger *slog.Logger) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		// 10 rps per concern with room for sync-pass bursts.
		rateLimiter: ratelimit.New(10, 20),
		logger:      logger,
	}
}

// Ping implements Client.
func (c *HTTPClient) Ping(ctx context.Context) error {
	var resp pingResponse
	if err := c.getJSON(ctx, "/ping", &resp); err != nil {
		return err
	}
	if !resp.Success {
		return errors.Unreachable("server ping rejected")
	}
	return nil
}

// GetLibraries implements Client.
func (c *HTTPClient) GetLibraries(ctx context.Context) ([]*domain.Library, error) {
	var resp librariesResponse
	if err := c.getJSON(ctx, "/api/libraries", &resp); err != nil {
		return nil, err
	}

	libraries := make([]*domain.Library, 0, len(resp.Libraries))
	for _, p := range resp.Libraries {
		libraries = append(libraries, p.toDomain())
	}
	return libraries, nil
}

// GetLibraryItems implements Client.
func (c *HTTPClient) GetLibraryItems(ctx context.Context, libraryID string) ([]*domain.AudioBook, error) {
	path := "/api/libraries/" + url.PathEscape(libraryID) + "/items"

	var resp libraryItemsResponse
	if err := c.getJSON(ctx, path, &resp); err != nil {
		return nil, err
	}

	books := make([]*domain.AudioBook, 0, len(resp.Results))
	for _, p := range resp.Results {
		book := p.toDomain()
		if book.LibraryID == "" {
			book.LibraryID = libraryID
		}
		books = append(books, book)
	}
	return books, nil
}

// GetItem implements Client.
func (c *HTTPClient) GetItem(ctx context.Context, itemID string) (*domain.AudioBook, error) {
	var payload itemPayload
	if err := c.getJSON(ctx, "/api/items/"+url.PathEscape(itemID), &payload); err != nil {
		return nil, err
	}
	return payload.toDomain(), nil
}

// GetProgress implements Client.
func (c *HTTPClient) GetProgress(ctx context.Context, itemID string) (*domain.PlaybackProgress, error) {
	var payload progressPayload
	err := c.getJSON(ctx, "/api/me/progress/"+url.PathEscape(itemID), &payload)
	if err != nil {
		return nil, err
	}
	progress := payload.toDomain()
	if progress.BookID == "" {
		progress.BookID = itemID
	}
	return progress, nil
}

// PushProgress implements Client.
func (c *HTTPClient) PushProgress(ctx context.Context, deviceID string, progress *domain.PlaybackProgress) error {
	body := pushProgressRequest{
		CurrentTime: progress.CurrentTime,
		Progress:    progress.Progress / 100,
		IsFinished:  progress.IsFinished,
		LastUpdate:  progress.UpdatedAt.UnixMilli(),
		DeviceID:    deviceID,
	}

	data, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshal progress: %w", err)
	}

	if err := c.rateLimiter.Wait(ctx, limitProgress); err != nil {
		return err
	}

	path := "/api/me/progress/" + url.PathEscape(progress.BookID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, c.baseURL+path, bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return classifyStatus(resp.StatusCode, path)
	}
	return nil
}

// FileURL implements Client.
func (c *HTTPClient) FileURL(itemID, ino string) string {
	return c.baseURL + "/api/items/" + url.PathEscape(itemID) +
		"/file/" + url.PathEscape(ino) + "/download"
}

// CoverURL implements Client.
func (c *HTTPClient) CoverURL(itemID string) string {
	return c.baseURL + "/api/items/" + url.PathEscape(itemID) + "/cover"
}

// NewFileRequest implements Client.
func (c *HTTPClient) NewFileRequest(ctx context.Context, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	c.authorize(req)
	return req, nil
}

func (c *HTTPClient) authorize(req *http.Request) {
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
}

// getJSON performs an authorized GET and decodes the JSON response.
func (c *HTTPClient) getJSON(ctx context.Context, path string, out any) error {
	if err := c.rateLimiter.Wait(ctx, limitCatalog); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return classifyTransportError(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		io.Copy(io.Discard, resp.Body)
		return classifyStatus(resp.StatusCode, path)
	}

	if err := json.UnmarshalRead(resp.Body, out); err != nil {
		return fmt.Errorf("parse response: %w", err)
	}
	return nil
}

// classifyTransportError maps a failed round trip. Context cancellation
// passes through untouched so callers can tell shutdown from outage.
func classifyTransportError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return errors.ErrUnreachable.WithCause(err)
}

// classifyStatus maps a non-OK response status.
func classifyStatus(status int, path string) error {
	switch {
	case status == http.StatusNotFound:
		return errors.NotFoundf("%s: not found", path)
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return errors.Validationf("%s: authentication rejected (status %d)", path, status)
	case status == http.StatusTooManyRequests || status >= 500:
		return errors.Transientf("%s: status %d", path, status)
	default:
		return errors.Internalf("%s: unexpected status %d", path, status)
	}
}

package server

import (
	"time"

	"github.com/listenupapp/listenup-client/internal/domain"
)

// Wire types for the catalog server's JSON API. Kept separate from domain
// types so server-side field renames stay contained here.

type pingResponse struct {
	Success bool `json:"success"`
}

type librariesResponse struct {
	Libraries []libraryPayload `json:"libraries"`
}

type libraryPayload struct {
	ID           string          `json:"id"`
	Name         string          `json:"name"`
	DisplayOrder int             `json:"displayOrder"`
	Icon         string          `json:"icon"`
	MediaType    string          `json:"mediaType"`
	Folders      []folderPayload `json:"folders"`
}

type folderPayload struct {
	ID       string `json:"id"`
	FullPath string `json:"fullPath"`
}

func (p libraryPayload) toDomain() *domain.Library {
	lib := &domain.Library{
		ID:           p.ID,
		Name:         p.Name,
		DisplayOrder: p.DisplayOrder,
		Icon:         p.Icon,
		MediaType:    p.MediaType,
	}
	for _, f := range p.Folders {
		lib.Folders = append(lib.Folders, domain.Folder{ID: f.ID, Path: f.FullPath})
	}
	return lib
}

type libraryItemsResponse struct {
	Results []itemPayload `json:"results"`
}

type itemPayload struct {
	ID        string       `json:"id"`
	LibraryID string       `json:"libraryId"`
	Media     mediaPayload `json:"media"`
	// UpdatedAt is epoch milliseconds.
	UpdatedAt int64 `json:"updatedAt"`
}

type mediaPayload struct {
	Metadata   metadataPayload    `json:"metadata"`
	AudioFiles []audioFilePayload `json:"audioFiles"`
	Chapters   []chapterPayload   `json:"chapters"`
	Duration   float64            `json:"duration"`
}

type metadataPayload struct {
	Title        string `json:"title"`
	AuthorName   string `json:"authorName"`
	NarratorName string `json:"narratorName"`
	Description  string `json:"description"`
}

type audioFilePayload struct {
	Ino      string              `json:"ino"`
	Index    int                 `json:"index"`
	Duration float64             `json:"duration"`
	Metadata fileMetadataPayload `json:"metadata"`
}

type fileMetadataPayload struct {
	Filename string `json:"filename"`
	Size     int64  `json:"size"`
}

type chapterPayload struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
	Title string  `json:"title"`
}

func (p itemPayload) toDomain() *domain.AudioBook {
	book := &domain.AudioBook{
		ID:              p.ID,
		LibraryID:       p.LibraryID,
		Title:           p.Media.Metadata.Title,
		Author:          p.Media.Metadata.AuthorName,
		Narrator:        p.Media.Metadata.NarratorName,
		Description:     p.Media.Metadata.Description,
		ServerUpdatedAt: time.UnixMilli(p.UpdatedAt),
	}
	for _, f := range p.Media.AudioFiles {
		book.AudioFiles = append(book.AudioFiles, domain.AudioFile{
			Ino:      f.Ino,
			Index:    f.Index,
			Filename: f.Metadata.Filename,
			Duration: f.Duration,
			Size:     f.Metadata.Size,
		})
	}
	for _, c := range p.Media.Chapters {
		book.Chapters = append(book.Chapters, domain.Chapter{
			Start: c.Start,
			End:   c.End,
			Title: c.Title,
		})
	}
	return book
}

type progressPayload struct {
	LibraryItemID string  `json:"libraryItemId"`
	CurrentTime   float64 `json:"currentTime"`
	// Progress is 0..1 on the wire, 0..100 in domain.
	Progress   float64 `json:"progress"`
	IsFinished bool    `json:"isFinished"`
	// LastUpdate is epoch milliseconds.
	LastUpdate int64 `json:"lastUpdate"`
}

func (p progressPayload) toDomain() *domain.PlaybackProgress {
	return &domain.PlaybackProgress{
		BookID:      p.LibraryItemID,
		CurrentTime: p.CurrentTime,
		Progress:    p.Progress * 100,
		IsFinished:  p.IsFinished,
		UpdatedAt:   time.UnixMilli(p.LastUpdate),
	}
}

type pushProgressRequest struct {
	CurrentTime float64 `json:"currentTime"`
	Progress    float64 `json:"progress"`
	IsFinished  bool    `json:"isFinished"`
	LastUpdate  int64   `json:"lastUpdate"`
	DeviceID    string  `json:"deviceId,omitempty"`
}

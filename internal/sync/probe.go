package sync

import (
	"context"

	"github.com/simonhull/audiometa"

	"github.com/listenupapp/listenup-client/internal/domain"
)

// ProbeResult is what disk recovery learns about a file it found.
type ProbeResult struct {
	Title    string
	Duration float64 // seconds
	Chapters []domain.Chapter
}

// FileProber extracts metadata from an on-disk audio file. Injected so disk
// recovery is testable without real audio fixtures.
type FileProber interface {
	Probe(ctx context.Context, path string) (ProbeResult, error)
}

// AudioProber is the production FileProber.
type AudioProber struct{}

// Probe implements FileProber.
func (AudioProber) Probe(ctx context.Context, path string) (ProbeResult, error) {
	file, err := audiometa.OpenContext(ctx, path)
	if err != nil {
		return ProbeResult{}, err
	}
	defer file.Close()

	result := ProbeResult{
		Title:    file.Tags.Title,
		Duration: file.Audio.Duration.Seconds(),
	}
	for _, ch := range file.Chapters {
		result.Chapters = append(result.Chapters, domain.Chapter{
			Start: ch.StartTime.Seconds(),
			End:   ch.EndTime.Seconds(),
			Title: ch.Title,
		})
	}
	return result, nil
}

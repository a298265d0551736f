package sync

import "github.com/listenupapp/listenup-client/internal/domain"

// mergeBook folds a remote catalog payload into the locally cached record.
// The server is authoritative for catalog metadata; the local record is
// authoritative for everything download-derived. File-level state carries
// over via tiered matching (stable reference, then filename, then index), so
// a server-side reshuffle never drops a local path.
func mergeBook(local, remote *domain.AudioBook) *domain.AudioBook {
	if local == nil {
		return remote
	}

	merged := *remote

	// A payload with no file list is a data conflict, not an error: keep
	// the local files wholesale.
	if len(remote.AudioFiles) == 0 {
		merged.AudioFiles = local.AudioFiles
	} else {
		files := make([]domain.AudioFile, len(remote.AudioFiles))
		for i, rf := range remote.AudioFiles {
			nf := rf
			if lf := local.MatchAudioFile(rf); lf != nil {
				nf.LocalPath = lf.LocalPath
				if nf.ID == "" {
					nf.ID = lf.ID
				}
			}
			files[i] = nf
		}
		merged.AudioFiles = files
	}

	if len(remote.Chapters) == 0 {
		merged.Chapters = local.Chapters
	}

	merged.IsDownloaded = local.IsDownloaded
	merged.LocalPath = local.LocalPath

	// Playback scalars stay local; the progress pull updates them separately
	// under last-write-wins.
	merged.CurrentTime = local.CurrentTime
	merged.Progress = local.Progress
	merged.IsFinished = local.IsFinished

	return &merged
}

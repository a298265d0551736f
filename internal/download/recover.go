package download

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/listenupapp/listenup-client/internal/domain"
)

// Recover repairs download state after an unclean shutdown: items stranded
// in Downloading are re-queued, and .part files no non-terminal item claims
// are deleted. Call once before Run.
func (o *Orchestrator) Recover(ctx context.Context) error {
	items, err := o.store.Downloads.ListAll(ctx)
	if err != nil {
		return err
	}

	// Claimed .part paths belong to items that may legitimately resume.
	claimed := make(map[string]bool)
	requeued := 0
	for _, item := range items {
		if item.Status == domain.DownloadDownloading {
			item.Status = domain.DownloadQueued
			if err := o.store.Downloads.Put(ctx, item.ID, item); err != nil {
				return err
			}
			requeued++
		}
		if item.IsTerminal() {
			continue
		}
		for _, f := range item.Files {
			claimed[filepath.Join(item.Dir, f.Filename)+partSuffix] = true
		}
	}

	removed := o.sweepOrphanParts(claimed)

	if o.logger != nil && (requeued > 0 || removed > 0) {
		o.logger.Info("download recovery finished",
			slog.Int("requeued", requeued),
			slog.Int("orphaned_parts_removed", removed))
	}

	if requeued > 0 {
		o.notify()
	}
	return nil
}

// sweepOrphanParts walks the download root and deletes unclaimed .part
// files. They are guaranteed incomplete and nothing will ever resume them.
func (o *Orchestrator) sweepOrphanParts(claimed map[string]bool) int {
	removed := 0
	filepath.WalkDir(o.cfg.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable subtree, skip
		}
		if d.IsDir() || !strings.HasSuffix(path, partSuffix) {
			return nil
		}
		if claimed[path] {
			return nil
		}
		if err := os.Remove(path); err == nil {
			removed++
			if o.logger != nil {
				o.logger.Debug("removed orphaned part file", slog.String("path", path))
			}
		}
		return nil
	})
	return removed
}

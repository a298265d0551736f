package download

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"syscall"

	"github.com/listenupapp/listenup-client/internal/domain"
	"github.com/listenupapp/listenup-client/internal/util"
)

// partSuffix marks an in-flight transfer. A file carrying it is by
// definition incomplete.
const partSuffix = ".part"

// downloadDir builds <root>/<Author> - <Title>/.
func downloadDir(root, author, title string) string {
	return filepath.Join(root, util.BookDirName(author, title))
}

// removePartFiles deletes any .part siblings an item left behind.
func removePartFiles(item *domain.DownloadItem) {
	for _, f := range item.Files {
		os.Remove(filepath.Join(item.Dir, f.Filename) + partSuffix)
	}
}

// removeDownloadDir deletes the item's directory and everything in it.
func removeDownloadDir(item *domain.DownloadItem) error {
	if item.Dir == "" {
		return nil
	}
	if err := os.RemoveAll(item.Dir); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// moveFile renames src to dst, falling back to copy+remove when they sit on
// different filesystems.
func moveFile(src, dst string) error {
	if err := os.Remove(dst); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	err := os.Rename(src, dst)
	if err == nil {
		return nil
	}

	var linkErr *os.LinkError
	if !errors.As(err, &linkErr) || linkErr.Err != syscall.EXDEV {
		return err
	}

	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Remove(src)
}

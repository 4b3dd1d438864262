// Package export packages the processed photo store and frame assets into
// downloadable zip archives and reclaims archives past their retention
// window.
package export

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	bootherrors "github.com/snapframe/snapframe/internal/errors"
	"github.com/snapframe/snapframe/internal/logging"
)

// Exporter writes zip archives of the processed photos and frame assets
// into the exports directory.
type Exporter struct {
	exportsDir   string
	processedDir string
	framesDir    string
	ttl          time.Duration
	clock        clockwork.Clock
	logger       logging.Logger
}

// New creates an exporter. The exports directory is created on demand.
func New(exportsDir, processedDir, framesDir string, ttl time.Duration, clock clockwork.Clock, logger logging.Logger) *Exporter {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Exporter{
		exportsDir:   exportsDir,
		processedDir: processedDir,
		framesDir:    framesDir,
		ttl:          ttl,
		clock:        clock,
		logger:       logger.WithComponent("export"),
	}
}

// Dir returns the exports directory path.
func (e *Exporter) Dir() string {
	return e.exportsDir
}

// Path resolves an archive filename inside the exports directory.
func (e *Exporter) Path(name string) string {
	return filepath.Join(e.exportsDir, filepath.Base(name))
}

// Export writes a new archive and returns its filename. Photos land under
// Pics/ and frame assets under FramesWithPics/.
func (e *Exporter) Export() (string, error) {
	if err := os.MkdirAll(e.exportsDir, 0755); err != nil {
		return "", bootherrors.NewStorageError(bootherrors.ErrCodeStorageFailed, "failed to create exports directory", err)
	}

	timestamp := strings.ReplaceAll(e.clock.Now().UTC().Format(time.RFC3339), ":", "-")
	name := fmt.Sprintf("photos_export_%s.zip", timestamp)
	archivePath := filepath.Join(e.exportsDir, name)

	out, err := os.Create(archivePath)
	if err != nil {
		return "", bootherrors.NewStorageError(bootherrors.ErrCodeStorageFailed, "failed to create export archive", err)
	}
	defer out.Close()

	zw := zip.NewWriter(out)
	if err := e.addDir(zw, e.processedDir, "Pics"); err != nil {
		zw.Close()
		os.Remove(archivePath)
		return "", err
	}
	if err := e.addDir(zw, e.framesDir, "FramesWithPics"); err != nil {
		zw.Close()
		os.Remove(archivePath)
		return "", err
	}
	if err := zw.Close(); err != nil {
		os.Remove(archivePath)
		return "", bootherrors.NewStorageError(bootherrors.ErrCodeStorageFailed, "failed to finalize export archive", err)
	}
	if err := out.Close(); err != nil {
		os.Remove(archivePath)
		return "", bootherrors.NewStorageError(bootherrors.ErrCodeStorageFailed, "failed to flush export archive", err)
	}

	e.logger.Info(context.Background(), "export created", "archive", name)
	return name, nil
}

// addDir copies every regular file under root into the archive below prefix,
// preserving relative subpaths. A missing root is not an error.
func (e *Exporter) addDir(zw *zip.Writer, root, prefix string) error {
	if _, err := os.Stat(root); os.IsNotExist(err) {
		return nil
	}

	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return bootherrors.NewStorageError(bootherrors.ErrCodeStorageFailed, "failed to walk export source", err)
		}
		if d.IsDir() {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}

		w, err := zw.Create(prefix + "/" + filepath.ToSlash(rel))
		if err != nil {
			return bootherrors.NewStorageError(bootherrors.ErrCodeStorageFailed, "failed to add file to export", err)
		}
		src, err := os.Open(path)
		if err != nil {
			return bootherrors.NewStorageError(bootherrors.ErrCodeStorageFailed, "failed to read export source file", err)
		}
		defer src.Close()

		_, err = io.Copy(w, src)
		return err
	})
}

// CleanupExpired removes archives whose modification time is older than the
// retention window. Returns the number of archives removed.
func (e *Exporter) CleanupExpired() (int, error) {
	if e.ttl <= 0 {
		return 0, nil
	}

	entries, err := os.ReadDir(e.exportsDir)
	if os.IsNotExist(err) {
		return 0, nil
	}
	if err != nil {
		return 0, bootherrors.NewStorageError(bootherrors.ErrCodeStorageFailed, "failed to list exports directory", err)
	}

	cutoff := e.clock.Now().Add(-e.ttl)
	removed := 0
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".zip") {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(e.exportsDir, entry.Name())); err != nil {
			e.logger.Warn(context.Background(), err, "failed to remove expired export", "archive", entry.Name())
			continue
		}
		removed++
	}

	if removed > 0 {
		e.logger.Info(context.Background(), "expired exports removed", "count", removed)
	}
	return removed, nil
}

// Package processor turns source photo files into durably stored copies plus
// thumbnails, and manages the processed store they live in.
package processor

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"github.com/snapframe/snapframe/internal/classify"
	"github.com/snapframe/snapframe/internal/config"
	bootherrors "github.com/snapframe/snapframe/internal/errors"
	"github.com/snapframe/snapframe/internal/events"
	"github.com/snapframe/snapframe/internal/logging"
)

const thumbnailQuality = 85

// ProcessedPhoto describes one ingested photo. Size and ModifiedAt are read
// live from the store when listing, they are not cached.
type ProcessedPhoto struct {
	Filename     string    `json:"filename"`
	Path         string    `json:"path"`
	Thumbnail    string    `json:"thumbnail"`
	Size         int64     `json:"size"`
	ModifiedAt   time.Time `json:"lastModified"`
	ModifiedUnix int64     `json:"modified"`
}

// Processor copies source files into the processed store and derives
// thumbnails. Safe for concurrent use across different filenames; concurrent
// processing of the same filename is last-write-wins.
type Processor struct {
	processedDir string
	thumbsDir    string
	thumbWidth   int
	thumbHeight  int
	classifier   *classify.Classifier
	bus          events.Publisher
	logger       logging.Logger
}

// New creates a processor and ensures the store directories exist.
func New(storage config.StorageConfig, classifier *classify.Classifier, bus events.Publisher, logger logging.Logger) (*Processor, error) {
	p := &Processor{
		processedDir: storage.ProcessedDir,
		thumbsDir:    storage.ThumbsDir(),
		thumbWidth:   storage.ThumbnailWidth,
		thumbHeight:  storage.ThumbnailHeight,
		classifier:   classifier,
		bus:          bus,
		logger:       logger.WithComponent("processor"),
	}

	if err := os.MkdirAll(p.thumbsDir, 0755); err != nil {
		return nil, bootherrors.NewStorageError(bootherrors.ErrCodeStorageFailed, "failed to create processed store", err)
	}

	return p, nil
}

// StoredPath returns the processed store path for a base filename.
func (p *Processor) StoredPath(filename string) string {
	return filepath.Join(p.processedDir, filepath.Base(filename))
}

// ThumbnailPath returns the thumbnail store path for a base filename.
func (p *Processor) ThumbnailPath(filename string) string {
	return filepath.Join(p.thumbsDir, filepath.Base(filename))
}

// Exists reports whether a processed record with this base filename is
// currently in the store. Filenames are the sole de-duplication key.
func (p *Processor) Exists(filename string) bool {
	_, err := os.Stat(p.StoredPath(filename))
	return err == nil
}

// Process copies the source file into the processed store under its base
// filename (overwriting any previous copy), derives a thumbnail and emits
// photo_added. Any failure is returned as a processing error tagged with the
// filename; the caller keeps going with other files.
func (p *Processor) Process(sourcePath string) (*ProcessedPhoto, error) {
	filename := filepath.Base(sourcePath)

	destPath := p.StoredPath(filename)
	if err := copyFile(sourcePath, destPath); err != nil {
		return nil, bootherrors.NewProcessingError(filename, err)
	}

	if err := p.writeThumbnail(destPath, p.ThumbnailPath(filename)); err != nil {
		return nil, bootherrors.NewProcessingError(filename, err)
	}

	info, err := os.Stat(destPath)
	if err != nil {
		return nil, bootherrors.NewProcessingError(filename, err)
	}

	photo := p.record(filename, info)

	p.logger.Debug(context.Background(), "photo processed", "filename", filename, "size", photo.Size)

	if p.bus != nil {
		p.bus.Publish(events.EventPhotoAdded, events.PhotoAdded{
			Filename:     filename,
			Path:         photo.Path,
			Thumbnail:    photo.Thumbnail,
			LastModified: photo.ModifiedAt,
		})
	}

	return photo, nil
}

// writeThumbnail resizes the stored copy to fit inside the configured
// bounding box (no upscaling, no cropping) and re-encodes it as JPEG. The
// thumbnail keeps the source's base filename so the two stores stay
// addressable by the same key.
func (p *Processor) writeThumbnail(srcPath, thumbPath string) error {
	img, err := imaging.Open(srcPath, imaging.AutoOrientation(true))
	if err != nil {
		return fmt.Errorf("decoding image: %w", err)
	}

	thumb := imaging.Fit(img, p.thumbWidth, p.thumbHeight, imaging.Lanczos)

	f, err := os.Create(thumbPath)
	if err != nil {
		return fmt.Errorf("creating thumbnail: %w", err)
	}
	defer f.Close()

	if err := imaging.Encode(f, thumb, imaging.JPEG, imaging.JPEGQuality(thumbnailQuality)); err != nil {
		return fmt.Errorf("encoding thumbnail: %w", err)
	}

	return nil
}

// List returns every processed photo, newest first, with size and
// modification time read from the store at call time.
func (p *Processor) List() ([]ProcessedPhoto, error) {
	entries, err := os.ReadDir(p.processedDir)
	if err != nil {
		return nil, bootherrors.NewStorageError(bootherrors.ErrCodeStorageFailed, "failed to list processed store", err)
	}

	photos := make([]ProcessedPhoto, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if p.classifier != nil && !p.classifier.IsEligible(entry.Name()) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			// Entry vanished between readdir and stat, skip it
			continue
		}

		photos = append(photos, *p.record(entry.Name(), info))
	}

	sort.Slice(photos, func(i, j int) bool {
		return photos[i].ModifiedAt.After(photos[j].ModifiedAt)
	})

	return photos, nil
}

// Delete removes the stored copy and its thumbnail, then emits photo_deleted.
// A missing thumbnail is not an error.
func (p *Processor) Delete(filename string) error {
	filename = filepath.Base(filename)
	if filename == "." || filename == string(filepath.Separator) || strings.TrimSpace(filename) == "" {
		return bootherrors.NewValidationError(bootherrors.ErrCodeValidationFailed, "invalid filename")
	}

	if err := os.Remove(p.StoredPath(filename)); err != nil {
		return bootherrors.NewStorageError(bootherrors.ErrCodeStorageFailed, "failed to delete photo", err).WithFilename(filename)
	}

	if err := os.Remove(p.ThumbnailPath(filename)); err != nil && !os.IsNotExist(err) {
		return bootherrors.NewStorageError(bootherrors.ErrCodeStorageFailed, "failed to delete thumbnail", err).WithFilename(filename)
	}

	if p.bus != nil {
		p.bus.Publish(events.EventPhotoDeleted, events.PhotoDeleted{Filename: filename})
	}

	return nil
}

// Clear removes every processed photo and thumbnail but never the thumbnail
// directory itself. Per-file failures are collected, the sweep continues.
func (p *Processor) Clear() error {
	var firstErr error

	entries, err := os.ReadDir(p.processedDir)
	if err != nil {
		return bootherrors.NewStorageError(bootherrors.ErrCodeStorageFailed, "failed to list processed store", err)
	}
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(p.processedDir, entry.Name())); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	thumbs, err := os.ReadDir(p.thumbsDir)
	if err != nil {
		return bootherrors.NewStorageError(bootherrors.ErrCodeStorageFailed, "failed to list thumbnail store", err)
	}
	for _, entry := range thumbs {
		if entry.IsDir() {
			continue
		}
		if err := os.Remove(filepath.Join(p.thumbsDir, entry.Name())); err != nil && firstErr == nil {
			firstErr = err
		}
	}

	if firstErr != nil {
		return bootherrors.NewStorageError(bootherrors.ErrCodeStorageFailed, "failed to clear processed store", firstErr)
	}

	if p.bus != nil {
		p.bus.Publish(events.EventPhotosCleared, nil)
	}

	return nil
}

func (p *Processor) record(filename string, info os.FileInfo) *ProcessedPhoto {
	return &ProcessedPhoto{
		Filename:     filename,
		Path:         "/api/photos/" + filename,
		Thumbnail:    "/api/photos/" + filename + "/thumbnail",
		Size:         info.Size(),
		ModifiedAt:   info.ModTime(),
		ModifiedUnix: info.ModTime().Unix(),
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("opening source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("creating destination: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copying bytes: %w", err)
	}

	return out.Sync()
}

// Package frames owns frame templates: the named background images, their
// fractional slot layouts and the currently selected template. The store is
// the sole writer of the persisted templates document; every mutation is
// written through before it is acknowledged.
package frames

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"sync"

	json "github.com/goccy/go-json"

	bootherrors "github.com/snapframe/snapframe/internal/errors"
	"github.com/snapframe/snapframe/internal/logging"
)

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// Document is the persisted shape of the template store.
type Document struct {
	Templates map[string]*Template `json:"templates"`
	Current   string               `json:"current_template,omitempty"`
}

// Store is the in-memory template store backed by a JSON document.
// Mutations hold a global write lock so the read/modify/persist cycle for a
// key never interleaves with another writer.
type Store struct {
	mutex     sync.Mutex
	path      string
	framesDir string
	doc       Document
	logger    logging.Logger
}

// Load reads the templates document from framesDir. An absent document is
// treated as an empty store, not an error.
func Load(framesDir string, logger logging.Logger) (*Store, error) {
	if err := os.MkdirAll(framesDir, 0755); err != nil {
		return nil, bootherrors.NewStorageError(bootherrors.ErrCodeStorageFailed, "failed to create frames directory", err)
	}

	s := &Store{
		path:      filepath.Join(framesDir, "templates.json"),
		framesDir: framesDir,
		doc:       Document{Templates: make(map[string]*Template)},
		logger:    logger.WithComponent("frames"),
	}

	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return s, nil
	}
	if err != nil {
		return nil, bootherrors.NewStorageError(bootherrors.ErrCodeStorageFailed, "failed to read templates document", err)
	}

	if err := json.Unmarshal(data, &s.doc); err != nil {
		return nil, bootherrors.NewValidationError(bootherrors.ErrCodeValidationFailed, "malformed templates document: "+err.Error())
	}
	if s.doc.Templates == nil {
		s.doc.Templates = make(map[string]*Template)
	}

	return s, nil
}

// Get returns a copy of the template for key.
func (s *Store) Get(key string) (*Template, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	t, ok := s.doc.Templates[key]
	if !ok {
		return nil, bootherrors.ErrTemplateNotFound(key)
	}
	return t.clone(), nil
}

// List returns a copy of the whole document.
func (s *Store) List() Document {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	out := Document{
		Templates: make(map[string]*Template, len(s.doc.Templates)),
		Current:   s.doc.Current,
	}
	for key, t := range s.doc.Templates {
		out.Templates[key] = t.clone()
	}
	return out
}

// Current returns the currently selected template key, or "" if none.
func (s *Store) Current() string {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	return s.doc.Current
}

// SetCurrent selects a template and persists the choice.
func (s *Store) SetCurrent(key string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.doc.Templates[key]; !ok {
		return bootherrors.ErrTemplateNotFound(key)
	}

	previous := s.doc.Current
	s.doc.Current = key
	if err := s.persistLocked(); err != nil {
		s.doc.Current = previous
		return err
	}
	return nil
}

// UpdateSlots replaces the template's slot list wholesale. Non-finite slot
// fields are defaulted to 0. Returns the normalized slots as stored.
func (s *Store) UpdateSlots(key string, slots []Slot) ([]Slot, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	t, ok := s.doc.Templates[key]
	if !ok {
		return nil, bootherrors.ErrTemplateNotFound(key)
	}

	normalized := make([]Slot, len(slots))
	for i, slot := range slots {
		slot.Sanitize()
		normalized[i] = slot
	}

	previous := t.Slots
	t.Slots = normalized
	if err := s.persistLocked(); err != nil {
		t.Slots = previous
		return nil, err
	}

	return append([]Slot(nil), normalized...), nil
}

// Create registers a new template with an empty slot list and persists it.
// The key is derived from desiredKey (or the display name) and uniquified
// with a numeric suffix on collision. Re-importing a frame with a colliding
// display name always creates a new template.
func (s *Store) Create(background, displayName, desiredKey string) (string, *Template, error) {
	if background == "" {
		return "", nil, bootherrors.NewValidationError(bootherrors.ErrCodeValidationFailed, "background is required")
	}
	if displayName == "" {
		displayName = strings.TrimSuffix(background, filepath.Ext(background))
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	base := Slugify(desiredKey)
	if base == "" {
		base = Slugify(displayName)
	}
	if base == "" {
		base = Slugify(strings.TrimSuffix(background, filepath.Ext(background)))
	}

	key := base
	for i := 1; ; i++ {
		if _, exists := s.doc.Templates[key]; !exists {
			break
		}
		key = base + "_" + strconv.Itoa(i)
	}

	t := &Template{
		Background:  background,
		DisplayName: displayName,
		Thumbnail:   background,
		Slots:       []Slot{},
	}
	s.doc.Templates[key] = t

	if err := s.persistLocked(); err != nil {
		delete(s.doc.Templates, key)
		return "", nil, err
	}

	s.logger.Info(context.Background(), "template created", "key", key, "background", background)

	return key, t.clone(), nil
}

// Delete removes a template. If it was the selected one, an arbitrary
// remaining key becomes current ("" when none remain). Background and
// thumbnail files no longer referenced by any other template are garbage
// collected from the frames directory. Returns the new current key.
func (s *Store) Delete(key string) (string, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	removed, ok := s.doc.Templates[key]
	if !ok {
		return "", bootherrors.ErrTemplateNotFound(key)
	}

	delete(s.doc.Templates, key)

	if s.doc.Current == key {
		s.doc.Current = ""
		for remaining := range s.doc.Templates {
			s.doc.Current = remaining
			break
		}
	}

	if err := s.persistLocked(); err != nil {
		s.doc.Templates[key] = removed
		return "", err
	}

	s.collectAssetsLocked(removed)

	return s.doc.Current, nil
}

// collectAssetsLocked unlinks the removed template's files unless another
// template still references them. Best effort: a failed unlink is logged,
// the delete has already been persisted.
func (s *Store) collectAssetsLocked(removed *Template) {
	referenced := make(map[string]struct{})
	for _, t := range s.doc.Templates {
		if t.Background != "" {
			referenced[t.Background] = struct{}{}
		}
		if t.Thumbnail != "" {
			referenced[t.Thumbnail] = struct{}{}
		}
	}

	for _, asset := range []string{removed.Background, removed.Thumbnail} {
		if asset == "" {
			continue
		}
		if _, used := referenced[asset]; used {
			continue
		}
		full := filepath.Join(s.framesDir, filepath.Base(asset))
		if err := os.Remove(full); err != nil && !os.IsNotExist(err) {
			s.logger.Warn(context.Background(), err, "failed to remove orphaned frame asset", "asset", asset)
		}
	}
}

// AssetPath resolves a template asset filename inside the frames directory.
func (s *Store) AssetPath(asset string) string {
	return filepath.Join(s.framesDir, filepath.Base(asset))
}

// FramesDir returns the frames directory path.
func (s *Store) FramesDir() string {
	return s.framesDir
}

// persistLocked writes the document through to disk. Write to a temp file
// and rename so a crash never leaves a torn document behind.
func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(&s.doc, "", "  ")
	if err != nil {
		return bootherrors.NewInternalError(bootherrors.ErrCodeInternalError, "failed to encode templates document", err)
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return bootherrors.NewStorageError(bootherrors.ErrCodePersistFailed, "failed to write templates document", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return bootherrors.NewStorageError(bootherrors.ErrCodePersistFailed, "failed to replace templates document", err)
	}

	return nil
}

// Slugify lowercases the input and collapses every non-alphanumeric run to a
// single underscore.
func Slugify(input string) string {
	slug := slugPattern.ReplaceAllString(strings.ToLower(input), "_")
	return strings.Trim(slug, "_")
}

package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/snapframe/snapframe/internal/compositor"
	bootherrors "github.com/snapframe/snapframe/internal/errors"
	"github.com/snapframe/snapframe/internal/frames"
	"github.com/snapframe/snapframe/internal/processor"
)

const maxUploadBytes = 32 << 20

var frameFilenamePattern = regexp.MustCompile(`[^a-zA-Z0-9_-]+`)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func methodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, "method not allowed")
}

// pathParam returns the path segment after prefix, rejecting anything that
// is not a single clean filename component.
func pathParam(r *http.Request, prefix string) string {
	name := strings.TrimPrefix(r.URL.Path, prefix)
	if !validPathComponent(name) {
		return ""
	}
	return name
}

func validPathComponent(name string) bool {
	if name == "" || name == "." || name == ".." {
		return false
	}
	return name == path.Clean(name) && !strings.Contains(name, "/")
}

func (s *BoothServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handlePhotos lists the processed store with pagination, or clears it.
func (s *BoothServer) handlePhotos(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listPhotos(w, r)
	case http.MethodDelete:
		if err := s.processor.Clear(); err != nil {
			s.logger.Error(r.Context(), err, "failed to clear photos")
			writeError(w, http.StatusInternalServerError, "Error clearing photos")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "All photos cleared"})
	default:
		methodNotAllowed(w)
	}
}

func (s *BoothServer) listPhotos(w http.ResponseWriter, r *http.Request) {
	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "pageSize", s.config.Storage.MaxPhotosPage)
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = s.config.Storage.MaxPhotosPage
	}

	photos, err := s.processor.List()
	if err != nil {
		s.logger.Error(r.Context(), err, "failed to list photos")
		writeError(w, http.StatusInternalServerError, "Error fetching photos")
		return
	}

	total := len(photos)
	pages := (total + pageSize - 1) / pageSize

	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	pagePhotos := photos[start:end]
	if pagePhotos == nil {
		pagePhotos = []processor.ProcessedPhoto{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"photos": pagePhotos,
		"total":  total,
		"page":   page,
		"pages":  pages,
	})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// handlePhoto serves or deletes a single processed photo. GET paths are
// either /api/photos/<filename> or /api/photos/<filename>/thumbnail.
func (s *BoothServer) handlePhoto(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/photos/")
	filename := rest
	thumbnail := false
	if cut, ok := strings.CutSuffix(rest, "/thumbnail"); ok {
		filename = cut
		thumbnail = true
	}
	if !validPathComponent(filename) {
		writeError(w, http.StatusNotFound, "photo not found")
		return
	}

	switch r.Method {
	case http.MethodGet:
		target := s.processor.StoredPath(filename)
		if thumbnail {
			target = s.processor.ThumbnailPath(filename)
		}
		if _, err := os.Stat(target); err != nil {
			writeError(w, http.StatusNotFound, "photo not found")
			return
		}
		http.ServeFile(w, r, target)

	case http.MethodDelete:
		if thumbnail {
			methodNotAllowed(w)
			return
		}
		if err := s.processor.Delete(filename); err != nil {
			s.logger.Error(r.Context(), err, "failed to delete photo", "filename", filename)
			writeError(w, http.StatusInternalServerError, "Error deleting photo")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("Deleted %s", filename)})

	default:
		methodNotAllowed(w)
	}
}

var allowedFrameExts = map[string]bool{".jpg": true, ".jpeg": true, ".png": true}

// handleFrameImport accepts a multipart frame image upload and registers a
// template for it.
func (s *BoothServer) handleFrameImport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "No file uploaded")
		return
	}
	defer file.Close()

	ext := strings.ToLower(filepath.Ext(header.Filename))
	if !allowedFrameExts[ext] {
		writeError(w, http.StatusBadRequest, "Unsupported file type")
		return
	}

	background, err := s.saveFrameUpload(file, header.Filename, ext)
	if err != nil {
		s.logger.Error(r.Context(), err, "failed to store uploaded frame")
		writeError(w, http.StatusInternalServerError, "Failed to import frame")
		return
	}

	displayName := r.FormValue("displayName")
	if displayName == "" {
		displayName = strings.TrimSuffix(background, ext)
	}
	desiredKey := r.FormValue("templateKey")

	key, tmpl, err := s.store.Create(background, displayName, desiredKey)
	if err != nil {
		s.logger.Error(r.Context(), err, "failed to register imported frame")
		writeError(w, http.StatusInternalServerError, "Failed to import frame")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"message":     "Frame imported",
		"templateKey": key,
		"template":    tmpl,
	})
}

// saveFrameUpload writes the uploaded image into the frames directory under
// a sanitized, collision-free filename and returns that filename.
func (s *BoothServer) saveFrameUpload(file io.Reader, originalName, ext string) (string, error) {
	base := frameFilenamePattern.ReplaceAllString(strings.TrimSuffix(filepath.Base(originalName), filepath.Ext(originalName)), "_")
	if base == "" {
		base = "frame"
	}

	candidate := base + ext
	for i := 1; ; i++ {
		if _, err := os.Stat(s.store.AssetPath(candidate)); os.IsNotExist(err) {
			break
		}
		candidate = fmt.Sprintf("%s_%d%s", base, i, ext)
	}

	out, err := os.Create(s.store.AssetPath(candidate))
	if err != nil {
		return "", err
	}
	defer out.Close()

	if _, err := io.Copy(out, file); err != nil {
		os.Remove(s.store.AssetPath(candidate))
		return "", err
	}
	return candidate, out.Close()
}

func (s *BoothServer) handleFrameAsset(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	name := pathParam(r, "/api/frames/")
	if name == "" {
		writeError(w, http.StatusNotFound, "frame not found")
		return
	}
	target := s.store.AssetPath(name)
	if _, err := os.Stat(target); err != nil {
		writeError(w, http.StatusNotFound, "frame not found")
		return
	}
	http.ServeFile(w, r, target)
}

func (s *BoothServer) handleTemplates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	writeJSON(w, http.StatusOK, s.store.List())
}

func (s *BoothServer) handleTemplate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodDelete {
		methodNotAllowed(w)
		return
	}
	key := pathParam(r, "/api/templates/")
	if key == "" {
		writeError(w, http.StatusNotFound, "template not found")
		return
	}

	current, err := s.store.Delete(key)
	if err != nil {
		if bootherrors.IsTemplateNotFound(err) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("Template not found: %s", key))
			return
		}
		s.logger.Error(r.Context(), err, "failed to delete template", "key", key)
		writeError(w, http.StatusInternalServerError, "Failed to delete template")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":          "Template deleted",
		"key":              key,
		"current_template": nullableKey(current),
	})
}

// nullableKey maps the store's empty-string sentinel to JSON null.
func nullableKey(key string) *string {
	if key == "" {
		return nil
	}
	return &key
}

func (s *BoothServer) handleSaveFrameMapping(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req struct {
		FrameKey string        `json:"frameKey"`
		Slots    []frames.Slot `json:"slots"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.FrameKey == "" || req.Slots == nil {
		writeError(w, http.StatusBadRequest, "frameKey and slots are required")
		return
	}

	normalized, err := s.store.UpdateSlots(req.FrameKey, req.Slots)
	if err != nil {
		if bootherrors.IsTemplateNotFound(err) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("Frame template not found: %s", req.FrameKey))
			return
		}
		s.logger.Error(r.Context(), err, "failed to save frame mapping", "key", req.FrameKey)
		writeError(w, http.StatusInternalServerError, "Failed to save frame mapping")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":  "Frame mapping saved",
		"frameKey": req.FrameKey,
		"slots":    normalized,
	})
}

func (s *BoothServer) handleCurrentTemplate(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"currentTemplate": nullableKey(s.store.Current()),
		})

	case http.MethodPost:
		var req struct {
			Template string `json:"template"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Template == "" {
			writeError(w, http.StatusBadRequest, "Template name required")
			return
		}
		if err := s.store.SetCurrent(req.Template); err != nil {
			if bootherrors.IsTemplateNotFound(err) {
				writeError(w, http.StatusNotFound, fmt.Sprintf("Template not found: %s", req.Template))
				return
			}
			s.logger.Error(r.Context(), err, "failed to set current template", "key", req.Template)
			writeError(w, http.StatusInternalServerError, "Failed to set current template")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": fmt.Sprintf("Template set to %s", req.Template)})

	default:
		methodNotAllowed(w)
	}
}

type composeSlotRequest struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Photo  string  `json:"photo"`
}

type composeRequest struct {
	Template *struct {
		Background string             `json:"background"`
		CommentBox *frames.CommentBox `json:"commentBox"`
	} `json:"template"`
	Slots   []composeSlotRequest `json:"slots"`
	Comment string               `json:"comment"`
}

// handleCreatePhotobooth composes assigned photos onto a frame and returns
// the JPEG.
func (s *BoothServer) handleCreatePhotobooth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req composeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Template == nil || req.Template.Background == "" || req.Slots == nil {
		writeError(w, http.StatusBadRequest, "Invalid template or slot data")
		return
	}

	slots := make([]compositor.SlotAssignment, 0, len(req.Slots))
	for _, slot := range req.Slots {
		slots = append(slots, compositor.SlotAssignment{
			Slot:  frames.Slot{X: slot.X, Y: slot.Y, Width: slot.Width, Height: slot.Height},
			Photo: slot.Photo,
		})
	}

	image, err := s.compositor.Compose(r.Context(), compositor.Request{
		Background: req.Template.Background,
		CommentBox: req.Template.CommentBox,
		Slots:      slots,
		Comment:    req.Comment,
	})
	if err != nil {
		if bootherrors.IsAssetMissing(err) {
			writeError(w, http.StatusNotFound, fmt.Sprintf("Frame not found: %s", req.Template.Background))
			return
		}
		s.logger.Error(r.Context(), err, "failed to compose image")
		writeError(w, http.StatusInternalServerError, "Error creating image")
		return
	}

	w.Header().Set("Content-Type", "image/jpeg")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(image)
}

func (s *BoothServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	status := s.pipeline.Status()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"isWatching":     status.IsWatching,
		"watchPath":      status.WatchPath,
		"lastScanTime":   status.LastScanTime,
		"processed_dir":  s.config.Storage.ProcessedDir,
		"socket_enabled": s.config.Server.EnableSocket,
	})
}

type settingsPayload struct {
	WatchPath       *string  `json:"watch_path,omitempty"`
	AutoScan        *bool    `json:"auto_scan,omitempty"`
	FileTypes       []string `json:"file_types,omitempty"`
	StabilizationMs *int     `json:"stabilization_ms,omitempty"`
	PollMs          *int     `json:"poll_ms,omitempty"`
	MaxPhotosPage   *int     `json:"max_photos_display,omitempty"`
	ExportsTTLHours *int     `json:"exports_ttl_hours,omitempty"`
	Debug           *bool    `json:"debug,omitempty"`
}

func (s *BoothServer) handleSettings(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"watch_path":         s.config.Watch.Path,
			"auto_scan":          s.config.Watch.AutoScan,
			"file_types":         s.config.Watch.FileTypes,
			"stabilization_ms":   s.config.Watch.StabilizationMs,
			"poll_ms":            s.config.Watch.PollMs,
			"processed_dir":      s.config.Storage.ProcessedDir,
			"max_photos_display": s.config.Storage.MaxPhotosPage,
			"host":               s.config.Server.Host,
			"port":               s.config.Server.Port,
			"enable_socket":      s.config.Server.EnableSocket,
			"exports_ttl_hours":  s.config.Exports.TTLHours,
			"debug":              s.config.Debug,
		})

	case http.MethodPost:
		var req settingsPayload
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid settings payload")
			return
		}
		s.applySettings(r.Context(), req)
		writeJSON(w, http.StatusOK, map[string]string{"message": "Settings updated"})

	default:
		methodNotAllowed(w)
	}
}

// applySettings updates the in-memory configuration. A watch path change
// restarts the pipeline so the new folder is picked up.
func (s *BoothServer) applySettings(ctx context.Context, req settingsPayload) {
	if req.AutoScan != nil {
		s.config.Watch.AutoScan = *req.AutoScan
	}
	if req.FileTypes != nil {
		s.config.Watch.FileTypes = req.FileTypes
	}
	if req.StabilizationMs != nil {
		s.config.Watch.StabilizationMs = *req.StabilizationMs
	}
	if req.PollMs != nil {
		s.config.Watch.PollMs = *req.PollMs
	}
	if req.MaxPhotosPage != nil {
		s.config.Storage.MaxPhotosPage = *req.MaxPhotosPage
	}
	if req.ExportsTTLHours != nil {
		s.config.Exports.TTLHours = *req.ExportsTTLHours
	}
	if req.Debug != nil {
		s.config.Debug = *req.Debug
	}

	if req.WatchPath != nil && *req.WatchPath != s.config.Watch.Path {
		s.config.Watch.Path = *req.WatchPath
		s.pipeline.Stop()
		s.pipeline.SetPath(*req.WatchPath)
		// The pipeline outlives the request, so it is not tied to its ctx.
		if err := s.pipeline.Start(context.Background()); err != nil {
			s.logger.Warn(ctx, err, "pipeline not restarted after settings change")
		}
	}
}

func (s *BoothServer) handleScan(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	count, err := s.pipeline.Scan(r.Context())
	if err != nil {
		var boothErr *bootherrors.BoothError
		if errors.As(err, &boothErr) && boothErr.Type == bootherrors.ErrorTypeConfig {
			writeError(w, http.StatusBadRequest, "Watch path not configured or does not exist.")
			return
		}
		s.logger.Error(r.Context(), err, "manual scan failed")
		writeError(w, http.StatusInternalServerError, "Error during manual scan")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"message":        fmt.Sprintf("Manual scan complete. Found %d new photos.", count),
		"newPhotosCount": count,
	})
}

func (s *BoothServer) handleToggleWatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	var req struct {
		Enable bool `json:"enable"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid toggle payload")
		return
	}

	if req.Enable {
		if err := s.pipeline.Start(context.Background()); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"message": "Watching started."})
		return
	}

	s.pipeline.Stop()
	writeJSON(w, http.StatusOK, map[string]string{"message": "Watching stopped."})
}

func (s *BoothServer) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w)
		return
	}

	name, err := s.exporter.Export()
	if err != nil {
		s.logger.Error(r.Context(), err, "export failed")
		writeError(w, http.StatusInternalServerError, "Error creating export")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"message": "Export successful",
		"url":     "/api/exports/" + name,
	})
}

func (s *BoothServer) handleExportDownload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w)
		return
	}
	name := pathParam(r, "/api/exports/")
	if name == "" {
		writeError(w, http.StatusNotFound, "export not found")
		return
	}
	target := s.exporter.Path(name)
	if _, err := os.Stat(target); err != nil {
		writeError(w, http.StatusNotFound, "export not found")
		return
	}
	http.ServeFile(w, r, target)
}

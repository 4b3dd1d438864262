// Package compositor renders a frame template into a single output image:
// assigned photos are cover-fitted into the template's fractional slots on
// top of the background, and an optional comment is drawn into the
// template's comment box.
package compositor

import (
	"bytes"
	"context"
	"errors"
	"image"
	"math"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font/gofont/goregular"

	bootherrors "github.com/snapframe/snapframe/internal/errors"
	"github.com/snapframe/snapframe/internal/frames"
	"github.com/snapframe/snapframe/internal/logging"
)

const outputQuality = 95

// SlotAssignment pairs one slot's geometry with an optional photo filename.
// An empty Photo leaves the slot unfilled.
type SlotAssignment struct {
	frames.Slot
	Photo string `json:"photo,omitempty"`
}

// Request describes one compose call. TemplateKey is only carried for error
// reporting.
type Request struct {
	TemplateKey string
	Background  string
	CommentBox  *frames.CommentBox
	Slots       []SlotAssignment
	Comment     string
}

// Compositor composes photos onto frame backgrounds. It holds no mutable
// state and is safe for fully parallel use.
type Compositor struct {
	framesDir    string
	processedDir string
	logger       logging.Logger
}

// New creates a compositor reading frame assets from framesDir and photos
// from processedDir.
func New(framesDir, processedDir string, logger logging.Logger) *Compositor {
	return &Compositor{
		framesDir:    framesDir,
		processedDir: processedDir,
		logger:       logger.WithComponent("compositor"),
	}
}

// Compose renders the request into JPEG bytes. The output has the
// background's dimensions. Slots are drawn in ascending index order, so
// later slots paint over earlier ones where they overlap; the comment is
// drawn last. A slot whose photo no longer exists is skipped, the rest of
// the composition proceeds.
func (c *Compositor) Compose(ctx context.Context, req Request) ([]byte, error) {
	if req.Background == "" {
		return nil, bootherrors.NewValidationError(bootherrors.ErrCodeValidationFailed, "background is required").WithTemplateKey(req.TemplateKey)
	}

	bgPath := filepath.Join(c.framesDir, filepath.Base(req.Background))
	background, err := imaging.Open(bgPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, bootherrors.ErrAssetMissing(req.TemplateKey, req.Background)
		}
		return nil, bootherrors.NewInternalError(bootherrors.ErrCodeInternalError, "failed to decode background", err).WithTemplateKey(req.TemplateKey)
	}

	canvas := imaging.Clone(background)
	bgWidth := float64(canvas.Bounds().Dx())
	bgHeight := float64(canvas.Bounds().Dy())

	for i, slot := range req.Slots {
		if slot.Photo == "" {
			continue
		}

		photoPath := filepath.Join(c.processedDir, filepath.Base(slot.Photo))
		photo, err := imaging.Open(photoPath, imaging.AutoOrientation(true))
		if err != nil {
			if errors.Is(err, os.ErrNotExist) {
				// Photo vanished from the processed store: leave the slot
				// unfilled rather than failing the whole composition.
				c.logger.Debug(ctx, "skipping slot, photo missing", "slot", i, "photo", slot.Photo)
				continue
			}
			return nil, bootherrors.NewProcessingError(slot.Photo, err)
		}

		rect := slotRect(slot.Slot, bgWidth, bgHeight)
		if rect.Dx() <= 0 || rect.Dy() <= 0 {
			continue
		}

		// Cover fit: scale uniformly until the photo fills the target
		// rectangle, then center-crop the overflow.
		filled := imaging.Fill(photo, rect.Dx(), rect.Dy(), imaging.Center, imaging.Lanczos)
		canvas = imaging.Paste(canvas, filled, rect.Min)
	}

	result := image.Image(canvas)
	if req.Comment != "" && req.CommentBox != nil {
		result, err = c.drawComment(result, *req.CommentBox, req.Comment, bgWidth, bgHeight)
		if err != nil {
			return nil, bootherrors.NewInternalError(bootherrors.ErrCodeInternalError, "failed to render comment", err).WithTemplateKey(req.TemplateKey)
		}
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, result, imaging.JPEG, imaging.JPEGQuality(outputQuality)); err != nil {
		return nil, bootherrors.NewInternalError(bootherrors.ErrCodeInternalError, "failed to encode composition", err).WithTemplateKey(req.TemplateKey)
	}

	return buf.Bytes(), nil
}

// drawComment renders the text centered vertically in the comment box, with
// horizontal placement per the font's alignment.
func (c *Compositor) drawComment(canvas image.Image, box frames.CommentBox, comment string, bgWidth, bgHeight float64) (image.Image, error) {
	boxLeft := float64(round(bgWidth * box.X))
	boxTop := float64(round(bgHeight * box.Y))
	boxWidth := float64(round(bgWidth * box.Width))
	boxHeight := float64(round(bgHeight * box.Height))

	size := float64(round(bgHeight * box.Font.SizeRel))
	if size <= 0 {
		size = 16
	}

	parsed, err := truetype.Parse(goregular.TTF)
	if err != nil {
		return nil, err
	}
	face := truetype.NewFace(parsed, &truetype.Options{Size: size})

	dc := gg.NewContextForImage(canvas)
	dc.SetFontFace(face)
	if box.Font.Color != "" {
		dc.SetHexColor(box.Font.Color)
	} else {
		dc.SetHexColor("#000")
	}

	var x float64
	var ax float64
	switch box.Font.Align {
	case "center", "middle":
		x = boxLeft + boxWidth/2
		ax = 0.5
	case "end", "right":
		x = boxLeft + boxWidth
		ax = 1
	default: // start
		x = boxLeft
		ax = 0
	}

	y := boxTop + boxHeight/2
	dc.DrawStringAnchored(comment, x, y, ax, 0.5)

	return dc.Image(), nil
}

// slotRect maps fractional slot geometry to the background's pixel grid.
// Minor out-of-range violations are clamped rather than rejected. Rounding
// is to the nearest integer, ties away from zero.
func slotRect(slot frames.Slot, bgWidth, bgHeight float64) image.Rectangle {
	x := clamp01(slot.X)
	y := clamp01(slot.Y)
	w := clampRange(slot.Width, 0, 1-x)
	h := clampRange(slot.Height, 0, 1-y)

	left := round(bgWidth * x)
	top := round(bgHeight * y)
	width := round(bgWidth * w)
	height := round(bgHeight * h)

	return image.Rect(left, top, left+width, top+height)
}

func round(f float64) int {
	return int(math.Round(f))
}

func clamp01(f float64) float64 {
	return clampRange(f, 0, 1)
}

func clampRange(f, lo, hi float64) float64 {
	if math.IsNaN(f) || f < lo {
		return lo
	}
	if f > hi {
		return hi
	}
	return f
}

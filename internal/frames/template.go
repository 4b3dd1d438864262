package frames

import (
	"math"

	json "github.com/goccy/go-json"
)

// Slot is a rectangle expressed as fractions of the background's dimensions.
// Slots have no identity beyond their index in the template's slot list.
type Slot struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Font describes comment text styling. SizeRel is the font size as a
// fraction of the background height.
type Font struct {
	Family  string  `json:"family,omitempty"`
	Color   string  `json:"color,omitempty"`
	SizeRel float64 `json:"sizeRel"`
	Align   string  `json:"align,omitempty"`
}

// CommentBox is an optional fractional-coordinate text box on a template.
type CommentBox struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
	Font   Font    `json:"font"`
}

// Template is a named background image plus its slot layout.
type Template struct {
	Background  string      `json:"background"`
	DisplayName string      `json:"displayName"`
	Thumbnail   string      `json:"thumbnail,omitempty"`
	Slots       []Slot      `json:"slots"`
	CommentBox  *CommentBox `json:"commentBox,omitempty"`
}

// UnmarshalJSON coerces slot fields to finite numbers, defaulting malformed
// or missing fields to 0 instead of propagating junk into the compositor.
func (s *Slot) UnmarshalJSON(data []byte) error {
	var raw map[string]interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	s.X = coerceFinite(raw["x"])
	s.Y = coerceFinite(raw["y"])
	s.Width = coerceFinite(raw["width"])
	s.Height = coerceFinite(raw["height"])

	return nil
}

// Sanitize replaces non-finite fields with 0.
func (s *Slot) Sanitize() {
	s.X = finiteOrZero(s.X)
	s.Y = finiteOrZero(s.Y)
	s.Width = finiteOrZero(s.Width)
	s.Height = finiteOrZero(s.Height)
}

func coerceFinite(v interface{}) float64 {
	switch n := v.(type) {
	case float64:
		return finiteOrZero(n)
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return 0
		}
		return finiteOrZero(f)
	default:
		return 0
	}
}

func finiteOrZero(f float64) float64 {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// clone returns a deep copy so callers never share the store's slices.
func (t *Template) clone() *Template {
	dup := *t
	dup.Slots = append([]Slot(nil), t.Slots...)
	if t.CommentBox != nil {
		box := *t.CommentBox
		dup.CommentBox = &box
	}
	return &dup
}

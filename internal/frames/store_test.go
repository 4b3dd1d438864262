package frames

import (
	"math"
	"os"
	"path/filepath"
	"testing"

	json "github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	bootherrors "github.com/snapframe/snapframe/internal/errors"
	"github.com/snapframe/snapframe/internal/logging"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Load(t.TempDir(), logging.NewNopLogger())
	require.NoError(t, err)
	return s
}

func TestLoadAbsentDocument(t *testing.T) {
	s := newTestStore(t)

	doc := s.List()
	assert.Empty(t, doc.Templates)
	assert.Empty(t, doc.Current)
}

func TestLoadExistingDocument(t *testing.T) {
	dir := t.TempDir()
	raw := `{
		"templates": {
			"fourpic_blue": {
				"background": "fourpic_blue.png",
				"displayName": "Four Pictures Blue",
				"thumbnail": "fourpic_blue.png",
				"slots": [{"x": 0.1, "y": 0.1, "width": 0.35, "height": 0.4}]
			}
		},
		"current_template": "fourpic_blue"
	}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "templates.json"), []byte(raw), 0644))

	s, err := Load(dir, logging.NewNopLogger())
	require.NoError(t, err)

	assert.Equal(t, "fourpic_blue", s.Current())

	tpl, err := s.Get("fourpic_blue")
	require.NoError(t, err)
	assert.Equal(t, "fourpic_blue.png", tpl.Background)
	require.Len(t, tpl.Slots, 1)
	assert.InDelta(t, 0.35, tpl.Slots[0].Width, 1e-9)
}

func TestLoadMalformedDocument(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "templates.json"), []byte("{nope"), 0644))

	_, err := Load(dir, logging.NewNopLogger())
	require.Error(t, err)
}

func TestGetUnknownKey(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Get("missing")
	assert.True(t, bootherrors.IsTemplateNotFound(err))
}

func TestCreateAndPersist(t *testing.T) {
	dir := t.TempDir()
	s, err := Load(dir, logging.NewNopLogger())
	require.NoError(t, err)

	key, tpl, err := s.Create("party_frame.png", "Party Frame", "")
	require.NoError(t, err)
	assert.Equal(t, "party_frame", key)
	assert.Equal(t, "Party Frame", tpl.DisplayName)
	assert.Equal(t, "party_frame.png", tpl.Thumbnail)
	assert.Empty(t, tpl.Slots)

	// Persisted immediately: a fresh load sees it.
	reloaded, err := Load(dir, logging.NewNopLogger())
	require.NoError(t, err)
	_, err = reloaded.Get("party_frame")
	assert.NoError(t, err)
}

func TestCreateKeyCollision(t *testing.T) {
	s := newTestStore(t)

	first, _, err := s.Create("bg.png", "Summer", "summer")
	require.NoError(t, err)
	second, _, err := s.Create("bg2.png", "Summer", "summer")
	require.NoError(t, err)
	third, _, err := s.Create("bg3.png", "Summer", "summer")
	require.NoError(t, err)

	assert.Equal(t, "summer", first)
	assert.Equal(t, "summer_1", second)
	assert.Equal(t, "summer_2", third)
}

func TestCreateRequiresBackground(t *testing.T) {
	s := newTestStore(t)

	_, _, err := s.Create("", "No Background", "")
	require.Error(t, err)
}

func TestSetCurrent(t *testing.T) {
	s := newTestStore(t)

	_, _, err := s.Create("bg.png", "One", "one")
	require.NoError(t, err)

	require.NoError(t, s.SetCurrent("one"))
	assert.Equal(t, "one", s.Current())

	err = s.SetCurrent("nope")
	assert.True(t, bootherrors.IsTemplateNotFound(err))
}

func TestUpdateSlotsRoundTrip(t *testing.T) {
	s := newTestStore(t)

	key, _, err := s.Create("bg.png", "Layout", "")
	require.NoError(t, err)

	slots := []Slot{
		{X: 0.05, Y: 0.05, Width: 0.4, Height: 0.45},
		{X: 0.55, Y: 0.05, Width: 0.4, Height: 0.45},
	}
	stored, err := s.UpdateSlots(key, slots)
	require.NoError(t, err)
	assert.Equal(t, slots, stored)

	tpl, err := s.Get(key)
	require.NoError(t, err)
	require.Len(t, tpl.Slots, 2)
	for i := range slots {
		assert.InDelta(t, slots[i].X, tpl.Slots[i].X, 1e-9)
		assert.InDelta(t, slots[i].Y, tpl.Slots[i].Y, 1e-9)
		assert.InDelta(t, slots[i].Width, tpl.Slots[i].Width, 1e-9)
		assert.InDelta(t, slots[i].Height, tpl.Slots[i].Height, 1e-9)
	}
}

func TestUpdateSlotsCoercesNonFinite(t *testing.T) {
	s := newTestStore(t)

	key, _, err := s.Create("bg.png", "Layout", "")
	require.NoError(t, err)

	stored, err := s.UpdateSlots(key, []Slot{
		{X: math.NaN(), Y: math.Inf(1), Width: 0.5, Height: math.Inf(-1)},
	})
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.Zero(t, stored[0].X)
	assert.Zero(t, stored[0].Y)
	assert.Equal(t, 0.5, stored[0].Width)
	assert.Zero(t, stored[0].Height)
}

func TestUpdateSlotsUnknownKey(t *testing.T) {
	s := newTestStore(t)

	_, err := s.UpdateSlots("nope", []Slot{})
	assert.True(t, bootherrors.IsTemplateNotFound(err))
}

func TestSlotUnmarshalCoercion(t *testing.T) {
	var slot Slot
	require.NoError(t, json.Unmarshal([]byte(`{"x": "abc", "y": null, "width": 0.4}`), &slot))

	assert.Zero(t, slot.X)
	assert.Zero(t, slot.Y)
	assert.Equal(t, 0.4, slot.Width)
	assert.Zero(t, slot.Height) // missing field defaults to 0
}

func TestDeleteReassignsCurrent(t *testing.T) {
	s := newTestStore(t)

	_, _, err := s.Create("a.png", "A", "a")
	require.NoError(t, err)
	_, _, err = s.Create("b.png", "B", "b")
	require.NoError(t, err)
	require.NoError(t, s.SetCurrent("a"))

	current, err := s.Delete("a")
	require.NoError(t, err)
	assert.Equal(t, "b", current)
	assert.Equal(t, "b", s.Current())

	// Deleting the last template leaves no selection.
	current, err = s.Delete("b")
	require.NoError(t, err)
	assert.Empty(t, current)
	assert.Empty(t, s.Current())
}

func TestDeleteCollectsOrphanedAssets(t *testing.T) {
	dir := t.TempDir()
	s, err := Load(dir, logging.NewNopLogger())
	require.NoError(t, err)

	// Two templates share one background, a third has its own.
	require.NoError(t, os.WriteFile(filepath.Join(dir, "shared.png"), []byte("png"), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "solo.png"), []byte("png"), 0644))

	_, _, err = s.Create("shared.png", "First", "first")
	require.NoError(t, err)
	_, _, err = s.Create("shared.png", "Second", "second")
	require.NoError(t, err)
	soloKey, _, err := s.Create("solo.png", "Solo", "solo")
	require.NoError(t, err)

	// Deleting one of the sharers keeps the shared asset.
	_, err = s.Delete("first")
	require.NoError(t, err)
	assert.FileExists(t, filepath.Join(dir, "shared.png"))

	// Deleting the only user of solo.png removes the file.
	_, err = s.Delete(soloKey)
	require.NoError(t, err)
	assert.NoFileExists(t, filepath.Join(dir, "solo.png"))
}

func TestDeleteUnknownKey(t *testing.T) {
	s := newTestStore(t)

	_, err := s.Delete("ghost")
	assert.True(t, bootherrors.IsTemplateNotFound(err))
}

func TestListReturnsCopies(t *testing.T) {
	s := newTestStore(t)

	key, _, err := s.Create("bg.png", "Mutable", "")
	require.NoError(t, err)
	_, err = s.UpdateSlots(key, []Slot{{X: 0.1, Y: 0.1, Width: 0.2, Height: 0.2}})
	require.NoError(t, err)

	doc := s.List()
	doc.Templates[key].Slots[0].X = 0.9

	tpl, err := s.Get(key)
	require.NoError(t, err)
	assert.InDelta(t, 0.1, tpl.Slots[0].X, 1e-9)
}

func TestSlugify(t *testing.T) {
	testCases := []struct {
		input    string
		expected string
	}{
		{"Party Frame", "party_frame"},
		{"  Neon--2024!  ", "neon_2024"},
		{"UPPER", "upper"},
		{"___", ""},
		{"fourpic_blue", "fourpic_blue"},
	}

	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			assert.Equal(t, tc.expected, Slugify(tc.input))
		})
	}
}

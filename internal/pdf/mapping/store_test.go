package mapping

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pdferrors "github.com/a3tai/pdf-fieldstamp/internal/pdf/errors"
	"github.com/a3tai/pdf-fieldstamp/internal/pdf/extraction"
	"github.com/a3tai/pdf-fieldstamp/internal/pdf/geometry"
)

var pages = []geometry.Page{
	{Index: 0, Width: 595, Height: 842},
	{Index: 1, Width: 842, Height: 595},
}

func detected(name string, conf float64, page int, x, y float64) extraction.DetectedField {
	return extraction.DetectedField{
		Name:       name,
		Kind:       extraction.KindText,
		Geometry:   geometry.Rect{X: x, Y: y, Width: 100, Height: 20, Page: page},
		Confidence: extraction.Confidence(conf),
	}
}

func seeded(t *testing.T) *Store {
	t.Helper()
	s := NewStore(pages)
	require.NoError(t, s.Seed([]extraction.DetectedField{
		detected("name", 1, 0, 50, 700),
		detected("date", 1, 0, 200, 700),
		detected("site", 0.8, 1, 50, 500),
	}))
	return s
}

func TestNewStore_SessionID(t *testing.T) {
	a, b := NewStore(pages), NewStore(pages)
	_, err := uuid.Parse(a.ID())
	require.NoError(t, err)
	assert.NotEqual(t, a.ID(), b.ID())
}

func TestStore_SeedAndSetValue(t *testing.T) {
	s := seeded(t)

	require.NoError(t, s.SetValue("name", "Kim Minsu"))
	require.NoError(t, s.SetValue("date", "2024-05-01"))

	all := s.AllMappings()
	require.Len(t, all, 3)
	assert.Equal(t, []string{"name", "date", "site"}, []string{all[0].Name, all[1].Name, all[2].Name})
	assert.Equal(t, "Kim Minsu", all[0].Value)
	assert.Equal(t, "", all[2].Value)

	assert.Equal(t, ValueRecord{"name": "Kim Minsu", "date": "2024-05-01"}, s.Record())

	err := s.SetValue("missing", "x")
	require.Error(t, err)
	assert.Equal(t, pdferrors.ErrorTypeUnknownField, pdferrors.TypeOf(err))
}

func TestStore_SeedMergesDuplicates(t *testing.T) {
	s := NewStore(pages)
	low := detected("name", 0.6, 0, 50, 700)
	high := detected("name", 0.9, 0, 50, 650)
	require.NoError(t, s.Seed([]extraction.DetectedField{low, high}))

	all := s.AllMappings()
	require.Len(t, all, 1)
	assert.Equal(t, 650.0, all[0].Geometry.Y)
}

func TestStore_SeedRejects(t *testing.T) {
	tests := []struct {
		name    string
		fields  []extraction.DetectedField
		errType pdferrors.ErrorType
	}{
		{
			name:    "empty name",
			fields:  []extraction.DetectedField{detected("", 1, 0, 50, 700)},
			errType: pdferrors.ErrorTypeInvalidRequest,
		},
		{
			name:    "out of bounds",
			fields:  []extraction.DetectedField{detected("a", 1, 0, 550, 700)},
			errType: pdferrors.ErrorTypeGeometryOutOfBounds,
		},
		{
			name:    "missing page",
			fields:  []extraction.DetectedField{detected("a", 1, 5, 50, 50)},
			errType: pdferrors.ErrorTypeGeometryOutOfBounds,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewStore(pages)
			err := s.Seed(tt.fields)
			require.Error(t, err)
			assert.Equal(t, tt.errType, pdferrors.TypeOf(err))
			assert.Empty(t, s.AllMappings())
		})
	}
}

func TestStore_SeedKeepsConflicts(t *testing.T) {
	s := NewStore(pages)
	require.NoError(t, s.Seed([]extraction.DetectedField{
		detected("a", 1, 0, 50, 700),
		detected("b", 1, 0, 100, 710),
		detected("c", 1, 0, 50, 500),
	}))
	assert.Equal(t, []extraction.Conflict{{First: "a", Second: "b", Page: 0}}, s.Conflicts())

	// edits elsewhere are allowed while the conflict stands
	require.NoError(t, s.SetValue("c", "ok"))
	require.NoError(t, s.Move("c", geometry.Rect{X: 300, Y: 500, Width: 100, Height: 20}))

	// but they may not add a new overlap
	err := s.Move("c", geometry.Rect{X: 60, Y: 690, Width: 100, Height: 20})
	assert.Equal(t, pdferrors.ErrorTypeOverlappingFields, pdferrors.TypeOf(err))
	err = s.Declare(extraction.DetectedField{Name: "d", Kind: extraction.KindText,
		Geometry: geometry.Rect{X: 120, Y: 715, Width: 50, Height: 20}})
	assert.Equal(t, pdferrors.ErrorTypeOverlappingFields, pdferrors.TypeOf(err))

	// moving a field off its partner resolves the conflict
	require.NoError(t, s.Move("b", geometry.Rect{X: 300, Y: 700, Width: 100, Height: 20}))
	assert.Empty(t, s.Conflicts())

	err = s.Move("b", geometry.Rect{X: 100, Y: 710, Width: 100, Height: 20})
	assert.Equal(t, pdferrors.ErrorTypeOverlappingFields, pdferrors.TypeOf(err), "a resolved conflict cannot come back")
}

func TestStore_RemoveResolvesConflict(t *testing.T) {
	s := NewStore(pages)
	require.NoError(t, s.Seed([]extraction.DetectedField{
		detected("a", 1, 0, 50, 700),
		detected("b", 1, 0, 100, 710),
	}))
	require.Len(t, s.Conflicts(), 1)
	require.NoError(t, s.Remove("b"))
	assert.Empty(t, s.Conflicts())
}

func TestStore_Declare(t *testing.T) {
	s := seeded(t)

	manual := extraction.DetectedField{
		Name:       "remarks",
		Kind:       extraction.KindText,
		Geometry:   geometry.Rect{X: 50, Y: 100, Width: 300, Height: 60, Page: 0},
		Confidence: extraction.Confidence(0.7),
		Multiline:  true,
	}
	require.NoError(t, s.Declare(manual))

	all := s.AllMappings()
	require.Len(t, all, 4)
	assert.Equal(t, "remarks", all[3].Name)
	assert.Nil(t, all[3].Confidence, "manual declarations carry no confidence")
	assert.True(t, all[3].Multiline)

	err := s.Declare(extraction.DetectedField{Name: "name", Kind: extraction.KindText,
		Geometry: geometry.Rect{X: 50, Y: 300, Width: 100, Height: 20}})
	require.Error(t, err)
	assert.Equal(t, pdferrors.ErrorTypeInvalidRequest, pdferrors.TypeOf(err))

	err = s.Declare(extraction.DetectedField{Name: "sig", Kind: "stamp",
		Geometry: geometry.Rect{X: 50, Y: 300, Width: 100, Height: 20}})
	require.Error(t, err)
	assert.Equal(t, pdferrors.ErrorTypeUnsupportedKind, pdferrors.TypeOf(err))

	err = s.Declare(extraction.DetectedField{Name: "clash", Kind: extraction.KindText,
		Geometry: geometry.Rect{X: 60, Y: 110, Width: 20, Height: 20}})
	require.Error(t, err)
	assert.Equal(t, pdferrors.ErrorTypeOverlappingFields, pdferrors.TypeOf(err))
	assert.Len(t, s.AllMappings(), 4)
}

func TestStore_Move(t *testing.T) {
	s := seeded(t)
	require.NoError(t, s.SetValue("name", "Kim"))

	moved := geometry.Rect{X: 50, Y: 600, Width: 120, Height: 20, Page: 0}
	require.NoError(t, s.Move("name", moved))

	all := s.AllMappings()
	assert.Equal(t, moved, all[0].Geometry)
	assert.Equal(t, "Kim", all[0].Value)

	err := s.Move("name", geometry.Rect{X: 210, Y: 700, Width: 50, Height: 20, Page: 0})
	require.Error(t, err)
	assert.Equal(t, pdferrors.ErrorTypeOverlappingFields, pdferrors.TypeOf(err))
	assert.Equal(t, moved, s.AllMappings()[0].Geometry)

	err = s.Move("nope", moved)
	assert.Equal(t, pdferrors.ErrorTypeUnknownField, pdferrors.TypeOf(err))
}

func TestStore_Remove(t *testing.T) {
	s := seeded(t)
	require.NoError(t, s.Remove("date"))
	assert.Len(t, s.AllMappings(), 2)
	_, ok := s.Value("date")
	assert.False(t, ok)
	assert.Equal(t, pdferrors.ErrorTypeUnknownField, pdferrors.TypeOf(s.Remove("date")))
}

func TestStore_Overlays(t *testing.T) {
	s := seeded(t)
	require.NoError(t, s.SetValue("name", "Kim"))

	targets, err := s.Overlays(0, 1.2)
	require.NoError(t, err)
	require.Len(t, targets, 2)
	assert.Equal(t, "name", targets[0].Name)
	assert.Equal(t, "Kim", targets[0].Value)
	assert.InDelta(t, 60, targets[0].Rect.X, 1e-9)
	assert.InDelta(t, 146.4, targets[0].Rect.Y, 1e-9)

	targets, err = s.Overlays(1, 1)
	require.NoError(t, err)
	require.Len(t, targets, 1)
	assert.Equal(t, "site", targets[0].Name)

	_, err = s.Overlays(3, 1)
	assert.Equal(t, pdferrors.ErrorTypeGeometryOutOfBounds, pdferrors.TypeOf(err))

	_, err = s.Overlays(0, 0)
	assert.Equal(t, pdferrors.ErrorTypeInvalidZoom, pdferrors.TypeOf(err))
}

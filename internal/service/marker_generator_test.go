package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/circle-calendar-api/internal/models"
	"github.com/noah-isme/circle-calendar-api/pkg/config"
)

func defaultMarkerGenerator() *MarkerGenerator {
	return NewMarkerGenerator(config.MarkersConfig{Enabled: true})
}

func TestMarkerGeneratorMarch2024(t *testing.T) {
	gen := defaultMarkerGenerator()
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)

	markers := gen.Generate(start, end)
	require.Len(t, markers, 4)

	kinds := map[models.PhaseKind]string{}
	for _, m := range markers {
		kinds[m.PhaseKind] = m.Date.Format("2006-01-02")
		assert.False(t, m.Date.Before(start))
		assert.False(t, m.Date.After(end))
	}
	assert.Len(t, kinds, 4)
	assert.Equal(t, "2024-03-10", kinds[models.PhaseNewMoon])
	assert.Equal(t, "2024-03-25", kinds[models.PhaseFullMoon])
}

func TestMarkerGeneratorIsIdempotent(t *testing.T) {
	gen := defaultMarkerGenerator()
	start := time.Date(2023, 11, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC)

	first := gen.Generate(start, end)
	second := gen.Generate(start, end)
	assert.Equal(t, first, second)
	for _, m := range first {
		assert.Equal(t, string(m.PhaseKind)+"-"+m.Date.Format("2006-01-02"), m.ID)
	}
}

func TestMarkerGeneratorInvertedWindow(t *testing.T) {
	gen := defaultMarkerGenerator()
	start := time.Date(2024, 3, 31, 0, 0, 0, 0, time.UTC)
	assert.Empty(t, gen.Generate(start, start.AddDate(0, 0, -5)))
}

func TestMarkerGeneratorSingleDay(t *testing.T) {
	gen := defaultMarkerGenerator()
	day := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC)
	markers := gen.Generate(day, day)
	require.Len(t, markers, 1)
	assert.Equal(t, "new_moon-2024-03-10", markers[0].ID)
}

func TestMarkerGeneratorEntriesAreCelestial(t *testing.T) {
	gen := defaultMarkerGenerator()
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	entries := gen.Entries(start, start.AddDate(0, 0, 30))
	require.NotEmpty(t, entries)
	for _, e := range entries {
		assert.True(t, e.AllDay)
		assert.Equal(t, models.ResourceKindCelestial, e.Resource.Kind)
		require.NotNil(t, e.Resource.Marker)
		assert.Equal(t, e.ID, e.Resource.Marker.ID)
		assert.Equal(t, "", e.Resource.Owner())
	}
}

package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultRegistry(t *testing.T) {
	r := DefaultRegistry()

	assert.Equal(t, 5, r.Len())
	assert.Equal(t, []string{"Berlin", "NewYork", "Tokyo", "SaoPaulo", "CapeTown"}, r.Names())

	expected := map[string]Coordinates{
		"Berlin":   {Latitude: 52.52, Longitude: 13.41},
		"NewYork":  {Latitude: 40.71, Longitude: -74.01},
		"Tokyo":    {Latitude: 35.68, Longitude: 139.69},
		"SaoPaulo": {Latitude: -23.55, Longitude: -46.63},
		"CapeTown": {Latitude: -33.92, Longitude: 18.42},
	}
	for name, coords := range expected {
		s, ok := r.Lookup(name)
		require.True(t, ok, name)
		assert.Equal(t, coords, s.Coordinates, name)
	}

	_, ok := r.Lookup("London")
	assert.False(t, ok)
}

func TestNewRegistry(t *testing.T) {
	t.Run("should reject an empty set", func(t *testing.T) {
		_, err := NewRegistry(nil)
		assert.Error(t, err)
	})

	t.Run("should reject duplicates", func(t *testing.T) {
		_, err := NewRegistry([]Station{
			{Name: "Oslo", Coordinates: Coordinates{Latitude: 59.9, Longitude: 10.7}},
			{Name: "Oslo", Coordinates: Coordinates{Latitude: 59.9, Longitude: 10.7}},
		})
		assert.Error(t, err)
	})

	t.Run("should reject blank names", func(t *testing.T) {
		_, err := NewRegistry([]Station{{Name: "  "}})
		assert.Error(t, err)
	})

	t.Run("should reject coordinates out of range", func(t *testing.T) {
		_, err := NewRegistry([]Station{{Name: "Nowhere", Coordinates: Coordinates{Latitude: 91}}})
		assert.Error(t, err)

		_, err = NewRegistry([]Station{{Name: "Nowhere", Coordinates: Coordinates{Longitude: -181}}})
		assert.Error(t, err)
	})

	t.Run("should not share the caller's slice", func(t *testing.T) {
		stations := DefaultStations()
		r, err := NewRegistry(stations)
		require.NoError(t, err)

		stations[0].Name = "Mutated"
		assert.Equal(t, "Berlin", r.At(0).Name)

		copied := r.Stations()
		copied[1].Name = "Mutated"
		assert.Equal(t, "NewYork", r.At(1).Name)
	})
}

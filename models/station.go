package models

import (
	"errors"
	"fmt"
	"strings"
)

// Coordinates is a geographic position in degrees
type Coordinates struct {
	Latitude  float64 `json:"latitude" yaml:"latitude"`
	Longitude float64 `json:"longitude" yaml:"longitude"`
}

// Station is a named location for which weather is generated
type Station struct {
	Name        string `json:"name" yaml:"name"`
	Coordinates `yaml:",inline"`
}

// DefaultStations returns the built-in station dataset
func DefaultStations() []Station {
	return []Station{
		{Name: "Berlin", Coordinates: Coordinates{Latitude: 52.52, Longitude: 13.41}},
		{Name: "NewYork", Coordinates: Coordinates{Latitude: 40.71, Longitude: -74.01}},
		{Name: "Tokyo", Coordinates: Coordinates{Latitude: 35.68, Longitude: 139.69}},
		{Name: "SaoPaulo", Coordinates: Coordinates{Latitude: -23.55, Longitude: -46.63}},
		{Name: "CapeTown", Coordinates: Coordinates{Latitude: -33.92, Longitude: 18.42}},
	}
}

// Registry is an immutable, ordered station table. It is built once at
// startup and shared by every connection without locking.
type Registry struct {
	stations []Station
	index    map[string]int
}

// NewRegistry validates stations and builds a registry from them
func NewRegistry(stations []Station) (*Registry, error) {
	if len(stations) == 0 {
		return nil, errors.New("station registry must not be empty")
	}

	r := &Registry{
		stations: make([]Station, 0, len(stations)),
		index:    make(map[string]int, len(stations)),
	}
	for _, s := range stations {
		if strings.TrimSpace(s.Name) == "" {
			return nil, errors.New("station name must not be empty")
		}
		if _, dup := r.index[s.Name]; dup {
			return nil, fmt.Errorf("duplicate station %q", s.Name)
		}
		if s.Latitude < -90 || s.Latitude > 90 {
			return nil, fmt.Errorf("station %q: latitude %.4f out of range", s.Name, s.Latitude)
		}
		if s.Longitude < -180 || s.Longitude > 180 {
			return nil, fmt.Errorf("station %q: longitude %.4f out of range", s.Name, s.Longitude)
		}
		r.index[s.Name] = len(r.stations)
		r.stations = append(r.stations, s)
	}
	return r, nil
}

// DefaultRegistry returns a registry over DefaultStations
func DefaultRegistry() *Registry {
	r, err := NewRegistry(DefaultStations())
	if err != nil {
		panic(err)
	}
	return r
}

// Len returns the number of stations
func (r *Registry) Len() int {
	return len(r.stations)
}

// At returns the i-th station in registration order
func (r *Registry) At(i int) Station {
	return r.stations[i]
}

// Lookup finds a station by name
func (r *Registry) Lookup(name string) (Station, bool) {
	i, ok := r.index[name]
	if !ok {
		return Station{}, false
	}
	return r.stations[i], true
}

// Names returns the station names in registration order
func (r *Registry) Names() []string {
	names := make([]string, len(r.stations))
	for i, s := range r.stations {
		names[i] = s.Name
	}
	return names
}

// Stations returns a copy of the station table
func (r *Registry) Stations() []Station {
	out := make([]Station, len(r.stations))
	copy(out, r.stations)
	return out
}

package api

import (
	"sort"
	"sync"

	"weather-stream/models"
)

// LatestStore holds the most recent measurement delivered for each station
type LatestStore struct {
	data  map[string]models.Measurement
	mutex sync.RWMutex
}

// NewLatestStore creates a new in-memory store
func NewLatestStore() *LatestStore {
	return &LatestStore{
		data: make(map[string]models.Measurement),
	}
}

// Record replaces the stored measurement for the station. Readings with an
// older timestamp than the stored one are ignored.
func (s *LatestStore) Record(m models.Measurement) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if existing, ok := s.data[m.City]; ok && existing.Timestamp > m.Timestamp {
		return
	}
	s.data[m.City] = m
}

// Get retrieves the latest measurement for a station
func (s *LatestStore) Get(station string) (models.Measurement, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	m, exists := s.data[station]
	return m, exists
}

// All returns the latest measurement of every station, sorted by station name
func (s *LatestStore) All() []models.Measurement {
	s.mutex.RLock()
	out := make([]models.Measurement, 0, len(s.data))
	for _, m := range s.data {
		out = append(out, m)
	}
	s.mutex.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].City < out[j].City })
	return out
}

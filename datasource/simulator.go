package datasource

import (
	"context"
	"math/rand/v2"
	"time"

	"weather-stream/models"
)

// Placeholder readings reported by the simulator until wind is modelled
const (
	SimulatedWindSpeed     = 12.2
	SimulatedWindDirection = 246.0

	minSimulatedTemperature  = -20.0
	simulatedTemperatureSpan = 60.0
)

// SimulatedSource synthesizes measurements without any network access.
// Temperature is drawn uniformly from [-20, 40) degrees Celsius.
type SimulatedSource struct {
	random func() float64
	now    func() time.Time
}

// Ensure SimulatedSource implements DataSource
var _ DataSource = (*SimulatedSource)(nil)

// NewSimulatedSource creates a simulator backed by math/rand/v2
func NewSimulatedSource() *SimulatedSource {
	return &SimulatedSource{
		random: rand.Float64,
		now:    time.Now,
	}
}

// WithRandom replaces the uniform [0,1) generator, mainly for tests
func (s *SimulatedSource) WithRandom(random func() float64) *SimulatedSource {
	s.random = random
	return s
}

// WithClock replaces the time source, mainly for tests
func (s *SimulatedSource) WithClock(now func() time.Time) *SimulatedSource {
	s.now = now
	return s
}

// Name returns the source name
func (s *SimulatedSource) Name() string {
	return "Simulator"
}

// FetchMeasurement produces a synthetic reading for the station
func (s *SimulatedSource) FetchMeasurement(ctx context.Context, station models.Station) (models.Measurement, error) {
	if err := ctx.Err(); err != nil {
		return models.Measurement{}, err
	}

	return models.Measurement{
		City:          station.Name,
		Timestamp:     models.FormatTimestamp(s.now()),
		Temperature:   s.random()*simulatedTemperatureSpan + minSimulatedTemperature,
		WindSpeed:     SimulatedWindSpeed,
		WindDirection: SimulatedWindDirection,
	}, nil
}

package models

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/goccy/go-json"
	"github.com/invopop/jsonschema"
)

// TimestampLayout is the ISO-8601 layout used for generated measurements
const TimestampLayout = "2006-01-02T15:04:05Z"

// ErrInvalidMeasurement is returned by Validate for out-of-range readings
var ErrInvalidMeasurement = errors.New("invalid measurement")

// Measurement is a single weather reading for a station at a point in time.
// It is the message pushed to stream clients.
type Measurement struct {
	City          string  `json:"city" jsonschema:"title=City,description=Station name from the registry"`
	Timestamp     string  `json:"timestamp" jsonschema:"title=Timestamp,description=ISO-8601 time of the reading"`
	Temperature   float64 `json:"temperature" jsonschema:"title=Temperature,description=Air temperature in degrees Celsius"`
	WindSpeed     float64 `json:"windspeed" jsonschema:"title=Wind speed,description=Wind speed in km/h,minimum=0"`
	WindDirection float64 `json:"winddirection" jsonschema:"title=Wind direction,description=Wind direction in degrees,minimum=0,exclusiveMaximum=360"`
}

// Validate checks that the measurement can be sent to clients
func (m Measurement) Validate() error {
	if m.City == "" {
		return fmt.Errorf("%w: empty city", ErrInvalidMeasurement)
	}
	if m.Timestamp == "" {
		return fmt.Errorf("%w: empty timestamp", ErrInvalidMeasurement)
	}
	for name, v := range map[string]float64{
		"temperature":   m.Temperature,
		"windspeed":     m.WindSpeed,
		"winddirection": m.WindDirection,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrInvalidMeasurement, name)
		}
	}
	if m.WindSpeed < 0 {
		return fmt.Errorf("%w: negative windspeed %.2f", ErrInvalidMeasurement, m.WindSpeed)
	}
	if m.WindDirection < 0 || m.WindDirection >= 360 {
		return fmt.Errorf("%w: winddirection %.2f outside [0,360)", ErrInvalidMeasurement, m.WindDirection)
	}
	return nil
}

// Encode serializes the measurement to its JSON wire form
func (m Measurement) Encode() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode measurement: %w", err)
	}
	return data, nil
}

// DecodeMeasurement parses a wire message
func DecodeMeasurement(data []byte) (Measurement, error) {
	var m Measurement
	if err := json.Unmarshal(data, &m); err != nil {
		return Measurement{}, fmt.Errorf("failed to decode measurement: %w", err)
	}
	return m, nil
}

// FormatTimestamp renders t as a UTC ISO-8601 string
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// Schema returns the JSON Schema describing the wire message
func Schema() *jsonschema.Schema {
	r := &jsonschema.Reflector{
		DoNotReference: true,
	}
	return r.Reflect(&Measurement{})
}

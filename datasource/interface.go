package datasource

import (
	"context"

	"weather-stream/models"
)

// DataSource defines the interface for anything that can produce a
// measurement for a station
type DataSource interface {
	Name() string
	FetchMeasurement(ctx context.Context, station models.Station) (models.Measurement, error)
}

package datasource

import (
	"context"
	"fmt"

	"weather-stream/models"

	"golang.org/x/time/rate"
)

// RateLimitedSource caps how often the wrapped source is called. Every
// generator shares one bucket, so the upstream sees at most rps calls per
// second no matter how many clients are connected.
type RateLimitedSource struct {
	source  DataSource
	limiter *rate.Limiter
	name    string
}

// NewRateLimitedSource allows rps fetches per second (fractions allowed)
// with up to burst back to back
func NewRateLimitedSource(source DataSource, rps float64, burst int) *RateLimitedSource {
	return &RateLimitedSource{
		source:  source,
		limiter: rate.NewLimiter(rate.Limit(rps), burst),
		name:    fmt.Sprintf("%s [Rate Limited]", source.Name()),
	}
}

// FetchMeasurement waits for a token, giving up when ctx ends
func (r *RateLimitedSource) FetchMeasurement(ctx context.Context, station models.Station) (models.Measurement, error) {
	if err := r.limiter.Wait(ctx); err != nil {
		return models.Measurement{}, fmt.Errorf("rate limit wait canceled: %w", err)
	}

	return r.source.FetchMeasurement(ctx, station)
}

// Name returns the source name
func (r *RateLimitedSource) Name() string {
	return r.name
}

var _ DataSource = (*RateLimitedSource)(nil)

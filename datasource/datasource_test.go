package datasource

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"weather-stream/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var berlin = models.Station{Name: "Berlin", Coordinates: models.Coordinates{Latitude: 52.52, Longitude: 13.41}}

func TestSimulatedSource(t *testing.T) {
	t.Run("should keep temperature within [-20, 40)", func(t *testing.T) {
		src := NewSimulatedSource()
		for i := 0; i < 1000; i++ {
			m, err := src.FetchMeasurement(context.Background(), berlin)
			require.NoError(t, err)
			assert.GreaterOrEqual(t, m.Temperature, -20.0)
			assert.Less(t, m.Temperature, 40.0)
			assert.NoError(t, m.Validate())
		}
	})

	t.Run("should map the random draw linearly", func(t *testing.T) {
		draws := []float64{0, 0.5, 0.999999}
		i := 0
		src := NewSimulatedSource().WithRandom(func() float64 {
			v := draws[i]
			i++
			return v
		})

		var temps []float64
		for range draws {
			m, err := src.FetchMeasurement(context.Background(), berlin)
			require.NoError(t, err)
			temps = append(temps, m.Temperature)
		}

		assert.Equal(t, -20.0, temps[0])
		assert.Equal(t, 10.0, temps[1])
		assert.InDelta(t, 39.99994, temps[2], 1e-9)
	})

	t.Run("should report the placeholder wind readings", func(t *testing.T) {
		fixed := time.Date(2025, 7, 23, 13, 15, 0, 0, time.UTC)
		src := NewSimulatedSource().WithClock(func() time.Time { return fixed })

		m, err := src.FetchMeasurement(context.Background(), berlin)
		require.NoError(t, err)

		assert.Equal(t, "Berlin", m.City)
		assert.Equal(t, "2025-07-23T13:15:00Z", m.Timestamp)
		assert.Equal(t, 12.2, m.WindSpeed)
		assert.Equal(t, 246.0, m.WindDirection)
	})

	t.Run("should honour a canceled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := NewSimulatedSource().FetchMeasurement(ctx, berlin)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestOpenMeteoSource(t *testing.T) {
	t.Run("should map current_weather onto a measurement", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			assert.Equal(t, "/v1/forecast", r.URL.Path)
			assert.Equal(t, "52.52", r.URL.Query().Get("latitude"))
			assert.Equal(t, "13.41", r.URL.Query().Get("longitude"))
			assert.Equal(t, "true", r.URL.Query().Get("current_weather"))

			w.Header().Set("Content-Type", "application/json")
			fmt.Fprint(w, `{
				"latitude": 52.52, "longitude": 13.419998, "timezone": "GMT",
				"current_weather": {"time": "2025-07-23T13:15", "interval": 900,
					"temperature": 18.4, "windspeed": 12.2, "winddirection": 246,
					"is_day": 1, "weathercode": 61}
			}`)
		}))
		defer srv.Close()

		m, err := NewOpenMeteoSource(srv.URL, time.Second).FetchMeasurement(context.Background(), berlin)
		require.NoError(t, err)

		assert.Equal(t, models.Measurement{
			City:          "Berlin",
			Timestamp:     "2025-07-23T13:15",
			Temperature:   18.4,
			WindSpeed:     12.2,
			WindDirection: 246,
		}, m)
	})

	t.Run("should normalize a northerly 360 degree wind", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"current_weather": {"time": "2025-07-23T13:15", "temperature": 1, "windspeed": 3, "winddirection": 360}}`)
		}))
		defer srv.Close()

		m, err := NewOpenMeteoSource(srv.URL, time.Second).FetchMeasurement(context.Background(), berlin)
		require.NoError(t, err)
		assert.Equal(t, 0.0, m.WindDirection)
		assert.NoError(t, m.Validate())
	})

	t.Run("should fail without current_weather", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fmt.Fprint(w, `{"latitude": 52.52}`)
		}))
		defer srv.Close()

		_, err := NewOpenMeteoSource(srv.URL, time.Second).FetchMeasurement(context.Background(), berlin)
		assert.ErrorIs(t, err, ErrNoCurrentWeather)
	})

	t.Run("should fail on non-200 status", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "quota exceeded", http.StatusTooManyRequests)
		}))
		defer srv.Close()

		_, err := NewOpenMeteoSource(srv.URL, time.Second).FetchMeasurement(context.Background(), berlin)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "429")
	})

	t.Run("should default to the public API", func(t *testing.T) {
		src := NewOpenMeteoSource("", time.Second)
		assert.Equal(t, DefaultOpenMeteoURL, src.baseURL)
		assert.Equal(t, "OpenMeteo", src.Name())
	})
}

// countingSource records how often it was called
type countingSource struct {
	calls atomic.Int32
}

func (c *countingSource) Name() string { return "Counting" }

func (c *countingSource) FetchMeasurement(ctx context.Context, station models.Station) (models.Measurement, error) {
	c.calls.Add(1)
	return models.Measurement{City: station.Name}, nil
}

func TestRateLimitedSource(t *testing.T) {
	t.Run("should allow the burst immediately", func(t *testing.T) {
		inner := &countingSource{}
		src := NewRateLimitedSource(inner, 1, 3)

		start := time.Now()
		for i := 0; i < 3; i++ {
			_, err := src.FetchMeasurement(context.Background(), berlin)
			require.NoError(t, err)
		}
		assert.Less(t, time.Since(start), 500*time.Millisecond)
		assert.Equal(t, int32(3), inner.calls.Load())
	})

	t.Run("should stop waiting when the context ends", func(t *testing.T) {
		inner := &countingSource{}
		src := NewRateLimitedSource(inner, 0.1, 1)

		_, err := src.FetchMeasurement(context.Background(), berlin)
		require.NoError(t, err)

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()

		_, err = src.FetchMeasurement(ctx, berlin)
		assert.Error(t, err)
		assert.Equal(t, int32(1), inner.calls.Load())
	})

	t.Run("should mark its name", func(t *testing.T) {
		src := NewRateLimitedSource(&countingSource{}, 1, 1)
		assert.Equal(t, "Counting [Rate Limited]", src.Name())
	})
}

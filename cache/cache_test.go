package cache

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"weather-stream/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	berlin = models.Station{Name: "Berlin", Coordinates: models.Coordinates{Latitude: 52.52, Longitude: 13.41}}
	tokyo  = models.Station{Name: "Tokyo", Coordinates: models.Coordinates{Latitude: 35.68, Longitude: 139.69}}
)

// stubSource returns an increasing temperature on every call
type stubSource struct {
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (s *stubSource) Name() string { return "Stub" }

func (s *stubSource) FetchMeasurement(ctx context.Context, station models.Station) (models.Measurement, error) {
	n := s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	if s.err != nil {
		return models.Measurement{}, s.err
	}
	return models.Measurement{City: station.Name, Temperature: float64(n)}, nil
}

// gatedSource blocks until released or its context ends
type gatedSource struct {
	calls   atomic.Int32
	release chan struct{}
}

func (s *gatedSource) Name() string { return "Gated" }

func (s *gatedSource) FetchMeasurement(ctx context.Context, station models.Station) (models.Measurement, error) {
	s.calls.Add(1)
	select {
	case <-s.release:
		return models.Measurement{City: station.Name}, nil
	case <-ctx.Done():
		return models.Measurement{}, ctx.Err()
	}
}

func TestCachedDataSource(t *testing.T) {
	t.Run("should serve fresh entries from cache", func(t *testing.T) {
		stub := &stubSource{}
		c := NewCachedDataSource(stub, time.Minute)

		first, err := c.FetchMeasurement(context.Background(), berlin)
		require.NoError(t, err)
		second, err := c.FetchMeasurement(context.Background(), berlin)
		require.NoError(t, err)

		assert.Equal(t, first, second)
		assert.Equal(t, int32(1), stub.calls.Load())

		hits, misses := c.CacheStats()
		assert.Equal(t, 1, hits)
		assert.Equal(t, 1, misses)
	})

	t.Run("should key entries by station", func(t *testing.T) {
		stub := &stubSource{}
		c := NewCachedDataSource(stub, time.Minute)

		b, err := c.FetchMeasurement(context.Background(), berlin)
		require.NoError(t, err)
		tk, err := c.FetchMeasurement(context.Background(), tokyo)
		require.NoError(t, err)

		assert.Equal(t, "Berlin", b.City)
		assert.Equal(t, "Tokyo", tk.City)
		assert.Equal(t, int32(2), stub.calls.Load())
	})

	t.Run("should refetch after expiry", func(t *testing.T) {
		stub := &stubSource{}
		c := NewCachedDataSource(stub, time.Minute)
		now := time.Now()
		c.now = func() time.Time { return now }

		_, err := c.FetchMeasurement(context.Background(), berlin)
		require.NoError(t, err)

		now = now.Add(2 * time.Minute)
		m, err := c.FetchMeasurement(context.Background(), berlin)
		require.NoError(t, err)

		assert.Equal(t, 2.0, m.Temperature)
		assert.Equal(t, int32(2), stub.calls.Load())
	})

	t.Run("should not cache errors", func(t *testing.T) {
		stub := &stubSource{err: errors.New("upstream down")}
		c := NewCachedDataSource(stub, time.Minute)

		_, err := c.FetchMeasurement(context.Background(), berlin)
		assert.Error(t, err)
		_, err = c.FetchMeasurement(context.Background(), berlin)
		assert.Error(t, err)

		assert.Equal(t, int32(2), stub.calls.Load())
	})

	t.Run("should collapse concurrent misses", func(t *testing.T) {
		stub := &stubSource{delay: 50 * time.Millisecond}
		c := NewCachedDataSource(stub, time.Minute)

		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				m, err := c.FetchMeasurement(context.Background(), berlin)
				assert.NoError(t, err)
				assert.Equal(t, "Berlin", m.City)
			}()
		}
		wg.Wait()

		assert.Equal(t, int32(1), stub.calls.Load())
	})

	t.Run("should finish a shared fetch when its first caller leaves", func(t *testing.T) {
		upstream := &gatedSource{release: make(chan struct{})}
		c := NewCachedDataSource(upstream, time.Minute)

		leaderCtx, cancelLeader := context.WithCancel(context.Background())
		leaderErr := make(chan error, 1)
		go func() {
			_, err := c.FetchMeasurement(leaderCtx, berlin)
			leaderErr <- err
		}()
		require.Eventually(t, func() bool { return upstream.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

		type result struct {
			m   models.Measurement
			err error
		}
		follower := make(chan result, 1)
		go func() {
			m, err := c.FetchMeasurement(context.Background(), berlin)
			follower <- result{m, err}
		}()
		// give the follower time to join the in-flight fetch
		time.Sleep(20 * time.Millisecond)

		cancelLeader()
		select {
		case err := <-leaderErr:
			assert.ErrorIs(t, err, context.Canceled)
		case <-time.After(time.Second):
			t.Fatal("leader kept waiting after its context ended")
		}

		close(upstream.release)
		select {
		case res := <-follower:
			require.NoError(t, res.err)
			assert.Equal(t, "Berlin", res.m.City)
		case <-time.After(time.Second):
			t.Fatal("follower never received the shared result")
		}
		assert.Equal(t, int32(1), upstream.calls.Load())
	})

	t.Run("should mark its name", func(t *testing.T) {
		assert.Equal(t, "Stub [Cached]", NewCachedDataSource(&stubSource{}, time.Minute).Name())
	})
}

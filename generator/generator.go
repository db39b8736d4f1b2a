package generator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"weather-stream/datasource"
	"weather-stream/models"
)

// DefaultInterval is the tick period used when Config.Interval is zero
const DefaultInterval = 1000 * time.Millisecond

var (
	// ErrSinkClosed is reported by a Sink whose connection is no longer open.
	// The generator treats it as a silent skip.
	ErrSinkClosed = errors.New("sink closed")

	ErrAlreadyStarted = errors.New("generator already started")
	ErrCanceled       = errors.New("generator canceled")
)

// State is the lifecycle state of a generator
type State int32

const (
	StateCreated State = iota
	StateRunning
	StateCanceled
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateRunning:
		return "running"
	case StateCanceled:
		return "canceled"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Sink receives encoded events. It is the generator's owning connection.
type Sink interface {
	Send(ctx context.Context, payload []byte) error
}

// Config tunes a generator
type Config struct {
	// Interval between ticks
	Interval time.Duration
	// FetchTimeout bounds a single source call; defaults to Interval
	FetchTimeout time.Duration
	// Label identifies the generator in log lines
	Label string
	// Verbose logs every delivered event
	Verbose bool
	// Pick returns a uniform index in [0,n); defaults to math/rand/v2
	Pick func(n int) int
	// OnSent is called after each successful delivery
	OnSent func(models.Measurement)
}

// Stats are the per-generator delivery counters
type Stats struct {
	Ticks   uint64 `json:"ticks"`
	Sent    uint64 `json:"sent"`
	Skipped uint64 `json:"skipped"`
	Failed  uint64 `json:"failed"`
}

// Generator produces one measurement per tick for a single connection and
// pushes it through that connection's Sink. Ticks run strictly in sequence
// on one goroutine.
type Generator struct {
	source   datasource.DataSource
	stations *models.Registry
	sink     Sink

	interval     time.Duration
	fetchTimeout time.Duration
	label        string
	verbose      bool
	pick         func(n int) int
	onSent       func(models.Measurement)

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}

	ticks   atomic.Uint64
	sent    atomic.Uint64
	skipped atomic.Uint64
	failed  atomic.Uint64
}

// New creates a generator in the Created state
func New(cfg Config, source datasource.DataSource, stations *models.Registry, sink Sink) *Generator {
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	fetchTimeout := cfg.FetchTimeout
	if fetchTimeout <= 0 {
		fetchTimeout = interval
	}
	pick := cfg.Pick
	if pick == nil {
		pick = rand.IntN
	}

	return &Generator{
		source:       source,
		stations:     stations,
		sink:         sink,
		interval:     interval,
		fetchTimeout: fetchTimeout,
		label:        cfg.Label,
		verbose:      cfg.Verbose,
		pick:         pick,
		onSent:       cfg.OnSent,
		state:        StateCreated,
		done:         make(chan struct{}),
	}
}

// Start moves the generator from Created to Running and schedules the first
// tick one interval from now
func (g *Generator) Start(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case StateRunning:
		return ErrAlreadyStarted
	case StateCanceled:
		return ErrCanceled
	}

	runCtx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	g.state = StateRunning

	go g.run(runCtx)
	return nil
}

// Cancel moves the generator to Canceled without waiting for an in-flight
// tick. Sends attempted after Cancel see a canceled context.
func (g *Generator) Cancel() {
	g.mu.Lock()
	defer g.mu.Unlock()

	switch g.state {
	case StateCreated:
		close(g.done)
	case StateRunning:
		g.cancel()
	}
	g.state = StateCanceled
}

// Wait blocks until the generator loop has exited. It only returns once
// the generator has been canceled.
func (g *Generator) Wait() {
	<-g.done
}

// Stop cancels the generator and waits for its loop to exit. After Stop
// returns no further sends happen.
func (g *Generator) Stop() {
	g.Cancel()
	g.Wait()
}

// State returns the current lifecycle state
func (g *Generator) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// Stats returns a snapshot of the delivery counters
func (g *Generator) Stats() Stats {
	return Stats{
		Ticks:   g.ticks.Load(),
		Sent:    g.sent.Load(),
		Skipped: g.skipped.Load(),
		Failed:  g.failed.Load(),
	}
}

func (g *Generator) run(ctx context.Context) {
	defer close(g.done)

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.tick(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// tick produces and delivers a single event. Failures are logged and never
// end the loop.
func (g *Generator) tick(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	g.ticks.Add(1)

	station := g.stations.At(g.pick(g.stations.Len()))

	defer func() {
		if r := recover(); r != nil {
			g.fail(ctx, station, fmt.Errorf("panic: %v", r))
		}
	}()

	fetchCtx, cancel := context.WithTimeout(ctx, g.fetchTimeout)
	defer cancel()

	m, err := g.source.FetchMeasurement(fetchCtx, station)
	if err != nil {
		g.fail(ctx, station, fmt.Errorf("fetch from %s: %w", g.source.Name(), err))
		return
	}
	if err := m.Validate(); err != nil {
		g.fail(ctx, station, err)
		return
	}

	payload, err := m.Encode()
	if err != nil {
		g.fail(ctx, station, err)
		return
	}

	if err := g.sink.Send(ctx, payload); err != nil {
		if errors.Is(err, ErrSinkClosed) {
			g.skipped.Add(1)
			return
		}
		g.fail(ctx, station, fmt.Errorf("send: %w", err))
		return
	}

	g.sent.Add(1)
	if g.verbose {
		log.Printf("[%s] Sent %s", g.label, payload)
	}
	if g.onSent != nil {
		g.onSent(m)
	}
}

func (g *Generator) fail(ctx context.Context, station models.Station, err error) {
	// errors caused by our own cancellation are not failures
	if ctx.Err() != nil {
		g.skipped.Add(1)
		return
	}
	g.failed.Add(1)
	log.Printf("[%s] Error generating event for %s: %v", g.label, station.Name, err)
}

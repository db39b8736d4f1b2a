package stream

import (
	"context"
	"errors"
	"log"
	"net"
	"net/http"
	"sort"
	"sync"
	"time"

	"weather-stream/datasource"
	"weather-stream/generator"
	"weather-stream/models"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Clients never send anything meaningful; anything larger is a protocol error.
const maxMessageSize = 512

// Config holds connection manager settings
type Config struct {
	// IdleTimeout closes a connection that has sent nothing, not even a
	// pong, for this long. Zero disables it.
	IdleTimeout time.Duration
	// WriteTimeout bounds every frame write
	WriteTimeout time.Duration
	// Generator is the template for each connection's generator
	Generator generator.Config
}

// ConnectionInfo describes one live connection
type ConnectionInfo struct {
	ID         string          `json:"id"`
	RemoteAddr string          `json:"remoteAddr"`
	AcceptedAt time.Time       `json:"acceptedAt"`
	State      string          `json:"state"`
	Stats      generator.Stats `json:"stats"`
}

// Manager accepts WebSocket connections, binds each to a fresh generator and
// tears both down together
type Manager struct {
	cfg      Config
	source   datasource.DataSource
	stations *models.Registry
	upgrader websocket.Upgrader

	ctx    context.Context
	cancel context.CancelFunc

	mu           sync.RWMutex
	conns        map[uuid.UUID]*Connection
	shuttingDown bool
	observer     func(models.Measurement)

	handlers sync.WaitGroup
}

// NewManager creates a connection manager
func NewManager(cfg Config, source datasource.DataSource, stations *models.Registry) *Manager {
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Manager{
		cfg:      cfg,
		source:   source,
		stations: stations,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		ctx:    ctx,
		cancel: cancel,
		conns:  make(map[uuid.UUID]*Connection),
	}
}

// SetEventObserver registers a callback for every delivered measurement
func (m *Manager) SetEventObserver(fn func(models.Measurement)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observer = fn
}

// ServeWS upgrades the request and streams measurements until the
// connection closes. It blocks for the lifetime of the connection.
func (m *Manager) ServeWS(w http.ResponseWriter, r *http.Request) {
	m.mu.Lock()
	if m.shuttingDown {
		m.mu.Unlock()
		http.Error(w, "server shutting down", http.StatusServiceUnavailable)
		return
	}
	m.handlers.Add(1)
	m.mu.Unlock()
	defer m.handlers.Done()

	ws, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied with an HTTP error
		log.Printf("WebSocket upgrade failed for %s: %v", r.RemoteAddr, err)
		return
	}

	c := newConnection(ws, m.cfg.WriteTimeout)

	genCfg := m.cfg.Generator
	genCfg.Label = c.ID.String()
	genCfg.OnSent = m.notify
	c.gen = generator.New(genCfg, m.source, m.stations, c)

	total, ok := m.register(c)
	if !ok {
		c.goingAway()
		c.close()
		return
	}
	log.Printf("[+] Client connected: %s from %s (total: %d)", c.ID, c.RemoteAddr, total)

	if err := c.gen.Start(m.ctx); err != nil {
		// canceled by a concurrent shutdown
		m.release(c, websocket.CloseGoingAway, err.Error())
		return
	}

	code, reason := m.readPump(c)
	m.release(c, code, reason)
}

// register adds c to the registry unless the manager is shutting down
func (m *Manager) register(c *Connection) (int, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.shuttingDown {
		return len(m.conns), false
	}
	m.conns[c.ID] = c
	return len(m.conns), true
}

// release stops the connection's generator, closes the socket and only then
// drops the connection from the registry
func (m *Manager) release(c *Connection, code int, reason string) {
	c.close()

	m.mu.Lock()
	delete(m.conns, c.ID)
	remaining := len(m.conns)
	m.mu.Unlock()

	stats := c.gen.Stats()
	log.Printf("[-] Client disconnected: %s code=%d reason=%q sent=%d failed=%d (remaining: %d)",
		c.ID, code, reason, stats.Sent, stats.Failed, remaining)
}

// readPump discards inbound frames and keeps the idle deadline fresh. It
// returns the close code and reason once the connection ends.
func (m *Manager) readPump(c *Connection) (int, string) {
	ws := c.conn
	ws.SetReadLimit(maxMessageSize)
	m.refreshDeadline(ws)
	ws.SetPongHandler(func(string) error {
		m.refreshDeadline(ws)
		return nil
	})

	stop := m.keepalive(c)
	defer stop()

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			return closeDetails(err)
		}
		m.refreshDeadline(ws)
	}
}

func (m *Manager) refreshDeadline(ws *websocket.Conn) {
	if m.cfg.IdleTimeout <= 0 {
		return
	}
	_ = ws.SetReadDeadline(time.Now().Add(m.cfg.IdleTimeout))
}

// keepalive pings the peer twice per idle window so a responsive client
// never hits the idle timeout
func (m *Manager) keepalive(c *Connection) func() {
	if m.cfg.IdleTimeout <= 0 {
		return func() {}
	}

	period := m.cfg.IdleTimeout / 2
	stop := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := c.ping(); err != nil {
					return
				}
			case <-stop:
				return
			}
		}
	}()

	return func() {
		close(stop)
		<-done
	}
}

func (m *Manager) notify(meas models.Measurement) {
	m.mu.RLock()
	fn := m.observer
	m.mu.RUnlock()
	if fn != nil {
		fn(meas)
	}
}

// closeDetails maps a read error to a close code and reason for logging
func closeDetails(err error) (int, string) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return websocket.CloseGoingAway, "idle timeout"
	}
	return websocket.CloseAbnormalClosure, err.Error()
}

// Source returns the data source feeding every generator
func (m *Manager) Source() datasource.DataSource {
	return m.source
}

// Connections returns the number of registered connections
func (m *Manager) Connections() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.conns)
}

// ActiveGenerators returns the number of generators currently running
func (m *Manager) ActiveGenerators() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	n := 0
	for _, c := range m.conns {
		if c.gen.State() == generator.StateRunning {
			n++
		}
	}
	return n
}

// Snapshot describes every live connection, oldest first
func (m *Manager) Snapshot() []ConnectionInfo {
	m.mu.RLock()
	infos := make([]ConnectionInfo, 0, len(m.conns))
	for _, c := range m.conns {
		infos = append(infos, ConnectionInfo{
			ID:         c.ID.String(),
			RemoteAddr: c.RemoteAddr,
			AcceptedAt: c.AcceptedAt,
			State:      c.gen.State().String(),
			Stats:      c.gen.Stats(),
		})
	}
	m.mu.RUnlock()

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].AcceptedAt.Before(infos[j].AcceptedAt)
	})
	return infos
}

// Shutdown closes every connection with a going-away frame and waits for
// their handlers to finish or ctx to expire. New connections are refused.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	m.shuttingDown = true
	conns := make([]*Connection, 0, len(m.conns))
	for _, c := range m.conns {
		conns = append(conns, c)
	}
	m.mu.Unlock()

	log.Printf("Closing %d stream connections", len(conns))
	for _, c := range conns {
		c.goingAway()
		c.close()
	}
	m.cancel()

	done := make(chan struct{})
	go func() {
		m.handlers.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"time"

	"weather-stream/cache"
	"weather-stream/models"
	"weather-stream/stream"

	"github.com/gin-gonic/gin"
)

// Server is the HTTP front of the service. Every path not claimed by the
// JSON API is a WebSocket stream endpoint.
type Server struct {
	router   *gin.Engine
	server   *http.Server
	manager  *stream.Manager
	stations *models.Registry
	latest   *LatestStore
	started  time.Time
}

// NewServer creates a new API server and subscribes the latest-readings
// store to the manager's deliveries
func NewServer(manager *stream.Manager, stations *models.Registry, latest *LatestStore) *Server {
	router := gin.New()
	router.Use(gin.Recovery())

	s := &Server{
		router:   router,
		manager:  manager,
		stations: stations,
		latest:   latest,
		started:  time.Now(),
	}
	s.server = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	manager.SetEventObserver(latest.Record)
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.Group("/api")
	{
		api.GET("/health", s.handleHealthCheck)
		api.GET("/stations", s.handleGetStations)
		api.GET("/stats", s.handleGetStats)
		api.GET("/schema", s.handleGetSchema)
		api.GET("/weather/latest", s.handleGetLatest)
		api.GET("/weather/location/:station", s.handleGetLatestByStation)
	}

	// Wildcard stream endpoint
	s.router.NoRoute(s.handleStream)
}

// Handler exposes the router, mainly for tests
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start serves on an already bound listener until Shutdown
func (s *Server) Start(ln net.Listener) error {
	log.Printf("Weather stream server running at ws://%s", ln.Addr())
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server stopped: %w", err)
	}
	return nil
}

// Shutdown stops accepting requests and then closes every stream
func (s *Server) Shutdown(ctx context.Context) error {
	httpErr := s.server.Shutdown(ctx)
	streamErr := s.manager.Shutdown(ctx)
	return errors.Join(httpErr, streamErr)
}

// handleStream upgrades any unmatched GET to a measurement stream
func (s *Server) handleStream(c *gin.Context) {
	if c.Request.Method != http.MethodGet {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "method not allowed"})
		return
	}
	s.manager.ServeWS(c.Writer, c.Request)
}

// handleHealthCheck provides a simple health check endpoint
func (s *Server) handleHealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "ok",
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) handleGetStations(c *gin.Context) {
	stations := s.stations.Stations()
	c.JSON(http.StatusOK, gin.H{
		"stations": stations,
		"count":    len(stations),
	})
}

func (s *Server) handleGetStats(c *gin.Context) {
	source := s.manager.Source()
	stats := gin.H{
		"connections":      s.manager.Connections(),
		"activeGenerators": s.manager.ActiveGenerators(),
		"uptimeSeconds":    int64(time.Since(s.started).Seconds()),
		"source":           source.Name(),
		"clients":          s.manager.Snapshot(),
	}
	if cached, ok := source.(*cache.CachedDataSource); ok {
		hits, misses := cached.CacheStats()
		stats["cache"] = gin.H{"hits": hits, "misses": misses}
	}
	c.JSON(http.StatusOK, stats)
}

func (s *Server) handleGetSchema(c *gin.Context) {
	c.JSON(http.StatusOK, models.Schema())
}

func (s *Server) handleGetLatest(c *gin.Context) {
	readings := s.latest.All()
	c.JSON(http.StatusOK, gin.H{
		"data":  readings,
		"count": len(readings),
	})
}

// handleGetLatestByStation returns the last reading delivered for a station
func (s *Server) handleGetLatestByStation(c *gin.Context) {
	station := c.Param("station")
	if _, known := s.stations.Lookup(station); !known {
		c.JSON(http.StatusNotFound, gin.H{
			"error": fmt.Sprintf("Unknown station: %s", station),
		})
		return
	}

	m, exists := s.latest.Get(station)
	if !exists {
		c.JSON(http.StatusNotFound, gin.H{
			"error": fmt.Sprintf("No weather data found for station: %s", station),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"location":  station,
		"data":      m,
		"timestamp": time.Now(),
	})
}

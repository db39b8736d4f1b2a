package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"weather-stream/api"
	"weather-stream/cache"
	"weather-stream/config"
	"weather-stream/datasource"
	"weather-stream/generator"
	"weather-stream/logging"
	"weather-stream/models"
	"weather-stream/stream"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"
)

func main() {
	// Load environment variables from .env file
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: Error loading .env file: %v", err)
	}

	// Parse command line arguments
	configFile := flag.String("config", "config.yaml", "Path to configuration file")
	port := flag.Int("port", 0, "Port to listen on (overrides configuration)")
	verbose := flag.Bool("verbose", false, "Log every event sent to clients")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if *port > 0 {
		cfg.Server.Port = *port
	}

	logCloser := logging.Setup(cfg.Log)
	defer logCloser.Close()

	stations, err := models.NewRegistry(cfg.Stations)
	if err != nil {
		log.Fatalf("Invalid station registry: %v", err)
	}

	source := buildSource(cfg.Source)
	log.Printf("Using %s source for stations %s, one event every %s per client",
		source.Name(), strings.Join(stations.Names(), ", "), cfg.Generator.Interval)

	manager := stream.NewManager(stream.Config{
		IdleTimeout:  cfg.Server.IdleTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		Generator: generator.Config{
			Interval: cfg.Generator.Interval,
			Verbose:  *verbose,
		},
	}, source, stations)

	server := api.NewServer(manager, stations, api.NewLatestStore())

	// Bind synchronously so an unavailable port aborts startup
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.Port))
	if err != nil {
		log.Fatalf("Failed to listen on port %d: %v", cfg.Server.Port, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Start(ln)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Printf("Server stopped with error: %v", err)
		return
	}
	log.Println("Shutdown complete")
}

// buildSource creates the configured measurement source chain
func buildSource(cfg config.SourceConfig) datasource.DataSource {
	if cfg.Kind != config.SourceOpenMeteo {
		return datasource.NewSimulatedSource()
	}

	var source datasource.DataSource = datasource.NewOpenMeteoSource(cfg.BaseURL, cfg.Timeout)

	// Apply rate limiting if enabled
	if cfg.RateLimit > 0 {
		source = datasource.NewRateLimitedSource(source, cfg.RateLimit, cfg.Burst)
		log.Printf("Applied rate limiting to %s: %.2f req/s, burst %d", source.Name(), cfg.RateLimit, cfg.Burst)
	}

	// Cache in front of the limiter so hits never wait for a token
	if cfg.CacheTTL > 0 {
		source = cache.NewCachedDataSource(source, cfg.CacheTTL)
	}
	return source
}

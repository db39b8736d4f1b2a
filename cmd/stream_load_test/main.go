package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sync"
	"time"

	"weather-stream/models"

	"github.com/gorilla/websocket"
)

// clientResult summarizes what one client saw
type clientResult struct {
	events  int
	invalid int
	maxGap  time.Duration
	connErr error
}

func main() {
	// Parse command-line flags
	url := flag.String("url", "ws://localhost:8765/", "Stream endpoint")
	clients := flag.Int("clients", 20, "Number of concurrent clients")
	duration := flag.Duration("duration", 10*time.Second, "How long each client stays connected")
	interval := flag.Duration("interval", time.Second, "Expected tick interval of the server")
	flag.Parse()

	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	stations := models.DefaultRegistry()

	fmt.Printf("Testing stream fan-out with:\n")
	fmt.Printf("- Endpoint: %s\n", *url)
	fmt.Printf("- Concurrent clients: %d\n", *clients)
	fmt.Printf("- Duration: %s\n", *duration)
	fmt.Println("Starting test...")

	startTime := time.Now()

	var wg sync.WaitGroup
	results := make([]clientResult, *clients)

	// Launch concurrent clients
	for i := 0; i < *clients; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			results[id] = runClient(ctx, *url, stations)
			log.Printf("Client %d - received %d events (%d invalid), max gap %s",
				id, results[id].events, results[id].invalid, results[id].maxGap.Round(time.Millisecond))
		}(i)
	}

	wg.Wait()
	totalTime := time.Since(startTime)

	total, invalid, failed := 0, 0, 0
	var worstGap time.Duration
	for _, r := range results {
		total += r.events
		invalid += r.invalid
		if r.connErr != nil {
			failed++
		}
		if r.maxGap > worstGap {
			worstGap = r.maxGap
		}
	}

	expectedPerClient := int(duration.Seconds() / interval.Seconds())

	fmt.Println("\nTest completed!")
	fmt.Printf("Total time: %.2f seconds\n", totalTime.Seconds())
	fmt.Printf("Total events received: %d (%d invalid)\n", total, invalid)
	fmt.Printf("Expected per client: ~%d, observed average: %.1f\n", expectedPerClient, float64(total)/float64(*clients))
	fmt.Printf("Worst inter-arrival gap: %s\n", worstGap.Round(time.Millisecond))
	fmt.Printf("Clients with connection errors: %d\n", failed)

	if invalid > 0 || failed > 0 || worstGap > 2*(*interval) {
		fmt.Println("\n⚠️ WARNING: stream did not behave as expected")
	} else {
		fmt.Println("\n✅ Every client received its own steady stream.")
	}
}

// runClient connects, reads events until ctx ends and validates each one
func runClient(ctx context.Context, url string, stations *models.Registry) clientResult {
	var res clientResult

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		res.connErr = err
		return res
	}
	defer conn.Close()

	// Unblock the read when the test window ends
	go func() {
		<-ctx.Done()
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "load test done")
		conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		conn.SetReadDeadline(time.Now())
	}()

	last := time.Now()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				res.connErr = err
			}
			return res
		}

		now := time.Now()
		if gap := now.Sub(last); res.events > 0 && gap > res.maxGap {
			res.maxGap = gap
		}
		last = now
		res.events++

		m, err := models.DecodeMeasurement(data)
		if err != nil || m.Validate() != nil {
			res.invalid++
			continue
		}
		if _, ok := stations.Lookup(m.City); !ok {
			res.invalid++
		}
	}
}

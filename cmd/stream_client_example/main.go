package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"time"

	"weather-stream/models"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

func main() {
	fmt.Println("Weather Stream Client Example")
	fmt.Println("=============================")

	url := flag.String("url", "ws://localhost:8765/", "Stream endpoint")
	count := flag.Int("count", 10, "Number of events to receive (0 for unlimited)")
	flag.Parse()

	fmt.Printf("Connecting to %s...\n", *url)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		fmt.Printf("Error connecting: %v\n", err)
		os.Exit(1)
	}
	defer conn.Close()

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	events := make(chan models.Measurement)
	errs := make(chan error, 1)
	go func() {
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				errs <- err
				return
			}
			m, err := models.DecodeMeasurement(data)
			if err != nil {
				fmt.Printf("Skipping malformed message: %v\n", err)
				continue
			}
			events <- m
		}
	}()

	received := 0
	last := time.Now()
loop:
	for *count == 0 || received < *count {
		select {
		case m := <-events:
			received++
			pretty, _ := json.MarshalIndent(m, "", "  ")
			fmt.Printf("\nEvent #%d (+%s):\n%s\n", received, time.Since(last).Round(time.Millisecond), pretty)
			last = time.Now()
		case err := <-errs:
			fmt.Printf("Connection closed: %v\n", err)
			return
		case <-interrupt:
			fmt.Println("\nInterrupted")
			break loop
		}
	}

	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "done")
	conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	fmt.Printf("\nReceived %d events\n", received)
}

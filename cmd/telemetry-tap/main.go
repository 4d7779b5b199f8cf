// Telemetry Tap — a command-line viewer for the vehicle telemetry stream.
//
// Configuration via environment variables:
//
//	TELEM_WS_URL     — WebSocket URL of the telemetry server
//	TELEM_SCHEMA_URL — schema resource URL (derived from TELEM_WS_URL when unset)
//	TELEM_WS_PORT    — port override used by URLFromHost
//
// Usage:
//
//	TELEM_WS_URL=ws://localhost:8080/ws go run ./cmd/telemetry-tap
//	go run ./cmd/telemetry-tap -host vehicle.local -type pack_voltage
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"os/signal"
	"time"

	telemetry "github.com/telem-system/go-client"
)

func main() {
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	host := flag.String("host", "", "telemetry server host (overrides TELEM_WS_URL)")
	msgType := flag.String("type", telemetry.TypeAll, "message type to watch")
	asJSON := flag.Bool("json", false, "print messages as JSON lines")
	flag.Parse()

	cfg := telemetry.Config{}
	if *host != "" {
		cfg.URL = telemetry.URLFromHost(*host)
	}

	client, err := telemetry.NewClient(cfg, telemetry.LogErrors(log.Default()))
	if err != nil {
		log.Fatalf("NewClient: %v", err)
	}
	defer client.Destroy()

	client.OnConnectionChange(func(connected bool) {
		if connected {
			log.Println("connected")
		} else {
			log.Printf("connection lost (state %v)", client.State())
		}
	})

	client.Subscribe(*msgType, func(msg telemetry.Message) {
		if *asJSON {
			line, err := json.Marshal(msg)
			if err != nil {
				log.Printf("encode: %v", err)
				return
			}
			os.Stdout.Write(append(line, '\n'))
			return
		}
		log.Printf("[%s] %s %v", msg.Type,
			time.UnixMilli(msg.Time).Format(time.RFC3339Nano), msg.Payload.Fields)
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := client.ForceConnect(ctx); err != nil {
		log.Fatalf("connect: %v", err)
	}

	log.Println("tapping telemetry stream, press Ctrl+C to stop")
	<-ctx.Done()
}

// Package telemetry provides the real-time transport client for the vehicle
// telemetry dashboard.
//
// The client owns a single WebSocket connection to the vehicle-data server,
// decodes inbound frames (binary protobuf or JSON), normalizes them into
// telemetry messages and fans them out to independent subscribers. It keeps
// the connection alive with periodic keepalive probes, recovers from drops
// with exponential backoff, and supports application-driven pause/resume so a
// host UI can suspend live traffic without losing its subscriptions.
//
// Basic usage:
//
//	client, err := telemetry.NewClient(telemetry.Config{
//	    URL: "ws://localhost:8080/ws",
//	}, telemetry.LogErrors(log.Default()))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Destroy()
//
//	unsubscribe := client.Subscribe("pack_voltage", func(msg telemetry.Message) {
//	    log.Printf("pack voltage at %d: %v", msg.Time, msg.Payload.Fields["voltage"])
//	})
//	defer unsubscribe()
//
//	if err := client.ForceConnect(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
// Binary frames are decoded against a protobuf schema fetched from the server
// at startup; until it loads (or if loading fails after its retry budget) the
// client runs JSON-only and drops binary frames.
package telemetry

package telemetry

import (
	"fmt"
	"net/url"
	"os"
	"strings"
)

// Config holds the configuration for a telemetry client.
type Config struct {
	// URL is the WebSocket URL of the vehicle-data server, e.g.
	// "ws://localhost:8080/ws".
	// Fallback: TELEM_WS_URL environment variable.
	URL string

	// SchemaURL is the HTTP resource serving the protobuf schema used to
	// decode binary frames. If empty, it is derived from URL by switching
	// the scheme to http(s) and requesting /telemetry.proto on the same
	// host and port.
	// Fallback: TELEM_SCHEMA_URL environment variable.
	SchemaURL string
}

// resolveConfig fills empty fields from environment variables, derives the
// schema URL and validates required fields.
func resolveConfig(cfg Config) (Config, error) {
	if cfg.URL == "" {
		cfg.URL = os.Getenv("TELEM_WS_URL")
	}
	if cfg.SchemaURL == "" {
		cfg.SchemaURL = os.Getenv("TELEM_SCHEMA_URL")
	}

	if cfg.URL == "" {
		return cfg, fmt.Errorf("URL is required (set in Config or TELEM_WS_URL env)")
	}

	u, err := url.Parse(cfg.URL)
	if err != nil {
		return cfg, fmt.Errorf("invalid URL %q: %w", cfg.URL, err)
	}
	switch u.Scheme {
	case "ws", "wss":
	default:
		return cfg, fmt.Errorf("URL scheme must be ws or wss, got %q", u.Scheme)
	}

	if cfg.SchemaURL == "" {
		cfg.SchemaURL = deriveSchemaURL(u)
	}

	return cfg, nil
}

// deriveSchemaURL maps the websocket endpoint to the schema resource on the
// same host: ws://host:port/ws -> http://host:port/telemetry.proto.
func deriveSchemaURL(ws *url.URL) string {
	scheme := "http"
	if ws.Scheme == "wss" {
		scheme = "https"
	}
	return scheme + "://" + ws.Host + "/telemetry.proto"
}

// URLFromHost builds the conventional endpoint URL for a host ("host" or
// "host:port"), honoring a TELEM_WS_PORT environment override.
func URLFromHost(host string) string {
	if port := os.Getenv("TELEM_WS_PORT"); port != "" {
		if i := strings.LastIndex(host, ":"); i >= 0 {
			host = host[:i]
		}
		host = host + ":" + port
	}
	return "ws://" + host + "/ws"
}

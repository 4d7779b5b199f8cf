package telemetry

import (
	"context"
	"testing"
)

func TestDecodeFrame_TextJSON(t *testing.T) {
	raw, err := decodeFrame([]byte(`{"type":"pack_voltage","payload":{"voltage":75.2}}`), false, nil)
	if err != nil {
		t.Fatalf("decodeFrame() error: %v", err)
	}
	if raw["type"] != "pack_voltage" {
		t.Errorf("type = %v", raw["type"])
	}
}

func TestDecodeFrame_TextMalformed(t *testing.T) {
	if _, err := decodeFrame([]byte(`{"type":`), false, nil); err == nil {
		t.Fatal("decodeFrame() should fail on malformed JSON")
	}
}

func TestDecodeFrame_BinaryWithoutSchemaDropped(t *testing.T) {
	if _, err := decodeFrame([]byte{0x0a, 0x04, 0x63, 0x65, 0x6c, 0x6c}, true, nil); err != errSchemaNotLoaded {
		t.Fatalf("decodeFrame() error = %v, want errSchemaNotLoaded", err)
	}
}

func TestDecodeFrame_BinarySchemaDecode(t *testing.T) {
	dec, err := compileSchema(context.Background(), testSchemaSource)
	if err != nil {
		t.Fatalf("compileSchema() error: %v", err)
	}
	bin := encodeTelemetryFrame(t, dec, "cell", "", map[string]any{"cell1": 3.91})

	raw, err := decodeFrame(bin, true, dec)
	if err != nil {
		t.Fatalf("decodeFrame() error: %v", err)
	}
	if raw["type"] != "cell" {
		t.Errorf("type = %v", raw["type"])
	}
}

func TestDecodeFrame_BinaryFallsBackToJSON(t *testing.T) {
	dec, err := compileSchema(context.Background(), testSchemaSource)
	if err != nil {
		t.Fatalf("compileSchema() error: %v", err)
	}

	// A JSON document arriving on a binary frame fails the schema decode and
	// is recovered through the text fallback.
	raw, err := decodeFrame([]byte(`{"type":"pack_current","current":12.5}`), true, dec)
	if err != nil {
		t.Fatalf("decodeFrame() error: %v", err)
	}
	if raw["type"] != "pack_current" {
		t.Errorf("type = %v", raw["type"])
	}
}

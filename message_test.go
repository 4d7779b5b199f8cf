package telemetry

import (
	"testing"
	"time"
)

var receipt = time.Date(2026, 3, 14, 10, 30, 0, 0, time.UTC)

func TestNormalize_TypePrecedence(t *testing.T) {
	msg := normalize(map[string]any{"type": "pack_voltage"}, "hint", receipt)
	if msg.Type != "pack_voltage" {
		t.Errorf("Type = %q, want explicit type", msg.Type)
	}

	msg = normalize(map[string]any{}, "pack_current", receipt)
	if msg.Type != "pack_current" {
		t.Errorf("Type = %q, want hint", msg.Type)
	}

	msg = normalize(map[string]any{}, "", receipt)
	if msg.Type != TypeUnknown {
		t.Errorf("Type = %q, want %q", msg.Type, TypeUnknown)
	}
}

func TestNormalize_TimePrecedence(t *testing.T) {
	msg := normalize(map[string]any{"time": float64(1700000000123)}, "", receipt)
	if msg.Time != 1700000000123 {
		t.Errorf("numeric time = %d, want 1700000000123", msg.Time)
	}

	// Server-formatted time string.
	msg = normalize(map[string]any{"time": "2026-03-14 10:29:59.500"}, "", receipt)
	want := time.Date(2026, 3, 14, 10, 29, 59, 500_000_000, time.UTC).UnixMilli()
	if msg.Time != want {
		t.Errorf("string time = %d, want %d", msg.Time, want)
	}

	// timestamp is unix seconds.
	msg = normalize(map[string]any{"timestamp": float64(1700000000)}, "", receipt)
	if msg.Time != 1700000000000 {
		t.Errorf("timestamp time = %d, want 1700000000000", msg.Time)
	}

	// Nothing usable: receipt time.
	msg = normalize(map[string]any{"time": "garbage"}, "", receipt)
	if msg.Time != receipt.UnixMilli() {
		t.Errorf("defaulted time = %d, want %d", msg.Time, receipt.UnixMilli())
	}
}

func TestNormalize_PayloadWithFields(t *testing.T) {
	raw := map[string]any{
		"type": "pack_voltage",
		"payload": map[string]any{
			"fields": map[string]any{
				"voltage": map[string]any{"numberValue": 75.2},
			},
		},
	}
	msg := normalize(raw, "", receipt)

	v, ok := msg.Payload.Fields["voltage"].(map[string]any)
	if !ok {
		t.Fatalf("voltage field = %T, want map", msg.Payload.Fields["voltage"])
	}
	if v["numberValue"] != 75.2 {
		t.Errorf("numberValue = %v, want 75.2", v["numberValue"])
	}
}

func TestNormalize_PayloadWithoutFieldsWrapped(t *testing.T) {
	raw := map[string]any{
		"type":    "pack_voltage",
		"payload": map[string]any{"voltage": 75.2},
	}
	msg := normalize(raw, "", receipt)

	if msg.Payload.Fields["voltage"] != 75.2 {
		t.Errorf("Fields[voltage] = %v, want 75.2", msg.Payload.Fields["voltage"])
	}
}

func TestNormalize_NoPayloadTakesTopLevel(t *testing.T) {
	raw := map[string]any{
		"type":      "pack_voltage",
		"time":      float64(1700000000000),
		"voltage":   75.2,
		"timestamp": float64(1700000000),
	}
	msg := normalize(raw, "", receipt)

	if msg.Payload.Fields["voltage"] != 75.2 {
		t.Errorf("Fields[voltage] = %v, want 75.2", msg.Payload.Fields["voltage"])
	}
	if _, ok := msg.Payload.Fields["type"]; ok {
		t.Error("type must not leak into fields")
	}
	if _, ok := msg.Payload.Fields["time"]; ok {
		t.Error("time must not leak into fields")
	}
	// timestamp stays a field; it is payload data on the wire.
	if _, ok := msg.Payload.Fields["timestamp"]; !ok {
		t.Error("timestamp should remain in fields")
	}
}

func TestIsPong(t *testing.T) {
	if !isPong(Message{Type: "pong"}) {
		t.Error("top-level pong not recognized")
	}
	if !isPong(Message{Type: TypeUnknown, Payload: Payload{Fields: map[string]any{"type": "pong"}}}) {
		t.Error("nested pong not recognized")
	}
	if isPong(Message{Type: "pack_voltage"}) {
		t.Error("telemetry message misclassified as pong")
	}
}

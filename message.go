package telemetry

import "time"

// TypeAll is the wildcard subscription key. Wildcard subscribers receive a
// message only when no exact-type subscriber exists for it.
const TypeAll = "*"

// TypeUnknown is assigned to messages that carry no type and arrive with no
// type hint.
const TypeUnknown = "unknown"

const (
	typePing = "ping"
	typePong = "pong"
)

// serverTimeLayout is the timestamp format the vehicle-data server puts in
// the top-level time field.
const serverTimeLayout = "2006-01-02 15:04:05.000"

// Message is the normalized telemetry record delivered to subscribers.
type Message struct {
	Type    string
	Time    int64 // epoch milliseconds
	Payload Payload
}

// Payload carries the message's named values. Values decoded from binary
// frames appear in their kind-keyed wire form, e.g.
// map[string]any{"numberValue": 75.2}, matching what JSON producers send.
type Payload struct {
	Fields map[string]any
}

// normalize canonicalizes a decoded frame into a Message. The hint supplies
// the type when the frame itself carries none; receipt supplies the time when
// neither a usable time nor timestamp is present.
func normalize(raw map[string]any, hint string, receipt time.Time) Message {
	msg := Message{Type: TypeUnknown}

	if t, ok := raw["type"].(string); ok && t != "" {
		msg.Type = t
	} else if hint != "" {
		msg.Type = hint
	}

	msg.Time = resolveTime(raw, receipt)
	msg.Payload = resolvePayload(raw)
	return msg
}

// resolveTime applies the time precedence: explicit time, else timestamp,
// else receipt time. The server sends time as a formatted string and
// timestamp as unix seconds; JSON producers may send time as epoch ms.
func resolveTime(raw map[string]any, receipt time.Time) int64 {
	switch v := raw["time"].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case string:
		if t, err := time.Parse(serverTimeLayout, v); err == nil {
			return t.UnixMilli()
		}
		if t, err := time.Parse(time.RFC3339, v); err == nil {
			return t.UnixMilli()
		}
	}
	if v, ok := raw["timestamp"].(float64); ok {
		return int64(v) * 1000
	}
	return receipt.UnixMilli()
}

func resolvePayload(raw map[string]any) Payload {
	if p, ok := raw["payload"].(map[string]any); ok {
		if f, ok := p["fields"].(map[string]any); ok {
			return Payload{Fields: f}
		}
		return Payload{Fields: p}
	}

	// No payload object: everything except type/time becomes a field.
	fields := make(map[string]any, len(raw))
	for k, v := range raw {
		if k == "type" || k == "time" {
			continue
		}
		fields[k] = v
	}
	return Payload{Fields: fields}
}

// isPong reports whether the message is a keepalive response. Pongs are
// consumed by the keepalive monitor and never reach subscribers.
func isPong(msg Message) bool {
	if msg.Type == typePong {
		return true
	}
	t, ok := msg.Payload.Fields["type"].(string)
	return ok && t == typePong
}

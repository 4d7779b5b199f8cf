package telemetry

import (
	"encoding/json"
	"errors"
)

var errSchemaNotLoaded = errors.New("schema not loaded, binary frame dropped")

// decodeFrame converts one raw inbound frame into a dynamic map. Text frames
// are parsed as JSON. Binary frames go through the schema decoder, falling
// back to a UTF-8 JSON parse when schema decoding fails; before the schema
// has loaded they are dropped outright. Decode failures are per-frame and
// never affect connection state.
func decodeFrame(data []byte, binary bool, schema *schemaDecoder) (map[string]any, error) {
	if !binary {
		return decodeJSON(data)
	}
	if schema == nil {
		return nil, errSchemaNotLoaded
	}
	raw, err := schema.decode(data)
	if err != nil {
		return decodeJSON(data)
	}
	return raw, nil
}

func decodeJSON(data []byte) (map[string]any, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return raw, nil
}

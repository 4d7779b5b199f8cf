package telemetry

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/bufbuild/protocompile"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/reflect/protoreflect"
	"google.golang.org/protobuf/types/dynamicpb"
)

const (
	schemaFileName       = "telemetry.proto"
	telemetryMessageName = "TelemetryMessage"
)

// schemaLoader fetches the protobuf schema the server publishes and compiles
// it into a decoder. Loading is retried a bounded number of times; until it
// succeeds the client runs JSON-only and drops binary frames.
type schemaLoader struct {
	url     string
	retries int
	delay   time.Duration
	clk     clock.Clock
	httpc   *http.Client
}

func (l *schemaLoader) load(ctx context.Context) (*schemaDecoder, error) {
	var lastErr error
	for attempt := 0; attempt < l.retries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-l.clk.After(l.delay):
			}
		}
		dec, err := l.fetch(ctx)
		if err == nil {
			return dec, nil
		}
		lastErr = err
	}
	return nil, lastErr
}

func (l *schemaLoader) fetch(ctx context.Context) (*schemaDecoder, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, l.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := l.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch schema: %s", resp.Status)
	}
	src, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	return compileSchema(ctx, string(src))
}

// schemaDecoder decodes binary TelemetryMessage frames through a descriptor
// compiled at runtime.
type schemaDecoder struct {
	desc protoreflect.MessageDescriptor
}

func compileSchema(ctx context.Context, source string) (*schemaDecoder, error) {
	compiler := protocompile.Compiler{
		Resolver: protocompile.WithStandardImports(&protocompile.SourceResolver{
			Accessor: protocompile.SourceAccessorFromMap(map[string]string{
				schemaFileName: source,
			}),
		}),
	}
	files, err := compiler.Compile(ctx, schemaFileName)
	if err != nil {
		return nil, fmt.Errorf("compile schema: %w", err)
	}

	msgs := files[0].Messages()
	md := msgs.ByName(protoreflect.Name(telemetryMessageName))
	if md == nil {
		if msgs.Len() == 0 {
			return nil, fmt.Errorf("schema %s declares no messages", schemaFileName)
		}
		md = msgs.Get(0)
	}
	return &schemaDecoder{desc: md}, nil
}

// decode unmarshals one binary frame into the same dynamic map shape the JSON
// path produces, so normalization treats both formats identically.
func (d *schemaDecoder) decode(bin []byte) (map[string]any, error) {
	msg := dynamicpb.NewMessage(d.desc)
	if err := proto.Unmarshal(bin, msg); err != nil {
		return nil, err
	}

	fields := d.desc.Fields()
	out := make(map[string]any, fields.Len())
	for i := 0; i < fields.Len(); i++ {
		fd := fields.Get(i)
		if !msg.Has(fd) {
			continue
		}
		switch {
		case fd.Kind() == protoreflect.StringKind && !fd.IsList():
			out[string(fd.Name())] = msg.Get(fd).String()
		case fd.Kind() == protoreflect.MessageKind && fd.Message().FullName() == "google.protobuf.Struct":
			out[string(fd.Name())] = map[string]any{
				"fields": structFields(msg.Get(fd).Message()),
			}
		}
	}
	return out, nil
}

// structFields converts a google.protobuf.Struct into kind-keyed wire maps,
// the shape JSON producers send for the same values.
func structFields(m protoreflect.Message) map[string]any {
	fd := m.Descriptor().Fields().ByName("fields")
	out := make(map[string]any)
	m.Get(fd).Map().Range(func(k protoreflect.MapKey, v protoreflect.Value) bool {
		out[k.String()] = wireValue(v.Message())
		return true
	})
	return out
}

func wireValue(m protoreflect.Message) any {
	var out any
	m.Range(func(fd protoreflect.FieldDescriptor, v protoreflect.Value) bool {
		switch fd.Name() {
		case "null_value":
			out = map[string]any{"nullValue": nil}
		case "number_value":
			out = map[string]any{"numberValue": v.Float()}
		case "string_value":
			out = map[string]any{"stringValue": v.String()}
		case "bool_value":
			out = map[string]any{"boolValue": v.Bool()}
		case "struct_value":
			out = map[string]any{"structValue": map[string]any{
				"fields": structFields(v.Message()),
			}}
		case "list_value":
			lf := v.Message().Descriptor().Fields().ByName("values")
			list := v.Message().Get(lf).List()
			vals := make([]any, 0, list.Len())
			for i := 0; i < list.Len(); i++ {
				vals = append(vals, wireValue(list.Get(i).Message()))
			}
			out = map[string]any{"listValue": map[string]any{"values": vals}}
		}
		return true
	})
	return out
}

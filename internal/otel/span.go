package otel

import (
	"context"
	"sort"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// hubEventPrefix namespaces hub event attributes on the connection span.
const hubEventPrefix = "benchhub."

// RecordHubEvent adds a connection lifecycle event to the span carried by ctx. fields
// use the same shape as log fields and become string attributes under the benchhub.
// prefix, in key order. Nothing is recorded for a span that is not recording.
func RecordHubEvent(ctx context.Context, event string, fields map[string]string) {
	if ctx == nil || event == "" {
		return
	}
	span := trace.SpanFromContext(ctx)
	if !span.IsRecording() {
		return
	}
	span.AddEvent(event, trace.WithAttributes(hubEventAttributes(fields)...))
}

func hubEventAttributes(fields map[string]string) []attribute.KeyValue {
	if len(fields) == 0 {
		return nil
	}
	keys := make([]string, 0, len(fields))
	for key := range fields {
		if key != "" {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	attrs := make([]attribute.KeyValue, 0, len(keys))
	for _, key := range keys {
		attrs = append(attrs, attribute.String(hubEventPrefix+key, fields[key]))
	}
	return attrs
}

// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys shared by the epgmerge spans.
const (
	SourceNameKey = "source.name"
	SourceKindKey = "source.kind"
	SourceURLKey  = "source.url"

	SourceChannelsKey   = "source.channels"
	SourceProgrammesKey = "source.programmes"

	MergeChannelsKey   = "merge.channels"
	MergeProgrammesKey = "merge.programmes"
	MergeSourcesKey    = "merge.sources"

	RunIDKey      = "run.id"
	RunOutcomeKey = "run.outcome"

	ErrorTypeKey = "error.type"
)

// SourceAttributes describes the source a span works on.
func SourceAttributes(name, kind, url string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(SourceNameKey, name),
		attribute.String(SourceKindKey, kind),
		attribute.String(SourceURLKey, url),
	}
}

// MergeAttributes summarizes a merge result.
func MergeAttributes(channels, programmes, sources int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(MergeChannelsKey, channels),
		attribute.Int(MergeProgrammesKey, programmes),
		attribute.Int(MergeSourcesKey, sources),
	}
}

// RecordError marks span as failed. A nil error is a no-op.
func RecordError(span trace.Span, err error, errorType string) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	if errorType != "" {
		span.SetAttributes(attribute.String(ErrorTypeKey, errorType))
	}
}

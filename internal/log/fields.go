// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldService   = "service"
	FieldVersion   = "version"
	FieldJobID     = "job_id"
	FieldRequestID = "request_id"
	FieldTraceID   = "trace_id"
	FieldSpanID    = "span_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Guide fields
	FieldSource     = "source"
	FieldSourceKind = "source_kind"
	FieldChannelID  = "channel_id"
	FieldChannels   = "channels"
	FieldProgrammes = "programmes"

	// Path / URL fields
	FieldPath = "path"
	FieldURL  = "url"
)

package types

import "context"

// EventHandler processes one delivered event. The return value only matters
// for request/response dispatch; publish dispatch discards it.
type EventHandler func(ctx context.Context, event map[string]interface{}) (interface{}, error)

// FieldType enumerates the payload field types a contract can require.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldInteger FieldType = "integer"
	FieldBoolean FieldType = "boolean"
	FieldObject  FieldType = "object"
	FieldArray   FieldType = "array"
	FieldAny     FieldType = "any"
)

// Field constrains a single payload field.
type Field struct {
	Type     FieldType `json:"type"`
	Required bool      `json:"required"`
}

// Schema is a declarative field-spec map validated against event payloads.
type Schema map[string]Field

// Contract binds a payload schema (and optionally a response schema) to an
// event type. One contract per event type; re-registration overwrites.
type Contract struct {
	EventType string `json:"event_type"`
	SourceApp string `json:"source_app"`
	Payload   Schema `json:"payload"`
	Response  Schema `json:"response,omitempty"`
}

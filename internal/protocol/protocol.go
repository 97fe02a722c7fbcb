// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package protocol decodes and validates frames sent by chat clients.
package protocol

import (
	"bytes"
	"encoding/json"
	"sync"

	"github.com/invopop/jsonschema"
	"github.com/samber/oops"
	jschema "github.com/santhosh-tekuri/jsonschema/v6"

	"github.com/holomush/todochat/internal/chat"
)

// Client frame types.
const (
	TypeMessage     = "message"
	TypeTypingStart = "typing_start"
	TypeTypingStop  = "typing_stop"
)

// SchemaID is the $id of the client frame schema.
const SchemaID = "https://todochat.holomush.dev/schemas/client-frame.schema.json"

// ClientFrame is the JSON shape of a frame sent by a client.
type ClientFrame struct {
	Type    string `json:"type" jsonschema:"enum=message,enum=typing_start,enum=typing_stop"`
	Message string `json:"message,omitempty" jsonschema:"description=Message text, used when type is message"`
}

// GenerateSchema generates the JSON Schema for ClientFrame.
func GenerateSchema() ([]byte, error) {
	r := jsonschema.Reflector{
		DoNotReference:            true,
		AllowAdditionalProperties: true,
	}
	schema := r.Reflect(&ClientFrame{})
	schema.ID = jsonschema.ID(SchemaID)
	schema.Title = "Chat Client Frame"
	schema.Description = "Frames a chat client sends over the room WebSocket"

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return nil, oops.Code("PROTOCOL_SCHEMA_FAILED").Wrapf(err, "marshal schema")
	}
	return data, nil
}

var compiledSchema = sync.OnceValues(func() (*jschema.Schema, error) {
	data, err := GenerateSchema()
	if err != nil {
		return nil, err
	}
	doc, err := jschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, oops.Code("PROTOCOL_SCHEMA_FAILED").Wrapf(err, "parse schema")
	}

	c := jschema.NewCompiler()
	if err := c.AddResource("client-frame.json", doc); err != nil {
		return nil, oops.Code("PROTOCOL_SCHEMA_FAILED").Wrapf(err, "add schema resource")
	}
	sch, err := c.Compile("client-frame.json")
	if err != nil {
		return nil, oops.Code("PROTOCOL_SCHEMA_FAILED").Wrapf(err, "compile schema")
	}
	return sch, nil
})

// Decode validates data against the client frame schema and converts it to
// a chat event.
func Decode(data []byte) (chat.ClientEvent, error) {
	if len(data) == 0 {
		return nil, oops.Code("PROTOCOL_INVALID_FRAME").Errorf("empty frame")
	}

	sch, err := compiledSchema()
	if err != nil {
		return nil, err
	}

	doc, err := jschema.UnmarshalJSON(bytes.NewReader(data))
	if err != nil {
		return nil, oops.Code("PROTOCOL_INVALID_FRAME").Wrapf(err, "invalid JSON")
	}
	if err := sch.Validate(doc); err != nil {
		return nil, oops.Code("PROTOCOL_INVALID_FRAME").Wrapf(err, "schema validation failed")
	}

	var frame ClientFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return nil, oops.Code("PROTOCOL_INVALID_FRAME").Wrapf(err, "decode frame")
	}

	switch frame.Type {
	case TypeMessage:
		return chat.PostEvent{Text: frame.Message}, nil
	case TypeTypingStart:
		return chat.TypingEvent{Typing: true}, nil
	case TypeTypingStop:
		return chat.TypingEvent{Typing: false}, nil
	default:
		return nil, oops.Code("PROTOCOL_INVALID_FRAME").With("type", frame.Type).Errorf("unknown frame type")
	}
}

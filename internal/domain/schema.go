package domain

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrMalformedRecord marks a remote document that cannot be decoded into an
// AgentRecord.
var ErrMalformedRecord = errors.New("malformed agent record")

var recordSchema = jsonschema.MustCompileString("agent.schema.json", agentSchemaJSON())

func agentSchemaJSON() string {
	enum, _ := json.Marshal(voices)
	return `{
  "type": "object",
  "required": ["name", "personality", "bodyColor", "voice"],
  "properties": {
    "id":          {"type": "string", "minLength": 1},
    "name":        {"type": "string"},
    "personality": {"type": "string"},
    "bodyColor":   {"type": "string"},
    "voice":       {"enum": ` + string(enum) + `}
  }
}`
}

// RecordFromFields decodes a remote document body. The document id is
// authoritative; a conflicting "id" field makes the document malformed.
func RecordFromFields(id string, fields map[string]any) (AgentRecord, error) {
	if id == "" {
		return AgentRecord{}, fmt.Errorf("%w: empty document id", ErrMalformedRecord)
	}
	if err := recordSchema.Validate(fields); err != nil {
		return AgentRecord{}, fmt.Errorf("%w: %s: %v", ErrMalformedRecord, id, err)
	}
	if embedded, ok := fields["id"].(string); ok && embedded != id {
		return AgentRecord{}, fmt.Errorf("%w: %s: id field %q does not match", ErrMalformedRecord, id, embedded)
	}

	return AgentRecord{
		ID:          id,
		Name:        fields[string(FieldName)].(string),
		Personality: fields[string(FieldPersonality)].(string),
		BodyColor:   fields[string(FieldBodyColor)].(string),
		Voice:       Voice(fields[string(FieldVoice)].(string)),
	}, nil
}

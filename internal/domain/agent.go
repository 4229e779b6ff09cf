// Package domain holds the agent record model shared by every roster component.
package domain

import (
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
)

// AgentRecord is one configuration entity in the shared directory.
// All fields are plain strings, so == is content equality.
type AgentRecord struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Personality string `json:"personality" yaml:"personality"`
	BodyColor   string `json:"bodyColor" yaml:"bodyColor"`
	Voice       Voice  `json:"voice" yaml:"voice"`
}

// Get returns the value of a single editable field.
func (a AgentRecord) Get(f Field) string {
	switch f {
	case FieldName:
		return a.Name
	case FieldPersonality:
		return a.Personality
	case FieldBodyColor:
		return a.BodyColor
	case FieldVoice:
		return string(a.Voice)
	}
	return ""
}

// With returns a copy of the record with one field replaced. Unknown fields
// leave the record unchanged.
func (a AgentRecord) With(f Field, value string) AgentRecord {
	switch f {
	case FieldName:
		a.Name = value
	case FieldPersonality:
		a.Personality = value
	case FieldBodyColor:
		a.BodyColor = value
	case FieldVoice:
		a.Voice = Voice(value)
	}
	return a
}

// Apply returns a copy of the record with every field of the patch applied.
func (a AgentRecord) Apply(p Patch) AgentRecord {
	for f, v := range p {
		a = a.With(f, v)
	}
	return a
}

// Fields converts the full record into a remote document body.
func (a AgentRecord) Fields() map[string]any {
	return map[string]any{
		"id":                     a.ID,
		string(FieldName):        a.Name,
		string(FieldPersonality): a.Personality,
		string(FieldBodyColor):   a.BodyColor,
		string(FieldVoice):       string(a.Voice),
	}
}

func (a AgentRecord) String() string {
	return fmt.Sprintf("%s (%s)", a.Name, a.ID)
}

// Colors is the palette new agents pick their body color from.
var Colors = []string{
	"#4285f4",
	"#ea4335",
	"#fbbc04",
	"#34a853",
	"#fa7b17",
	"#f538a0",
	"#a142f4",
	"#24c1e0",
}

// Option customizes a record built by NewAgent.
type Option func(*AgentRecord)

// WithName sets the name of a new agent.
func WithName(name string) Option {
	return func(a *AgentRecord) { a.Name = name }
}

// WithPersonality sets the personality of a new agent.
func WithPersonality(p string) Option {
	return func(a *AgentRecord) { a.Personality = p }
}

// WithBodyColor sets the body color of a new agent.
func WithBodyColor(c string) Option {
	return func(a *AgentRecord) { a.BodyColor = c }
}

// WithVoice sets the voice of a new agent.
func WithVoice(v Voice) Option {
	return func(a *AgentRecord) { a.Voice = v }
}

// WithID overrides the generated id.
func WithID(id string) Option {
	return func(a *AgentRecord) { a.ID = id }
}

// NewAgent builds a blank personal agent with a fresh id, a random palette
// color and either the Charon or Aoede voice.
func NewAgent(opts ...Option) AgentRecord {
	voice := VoiceAoede
	if rand.Float64() > 0.5 {
		voice = VoiceCharon
	}
	a := AgentRecord{
		ID:        uuid.NewString(),
		BodyColor: Colors[rand.IntN(len(Colors))],
		Voice:     voice,
	}
	for _, opt := range opts {
		opt(&a)
	}
	return a
}

// Partition names the half of the directory a record lives in.
type Partition string

const (
	PartitionPreset   Partition = "preset"
	PartitionPersonal Partition = "personal"
)

package domain

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAgentRecordWith(t *testing.T) {
	a := AgentRecord{ID: "a1", Name: "Old", Voice: VoiceKore}

	b := a.With(FieldName, "New")
	assert.Equal(t, "New", b.Name)
	assert.Equal(t, "Old", a.Name, "original must be untouched")

	c := a.With(Field("unknown"), "x")
	assert.Equal(t, a, c)
}

func TestAgentRecordApplyAndGet(t *testing.T) {
	a := AgentRecord{ID: "a1"}
	b := a.Apply(Patch{FieldName: "B", FieldVoice: "Puck"})

	assert.Equal(t, "B", b.Get(FieldName))
	assert.Equal(t, "Puck", b.Get(FieldVoice))
	assert.Equal(t, "", b.Get(FieldPersonality))
}

func TestAgentRecordEquality(t *testing.T) {
	a := AgentRecord{ID: "x", Name: "n", Personality: "p", BodyColor: "#fff", Voice: VoicePuck}
	b := a
	assert.True(t, a == b)
	b.Personality = "q"
	assert.False(t, a == b)
}

func TestNewAgent(t *testing.T) {
	a := NewAgent()
	assert.NotEmpty(t, a.ID)
	assert.Contains(t, Colors, a.BodyColor)
	assert.Contains(t, []Voice{VoiceAoede, VoiceCharon}, a.Voice)

	b := NewAgent(WithName("Zed"), WithVoice(VoiceOrus), WithID("fixed"), WithBodyColor("#000"), WithPersonality("dry"))
	assert.Equal(t, AgentRecord{ID: "fixed", Name: "Zed", Personality: "dry", BodyColor: "#000", Voice: VoiceOrus}, b)

	assert.NotEqual(t, NewAgent().ID, NewAgent().ID)
}

func TestVoices(t *testing.T) {
	vs := Voices()
	assert.Len(t, vs, 8)
	vs[0] = "mutated"
	assert.Equal(t, VoiceAoede, Voices()[0])

	v, err := ParseVoice("Zephyr")
	require.NoError(t, err)
	assert.Equal(t, VoiceZephyr, v)

	_, err = ParseVoice("zephyr")
	assert.Error(t, err)
}

func TestPatchMerge(t *testing.T) {
	var p Patch
	p = p.Merge(Patch{FieldName: "A"})
	p = p.Merge(Patch{FieldName: "B", FieldPersonality: "P"})

	assert.Equal(t, Patch{FieldName: "B", FieldPersonality: "P"}, p)
	assert.Equal(t, map[string]any{"name": "B", "personality": "P"}, p.Fields())
}

func TestParseField(t *testing.T) {
	f, err := ParseField("bodyColor")
	require.NoError(t, err)
	assert.Equal(t, FieldBodyColor, f)

	_, err = ParseField("id")
	assert.Error(t, err, "id is immutable and not editable")
}

func TestRecordFromFields(t *testing.T) {
	want := AgentRecord{ID: "paul", Name: "Paul", Personality: "calm", BodyColor: "#217bfe", Voice: VoiceFenrir}

	got, err := RecordFromFields("paul", want.Fields())
	require.NoError(t, err)
	assert.Equal(t, want, got)

	noID := want.Fields()
	delete(noID, "id")
	got, err = RecordFromFields("paul", noID)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRecordFromFields_Malformed(t *testing.T) {
	valid := AgentRecord{ID: "a", Name: "A", Personality: "p", BodyColor: "#fff", Voice: VoiceKore}.Fields()

	tests := []struct {
		name   string
		id     string
		mutate func(map[string]any)
	}{
		{"missing name", "a", func(m map[string]any) { delete(m, "name") }},
		{"missing voice", "a", func(m map[string]any) { delete(m, "voice") }},
		{"unknown voice", "a", func(m map[string]any) { m["voice"] = "Robot" }},
		{"non-string personality", "a", func(m map[string]any) { m["personality"] = 42.0 }},
		{"mismatched id", "a", func(m map[string]any) { m["id"] = "b" }},
		{"empty doc id", "", func(map[string]any) {}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := make(map[string]any, len(valid))
			for k, v := range valid {
				fields[k] = v
			}
			tt.mutate(fields)
			_, err := RecordFromFields(tt.id, fields)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrMalformedRecord))
		})
	}
}

func TestDefaultPresets(t *testing.T) {
	presets := DefaultPresets()
	require.NoError(t, ValidatePresets(presets))
	assert.Equal(t, DefaultCurrentID, presets[0].ID)
	assert.Contains(t, presets[0].Personality, "BukAI")

	for _, p := range presets {
		_, err := RecordFromFields(p.ID, p.Fields())
		assert.NoError(t, err, p.ID)
	}

	presets[1].Name = "changed"
	assert.Equal(t, "Paul", DefaultPresets()[1].Name, "each call returns a fresh slice")
}

func TestLoadPresets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "presets.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
- id: tutor
  name: Tutor
  personality: You explain things slowly.
  bodyColor: "#a142f4"
  voice: Leda
- id: coach
  name: Coach
  personality: You push people to do their best.
  bodyColor: "#fa7b17"
  voice: Orus
`), 0o600))

	presets, err := LoadPresets(path)
	require.NoError(t, err)
	require.Len(t, presets, 2)
	assert.Equal(t, "tutor", presets[0].ID)
	assert.Equal(t, VoiceOrus, presets[1].Voice)
}

func TestValidatePresets(t *testing.T) {
	assert.Error(t, ValidatePresets(nil))
	assert.Error(t, ValidatePresets([]AgentRecord{{ID: "", Voice: VoiceKore}}))
	assert.Error(t, ValidatePresets([]AgentRecord{{ID: "a", Voice: VoiceKore}, {ID: "a", Voice: VoiceKore}}))
	assert.Error(t, ValidatePresets([]AgentRecord{{ID: "a", Voice: "Nobody"}}))
}

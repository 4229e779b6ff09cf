package domain

import "fmt"

// Field names an editable attribute of an AgentRecord. The id is immutable
// and therefore not a Field.
type Field string

const (
	FieldName        Field = "name"
	FieldPersonality Field = "personality"
	FieldBodyColor   Field = "bodyColor"
	FieldVoice       Field = "voice"
)

// EditableFields lists every Field in display order.
var EditableFields = []Field{FieldName, FieldPersonality, FieldBodyColor, FieldVoice}

// ParseField validates a field name.
func ParseField(s string) (Field, error) {
	for _, f := range EditableFields {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown field %q", s)
}

// Patch is a partial record: field -> new value.
type Patch map[Field]string

// Merge folds other into p, later values winning per field, and returns p.
// A nil receiver allocates.
func (p Patch) Merge(other Patch) Patch {
	if p == nil {
		p = make(Patch, len(other))
	}
	for f, v := range other {
		p[f] = v
	}
	return p
}

// Fields converts the patch to a remote document body for a merge-write.
func (p Patch) Fields() map[string]any {
	out := make(map[string]any, len(p))
	for f, v := range p {
		out[string(f)] = v
	}
	return out
}

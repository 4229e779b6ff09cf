package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKey(t *testing.T) {
	tests := []struct {
		input   string
		want    Key
		wantErr bool
	}{
		{"sync", Key{"sync"}, false},
		{"sync.debounceMs", Key{"sync", "debounceMs"}, false},
		{"gateway.auth.mode", Key{"gateway", "auth", "mode"}, false},
		{"", nil, true},
		{"gateway..port", nil, true},
		{".directory", nil, true},
		{"directory.", nil, true},
		{"foo.__proto__.bar", nil, true},
		{"constructor", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := ParseKey(tt.input)
			if tt.wantErr {
				var ce *ConfigError
				assert.ErrorAs(t, err, &ce)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.input, got.String())
		})
	}
}

func TestKeyLookup(t *testing.T) {
	root := map[string]any{
		"directory": map[string]any{
			"backend": "gateway",
			"url":     "ws://127.0.0.1:18790/ws",
		},
		"simple": "value",
	}

	v, ok := Key{"directory", "backend"}.Lookup(root)
	assert.True(t, ok)
	assert.Equal(t, "gateway", v)

	v, ok = Key{"directory"}.Lookup(root)
	assert.True(t, ok)
	assert.IsType(t, map[string]any{}, v)

	_, ok = Key{"directory", "missing"}.Lookup(root)
	assert.False(t, ok)

	_, ok = Key{"simple", "deeper"}.Lookup(root)
	assert.False(t, ok, "cannot descend into a scalar")
}

func TestKeyAssign(t *testing.T) {
	root := map[string]any{"sync": "not-a-map"}

	Key{"sync", "debounceMs"}.Assign(root, 250)
	v, ok := Key{"sync", "debounceMs"}.Lookup(root)
	require.True(t, ok)
	assert.Equal(t, 250, v)

	Key{"identity", "adminEmails"}.Assign(root, []any{"a@example.com"})
	v, ok = Key{"identity", "adminEmails"}.Lookup(root)
	require.True(t, ok)
	assert.Equal(t, []any{"a@example.com"}, v)

	Key{"top"}.Assign(root, true)
	assert.Equal(t, true, root["top"])
}

func TestKeyRemove(t *testing.T) {
	root := map[string]any{
		"gateway": map[string]any{"port": 18790, "bind": "lan"},
		"leaf":    "x",
	}

	assert.True(t, Key{"gateway", "port"}.Remove(root))
	_, ok := Key{"gateway", "port"}.Lookup(root)
	assert.False(t, ok)

	v, ok := Key{"gateway", "bind"}.Lookup(root)
	assert.True(t, ok)
	assert.Equal(t, "lan", v)

	assert.False(t, Key{"gateway", "port"}.Remove(root))
	assert.False(t, Key{"missing", "key"}.Remove(root))
	assert.False(t, Key{"leaf", "key"}.Remove(root))
}

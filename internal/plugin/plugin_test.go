package plugin

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/roster/internal/config"
	"github.com/soyeahso/roster/internal/hooks"
	"github.com/soyeahso/roster/internal/logging"
)

type testPlugin struct {
	id         string
	initErr    error
	closeErr   error
	initCalls  int
	closeCalls int
	closed     *[]string
	events     []string
}

func (p *testPlugin) Info() Info { return Info{ID: p.id, Name: "Test " + p.id, Version: "1.0"} }
func (p *testPlugin) Init(_ context.Context, api *API) error {
	p.initCalls++
	for _, event := range p.events {
		api.Handle(event, func(context.Context, hooks.Payload) error { return nil })
	}
	return p.initErr
}
func (p *testPlugin) Close() error {
	p.closeCalls++
	if p.closed != nil {
		*p.closed = append(*p.closed, p.id)
	}
	return p.closeErr
}

func testRegistry() (*Registry, *hooks.Manager) {
	log := logging.New(nil, "silent")
	hm := hooks.NewManager(log)
	return NewRegistry(hm, log), hm
}

func TestRegistryRegister(t *testing.T) {
	reg, _ := testRegistry()

	require.NoError(t, reg.Register(&testPlugin{id: "a"}))
	require.NoError(t, reg.Register(&testPlugin{id: "b"}))
	assert.Equal(t, 2, reg.Count())
	assert.Equal(t, []string{"a", "b"}, reg.List())

	err := reg.Register(&testPlugin{id: "a"})
	assert.ErrorContains(t, err, "already registered")
}

func TestRegistryRegisterAfterStart(t *testing.T) {
	reg, _ := testRegistry()
	require.NoError(t, reg.Register(&testPlugin{id: "a"}))
	require.NoError(t, reg.Start(context.Background()))

	assert.ErrorContains(t, reg.Register(&testPlugin{id: "late"}), "already started")
	require.NoError(t, reg.Stop())
	assert.NoError(t, reg.Register(&testPlugin{id: "late"}))
}

func TestRegistryStartStop(t *testing.T) {
	reg, _ := testRegistry()
	var closed []string
	a := &testPlugin{id: "a", closed: &closed}
	b := &testPlugin{id: "b", closed: &closed}
	require.NoError(t, reg.Register(a))
	require.NoError(t, reg.Register(b))

	require.NoError(t, reg.Start(context.Background()))
	assert.Equal(t, 1, a.initCalls)
	assert.Equal(t, 1, b.initCalls)

	require.NoError(t, reg.Stop())
	assert.Equal(t, []string{"b", "a"}, closed)

	require.NoError(t, reg.Stop())
	assert.Equal(t, 1, a.closeCalls, "stopping twice closes once")
}

func TestRegistryStartRollsBack(t *testing.T) {
	reg, _ := testRegistry()
	var closed []string
	a := &testPlugin{id: "a", closed: &closed}
	bad := &testPlugin{id: "bad", initErr: assert.AnError, closed: &closed}
	c := &testPlugin{id: "c", closed: &closed}
	for _, p := range []*testPlugin{a, bad, c} {
		require.NoError(t, reg.Register(p))
	}

	err := reg.Start(context.Background())
	require.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "bad")
	assert.Equal(t, []string{"a"}, closed, "only started plugins are closed")
	assert.Zero(t, c.initCalls)
}

func TestRegistryStopJoinsErrors(t *testing.T) {
	reg, _ := testRegistry()
	var closed []string
	require.NoError(t, reg.Register(&testPlugin{id: "a", closed: &closed}))
	require.NoError(t, reg.Register(&testPlugin{id: "b", closed: &closed, closeErr: assert.AnError}))
	require.NoError(t, reg.Start(context.Background()))

	err := reg.Stop()
	require.ErrorIs(t, err, assert.AnError)
	assert.Contains(t, err.Error(), "close plugin b")
	assert.Equal(t, []string{"b", "a"}, closed)
}

func TestRegistryReleasesHandlers(t *testing.T) {
	reg, hm := testRegistry()
	a := &testPlugin{id: "a", events: []string{hooks.EventSeeded, hooks.EventSeeded}}
	bad := &testPlugin{id: "bad", events: []string{hooks.EventServerStart}, initErr: assert.AnError}
	require.NoError(t, reg.Register(a))
	require.NoError(t, reg.Register(bad))

	require.Error(t, reg.Start(context.Background()))
	assert.Zero(t, hm.Count(hooks.EventSeeded), "rollback removes the started plugin's handlers")
	assert.Zero(t, hm.Count(hooks.EventServerStart), "failed Init leaves no handlers")

	reg2, hm2 := testRegistry()
	require.NoError(t, reg2.Register(&testPlugin{id: "a", events: []string{hooks.EventSeeded, hooks.EventSeeded}}))
	require.NoError(t, reg2.Start(context.Background()))
	assert.Equal(t, 2, hm2.Count(hooks.EventSeeded))
	require.NoError(t, reg2.Stop())
	assert.Zero(t, hm2.Count(hooks.EventSeeded))
}

func TestCommandsRegistersPerEvent(t *testing.T) {
	reg, hm := testRegistry()
	cmds := NewCommands(config.HooksConfig{
		CurrentChanged: []config.HookEntry{{Command: "true"}, {Command: "true"}},
		ServerStart:    []config.HookEntry{{Command: "true"}},
	})
	require.NoError(t, reg.Register(cmds))
	require.NoError(t, reg.Start(context.Background()))

	assert.Equal(t, 2, hm.Count(hooks.EventCurrentChanged))
	assert.Equal(t, 1, hm.Count(hooks.EventServerStart))
	assert.Equal(t, 0, hm.Count(hooks.EventSeeded))

	reg.Stop()
	assert.Equal(t, 0, hm.Count(hooks.EventCurrentChanged))
	assert.Equal(t, 0, hm.Count(hooks.EventServerStart))
}

func TestCommandsRunWithPayload(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	dir := t.TempDir()
	payloadFile := filepath.Join(dir, "payload.json")
	eventFile := filepath.Join(dir, "event")

	reg, hm := testRegistry()
	cmds := NewCommands(config.HooksConfig{
		CurrentChanged: []config.HookEntry{{
			Command: "cat > " + payloadFile + " && printf %s \"$ROSTER_EVENT\" > " + eventFile,
			Timeout: 5000,
		}},
	})
	require.NoError(t, reg.Register(cmds))
	require.NoError(t, reg.Start(context.Background()))

	hm.Emit(context.Background(), hooks.EventCurrentChanged, map[string]any{"id": "paul"})
	reg.Stop()

	raw, err := os.ReadFile(payloadFile)
	require.NoError(t, err)
	var p hooks.Payload
	require.NoError(t, json.Unmarshal(raw, &p))
	assert.Equal(t, hooks.EventCurrentChanged, p.Event)
	assert.Equal(t, "paul", p.Data["id"])

	event, err := os.ReadFile(eventFile)
	require.NoError(t, err)
	assert.Equal(t, hooks.EventCurrentChanged, string(event))
}

func TestCommandsFailureDoesNotPropagate(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	reg, hm := testRegistry()
	require.NoError(t, reg.Register(NewCommands(config.HooksConfig{
		WriteFailed: []config.HookEntry{{Command: "exit 3"}},
	})))
	require.NoError(t, reg.Start(context.Background()))

	assert.NotPanics(t, func() {
		hm.Emit(context.Background(), hooks.EventWriteFailed, map[string]any{"id": "x"})
	})
	reg.Stop()
}

package hooks

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/soyeahso/roster/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManager() *Manager {
	return NewManager(logging.New(nil, "silent"))
}

func TestManager_On_And_Emit(t *testing.T) {
	m := testManager()

	var got Payload
	m.On(EventCurrentChanged, "test", func(_ context.Context, p Payload) error {
		got = p
		return nil
	})

	m.Emit(context.Background(), EventCurrentChanged, map[string]any{"id": "paul"})
	assert.Equal(t, EventCurrentChanged, got.Event)
	assert.Equal(t, "paul", got.Data["id"])
}

func TestManager_Emit_Order(t *testing.T) {
	m := testManager()

	var order []string
	m.On(EventSeeded, "first", func(_ context.Context, _ Payload) error {
		order = append(order, "first")
		return nil
	})
	m.On(EventSeeded, "second", func(_ context.Context, _ Payload) error {
		order = append(order, "second")
		return nil
	})

	m.Emit(context.Background(), EventSeeded, nil)
	assert.Equal(t, []string{"first", "second"}, order)
}

func TestManager_Emit_ErrorDoesNotStop(t *testing.T) {
	m := testManager()

	var secondCalled bool
	m.On(EventWriteFailed, "failing", func(_ context.Context, _ Payload) error {
		return errors.New("boom")
	})
	m.On(EventWriteFailed, "ok", func(_ context.Context, _ Payload) error {
		secondCalled = true
		return nil
	})

	m.Emit(context.Background(), EventWriteFailed, nil)
	assert.True(t, secondCalled)
}

func TestManager_Off(t *testing.T) {
	m := testManager()
	m.On(EventDirectoryChanged, "a", func(context.Context, Payload) error { return nil })
	m.On(EventDirectoryChanged, "b", func(context.Context, Payload) error { return nil })
	require.Equal(t, 2, m.Count(EventDirectoryChanged))

	m.Off(EventDirectoryChanged, "a")
	assert.Equal(t, 1, m.Count(EventDirectoryChanged))
	m.Off(EventDirectoryChanged, "missing")
	assert.Equal(t, 1, m.Count(EventDirectoryChanged))
}

func TestManager_PanicIsContained(t *testing.T) {
	m := testManager()

	var after bool
	m.On(EventSeeded, "panics", func(context.Context, Payload) error { panic("boom") })
	m.On(EventSeeded, "after", func(context.Context, Payload) error {
		after = true
		return nil
	})

	assert.NotPanics(t, func() { m.Emit(context.Background(), EventSeeded, nil) })
	assert.True(t, after)
}

func TestManager_PayloadTime(t *testing.T) {
	m := testManager()
	var got Payload
	m.On(EventServerStop, "t", func(_ context.Context, p Payload) error {
		got = p
		return nil
	})

	before := time.Now()
	m.Emit(context.Background(), EventServerStop, nil)
	assert.False(t, got.Time.Before(before.Add(-time.Second)))
	assert.Equal(t, time.UTC, got.Time.Location())
}

func TestManager_NilIsNoop(t *testing.T) {
	var m *Manager
	assert.NotPanics(t, func() {
		m.Emit(context.Background(), EventSeeded, nil)
	})
	assert.Zero(t, m.Count(EventSeeded))
}

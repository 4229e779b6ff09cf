package gateway

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soyeahso/roster/internal/domain"
	"github.com/soyeahso/roster/internal/recordstore"
	"github.com/soyeahso/roster/internal/remote"
	"github.com/soyeahso/roster/internal/syncer"
)

const waitFor = 2 * time.Second

func dialClient(t *testing.T, ts *httptest.Server) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	c, err := Dial(ctx, DialOptions{URL: wsURL(ts), Token: testToken, ClientID: t.Name()}, testLog())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func recvSnap[T any](t *testing.T, ch <-chan T) T {
	t.Helper()
	select {
	case v, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return v
	case <-time.After(waitFor):
		t.Fatal("timed out waiting for snapshot")
	}
	var zero T
	return zero
}

func requireClosed[T any](t *testing.T, ch <-chan T) {
	t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case _, ok := <-ch:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("subscription channel not closed")
		}
	}
}

// --- ConnRegistry ---

func TestConnRegistry(t *testing.T) {
	reg := NewConnRegistry(testLog())
	assert.Equal(t, 0, reg.Count())

	c1 := &Conn{ConnID: "conn-1", Info: ClientInfo{ID: "client-1"}}
	reg.Add(c1)
	reg.Add(&Conn{ConnID: "conn-2"})
	assert.Equal(t, 2, reg.Count())

	reg.Remove(c1)
	reg.Remove(&Conn{ConnID: "nonexistent"})
	assert.Equal(t, 1, reg.Count())
}

func TestConnRegistryCloseAll(t *testing.T) {
	reg := NewConnRegistry(testLog())
	reg.Add(&Conn{ConnID: "conn-1", closed: true})
	reg.Add(&Conn{ConnID: "conn-2", closed: true})

	reg.CloseAll()
	assert.Equal(t, 0, reg.Count())
}

func TestConnSubscriptions(t *testing.T) {
	c := NewConn(nil, ClientInfo{}, AuthResult{OK: true}, testLog())

	id, ctx, ok := c.openSubscription("")
	require.True(t, ok)
	assert.NotEmpty(t, id)
	_, _, ok = c.openSubscription(id)
	assert.False(t, ok, "ids are unique per connection")

	id2, ctx2, ok := c.openSubscription("mine")
	require.True(t, ok)
	assert.Equal(t, "mine", id2)
	assert.Equal(t, 2, c.Subscriptions())

	assert.True(t, c.cancelSubscription(id))
	assert.Error(t, ctx.Err())
	assert.False(t, c.cancelSubscription(id))

	require.NoError(t, c.Close())
	assert.Error(t, ctx2.Err(), "closing the connection releases its subscriptions")
	assert.Equal(t, 0, c.Subscriptions())
	_, _, ok = c.openSubscription("")
	assert.False(t, ok)
}

// --- Client ---

func TestDialHandshake(t *testing.T) {
	srv, ts, _ := testServer(t)
	c := dialClient(t, ts)

	hello := c.Hello()
	assert.Equal(t, ProtocolVersion, hello.Protocol)
	assert.NotEmpty(t, hello.Server.ConnID)
	assert.Equal(t, srv.Methods(), hello.Features.Methods)

	h, err := c.Health(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "ok", h.Status)
	assert.Equal(t, 1, h.Clients)
}

func TestDialWrongToken(t *testing.T) {
	_, ts, _ := testServer(t)

	_, err := Dial(context.Background(), DialOptions{URL: wsURL(ts), Token: "nope"}, testLog())
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnauthorized))
}

func TestDialUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	_, err := Dial(ctx, DialOptions{URL: "ws://127.0.0.1:1/ws", Token: testToken}, testLog())
	assert.Error(t, err)
}

func TestClientDocumentRoundTrip(t *testing.T) {
	_, ts, _ := testServer(t)
	c := dialClient(t, ts)
	ctx := context.Background()

	_, ok, err := c.GetDoc(ctx, "agents", "paul")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, c.SetDoc(ctx, "agents", "paul", map[string]any{"name": "Paul", "voice": "Fenrir"}, false))
	require.NoError(t, c.SetDoc(ctx, "agents", "paul", map[string]any{"name": "Paulo"}, true))

	doc, ok, err := c.GetDoc(ctx, "agents", "paul")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "paul", doc.ID)
	assert.Equal(t, map[string]any{"name": "Paulo", "voice": "Fenrir"}, doc.Fields)

	require.NoError(t, c.BatchWrite(ctx, "agents", nil), "empty batch is a no-op")
	require.NoError(t, c.BatchWrite(ctx, "agents", []remote.Write{
		{ID: "a", Fields: map[string]any{"name": "A"}},
		{ID: "b", Fields: map[string]any{"name": "B"}},
	}))
	_, ok, err = c.GetDoc(ctx, "agents", "b")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestClientRPCError(t *testing.T) {
	_, ts, _ := testServer(t)
	c := dialClient(t, ts)

	err := c.SetDoc(context.Background(), "agents", "", map[string]any{}, false)
	var rpcErr *RPCError
	require.ErrorAs(t, err, &rpcErr)
	assert.Equal(t, "invalid_params", rpcErr.Code)
	assert.Equal(t, "doc.set", rpcErr.Method)
}

func TestClientSubscribeCollection(t *testing.T) {
	_, ts, dir := testServer(t)
	c := dialClient(t, ts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	ch, err := c.SubscribeCollection(ctx, "agents")
	require.NoError(t, err)
	assert.Empty(t, recvSnap(t, ch).Docs)

	require.NoError(t, dir.SetDoc(context.Background(), "agents", "z", map[string]any{"name": "Z"}, false))
	snap := recvSnap(t, ch)
	require.Len(t, snap.Docs, 1)
	assert.Equal(t, "Z", snap.Docs[0].Fields["name"])

	cancel()
	requireClosed(t, ch)
	require.Eventually(t, func() bool { return dir.Subscribers() == 0 }, waitFor, 10*time.Millisecond)
}

func TestClientSubscribeDocSeesOtherClient(t *testing.T) {
	_, ts, _ := testServer(t)
	a := dialClient(t, ts)
	b := dialClient(t, ts)

	ch, err := a.SubscribeDoc(t.Context(), "config", "global")
	require.NoError(t, err)
	assert.False(t, recvSnap(t, ch).Exists)

	require.NoError(t, b.SetDoc(context.Background(), "config", "global", map[string]any{"currentAgentId": "penny"}, true))
	snap := recvSnap(t, ch)
	assert.True(t, snap.Exists)
	assert.Equal(t, "penny", snap.Doc.Fields["currentAgentId"])
}

func TestClientCloseEndsSubscriptions(t *testing.T) {
	srv, ts, _ := testServer(t)
	c := dialClient(t, ts)

	ch, err := c.SubscribeCollection(context.Background(), "agents")
	require.NoError(t, err)
	recvSnap(t, ch)

	require.NoError(t, c.Close())
	requireClosed(t, ch)
	<-c.Done()
	assert.NoError(t, c.Err())

	err = c.SetDoc(context.Background(), "agents", "x", map[string]any{}, false)
	assert.ErrorIs(t, err, ErrClientClosed)
	_, err = c.SubscribeDoc(context.Background(), "config", "global")
	assert.ErrorIs(t, err, ErrClientClosed)

	require.Eventually(t, func() bool { return srv.Clients() == 0 }, waitFor, 10*time.Millisecond)
}

func TestClientSeesDirectoryClose(t *testing.T) {
	_, ts, dir := testServer(t)
	c := dialClient(t, ts)

	ch, err := c.SubscribeCollection(context.Background(), "agents")
	require.NoError(t, err)
	recvSnap(t, ch)

	require.NoError(t, dir.Close())
	requireClosed(t, ch)
}

func TestClientCallHonorsContext(t *testing.T) {
	_, ts, _ := testServer(t)
	c := dialClient(t, ts)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := c.GetDoc(ctx, "agents", "paul")
	assert.ErrorIs(t, err, context.Canceled)
}

// --- sync engines over the gateway ---

func startEngine(t *testing.T, dir remote.Directory) *syncer.Engine {
	t.Helper()
	store := recordstore.New(domain.DefaultPresets(), domain.DefaultCurrentID)
	e := syncer.New(store, dir, syncer.Options{Debounce: 20 * time.Millisecond}, testLog())
	t.Cleanup(e.Dispose)
	require.NoError(t, e.Start(context.Background()))
	ctx, cancel := context.WithTimeout(context.Background(), waitFor)
	defer cancel()
	require.NoError(t, e.WaitReady(ctx))
	return e
}

func TestEnginesConvergeThroughGateway(t *testing.T) {
	_, ts, dir := testServer(t)

	first := startEngine(t, dialClient(t, ts))
	first.Settle()
	require.True(t, first.Seeded())

	presets, err := dir.SubscribeCollection(t.Context(), "agents")
	require.NoError(t, err)
	assert.Len(t, recvSnap(t, presets).Docs, len(domain.DefaultPresets()))

	second := startEngine(t, dialClient(t, ts))
	assert.False(t, second.Seeded(), "populated directory is not reseeded")

	rec := domain.NewAgent(domain.WithID("mine"), domain.WithName("Mine"), domain.WithPersonality("curious"))
	require.NoError(t, first.Create(rec))
	require.Eventually(t, func() bool {
		return second.Store().Current().ID == "mine"
	}, waitFor, 10*time.Millisecond)

	require.NoError(t, second.Update("mine", domain.FieldName, "Mine, renamed"))
	require.Eventually(t, func() bool {
		got, _, ok := first.Store().Get().Find("mine")
		return ok && got.Name == "Mine, renamed"
	}, waitFor, 10*time.Millisecond)

	require.NoError(t, first.Select("paul"))
	require.Eventually(t, func() bool {
		return second.Store().Current().ID == "paul"
	}, waitFor, 10*time.Millisecond)
}

package relay

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/packrelay/internal/engine"
	"github.com/roach88/packrelay/internal/event"
	"github.com/roach88/packrelay/internal/filter"
	"github.com/roach88/packrelay/internal/metrics"
	"github.com/roach88/packrelay/internal/store"
)

type testRelay struct {
	engine *engine.Engine
	store  *store.Store
	server *httptest.Server
}

func startRelay(t *testing.T) *testRelay {
	t.Helper()

	s, err := store.Open(filepath.Join(t.TempDir(), "relay.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	e := engine.New(s)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		e.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	srv := httptest.NewServer(NewHandler(e, WithIDGenerator(NewSequenceGenerator("test"))))
	t.Cleanup(srv.Close)

	return &testRelay{engine: e, store: s, server: srv}
}

func (r *testRelay) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(r.server.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, frame string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(frame)))
}

func sendJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
}

// readFrame reads one relay frame and splits it into its elements.
func readFrame(t *testing.T, conn *websocket.Conn) []json.RawMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var parts []json.RawMessage
	require.NoError(t, json.Unmarshal(data, &parts), "frame: %s", data)
	require.NotEmpty(t, parts)
	return parts
}

func str(t *testing.T, raw json.RawMessage) string {
	t.Helper()
	var s string
	require.NoError(t, json.Unmarshal(raw, &s))
	return s
}

func signed(t *testing.T, key *btcec.PrivateKey, createdAt int64, kind int, content string) event.Event {
	t.Helper()
	ev := event.Event{CreatedAt: createdAt, Kind: kind, Tags: event.Tags{}, Content: content}
	require.NoError(t, event.Sign(&ev, key))
	return ev
}

func newKey(t *testing.T) *btcec.PrivateKey {
	t.Helper()
	key, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	return key
}

// expectOK reads an OK frame and returns (id, accepted, reason).
func expectOK(t *testing.T, conn *websocket.Conn) (string, bool, string) {
	t.Helper()
	parts := readFrame(t, conn)
	require.Len(t, parts, 4)
	require.Equal(t, TypeOK, str(t, parts[0]))

	var accepted bool
	require.NoError(t, json.Unmarshal(parts[2], &accepted))
	return str(t, parts[1]), accepted, str(t, parts[3])
}

func TestSession_PublishAcknowledged(t *testing.T) {
	r := startRelay(t)
	conn := r.dial(t)

	ev := signed(t, newKey(t), 100, 1, "hello")
	sendJSON(t, conn, []any{"EVENT", ev})

	id, accepted, reason := expectOK(t, conn)
	assert.Equal(t, ev.ID, id)
	assert.True(t, accepted)
	assert.Equal(t, "", reason)

	has, err := r.store.Has(context.Background(), ev.ID)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestSession_RepublishAcceptedWithEmptyReason(t *testing.T) {
	r := startRelay(t)
	conn := r.dial(t)
	ctx := context.Background()

	ev := signed(t, newKey(t), 100, 1, "twice")
	sendJSON(t, conn, []any{"EVENT", ev})
	_, accepted, _ := expectOK(t, conn)
	require.True(t, accepted)

	before, err := r.store.Stats(ctx)
	require.NoError(t, err)

	sendJSON(t, conn, []any{"EVENT", ev})
	id, accepted, reason := expectOK(t, conn)
	assert.Equal(t, ev.ID, id)
	assert.True(t, accepted)
	assert.Equal(t, "", reason)

	after, err := r.store.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestSession_InvalidSignatureRejected(t *testing.T) {
	r := startRelay(t)
	conn := r.dial(t)

	ev := signed(t, newKey(t), 100, 1, "original")
	ev.Content = "forged"
	ev.ID = event.ComputeID(ev)
	sendJSON(t, conn, []any{"EVENT", ev})

	id, accepted, reason := expectOK(t, conn)
	assert.Equal(t, ev.ID, id)
	assert.False(t, accepted)
	assert.True(t, strings.HasPrefix(reason, "invalid: "), "reason %q", reason)

	st, err := r.store.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), st.Events)
}

func TestSession_TwoFilterBackfill(t *testing.T) {
	r := startRelay(t)
	ctx := context.Background()
	key := newKey(t)

	a := signed(t, key, 100, 1, "A")
	b := signed(t, key, 200, 1, "B")
	c := signed(t, key, 150, 7, "C")
	for _, ev := range []event.Event{a, b, c} {
		require.True(t, r.engine.Submit(ctx, ev).Accepted())
	}

	conn := r.dial(t)
	send(t, conn, `["REQ","sub1",{"kinds":[1]},{"kinds":[7]}]`)

	var got []string
	for i := 0; i < 3; i++ {
		parts := readFrame(t, conn)
		require.Len(t, parts, 3)
		require.Equal(t, TypeEvent, str(t, parts[0]))
		require.Equal(t, "sub1", str(t, parts[1]))

		ev, err := event.Parse(parts[2])
		require.NoError(t, err)
		require.NoError(t, event.Validate(ev), "streamed events are verbatim and verifiable")
		got = append(got, ev.ID)
	}
	assert.Equal(t, []string{b.ID, a.ID, c.ID}, got)

	parts := readFrame(t, conn)
	require.Len(t, parts, 2)
	assert.Equal(t, TypeEOSE, str(t, parts[0]))
	assert.Equal(t, "sub1", str(t, parts[1]))

	// Exactly one EOSE: the next frame belongs to the next request.
	send(t, conn, `["REQ","sub2",{"kinds":[42]}]`)
	parts = readFrame(t, conn)
	assert.Equal(t, TypeEOSE, str(t, parts[0]))
	assert.Equal(t, "sub2", str(t, parts[1]))
}

func TestSession_NoLivePushAfterBackfill(t *testing.T) {
	r := startRelay(t)
	subscriber := r.dial(t)
	publisher := r.dial(t)

	send(t, subscriber, `["REQ","live",{}]`)
	parts := readFrame(t, subscriber)
	require.Equal(t, TypeEOSE, str(t, parts[0]))

	ev := signed(t, newKey(t), 100, 1, "later")
	sendJSON(t, publisher, []any{"EVENT", ev})
	_, accepted, _ := expectOK(t, publisher)
	require.True(t, accepted)

	send(t, subscriber, `["REQ","probe",{"kinds":[99]}]`)
	parts = readFrame(t, subscriber)
	assert.Equal(t, TypeEOSE, str(t, parts[0]), "no EVENT pushed to the earlier subscription")
	assert.Equal(t, "probe", str(t, parts[1]))
}

func TestSession_MalformedFramesIgnored(t *testing.T) {
	r := startRelay(t)
	conn := r.dial(t)

	before := testutil.ToFloat64(metrics.MessagesReceived.WithLabelValues("malformed"))

	send(t, conn, `not json at all`)
	send(t, conn, `["BOGUS"]`)
	send(t, conn, `["REQ"]`)
	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{0x01}))

	send(t, conn, `["REQ","after",{"kinds":[1]}]`)
	parts := readFrame(t, conn)
	assert.Equal(t, TypeEOSE, str(t, parts[0]), "malformed frames get no reply and keep the session open")
	assert.Equal(t, "after", str(t, parts[1]))

	after := testutil.ToFloat64(metrics.MessagesReceived.WithLabelValues("malformed"))
	assert.Equal(t, before+4, after)
}

func TestSession_BackfillRespectsLimit(t *testing.T) {
	r := startRelay(t)
	ctx := context.Background()
	key := newKey(t)
	for i := 0; i < 5; i++ {
		require.True(t, r.engine.Submit(ctx, signed(t, key, int64(i), 1, strings.Repeat("x", i+1))).Accepted())
	}

	conn := r.dial(t)
	send(t, conn, `["REQ","few",{"limit":2}]`)

	var times []int64
	for {
		parts := readFrame(t, conn)
		if str(t, parts[0]) == TypeEOSE {
			break
		}
		ev, err := event.Parse(parts[2])
		require.NoError(t, err)
		times = append(times, ev.CreatedAt)
	}
	assert.Equal(t, []int64{4, 3}, times)
}

func TestSession_DisconnectTearsDown(t *testing.T) {
	r := startRelay(t)
	before := settledGauge(t)

	conn := r.dial(t)
	send(t, conn, `["REQ","s",{}]`)
	readFrame(t, conn)

	require.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.SessionsActive) == before+1
	}, 2*time.Second, 5*time.Millisecond)

	conn.Close()

	assert.Eventually(t, func() bool {
		return testutil.ToFloat64(metrics.SessionsActive) == before
	}, 2*time.Second, 5*time.Millisecond)
}

// settledGauge waits for sessions left over from earlier tests to finish
// tearing down and returns the active session count.
func settledGauge(t *testing.T) float64 {
	t.Helper()
	last := testutil.ToFloat64(metrics.SessionsActive)
	for i := 0; i < 100; i++ {
		time.Sleep(20 * time.Millisecond)
		now := testutil.ToFloat64(metrics.SessionsActive)
		if now == last {
			return now
		}
		last = now
	}
	return last
}

// stubBackend records calls without a database.
type stubBackend struct {
	mu      sync.Mutex
	queried [][]filter.Filter
}

func (b *stubBackend) Submit(ctx context.Context, ev event.Event) engine.Result {
	return engine.Result{ID: ev.ID, Outcome: engine.OutcomeStored}
}

func (b *stubBackend) QueryAll(ctx context.Context, filters []filter.Filter) ([][]store.StoredEvent, error) {
	b.mu.Lock()
	b.queried = append(b.queried, filters)
	b.mu.Unlock()
	return make([][]store.StoredEvent, len(filters)), nil
}

func TestSession_CloseRemovesSubscription(t *testing.T) {
	s := newSession("unit", nil, &stubBackend{})
	s.subs["a"] = []filter.Filter{{}}
	s.subs["b"] = []filter.Filter{{}}

	s.handleClose(&CloseMessage{SubscriptionID: "a"})
	assert.Equal(t, []string{"b"}, s.Subscriptions())

	s.handleClose(&CloseMessage{SubscriptionID: "unknown"})
	assert.Equal(t, []string{"b"}, s.Subscriptions())
}

func TestSession_ReqReplacesSubscription(t *testing.T) {
	backend := &stubBackend{}
	r := httptest.NewServer(NewHandler(backend))
	t.Cleanup(r.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(r.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	send(t, conn, `["REQ","feed",{"kinds":[1]}]`)
	readFrame(t, conn)
	send(t, conn, `["REQ","feed",{"kinds":[7]},{"kinds":[9]}]`)
	readFrame(t, conn)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	require.Len(t, backend.queried, 2)
	assert.Equal(t, []int{7}, backend.queried[1][0].Kinds)
	assert.Len(t, backend.queried[1], 2)
}

func TestIsUpgrade(t *testing.T) {
	req := httptest.NewRequest("GET", "/", nil)
	assert.False(t, IsUpgrade(req))

	req.Header.Set("Connection", "Upgrade")
	req.Header.Set("Upgrade", "websocket")
	assert.True(t, IsUpgrade(req))
}

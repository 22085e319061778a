package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fairyhunter13/self-checkout-simulator/internal/event"
	"github.com/fairyhunter13/self-checkout-simulator/internal/model"
)

// fakeHub answers a few commands the way the real hub would and records
// every envelope it receives.
type fakeHub struct {
	mu       sync.Mutex
	received []event.Envelope
	conns    []*websocket.Conn
}

func (f *fakeHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{}
	ws, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	f.mu.Lock()
	f.conns = append(f.conns, ws)
	f.mu.Unlock()
	send := func(name string, data any) {
		frame, _ := event.Encode(name, data)
		_ = ws.WriteMessage(websocket.TextMessage, frame)
	}
	send(event.CameraStatus, event.CameraStatusPayload{Enabled: false, Available: false})
	for {
		_, frame, err := ws.ReadMessage()
		if err != nil {
			return
		}
		env, err := event.Decode(frame)
		if err != nil {
			continue
		}
		f.mu.Lock()
		f.received = append(f.received, env)
		f.mu.Unlock()
		switch env.Event {
		case event.GetProducts:
			send(event.ProductsList, model.Catalog{"mouse": 300})
		case event.StopScanning:
			send(event.ScanningComplete, event.CartPayload{Cart: model.Cart{}})
		}
	}
}

func (f *fakeHub) events() []event.Envelope {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]event.Envelope(nil), f.received...)
}

func (f *fakeHub) dropAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conns {
		_ = c.Close()
	}
}

func startFake(t *testing.T) (*fakeHub, string) {
	t.Helper()
	f := &fakeHub{}
	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)
	return f, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func dialFake(t *testing.T, url string) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	c, err := Dial(ctx, url, WithRetry(2, 10*time.Millisecond))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestDialAndMirror(t *testing.T) {
	f, url := startFake(t)
	c := dialFake(t, url)
	require.True(t, c.Connected())

	require.NoError(t, c.GetProducts())
	assert.Eventually(t, func() bool {
		return c.Snapshot().Products["mouse"] == 300
	}, 2*time.Second, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		return len(f.events()) == 1
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, event.GetProducts, f.events()[0].Event)
	assert.True(t, c.Snapshot().Connected)
}

func TestScanningFlagIsOptimistic(t *testing.T) {
	_, url := startFake(t)
	c := dialFake(t, url)
	require.NoError(t, c.StartScanning(event.ScanRequest{}))
	assert.True(t, c.Snapshot().Scanning)
	require.NoError(t, c.StopScanning())
	assert.False(t, c.Snapshot().Scanning)
}

func TestEmitterPayloads(t *testing.T) {
	f, url := startFake(t)
	c := dialFake(t, url)
	require.NoError(t, c.MoveSimulatedObject("sim_1", "left", 0))
	require.NoError(t, c.UpdateConfig(model.GroupVisual, map[string]any{"showBoxes": false}))
	require.NoError(t, c.ApplyPreset("debug"))
	require.NoError(t, c.SaveConfig(nil))

	assert.Eventually(t, func() bool { return len(f.events()) == 4 }, 2*time.Second, 10*time.Millisecond)
	got := f.events()

	var mv event.MoveRequest
	require.NoError(t, got[0].Bind(&mv))
	assert.Equal(t, event.MoveRequest{ObjID: "sim_1", Direction: "left", Step: DefaultMoveStep}, mv)

	assert.Equal(t, "update_visual_config", got[1].Event)
	assert.JSONEq(t, `{"showBoxes":false}`, string(got[1].Data))

	assert.Equal(t, event.ApplyPresetConfig, got[2].Event)
	assert.JSONEq(t, `"debug"`, string(got[2].Data))

	assert.Equal(t, event.SaveConfig, got[3].Event)
	assert.Empty(t, got[3].Data)
}

func TestCloseAndNotConnected(t *testing.T) {
	_, url := startFake(t)
	c := dialFake(t, url)
	require.NoError(t, c.Close())
	assert.False(t, c.Connected())
	assert.ErrorIs(t, c.GetProducts(), ErrNotConnected)
	require.NoError(t, c.Close())
}

func TestServerDropIsFinal(t *testing.T) {
	f, url := startFake(t)
	c := dialFake(t, url)
	require.Eventually(t, func() bool {
		f.mu.Lock()
		defer f.mu.Unlock()
		return len(f.conns) == 1
	}, 2*time.Second, 10*time.Millisecond)
	f.dropAll()
	select {
	case <-c.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("read loop did not end")
	}
	assert.False(t, c.Connected())
	assert.False(t, c.Snapshot().Connected)
	assert.ErrorIs(t, c.ClearCart(), ErrNotConnected)
}

func TestDialRetriesThenFails(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		calls++
		mu.Unlock()
		http.NotFound(w, r)
	}))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	_, err := Dial(context.Background(), url, WithRetry(3, 5*time.Millisecond))
	require.Error(t, err)
	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 3, calls)
}

// ABOUTME: Tests for the remote control server and client
// ABOUTME: Runs the handler under httptest and drives it with gorilla websocket
package remote

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/harperreed/cuebox/internal/app"
	"github.com/harperreed/cuebox/internal/backend"
	"github.com/harperreed/cuebox/internal/periodic"
	"github.com/harperreed/cuebox/internal/scheduler"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type call struct {
	op      string
	clip    string
	backend backend.Kind
	device  string
	arg     int
}

type fakeController struct {
	hub *app.Hub

	mu    sync.Mutex
	calls []call
	armed bool
}

func newFakeController() *fakeController {
	return &fakeController{hub: app.NewHub()}
}

func (f *fakeController) record(c call) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, c)
}

func (f *fakeController) snapshot() []call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]call(nil), f.calls...)
}

func (f *fakeController) RequestNamed(clip string, kind backend.Kind, device string) uuid.UUID {
	f.record(call{op: "play", clip: clip, backend: kind, device: device})
	return uuid.New()
}

func (f *fakeController) RequestNext(kind backend.Kind, device string) uuid.UUID {
	f.record(call{op: "next", backend: kind, device: device})
	return uuid.New()
}

func (f *fakeController) ClearPending() { f.record(call{op: "clear"}) }

func (f *fakeController) SelectDevice(index int) (backend.Device, error) {
	f.record(call{op: "device", arg: index})
	if index != 1 {
		return backend.Device{}, &backend.DeviceError{Device: strconv.Itoa(index), Err: backend.ErrBackendUnavailable}
	}
	return backend.Device{Index: 1, Name: "USB"}, nil
}

func (f *fakeController) ArmPeriodic(ms int) error {
	if ms <= 0 {
		return &periodic.IntervalError{Value: strconv.Itoa(ms)}
	}
	f.record(call{op: "arm", arg: ms})
	f.mu.Lock()
	f.armed = true
	f.mu.Unlock()
	return nil
}

func (f *fakeController) DisarmPeriodic() { f.record(call{op: "disarm"}) }

func (f *fakeController) PeriodicArmed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.armed
}

func (f *fakeController) ClipNames() []string { return []string{"alpha.wav", "beta.wav"} }

func (f *fakeController) Devices() []backend.Device {
	return []backend.Device{{Index: 0, Name: "Built-in"}, {Index: 1, Name: "USB"}}
}

func (f *fakeController) Subscribe(buffer int) (<-chan scheduler.Event, func()) {
	return f.hub.Subscribe(buffer)
}

func startServer(t *testing.T, ctrl Controller, reg prometheus.Gatherer) (*Server, *httptest.Server) {
	t.Helper()
	srv := NewServer(ctrl, Config{Name: "test-box", Gatherer: reg})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func dial(t *testing.T, ts *httptest.Server) *Client {
	t.Helper()
	c, err := Dial(context.Background(), strings.TrimPrefix(ts.URL, "http://"))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestServer_HelloOnConnect(t *testing.T) {
	_, ts := startServer(t, newFakeController(), prometheus.NewRegistry())
	c := dial(t, ts)

	hello := c.Hello()
	assert.Equal(t, "test-box", hello.Name)
	assert.Equal(t, []string{"alpha.wav", "beta.wav"}, hello.Clips)
	assert.Equal(t, []DeviceInfo{{0, "Built-in"}, {1, "USB"}}, hello.Devices)
	assert.NotEmpty(t, hello.ClientID)
	assert.False(t, hello.Periodic)
}

func TestServer_PlayDispatches(t *testing.T) {
	ctrl := newFakeController()
	_, ts := startServer(t, ctrl, prometheus.NewRegistry())
	c := dial(t, ts)

	ack, err := c.Send(context.Background(), TypePlay, PlayCommand{Clip: "beta.wav", Backend: "stream", Device: "hw:1"})
	require.NoError(t, err)
	assert.Equal(t, TypePlay, ack.Command)
	_, err = uuid.Parse(ack.RequestID)
	assert.NoError(t, err)

	assert.Equal(t, []call{{op: "play", clip: "beta.wav", backend: backend.KindStream, device: "hw:1"}}, ctrl.snapshot())
}

func TestServer_CommandsDispatch(t *testing.T) {
	ctrl := newFakeController()
	_, ts := startServer(t, ctrl, prometheus.NewRegistry())
	c := dial(t, ts)
	ctx := context.Background()

	_, err := c.Send(ctx, TypeNext, NextCommand{})
	require.NoError(t, err)
	_, err = c.Send(ctx, TypeClear, nil)
	require.NoError(t, err)
	ack, err := c.Send(ctx, TypeDeviceSelect, DeviceSelectCommand{Index: 1})
	require.NoError(t, err)
	assert.Equal(t, "USB", ack.Device)
	_, err = c.Send(ctx, TypePeriodicStart, PeriodicStartCommand{IntervalMs: 250})
	require.NoError(t, err)
	_, err = c.Send(ctx, TypePeriodicStop, nil)
	require.NoError(t, err)

	assert.Equal(t, []call{
		{op: "next", backend: backend.KindMixer},
		{op: "clear"},
		{op: "device", arg: 1},
		{op: "arm", arg: 250},
		{op: "disarm"},
	}, ctrl.snapshot())
}

func TestServer_RejectedCommands(t *testing.T) {
	ctrl := newFakeController()
	_, ts := startServer(t, ctrl, prometheus.NewRegistry())
	c := dial(t, ts)
	ctx := context.Background()

	tests := []struct {
		name    string
		msgType string
		payload interface{}
		want    string
	}{
		{"unknown backend", TypePlay, PlayCommand{Clip: "alpha.wav", Backend: "laser"}, "unknown backend"},
		{"missing clip", TypePlay, PlayCommand{}, "clip is required"},
		{"bad interval", TypePeriodicStart, PeriodicStartCommand{IntervalMs: 0}, "invalid interval"},
		{"bad device", TypeDeviceSelect, DeviceSelectCommand{Index: 7}, "backend unavailable"},
		{"unknown type", "rewind", nil, "unknown message type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := c.Send(ctx, tt.msgType, tt.payload)
			var cmdErr *CommandError
			require.True(t, errors.As(err, &cmdErr), "expected CommandError, got %v", err)
			assert.Equal(t, tt.msgType, cmdErr.Command)
			assert.Contains(t, cmdErr.Message, tt.want)
		})
	}

	for _, c := range ctrl.snapshot() {
		assert.NotEqual(t, "play", c.op)
	}
}

func TestServer_InvalidJSON(t *testing.T) {
	_, ts := startServer(t, newFakeController(), prometheus.NewRegistry())
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	var hello Message
	require.NoError(t, conn.ReadJSON(&hello))
	require.Equal(t, TypeHello, hello.Type)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	var reply Message
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, TypeError, reply.Type)
	assert.Contains(t, string(reply.Payload), "invalid message")
}

func TestServer_ForwardsEvents(t *testing.T) {
	ctrl := newFakeController()
	srv, ts := startServer(t, ctrl, prometheus.NewRegistry())
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()

	var hello Message
	require.NoError(t, conn.ReadJSON(&hello))
	require.Eventually(t, func() bool { return srv.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	id := uuid.New()
	at := time.Date(2024, 3, 9, 14, 5, 7, 0, time.UTC)
	ctrl.hub.Publish(scheduler.Event{
		Kind:      scheduler.EventPlaybackStarted,
		Clip:      "alpha.wav",
		Backend:   "mixer",
		RequestID: id,
		Err:       backend.ErrBackendUnavailable,
		At:        at,
	})

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame struct {
		Type    string       `json:"type"`
		Payload EventPayload `json:"payload"`
	}
	require.NoError(t, conn.ReadJSON(&frame))
	assert.Equal(t, TypeEvent, frame.Type)
	assert.Equal(t, "playback_started", frame.Payload.Kind)
	assert.Equal(t, "alpha.wav", frame.Payload.Clip)
	assert.Equal(t, id.String(), frame.Payload.RequestID)
	assert.Equal(t, "backend unavailable", frame.Payload.Error)
	assert.True(t, at.Equal(frame.Payload.At))
}

func TestServer_ClientRemovedOnDisconnect(t *testing.T) {
	srv, ts := startServer(t, newFakeController(), prometheus.NewRegistry())
	c, err := Dial(context.Background(), strings.TrimPrefix(ts.URL, "http://"))
	require.NoError(t, err)
	require.Eventually(t, func() bool { return srv.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, c.Close())
	assert.Eventually(t, func() bool { return srv.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestServer_RefusesConnectionsOnceClosing(t *testing.T) {
	srv, ts := startServer(t, newFakeController(), prometheus.NewRegistry())
	c, err := Dial(context.Background(), strings.TrimPrefix(ts.URL, "http://"))
	require.NoError(t, err)
	defer c.Close()
	require.Eventually(t, func() bool { return srv.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	srv.closeClients()
	require.Eventually(t, func() bool { return srv.ClientCount() == 0 }, time.Second, 5*time.Millisecond)

	_, err = Dial(context.Background(), strings.TrimPrefix(ts.URL, "http://"))
	assert.Error(t, err)
	assert.Equal(t, 0, srv.ClientCount())

	done := make(chan struct{})
	go func() {
		srv.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("connection goroutines still running")
	}
}

func TestServer_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	scheduler.NewMetrics(reg)
	_, ts := startServer(t, newFakeController(), reg)

	resp, err := http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "cuebox_queue_depth")
}

func TestServer_ServeStopsOnCancel(t *testing.T) {
	srv := NewServer(newFakeController(), Config{Listen: "127.0.0.1:0", Gatherer: prometheus.NewRegistry()})
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()

	require.Eventually(t, func() bool { return srv.Addr() != nil }, time.Second, 5*time.Millisecond)
	c, err := Dial(context.Background(), srv.Addr().String())
	require.NoError(t, err)
	defer c.Close()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("Serve did not return")
	}
}

func TestNewEventPayload(t *testing.T) {
	p := NewEventPayload(scheduler.Event{Kind: scheduler.EventPeriodicArmed, Interval: 1500 * time.Millisecond})
	assert.Equal(t, "periodic_armed", p.Kind)
	assert.Equal(t, int64(1500), p.IntervalMs)
	assert.Empty(t, p.RequestID)
	assert.Empty(t, p.Error)
}

package telemetry

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/train-control/tcc/internal/config"
	"github.com/train-control/tcc/internal/metrics"
)

// threadSafeResponseWriter captures SSE output in a thread-safe way.
type threadSafeResponseWriter struct {
	mu      sync.Mutex
	buf     bytes.Buffer
	headers http.Header
}

func newThreadSafeResponseWriter() *threadSafeResponseWriter {
	return &threadSafeResponseWriter{headers: make(http.Header)}
}

func (w *threadSafeResponseWriter) Header() http.Header { return w.headers }

func (w *threadSafeResponseWriter) Write(data []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(data)
}

func (w *threadSafeResponseWriter) WriteHeader(int) {}

func (w *threadSafeResponseWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func testTiming() *config.TimingConfig {
	cfg := config.LoadTimingBaseline()
	cfg.HeartbeatInterval = 40 * time.Millisecond
	cfg.HeartbeatJitter = 5 * time.Millisecond
	cfg.EventBufferSize = 5
	return cfg
}

// subscribe starts a client in the background and waits until it is registered.
func subscribe(t *testing.T, hub *Hub, target string, lastID string) (*threadSafeResponseWriter, context.CancelFunc, chan error) {
	t.Helper()
	before := hub.ClientCount()

	w := newThreadSafeResponseWriter()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	if lastID != "" {
		req.Header.Set("Last-Event-ID", lastID)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- hub.Subscribe(ctx, w, req) }()

	deadline := time.Now().Add(time.Second)
	for hub.ClientCount() == before {
		if time.Now().After(deadline) {
			cancel()
			t.Fatal("client did not register")
		}
		time.Sleep(2 * time.Millisecond)
	}
	return w, cancel, done
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met within 1s")
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestNewHub(t *testing.T) {
	cfg := testTiming()
	hub := NewHub(cfg, nil, nil)
	defer hub.Stop()

	if hub.clients == nil || hub.vehicleIDs == nil || hub.buffers == nil {
		t.Fatal("hub maps not initialized")
	}
	if hub.config != cfg {
		t.Error("Hub config not set correctly")
	}
}

func TestHubPublishVehicleBuffers(t *testing.T) {
	hub := NewHub(testTiming(), nil, nil)
	defer hub.Stop()

	if err := hub.PublishVehicle("train-01", Event{Type: EventMotion, Data: map[string]interface{}{"speed": 2}}); err != nil {
		t.Fatalf("PublishVehicle() failed: %v", err)
	}

	events := hub.Events("train-01", 0)
	if len(events) != 1 {
		t.Fatalf("expected 1 buffered event, got %d", len(events))
	}
	if events[0].ID != 1 || events[0].Vehicle != "train-01" || events[0].Timestamp.IsZero() {
		t.Errorf("unexpected event %+v", events[0])
	}
}

func TestEventIDsMonotonicPerVehicle(t *testing.T) {
	hub := NewHub(testTiming(), nil, nil)
	defer hub.Stop()

	for i := 0; i < 3; i++ {
		_ = hub.PublishVehicle("a", Event{Type: EventState})
		_ = hub.PublishVehicle("b", Event{Type: EventState})
	}

	for _, v := range []string{"a", "b"} {
		events := hub.Events(v, 0)
		for i, e := range events {
			if e.ID != int64(i+1) {
				t.Errorf("vehicle %s event %d has ID %d", v, i, e.ID)
			}
		}
	}
}

func TestEventIDGenerationRace(t *testing.T) {
	hub := NewHub(testTiming(), nil, nil)
	defer hub.Stop()

	var wg sync.WaitGroup
	ids := make(chan int64, 400)
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				ids <- hub.nextEventID("train")
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := make(map[int64]bool)
	for id := range ids {
		if seen[id] {
			t.Fatalf("duplicate event ID %d", id)
		}
		seen[id] = true
	}
	if len(seen) != 400 {
		t.Errorf("expected 400 unique IDs, got %d", len(seen))
	}
}

func TestEventBufferBounds(t *testing.T) {
	buffer := NewEventBuffer(3, 0)
	now := time.Now()
	for i := int64(1); i <= 5; i++ {
		buffer.AddEvent(Event{ID: i, Timestamp: now})
	}

	if buffer.GetSize() != 3 {
		t.Fatalf("expected size 3, got %d", buffer.GetSize())
	}
	events := buffer.GetEventsAfter(0, now)
	if events[0].ID != 3 || events[2].ID != 5 {
		t.Errorf("expected IDs 3..5, got %d..%d", events[0].ID, events[2].ID)
	}
	if got := buffer.GetEventsAfter(4, now); len(got) != 1 || got[0].ID != 5 {
		t.Errorf("GetEventsAfter(4) = %+v", got)
	}
}

func TestEventBufferRetention(t *testing.T) {
	buffer := NewEventBuffer(10, time.Minute)
	now := time.Now()
	buffer.AddEvent(Event{ID: 1, Timestamp: now.Add(-2 * time.Minute)})
	buffer.AddEvent(Event{ID: 2, Timestamp: now})

	events := buffer.GetEventsAfter(0, now)
	if len(events) != 1 || events[0].ID != 2 {
		t.Errorf("expected only event 2 to be retained, got %+v", events)
	}
}

func TestSubscribeReceivesReadyAndEvents(t *testing.T) {
	hub := NewHub(testTiming(), nil, nil)
	defer hub.Stop()
	hub.SetSnapshot(func() map[string]interface{} {
		return map[string]interface{}{"state": "CONNECTED"}
	})

	w, cancel, done := subscribe(t, hub, "/api/v1/telemetry?vehicle=train-01", "")

	_ = hub.PublishVehicle("train-01", Event{Type: EventJunction, Data: map[string]interface{}{"decision": "LEFT"}})
	_ = hub.PublishVehicle("other", Event{Type: EventJunction, Data: map[string]interface{}{"decision": "RIGHT"}})

	waitFor(t, func() bool { return strings.Contains(w.String(), "event: junction") })
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Subscribe() returned %v", err)
	}

	out := w.String()
	if !strings.Contains(out, "event: ready") || !strings.Contains(out, `"state":"CONNECTED"`) {
		t.Errorf("ready event with snapshot missing:\n%s", out)
	}
	if !strings.Contains(out, `"decision":"LEFT"`) {
		t.Errorf("vehicle event missing:\n%s", out)
	}
	if strings.Contains(out, `"decision":"RIGHT"`) {
		t.Errorf("event for another vehicle delivered:\n%s", out)
	}
	if ct := w.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		t.Errorf("Content-Type = %q", ct)
	}
}

func TestSubscribeResumesWithLastEventID(t *testing.T) {
	hub := NewHub(testTiming(), nil, nil)
	defer hub.Stop()

	for i := 1; i <= 4; i++ {
		_ = hub.PublishVehicle("train-01", Event{Type: EventMark, Data: map[string]interface{}{"n": i}})
	}

	w, cancel, done := subscribe(t, hub, "/api/v1/telemetry?vehicle=train-01", "2")
	waitFor(t, func() bool { return strings.Contains(w.String(), "id: 4\n") })
	cancel()
	<-done

	out := w.String()
	for _, id := range []int{3, 4} {
		if !strings.Contains(out, fmt.Sprintf("id: %d\n", id)) {
			t.Errorf("replay missing id %d:\n%s", id, out)
		}
	}
	if strings.Contains(out, "id: 2\nevent: mark") {
		t.Errorf("event 2 should not be replayed:\n%s", out)
	}
}

func TestResumeWithoutVehicleUsesCurrentVehicle(t *testing.T) {
	hub := NewHub(testTiming(), nil, nil)
	defer hub.Stop()

	for i := 1; i <= 4; i++ {
		_ = hub.PublishVehicle("train-01", Event{Type: EventMark, Data: map[string]interface{}{"n": i}})
	}
	for i := 1; i <= 4; i++ {
		_ = hub.PublishVehicle("train-02", Event{Type: EventMark, Data: map[string]interface{}{"n": i}})
	}
	if got := hub.CurrentVehicle(); got != "train-02" {
		t.Fatalf("CurrentVehicle() = %q, want train-02", got)
	}

	w, cancel, done := subscribe(t, hub, "/api/v1/telemetry", "2")
	waitFor(t, func() bool { return strings.Count(w.String(), "event: mark") == 2 })
	cancel()
	<-done

	out := w.String()
	if !strings.Contains(out, "train-02") {
		t.Errorf("replay should come from train-02:\n%s", out)
	}
	if strings.Contains(out, "train-01") {
		t.Errorf("train-01 events should not be replayed:\n%s", out)
	}
}

func TestHeartbeatWhileSubscribed(t *testing.T) {
	hub := NewHub(testTiming(), nil, nil)
	defer hub.Stop()

	w, cancel, done := subscribe(t, hub, "/api/v1/telemetry", "")
	waitFor(t, func() bool { return strings.Contains(w.String(), "event: heartbeat") })
	cancel()
	<-done

	waitFor(t, func() bool { return hub.ClientCount() == 0 })
	hub.mu.RLock()
	running := hub.heartbeatStop != nil
	hub.mu.RUnlock()
	if running {
		t.Error("heartbeat should stop when the last client leaves")
	}
}

func TestPublishDoesNotBlockOnSlowClient(t *testing.T) {
	m := metrics.New(nil)
	hub := NewHub(testTiming(), m, nil)
	defer hub.Stop()

	client := &Client{ID: "slow", Context: context.Background(), Cancel: func() {}, Events: make(chan Event)}
	hub.mu.Lock()
	hub.clients[client.ID] = client
	hub.mu.Unlock()

	start := time.Now()
	for i := 0; i < 10; i++ {
		_ = hub.Publish(Event{Type: EventState})
	}
	if elapsed := time.Since(start); elapsed > 50*time.Millisecond {
		t.Errorf("Publish blocked for %v", elapsed)
	}
	if hub.Dropped() != 10 {
		t.Errorf("Dropped() = %d, want 10", hub.Dropped())
	}
}

func TestHubStopEndsSubscriptions(t *testing.T) {
	hub := NewHub(testTiming(), nil, nil)
	_, cancel, done := subscribe(t, hub, "/api/v1/telemetry", "")
	defer cancel()

	hub.Stop()
	hub.Stop()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Subscribe did not return after Stop")
	}
	if err := hub.Publish(Event{Type: EventState}); err != nil {
		t.Errorf("Publish after Stop returned %v", err)
	}
}

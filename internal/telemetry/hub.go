package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/train-control/tcc/internal/config"
	"github.com/train-control/tcc/internal/metrics"
)

// Event types published by the orchestrator.
const (
	EventReady     = "ready"
	EventHeartbeat = "heartbeat"
	EventState     = "state"
	EventMotion    = "motion"
	EventSteering  = "steering"
	EventOverride  = "override"
	EventJunction  = "junction"
	EventMark      = "mark"
	EventProgram   = "program"
	EventFault     = "fault"
)

const globalStream = "global"

// Event represents a telemetry event with SSE formatting.
type Event struct {
	ID        int64                  `json:"id,omitempty"`
	Type      string                 `json:"type"`
	Data      map[string]interface{} `json:"data"`
	Vehicle   string                 `json:"vehicle,omitempty"`
	Timestamp time.Time              `json:"ts"`
}

// SnapshotFunc returns the state sent in the ready event.
type SnapshotFunc func() map[string]interface{}

// Client represents an SSE client connection.
type Client struct {
	ID      string
	Writer  http.ResponseWriter
	Context context.Context
	Cancel  context.CancelFunc
	LastID  int64
	Vehicle string
	Events  chan Event
	mu      sync.Mutex // guards Writer
}

// Hub fans telemetry out to SSE clients and keeps a replay buffer per vehicle.
//
// Lock order: h.mu before EventBuffer.mu. Publish never blocks on a slow
// client; a full client queue drops the event for that client.
type Hub struct {
	mu         sync.RWMutex
	clients    map[string]*Client
	vehicleIDs map[string]*int64
	buffers    map[string]*EventBuffer
	current    string
	snapshot   SnapshotFunc

	config  *config.TimingConfig
	metrics *metrics.Metrics
	logger  *zap.Logger

	heartbeatStop chan struct{}
	dropped       atomic.Int64

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewHub creates a new telemetry hub with the specified configuration.
func NewHub(timingConfig *config.TimingConfig, m *metrics.Metrics, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		clients:    make(map[string]*Client),
		vehicleIDs: make(map[string]*int64),
		buffers:    make(map[string]*EventBuffer),
		config:     timingConfig,
		metrics:    m,
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// SetSnapshot sets the source of the ready event payload.
func (h *Hub) SetSnapshot(fn SnapshotFunc) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.snapshot = fn
}

// Subscribe streams events to one SSE client until ctx ends or the hub stops.
// A Last-Event-ID header replays buffered events newer than that ID for the
// vehicle named by the "vehicle" query parameter, or for the vehicle that
// published last when the parameter is absent.
func (h *Hub) Subscribe(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	clientCtx, cancel := context.WithCancel(ctx)

	lastEventID := int64(0)
	if lastIDStr := r.Header.Get("Last-Event-ID"); lastIDStr != "" {
		if id, err := strconv.ParseInt(lastIDStr, 10, 64); err == nil {
			lastEventID = id
		}
	}

	client := &Client{
		ID:      uuid.NewString(),
		Writer:  w,
		Context: clientCtx,
		Cancel:  cancel,
		LastID:  lastEventID,
		Vehicle: r.URL.Query().Get("vehicle"),
		Events:  make(chan Event, 100),
	}

	h.mu.Lock()
	h.clients[client.ID] = client
	if len(h.clients) == 1 && h.heartbeatStop == nil {
		h.startHeartbeat()
	}
	count := len(h.clients)
	h.mu.Unlock()
	h.metrics.SetSSEClients(count)

	defer h.unregisterClient(client.ID)

	if err := h.sendReadyEvent(client); err != nil {
		return fmt.Errorf("failed to send ready event: %w", err)
	}

	if lastEventID > 0 {
		if err := h.replayEvents(client, lastEventID); err != nil {
			return fmt.Errorf("failed to replay events: %w", err)
		}
	}

	h.handleClient(client)
	return nil
}

// Publish assigns an ID, buffers the event under its vehicle and queues it
// for every client.
func (h *Hub) Publish(event Event) error {
	select {
	case <-h.done:
		return nil
	default:
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.ID == 0 {
		event.ID = h.nextEventID(event.Vehicle)
	}
	if event.Vehicle != "" {
		h.bufferEvent(event)
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	for _, client := range clients {
		if client.Vehicle != "" && event.Vehicle != "" && client.Vehicle != event.Vehicle {
			continue
		}
		select {
		case <-client.Context.Done():
		case client.Events <- event:
		default:
			h.dropped.Add(1)
		}
	}

	return nil
}

// PublishVehicle publishes an event for a specific vehicle.
func (h *Hub) PublishVehicle(vehicle string, event Event) error {
	event.Vehicle = vehicle
	return h.Publish(event)
}

// Dropped returns the number of events dropped for slow clients.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// CurrentVehicle returns the vehicle of the most recent buffered event.
func (h *Hub) CurrentVehicle() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.current
}

// Events returns buffered events for vehicle newer than afterID.
func (h *Hub) Events(vehicle string, afterID int64) []Event {
	h.mu.RLock()
	buffer, exists := h.buffers[vehicle]
	h.mu.RUnlock()
	if !exists {
		return nil
	}
	return buffer.GetEventsAfter(afterID, time.Now())
}

func (h *Hub) sendReadyEvent(client *Client) error {
	h.mu.RLock()
	snapshot := h.snapshot
	h.mu.RUnlock()

	data := map[string]interface{}{}
	if snapshot != nil {
		data["snapshot"] = snapshot()
	}

	return h.sendEventToClient(client, Event{
		ID:        h.nextEventID(client.Vehicle),
		Type:      EventReady,
		Data:      data,
		Vehicle:   client.Vehicle,
		Timestamp: time.Now().UTC(),
	})
}

func (h *Hub) replayEvents(client *Client, lastEventID int64) error {
	vehicle := client.Vehicle
	if vehicle == "" {
		vehicle = h.CurrentVehicle()
	}
	for _, event := range h.Events(vehicle, lastEventID) {
		if err := h.sendEventToClient(client, event); err != nil {
			return err
		}
	}
	return nil
}

func (h *Hub) sendEventToClient(client *Client, event Event) error {
	client.mu.Lock()
	defer client.mu.Unlock()

	if event.ID > 0 {
		if _, err := fmt.Fprintf(client.Writer, "id: %d\n", event.ID); err != nil {
			return fmt.Errorf("failed to write event ID: %w", err)
		}
	}
	if _, err := fmt.Fprintf(client.Writer, "event: %s\n", event.Type); err != nil {
		return fmt.Errorf("failed to write event type: %w", err)
	}

	payload := map[string]interface{}{"ts": event.Timestamp.Format(time.RFC3339Nano)}
	for k, v := range event.Data {
		payload[k] = v
	}
	if event.Vehicle != "" {
		payload["vehicle"] = event.Vehicle
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	if _, err := fmt.Fprintf(client.Writer, "data: %s\n\n", data); err != nil {
		return fmt.Errorf("failed to write event data: %w", err)
	}

	if flusher, ok := client.Writer.(http.Flusher); ok {
		flusher.Flush()
	}
	return nil
}

func (h *Hub) handleClient(client *Client) {
	for {
		select {
		case <-client.Context.Done():
			return
		case <-h.done:
			return
		case event := <-client.Events:
			if err := h.sendEventToClient(client, event); err != nil {
				h.logger.Debug("telemetry client write failed", zap.String("client", client.ID), zap.Error(err))
				return
			}
		}
	}
}

func (h *Hub) unregisterClient(clientID string) {
	h.mu.Lock()
	client, exists := h.clients[clientID]
	if exists {
		client.Cancel()
		delete(h.clients, clientID)
		if len(h.clients) == 0 && h.heartbeatStop != nil {
			close(h.heartbeatStop)
			h.heartbeatStop = nil
		}
	}
	count := len(h.clients)
	h.mu.Unlock()

	if exists {
		h.metrics.SetSSEClients(count)
	}
}

// nextEventID returns the next monotonic event ID for a vehicle.
func (h *Hub) nextEventID(vehicle string) int64 {
	if vehicle == "" {
		vehicle = globalStream
	}

	h.mu.RLock()
	counter, exists := h.vehicleIDs[vehicle]
	h.mu.RUnlock()
	if exists {
		return atomic.AddInt64(counter, 1)
	}

	h.mu.Lock()
	counter, exists = h.vehicleIDs[vehicle]
	if !exists {
		counter = new(int64)
		h.vehicleIDs[vehicle] = counter
	}
	h.mu.Unlock()

	return atomic.AddInt64(counter, 1)
}

// bufferEvent adds an event to the vehicle's buffer. Buffers are never
// removed from h.buffers, so a reference stays valid after h.mu is released.
func (h *Hub) bufferEvent(event Event) {
	h.mu.Lock()
	buffer, exists := h.buffers[event.Vehicle]
	if !exists {
		buffer = NewEventBuffer(h.config.EventBufferSize, h.config.EventBufferRetention)
		h.buffers[event.Vehicle] = buffer
	}
	h.current = event.Vehicle
	h.mu.Unlock()

	buffer.AddEvent(event)
}

// startHeartbeat must be called with h.mu held and no heartbeat running.
func (h *Hub) startHeartbeat() {
	interval := h.config.HeartbeatInterval
	jitter := h.config.HeartbeatJitter
	stop := make(chan struct{})
	h.heartbeatStop = stop

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		for {
			wait := interval
			if jitter > 0 {
				wait += time.Duration(rand.Int63n(int64(2*jitter))) - jitter
			}
			timer := time.NewTimer(wait)

			select {
			case <-timer.C:
				h.sendHeartbeat()
			case <-stop:
				timer.Stop()
				return
			case <-h.done:
				timer.Stop()
				return
			}
		}
	}()
}

func (h *Hub) sendHeartbeat() {
	_ = h.Publish(Event{
		Type: EventHeartbeat,
		Data: map[string]interface{}{},
	})
}

// Stop cancels every client and waits for the heartbeat to exit.
func (h *Hub) Stop() {
	h.stopOnce.Do(func() {
		close(h.done)

		h.mu.Lock()
		for _, client := range h.clients {
			client.Cancel()
		}
		if h.heartbeatStop != nil {
			close(h.heartbeatStop)
			h.heartbeatStop = nil
		}
		h.mu.Unlock()

		waited := make(chan struct{})
		go func() {
			h.wg.Wait()
			close(waited)
		}()
		select {
		case <-waited:
		case <-time.After(5 * time.Second):
			h.logger.Warn("telemetry hub stop timed out")
		}
	})
}

// EventBuffer is a bounded, time-limited replay buffer.
type EventBuffer struct {
	mu        sync.RWMutex
	events    []Event
	capacity  int
	retention time.Duration
}

// NewEventBuffer creates a buffer holding at most capacity events no older
// than retention. A zero retention keeps events until evicted by capacity.
func NewEventBuffer(capacity int, retention time.Duration) *EventBuffer {
	return &EventBuffer{
		events:    make([]Event, 0, capacity),
		capacity:  capacity,
		retention: retention,
	}
}

// AddEvent appends an event, evicting the oldest past capacity.
func (b *EventBuffer) AddEvent(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.events = append(b.events, event)
	if len(b.events) > b.capacity {
		b.events = append(b.events[:0], b.events[len(b.events)-b.capacity:]...)
	}
}

// GetEventsAfter returns retained events with ID > lastID.
func (b *EventBuffer) GetEventsAfter(lastID int64, now time.Time) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var result []Event
	for _, event := range b.events {
		if event.ID <= lastID {
			continue
		}
		if b.retention > 0 && now.Sub(event.Timestamp) > b.retention {
			continue
		}
		result = append(result, event)
	}
	return result
}

// GetSize returns the current buffer size.
func (b *EventBuffer) GetSize() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.events)
}

// Package sse implements a Server-Sent Events broker that keeps labeling
// clients in step with the session and the image directory.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Event types sent to clients.
const (
	SessionLoaded   = "session.loaded"
	SessionSelected = "session.selected"
	SessionStopped  = "session.stopped"
	LabelCommitted  = "label.committed"
	DatasetSaved    = "dataset.saved"
	ImageCreated    = "image.created"
	ImageUpdated    = "image.updated"
	ImageDeleted    = "image.deleted"
	StatsUpdated    = "stats.updated"
)

const (
	defaultStatsThrottle = 2 * time.Second
	defaultKeepAlive     = 30 * time.Second
	clientBuffer         = 64

	// reconnect delay suggested to EventSource clients, in milliseconds
	retryMillis = 3000
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Option configures a Broker.
type Option func(*Broker)

// WithKeepAlive sets how often an idle stream receives a comment line so
// proxies keep the connection open.
func WithKeepAlive(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.keepAlive = d
		}
	}
}

type opKind int

const (
	opPublish opKind = iota
	opChange
	opSubscribe
	opUnsubscribe
	opCount
)

// op is one request to the broker goroutine. All requests share one queue,
// so a client subscribing after a Publish call returns sees that event's
// effect on the snapshot.
type op struct {
	kind   opKind
	event  Event
	client chan []byte
	count  chan int
}

// Broker manages SSE client connections and broadcasts events.
//
// A single goroutine owns the client set, the stats throttle and the session
// snapshot; public methods talk to it over one ordered queue. The snapshot is
// the last session.loaded or session.selected frame and is replayed to every
// new client, so a page opened mid-session starts on the current row.
type Broker struct {
	statsMin  time.Duration
	keepAlive time.Duration

	ops chan op

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker. stats.updated is sent at most once per
// statsThrottle.
func NewBroker(statsThrottle time.Duration, opts ...Option) *Broker {
	if statsThrottle <= 0 {
		statsThrottle = defaultStatsThrottle
	}
	b := &Broker{
		statsMin:  statsThrottle,
		keepAlive: defaultKeepAlive,
		ops:       make(chan op, 256),
		stopCh:    make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	go b.run()
	return b
}

// hub is the state owned by the broker goroutine.
type hub struct {
	clients   map[chan []byte]struct{}
	seq       uint64
	lastStats time.Time
	snapshot  []byte
}

func (h *hub) frame(event Event) []byte {
	payload, err := json.Marshal(event.Data)
	if err != nil {
		return nil
	}
	h.seq++
	return fmt.Appendf(nil, "id: %d\nevent: %s\ndata: %s\n\n", h.seq, event.Type, payload)
}

func (h *hub) broadcast(event Event) {
	raw := h.frame(event)
	if raw == nil {
		return
	}
	switch event.Type {
	case SessionLoaded, SessionSelected:
		h.snapshot = raw
	case SessionStopped:
		h.snapshot = nil
	}
	for ch := range h.clients {
		send(ch, raw)
	}
}

// send drops the frame when the client is not keeping up.
func send(ch chan []byte, raw []byte) {
	select {
	case ch <- raw:
	default:
	}
}

func (b *Broker) run() {
	defer close(b.stopped)

	h := &hub{clients: make(map[chan []byte]struct{})}
	for {
		select {
		case <-b.stopCh:
			for ch := range h.clients {
				close(ch)
			}
			b.drain()
			return
		case o := <-b.ops:
			b.handle(h, o)
		}
	}
}

func (b *Broker) handle(h *hub, o op) {
	switch o.kind {
	case opSubscribe:
		h.clients[o.client] = struct{}{}
		if h.snapshot != nil {
			send(o.client, h.snapshot)
		}
	case opUnsubscribe:
		if _, ok := h.clients[o.client]; ok {
			delete(h.clients, o.client)
			close(o.client)
		}
	case opCount:
		o.count <- len(h.clients)
	case opPublish, opChange:
		h.broadcast(o.event)
		if o.kind != opChange {
			return
		}
		if now := time.Now(); now.Sub(h.lastStats) >= b.statsMin {
			h.lastStats = now
			h.broadcast(Event{Type: StatsUpdated, Data: map[string]string{}})
		}
	}
}

// drain releases clients whose subscribe was still queued at Close.
func (b *Broker) drain() {
	for {
		select {
		case o := <-b.ops:
			switch o.kind {
			case opSubscribe:
				close(o.client)
			case opCount:
				o.count <- 0
			}
		default:
			return
		}
	}
}

func (b *Broker) enqueue(o op) bool {
	if b.closed.Load() {
		return false
	}
	select {
	case b.ops <- o:
		return true
	case <-b.stopped:
		return false
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel. The current session
// snapshot, if any, is the first frame on it.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, clientBuffer)
	if !b.enqueue(op{kind: opSubscribe, client: ch}) {
		close(ch)
	}
	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	b.enqueue(op{kind: opUnsubscribe, client: ch})
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	resp := make(chan int, 1)
	if !b.enqueue(op{kind: opCount, count: resp}) {
		return 0
	}
	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	b.enqueue(op{kind: opPublish, event: event})
}

// PublishChange publishes an event that alters label counts, followed by a
// throttled stats.updated event.
func (b *Broker) PublishChange(event Event) {
	b.enqueue(op{kind: opChange, event: event})
}

var imageEvents = map[string]string{
	"created": ImageCreated,
	"updated": ImageUpdated,
	"deleted": ImageDeleted,
}

// PublishImageEvent maps a watcher event kind ("created", "updated",
// "deleted") to an image event and publishes it as a change.
func (b *Broker) PublishImageEvent(kind, path string) {
	typ, ok := imageEvents[kind]
	if !ok {
		return
	}
	b.PublishChange(Event{Type: typ, Data: map[string]string{"path": path}})
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprintf(w, "retry: %d\n\n", retryMillis)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(b.keepAlive)
	defer ping.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			_, _ = w.Write([]byte(": keep-alive\n\n"))
			flusher.Flush()
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}

// Package sse implements a Server-Sent Events broker for comment index updates.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/starford/commentmap/internal/index"
)

// Event types sent to clients.
const (
	TypeBatchUpdated     = index.EventBatchUpdated
	TypeBatchDeleted     = index.EventBatchDeleted
	TypeDocumentReloaded = index.EventDocumentReloaded
	TypeFramesUpdated    = "frames.updated"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type changeReq struct {
	kind string
	name string
}

type subscription struct {
	ch    chan []byte
	after uint64
}

type record struct {
	id  uint64
	raw []byte
}

// Option configures a Broker.
type Option func(*Broker)

// WithKeepAlive sets the interval of comment lines written to idle
// streams. Zero disables them.
func WithKeepAlive(d time.Duration) Option {
	return func(b *Broker) { b.keepAlive = d }
}

// WithHistory sets how many past messages are kept for Last-Event-ID replay.
func WithHistory(n int) Option {
	return func(b *Broker) { b.historySize = max(n, 0) }
}

const (
	defaultKeepAlive = 25 * time.Second
	defaultHistory   = 128
	clientBuffer     = 64
)

// Broker manages SSE client connections and broadcasts events.
//
// A single event loop goroutine owns clients, the frames throttle, the
// sequence counter and the replay history. Public methods talk to it over
// channels. Every message carries an increasing id; a reconnecting client
// that sends Last-Event-ID receives the retained messages it missed.
type Broker struct {
	framesMin   time.Duration
	keepAlive   time.Duration
	historySize int

	subscribeCh   chan subscription
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	changeCh      chan changeReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker. framesThrottle is the minimum
// interval between frames.updated events.
func NewBroker(framesThrottle time.Duration, opts ...Option) *Broker {
	if framesThrottle <= 0 {
		framesThrottle = 2 * time.Second
	}

	b := &Broker{
		framesMin:     framesThrottle,
		keepAlive:     defaultKeepAlive,
		historySize:   defaultHistory,
		subscribeCh:   make(chan subscription),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		changeCh:      make(chan changeReq, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var (
		lastFrames time.Time
		seq        uint64
		history    []record
	)

	broadcast := func(event Event) {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return
		}
		seq++
		raw := []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", seq, event.Type, payload))

		if b.historySize > 0 {
			history = append(history, record{id: seq, raw: raw})
			if len(history) > b.historySize {
				history = history[len(history)-b.historySize:]
			}
		}

		for ch := range clients {
			select {
			case ch <- raw:
			default:
				// Slow client; the gap is visible through the ids.
			}
		}
	}

	for {
		select {
		case <-b.stopCh:
			for ch := range clients {
				close(ch)
			}
			return

		case sub := <-b.subscribeCh:
			clients[sub.ch] = struct{}{}
			if sub.after == 0 {
				continue
			}
			for _, rec := range history {
				if rec.id <= sub.after {
					continue
				}
				select {
				case sub.ch <- rec.raw:
				default:
				}
			}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case req := <-b.changeCh:
			switch req.kind {
			case TypeBatchUpdated, TypeBatchDeleted:
				broadcast(Event{Type: req.kind, Data: map[string]string{"batch": req.name}})
			case TypeDocumentReloaded:
				broadcast(Event{Type: req.kind, Data: map[string]string{"path": req.name}})
			default:
				continue
			}

			now := time.Now()
			if now.Sub(lastFrames) >= b.framesMin {
				lastFrames = now
				broadcast(Event{Type: TypeFramesUpdated, Data: map[string]string{}})
			}

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client that only receives future messages.
func (b *Broker) Subscribe() chan []byte {
	return b.SubscribeFrom(0)
}

// SubscribeFrom adds a new client and first replays retained messages with
// an id greater than after. Zero means no replay.
func (b *Broker) SubscribeFrom(after uint64) chan []byte {
	ch := make(chan []byte, clientBuffer)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- subscription{ch: ch, after: after}:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
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
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishChange publishes an index change followed by a throttled
// frames.updated event. Its signature matches index.EventCallback.
// Unknown kinds are dropped.
func (b *Broker) PublishChange(kind, name string) {
	if b.closed.Load() {
		return
	}
	select {
	case b.changeCh <- changeReq{kind: kind, name: name}:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events). A valid
// Last-Event-ID header resumes the stream after that id.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	var after uint64
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		if id, err := strconv.ParseUint(v, 10, 64); err == nil {
			after = id
		}
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.SubscribeFrom(after)
	defer b.Unsubscribe(ch)

	var tick <-chan time.Time
	if b.keepAlive > 0 {
		t := time.NewTicker(b.keepAlive)
		defer t.Stop()
		tick = t.C
	}

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-tick:
			_, _ = w.Write([]byte(": keepalive\n\n"))
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

// Package control exposes the operator control channel: newline-delimited
// JSON commands over TCP or websocket in, vehicle status events out.
package control

import (
	"context"
	"encoding/json"
	"io"
	"sync"

	"github.com/google/uuid"

	"droneswarm/internal/command"
	"droneswarm/internal/logging"
	"droneswarm/internal/vehicle"
)

// DefaultClientBuffer is the number of outgoing messages queued per client
// before further messages to it are dropped.
const DefaultClientBuffer = 256

// Dispatcher accepts decoded commands.
type Dispatcher interface {
	Dispatch(ctx context.Context, source string, c command.Command) error
}

// Message is an outgoing status event.
type Message struct {
	Type  string `json:"type"`
	Index *int   `json:"index,omitempty"`
	Value any    `json:"value"`
}

// MessageError is the type of the reply sent for a rejected command.
const MessageError = "error"

// Encode renders m as one JSON line.
func (m Message) Encode() ([]byte, error) {
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

// FromEvent converts a vehicle event into a status message.
func FromEvent(e vehicle.Event) Message {
	i := e.Index
	return Message{Type: string(e.Field), Index: &i, Value: e.Value}
}

type client struct {
	send chan []byte
	once sync.Once
}

func (c *client) close() { c.once.Do(func() { close(c.send) }) }

// Hub fans status messages out to every connected client.
type Hub struct {
	buffer int

	mu      sync.Mutex
	clients map[string]*client
	dropped int
}

// NewHub creates a hub with the given per-client buffer.
func NewHub(buffer int) *Hub {
	if buffer <= 0 {
		buffer = DefaultClientBuffer
	}
	return &Hub{buffer: buffer, clients: make(map[string]*client)}
}

// Register adds a client. Messages arrive on the returned channel, which is
// closed by unregister.
func (h *Hub) Register() (id string, messages <-chan []byte, unregister func()) {
	c := &client{send: make(chan []byte, h.buffer)}
	id = uuid.NewString()
	h.mu.Lock()
	h.clients[id] = c
	h.mu.Unlock()
	return id, c.send, func() {
		h.mu.Lock()
		delete(h.clients, id)
		h.mu.Unlock()
		c.close()
	}
}

// Clients returns the number of registered clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Dropped returns how many messages were discarded for slow clients.
func (h *Hub) Dropped() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}

// Broadcast sends m to every client without blocking.
func (h *Hub) Broadcast(m Message) {
	b, err := m.Encode()
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, c := range h.clients {
		h.offer(c, b)
	}
}

// SendTo sends m to a single client.
func (h *Hub) SendTo(id string, m Message) {
	b, err := m.Encode()
	if err != nil {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if c, ok := h.clients[id]; ok {
		h.offer(c, b)
	}
}

func (h *Hub) offer(c *client, b []byte) {
	select {
	case c.send <- b:
	default:
		h.dropped++
	}
}

// Observe is a vehicle.Observer broadcasting every event.
func (h *Hub) Observe(e vehicle.Event) {
	h.Broadcast(FromEvent(e))
}

// handle decodes one inbound message and dispatches it. Rejections are
// replied to the sending client only.
func (h *Hub) handle(ctx context.Context, d Dispatcher, id, source string, data []byte) {
	log := logging.FromContext(ctx).With("client", id)
	c, err := command.Decode(data)
	if err == nil {
		err = d.Dispatch(ctx, source, c)
	}
	if err != nil {
		log.Warn("command rejected", "err", err, "message", string(data))
		h.SendTo(id, Message{Type: MessageError, Value: err.Error()})
	}
}

// conns tracks open connections so they can be closed on shutdown.
type conns struct {
	mu sync.Mutex
	m  map[io.Closer]struct{}
	wg sync.WaitGroup
}

func (t *conns) add(c io.Closer) {
	t.mu.Lock()
	if t.m == nil {
		t.m = make(map[io.Closer]struct{})
	}
	t.m[c] = struct{}{}
	t.mu.Unlock()
	t.wg.Add(1)
}

func (t *conns) done(c io.Closer) {
	t.mu.Lock()
	delete(t.m, c)
	t.mu.Unlock()
	t.wg.Done()
}

func (t *conns) closeAll() {
	t.mu.Lock()
	for c := range t.m {
		_ = c.Close()
	}
	t.mu.Unlock()
}

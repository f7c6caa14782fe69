package events

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Hub manages streaming subscribers and broadcasts events to them.
// It runs an event loop in a separate goroutine.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Client]struct{}

	// Channels for client management
	register   chan *Client
	unregister chan *Client
	broadcast  chan Event

	// done signals the Run loop to exit
	done     chan struct{}
	stopOnce sync.Once
}

// Client is one subscriber. RunID, when set, limits it to one run.
type Client struct {
	ID     string
	RunID  string
	events chan Event
}

// NewHub creates a hub with initialized channels.
// Call Run() to start the event loop.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan Event, 256),
		done:       make(chan struct{}),
	}
}

// Run starts the hub's event loop.
// Blocks until Stop() is called - run in a goroutine.
func (h *Hub) Run() {
	for {
		select {
		case <-h.done:
			h.mu.Lock()
			for client := range h.clients {
				close(client.events)
			}
			h.clients = make(map[*Client]struct{})
			h.mu.Unlock()
			return
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = struct{}{}
			h.mu.Unlock()
		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.events)
			}
			h.mu.Unlock()
		case event := <-h.broadcast:
			h.mu.RLock()
			for client := range h.clients {
				if client.RunID != "" && client.RunID != event.RunID {
					continue
				}
				select {
				case client.events <- event:
				default:
					// Buffer full, drop event for this client
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Stop ends the event loop and closes every client.
func (h *Hub) Stop() {
	if h == nil {
		return
	}
	h.stopOnce.Do(func() { close(h.done) })
}

// Subscribe registers a client for runID, or for every run when runID is
// empty. It returns nil once the hub has stopped.
func (h *Hub) Subscribe(runID string) *Client {
	c := &Client{
		ID:     ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String(),
		RunID:  runID,
		events: make(chan Event, 256),
	}
	select {
	case <-h.done:
		return nil
	default:
	}
	select {
	case h.register <- c:
		return c
	case <-h.done:
		return nil
	}
}

// Unsubscribe removes a client and closes its channel.
func (h *Hub) Unsubscribe(c *Client) {
	if c == nil {
		return
	}
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Publish stamps the event and queues it for broadcast. It never blocks:
// when the queue is full or the hub has stopped the event is dropped.
func (h *Hub) Publish(e Event) {
	if h == nil {
		return
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	select {
	case <-h.done:
	case h.broadcast <- e:
	default:
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Events returns the client's stream. It is closed on Unsubscribe or Stop.
func (c *Client) Events() <-chan Event {
	return c.events
}

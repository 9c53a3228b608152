// Package events streams prompt and version lifecycle events to their owners
// over Server-Sent Events.
package events

import (
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	// WriteTimeout bounds a single frame write to a subscriber.
	WriteTimeout = 2 * time.Second
	// QueueSize is the number of undelivered frames a subscriber may lag
	// behind before it is dropped.
	QueueSize = 32
	// HeartbeatInterval is how often an idle stream receives a comment frame.
	HeartbeatInterval = 15 * time.Second
)

// Event types published by the services.
const (
	TypeVersionCreated    = "version.created"
	TypeVersionRolledBack = "version.rolled_back"
	TypeVersionDeleted    = "version.deleted"
	TypeVersionTagged     = "version.tagged"
	TypePromptSaved       = "prompt.saved"
)

// Event is the JSON payload of one SSE frame.
type Event struct {
	Data      interface{} `json:"data,omitempty"`
	Type      string      `json:"type"`
	ID        uint64      `json:"id"`
	Timestamp int64       `json:"timestamp"`
}

// Client is one subscribed event stream.
type Client struct {
	Done    chan struct{}
	queue   chan []byte
	ID      string
	OwnerID int64

	closeOnce sync.Once
}

func (c *Client) close() {
	c.closeOnce.Do(func() { close(c.Done) })
}

// Broadcaster fans events out to the subscribers of the owning user.
type Broadcaster struct {
	owners map[int64]map[string]*Client
	seq    atomic.Uint64
	mu     sync.RWMutex
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{owners: make(map[int64]map[string]*Client)}
}

// Subscribe registers a stream for ownerID.
func (b *Broadcaster) Subscribe(ownerID int64) *Client {
	client := &Client{
		ID:      uuid.NewString(),
		OwnerID: ownerID,
		Done:    make(chan struct{}),
		queue:   make(chan []byte, QueueSize),
	}

	b.mu.Lock()
	streams, ok := b.owners[ownerID]
	if !ok {
		streams = make(map[string]*Client)
		b.owners[ownerID] = streams
	}
	streams[client.ID] = client
	b.mu.Unlock()

	log.Debug().Str("client_id", client.ID).Int64("owner_id", ownerID).Msg("Event stream subscribed")
	return client
}

// Unsubscribe removes a stream and closes its Done channel. It is safe to
// call more than once.
func (b *Broadcaster) Unsubscribe(client *Client) {
	b.mu.Lock()
	if streams, ok := b.owners[client.OwnerID]; ok {
		delete(streams, client.ID)
		if len(streams) == 0 {
			delete(b.owners, client.OwnerID)
		}
	}
	b.mu.Unlock()
	client.close()
}

// Publish queues an event for every stream of ownerID. Streams whose queue
// is full are dropped. Publish never blocks on a subscriber.
func (b *Broadcaster) Publish(ownerID int64, eventType string, data interface{}) {
	b.mu.RLock()
	streams := make([]*Client, 0, len(b.owners[ownerID]))
	for _, client := range b.owners[ownerID] {
		streams = append(streams, client)
	}
	b.mu.RUnlock()

	if len(streams) == 0 {
		return
	}

	id := b.seq.Add(1)
	payload, err := json.Marshal(Event{
		ID:        id,
		Type:      eventType,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
	})
	if err != nil {
		log.Error().Err(err).Str("type", eventType).Msg("Failed to encode event")
		return
	}
	frame := []byte(fmt.Sprintf("id: %d\nevent: %s\ndata: %s\n\n", id, eventType, payload))

	for _, client := range streams {
		select {
		case client.queue <- frame:
		case <-client.Done:
		default:
			log.Warn().
				Str("client_id", client.ID).
				Int64("owner_id", ownerID).
				Msg("Event stream lagging, dropping subscriber")
			b.Unsubscribe(client)
		}
	}
}

// ClientCount returns the number of open streams.
func (b *Broadcaster) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, streams := range b.owners {
		n += len(streams)
	}
	return n
}

// HandleSSE streams ownerID's events until the request ends, the subscriber
// is dropped or a write fails.
func (b *Broadcaster) HandleSSE(w http.ResponseWriter, r *http.Request, ownerID int64) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	client := b.Subscribe(ownerID)
	defer b.Unsubscribe(client)

	rc := http.NewResponseController(w)
	send := func(frame []byte) bool {
		if err := rc.SetWriteDeadline(time.Now().Add(WriteTimeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
			log.Debug().Err(err).Str("client_id", client.ID).Msg("Failed to set stream write deadline")
		}
		if _, err := w.Write(frame); err != nil {
			log.Debug().Err(err).Str("client_id", client.ID).Msg("Event stream write failed")
			return false
		}
		flusher.Flush()
		return true
	}

	if !send([]byte(fmt.Sprintf("data: {\"type\":\"connected\",\"client_id\":%q}\n\n", client.ID))) {
		return
	}

	heartbeat := time.NewTicker(HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-client.Done:
			return
		case frame := <-client.queue:
			if !send(frame) {
				return
			}
		case <-heartbeat.C:
			if !send([]byte(": ping\n\n")) {
				return
			}
		}
	}
}

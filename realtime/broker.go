// Package realtime fans engine events out to dashboard clients over Server-Sent Events and
// WebSocket. When a Redis relay is attached, events travel through a pub/sub channel so
// every API instance delivers them to its own clients.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"localsearch-forecast/cache"
	"localsearch-forecast/metrics"
)

// Transports
const (
	TransportSSE       = "sse"
	TransportWebSocket = "websocket"
)

const clientBuffer = 16

// Message is the envelope delivered to every client
type Message struct {
	Event     string          `json:"event"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
}

type registration struct {
	ch        chan []byte
	transport string
}

// Broker handles SSE and WebSocket clients and broadcasting
type Broker struct {
	clients    map[chan []byte]string
	register   chan registration
	unregister chan chan []byte
	broadcast  chan []byte
	mu         sync.RWMutex

	relay        *cache.RedisClient
	relayChannel string

	logger *logrus.Entry
	now    func() time.Time
}

// NewBroker creates a new broker
func NewBroker(logger *logrus.Entry) *Broker {
	if logger == nil {
		logger = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Broker{
		clients:    make(map[chan []byte]string),
		register:   make(chan registration),
		unregister: make(chan chan []byte),
		broadcast:  make(chan []byte, 1000),
		logger:     logger.WithField("component", "realtime"),
		now:        time.Now,
	}
}

// Run starts the broker loop and returns when ctx is cancelled. All clients are
// disconnected on return.
func (b *Broker) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			b.mu.Lock()
			for client, transport := range b.clients {
				delete(b.clients, client)
				close(client)
				metrics.TrackRealtimeClient(transport, false)
			}
			b.mu.Unlock()
			return

		case reg := <-b.register:
			b.mu.Lock()
			b.clients[reg.ch] = reg.transport
			total := len(b.clients)
			b.mu.Unlock()
			metrics.TrackRealtimeClient(reg.transport, true)
			b.logger.WithFields(logrus.Fields{"transport": reg.transport, "total": total}).Debug("Client connected")

		case client := <-b.unregister:
			b.mu.Lock()
			if transport, ok := b.clients[client]; ok {
				delete(b.clients, client)
				close(client)
				metrics.TrackRealtimeClient(transport, false)
				b.logger.WithFields(logrus.Fields{"transport": transport, "total": len(b.clients)}).Debug("Client disconnected")
			}
			b.mu.Unlock()

		case msg := <-b.broadcast:
			b.mu.RLock()
			for client := range b.clients {
				select {
				case client <- msg:
				default:
					// slow client, drop
				}
			}
			b.mu.RUnlock()
		}
	}
}

// ClientCount returns the number of connected clients
func (b *Broker) ClientCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func (b *Broker) subscribe(ctx context.Context, transport string) (chan []byte, bool) {
	ch := make(chan []byte, clientBuffer)
	select {
	case b.register <- registration{ch: ch, transport: transport}:
		return ch, true
	case <-ctx.Done():
		return nil, false
	}
}

func (b *Broker) unsubscribe(ch chan []byte) {
	// the broker may already have stopped
	select {
	case b.unregister <- ch:
	case <-time.After(time.Second):
	}
}

// ServeHTTP handles the SSE endpoint
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

	clientChan, ok := b.subscribe(r.Context(), TransportSSE)
	if !ok {
		return
	}
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	notify := r.Context().Done()
	for {
		select {
		case <-notify:
			b.unsubscribe(clientChan)
			return
		case msg, open := <-clientChan:
			if !open {
				return
			}
			fmt.Fprintf(w, "data: %s\n\n", msg)
			flusher.Flush()
		}
	}
}

// Broadcast sends an event to all connected clients, through the relay when one is attached
func (b *Broker) Broadcast(event string, payload interface{}) {
	body, err := json.Marshal(payload)
	if err != nil {
		b.logger.WithError(err).WithField("event", event).Warn("⚠️  Failed to encode broadcast payload")
		return
	}
	msg := Message{Event: event, Payload: body, Timestamp: b.now().UTC()}

	if b.relay != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		pubErr := b.relay.Publish(ctx, b.relayChannel, msg)
		if pubErr == nil {
			return
		}
		b.logger.WithError(pubErr).Warn("⚠️  Relay publish failed, delivering locally")
	}

	jsonBytes, err := json.Marshal(msg)
	if err != nil {
		return
	}
	b.deliver(jsonBytes)
}

func (b *Broker) deliver(msg []byte) {
	select {
	case b.broadcast <- msg:
	default:
		b.logger.Warn("⚠️  Broadcast buffer full, dropping event")
	}
}

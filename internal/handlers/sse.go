// handlers/sse.go
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"pricecomparator/internal/logger"
	"pricecomparator/internal/models"
	"pricecomparator/internal/view"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const (
	clientBuffer      = 10
	heartbeatInterval = 15 * time.Second
)

var (
	streamClients = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stream_clients",
			Help: "Number of connected stream clients by transport",
		},
		[]string{"transport"},
	)
	streamDropped = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "stream_messages_dropped_total",
			Help: "Messages dropped because a client was too slow",
		},
	)
)

func init() {
	prometheus.MustRegister(streamClients)
	prometheus.MustRegister(streamDropped)
}

// Hub fans rendered view models out to every connected stream client.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]chan []byte
	last    []byte
	done    chan struct{}
	once    sync.Once
}

func NewHub() *Hub {
	return &Hub{
		clients: make(map[string]chan []byte),
		done:    make(chan struct{}),
	}
}

// Publish is a widget observer: it renders the snapshot and broadcasts it.
func (h *Hub) Publish(snap models.Snapshot) {
	payload, err := json.Marshal(view.Render(snap))
	if err != nil {
		logger.Log.Error("Failed to marshal view model", zap.Error(err))
		return
	}
	h.Broadcast(payload)
}

// Broadcast sends payload to all clients, dropping it for clients whose
// buffer is full.
func (h *Hub) Broadcast(payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.last = payload

	for id, ch := range h.clients {
		select {
		case ch <- payload:
		default:
			streamDropped.Inc()
			logger.Log.Warn("Update dropped due to slow client", zap.String("client_id", id))
		}
	}
}

// Done is closed when the hub shuts down.
func (h *Hub) Done() <-chan struct{} {
	return h.done
}

// Close tells every stream handler to return.
func (h *Hub) Close() {
	h.once.Do(func() { close(h.done) })
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// register adds a client and primes it with the latest payload so a new page
// does not wait for the next mutation.
func (h *Hub) register(transport string) (string, chan []byte) {
	id := uuid.New().String()
	ch := make(chan []byte, clientBuffer)

	h.mu.Lock()
	h.clients[id] = ch
	if h.last != nil {
		ch <- h.last
	}
	count := len(h.clients)
	h.mu.Unlock()

	streamClients.WithLabelValues(transport).Inc()
	logger.Log.Info("Stream client connected",
		zap.String("client_id", id),
		zap.String("transport", transport),
		zap.Int("total_clients", count),
	)
	return id, ch
}

func (h *Hub) unregister(id, transport string) {
	h.mu.Lock()
	delete(h.clients, id)
	count := len(h.clients)
	h.mu.Unlock()

	streamClients.WithLabelValues(transport).Dec()
	logger.Log.Info("Stream client disconnected",
		zap.String("client_id", id),
		zap.String("transport", transport),
		zap.Int("total_clients", count),
	)
}

// StreamHandler serves view model updates as server-sent events.
func (h *Handlers) StreamHandler(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	id, ch := h.hub.register("sse")
	defer h.hub.unregister(id, "sse")

	fmt.Fprintf(w, "retry: 3000\n\n")
	flusher.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case payload := <-ch:
			fmt.Fprintf(w, "data: %s\n\n", payload)
			flusher.Flush()
		case <-heartbeat.C:
			fmt.Fprintf(w, ": heartbeat %s\n\n", time.Now().Format(time.RFC3339))
			flusher.Flush()
		case <-r.Context().Done():
			return
		case <-h.hub.Done():
			return
		}
	}
}

package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strconv"
	"time"

	"pricecomparator/internal/logger"
	"pricecomparator/internal/models"
	"pricecomparator/internal/tracing"
	"pricecomparator/internal/view"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

const maxTargetBody = 4 << 10

// StateStore is the widget state as seen by the HTTP layer.
type StateStore interface {
	Snapshot() models.Snapshot
	SetTargetInput(raw string) models.Snapshot
}

// RateLimiter bounds how often a single client may change the target.
type RateLimiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

type Response struct {
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// StatePayload is the JSON form of the widget: raw state plus its rendering.
type StatePayload struct {
	State models.Snapshot `json:"state"`
	View  view.Model      `json:"view"`
}

// SetTargetRequest carries the raw field text. Session and Seq are optional;
// when both are set, updates from one page are applied in Seq order.
type SetTargetRequest struct {
	Value   string `json:"value"`
	Session string `json:"session,omitempty"`
	Seq     uint64 `json:"seq,omitempty"`
}

type Handlers struct {
	store    StateStore
	hub      *Hub
	limiter  RateLimiter
	targets  *targetSequencer
	instance string
}

// New wires the handlers. limiter may be nil to disable rate limiting.
func New(store StateStore, hub *Hub, limiter RateLimiter, instance string) *Handlers {
	return &Handlers{
		store:    store,
		hub:      hub,
		limiter:  limiter,
		targets:  newTargetSequencer(),
		instance: instance,
	}
}

// PageHandler renders the widget page from the current state. Each page load
// gets its own session ID for ordering target updates.
func (h *Handlers) PageHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := view.WritePage(w, view.Render(h.store.Snapshot()), uuid.NewString()); err != nil {
		logger.Log.Error("Failed to render page", zap.Error(err))
	}
}

// GetStateHandler returns the current state and its view model.
func (h *Handlers) GetStateHandler(w http.ResponseWriter, r *http.Request) {
	_, span := otel.Tracer(tracing.TracerName).Start(r.Context(), "GetStateHandler")
	defer span.End()

	snap := h.store.Snapshot()
	writeJSON(w, http.StatusOK, Response{
		Message: "State retrieved successfully",
		Data:    StatePayload{State: snap, View: view.Render(snap)},
	})
}

// SetTargetHandler applies the raw text of the target field. Text that is not
// a number clears the target; that is not an error.
func (h *Handlers) SetTargetHandler(w http.ResponseWriter, r *http.Request) {
	ctx, span := otel.Tracer(tracing.TracerName).Start(r.Context(), "SetTargetHandler")
	defer span.End()

	traceID := span.SpanContext().TraceID().String()

	if h.limiter != nil {
		allowed, retryAfter, err := h.limiter.Allow(ctx, clientKey(r))
		if err != nil {
			// Limiter outages must not lock users out of the widget.
			logger.Log.Warn("Rate limiter unavailable, allowing request",
				zap.String("trace_id", traceID),
				zap.Error(err),
			)
		} else if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
			http.Error(w, "Too many target updates", http.StatusTooManyRequests)
			return
		}
	}

	var req SetTargetRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxTargetBody)).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		logger.Log.Error("Failed to parse request body",
			zap.String("trace_id", traceID),
			zap.Error(err),
		)
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var snap models.Snapshot
	if !h.targets.apply(req.Session, req.Seq, func() { snap = h.store.SetTargetInput(req.Value) }) {
		snap = h.store.Snapshot()
		span.SetAttributes(attribute.Bool("target.stale", true))
		logger.Log.Debug("Ignoring stale target update",
			zap.String("trace_id", traceID),
			zap.String("session", req.Session),
			zap.Uint64("seq", req.Seq),
		)
		writeJSON(w, http.StatusConflict, Response{
			Message: "Stale target update ignored",
			Data:    StatePayload{State: snap, View: view.Render(snap)},
		})
		return
	}
	span.SetAttributes(
		attribute.Bool("target.present", snap.TargetPrice != nil),
		attribute.Int64("state.version", int64(snap.Version)),
	)

	logger.Log.Info("Target price updated",
		zap.String("trace_id", traceID),
		zap.String("instance", h.instance),
		zap.Bool("target_present", snap.TargetPrice != nil),
		zap.Bool("comparison_present", snap.Comparison != nil),
	)

	writeJSON(w, http.StatusOK, Response{
		Message: "Target updated successfully",
		Data:    StatePayload{State: snap, View: view.Render(snap)},
	})
}

// HealthHandler reports liveness.
func (h *Handlers) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Response{
		Message: "ok",
		Data: map[string]interface{}{
			"instance":       h.instance,
			"stream_clients": h.hub.ClientCount(),
			"has_price":      h.store.Snapshot().CurrentPrice != nil,
		},
	})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		logger.Log.Debug("Response write failed", zap.Error(err))
	}
}

func clientKey(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

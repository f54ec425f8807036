package handlers

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pricecomparator/internal/models"
	"pricecomparator/internal/view"
	"pricecomparator/internal/widget"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubLimiter struct {
	allowed bool
	err     error
	keys    []string
}

func (l *stubLimiter) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	l.keys = append(l.keys, key)
	return l.allowed, 2 * time.Second, l.err
}

type stateResponse struct {
	Message string       `json:"message"`
	Data    StatePayload `json:"data"`
}

func newTestServer(t *testing.T, limiter RateLimiter) (*widget.Controller, *Hub, http.Handler) {
	t.Helper()
	ctrl := widget.NewController()
	hub := NewHub()
	ctrl.Subscribe(hub.Publish)
	t.Cleanup(hub.Close)
	return ctrl, hub, NewRouter(New(ctrl, hub, limiter, "test-1"))
}

func decodeState(t *testing.T, rec *httptest.ResponseRecorder) stateResponse {
	t.Helper()
	var resp stateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func putTarget(router http.Handler, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPut, "/api/target", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestGetStateBeforeFirstFetch(t *testing.T) {
	_, _, router := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/state", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeState(t, rec)
	assert.Nil(t, resp.Data.State.CurrentPrice)
	assert.False(t, resp.Data.View.ShowResult)
	assert.Empty(t, resp.Data.View.CurrentPriceText)
}

func TestSetTargetRendersComparison(t *testing.T) {
	ctrl, _, router := newTestServer(t, nil)
	ctrl.SetCurrentPrice(models.Quote{Price: 50000})

	rec := putTarget(router, `{"value":"55000"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeState(t, rec)
	require.True(t, resp.Data.View.ShowResult)
	assert.Equal(t, view.DirectionRise, resp.Data.View.Result.Direction)
	assert.Equal(t, "$5000.00", resp.Data.View.Result.DifferenceText)
	assert.Equal(t, "10.00%", resp.Data.View.Result.PercentageText)
	assert.Equal(t, "55000", resp.Data.View.TargetPriceText)
}

func TestSetTargetNonNumericHidesPanel(t *testing.T) {
	ctrl, _, router := newTestServer(t, nil)
	ctrl.SetCurrentPrice(models.Quote{Price: 50000})
	putTarget(router, `{"value":"55000"}`)

	rec := putTarget(router, `{"value":"fifty"}`)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeState(t, rec)
	assert.Nil(t, resp.Data.State.TargetPrice)
	assert.False(t, resp.Data.View.ShowResult)
	assert.Equal(t, "fifty", resp.Data.View.TargetPriceText)
}

func TestSetTargetViaPost(t *testing.T) {
	_, _, router := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/target", strings.NewReader(`{"value":"1.5"}`))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeState(t, rec)
	require.NotNil(t, resp.Data.State.TargetPrice)
	assert.Equal(t, 1.5, *resp.Data.State.TargetPrice)
}

func TestSetTargetBadBody(t *testing.T) {
	_, _, router := newTestServer(t, nil)

	rec := putTarget(router, `{"value":`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSetTargetRateLimited(t *testing.T) {
	limiter := &stubLimiter{allowed: false}
	ctrl, _, router := newTestServer(t, limiter)

	rec := putTarget(router, `{"value":"55000"}`)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "3", rec.Header().Get("Retry-After"))
	assert.Nil(t, ctrl.Snapshot().TargetPrice)
	assert.Len(t, limiter.keys, 1)
}

func TestSetTargetLimiterErrorFailsOpen(t *testing.T) {
	limiter := &stubLimiter{err: errors.New("redis down")}
	ctrl, _, router := newTestServer(t, limiter)

	rec := putTarget(router, `{"value":"55000"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotNil(t, ctrl.Snapshot().TargetPrice)
}

func TestMethodNotAllowed(t *testing.T) {
	_, _, router := newTestServer(t, nil)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/api/target", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestPageHandler(t *testing.T) {
	ctrl, _, router := newTestServer(t, nil)
	ctrl.SetCurrentPrice(models.Quote{Price: 60000})
	ctrl.SetTargetInput("54000")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	body := rec.Body.String()
	assert.Contains(t, body, "Price needs to fall")
	assert.Contains(t, body, "$6000.00")
	assert.Contains(t, body, "Michael invites for dinner")
}

func TestHealthAndMetrics(t *testing.T) {
	ctrl, _, router := newTestServer(t, nil)
	ctrl.SetTargetInput("1")

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"instance":"test-1"`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "comparator_target_updates_total")
}

func readEvent(t *testing.T, r *bufio.Reader) view.Model {
	t.Helper()
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		if strings.HasPrefix(line, "data: ") {
			var m view.Model
			require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "data: ")), &m))
			return m
		}
	}
}

func TestStreamDeliversUpdates(t *testing.T) {
	ctrl, hub, router := newTestServer(t, nil)
	ctrl.SetCurrentPrice(models.Quote{Price: 50000})

	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	defer hub.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)

	first := readEvent(t, reader)
	assert.Equal(t, "50000.00", first.CurrentPriceText)
	assert.False(t, first.ShowResult)

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	ctrl.SetTargetInput("55000")

	next := readEvent(t, reader)
	assert.True(t, next.ShowResult)
	assert.Greater(t, next.Version, first.Version)
	assert.Equal(t, "Lexander invites for dinner", next.Result.Dinner.Message)
}

func TestWebSocketDeliversUpdates(t *testing.T) {
	ctrl, hub, router := newTestServer(t, nil)

	srv := httptest.NewServer(router)
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	defer hub.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	ctrl.SetCurrentPrice(models.Quote{Price: 60000})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	var m view.Model
	require.NoError(t, conn.ReadJSON(&m))
	assert.Equal(t, "60000.00", m.CurrentPriceText)
}

func TestBroadcastDropsForSlowClients(t *testing.T) {
	hub := NewHub()
	id, ch := hub.register("test")
	defer hub.unregister(id, "test")

	for i := 0; i < clientBuffer+5; i++ {
		hub.Broadcast([]byte("x"))
	}
	assert.Len(t, ch, clientBuffer)
}

func TestSetTargetOutOfOrderKeystrokes(t *testing.T) {
	ctrl, _, router := newTestServer(t, nil)
	ctrl.SetCurrentPrice(models.Quote{Price: 50000})

	rec := putTarget(router, `{"value":"55000","session":"tab-a","seq":2}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = putTarget(router, `{"value":"550","session":"tab-a","seq":1}`)
	require.Equal(t, http.StatusConflict, rec.Code)
	resp := decodeState(t, rec)
	assert.Equal(t, "55000", resp.Data.View.TargetPriceText)

	snap := ctrl.Snapshot()
	require.NotNil(t, snap.TargetPrice)
	assert.Equal(t, 55000.0, *snap.TargetPrice)
	assert.Equal(t, "55000", snap.TargetInput)

	rec = putTarget(router, `{"value":"550","session":"tab-a","seq":2}`)
	assert.Equal(t, http.StatusConflict, rec.Code, "repeated sequence numbers are stale")
}

func TestSetTargetSessionsAreIndependent(t *testing.T) {
	ctrl, _, router := newTestServer(t, nil)

	require.Equal(t, http.StatusOK, putTarget(router, `{"value":"100","session":"tab-a","seq":9}`).Code)
	require.Equal(t, http.StatusOK, putTarget(router, `{"value":"200","session":"tab-b","seq":1}`).Code)
	require.Equal(t, http.StatusOK, putTarget(router, `{"value":"300"}`).Code)

	assert.Equal(t, "300", ctrl.Snapshot().TargetInput)
}

func TestStreamCarriesTargetFromOtherClients(t *testing.T) {
	ctrl, hub, router := newTestServer(t, nil)
	ctrl.SetCurrentPrice(models.Quote{Price: 50000})

	srv := httptest.NewServer(router)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/stream")
	require.NoError(t, err)
	defer resp.Body.Close()
	defer hub.Close()
	r := bufio.NewReader(resp.Body)
	readEvent(t, r)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	rec := putTarget(router, `{"value":"55000","session":"tab-a","seq":1}`)
	require.Equal(t, http.StatusOK, rec.Code)

	m := readEvent(t, r)
	assert.Equal(t, "55000", m.TargetPriceText)
	assert.True(t, m.ShowResult)
}

func TestTargetSequencerPrunesSessions(t *testing.T) {
	seqr := newTargetSequencer()
	base := time.Now()
	seqr.now = func() time.Time { return base }

	for i := 0; i < maxTargetSessions; i++ {
		require.True(t, seqr.apply(fmt.Sprintf("old-%d", i), 1, func() {}))
	}
	seqr.now = func() time.Time { return base.Add(2 * targetSessionTTL) }

	require.True(t, seqr.apply("fresh", 1, func() {}))
	assert.Equal(t, 1, seqr.size())

	seqr.now = func() time.Time { return base.Add(2*targetSessionTTL + time.Second) }
	for i := 1; i < maxTargetSessions; i++ {
		require.True(t, seqr.apply(fmt.Sprintf("new-%d", i), 1, func() {}))
	}
	require.True(t, seqr.apply("overflow", 1, func() {}))
	assert.Equal(t, maxTargetSessions, seqr.size())
	assert.True(t, seqr.apply("fresh", 1, func() {}), "oldest session was forgotten")
}

// ABOUTME: Tests for the HTTP API, websocket event stream, and server lifecycle
// ABOUTME: Runs against an in-memory SQLite storage area through httptest

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/spinwheel/internal/config"
	"github.com/2389/spinwheel/internal/history"
	"github.com/2389/spinwheel/internal/notify"
	"github.com/2389/spinwheel/internal/participants"
	"github.com/2389/spinwheel/internal/settings"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Storage.Path = ":memory:"
	cfg.Server.HTTPAddr = "127.0.0.1:0"

	srv, err := New(t.Context(), cfg, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func do(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		if s, ok := body.(string); ok {
			r = strings.NewReader(s)
		} else {
			data, err := json.Marshal(body)
			require.NoError(t, err)
			r = bytes.NewReader(data)
		}
	}
	req := httptest.NewRequest(method, path, r)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	w := do(t, srv, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "OK", w.Body.String())
}

func TestParticipants_AddListRemove(t *testing.T) {
	srv := newTestServer(t)

	w := do(t, srv, http.MethodPost, "/api/participants", AddParticipantRequest{Name: "  Alice "})
	require.Equal(t, http.StatusCreated, w.Code)
	alice := decode[participants.Participant](t, w)
	assert.Equal(t, "Alice", alice.Name)
	assert.Equal(t, participants.Palette[0], alice.Color)

	w = do(t, srv, http.MethodGet, "/api/participants", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []participants.Participant{alice}, decode[[]participants.Participant](t, w))

	w = do(t, srv, http.MethodDelete, "/api/participants/"+alice.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = do(t, srv, http.MethodDelete, "/api/participants/"+alice.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, srv, http.MethodGet, "/api/participants", nil)
	assert.Equal(t, "[]\n", w.Body.String())
}

func TestParticipants_AddBlank(t *testing.T) {
	srv := newTestServer(t)

	w := do(t, srv, http.MethodPost, "/api/participants", AddParticipantRequest{Name: "   "})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "name is required", decode[map[string]string](t, w)["error"])

	w = do(t, srv, http.MethodPost, "/api/participants", "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, 0, srv.App().Participants().Len())
}

func TestParticipants_Bulk(t *testing.T) {
	srv := newTestServer(t)

	w := do(t, srv, http.MethodPost, "/api/participants/bulk", AddParticipantsRequest{Names: []string{"a", "", "b"}})
	require.Equal(t, http.StatusCreated, w.Code)
	resp := decode[AddParticipantsResponse](t, w)
	assert.Len(t, resp.Added, 2)
	assert.Len(t, resp.Participants, 2)

	w = do(t, srv, http.MethodPost, "/api/participants/bulk", AddParticipantsRequest{Names: []string{" "}})
	require.Equal(t, http.StatusOK, w.Code)
	resp = decode[AddParticipantsResponse](t, w)
	assert.Empty(t, resp.Added)
	assert.Len(t, resp.Participants, 2)
}

func TestParticipants_ReplaceAndClear(t *testing.T) {
	srv := newTestServer(t)

	list := []participants.Participant{{ID: "x", Name: "X"}, {ID: "y", Name: "Y", Color: "#000"}}
	w := do(t, srv, http.MethodPut, "/api/participants", list)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, list, decode[[]participants.Participant](t, w))

	w = do(t, srv, http.MethodDelete, "/api/participants", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 0, srv.App().Participants().Len())
}

func TestSettings_Endpoints(t *testing.T) {
	srv := newTestServer(t)

	w := do(t, srv, http.MethodGet, "/api/settings", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"selectionType":"wheel","excludePreviousWinners":false,"animationDuration":5000,"isDarkMode":false,"theme":""}`, w.Body.String())

	w = do(t, srv, http.MethodPut, "/api/settings/selection-type", SelectionTypeRequest{SelectionType: "dartboard"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, settings.Dartboard, decode[SettingsResponse](t, w).SelectionType)

	w = do(t, srv, http.MethodPut, "/api/settings/selection-type", SelectionTypeRequest{SelectionType: "slots"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, srv, http.MethodPost, "/api/settings/exclude-previous-winners/toggle", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[SettingsResponse](t, w).ExcludePreviousWinners)

	w = do(t, srv, http.MethodPut, "/api/settings/animation-duration", AnimationDurationRequest{AnimationDuration: 2500})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 2500, decode[SettingsResponse](t, w).AnimationDuration)

	w = do(t, srv, http.MethodPut, "/api/settings/animation-duration", AnimationDurationRequest{AnimationDuration: 0})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(t, srv, http.MethodPost, "/api/settings/dark-mode/toggle", nil)
	require.Equal(t, http.StatusOK, w.Code)
	resp := decode[SettingsResponse](t, w)
	assert.True(t, resp.IsDarkMode)
	assert.Equal(t, "dark", resp.Theme)
}

func TestSpin_AndHistory(t *testing.T) {
	srv := newTestServer(t)

	w := do(t, srv, http.MethodPost, "/api/spin", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	do(t, srv, http.MethodPost, "/api/participants/bulk", AddParticipantsRequest{Names: []string{"Alice", "Bob"}})

	w = do(t, srv, http.MethodPost, "/api/spin", nil)
	require.Equal(t, http.StatusCreated, w.Code)
	entry := decode[history.Entry](t, w)
	assert.Len(t, entry.Participants, 2)
	assert.NotZero(t, entry.Timestamp)

	w = do(t, srv, http.MethodGet, "/api/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	entries := decode[[]history.Entry](t, w)
	require.Len(t, entries, 1)
	assert.Equal(t, entry.ID, entries[0].ID)

	w = do(t, srv, http.MethodGet, "/api/history/winners", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []participants.Participant{entry.Winner}, decode[[]participants.Participant](t, w))

	w = do(t, srv, http.MethodDelete, "/api/history/"+entry.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(t, srv, http.MethodDelete, "/api/history/"+entry.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	do(t, srv, http.MethodPost, "/api/spin", nil)
	w = do(t, srv, http.MethodDelete, "/api/history", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, srv.App().History().History())
}

func TestSpin_ExcludesPreviousWinners(t *testing.T) {
	srv := newTestServer(t)
	do(t, srv, http.MethodPost, "/api/participants/bulk", AddParticipantsRequest{Names: []string{"A", "B", "C"}})
	do(t, srv, http.MethodPost, "/api/settings/exclude-previous-winners/toggle", nil)

	seen := map[string]bool{}
	for range 3 {
		w := do(t, srv, http.MethodPost, "/api/spin", nil)
		require.Equal(t, http.StatusCreated, w.Code)
		name := decode[history.Entry](t, w).Winner.Name
		assert.False(t, seen[name], "winner %s picked twice", name)
		seen[name] = true
	}

	w := do(t, srv, http.MethodPost, "/api/spin", nil)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestHistory_Export(t *testing.T) {
	srv := newTestServer(t)
	do(t, srv, http.MethodPost, "/api/participants", AddParticipantRequest{Name: "Alice"})
	do(t, srv, http.MethodPost, "/api/spin", nil)

	w := do(t, srv, http.MethodGet, "/api/history/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/markdown")
	assert.Contains(t, w.Body.String(), "**Alice**")

	w = do(t, srv, http.MethodGet, "/api/history/export?format=html", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, w.Body.String(), "<strong>Alice</strong>")

	w = do(t, srv, http.MethodGet, "/api/history/export?format=pdf", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMethodNotAllowed(t *testing.T) {
	srv := newTestServer(t)

	w := do(t, srv, http.MethodPatch, "/api/settings", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t)
	do(t, srv, http.MethodPost, "/api/settings/dark-mode/toggle", nil)

	w := do(t, srv, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `spinwheel_storage_operations_total{key="wheelOfFortune_settings",op="write",result="ok"} 1`)
}

func TestMetricsEndpoint_SubscriberGauges(t *testing.T) {
	srv := newTestServer(t)

	w := do(t, srv, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, `spinwheel_event_subscribers{key="wheelOfFortune_settings"} 1`)
	assert.Contains(t, body, `spinwheel_event_subscribers{key="wheelOfFortune_history"} 1`)
	assert.Contains(t, body, `spinwheel_event_subscribers{key="*"} 0`)
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestServer_LogsExternalSync(t *testing.T) {
	var out lockedBuffer
	cfg := config.Default()
	cfg.Storage.Path = ":memory:"
	srv, err := New(t.Context(), cfg, slog.New(slog.NewTextHandler(&out, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })

	v := `{"selectionType":"dartboard","excludePreviousWinners":false,"animationDuration":5000,"isDarkMode":false}`
	srv.bus.Publish(notify.NewStorageEvent(cfg.Storage.Origin, settings.StorageKey, "other-tab", nil, &v))

	require.Eventually(t, func() bool {
		return strings.Contains(out.String(), "settings synced from another context")
	}, time.Second, 10*time.Millisecond)
	assert.Equal(t, settings.Dartboard, srv.App().Settings().Settings().SelectionType)
}

func TestMetricsDisabled(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Path = ":memory:"
	cfg.Metrics.Enabled = false
	srv, err := New(t.Context(), cfg, nil)
	require.NoError(t, err)
	defer func() { _ = srv.Shutdown(context.Background()) }()

	w := do(t, srv, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/settings/dark-mode/toggle", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	w := httptest.NewRecorder()
	srv.Handler().ServeHTTP(w, req)

	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestEvents_StreamsStorageEvents(t *testing.T) {
	srv := newTestServer(t)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/events"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool {
		return srv.bus.SubscriberCount(notify.AllKeys) == 1
	}, time.Second, 10*time.Millisecond, "websocket subscriber not registered")

	do(t, srv, http.MethodPost, "/api/settings/dark-mode/toggle", nil)

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev notify.StorageEvent
	require.NoError(t, json.Unmarshal(data, &ev))
	assert.Equal(t, settings.StorageKey, ev.Key)
	assert.Equal(t, srv.App().ContextID(), ev.Source)
	require.NotNil(t, ev.NewValue)
	assert.Contains(t, *ev.NewValue, `"isDarkMode":true`)
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	cfg := config.Default()
	cfg.Storage.Path = ":memory:"
	cfg.Server.HTTPAddr = "127.0.0.1:0"
	srv, err := New(t.Context(), cfg, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

package delivery

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"twitch-chat-bridge/chatqueue"
	"twitch-chat-bridge/metrics"
	"twitch-chat-bridge/model"
)

type recordedPolls struct {
	mu       sync.Mutex
	outcomes []string
}

func (r *recordedPolls) Polled(outcome string, _ float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcomes = append(r.outcomes, outcome)
}

func (r *recordedPolls) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.outcomes...)
}

func newTestQueue(t *testing.T) *chatqueue.Queue {
	t.Helper()
	q, err := chatqueue.New(chatqueue.Config{Capacity: 10, MaxAge: time.Hour}, chatqueue.WithIncarnation("run-1"))
	require.NoError(t, err)
	return q
}

func appendN(q *chatqueue.Queue, n int) {
	msgs := make([]model.ChatMessage, n)
	for i := range msgs {
		msgs[i] = model.ChatMessage{User: "u", UserColor: "#FFFFFF", Message: "m", Badges: []model.Badge{}}
	}
	q.Append(msgs)
}

func newTestServer(t *testing.T, q *chatqueue.Queue, opts ...Option) *Server {
	t.Helper()
	return NewServer(Config{ListenPort: 8080, RequestTimeout: 20 * time.Millisecond, StaticDir: t.TempDir()}, q, opts...)
}

func get(t *testing.T, s *Server, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func decodePoll(t *testing.T, rec *httptest.ResponseRecorder) pollResponse {
	t.Helper()
	require.Equal(t, http.StatusOK, rec.Code)
	var resp pollResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestGetMessagesResumesAfterCursor(t *testing.T) {
	q := newTestQueue(t)
	appendN(q, 3)
	s := newTestServer(t, q)

	rec := get(t, s, "/get-messages?sid=run-1&mid=0")
	resp := decodePoll(t, rec)

	assert.Equal(t, "run-1", resp.SID)
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, uint64(1), resp.Messages[0].ID)
	assert.Equal(t, uint64(2), resp.Messages[1].ID)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.Equal(t, "http://localhost:8080", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestGetMessagesIgnoresCursorFromOtherRun(t *testing.T) {
	q := newTestQueue(t)
	appendN(q, 3)
	polls := &recordedPolls{}
	s := newTestServer(t, q, WithPollObserver(polls))

	rec := get(t, s, "/get-messages?sid=old-run&mid=0")
	resp := decodePoll(t, rec)

	assert.Equal(t, "run-1", resp.SID)
	assert.Empty(t, resp.Messages)
	assert.Contains(t, rec.Body.String(), `"messages":[]`)
	assert.Equal(t, []string{metrics.PollEmpty}, polls.all())
}

func TestGetMessagesInvalidCursorStartsFromHead(t *testing.T) {
	q := newTestQueue(t)
	appendN(q, 2)
	s := newTestServer(t, q)

	for _, target := range []string{"/get-messages?sid=run-1&mid=abc", "/get-messages", "/get-messages?sid=run-1&mid=99"} {
		resp := decodePoll(t, get(t, s, target))
		assert.Empty(t, resp.Messages, target)
	}
}

func TestGetMessagesWakesOnAppend(t *testing.T) {
	q := newTestQueue(t)
	appendN(q, 1)
	s := NewServer(Config{ListenPort: 8080, RequestTimeout: 5 * time.Second}, q)

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() {
		rec := httptest.NewRecorder()
		s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/get-messages?sid=run-1&mid=0", nil))
		done <- rec
	}()

	require.Eventually(t, func() bool { return q.Waiting() == 1 }, time.Second, 5*time.Millisecond)
	appendN(q, 2)

	select {
	case rec := <-done:
		resp := decodePoll(t, rec)
		require.Len(t, resp.Messages, 2)
		assert.Equal(t, uint64(1), resp.Messages[0].ID)
	case <-time.After(2 * time.Second):
		t.Fatal("poll did not wake up")
	}
}

func TestGetMessagesClientGoneWritesNothing(t *testing.T) {
	q := newTestQueue(t)
	polls := &recordedPolls{}
	s := NewServer(Config{ListenPort: 8080, RequestTimeout: 5 * time.Second}, q, WithPollObserver(polls))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/get-messages", nil).WithContext(ctx))

	assert.Zero(t, rec.Body.Len())
	assert.Equal(t, []string{metrics.PollCancelled}, polls.all())
}

func TestStaticWhitelist(t *testing.T) {
	q := newTestQueue(t)
	s := newTestServer(t, q)
	require.NoError(t, os.WriteFile(filepath.Join(s.cfg.StaticDir, "ui.html"), []byte("<html>chat</html>"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(s.cfg.StaticDir, "secret.txt"), []byte("nope"), 0o600))

	rec := get(t, s, "/")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "<html>chat</html>", rec.Body.String())
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Type"), "text/html"))

	asset := get(t, s, "/ui.html")
	assert.Equal(t, http.StatusOK, asset.Code)
	assert.Equal(t, "http://localhost:8080", asset.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, http.StatusNotFound, get(t, s, "/script.js").Code, "whitelisted but missing")
	assert.Equal(t, http.StatusNotFound, get(t, s, "/secret.txt").Code)
	assert.Equal(t, http.StatusNotFound, get(t, s, "/nested/ui.html").Code)
}

func TestHealthAndPosition(t *testing.T) {
	q := newTestQueue(t)
	appendN(q, 3)
	s := newTestServer(t, q)

	var health map[string]any
	rec := get(t, s, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &health))
	assert.Equal(t, "run-1", health["sid"])
	assert.EqualValues(t, 3, health["next"])
	assert.EqualValues(t, 3, health["depth"])

	var pos map[string]any
	require.NoError(t, json.Unmarshal(get(t, s, "/debug/position?mid=1").Body.Bytes(), &pos))
	assert.Equal(t, "indexed", pos["kind"])
	assert.EqualValues(t, 1, pos["index"])

	require.NoError(t, json.Unmarshal(get(t, s, "/debug/position?mid=7").Body.Bytes(), &pos))
	assert.Equal(t, "not_yet_assigned", pos["kind"])

	assert.Equal(t, http.StatusBadRequest, get(t, s, "/debug/position?mid=-1").Code)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	collectors := metrics.New(reg)
	q := newTestQueue(t)
	s := newTestServer(t, q, WithMetrics(reg), WithPollObserver(collectors))

	get(t, s, "/get-messages")
	rec := get(t, s, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "chat_bridge_polls_total")

	without := newTestServer(t, q)
	assert.Equal(t, http.StatusNotFound, get(t, without, "/metrics").Code)
}

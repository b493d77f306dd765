package ctl

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorded struct {
	method string
	path   string
	query  string
	auth   string
	body   map[string]any
}

// fakeAPI answers with canned JSON per "METHOD path" and records requests.
func fakeAPI(t *testing.T, replies map[string]string) (*httptest.Server, *[]recorded) {
	t.Helper()
	var mu sync.Mutex
	var calls []recorded
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		rec := recorded{method: r.Method, path: r.URL.Path, query: r.URL.RawQuery, auth: r.Header.Get("Authorization")}
		if len(raw) > 0 {
			_ = json.Unmarshal(raw, &rec.body)
		}
		mu.Lock()
		calls = append(calls, rec)
		mu.Unlock()

		reply, ok := replies[r.Method+" "+r.URL.Path]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"not found"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(reply))
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func run(t *testing.T, srv *httptest.Server, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd(&options{})
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--server", srv.URL, "--token", "tok"}, args...))
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestStatusCommand(t *testing.T) {
	srv, calls := fakeAPI(t, map[string]string{
		"GET /api/status": `{"running":true,"phase":"running","queue_len":2,"posted_today":4}`,
	})

	out, err := run(t, srv, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "phase:")
	assert.Contains(t, out, "running")
	assert.Contains(t, out, "queue_len:")
	require.Len(t, *calls, 1)
	assert.Equal(t, "Bearer tok", (*calls)[0].auth)
}

func TestStartSendsSettingsPatch(t *testing.T) {
	srv, calls := fakeAPI(t, map[string]string{
		"POST /api/start": `{"success":true,"started":true,"phase":"running"}`,
	})

	out, err := run(t, srv, "start", "--set", "DEBUG_MODE=false", "--set", "POST_INTERVAL_MINUTES=10", "--set", "MODEL=gpt-4o")
	require.NoError(t, err)
	assert.Equal(t, "started (running)\n", out)

	body := (*calls)[0].body
	assert.Equal(t, false, body["DEBUG_MODE"])
	assert.EqualValues(t, 10, body["POST_INTERVAL_MINUTES"])
	assert.Equal(t, "gpt-4o", body["MODEL"])
}

func TestReelsCommandsUseReelsRoutes(t *testing.T) {
	srv, calls := fakeAPI(t, map[string]string{
		"POST /api/reels/stop": `{"success":true,"stopped":false,"phase":"stopped"}`,
		"GET /api/reels/queue": `[]`,
	})

	out, err := run(t, srv, "reels", "stop")
	require.NoError(t, err)
	assert.Equal(t, "not running (stopped)\n", out)

	out, err = run(t, srv, "reels", "queue")
	require.NoError(t, err)
	assert.Equal(t, "queue is empty\n", out)
	assert.Equal(t, "/api/reels/queue", (*calls)[1].path)
}

func TestDeleteEscapesLink(t *testing.T) {
	srv, calls := fakeAPI(t, map[string]string{
		"DELETE /api/post/": `{"success":true,"removed":1}`,
	})

	out, err := run(t, srv, "delete", "https://tuoitre.vn/bai-viet.htm?a=1&b=2")
	require.NoError(t, err)
	assert.Equal(t, "removed 1 post(s)\n", out)
	assert.Equal(t, "link=https%3A%2F%2Ftuoitre.vn%2Fbai-viet.htm%3Fa%3D1%26b%3D2", (*calls)[0].query)
}

func TestAPIErrorsSurface(t *testing.T) {
	srv, _ := fakeAPI(t, nil)

	_, err := run(t, srv, "delete", "https://missing")
	require.Error(t, err)
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
}

func TestConfigSetMergesFileAndArgs(t *testing.T) {
	srv, calls := fakeAPI(t, map[string]string{
		"POST /api/config": `{"success":true}`,
	})
	file := filepath.Join(t.TempDir(), "settings.yaml")
	require.NoError(t, os.WriteFile(file, []byte("sources:\n  - https://vnexpress.net\nDEBUG_MODE: true\n"), 0o644))

	out, err := run(t, srv, "config", "set", "-f", file, "DEBUG_MODE=false")
	require.NoError(t, err)
	assert.Equal(t, "saved 2 setting(s)\n", out)

	body := (*calls)[0].body
	assert.Equal(t, false, body["DEBUG_MODE"])
	assert.Equal(t, []any{"https://vnexpress.net"}, body["sources"])
}

func TestConfigGetPrintsYAML(t *testing.T) {
	srv, _ := fakeAPI(t, map[string]string{
		"GET /api/config": `{"MODEL":"qwen","sources":["https://cafef.vn"]}`,
	})

	out, err := run(t, srv, "config", "get")
	require.NoError(t, err)
	assert.Contains(t, out, "MODEL: qwen")
	assert.Contains(t, out, "- https://cafef.vn")
}

func TestTrendsCommand(t *testing.T) {
	srv, calls := fakeAPI(t, map[string]string{
		"GET /api/trends": `{"days":3,"topics":[{"topic":"Kinh tế","count":4}]}`,
	})

	out, err := run(t, srv, "trends", "--days", "3")
	require.NoError(t, err)
	assert.Contains(t, out, "Kinh tế")
	assert.Equal(t, "days=3&top=5", (*calls)[0].query)
}

func TestParseAssignmentsRejectsBareKey(t *testing.T) {
	_, err := parseAssignments([]string{"DEBUG_MODE"})
	assert.Error(t, err)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestTailFollowsRedisChannel(t *testing.T) {
	mr := miniredis.RunT(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out := &syncBuffer{}
	tail := &tailOptions{redisURL: "redis://" + mr.Addr() + "/0", channel: "events", types: []string{"post-success"}}
	done := make(chan error, 1)
	go func() { done <- tail.run(ctx, out, true) }()

	deadline := time.Now().Add(2 * time.Second)
	for len(mr.PubSubChannels("events")) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscription never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	mr.Publish("events", `{"id":"1","type":"log","message":"noise","time":"2026-05-01T00:00:00Z"}`)
	mr.Publish("events", `{"id":"2","type":"post-success","source":"news","time":"2026-05-01T00:00:00Z"}`)

	deadline = time.Now().Add(2 * time.Second)
	for !strings.Contains(out.String(), `"id":"2"`) {
		if time.Now().After(deadline) {
			t.Fatalf("event not printed, got %q", out.String())
		}
		time.Sleep(5 * time.Millisecond)
	}
	assert.NotContains(t, out.String(), "noise")

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("tail did not return after cancel")
	}
}

func TestTailNeedsASource(t *testing.T) {
	err := (&tailOptions{}).run(context.Background(), io.Discard, false)
	assert.Error(t, err)
}

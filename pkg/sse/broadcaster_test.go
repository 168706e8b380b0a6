package sse

import (
	"bufio"
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danghamo/isoboard/internal/api/jsonrpcx"
	"github.com/danghamo/isoboard/pkg/logger"
)

// recordingWriter is a concurrency-safe http.ResponseWriter with Flush
type recordingWriter struct {
	mu     sync.Mutex
	header http.Header
	buf    bytes.Buffer
}

func newRecordingWriter() *recordingWriter {
	return &recordingWriter{header: make(http.Header)}
}

func (w *recordingWriter) Header() http.Header { return w.header }
func (w *recordingWriter) WriteHeader(int)     {}
func (w *recordingWriter) Flush()              {}

func (w *recordingWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.Write(p)
}

func (w *recordingWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.buf.String()
}

func newClient(id, session string) (*SSEClient, *recordingWriter) {
	w := newRecordingWriter()
	return &SSEClient{
		ID:        id,
		SessionID: session,
		Writer:    w,
		Flusher:   w,
		Done:      make(chan bool),
		LastSeen:  time.Now(),
	}, w
}

func TestSSEBroadcaster_Clients(t *testing.T) {
	b := NewSSEBroadcaster(logger.NewNop())
	defer b.Close()

	c1, _ := newClient("c1", "alice")
	c2, _ := newClient("c2", "alice")
	c3, _ := newClient("c3", "bob")
	b.AddClient(c1)
	b.AddClient(c2)
	b.AddClient(c3)

	t.Run("should group connections by session", func(t *testing.T) {
		assert.Equal(t, 3, b.GetClientCount())
		assert.True(t, b.HasSession("alice"))
		assert.True(t, b.HasSession("bob"))
		assert.False(t, b.HasSession("carol"))
	})

	t.Run("should drop the session once its last client leaves", func(t *testing.T) {
		b.RemoveClient("c1")
		assert.True(t, b.HasSession("alice"))
		b.RemoveClient("c2")
		assert.False(t, b.HasSession("alice"))
		assert.Equal(t, 1, b.GetClientCount())
	})

	t.Run("should tolerate removing an unknown client", func(t *testing.T) {
		b.RemoveClient("missing")
		assert.Equal(t, 1, b.GetClientCount())
	})
}

func TestSSEBroadcaster_Delivery(t *testing.T) {
	notification := jsonrpcx.NewNotification("board.changed", map[string]any{"version": 3})

	t.Run("should deliver broadcasts to every client", func(t *testing.T) {
		b := NewSSEBroadcaster(logger.NewNop())
		defer b.Close()

		c1, w1 := newClient("c1", "alice")
		c2, w2 := newClient("c2", "bob")
		b.AddClient(c1)
		b.AddClient(c2)

		b.BroadcastToAll(notification)

		for _, w := range []*recordingWriter{w1, w2} {
			assert.Eventually(t, func() bool {
				return strings.Contains(w.String(), `"method":"board.changed"`)
			}, time.Second, 10*time.Millisecond)
		}
	})

	t.Run("should deliver session messages only to that session", func(t *testing.T) {
		b := NewSSEBroadcaster(logger.NewNop())
		defer b.Close()

		c1, w1 := newClient("c1", "alice")
		c2, w2 := newClient("c2", "bob")
		b.AddClient(c1)
		b.AddClient(c2)

		b.BroadcastToSessions([]string{"alice", "carol"}, notification)

		assert.Eventually(t, func() bool {
			return strings.Contains(w1.String(), "data: ")
		}, time.Second, 10*time.Millisecond)
		assert.Never(t, func() bool {
			return w2.String() != ""
		}, 100*time.Millisecond, 10*time.Millisecond)
	})

	t.Run("should remove clients without a writer", func(t *testing.T) {
		b := NewSSEBroadcaster(logger.NewNop())
		defer b.Close()

		b.AddClient(&SSEClient{ID: "ghost", SessionID: "s", Done: make(chan bool), LastSeen: time.Now()})
		b.BroadcastToAll(notification)

		assert.Eventually(t, func() bool {
			return b.GetClientCount() == 0
		}, time.Second, 10*time.Millisecond)
	})
}

func TestSSEBroadcaster_RemoveStale(t *testing.T) {
	b := NewSSEBroadcaster(logger.NewNop())
	defer b.Close()

	fresh, _ := newClient("fresh", "a")
	stale, _ := newClient("stale", "b")
	stale.LastSeen = time.Now().Add(-2 * staleAfter)
	b.AddClient(fresh)
	b.AddClient(stale)

	b.removeStale(time.Now())

	assert.Equal(t, 1, b.GetClientCount())
	assert.True(t, b.HasSession("a"))
	assert.False(t, b.HasSession("b"))
}

func TestSSEBroadcaster_Close(t *testing.T) {
	b := NewSSEBroadcaster(logger.NewNop())
	c, _ := newClient("c1", "alice")
	b.AddClient(c)

	b.Close()
	b.Close()

	assert.Equal(t, 0, b.GetClientCount())
	assert.NotPanics(t, func() {
		b.BroadcastToAll(jsonrpcx.NewNotification("late", nil))
	})
}

func TestSSEBroadcaster_HandleSSE(t *testing.T) {
	b := NewSSEBroadcaster(logger.NewNop())
	b.SetInitialSync(func() (jsonrpcx.JsonRpcNotification, bool) {
		return jsonrpcx.NewNotification("board.snapshot", map[string]any{"version": 1}), true
	})

	srv := httptest.NewServer(http.HandlerFunc(b.HandleSSE))
	defer srv.Close()
	defer b.Close()

	resp, err := http.Get(srv.URL + "?session=s1")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	lines := make(chan string, 16)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			if line := scanner.Text(); strings.HasPrefix(line, "data: ") {
				lines <- line
			}
		}
		close(lines)
	}()

	next := func() string {
		select {
		case line := <-lines:
			return line
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for SSE frame")
			return ""
		}
	}

	t.Run("should greet the client and send the initial snapshot", func(t *testing.T) {
		assert.Contains(t, next(), `"type":"connected"`)
		assert.Contains(t, next(), `"method":"board.snapshot"`)
	})

	t.Run("should stream notifications for the session", func(t *testing.T) {
		require.Eventually(t, func() bool { return b.HasSession("s1") }, time.Second, 10*time.Millisecond)

		b.BroadcastToSessions([]string{"s1"}, jsonrpcx.NewNotification("drag.dropped", nil))
		assert.Contains(t, next(), `"method":"drag.dropped"`)
	})
}

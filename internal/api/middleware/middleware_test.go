package middleware

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/danghamo/isoboard/internal/api/jsonrpcx"
	"github.com/danghamo/isoboard/pkg/config"
	"github.com/danghamo/isoboard/pkg/logger"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func TestChain(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	Chain(tag("a"), tag("b"), tag("c"))(ok).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, []string{"a", "b", "c"}, order)
}

func TestLogging(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	handler := Logging(&logger.Logger{Logger: zap.New(core)})(ok)

	t.Run("should keep a caller supplied request ID", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/health", nil)
		req.Header.Set(RequestIDHeader, "req-42")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, "req-42", rec.Header().Get(RequestIDHeader))
		entries := logs.TakeAll()
		require.Len(t, entries, 1)
		assert.Equal(t, "req-42", entries[0].ContextMap()["request_id"])
		assert.Equal(t, int64(http.StatusOK), entries[0].ContextMap()["status_code"])
	})

	t.Run("should mint a request ID when missing", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

		id := rec.Header().Get(RequestIDHeader)
		assert.NotEmpty(t, id)
		entries := logs.TakeAll()
		require.Len(t, entries, 1)
		assert.Equal(t, id, entries[0].ContextMap()["request_id"])
	})
}

func TestCORS(t *testing.T) {
	tests := []struct {
		name    string
		cfg     config.CORSConfig
		origin  string
		allowed string
	}{
		{name: "should allow anyone by default", origin: "http://a.test", allowed: "*"},
		{name: "should honour a wildcard", cfg: config.CORSConfig{AllowedOrigins: []string{"*"}}, origin: "http://a.test", allowed: "*"},
		{name: "should echo a listed origin", cfg: config.CORSConfig{AllowedOrigins: []string{"http://a.test"}}, origin: "http://a.test", allowed: "http://a.test"},
		{name: "should omit headers for other origins", cfg: config.CORSConfig{AllowedOrigins: []string{"http://a.test"}}, origin: "http://b.test", allowed: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.Header.Set("Origin", tt.origin)
			w := httptest.NewRecorder()

			CORS(tt.cfg)(ok).ServeHTTP(w, req)
			assert.Equal(t, tt.allowed, w.Header().Get("Access-Control-Allow-Origin"))
		})
	}

	t.Run("should answer preflight without calling the handler", func(t *testing.T) {
		called := false
		h := CORS(config.CORSConfig{})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) { called = true }))

		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.False(t, called)
	})
}

func TestRecovery(t *testing.T) {
	h := Recovery(logger.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	require.NotPanics(t, func() {
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))
	})

	var resp jsonrpcx.JSONRPCResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotNil(t, resp.Error)
	assert.Equal(t, jsonrpcx.InternalError, resp.Error.Code)
}

func TestErrorAdapter(t *testing.T) {
	t.Run("should write the attached JSON-RPC error", func(t *testing.T) {
		h := ErrorAdapter(logger.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			jsonrpcx.WithError(r, 7, jsonrpcx.NotFound, "no tile at (1,1)")
		}))

		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))

		var resp jsonrpcx.JSONRPCResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		require.NotNil(t, resp.Error)
		assert.Equal(t, jsonrpcx.NotFound, resp.Error.Code)
		assert.Equal(t, "no tile at (1,1)", resp.Error.Message)
		assert.EqualValues(t, 7, resp.ID)
	})

	t.Run("should leave successful responses alone", func(t *testing.T) {
		h := ErrorAdapter(logger.NewNop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			jsonrpcx.Success(w, 1, "fine")
		}))

		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/", nil))

		var resp jsonrpcx.JSONRPCResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Nil(t, resp.Error)
		assert.Equal(t, "fine", resp.Result)
	})
}

func TestRateLimit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	h := RateLimit(ctx, logger.NewNop(), 1, 2)(ok)
	send := func(ip string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = ip + ":1234"
		w := httptest.NewRecorder()
		h.ServeHTTP(w, req)
		return w.Code
	}

	t.Run("should allow the burst then refuse", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, send("10.0.0.1"))
		assert.Equal(t, http.StatusOK, send("10.0.0.1"))
		assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.1"))
	})

	t.Run("should track clients independently", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, send("10.0.0.2"))
	})

	t.Run("should pass everything when disabled", func(t *testing.T) {
		open := RateLimit(ctx, logger.NewNop(), 0, 0)(ok)
		for i := 0; i < 10; i++ {
			w := httptest.NewRecorder()
			open.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
			assert.Equal(t, http.StatusOK, w.Code)
		}
	})
}

func TestGetClientIP(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.0.2.1:5555"
	assert.Equal(t, "192.0.2.1", getClientIP(req))

	req.Header.Set("X-Real-IP", "198.51.100.7")
	assert.Equal(t, "198.51.100.7", getClientIP(req))

	req.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	assert.Equal(t, "203.0.113.9", getClientIP(req))
}

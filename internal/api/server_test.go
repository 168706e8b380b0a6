package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danghamo/isoboard/internal/api/jsonrpcx"
	"github.com/danghamo/isoboard/pkg/config"
	"github.com/danghamo/isoboard/pkg/logger"
)

func testConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			Host:            "localhost",
			Port:            8080,
			Environment:     "test",
			HealthCheckPath: "/health",
			RateLimitRPS:    1000,
			RateLimitBurst:  1000,
		},
		Board:      config.BoardConfig{Width: 8, Height: 8, ChunkSize: 4},
		Projection: config.ProjectionConfig{CellWidth: 64, CellHeight: 32},
		Viewport:   config.ViewportConfig{MinZoom: 0.1, MaxZoom: 3, Margin: 0.25, CullingThreshold: 400},
		Placement: config.PlacementConfig{
			ProximityRadius:  3,
			SuggestionRadius: 3,
			MaxSuggestions:   3,
			PreviewCacheSize: 100,
		},
		CORS: config.CORSConfig{AllowedOrigins: []string{"http://localhost:3000"}},
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	srv, err := NewServer(ctx, testConfig(), logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(srv.BoardService().Close)
	t.Cleanup(srv.sseBroadcaster.Close)
	return srv
}

func post(t *testing.T, h http.Handler, method, params string) map[string]any {
	t.Helper()
	body := `{"jsonrpc":"2.0","method":"` + method + `","params":` + params + `,"id":1}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/"+method, strings.NewReader(body))
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestServer_Routes(t *testing.T) {
	srv := newTestServer(t)
	h := srv.Handler()

	t.Run("should report health", func(t *testing.T) {
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"status":"healthy"`)
	})

	t.Run("should list board and server methods", func(t *testing.T) {
		resp := post(t, h, "server.Info", "null")
		result := resp["result"].(map[string]any)
		assert.Equal(t, float64(8), result["board_width"])
		assert.Contains(t, result["methods"], "board.Place")
		assert.Contains(t, result["methods"], "server.Info")
	})

	t.Run("should place through the full middleware chain", func(t *testing.T) {
		resp := post(t, h, "board.Place", `{"x":1,"y":1,"tile":{"id":"a","type":"tree"}}`)
		assert.NotContains(t, resp, "error")
		assert.Equal(t, uint64(1), srv.BoardService().Version())
	})

	t.Run("should surface handler errors as JSON-RPC errors", func(t *testing.T) {
		resp := post(t, h, "board.Place", `{"x":1,"y":1,"tile":{"id":"b","type":"rock"}}`)
		rpcErr := resp["error"].(map[string]any)
		assert.Equal(t, float64(jsonrpcx.PlacementRejected), rpcErr["code"])
	})
}

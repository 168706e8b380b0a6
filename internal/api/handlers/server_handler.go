package handlers

import (
	"fmt"
	"net/http"

	"github.com/danghamo/isoboard/internal/api/jsonrpcx"
	"github.com/danghamo/isoboard/pkg/config"
)

// ServerHandler handles server information requests
type ServerHandler struct {
	cfg         config.ServerConfig
	boardWidth  int
	boardHeight int
	methods     func() []string
}

// NewServerHandler creates a new server handler. methods lists the registered
// JSON-RPC methods at call time and may be nil.
func NewServerHandler(cfg config.ServerConfig, boardWidth, boardHeight int, methods func() []string) *ServerHandler {
	return &ServerHandler{
		cfg:         cfg,
		boardWidth:  boardWidth,
		boardHeight: boardHeight,
		methods:     methods,
	}
}

// ServerInfoResponse represents server information
type ServerInfoResponse struct {
	Host        string   `json:"host"`
	Port        int      `json:"port"`
	URL         string   `json:"url"`
	Environment string   `json:"environment"`
	BoardWidth  int      `json:"board_width"`
	BoardHeight int      `json:"board_height"`
	Methods     []string `json:"methods,omitempty"`
}

// Info handles POST /api/v1/server.Info
func (h *ServerHandler) Info(w http.ResponseWriter, r *http.Request) {
	req, ok := decode(r, nil)
	if !ok {
		return
	}

	host := h.cfg.Host
	if host == "" || host == "0.0.0.0" {
		host = "localhost"
	}

	response := ServerInfoResponse{
		Host:        host,
		Port:        h.cfg.Port,
		URL:         fmt.Sprintf("http://%s:%d", host, h.cfg.Port),
		Environment: h.cfg.Environment,
		BoardWidth:  h.boardWidth,
		BoardHeight: h.boardHeight,
	}
	if h.methods != nil {
		response.Methods = h.methods()
	}

	jsonrpcx.Success(w, req.ID, response)
}

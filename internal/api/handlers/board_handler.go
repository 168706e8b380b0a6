package handlers

import (
	"fmt"
	"net/http"

	"go.uber.org/zap"

	"github.com/danghamo/isoboard/internal/api/jsonrpcx"
	"github.com/danghamo/isoboard/internal/app/command"
	apphandler "github.com/danghamo/isoboard/internal/app/handler"
	"github.com/danghamo/isoboard/internal/app/service"
	"github.com/danghamo/isoboard/internal/domain/board"
	"github.com/danghamo/isoboard/internal/domain/placement"
	"github.com/danghamo/isoboard/internal/domain/shared"
	"github.com/danghamo/isoboard/internal/domain/spatial"
	"github.com/danghamo/isoboard/internal/domain/viewport"
	"github.com/danghamo/isoboard/pkg/logger"
)

// BoardHandler exposes the board service as JSON-RPC 2.0 methods.
// Exported (w, r) methods are registered by the autorouter as board.<Name>.
type BoardHandler struct {
	logger   *logger.Logger
	svc      *service.BoardService
	commands *apphandler.BoardCommandHandler
}

// NewBoardHandler creates a new board handler
func NewBoardHandler(logger *logger.Logger, svc *service.BoardService) *BoardHandler {
	return &BoardHandler{
		logger:   logger.WithComponent("board-handler"),
		svc:      svc,
		commands: apphandler.NewBoardCommandHandler(svc, logger),
	}
}

// CellParams addresses one cell
type CellParams struct {
	X int `json:"x"`
	Y int `json:"y"`
}

func (p CellParams) cell() shared.Cell {
	return shared.NewCell(p.X, p.Y)
}

// PlaceParams places (or moves) a tile
type PlaceParams struct {
	CellParams
	Tile board.Tile `json:"tile"`
}

// GetParams looks a tile up by ID, or by cell when ID is empty
type GetParams struct {
	CellParams
	ID board.TileID `json:"id,omitempty"`
}

// VisibleParams describes a camera and its viewport in pixels
type VisibleParams struct {
	Camera viewport.Camera `json:"camera"`
	Width  float64         `json:"width"`
	Height float64         `json:"height"`
}

// ProximityParams asks for the neighborhood of a cell
type ProximityParams struct {
	CellParams
	Radius float64 `json:"radius,omitempty"`
}

// CommandParams is one entry of a board.Apply batch
type CommandParams struct {
	Type string      `json:"type"` // place, remove or clear
	X    int         `json:"x"`
	Y    int         `json:"y"`
	Tile *board.Tile `json:"tile,omitempty"`
}

// ApplyParams is a batch of commands applied in order
type ApplyParams struct {
	Commands []CommandParams `json:"commands"`
}

func (p CommandParams) command() (command.Command, bool) {
	cell := shared.NewCell(p.X, p.Y)
	switch p.Type {
	case command.TypePlaceTile:
		if p.Tile == nil || p.Tile.Type == "" {
			return nil, false
		}
		return command.NewPlaceTileCommand(*p.Tile, cell), true
	case command.TypeRemoveTile:
		return command.NewRemoveTileCommand(cell), true
	case command.TypeClearBoard:
		return command.NewClearBoardCommand(), true
	default:
		return nil, false
	}
}

// PlaceResponse is the result of board.Place
type PlaceResponse struct {
	Placed  board.PlacedTile  `json:"placed"`
	Verdict placement.Verdict `json:"verdict"`
}

// StatsResponse is the result of board.Stats
type StatsResponse struct {
	Width   int           `json:"width"`
	Height  int           `json:"height"`
	Version uint64        `json:"version"`
	Stats   spatial.Stats `json:"stats"`
}

// decode parses the JSON-RPC envelope and params. On failure the error is
// attached to r and ok is false.
func decode(r *http.Request, params any) (*jsonrpcx.JSONRPCRequest, bool) {
	if r.Method != http.MethodPost {
		jsonrpcx.WithError(r, nil, jsonrpcx.MethodNotFound, "Method not allowed")
		return nil, false
	}

	req, err := jsonrpcx.ParseRequest(r)
	if err != nil {
		jsonrpcx.WithError(r, nil, jsonrpcx.ParseError, "Invalid JSON-RPC request")
		return nil, false
	}
	if params != nil {
		if err := jsonrpcx.DecodeParams(req, params); err != nil {
			jsonrpcx.WithError(r, req.ID, jsonrpcx.InvalidParams, "Invalid params")
			return nil, false
		}
	}
	return req, true
}

// Place handles POST /api/v1/board.Place
func (h *BoardHandler) Place(w http.ResponseWriter, r *http.Request) {
	var params PlaceParams
	req, ok := decode(r, &params)
	if !ok {
		return
	}
	if params.Tile.Type == "" {
		jsonrpcx.WithError(r, req.ID, jsonrpcx.InvalidParams, "tile.type is required")
		return
	}

	placed, verdict, err := h.svc.Place(params.Tile, params.cell())
	if err != nil {
		h.logger.Debug("Placement refused",
			zap.String("cell", params.cell().String()),
			zap.Error(err))
		jsonrpcx.WithErrorData(r, req.ID, jsonrpcx.CodeFor(err), err.Error(), verdict)
		return
	}

	jsonrpcx.Success(w, req.ID, PlaceResponse{Placed: placed, Verdict: verdict})
}

// Remove handles POST /api/v1/board.Remove
func (h *BoardHandler) Remove(w http.ResponseWriter, r *http.Request) {
	var params CellParams
	req, ok := decode(r, &params)
	if !ok {
		return
	}

	if err := h.svc.Remove(params.cell()); err != nil {
		jsonrpcx.WithDomainError(r, req.ID, err)
		return
	}
	jsonrpcx.Success(w, req.ID, map[string]bool{"removed": true})
}

// Get handles POST /api/v1/board.Get
func (h *BoardHandler) Get(w http.ResponseWriter, r *http.Request) {
	var params GetParams
	req, ok := decode(r, &params)
	if !ok {
		return
	}

	cell := params.cell()
	if !params.ID.IsEmpty() {
		found, ok := h.svc.Locate(params.ID)
		if !ok {
			jsonrpcx.WithDomainError(r, req.ID, shared.NewDomainErrorf(shared.ErrCodeTileNotFound, "tile %s not found", params.ID))
			return
		}
		cell = found
	}

	tile, ok := h.svc.TileAt(cell)
	if !ok {
		jsonrpcx.WithDomainError(r, req.ID, shared.NewDomainErrorf(shared.ErrCodeTileNotFound, "no tile at %s", cell))
		return
	}
	jsonrpcx.Success(w, req.ID, board.PlacedTile{Cell: cell, Tile: tile})
}

// Snapshot handles POST /api/v1/board.Snapshot
func (h *BoardHandler) Snapshot(w http.ResponseWriter, r *http.Request) {
	req, ok := decode(r, nil)
	if !ok {
		return
	}
	jsonrpcx.Success(w, req.ID, h.svc.Snapshot())
}

// Visible handles POST /api/v1/board.Visible
func (h *BoardHandler) Visible(w http.ResponseWriter, r *http.Request) {
	var params VisibleParams
	req, ok := decode(r, &params)
	if !ok {
		return
	}
	if params.Width <= 0 || params.Height <= 0 || params.Camera.Zoom <= 0 {
		jsonrpcx.WithError(r, req.ID, jsonrpcx.InvalidParams, "width, height and camera.zoom must be positive")
		return
	}

	jsonrpcx.Success(w, req.ID, h.svc.Visible(params.Camera, params.Width, params.Height))
}

// Validate handles POST /api/v1/board.Validate. It never mutates the board.
func (h *BoardHandler) Validate(w http.ResponseWriter, r *http.Request) {
	var params PlaceParams
	req, ok := decode(r, &params)
	if !ok {
		return
	}
	jsonrpcx.Success(w, req.ID, h.svc.Preview(params.Tile, params.cell()))
}

// Proximity handles POST /api/v1/board.Proximity
func (h *BoardHandler) Proximity(w http.ResponseWriter, r *http.Request) {
	var params ProximityParams
	req, ok := decode(r, &params)
	if !ok {
		return
	}
	jsonrpcx.Success(w, req.ID, h.svc.Proximity(params.cell(), params.Radius))
}

// Stats handles POST /api/v1/board.Stats
func (h *BoardHandler) Stats(w http.ResponseWriter, r *http.Request) {
	req, ok := decode(r, nil)
	if !ok {
		return
	}

	width, height := h.svc.Size()
	jsonrpcx.Success(w, req.ID, StatsResponse{
		Width:   width,
		Height:  height,
		Version: h.svc.Version(),
		Stats:   h.svc.Stats(),
	})
}

// Apply handles POST /api/v1/board.Apply. Refused commands are reported per
// entry and do not abort the batch.
func (h *BoardHandler) Apply(w http.ResponseWriter, r *http.Request) {
	var params ApplyParams
	req, ok := decode(r, &params)
	if !ok {
		return
	}

	cmds := make([]command.Command, 0, len(params.Commands))
	for i, p := range params.Commands {
		cmd, ok := p.command()
		if !ok {
			jsonrpcx.WithError(r, req.ID, jsonrpcx.InvalidParams, fmt.Sprintf("invalid command %d of type %q", i, p.Type))
			return
		}
		cmds = append(cmds, cmd)
	}

	results, err := h.commands.HandleAll(r.Context(), cmds)
	if err != nil {
		jsonrpcx.WithError(r, req.ID, jsonrpcx.InternalError, err.Error())
		return
	}
	jsonrpcx.Success(w, req.ID, results)
}

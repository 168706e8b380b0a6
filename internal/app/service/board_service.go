package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/dgraph-io/ristretto/v2"
	"github.com/google/uuid"
	"go.uber.org/zap"

	cqrscommands "github.com/danghamo/isoboard/internal/cqrs"
	"github.com/danghamo/isoboard/internal/domain/board"
	"github.com/danghamo/isoboard/internal/domain/iso"
	"github.com/danghamo/isoboard/internal/domain/placement"
	"github.com/danghamo/isoboard/internal/domain/shared"
	"github.com/danghamo/isoboard/internal/domain/spatial"
	"github.com/danghamo/isoboard/internal/domain/viewport"
	"github.com/danghamo/isoboard/pkg/config"
	"github.com/danghamo/isoboard/pkg/logger"
)

// Snapshot is the full board state at one version
type Snapshot struct {
	Version uint64             `json:"version"`
	Width   int                `json:"width"`
	Height  int                `json:"height"`
	Tiles   []board.PlacedTile `json:"tiles"`
}

// View is what a camera needs to draw
type View struct {
	Version uint64                `json:"version"`
	Camera  viewport.Camera       `json:"camera"`
	Range   viewport.VisibleRange `json:"range"`
	Hints   viewport.Hints        `json:"hints"`
	Culled  bool                  `json:"culled"`
	Tiles   []board.PlacedTile    `json:"tiles"`
}

// BoardService is the single owner of one board. The core types are not
// safe for concurrent use, so every access goes through mu.
type BoardService struct {
	mu        sync.Mutex
	board     *board.Board
	validator *placement.Validator
	culler    *viewport.Culler
	proj      iso.Projection
	previews  *ristretto.Cache[string, placement.Verdict]
	publisher cqrscommands.EventPublisher
	throttle  time.Duration
	listener  board.ListenerID
	logger    *logger.Logger
}

// NewBoardService builds the board, validator and culler from cfg.
// DefaultRules are installed when no rules are given. publisher may be nil.
func NewBoardService(cfg *config.Config, publisher cqrscommands.EventPublisher, log *logger.Logger, rules ...placement.Rule) (*BoardService, error) {
	if log == nil {
		log = logger.GetGlobalLogger()
	}
	log = log.WithComponent("board-service")

	b, err := board.New(board.Config{
		Width:     cfg.Board.Width,
		Height:    cfg.Board.Height,
		ChunkSize: cfg.Board.ChunkSize,
	}, board.WithLogger(log))
	if err != nil {
		return nil, err
	}

	validator, err := placement.NewValidator(placement.Config{
		BoardWidth:       cfg.Board.Width,
		BoardHeight:      cfg.Board.Height,
		ProximityRadius:  cfg.Placement.ProximityRadius,
		SuggestionRadius: cfg.Placement.SuggestionRadius,
		MaxSuggestions:   cfg.Placement.MaxSuggestions,
		TypeWeights:      cfg.Placement.TypeWeights,
	})
	if err != nil {
		return nil, err
	}
	if len(rules) == 0 {
		rules = DefaultRules()
	}
	for _, rule := range rules {
		if err := validator.AddRule(rule); err != nil {
			return nil, err
		}
	}

	cullerCfg := viewport.DefaultConfig(cfg.Projection.CellWidth, cfg.Projection.CellHeight, cfg.Board.Width, cfg.Board.Height)
	cullerCfg.MinZoom = cfg.Viewport.MinZoom
	cullerCfg.MaxZoom = cfg.Viewport.MaxZoom
	cullerCfg.Margin = cfg.Viewport.Margin
	if cfg.Viewport.CullingThreshold > 0 {
		cullerCfg.CullingThreshold = cfg.Viewport.CullingThreshold
	}
	culler, err := viewport.NewCuller(cullerCfg)
	if err != nil {
		return nil, err
	}

	s := &BoardService{
		board:     b,
		validator: validator,
		culler:    culler,
		proj:      culler.Projection(),
		publisher: publisher,
		throttle:  cfg.Viewport.ThrottleInterval,
		logger:    log,
	}

	if size := cfg.Placement.PreviewCacheSize; size > 0 {
		s.previews, err = ristretto.NewCache(&ristretto.Config[string, placement.Verdict]{
			NumCounters: size * 10,
			MaxCost:     size,
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create preview cache: %w", err)
		}
	}

	s.listener = b.OnChange(s.publishChange)

	log.Info("Board service ready",
		zap.Int("width", b.Width()),
		zap.Int("height", b.Height()),
		zap.Int("rules", len(rules)),
		zap.Bool("preview_cache", s.previews != nil))
	return s, nil
}

// publishChange runs inside board mutations, with mu held
func (s *BoardService) publishChange(tiles []board.PlacedTile) {
	if s.publisher == nil {
		return
	}

	event := &cqrscommands.BoardChangedEvent{
		Version:   s.board.Version(),
		Tiles:     tiles,
		Timestamp: time.Now(),
		RequestID: uuid.New().String(),
	}
	if err := s.publisher.Publish(context.Background(), event); err != nil {
		s.logger.Error("Failed to publish board change",
			zap.Uint64("version", event.Version),
			zap.Error(err))
	}
}

// Projection returns the isometric projection of the board
func (s *BoardService) Projection() iso.Projection {
	return s.proj
}

// Culler returns the viewport culler. It is immutable and safe to share.
func (s *BoardService) Culler() *viewport.Culler {
	return s.culler
}

// Size returns the board dimensions
func (s *BoardService) Size() (width, height int) {
	return s.board.Width(), s.board.Height()
}

// Place validates tile at cell and commits it. A tile without an ID gets a fresh one.
// A blocked verdict is returned together with a PlacementRejected error.
func (s *BoardService) Place(tile board.Tile, cell shared.Cell) (board.PlacedTile, placement.Verdict, error) {
	if tile.ID.IsEmpty() {
		tile.ID = shared.NewID()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	verdict := s.validator.ValidateNear(tile, cell, s.board)
	if verdict.Blocked() {
		return board.PlacedTile{}, verdict, shared.NewDomainErrorf(shared.ErrCodePlacementRejected,
			"cannot place %s at %s: %s", tile.ID, cell, verdict.Reason)
	}
	if !s.board.PlaceTile(cell.X, cell.Y, tile) {
		return board.PlacedTile{}, verdict, shared.NewDomainErrorf(shared.ErrCodeInvalidPosition,
			"cell %s is outside the board", cell)
	}

	s.logger.Debug("Tile placed",
		zap.String("tile_id", tile.ID.String()),
		zap.String("cell", cell.String()))
	return board.PlacedTile{Cell: cell, Tile: tile}, verdict, nil
}

// Remove deletes the tile at cell
func (s *BoardService) Remove(cell shared.Cell) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.board.RemoveTile(cell.X, cell.Y) {
		return shared.NewDomainErrorf(shared.ErrCodeTileNotFound, "no tile at %s", cell)
	}
	return nil
}

// Clear removes every tile and returns how many were removed
func (s *BoardService) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.board.Len()
	s.board.Clear()
	return n
}

// TileAt returns the tile at cell
func (s *BoardService) TileAt(cell shared.Cell) (board.Tile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board.TileAt(cell.X, cell.Y)
}

// Locate returns the cell holding tile id
func (s *BoardService) Locate(id board.TileID) (shared.Cell, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board.CellOf(id)
}

// Snapshot returns every placed tile. Intended for small boards and initial sync.
func (s *BoardService) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *BoardService) snapshotLocked() Snapshot {
	return Snapshot{
		Version: s.board.Version(),
		Width:   s.board.Width(),
		Height:  s.board.Height(),
		Tiles:   s.board.AllTiles(),
	}
}

// Stats returns index diagnostics
func (s *BoardService) Stats() spatial.Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board.Stats()
}

// Version returns the board mutation counter
func (s *BoardService) Version() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.board.Version()
}

// TakeDirty reports whether the board changed since the last call and clears the flag
func (s *BoardService) TakeDirty() (uint64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dirty := s.board.Dirty()
	s.board.ClearDirty()
	return s.board.Version(), dirty
}

// Visible returns what a camera over a viewportW x viewportH viewport needs to draw.
// Boards under the culling threshold are returned whole.
func (s *BoardService) Visible(cam viewport.Camera, viewportW, viewportH float64) View {
	r, culled := s.visibleRange(cam, viewportW, viewportH)
	return s.view(cam, r, culled)
}

func (s *BoardService) visibleRange(cam viewport.Camera, viewportW, viewportH float64) (viewport.VisibleRange, bool) {
	w, h := s.Size()
	if !s.culler.ShouldUseCulling(w, h) {
		return viewport.VisibleRange{StartX: 0, EndX: w - 1, StartY: 0, EndY: h - 1, CellCount: w * h}, false
	}
	return s.culler.VisibleRange(cam, viewportW, viewportH, nil), true
}

func (s *BoardService) view(cam viewport.Camera, r viewport.VisibleRange, culled bool) View {
	cam.Zoom = s.culler.ClampZoom(cam.Zoom)

	s.mu.Lock()
	defer s.mu.Unlock()

	v := View{
		Version: s.board.Version(),
		Camera:  cam,
		Range:   r,
		Hints:   s.culler.RenderHints(cam.Zoom),
		Culled:  culled,
	}
	if !r.IsEmpty() {
		v.Tiles = s.board.VisibleTiles(r.Region())
	}
	return v
}

// Preview validates a placement without committing it. Verdicts are cached per board version.
func (s *BoardService) Preview(tile board.Tile, cell shared.Cell) placement.Verdict {
	s.mu.Lock()
	defer s.mu.Unlock()

	key, cacheable := s.previewKey(tile, cell)
	if cacheable {
		if v, ok := s.previews.Get(key); ok {
			return v
		}
	}

	verdict := s.validator.ValidateNear(tile, cell, s.board)
	if cacheable {
		s.previews.Set(key, verdict, 1)
		s.previews.Wait()
	}
	return verdict
}

// previewKey identifies a preview by board version, every tile field and cell.
// Metadata that does not marshal is never cached.
func (s *BoardService) previewKey(tile board.Tile, cell shared.Cell) (string, bool) {
	if s.previews == nil {
		return "", false
	}
	var digest uint64
	if len(tile.Metadata) > 0 {
		raw, err := json.Marshal(tile.Metadata)
		if err != nil {
			return "", false
		}
		digest = xxhash.Sum64(raw)
	}
	return fmt.Sprintf("%d|%s|%s|%s|%x|%s", s.board.Version(), tile.ID, tile.Type, tile.Color, digest, cell.Key()), true
}

// Proximity describes the neighborhood of cell. radius <= 0 selects the configured radius.
func (s *BoardService) Proximity(cell shared.Cell, radius float64) placement.Proximity {
	if radius <= 0 {
		radius = s.validator.Config().ProximityRadius
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.validator.Proximity(cell, s.board.TilesNear(cell, radius), radius)
}

// AddRule installs or replaces a placement rule
func (s *BoardService) AddRule(rule placement.Rule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validator.AddRule(rule); err != nil {
		return err
	}
	s.dropPreviews()
	return nil
}

// RemoveRule removes a placement rule by ID
func (s *BoardService) RemoveRule(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := s.validator.RemoveRule(id)
	if removed {
		s.dropPreviews()
	}
	return removed
}

// Rules returns the installed rule IDs in evaluation order
func (s *BoardService) Rules() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	rules := s.validator.Rules()
	ids := make([]string, 0, len(rules))
	for _, r := range rules {
		ids = append(ids, r.ID)
	}
	return ids
}

// cached verdicts are keyed by board version only, so rule changes invalidate them all
func (s *BoardService) dropPreviews() {
	if s.previews != nil {
		s.previews.Clear()
	}
}

// Close detaches the board listener and releases the preview cache
func (s *BoardService) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.board.OffChange(s.listener)
	if s.previews != nil {
		s.previews.Close()
		s.previews = nil
	}
}

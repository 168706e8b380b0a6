// Package viewport decides which cells a camera can see and how much detail
// is worth drawing at a given zoom.
package viewport

import (
	"math"

	"github.com/danghamo/isoboard/internal/domain/iso"
	"github.com/danghamo/isoboard/internal/domain/shared"
)

// Config holds the fixed inputs of a Culler
type Config struct {
	CellWidth   float64 `mapstructure:"cell_width" json:"cell_width"`
	CellHeight  float64 `mapstructure:"cell_height" json:"cell_height"`
	BoardWidth  int     `mapstructure:"board_width" json:"board_width"`
	BoardHeight int     `mapstructure:"board_height" json:"board_height"`

	MinZoom float64 `mapstructure:"min_zoom" json:"min_zoom"`
	MaxZoom float64 `mapstructure:"max_zoom" json:"max_zoom"`

	// Margin grows the viewport on every side before projecting, as a fraction of its size
	Margin float64 `mapstructure:"margin" json:"margin"`
	// CullingThreshold is the cell count above which culling pays off
	CullingThreshold int `mapstructure:"culling_threshold" json:"culling_threshold"`

	// LODThresholds are the zoom boundaries between LOD 0..4
	LODThresholds     [4]float64 `mapstructure:"lod_thresholds" json:"lod_thresholds"`
	GridMinZoom       float64    `mapstructure:"grid_min_zoom" json:"grid_min_zoom"`
	DecorationMinZoom float64    `mapstructure:"decoration_min_zoom" json:"decoration_min_zoom"`
}

// DefaultConfig returns a configuration with the stock culling policy
func DefaultConfig(cellWidth, cellHeight float64, boardWidth, boardHeight int) Config {
	return Config{
		CellWidth:         cellWidth,
		CellHeight:        cellHeight,
		BoardWidth:        boardWidth,
		BoardHeight:       boardHeight,
		MinZoom:           0.1,
		MaxZoom:           3.0,
		Margin:            0.25,
		CullingThreshold:  400,
		LODThresholds:     [4]float64{0.25, 0.5, 1.0, 1.5},
		GridMinZoom:       0.3,
		DecorationMinZoom: 0.6,
	}
}

// Camera is the render camera: a center point in projected pixel space and a zoom factor
type Camera struct {
	X    float64 `json:"x"`
	Y    float64 `json:"y"`
	Zoom float64 `json:"zoom"`
}

// VisibleRange is an inclusive cell rectangle plus its cell count.
// An empty range has CellCount 0 and End < Start.
type VisibleRange struct {
	StartX    int `json:"start_x"`
	EndX      int `json:"end_x"`
	StartY    int `json:"start_y"`
	EndY      int `json:"end_y"`
	CellCount int `json:"cell_count"`
}

// Region converts the range into a cell region for index queries
func (r VisibleRange) Region() shared.Region {
	return shared.NewRegion(r.StartX, r.EndX, r.StartY, r.EndY)
}

// IsEmpty reports whether no cell is visible
func (r VisibleRange) IsEmpty() bool {
	return r.CellCount == 0
}

var emptyRange = VisibleRange{StartX: 0, EndX: -1, StartY: 0, EndY: -1}

// Hints bundles the per-frame detail decisions for a zoom level
type Hints struct {
	LOD         int  `json:"lod"`
	Grid        bool `json:"grid"`
	Decorations bool `json:"decorations"`
	GridStride  int  `json:"grid_stride"`
}

// Culler computes visible ranges and detail levels. It holds no mutable state.
type Culler struct {
	cfg  Config
	proj iso.Projection
}

// NewCuller validates cfg and creates a Culler
func NewCuller(cfg Config) (*Culler, error) {
	proj, err := iso.NewProjection(cfg.CellWidth, cfg.CellHeight)
	if err != nil {
		return nil, err
	}
	if cfg.BoardWidth <= 0 || cfg.BoardHeight <= 0 {
		return nil, shared.NewDomainErrorf(shared.ErrCodeInvalidBoardSize,
			"board size must be positive, got %dx%d", cfg.BoardWidth, cfg.BoardHeight)
	}
	if cfg.MinZoom <= 0 || cfg.MaxZoom < cfg.MinZoom {
		return nil, shared.NewDomainErrorf(shared.ErrCodeInvalidZoomRange,
			"invalid zoom range [%g, %g]", cfg.MinZoom, cfg.MaxZoom)
	}
	if cfg.Margin < 0 {
		return nil, shared.NewDomainErrorf(shared.ErrCodeInvalidInput, "margin must not be negative, got %g", cfg.Margin)
	}
	for i := 1; i < len(cfg.LODThresholds); i++ {
		if cfg.LODThresholds[i] < cfg.LODThresholds[i-1] {
			return nil, shared.NewDomainError(shared.ErrCodeInvalidInput, "LOD thresholds must be ascending")
		}
	}

	return &Culler{cfg: cfg, proj: proj}, nil
}

// Config returns the culler configuration
func (c *Culler) Config() Config {
	return c.cfg
}

// Projection returns the projection used for corner mapping
func (c *Culler) Projection() iso.Projection {
	return c.proj
}

// ClampZoom bounds zoom to the configured range
func (c *Culler) ClampZoom(zoom float64) float64 {
	return math.Min(math.Max(zoom, c.cfg.MinZoom), c.cfg.MaxZoom)
}

// VisibleRange returns the cells a camera may need to draw for a viewportW x viewportH
// pixel viewport. A nil buffer selects the zoom-adaptive buffer.
func (c *Culler) VisibleRange(cam Camera, viewportW, viewportH float64, buffer *int) VisibleRange {
	zoom := c.ClampZoom(cam.Zoom)

	halfW := viewportW * (1 + c.cfg.Margin) / zoom / 2
	halfH := viewportH * (1 + c.cfg.Margin) / zoom / 2

	minFX, minFY := math.Inf(1), math.Inf(1)
	maxFX, maxFY := math.Inf(-1), math.Inf(-1)
	corners := [4][2]float64{
		{cam.X - halfW, cam.Y - halfH},
		{cam.X + halfW, cam.Y - halfH},
		{cam.X - halfW, cam.Y + halfH},
		{cam.X + halfW, cam.Y + halfH},
	}
	for _, corner := range corners {
		fx, fy := c.proj.ScreenToCell(corner[0], corner[1])
		minFX, maxFX = math.Min(minFX, fx), math.Max(maxFX, fx)
		minFY, maxFY = math.Min(minFY, fy), math.Max(maxFY, fy)
	}

	pad := adaptiveBuffer(zoom)
	if buffer != nil {
		pad = max(*buffer, 0)
	}

	startX := int(math.Floor(minFX)) - pad
	endX := int(math.Ceil(maxFX)) + pad
	startY := int(math.Floor(minFY)) - pad
	endY := int(math.Ceil(maxFY)) + pad

	if endX < 0 || endY < 0 || startX >= c.cfg.BoardWidth || startY >= c.cfg.BoardHeight {
		return emptyRange
	}

	r := shared.NewRegion(startX, endX, startY, endY).Clamp(c.cfg.BoardWidth, c.cfg.BoardHeight)
	return VisibleRange{
		StartX:    r.MinX,
		EndX:      r.MaxX,
		StartY:    r.MinY,
		EndY:      r.MaxY,
		CellCount: r.Area(),
	}
}

// adaptiveBuffer pads more cells at low zoom, where one frame of panning covers more board
func adaptiveBuffer(zoom float64) int {
	switch {
	case zoom < 0.15:
		return 12
	case zoom < 0.3:
		return 10
	case zoom < 0.5:
		return 8
	case zoom < 0.8:
		return 6
	case zoom < 1.25:
		return 4
	default:
		return 3
	}
}

// LevelOfDetail buckets zoom into 0..4
func (c *Culler) LevelOfDetail(zoom float64) int {
	zoom = c.ClampZoom(zoom)
	lod := 0
	for _, threshold := range c.cfg.LODThresholds {
		if zoom < threshold {
			break
		}
		lod++
	}
	return lod
}

// ShouldRenderGrid reports whether grid lines are worth drawing
func (c *Culler) ShouldRenderGrid(zoom float64, lod int) bool {
	return zoom >= c.cfg.GridMinZoom && lod >= 1
}

// ShouldRenderDecorations reports whether decorations are worth drawing.
// It never holds when the grid is off.
func (c *Culler) ShouldRenderDecorations(zoom float64, lod int) bool {
	return c.ShouldRenderGrid(zoom, lod) && zoom >= c.cfg.DecorationMinZoom && lod >= 2
}

// GridSamplingRate returns the stride between drawn grid lines
func (c *Culler) GridSamplingRate(zoom float64) int {
	switch {
	case zoom >= 1.0:
		return 1
	case zoom >= 0.5:
		return 2
	case zoom >= 0.25:
		return 4
	case zoom >= 0.12:
		return 8
	default:
		return 16
	}
}

// ShouldUseCulling reports whether a board is large enough for culling to pay off
func (c *Culler) ShouldUseCulling(boardWidth, boardHeight int) bool {
	return boardWidth*boardHeight > c.cfg.CullingThreshold
}

// HasSignificantChange reports whether cur differs enough from prev to warrant a
// re-query. A nil prev is always significant.
func (c *Culler) HasSignificantChange(cur VisibleRange, prev *VisibleRange, curZoom, prevZoom float64) bool {
	if prev == nil {
		return true
	}

	zoomTolerance, boundsTolerance := 0.05, 1
	if curZoom < 0.5 {
		zoomTolerance, boundsTolerance = 0.1, 2
	}

	if math.Abs(curZoom-prevZoom) > zoomTolerance {
		return true
	}

	return absInt(cur.StartX-prev.StartX) > boundsTolerance ||
		absInt(cur.EndX-prev.EndX) > boundsTolerance ||
		absInt(cur.StartY-prev.StartY) > boundsTolerance ||
		absInt(cur.EndY-prev.EndY) > boundsTolerance
}

// RenderHints bundles LOD, grid, decoration and stride decisions for zoom
func (c *Culler) RenderHints(zoom float64) Hints {
	zoom = c.ClampZoom(zoom)
	lod := c.LevelOfDetail(zoom)
	return Hints{
		LOD:         lod,
		Grid:        c.ShouldRenderGrid(zoom, lod),
		Decorations: c.ShouldRenderDecorations(zoom, lod),
		GridStride:  c.GridSamplingRate(zoom),
	}
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

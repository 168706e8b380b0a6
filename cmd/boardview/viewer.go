package main

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/gdamore/tcell/v2"
	"go.uber.org/zap"

	"github.com/danghamo/isoboard/internal/app/service"
	"github.com/danghamo/isoboard/internal/domain/board"
	"github.com/danghamo/isoboard/internal/domain/shared"
	"github.com/danghamo/isoboard/internal/domain/viewport"
	"github.com/danghamo/isoboard/pkg/logger"
)

const (
	frameInterval = 16 * time.Millisecond
	panStep       = 8.0
	zoomStep      = 1.25
	statusRows    = 1
)

var (
	gridStyle    = tcell.StyleDefault.Foreground(tcell.ColorGray)
	ghostStyle   = tcell.StyleDefault.Foreground(tcell.ColorYellow).Reverse(true)
	blockedStyle = tcell.StyleDefault.Foreground(tcell.ColorRed).Reverse(true)
	statusStyle  = tcell.StyleDefault.Foreground(tcell.ColorBlack).Background(tcell.ColorWhite)
)

// Viewer draws a board on a terminal. One terminal cell is one projected pixel
// at zoom 1; the camera center sits in the middle of the screen.
type Viewer struct {
	screen   tcell.Screen
	svc      *service.BoardService
	drag     *service.DragSession
	viewport *service.ViewportSession
	logger   *logger.Logger

	cam     viewport.Camera
	view    service.View
	pressed bool
}

// NewViewer creates a viewer centered on the middle of the board
func NewViewer(screen tcell.Screen, svc *service.BoardService, log *logger.Logger) *Viewer {
	w, h := svc.Size()
	center := svc.Projection().CellCenter(shared.NewCell(w/2, h/2))

	return &Viewer{
		screen:   screen,
		svc:      svc,
		drag:     svc.NewDragSession("boardview"),
		viewport: svc.NewViewportSession(),
		logger:   log.WithComponent("viewer"),
		cam:      viewport.Camera{X: center.X, Y: center.Y, Zoom: 1},
	}
}

func (v *Viewer) size() (float64, float64) {
	w, h := v.screen.Size()
	return float64(w), float64(max(h-statusRows, 1))
}

// toTerminal maps a projected point to a terminal cell
func (v *Viewer) toTerminal(p shared.Point) (int, int) {
	w, h := v.size()
	col := (p.X-v.cam.X)*v.cam.Zoom + w/2
	row := (p.Y-v.cam.Y)*v.cam.Zoom + h/2
	return int(math.Floor(col)), int(math.Floor(row))
}

// toProjected maps the center of a terminal cell back to projected space
func (v *Viewer) toProjected(col, row int) shared.Point {
	w, h := v.size()
	return shared.NewPoint(
		(float64(col)+0.5-w/2)/v.cam.Zoom+v.cam.X,
		(float64(row)+0.5-h/2)/v.cam.Zoom+v.cam.Y,
	)
}

// Run draws frames and handles input until the user quits
func (v *Viewer) Run() {
	ticker := time.NewTicker(frameInterval)
	defer ticker.Stop()

	events := make(chan tcell.Event, 100)
	go func() {
		for {
			ev := v.screen.PollEvent()
			if ev == nil {
				// Screen finalized
				close(events)
				return
			}
			events <- ev
		}
	}()

	v.draw()
	for {
		select {
		case ev, ok := <-events:
			if !ok || !v.handleEvent(ev) {
				return
			}
		case <-ticker.C:
			v.draw()
		}
	}
}

// handleEvent applies one input event; it returns false to quit
func (v *Viewer) handleEvent(ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventKey:
		return v.handleKey(ev)
	case *tcell.EventMouse:
		v.handleMouse(ev)
	case *tcell.EventResize:
		v.screen.Sync()
		v.viewport.Invalidate()
	}
	return true
}

func (v *Viewer) handleKey(ev *tcell.EventKey) bool {
	return v.applyKey(ev.Key(), ev.Rune())
}

func (v *Viewer) applyKey(key tcell.Key, ch rune) bool {
	step := panStep / v.cam.Zoom

	switch key {
	case tcell.KeyCtrlC:
		return false
	case tcell.KeyEscape:
		v.drag.Cancel()
		v.pressed = false
	case tcell.KeyLeft:
		v.cam.X -= step
	case tcell.KeyRight:
		v.cam.X += step
	case tcell.KeyUp:
		v.cam.Y -= step
	case tcell.KeyDown:
		v.cam.Y += step
	case tcell.KeyRune:
		switch ch {
		case 'q':
			return false
		case '+', '=':
			v.zoom(zoomStep)
		case '-':
			v.zoom(1 / zoomStep)
		}
	}
	return true
}

func (v *Viewer) zoom(factor float64) {
	v.cam.Zoom = v.svc.Culler().ClampZoom(v.cam.Zoom * factor)
}

// handleMouse drives the drag session: press picks up, motion drags, release drops
func (v *Viewer) handleMouse(ev *tcell.EventMouse) {
	col, row := ev.Position()
	v.applyMouse(col, row, ev.Buttons()&tcell.Button1 != 0)
}

func (v *Viewer) applyMouse(col, row int, down bool) {
	p := v.toProjected(col, row)

	switch {
	case down && !v.pressed:
		v.pressed = true
		if !v.drag.PickUp(p) {
			v.logger.Debug("Nothing to pick up", zap.String("point", p.String()))
		}
	case down && v.pressed:
		v.drag.Update(p)
	case !down && v.pressed:
		v.pressed = false
		if !v.drag.State().Dragging() {
			return
		}
		result := v.drag.End(p)
		v.logger.Info("Drop",
			zap.String("tileId", result.TileID.String()),
			zap.Bool("accepted", result.Accepted))
	}
}

func (v *Viewer) draw() {
	w, h := v.size()
	v.view, _ = v.viewport.Update(v.cam, w, h)

	v.screen.Clear()
	v.drawGrid()
	v.drawTiles()
	v.drawGhost()
	v.drawStatus()
	v.screen.Show()
}

// drawGrid marks cell centers at the sampled stride
func (v *Viewer) drawGrid() {
	hints := v.view.Hints
	if !hints.Grid || v.view.Range.IsEmpty() {
		return
	}
	stride := max(hints.GridStride, 1)
	proj := v.svc.Projection()

	r := v.view.Range
	for y := r.StartY; y <= r.EndY; y += stride {
		for x := r.StartX; x <= r.EndX; x += stride {
			col, row := v.toTerminal(proj.CellCenter(shared.NewCell(x, y)))
			v.screen.SetContent(col, row, '·', nil, gridStyle)
		}
	}
}

// drawTiles draws back to front: rows of the diamond further up first
func (v *Viewer) drawTiles() {
	tiles := append([]board.PlacedTile(nil), v.view.Tiles...)
	sort.Slice(tiles, func(i, j int) bool {
		di, dj := tiles[i].Cell.X+tiles[i].Cell.Y, tiles[j].Cell.X+tiles[j].Cell.Y
		if di != dj {
			return di < dj
		}
		return tiles[i].Cell.X < tiles[j].Cell.X
	})

	proj := v.svc.Projection()
	for _, pt := range tiles {
		col, row := v.toTerminal(proj.CellCenter(pt.Cell))
		v.screen.SetContent(col, row, glyph(pt.Tile), nil, tileStyle(pt.Tile))
	}
}

// drawGhost shows the dragged tile on its snapped cell, red when the drop would be refused
func (v *Viewer) drawGhost() {
	st := v.drag.State()
	if !st.Dragging() || !st.HasCell {
		return
	}

	style := ghostStyle
	if st.Blocked {
		style = blockedStyle
	}
	col, row := v.toTerminal(v.svc.Projection().CellCenter(st.Cell))
	v.screen.SetContent(col, row, glyph(st.Tile), nil, style)
}

func (v *Viewer) drawStatus() {
	w, h := v.screen.Size()
	status := fmt.Sprintf(" v%d  zoom %.2f  lod %d  cells %d  tiles %d  culled %t  [arrows] pan [+/-] zoom [esc] cancel [q] quit",
		v.view.Version, v.cam.Zoom, v.view.Hints.LOD, v.view.Range.CellCount, len(v.view.Tiles), v.view.Culled)

	row := h - 1
	for col := 0; col < w; col++ {
		r := ' '
		if col < len(status) {
			r = rune(status[col])
		}
		v.screen.SetContent(col, row, r, nil, statusStyle)
	}
}

func glyph(t board.Tile) rune {
	for _, r := range t.Type {
		return r
	}
	return '?'
}

func tileStyle(t board.Tile) tcell.Style {
	style := tcell.StyleDefault.Bold(true)
	if t.Color != "" {
		style = style.Foreground(tcell.GetColor(t.Color))
	}
	return style
}

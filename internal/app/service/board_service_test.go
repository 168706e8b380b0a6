package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	cqrscommands "github.com/danghamo/isoboard/internal/cqrs"
	"github.com/danghamo/isoboard/internal/domain/board"
	"github.com/danghamo/isoboard/internal/domain/placement"
	"github.com/danghamo/isoboard/internal/domain/shared"
	"github.com/danghamo/isoboard/internal/domain/viewport"
	"github.com/danghamo/isoboard/pkg/config"
	"github.com/danghamo/isoboard/pkg/logger"
)

// recordingPublisher keeps every published event
type recordingPublisher struct {
	mu     sync.Mutex
	events []interface{}
}

func (p *recordingPublisher) Publish(_ context.Context, event interface{}) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func eventsOf[T any](p *recordingPublisher) []T {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []T
	for _, e := range p.events {
		if typed, ok := e.(T); ok {
			out = append(out, typed)
		}
	}
	return out
}

// MockEventPublisher is a mock implementation of EventPublisher
type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) Publish(ctx context.Context, event interface{}) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func testConfig(width, height int) *config.Config {
	return &config.Config{
		Board:      config.BoardConfig{Width: width, Height: height, ChunkSize: 4},
		Projection: config.ProjectionConfig{CellWidth: 64, CellHeight: 32},
		Viewport: config.ViewportConfig{
			MinZoom:          0.1,
			MaxZoom:          3.0,
			Margin:           0.25,
			CullingThreshold: 400,
		},
		Placement: config.PlacementConfig{
			ProximityRadius:  3,
			SuggestionRadius: 3,
			MaxSuggestions:   3,
			PreviewCacheSize: 100,
		},
	}
}

func newTestService(t *testing.T, width, height int, rules ...placement.Rule) (*BoardService, *recordingPublisher) {
	t.Helper()
	pub := &recordingPublisher{}
	svc, err := NewBoardService(testConfig(width, height), pub, logger.NewNop(), rules...)
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return svc, pub
}

func tile(id, tileType string) board.Tile {
	t := board.NewTile(tileType, "#fff")
	t.ID = board.TileID(id)
	return t
}

func TestNewBoardService(t *testing.T) {
	t.Run("should reject an invalid board", func(t *testing.T) {
		_, err := NewBoardService(testConfig(0, 10), nil, logger.NewNop())
		require.Error(t, err)
		assert.Equal(t, shared.ErrCodeInvalidBoardSize, shared.ErrorCode(err))
	})

	t.Run("should reject a malformed rule", func(t *testing.T) {
		_, err := NewBoardService(testConfig(10, 10), nil, logger.NewNop(), placement.Rule{ID: "broken"})
		require.Error(t, err)
		assert.Equal(t, shared.ErrCodeInvalidRule, shared.ErrorCode(err))
	})

	t.Run("should install default rules", func(t *testing.T) {
		svc, _ := newTestService(t, 10, 10)
		assert.Equal(t, []string{"occupied"}, svc.Rules())
	})

	t.Run("should work without preview cache or publisher", func(t *testing.T) {
		cfg := testConfig(10, 10)
		cfg.Placement.PreviewCacheSize = 0
		svc, err := NewBoardService(cfg, nil, logger.NewNop())
		require.NoError(t, err)
		defer svc.Close()

		_, _, err = svc.Place(tile("a", "tree"), shared.NewCell(1, 1))
		require.NoError(t, err)
		assert.True(t, svc.Preview(tile("b", "tree"), shared.NewCell(1, 1)).Blocked())
	})
}

func TestBoardService_Place(t *testing.T) {
	svc, pub := newTestService(t, 10, 10)

	t.Run("should place a tile and publish the change", func(t *testing.T) {
		placed, verdict, err := svc.Place(tile("a", "tree"), shared.NewCell(2, 2))
		require.NoError(t, err)
		assert.Equal(t, shared.NewCell(2, 2), placed.Cell)
		assert.True(t, verdict.CanPlace)

		events := eventsOf[*cqrscommands.BoardChangedEvent](pub)
		require.Len(t, events, 1)
		assert.Equal(t, uint64(1), events[0].Version)
		require.Len(t, events[0].Tiles, 1)
		assert.Equal(t, board.TileID("a"), events[0].Tiles[0].Tile.ID)
	})

	t.Run("should reject an occupied cell with suggestions", func(t *testing.T) {
		_, verdict, err := svc.Place(tile("b", "tree"), shared.NewCell(2, 2))
		require.Error(t, err)
		assert.Equal(t, shared.ErrCodePlacementRejected, shared.ErrorCode(err))
		assert.True(t, verdict.Blocked())
		assert.NotEmpty(t, verdict.Suggestions)

		_, ok := svc.Locate("b")
		assert.False(t, ok)
	})

	t.Run("should reject cells outside the board", func(t *testing.T) {
		_, verdict, err := svc.Place(tile("c", "tree"), shared.NewCell(10, 0))
		require.Error(t, err)
		assert.Equal(t, shared.ErrCodePlacementRejected, shared.ErrorCode(err))
		assert.True(t, verdict.Blocked())
	})

	t.Run("should move a tile placed again", func(t *testing.T) {
		_, _, err := svc.Place(tile("a", "tree"), shared.NewCell(3, 3))
		require.NoError(t, err)

		cell, ok := svc.Locate("a")
		require.True(t, ok)
		assert.Equal(t, shared.NewCell(3, 3), cell)
		_, ok = svc.TileAt(shared.NewCell(2, 2))
		assert.False(t, ok)
	})

	t.Run("should assign an ID to anonymous tiles", func(t *testing.T) {
		placed, _, err := svc.Place(board.NewTile("rock", ""), shared.NewCell(0, 0))
		require.NoError(t, err)
		assert.False(t, placed.Tile.ID.IsEmpty())
	})
}

func TestBoardService_Remove(t *testing.T) {
	svc, pub := newTestService(t, 10, 10)
	_, _, err := svc.Place(tile("a", "tree"), shared.NewCell(1, 1))
	require.NoError(t, err)

	t.Run("should remove an existing tile", func(t *testing.T) {
		require.NoError(t, svc.Remove(shared.NewCell(1, 1)))
		assert.Empty(t, svc.Snapshot().Tiles)
		assert.Len(t, eventsOf[*cqrscommands.BoardChangedEvent](pub), 2)
	})

	t.Run("should report a missing tile", func(t *testing.T) {
		err := svc.Remove(shared.NewCell(1, 1))
		require.Error(t, err)
		assert.Equal(t, shared.ErrCodeTileNotFound, shared.ErrorCode(err))
	})
}

func TestBoardService_Snapshot(t *testing.T) {
	svc, _ := newTestService(t, 10, 8)
	_, _, err := svc.Place(tile("a", "tree"), shared.NewCell(1, 1))
	require.NoError(t, err)

	snap := svc.Snapshot()
	assert.Equal(t, uint64(1), snap.Version)
	assert.Equal(t, 10, snap.Width)
	assert.Equal(t, 8, snap.Height)
	assert.Len(t, snap.Tiles, 1)
	assert.Equal(t, 1, svc.Stats().TileCount)
}

func TestBoardService_Visible(t *testing.T) {
	t.Run("should return small boards whole", func(t *testing.T) {
		svc, _ := newTestService(t, 10, 10)
		_, _, err := svc.Place(tile("a", "tree"), shared.NewCell(9, 9))
		require.NoError(t, err)

		view := svc.Visible(viewport.Camera{Zoom: 1}, 10, 10)
		assert.False(t, view.Culled)
		assert.Equal(t, viewport.VisibleRange{StartX: 0, EndX: 9, StartY: 0, EndY: 9, CellCount: 100}, view.Range)
		assert.Len(t, view.Tiles, 1)
	})

	t.Run("should cull large boards", func(t *testing.T) {
		svc, _ := newTestService(t, 200, 200)
		_, _, err := svc.Place(tile("near", "tree"), shared.NewCell(100, 100))
		require.NoError(t, err)
		_, _, err = svc.Place(tile("far", "tree"), shared.NewCell(0, 199))
		require.NoError(t, err)

		center := svc.Projection().CellCenter(shared.NewCell(100, 100))
		view := svc.Visible(viewport.Camera{X: center.X, Y: center.Y, Zoom: 1}, 800, 600)

		assert.True(t, view.Culled)
		assert.Less(t, view.Range.CellCount, 200*200)
		require.Len(t, view.Tiles, 1)
		assert.Equal(t, board.TileID("near"), view.Tiles[0].Tile.ID)
	})

	t.Run("should clamp zoom in the returned camera", func(t *testing.T) {
		svc, _ := newTestService(t, 10, 10)
		view := svc.Visible(viewport.Camera{Zoom: 30}, 100, 100)
		assert.Equal(t, 3.0, view.Camera.Zoom)
		assert.Equal(t, svc.Culler().RenderHints(3.0), view.Hints)
	})
}

func TestBoardService_Preview(t *testing.T) {
	svc, _ := newTestService(t, 10, 10)
	_, _, err := svc.Place(tile("a", "tree"), shared.NewCell(4, 4))
	require.NoError(t, err)

	t.Run("should not mutate the board", func(t *testing.T) {
		verdict := svc.Preview(tile("b", "tree"), shared.NewCell(5, 5))
		assert.True(t, verdict.CanPlace)
		_, ok := svc.Locate("b")
		assert.False(t, ok)
		assert.Equal(t, uint64(1), svc.Version())
	})

	t.Run("should return the same verdict from cache", func(t *testing.T) {
		first := svc.Preview(tile("b", "tree"), shared.NewCell(4, 4))
		second := svc.Preview(tile("b", "tree"), shared.NewCell(4, 4))
		assert.True(t, first.Blocked())
		assert.Equal(t, first, second)
	})

	t.Run("should drop cached verdicts when rules change", func(t *testing.T) {
		target := shared.NewCell(7, 7)
		assert.False(t, svc.Preview(tile("b", "tree"), target).Blocked())

		require.NoError(t, svc.AddRule(placement.Rule{
			ID:       "frozen",
			Priority: 500,
			Evaluate: func(placement.Context) placement.Verdict { return placement.Block("Board is frozen") },
		}))
		verdict := svc.Preview(tile("b", "tree"), target)
		assert.True(t, verdict.Blocked())
		assert.Equal(t, "Board is frozen", verdict.Reason)

		assert.True(t, svc.RemoveRule("frozen"))
		assert.False(t, svc.Preview(tile("b", "tree"), target).Blocked())
		assert.False(t, svc.RemoveRule("frozen"))
	})
}

func TestBoardService_PreviewMetadata(t *testing.T) {
	heavy := placement.Rule{
		ID: "heavy",
		Evaluate: func(ctx placement.Context) placement.Verdict {
			if ctx.Tile.Metadata["heavy"] == true {
				return placement.Block("Too heavy")
			}
			return placement.Neutral("")
		},
	}
	svc, _ := newTestService(t, 10, 10, heavy)
	target := shared.NewCell(2, 2)

	t.Run("should not share a cached verdict across metadata", func(t *testing.T) {
		light := board.Tile{Type: "crate"}
		loaded := board.Tile{Type: "crate", Metadata: map[string]any{"heavy": true}}

		assert.False(t, svc.Preview(light, target).Blocked())
		verdict := svc.Preview(loaded, target)
		assert.True(t, verdict.Blocked())
		assert.Equal(t, "Too heavy", verdict.Reason)
		assert.False(t, svc.Preview(light, target).Blocked())
	})

	t.Run("should still validate metadata that cannot be cached", func(t *testing.T) {
		odd := board.Tile{Type: "crate", Metadata: map[string]any{"heavy": true, "hook": func() {}}}
		assert.True(t, svc.Preview(odd, target).Blocked())
	})
}

func TestBoardService_Proximity(t *testing.T) {
	svc, _ := newTestService(t, 10, 10)
	for id, c := range map[string]shared.Cell{"a": {X: 4, Y: 5}, "b": {X: 5, Y: 4}, "c": {X: 9, Y: 9}} {
		_, _, err := svc.Place(tile(id, "tree"), c)
		require.NoError(t, err)
	}

	p := svc.Proximity(shared.NewCell(5, 5), 0)
	assert.Len(t, p.Nearby, 2)
	assert.Len(t, p.Adjacent, 2)
	assert.Equal(t, 2, p.TypeCounts["tree"])
}

func TestBoardService_TakeDirty(t *testing.T) {
	svc, _ := newTestService(t, 10, 10)

	_, dirty := svc.TakeDirty()
	assert.False(t, dirty)

	_, _, err := svc.Place(tile("a", "tree"), shared.NewCell(1, 1))
	require.NoError(t, err)
	_, _, err = svc.Place(tile("b", "tree"), shared.NewCell(2, 1))
	require.NoError(t, err)

	version, dirty := svc.TakeDirty()
	assert.True(t, dirty)
	assert.Equal(t, uint64(2), version)

	_, dirty = svc.TakeDirty()
	assert.False(t, dirty)
}

func TestBoardService_PublishFailure(t *testing.T) {
	pub := new(MockEventPublisher)
	pub.On("Publish", mock.Anything, mock.AnythingOfType("*cqrs.BoardChangedEvent")).Return(errors.New("bus closed"))

	svc, err := NewBoardService(testConfig(10, 10), pub, logger.NewNop())
	require.NoError(t, err)
	defer svc.Close()

	_, _, err = svc.Place(tile("a", "tree"), shared.NewCell(1, 1))
	assert.NoError(t, err, "publish failures must not undo the placement")
	pub.AssertNumberOfCalls(t, "Publish", 1)
}

func TestBoardService_CloseDetachesListener(t *testing.T) {
	pub := &recordingPublisher{}
	svc, err := NewBoardService(testConfig(10, 10), pub, logger.NewNop())
	require.NoError(t, err)

	svc.Close()
	_, _, err = svc.Place(tile("a", "tree"), shared.NewCell(1, 1))
	require.NoError(t, err)
	assert.Empty(t, eventsOf[*cqrscommands.BoardChangedEvent](pub))
}

func TestViewportSession(t *testing.T) {
	t.Run("should skip insignificant camera moves", func(t *testing.T) {
		svc, _ := newTestService(t, 200, 200)
		vs := svc.NewViewportSession()

		cam := viewport.Camera{Zoom: 1}
		first, changed := vs.Update(cam, 800, 600)
		assert.True(t, changed)

		cam.X += 1
		second, changed := vs.Update(cam, 800, 600)
		assert.False(t, changed)
		assert.Equal(t, first, second)

		cam.X += 2000
		_, changed = vs.Update(cam, 800, 600)
		assert.True(t, changed)
	})

	t.Run("should recompute after the board changes", func(t *testing.T) {
		svc, _ := newTestService(t, 10, 10)
		vs := svc.NewViewportSession()

		_, changed := vs.Update(viewport.Camera{Zoom: 1}, 100, 100)
		require.True(t, changed)

		_, _, err := svc.Place(tile("a", "tree"), shared.NewCell(0, 0))
		require.NoError(t, err)

		view, changed := vs.Update(viewport.Camera{Zoom: 1}, 100, 100)
		assert.True(t, changed)
		assert.Len(t, view.Tiles, 1)
	})

	t.Run("should throttle recomputation", func(t *testing.T) {
		cfg := testConfig(200, 200)
		cfg.Viewport.ThrottleInterval = time.Hour
		svc, err := NewBoardService(cfg, nil, logger.NewNop())
		require.NoError(t, err)
		defer svc.Close()

		vs := svc.NewViewportSession()
		first, changed := vs.Update(viewport.Camera{Zoom: 1}, 800, 600)
		require.True(t, changed)

		second, changed := vs.Update(viewport.Camera{X: 5000, Zoom: 0.2}, 800, 600)
		assert.False(t, changed)
		assert.Equal(t, first, second)

		vs.Invalidate()
		_, ok := vs.Last()
		assert.False(t, ok)
		_, changed = vs.Update(viewport.Camera{X: 5000, Zoom: 0.2}, 800, 600)
		assert.True(t, changed)
	})
}

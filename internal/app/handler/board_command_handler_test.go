package handler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danghamo/isoboard/internal/app/command"
	"github.com/danghamo/isoboard/internal/app/service"
	"github.com/danghamo/isoboard/internal/domain/board"
	"github.com/danghamo/isoboard/internal/domain/placement"
	"github.com/danghamo/isoboard/internal/domain/shared"
	"github.com/danghamo/isoboard/pkg/config"
	"github.com/danghamo/isoboard/pkg/logger"
)

// unknownCommand is a command the handler does not know
type unknownCommand struct {
	command.BaseCommand
}

func newTestHandler(t *testing.T) (*BoardCommandHandler, *service.BoardService) {
	t.Helper()
	cfg := &config.Config{
		Board:      config.BoardConfig{Width: 6, Height: 6, ChunkSize: 2},
		Projection: config.ProjectionConfig{CellWidth: 64, CellHeight: 32},
		Viewport:   config.ViewportConfig{MinZoom: 0.1, MaxZoom: 3, Margin: 0.25, CullingThreshold: 400},
		Placement: config.PlacementConfig{
			ProximityRadius:  3,
			SuggestionRadius: 3,
			MaxSuggestions:   3,
			PreviewCacheSize: 100,
		},
	}
	svc, err := service.NewBoardService(cfg, nil, logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	return NewBoardCommandHandler(svc, logger.NewNop()), svc
}

func namedTile(id, tileType string) board.Tile {
	tile := board.NewTile(tileType, "")
	tile.ID = board.TileID(id)
	return tile
}

func TestBoardCommandHandler_Handle(t *testing.T) {
	h, svc := newTestHandler(t)
	ctx := context.Background()

	t.Run("should place a tile", func(t *testing.T) {
		cmd := command.NewPlaceTileCommand(namedTile("a", "tree"), shared.NewCell(1, 1))
		result, err := h.Handle(ctx, cmd)
		require.NoError(t, err)
		assert.True(t, result.Success)
		assert.Equal(t, cmd.CommandID(), result.CommandID)
		assert.Equal(t, 1, svc.Stats().TileCount)
	})

	t.Run("should report a refused placement with its verdict", func(t *testing.T) {
		result, err := h.Handle(ctx, command.NewPlaceTileCommand(namedTile("b", "rock"), shared.NewCell(1, 1)))
		require.NoError(t, err)
		assert.False(t, result.Success)
		verdict, ok := result.Data.(placement.Verdict)
		require.True(t, ok)
		assert.False(t, verdict.CanPlace)
	})

	t.Run("should remove a tile", func(t *testing.T) {
		result, err := h.Handle(ctx, command.NewRemoveTileCommand(shared.NewCell(1, 1)))
		require.NoError(t, err)
		assert.True(t, result.Success)

		result, err = h.Handle(ctx, command.NewRemoveTileCommand(shared.NewCell(1, 1)))
		require.NoError(t, err)
		assert.False(t, result.Success)
	})

	t.Run("should reject unknown commands", func(t *testing.T) {
		_, err := h.Handle(ctx, unknownCommand{command.NewBaseCommand("teleport")})
		assert.Error(t, err)
	})
}

func TestBoardCommandHandler_HandleAll(t *testing.T) {
	h, svc := newTestHandler(t)
	ctx := context.Background()

	t.Run("should apply a batch in order", func(t *testing.T) {
		results, err := h.HandleAll(ctx, []command.Command{
			command.NewPlaceTileCommand(namedTile("a", "tree"), shared.NewCell(0, 0)),
			command.NewPlaceTileCommand(namedTile("b", "rock"), shared.NewCell(0, 0)),
			command.NewPlaceTileCommand(namedTile("b", "rock"), shared.NewCell(2, 2)),
		})
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, []bool{true, false, true}, []bool{results[0].Success, results[1].Success, results[2].Success})
		assert.Equal(t, 2, svc.Stats().TileCount)
	})

	t.Run("should clear the board", func(t *testing.T) {
		results, err := h.HandleAll(ctx, []command.Command{command.NewClearBoardCommand()})
		require.NoError(t, err)
		assert.Equal(t, map[string]int{"removed": 2}, results[0].Data)
		assert.Equal(t, 0, svc.Stats().TileCount)
	})

	t.Run("should stop at an unknown command", func(t *testing.T) {
		results, err := h.HandleAll(ctx, []command.Command{
			command.NewClearBoardCommand(),
			unknownCommand{command.NewBaseCommand("teleport")},
			command.NewClearBoardCommand(),
		})
		assert.Error(t, err)
		assert.Len(t, results, 1)
	})

	t.Run("should stop when the context ends", func(t *testing.T) {
		cancelled, cancel := context.WithCancel(ctx)
		cancel()
		results, err := h.HandleAll(cancelled, []command.Command{command.NewClearBoardCommand()})
		assert.ErrorIs(t, err, context.Canceled)
		assert.Empty(t, results)
	})
}

package handler

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/danghamo/isoboard/internal/app/command"
	"github.com/danghamo/isoboard/internal/app/service"
	"github.com/danghamo/isoboard/pkg/logger"
)

// BoardCommandHandler applies board commands to a board service
type BoardCommandHandler struct {
	svc    *service.BoardService
	logger *logger.Logger
}

// NewBoardCommandHandler creates a new board command handler
func NewBoardCommandHandler(svc *service.BoardService, logger *logger.Logger) *BoardCommandHandler {
	return &BoardCommandHandler{
		svc:    svc,
		logger: logger.WithComponent("board-command-handler"),
	}
}

// Handle applies one command. Domain refusals are reported in the result;
// the error is reserved for commands the handler does not understand.
func (h *BoardCommandHandler) Handle(ctx context.Context, cmd command.Command) (command.CommandResult, error) {
	switch c := cmd.(type) {
	case command.PlaceTileCommand:
		return h.handlePlaceTile(c), nil
	case command.RemoveTileCommand:
		return h.handleRemoveTile(c), nil
	case command.ClearBoardCommand:
		return h.handleClearBoard(c), nil
	default:
		return command.CommandResult{}, fmt.Errorf("unknown command type: %T", cmd)
	}
}

// HandleAll applies commands in order. It stops at the first unknown command;
// refused commands do not stop the batch.
func (h *BoardCommandHandler) HandleAll(ctx context.Context, cmds []command.Command) ([]command.CommandResult, error) {
	results := make([]command.CommandResult, 0, len(cmds))
	for _, cmd := range cmds {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		result, err := h.Handle(ctx, cmd)
		if err != nil {
			return results, err
		}
		results = append(results, result)
	}
	return results, nil
}

func (h *BoardCommandHandler) handlePlaceTile(cmd command.PlaceTileCommand) command.CommandResult {
	placed, verdict, err := h.svc.Place(cmd.Tile, cmd.Cell)
	if err != nil {
		h.logger.Debug("Place command refused",
			zap.String("commandId", cmd.CommandID()),
			zap.String("cell", cmd.Cell.String()),
			zap.Error(err))
		return command.NewErrorResult(cmd, err, verdict)
	}
	return command.NewSuccessResult(cmd, "placed", placed)
}

func (h *BoardCommandHandler) handleRemoveTile(cmd command.RemoveTileCommand) command.CommandResult {
	if err := h.svc.Remove(cmd.Cell); err != nil {
		return command.NewErrorResult(cmd, err, nil)
	}
	return command.NewSuccessResult(cmd, "removed", cmd.Cell)
}

func (h *BoardCommandHandler) handleClearBoard(cmd command.ClearBoardCommand) command.CommandResult {
	removed := h.svc.Clear()
	return command.NewSuccessResult(cmd, "cleared", map[string]int{"removed": removed})
}

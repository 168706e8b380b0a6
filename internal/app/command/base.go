package command

import (
	"context"
	"time"

	"github.com/danghamo/isoboard/internal/domain/shared"
)

// Command represents a board mutation request
type Command interface {
	CommandID() string
	CommandType() string
	CreatedAt() time.Time
}

// BaseCommand provides common command functionality
type BaseCommand struct {
	ID        string    `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"created_at"`
}

// CommandID returns the command ID
func (c BaseCommand) CommandID() string {
	return c.ID
}

// CommandType returns the command type
func (c BaseCommand) CommandType() string {
	return c.Type
}

// CreatedAt returns when the command was created
func (c BaseCommand) CreatedAt() time.Time {
	return c.Timestamp
}

// NewBaseCommand creates a new base command
func NewBaseCommand(commandType string) BaseCommand {
	return BaseCommand{
		ID:        shared.NewID().String(),
		Type:      commandType,
		Timestamp: time.Now(),
	}
}

// CommandHandler handles commands
type CommandHandler interface {
	Handle(ctx context.Context, cmd Command) (CommandResult, error)
}

// CommandResult represents the result of a command execution
type CommandResult struct {
	CommandID string      `json:"command_id"`
	Success   bool        `json:"success"`
	Message   string      `json:"message"`
	Data      interface{} `json:"data,omitempty"`
}

// NewSuccessResult creates a successful command result
func NewSuccessResult(cmd Command, message string, data interface{}) CommandResult {
	return CommandResult{
		CommandID: cmd.CommandID(),
		Success:   true,
		Message:   message,
		Data:      data,
	}
}

// NewErrorResult creates a failed command result. data may carry a verdict.
func NewErrorResult(cmd Command, err error, data interface{}) CommandResult {
	return CommandResult{
		CommandID: cmd.CommandID(),
		Success:   false,
		Message:   err.Error(),
		Data:      data,
	}
}

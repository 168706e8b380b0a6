package shared

import (
	"github.com/samber/oops"
)

// Domain error codes
const (
	ErrCodeInvalidInput     = 1001
	ErrCodeNotFound         = 1002
	ErrCodeAlreadyExists    = 1003
	ErrCodeInvalidOperation = 1004

	// Board specific errors (6000-6999)
	ErrCodeInvalidBoardSize  = 6001
	ErrCodeInvalidChunkSize  = 6002
	ErrCodeInvalidCellSize   = 6003
	ErrCodeInvalidZoomRange  = 6004
	ErrCodeInvalidPosition   = 6005
	ErrCodeTileNotFound      = 6006
	ErrCodeInvalidTile       = 6007
	ErrCodePlacementRejected = 6008
	ErrCodeInvalidRule       = 6009
)

// NewDomainError creates a new domain error using oops
func NewDomainError(code int, message string) error {
	return oops.
		Code(codeToString(code)).
		In("domain").
		With("error_code", code).
		Errorf("%s", message)
}

// NewDomainErrorf creates a new domain error with formatted message
func NewDomainErrorf(code int, format string, args ...interface{}) error {
	return oops.
		Code(codeToString(code)).
		In("domain").
		With("error_code", code).
		Errorf(format, args...)
}

// WrapDomainError wraps an existing error with domain context
func WrapDomainError(err error, code int, message string) error {
	return oops.
		Code(codeToString(code)).
		In("domain").
		With("error_code", code).
		Wrapf(err, "%s", message)
}

// ErrorCode extracts the numeric domain code from an error built by this package.
// It returns 0 for errors that carry no domain code.
func ErrorCode(err error) int {
	oopsErr, ok := oops.AsOops(err)
	if !ok {
		return 0
	}
	if code, ok := oopsErr.Context()["error_code"].(int); ok {
		return code
	}
	return 0
}

// codeToString converts int error code to string
func codeToString(code int) string {
	switch code {
	case ErrCodeInvalidInput:
		return "INVALID_INPUT"
	case ErrCodeNotFound:
		return "NOT_FOUND"
	case ErrCodeAlreadyExists:
		return "ALREADY_EXISTS"
	case ErrCodeInvalidOperation:
		return "INVALID_OPERATION"
	case ErrCodeInvalidBoardSize:
		return "INVALID_BOARD_SIZE"
	case ErrCodeInvalidChunkSize:
		return "INVALID_CHUNK_SIZE"
	case ErrCodeInvalidCellSize:
		return "INVALID_CELL_SIZE"
	case ErrCodeInvalidZoomRange:
		return "INVALID_ZOOM_RANGE"
	case ErrCodeInvalidPosition:
		return "INVALID_POSITION"
	case ErrCodeTileNotFound:
		return "TILE_NOT_FOUND"
	case ErrCodeInvalidTile:
		return "INVALID_TILE"
	case ErrCodePlacementRejected:
		return "PLACEMENT_REJECTED"
	case ErrCodeInvalidRule:
		return "INVALID_RULE"
	default:
		return "UNKNOWN_ERROR"
	}
}

// Common domain error builders
func ErrInvalidInput(msg string) error {
	return NewDomainError(ErrCodeInvalidInput, msg)
}

func ErrNotFound(resource string) error {
	return NewDomainErrorf(ErrCodeNotFound, "%s not found", resource)
}

func ErrInvalidOperation(operation string) error {
	return NewDomainErrorf(ErrCodeInvalidOperation, "Invalid operation: %s", operation)
}

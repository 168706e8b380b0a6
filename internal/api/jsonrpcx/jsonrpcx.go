package jsonrpcx

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/danghamo/isoboard/internal/domain/shared"
)

// JSONRPCRequest represents a JSON-RPC 2.0 request
type JSONRPCRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      any             `json:"id,omitempty"`
}

// JSONRPCResponse represents a JSON-RPC 2.0 response
type JSONRPCResponse struct {
	JSONRPC string        `json:"jsonrpc"`
	Result  any           `json:"result,omitempty"`
	Error   *JSONRPCError `json:"error,omitempty"`
	ID      any           `json:"id,omitempty"`
}

// JSONRPCError represents a JSON-RPC 2.0 error
type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// JsonRpcNotification is a JSON-RPC 2.0 request without an ID, pushed over SSE
type JsonRpcNotification struct {
	Jsonrpc string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params,omitempty"`
}

// NewNotification builds a 2.0 notification
func NewNotification(method string, params interface{}) JsonRpcNotification {
	return JsonRpcNotification{Jsonrpc: "2.0", Method: method, Params: params}
}

// JSON-RPC 2.0 error codes
const (
	ParseError     = -32700
	InvalidRequest = -32600
	MethodNotFound = -32601
	InvalidParams  = -32602
	InternalError  = -32603
)

// Application error codes (server error range)
const (
	NotFound          = -32004
	PlacementRejected = -32010
	InvalidPosition   = -32011
)

type contextKey string

const errorKey contextKey = "jsonrpc_error"

// ParseRequest parses JSON-RPC 2.0 request from HTTP request body
func ParseRequest(r *http.Request) (*JSONRPCRequest, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	defer r.Body.Close()

	var req JSONRPCRequest
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}

	// Validate JSON-RPC version
	if req.JSONRPC != "2.0" {
		return nil, fmt.Errorf("unsupported jsonrpc version %q", req.JSONRPC)
	}

	return &req, nil
}

// DecodeParams unmarshals request params into v. Missing params leave v untouched.
func DecodeParams(req *JSONRPCRequest, v any) error {
	if len(req.Params) == 0 {
		return nil
	}
	return json.Unmarshal(req.Params, v)
}

// Success sends a successful JSON-RPC 2.0 response
func Success(w http.ResponseWriter, id any, result any) {
	response := JSONRPCResponse{
		JSONRPC: "2.0",
		Result:  result,
		ID:      id,
	}

	Response(w, response)
}

// WithError attaches an error to the request context for middleware processing
func WithError(r *http.Request, id any, code int, message string) {
	// Overwrite the request pointer so the error adapter middleware sees it
	*r = *SetError(r, id, code, message)
}

// WithErrorData is WithError with structured error data
func WithErrorData(r *http.Request, id any, code int, message string, data any) {
	response := errorResponse(id, code, message)
	response.Error.Data = data
	*r = *r.WithContext(context.WithValue(r.Context(), errorKey, &response))
}

// WithDomainError attaches a domain error, mapping its code to a JSON-RPC code
func WithDomainError(r *http.Request, id any, err error) {
	WithError(r, id, CodeFor(err), err.Error())
}

// CodeFor maps a domain error to a JSON-RPC error code
func CodeFor(err error) int {
	switch shared.ErrorCode(err) {
	case shared.ErrCodeNotFound, shared.ErrCodeTileNotFound:
		return NotFound
	case shared.ErrCodePlacementRejected:
		return PlacementRejected
	case shared.ErrCodeInvalidPosition:
		return InvalidPosition
	case shared.ErrCodeInvalidInput, shared.ErrCodeInvalidTile:
		return InvalidParams
	default:
		return InternalError
	}
}

// ErrorFrom returns the JSON-RPC error stored in ctx, if any
func ErrorFrom(ctx context.Context) (*JSONRPCResponse, bool) {
	resp, ok := ctx.Value(errorKey).(*JSONRPCResponse)
	return resp, ok
}

// ErrorAdapter interface for middleware to send error responses
type ErrorAdapter interface {
	SendError(w http.ResponseWriter, id any, code int, message string)
}

// errorAdapter is the private implementation of ErrorAdapter
type errorAdapter struct{}

// NewErrorAdapter creates a new error adapter for middleware use
func NewErrorAdapter() ErrorAdapter {
	return &errorAdapter{}
}

// SendError sends an error JSON-RPC 2.0 response (only accessible through ErrorAdapter)
func (ea *errorAdapter) SendError(w http.ResponseWriter, id any, code int, message string) {
	Response(w, errorResponse(id, code, message))
}

// SetError stores a JSON-RPC error in the request context for middleware processing
func SetError(r *http.Request, id any, code int, message string) *http.Request {
	response := errorResponse(id, code, message)
	ctx := context.WithValue(r.Context(), errorKey, &response)
	return r.WithContext(ctx)
}

func errorResponse(id any, code int, message string) JSONRPCResponse {
	return JSONRPCResponse{
		JSONRPC: "2.0",
		Error: &JSONRPCError{
			Code:    code,
			Message: message,
		},
		ID: id,
	}
}

// Response sends a JSON-RPC 2.0 response (always HTTP 200)
func Response(w http.ResponseWriter, response JSONRPCResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK) // JSON-RPC always returns HTTP 200

	// Encode response - if error occurs, it will be logged by middleware
	json.NewEncoder(w).Encode(response)
}

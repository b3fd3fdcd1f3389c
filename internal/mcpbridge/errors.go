package mcpbridge

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the bridge.
var (
	ErrMissingConnection = errors.New("missing connection string")
	ErrMissingQuery      = errors.New("missing query text")
	ErrNoQueryToolFound  = errors.New("no query tool found")
	ErrEmptyResult       = errors.New("empty result")
	ErrClosed            = errors.New("bridge connection closed")
)

// BridgeError is a subprocess-level failure: launch, handshake, transport,
// or a tool result flagged as an error.
type BridgeError struct {
	Op      string
	Message string
	Err     error
}

func (e *BridgeError) Error() string {
	if e.Message == "" && e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

func (e *BridgeError) Unwrap() error { return e.Err }

// ToolFailure reports whether err came from the tool itself rather than
// from the transport. The connection stays usable after a tool failure.
func ToolFailure(err error) bool {
	var be *BridgeError
	return errors.As(err, &be) && be.Op == OpToolResult
}

// Bridge operations named in BridgeError.Op.
const (
	OpLaunch     = "launch"
	OpInitialize = "initialize"
	OpListTools  = "list_tools"
	OpCallTool   = "call_tool"
	OpToolResult = "tool_result"
)

func wrap(op string, err error) error {
	return &BridgeError{Op: op, Message: err.Error(), Err: err}
}

// Package mcpbridge runs literal SQL through an MCP SQL-tool subprocess
// spoken to over stdio.
package mcpbridge

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
)

// DefaultArgumentKey is the argument name used for the SQL text.
const DefaultArgumentKey = "query"

// ToolClient is the subset of the MCP client the bridge needs.
// *client.Client from mark3labs/mcp-go satisfies it.
type ToolClient interface {
	Initialize(ctx context.Context, req mcp.InitializeRequest) (*mcp.InitializeResult, error)
	ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error)
	CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error)
	Close() error
}

// Conn is an initialized connection to one bridge subprocess.
// Requests are serialized: at most one is in flight at a time.
type Conn struct {
	mu     sync.Mutex
	client ToolClient
	closed bool
	logger *slog.Logger
}

// NewConn wraps an already initialized client.
func NewConn(c ToolClient, logger *slog.Logger) *Conn {
	if logger == nil {
		logger = slog.Default()
	}
	return &Conn{client: c, logger: logger}
}

func (c *Conn) listTools(ctx context.Context) ([]mcp.Tool, error) {
	if c.closed {
		return nil, ErrClosed
	}
	res, err := c.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, wrap(OpListTools, err)
	}
	return res.Tools, nil
}

// Query lists the advertised tools, picks the first one whose name contains
// "query" and calls it with sql. It returns the first text content element.
func (c *Conn) Query(ctx context.Context, sql string) (string, error) {
	if strings.TrimSpace(sql) == "" {
		return "", ErrMissingQuery
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	tools, err := c.listTools(ctx)
	if err != nil {
		return "", err
	}
	tool, ok := SelectQueryTool(tools)
	if !ok {
		return "", ErrNoQueryToolFound
	}

	req := mcp.CallToolRequest{}
	req.Params.Name = tool.Name
	req.Params.Arguments = map[string]any{ArgumentKey(tool): sql}

	c.logger.Debug("calling bridge tool", "tool", tool.Name)
	res, err := c.client.CallTool(ctx, req)
	if err != nil {
		return "", wrap(OpCallTool, err)
	}

	text, found := FirstText(res.Content)
	if res.IsError {
		if !found {
			text = "tool reported an error"
		}
		return "", &BridgeError{Op: OpToolResult, Message: text}
	}
	if !found {
		return "", ErrEmptyResult
	}
	return text, nil
}

// Close terminates the subprocess. Closing twice is a no-op.
func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	return c.client.Close()
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// SelectQueryTool returns the first tool whose name contains "query",
// case-insensitively.
func SelectQueryTool(tools []mcp.Tool) (mcp.Tool, bool) {
	for _, t := range tools {
		if strings.Contains(strings.ToLower(t.Name), "query") {
			return t, true
		}
	}
	return mcp.Tool{}, false
}

// ArgumentKey returns the argument name to carry the SQL text. It is "query"
// unless the tool declares exactly one input property under another name.
func ArgumentKey(t mcp.Tool) string {
	props := t.InputSchema.Properties
	if len(props) != 1 {
		return DefaultArgumentKey
	}
	for name := range props {
		return name
	}
	return DefaultArgumentKey
}

// FirstText returns the first text element of content.
func FirstText(content []mcp.Content) (string, bool) {
	for _, item := range content {
		switch tc := item.(type) {
		case mcp.TextContent:
			return tc.Text, true
		case *mcp.TextContent:
			if tc != nil {
				return tc.Text, true
			}
		}
	}
	return "", false
}

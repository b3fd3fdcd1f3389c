package mcpbridge

import (
	"context"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
)

type fakeClient struct {
	mu sync.Mutex

	tools      []mcp.Tool
	listErr    error
	initErr    error
	callErr    error
	result     *mcp.CallToolResult
	calls      []mcp.CallToolRequest
	inits      []mcp.InitializeRequest
	closeCalls int
}

func (f *fakeClient) Initialize(_ context.Context, req mcp.InitializeRequest) (*mcp.InitializeResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inits = append(f.inits, req)
	if f.initErr != nil {
		return nil, f.initErr
	}
	return &mcp.InitializeResult{}, nil
}

func (f *fakeClient) ListTools(_ context.Context, _ mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return &mcp.ListToolsResult{Tools: f.tools}, nil
}

func (f *fakeClient) CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	f.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.callErr != nil {
		return nil, f.callErr
	}
	if f.result == nil {
		return &mcp.CallToolResult{}, nil
	}
	return f.result, nil
}

func (f *fakeClient) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	return nil
}

func textResult(s string) *mcp.CallToolResult {
	return &mcp.CallToolResult{Content: []mcp.Content{mcp.TextContent{Type: "text", Text: s}}}
}

func tool(name string, props ...string) mcp.Tool {
	t := mcp.Tool{Name: name}
	if len(props) > 0 {
		t.InputSchema.Properties = map[string]any{}
		for _, p := range props {
			t.InputSchema.Properties[p] = map[string]any{"type": "string"}
		}
	}
	return t
}

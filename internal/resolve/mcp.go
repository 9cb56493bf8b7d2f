package resolve

import (
	"context"

	"github.com/yousuf/stackmap/internal/client"
)

// MCPResolver fetches mapping documents by calling a tool on a downstream
// MCP server, passing the path as a single string argument
type MCPResolver struct {
	Box     *client.ClientBox
	Server  string
	Tool    string
	PathArg string
}

func (m *MCPResolver) Resolve(ctx context.Context, path string) (string, error) {
	arg := m.PathArg
	if arg == "" {
		arg = "path"
	}
	return m.Box.CallToolText(ctx, m.Server, m.Tool, map[string]any{arg: path})
}

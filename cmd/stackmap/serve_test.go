package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/yousuf/stackmap/internal/config"
	"github.com/yousuf/stackmap/internal/metrics"
	"github.com/yousuf/stackmap/internal/server"
	"github.com/yousuf/stackmap/internal/session"
)

func connectHTTP(t *testing.T, ctx context.Context, endpoint string) *mcp.ClientSession {
	t.Helper()
	client := mcp.NewClient(&mcp.Implementation{
		Name:    "stackmap-test-client",
		Version: "1.0.0",
	}, &mcp.ClientOptions{})

	cs, err := client.Connect(ctx, &mcp.StreamableClientTransport{Endpoint: endpoint}, &mcp.ClientSessionOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { cs.Close() })
	return cs
}

func toolText(res *mcp.CallToolResult) string {
	var out string
	for _, content := range res.Content {
		if tc, ok := content.(*mcp.TextContent); ok {
			out += tc.Text
		}
	}
	return out
}

func TestServeHTTP(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg := config.Default()
	sessions := session.NewManager(nil)
	deps := server.Deps{
		Config:   cfg,
		Sessions: sessions,
		Metrics:  metrics.New(prometheus.NewRegistry()),
		Logger:   zap.NewNop(),
	}
	srv := httptest.NewServer(newHTTPHandler(deps))
	defer srv.Close()

	first := connectHTTP(t, ctx, srv.URL)
	assert.NotEmpty(t, first.ID())

	tools, err := first.ListTools(ctx, &mcp.ListToolsParams{})
	require.NoError(t, err)
	assert.Len(t, tools.Tools, 8)

	res, err := first.CallTool(ctx, &mcp.CallToolParams{
		Name:      "load_source_map",
		Arguments: map[string]any{"name": "app", "content": testDoc},
	})
	require.NoError(t, err)
	require.False(t, res.IsError, toolText(res))

	res, err = first.CallTool(ctx, &mcp.CallToolParams{
		Name: "resolve_error_stack",
		Arguments: map[string]any{
			"map":   "app",
			"stack": "TypeError: boom\n    at f (https://cdn.example.com/app.js:2:0)",
		},
	})
	require.NoError(t, err)
	assert.Equal(t, "TypeError: boom\n    at src/app.ts:2:1", toolText(res))

	// maps are bound per MCP session
	second := connectHTTP(t, ctx, srv.URL)
	assert.NotEqual(t, first.ID(), second.ID())
	res, err = second.CallTool(ctx, &mcp.CallToolParams{
		Name:      "list_sources",
		Arguments: map[string]any{"map": "app"},
	})
	require.NoError(t, err)
	assert.True(t, res.IsError)
	assert.GreaterOrEqual(t, sessions.Len(), 2)

	resp, err := http.Get(srv.URL + cfg.Server.MetricsPath)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "stackmap_frames_resolved_total 1")

	// ending a session drops its maps
	firstID := first.ID()
	require.NotNil(t, sessions.GetSession(firstID))
	_ = first.Close()
	assert.Eventually(t, func() bool {
		return sessions.GetSession(firstID) == nil
	}, 5*time.Second, 10*time.Millisecond)
	assert.NotNil(t, sessions.GetSession(second.ID()))
}

package client

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/yousuf/stackmap/internal/config"
)

// MCPClient wraps an MCP client connection to a downstream server
type MCPClient struct {
	name    string
	session *mcp.ClientSession
	tools   []*mcp.Tool
}

// NewMCPClient creates a new MCP client based on the configuration
func NewMCPClient(ctx context.Context, name string, cfg config.McpServerConfig) (*MCPClient, error) {
	var transport mcp.Transport
	var err error

	switch cfg.Type {
	case "stdio":
		transport, err = createStdioTransport(cfg)
	case "http":
		transport, err = createHttpTransport(cfg)
	case "sse":
		transport, err = createSSETransport(cfg)
	default:
		return nil, fmt.Errorf("unsupported transport type: %s", cfg.Type)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create transport: %w", err)
	}

	return Connect(ctx, name, transport)
}

// Connect opens a client session over transport and lists the server's tools
func Connect(ctx context.Context, name string, transport mcp.Transport) (*MCPClient, error) {
	client := mcp.NewClient(&mcp.Implementation{
		Name:    "stackmap-client",
		Version: "1.0.0",
	}, &mcp.ClientOptions{})

	session, err := client.Connect(ctx, transport, &mcp.ClientSessionOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}

	toolsResult, err := session.ListTools(ctx, &mcp.ListToolsParams{})
	if err != nil {
		session.Close()
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	return &MCPClient{
		name:    name,
		session: session,
		tools:   toolsResult.Tools,
	}, nil
}

// createStdioTransport creates a stdio transport
func createStdioTransport(cfg config.McpServerConfig) (mcp.Transport, error) {
	cmd := exec.Command(cfg.Command, cfg.Args...)

	if cfg.Cwd != "" {
		cmd.Dir = cfg.Cwd
	}

	if len(cfg.Env) > 0 {
		// Start with current environment
		cmd.Env = os.Environ()
		for k, v := range cfg.Env {
			cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
		}
	}

	return &mcp.CommandTransport{Command: cmd}, nil
}

// headerRoundTripper sets the configured headers on every outgoing request
type headerRoundTripper struct {
	headers map[string]string
	next    http.RoundTripper
}

// RoundTrip implements the http.RoundTripper interface
func (h *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if len(h.headers) > 0 {
		req = req.Clone(req.Context())
		for k, v := range h.headers {
			req.Header.Set(k, v)
		}
	}
	return h.next.RoundTrip(req)
}

func headerClient(headers map[string]string) *http.Client {
	return &http.Client{
		Transport: &headerRoundTripper{
			headers: headers,
			next:    http.DefaultTransport,
		},
	}
}

func createHttpTransport(cfg config.McpServerConfig) (mcp.Transport, error) {
	return &mcp.StreamableClientTransport{
		Endpoint:   cfg.URL,
		HTTPClient: headerClient(cfg.Headers),
		MaxRetries: 0,
	}, nil
}

func createSSETransport(cfg config.McpServerConfig) (mcp.Transport, error) {
	return &mcp.SSEClientTransport{
		Endpoint:   cfg.URL,
		HTTPClient: headerClient(cfg.Headers),
	}, nil
}

// CallTool calls a tool on this MCP client
func (c *MCPClient) CallTool(ctx context.Context, toolName string, args map[string]any) (*mcp.CallToolResult, error) {
	return c.session.CallTool(ctx, &mcp.CallToolParams{
		Name:      toolName,
		Arguments: args,
	})
}

// CallToolText calls a tool and joins its text content. A tool error result
// is returned as an error carrying the tool's text.
func (c *MCPClient) CallToolText(ctx context.Context, toolName string, args map[string]any) (string, error) {
	result, err := c.CallTool(ctx, toolName, args)
	if err != nil {
		return "", fmt.Errorf("failed to call tool %q on %q: %w", toolName, c.name, err)
	}
	return ResultText(result)
}

// ResultText extracts the text content of a tool result
func ResultText(result *mcp.CallToolResult) (string, error) {
	var sb strings.Builder
	for _, content := range result.Content {
		if text, ok := content.(*mcp.TextContent); ok {
			sb.WriteString(text.Text)
		}
	}
	if result.IsError {
		return "", fmt.Errorf("tool error: %s", sb.String())
	}
	return sb.String(), nil
}

// GetTools returns the list of available tools
func (c *MCPClient) GetTools() []*mcp.Tool {
	return c.tools
}

// GetName returns the client name
func (c *MCPClient) GetName() string {
	return c.name
}

// Close closes the client connection
func (c *MCPClient) Close() error {
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}

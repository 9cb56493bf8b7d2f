package client

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/yousuf/stackmap/internal/config"
)

// ClientBox manages multiple MCP client connections
type ClientBox struct {
	clients map[string]*MCPClient
	mu      sync.RWMutex
}

// NewClientBox creates a new ClientBox
func NewClientBox() *ClientBox {
	return &ClientBox{
		clients: make(map[string]*MCPClient),
	}
}

// Connect establishes connections to all configured MCP servers
func (cb *ClientBox) Connect(ctx context.Context, servers map[string]config.McpServerConfig) error {
	for name, serverCfg := range servers {
		client, err := NewMCPClient(ctx, name, serverCfg)
		if err != nil {
			return fmt.Errorf("failed to connect to server %q: %w", name, err)
		}
		cb.Add(client)
	}

	return nil
}

// Add registers a connected client, replacing any client with the same name
func (cb *ClientBox) Add(client *MCPClient) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if old, exists := cb.clients[client.GetName()]; exists {
		old.Close()
	}
	cb.clients[client.GetName()] = client
}

// CallToolText calls a tool on a specific MCP server and returns its text content
func (cb *ClientBox) CallToolText(ctx context.Context, serverName, toolName string, args map[string]any) (string, error) {
	cb.mu.RLock()
	client, exists := cb.clients[serverName]
	cb.mu.RUnlock()

	if !exists {
		return "", fmt.Errorf("server %q not found", serverName)
	}

	return client.CallToolText(ctx, toolName, args)
}

// HasTool reports whether serverName exposes toolName
func (cb *ClientBox) HasTool(serverName, toolName string) bool {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	client, exists := cb.clients[serverName]
	if !exists {
		return false
	}
	for _, tool := range client.GetTools() {
		if tool.Name == toolName {
			return true
		}
	}
	return false
}

// Servers returns the names of all connected servers, sorted
func (cb *ClientBox) Servers() []string {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	names := make([]string, 0, len(cb.clients))
	for name := range cb.clients {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close closes all client connections
func (cb *ClientBox) Close() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	var errs []error
	for name, client := range cb.clients {
		if err := client.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close client %q: %w", name, err))
		}
	}
	cb.clients = make(map[string]*MCPClient)

	if len(errs) > 0 {
		return fmt.Errorf("errors closing clients: %v", errs)
	}

	return nil
}

package plugin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	extism "github.com/extism/go-sdk"
	"go.uber.org/zap"
)

// Export names a plugin may provide
const (
	ExportFormatPath = "format_path"
	ExportResolveMap = "resolve_map"
)

// ErrNotExported is returned when the plugin does not export the called function
var ErrNotExported = errors.New("function not exported by plugin")

// HostResolver lets a plugin fetch documents through the host's resolver
type HostResolver func(ctx context.Context, path string) (string, error)

// Plugin is a loaded WASM module that rewrites frame paths and/or resolves
// mapping documents. Calls are serialized; an extism plugin instance is not
// safe for concurrent use.
type Plugin struct {
	plugin *extism.Plugin
	host   HostResolver
	logger *zap.Logger
	ctx    context.Context
	mu     sync.Mutex
}

// Load reads a WASM module from disk
func Load(ctx context.Context, wasmPath string, host HostResolver, logger *zap.Logger) (*Plugin, error) {
	wasmBytes, err := os.ReadFile(wasmPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read plugin: %w", err)
	}
	return New(ctx, wasmBytes, host, logger)
}

// New creates a plugin instance from WASM bytes
func New(ctx context.Context, wasmBytes []byte, host HostResolver, logger *zap.Logger) (*Plugin, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	manifest := extism.Manifest{
		Wasm: []extism.Wasm{
			extism.WasmData{
				Data: wasmBytes,
			},
		},
	}

	config := extism.PluginConfig{
		EnableWasi: true,
	}

	p := &Plugin{
		host:   host,
		logger: logger,
		ctx:    ctx,
	}

	hostFunctions := []extism.HostFunction{
		createResolveHostFunc(p),
	}

	plugin, err := extism.NewPlugin(ctx, manifest, config, hostFunctions)
	if err != nil {
		return nil, fmt.Errorf("failed to create plugin: %w", err)
	}

	p.plugin = plugin
	return p, nil
}

// Exports reports whether the plugin exports name
func (p *Plugin) Exports(name string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.plugin.FunctionExists(name)
}

// FormatPath calls format_path with a frame's source path
func (p *Plugin) FormatPath(ctx context.Context, path string) (string, error) {
	return p.call(ctx, ExportFormatPath, path)
}

// ResolveMap calls resolve_map and returns the mapping document text
func (p *Plugin) ResolveMap(ctx context.Context, path string) (string, error) {
	return p.call(ctx, ExportResolveMap, path)
}

func (p *Plugin) call(ctx context.Context, name, input string) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.plugin.FunctionExists(name) {
		return "", fmt.Errorf("%w: %s", ErrNotExported, name)
	}

	// host function calls made during this invocation use the caller's context
	p.ctx = ctx

	exit, output, err := p.plugin.Call(name, []byte(input))
	if err != nil {
		return "", fmt.Errorf("plugin %s failed: %w", name, err)
	}
	if exit != 0 {
		return "", fmt.Errorf("plugin %s exited with code %d", name, exit)
	}
	return string(output), nil
}

// Close closes the plugin and frees resources
func (p *Plugin) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.plugin != nil {
		p.plugin.Close(context.Background())
	}
}

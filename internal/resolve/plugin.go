package resolve

import (
	"context"

	"github.com/yousuf/stackmap/internal/plugin"
)

// PluginResolver resolves documents through a WASM plugin's resolve_map export
type PluginResolver struct {
	Plugin *plugin.Plugin
}

func (p *PluginResolver) Resolve(ctx context.Context, path string) (string, error) {
	return p.Plugin.ResolveMap(ctx, path)
}

// PluginFormatter rewrites paths through a WASM plugin's format_path export
type PluginFormatter struct {
	Plugin *plugin.Plugin
}

func (p *PluginFormatter) Format(ctx context.Context, path string) (string, error) {
	return p.Plugin.FormatPath(ctx, path)
}

package resolve

import (
	"fmt"

	"github.com/yousuf/stackmap/internal/artifact"
	"github.com/yousuf/stackmap/internal/client"
	"github.com/yousuf/stackmap/internal/config"
	"github.com/yousuf/stackmap/internal/plugin"
)

// Deps are the long-lived collaborators a configured resolver may need
type Deps struct {
	Store  *artifact.Store
	Box    *client.ClientBox
	Plugin *plugin.Plugin
}

// FromConfig builds the configured resolver. It returns nil when no
// resolver kind is configured.
func FromConfig(cfg *config.Config, deps Deps) (Resolver, error) {
	rc := cfg.Resolver

	var r Resolver
	switch rc.Kind {
	case "":
		return nil, nil
	case "dir":
		r = &DirResolver{Root: rc.Dir}
	case "http":
		r = NewHTTPResolver(rc.BaseURL, rc.Timeout, rc.Headers)
	case "store":
		if deps.Store == nil {
			return nil, fmt.Errorf("store resolver requires an open artifact store")
		}
		r = &StoreResolver{Store: deps.Store}
	case "mcp":
		if deps.Box == nil {
			return nil, fmt.Errorf("mcp resolver requires connected MCP servers")
		}
		if !deps.Box.HasTool(rc.MCP.Server, rc.MCP.Tool) {
			return nil, fmt.Errorf("mcp server %q does not expose tool %q", rc.MCP.Server, rc.MCP.Tool)
		}
		r = &MCPResolver{
			Box:     deps.Box,
			Server:  rc.MCP.Server,
			Tool:    rc.MCP.Tool,
			PathArg: rc.MCP.PathArg,
		}
	case "plugin":
		if deps.Plugin == nil {
			return nil, fmt.Errorf("plugin resolver requires a loaded plugin")
		}
		r = &PluginResolver{Plugin: deps.Plugin}
	default:
		return nil, fmt.Errorf("unknown resolver kind %q", rc.Kind)
	}

	r = WithSuffix(r, rc.AppendExt)

	if rc.CacheSize > 0 {
		cached, err := NewCached(r, rc.CacheSize)
		if err != nil {
			return nil, err
		}
		r = cached
	}
	return r, nil
}

// FormatterFromConfig chains the rewrite rules and, when enabled, the
// plugin's format_path. It returns nil when neither is configured.
func FormatterFromConfig(cfg *config.Config, deps Deps) (Formatter, error) {
	var rules Formatter
	if len(cfg.Rewrites) > 0 {
		rw, err := NewRewriter(cfg.Rewrites)
		if err != nil {
			return nil, err
		}
		rules = rw
	}

	var wasm Formatter
	if cfg.Plugin.Format {
		if deps.Plugin == nil {
			return nil, fmt.Errorf("plugin formatter requires a loaded plugin")
		}
		wasm = &PluginFormatter{Plugin: deps.Plugin}
	}

	return Chain(rules, wasm), nil
}

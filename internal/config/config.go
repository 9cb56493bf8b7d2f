package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yousuf/stackmap/internal/sourcemap"
)

// EnvConfigPath names the environment variable consulted when no --config flag is given.
const EnvConfigPath = "STACKMAP_CONFIG"

// Config represents the main configuration structure
type Config struct {
	Server     ServerConfig               `yaml:"server"`
	Log        LogConfig                  `yaml:"log"`
	Context    ContextConfig              `yaml:"context"`
	Resolver   ResolverConfig             `yaml:"resolver"`
	Rewrites   []RewriteRule              `yaml:"rewrites"`
	Plugin     PluginConfig               `yaml:"plugin"`
	Store      StoreConfig                `yaml:"store"`
	Parser     ParserConfig               `yaml:"parser"`
	McpServers map[string]McpServerConfig `yaml:"mcpServers"`
}

type ServerConfig struct {
	Addr           string        `yaml:"addr"`
	Transport      string        `yaml:"transport"` // "http" or "stdio"
	MetricsPath    string        `yaml:"metrics_path"`
	SessionTimeout time.Duration `yaml:"session_timeout"`
}

type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// ContextConfig controls source context windows
type ContextConfig struct {
	Radius    uint32 `yaml:"radius"`
	MaxRadius uint32 `yaml:"max_radius"`
	Policy    string `yaml:"policy"` // "asymmetric" or "clip_both"
}

// ResolverConfig selects where mapping documents are fetched from
type ResolverConfig struct {
	Kind      string            `yaml:"kind"` // "", "dir", "http", "store", "mcp" or "plugin"
	Dir       string            `yaml:"dir"`
	BaseURL   string            `yaml:"base_url"`
	Timeout   time.Duration     `yaml:"timeout"`
	CacheSize int               `yaml:"cache_size"`
	AppendExt string            `yaml:"append_ext"`
	Headers   map[string]string `yaml:"headers"`
	MCP       MCPResolverConfig `yaml:"mcp"`
}

// MCPResolverConfig names a tool on one of the configured MCP servers that
// returns mapping documents as text content
type MCPResolverConfig struct {
	Server  string `yaml:"server"`
	Tool    string `yaml:"tool"`
	PathArg string `yaml:"path_arg"`
}

// RewriteRule rewrites frame source paths matching a glob before resolution
type RewriteRule struct {
	Match       string `yaml:"match"`
	StripPrefix string `yaml:"strip_prefix"`
	Prefix      string `yaml:"prefix"`
	Append      string `yaml:"append"`
}

// PluginConfig loads a WASM plugin that can format paths and resolve documents
type PluginConfig struct {
	Path    string `yaml:"path"`
	Format  bool   `yaml:"format"`
	Resolve bool   `yaml:"resolve"`
}

type StoreConfig struct {
	Path string `yaml:"path"`
}

// ParserConfig adds frame shapes the built-in V8 and Firefox/Safari patterns do not cover
type ParserConfig struct {
	Patterns []FramePattern `yaml:"patterns"`
}

// FramePattern is a regular expression with the named groups url, line,
// column and optionally name
type FramePattern struct {
	Name    string `yaml:"name"`
	Pattern string `yaml:"pattern"`
}

// Build compiles the stack line parser
func (c ParserConfig) Build() (*sourcemap.Parser, error) {
	extra := make([]sourcemap.Pattern, 0, len(c.Patterns))
	for _, p := range c.Patterns {
		extra = append(extra, sourcemap.Pattern{Name: p.Name, Expr: p.Pattern})
	}
	return sourcemap.NewParserWith(extra...)
}

// McpServerConfig describes a downstream MCP server
type McpServerConfig struct {
	Type string `yaml:"type"` // "stdio", "http", or "sse"

	// Stdio fields
	Command string            `yaml:"command,omitempty"`
	Args    []string          `yaml:"args,omitempty"`
	Cwd     string            `yaml:"cwd,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`

	// HTTP/SSE fields
	URL     string            `yaml:"url,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
}

// Default returns the configuration used when no file is given
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Addr:           ":3000",
			Transport:      "http",
			MetricsPath:    "/metrics",
			SessionTimeout: 30 * time.Minute,
		},
		Log: LogConfig{
			Level: "info",
		},
		Context: ContextConfig{
			Radius:    sourcemap.DefaultBatchRadius,
			MaxRadius: 200,
			Policy:    "asymmetric",
		},
		Resolver: ResolverConfig{
			Timeout:   10 * time.Second,
			AppendExt: ".map",
			MCP: MCPResolverConfig{
				PathArg: "path",
			},
		},
	}
}

// Load reads and parses the configuration file. JSON files are accepted as well.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes a YAML document over the defaults and validates the result
func Parse(data []byte) (*Config, error) {
	config := Default()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := validate(config); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

// Resolve loads the file at path, falling back to $STACKMAP_CONFIG and then to Default.
func Resolve(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv(EnvConfigPath)
	}
	if path == "" {
		return Default(), nil
	}
	return Load(path)
}

// ContextPolicy returns the configured context clipping policy
func (c ContextConfig) ContextPolicy() sourcemap.ContextPolicy {
	if c.Policy == "clip_both" {
		return sourcemap.ClipBoth
	}
	return sourcemap.ClipLow
}

// ClampRadius bounds a caller-requested radius by MaxRadius.
func (c ContextConfig) ClampRadius(radius uint32) uint32 {
	if c.MaxRadius > 0 && radius > c.MaxRadius {
		return c.MaxRadius
	}
	return radius
}

// validate checks if the configuration is valid
func validate(config *Config) error {
	switch config.Server.Transport {
	case "http", "stdio":
	default:
		return fmt.Errorf("server: invalid transport %q (must be http or stdio)", config.Server.Transport)
	}

	if config.Server.SessionTimeout < 0 {
		return fmt.Errorf("server: session_timeout must not be negative")
	}

	switch strings.ToLower(config.Log.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log: invalid level %q", config.Log.Level)
	}

	switch config.Context.Policy {
	case "", "asymmetric", "clip_both":
	default:
		return fmt.Errorf("context: invalid policy %q (must be asymmetric or clip_both)", config.Context.Policy)
	}
	if config.Context.MaxRadius > 0 && config.Context.Radius > config.Context.MaxRadius {
		return fmt.Errorf("context: radius %d exceeds max_radius %d", config.Context.Radius, config.Context.MaxRadius)
	}

	for name, server := range config.McpServers {
		switch server.Type {
		case "stdio":
			if server.Command == "" {
				return fmt.Errorf("server %q: command is required for stdio type", name)
			}
		case "http", "sse":
			if server.URL == "" {
				return fmt.Errorf("server %q: url is required for %s type", name, server.Type)
			}
		default:
			return fmt.Errorf("server %q: invalid type %q (must be stdio, http, or sse)", name, server.Type)
		}
	}

	if err := validateResolver(config); err != nil {
		return fmt.Errorf("resolver: %w", err)
	}

	for i, rule := range config.Rewrites {
		if rule.Match == "" {
			return fmt.Errorf("rewrites[%d]: match is required", i)
		}
	}

	if _, err := config.Parser.Build(); err != nil {
		return fmt.Errorf("parser: %w", err)
	}

	if (config.Plugin.Format || config.Plugin.Resolve) && config.Plugin.Path == "" {
		return fmt.Errorf("plugin: path is required when format or resolve is enabled")
	}

	return nil
}

func validateResolver(config *Config) error {
	r := config.Resolver
	if r.CacheSize < 0 {
		return fmt.Errorf("cache_size must not be negative")
	}

	switch r.Kind {
	case "", "http":
	case "dir":
		if r.Dir == "" {
			return fmt.Errorf("dir is required for dir kind")
		}
	case "store":
		if config.Store.Path == "" {
			return fmt.Errorf("store.path is required for store kind")
		}
	case "mcp":
		if r.MCP.Tool == "" {
			return fmt.Errorf("mcp.tool is required for mcp kind")
		}
		if _, ok := config.McpServers[r.MCP.Server]; !ok {
			return fmt.Errorf("mcp.server %q is not configured", r.MCP.Server)
		}
	case "plugin":
		if config.Plugin.Path == "" || !config.Plugin.Resolve {
			return fmt.Errorf("plugin kind requires plugin.path with plugin.resolve enabled")
		}
	default:
		return fmt.Errorf("invalid kind %q", r.Kind)
	}
	return nil
}

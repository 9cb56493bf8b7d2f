package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yousuf/stackmap/internal/sourcemap"
)

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, validate(cfg))
	assert.Equal(t, ":3000", cfg.Server.Addr)
	assert.Equal(t, 30*time.Minute, cfg.Server.SessionTimeout)
	assert.Equal(t, uint32(5), cfg.Context.Radius)
	assert.Equal(t, sourcemap.ClipLow, cfg.Context.ContextPolicy())
}

func TestParse(t *testing.T) {
	cfg, err := Parse([]byte(`
server:
  addr: ":8080"
  transport: stdio
  session_timeout: 5m
log:
  level: debug
context:
  radius: 3
  max_radius: 50
  policy: clip_both
resolver:
  kind: dir
  dir: ./maps
  timeout: 2s
  cache_size: 64
rewrites:
  - match: "https://cdn.example.com/**"
    strip_prefix: "https://cdn.example.com/"
    append: ".map"
`))
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, "stdio", cfg.Server.Transport)
	assert.Equal(t, 5*time.Minute, cfg.Server.SessionTimeout)
	assert.Equal(t, "/metrics", cfg.Server.MetricsPath, "unset keys keep defaults")
	assert.Equal(t, sourcemap.ClipBoth, cfg.Context.ContextPolicy())
	assert.Equal(t, 2*time.Second, cfg.Resolver.Timeout)
	assert.Equal(t, 64, cfg.Resolver.CacheSize)
	require.Len(t, cfg.Rewrites, 1)
	assert.Equal(t, ".map", cfg.Rewrites[0].Append)
}

func TestParseJSON(t *testing.T) {
	cfg, err := Parse([]byte(`{
  "resolver": {"kind": "mcp", "mcp": {"server": "files", "tool": "read_file"}},
  "mcpServers": {"files": {"type": "stdio", "command": "mcp-files"}}
}`))
	require.NoError(t, err)
	assert.Equal(t, "path", cfg.Resolver.MCP.PathArg)
	assert.Equal(t, "mcp-files", cfg.McpServers["files"].Command)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		msg  string
	}{
		{"transport", "server: {transport: grpc}", "invalid transport"},
		{"session timeout", "server: {session_timeout: -1s}", "session_timeout"},
		{"level", "log: {level: loud}", "invalid level"},
		{"policy", "context: {policy: wrap}", "invalid policy"},
		{"radius", "context: {radius: 20, max_radius: 10}", "exceeds max_radius"},
		{"dir", "resolver: {kind: dir}", "dir is required"},
		{"store", "resolver: {kind: store}", "store.path is required"},
		{"mcp server", "resolver: {kind: mcp, mcp: {tool: read, server: nope}}", "not configured"},
		{"plugin", "resolver: {kind: plugin}", "plugin kind requires"},
		{"kind", "resolver: {kind: ftp}", "invalid kind"},
		{"rewrite", "rewrites: [{prefix: x}]", "match is required"},
		{"parser", "parser: {patterns: [{name: p, pattern: '(?P<url>.+)'}]}", "missing named group"},
		{"stdio server", "mcpServers: {a: {type: stdio}}", "command is required"},
		{"server type", "mcpServers: {a: {type: ws, url: x}}", "invalid type"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestResolve(t *testing.T) {
	t.Setenv(EnvConfigPath, "")
	cfg, err := Resolve("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	path := filepath.Join(t.TempDir(), "stackmap.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server: {addr: \":9999\"}\n"), 0o644))

	t.Setenv(EnvConfigPath, path)
	cfg, err = Resolve("")
	require.NoError(t, err)
	assert.Equal(t, ":9999", cfg.Server.Addr)

	_, err = Resolve(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorContains(t, err, "failed to read config file")
}

func TestParserConfig(t *testing.T) {
	cfg, err := Parse([]byte(`
parser:
  patterns:
    - name: hermes
      pattern: '^in (?P<name>\S+) \((?P<url>.+?):(?P<line>\d+):(?P<column>\d+)\)$'
`))
	require.NoError(t, err)

	p, err := cfg.Parser.Build()
	require.NoError(t, err)
	frame, ok := p.Parse("in render (bundle.js:3:4)")
	require.True(t, ok)
	assert.Equal(t, "bundle.js", frame.SourceFile)
	assert.Equal(t, uint32(3), frame.Line)
}

func TestClampRadius(t *testing.T) {
	c := ContextConfig{MaxRadius: 10}
	assert.Equal(t, uint32(4), c.ClampRadius(4))
	assert.Equal(t, uint32(10), c.ClampRadius(400))
	assert.Equal(t, uint32(400), ContextConfig{}.ClampRadius(400))
}

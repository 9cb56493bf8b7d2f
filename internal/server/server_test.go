package server

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yousuf/stackmap/internal/artifact"
	"github.com/yousuf/stackmap/internal/config"
	"github.com/yousuf/stackmap/internal/metrics"
	"github.com/yousuf/stackmap/internal/resolve"
)

const testDoc = `{"version":3,"sources":["src/app.ts"],"sourcesContent":["l0\nl1\nl2\n"],"names":[],"mappings":"AAAA;AACA;AACA"}`

func connect(t *testing.T, deps Deps) *mcp.ClientSession {
	t.Helper()
	ctx := context.Background()

	clientTransport, serverTransport := mcp.NewInMemoryTransports()
	ss, err := NewMcpServer(deps).Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { ss.Close() })

	client := mcp.NewClient(&mcp.Implementation{Name: "test", Version: "1.0.0"}, nil)
	cs, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { cs.Close() })
	return cs
}

func call(t *testing.T, cs *mcp.ClientSession, name string, args map[string]any) *mcp.CallToolResult {
	t.Helper()
	res, err := cs.CallTool(context.Background(), &mcp.CallToolParams{Name: name, Arguments: args})
	require.NoError(t, err)
	return res
}

func text(res *mcp.CallToolResult) string {
	var out string
	for _, c := range res.Content {
		if tc, ok := c.(*mcp.TextContent); ok {
			out += tc.Text
		}
	}
	return out
}

func structured(t *testing.T, res *mcp.CallToolResult, v any) {
	t.Helper()
	require.False(t, res.IsError, text(res))
	data, err := json.Marshal(res.StructuredContent)
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal(data, v))
}

type batchOut struct {
	Success []struct {
		Frame  int    `json:"frame"`
		Line   uint32 `json:"line"`
		Source string `json:"src"`
	} `json:"success"`
	Fail []struct {
		Frame  int    `json:"frame"`
		Reason string `json:"error_message"`
		Kind   string `json:"kind"`
	} `json:"fail"`
}

func TestListTools(t *testing.T) {
	cs := connect(t, Deps{})
	res, err := cs.ListTools(context.Background(), &mcp.ListToolsParams{})
	require.NoError(t, err)

	var names []string
	for _, tool := range res.Tools {
		names = append(names, tool.Name)
	}
	assert.ElementsMatch(t, []string{
		"parse_stack", "load_source_map", "lookup_position", "resolve_error_stack",
		"list_sources", "resolve_stack", "upload_source_map", "unload_source_map",
	}, names)
}

func TestParseStack(t *testing.T) {
	cs := connect(t, Deps{})
	res := call(t, cs, "parse_stack", map[string]any{
		"stack": "TypeError: boom\n    at render (https://cdn.example.com/app.js:10:5)\n    not a frame",
	})

	var out struct {
		Message string `json:"error_message"`
		Frames  []struct {
			Name       string `json:"name"`
			SourceFile string `json:"source_file"`
			Line       uint32 `json:"line"`
		} `json:"stacks"`
	}
	structured(t, res, &out)
	assert.Equal(t, "TypeError: boom", out.Message)
	require.Len(t, out.Frames, 1)
	assert.Equal(t, "render", out.Frames[0].Name)
	assert.Equal(t, "https://cdn.example.com/app.js", out.Frames[0].SourceFile)
	assert.Equal(t, uint32(10), out.Frames[0].Line)
}

func TestSessionMaps(t *testing.T) {
	cs := connect(t, Deps{})

	res := call(t, cs, "lookup_position", map[string]any{"map": "app", "line": 1, "column": 0})
	assert.True(t, res.IsError)
	assert.Contains(t, text(res), "Call load_source_map first")

	res = call(t, cs, "load_source_map", map[string]any{"name": "app", "content": testDoc})
	var loaded LoadResult
	structured(t, res, &loaded)
	assert.Equal(t, []string{"src/app.ts"}, loaded.Sources)
	assert.False(t, loaded.Replaced)

	res = call(t, cs, "load_source_map", map[string]any{"name": "app", "content": testDoc})
	structured(t, res, &loaded)
	assert.True(t, loaded.Replaced)

	res = call(t, cs, "lookup_position", map[string]any{"map": "app", "line": 2, "column": 0})
	assert.Equal(t, "    at src/app.ts:2:1", text(res))

	res = call(t, cs, "lookup_position", map[string]any{"map": "app", "line": 2, "column": 0, "radius": 1})
	assert.Equal(t, "    at src/app.ts:2:1\n      1 | l0\n    > 2 | l1\n      3 | l2", text(res))

	res = call(t, cs, "lookup_position", map[string]any{"map": "app", "line": 9, "column": 0})
	assert.True(t, res.IsError)
	assert.Contains(t, text(res), "does not map")

	res = call(t, cs, "lookup_position", map[string]any{"map": "vendor", "line": 1, "column": 0})
	assert.True(t, res.IsError)
	assert.Contains(t, text(res), "Loaded maps: [app]")

	res = call(t, cs, "resolve_error_stack", map[string]any{
		"map":   "app",
		"stack": "Error: x\n    at f (app.js:3:0)\n    at g (app.js:9:0)",
	})
	assert.Equal(t, "Error: x\n    at src/app.ts:3:1", text(res))

	res = call(t, cs, "list_sources", map[string]any{"map": "app", "include_content": true})
	var listed struct {
		Sources []SourceEntry `json:"sources"`
	}
	structured(t, res, &listed)
	assert.Equal(t, []SourceEntry{{Path: "src/app.ts", Content: "l0\nl1\nl2\n"}}, listed.Sources)
}

func TestLookupPositionInDocument(t *testing.T) {
	cs := connect(t, Deps{})

	res := call(t, cs, "lookup_position", map[string]any{"content": testDoc, "line": 2, "column": 0})
	assert.Equal(t, "    at src/app.ts:2:1\n    > 2 | l1", text(res))

	res = call(t, cs, "lookup_position", map[string]any{"content": testDoc, "line": 2, "column": 0, "radius": 1})
	assert.Equal(t, "    at src/app.ts:2:1\n      1 | l0\n    > 2 | l1\n      3 | l2", text(res))

	bare := `{"version":3,"sources":["a.js"],"names":[],"mappings":"AAAA"}`
	res = call(t, cs, "lookup_position", map[string]any{"content": bare, "line": 1, "column": 0, "radius": 3})
	var token struct {
		Source  string `json:"src"`
		Context []any  `json:"source_code"`
	}
	structured(t, res, &token)
	assert.Equal(t, "a.js", token.Source)
	assert.Empty(t, token.Context)
	assert.Equal(t, "    at a.js:1:1", text(res))

	res = call(t, cs, "lookup_position", map[string]any{"content": "{not json", "line": 1, "column": 0})
	assert.True(t, res.IsError)

	res = call(t, cs, "lookup_position", map[string]any{"line": 1, "column": 0})
	assert.True(t, res.IsError)
	assert.Contains(t, text(res), "either map or content is required")
}

func TestUnloadSourceMap(t *testing.T) {
	cs := connect(t, Deps{})

	call(t, cs, "load_source_map", map[string]any{"name": "app", "content": testDoc})
	call(t, cs, "load_source_map", map[string]any{"name": "vendor", "content": testDoc})

	res := call(t, cs, "unload_source_map", map[string]any{"name": "app"})
	var out struct {
		Loaded []string `json:"loaded"`
	}
	structured(t, res, &out)
	assert.Equal(t, []string{"vendor"}, out.Loaded)

	res = call(t, cs, "lookup_position", map[string]any{"map": "app", "line": 1, "column": 0})
	assert.True(t, res.IsError)
	assert.Contains(t, text(res), "Loaded maps: [vendor]")

	res = call(t, cs, "unload_source_map", map[string]any{"name": "app"})
	assert.True(t, res.IsError)
	assert.Contains(t, text(res), "source map not loaded")
}

func TestLoadSourceMapErrors(t *testing.T) {
	cs := connect(t, Deps{})

	res := call(t, cs, "load_source_map", map[string]any{"name": "app"})
	assert.True(t, res.IsError)
	assert.Contains(t, text(res), "either content or path")

	res = call(t, cs, "load_source_map", map[string]any{"name": "app", "path": "app.js.map"})
	assert.True(t, res.IsError)
	assert.Contains(t, text(res), "no resolver is configured")

	res = call(t, cs, "load_source_map", map[string]any{"name": "app", "content": "{not json"})
	assert.True(t, res.IsError)
}

func TestLoadSourceMapByPath(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "app.js.map"), []byte(testDoc), 0o644))

	cs := connect(t, Deps{Resolver: resolve.WithSuffix(&resolve.DirResolver{Root: root}, ".map")})
	res := call(t, cs, "load_source_map", map[string]any{"name": "app", "path": "https://cdn.example.com/app.js"})
	var loaded LoadResult
	structured(t, res, &loaded)
	assert.Equal(t, []string{"src/app.ts"}, loaded.Sources)
}

func TestResolveErrorStackClampsRadius(t *testing.T) {
	cfg := config.Default()
	cfg.Context.MaxRadius = 1

	cs := connect(t, Deps{Config: cfg})
	call(t, cs, "load_source_map", map[string]any{"name": "app", "content": testDoc})

	res := call(t, cs, "resolve_error_stack", map[string]any{
		"map":    "app",
		"stack":  "Error: x\n    at f (app.js:1:0)",
		"radius": 100,
	})
	var out struct {
		Frames []struct {
			Context []struct {
				Line uint32 `json:"line"`
			} `json:"source_code"`
		} `json:"frames_with_context"`
	}
	structured(t, res, &out)
	require.Len(t, out.Frames, 1)
	assert.Len(t, out.Frames[0].Context, 2)
}

func TestResolveStack(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "app.js.map"), []byte(testDoc), 0o644))

	reg := prometheus.NewRegistry()
	cs := connect(t, Deps{
		Resolver: resolve.WithSuffix(&resolve.DirResolver{Root: root}, ".map"),
		Metrics:  metrics.New(reg),
	})

	stack := "Error: x\n    at a (https://cdn.example.com/app.js:2:0)\n    at b (https://cdn.example.com/missing.js:1:0)\n    at c (https://cdn.example.com/app.js:9:0)"
	res := call(t, cs, "resolve_stack", map[string]any{"stack": stack})

	var out batchOut
	structured(t, res, &out)
	require.Len(t, out.Success, 1)
	assert.Equal(t, 0, out.Success[0].Frame)
	assert.Equal(t, uint32(1), out.Success[0].Line)
	require.Len(t, out.Fail, 1)
	assert.Equal(t, 1, out.Fail[0].Frame)
	assert.Equal(t, "resolver_failure", out.Fail[0].Kind)
	assert.Contains(t, text(res), "at a (src/app.ts:2:1) ✓ mapped")

	res = call(t, cs, "resolve_stack", map[string]any{"stack": stack, "strict": true})
	structured(t, res, &out)
	require.Len(t, out.Fail, 2)
	assert.Equal(t, "lookup_miss", out.Fail[1].Kind)

	count, err := testutil.GatherAndCount(reg, "stackmap_frames_parsed_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestResolveStackWithoutResolver(t *testing.T) {
	cs := connect(t, Deps{})
	res := call(t, cs, "resolve_stack", map[string]any{"stack": "Error\n    at a (app.js:1:0)"})

	var out batchOut
	structured(t, res, &out)
	require.Len(t, out.Fail, 1)
	assert.Equal(t, "missing_resolver", out.Fail[0].Kind)
	assert.Equal(t, "no resolver provided", out.Fail[0].Reason)
	assert.Contains(t, text(res), "✗ unmapped")
}

func TestUploadSourceMap(t *testing.T) {
	cs := connect(t, Deps{})
	res := call(t, cs, "upload_source_map", map[string]any{"path": "app.js.map", "content": testDoc})
	assert.True(t, res.IsError)
	assert.Contains(t, text(res), "artifact store is not configured")

	store, err := artifact.Open(filepath.Join(t.TempDir(), "artifacts.db"))
	require.NoError(t, err)
	defer store.Close()

	cs = connect(t, Deps{Store: store})
	res = call(t, cs, "upload_source_map", map[string]any{"path": "app.js.map", "content": testDoc})
	var out UploadResult
	structured(t, res, &out)
	assert.Equal(t, "app.js.map", out.Path)
	assert.Equal(t, int64(len(testDoc)), out.Size)
	assert.Len(t, out.SHA256, 64)

	res = call(t, cs, "upload_source_map", map[string]any{"path": "bad.js.map", "content": "nope"})
	assert.True(t, res.IsError)

	_, err = store.Get(context.Background(), "bad.js.map")
	assert.ErrorIs(t, err, artifact.ErrNotFound)
}

func TestUploadSourceMapPurgesCache(t *testing.T) {
	store, err := artifact.Open(filepath.Join(t.TempDir(), "artifacts.db"))
	require.NoError(t, err)
	defer store.Close()

	stale := `{"version":3,"sources":["src/old.ts"],"sourcesContent":["o0\n"],"names":[],"mappings":"AAAA"}`
	_, err = store.Put(context.Background(), "app.js.map", stale)
	require.NoError(t, err)

	cached, err := resolve.NewCached(resolve.WithSuffix(&resolve.StoreResolver{Store: store}, ".map"), 8)
	require.NoError(t, err)
	cs := connect(t, Deps{Store: store, Resolver: cached})

	stack := "Error: x\n    at f (app.js:1:0)"
	var out batchOut
	structured(t, call(t, cs, "resolve_stack", map[string]any{"stack": stack}), &out)
	require.Len(t, out.Success, 1)
	assert.Equal(t, "src/old.ts", out.Success[0].Source)
	assert.Equal(t, 1, cached.Len())

	call(t, cs, "upload_source_map", map[string]any{"path": "app.js.map", "content": testDoc})
	assert.Equal(t, 0, cached.Len())

	structured(t, call(t, cs, "resolve_stack", map[string]any{"stack": stack}), &out)
	require.Len(t, out.Success, 1)
	assert.Equal(t, "src/app.ts", out.Success[0].Source)
}

func TestConfiguredFramePatterns(t *testing.T) {
	cfg := config.Default()
	cfg.Parser.Patterns = []config.FramePattern{{
		Name:    "hermes",
		Pattern: `^in (?P<name>\S+) \((?P<url>.+?):(?P<line>\d+):(?P<column>\d+)\)$`,
	}}
	cs := connect(t, Deps{
		Config: cfg,
		Resolver: resolve.ResolverFunc(func(ctx context.Context, path string) (string, error) {
			return testDoc, nil
		}),
	})
	stack := "Error: x\n    in render (bundle.js:2:0)"

	var parsed struct {
		Frames []struct {
			SourceFile string `json:"source_file"`
		} `json:"stacks"`
	}
	structured(t, call(t, cs, "parse_stack", map[string]any{"stack": stack}), &parsed)
	require.Len(t, parsed.Frames, 1)
	assert.Equal(t, "bundle.js", parsed.Frames[0].SourceFile)

	var out batchOut
	structured(t, call(t, cs, "resolve_stack", map[string]any{"stack": stack}), &out)
	require.Len(t, out.Success, 1)
	assert.Equal(t, uint32(1), out.Success[0].Line)

	call(t, cs, "load_source_map", map[string]any{"name": "app", "content": testDoc})
	res := call(t, cs, "resolve_error_stack", map[string]any{"map": "app", "stack": stack})
	assert.Equal(t, "Error: x\n    at src/app.ts:2:1", text(res))
}

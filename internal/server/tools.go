package server

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/yousuf/stackmap/internal/resolve"
	"github.com/yousuf/stackmap/internal/session"
	"github.com/yousuf/stackmap/internal/sourcemap"
)

// ParseStackArgs represents the arguments for the parse_stack tool
type ParseStackArgs struct {
	Stack string `json:"stack" jsonschema:"Raw error stack: message line followed by frame lines"`
}

// LoadSourceMapArgs represents the arguments for the load_source_map tool
type LoadSourceMapArgs struct {
	Name    string `json:"name" jsonschema:"Name the source map is bound to in this session"`
	Content string `json:"content,omitempty" jsonschema:"Source map JSON document"`
	Path    string `json:"path,omitempty" jsonschema:"Path or URL fetched through the configured resolver when content is empty"`
}

// LookupPositionArgs represents the arguments for the lookup_position tool
type LookupPositionArgs struct {
	Map     string  `json:"map,omitempty" jsonschema:"Name of a loaded source map"`
	Content string  `json:"content,omitempty" jsonschema:"Source map JSON document to look up in directly instead of a loaded map"`
	Line    uint32  `json:"line" jsonschema:"Generated line, 1-based"`
	Column  uint32  `json:"column" jsonschema:"Generated column, 0-based"`
	Radius  *uint32 `json:"radius,omitempty" jsonschema:"Lines of original source to include on each side"`
}

// UnloadSourceMapArgs represents the arguments for the unload_source_map tool
type UnloadSourceMapArgs struct {
	Name string `json:"name" jsonschema:"Name of a loaded source map"`
}

// ResolveErrorStackArgs represents the arguments for the resolve_error_stack tool
type ResolveErrorStackArgs struct {
	Map    string  `json:"map" jsonschema:"Name of a loaded source map"`
	Stack  string  `json:"stack" jsonschema:"Raw error stack: message line followed by frame lines"`
	Radius *uint32 `json:"radius,omitempty" jsonschema:"Lines of original source to include on each side"`
}

// ListSourcesArgs represents the arguments for the list_sources tool
type ListSourcesArgs struct {
	Map            string `json:"map" jsonschema:"Name of a loaded source map"`
	IncludeContent bool   `json:"include_content,omitempty" jsonschema:"Include the full text of every source (default: false)"`
}

// ResolveStackArgs represents the arguments for the resolve_stack tool
type ResolveStackArgs struct {
	Stack  string  `json:"stack" jsonschema:"Raw error stack: message line followed by frame lines"`
	Radius *uint32 `json:"radius,omitempty" jsonschema:"Lines of original source to include on each side (default from config)"`
	Strict bool    `json:"strict,omitempty" jsonschema:"Report frames that do not map as failures instead of dropping them"`
}

// UploadSourceMapArgs represents the arguments for the upload_source_map tool
type UploadSourceMapArgs struct {
	Path    string `json:"path" jsonschema:"Path the document is stored under, as the resolver will ask for it"`
	Content string `json:"content" jsonschema:"Source map JSON document"`
}

// LoadResult is returned by load_source_map
type LoadResult struct {
	Name     string   `json:"name"`
	Sources  []string `json:"sources"`
	Replaced bool     `json:"replaced"`
}

// SourceEntry is one source of a loaded map
type SourceEntry struct {
	Path    string `json:"path"`
	Content string `json:"content,omitempty"`
}

// UploadResult is returned by upload_source_map
type UploadResult struct {
	Path   string `json:"path"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
}

type tools struct {
	deps      Deps
	parser    *sourcemap.Parser
	formatter *sourcemap.Formatter
}

func (t *tools) register(server *mcp.Server) {
	mcp.AddTool(server, &mcp.Tool{
		Name:        "parse_stack",
		Description: "Split a raw error stack into its message and parsed frames. Lines that are not stack frames are skipped.",
	}, t.parseStack)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "load_source_map",
		Description: "Decode a source map and bind it to a name in this session. Pass the document as content, or a path to fetch it through the configured resolver.",
	}, t.loadSourceMap)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "lookup_position",
		Description: "Map a generated position to its original position in a loaded source map, or in a document passed as content, optionally with surrounding source lines.",
	}, t.lookupPosition)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "unload_source_map",
		Description: "Remove a source map bound in this session.",
	}, t.unloadSourceMap)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "resolve_error_stack",
		Description: "Map every frame of an error stack through a loaded source map. Frames that do not map are dropped.",
	}, t.resolveErrorStack)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_sources",
		Description: "List the original sources of a loaded source map.",
	}, t.listSources)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "resolve_stack",
		Description: "Resolve an error stack frame by frame, fetching each frame's source map through the configured resolver. Returns successes and per-frame failures.",
	}, t.resolveStack)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "upload_source_map",
		Description: "Store a source map in the artifact store under a path.",
	}, t.uploadSourceMap)
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			&mcp.TextContent{Text: text},
		},
	}
}

func (t *tools) parseStack(ctx context.Context, req *mcp.CallToolRequest, args ParseStackArgs) (*mcp.CallToolResult, any, error) {
	return nil, t.parser.SplitErrorStack(args.Stack), nil
}

func (t *tools) loadSourceMap(ctx context.Context, req *mcp.CallToolRequest, args LoadSourceMapArgs) (*mcp.CallToolResult, any, error) {
	sessionCtx, err := getSessionFromContext(ctx)
	if err != nil {
		return nil, nil, err
	}
	if args.Name == "" {
		return nil, nil, errors.New("name is required")
	}

	doc := args.Content
	if doc == "" {
		if args.Path == "" {
			return nil, nil, errors.New("either content or path is required")
		}
		if t.deps.Resolver == nil {
			return nil, nil, errors.New("no resolver is configured; pass the document as content")
		}
		if doc, err = t.deps.Resolver.Resolve(ctx, args.Path); err != nil {
			return nil, nil, fmt.Errorf("failed to fetch %q: %w", args.Path, err)
		}
	}

	mapper, err := sourcemap.NewMapper([]byte(doc),
		sourcemap.WithContextPolicy(t.deps.Config.Context.ContextPolicy()),
		sourcemap.WithMapperLogger(t.deps.Logger),
		sourcemap.WithParser(t.parser))
	if err != nil {
		return nil, nil, err
	}

	replaced := sessionCtx.Bind(args.Name, mapper)
	t.deps.Logger.Info("source map loaded",
		zap.String("session", sessionCtx.SessionID),
		zap.String("name", args.Name),
		zap.Bool("replaced", replaced))

	sources := mapper.Sources()
	result := LoadResult{
		Name:     args.Name,
		Sources:  make([]string, 0, len(sources)),
		Replaced: replaced,
	}
	for path := range sources {
		result.Sources = append(result.Sources, path)
	}
	sort.Strings(result.Sources)

	return nil, result, nil
}

func (t *tools) lookupPosition(ctx context.Context, req *mcp.CallToolRequest, args LookupPositionArgs) (*mcp.CallToolResult, any, error) {
	if args.Content != "" {
		return t.lookupInDocument(args)
	}
	if args.Map == "" {
		return nil, nil, errors.New("either map or content is required")
	}

	mapper, err := t.mapper(ctx, args.Map)
	if err != nil {
		return nil, nil, err
	}

	if args.Radius == nil {
		pos, ok := mapper.LookupPosition(args.Line, args.Column)
		if !ok {
			return nil, nil, fmt.Errorf("position %d:%d does not map", args.Line, args.Column)
		}
		return textResult(t.formatter.FormatPosition("", pos)), pos, nil
	}

	radius := t.deps.Config.Context.ClampRadius(*args.Radius)
	token, ok := mapper.LookupPositionWithContext(args.Line, args.Column, radius)
	if !ok {
		return nil, nil, fmt.Errorf("position %d:%d does not map to a source with content", args.Line, args.Column)
	}
	header := t.formatter.FormatPosition("", sourcemap.OriginalPosition{
		Line:   token.Line,
		Column: token.Column,
		Source: &token.Source,
	})
	return textResult(header + "\n" + t.formatter.FormatToken(token)), token, nil
}

// lookupInDocument decodes the document for this call only. Without a radius
// just the target line is attached.
func (t *tools) lookupInDocument(args LookupPositionArgs) (*mcp.CallToolResult, any, error) {
	var radius *uint32
	if args.Radius != nil {
		r := t.deps.Config.Context.ClampRadius(*args.Radius)
		radius = &r
	}

	token, ok, err := sourcemap.ResolveDocument([]byte(args.Content), args.Line, args.Column, radius)
	if err != nil {
		return nil, nil, err
	}
	if !ok {
		return nil, nil, fmt.Errorf("position %d:%d does not map", args.Line, args.Column)
	}

	text := t.formatter.FormatPosition("", sourcemap.OriginalPosition{
		Line:   token.Line,
		Column: token.Column,
		Source: &token.Source,
	})
	if len(token.Context) > 0 {
		text += "\n" + t.formatter.FormatToken(token)
	}
	return textResult(text), token, nil
}

func (t *tools) unloadSourceMap(ctx context.Context, req *mcp.CallToolRequest, args UnloadSourceMapArgs) (*mcp.CallToolResult, any, error) {
	sessionCtx, err := getSessionFromContext(ctx)
	if err != nil {
		return nil, nil, err
	}
	if !sessionCtx.Unbind(args.Name) {
		return nil, nil, fmt.Errorf("%w: %q", session.ErrMapperNotFound, args.Name)
	}
	t.deps.Logger.Info("source map unloaded",
		zap.String("session", sessionCtx.SessionID),
		zap.String("name", args.Name))

	return nil, map[string]any{"name": args.Name, "loaded": sessionCtx.Names()}, nil
}

func (t *tools) resolveErrorStack(ctx context.Context, req *mcp.CallToolRequest, args ResolveErrorStackArgs) (*mcp.CallToolResult, any, error) {
	mapper, err := t.mapper(ctx, args.Map)
	if err != nil {
		return nil, nil, err
	}

	var radius *uint32
	if args.Radius != nil {
		r := t.deps.Config.Context.ClampRadius(*args.Radius)
		radius = &r
	}

	stack := mapper.ResolveErrorStack(args.Stack, radius)
	parsed := len(t.parser.SplitErrorStack(args.Stack).Frames)
	t.deps.Metrics.ObserveMapped(parsed, len(stack.Basic)+len(stack.WithContext))

	return textResult(t.formatter.FormatErrorStack(stack)), stack, nil
}

func (t *tools) listSources(ctx context.Context, req *mcp.CallToolRequest, args ListSourcesArgs) (*mcp.CallToolResult, any, error) {
	mapper, err := t.mapper(ctx, args.Map)
	if err != nil {
		return nil, nil, err
	}

	sources := mapper.Sources()
	entries := make([]SourceEntry, 0, len(sources))
	for path, content := range sources {
		entry := SourceEntry{Path: path}
		if args.IncludeContent {
			entry.Content = content
		}
		entries = append(entries, entry)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

	return nil, map[string]any{"sources": entries}, nil
}

func (t *tools) resolveStack(ctx context.Context, req *mcp.CallToolRequest, args ResolveStackArgs) (*mcp.CallToolResult, any, error) {
	cfg := t.deps.Config.Context
	radius := cfg.Radius
	if args.Radius != nil {
		radius = cfg.ClampRadius(*args.Radius)
	}

	logger := t.deps.Logger.With(zap.String("request_id", requestIDFromContext(ctx)))
	caps := resolve.Capabilities(ctx, resolve.Options{
		Resolver:  t.deps.Resolver,
		Formatter: t.deps.Formatter,
		Logger:    logger,
	})

	opts := []sourcemap.BatchOption{
		sourcemap.WithBatchRadius(radius),
		sourcemap.WithBatchLogger(logger),
		sourcemap.WithBatchParser(t.parser),
	}
	if args.Strict {
		opts = append(opts, sourcemap.WithStrictAccounting())
	}

	start := time.Now()
	result := sourcemap.ResolveBatch(args.Stack, caps, opts...)
	t.deps.Metrics.ObserveBatch(result, time.Since(start))

	f := *t.formatter
	f.Metadata = true
	return textResult(f.FormatBatch(result)), result, nil
}

func (t *tools) uploadSourceMap(ctx context.Context, req *mcp.CallToolRequest, args UploadSourceMapArgs) (*mcp.CallToolResult, any, error) {
	if t.deps.Store == nil {
		return nil, nil, errors.New("artifact store is not configured")
	}
	if args.Path == "" {
		return nil, nil, errors.New("path is required")
	}
	if _, err := sourcemap.Decode([]byte(args.Content)); err != nil {
		return nil, nil, err
	}

	a, err := t.deps.Store.Put(ctx, args.Path, args.Content)
	if err != nil {
		return nil, nil, err
	}
	t.deps.Logger.Info("source map uploaded", zap.String("path", a.Path), zap.Int64("size", a.Size))

	// a cached copy of the previous document would shadow the upload
	if cached, ok := t.deps.Resolver.(*resolve.Cached); ok {
		cached.Purge()
	}

	return nil, UploadResult{Path: a.Path, Size: a.Size, SHA256: a.SHA256}, nil
}

func (t *tools) mapper(ctx context.Context, name string) (*sourcemap.Mapper, error) {
	sessionCtx, err := getSessionFromContext(ctx)
	if err != nil {
		return nil, err
	}
	mapper, err := sessionCtx.Mapper(name)
	if err != nil {
		if names := sessionCtx.Names(); len(names) > 0 {
			return nil, fmt.Errorf("%w. Loaded maps: %v", err, names)
		}
		return nil, fmt.Errorf("%w. Call load_source_map first", err)
	}
	return mapper, nil
}

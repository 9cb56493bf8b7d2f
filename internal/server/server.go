package server

import (
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"go.uber.org/zap"

	"github.com/yousuf/stackmap/internal/artifact"
	"github.com/yousuf/stackmap/internal/config"
	"github.com/yousuf/stackmap/internal/metrics"
	"github.com/yousuf/stackmap/internal/resolve"
	"github.com/yousuf/stackmap/internal/session"
	"github.com/yousuf/stackmap/internal/sourcemap"
)

// Version is reported to clients during initialization
const Version = "1.0.0"

// Deps are the collaborators shared by every MCP session. Resolver,
// Formatter, Store and Metrics may be nil.
type Deps struct {
	Config    *config.Config
	Sessions  *session.Manager
	Resolver  resolve.Resolver
	Formatter resolve.Formatter
	Store     *artifact.Store
	Metrics   *metrics.Metrics
	Logger    *zap.Logger
}

// NewMcpServer creates and configures the MCP server
func NewMcpServer(deps Deps) *mcp.Server {
	if deps.Config == nil {
		deps.Config = config.Default()
	}
	if deps.Sessions == nil {
		deps.Sessions = session.NewManager(deps.Logger)
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "stackmap",
		Version: Version,
	}, &mcp.ServerOptions{
		Instructions: `
JavaScript stack trace symbolication with source maps

Stackmap maps minified JavaScript stack frames back to the original source
using source map (v3) documents.

Two ways to work:

1. Session maps. Load a document once, then query it by name:
    load_source_map({ name: "app", content: "<source map json>" })
    resolve_error_stack({ map: "app", stack: "TypeError: ...\n    at f (app.min.js:1:2041)", radius: 3 })
    lookup_position({ map: "app", line: 1, column: 2041 })
    list_sources({ map: "app" })
    unload_source_map({ name: "app" })

2. Configured resolver. resolve_stack fetches the document of every frame
   through the server's resolver (directory, HTTP, artifact store, MCP or
   plugin) and reports per-frame successes and failures:
    resolve_stack({ stack: "...", radius: 5 })

Notes:
- Generated lines are 1-based as printed by the runtime; columns are 0-based.
- Original lines and columns in structured results are 0-based; formatted
  text shows them 1-based.
- parse_stack only parses and never needs a source map.
- lookup_position also accepts a document as content for a one-off lookup
  without loading it.
- upload_source_map stores a document in the artifact store, where the
  store resolver can find it.
`,
	})

	server.AddReceivingMiddleware(createSessionInjectionMiddleware(deps.Sessions))
	server.AddReceivingMiddleware(createLoggingMiddleware(deps.Logger))

	parser, err := deps.Config.Parser.Build()
	if err != nil {
		deps.Logger.Warn("invalid frame patterns, using the built-in ones", zap.Error(err))
		parser = sourcemap.NewParser()
	}

	t := &tools{deps: deps, parser: parser, formatter: sourcemap.NewFormatter()}
	t.register(server)

	return server
}

// Package resolve provides the capabilities the batch pipeline calls to turn
// frame paths into mapping documents: resolvers that fetch documents from a
// directory, HTTP, the artifact store, an MCP server or a WASM plugin, and
// formatters that rewrite paths before they are resolved.
package resolve

import (
	"context"
	"errors"
	"strings"
)

// ErrNotFound is returned when no document exists for a path
var ErrNotFound = errors.New("mapping document not found")

// Resolver fetches the mapping document for a path
type Resolver interface {
	Resolve(ctx context.Context, path string) (string, error)
}

// ResolverFunc adapts a function to the Resolver interface
type ResolverFunc func(ctx context.Context, path string) (string, error)

func (f ResolverFunc) Resolve(ctx context.Context, path string) (string, error) {
	return f(ctx, path)
}

// Formatter rewrites a frame path into the path handed to a Resolver
type Formatter interface {
	Format(ctx context.Context, path string) (string, error)
}

// FormatterFunc adapts a function to the Formatter interface
type FormatterFunc func(ctx context.Context, path string) (string, error)

func (f FormatterFunc) Format(ctx context.Context, path string) (string, error) {
	return f(ctx, path)
}

// Chain applies formatters in order, feeding each the previous output.
// Nil entries are skipped; with no formatters left it returns nil.
func Chain(formatters ...Formatter) Formatter {
	var steps []Formatter
	for _, f := range formatters {
		if f != nil {
			steps = append(steps, f)
		}
	}
	switch len(steps) {
	case 0:
		return nil
	case 1:
		return steps[0]
	}
	return FormatterFunc(func(ctx context.Context, path string) (string, error) {
		var err error
		for _, f := range steps {
			if path, err = f.Format(ctx, path); err != nil {
				return "", err
			}
		}
		return path, nil
	})
}

// WithSuffix appends ext to every path that does not already end with it
func WithSuffix(next Resolver, ext string) Resolver {
	if ext == "" {
		return next
	}
	return ResolverFunc(func(ctx context.Context, path string) (string, error) {
		if !strings.HasSuffix(path, ext) {
			path += ext
		}
		return next.Resolve(ctx, path)
	})
}

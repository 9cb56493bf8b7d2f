package resolve

import (
	"context"

	"go.uber.org/zap"

	"github.com/yousuf/stackmap/internal/sourcemap"
)

// Options selects the resolver and formatter bound into a batch
type Options struct {
	Resolver  Resolver
	Formatter Formatter
	Logger    *zap.Logger
	// OnError is called after the failure has been logged
	OnError func(raw, message string)
}

// Capabilities binds opts to ctx as the hooks of sourcemap.ResolveBatch.
// A nil Resolver leaves the hook unset so every frame fails with the
// missing resolver reason.
func Capabilities(ctx context.Context, opts Options) sourcemap.Capabilities {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	var caps sourcemap.Capabilities
	if opts.Formatter != nil {
		caps.Formatter = func(path string) (string, error) {
			return opts.Formatter.Format(ctx, path)
		}
	}
	if opts.Resolver != nil {
		caps.Resolver = func(path string) (string, error) {
			return opts.Resolver.Resolve(ctx, path)
		}
	}
	caps.OnError = func(raw, message string) {
		logger.Warn("frame not resolved", zap.String("frame", raw), zap.String("reason", message))
		if opts.OnError != nil {
			opts.OnError(raw, message)
		}
	}
	return caps
}

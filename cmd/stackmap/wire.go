package main

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/yousuf/stackmap/internal/artifact"
	"github.com/yousuf/stackmap/internal/client"
	"github.com/yousuf/stackmap/internal/config"
	"github.com/yousuf/stackmap/internal/plugin"
	"github.com/yousuf/stackmap/internal/resolve"
)

// runtime holds the long-lived collaborators built from the config
type runtime struct {
	store     *artifact.Store
	box       *client.ClientBox
	plugin    *plugin.Plugin
	resolver  resolve.Resolver
	formatter resolve.Formatter
}

// newRuntime opens the artifact store, connects the downstream MCP servers
// and loads the plugin as configured, then builds the resolver and formatter
// on top of them
func newRuntime(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*runtime, error) {
	rt := &runtime{}

	if cfg.Store.Path != "" {
		store, err := artifact.Open(cfg.Store.Path)
		if err != nil {
			return nil, err
		}
		rt.store = store
	}

	if len(cfg.McpServers) > 0 {
		rt.box = client.NewClientBox()
		if err := rt.box.Connect(ctx, cfg.McpServers); err != nil {
			rt.Close()
			return nil, err
		}
		logger.Info("connected MCP servers", zap.Strings("servers", rt.box.Servers()))
	}

	if cfg.Plugin.Path != "" {
		p, err := plugin.Load(ctx, cfg.Plugin.Path, rt.hostResolve(cfg), logger)
		if err != nil {
			rt.Close()
			return nil, err
		}
		rt.plugin = p
		logger.Info("loaded plugin",
			zap.String("path", cfg.Plugin.Path),
			zap.Bool("format_path", p.Exports(plugin.ExportFormatPath)),
			zap.Bool("resolve_map", p.Exports(plugin.ExportResolveMap)))
	}

	deps := resolve.Deps{Store: rt.store, Box: rt.box, Plugin: rt.plugin}

	var err error
	if rt.resolver, err = resolve.FromConfig(cfg, deps); err != nil {
		rt.Close()
		return nil, err
	}
	if rt.formatter, err = resolve.FormatterFromConfig(cfg, deps); err != nil {
		rt.Close()
		return nil, err
	}
	return rt, nil
}

// hostResolve backs the plugin's stackmap_resolve host function with the
// configured resolver. A plugin that is itself the resolver gets none.
func (rt *runtime) hostResolve(cfg *config.Config) plugin.HostResolver {
	if cfg.Resolver.Kind == "plugin" {
		return nil
	}
	return func(ctx context.Context, path string) (string, error) {
		if rt.resolver == nil {
			return "", errors.New("no resolver is configured")
		}
		return rt.resolver.Resolve(ctx, path)
	}
}

func (rt *runtime) Close() error {
	var errs []error
	if rt.plugin != nil {
		rt.plugin.Close()
	}
	if rt.box != nil {
		if err := rt.box.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if rt.store != nil {
		if err := rt.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close artifact store: %w", err))
		}
	}
	return errors.Join(errs...)
}

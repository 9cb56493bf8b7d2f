package main

import (
	"github.com/spf13/cobra"

	"github.com/yousuf/stackmap/internal/resolve"
	"github.com/yousuf/stackmap/internal/sourcemap"
)

func newResolveCmd(a *app) *cobra.Command {
	var (
		radius   uint32
		strict   bool
		metadata bool
	)

	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Resolve an error stack from stdin through the configured resolver",
		Long: `Resolve reads an error stack from stdin and resolves every frame, fetching
the source map of each frame's file through the resolver configured in the
config file (resolver.kind). Frames that cannot be resolved are reported
with the reason.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readInput(cmd)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			rt, err := newRuntime(ctx, a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer rt.Close()

			r := a.cfg.Context.Radius
			if cmd.Flags().Changed("radius") {
				r = a.cfg.Context.ClampRadius(radius)
			}

			caps := resolve.Capabilities(ctx, resolve.Options{
				Resolver:  rt.resolver,
				Formatter: rt.formatter,
				Logger:    a.logger,
			})
			opts := []sourcemap.BatchOption{
				sourcemap.WithBatchRadius(r),
				sourcemap.WithBatchLogger(a.logger),
				sourcemap.WithBatchParser(a.parser),
			}
			if strict {
				opts = append(opts, sourcemap.WithStrictAccounting())
			}

			result := sourcemap.ResolveBatch(input, caps, opts...)
			return a.emit(cmd, result, func() string {
				f := sourcemap.NewFormatter()
				f.Metadata = metadata
				return f.FormatBatch(result)
			})
		},
	}

	cmd.Flags().Uint32VarP(&radius, "radius", "r", 0, "Lines of original source around each frame (default from config)")
	cmd.Flags().BoolVar(&strict, "strict", false, "Report frames that do not map as failures instead of dropping them")
	cmd.Flags().BoolVar(&metadata, "metadata", false, "Mark every frame as mapped or unmapped")
	return cmd
}

package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/yousuf/stackmap/internal/sourcemap"
)

// mapFlags are shared by the commands that work against one source map file
type mapFlags struct {
	mapPath string
	radius  uint32
}

func (f *mapFlags) register(cmd *cobra.Command, withRadius bool) {
	cmd.Flags().StringVarP(&f.mapPath, "map", "m", "", "Source map file")
	_ = cmd.MarkFlagRequired("map")
	if withRadius {
		cmd.Flags().Uint32VarP(&f.radius, "radius", "r", 0, "Lines of original source to show around each position")
	}
}

// radiusArg returns the clamped radius, or nil when --radius was not given
func (f *mapFlags) radiusArg(cmd *cobra.Command, a *app) *uint32 {
	if !cmd.Flags().Changed("radius") {
		return nil
	}
	r := a.cfg.Context.ClampRadius(f.radius)
	return &r
}

func (f *mapFlags) mapper(a *app) (*sourcemap.Mapper, error) {
	data, err := os.ReadFile(f.mapPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read source map: %w", err)
	}
	return sourcemap.NewMapper(data,
		sourcemap.WithContextPolicy(a.cfg.Context.ContextPolicy()),
		sourcemap.WithMapperLogger(a.logger),
		sourcemap.WithParser(a.parser))
}

func newParseCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "parse",
		Short: "Parse an error stack from stdin into its message and frames",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readInput(cmd)
			if err != nil {
				return err
			}
			stack := a.parser.SplitErrorStack(input)

			return a.emit(cmd, stack, func() string {
				lines := []string{stack.Message}
				for _, f := range stack.Frames {
					name := f.Name
					if name == "" {
						name = "<anonymous>"
					}
					lines = append(lines, fmt.Sprintf("%s\t%s:%d:%d", name, f.SourceFile, f.Line, f.Column))
				}
				return strings.Join(lines, "\n")
			})
		},
	}
}

func newLookupCmd(a *app) *cobra.Command {
	var flags mapFlags
	cmd := &cobra.Command{
		Use:   "lookup LINE COLUMN",
		Short: "Map a generated position (1-based line, 0-based column) to its original position",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			line, err := strconv.ParseUint(args[0], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid line %q: %w", args[0], err)
			}
			column, err := strconv.ParseUint(args[1], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid column %q: %w", args[1], err)
			}

			mapper, err := flags.mapper(a)
			if err != nil {
				return err
			}
			formatter := sourcemap.NewFormatter()

			radius := flags.radiusArg(cmd, a)
			if radius == nil {
				pos, ok := mapper.LookupPosition(uint32(line), uint32(column))
				if !ok {
					return fmt.Errorf("position %d:%d does not map", line, column)
				}
				return a.emit(cmd, pos, func() string { return formatter.FormatPosition("", pos) })
			}

			token, ok := mapper.LookupPositionWithContext(uint32(line), uint32(column), *radius)
			if !ok {
				return fmt.Errorf("position %d:%d does not map to a source with content", line, column)
			}
			return a.emit(cmd, token, func() string {
				header := formatter.FormatPosition("", sourcemap.OriginalPosition{
					Line:   token.Line,
					Column: token.Column,
					Source: &token.Source,
				})
				return header + "\n" + formatter.FormatToken(token)
			})
		},
	}
	flags.register(cmd, true)
	return cmd
}

func newTraceCmd(a *app) *cobra.Command {
	var flags mapFlags
	cmd := &cobra.Command{
		Use:   "trace",
		Short: "Map every frame of an error stack from stdin through one source map",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readInput(cmd)
			if err != nil {
				return err
			}
			mapper, err := flags.mapper(a)
			if err != nil {
				return err
			}

			stack := mapper.ResolveErrorStack(input, flags.radiusArg(cmd, a))
			return a.emit(cmd, stack, func() string {
				return sourcemap.NewFormatter().FormatErrorStack(stack)
			})
		},
	}
	flags.register(cmd, true)
	return cmd
}

type sourceEntry struct {
	Path    string `json:"path"`
	Content string `json:"content,omitempty"`
}

func newSourcesCmd(a *app) *cobra.Command {
	var flags mapFlags
	var withContent bool
	cmd := &cobra.Command{
		Use:   "sources",
		Short: "List the original sources of a source map",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			mapper, err := flags.mapper(a)
			if err != nil {
				return err
			}

			sources := mapper.Sources()
			entries := make([]sourceEntry, 0, len(sources))
			for path, content := range sources {
				entry := sourceEntry{Path: path}
				if withContent {
					entry.Content = content
				}
				entries = append(entries, entry)
			}
			sort.Slice(entries, func(i, j int) bool { return entries[i].Path < entries[j].Path })

			return a.emit(cmd, entries, func() string {
				var sb strings.Builder
				for i, e := range entries {
					if i > 0 {
						sb.WriteByte('\n')
					}
					sb.WriteString(e.Path)
					if withContent {
						fmt.Fprintf(&sb, "\n%s", e.Content)
					}
				}
				return sb.String()
			})
		},
	}
	flags.register(cmd, false)
	cmd.Flags().BoolVar(&withContent, "content", false, "Print the full text of every source")
	return cmd
}

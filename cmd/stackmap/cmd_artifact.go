package main

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/yousuf/stackmap/internal/artifact"
	"github.com/yousuf/stackmap/internal/sourcemap"
)

func newArtifactCmd(a *app) *cobra.Command {
	var dbPath string

	open := func() (*artifact.Store, error) {
		path := dbPath
		if path == "" {
			path = a.cfg.Store.Path
		}
		if path == "" {
			return nil, fmt.Errorf("no artifact store configured (set store.path or pass --db)")
		}
		return artifact.Open(path)
	}

	cmd := &cobra.Command{
		Use:   "artifact",
		Short: "Manage source maps in the artifact store",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "", "Artifact store database (overrides store.path)")

	put := &cobra.Command{
		Use:   "put PATH FILE",
		Short: "Store the source map in FILE under PATH",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			content, err := os.ReadFile(args[1])
			if err != nil {
				return fmt.Errorf("failed to read %s: %w", args[1], err)
			}
			if _, err := sourcemap.Decode(content); err != nil {
				return err
			}

			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()

			art, err := store.Put(cmd.Context(), args[0], string(content))
			if err != nil {
				return err
			}
			return a.emit(cmd, art, func() string {
				return fmt.Sprintf("stored %s (%d bytes, sha256 %s)", art.Path, art.Size, art.SHA256)
			})
		},
	}

	get := &cobra.Command{
		Use:   "get PATH",
		Short: "Print the source map stored under PATH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()

			art, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return a.emit(cmd, art, func() string { return art.Content })
		},
	}

	list := &cobra.Command{
		Use:   "list [PREFIX]",
		Short: "List stored source maps",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			prefix := ""
			if len(args) == 1 {
				prefix = args[0]
			}

			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()

			arts, err := store.List(cmd.Context(), prefix)
			if err != nil {
				return err
			}
			return a.emit(cmd, arts, func() string {
				lines := make([]string, 0, len(arts))
				for _, art := range arts {
					lines = append(lines, fmt.Sprintf("%s\t%d\t%s", art.Path, art.Size, art.UpdatedAt.Format(time.RFC3339)))
				}
				return strings.Join(lines, "\n")
			})
		},
	}

	rm := &cobra.Command{
		Use:   "rm PATH",
		Short: "Delete the source map stored under PATH",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			return a.emit(cmd, map[string]string{"deleted": args[0]}, func() string {
				return "deleted " + args[0]
			})
		},
	}

	cmd.AddCommand(put, get, list, rm)
	return cmd
}

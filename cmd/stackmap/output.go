package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// emit writes v as indented JSON with --output json, otherwise the text rendering
func (a *app) emit(cmd *cobra.Command, v any, text func() string) error {
	out := cmd.OutOrStdout()
	if a.output == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(v)
	}
	_, err := fmt.Fprintln(out, text())
	return err
}

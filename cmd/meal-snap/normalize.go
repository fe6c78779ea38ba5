// cmd/meal-snap/normalize.go
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"mcp-meal-snap/internal/nutrition"
)

func newNormalizeCmd() *cobra.Command {
	var showShape bool
	cmd := &cobra.Command{
		Use:   "normalize [file]",
		Short: "Normalize a raw analysis payload from a file or stdin",
		Long:  "Reads an analysis payload in any supported shape and prints the canonical result. Input that is not JSON is treated as free text.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			in := cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open payload: %w", err)
				}
				defer f.Close()
				in = f
			}

			raw, err := io.ReadAll(in)
			if err != nil {
				return fmt.Errorf("read payload: %w", err)
			}

			payload := decodePayload(raw)
			if showShape {
				fmt.Fprintf(cmd.ErrOrStderr(), "shape: %s\n", nutrition.DetectShape(payload))
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(nutrition.Normalize(payload))
		},
	}
	cmd.Flags().BoolVar(&showShape, "shape", false, "Print the detected payload shape to stderr")
	return cmd
}

func decodePayload(raw []byte) any {
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		return map[string]any{"output": string(raw)}
	}
	return payload
}

// Copyright 2024 Gustavo C. Viegas. All rights reserved.

package main

import (
	"github.com/spf13/cobra"
)

func newConfigCommand(g *globals) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := g.loadConfig()
			if err != nil {
				return err
			}
			b, err := cfg.Encode(format)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(b)
			return err
		},
	}
	cmd.Flags().StringVarP(&format, "format", "f", "toml", `output format ("toml" or "yaml")`)
	return cmd
}

// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package cmd

import (
	"io"

	"github.com/spf13/cobra"

	"github.com/conduitgrid/conduit/ctl"
)

// newConfigCommand creates the `conduit config` subcommand, which prints
// the default configuration in toml form.
func newConfigCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	conf := ctl.NewConfigCommand(stdin, stdout, stderr)
	return &cobra.Command{
		Use:   "config",
		Short: "Print the default configuration.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return conf.Run(cmd.Context())
		},
	}
}

// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package cmd

import (
	"io"

	"github.com/spf13/cobra"
)

// NewRootCommand builds the `conduit` root command with its subcommands.
func NewRootCommand(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	rc := &cobra.Command{
		Use:   "conduit",
		Short: "Conduit is an article service backed by a cache grid.",
		Long: `Conduit serves articles, comments, favorites and follows over HTTP,
storing everything in a transactional cache grid.

This binary contains the Conduit server itself as well as small
tools for administering it.`,
	}

	rc.AddCommand(NewServeCmd(stdin, stdout, stderr))
	rc.AddCommand(newConfigCommand(stdin, stdout, stderr))

	rc.SetOutput(stderr)
	return rc
}

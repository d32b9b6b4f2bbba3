// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/conduitgrid/conduit/ctl"
	"github.com/conduitgrid/conduit/server"
)

// Server is global so that tests can control and verify it.
var Server *server.Command

// NewServeCmd creates the `conduit server` subcommand.
func NewServeCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	Server = server.NewCommand(stdin, stdout, stderr)
	serveCmd := &cobra.Command{
		Use:   "server",
		Short: "Run the Conduit server.",
		Long: `conduit server runs the article service.

It will load existing data from the configured
directory and start listening for client connections
on the configured port.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			configPath, err := cmd.Flags().GetString("config")
			if err != nil {
				return err
			}
			if configPath != "" {
				if err := applyConfigFile(Server, configPath, cmd.Flags()); err != nil {
					return err
				}
			}

			if err := Server.Start(); err != nil {
				return fmt.Errorf("error running server: %v", err)
			}
			return Server.Wait()
		},
	}
	ctl.BuildServerFlags(serveCmd, Server)
	serveCmd.Flags().StringP("config", "c", "", "Configuration file to read from.")

	return serveCmd
}

// applyConfigFile overlays file values onto the command's config. Flags
// set explicitly on the command line win over the file.
func applyConfigFile(srv *server.Command, path string, flags *pflag.FlagSet) error {
	fileConf, err := server.LoadConfig(path)
	if err != nil {
		return err
	}
	set := func(name string, apply func()) {
		if f := flags.Lookup(name); f == nil || !f.Changed {
			apply()
		}
	}
	set("data-dir", func() { srv.Config.DataDir = fileConf.DataDir })
	set("bind", func() { srv.Config.Bind = fileConf.Bind })
	set("storage", func() { srv.Config.Storage = fileConf.Storage })
	set("stats", func() { srv.Config.Stats = fileConf.Stats })
	set("log-path", func() { srv.Config.LogPath = fileConf.LogPath })
	set("verbose", func() { srv.Config.Verbose = fileConf.Verbose })
	return nil
}

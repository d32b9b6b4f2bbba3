// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package ctl

import (
	"github.com/spf13/cobra"

	"github.com/conduitgrid/conduit/server"
)

// BuildServerFlags attaches a set of flags to the command for a server instance.
func BuildServerFlags(cmd *cobra.Command, srv *server.Command) {
	flags := cmd.Flags()
	flags.StringVarP(&srv.Config.DataDir, "data-dir", "d", srv.Config.DataDir, "Directory to store conduit data files.")
	flags.StringVarP(&srv.Config.Bind, "bind", "b", srv.Config.Bind, "host:port on which conduit should listen.")
	flags.StringVar(&srv.Config.Storage, "storage", srv.Config.Storage, "Grid backend, 'bolt' or 'inmem'.")
	flags.StringVar(&srv.Config.Stats, "stats", srv.Config.Stats, "Where to send stats: 'prometheus' (served at /metrics), 'expvar' (in-memory served at /debug/vars) or 'none'.")
	flags.StringVar(&srv.Config.LogPath, "log-path", srv.Config.LogPath, "Log path")
	flags.BoolVar(&srv.Config.Verbose, "verbose", srv.Config.Verbose, "Enable verbose logging")
}

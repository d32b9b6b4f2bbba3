// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package server contains the `conduit server` subcommand which runs the
// article service itself. The purpose of this package is to define an
// easily tested Command object which handles interpreting configuration
// and setting up all the objects that the service needs.
package server

import (
	"io"
	"net"
	"os"
	"os/signal"
	"os/user"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/sync/errgroup"

	conduit "github.com/conduitgrid/conduit"
	"github.com/conduitgrid/conduit/boltdb"
	"github.com/conduitgrid/conduit/errors"
	"github.com/conduitgrid/conduit/inmem"
	"github.com/conduitgrid/conduit/logger"
	"github.com/conduitgrid/conduit/prometheus"
)

// Command represents the state of the conduit server command.
type Command struct {
	// Configuration.
	Config *Config

	// Standard input/output
	*conduit.CmdIO

	// Running subsystems, populated by SetupServer.
	Grid    conduit.Grid
	API     *conduit.API
	Handler *conduit.Handler

	ln net.Listener

	logOutput io.Writer
	logger    logger.Logger

	serveGroup errgroup.Group

	// done will be closed when Command.Close() is called
	done chan struct{}
}

type CommandOption func(c *Command) error

func OptCommandConfig(config *Config) CommandOption {
	return func(c *Command) error {
		c.Config = config
		return nil
	}
}

// NewCommand returns a new instance of Command.
func NewCommand(stdin io.Reader, stdout, stderr io.Writer, opts ...CommandOption) *Command {
	c := &Command{
		Config: NewConfig(),

		CmdIO: conduit.NewCmdIO(stdin, stdout, stderr),

		// setupLogger replaces this once the config is known.
		logger: logger.StderrLogger,

		done: make(chan struct{}),
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			panic(err)
		}
	}
	return c
}

// Start sets up the server and begins serving HTTP in the background.
func (m *Command) Start() (err error) {
	// Expand the data directory, which may start with "~" or "~/".
	if strings.HasPrefix(m.Config.DataDir, "~") {
		hd, err := homeDir()
		if err != nil {
			return errors.Wrap(err, "expanding data directory")
		}
		m.Config.DataDir = filepath.Join(hd, strings.TrimPrefix(m.Config.DataDir, "~"))
	}

	if err := m.SetupServer(); err != nil {
		return errors.Wrap(err, "setting up server")
	}

	m.serveGroup.Go(m.Handler.Serve)
	m.logger.Printf("listening on %s", m.ln.Addr())
	return nil
}

// SetupServer uses the cluster of configuration flags to set up all the
// objects the server needs. It is exported mainly for testability.
func (m *Command) SetupServer() error {
	if err := m.Config.Validate(); err != nil {
		return err
	}
	if err := m.setupLogger(); err != nil {
		return errors.Wrap(err, "setting up logger")
	}

	switch m.Config.Storage {
	case StorageInmem:
		m.Grid = inmem.NewGrid(conduit.CacheNames())
	default:
		g, err := boltdb.OpenGrid(filepath.Join(m.Config.DataDir, "conduit.db"), conduit.CacheNames())
		if err != nil {
			return errors.Wrap(err, "opening grid")
		}
		m.Grid = g
	}

	stats, err := m.newStatsClient()
	if err != nil {
		return errors.Wrap(err, "creating stats client")
	}

	api, err := conduit.NewAPI(m.Grid, conduit.ContextUser{},
		conduit.OptAPILogger(m.logger),
		conduit.OptAPIStatsClient(stats),
	)
	if err != nil {
		return errors.Wrap(err, "creating api")
	}
	m.API = api

	m.ln, err = net.Listen("tcp", m.Config.Bind)
	if err != nil {
		return errors.Wrapf(err, "listening on %s", m.Config.Bind)
	}

	m.Handler, err = conduit.NewHandler(
		conduit.OptHandlerAPI(m.API),
		conduit.OptHandlerLogger(m.logger),
		conduit.OptHandlerListener(m.ln),
	)
	if err != nil {
		return errors.Wrap(err, "creating handler")
	}
	return nil
}

// newStatsClient creates the stats client the config asked for.
func (m *Command) newStatsClient() (conduit.StatsClient, error) {
	switch m.Config.Stats {
	case StatsExpvar:
		return conduit.NewExpvarStatsClient(), nil
	case StatsNone:
		return conduit.NopStatsClient, nil
	default:
		return prometheus.NewPrometheusClient()
	}
}

// Address returns the listener's address, which differs from
// Config.Bind when the bind port was 0.
func (m *Command) Address() string {
	if m.ln == nil {
		return ""
	}
	return m.ln.Addr().String()
}

// Wait waits for the server to be closed or interrupted.
func (m *Command) Wait() error {
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-c:
		m.logger.Infof("received signal '%s', gracefully shutting down...", sig.String())

		// Second signal causes a hard shutdown.
		go func() { <-c; os.Exit(1) }()
		return errors.Wrap(m.Close(), "closing command")
	case <-m.done:
		m.logger.Infof("server closed externally")
		return nil
	}
}

// Close shuts down the server and releases the grid.
func (m *Command) Close() error {
	select {
	case <-m.done:
		return nil
	default:
		var eg errgroup.Group
		if m.Handler != nil {
			eg.Go(m.Handler.Close)
		}
		err := eg.Wait()
		if serr := m.serveGroup.Wait(); serr != nil && err == nil {
			err = serr
		}
		if m.Grid != nil {
			if gerr := m.Grid.Close(); gerr != nil && err == nil {
				err = gerr
			}
		}
		close(m.done)
		return errors.Wrap(err, "closing everything")
	}
}

// setupLogger sets up the logger based on the configuration.
func (m *Command) setupLogger() error {
	var f *logger.FileWriter
	var err error
	if m.Config.LogPath == "" {
		m.logOutput = m.Stderr
	} else {
		f, err = logger.NewFileWriter(m.Config.LogPath)
		if err != nil {
			return errors.Wrap(err, "opening file")
		}
		m.logOutput = f
	}
	if m.Config.Verbose {
		m.logger = logger.NewVerboseLogger(m.logOutput)
	} else {
		m.logger = logger.NewStandardLogger(m.logOutput)
	}
	if m.Config.LogPath != "" {
		sighup := make(chan os.Signal, 1)
		signal.Notify(sighup, syscall.SIGHUP)
		go func() {
			for {
				// reopen log file on SIGHUP
				<-sighup
				if err := f.Reopen(); err != nil {
					m.logger.Infof("reopen: %s", err.Error())
				}
			}
		}()
	}
	return nil
}

// Logger returns the command's current logger, which tests inspect.
func (m *Command) Logger() logger.Logger {
	return m.logger
}

func homeDir() (string, error) {
	hd := os.Getenv("HOME")
	if hd != "" {
		return hd, nil
	}
	u, err := user.Current()
	if err != nil {
		return "", errors.Wrap(err, "getting current user")
	}
	if u.HomeDir == "" {
		return "", errors.New(errors.ErrUncoded, "user has no home directory")
	}
	return u.HomeDir, nil
}

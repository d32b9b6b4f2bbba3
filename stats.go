// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package conduit

import (
	"expvar"
	"sync"
	"time"
)

// Expvar global expvar map, served at /debug/vars.
var Expvar = expvar.NewMap("conduit")

// StatsClient represents a client to a stats server.
type StatsClient interface {
	// Tracks the number of times something occurs.
	Count(name string, value int64)

	// Tracks timing information for a metric.
	Timing(name string, value time.Duration)

	// Closes the client.
	Close() error
}

// NopStatsClient represents a client that doesn't do anything.
var NopStatsClient StatsClient = &nopStatsClient{}

type nopStatsClient struct{}

func (c *nopStatsClient) Count(name string, value int64)          {}
func (c *nopStatsClient) Timing(name string, value time.Duration) {}
func (c *nopStatsClient) Close() error                            { return nil }

// ExpvarStatsClient writes stats out to expvars.
type ExpvarStatsClient struct {
	mu sync.Mutex
	m  *expvar.Map
}

// NewExpvarStatsClient returns a new instance of ExpvarStatsClient.
// This client points at the root of the expvar map.
func NewExpvarStatsClient() *ExpvarStatsClient {
	return &ExpvarStatsClient{m: Expvar}
}

// Count tracks the number of times something occurs.
func (c *ExpvarStatsClient) Count(name string, value int64) {
	c.m.Add(name, value)
}

// Timing tracks timing information for a metric.
func (c *ExpvarStatsClient) Timing(name string, value time.Duration) {
	c.mu.Lock()
	d, _ := c.m.Get(name).(time.Duration)
	c.m.Set(name, d+value)
	c.mu.Unlock()
}

// Close no-op.
func (c *ExpvarStatsClient) Close() error { return nil }

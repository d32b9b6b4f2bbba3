// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0

// Package prometheus implements conduit.StatsClient on the prometheus
// client library. Collectors are created lazily per metric name and
// served by the handler's /metrics endpoint.
package prometheus

import (
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	conduit "github.com/conduitgrid/conduit"
	"github.com/conduitgrid/conduit/errors"
)

// Ensure type implements interface.
var _ conduit.StatsClient = (*prometheusClient)(nil)

type prometheusClient struct {
	mu         sync.Mutex
	registerer prometheus.Registerer
	counters   map[string]prometheus.Counter
	histograms map[string]prometheus.Histogram
}

// NewPrometheusClient returns a stats client registering on the default
// registry.
func NewPrometheusClient() (*prometheusClient, error) {
	return NewPrometheusClientWithRegisterer(prometheus.DefaultRegisterer)
}

// NewPrometheusClientWithRegisterer is NewPrometheusClient on a custom
// registerer, which tests use to avoid duplicate registration.
func NewPrometheusClientWithRegisterer(r prometheus.Registerer) (*prometheusClient, error) {
	if r == nil {
		return nil, errors.New(errors.ErrUncoded, "nil registerer")
	}
	return &prometheusClient{
		registerer: r,
		counters:   map[string]prometheus.Counter{},
		histograms: map[string]prometheus.Histogram{},
	}, nil
}

func (c *prometheusClient) Count(name string, value int64) {
	c.mu.Lock()
	ctr, ok := c.counters[name]
	if !ok {
		ctr = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "conduit",
			Name:      sanitize(name) + "_total",
		})
		c.registerer.MustRegister(ctr)
		c.counters[name] = ctr
	}
	c.mu.Unlock()
	ctr.Add(float64(value))
}

func (c *prometheusClient) Timing(name string, value time.Duration) {
	c.mu.Lock()
	h, ok := c.histograms[name]
	if !ok {
		h = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "conduit",
			Name:      sanitize(name) + "_duration_seconds",
		})
		c.registerer.MustRegister(h)
		c.histograms[name] = h
	}
	c.mu.Unlock()
	h.Observe(value.Seconds())
}

func (c *prometheusClient) Close() error { return nil }

// sanitize maps stat names like "createArticle" onto the snake_case
// prometheus expects.
func sanitize(name string) string {
	var sb strings.Builder
	for i, r := range name {
		switch {
		case r >= 'A' && r <= 'Z':
			if i > 0 {
				sb.WriteByte('_')
			}
			sb.WriteRune(r - 'A' + 'a')
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '_':
			sb.WriteRune(r)
		default:
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

// Copyright 2022 Molecula Corp. (DBA FeatureBase).
// SPDX-License-Identifier: Apache-2.0
package prometheus_test

import (
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/conduitgrid/conduit/prometheus"
)

func TestPrometheusClient_Count(t *testing.T) {
	reg := prom.NewRegistry()
	c, err := prometheus.NewPrometheusClientWithRegisterer(reg)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	c.Count("createArticle", 1)
	c.Count("createArticle", 2)

	fams, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, fam := range fams {
		if fam.GetName() != "conduit_create_article_total" {
			continue
		}
		found = true
		if got, want := fam.GetMetric()[0].GetCounter().GetValue(), float64(3); got != want {
			t.Fatalf("counter=%v, want %v", got, want)
		}
	}
	if !found {
		t.Fatal("conduit_create_article_total not registered")
	}
}

func TestPrometheusClient_Timing(t *testing.T) {
	reg := prom.NewRegistry()
	c, err := prometheus.NewPrometheusClientWithRegisterer(reg)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	c.Timing("createArticle", 250*time.Millisecond)
	c.Timing("createArticle", 750*time.Millisecond)

	fams, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	found := false
	for _, fam := range fams {
		if fam.GetName() != "conduit_create_article_duration_seconds" {
			continue
		}
		found = true
		h := fam.GetMetric()[0].GetHistogram()
		if got, want := h.GetSampleCount(), uint64(2); got != want {
			t.Fatalf("sample count=%d, want %d", got, want)
		}
		if got, want := h.GetSampleSum(), 1.0; got != want {
			t.Fatalf("sample sum=%v, want %v", got, want)
		}
	}
	if !found {
		t.Fatal("conduit_create_article_duration_seconds not registered")
	}
}

func TestPrometheusClient_NilRegisterer(t *testing.T) {
	if _, err := prometheus.NewPrometheusClientWithRegisterer(nil); err == nil {
		t.Fatal("expected error for nil registerer")
	}
}

// Copyright 2025 KrakLabs
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published
// by the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package metrics is the registry's optional Prometheus instrumentation,
// mirroring cmd/cie's index command: a handful of counters/histograms
// registered against the default registry and exposed over /metrics.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder implements exec.Metrics, observing one Invoke call per
// ObserveInvocation.
type Recorder struct {
	invocations *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

// New registers the registry's metrics against reg. Pass
// prometheus.DefaultRegisterer to match the teacher's promhttp.Handler()
// default-registry convention, or a fresh prometheus.NewRegistry() in
// tests to avoid collisions across runs.
func New(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		invocations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "encr",
			Name:      "invocations_total",
			Help:      "Total number of Invoke calls, by function, shapes, and outcome.",
		}, []string{"function", "input_pattern", "output_pattern", "succeeded"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "encr",
			Name:      "invocation_duration_seconds",
			Help:      "Invoke call latency, from composition through commit.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"function"}),
	}
}

// ObserveInvocation records one completed Invoke call.
func (r *Recorder) ObserveInvocation(functionName, inputPattern, outputPattern string, duration time.Duration, succeeded bool) {
	succeededLabel := "false"
	if succeeded {
		succeededLabel = "true"
	}
	r.invocations.WithLabelValues(functionName, inputPattern, outputPattern, succeededLabel).Inc()
	r.duration.WithLabelValues(functionName).Observe(duration.Seconds())
}

// Serve starts an HTTP server exposing /metrics and returns immediately,
// matching cmd/cie's "Start Prometheus metrics endpoint (optional)"
// goroutine in cmd/cie/index.go. Handler defaults to
// promhttp.Handler() (the default registry) when reg is nil.
func Serve(addr string, reg *prometheus.Registry) *http.Server {
	mux := http.NewServeMux()
	if reg != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	} else {
		mux.Handle("/metrics", promhttp.Handler())
	}
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	go func() {
		_ = srv.ListenAndServe()
	}()
	return srv
}

/*
Copyright (c) Facebook, Inc. and its affiliates.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

// Package metrics exposes the sync engine's live state as Prometheus
// gauges, updated in-process from the update path rather than scraped
// from another daemon.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// Registry holds the gauges the sync engine updates on every sample.
type Registry struct {
	registry *prometheus.Registry

	Offset     prometheus.Gauge
	FreqPPB    prometheus.Gauge
	Delay      prometheus.Gauge
	ServoState prometheus.Gauge
}

// New creates a Registry with all gauges registered.
func New() *Registry {
	r := prometheus.NewRegistry()
	reg := &Registry{
		registry: r,
		Offset: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "phc2sys_offset_ns",
			Help: "Last measured offset from the source clock, in nanoseconds",
		}),
		FreqPPB: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "phc2sys_frequency_ppb",
			Help: "Last frequency adjustment applied to the destination clock, in parts per billion",
		}),
		Delay: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "phc2sys_delay_ns",
			Help: "Last measurement delay (bracket width), in nanoseconds",
		}),
		ServoState: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "phc2sys_servo_state",
			Help: "Servo state: 0=unlocked, 1=jump, 2=locked",
		}),
	}
	r.MustRegister(reg.Offset, reg.FreqPPB, reg.Delay, reg.ServoState)
	return reg
}

// Serve starts an HTTP server exposing /metrics on addr. It blocks until
// ctx is canceled or the server fails.
func (r *Registry) Serve(ctx context.Context, addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server on %s: %w", addr, err)
		}
		return nil
	}
}

// ServeBackground starts Serve in a goroutine and logs a fatal-looking
// error if it exits unexpectedly, matching the teacher's exporter pattern
// of never letting a monitoring endpoint block startup.
func (r *Registry) ServeBackground(ctx context.Context, addr string) {
	go func() {
		if err := r.Serve(ctx, addr); err != nil {
			log.WithError(err).Error("metrics server exited")
		}
	}()
}

/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	srhttp "github.com/carverauto/statusradar/pkg/http"
	"github.com/carverauto/statusradar/pkg/logger"
	"github.com/carverauto/statusradar/pkg/version"
)

const defaultShutdownTimeout = 10 * time.Second

// Service is anything RunService can start and stop.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// ServerOptions configures RunService.
type ServerOptions struct {
	ServiceName string
	Services    []Service
	// AdminAddr serves /healthz and /metrics when set.
	AdminAddr       string
	Gatherer        prometheus.Gatherer
	ShutdownTimeout time.Duration
	Logger          logger.Logger
}

// RunService starts every service in order, blocks until ctx is canceled or a
// SIGINT/SIGTERM arrives, then stops them in reverse order.
func RunService(ctx context.Context, opts *ServerOptions) error {
	log := opts.Logger
	if log == nil {
		log = logger.Wrap(logger.WithComponent(opts.ServiceName))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			log.Info().Str("signal", sig.String()).Msg("Received signal, initiating shutdown")
			cancel()
		case <-ctx.Done():
		}
	}()

	started := make([]Service, 0, len(opts.Services))

	for _, svc := range opts.Services {
		if err := svc.Start(ctx); err != nil {
			stopAll(log, started, opts.shutdownTimeout())

			return fmt.Errorf("failed to start %s: %w", opts.ServiceName, err)
		}

		started = append(started, svc)
	}

	var admin *http.Server

	if opts.AdminAddr != "" {
		admin = newAdminServer(opts.AdminAddr, opts.Gatherer, log)

		go func() {
			if err := admin.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Str("addr", opts.AdminAddr).Msg("Admin server failed")
			}
		}()
	}

	log.Info().
		Str("service", opts.ServiceName).
		Str("version", version.GetFullVersion()).
		Msg("Service started")

	<-ctx.Done()

	if admin != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), opts.shutdownTimeout())
		_ = admin.Shutdown(shutdownCtx)

		shutdownCancel()
	}

	stopAll(log, started, opts.shutdownTimeout())

	log.Info().Str("service", opts.ServiceName).Msg("Service stopped")

	return nil
}

func (o *ServerOptions) shutdownTimeout() time.Duration {
	if o.ShutdownTimeout > 0 {
		return o.ShutdownTimeout
	}

	return defaultShutdownTimeout
}

func stopAll(log logger.Logger, services []Service, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	for i := len(services) - 1; i >= 0; i-- {
		if err := services[i].Stop(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to stop service")
		}
	}
}

func newAdminServer(addr string, gatherer prometheus.Gatherer, log logger.Logger) *http.Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	handler := srhttp.LoggingMiddleware(log)(srhttp.MethodMiddleware(http.MethodGet, http.MethodHead)(mux))

	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

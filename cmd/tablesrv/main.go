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

// Command tablesrv serves table files from a directory over the window
// protocol and announces rewritten files on tblchg.<table>.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/carverauto/statusradar/pkg/bus"
	srhttp "github.com/carverauto/statusradar/pkg/http"
	"github.com/carverauto/statusradar/pkg/lifecycle"
	"github.com/carverauto/statusradar/pkg/logger"
	"github.com/carverauto/statusradar/pkg/natsutil"
	"github.com/carverauto/statusradar/pkg/transport"
)

const (
	serviceName       = "tablesrv"
	readHeaderTimeout = 5 * time.Second
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	dir := flag.String("dir", ".", "Directory holding <table>.bin files")
	tcpPort := flag.Int("tcp-port", 7280, "Port of the TCP stream")
	wsPort := flag.Int("ws-port", 7281, "Port of the websocket stream")
	natsURL := flag.String("nats", "", "NATS server URL for change announcements; empty disables them")
	listen := flag.String("listen", "", "Admin address serving /healthz and /metrics")
	flag.Parse()

	ctx := context.Background()

	svcLogger, err := lifecycle.CreateComponentLogger(serviceName, nil)
	if err != nil {
		return err
	}

	gw := &gateway{
		source:  transport.DirSource{Dir: *dir},
		tcpAddr: net.JoinHostPort("", strconv.Itoa(*tcpPort)),
		wsAddr:  net.JoinHostPort("", strconv.Itoa(*wsPort)),
		logger:  svcLogger,
	}

	if *natsURL != "" {
		nc, err := natsutil.ConnectWithSecurity(ctx, *natsURL, serviceName, nil, svcLogger)
		if err != nil {
			return err
		}

		defer nc.Close()

		b := bus.NewNATSBus(nc, svcLogger)
		defer func() { _ = b.Close() }()

		gw.bus = b
	}

	return lifecycle.RunService(ctx, &lifecycle.ServerOptions{
		ServiceName: serviceName,
		Services:    []lifecycle.Service{gw},
		AdminAddr:   *listen,
		Logger:      svcLogger,
	})
}

type gateway struct {
	source  transport.DirSource
	tcpAddr string
	wsAddr  string
	bus     bus.Bus
	logger  logger.Logger

	srv    *transport.Server
	http   *http.Server
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func (g *gateway) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", g.tcpAddr)
	if err != nil {
		return err
	}

	g.srv = transport.NewServer(g.source, g.logger)
	g.http = &http.Server{
		Addr:              g.wsAddr,
		Handler:           srhttp.LoggingMiddleware(g.logger)(g.srv.Handler()),
		ReadHeaderTimeout: readHeaderTimeout,
	}

	ctx, g.cancel = context.WithCancel(context.WithoutCancel(ctx))

	g.wg.Add(2)

	go func() {
		defer g.wg.Done()

		if err := g.srv.ServeTCP(ln); err != nil {
			g.logger.Error().Err(err).Str("addr", g.tcpAddr).Msg("TCP stream stopped")
		}
	}()

	go func() {
		defer g.wg.Done()

		if err := g.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			g.logger.Error().Err(err).Str("addr", g.wsAddr).Msg("Websocket stream stopped")
		}
	}()

	if g.bus != nil {
		g.wg.Add(1)

		go func() {
			defer g.wg.Done()

			if err := g.source.Watch(ctx, g.logger, func(table string) {
				if err := g.bus.Publish(ctx, bus.TableChangeTopic(table), nil); err != nil {
					g.logger.Warn().Err(err).Str("table", table).Msg("Failed to announce table change")
				}
			}); err != nil {
				g.logger.Error().Err(err).Msg("Table watch stopped")
			}
		}()
	}

	g.logger.Info().
		Str("dir", g.source.Dir).
		Str("tcp", g.tcpAddr).
		Str("ws", g.wsAddr).
		Msg("Serving table windows")

	return nil
}

func (g *gateway) Stop(ctx context.Context) error {
	g.cancel()

	httpErr := g.http.Shutdown(ctx)
	srvErr := g.srv.Close()

	g.wg.Wait()

	return errors.Join(httpErr, srvErr)
}

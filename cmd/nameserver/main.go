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

// Command nameserver runs one node of the service name registry.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/carverauto/statusradar/pkg/bus"
	"github.com/carverauto/statusradar/pkg/config"
	"github.com/carverauto/statusradar/pkg/kv"
	"github.com/carverauto/statusradar/pkg/lifecycle"
	"github.com/carverauto/statusradar/pkg/logger"
	"github.com/carverauto/statusradar/pkg/metrics"
	"github.com/carverauto/statusradar/pkg/models"
	"github.com/carverauto/statusradar/pkg/names"
	"github.com/carverauto/statusradar/pkg/natsutil"
)

const serviceName = "nameserver"

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to nameserver config file")
	natsURL := flag.String("nats", nats.DefaultURL, "NATS server URL")
	listen := flag.String("listen", "", "Admin address serving /healthz and /metrics")
	purgeDelta := flag.Duration("purge-delta", 30*time.Second, "Heartbeat silence after which an entry is purged")
	purgeInterval := flag.Duration("purge-interval", 10*time.Second, "Interval between purge passes")
	flag.Parse()

	ctx := context.Background()

	cfg := names.Config{
		NATSURL:       *natsURL,
		ListenAddr:    *listen,
		PurgeDelta:    models.Duration(*purgeDelta),
		PurgeInterval: models.Duration(*purgeInterval),
	}

	bootLog := logger.Wrap(logger.WithComponent(serviceName))

	var nc *nats.Conn

	if *configPath != "" {
		cfgLoader := config.NewConfig(bootLog)

		if config.SourceIsKV() {
			var err error

			nc, err = natsutil.ConnectWithSecurity(ctx, *natsURL, serviceName, nil, bootLog)
			if err != nil {
				return err
			}

			defer nc.Close()

			store, err := kv.NewNATSStore(ctx, nc, kv.Config{}, bootLog)
			if err != nil {
				return err
			}

			defer func() { _ = store.Close() }()

			cfgLoader.SetKVStore(store)
		}

		if err := cfgLoader.LoadAndValidate(ctx, *configPath, &cfg); err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
	}

	flag.Visit(func(f *flag.Flag) {
		switch f.Name {
		case "nats":
			cfg.NATSURL = *natsURL
		case "listen":
			cfg.ListenAddr = *listen
		case "purge-delta":
			cfg.PurgeDelta = models.Duration(*purgeDelta)
		case "purge-interval":
			cfg.PurgeInterval = models.Duration(*purgeInterval)
		}
	})

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	svcLogger, err := lifecycle.CreateComponentLogger(serviceName, cfg.Logging)
	if err != nil {
		return err
	}

	reg := metrics.NewRegistry()

	registryMetrics, err := metrics.NewRegistryMetrics(reg)
	if err != nil {
		return err
	}

	if nc == nil {
		nc, err = natsutil.ConnectWithSecurity(ctx, cfg.NATSURL, serviceName, cfg.Security, svcLogger)
		if err != nil {
			return err
		}

		defer nc.Close()
	}

	b := bus.NewNATSBus(nc, svcLogger)
	defer func() { _ = b.Close() }()

	registry := names.NewRegistry(&cfg, b, svcLogger, registryMetrics)

	return lifecycle.RunService(ctx, &lifecycle.ServerOptions{
		ServiceName: serviceName,
		Services: []lifecycle.Service{
			registry,
			names.NewAPI(nc, registry, cfg.Workers, svcLogger),
		},
		AdminAddr: cfg.ListenAddr,
		Gatherer:  reg.Gatherer(),
		Logger:    svcLogger,
	})
}

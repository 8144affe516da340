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

// Command statusd decodes gateway tables into the status store and serves
// it over NATS.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/carverauto/statusradar/pkg/bus"
	"github.com/carverauto/statusradar/pkg/catalog"
	"github.com/carverauto/statusradar/pkg/config"
	"github.com/carverauto/statusradar/pkg/kv"
	"github.com/carverauto/statusradar/pkg/lifecycle"
	"github.com/carverauto/statusradar/pkg/logger"
	"github.com/carverauto/statusradar/pkg/metrics"
	"github.com/carverauto/statusradar/pkg/models"
	"github.com/carverauto/statusradar/pkg/names"
	"github.com/carverauto/statusradar/pkg/natsutil"
	"github.com/carverauto/statusradar/pkg/status"
	"github.com/carverauto/statusradar/pkg/tablecache"
	"github.com/carverauto/statusradar/pkg/transport"
)

const serviceName = "statusd"

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "", "Path to statusd config file")
	defsPath := flag.String("defs", "", "Path to the table definitions file")
	natsURL := flag.String("nats", nats.DefaultURL, "NATS server URL")
	listen := flag.String("listen", "", "Admin address serving /healthz and /metrics")
	checkpoint := flag.String("checkpoint", "", "Snapshot file written periodically and restored at startup")
	checkpointInterval := flag.Duration("checkpoint-interval", time.Minute, "Interval between snapshots")
	flag.Parse()

	ctx := context.Background()

	// flag values seed the config; the file overrides them and explicitly
	// set flags win again below
	cfg := status.Config{
		Definitions: *defsPath,
		NATSURL:     *natsURL,
		ListenAddr:  *listen,
		Checkpoint: status.CheckpointConfig{
			Path:     *checkpoint,
			Interval: models.Duration(*checkpointInterval),
		},
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
		case "defs":
			cfg.Definitions = *defsPath
		case "nats":
			cfg.NATSURL = *natsURL
		case "listen":
			cfg.ListenAddr = *listen
		case "checkpoint":
			cfg.Checkpoint.Path = *checkpoint
		case "checkpoint-interval":
			cfg.Checkpoint.Interval = models.Duration(*checkpointInterval)
		}
	})

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	svcLogger, err := lifecycle.CreateComponentLogger(serviceName, cfg.Logging)
	if err != nil {
		return err
	}

	cat, err := catalog.Load(cfg.Definitions)
	if err != nil {
		return err
	}

	if err := cat.ApplyOverrides(cfg.ForcedTypes()); err != nil {
		return err
	}

	svcLogger.Info().
		Str("definitions", cfg.Definitions).
		Int("tables", len(cat.Tables())).
		Int("aliases", len(cat.AllAliasNames())).
		Msg("Loaded table definitions")

	reg := metrics.NewRegistry()

	cacheMetrics, err := metrics.NewCacheMetrics(reg)
	if err != nil {
		return err
	}

	storeMetrics, err := metrics.NewStoreMetrics(reg)
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

	reader := transport.NewClient(cfg.Transport, svcLogger)
	cache := tablecache.New(cat, reader, cfg.Cache, svcLogger, cacheMetrics)

	store := status.New(status.Options{
		Bus:      b,
		Cache:    cache,
		Logger:   svcLogger,
		Metrics:  storeMetrics,
		Defaults: models.Mapping(cfg.Defaults),
	})

	if err := store.RegisterSpecs(cfg.Derived); err != nil {
		return err
	}

	var kvStore kv.KVStore

	if cfg.KV != nil {
		natsStore, err := kv.NewNATSStore(ctx, nc, *cfg.KV, svcLogger)
		if err != nil {
			return err
		}

		defer func() { _ = natsStore.Close() }()

		kvStore = natsStore
	}

	services := []lifecycle.Service{
		status.NewService(&cfg, store, cache, b, kvStore, svcLogger),
		status.NewAPI(nc, store, cfg.Workers, svcLogger),
	}

	if adv := cfg.Advertise; adv != nil {
		services = append(services, names.NewAdvertiser(
			names.NewClient(nc, 0),
			adv.Name, adv.Host, adv.Port,
			names.Options{Secure: adv.Secure},
			0,
			svcLogger,
		))
	}

	return lifecycle.RunService(ctx, &lifecycle.ServerOptions{
		ServiceName: serviceName,
		Services:    services,
		AdminAddr:   cfg.ListenAddr,
		Gatherer:    reg.Gatherer(),
		Logger:      svcLogger,
	})
}

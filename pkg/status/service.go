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

package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/carverauto/statusradar/pkg/bus"
	"github.com/carverauto/statusradar/pkg/kv"
	"github.com/carverauto/statusradar/pkg/logger"
	"github.com/carverauto/statusradar/pkg/tablecache"
)

// Service runs the background side of statusd: it restores the last
// snapshot, turns tblchg.<table> events into UpdateTable calls on a bounded
// worker pool, refreshes stale tables, follows the KV ignore list and
// checkpoints periodically.
type Service struct {
	cfg    *Config
	store  *Store
	cache  *tablecache.Cache
	bus    bus.Bus
	kv     kv.KVStore
	logger logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	loops  sync.WaitGroup

	mu       sync.RWMutex
	stopping bool
	pool     *errgroup.Group
	sub      bus.Subscription
}

// NewService creates the service. kvStore may be nil when no KV checkpoint
// is configured.
func NewService(cfg *Config, store *Store, cache *tablecache.Cache, b bus.Bus, kvStore kv.KVStore, log logger.Logger) *Service {
	return &Service{
		cfg:    cfg,
		store:  store,
		cache:  cache,
		bus:    b,
		kv:     kvStore,
		logger: log,
	}
}

func (s *Service) Start(ctx context.Context) error {
	s.ctx, s.cancel = context.WithCancel(context.WithoutCancel(ctx))

	s.pool = new(errgroup.Group)
	s.pool.SetLimit(s.cfg.Workers)

	s.restore(ctx)

	sub, err := s.bus.Subscribe(bus.PrefixTableChange, s.onTableChange)
	if err != nil {
		s.cancel()

		return err
	}

	s.sub = sub

	s.loops.Add(1)

	go func() {
		defer s.loops.Done()

		s.cache.RefreshLoop(s.ctx, s.cfg.RefreshInterval.Std(), s.store.UpdateTable)
	}()

	if s.cfg.IgnoreKey != "" && s.kv != nil {
		// watch before the initial read so no change falls in between
		updates, err := s.kv.Watch(s.ctx, s.cfg.IgnoreKey)
		if err != nil {
			s.logger.Warn().Err(err).Str("key", s.cfg.IgnoreKey).Msg("KV watch failed")
		} else {
			s.loops.Add(1)

			go func() {
				defer s.loops.Done()

				s.watchIgnored(updates)
			}()
		}

		if err := s.loadIgnored(ctx); err != nil {
			s.logger.Warn().Err(err).Str("key", s.cfg.IgnoreKey).Msg("Ignore list not loaded")
		}
	}

	if s.cfg.Checkpoint.Enabled() {
		s.loops.Add(1)

		go func() {
			defer s.loops.Done()

			s.checkpointLoop(s.ctx, s.cfg.Checkpoint.Interval.Std())
		}()
	}

	s.logger.Info().
		Int("workers", s.cfg.Workers).
		Dur("refresh_interval", s.cfg.RefreshInterval.Std()).
		Msg("Status service started")

	return nil
}

func (s *Service) restore(ctx context.Context) {
	var err error

	switch {
	case s.cfg.Checkpoint.Path != "":
		err = s.store.Restore(s.cfg.Checkpoint.Path)
	case s.cfg.Checkpoint.KVKey != "" && s.kv != nil:
		err = s.store.RestoreKV(ctx, s.kv, s.cfg.Checkpoint.KVKey)
	default:
		return
	}

	switch {
	case err == nil:
	case errors.Is(err, fs.ErrNotExist):
		s.logger.Info().Msg("No status snapshot found, starting from defaults")
	default:
		s.logger.Warn().Err(err).Msg("Status snapshot rejected, starting from defaults")
	}
}

// loadIgnored applies the ignore list currently held under IgnoreKey. A
// missing key leaves the set alone.
func (s *Service) loadIgnored(ctx context.Context) error {
	data, found, err := s.kv.Get(ctx, s.cfg.IgnoreKey)
	if err != nil || !found {
		return err
	}

	return s.applyIgnored(data)
}

// watchIgnored applies every change of IgnoreKey until the channel closes.
// A delete clears the set; an unparsable value keeps the previous one.
func (s *Service) watchIgnored(updates <-chan []byte) {
	for data := range updates {
		if err := s.applyIgnored(data); err != nil {
			s.logger.Warn().Err(err).Str("key", s.cfg.IgnoreKey).Msg("Ignoring bad ignore list update")
		}
	}
}

func (s *Service) applyIgnored(data []byte) error {
	var tables []string

	if len(data) > 0 {
		if err := json.Unmarshal(data, &tables); err != nil {
			return fmt.Errorf("%w: %w", errBadIgnoreList, err)
		}
	}

	s.store.SetIgnored(tables)

	return nil
}

func (s *Service) onTableChange(_ context.Context, msg *bus.Message) {
	table := bus.TopicSuffix(msg.Topic, bus.PrefixTableChange)

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.stopping {
		return
	}

	s.pool.Go(func() error {
		if err := s.store.UpdateTable(s.ctx, table); err != nil {
			s.logger.Warn().Err(err).Str("table", table).Msg("Table update failed")
		}

		return nil
	})
}

func (s *Service) checkpointLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.Checkpoint(ctx); err != nil {
				s.logger.Error().Err(err).Msg("Periodic checkpoint failed")
			}
		}
	}
}

// Checkpoint writes the snapshot to every configured target.
func (s *Service) Checkpoint(ctx context.Context) error {
	var errs []error

	if s.cfg.Checkpoint.Path != "" {
		errs = append(errs, s.store.Checkpoint(s.cfg.Checkpoint.Path))
	}

	if s.cfg.Checkpoint.KVKey != "" && s.kv != nil {
		errs = append(errs, s.store.CheckpointKV(ctx, s.kv, s.cfg.Checkpoint.KVKey))
	}

	return errors.Join(errs...)
}

// Stop drains in-flight updates, stops the loops and writes a final
// checkpoint.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	s.stopping = true
	s.mu.Unlock()

	var errs []error

	if s.sub != nil {
		errs = append(errs, s.sub.Unsubscribe())
	}

	s.cache.Stop()
	s.cancel()
	s.loops.Wait()
	_ = s.pool.Wait()

	if s.cfg.Checkpoint.Enabled() {
		errs = append(errs, s.Checkpoint(ctx))
	}

	s.logger.Info().Msg("Status service stopped")

	return errors.Join(errs...)
}

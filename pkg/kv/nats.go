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

package kv

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/carverauto/statusradar/pkg/logger"
)

// NATSStore is a KVStore backed by a JetStream bucket. It does not own the
// NATS connection.
type NATSStore struct {
	kv     jetstream.KeyValue
	logger logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

var _ KVStore = (*NATSStore)(nil)

// NewNATSStore opens the configured bucket, creating it if needed.
func NewNATSStore(ctx context.Context, nc *nats.Conn, cfg Config, log logger.Logger) (*NATSStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Bucket == "" {
		return nil, errBucketRequired
	}

	js, err := jetstream.New(nc)
	if err != nil {
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	kv, err := js.CreateOrUpdateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:   cfg.Bucket,
		History:  uint8(cfg.History),
		TTL:      cfg.TTL.Std(),
		MaxBytes: cfg.MaxBytes,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create KV bucket %s: %w", cfg.Bucket, err)
	}

	storeCtx, cancel := context.WithCancel(context.Background())

	return &NATSStore{kv: kv, logger: log, ctx: storeCtx, cancel: cancel}, nil
}

func (n *NATSStore) Get(ctx context.Context, key string) (value []byte, found bool, err error) {
	var entry jetstream.KeyValueEntry

	entry, err = n.kv.Get(ctx, key)
	if errors.Is(err, jetstream.ErrKeyNotFound) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("failed to get key %s: %w", key, err)
	}

	return entry.Value(), true, nil
}

func (n *NATSStore) Put(ctx context.Context, key string, value []byte, _ time.Duration) error {
	if _, err := n.kv.Put(ctx, key, value); err != nil {
		return fmt.Errorf("failed to put key %s: %w", key, err)
	}

	return nil
}

func (n *NATSStore) Delete(ctx context.Context, key string) error {
	err := n.kv.Delete(ctx, key)
	if err != nil && !errors.Is(err, jetstream.ErrKeyNotFound) {
		return fmt.Errorf("failed to delete key %s: %w", key, err)
	}

	return nil
}

func (n *NATSStore) Watch(ctx context.Context, key string) (<-chan []byte, error) {
	watcher, err := n.kv.Watch(ctx, key, jetstream.UpdatesOnly())
	if err != nil {
		return nil, fmt.Errorf("failed to watch key %s: %w", key, err)
	}

	ch := make(chan []byte, 1)
	go n.handleWatchUpdates(ctx, key, watcher, ch)

	return ch, nil
}

func (n *NATSStore) handleWatchUpdates(ctx context.Context, key string, watcher jetstream.KeyWatcher, ch chan<- []byte) {
	defer func() {
		if err := watcher.Stop(); err != nil {
			n.logger.Debug().Err(err).Str("key", key).Msg("Failed to stop watcher")
		}

		close(ch)
	}()

	for {
		var update jetstream.KeyValueEntry

		select {
		case <-ctx.Done():
			return
		case <-n.ctx.Done():
			return
		case u, ok := <-watcher.Updates():
			if !ok {
				return
			}

			update = u
		}

		if update == nil {
			continue // end of initial values marker
		}

		var value []byte
		if update.Operation() == jetstream.KeyValuePut {
			value = update.Value()
		}

		select {
		case ch <- value:
		case <-ctx.Done():
			return
		case <-n.ctx.Done():
			return
		}
	}
}

// Close stops all watchers. The connection stays open.
func (n *NATSStore) Close() error {
	n.cancel()

	return nil
}

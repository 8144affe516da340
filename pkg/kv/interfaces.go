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

// Package kv provides the JetStream key-value store used for status
// checkpoints and centrally managed service configuration.
package kv

import (
	"context"
	"time"
)

// KVStore is the key-value surface statusradar services depend on.
type KVStore interface {
	// Get returns the value of key and whether it exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// Put stores value under key. The ttl is advisory; JetStream applies the
	// bucket TTL.
	Put(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error

	// Watch streams the new value of key on every change. A delete is
	// delivered as nil. The channel closes with ctx or the store.
	Watch(ctx context.Context, key string) (<-chan []byte, error)

	Close() error
}

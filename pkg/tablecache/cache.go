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

// Package tablecache keeps decoded-on-demand copies of remote status tables.
//
// Tables, not aliases, are the unit of remote fetch. Each table has its own
// mutex so a slow or dead table never blocks readers of another.
package tablecache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/carverauto/statusradar/pkg/catalog"
	"github.com/carverauto/statusradar/pkg/decode"
	"github.com/carverauto/statusradar/pkg/logger"
	"github.com/carverauto/statusradar/pkg/metrics"
	"github.com/carverauto/statusradar/pkg/models"
	"github.com/carverauto/statusradar/pkg/transport"
)

const defaultTTL = 5 * time.Second

// State is the lifecycle position of one table entry.
type State int

const (
	StateUninitialized State = iota
	StateFresh
	StateStale
	StateInvalid
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateFresh:
		return "fresh"
	case StateStale:
		return "stale"
	case StateInvalid:
		return "invalid"
	default:
		return "unknown"
	}
}

// Config holds cache settings.
type Config struct {
	// TTL is the maximum age of a table before a read refetches it.
	TTL models.Duration `json:"ttl,omitempty"`
}

type entry struct {
	table *models.TableDefinition

	mu        sync.Mutex
	buf       []byte // last good buffer, kept after invalidation for stale reads
	valid     bool
	invalid   bool
	fetchedAt time.Time
}

// Cache is the per-table TTL cache in front of a WindowReader.
type Cache struct {
	catalog *catalog.Catalog
	reader  transport.WindowReader
	ttl     time.Duration
	logger  logger.Logger
	metrics *metrics.CacheMetrics
	now     func() time.Time

	// built once in New, never mutated
	entries map[string]*entry

	stopped  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a cache with one entry per catalog table.
func New(cat *catalog.Catalog, reader transport.WindowReader, cfg Config, log logger.Logger, m *metrics.CacheMetrics) *Cache {
	ttl := cfg.TTL.Std()
	if ttl <= 0 {
		ttl = defaultTTL
	}

	c := &Cache{
		catalog: cat,
		reader:  reader,
		ttl:     ttl,
		logger:  log,
		metrics: m,
		now:     time.Now,
		entries: make(map[string]*entry),
		stopCh:  make(chan struct{}),
	}

	for _, t := range cat.Tables() {
		c.entries[t.Name] = &entry{table: t}
	}

	return c
}

// Catalog returns the definitions the cache serves.
func (c *Cache) Catalog() *catalog.Catalog {
	return c.catalog
}

func (c *Cache) entry(table string) (*entry, error) {
	e, ok := c.entries[table]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, table)
	}

	return e, nil
}

// load returns the table buffer, refetching it under the table lock unless
// it is fresh. With staleOK a failed fetch falls back to the last good
// buffer. The returned slice must not be modified.
func (c *Cache) load(ctx context.Context, e *entry, staleOK bool) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.valid && c.now().Sub(e.fetchedAt) <= c.ttl {
		return e.buf, nil
	}

	err := c.fetchLocked(ctx, e)
	if err == nil {
		return e.buf, nil
	}

	if staleOK && e.buf != nil {
		c.metrics.RecordStaleRead(e.table.Name)
		c.logger.Debug().Err(err).Str("table", e.table.Name).Msg("Serving stale table after fetch failure")

		return e.buf, nil
	}

	return nil, err
}

func (c *Cache) fetchLocked(ctx context.Context, e *entry) error {
	start := time.Now()

	data, err := c.reader.ReadTableWindow(ctx, e.table, 0, e.table.Size)
	c.metrics.RecordFetch(e.table.Name, time.Since(start), err)

	if err != nil {
		c.logger.Warn().Err(err).Str("table", e.table.Name).Msg("Table fetch failed")

		return err
	}

	e.buf = data
	e.valid = true
	e.invalid = false
	e.fetchedAt = c.now()

	return nil
}

func (c *Cache) aliasEntry(name string) (*models.AliasDefinition, *entry, error) {
	alias, ok := c.catalog.Alias(name)
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrUnknownAlias, name)
	}

	e, err := c.entry(alias.Table)
	if err != nil {
		return nil, nil, err
	}

	return alias, e, nil
}

// GetValue returns the decoded value of one alias. With allowFail, failures
// become ErrorValue and unknown aliases NoData instead of errors.
func (c *Cache) GetValue(ctx context.Context, name string, allowFail bool) (models.Value, error) {
	alias, e, err := c.aliasEntry(name)
	if err != nil {
		if allowFail {
			return models.NoData, nil
		}

		return nil, err
	}

	v, err := c.decodeFrom(ctx, e, alias, false)
	if err != nil {
		if allowFail {
			return models.ErrorValue, nil
		}

		return nil, err
	}

	return v, nil
}

// GetValueStale is GetValue that answers from the last good buffer when the
// refetch fails. It only errors if the table was never fetched.
func (c *Cache) GetValueStale(ctx context.Context, name string) (models.Value, error) {
	alias, e, err := c.aliasEntry(name)
	if err != nil {
		return nil, err
	}

	return c.decodeFrom(ctx, e, alias, true)
}

func (c *Cache) decodeFrom(ctx context.Context, e *entry, alias *models.AliasDefinition, staleOK bool) (models.Value, error) {
	buf, err := c.load(ctx, e, staleOK)
	if err != nil {
		return nil, err
	}

	return decode.FromTable(buf, alias)
}

// GetValues reads many aliases, fetching each involved table at most once.
// A decode failure only affects its own alias.
func (c *Cache) GetValues(ctx context.Context, names []string, allowFail bool) (models.Mapping, error) {
	out := make(models.Mapping, len(names))
	byTable := make(map[*entry][]*models.AliasDefinition)

	var order []*entry

	for _, name := range names {
		alias, e, err := c.aliasEntry(name)
		if err != nil {
			if !allowFail {
				return nil, err
			}

			out[name] = models.NoData

			continue
		}

		if _, seen := byTable[e]; !seen {
			order = append(order, e)
		}

		byTable[e] = append(byTable[e], alias)
	}

	for _, e := range order {
		if err := c.decodeInto(ctx, out, e, byTable[e], allowFail); err != nil {
			return nil, err
		}
	}

	return out, nil
}

// GetTableValues decodes every alias of a table.
func (c *Cache) GetTableValues(ctx context.Context, table string, allowFail bool) (models.Mapping, error) {
	e, err := c.entry(table)
	if err != nil {
		return nil, err
	}

	aliases := c.catalog.AliasesOf(table)
	out := make(models.Mapping, len(aliases))

	if err := c.decodeInto(ctx, out, e, aliases, allowFail); err != nil {
		return nil, err
	}

	return out, nil
}

func (c *Cache) decodeInto(ctx context.Context, out models.Mapping, e *entry, aliases []*models.AliasDefinition, allowFail bool) error {
	buf, err := c.load(ctx, e, false)
	if err != nil {
		if !allowFail {
			return err
		}

		for _, a := range aliases {
			out[a.Name] = models.ErrorValue
		}

		return nil
	}

	for _, a := range aliases {
		v, err := decode.FromTable(buf, a)
		if err != nil {
			c.logger.Debug().Err(err).Str("alias", a.Name).Msg("Alias decode failed")

			v = models.ErrorValue
		}

		out[a.Name] = v
	}

	return nil
}

// GetTable returns a copy of the raw table buffer.
func (c *Cache) GetTable(ctx context.Context, table string) ([]byte, error) {
	e, err := c.entry(table)
	if err != nil {
		return nil, err
	}

	buf, err := c.load(ctx, e, false)
	if err != nil {
		return nil, err
	}

	return append([]byte(nil), buf...), nil
}

// Invalidate forces the next read of table to refetch. A fetch already in
// progress completes first.
func (c *Cache) Invalidate(table string) error {
	e, err := c.entry(table)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.valid = false
	e.invalid = true
	e.mu.Unlock()

	c.metrics.RecordInvalidate(table)

	return nil
}

func (c *Cache) InvalidateAll() {
	for name := range c.entries {
		_ = c.Invalidate(name)
	}
}

// Refresh refetches a table regardless of its age.
func (c *Cache) Refresh(ctx context.Context, table string) error {
	e, err := c.entry(table)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return c.fetchLocked(ctx, e)
}

// State reports where a table is in its lifecycle.
func (c *Cache) State(table string) State {
	e, ok := c.entries[table]
	if !ok {
		return StateUninitialized
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return c.stateLocked(e)
}

func (c *Cache) stateLocked(e *entry) State {
	switch {
	case e.invalid:
		return StateInvalid
	case !e.valid:
		return StateUninitialized
	case c.now().Sub(e.fetchedAt) > c.ttl:
		return StateStale
	default:
		return StateFresh
	}
}

// StaleTables lists tables that were loaded once and now need a refetch,
// either by age or by invalidation, in definition order.
func (c *Cache) StaleTables() []string {
	var out []string

	for _, t := range c.catalog.Tables() {
		e := c.entries[t.Name]

		e.mu.Lock()
		state := c.stateLocked(e)
		e.mu.Unlock()

		if state == StateStale || state == StateInvalid {
			out = append(out, t.Name)
		}
	}

	return out
}

// RefreshFunc handles one stale table during RefreshLoop.
type RefreshFunc func(ctx context.Context, table string) error

// RefreshLoop runs fn for every stale table each interval until ctx is done
// or Stop is called. A nil fn refreshes the cache entry only.
func (c *Cache) RefreshLoop(ctx context.Context, interval time.Duration, fn RefreshFunc) {
	if fn == nil {
		fn = c.Refresh
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.stopCh:
			return
		case <-ticker.C:
			for _, table := range c.StaleTables() {
				if c.stopped.Load() {
					return
				}

				if err := fn(ctx, table); err != nil {
					c.logger.Debug().Err(err).Str("table", table).Msg("Background refresh failed")
				}
			}
		}
	}
}

// Stop ends RefreshLoop.
func (c *Cache) Stop() {
	c.stopOnce.Do(func() {
		c.stopped.Store(true)
		close(c.stopCh)
	})
}

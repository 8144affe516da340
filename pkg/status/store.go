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

// Package status holds the authoritative alias to value mapping of a
// process.
//
// Store merges raw values, recomputes the derived aliases that depend on
// them and republishes everything that changed on the bus, all under one
// mutex, so a concurrent Fetch sees a derived alias either fully before or
// fully after an update.
package status

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/carverauto/statusradar/pkg/bus"
	"github.com/carverauto/statusradar/pkg/logger"
	"github.com/carverauto/statusradar/pkg/metrics"
	"github.com/carverauto/statusradar/pkg/models"
)

// TableCache is the part of the table cache the update pipeline needs.
type TableCache interface {
	Invalidate(table string) error
	GetTableValues(ctx context.Context, table string, allowFail bool) (models.Mapping, error)
}

// Options wires a Store to its collaborators. Bus and Cache are optional.
type Options struct {
	Bus     bus.Bus
	Cache   TableCache
	Logger  logger.Logger
	Metrics *metrics.StoreMetrics
	// Defaults seed the store at construction and after a failed restore.
	Defaults models.Mapping
}

// Store is the status table of one process.
type Store struct {
	mu       sync.RWMutex
	values   models.Mapping
	graph    *deriveGraph
	defaults models.Mapping

	bus     bus.Bus
	cache   TableCache
	logger  logger.Logger
	metrics *metrics.StoreMetrics
	ignored *ignoreSet
	now     func() time.Time
}

// New creates a store seeded with opts.Defaults.
func New(opts Options) *Store {
	log := opts.Logger
	if log == nil {
		log = logger.NewTestLogger()
	}

	defaults := models.Mapping{}
	for k, v := range opts.Defaults {
		defaults[k] = models.Normalize(v)
	}

	s := &Store{
		graph:    newDeriveGraph(),
		defaults: defaults,
		bus:      opts.Bus,
		cache:    opts.Cache,
		logger:   log,
		metrics:  opts.Metrics,
		ignored:  newIgnoreSet(),
		now:      time.Now,
	}

	s.resetLocked()

	return s
}

// Fetch returns the current value of every requested alias. Unknown aliases
// map to NoData.
func (s *Store) Fetch(aliases []string) models.Mapping {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(models.Mapping, len(aliases))

	for _, a := range aliases {
		v, ok := s.values[a]
		if !ok {
			v = models.NoData
		}

		out[a] = v
	}

	return out
}

// Snapshot returns a copy of the whole mapping.
func (s *Store) Snapshot() models.Mapping {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.values.Clone()
}

// Aliases returns every alias held, sorted.
func (s *Store) Aliases() []string {
	s.mu.RLock()
	keys := s.values.Keys()
	s.mu.RUnlock()

	sort.Strings(keys)

	return keys
}

// Store merges values, recomputes dependent derived aliases and publishes
// each changed alias on status.<alias>. The merge always happens; the
// returned error only reports publish failures.
func (s *Store) Store(ctx context.Context, values models.Mapping) error {
	if len(values) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	updates := make(models.Mapping, len(values))

	for k, v := range values {
		v = models.Normalize(v)
		s.values[k] = v
		updates[k] = v
	}

	for _, name := range s.graph.affected(values.Keys()) {
		v := s.deriveLocked(name)
		s.values[name] = v
		updates[name] = v
	}

	s.metrics.RecordStore(len(s.values))

	return s.publishLocked(ctx, updates)
}

func (s *Store) deriveLocked(name string) models.Value {
	node := s.graph.nodes[name]

	in := make(models.Mapping, len(node.inputs))

	for _, k := range node.inputs {
		v, ok := s.values[k]
		if !ok {
			v = models.NoData
		}

		in[k] = v
	}

	v, err := node.fn(in)
	s.metrics.RecordDerive(err)

	if err != nil {
		s.logger.Debug().Err(err).Str("alias", name).Msg("Derive failed")

		return models.ErrorValue
	}

	return models.Normalize(v)
}

func (s *Store) publishLocked(ctx context.Context, updates models.Mapping) error {
	if s.bus == nil {
		return nil
	}

	keys := updates.Keys()
	sort.Strings(keys)

	var errs []error

	for _, k := range keys {
		if err := s.bus.Publish(ctx, bus.StatusTopic(k), models.Mapping{k: updates[k]}); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		err := errors.Join(errs...)
		s.logger.Warn().Err(err).Int("failed", len(errs)).Msg("Failed to publish status updates")

		return fmt.Errorf("publish: %w", err)
	}

	return nil
}

// RegisterDerived declares name as computed from inputs. Inputs the store
// has never seen are seeded with NoData and the alias is computed at once.
func (s *Store) RegisterDerived(name string, inputs []string, fn DeriveFunc) error {
	if len(inputs) == 0 {
		return fmt.Errorf("%w: %s", errNoInputs, name)
	}

	if fn == nil {
		return fmt.Errorf("%w: %s", errNilDeriveFunc, name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.graph.add(&derived{name: name, inputs: append([]string(nil), inputs...), fn: fn}); err != nil {
		return err
	}

	s.seedInputsLocked(inputs)
	s.values[name] = s.deriveLocked(name)

	return nil
}

// RegisterSpecs registers configuration-declared derived aliases.
func (s *Store) RegisterSpecs(specs []DerivedSpec) error {
	for _, spec := range specs {
		fn, err := Reducer(spec.Reducer, spec.Inputs)
		if err != nil {
			return fmt.Errorf("derived alias %s: %w", spec.Name, err)
		}

		if err := s.RegisterDerived(spec.Name, spec.Inputs, fn); err != nil {
			return err
		}
	}

	return nil
}

func (s *Store) seedInputsLocked(inputs []string) {
	for _, in := range inputs {
		if _, ok := s.values[in]; !ok {
			s.values[in] = models.NoData
		}
	}
}

// Reset drops every value and reseeds the store with its constant defaults.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.resetLocked()
}

func (s *Store) resetLocked() {
	s.values = s.defaults.Clone()
	s.rederiveLocked()
}

// rederiveLocked reseeds missing inputs and recomputes every derived alias.
func (s *Store) rederiveLocked() {
	for _, name := range s.graph.order {
		s.seedInputsLocked(s.graph.nodes[name].inputs)
	}

	for _, name := range s.graph.order {
		s.values[name] = s.deriveLocked(name)
	}
}

// Ignore drops future update events for table.
func (s *Store) Ignore(table string) {
	n := s.ignored.add(table)
	s.metrics.SetIgnored(n)
	s.logger.Info().Str("table", table).Msg("Ignoring table updates")
}

// Unignore resumes update processing for table.
func (s *Store) Unignore(table string) {
	n := s.ignored.remove(table)
	s.metrics.SetIgnored(n)
	s.logger.Info().Str("table", table).Msg("Resuming table updates")
}

// SetIgnored replaces the whole ignore set.
func (s *Store) SetIgnored(tables []string) {
	n := s.ignored.replace(tables)
	s.metrics.SetIgnored(n)
	s.logger.Info().Strs("tables", tables).Msg("Ignore set replaced")
}

// Ignored returns the ignored tables, sorted.
func (s *Store) Ignored() []string {
	return s.ignored.list()
}

func (s *Store) IsIgnored(table string) bool {
	return s.ignored.contains(table)
}

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

// Package names is the service directory: a name to endpoint-list registry
// with heartbeat liveness and periodic purge. Every registry node
// broadcasts its changes on names.<name> and applies what its peers send,
// so the nodes converge without acknowledgements or ordering guarantees.
package names

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/carverauto/statusradar/pkg/bus"
	"github.com/carverauto/statusradar/pkg/logger"
	"github.com/carverauto/statusradar/pkg/metrics"
	"github.com/carverauto/statusradar/pkg/models"
)

// ReservedName is the name every registry node registers itself under.
const ReservedName = "nameserver"

const (
	opRegister   = "register"
	opUnregister = "unregister"
)

// Options are the per-endpoint flags of a registration.
type Options struct {
	Secure bool `json:"secure"`
	// Keep exempts the endpoint from purge.
	Keep bool `json:"keep"`
}

// Registry is one registry node.
type Registry struct {
	mu      sync.RWMutex
	entries map[string][]*models.RegistryEntry

	bus           bus.Bus
	sub           bus.Subscription
	purgeDelta    time.Duration
	purgeInterval time.Duration
	self          models.Endpoint
	logger        logger.Logger
	metrics       *metrics.RegistryMetrics
	now           func() time.Time

	stopped  atomic.Bool
	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewRegistry creates a registry node. cfg must be validated. b may be nil
// for a node that does not synchronize with peers.
func NewRegistry(cfg *Config, b bus.Bus, log logger.Logger, m *metrics.RegistryMetrics) *Registry {
	return &Registry{
		entries:       make(map[string][]*models.RegistryEntry),
		bus:           b,
		purgeDelta:    cfg.PurgeDelta.Std(),
		purgeInterval: cfg.PurgeInterval.Std(),
		self:          models.Endpoint{Host: cfg.Host, Port: cfg.Port},
		logger:        log,
		metrics:       m,
		now:           time.Now,
		stopCh:        make(chan struct{}),
	}
}

func validateKey(name, host string, port int) error {
	switch {
	case name == "":
		return errEmptyName
	case host == "":
		return errEmptyHost
	case port <= 0 || port > 65535:
		return fmt.Errorf("%w: %d", errBadPort, port)
	}

	return nil
}

// Register adds the endpoint or, when it already exists, refreshes its
// heartbeat and flags. created reports which of the two happened. The
// change is broadcast to peers; broadcast failures are logged only.
func (r *Registry) Register(ctx context.Context, name, host string, port int, opts Options) (bool, error) {
	if err := validateKey(name, host, port); err != nil {
		return false, err
	}

	entry := models.RegistryEntry{
		Name:          name,
		Host:          host,
		Port:          port,
		Secure:        opts.Secure,
		Keep:          opts.Keep,
		LastHeartbeat: r.now().UTC(),
	}

	created, applied := r.upsert(&entry)
	r.metrics.RecordHeartbeat("local")
	r.broadcast(ctx, opRegister, &applied)

	return created, nil
}

// Ping is Register under the name used for heartbeats.
func (r *Registry) Ping(ctx context.Context, name, host string, port int, opts Options) (bool, error) {
	return r.Register(ctx, name, host, port, opts)
}

// upsert merges e and returns the stored result. The heartbeat of an
// existing entry never moves backwards.
func (r *Registry) upsert(e *models.RegistryEntry) (bool, models.RegistryEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.entries[e.Name]

	for _, cur := range list {
		if cur.Key() != e.Key() {
			continue
		}

		cur.Secure = e.Secure
		cur.Keep = e.Keep

		if e.LastHeartbeat.After(cur.LastHeartbeat) {
			cur.LastHeartbeat = e.LastHeartbeat
		}

		return false, *cur
	}

	stored := *e
	r.entries[e.Name] = append(list, &stored)
	r.updateSizeLocked()

	return true, stored
}

// Unregister removes one endpoint. The name disappears with its last
// endpoint.
func (r *Registry) Unregister(ctx context.Context, name, host string, port int) bool {
	removed := r.remove(name, models.EndpointKey{Host: host, Port: port})
	if removed {
		r.broadcast(ctx, opUnregister, &models.RegistryEntry{
			Name:          name,
			Host:          host,
			Port:          port,
			LastHeartbeat: r.now().UTC(),
		})
	}

	return removed
}

func (r *Registry) remove(name string, key models.EndpointKey) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	list := r.entries[name]

	for i, cur := range list {
		if cur.Key() != key {
			continue
		}

		list = append(list[:i], list[i+1:]...)

		if len(list) == 0 {
			delete(r.entries, name)
		} else {
			r.entries[name] = list
		}

		r.updateSizeLocked()

		return true
	}

	return false
}

// GetInfo returns the endpoints registered for name.
func (r *Registry) GetInfo(name string) []models.Endpoint {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := r.entries[name]
	out := make([]models.Endpoint, 0, len(list))

	for _, e := range list {
		out = append(out, e.Endpoint())
	}

	return out
}

// GetNames returns every registered name, sorted.
func (r *Registry) GetNames() []string {
	r.mu.RLock()
	out := make([]string, 0, len(r.entries))

	for name := range r.entries {
		out = append(out, name)
	}
	r.mu.RUnlock()

	sort.Strings(out)

	return out
}

// GetNamesOnHost returns the names with at least one endpoint on host,
// sorted.
func (r *Registry) GetNamesOnHost(host string) []string {
	r.mu.RLock()

	var out []string

	for name, list := range r.entries {
		for _, e := range list {
			if e.Host == host {
				out = append(out, name)

				break
			}
		}
	}
	r.mu.RUnlock()

	sort.Strings(out)

	return out
}

// Entries returns a copy of every entry, ordered by name, host and port.
func (r *Registry) Entries() []models.RegistryEntry {
	r.mu.RLock()

	var out []models.RegistryEntry

	for _, list := range r.entries {
		for _, e := range list {
			out = append(out, *e)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}

		if out[i].Host != out[j].Host {
			return out[i].Host < out[j].Host
		}

		return out[i].Port < out[j].Port
	})

	return out
}

// Purge removes every endpoint without a heartbeat, and every endpoint
// not marked keep whose heartbeat is PurgeDelta or more old. It returns the
// number of endpoints removed.
func (r *Registry) Purge() int {
	now := r.now()

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0

	for name, list := range r.entries {
		kept := list[:0]

		for _, e := range list {
			switch {
			case e.LastHeartbeat.IsZero():
				err := &RegistryError{Name: name, Host: e.Host, Port: e.Port, Err: errMissingHeartbeat}
				r.logger.Debug().Err(err).Msg("Purging malformed registry entry")
			case !e.Keep && e.Age(now) >= r.purgeDelta:
				r.logger.Debug().
					Str("name", name).
					Str("addr", e.Endpoint().Addr()).
					Dur("age", e.Age(now)).
					Msg("Purging silent registry entry")
			default:
				kept = append(kept, e)

				continue
			}

			removed++
		}

		if len(kept) == 0 {
			delete(r.entries, name)
		} else {
			r.entries[name] = kept
		}
	}

	if removed > 0 {
		r.updateSizeLocked()
	}

	r.metrics.RecordPurge(removed)

	return removed
}

func (r *Registry) updateSizeLocked() {
	if r.metrics == nil {
		return
	}

	endpoints := 0
	for _, list := range r.entries {
		endpoints += len(list)
	}

	r.metrics.SetSize(len(r.entries), endpoints)
}

func (r *Registry) broadcast(ctx context.Context, op string, e *models.RegistryEntry) {
	if r.bus == nil {
		return
	}

	values := models.Mapping{
		"op":        op,
		"host":      e.Host,
		"port":      int64(e.Port),
		"secure":    e.Secure,
		"keep":      e.Keep,
		"heartbeat": e.LastHeartbeat.UTC().Format(time.RFC3339Nano),
	}

	if err := r.bus.Publish(ctx, bus.NamesTopic(e.Name), values); err != nil {
		r.logger.Warn().Err(err).Str("name", e.Name).Str("op", op).Msg("Failed to broadcast registry update")
	}
}

// apply merges an update broadcast by a peer. Updates this node sent are
// skipped.
func (r *Registry) apply(_ context.Context, msg *bus.Message) {
	if msg.Origin == r.bus.Origin() {
		return
	}

	name := bus.TopicSuffix(msg.Topic, bus.PrefixNames)

	op, entry, err := parseUpdate(name, msg.Values)
	if err != nil {
		var regErr *RegistryError
		if errors.As(err, &regErr) && errors.Is(err, errMissingHeartbeat) {
			// a heartbeat-less entry is dead on arrival
			r.remove(name, models.EndpointKey{Host: regErr.Host, Port: regErr.Port})
		}

		r.logger.Debug().Err(err).Str("origin", msg.Origin).Msg("Dropping registry update")

		return
	}

	switch op {
	case opRegister:
		r.upsert(entry)
		r.metrics.RecordHeartbeat("remote")
	case opUnregister:
		r.remove(name, entry.Key())
	}
}

func parseUpdate(name string, values models.Mapping) (string, *models.RegistryEntry, error) {
	op, _ := values["op"].(string)
	host, _ := values["host"].(string)

	var port int

	switch p := values["port"].(type) {
	case int64:
		port = int(p)
	case uint64:
		port = int(p) //nolint:gosec // range checked below
	case float64:
		port = int(p)
	}

	bad := func(err error) (string, *models.RegistryEntry, error) {
		return "", nil, &RegistryError{Name: name, Host: host, Port: port, Err: err}
	}

	if err := validateKey(name, host, port); err != nil {
		return bad(fmt.Errorf("%w: %w", errMalformedUpdate, err))
	}

	if op != opRegister && op != opUnregister {
		return bad(fmt.Errorf("%w: %q", errUnknownOp, op))
	}

	entry := &models.RegistryEntry{Name: name, Host: host, Port: port}
	entry.Secure, _ = values["secure"].(bool)
	entry.Keep, _ = values["keep"].(bool)

	if ts, ok := values["heartbeat"].(string); ok {
		if t, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			entry.LastHeartbeat = t
		}
	}

	if op == opRegister && entry.LastHeartbeat.IsZero() {
		return bad(errMissingHeartbeat)
	}

	return op, entry, nil
}

// Start joins the peer group and launches Run.
func (r *Registry) Start(ctx context.Context) error {
	if r.bus != nil {
		sub, err := r.bus.Subscribe(bus.PrefixNames, r.apply)
		if err != nil {
			return fmt.Errorf("failed to subscribe to registry updates: %w", err)
		}

		r.sub = sub
	}

	r.wg.Add(1)

	go func() {
		defer r.wg.Done()

		r.Run(context.WithoutCancel(ctx))
	}()

	return nil
}

// Run registers this node under ReservedName, then purges and re-pings
// itself every PurgeInterval until ctx is done or Stop is called.
func (r *Registry) Run(ctx context.Context) {
	if _, err := r.Register(ctx, ReservedName, r.self.Host, r.self.Port, Options{}); err != nil {
		r.logger.Error().Err(err).Msg("Failed to self-register")
	}

	r.logger.Info().
		Str("self", r.self.Addr()).
		Dur("purge_delta", r.purgeDelta).
		Dur("purge_interval", r.purgeInterval).
		Msg("Registry running")

	ticker := time.NewTicker(r.purgeInterval)
	defer ticker.Stop()

	for !r.stopped.Load() {
		select {
		case <-ctx.Done():
			return
		case <-r.stopCh:
			return
		case <-ticker.C:
			if n := r.Purge(); n > 0 {
				r.logger.Info().Int("removed", n).Msg("Purged registry entries")
			}

			_, _ = r.Ping(ctx, ReservedName, r.self.Host, r.self.Port, Options{})
		}
	}
}

// Stop ends Run and leaves the peer group.
func (r *Registry) Stop(_ context.Context) error {
	r.stopOnce.Do(func() {
		r.stopped.Store(true)
		close(r.stopCh)
	})

	var err error
	if r.sub != nil {
		err = r.sub.Unsubscribe()
	}

	r.wg.Wait()

	r.logger.Info().Msg("Registry stopped")

	return err
}

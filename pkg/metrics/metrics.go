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

// Package metrics holds the Prometheus collectors exported by statusradar
// services. Every metric set is nil-safe so components can run without a
// registry.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "statusradar"

// Registry owns the collectors of one process.
type Registry struct {
	reg *prometheus.Registry
}

// NewRegistry creates a registry preloaded with the Go runtime and process
// collectors.
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return &Registry{reg: reg}
}

// Gatherer exposes the registry to the /metrics handler.
func (r *Registry) Gatherer() prometheus.Gatherer {
	if r == nil {
		return nil
	}

	return r.reg
}

func (r *Registry) register(cs ...prometheus.Collector) error {
	for _, c := range cs {
		if err := r.reg.Register(c); err != nil {
			return err
		}
	}

	return nil
}

func result(err error) string {
	if err != nil {
		return "error"
	}

	return "ok"
}

// CacheMetrics tracks remote table fetches.
type CacheMetrics struct {
	fetches       *prometheus.CounterVec
	fetchDuration *prometheus.HistogramVec
	invalidations *prometheus.CounterVec
	staleReads    *prometheus.CounterVec
}

// NewCacheMetrics registers the table cache collectors. A nil registry
// disables them.
func NewCacheMetrics(r *Registry) (*CacheMetrics, error) {
	if r == nil {
		return nil, nil
	}

	m := &CacheMetrics{
		fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tablecache",
			Name:      "fetches_total",
			Help:      "Remote table fetches by table and result",
		}, []string{"table", "result"}),
		fetchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "tablecache",
			Name:      "fetch_duration_seconds",
			Help:      "Remote table fetch latency",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}, []string{"table"}),
		invalidations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tablecache",
			Name:      "invalidations_total",
			Help:      "Explicit table invalidations",
		}, []string{"table"}),
		staleReads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "tablecache",
			Name:      "stale_reads_total",
			Help:      "Reads answered from the last good buffer after a failed fetch",
		}, []string{"table"}),
	}

	if err := r.register(m.fetches, m.fetchDuration, m.invalidations, m.staleReads); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *CacheMetrics) RecordFetch(table string, d time.Duration, err error) {
	if m == nil {
		return
	}

	m.fetches.WithLabelValues(table, result(err)).Inc()
	m.fetchDuration.WithLabelValues(table).Observe(d.Seconds())
}

func (m *CacheMetrics) RecordInvalidate(table string) {
	if m == nil {
		return
	}

	m.invalidations.WithLabelValues(table).Inc()
}

func (m *CacheMetrics) RecordStaleRead(table string) {
	if m == nil {
		return
	}

	m.staleReads.WithLabelValues(table).Inc()
}

// StoreMetrics tracks the status store and its update pipeline.
type StoreMetrics struct {
	stores        prometheus.Counter
	aliases       prometheus.Gauge
	derived       *prometheus.CounterVec
	tableUpdates  *prometheus.CounterVec
	ignoredTables prometheus.Gauge
	checkpoints   *prometheus.CounterVec
}

// NewStoreMetrics registers the status store collectors. A nil registry
// disables them.
func NewStoreMetrics(r *Registry) (*StoreMetrics, error) {
	if r == nil {
		return nil, nil
	}

	m := &StoreMetrics{
		stores: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "status",
			Name:      "stores_total",
			Help:      "Store calls applied",
		}),
		aliases: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "status",
			Name:      "aliases",
			Help:      "Aliases currently held by the store",
		}),
		derived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "status",
			Name:      "derive_total",
			Help:      "Derived alias recomputations by result",
		}, []string{"result"}),
		tableUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "status",
			Name:      "table_updates_total",
			Help:      "Table update pipeline runs by table and result",
		}, []string{"table", "result"}),
		ignoredTables: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "status",
			Name:      "ignored_tables",
			Help:      "Tables whose update events are dropped",
		}),
		checkpoints: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "status",
			Name:      "checkpoints_total",
			Help:      "Snapshot writes by result",
		}, []string{"result"}),
	}

	if err := r.register(m.stores, m.aliases, m.derived, m.tableUpdates, m.ignoredTables, m.checkpoints); err != nil {
		return nil, err
	}

	return m, nil
}

func (m *StoreMetrics) RecordStore(aliases int) {
	if m == nil {
		return
	}

	m.stores.Inc()
	m.aliases.Set(float64(aliases))
}

func (m *StoreMetrics) RecordDerive(err error) {
	if m == nil {
		return
	}

	m.derived.WithLabelValues(result(err)).Inc()
}

func (m *StoreMetrics) RecordTableUpdate(table string, err error) {
	if m == nil {
		return
	}

	m.tableUpdates.WithLabelValues(table, result(err)).Inc()
}

func (m *StoreMetrics) SetIgnored(n int) {
	if m == nil {
		return
	}

	m.ignoredTables.Set(float64(n))
}

func (m *StoreMetrics) RecordCheckpoint(err error) {
	if m == nil {
		return
	}

	m.checkpoints.WithLabelValues(result(err)).Inc()
}

// RegistryMetrics tracks the name registry.
type RegistryMetrics struct {
	names      prometheus.Gauge
	endpoints  prometheus.Gauge
	heartbeats *prometheus.CounterVec
	purged     prometheus.Counter
}

// NewRegistryMetrics registers the name registry collectors. A nil registry
// disables them.
func NewRegistryMetrics(r *Registry) (*RegistryMetrics, error) {
	if r == nil {
		return nil, nil
	}

	m := &RegistryMetrics{
		names: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "names",
			Name:      "names",
			Help:      "Registered service names",
		}),
		endpoints: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "names",
			Name:      "endpoints",
			Help:      "Registered endpoints across all names",
		}),
		heartbeats: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "names",
			Name:      "heartbeats_total",
			Help:      "Register and ping calls by origin",
		}, []string{"origin"}),
		purged: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "names",
			Name:      "purged_total",
			Help:      "Entries removed by the purge loop",
		}),
	}

	if err := r.register(m.names, m.endpoints, m.heartbeats, m.purged); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordHeartbeat counts a register/ping; origin is "local" or "remote".
func (m *RegistryMetrics) RecordHeartbeat(origin string) {
	if m == nil {
		return
	}

	m.heartbeats.WithLabelValues(origin).Inc()
}

func (m *RegistryMetrics) RecordPurge(n int) {
	if m == nil {
		return
	}

	m.purged.Add(float64(n))
}

func (m *RegistryMetrics) SetSize(names, endpoints int) {
	if m == nil {
		return
	}

	m.names.Set(float64(names))
	m.endpoints.Set(float64(endpoints))
}

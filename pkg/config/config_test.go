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

package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/statusradar/pkg/logger"
	"github.com/carverauto/statusradar/pkg/models"
)

var errTooFewWorkers = errors.New("workers must be positive")

type fakeKVStore struct {
	values map[string][]byte
	err    error
}

func (f *fakeKVStore) Get(_ context.Context, key string) ([]byte, bool, error) {
	if f.err != nil {
		return nil, false, f.err
	}

	val, ok := f.values[key]

	return val, ok, nil
}

func (*fakeKVStore) Put(context.Context, string, []byte, time.Duration) error { return nil }
func (*fakeKVStore) Delete(context.Context, string) error                     { return nil }
func (*fakeKVStore) Watch(context.Context, string) (<-chan []byte, error)     { return nil, nil }
func (*fakeKVStore) Close() error                                             { return nil }

type cacheSection struct {
	TTL    models.Duration `json:"ttl"`
	Tables []string        `json:"tables"`
}

type serviceConfig struct {
	NATSURL  string                 `json:"nats_url"`
	Workers  int                    `json:"workers"`
	Debug    bool                   `json:"debug"`
	Cache    cacheSection           `json:"cache"`
	Security *models.SecurityConfig `json:"security"`
}

func (c *serviceConfig) Validate() error {
	if c.Workers <= 0 {
		return errTooFewWorkers
	}

	return nil
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "statusd.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

func TestLoadFromFile(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "")

	path := writeConfig(t, `{
		"nats_url": "nats://localhost:4222",
		"workers": 4,
		"cache": {"ttl": "2s"},
		"security": {"mode": "mtls", "cert_dir": "/certs", "tls": {"cert_file": "c.pem", "key_file": "k.pem", "ca_file": "ca.pem"}}
	}`)

	var cfg serviceConfig

	require.NoError(t, NewConfig(logger.NewTestLogger()).LoadAndValidate(context.Background(), path, &cfg))

	assert.Equal(t, "nats://localhost:4222", cfg.NATSURL)
	assert.Equal(t, models.Duration(2*time.Second), cfg.Cache.TTL)
	assert.Equal(t, "/certs/c.pem", cfg.Security.TLS.CertFile)
	assert.Equal(t, "/certs/ca.pem", cfg.Security.TLS.ClientCAFile)
}

func TestLoadFromYAMLFile(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "")

	path := filepath.Join(t.TempDir(), "statusd.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
nats_url: nats://localhost:4222
workers: 2
cache:
  ttl: 500ms
  tables: [T1, T2]
`), 0o600))

	var cfg serviceConfig

	require.NoError(t, NewConfig(nil).LoadAndValidate(context.Background(), path, &cfg))

	assert.Equal(t, 2, cfg.Workers)
	assert.Equal(t, models.Duration(500*time.Millisecond), cfg.Cache.TTL)
	assert.Equal(t, []string{"T1", "T2"}, cfg.Cache.Tables)
}

func TestLoadRunsValidator(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "file")

	path := writeConfig(t, `{"workers": 0}`)

	var cfg serviceConfig

	err := NewConfig(nil).LoadAndValidate(context.Background(), path, &cfg)
	require.ErrorIs(t, err, errTooFewWorkers)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "env")
	t.Setenv("STATUSRADAR_NATS_URL", "nats://bus:4222")
	t.Setenv("STATUSRADAR_WORKERS", "8")
	t.Setenv("STATUSRADAR_DEBUG", "true")
	t.Setenv("STATUSRADAR_CACHE_TTL", "750ms")
	t.Setenv("STATUSRADAR_CACHE_TABLES", "TSCS, TSCL")
	t.Setenv("STATUSRADAR_SECURITY_MODE", "none")

	var cfg serviceConfig

	require.NoError(t, NewConfig(logger.NewTestLogger()).LoadAndValidate(context.Background(), "ignored", &cfg))

	assert.Equal(t, "nats://bus:4222", cfg.NATSURL)
	assert.Equal(t, 8, cfg.Workers)
	assert.True(t, cfg.Debug)
	assert.Equal(t, models.Duration(750*time.Millisecond), cfg.Cache.TTL)
	assert.Equal(t, []string{"TSCS", "TSCL"}, cfg.Cache.Tables)
	require.NotNil(t, cfg.Security)
	assert.Equal(t, models.SecurityModeNone, cfg.Security.Mode)
}

func TestLoadFromEnvJSON(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "env")
	t.Setenv("CONFIG_ENV_PREFIX", "SR_")
	t.Setenv("SR_CONFIG_JSON", `{"workers": 3, "cache": {"ttl": 1}}`)

	var cfg serviceConfig

	require.NoError(t, NewConfig(logger.NewTestLogger()).LoadAndValidate(context.Background(), "", &cfg))
	assert.Equal(t, 3, cfg.Workers)
	assert.Equal(t, models.Duration(time.Second), cfg.Cache.TTL)
}

func TestLoadFromKV(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "kv")

	path := writeConfig(t, `{"workers": 1, "nats_url": "from-file"}`)

	t.Run("store not set", func(t *testing.T) {
		var cfg serviceConfig
		require.ErrorIs(t, NewConfig(nil).LoadAndValidate(context.Background(), path, &cfg), errKVStoreNotSet)
	})

	t.Run("found in kv", func(t *testing.T) {
		c := NewConfig(logger.NewTestLogger())
		c.SetKVStore(&fakeKVStore{values: map[string][]byte{
			"config/statusd.json": []byte(`{"workers": 2, "nats_url": "from-kv"}`),
		}})

		var cfg serviceConfig
		require.NoError(t, c.LoadAndValidate(context.Background(), path, &cfg))
		assert.Equal(t, "from-kv", cfg.NATSURL)
	})

	t.Run("falls back to file", func(t *testing.T) {
		c := NewConfig(logger.NewTestLogger())
		c.SetKVStore(&fakeKVStore{values: map[string][]byte{}})

		var cfg serviceConfig
		require.NoError(t, c.LoadAndValidate(context.Background(), path, &cfg))
		assert.Equal(t, "from-file", cfg.NATSURL)
	})

	t.Run("both fail", func(t *testing.T) {
		c := NewConfig(logger.NewTestLogger())
		c.SetKVStore(&fakeKVStore{err: errors.New("bucket gone")})

		var cfg serviceConfig
		err := c.LoadAndValidate(context.Background(), filepath.Join(t.TempDir(), "missing.json"), &cfg)
		require.ErrorIs(t, err, errLoadConfigFailed)
	})
}

func TestInvalidSource(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "consul")

	var cfg serviceConfig
	require.ErrorIs(t, NewConfig(nil).LoadAndValidate(context.Background(), "x", &cfg), errInvalidConfigSource)
}

func TestSourceIsKV(t *testing.T) {
	t.Setenv("CONFIG_SOURCE", "KV")
	assert.True(t, SourceIsKV())

	t.Setenv("CONFIG_SOURCE", "file")
	assert.False(t, SourceIsKV())
}

func TestKeyFor(t *testing.T) {
	assert.Equal(t, "config/nameserver.json", KeyFor("/etc/statusradar/nameserver.json"))
}

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
	"fmt"
	"os"
	"time"

	"github.com/carverauto/statusradar/pkg/kv"
	"github.com/carverauto/statusradar/pkg/logger"
	"github.com/carverauto/statusradar/pkg/models"
	"github.com/carverauto/statusradar/pkg/tablecache"
	"github.com/carverauto/statusradar/pkg/transport"
)

const (
	defaultWorkers            = 8
	defaultRefreshInterval    = time.Second
	defaultCheckpointInterval = time.Minute
	defaultServiceName        = "statusd"
)

// CheckpointConfig controls periodic snapshots. Path and KVKey may both be
// set; restore prefers the file.
type CheckpointConfig struct {
	Path     string          `json:"path,omitempty"`
	KVKey    string          `json:"kv_key,omitempty"`
	Interval models.Duration `json:"interval,omitempty"`
}

// Enabled reports whether any snapshot target is configured.
func (c CheckpointConfig) Enabled() bool {
	return c.Path != "" || c.KVKey != ""
}

// AdvertiseConfig registers the service with the name registry.
type AdvertiseConfig struct {
	Name   string `json:"name,omitempty"`
	Host   string `json:"host,omitempty"`
	Port   int    `json:"port,omitempty"`
	Secure bool   `json:"secure,omitempty"`
}

func (a *AdvertiseConfig) setDefaults() {
	if a.Name == "" {
		a.Name = defaultServiceName
	}

	if a.Host == "" {
		if host, err := os.Hostname(); err == nil {
			a.Host = host
		}
	}
}

// Config is the statusd service configuration.
type Config struct {
	Definitions     string                    `json:"definitions"`
	NATSURL         string                    `json:"nats_url"`
	Security        *models.SecurityConfig    `json:"security,omitempty"`
	ListenAddr      string                    `json:"listen_addr,omitempty"`
	Workers         int                       `json:"workers,omitempty"`
	RefreshInterval models.Duration           `json:"refresh_interval,omitempty"`
	Cache           tablecache.Config         `json:"cache"`
	Transport       transport.Config          `json:"transport"`
	Checkpoint      CheckpointConfig          `json:"checkpoint"`
	IgnoreKey       string                    `json:"ignore_key,omitempty"`
	KV              *kv.Config                `json:"kv,omitempty"`
	Derived         []DerivedSpec             `json:"derived,omitempty"`
	Overrides       map[string]models.TypeTag `json:"overrides,omitempty"`
	Defaults        map[string]any            `json:"defaults,omitempty"`
	Advertise       *AdvertiseConfig          `json:"advertise,omitempty"`
	Logging         *logger.Config            `json:"logging,omitempty"`
}

// Validate checks the configuration and fills defaults.
func (c *Config) Validate() error {
	if c.NATSURL == "" {
		return errNATSURLRequired
	}

	if c.Definitions == "" {
		return errDefsRequired
	}

	if c.Workers < 0 {
		return errBadWorkers
	}

	if c.Workers == 0 {
		c.Workers = defaultWorkers
	}

	if c.RefreshInterval <= 0 {
		c.RefreshInterval = models.Duration(defaultRefreshInterval)
	}

	if c.Checkpoint.Enabled() && c.Checkpoint.Interval <= 0 {
		c.Checkpoint.Interval = models.Duration(defaultCheckpointInterval)
	}

	if c.Security != nil {
		switch c.Security.Mode {
		case "", models.SecurityModeNone, models.SecurityModeMTLS:
		default:
			return fmt.Errorf("%w: %s", errBadSecurityMode, c.Security.Mode)
		}
	}

	if (c.Checkpoint.KVKey != "" || c.IgnoreKey != "") && c.KV == nil {
		c.KV = &kv.Config{}
	}

	if c.KV != nil {
		if err := c.KV.Validate(); err != nil {
			return err
		}
	}

	for _, d := range c.Derived {
		if _, err := Reducer(d.Reducer, d.Inputs); err != nil {
			return fmt.Errorf("derived alias %s: %w", d.Name, err)
		}

		if len(d.Inputs) == 0 {
			return fmt.Errorf("%w: %s", errNoInputs, d.Name)
		}
	}

	if c.Advertise != nil {
		c.Advertise.setDefaults()
	}

	c.Transport.SetDefaults()

	return nil
}

// ForcedTypes converts the overrides section into catalog overrides.
func (c *Config) ForcedTypes() map[string]models.Override {
	out := make(map[string]models.Override, len(c.Overrides))
	for alias, tag := range c.Overrides {
		out[alias] = models.ForcedType{Type: tag}
	}

	return out
}

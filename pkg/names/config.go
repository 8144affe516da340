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

package names

import (
	"fmt"
	"os"
	"time"

	"github.com/carverauto/statusradar/pkg/logger"
	"github.com/carverauto/statusradar/pkg/models"
)

const (
	defaultPurgeDelta    = 30 * time.Second
	defaultPurgeInterval = 10 * time.Second
	defaultWorkers       = 8
	defaultPort          = 7290
)

// Config is the nameserver configuration.
type Config struct {
	NATSURL       string                 `json:"nats_url"`
	Security      *models.SecurityConfig `json:"security,omitempty"`
	ListenAddr    string                 `json:"listen_addr,omitempty"`
	PurgeDelta    models.Duration        `json:"purge_delta,omitempty"`
	PurgeInterval models.Duration        `json:"purge_interval,omitempty"`
	Workers       int                    `json:"workers,omitempty"`
	// Host and Port are what the registry advertises for itself under
	// ReservedName.
	Host    string         `json:"host,omitempty"`
	Port    int            `json:"port,omitempty"`
	Logging *logger.Config `json:"logging,omitempty"`
}

// Validate checks the configuration and fills defaults.
func (c *Config) Validate() error {
	if c.NATSURL == "" {
		return errNATSURLRequired
	}

	if err := c.setDefaults(); err != nil {
		return err
	}

	if c.Security != nil {
		switch c.Security.Mode {
		case "", models.SecurityModeNone, models.SecurityModeMTLS:
		default:
			return fmt.Errorf("%w: %s", errBadSecurityMode, c.Security.Mode)
		}
	}

	return nil
}

func (c *Config) setDefaults() error {
	if c.PurgeDelta < 0 {
		return errBadPurgeDelta
	}

	if c.PurgeInterval < 0 {
		return errBadPurgeInterval
	}

	if c.PurgeDelta == 0 {
		c.PurgeDelta = models.Duration(defaultPurgeDelta)
	}

	if c.PurgeInterval == 0 {
		c.PurgeInterval = models.Duration(defaultPurgeInterval)
	}

	if c.Workers <= 0 {
		c.Workers = defaultWorkers
	}

	if c.Host == "" {
		host, err := os.Hostname()
		if err != nil {
			host = "localhost"
		}

		c.Host = host
	}

	if c.Port == 0 {
		c.Port = defaultPort
	}

	return nil
}

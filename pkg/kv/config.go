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
	"github.com/carverauto/statusradar/pkg/models"
)

const (
	defaultBucket = "statusradar"
	maxHistory    = 64
)

// Config describes the JetStream bucket.
type Config struct {
	Bucket   string          `json:"bucket"`
	History  int             `json:"history,omitempty"`
	TTL      models.Duration `json:"ttl,omitempty"`
	MaxBytes int64           `json:"max_bytes,omitempty"`
}

// Validate checks the bucket settings and fills defaults.
func (c *Config) Validate() error {
	if c.Bucket == "" {
		c.Bucket = defaultBucket
	}

	if c.History == 0 {
		c.History = 1
	}

	if c.History < 0 || c.History > maxHistory {
		return errBucketHistoryTooLarge
	}

	if c.MaxBytes < 0 {
		return errNegativeMaxBytes
	}

	if c.TTL < 0 {
		c.TTL = 0
	}

	return nil
}

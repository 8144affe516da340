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
	"errors"
	"fmt"
)

var (
	errEmptyName        = errors.New("service name is empty")
	errEmptyHost        = errors.New("host is empty")
	errBadPort          = errors.New("port out of range")
	errMissingHeartbeat = errors.New("entry has no heartbeat")
	errMalformedUpdate  = errors.New("malformed registry update")
	errUnknownOp        = errors.New("unknown registry operation")
	errNATSURLRequired  = errors.New("nats_url is required")
	errBadPurgeDelta    = errors.New("purge_delta must be positive")
	errBadPurgeInterval = errors.New("purge_interval must be positive")
	errBadSecurityMode  = errors.New("unsupported security mode")
	errBadAdvertise     = errors.New("advertised endpoint is incomplete")

	// ErrNameNotFound is returned by Client.Lookup for names without
	// endpoints.
	ErrNameNotFound = errors.New("service name not registered")
)

// RegistryError describes a registry entry or bus update that cannot be
// trusted. It is logged and acted on (dropped or purged), never returned to
// callers of the registry.
type RegistryError struct {
	Name string
	Host string
	Port int
	Err  error
}

func (e *RegistryError) Error() string {
	return fmt.Sprintf("registry entry %s at %s:%d: %v", e.Name, e.Host, e.Port, e.Err)
}

func (e *RegistryError) Unwrap() error {
	return e.Err
}

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

package models

import (
	"net"
	"strconv"
	"time"
)

// Endpoint is one place a named service can be reached.
type Endpoint struct {
	Host   string `json:"host"`
	Port   int    `json:"port"`
	Secure bool   `json:"secure"`
}

// Addr returns host:port.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// EndpointKey identifies an entry within a name's endpoint list.
type EndpointKey struct {
	Host string
	Port int
}

// RegistryEntry is a single registration plus its liveness bookkeeping.
type RegistryEntry struct {
	Name          string    `json:"name"`
	Host          string    `json:"host"`
	Port          int       `json:"port"`
	Secure        bool      `json:"secure"`
	Keep          bool      `json:"keep"`
	LastHeartbeat time.Time `json:"last_heartbeat"`
}

func (e *RegistryEntry) Key() EndpointKey {
	return EndpointKey{Host: e.Host, Port: e.Port}
}

func (e *RegistryEntry) Endpoint() Endpoint {
	return Endpoint{Host: e.Host, Port: e.Port, Secure: e.Secure}
}

// Age is the heartbeat silence as of now.
func (e *RegistryEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.LastHeartbeat)
}

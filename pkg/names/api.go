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
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/micro"

	"github.com/carverauto/statusradar/pkg/logger"
	"github.com/carverauto/statusradar/pkg/models"
	"github.com/carverauto/statusradar/pkg/natsutil"
	"github.com/carverauto/statusradar/pkg/version"
)

const (
	apiServiceName = "nameserver"
	// APIGroup prefixes every request subject, e.g. namesvc.register.
	APIGroup = "namesvc"
)

// RegisterRequest is a registration or heartbeat.
type RegisterRequest struct {
	Name string `json:"name"`
	Host string `json:"host"`
	Port int    `json:"port"`
	Options
}

// RegisterResponse reports whether the endpoint was new.
type RegisterResponse struct {
	Created bool `json:"created"`
}

// EndpointRequest names one endpoint of a service.
type EndpointRequest struct {
	Name string `json:"name"`
	Host string `json:"host"`
	Port int    `json:"port"`
}

// UnregisterResponse reports whether the endpoint existed.
type UnregisterResponse struct {
	Removed bool `json:"removed"`
}

// InfoRequest asks for the endpoints of a name.
type InfoRequest struct {
	Name string `json:"name"`
}

// InfoResponse lists the endpoints of a name.
type InfoResponse struct {
	Name      string            `json:"name"`
	Endpoints []models.Endpoint `json:"endpoints"`
}

// HostRequest asks for the names present on a host.
type HostRequest struct {
	Host string `json:"host"`
}

// NamesResponse lists service names.
type NamesResponse struct {
	Names []string `json:"names"`
}

// API serves the registry over NATS request/reply.
type API struct {
	nc       *nats.Conn
	registry *Registry
	workers  int
	logger   logger.Logger

	endpoints *natsutil.Endpoints
}

// NewAPI creates the request API. It is registered on Start.
func NewAPI(nc *nats.Conn, registry *Registry, workers int, log logger.Logger) *API {
	return &API{nc: nc, registry: registry, workers: workers, logger: log}
}

func (a *API) Start(_ context.Context) error {
	eps, err := natsutil.NewEndpoints(a.nc, micro.Config{
		Name:        apiServiceName,
		Version:     version.Semver(),
		Description: "service name registry",
	}, APIGroup, a.workers, a.logger)
	if err != nil {
		return err
	}

	handlers := map[string]natsutil.RequestFunc{
		"register":   a.register,
		"unregister": a.unregister,
		"info":       a.info,
		"host":       a.host,
		"names":      a.names,
	}

	for name, fn := range handlers {
		if err := eps.Handle(name, fn); err != nil {
			_ = eps.Stop()

			return fmt.Errorf("failed to add endpoint %s: %w", name, err)
		}
	}

	a.endpoints = eps

	a.logger.Info().Str("group", APIGroup).Msg("Registry request API registered")

	return nil
}

func (a *API) Stop(_ context.Context) error {
	if a.endpoints == nil {
		return nil
	}

	return a.endpoints.Stop()
}

func (a *API) register(ctx context.Context, data []byte) (any, error) {
	var req RegisterRequest

	if err := natsutil.DecodeRequest(data, &req); err != nil {
		return nil, err
	}

	created, err := a.registry.Register(ctx, req.Name, req.Host, req.Port, req.Options)
	if err != nil {
		return nil, natsutil.BadRequest(err)
	}

	return RegisterResponse{Created: created}, nil
}

func (a *API) unregister(ctx context.Context, data []byte) (any, error) {
	var req EndpointRequest

	if err := natsutil.DecodeRequest(data, &req); err != nil {
		return nil, err
	}

	if err := validateKey(req.Name, req.Host, req.Port); err != nil {
		return nil, natsutil.BadRequest(err)
	}

	return UnregisterResponse{Removed: a.registry.Unregister(ctx, req.Name, req.Host, req.Port)}, nil
}

func (a *API) info(_ context.Context, data []byte) (any, error) {
	var req InfoRequest

	if err := natsutil.DecodeRequest(data, &req); err != nil {
		return nil, err
	}

	if req.Name == "" {
		return nil, natsutil.BadRequest(errEmptyName)
	}

	return InfoResponse{Name: req.Name, Endpoints: a.registry.GetInfo(req.Name)}, nil
}

func (a *API) host(_ context.Context, data []byte) (any, error) {
	var req HostRequest

	if err := natsutil.DecodeRequest(data, &req); err != nil {
		return nil, err
	}

	if req.Host == "" {
		return nil, natsutil.BadRequest(errEmptyHost)
	}

	return NamesResponse{Names: a.registry.GetNamesOnHost(req.Host)}, nil
}

func (a *API) names(_ context.Context, _ []byte) (any, error) {
	return NamesResponse{Names: a.registry.GetNames()}, nil
}

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
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/micro"

	"github.com/carverauto/statusradar/pkg/logger"
	"github.com/carverauto/statusradar/pkg/models"
	"github.com/carverauto/statusradar/pkg/natsutil"
	"github.com/carverauto/statusradar/pkg/tablecache"
	"github.com/carverauto/statusradar/pkg/version"
)

const (
	apiServiceName = "statusd"
	// APIGroup prefixes every request subject, e.g. statusd.fetch.
	APIGroup = "statusd"
)

// FetchRequest names the aliases to read. An empty list returns everything.
type FetchRequest struct {
	Aliases []string `json:"aliases"`
}

// ValuesResponse carries an alias mapping.
type ValuesResponse struct {
	Values models.Mapping `json:"values"`
}

// StoreRequest carries raw values to merge.
type StoreRequest struct {
	Values models.Mapping `json:"values"`
}

// StoreResponse reports the merge.
type StoreResponse struct {
	Stored int `json:"stored"`
}

// TableRequest names one table.
type TableRequest struct {
	Table string `json:"table"`
}

// TablesResponse lists tables.
type TablesResponse struct {
	Tables []string `json:"tables"`
}

// API serves the store over NATS request/reply.
type API struct {
	nc      *nats.Conn
	store   *Store
	workers int
	logger  logger.Logger

	endpoints *natsutil.Endpoints
}

// NewAPI creates the request API. It is registered on Start.
func NewAPI(nc *nats.Conn, store *Store, workers int, log logger.Logger) *API {
	return &API{nc: nc, store: store, workers: workers, logger: log}
}

func (a *API) Start(_ context.Context) error {
	eps, err := natsutil.NewEndpoints(a.nc, micro.Config{
		Name:        apiServiceName,
		Version:     version.Semver(),
		Description: "status store fetch and update requests",
	}, APIGroup, a.workers, a.logger)
	if err != nil {
		return err
	}

	handlers := []struct {
		name string
		fn   natsutil.RequestFunc
	}{
		{"fetch", a.fetch},
		{"store", a.storeValues},
		{"update", a.update},
		{"ignore", a.ignore},
		{"unignore", a.unignore},
		{"ignored", a.ignored},
	}

	for _, h := range handlers {
		if err := eps.Handle(h.name, h.fn); err != nil {
			_ = eps.Stop()

			return fmt.Errorf("failed to add endpoint %s: %w", h.name, err)
		}
	}

	a.endpoints = eps

	a.logger.Info().Str("group", APIGroup).Msg("Status request API registered")

	return nil
}

func (a *API) Stop(_ context.Context) error {
	if a.endpoints == nil {
		return nil
	}

	return a.endpoints.Stop()
}

func (a *API) fetch(_ context.Context, data []byte) (any, error) {
	var req FetchRequest

	if len(data) > 0 {
		if err := natsutil.DecodeRequest(data, &req); err != nil {
			return nil, err
		}
	}

	if len(req.Aliases) == 0 {
		return ValuesResponse{Values: a.store.Snapshot()}, nil
	}

	return ValuesResponse{Values: a.store.Fetch(req.Aliases)}, nil
}

func (a *API) storeValues(ctx context.Context, data []byte) (any, error) {
	var req StoreRequest

	if err := natsutil.DecodeRequest(data, &req); err != nil {
		return nil, err
	}

	if len(req.Values) == 0 {
		return nil, natsutil.BadRequest(errEmptyRequest)
	}

	if err := a.store.Store(ctx, models.NormalizeMapping(req.Values)); err != nil {
		return nil, err
	}

	return StoreResponse{Stored: len(req.Values)}, nil
}

func (a *API) decodeTable(data []byte) (string, error) {
	var req TableRequest

	if err := natsutil.DecodeRequest(data, &req); err != nil {
		return "", err
	}

	if req.Table == "" {
		return "", natsutil.BadRequest(errEmptyRequest)
	}

	return req.Table, nil
}

func (a *API) update(ctx context.Context, data []byte) (any, error) {
	table, err := a.decodeTable(data)
	if err != nil {
		return nil, err
	}

	if err := a.store.UpdateTable(ctx, table); err != nil {
		if errors.Is(err, tablecache.ErrUnknownTable) {
			return nil, natsutil.NotFound(err)
		}

		return nil, err
	}

	return TableRequest{Table: table}, nil
}

func (a *API) ignore(_ context.Context, data []byte) (any, error) {
	table, err := a.decodeTable(data)
	if err != nil {
		return nil, err
	}

	a.store.Ignore(table)

	return TablesResponse{Tables: a.store.Ignored()}, nil
}

func (a *API) unignore(_ context.Context, data []byte) (any, error) {
	table, err := a.decodeTable(data)
	if err != nil {
		return nil, err
	}

	a.store.Unignore(table)

	return TablesResponse{Tables: a.store.Ignored()}, nil
}

func (a *API) ignored(_ context.Context, _ []byte) (any, error) {
	return TablesResponse{Tables: a.store.Ignored()}, nil
}

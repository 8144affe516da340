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
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/carverauto/statusradar/pkg/logger"
	"github.com/carverauto/statusradar/pkg/models"
	"github.com/carverauto/statusradar/pkg/natsutil"
)

const defaultClientTimeout = 5 * time.Second

// Client calls a registry over the namesvc request API.
type Client struct {
	nc      *nats.Conn
	timeout time.Duration
}

// NewClient creates a client. A zero timeout means five seconds.
func NewClient(nc *nats.Conn, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultClientTimeout
	}

	return &Client{nc: nc, timeout: timeout}
}

func (c *Client) call(ctx context.Context, endpoint string, req, resp any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return natsutil.Request(ctx, c.nc, APIGroup+"."+endpoint, req, resp)
}

// Register registers or heartbeats an endpoint.
func (c *Client) Register(ctx context.Context, name, host string, port int, opts Options) (bool, error) {
	var resp RegisterResponse

	err := c.call(ctx, "register", RegisterRequest{Name: name, Host: host, Port: port, Options: opts}, &resp)

	return resp.Created, err
}

// Unregister removes an endpoint.
func (c *Client) Unregister(ctx context.Context, name, host string, port int) (bool, error) {
	var resp UnregisterResponse

	err := c.call(ctx, "unregister", EndpointRequest{Name: name, Host: host, Port: port}, &resp)

	return resp.Removed, err
}

// GetInfo returns the endpoints of name.
func (c *Client) GetInfo(ctx context.Context, name string) ([]models.Endpoint, error) {
	var resp InfoResponse

	if err := c.call(ctx, "info", InfoRequest{Name: name}, &resp); err != nil {
		return nil, err
	}

	return resp.Endpoints, nil
}

// Lookup returns the first endpoint of name.
func (c *Client) Lookup(ctx context.Context, name string) (models.Endpoint, error) {
	eps, err := c.GetInfo(ctx, name)
	if err != nil {
		return models.Endpoint{}, err
	}

	if len(eps) == 0 {
		return models.Endpoint{}, fmt.Errorf("%w: %s", ErrNameNotFound, name)
	}

	return eps[0], nil
}

// GetNames lists every registered name.
func (c *Client) GetNames(ctx context.Context) ([]string, error) {
	var resp NamesResponse

	err := c.call(ctx, "names", struct{}{}, &resp)

	return resp.Names, err
}

// GetNamesOnHost lists the names with an endpoint on host.
func (c *Client) GetNamesOnHost(ctx context.Context, host string) ([]string, error) {
	var resp NamesResponse

	err := c.call(ctx, "host", HostRequest{Host: host}, &resp)

	return resp.Names, err
}

// Advertiser keeps one endpoint registered: it registers on Start, pings
// every interval and unregisters on Stop. Failed pings are logged and
// retried on the next tick.
type Advertiser struct {
	client   *Client
	name     string
	host     string
	port     int
	opts     Options
	interval time.Duration
	logger   logger.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewAdvertiser creates an advertiser. The interval should be well below
// the registry purge delta.
func NewAdvertiser(client *Client, name, host string, port int, opts Options, interval time.Duration, log logger.Logger) *Advertiser {
	return &Advertiser{
		client:   client,
		name:     name,
		host:     host,
		port:     port,
		opts:     opts,
		interval: interval,
		logger:   log,
	}
}

func (a *Advertiser) Start(ctx context.Context) error {
	if err := validateKey(a.name, a.host, a.port); err != nil {
		return fmt.Errorf("%w: %w", errBadAdvertise, err)
	}

	if a.interval <= 0 {
		a.interval = defaultPurgeInterval
	}

	ctx, a.cancel = context.WithCancel(context.WithoutCancel(ctx))

	a.ping(ctx)

	a.wg.Add(1)

	go func() {
		defer a.wg.Done()

		ticker := time.NewTicker(a.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.ping(ctx)
			}
		}
	}()

	return nil
}

func (a *Advertiser) ping(ctx context.Context) {
	created, err := a.client.Register(ctx, a.name, a.host, a.port, a.opts)
	if err != nil {
		a.logger.Warn().Err(err).Str("name", a.name).Msg("Registry heartbeat failed")

		return
	}

	if created {
		a.logger.Info().Str("name", a.name).Str("host", a.host).Int("port", a.port).Msg("Registered with name registry")
	}
}

func (a *Advertiser) Stop(ctx context.Context) error {
	if a.cancel != nil {
		a.cancel()
	}

	a.wg.Wait()

	_, err := a.client.Unregister(ctx, a.name, a.host, a.port)

	return err
}

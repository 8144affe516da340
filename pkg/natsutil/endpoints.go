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

package natsutil

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/micro"
	"golang.org/x/sync/errgroup"

	"github.com/carverauto/statusradar/pkg/logger"
)

const (
	CodeBadRequest = "400"
	CodeNotFound   = "404"
	CodeInternal   = "500"

	defaultRequestTimeout = 5 * time.Second
)

var errEmptyBody = errors.New("request body is empty")

// RequestFunc serves one request body and returns the value sent back as
// JSON.
type RequestFunc func(ctx context.Context, data []byte) (any, error)

// RequestError carries the service error code returned to the caller.
type RequestError struct {
	Code string
	Err  error
}

func (e *RequestError) Error() string {
	return e.Err.Error()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// BadRequest marks err as the caller's fault.
func BadRequest(err error) error {
	return &RequestError{Code: CodeBadRequest, Err: err}
}

// NotFound marks err as a lookup miss.
func NotFound(err error) error {
	return &RequestError{Code: CodeNotFound, Err: err}
}

// DecodeRequest unmarshals a JSON request body, reporting failures as bad
// requests. Numbers are kept as json.Number.
func DecodeRequest(data []byte, dst any) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return BadRequest(errEmptyBody)
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	if err := dec.Decode(dst); err != nil {
		return BadRequest(fmt.Errorf("invalid request: %w", err))
	}

	return nil
}

// Endpoints is a NATS micro service whose handlers run on a bounded worker
// pool instead of the subscription goroutine.
type Endpoints struct {
	svc    micro.Service
	group  micro.Group
	pool   *errgroup.Group
	ctx    context.Context
	cancel context.CancelFunc
	logger logger.Logger
}

// NewEndpoints registers a micro service on nc. Every endpoint added with
// Handle is served as <group>.<name>.
func NewEndpoints(nc *nats.Conn, cfg micro.Config, group string, workers int, log logger.Logger) (*Endpoints, error) {
	svc, err := micro.AddService(nc, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to add %s service: %w", cfg.Name, err)
	}

	pool := new(errgroup.Group)
	if workers > 0 {
		pool.SetLimit(workers)
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Endpoints{
		svc:    svc,
		group:  svc.AddGroup(group),
		pool:   pool,
		ctx:    ctx,
		cancel: cancel,
		logger: log,
	}, nil
}

// Handle adds one endpoint.
func (e *Endpoints) Handle(name string, fn RequestFunc) error {
	return e.group.AddEndpoint(name, micro.HandlerFunc(func(req micro.Request) {
		e.pool.Go(func() error {
			e.serve(name, req, fn)

			return nil
		})
	}))
}

func (e *Endpoints) serve(name string, req micro.Request, fn RequestFunc) {
	resp, err := fn(e.ctx, req.Data())
	if err != nil {
		code := CodeInternal

		var reqErr *RequestError
		if errors.As(err, &reqErr) {
			code = reqErr.Code
		}

		e.logger.Debug().Err(err).Str("endpoint", name).Str("code", code).Msg("Request failed")

		if rerr := req.Error(code, err.Error(), nil); rerr != nil {
			e.logger.Warn().Err(rerr).Str("endpoint", name).Msg("Failed to send error response")
		}

		return
	}

	if err := req.RespondJSON(resp); err != nil {
		e.logger.Warn().Err(err).Str("endpoint", name).Msg("Failed to send response")
	}
}

// Info exposes the micro service description.
func (e *Endpoints) Info() micro.Info {
	return e.svc.Info()
}

// Stop drains the service and waits for running handlers.
func (e *Endpoints) Stop() error {
	err := e.svc.Stop()
	e.cancel()
	_ = e.pool.Wait()

	return err
}

// ServiceError is a micro error response decoded by Request.
type ServiceError struct {
	Code        string
	Description string
}

func (e *ServiceError) Error() string {
	return fmt.Sprintf("service error %s: %s", e.Code, e.Description)
}

// Request sends req as JSON to subject and decodes the reply into resp. A
// context without deadline gets a five second timeout.
// Micro error replies come back as *ServiceError.
func Request(ctx context.Context, nc *nats.Conn, subject string, req, resp any) error {
	body, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, defaultRequestTimeout)
		defer cancel()
	}

	msg, err := nc.RequestWithContext(ctx, subject, body)
	if err != nil {
		return fmt.Errorf("request %s: %w", subject, err)
	}

	if code := msg.Header.Get(micro.ErrorCodeHeader); code != "" {
		return &ServiceError{Code: code, Description: msg.Header.Get(micro.ErrorHeader)}
	}

	if resp == nil {
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(msg.Data))
	dec.UseNumber()

	if err := dec.Decode(resp); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", subject, err)
	}

	return nil
}

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

// Package transport implements the remote "read table window" primitive.
//
// A window is fetched over one of two interchangeable stream kinds, a
// websocket or a plain TCP stream, both carrying the same binary frames.
// The client tries the kind that last worked for a host first and falls back
// to the other kind when a stream cannot be established.
package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/gorilla/websocket"

	"github.com/carverauto/statusradar/pkg/logger"
	"github.com/carverauto/statusradar/pkg/models"
)

// StreamKind selects the stream used to reach a window server.
type StreamKind string

const (
	KindWebSocket StreamKind = "websocket"
	KindTCP       StreamKind = "tcp"
)

const (
	defaultTCPPort      = 7280
	defaultWSPort       = 7281
	defaultWSPath       = "/window"
	defaultDialTimeout  = 2 * time.Second
	defaultIOTimeout    = 5 * time.Second
	defaultRetryBackoff = 250 * time.Millisecond
	maxTries            = 2
)

// WindowReader reads a byte range of a remote table.
type WindowReader interface {
	ReadTableWindow(ctx context.Context, table *models.TableDefinition, offset, length int) ([]byte, error)
}

// Config holds stream settings shared by client and server.
type Config struct {
	TCPPort      int             `json:"tcp_port,omitempty"`
	WSPort       int             `json:"ws_port,omitempty"`
	WSPath       string          `json:"ws_path,omitempty"`
	Preferred    StreamKind      `json:"preferred,omitempty"`
	DialTimeout  models.Duration `json:"dial_timeout,omitempty"`
	IOTimeout    models.Duration `json:"io_timeout,omitempty"`
	RetryBackoff models.Duration `json:"retry_backoff,omitempty"`
}

// SetDefaults fills unset fields.
func (c *Config) SetDefaults() {
	if c.TCPPort == 0 {
		c.TCPPort = defaultTCPPort
	}

	if c.WSPort == 0 {
		c.WSPort = defaultWSPort
	}

	if c.WSPath == "" {
		c.WSPath = defaultWSPath
	}

	if c.Preferred == "" {
		c.Preferred = KindWebSocket
	}

	if c.DialTimeout == 0 {
		c.DialTimeout = models.Duration(defaultDialTimeout)
	}

	if c.IOTimeout == 0 {
		c.IOTimeout = models.Duration(defaultIOTimeout)
	}

	if c.RetryBackoff == 0 {
		c.RetryBackoff = models.Duration(defaultRetryBackoff)
	}
}

// exchanger is one established stream able to carry a request frame.
type exchanger interface {
	exchange(ctx context.Context, req []byte) ([]byte, error)
	Close() error
}

type dialFunc func(ctx context.Context, host string) (exchanger, error)

// Client is a WindowReader that dials a fresh stream per read.
type Client struct {
	cfg     Config
	logger  logger.Logger
	dialers map[StreamKind]dialFunc

	mu       sync.Mutex
	lastGood map[string]StreamKind
}

var _ WindowReader = (*Client)(nil)

// NewClient creates a window client.
func NewClient(cfg Config, log logger.Logger) *Client {
	cfg.SetDefaults()

	c := &Client{
		cfg:      cfg,
		logger:   log,
		lastGood: make(map[string]StreamKind),
	}

	c.dialers = map[StreamKind]dialFunc{
		KindTCP:       c.dialTCP,
		KindWebSocket: c.dialWebSocket,
	}

	return c
}

// ReadTableWindow fetches length bytes at offset of table. A failed attempt
// is retried once after a fixed backoff; server-reported errors are not.
func (c *Client) ReadTableWindow(ctx context.Context, table *models.TableDefinition, offset, length int) ([]byte, error) {
	req := encodeRequest(windowRequest{Table: table.Name, Offset: offset, Length: length})

	attempt := 0

	op := func() ([]byte, error) {
		attempt++

		data, err := c.readOnce(ctx, table.Host, req)
		if err != nil {
			var remote *RemoteError
			if errors.As(err, &remote) {
				return nil, backoff.Permanent(err)
			}

			c.logger.Debug().Err(err).Str("table", table.Name).Int("attempt", attempt).Msg("Window read failed")

			return nil, err
		}

		if len(data) != length {
			return nil, fmt.Errorf("%w: got %d want %d", errShortWindow, len(data), length)
		}

		return data, nil
	}

	data, err := backoff.Retry(ctx, op,
		backoff.WithBackOff(backoff.NewConstantBackOff(c.cfg.RetryBackoff.Std())),
		backoff.WithMaxTries(maxTries),
	)
	if err != nil {
		return nil, &TransportError{Table: table.Name, Err: err}
	}

	return data, nil
}

// readOnce performs a single request, falling back across stream kinds
// only when a stream cannot be established.
func (c *Client) readOnce(ctx context.Context, host string, req []byte) ([]byte, error) {
	var dialErrs []error

	for _, kind := range c.order(host) {
		dial, ok := c.dialers[kind]
		if !ok {
			continue
		}

		stream, err := dial(ctx, host)
		if err != nil {
			dialErrs = append(dialErrs, &dialError{kind: kind, err: err})

			continue
		}

		data, err := stream.exchange(ctx, req)
		_ = stream.Close()

		if err != nil {
			return nil, fmt.Errorf("%s exchange with %s: %w", kind, host, err)
		}

		c.remember(host, kind)

		return data, nil
	}

	if len(dialErrs) == 0 {
		return nil, errNoStreamKinds
	}

	return nil, errors.Join(dialErrs...)
}

func (c *Client) order(host string) []StreamKind {
	c.mu.Lock()
	first, ok := c.lastGood[host]
	c.mu.Unlock()

	if !ok {
		first = c.cfg.Preferred
	}

	if first == KindTCP {
		return []StreamKind{KindTCP, KindWebSocket}
	}

	return []StreamKind{KindWebSocket, KindTCP}
}

func (c *Client) remember(host string, kind StreamKind) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if prev, ok := c.lastGood[host]; !ok || prev != kind {
		c.logger.Info().Str("host", host).Str("stream", string(kind)).Msg("Using stream kind")
	}

	c.lastGood[host] = kind
}

// LastKind reports the stream kind that last worked for host.
func (c *Client) LastKind(host string) (StreamKind, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	kind, ok := c.lastGood[host]

	return kind, ok
}

func (c *Client) deadline(ctx context.Context) time.Time {
	d := time.Now().Add(c.cfg.IOTimeout.Std())
	if ctxDeadline, ok := ctx.Deadline(); ok && ctxDeadline.Before(d) {
		return ctxDeadline
	}

	return d
}

type tcpStream struct {
	conn     net.Conn
	deadline func(context.Context) time.Time
}

func (c *Client) dialTCP(ctx context.Context, host string) (exchanger, error) {
	d := net.Dialer{Timeout: c.cfg.DialTimeout.Std()}

	conn, err := d.DialContext(ctx, "tcp", net.JoinHostPort(host, strconv.Itoa(c.cfg.TCPPort)))
	if err != nil {
		return nil, err
	}

	return &tcpStream{conn: conn, deadline: c.deadline}, nil
}

func (s *tcpStream) exchange(ctx context.Context, req []byte) ([]byte, error) {
	if err := s.conn.SetDeadline(s.deadline(ctx)); err != nil {
		return nil, err
	}

	if _, err := s.conn.Write(req); err != nil {
		return nil, err
	}

	return readResponse(s.conn)
}

func (s *tcpStream) Close() error {
	return s.conn.Close()
}

type wsStream struct {
	conn     *websocket.Conn
	deadline func(context.Context) time.Time
}

func (c *Client) dialWebSocket(ctx context.Context, host string) (exchanger, error) {
	dialer := websocket.Dialer{HandshakeTimeout: c.cfg.DialTimeout.Std()}

	u := url.URL{
		Scheme: "ws",
		Host:   net.JoinHostPort(host, strconv.Itoa(c.cfg.WSPort)),
		Path:   c.cfg.WSPath,
	}

	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}

	return &wsStream{conn: conn, deadline: c.deadline}, nil
}

func (s *wsStream) exchange(ctx context.Context, req []byte) ([]byte, error) {
	deadline := s.deadline(ctx)

	if err := s.conn.SetWriteDeadline(deadline); err != nil {
		return nil, err
	}

	if err := s.conn.WriteMessage(websocket.BinaryMessage, req); err != nil {
		return nil, err
	}

	if err := s.conn.SetReadDeadline(deadline); err != nil {
		return nil, err
	}

	msgType, msg, err := s.conn.ReadMessage()
	if err != nil {
		return nil, err
	}

	if msgType != websocket.BinaryMessage {
		return nil, errUnexpectedFrame
	}

	return decodeResponse(msg)
}

func (s *wsStream) Close() error {
	_ = s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))

	return s.conn.Close()
}

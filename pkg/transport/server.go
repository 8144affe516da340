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

package transport

import (
	"errors"
	"io"
	"net"
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/carverauto/statusradar/pkg/logger"
)

// Server answers window requests on both stream kinds from one TableSource.
type Server struct {
	source   TableSource
	logger   logger.Logger
	upgrader websocket.Upgrader

	closed atomic.Bool
	wg     sync.WaitGroup

	mu        sync.Mutex
	listeners map[net.Listener]struct{}
	conns     map[io.Closer]struct{}
}

// NewServer creates a window server.
func NewServer(source TableSource, log logger.Logger) *Server {
	return &Server{
		source: source,
		logger: log,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		listeners: make(map[net.Listener]struct{}),
		conns:     make(map[io.Closer]struct{}),
	}
}

func (s *Server) respond(req windowRequest) []byte {
	data, err := s.source.Window(req.Table, req.Offset, req.Length)
	if err != nil {
		s.logger.Debug().Err(err).Str("table", req.Table).Msg("Window request rejected")

		return encodeResponse(statusError, []byte(err.Error()))
	}

	if len(data) > maxFrame {
		return encodeResponse(statusError, []byte(errFrameTooLarge.Error()))
	}

	return encodeResponse(statusOK, data)
}

func (s *Server) track(c io.Closer) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed.Load() {
		return false
	}

	s.conns[c] = struct{}{}
	s.wg.Add(1)

	return true
}

func (s *Server) untrack(c io.Closer) {
	s.mu.Lock()
	delete(s.conns, c)
	s.mu.Unlock()
}

// ServeTCP accepts stream connections on ln until Close is called.
func (s *Server) ServeTCP(ln net.Listener) error {
	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()

		return net.ErrClosed
	}

	s.listeners[ln] = struct{}{}
	s.mu.Unlock()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if s.closed.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}

			return err
		}

		if !s.track(conn) {
			_ = conn.Close()

			return nil
		}

		go s.serveConn(conn)
	}
}

func (s *Server) serveConn(conn net.Conn) {
	defer s.wg.Done()
	defer s.untrack(conn)
	defer func() { _ = conn.Close() }()

	for {
		req, err := readRequest(conn)
		if err != nil {
			if !errors.Is(err, io.EOF) && !s.closed.Load() {
				s.logger.Debug().Err(err).Str("remote", conn.RemoteAddr().String()).Msg("TCP stream closed")
			}

			return
		}

		if _, err := conn.Write(s.respond(req)); err != nil {
			return
		}
	}
}

// Handler upgrades HTTP requests to websocket window streams.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.logger.Warn().Err(err).Msg("Websocket upgrade failed")

			return
		}

		if !s.track(conn) {
			_ = conn.Close()

			return
		}

		s.serveWebSocket(conn)
	})
}

func (s *Server) serveWebSocket(conn *websocket.Conn) {
	defer s.wg.Done()
	defer s.untrack(conn)
	defer func() { _ = conn.Close() }()

	for {
		msgType, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}

		if msgType != websocket.BinaryMessage {
			continue
		}

		req, err := readRequest(bytesReader(msg))
		if err != nil {
			_ = conn.WriteMessage(websocket.BinaryMessage, encodeResponse(statusError, []byte(err.Error())))

			continue
		}

		if err := conn.WriteMessage(websocket.BinaryMessage, s.respond(req)); err != nil {
			return
		}
	}
}

// Close stops all listeners and open streams and waits for their handlers.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed.Swap(true) {
		s.mu.Unlock()

		return nil
	}

	var errs []error

	for ln := range s.listeners {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}

	for c := range s.conns {
		_ = c.Close()
	}
	s.mu.Unlock()

	s.wg.Wait()

	return errors.Join(errs...)
}

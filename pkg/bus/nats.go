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

package bus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/carverauto/statusradar/pkg/logger"
	"github.com/carverauto/statusradar/pkg/models"
)

// NATSBus maps topics 1:1 onto NATS subjects. It does not own the
// connection.
type NATSBus struct {
	nc     *nats.Conn
	origin string
	logger logger.Logger

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	subs   []*nats.Subscription
	closed bool
}

var _ Bus = (*NATSBus)(nil)

// NewNATSBus creates a bus on an existing connection.
func NewNATSBus(nc *nats.Conn, log logger.Logger) *NATSBus {
	ctx, cancel := context.WithCancel(context.Background())

	return &NATSBus{
		nc:     nc,
		origin: uuid.NewString(),
		logger: log,
		ctx:    ctx,
		cancel: cancel,
	}
}

func (b *NATSBus) Origin() string {
	return b.origin
}

func (b *NATSBus) Publish(_ context.Context, topic string, values models.Mapping) error {
	if topic == "" {
		return errEmptyTopic
	}

	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()

	if closed {
		return errClosed
	}

	wire, types := encodeValues(values)

	data, err := json.Marshal(&Message{Origin: b.origin, Time: time.Now().UTC(), Values: wire, Types: types})
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", topic, err)
	}

	if err := b.nc.Publish(topic, data); err != nil {
		return fmt.Errorf("failed to publish %s: %w", topic, err)
	}

	return nil
}

// DecodeMessage parses a bus payload, restoring canonical value types from
// the payload's type hints.
func DecodeMessage(topic string, data []byte) (*Message, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var msg Message
	if err := dec.Decode(&msg); err != nil {
		return nil, err
	}

	msg.Topic = topic
	if msg.Values == nil {
		msg.Values = models.Mapping{}
	}

	if err := decodeValues(msg.Values, msg.Types); err != nil {
		return nil, err
	}

	msg.Types = nil

	return &msg, nil
}

func (b *NATSBus) Subscribe(prefix string, handler Handler) (Subscription, error) {
	prefix = normalizePrefix(prefix)
	if prefix == "" {
		return nil, errEmptyPrefix
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, errClosed
	}

	sub, err := b.nc.Subscribe(prefix+".>", func(m *nats.Msg) {
		msg, err := DecodeMessage(m.Subject, m.Data)
		if err != nil {
			b.logger.Warn().Err(err).Str("subject", m.Subject).Msg("Dropping undecodable bus message")

			return
		}

		handler(b.ctx, msg)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe to %s: %w", prefix, err)
	}

	b.subs = append(b.subs, sub)

	return sub, nil
}

// Close unsubscribes every subscription made through the bus.
func (b *NATSBus) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}

	b.closed = true
	b.cancel()

	var errs []error

	for _, s := range b.subs {
		if err := s.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) && !errors.Is(err, nats.ErrBadSubscription) {
			errs = append(errs, err)
		}
	}

	b.subs = nil

	return errors.Join(errs...)
}

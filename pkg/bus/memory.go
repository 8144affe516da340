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
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/carverauto/statusradar/pkg/models"
)

const memoryQueueSize = 256

type memoryHub struct {
	mu   sync.RWMutex
	subs map[*memorySub]struct{}
}

// MemoryBus is an in-process bus. Nodes created with Connect share one
// fabric, which lets several registries or stores converge inside a single
// process. Each subscription is delivered in publish order from its own
// goroutine; a full queue drops the message.
type MemoryBus struct {
	hub    *memoryHub
	origin string

	ctx    context.Context
	cancel context.CancelFunc

	mu   sync.Mutex
	subs []*memorySub
}

var _ Bus = (*MemoryBus)(nil)

// NewMemoryBus creates a node on a fresh fabric.
func NewMemoryBus() *MemoryBus {
	return newMemoryNode(&memoryHub{subs: make(map[*memorySub]struct{})})
}

func newMemoryNode(hub *memoryHub) *MemoryBus {
	ctx, cancel := context.WithCancel(context.Background())

	return &MemoryBus{hub: hub, origin: uuid.NewString(), ctx: ctx, cancel: cancel}
}

// Connect creates another node on the same fabric.
func (b *MemoryBus) Connect() *MemoryBus {
	return newMemoryNode(b.hub)
}

func (b *MemoryBus) Origin() string {
	return b.origin
}

func (b *MemoryBus) Publish(_ context.Context, topic string, values models.Mapping) error {
	if topic == "" {
		return errEmptyTopic
	}

	if b.ctx.Err() != nil {
		return errClosed
	}

	msg := Message{Topic: topic, Origin: b.origin, Time: time.Now().UTC(), Values: values.Clone()}

	b.hub.mu.RLock()
	defer b.hub.mu.RUnlock()

	for s := range b.hub.subs {
		if !s.matches(topic) {
			continue
		}

		m := msg
		m.Values = msg.Values.Clone()

		select {
		case s.queue <- &m:
		default:
		}
	}

	return nil
}

func (b *MemoryBus) Subscribe(prefix string, handler Handler) (Subscription, error) {
	prefix = normalizePrefix(prefix)
	if prefix == "" {
		return nil, errEmptyPrefix
	}

	if b.ctx.Err() != nil {
		return nil, errClosed
	}

	s := &memorySub{
		hub:     b.hub,
		prefix:  prefix + ".",
		handler: handler,
		queue:   make(chan *Message, memoryQueueSize),
		done:    make(chan struct{}),
	}

	b.hub.mu.Lock()
	b.hub.subs[s] = struct{}{}
	b.hub.mu.Unlock()

	b.mu.Lock()
	b.subs = append(b.subs, s)
	b.mu.Unlock()

	go s.run(b.ctx)

	return s, nil
}

func (b *MemoryBus) Close() error {
	b.cancel()

	b.mu.Lock()
	subs := b.subs
	b.subs = nil
	b.mu.Unlock()

	for _, s := range subs {
		_ = s.Unsubscribe()
	}

	return nil
}

type memorySub struct {
	hub     *memoryHub
	prefix  string
	handler Handler
	queue   chan *Message
	done    chan struct{}
	once    sync.Once
}

func (s *memorySub) matches(topic string) bool {
	return strings.HasPrefix(topic, s.prefix)
}

func (s *memorySub) run(ctx context.Context) {
	for {
		select {
		case <-s.done:
			return
		case msg := <-s.queue:
			s.handler(ctx, msg)
		}
	}
}

func (s *memorySub) Unsubscribe() error {
	s.once.Do(func() {
		s.hub.mu.Lock()
		delete(s.hub.subs, s)
		s.hub.mu.Unlock()

		close(s.done)
	})

	return nil
}

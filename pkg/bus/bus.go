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

// Package bus is the publish/subscribe fan-out shared by the status store and
// the name registry. Delivery is best effort: no ordering across publishers,
// no persistence and no acknowledgement.
package bus

import (
	"context"
	"strings"
	"time"

	"github.com/carverauto/statusradar/pkg/models"
)

//go:generate mockgen -destination=mock_bus.go -package=bus github.com/carverauto/statusradar/pkg/bus Bus

// Reserved topic prefixes.
const (
	PrefixStatus      = "status"
	PrefixTableUpdate = "statupd"
	PrefixNames       = "names"
	PrefixTableChange = "tblchg"
)

// StatusTopic carries the new value of one alias.
func StatusTopic(alias string) string { return PrefixStatus + "." + alias }

// TableUpdateTopic announces that a table was refreshed into the store.
func TableUpdateTopic(table string) string { return PrefixTableUpdate + "." + table }

// NamesTopic carries registry changes for one service name.
func NamesTopic(name string) string { return PrefixNames + "." + name }

// TableChangeTopic is where upstream feeds announce a changed table.
func TableChangeTopic(table string) string { return PrefixTableChange + "." + table }

// TopicSuffix strips prefix and its separator from topic.
func TopicSuffix(topic, prefix string) string {
	return strings.TrimPrefix(topic, normalizePrefix(prefix)+".")
}

func normalizePrefix(prefix string) string {
	return strings.TrimSuffix(prefix, ".")
}

// Message is one published mapping.
type Message struct {
	Topic  string         `json:"-"`
	Origin string         `json:"origin"`
	Time   time.Time      `json:"time"`
	Values models.Mapping `json:"values"`
	// Types holds wire type hints (uint, float, bytes) for values JSON
	// would otherwise change. Empty once decoded.
	Types map[string]string `json:"types,omitempty"`
}

// Handler receives messages of a subscription.
type Handler func(ctx context.Context, msg *Message)

// Subscription is an active Subscribe registration.
type Subscription interface {
	Unsubscribe() error
}

// Bus is the distribution bus.
type Bus interface {
	// Publish sends values on topic.
	Publish(ctx context.Context, topic string, values models.Mapping) error
	// Subscribe delivers every message whose topic lies below prefix.
	Subscribe(prefix string, handler Handler) (Subscription, error)
	// Origin identifies this participant in published messages.
	Origin() string
	Close() error
}

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
	"encoding/json"
	"strconv"
)

// Value is a decoded status value: int64, uint64, float64, string, []byte,
// bool or a Sentinel.
type Value = any

// Sentinel marks the absence of a usable value. Sentinels never compare equal
// to a legitimate value, including zero and the empty string.
//
// On the bus and in snapshots a sentinel travels as its reserved string, so
// the three strings below are reserved: a str alias whose payload is exactly
// one of them comes back from Normalize as the sentinel, not as a string.
type Sentinel string

const (
	// NoData is reported for aliases the store has never seen.
	NoData Sentinel = "##NODATA##"
	// Null is the decoded form of an empty ascii field.
	Null Sentinel = "##NULL##"
	// ErrorValue replaces a value whose decode or fetch failed.
	ErrorValue Sentinel = "##ERROR##"
)

func (s Sentinel) String() string {
	return string(s)
}

// IsSentinel reports whether v is one of the reserved sentinels.
func IsSentinel(v Value) bool {
	_, ok := v.(Sentinel)

	return ok
}

// HasValue reports whether v carries real data.
func HasValue(v Value) bool {
	return v != nil && !IsSentinel(v)
}

// Mapping is an alias to value map, the unit of store and publish.
type Mapping map[string]Value

// Keys returns the mapping's keys in no particular order.
func (m Mapping) Keys() []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}

	return keys
}

// Clone returns a shallow copy.
func (m Mapping) Clone() Mapping {
	out := make(Mapping, len(m))
	for k, v := range m {
		out[k] = v
	}

	return out
}

// Normalize folds values that went through JSON or YAML back into the
// canonical value types. Sentinel strings become Sentinels again.
func Normalize(v any) Value {
	switch t := v.(type) {
	case nil:
		return Null
	case Sentinel:
		return t
	case string:
		switch s := Sentinel(t); s {
		case NoData, Null, ErrorValue:
			return s
		}

		return t
	case json.Number:
		return normalizeNumber(t)
	case int:
		return int64(t)
	case int8:
		return int64(t)
	case int16:
		return int64(t)
	case int32:
		return int64(t)
	case uint:
		return uint64(t)
	case uint8:
		return uint64(t)
	case uint16:
		return uint64(t)
	case uint32:
		return uint64(t)
	case float32:
		return float64(t)
	default:
		return v
	}
}

func normalizeNumber(n json.Number) Value {
	if i, err := n.Int64(); err == nil {
		return i
	}

	if u, err := strconv.ParseUint(n.String(), 10, 64); err == nil {
		return u
	}

	if f, err := n.Float64(); err == nil {
		return f
	}

	return n.String()
}

// NormalizeMapping applies Normalize to every value of m in place.
func NormalizeMapping(m Mapping) Mapping {
	for k, v := range m {
		m[k] = Normalize(v)
	}

	return m
}

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
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"strconv"

	"github.com/carverauto/statusradar/pkg/models"
)

// Value types that plain JSON would not bring back intact. They travel in
// Message.Types keyed by alias.
const (
	typeUint  = "uint"
	typeFloat = "float"
	typeBytes = "bytes"
)

// encodeValues returns a JSON-safe copy of values plus the type hints
// needed to restore it. Non-finite floats are sent as strings.
func encodeValues(values models.Mapping) (models.Mapping, map[string]string) {
	out := make(models.Mapping, len(values))

	var types map[string]string

	mark := func(k, typ string) {
		if types == nil {
			types = make(map[string]string)
		}

		types[k] = typ
	}

	for k, v := range values {
		switch t := v.(type) {
		case uint64:
			mark(k, typeUint)
			out[k] = t
		case float64:
			mark(k, typeFloat)

			if math.IsNaN(t) || math.IsInf(t, 0) {
				out[k] = strconv.FormatFloat(t, 'g', -1, 64)
			} else {
				out[k] = t
			}
		case []byte:
			mark(k, typeBytes)
			out[k] = t
		default:
			out[k] = v
		}
	}

	return out, types
}

// decodeValues restores canonical types in place. Values without a hint go
// through models.Normalize.
func decodeValues(values models.Mapping, types map[string]string) error {
	for k, v := range values {
		typ, ok := types[k]
		if !ok {
			values[k] = models.Normalize(v)

			continue
		}

		tv, err := decodeTyped(typ, v)
		if err != nil {
			return fmt.Errorf("%w: %s as %s: %w", errBadValue, k, typ, err)
		}

		values[k] = tv
	}

	return nil
}

func decodeTyped(typ string, v any) (models.Value, error) {
	switch typ {
	case typeUint:
		n, ok := v.(json.Number)
		if !ok {
			return nil, fmt.Errorf("got %T", v)
		}

		return strconv.ParseUint(n.String(), 10, 64)
	case typeFloat:
		switch t := v.(type) {
		case json.Number:
			return t.Float64()
		case string:
			return strconv.ParseFloat(t, 64)
		default:
			return nil, fmt.Errorf("got %T", v)
		}
	case typeBytes:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("got %T", v)
		}

		return base64.StdEncoding.DecodeString(s)
	default:
		return nil, fmt.Errorf("unknown type hint %q", typ)
	}
}

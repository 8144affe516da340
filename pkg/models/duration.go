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
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var errInvalidDuration = errors.New("invalid duration")

// Duration is a time.Duration in config documents. It accepts Go duration
// strings ("1m30s") or a bare number of seconds, and marshals back as a
// duration string.
type Duration time.Duration

// ParseDuration accepts "250ms" style strings and bare seconds ("30", "0.5").
func ParseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)

	if secs, err := strconv.ParseFloat(s, 64); err == nil {
		return time.Duration(secs * float64(time.Second)), nil
	}

	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", errInvalidDuration, s)
	}

	return d, nil
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var raw interface{}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}

	var (
		parsed time.Duration
		err    error
	)

	switch v := raw.(type) {
	case float64:
		parsed = time.Duration(v * float64(time.Second))
	case string:
		parsed, err = ParseDuration(v)
	default:
		err = fmt.Errorf("%w: %s", errInvalidDuration, b)
	}

	if err != nil {
		return err
	}

	*d = Duration(parsed)

	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

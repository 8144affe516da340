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

package catalog

import (
	"errors"
	"fmt"
)

var (
	errMalformedLine     = errors.New("malformed definition line")
	errDuplicateTable    = errors.New("duplicate table")
	errDuplicateAlias    = errors.New("duplicate alias")
	errUnknownTable      = errors.New("unknown table")
	errBadSize           = errors.New("table size must be a positive integer")
	errBadLength         = errors.New("alias length must be a positive integer")
	errOutOfBounds       = errors.New("alias exceeds table size")
	errNegativeOffset    = errors.New("alias offset is negative")
	errBadMask           = errors.New("invalid mask")
	errBadMultiplier     = errors.New("invalid multiplier")
	errUnexpectedMask    = errors.New("type takes no mask or multiplier")
	errUnsupportedLength = errors.New("length not supported for type")
	errUnknownSymbol     = errors.New("unknown or forward reference")
	errBadExpression     = errors.New("invalid offset expression")

	// ErrUnknownAlias is returned by override and lookup helpers.
	ErrUnknownAlias = errors.New("unknown alias")
)

// ConfigError reports a definitions line that cannot be loaded. It is fatal
// at startup.
type ConfigError struct {
	Line int
	Text string
	Err  error
}

func (e *ConfigError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("definitions line %d %q: %v", e.Line, e.Text, e.Err)
	}

	return fmt.Sprintf("definitions: %v", e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

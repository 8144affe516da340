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

package decode

import (
	"errors"
	"fmt"

	"github.com/carverauto/statusradar/pkg/models"
)

var (
	errLengthMismatch    = errors.New("payload length does not match alias length")
	errUnsupportedLength = errors.New("unsupported payload length")
	errBadBCDDigit       = errors.New("non-decimal BCD digit")
	errBadNumber         = errors.New("invalid ascii number")
	errNonFinite         = errors.New("non-finite ascii float")
	errNoDecoder         = errors.New("no decoder for type")
)

// ConversionError reports a single alias whose bytes could not be decoded.
// Callers decoding batches catch it per alias.
type ConversionError struct {
	Alias string
	Type  models.TypeTag
	Err   error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("cannot decode %s as %s: %v", e.Alias, e.Type, e.Err)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

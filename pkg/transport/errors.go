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
	"fmt"
)

var (
	errFrameTooLarge   = errors.New("frame exceeds maximum size")
	errShortWindow     = errors.New("window length mismatch")
	errNoStreamKinds   = errors.New("no stream kinds configured")
	errUnknownTable    = errors.New("unknown table")
	errWindowBounds    = errors.New("window outside table")
	errUnexpectedFrame = errors.New("unexpected websocket message type")
)

// TransportError is a failed remote read of one table after the retry.
type TransportError struct {
	Table string
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("read of table %s failed: %v", e.Table, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// RemoteError is an error reported by the window server itself. It is not
// retried and does not trigger a stream fallback.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return "remote: " + e.Message
}

// dialError marks a failure to establish a stream, the only failure that
// makes the client try the other stream kind.
type dialError struct {
	kind StreamKind
	err  error
}

func (e *dialError) Error() string {
	return fmt.Sprintf("%s dial failed: %v", e.kind, e.err)
}

func (e *dialError) Unwrap() error {
	return e.err
}

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

package status

import (
	"errors"
)

var (
	errDuplicateDerived = errors.New("derived alias already registered")
	errDerivedCycle     = errors.New("derived alias would form a cycle")
	errNoInputs         = errors.New("derived alias needs at least one input")
	errNilDeriveFunc    = errors.New("derive function is nil")
	errUnknownReducer   = errors.New("unknown reducer")
	errNoCache          = errors.New("store has no table cache")
	errBadSnapshot      = errors.New("snapshot is not an alias mapping")
	errNATSURLRequired  = errors.New("nats_url is required")
	errDefsRequired     = errors.New("definitions path is required")
	errBadWorkers       = errors.New("workers must not be negative")
	errBadSecurityMode  = errors.New("unsupported security mode")
	errEmptyRequest     = errors.New("request body is empty")
	errBadIgnoreList    = errors.New("ignore list must be a JSON array of table names")
)

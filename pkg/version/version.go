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

// Package version reports the build version injected with -ldflags:
//
//	-X github.com/carverauto/statusradar/pkg/version.version=1.2.0
//	-X github.com/carverauto/statusradar/pkg/version.buildID=abc123
package version

import (
	"regexp"
)

//nolint:gochecknoglobals // set via ldflags
var (
	version = "dev"
	buildID = "dev"
)

const fallbackSemver = "0.0.0-dev"

//nolint:gochecknoglobals // compiled once
var semverPattern = regexp.MustCompile(`^v?(\d+\.\d+\.\d+(?:-[0-9A-Za-z.-]+)?(?:\+[0-9A-Za-z.-]+)?)$`)

// GetVersion returns the injected version.
func GetVersion() string {
	return version
}

// GetBuildID returns the injected build ID.
func GetBuildID() string {
	return buildID
}

// GetFullVersion returns version with build ID.
func GetFullVersion() string {
	return version + " (build: " + buildID + ")"
}

// Semver returns the version in the strict semantic-version form NATS
// micro services require, without a leading v. Development builds report
// 0.0.0-dev.
func Semver() string {
	m := semverPattern.FindStringSubmatch(version)
	if m == nil {
		return fallbackSemver
	}

	return m[1]
}

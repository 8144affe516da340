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

package logger

import (
	"os"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

const (
	OutputStdout  = "stdout"
	OutputStderr  = "stderr"
	OutputConsole = "console"
)

// Config selects the level and sink of a service logger. It is embedded in
// the statusd and nameserver configs under "logging".
type Config struct {
	Level      string            `json:"level" yaml:"level"`
	Debug      bool              `json:"debug" yaml:"debug"`
	Output     string            `json:"output" yaml:"output"`
	TimeFormat string            `json:"time_format" yaml:"time_format"`
	Fields     map[string]string `json:"fields,omitempty" yaml:"fields,omitempty"`
}

// DefaultConfig reads LOG_LEVEL, DEBUG, LOG_OUTPUT and LOG_TIME_FORMAT.
func DefaultConfig() *Config {
	return &Config{
		Level:      envOr("LOG_LEVEL", "info"),
		Debug:      envBool("DEBUG"),
		Output:     envOr("LOG_OUTPUT", OutputStdout),
		TimeFormat: os.Getenv("LOG_TIME_FORMAT"),
	}
}

// level resolves Debug and Level into a zerolog level. Debug wins.
func (c *Config) level() (zerolog.Level, error) {
	if c.Debug {
		return zerolog.DebugLevel, nil
	}

	if c.Level == "" {
		return zerolog.InfoLevel, nil
	}

	return zerolog.ParseLevel(strings.ToLower(c.Level))
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func envBool(key string) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))

	switch v {
	case "yes", "on":
		return true
	default:
		b, _ := strconv.ParseBool(v)

		return b
	}
}

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

// Package logger wraps zerolog for the statusradar services. Components take
// a Logger so tests can hand them NewTestLogger.
package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

//nolint:gochecknoglobals // process-wide default logger
var globalLogger = zerolog.New(os.Stdout).With().Timestamp().Logger()

func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}

// Init builds a logger from config and installs it as the process default,
// including zerolog's own global.
func Init(config *Config) error {
	zlog, err := New(config)
	if err != nil {
		return err
	}

	globalLogger = zlog
	log.Logger = zlog

	return nil
}

// New builds a zerolog.Logger from config without touching global state.
func New(config *Config) (zerolog.Logger, error) {
	if config == nil {
		config = DefaultConfig()
	}

	level, err := config.level()
	if err != nil {
		return zerolog.Nop(), err
	}

	if config.TimeFormat != "" {
		zerolog.TimeFieldFormat = config.TimeFormat
	}

	ctx := zerolog.New(writerFor(config.Output)).Level(level).With().Timestamp()

	for k, v := range config.Fields {
		ctx = ctx.Str(k, v)
	}

	return ctx.Logger(), nil
}

func writerFor(output string) io.Writer {
	switch output {
	case OutputStderr:
		return os.Stderr
	case OutputConsole:
		return zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}
	default:
		return os.Stdout
	}
}

func SetLevel(level zerolog.Level) {
	globalLogger = globalLogger.Level(level)
	log.Logger = globalLogger
}

func GetLogger() zerolog.Logger {
	return globalLogger
}

// WithComponent returns the process logger tagged with component.
func WithComponent(component string) zerolog.Logger {
	return globalLogger.With().Str("component", component).Logger()
}

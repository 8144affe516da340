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
	"bytes"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	require.NoError(t, Init(&Config{Level: "warn", Output: OutputStderr}))
	t.Cleanup(func() { _ = Init(&Config{}) })

	assert.Equal(t, zerolog.WarnLevel, GetLogger().GetLevel())
}

func TestNewLevels(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		want zerolog.Level
	}{
		{name: "empty defaults to info", cfg: Config{}, want: zerolog.InfoLevel},
		{name: "explicit", cfg: Config{Level: "error"}, want: zerolog.ErrorLevel},
		{name: "case insensitive", cfg: Config{Level: "DEBUG"}, want: zerolog.DebugLevel},
		{name: "debug flag wins", cfg: Config{Level: "error", Debug: true}, want: zerolog.DebugLevel},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(&tt.cfg)
			require.NoError(t, err)
			assert.Equal(t, tt.want, l.GetLevel())
		})
	}
}

func TestNewRejectsBadLevel(t *testing.T) {
	_, err := New(&Config{Level: "shouting"})
	require.Error(t, err)
	require.Error(t, Init(&Config{Level: "shouting"}))
}

func TestWrapAddsComponentAndLevel(t *testing.T) {
	var buf bytes.Buffer

	l := Wrap(zerolog.New(&buf))
	comp := l.WithComponent("statusd")
	comp.Info().Msg("hello")

	assert.Contains(t, buf.String(), `"component":"statusd"`)
	assert.Contains(t, buf.String(), `"message":"hello"`)

	buf.Reset()
	l.SetLevel(zerolog.ErrorLevel)
	l.Info().Msg("dropped")
	assert.Empty(t, buf.String())
}

func TestNewTestLoggerIsSilent(t *testing.T) {
	assert.False(t, NewTestLogger().Error().Enabled())
}

func TestDefaultConfigFromEnv(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("LOG_OUTPUT", OutputConsole)
	t.Setenv("DEBUG", "yes")

	cfg := DefaultConfig()

	assert.Equal(t, "info", cfg.Level)
	assert.True(t, cfg.Debug)
	assert.Equal(t, OutputConsole, cfg.Output)

	t.Setenv("DEBUG", "0")
	assert.False(t, DefaultConfig().Debug)
}

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
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/statusradar/pkg/models"
)

const sampleDefs = `
# tables
T1, gw1, 16
T2, gw2, 8   # trailing comment

T1.X,T1(4:2:aint)
T1.MODE,T1(0:1:bin:0x0f)
T1.POS,T1($T1.X+2:4:sfloat:0.001)
T1.NAME,T1($T1.POS + 4 - 0x2:4:str)
T2.RAW,T2(0:8:raw)
`

func TestParse(t *testing.T) {
	c, err := Parse(strings.NewReader(sampleDefs))
	require.NoError(t, err)

	tables := c.Tables()
	require.Len(t, tables, 2)
	assert.Equal(t, "T1", tables[0].Name)
	assert.Equal(t, "gw1", tables[0].Host)
	assert.Equal(t, 16, tables[0].Size)
	assert.Equal(t, 8, tables[1].Size)

	x, ok := c.Alias("T1.X")
	require.True(t, ok)
	assert.Equal(t, 4, x.Offset)
	assert.Equal(t, 2, x.Length)
	assert.Equal(t, models.TypeASCIIInt, x.Type)

	mode, _ := c.Alias("T1.MODE")
	assert.True(t, mode.HasMask)
	assert.Equal(t, uint64(0x0f), mode.Mask)

	pos, _ := c.Alias("T1.POS")
	assert.Equal(t, 6, pos.Offset)
	assert.InDelta(t, 0.001, pos.Multiplier, 1e-12)

	name, _ := c.Alias("T1.NAME")
	assert.Equal(t, 8, name.Offset)

	assert.Equal(t, []string{"T1.X", "T1.MODE", "T1.POS", "T1.NAME"}, c.AliasNames("T1"))
	assert.Equal(t, []string{"T2.RAW"}, c.AliasNames("T2"))
	assert.Len(t, c.AllAliasNames(), 5)
}

func TestParseTablesAfterAliases(t *testing.T) {
	c, err := Parse(strings.NewReader("A.B,A(0:1:bin)\nA, host, 4\n"))
	require.NoError(t, err)

	_, ok := c.Alias("A.B")
	assert.True(t, ok)
}

func TestParseErrors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		line    int
		wantErr error
	}{
		{name: "table with two fields", input: "T1, gw1\n", line: 1, wantErr: errMalformedLine},
		{name: "table bad size", input: "T1, gw1, big\n", line: 1, wantErr: errBadSize},
		{name: "duplicate table", input: "T1, a, 4\nT1, b, 4\n", line: 2, wantErr: errDuplicateTable},
		{name: "unknown table", input: "T1, a, 4\nX.Y,T9(0:1:bin)\n", line: 2, wantErr: errUnknownTable},
		{name: "out of bounds", input: "T1, a, 4\nX.Y,T1(3:2:bin)\n", line: 2, wantErr: errOutOfBounds},
		{name: "unknown type", input: "T1, a, 4\nX.Y,T1(0:1:quux)\n", line: 2, wantErr: models.ErrUnknownType},
		{name: "forward reference", input: "T1, a, 8\nX.Y,T1($X.Z:1:bin)\nX.Z,T1(0:1:bin)\n", line: 2, wantErr: errUnknownSymbol},
		{name: "signed length", input: "T1, a, 8\nX.Y,T1(0:3:sint)\n", line: 2, wantErr: errUnsupportedLength},
		{name: "mask on ascii", input: "T1, a, 8\nX.Y,T1(0:3:aint:0xff)\n", line: 2, wantErr: errUnexpectedMask},
		{name: "bad mask", input: "T1, a, 8\nX.Y,T1(0:1:bin:zz)\n", line: 2, wantErr: errBadMask},
		{name: "missing fields", input: "T1, a, 8\nX.Y,T1(0:1)\n", line: 2, wantErr: errMalformedLine},
		{name: "negative offset", input: "T1, a, 8\nX.Y,T1(-1:1:bin)\n", line: 2, wantErr: errNegativeOffset},
		{name: "duplicate alias", input: "T1, a, 8\nX.Y,T1(0:1:bin)\nX.Y,T1(1:1:bin)\n", line: 3, wantErr: errDuplicateAlias},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(strings.NewReader(tt.input))
			require.Error(t, err)

			var cfgErr *ConfigError
			require.True(t, errors.As(err, &cfgErr), "expected ConfigError, got %T", err)
			assert.Equal(t, tt.line, cfgErr.Line)
			assert.ErrorIs(t, err, tt.wantErr)
			assert.Contains(t, err.Error(), "line")
		})
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "defs.txt")
	require.NoError(t, os.WriteFile(path, []byte(sampleDefs), 0o600))

	c, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, c.Tables(), 2)

	_, err = Load(filepath.Join(t.TempDir(), "missing.txt"))
	var cfgErr *ConfigError
	assert.ErrorAs(t, err, &cfgErr)
}

func TestNewAndOverrides(t *testing.T) {
	c, err := New(
		[]models.TableDefinition{{Name: "T", Host: "h", Size: 4}},
		[]models.AliasDefinition{{Name: "T.A", Table: "T", Offset: 0, Length: 2, Type: models.TypeUnsigned}},
	)
	require.NoError(t, err)

	require.NoError(t, c.ApplyOverrides(map[string]models.Override{
		"T.A": models.ForcedType{Type: models.TypeSigned},
	}))

	a, _ := c.Alias("T.A")
	assert.Equal(t, models.ForcedType{Type: models.TypeSigned}, a.Override)

	err = c.ApplyOverrides(map[string]models.Override{"nope": models.ForcedType{}})
	assert.ErrorIs(t, err, ErrUnknownAlias)

	_, err = New([]models.TableDefinition{{Name: "T", Host: "h", Size: 0}}, nil)
	assert.ErrorIs(t, err, errBadSize)
}

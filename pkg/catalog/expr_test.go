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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseExpr(t *testing.T) {
	symbols := map[string]int{"A": 10, "T1.B": 34}
	lookup := func(name string) (int, bool) {
		v, ok := symbols[name]
		return v, ok
	}

	tests := []struct {
		src  string
		want int
	}{
		{"0", 0},
		{"42", 42},
		{"0x10", 16},
		{"$A", 10},
		{"$T1.B+34-1", 67},
		{"$A - (2 + 3)", 5},
		{"-(1-4)", 3},
		{" 1 + 2 + 3 ", 6},
	}

	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			e, err := ParseExpr(tt.src)
			require.NoError(t, err)

			got, err := e.Eval(lookup)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseExprErrors(t *testing.T) {
	for _, src := range []string{"", "1 +", "(1", "$", "1 2", "abc", "1*2"} {
		t.Run(src, func(t *testing.T) {
			_, err := ParseExpr(src)
			assert.ErrorIs(t, err, errBadExpression)
		})
	}
}

func TestExprUnknownSymbol(t *testing.T) {
	e, err := ParseExpr("$MISSING+1")
	require.NoError(t, err)

	_, err = e.Eval(func(string) (int, bool) { return 0, false })
	assert.ErrorIs(t, err, errUnknownSymbol)
}

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
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/statusradar/pkg/bus"
	"github.com/carverauto/statusradar/pkg/models"
)

var errDerive = errors.New("derive failed")

func sumOf(a, b string) DeriveFunc {
	return func(in models.Mapping) (models.Value, error) {
		x, okx := in[a].(int64)
		y, oky := in[b].(int64)

		if !okx || !oky {
			return models.NoData, nil
		}

		return x + y, nil
	}
}

func TestFetchUnknownAliasIsNoData(t *testing.T) {
	s := New(Options{})

	got := s.Fetch([]string{"T1.X"})
	assert.Equal(t, models.Mapping{"T1.X": models.NoData}, got)
}

func TestStoreFetchRoundTrip(t *testing.T) {
	s := New(Options{})

	values := models.Mapping{
		"T1.X":    int64(42),
		"T1.NAME": "north",
		"T1.AZ":   12.5,
		"T1.RAW":  []byte{1, 2},
		"T1.ZERO": int64(0),
	}

	require.NoError(t, s.Store(context.Background(), values))
	assert.Equal(t, values, s.Fetch(values.Keys()))
	assert.Equal(t, []string{"T1.AZ", "T1.NAME", "T1.RAW", "T1.X", "T1.ZERO"}, s.Aliases())
}

func TestDefaultsSeedStore(t *testing.T) {
	s := New(Options{Defaults: models.Mapping{"SITE": "north", "LIMIT": 3}})

	assert.Equal(t, models.Mapping{"SITE": "north", "LIMIT": int64(3)}, s.Snapshot())

	require.NoError(t, s.Store(context.Background(), models.Mapping{"SITE": "south", "X": int64(1)}))
	s.Reset()

	assert.Equal(t, models.Mapping{"SITE": "north", "LIMIT": int64(3)}, s.Snapshot())
}

func TestDerivedRecomputedOnInputStore(t *testing.T) {
	s := New(Options{})

	require.NoError(t, s.RegisterDerived("D", []string{"A", "B"}, sumOf("A", "B")))

	// inputs are seeded so the derived alias exists at once
	assert.Equal(t, models.Mapping{"A": models.NoData, "B": models.NoData, "D": models.NoData},
		s.Fetch([]string{"A", "B", "D"}))

	require.NoError(t, s.Store(context.Background(), models.Mapping{"A": int64(1), "B": int64(2)}))
	assert.Equal(t, int64(3), s.Fetch([]string{"D"})["D"])

	require.NoError(t, s.Store(context.Background(), models.Mapping{"B": int64(10)}))
	assert.Equal(t, int64(11), s.Fetch([]string{"D"})["D"])
}

func TestDerivedChainsInDependencyOrder(t *testing.T) {
	s := New(Options{})

	require.NoError(t, s.RegisterDerived("D1", []string{"A", "B"}, sumOf("A", "B")))
	require.NoError(t, s.RegisterDerived("D2", []string{"D1", "C"}, sumOf("D1", "C")))

	require.NoError(t, s.Store(context.Background(), models.Mapping{"A": int64(1), "B": int64(2), "C": int64(4)}))
	assert.Equal(t, int64(7), s.Fetch([]string{"D2"})["D2"])

	require.NoError(t, s.Store(context.Background(), models.Mapping{"A": int64(5)}))
	assert.Equal(t, models.Mapping{"D1": int64(7), "D2": int64(11)}, s.Fetch([]string{"D1", "D2"}))
}

func TestRegisterDerivedRejects(t *testing.T) {
	s := New(Options{})

	require.NoError(t, s.RegisterDerived("D1", []string{"A"}, sumOf("A", "A")))
	require.NoError(t, s.RegisterDerived("D2", []string{"D1"}, sumOf("D1", "D1")))

	tests := []struct {
		name    string
		alias   string
		inputs  []string
		fn      DeriveFunc
		wantErr error
	}{
		{"duplicate", "D1", []string{"B"}, sumOf("B", "B"), errDuplicateDerived},
		{"cycle", "A", []string{"D2"}, sumOf("D2", "D2"), errDerivedCycle},
		{"self", "E", []string{"E"}, sumOf("E", "E"), errDerivedCycle},
		{"no inputs", "E", nil, sumOf("A", "A"), errNoInputs},
		{"nil func", "E", []string{"A"}, nil, errNilDeriveFunc},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.RegisterDerived(tt.alias, tt.inputs, tt.fn)
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDeriveErrorYieldsErrorValue(t *testing.T) {
	s := New(Options{})

	require.NoError(t, s.RegisterDerived("D", []string{"A"}, func(models.Mapping) (models.Value, error) {
		return nil, errDerive
	}))

	require.NoError(t, s.Store(context.Background(), models.Mapping{"A": int64(1)}))
	assert.Equal(t, models.ErrorValue, s.Fetch([]string{"D"})["D"])
}

func TestConcurrentStoreFetchSeesWholeDerive(t *testing.T) {
	s := New(Options{})

	require.NoError(t, s.RegisterDerived("D", []string{"A", "B"}, sumOf("A", "B")))
	require.NoError(t, s.Store(context.Background(), models.Mapping{"A": int64(0), "B": int64(0)}))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()

	var wg sync.WaitGroup

	wg.Add(1)

	go func() {
		defer wg.Done()

		for i := int64(1); ctx.Err() == nil; i++ {
			_ = s.Store(context.Background(), models.Mapping{"A": i, "B": i})
		}
	}()

	torn := 0

	for ctx.Err() == nil {
		got := s.Fetch([]string{"A", "B", "D"})

		a, _ := got["A"].(int64)
		b, _ := got["B"].(int64)
		d, _ := got["D"].(int64)

		if a != b || d != a+b {
			torn++
		}
	}

	wg.Wait()

	assert.Zero(t, torn)
}

func TestStorePublishesRawAndDerived(t *testing.T) {
	b := bus.NewMemoryBus()
	t.Cleanup(func() { _ = b.Close() })

	got := make(chan *bus.Message, 8)

	_, err := b.Subscribe(bus.PrefixStatus, func(_ context.Context, msg *bus.Message) {
		got <- msg
	})
	require.NoError(t, err)

	s := New(Options{Bus: b})
	require.NoError(t, s.RegisterDerived("D", []string{"A", "B"}, sumOf("A", "B")))
	require.NoError(t, s.Store(context.Background(), models.Mapping{"A": int64(1), "B": int64(2)}))

	seen := map[string]models.Value{}

	require.Eventually(t, func() bool {
		for {
			select {
			case msg := <-got:
				for k, v := range msg.Values {
					seen[k] = v
				}
			default:
				return len(seen) == 3
			}
		}
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, map[string]models.Value{"A": int64(1), "B": int64(2), "D": int64(3)}, seen)
}

func TestRegisterSpecs(t *testing.T) {
	s := New(Options{})

	require.NoError(t, s.RegisterSpecs([]DerivedSpec{
		{Name: "TOTAL", Inputs: []string{"A", "B"}, Reducer: ReducerSum},
		{Name: "ANY", Inputs: []string{"NAME1", "NAME2"}, Reducer: ReducerFirst},
	}))

	require.NoError(t, s.Store(context.Background(), models.Mapping{
		"A":     int64(2),
		"B":     1.5,
		"NAME2": "north",
	}))

	got := s.Fetch([]string{"TOTAL", "ANY"})
	assert.InDelta(t, 3.5, got["TOTAL"], 1e-9)
	assert.Equal(t, "north", got["ANY"])

	err := s.RegisterSpecs([]DerivedSpec{{Name: "X", Inputs: []string{"A"}, Reducer: "median"}})
	require.ErrorIs(t, err, errUnknownReducer)
}

func TestStoreNormalizesPlainInts(t *testing.T) {
	s := New(Options{})

	require.NoError(t, s.RegisterSpecs([]DerivedSpec{
		{Name: "D", Inputs: []string{"A", "B"}, Reducer: ReducerSum},
	}))
	require.NoError(t, s.RegisterDerived("E", []string{"A", "B"}, sumOf("A", "B")))

	require.NoError(t, s.Store(context.Background(), models.Mapping{"A": 1, "B": uint8(2)}))

	got := s.Fetch([]string{"A", "B", "D", "E"})
	assert.Equal(t, int64(1), got["A"])
	assert.Equal(t, uint64(2), got["B"])
	assert.InDelta(t, 3.0, got["D"], 1e-9)
	assert.Equal(t, models.NoData, got["E"], "sumOf only adds two int64 inputs")

	require.NoError(t, s.Store(context.Background(), models.Mapping{"B": 2}))
	got = s.Fetch([]string{"D", "E"})
	assert.InDelta(t, 3.0, got["D"], 1e-9)
	assert.Equal(t, int64(3), got["E"])
}

func TestDeriveOutputIsNormalized(t *testing.T) {
	s := New(Options{})

	require.NoError(t, s.RegisterDerived("N", []string{"A"}, func(models.Mapping) (models.Value, error) {
		return 7, nil
	}))
	require.NoError(t, s.RegisterDerived("Z", []string{"A"}, func(models.Mapping) (models.Value, error) {
		return nil, nil
	}))

	require.NoError(t, s.Store(context.Background(), models.Mapping{"A": int64(1)}))

	got := s.Fetch([]string{"N", "Z"})
	assert.Equal(t, int64(7), got["N"])
	assert.Equal(t, models.Null, got["Z"])
}

func TestReducers(t *testing.T) {
	in := models.Mapping{"A": int64(4), "B": uint64(2), "C": 6.0, "S": "text", "N": models.NoData}
	inputs := []string{"N", "S", "A", "B", "C"}

	tests := []struct {
		reducer string
		want    models.Value
	}{
		{ReducerSum, 12.0},
		{ReducerMean, 4.0},
		{ReducerMin, 2.0},
		{ReducerMax, 6.0},
		{ReducerFirst, "text"},
	}

	for _, tt := range tests {
		t.Run(tt.reducer, func(t *testing.T) {
			fn, err := Reducer(tt.reducer, inputs)
			require.NoError(t, err)

			got, err := fn(in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	t.Run("no numbers", func(t *testing.T) {
		fn, err := Reducer(ReducerSum, []string{"S", "N"})
		require.NoError(t, err)

		got, err := fn(in)
		require.NoError(t, err)
		assert.Equal(t, models.NoData, got)
	})
}

func TestIgnoreSet(t *testing.T) {
	s := New(Options{})

	s.Ignore("T2")
	s.Ignore("T1")
	s.Ignore("T2")

	assert.Equal(t, []string{"T1", "T2"}, s.Ignored())
	assert.True(t, s.IsIgnored("T1"))

	list := s.Ignored()
	list[0] = "mutated"
	assert.Equal(t, []string{"T1", "T2"}, s.Ignored())

	s.Unignore("T1")
	s.Unignore("T9")
	assert.Equal(t, []string{"T2"}, s.Ignored())
	assert.False(t, s.IsIgnored("T1"))
}

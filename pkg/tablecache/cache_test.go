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

package tablecache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/statusradar/pkg/catalog"
	"github.com/carverauto/statusradar/pkg/logger"
	"github.com/carverauto/statusradar/pkg/metrics"
	"github.com/carverauto/statusradar/pkg/models"
)

const testDefs = `
T1, gw1, 8
T2, gw2, 4
T1.X,T1(4:2:aint)
T1.FLAGS,T1(0:1:bin:0x0f)
T1.BAD,T1(6:2:aint)
T2.N,T2(0:4:bin)
`

var errDown = errors.New("gateway down")

type fakeReader struct {
	mu     sync.Mutex
	tables map[string][]byte
	calls  map[string]int
	fail   bool
	gates  map[string]chan struct{}
}

func newFakeReader() *fakeReader {
	return &fakeReader{
		tables: map[string][]byte{
			"T1": []byte("\xff\x00\x00\x0042zz"),
			"T2": {0, 0, 1, 0},
		},
		calls: make(map[string]int),
		gates: make(map[string]chan struct{}),
	}
}

func (f *fakeReader) ReadTableWindow(ctx context.Context, table *models.TableDefinition, offset, length int) ([]byte, error) {
	f.mu.Lock()
	f.calls[table.Name]++
	gate := f.gates[table.Name]
	fail := f.fail
	buf := append([]byte(nil), f.tables[table.Name][offset:offset+length]...)
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	if fail {
		return nil, errDown
	}

	return buf, nil
}

func (f *fakeReader) count(table string) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return f.calls[table]
}

func (f *fakeReader) setFail(v bool) {
	f.mu.Lock()
	f.fail = v
	f.mu.Unlock()
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newTestCache(t *testing.T) (*Cache, *fakeReader, *fakeClock) {
	t.Helper()

	cat, err := catalog.Parse(strings.NewReader(testDefs))
	require.NoError(t, err)

	reader := newFakeReader()
	clock := &fakeClock{now: time.Unix(1_700_000_000, 0)}

	cm, err := metrics.NewCacheMetrics(metrics.NewRegistry())
	require.NoError(t, err)

	c := New(cat, reader, Config{TTL: models.Duration(10 * time.Second)}, logger.NewTestLogger(), cm)
	c.now = clock.Now

	return c, reader, clock
}

func TestGetValueASCIIInt(t *testing.T) {
	c, _, _ := newTestCache(t)

	v, err := c.GetValue(context.Background(), "T1.X", false)
	require.NoError(t, err)
	assert.Equal(t, int64(42), v)

	v, err = c.GetValue(context.Background(), "T1.FLAGS", false)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x0f), v)
}

func TestInvalidateTriggersExactlyOneFetch(t *testing.T) {
	c, reader, _ := newTestCache(t)
	ctx := context.Background()

	_, err := c.GetValue(ctx, "T1.X", false)
	require.NoError(t, err)
	require.Equal(t, 1, reader.count("T1"))

	require.NoError(t, c.Invalidate("T1"))
	assert.Equal(t, StateInvalid, c.State("T1"))

	var wg sync.WaitGroup

	for range 8 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			_, _ = c.GetValue(ctx, "T1.FLAGS", false)
		}()
	}

	wg.Wait()

	assert.Equal(t, 2, reader.count("T1"))
	assert.Equal(t, StateFresh, c.State("T1"))
}

func TestTTL(t *testing.T) {
	c, reader, clock := newTestCache(t)
	ctx := context.Background()

	assert.Equal(t, StateUninitialized, c.State("T1"))

	_, err := c.GetValue(ctx, "T1.X", false)
	require.NoError(t, err)

	clock.Advance(10 * time.Second)

	_, err = c.GetValue(ctx, "T1.FLAGS", false)
	require.NoError(t, err)
	assert.Equal(t, 1, reader.count("T1"), "two reads within the TTL fetch once")

	clock.Advance(time.Second)
	assert.Equal(t, StateStale, c.State("T1"))
	assert.Equal(t, []string{"T1"}, c.StaleTables())

	_, err = c.GetValue(ctx, "T1.X", false)
	require.NoError(t, err)
	assert.Equal(t, 2, reader.count("T1"))
	assert.Empty(t, c.StaleTables())
}

func TestFailureModes(t *testing.T) {
	ctx := context.Background()

	t.Run("never fetched", func(t *testing.T) {
		c, reader, _ := newTestCache(t)
		reader.setFail(true)

		_, err := c.GetValue(ctx, "T1.X", false)
		require.ErrorIs(t, err, errDown)

		v, err := c.GetValue(ctx, "T1.X", true)
		require.NoError(t, err)
		assert.Equal(t, models.ErrorValue, v)

		_, err = c.GetValueStale(ctx, "T1.X")
		require.ErrorIs(t, err, errDown)
	})

	t.Run("stale read keeps last good value", func(t *testing.T) {
		c, reader, _ := newTestCache(t)

		_, err := c.GetValue(ctx, "T1.X", false)
		require.NoError(t, err)

		require.NoError(t, c.Invalidate("T1"))
		reader.setFail(true)

		v, err := c.GetValueStale(ctx, "T1.X")
		require.NoError(t, err)
		assert.Equal(t, int64(42), v)

		_, err = c.GetValue(ctx, "T1.X", false)
		require.ErrorIs(t, err, errDown)
	})

	t.Run("unknown alias", func(t *testing.T) {
		c, _, _ := newTestCache(t)

		_, err := c.GetValue(ctx, "NOPE", false)
		require.ErrorIs(t, err, ErrUnknownAlias)

		v, err := c.GetValue(ctx, "NOPE", true)
		require.NoError(t, err)
		assert.Equal(t, models.NoData, v)
	})
}

func TestBatchReads(t *testing.T) {
	c, reader, _ := newTestCache(t)
	ctx := context.Background()

	values, err := c.GetValues(ctx, []string{"T1.X", "T1.BAD", "T2.N", "NOPE"}, true)
	require.NoError(t, err)

	assert.Equal(t, models.Mapping{
		"T1.X":   int64(42),
		"T1.BAD": models.ErrorValue,
		"T2.N":   uint64(256),
		"NOPE":   models.NoData,
	}, values)
	assert.Equal(t, 1, reader.count("T1"))
	assert.Equal(t, 1, reader.count("T2"))

	_, err = c.GetValues(ctx, []string{"T1.X", "NOPE"}, false)
	require.ErrorIs(t, err, ErrUnknownAlias)

	table, err := c.GetTableValues(ctx, "T1", false)
	require.NoError(t, err)
	assert.Len(t, table, 3)
	assert.Equal(t, models.ErrorValue, table["T1.BAD"])

	raw, err := c.GetTable(ctx, "T2")
	require.NoError(t, err)
	raw[0] = 9

	again, err := c.GetTable(ctx, "T2")
	require.NoError(t, err)
	assert.Equal(t, byte(0), again[0])

	_, err = c.GetTableValues(ctx, "T9", false)
	require.ErrorIs(t, err, ErrUnknownTable)
}

func TestTablesDoNotContend(t *testing.T) {
	c, reader, _ := newTestCache(t)

	gate := make(chan struct{})
	reader.mu.Lock()
	reader.gates["T1"] = gate
	reader.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})

	go func() {
		defer close(done)

		_, _ = c.GetValue(ctx, "T1.X", false)
	}()

	require.Eventually(t, func() bool { return reader.count("T1") == 1 }, time.Second, 5*time.Millisecond)

	v, err := c.GetValue(ctx, "T2.N", false)
	require.NoError(t, err)
	assert.Equal(t, uint64(256), v)

	close(gate)
	<-done
}

func TestRefreshLoop(t *testing.T) {
	c, reader, _ := newTestCache(t)
	ctx := context.Background()

	_, err := c.GetValue(ctx, "T1.X", false)
	require.NoError(t, err)
	require.NoError(t, c.Invalidate("T1"))

	var mu sync.Mutex

	var seen []string

	go c.RefreshLoop(ctx, 5*time.Millisecond, func(ctx context.Context, table string) error {
		mu.Lock()
		seen = append(seen, table)
		mu.Unlock()

		return c.Refresh(ctx, table)
	})

	require.Eventually(t, func() bool { return reader.count("T1") == 2 }, time.Second, 5*time.Millisecond)
	c.Stop()

	mu.Lock()
	defer mu.Unlock()

	assert.Equal(t, "T1", seen[0])
	assert.Equal(t, 0, reader.count("T2"), "untouched tables are not refreshed")
}

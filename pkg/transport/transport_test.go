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
	"bytes"
	"context"
	"errors"
	"net"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/statusradar/pkg/logger"
	"github.com/carverauto/statusradar/pkg/models"
)

func freePort(t *testing.T) int {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	port := ln.Addr().(*net.TCPAddr).Port
	require.NoError(t, ln.Close())

	return port
}

func startServer(t *testing.T, src TableSource) (tcpPort, wsPort int) {
	t.Helper()

	srv := NewServer(src, logger.NewTestLogger())

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() { _ = srv.ServeTCP(ln) }()

	hs := httptest.NewServer(srv.Handler())

	t.Cleanup(func() {
		_ = srv.Close()
		hs.Close()
	})

	u, err := url.Parse(hs.URL)
	require.NoError(t, err)

	wsPort, err = strconv.Atoi(u.Port())
	require.NoError(t, err)

	return ln.Addr().(*net.TCPAddr).Port, wsPort
}

func testTable() *models.TableDefinition {
	return &models.TableDefinition{Name: "T1", Host: "127.0.0.1", Size: 8}
}

func testSource() *MemorySource {
	src := NewMemorySource()
	src.Set("T1", []byte("ab  42cd"))

	return src
}

func TestFrameRoundTrip(t *testing.T) {
	req := windowRequest{Table: "TSCS", Offset: 12, Length: 300}

	got, err := readRequest(bytes.NewReader(encodeRequest(req)))
	require.NoError(t, err)
	assert.Equal(t, req, got)

	payload, err := decodeResponse(encodeResponse(statusOK, []byte{1, 2, 3}))
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, payload)

	_, err = decodeResponse(encodeResponse(statusError, []byte("boom")))

	var remote *RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "boom", remote.Message)
}

func TestClientStreamKinds(t *testing.T) {
	tcpPort, wsPort := startServer(t, testSource())

	for _, kind := range []StreamKind{KindTCP, KindWebSocket} {
		t.Run(string(kind), func(t *testing.T) {
			c := NewClient(Config{TCPPort: tcpPort, WSPort: wsPort, Preferred: kind}, logger.NewTestLogger())

			data, err := c.ReadTableWindow(context.Background(), testTable(), 4, 2)
			require.NoError(t, err)
			assert.Equal(t, []byte("42"), data)

			last, ok := c.LastKind("127.0.0.1")
			require.True(t, ok)
			assert.Equal(t, kind, last)
		})
	}
}

func TestClientFallsBackOnDialFailure(t *testing.T) {
	tcpPort, _ := startServer(t, testSource())

	c := NewClient(Config{
		TCPPort:      tcpPort,
		WSPort:       freePort(t),
		Preferred:    KindWebSocket,
		RetryBackoff: models.Duration(time.Millisecond),
	}, logger.NewTestLogger())

	data, err := c.ReadTableWindow(context.Background(), testTable(), 0, 8)
	require.NoError(t, err)
	assert.Equal(t, []byte("ab  42cd"), data)

	last, _ := c.LastKind("127.0.0.1")
	assert.Equal(t, KindTCP, last)
}

func TestClientRemoteErrorNotRetried(t *testing.T) {
	tcpPort, wsPort := startServer(t, testSource())

	c := NewClient(Config{TCPPort: tcpPort, WSPort: wsPort, Preferred: KindTCP}, logger.NewTestLogger())

	var dials atomic.Int32

	tcp := c.dialers[KindTCP]
	c.dialers[KindTCP] = func(ctx context.Context, host string) (exchanger, error) {
		dials.Add(1)

		return tcp(ctx, host)
	}

	_, err := c.ReadTableWindow(context.Background(), testTable(), 6, 10)
	require.Error(t, err)

	var terr *TransportError

	var remote *RemoteError

	require.ErrorAs(t, err, &terr)
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "T1", terr.Table)
	assert.Equal(t, int32(1), dials.Load())
}

type fakeStream struct {
	fn func(req []byte) ([]byte, error)
}

func (f *fakeStream) exchange(_ context.Context, req []byte) ([]byte, error) {
	return f.fn(req)
}

func (*fakeStream) Close() error { return nil }

func TestClientRetriesOnce(t *testing.T) {
	errFlaky := errors.New("connection reset")

	newClient := func(failures int32) (*Client, *atomic.Int32) {
		c := NewClient(Config{Preferred: KindTCP, RetryBackoff: models.Duration(time.Millisecond)}, logger.NewTestLogger())

		var calls atomic.Int32

		c.dialers = map[StreamKind]dialFunc{
			KindTCP: func(context.Context, string) (exchanger, error) {
				return &fakeStream{fn: func([]byte) ([]byte, error) {
					if calls.Add(1) <= failures {
						return nil, errFlaky
					}

					return []byte("42"), nil
				}}, nil
			},
		}

		return c, &calls
	}

	t.Run("second attempt succeeds", func(t *testing.T) {
		c, calls := newClient(1)

		data, err := c.ReadTableWindow(context.Background(), testTable(), 4, 2)
		require.NoError(t, err)
		assert.Equal(t, []byte("42"), data)
		assert.Equal(t, int32(2), calls.Load())
	})

	t.Run("gives up after two attempts", func(t *testing.T) {
		c, calls := newClient(5)

		_, err := c.ReadTableWindow(context.Background(), testTable(), 4, 2)
		require.ErrorIs(t, err, errFlaky)
		assert.Equal(t, int32(2), calls.Load())
	})
}

func TestClientShortWindow(t *testing.T) {
	c := NewClient(Config{Preferred: KindTCP, RetryBackoff: models.Duration(time.Millisecond)}, logger.NewTestLogger())
	c.dialers = map[StreamKind]dialFunc{
		KindTCP: func(context.Context, string) (exchanger, error) {
			return &fakeStream{fn: func([]byte) ([]byte, error) { return []byte{1}, nil }}, nil
		},
	}

	_, err := c.ReadTableWindow(context.Background(), testTable(), 0, 8)
	require.ErrorIs(t, err, errShortWindow)
}

func TestMemorySourceBounds(t *testing.T) {
	src := testSource()

	_, err := src.Window("T2", 0, 1)
	require.ErrorIs(t, err, errUnknownTable)

	_, err = src.Window("T1", 7, 2)
	require.ErrorIs(t, err, errWindowBounds)

	require.NoError(t, src.Update("T1", 4, []byte("99")))

	data, err := src.Window("T1", 4, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte("99"), data)
}

func TestDirSource(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "T1.bin"), []byte("\xff\x00\x00\x0042zz"), 0o600))

	src := DirSource{Dir: dir}

	data, err := src.Window("T1", 4, 2)
	require.NoError(t, err)
	assert.Equal(t, []byte("42"), data)

	_, err = src.Window("T9", 0, 1)
	require.ErrorIs(t, err, errUnknownTable)

	_, err = src.Window("../T1", 0, 1)
	require.ErrorIs(t, err, errUnknownTable)

	_, err = src.Window("T1", 6, 4)
	require.ErrorIs(t, err, errWindowBounds)
}

func TestDirSourceWatch(t *testing.T) {
	dir := t.TempDir()
	src := DirSource{Dir: dir}

	ctx, cancel := context.WithCancel(context.Background())

	changed := make(chan string, 16)
	done := make(chan error, 1)

	go func() {
		done <- src.Watch(ctx, logger.NewTestLogger(), func(table string) { changed <- table })
	}()

	// the watcher registers asynchronously; keep writing until it reports
	require.Eventually(t, func() bool {
		_ = os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o600)
		_ = os.WriteFile(filepath.Join(dir, "T1.bin"), []byte("abcd"), 0o600)

		select {
		case table := <-changed:
			return table == "T1"
		case <-time.After(20 * time.Millisecond):
			return false
		}
	}, 5*time.Second, 10*time.Millisecond)

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}

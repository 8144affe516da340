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

package names

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/statusradar/internal/natstest"
	"github.com/carverauto/statusradar/pkg/logger"
	"github.com/carverauto/statusradar/pkg/models"
	"github.com/carverauto/statusradar/pkg/natsutil"
)

func startAPI(t *testing.T) (*Registry, *Client) {
	t.Helper()

	srv := natstest.RunServer(t)
	nc := natstest.Connect(t, srv)

	r, _ := newTestRegistry(t, nil, 30*time.Second)

	api := NewAPI(nc, r, 4, logger.NewTestLogger())
	require.NoError(t, api.Start(context.Background()))
	t.Cleanup(func() { _ = api.Stop(context.Background()) })

	return r, NewClient(nc, time.Second)
}

func TestClientAgainstAPI(t *testing.T) {
	r, c := startAPI(t)
	ctx := context.Background()

	created, err := c.Register(ctx, "statusd", "h1", 7000, Options{Secure: true})
	require.NoError(t, err)
	assert.True(t, created)

	created, err = c.Register(ctx, "statusd", "h1", 7000, Options{Secure: true})
	require.NoError(t, err)
	assert.False(t, created)

	_, err = c.Register(ctx, "archiver", "h2", 7001, Options{Keep: true})
	require.NoError(t, err)

	eps, err := c.GetInfo(ctx, "statusd")
	require.NoError(t, err)
	assert.Equal(t, []models.Endpoint{{Host: "h1", Port: 7000, Secure: true}}, eps)

	ep, err := c.Lookup(ctx, "archiver")
	require.NoError(t, err)
	assert.Equal(t, "h2:7001", ep.Addr())

	_, err = c.Lookup(ctx, "missing")
	require.ErrorIs(t, err, ErrNameNotFound)

	names, err := c.GetNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"archiver", "statusd"}, names)

	names, err = c.GetNamesOnHost(ctx, "h2")
	require.NoError(t, err)
	assert.Equal(t, []string{"archiver"}, names)

	removed, err := c.Unregister(ctx, "statusd", "h1", 7000)
	require.NoError(t, err)
	assert.True(t, removed)
	assert.Equal(t, []string{"archiver"}, r.GetNames())
}

func TestAPIRejectsBadRegistration(t *testing.T) {
	_, c := startAPI(t)

	_, err := c.Register(context.Background(), "statusd", "h1", 0, Options{})

	var svcErr *natsutil.ServiceError
	require.ErrorAs(t, err, &svcErr)
	assert.Equal(t, natsutil.CodeBadRequest, svcErr.Code)
}

func TestAdvertiser(t *testing.T) {
	r, c := startAPI(t)
	ctx := context.Background()

	adv := NewAdvertiser(c, "statusd", "h1", 7000, Options{}, 10*time.Millisecond, logger.NewTestLogger())
	require.NoError(t, adv.Start(ctx))

	assert.Equal(t, []models.Endpoint{{Host: "h1", Port: 7000}}, r.GetInfo("statusd"))

	require.NoError(t, adv.Stop(ctx))
	assert.Empty(t, r.GetInfo("statusd"))

	bad := NewAdvertiser(c, "", "h1", 7000, Options{}, time.Second, logger.NewTestLogger())
	require.ErrorIs(t, bad.Start(ctx), errBadAdvertise)
}

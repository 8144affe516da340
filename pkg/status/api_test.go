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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/statusradar/internal/natstest"
	"github.com/carverauto/statusradar/pkg/logger"
	"github.com/carverauto/statusradar/pkg/models"
	"github.com/carverauto/statusradar/pkg/natsutil"
)

func TestAPIEndpoints(t *testing.T) {
	srv := natstest.RunServer(t)
	nc := natstest.Connect(t, srv)
	ctx := context.Background()

	cache := &fakeCache{tables: map[string]models.Mapping{"T1": {"T1.X": int64(42)}}}
	store := New(Options{Cache: cache, Defaults: models.Mapping{"SITE": "north"}})

	api := NewAPI(nc, store, 4, logger.NewTestLogger())
	require.NoError(t, api.Start(ctx))
	t.Cleanup(func() { _ = api.Stop(ctx) })

	t.Run("store then fetch", func(t *testing.T) {
		var stored StoreResponse

		err := natsutil.Request(ctx, nc, "statusd.store", StoreRequest{Values: models.Mapping{
			"A":   int64(5),
			"OFF": models.NoData,
		}}, &stored)
		require.NoError(t, err)
		assert.Equal(t, 2, stored.Stored)

		var got ValuesResponse

		err = natsutil.Request(ctx, nc, "statusd.fetch", FetchRequest{Aliases: []string{"A", "OFF", "MISSING"}}, &got)
		require.NoError(t, err)

		models.NormalizeMapping(got.Values)
		assert.Equal(t, models.Mapping{"A": int64(5), "OFF": models.NoData, "MISSING": models.NoData}, got.Values)
	})

	t.Run("fetch all", func(t *testing.T) {
		var got ValuesResponse

		require.NoError(t, natsutil.Request(ctx, nc, "statusd.fetch", FetchRequest{}, &got))
		assert.Equal(t, "north", got.Values["SITE"])
	})

	t.Run("update", func(t *testing.T) {
		require.NoError(t, natsutil.Request(ctx, nc, "statusd.update", TableRequest{Table: "T1"}, nil))
		assert.Equal(t, int64(42), store.Fetch([]string{"T1.X"})["T1.X"])
	})

	t.Run("ignore and unignore", func(t *testing.T) {
		var tables TablesResponse

		require.NoError(t, natsutil.Request(ctx, nc, "statusd.ignore", TableRequest{Table: "T2"}, &tables))
		assert.Equal(t, []string{"T2"}, tables.Tables)

		require.NoError(t, natsutil.Request(ctx, nc, "statusd.ignored", struct{}{}, &tables))
		assert.Equal(t, []string{"T2"}, tables.Tables)

		require.NoError(t, natsutil.Request(ctx, nc, "statusd.unignore", TableRequest{Table: "T2"}, &tables))
		assert.Empty(t, tables.Tables)
	})

	t.Run("bad request", func(t *testing.T) {
		err := natsutil.Request(ctx, nc, "statusd.ignore", TableRequest{}, nil)

		var svcErr *natsutil.ServiceError
		require.ErrorAs(t, err, &svcErr)
		assert.Equal(t, natsutil.CodeBadRequest, svcErr.Code)
	})
}

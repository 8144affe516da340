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
	"fmt"
	"time"

	"github.com/carverauto/statusradar/pkg/bus"
	"github.com/carverauto/statusradar/pkg/models"
)

// UpdateTable runs the table-update pipeline: invalidate the cached table,
// refetch it, store every alias of the table and announce the refresh on
// statupd.<table>. Ignored tables are skipped before any work is done.
// Transport or decode failures are stored as ErrorValue.
func (s *Store) UpdateTable(ctx context.Context, table string) error {
	if s.cache == nil {
		return errNoCache
	}

	if s.ignored.contains(table) {
		s.logger.Debug().Str("table", table).Msg("Dropping update for ignored table")

		return nil
	}

	err := s.updateTable(ctx, table)
	s.metrics.RecordTableUpdate(table, err)

	return err
}

func (s *Store) updateTable(ctx context.Context, table string) error {
	if err := s.cache.Invalidate(table); err != nil {
		return err
	}

	values, err := s.cache.GetTableValues(ctx, table, true)
	if err != nil {
		return fmt.Errorf("extract table %s: %w", table, err)
	}

	storeErr := s.Store(ctx, values)

	if s.bus != nil {
		note := models.Mapping{
			"table": table,
			"time":  s.now().UTC().Format(time.RFC3339Nano),
			"count": int64(len(values)),
		}

		if err := s.bus.Publish(ctx, bus.TableUpdateTopic(table), note); err != nil {
			s.logger.Warn().Err(err).Str("table", table).Msg("Failed to publish table update")

			return err
		}
	}

	return storeErr
}

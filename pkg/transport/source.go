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
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/carverauto/statusradar/pkg/logger"
)

// TableSource supplies table bytes to a Server.
type TableSource interface {
	Window(table string, offset, length int) ([]byte, error)
}

func checkBounds(table string, size, offset, length int) error {
	if offset < 0 || length < 0 || offset+length > size {
		return fmt.Errorf("%w: %s [%d:%d] size %d", errWindowBounds, table, offset, offset+length, size)
	}

	return nil
}

// MemorySource keeps table buffers in memory.
type MemorySource struct {
	mu     sync.RWMutex
	tables map[string][]byte
}

// NewMemorySource creates an empty source.
func NewMemorySource() *MemorySource {
	return &MemorySource{tables: make(map[string][]byte)}
}

// Set replaces the whole buffer of a table.
func (m *MemorySource) Set(table string, buf []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.tables[table] = append([]byte(nil), buf...)
}

// Update overwrites part of an existing table buffer.
func (m *MemorySource) Update(table string, offset int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	buf, ok := m.tables[table]
	if !ok {
		return fmt.Errorf("%w: %s", errUnknownTable, table)
	}

	if err := checkBounds(table, len(buf), offset, len(data)); err != nil {
		return err
	}

	copy(buf[offset:], data)

	return nil
}

func (m *MemorySource) Window(table string, offset, length int) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	buf, ok := m.tables[table]
	if !ok {
		return nil, fmt.Errorf("%w: %s", errUnknownTable, table)
	}

	if err := checkBounds(table, len(buf), offset, length); err != nil {
		return nil, err
	}

	return append([]byte(nil), buf[offset:offset+length]...), nil
}

const tableFileExt = ".bin"

// DirSource serves each table from the file <dir>/<table>.bin, read on
// every request so an external writer can replace it at any time.
type DirSource struct {
	Dir string
}

func (d DirSource) Window(table string, offset, length int) ([]byte, error) {
	if table == "" || filepath.Base(table) != table {
		return nil, fmt.Errorf("%w: %q", errUnknownTable, table)
	}

	buf, err := os.ReadFile(filepath.Join(d.Dir, table+tableFileExt))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", errUnknownTable, table)
		}

		return nil, err
	}

	if err := checkBounds(table, len(buf), offset, length); err != nil {
		return nil, err
	}

	return buf[offset : offset+length], nil
}

// Watch calls fn with the table name whenever a table file in the
// directory is written, created or renamed into place, until ctx is done.
func (d DirSource) Watch(ctx context.Context, log logger.Logger, fn func(table string)) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}

	defer func() { _ = w.Close() }()

	if err := w.Add(d.Dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", d.Dir, err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}

			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) {
				continue
			}

			base := filepath.Base(ev.Name)
			if strings.HasPrefix(base, ".") || filepath.Ext(base) != tableFileExt {
				continue
			}

			fn(strings.TrimSuffix(base, tableFileExt))
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}

			log.Warn().Err(err).Str("dir", d.Dir).Msg("Table directory watch error")
		}
	}
}

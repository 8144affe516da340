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
	"sort"
	"sync"
)

// ignoreSet holds tables whose update events are dropped. Membership is
// checked once when an update starts; updates already running finish.
type ignoreSet struct {
	mu     sync.RWMutex
	tables map[string]struct{}
}

func newIgnoreSet() *ignoreSet {
	return &ignoreSet{tables: make(map[string]struct{})}
}

func (s *ignoreSet) add(table string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tables[table] = struct{}{}

	return len(s.tables)
}

func (s *ignoreSet) remove(table string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.tables, table)

	return len(s.tables)
}

func (s *ignoreSet) replace(tables []string) int {
	next := make(map[string]struct{}, len(tables))
	for _, t := range tables {
		next[t] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.tables = next

	return len(next)
}

func (s *ignoreSet) contains(table string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	_, ok := s.tables[table]

	return ok
}

// list returns a sorted copy.
func (s *ignoreSet) list() []string {
	s.mu.RLock()
	out := make([]string, 0, len(s.tables))

	for t := range s.tables {
		out = append(out, t)
	}
	s.mu.RUnlock()

	sort.Strings(out)

	return out
}

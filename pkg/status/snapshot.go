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
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/carverauto/statusradar/pkg/kv"
	"github.com/carverauto/statusradar/pkg/models"
)

const (
	snapshotHeader = "# status snapshot dumped at "
	binaryTag      = "!!binary"
	// uintTag keeps unsigned values unsigned; plain YAML ints restore as int64.
	uintTag = "!uint"
)

// MarshalSnapshot renders the whole mapping as a YAML document preceded by
// a single timestamp comment. Keys are sorted.
func (s *Store) MarshalSnapshot() ([]byte, error) {
	values := s.Snapshot()

	keys := values.Keys()
	sort.Strings(keys)

	doc := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}

	for _, k := range keys {
		val, err := valueNode(values[k])
		if err != nil {
			return nil, fmt.Errorf("alias %s: %w", k, err)
		}

		doc.Content = append(doc.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: k}, val)
	}

	var buf bytes.Buffer

	buf.WriteString(snapshotHeader + s.now().UTC().Format(time.RFC3339) + "\n")

	if len(keys) == 0 {
		buf.WriteString("{}\n")

		return buf.Bytes(), nil
	}

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)

	if err := enc.Encode(doc); err != nil {
		return nil, err
	}

	if err := enc.Close(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func valueNode(v models.Value) (*yaml.Node, error) {
	switch t := v.(type) {
	case []byte:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: binaryTag, Value: base64.StdEncoding.EncodeToString(t)}, nil
	case uint64:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: uintTag, Value: strconv.FormatUint(t, 10)}, nil
	case models.Sentinel:
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: string(t)}, nil
	case float64:
		// tagged so integral floats do not come back as ints
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!float", Value: formatFloat(t)}, nil
	}

	n := &yaml.Node{}
	if err := n.Encode(v); err != nil {
		return nil, err
	}

	return n, nil
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f):
		return ".nan"
	case math.IsInf(f, 1):
		return ".inf"
	case math.IsInf(f, -1):
		return "-.inf"
	default:
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
}

// ParseSnapshot decodes a snapshot document. It accepts exactly one mapping
// of alias to scalar value.
func ParseSnapshot(data []byte) (models.Mapping, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}

	out := models.Mapping{}

	if root.Kind == 0 {
		return out, nil
	}

	if root.Kind != yaml.DocumentNode || len(root.Content) != 1 || root.Content[0].Kind != yaml.MappingNode {
		return nil, errBadSnapshot
	}

	m := root.Content[0]

	for i := 0; i+1 < len(m.Content); i += 2 {
		key, val := m.Content[i], m.Content[i+1]

		if key.Kind != yaml.ScalarNode || val.Kind != yaml.ScalarNode {
			return nil, fmt.Errorf("%w: line %d", errBadSnapshot, key.Line)
		}

		switch val.Tag {
		case binaryTag:
			raw, err := base64.StdEncoding.DecodeString(val.Value)
			if err != nil {
				return nil, fmt.Errorf("alias %s: %w", key.Value, err)
			}

			out[key.Value] = raw

			continue
		case uintTag:
			u, err := strconv.ParseUint(val.Value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("alias %s: %w", key.Value, err)
			}

			out[key.Value] = u

			continue
		}

		var v any
		if err := val.Decode(&v); err != nil {
			return nil, fmt.Errorf("alias %s: %w", key.Value, err)
		}

		out[key.Value] = models.Normalize(v)
	}

	return out, nil
}

// Checkpoint writes the snapshot to path atomically.
func (s *Store) Checkpoint(path string) error {
	data, err := s.MarshalSnapshot()
	if err == nil {
		err = writeFileAtomic(path, data)
	}

	s.metrics.RecordCheckpoint(err)

	if err != nil {
		return fmt.Errorf("checkpoint %s: %w", path, err)
	}

	return nil
}

func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}

	defer func() { _ = os.Remove(tmp.Name()) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()

		return err
	}

	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()

		return err
	}

	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmp.Name(), path)
}

// Restore replaces the mapping with defaults plus the snapshot at path. If
// the file cannot be read or parsed the store holds only its defaults and
// the error is returned.
func (s *Store) Restore(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		s.Reset()

		return err
	}

	return s.restore(data, path)
}

func (s *Store) restore(data []byte, source string) error {
	values, err := ParseSnapshot(data)
	if err != nil {
		s.Reset()
		s.logger.Error().Err(err).Str("source", source).Msg("Snapshot unreadable, store reset to defaults")

		return fmt.Errorf("restore %s: %w", source, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.values = s.defaults.Clone()
	for k, v := range values {
		s.values[k] = v
	}

	s.rederiveLocked()

	s.logger.Info().Str("source", source).Int("aliases", len(values)).Msg("Restored status snapshot")

	return nil
}

// CheckpointKV stores the snapshot under key in a KV bucket.
func (s *Store) CheckpointKV(ctx context.Context, store kv.KVStore, key string) error {
	data, err := s.MarshalSnapshot()
	if err == nil {
		err = store.Put(ctx, key, data, 0)
	}

	s.metrics.RecordCheckpoint(err)

	if err != nil {
		return fmt.Errorf("checkpoint kv %s: %w", key, err)
	}

	return nil
}

// RestoreKV is Restore reading from a KV bucket. A missing key reports an
// error wrapping os.ErrNotExist.
func (s *Store) RestoreKV(ctx context.Context, store kv.KVStore, key string) error {
	data, found, err := store.Get(ctx, key)
	if err == nil && !found {
		err = fmt.Errorf("kv key %s: %w", key, os.ErrNotExist)
	}

	if err != nil {
		s.Reset()

		return err
	}

	return s.restore(data, "kv:"+key)
}

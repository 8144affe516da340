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
	"cmp"
	"fmt"
	"math"
	"slices"

	"github.com/carverauto/statusradar/pkg/models"
)

// DeriveFunc computes a derived alias from the current values of its
// inputs. Inputs without data arrive as sentinels.
type DeriveFunc func(inputs models.Mapping) (models.Value, error)

type derived struct {
	name   string
	inputs []string
	fn     DeriveFunc
}

// DerivedSpec declares a derived alias in configuration.
type DerivedSpec struct {
	Name    string   `json:"name"`
	Inputs  []string `json:"inputs"`
	Reducer string   `json:"reducer"`
}

// Reducers understood by DerivedSpec.
const (
	ReducerSum   = "sum"
	ReducerMean  = "mean"
	ReducerMin   = "min"
	ReducerMax   = "max"
	ReducerFirst = "first"
)

// Reducer returns the DeriveFunc for a reducer name. Numeric reducers skip
// inputs that are not numbers and yield NoData when none are.
func Reducer(name string, inputs []string) (DeriveFunc, error) {
	ordered := slices.Clone(inputs)

	switch name {
	case ReducerFirst:
		return func(in models.Mapping) (models.Value, error) {
			for _, k := range ordered {
				if v := in[k]; models.HasValue(v) {
					return v, nil
				}
			}

			return models.NoData, nil
		}, nil
	case ReducerSum:
		return numeric(ordered, func(xs []float64) float64 {
			var s float64
			for _, x := range xs {
				s += x
			}

			return s
		}), nil
	case ReducerMean:
		return numeric(ordered, func(xs []float64) float64 {
			var s float64
			for _, x := range xs {
				s += x
			}

			return s / float64(len(xs))
		}), nil
	case ReducerMin:
		return numeric(ordered, func(xs []float64) float64 {
			m := math.Inf(1)
			for _, x := range xs {
				m = math.Min(m, x)
			}

			return m
		}), nil
	case ReducerMax:
		return numeric(ordered, func(xs []float64) float64 {
			m := math.Inf(-1)
			for _, x := range xs {
				m = math.Max(m, x)
			}

			return m
		}), nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownReducer, name)
	}
}

func numeric(inputs []string, reduce func([]float64) float64) DeriveFunc {
	return func(in models.Mapping) (models.Value, error) {
		xs := make([]float64, 0, len(inputs))

		for _, k := range inputs {
			if f, ok := toFloat(in[k]); ok {
				xs = append(xs, f)
			}
		}

		if len(xs) == 0 {
			return models.NoData, nil
		}

		return reduce(xs), nil
	}
}

func toFloat(v models.Value) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float64:
		return n, true
	default:
		return 0, false
	}
}

// deriveGraph indexes derived aliases by the aliases they read. It is only
// touched under the store mutex.
type deriveGraph struct {
	nodes      map[string]*derived
	dependents map[string][]string
	// order lists derived aliases so that every alias follows its inputs
	order []string
}

func newDeriveGraph() *deriveGraph {
	return &deriveGraph{
		nodes:      make(map[string]*derived),
		dependents: make(map[string][]string),
	}
}

// reaches reports whether target is reachable from start along
// input -> derived edges.
func (g *deriveGraph) reaches(start, target string) bool {
	seen := map[string]bool{start: true}
	queue := []string{start}

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		if cur == target {
			return true
		}

		for _, next := range g.dependents[cur] {
			if !seen[next] {
				seen[next] = true
				queue = append(queue, next)
			}
		}
	}

	return false
}

func (g *deriveGraph) add(d *derived) error {
	if _, dup := g.nodes[d.name]; dup {
		return fmt.Errorf("%w: %s", errDuplicateDerived, d.name)
	}

	for _, in := range d.inputs {
		if in == d.name || g.reaches(d.name, in) {
			return fmt.Errorf("%w: %s <- %s", errDerivedCycle, d.name, in)
		}
	}

	g.nodes[d.name] = d

	for _, in := range d.inputs {
		g.dependents[in] = append(g.dependents[in], d.name)
	}

	g.order = g.topoSort()

	return nil
}

// topoSort orders derived aliases by depth, breaking ties by name so the
// result is stable.
func (g *deriveGraph) topoSort() []string {
	depth := make(map[string]int, len(g.nodes))

	var visit func(name string) int

	visit = func(name string) int {
		if d, ok := depth[name]; ok {
			return d
		}

		node, ok := g.nodes[name]
		if !ok {
			return 0
		}

		best := 0
		for _, in := range node.inputs {
			best = max(best, visit(in)+1)
		}

		depth[name] = best

		return best
	}

	order := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		visit(name)
		order = append(order, name)
	}

	slices.SortFunc(order, func(a, b string) int {
		if depth[a] != depth[b] {
			return cmp.Compare(depth[a], depth[b])
		}

		return cmp.Compare(a, b)
	})

	return order
}

// affected returns the derived aliases downstream of keys, in evaluation
// order.
func (g *deriveGraph) affected(keys []string) []string {
	if len(g.nodes) == 0 {
		return nil
	}

	hit := make(map[string]bool)
	queue := slices.Clone(keys)

	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]

		for _, next := range g.dependents[cur] {
			if !hit[next] {
				hit[next] = true
				queue = append(queue, next)
			}
		}
	}

	out := make([]string, 0, len(hit))

	for _, name := range g.order {
		if hit[name] {
			out = append(out, name)
		}
	}

	return out
}

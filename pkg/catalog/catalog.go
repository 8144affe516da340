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

// Package catalog loads and indexes table and alias definitions.
//
// A catalog is built once at startup and then shared read-only by the cache
// and status layers. Definitions come from a line-oriented text file:
//
//	# name, host, size
//	TSCS, tcs-gw1, 256
//	# alias,table(offset:length:type[:mask_or_multiplier])
//	TSCS.AZ,TSCS(0:4:sfloat:0.0001)
//	TSCS.EL,TSCS($TSCS.AZ+4:4:sfloat:0.0001)
//	TSCS.MODE,TSCS(12:1:bin:0x0f)
//
// Offsets may reference aliases defined on earlier lines.
package catalog

import (
	"fmt"
	"sort"

	"github.com/carverauto/statusradar/pkg/models"
)

// Catalog is the immutable set of tables and aliases known to a process.
type Catalog struct {
	tables     map[string]*models.TableDefinition
	tableOrder []string
	aliases    map[string]*models.AliasDefinition
	byTable    map[string][]*models.AliasDefinition
}

func newCatalog() *Catalog {
	return &Catalog{
		tables:  make(map[string]*models.TableDefinition),
		aliases: make(map[string]*models.AliasDefinition),
		byTable: make(map[string][]*models.AliasDefinition),
	}
}

// New builds a catalog from already-resolved definitions, applying the same
// validation as the file loader.
func New(tables []models.TableDefinition, aliases []models.AliasDefinition) (*Catalog, error) {
	c := newCatalog()

	for i := range tables {
		t := tables[i]
		if err := c.addTable(&t); err != nil {
			return nil, &ConfigError{Err: err}
		}
	}

	for i := range aliases {
		a := aliases[i]
		if err := c.addAlias(&a); err != nil {
			return nil, &ConfigError{Err: err}
		}
	}

	return c, nil
}

func (c *Catalog) addTable(t *models.TableDefinition) error {
	if t.Size <= 0 {
		return fmt.Errorf("%w: %s", errBadSize, t.Name)
	}

	if _, dup := c.tables[t.Name]; dup {
		return fmt.Errorf("%w: %s", errDuplicateTable, t.Name)
	}

	c.tables[t.Name] = t
	c.tableOrder = append(c.tableOrder, t.Name)

	return nil
}

func (c *Catalog) addAlias(a *models.AliasDefinition) error {
	if _, dup := c.aliases[a.Name]; dup {
		return fmt.Errorf("%w: %s", errDuplicateAlias, a.Name)
	}

	t, ok := c.tables[a.Table]
	if !ok {
		return fmt.Errorf("%w: %s", errUnknownTable, a.Table)
	}

	if err := validateAlias(a, t); err != nil {
		return err
	}

	c.aliases[a.Name] = a
	c.byTable[a.Table] = append(c.byTable[a.Table], a)

	return nil
}

func validateAlias(a *models.AliasDefinition, t *models.TableDefinition) error {
	if a.Offset < 0 {
		return fmt.Errorf("%w: %s offset %d", errNegativeOffset, a.Name, a.Offset)
	}

	if a.Length <= 0 {
		return fmt.Errorf("%w: %s", errBadLength, a.Name)
	}

	if a.End() > t.Size {
		return fmt.Errorf("%w: %s ends at %d, %s is %d bytes", errOutOfBounds, a.Name, a.End(), t.Name, t.Size)
	}

	switch a.Type {
	case models.TypeUnsigned, models.TypeScaledUnsigned:
		if a.Length > 8 {
			return fmt.Errorf("%w: %s %d bytes", errUnsupportedLength, a.Type, a.Length)
		}
	case models.TypeSigned, models.TypeScaledSigned:
		if !signedLength(a.Length) {
			return fmt.Errorf("%w: %s %d bytes", errUnsupportedLength, a.Type, a.Length)
		}
	case models.TypeUnknown:
		return fmt.Errorf("%w: %s", models.ErrUnknownType, a.Name)
	default:
	}

	return nil
}

func signedLength(n int) bool {
	return n == 1 || n == 2 || n == 4 || n == 8
}

// ApplyOverrides attaches overrides to aliases. It must run before the
// catalog is handed to the cache.
func (c *Catalog) ApplyOverrides(overrides map[string]models.Override) error {
	for name, o := range overrides {
		a, ok := c.aliases[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownAlias, name)
		}

		a.Override = o
	}

	return nil
}

func (c *Catalog) Table(name string) (*models.TableDefinition, bool) {
	t, ok := c.tables[name]

	return t, ok
}

func (c *Catalog) Alias(name string) (*models.AliasDefinition, bool) {
	a, ok := c.aliases[name]

	return a, ok
}

// Tables returns the tables in definition order.
func (c *Catalog) Tables() []*models.TableDefinition {
	out := make([]*models.TableDefinition, 0, len(c.tableOrder))
	for _, name := range c.tableOrder {
		out = append(out, c.tables[name])
	}

	return out
}

// AliasesOf returns the aliases of a table in definition order.
func (c *Catalog) AliasesOf(table string) []*models.AliasDefinition {
	return c.byTable[table]
}

// AliasNames returns the names of a table's aliases.
func (c *Catalog) AliasNames(table string) []string {
	defs := c.byTable[table]

	names := make([]string, len(defs))
	for i, a := range defs {
		names[i] = a.Name
	}

	return names
}

// AllAliasNames returns every alias name, sorted.
func (c *Catalog) AllAliasNames() []string {
	names := make([]string, 0, len(c.aliases))
	for name := range c.aliases {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

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

package catalog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"

	"github.com/carverauto/statusradar/pkg/models"
)

//nolint:gochecknoglobals // compiled once
var aliasLine = regexp.MustCompile(`^([^,\s()]+)\s*,\s*([^,\s()]+)\s*\((.*)\)$`)

// pendingAlias is an alias line whose offset is not resolved yet.
type pendingAlias struct {
	line   int
	text   string
	def    models.AliasDefinition
	offset Expr
}

// Load reads a definitions file.
func Load(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("failed to open definitions %s: %w", path, err)}
	}
	defer f.Close()

	return Parse(f)
}

// Parse reads definitions from r. Tables may appear anywhere in the input;
// alias offsets are resolved in line order so a $reference only sees aliases
// defined above it.
func Parse(r io.Reader) (*Catalog, error) {
	c := newCatalog()

	var pending []pendingAlias

	scanner := bufio.NewScanner(r)
	lineNo := 0

	for scanner.Scan() {
		lineNo++

		raw := scanner.Text()

		text := raw
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = text[:i]
		}

		text = strings.TrimSpace(text)
		if text == "" {
			continue
		}

		if strings.ContainsRune(text, '(') {
			p, err := parseAliasLine(text)
			if err != nil {
				return nil, &ConfigError{Line: lineNo, Text: raw, Err: err}
			}

			p.line, p.text = lineNo, raw
			pending = append(pending, p)

			continue
		}

		t, err := parseTableLine(text)
		if err != nil {
			return nil, &ConfigError{Line: lineNo, Text: raw, Err: err}
		}

		if err := c.addTable(t); err != nil {
			return nil, &ConfigError{Line: lineNo, Text: raw, Err: err}
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, &ConfigError{Err: fmt.Errorf("failed to read definitions: %w", err)}
	}

	lookup := func(name string) (int, bool) {
		a, ok := c.aliases[name]
		if !ok {
			return 0, false
		}

		return a.Offset, true
	}

	for i := range pending {
		p := &pending[i]

		offset, err := p.offset.Eval(lookup)
		if err != nil {
			return nil, &ConfigError{Line: p.line, Text: p.text, Err: err}
		}

		p.def.Offset = offset

		def := p.def
		if err := c.addAlias(&def); err != nil {
			return nil, &ConfigError{Line: p.line, Text: p.text, Err: err}
		}
	}

	return c, nil
}

func parseTableLine(text string) (*models.TableDefinition, error) {
	fields := strings.Split(text, ",")
	if len(fields) != 3 {
		return nil, fmt.Errorf("%w: table needs name, host, size", errMalformedLine)
	}

	name := strings.TrimSpace(fields[0])
	host := strings.TrimSpace(fields[1])

	if name == "" || host == "" {
		return nil, fmt.Errorf("%w: empty table name or host", errMalformedLine)
	}

	size, err := strconv.Atoi(strings.TrimSpace(fields[2]))
	if err != nil || size <= 0 {
		return nil, fmt.Errorf("%w: %q", errBadSize, fields[2])
	}

	return &models.TableDefinition{Name: name, Host: host, Size: size}, nil
}

func parseAliasLine(text string) (pendingAlias, error) {
	m := aliasLine.FindStringSubmatch(text)
	if m == nil {
		return pendingAlias{}, fmt.Errorf("%w: expected alias,table(offset:length:type[:mask])", errMalformedLine)
	}

	parts := strings.Split(m[3], ":")
	if len(parts) < 3 || len(parts) > 4 {
		return pendingAlias{}, fmt.Errorf("%w: expected 3 or 4 fields inside parentheses", errMalformedLine)
	}

	offset, err := ParseExpr(strings.TrimSpace(parts[0]))
	if err != nil {
		return pendingAlias{}, err
	}

	length, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil || length <= 0 {
		return pendingAlias{}, fmt.Errorf("%w: %q", errBadLength, parts[1])
	}

	typ, err := models.ParseTypeTag(parts[2])
	if err != nil {
		return pendingAlias{}, err
	}

	def := models.AliasDefinition{
		Name:   m[1],
		Table:  m[2],
		Length: length,
		Type:   typ,
	}

	if len(parts) == 4 {
		if err := applyModifier(&def, strings.TrimSpace(parts[3])); err != nil {
			return pendingAlias{}, err
		}
	}

	return pendingAlias{def: def, offset: offset}, nil
}

// applyModifier interprets the optional fourth field: a mask for bin, a
// multiplier for scaled types.
func applyModifier(def *models.AliasDefinition, field string) error {
	if field == "" {
		return nil
	}

	switch {
	case def.Type == models.TypeUnsigned:
		mask, err := strconv.ParseUint(field, 0, 64)
		if err != nil {
			return fmt.Errorf("%w: %q", errBadMask, field)
		}

		def.Mask, def.HasMask = mask, true
	case def.Type.Scaled():
		mult, err := strconv.ParseFloat(field, 64)
		if err != nil || mult == 0 {
			return fmt.Errorf("%w: %q", errBadMultiplier, field)
		}

		def.Multiplier = mult
	default:
		return fmt.Errorf("%w: %s", errUnexpectedMask, def.Type)
	}

	return nil
}

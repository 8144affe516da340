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

package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownType is returned for type tokens outside the decode matrix.
var ErrUnknownType = errors.New("unknown alias type")

// TypeTag identifies how the bytes of an alias are laid out on the wire.
type TypeTag int

const (
	TypeUnknown TypeTag = iota
	TypeUnsigned
	TypeSigned
	TypeBCD
	TypeASCIIInt
	TypeASCIIFloat
	TypeScaledUnsigned
	TypeScaledSigned
	TypeRaw
	TypeString
)

//nolint:gochecknoglobals // static token table
var typeTokens = map[string]TypeTag{
	"bin":    TypeUnsigned,
	"sint":   TypeSigned,
	"bcd":    TypeBCD,
	"aint":   TypeASCIIInt,
	"afloat": TypeASCIIFloat,
	"ufloat": TypeScaledUnsigned,
	"sfloat": TypeScaledSigned,
	"raw":    TypeRaw,
	"str":    TypeString,
}

// ParseTypeTag converts a definitions-file token into a TypeTag.
func ParseTypeTag(token string) (TypeTag, error) {
	tag, ok := typeTokens[strings.ToLower(strings.TrimSpace(token))]
	if !ok {
		return TypeUnknown, fmt.Errorf("%w: %q", ErrUnknownType, token)
	}

	return tag, nil
}

func (t TypeTag) String() string {
	for token, tag := range typeTokens {
		if tag == t {
			return token
		}
	}

	return "unknown"
}

// MarshalText lets type tags appear as tokens in JSON and YAML documents.
func (t TypeTag) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// UnmarshalText parses a type token.
func (t *TypeTag) UnmarshalText(b []byte) error {
	tag, err := ParseTypeTag(string(b))
	if err != nil {
		return err
	}

	*t = tag

	return nil
}

// Scaled reports whether the type carries a multiplier instead of a mask.
func (t TypeTag) Scaled() bool {
	return t == TypeScaledUnsigned || t == TypeScaledSigned
}

// TableDefinition describes one fixed-size binary table on the legacy bus.
type TableDefinition struct {
	Name string `json:"name"`
	Host string `json:"host"`
	Size int    `json:"size"`
}

// AliasDefinition maps a named scalar onto a byte range of a table.
type AliasDefinition struct {
	Name       string   `json:"name"`
	Table      string   `json:"table"`
	Offset     int      `json:"offset"`
	Length     int      `json:"length"`
	Type       TypeTag  `json:"type"`
	Mask       uint64   `json:"mask,omitempty"`
	HasMask    bool     `json:"-"`
	Multiplier float64  `json:"multiplier,omitempty"`
	Override   Override `json:"-"`
}

// End is the first byte past the alias payload.
func (a *AliasDefinition) End() int {
	return a.Offset + a.Length
}

// Scale returns the declared multiplier, defaulting to 1.
func (a *AliasDefinition) Scale() float64 {
	if a.Multiplier == 0 {
		return 1
	}

	return a.Multiplier
}

// Override patches known mismatches between the declared and the actual wire
// type of an alias. It is either a ForcedType or a CustomDecoder.
type Override interface {
	isOverride()
}

// ForcedType decodes the alias as if it had been declared with Type.
type ForcedType struct {
	Type TypeTag
}

func (ForcedType) isOverride() {}

// DecodeFunc is a fully custom decoder for one alias.
type DecodeFunc func(raw []byte, alias *AliasDefinition) (Value, error)

// CustomDecoder bypasses the type dispatch entirely.
type CustomDecoder struct {
	Fn DecodeFunc
}

func (CustomDecoder) isOverride() {}

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

// Package decode turns raw table bytes into typed status values.
package decode

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/carverauto/statusradar/pkg/models"
)

type decodeFunc func(raw []byte, alias *models.AliasDefinition) (models.Value, error)

//nolint:gochecknoglobals // static dispatch table
var decoders = map[models.TypeTag]decodeFunc{
	models.TypeUnsigned:       decodeUnsigned,
	models.TypeSigned:         decodeSigned,
	models.TypeBCD:            decodeBCD,
	models.TypeASCIIInt:       decodeASCIIInt,
	models.TypeASCIIFloat:     decodeASCIIFloat,
	models.TypeScaledUnsigned: decodeScaledUnsigned,
	models.TypeScaledSigned:   decodeScaledSigned,
	models.TypeRaw:            decodeRaw,
	models.TypeString:         decodeString,
}

// Decode converts the payload of one alias. raw must be exactly the alias's
// byte range. Any failure is a *ConversionError.
func Decode(raw []byte, alias *models.AliasDefinition) (models.Value, error) {
	if len(raw) != alias.Length {
		return nil, &ConversionError{
			Alias: alias.Name,
			Type:  alias.Type,
			Err:   fmt.Errorf("%w: got %d want %d", errLengthMismatch, len(raw), alias.Length),
		}
	}

	typ := alias.Type

	switch o := alias.Override.(type) {
	case models.CustomDecoder:
		v, err := o.Fn(raw, alias)
		if err != nil {
			return nil, wrap(alias, typ, err)
		}

		return v, nil
	case models.ForcedType:
		typ = o.Type
	}

	fn, ok := decoders[typ]
	if !ok {
		return nil, &ConversionError{Alias: alias.Name, Type: typ, Err: errNoDecoder}
	}

	v, err := fn(raw, alias)
	if err != nil {
		return nil, wrap(alias, typ, err)
	}

	return v, nil
}

// FromTable slices the alias out of a full table buffer and decodes it.
func FromTable(table []byte, alias *models.AliasDefinition) (models.Value, error) {
	if alias.End() > len(table) || alias.Offset < 0 {
		return nil, &ConversionError{
			Alias: alias.Name,
			Type:  alias.Type,
			Err:   fmt.Errorf("%w: table holds %d bytes", errLengthMismatch, len(table)),
		}
	}

	return Decode(table[alias.Offset:alias.End()], alias)
}

func wrap(alias *models.AliasDefinition, typ models.TypeTag, err error) error {
	var convErr *ConversionError
	if errors.As(err, &convErr) {
		return err
	}

	return &ConversionError{Alias: alias.Name, Type: typ, Err: err}
}

// Unsigned unpacks up to 8 big-endian bytes, zero-padding on the left.
func Unsigned(raw []byte) (uint64, error) {
	if len(raw) == 0 || len(raw) > 8 {
		return 0, fmt.Errorf("%w: %d bytes", errUnsupportedLength, len(raw))
	}

	var buf [8]byte

	copy(buf[8-len(raw):], raw)

	return binary.BigEndian.Uint64(buf[:]), nil
}

// Signed unpacks a big-endian two's-complement integer of 1, 2, 4 or 8 bytes.
func Signed(raw []byte) (int64, error) {
	switch len(raw) {
	case 1:
		return int64(int8(raw[0])), nil
	case 2:
		return int64(int16(binary.BigEndian.Uint16(raw))), nil
	case 4:
		return int64(int32(binary.BigEndian.Uint32(raw))), nil
	case 8:
		return int64(binary.BigEndian.Uint64(raw)), nil
	default:
		return 0, fmt.Errorf("%w: signed %d bytes", errUnsupportedLength, len(raw))
	}
}

func decodeUnsigned(raw []byte, alias *models.AliasDefinition) (models.Value, error) {
	v, err := Unsigned(raw)
	if err != nil {
		return nil, err
	}

	if alias.HasMask {
		v &= alias.Mask
	}

	return v, nil
}

func decodeSigned(raw []byte, _ *models.AliasDefinition) (models.Value, error) {
	v, err := Signed(raw)
	if err != nil {
		return nil, err
	}

	return v, nil
}

func decodeScaledUnsigned(raw []byte, alias *models.AliasDefinition) (models.Value, error) {
	v, err := Unsigned(raw)
	if err != nil {
		return nil, err
	}

	return float64(v) * alias.Scale(), nil
}

func decodeScaledSigned(raw []byte, alias *models.AliasDefinition) (models.Value, error) {
	v, err := Signed(raw)
	if err != nil {
		return nil, err
	}

	return float64(v) * alias.Scale(), nil
}

// decodeBCD reads the hex digits of the unpacked magnitude. Digit 0 is the
// sign (8 means negative), digits 1-3 the integer part, the rest the fraction.
func decodeBCD(raw []byte, _ *models.AliasDefinition) (models.Value, error) {
	v, err := Unsigned(raw)
	if err != nil {
		return nil, err
	}

	digits := fmt.Sprintf("%0*x", 2*len(raw), v)

	for _, d := range digits[1:] {
		if d < '0' || d > '9' {
			return nil, fmt.Errorf("%w: %q in %s", errBadBCDDigit, d, digits)
		}
	}

	intPart := digits[1:min(4, len(digits))]

	text := intPart
	if len(digits) > 4 {
		text += "." + digits[4:]
	}

	f, err := strconv.ParseFloat(text, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", errBadBCDDigit, digits)
	}

	if digits[0] == '8' {
		f = -f
	}

	return f, nil
}

func trimField(raw []byte) string {
	return strings.TrimSpace(string(bytes.Trim(raw, "\x00")))
}

func decodeASCIIInt(raw []byte, _ *models.AliasDefinition) (models.Value, error) {
	s := trimField(raw)
	if s == "" {
		return models.Null, nil
	}

	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", errBadNumber, s)
	}

	return v, nil
}

func decodeASCIIFloat(raw []byte, _ *models.AliasDefinition) (models.Value, error) {
	s := trimField(raw)
	if s == "" {
		return models.Null, nil
	}

	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", errBadNumber, s)
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil, fmt.Errorf("%w: %q", errNonFinite, s)
	}

	return v, nil
}

func decodeRaw(raw []byte, _ *models.AliasDefinition) (models.Value, error) {
	return bytes.Clone(raw), nil
}

func decodeString(raw []byte, _ *models.AliasDefinition) (models.Value, error) {
	return trimField(raw), nil
}

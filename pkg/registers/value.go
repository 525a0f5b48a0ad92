// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package registers

import (
	"fmt"
	"math"
	"strings"

	"github.com/Thermoquad/bmsctl/pkg/bmserr"
)

// ValueType is the register encoding of a parameter
type ValueType int

const (
	TypeU16 ValueType = iota
	TypeU8
	TypeU32
	TypeText
	TypePath // derived from the decoded status block, never addressed directly
)

// Null sentinels
const (
	NullU8  = 0xFF
	NullU16 = 0xFFFF
	NullU32 = 0xFFFFFFFF
)

func (t ValueType) String() string {
	switch t {
	case TypeU8:
		return "u8"
	case TypeU16:
		return "u16"
	case TypeU32:
		return "u32"
	case TypeText:
		return "text"
	case TypePath:
		return "path"
	default:
		return fmt.Sprintf("type(%d)", int(t))
	}
}

// Width returns the number of registers a value of type t occupies.
// Text and path types have no fixed width and return 0.
func (t ValueType) Width() int {
	switch t {
	case TypeU8, TypeU16:
		return 1
	case TypeU32:
		return 2
	default:
		return 0
	}
}

// Numeric reports whether t is decoded through the numeric codec
func (t ValueType) Numeric() bool {
	return t == TypeU8 || t == TypeU16 || t == TypeU32
}

// ParseValueType accepts the type names used in address maps
func ParseValueType(s string) (ValueType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "u8":
		return TypeU8, nil
	case "u16":
		return TypeU16, nil
	case "u32":
		return TypeU32, nil
	case "text", "str", "string":
		return TypeText, nil
	case "path", "statuspath":
		return TypePath, nil
	default:
		return 0, bmserr.Protocol("unknown value type %q", s)
	}
}

// UnmarshalText lets address maps name types as strings
func (t *ValueType) UnmarshalText(b []byte) error {
	v, err := ParseValueType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// MarshalText renders the type name
func (t ValueType) MarshalText() ([]byte, error) {
	return []byte(t.String()), nil
}

// ByteSel selects one byte of a shared register
type ByteSel int

const (
	ByteNone ByteSel = iota
	ByteHigh
	ByteLow
)

func (s ByteSel) String() string {
	switch s {
	case ByteHigh:
		return "H"
	case ByteLow:
		return "L"
	default:
		return ""
	}
}

// Opposite returns the other byte of the register
func (s ByteSel) Opposite() ByteSel {
	switch s {
	case ByteHigh:
		return ByteLow
	case ByteLow:
		return ByteHigh
	default:
		return ByteNone
	}
}

// UnmarshalText accepts H, L, high or low
func (s *ByteSel) UnmarshalText(b []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(b))) {
	case "h", "high", "hi":
		*s = ByteHigh
	case "l", "low", "lo":
		*s = ByteLow
	case "":
		*s = ByteNone
	default:
		return bmserr.Value("unknown byte selector %q", string(b))
	}
	return nil
}

// MarshalText renders H or L
func (s ByteSel) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Scaling maps raw register values onto engineering units: value = raw*Scale + Offset.
// A zero Scale means 1.
type Scaling struct {
	Scale  float64
	Offset float64
}

func (s Scaling) factor() float64 {
	if s.Scale == 0 {
		return 1
	}
	return s.Scale
}

// Apply converts a raw value to engineering units
func (s Scaling) Apply(raw uint32) float64 {
	v := float64(raw)*s.factor() + s.Offset
	if s.factor() != 1 {
		// drop binary representation noise from fractional scales
		v = math.Round(v*1e9) / 1e9
	}
	return v
}

// DecodeNumeric reads a numeric value at address from v.
// The boolean result is false when the raw value is the type's null sentinel.
func DecodeNumeric(v View, t ValueType, address uint16, sel ByteSel, s Scaling) (float64, bool, error) {
	var raw uint32
	switch t {
	case TypeU16:
		r, err := v.U16(address)
		if err != nil {
			return 0, false, err
		}
		if r == NullU16 {
			return 0, false, nil
		}
		raw = uint32(r)
	case TypeU32:
		r, err := v.U32(address)
		if err != nil {
			return 0, false, err
		}
		if r == NullU32 {
			return 0, false, nil
		}
		raw = r
	case TypeU8:
		if sel == ByteNone {
			return 0, false, bmserr.Protocol("u8 value at 0x%04X has no byte selector", address)
		}
		b, err := v.Byte(address, sel)
		if err != nil {
			return 0, false, err
		}
		if b == NullU8 {
			return 0, false, nil
		}
		raw = uint32(b)
	default:
		return 0, false, bmserr.Protocol("value type %s is not numeric", t)
	}
	return s.Apply(raw), true, nil
}

// EncodeRaw converts an engineering value into a raw value masked to the width of t:
// raw = round((value-offset)/scale).
func EncodeRaw(value float64, s Scaling, t ValueType) (uint32, error) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, bmserr.Value("cannot encode %v", value)
	}
	r := math.Round((value - s.Offset) / s.factor())
	if r > math.MaxInt64 || r < math.MinInt64 {
		return 0, bmserr.Value("value %v out of range for %s", value, t)
	}
	raw := int64(r)
	switch t {
	case TypeU8:
		return uint32(uint8(raw)), nil
	case TypeU16:
		return uint32(uint16(raw)), nil
	case TypeU32:
		return uint32(raw), nil
	default:
		return 0, bmserr.Protocol("value type %s is not numeric", t)
	}
}

// SplitU32 returns the high and low registers of a 32-bit value
func SplitU32(raw uint32) [2]uint16 {
	return [2]uint16{uint16(raw >> 16), uint16(raw)}
}

// MergeByte replaces the selected byte of existing with b
func MergeByte(existing uint16, sel ByteSel, b byte) uint16 {
	switch sel {
	case ByteHigh:
		return uint16(b)<<8 | existing&0x00FF
	case ByteLow:
		return existing&0xFF00 | uint16(b)
	default:
		return existing
	}
}

// JoinBytes builds a register from its high and low bytes
func JoinBytes(hi, lo byte) uint16 {
	return uint16(hi)<<8 | uint16(lo)
}

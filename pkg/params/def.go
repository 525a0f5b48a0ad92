// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package params describes device parameters and their register addresses.
//
// The address map itself is configuration: it is loaded from YAML with Load or
// Parse and indexed by a Registry, which resolves keys written as CELL_OVP,
// cell_ovp or cellOvp to the same definition.
package params

import (
	"fmt"
	"strings"

	"github.com/Thermoquad/bmsctl/pkg/bmserr"
	"github.com/Thermoquad/bmsctl/pkg/registers"
)

// Access is the write permission of a parameter
type Access int

const (
	ReadWrite Access = iota
	ReadOnly
)

func (a Access) String() string {
	if a == ReadOnly {
		return "ro"
	}
	return "rw"
}

// UnmarshalText accepts ro, r, rw or w
func (a *Access) UnmarshalText(b []byte) error {
	switch strings.ToLower(strings.TrimSpace(string(b))) {
	case "ro", "r", "read":
		*a = ReadOnly
	case "rw", "w", "", "readwrite":
		*a = ReadWrite
	default:
		return bmserr.Configuration("unknown access %q", string(b))
	}
	return nil
}

// MarshalText renders ro or rw
func (a Access) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// Def describes one device parameter
type Def struct {
	Key      string              `yaml:"key"`
	Category string              `yaml:"category"`
	Access   Access              `yaml:"access"`
	Type     registers.ValueType `yaml:"type"`
	Address  uint16              `yaml:"address"`
	Length   int                 `yaml:"length,omitempty"` // text fields, in bytes
	Scale    float64             `yaml:"scale,omitempty"`
	Offset   float64             `yaml:"offset,omitempty"`
	Byte     registers.ByteSel   `yaml:"byte,omitempty"`
	Path     string              `yaml:"path,omitempty"` // derived fields, dotted status path
	Unit     string              `yaml:"unit,omitempty"`
}

// Scaling returns the raw-to-value mapping of the parameter
func (d Def) Scaling() registers.Scaling {
	return registers.Scaling{Scale: d.Scale, Offset: d.Offset}
}

// Writable reports whether the parameter accepts writes
func (d Def) Writable() bool {
	return d.Access == ReadWrite && d.Type != registers.TypePath
}

// Registers returns the number of registers backing the parameter
func (d Def) Registers() int {
	if d.Type == registers.TypeText {
		return registers.TextRegisters(d.Length)
	}
	return d.Type.Width()
}

// Last returns the highest address the parameter occupies
func (d Def) Last() uint16 {
	n := d.Registers()
	if n == 0 {
		return d.Address
	}
	return d.Address + uint16(n-1)
}

// CamelKey returns the key in lowerCamelCase
func (d Def) CamelKey() string {
	return CamelKey(d.Key)
}

// Validate checks the definition for internal consistency
func (d Def) Validate() error {
	if d.Key == "" {
		return bmserr.Configuration("parameter without key")
	}
	switch d.Type {
	case registers.TypeU8:
		if d.Byte == registers.ByteNone {
			return bmserr.Configuration("%s: u8 parameter needs byte H or L", d.Key)
		}
	case registers.TypeU16, registers.TypeU32:
		if d.Byte != registers.ByteNone {
			return bmserr.Configuration("%s: byte selector only applies to u8", d.Key)
		}
	case registers.TypeText:
		if d.Length <= 0 {
			return bmserr.Configuration("%s: text parameter needs a positive length", d.Key)
		}
	case registers.TypePath:
		if d.Path == "" {
			return bmserr.Configuration("%s: derived parameter needs a path", d.Key)
		}
		return nil
	default:
		return bmserr.Configuration("%s: unsupported value type %s", d.Key, d.Type)
	}
	if int(d.Address)+d.Registers() > 0x10000 {
		return bmserr.Configuration("%s: address 0x%04X overflows the register space", d.Key, d.Address)
	}
	return nil
}

func (d Def) String() string {
	switch d.Type {
	case registers.TypePath:
		return fmt.Sprintf("%s (%s, path %s)", d.Key, d.Access, d.Path)
	case registers.TypeU8:
		return fmt.Sprintf("%s (%s, u8%s @ 0x%04X)", d.Key, d.Access, d.Byte, d.Address)
	default:
		return fmt.Sprintf("%s (%s, %s @ 0x%04X)", d.Key, d.Access, d.Type, d.Address)
	}
}

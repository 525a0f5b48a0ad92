// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bmsclient

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/Thermoquad/bmsctl/pkg/bmserr"
	"github.com/Thermoquad/bmsctl/pkg/params"
	"github.com/Thermoquad/bmsctl/pkg/registers"
)

// WriteOptions tune parameter writes
type WriteOptions struct {
	// NoPreserve skips the read-modify-write of single byte parameters; the
	// untouched byte of the register is written as zero.
	NoPreserve bool
}

// Value is a decoded parameter
type Value struct {
	Def    params.Def
	Null   bool    // raw value was the type's "no value" sentinel
	Number float64 // numeric types
	Text   string  // text type
	Field  any     // derived status fields
}

// Interface returns nil, a float64, a string or the status field value
func (v Value) Interface() any {
	switch {
	case v.Null:
		return nil
	case v.Def.Type == registers.TypeText:
		return v.Text
	case v.Def.Type == registers.TypePath:
		return v.Field
	default:
		return v.Number
	}
}

func (v Value) String() string {
	var s string
	switch x := v.Interface().(type) {
	case nil:
		return "null"
	case string:
		return strconv.Quote(x)
	case float64:
		s = strconv.FormatFloat(x, 'f', -1, 64)
	default:
		s = fmt.Sprint(x)
	}
	if v.Def.Unit != "" {
		s += " " + v.Def.Unit
	}
	return s
}

// Values is an ordered set of decoded parameters
type Values []Value

// Map keys every value by its lowerCamelCase parameter key
func (vs Values) Map() map[string]any {
	out := make(map[string]any, len(vs))
	for _, v := range vs {
		out[v.Def.CamelKey()] = v.Interface()
	}
	return out
}

func (c *Client) lookup(key string) (params.Def, error) {
	if c.opts.Registry == nil {
		return params.Def{}, bmserr.Configuration("no parameter map loaded")
	}
	return c.opts.Registry.Lookup(key)
}

// decodeDef decodes a numeric parameter from a view covering it
func decodeDef(def params.Def, v registers.View) (Value, error) {
	n, ok, err := registers.DecodeNumeric(v, def.Type, def.Address, def.Byte, def.Scaling())
	if err != nil {
		return Value{}, err
	}
	return Value{Def: def, Null: !ok, Number: n}, nil
}

// ReadParam reads and decodes a single parameter
func (c *Client) ReadParam(ctx context.Context, key string) (Value, error) {
	def, err := c.lookup(key)
	if err != nil {
		return Value{}, err
	}
	switch def.Type {
	case registers.TypePath:
		st, err := c.ReadStatus(ctx)
		if err != nil {
			return Value{}, err
		}
		return statusValue(def, st)
	case registers.TypeText:
		return c.readText(ctx, def)
	}
	v, err := c.ReadView(ctx, def.Address, def.Registers())
	if err != nil {
		return Value{}, err
	}
	return decodeDef(def, v)
}

func statusValue(def params.Def, st Status) (Value, error) {
	f, err := st.Field(def.Path)
	if err != nil {
		return Value{}, err
	}
	return Value{Def: def, Field: f}, nil
}

func (c *Client) readText(ctx context.Context, def params.Def) (Value, error) {
	v, err := c.ReadView(ctx, def.Address, def.Registers())
	if err != nil {
		return Value{}, err
	}
	b, err := v.Bytes(def.Address, def.Length)
	if err != nil {
		return Value{}, err
	}
	return Value{Def: def, Text: registers.DecodeText(b)}, nil
}

// WriteParam encodes and writes a single parameter. Single byte parameters
// are merged into their register; unless opts.NoPreserve is set the register
// is read first so the other byte keeps its current value.
func (c *Client) WriteParam(ctx context.Context, key string, value any, opts WriteOptions) error {
	def, err := c.lookup(key)
	if err != nil {
		return err
	}
	if !def.Writable() {
		return bmserr.Value("parameter %s is read-only", def.Key)
	}

	if def.Type == registers.TypeText {
		return c.writeText(ctx, def, value)
	}

	raw, err := encodeDef(def, value)
	if err != nil {
		return err
	}
	switch def.Type {
	case registers.TypeU16:
		return c.WriteRegisters(ctx, def.Address, []uint16{uint16(raw)})
	case registers.TypeU32:
		regs := registers.SplitU32(raw)
		return c.WriteRegisters(ctx, def.Address, regs[:])
	case registers.TypeU8:
		var existing uint16
		if !opts.NoPreserve {
			regs, err := c.ReadRegisters(ctx, def.Address, 1)
			if err != nil {
				return err
			}
			existing = regs[0]
		}
		merged := registers.MergeByte(existing, def.Byte, byte(raw))
		return c.WriteRegisters(ctx, def.Address, []uint16{merged})
	}
	return bmserr.Protocol("unsupported value type %s", def.Type)
}

func (c *Client) writeText(ctx context.Context, def params.Def, value any) error {
	s, ok := value.(string)
	if !ok {
		s = fmt.Sprint(value)
	}
	if len(s) > def.Length-1 {
		c.log.Warn().Str("key", def.Key).Int("max", def.Length-1).Msg("text truncated")
	}
	return c.WriteRegisters(ctx, def.Address, registers.TextToRegisters(s, def.Length))
}

// encodeDef converts a caller value to the raw register value of def
func encodeDef(def params.Def, value any) (uint32, error) {
	f, err := toFloat(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", def.Key, err)
	}
	return registers.EncodeRaw(f, def.Scaling(), def.Type)
}

func toFloat(value any) (float64, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int8:
		return float64(v), nil
	case int16:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint8:
		return float64(v), nil
	case uint16:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, bmserr.Value("not a number: %q", v)
		}
		return f, nil
	default:
		return 0, bmserr.Value("not a number: %v (%T)", value, value)
	}
}

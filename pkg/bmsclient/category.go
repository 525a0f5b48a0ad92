// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bmsclient

import (
	"context"
	"sort"
	"strings"

	"github.com/Thermoquad/bmsctl/pkg/bmserr"
	"github.com/Thermoquad/bmsctl/pkg/params"
	"github.com/Thermoquad/bmsctl/pkg/registers"
)

// GetCategory reads every parameter of a category.
//
// Numeric parameters are decoded from one ranged read spanning the lowest to
// the highest address they occupy. Text parameters are read one request
// each, and derived parameters share a single status read.
func (c *Client) GetCategory(ctx context.Context, category string) (Values, error) {
	if c.opts.Registry == nil {
		return nil, bmserr.Configuration("no parameter map loaded")
	}
	defs := c.opts.Registry.ByCategory(category)
	if len(defs) == 0 {
		return nil, bmserr.Value("unknown or empty category %q", category)
	}

	var numeric, text, derived []params.Def
	for _, d := range defs {
		switch {
		case d.Type.Numeric():
			numeric = append(numeric, d)
		case d.Type == registers.TypeText:
			text = append(text, d)
		default:
			derived = append(derived, d)
		}
	}

	byKey := make(map[string]Value, len(defs))
	if len(numeric) > 0 {
		lo, hi := numeric[0].Address, numeric[0].Last()
		for _, d := range numeric[1:] {
			lo, hi = min(lo, d.Address), max(hi, d.Last())
		}
		view, err := c.ReadView(ctx, lo, int(hi-lo)+1)
		if err != nil {
			return nil, err
		}
		for _, d := range numeric {
			v, err := decodeDef(d, view)
			if err != nil {
				return nil, err
			}
			byKey[d.Key] = v
		}
	}
	for _, d := range text {
		v, err := c.readText(ctx, d)
		if err != nil {
			return nil, err
		}
		byKey[d.Key] = v
	}
	if len(derived) > 0 {
		st, err := c.ReadStatus(ctx)
		if err != nil {
			return nil, err
		}
		for _, d := range derived {
			v, err := statusValue(d, st)
			if err != nil {
				return nil, err
			}
			byKey[d.Key] = v
		}
	}

	out := make(Values, 0, len(defs))
	for _, d := range defs {
		out = append(out, byKey[d.Key])
	}
	return out, nil
}

// bytePair tracks the halves of a register written by single byte parameters
type bytePair struct {
	hi, lo       byte
	hasHi, hasLo bool
}

func (p *bytePair) set(sel registers.ByteSel, b byte) {
	if sel == registers.ByteHigh {
		p.hi, p.hasHi = b, true
	} else {
		p.lo, p.hasLo = b, true
	}
}

func (p *bytePair) fill(existing uint16) {
	if !p.hasHi {
		p.hi, p.hasHi = byte(existing>>8), true
	}
	if !p.hasLo {
		p.lo, p.hasLo = byte(existing), true
	}
}

func (p bytePair) register() uint16 {
	return registers.JoinBytes(p.hi, p.lo)
}

// SetCategory writes several parameters of one category.
//
// Every key and value is validated before the first request. Text parameters
// are written first, individually. Numeric values are then collected per
// register; registers holding a single byte parameter whose other byte is not
// also being written are read back in contiguous runs (unless NoPreserve is
// set, which zeroes the other byte). Finally every register is written in
// maximal contiguous runs, lowest address first.
func (c *Client) SetCategory(ctx context.Context, category string, values map[string]any, opts WriteOptions) error {
	if c.opts.Registry == nil {
		return bmserr.Configuration("no parameter map loaded")
	}
	if len(values) == 0 {
		return bmserr.Value("no values to write")
	}

	type item struct {
		def   params.Def
		value any
	}
	items := make([]item, 0, len(values))
	for k, v := range values {
		def, err := c.opts.Registry.Lookup(k)
		if err != nil {
			return err
		}
		if def.Category != strings.ToLower(category) {
			return bmserr.Value("parameter %s is not in category %s", def.Key, category)
		}
		if !def.Writable() {
			return bmserr.Value("parameter %s is read-only", def.Key)
		}
		items = append(items, item{def: def, value: v})
	}
	sort.Slice(items, func(i, j int) bool {
		return items[i].def.Address < items[j].def.Address
	})

	regWrites := make(map[uint16]uint16)
	byteWrites := make(map[uint16]*bytePair)
	var text []item
	for _, it := range items {
		if it.def.Type == registers.TypeText {
			text = append(text, it)
			continue
		}
		raw, err := encodeDef(it.def, it.value)
		if err != nil {
			return err
		}
		switch it.def.Type {
		case registers.TypeU16:
			regWrites[it.def.Address] = uint16(raw)
		case registers.TypeU32:
			p := registers.SplitU32(raw)
			regWrites[it.def.Address] = p[0]
			regWrites[it.def.Address+1] = p[1]
		case registers.TypeU8:
			pair := byteWrites[it.def.Address]
			if pair == nil {
				pair = &bytePair{}
				byteWrites[it.def.Address] = pair
			}
			pair.set(it.def.Byte, byte(raw))
		}
	}

	for _, it := range text {
		if err := c.writeText(ctx, it.def, it.value); err != nil {
			return err
		}
	}

	var needRead []uint16
	for addr, pair := range byteWrites {
		if pair.hasHi && pair.hasLo {
			continue
		}
		if opts.NoPreserve {
			pair.fill(0)
			continue
		}
		needRead = append(needRead, addr)
	}
	for _, r := range registers.GroupContiguous(needRead) {
		regs, err := c.ReadRegisters(ctx, r.Start, r.Quantity)
		if err != nil {
			return err
		}
		for i, existing := range regs {
			if pair := byteWrites[r.Start+uint16(i)]; pair != nil {
				pair.fill(existing)
			}
		}
	}
	for addr, pair := range byteWrites {
		regWrites[addr] = pair.register()
	}

	addrs := make([]uint16, 0, len(regWrites))
	for a := range regWrites {
		addrs = append(addrs, a)
	}
	for _, r := range registers.GroupContiguous(addrs) {
		run := make([]uint16, r.Quantity)
		for i := range run {
			run[i] = regWrites[r.Start+uint16(i)]
		}
		if err := c.WriteRegisters(ctx, r.Start, run); err != nil {
			return err
		}
	}
	c.log.Debug().Str("category", category).Int("params", len(items)).Msg("category written")
	return nil
}

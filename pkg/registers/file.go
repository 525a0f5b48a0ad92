// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package registers

import (
	"sort"
	"sync"

	"github.com/Thermoquad/bmsctl/pkg/bmserr"
)

// File is a sparse register map keyed by 16-bit address.
// Unset registers read as zero unless the file is strict.
type File struct {
	mu     sync.RWMutex
	regs   map[uint16]uint16
	strict bool
}

// NewFile creates an empty register file
func NewFile() *File {
	return &File{regs: make(map[uint16]uint16)}
}

// SetStrict makes reads of never-written addresses fail with ErrValue
func (f *File) SetStrict(strict bool) {
	f.mu.Lock()
	f.strict = strict
	f.mu.Unlock()
}

// Get returns a single register
func (f *File) Get(address uint16) (uint16, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	v, ok := f.regs[address]
	return v, ok
}

// Set stores a single register
func (f *File) Set(address, value uint16) {
	f.mu.Lock()
	f.regs[address] = value
	f.mu.Unlock()
}

// Window returns qty contiguous registers starting at start
func (f *File) Window(start uint16, qty int) (View, error) {
	if int(start)+qty > 0x10000 {
		return View{}, bmserr.Value("window 0x%04X+%d exceeds address space", start, qty)
	}
	f.mu.RLock()
	defer f.mu.RUnlock()
	regs := make([]uint16, qty)
	for i := range regs {
		addr := start + uint16(i)
		v, ok := f.regs[addr]
		if !ok && f.strict {
			return View{}, bmserr.Value("register 0x%04X not mapped", addr)
		}
		regs[i] = v
	}
	return NewView(start, regs), nil
}

// SetWindow stores contiguous registers starting at start
func (f *File) SetWindow(start uint16, values []uint16) error {
	if int(start)+len(values) > 0x10000 {
		return bmserr.Value("window 0x%04X+%d exceeds address space", start, len(values))
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, v := range values {
		f.regs[start+uint16(i)] = v
	}
	return nil
}

// Addresses returns every stored address in ascending order
func (f *File) Addresses() []uint16 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]uint16, 0, len(f.regs))
	for a := range f.regs {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of stored registers
func (f *File) Len() int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.regs)
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bmssim simulates BMS bus devices answering frames from a register file.
//
// A Device satisfies transport.Responder, so it can sit behind a Loopback
// transport or a fake broker in tests and in the CLI's sim mode.
package bmssim

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/Thermoquad/bmsctl/pkg/frame"
	"github.com/Thermoquad/bmsctl/pkg/registers"
)

// Range is an inclusive address span
type Range struct {
	First uint16
	Last  uint16
}

// overlaps reports whether any address of [start, start+qty) falls in r
func (r Range) overlaps(start uint16, qty int) bool {
	end := int(start) + qty - 1
	return int(r.First) <= end && int(start) <= int(r.Last)
}

// Device answers read, write and UUID requests addressed to it
type Device struct {
	Address byte
	File    *registers.File
	UUID    []byte

	// Protected spans reject writes with an illegal-address exception.
	Protected []Range

	// Logger records every handled request at debug level.
	Logger zerolog.Logger

	mu      sync.Mutex
	silent  int
	busy    int
	history []frame.Frame
}

// New creates a device at address backed by an empty register file
func New(address byte) *Device {
	return &Device{
		Address: address,
		File:    registers.NewFile(),
		Logger:  zerolog.Nop(),
	}
}

// DropNext makes the device ignore the next n requests addressed to it
func (d *Device) DropNext(n int) {
	d.mu.Lock()
	d.silent = n
	d.mu.Unlock()
}

// BusyNext makes the device answer the next n requests with a busy exception
func (d *Device) BusyNext(n int) {
	d.mu.Lock()
	d.busy = n
	d.mu.Unlock()
}

// History returns the requests handled so far, oldest first
func (d *Device) History() []frame.Frame {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]frame.Frame(nil), d.history...)
}

// Writes returns only the handled write requests
func (d *Device) Writes() []frame.Frame {
	var out []frame.Frame
	for _, f := range d.History() {
		if f.Function == frame.FuncWriteMultiple {
			out = append(out, f)
		}
	}
	return out
}

// Handle answers a single request frame. It returns nil for corrupt frames,
// frames for other addresses and dropped requests.
func (d *Device) Handle(req []byte) []byte {
	f, err := frame.Parse(req)
	if err != nil {
		d.Logger.Debug().Err(err).Msg("ignored corrupt request")
		return nil
	}
	if f.Target != d.Address {
		return nil
	}

	d.mu.Lock()
	d.history = append(d.history, f)
	if d.silent > 0 {
		d.silent--
		d.mu.Unlock()
		return nil
	}
	busy := d.busy > 0
	if busy {
		d.busy--
	}
	d.mu.Unlock()

	d.Logger.Debug().Str("function", frame.FormatFunction(f.Function)).Msg("request")

	if busy {
		return d.exception(f, frame.ExceptionBusy)
	}

	switch f.Function {
	case frame.FuncReadHolding:
		return d.read(f)
	case frame.FuncWriteMultiple:
		return d.write(f)
	case frame.FuncReadUUID:
		return d.readUUID(f)
	default:
		return d.exception(f, frame.ExceptionIllegalFunction)
	}
}

func (d *Device) exception(f frame.Frame, code byte) []byte {
	return frame.EncodeErrorResponse(f.Source, d.Address, f.Function, code)
}

func (d *Device) read(f frame.Frame) []byte {
	start, qty, err := f.ReadRequest()
	if err != nil || qty == 0 || qty > frame.MaxRegistersPerFrame {
		return d.exception(f, frame.ExceptionIllegalValue)
	}
	view, err := d.File.Window(start, int(qty))
	if err != nil {
		return d.exception(f, frame.ExceptionIllegalAddress)
	}
	resp, err := frame.EncodeReadResponse(f.Source, d.Address, f.Function, frame.JoinRegistersBE(view.Regs))
	if err != nil {
		return d.exception(f, frame.ExceptionDeviceFailure)
	}
	return resp
}

func (d *Device) write(f frame.Frame) []byte {
	start, values, err := f.WriteRequest()
	if err != nil || len(values) == 0 {
		return d.exception(f, frame.ExceptionIllegalValue)
	}
	for _, r := range d.Protected {
		if r.overlaps(start, len(values)) {
			return d.exception(f, frame.ExceptionIllegalAddress)
		}
	}
	if err := d.File.SetWindow(start, values); err != nil {
		return d.exception(f, frame.ExceptionIllegalAddress)
	}
	return frame.EncodeWriteResponse(f.Source, d.Address, f.Function, start, uint16(len(values)))
}

func (d *Device) readUUID(f frame.Frame) []byte {
	if len(d.UUID) == 0 {
		return d.exception(f, frame.ExceptionIllegalFunction)
	}
	resp, err := frame.EncodeReadResponse(f.Source, d.Address, f.Function, d.UUID)
	if err != nil {
		return d.exception(f, frame.ExceptionDeviceFailure)
	}
	return resp
}

// Bus routes requests to the device at the frame's target address
type Bus struct {
	devices []*Device
}

// NewBus groups devices sharing one link
func NewBus(devices ...*Device) *Bus {
	return &Bus{devices: devices}
}

// Handle passes req to every device; at most one answers
func (b *Bus) Handle(req []byte) []byte {
	for _, d := range b.devices {
		if resp := d.Handle(req); resp != nil {
			return resp
		}
	}
	return nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bmsclient reads and writes BMS registers and parameters over any
// request/response transport.
//
// Multi-frame operations (chunked reads, category writes, read-modify-write)
// are not transactional. A failure part way through is returned as is and
// may leave the device partially updated; nothing is retried.
package bmsclient

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/Thermoquad/bmsctl/pkg/bmserr"
	"github.com/Thermoquad/bmsctl/pkg/frame"
	"github.com/Thermoquad/bmsctl/pkg/params"
	"github.com/Thermoquad/bmsctl/pkg/registers"
)

// Requester exchanges one request frame for its response frame.
// Every transport satisfies it.
type Requester interface {
	Request(ctx context.Context, frame []byte) ([]byte, error)
}

// Options configure a Client
type Options struct {
	Target byte // defaults to frame.AddressBMS
	Source byte // defaults to frame.AddressHost

	MaxReadRegisters  int // per frame, defaults to frame.DefaultMaxRegisters
	MaxWriteRegisters int // per frame, defaults to frame.DefaultMaxRegisters

	// Registry resolves parameter keys. Register-level calls work without it.
	Registry *params.Registry

	Logger zerolog.Logger
}

// Client issues register and parameter operations against one device
type Client struct {
	req  Requester
	opts Options
	log  zerolog.Logger
}

// New creates a client over req
func New(req Requester, opts Options) (*Client, error) {
	if req == nil {
		return nil, bmserr.Configuration("client needs a requester")
	}
	if opts.Target == 0 {
		opts.Target = frame.AddressBMS
	}
	if opts.Source == 0 {
		opts.Source = frame.AddressHost
	}
	if opts.MaxReadRegisters == 0 {
		opts.MaxReadRegisters = frame.DefaultMaxRegisters
	}
	if opts.MaxWriteRegisters == 0 {
		opts.MaxWriteRegisters = frame.DefaultMaxRegisters
	}
	for _, n := range []int{opts.MaxReadRegisters, opts.MaxWriteRegisters} {
		if n < 1 || n > frame.MaxRegistersPerFrame {
			return nil, bmserr.Configuration("registers per frame must be 1..%d, got %d", frame.MaxRegistersPerFrame, n)
		}
	}
	return &Client{req: req, opts: opts, log: opts.Logger}, nil
}

// Target returns the device address requests are sent to
func (c *Client) Target() byte {
	return c.opts.Target
}

// Registry returns the parameter registry, or nil
func (c *Client) Registry() *params.Registry {
	return c.opts.Registry
}

// exchange sends req and parses the response. Device error frames are
// returned as *frame.DeviceError.
func (c *Client) exchange(ctx context.Context, req []byte) (frame.Frame, error) {
	raw, err := c.req.Request(ctx, req)
	if err != nil {
		return frame.Frame{}, err
	}
	resp, err := frame.Parse(raw)
	if err != nil {
		return frame.Frame{}, err
	}
	if de := resp.DeviceError(); de != nil {
		c.log.Debug().Err(de).Msg("device error response")
		return frame.Frame{}, de
	}
	return resp, nil
}

// ReadRegisters reads qty contiguous registers with the holding read function
func (c *Client) ReadRegisters(ctx context.Context, start uint16, qty int) ([]uint16, error) {
	return c.ReadRegistersFunc(ctx, frame.FuncReadHolding, start, qty)
}

// ReadRegistersFunc reads qty registers with function fn, split into frames of
// at most MaxReadRegisters issued in address order.
func (c *Client) ReadRegistersFunc(ctx context.Context, fn byte, start uint16, qty int) ([]uint16, error) {
	if qty <= 0 {
		return nil, bmserr.Value("read quantity must be positive, got %d", qty)
	}
	if int(start)+qty > 0x10000 {
		return nil, bmserr.Value("read 0x%04X+%d exceeds address space", start, qty)
	}
	return c.readTo(ctx, c.opts.Target, fn, start, qty)
}

func (c *Client) readTo(ctx context.Context, target, fn byte, start uint16, qty int) ([]uint16, error) {
	out := make([]uint16, 0, qty)
	for _, r := range registers.ChunkRanges(start, qty, c.opts.MaxReadRegisters) {
		req := frame.BuildReadFrame(c.opts.Source, target, fn, r.Start, uint16(r.Quantity))
		resp, err := c.exchange(ctx, req)
		if err != nil {
			return nil, err
		}
		data, err := resp.ReadData()
		if err != nil {
			return nil, err
		}
		regs, err := frame.SplitRegistersBE(data)
		if err != nil {
			return nil, err
		}
		if len(regs) != r.Quantity {
			return nil, bmserr.Protocol("read 0x%04X+%d returned %d registers", r.Start, r.Quantity, len(regs))
		}
		out = append(out, regs...)
	}
	c.log.Trace().Uint16("start", start).Int("qty", qty).Msg("registers read")
	return out, nil
}

// ReadView reads qty registers into an addressed view
func (c *Client) ReadView(ctx context.Context, start uint16, qty int) (registers.View, error) {
	regs, err := c.ReadRegisters(ctx, start, qty)
	if err != nil {
		return registers.View{}, err
	}
	return registers.NewView(start, regs), nil
}

// WriteRegisters writes values to contiguous registers, split into frames of
// at most MaxWriteRegisters. Each acknowledgement must echo its frame's window.
func (c *Client) WriteRegisters(ctx context.Context, start uint16, values []uint16) error {
	return c.writeTo(ctx, c.opts.Target, start, values)
}

func (c *Client) writeTo(ctx context.Context, target byte, start uint16, values []uint16) error {
	if len(values) == 0 {
		return bmserr.Value("write without values")
	}
	if int(start)+len(values) > 0x10000 {
		return bmserr.Value("write 0x%04X+%d exceeds address space", start, len(values))
	}
	off := 0
	for _, r := range registers.ChunkRanges(start, len(values), c.opts.MaxWriteRegisters) {
		req, err := frame.BuildWriteRequest(c.opts.Source, target, frame.FuncWriteMultiple, r.Start, values[off:off+r.Quantity])
		if err != nil {
			return err
		}
		resp, err := c.exchange(ctx, req)
		if err != nil {
			return err
		}
		ackStart, ackQty, err := resp.WriteAck()
		if err != nil {
			return err
		}
		if ackStart != r.Start || int(ackQty) != r.Quantity {
			return bmserr.Protocol("write 0x%04X+%d acknowledged as 0x%04X+%d", r.Start, r.Quantity, ackStart, ackQty)
		}
		off += r.Quantity
	}
	c.log.Debug().Uint16("start", start).Int("qty", len(values)).Msg("registers written")
	return nil
}

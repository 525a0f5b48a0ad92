// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package transport moves BMS frames over byte-duplex links.
//
// Every adapter (BLE, broker tunnel, serial, loopback) feeds inbound bytes into
// an Engine, which owns reassembly, the single pending request, send pacing
// and the response deadline. Engines are created per connection and never
// reused, so no state survives a reconnect.
package transport

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Thermoquad/bmsctl/pkg/bmserr"
	"github.com/Thermoquad/bmsctl/pkg/frame"
)

// Link transmits raw bytes on behalf of an Engine
type Link interface {
	Send(ctx context.Context, p []byte) error
}

// LinkFunc adapts a function to Link
type LinkFunc func(ctx context.Context, p []byte) error

// Send calls f
func (f LinkFunc) Send(ctx context.Context, p []byte) error {
	return f(ctx, p)
}

// TapFunc observes every reassembled frame; matched reports whether it
// resolved the pending request.
type TapFunc func(f frame.Frame, matched bool)

// Options tune an Engine
type Options struct {
	// Timeout bounds the wait for a matching response after transmission starts.
	Timeout time.Duration

	// MinInterval is the minimum spacing between transmissions.
	MinInterval time.Duration

	Logger zerolog.Logger
	Tap    TapFunc
	Stats  *Statistics
}

const inboundQueue = 64

type result struct {
	resp []byte
	err  error
}

type call struct {
	ctx   context.Context
	frame []byte
	key   frame.Key
	done  chan result
}

// Engine serialises requests over a Link and correlates responses
type Engine struct {
	link  Link
	opts  Options
	log   zerolog.Logger
	stats *Statistics

	calls   chan *call
	inbound chan []byte

	closeOnce sync.Once
	closed    chan struct{}
	reason    error
	exited    chan struct{}

	// owned by the worker goroutine
	collector *frame.Collector
	lastTx    time.Time
}

// NewEngine starts the worker goroutine for link.
// Call Close to stop it.
func NewEngine(link Link, opts Options) *Engine {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	stats := opts.Stats
	if stats == nil {
		stats = NewStatistics()
	}
	e := &Engine{
		link:      link,
		opts:      opts,
		log:       opts.Logger,
		stats:     stats,
		calls:     make(chan *call),
		inbound:   make(chan []byte, inboundQueue),
		closed:    make(chan struct{}),
		exited:    make(chan struct{}),
		collector: frame.NewCollector(),
	}
	e.collector.OnReject = func(candidate []byte, err error) {
		e.stats.IntegrityDrops.Add(1)
		e.log.Debug().Err(err).Int("len", len(candidate)).Msg("dropped candidate frame")
	}
	go e.run()
	return e
}

// Statistics returns the counters this engine updates
func (e *Engine) Statistics() *Statistics {
	return e.stats
}

// Request transmits req and waits for the matching response frame.
//
// Concurrent callers are served one at a time in submission order. The call
// fails with a bmserr.ErrTimeout class error when no matching frame arrives in
// time, and with bmserr.ErrTransportState when the engine is closed.
func (e *Engine) Request(ctx context.Context, req []byte) ([]byte, error) {
	key, err := frame.ExpectFor(req)
	if err != nil {
		return nil, err
	}
	c := &call{
		ctx:   ctx,
		frame: req,
		key:   key,
		done:  make(chan result, 1),
	}

	select {
	case e.calls <- c:
	case <-e.closed:
		return nil, e.closedErr()
	case <-ctx.Done():
		return nil, aborted(ctx)
	}

	r := <-c.done
	return r.resp, r.err
}

// Deliver pushes inbound bytes into the engine. It is safe to call from any
// goroutine, including platform notification callbacks. Bytes delivered after
// Close are discarded.
func (e *Engine) Deliver(p []byte) {
	if len(p) == 0 {
		return
	}
	buf := append([]byte(nil), p...)
	select {
	case <-e.closed:
		return
	default:
	}
	select {
	case e.inbound <- buf:
	case <-e.closed:
	}
}

// Close fails any pending request with a TransportStateError wrapping reason,
// discards buffered bytes and stops the worker. Later calls are no-ops.
func (e *Engine) Close(reason error) {
	e.closeOnce.Do(func() {
		if reason == nil {
			reason = errors.New("transport closed")
		}
		e.reason = reason
		close(e.closed)
	})
	<-e.exited
}

// Done is closed once the engine has been shut down
func (e *Engine) Done() <-chan struct{} {
	return e.closed
}

func (e *Engine) closedErr() error {
	return bmserr.TransportState("%v", e.reason)
}

func (e *Engine) run() {
	defer close(e.exited)
	for {
		select {
		case p := <-e.inbound:
			e.absorb(p, nil)
		case c := <-e.calls:
			e.serve(c)
		case <-e.closed:
			e.collector.Reset()
			return
		}
	}
}

// serve runs one request to completion. It always replies on c.done.
func (e *Engine) serve(c *call) {
	e.stats.Requests.Add(1)

	if err := e.pace(c.ctx); err != nil {
		c.done <- result{err: err}
		return
	}

	deadline := time.NewTimer(e.opts.Timeout)
	defer deadline.Stop()

	start := time.Now()
	if err := e.link.Send(c.ctx, c.frame); err != nil {
		e.stats.SendFailures.Add(1)
		if bmserr.Class(err) == nil {
			err = fmt.Errorf("%w: send: %w", bmserr.ErrTransportState, err)
		}
		c.done <- result{err: err}
		return
	}
	e.lastTx = time.Now()
	e.stats.BytesOut.Add(uint64(len(c.frame)))
	e.log.Trace().Str("key", c.key.String()).Int("len", len(c.frame)).Msg("request sent")

	for {
		select {
		case p := <-e.inbound:
			if resp, ok := e.absorb(p, &c.key); ok {
				e.stats.Responses.Add(1)
				e.stats.observeRTT(time.Since(start))
				c.done <- result{resp: resp}
				return
			}
		case <-deadline.C:
			e.stats.Timeouts.Add(1)
			e.log.Warn().Str("key", c.key.String()).Dur("timeout", e.opts.Timeout).Msg("request timed out")
			c.done <- result{err: bmserr.Timeout("no response for %s within %s", c.key, e.opts.Timeout)}
			return
		case <-c.ctx.Done():
			c.done <- result{err: aborted(c.ctx)}
			return
		case <-e.closed:
			c.done <- result{err: e.closedErr()}
			return
		}
	}
}

// pace waits out the minimum transmission interval while still absorbing
// inbound bytes, which are all unmatched at this point.
func (e *Engine) pace(ctx context.Context) error {
	if e.opts.MinInterval <= 0 || e.lastTx.IsZero() {
		return nil
	}
	wait := e.opts.MinInterval - time.Since(e.lastTx)
	if wait <= 0 {
		return nil
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	for {
		select {
		case p := <-e.inbound:
			e.absorb(p, nil)
		case <-t.C:
			return nil
		case <-ctx.Done():
			return aborted(ctx)
		case <-e.closed:
			return e.closedErr()
		}
	}
}

// absorb feeds bytes to the collector and drains every complete frame. When
// key is non-nil, the first matching frame is returned; all other frames are
// dropped as unmatched.
func (e *Engine) absorb(p []byte, key *frame.Key) ([]byte, bool) {
	e.stats.BytesIn.Add(uint64(len(p)))
	e.collector.Push(p)

	var resp []byte
	matched := false
	for {
		f, ok := e.collector.Next()
		if !ok {
			break
		}
		e.stats.Frames.Add(1)

		hit := !matched && key != nil && key.Matches(f)
		if e.opts.Tap != nil {
			e.opts.Tap(f, hit)
		}
		if hit {
			matched = true
			resp = f.Raw
			if f.Kind == frame.KindError {
				e.stats.DeviceErrors.Add(1)
			}
			continue
		}
		e.stats.Unmatched.Add(1)
		e.log.Debug().
			Uint8("target", f.Target).
			Uint8("source", f.Source).
			Uint8("function", f.Function).
			Msg("dropped unmatched frame")
	}
	return resp, matched
}

func aborted(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", bmserr.ErrTimeout, ctx.Err())
	}
	return fmt.Errorf("request aborted: %w", ctx.Err())
}

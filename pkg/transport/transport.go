// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/Thermoquad/bmsctl/pkg/bmserr"
)

// DefaultTimeout applies when Options.Timeout is unset
const DefaultTimeout = 1500 * time.Millisecond

// Transport is a connectable frame channel
type Transport interface {
	Connect(ctx context.Context) error
	Request(ctx context.Context, frame []byte) ([]byte, error)
	Close() error
	Statistics() *Statistics
}

// session holds the per-connection engine shared by every adapter
type session struct {
	name  string
	opts  Options
	stats *Statistics

	mu     sync.Mutex
	engine *Engine
}

func newSession(name string, opts Options) *session {
	stats := opts.Stats
	if stats == nil {
		stats = NewStatistics()
	}
	opts.Stats = stats
	opts.Logger = opts.Logger.With().Str("transport", name).Logger()
	return &session{name: name, opts: opts, stats: stats}
}

func (s *session) logger() *zerolog.Logger {
	return &s.opts.Logger
}

// attach starts a fresh engine on link
func (s *session) attach(link Link) *Engine {
	e := NewEngine(link, s.opts)
	s.mu.Lock()
	old := s.engine
	s.engine = e
	s.mu.Unlock()
	if old != nil {
		old.Close(bmserr.TransportState("%s reconnected", s.name))
	}
	return e
}

// detach closes the current engine, failing its pending request
func (s *session) detach(reason error) {
	s.mu.Lock()
	e := s.engine
	s.engine = nil
	s.mu.Unlock()
	if e != nil {
		e.Close(reason)
	}
}

// fail closes e if it is still the current engine
func (s *session) fail(e *Engine, reason error) {
	s.mu.Lock()
	if s.engine == e {
		s.engine = nil
	}
	s.mu.Unlock()
	e.Close(reason)
}

func (s *session) current() *Engine {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine
}

func (s *session) connected() bool {
	return s.current() != nil
}

// Request sends frame through the current engine
func (s *session) Request(ctx context.Context, frame []byte) ([]byte, error) {
	e := s.current()
	if e == nil {
		return nil, bmserr.TransportState("%s is not connected", s.name)
	}
	return e.Request(ctx, frame)
}

// Statistics returns counters that persist across reconnects
func (s *session) Statistics() *Statistics {
	return s.stats
}

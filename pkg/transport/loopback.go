// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/Thermoquad/bmsctl/pkg/bmserr"
)

// Responder answers a request frame with raw reply bytes, or nil for silence
type Responder interface {
	Handle(req []byte) []byte
}

// LoopbackConfig configures an in-process link to a Responder
type LoopbackConfig struct {
	Options

	// Latency delays each reply.
	Latency time.Duration

	// SplitDelivery pushes replies in random-sized pieces to exercise reassembly.
	SplitDelivery bool

	// Noise prepends random bytes without start markers to each reply.
	Noise bool

	Seed int64
}

// Loopback connects an engine directly to a Responder such as a simulated BMS
type Loopback struct {
	*session
	cfg LoopbackConfig
	dev Responder

	rngMu sync.Mutex
	rng   *rand.Rand
	wg    sync.WaitGroup
}

// NewLoopback creates a loopback transport answering through dev
func NewLoopback(dev Responder, cfg LoopbackConfig) *Loopback {
	return &Loopback{
		session: newSession("loopback", cfg.Options),
		cfg:     cfg,
		dev:     dev,
		rng:     rand.New(rand.NewSource(cfg.Seed)),
	}
}

// Connect starts a fresh engine
func (l *Loopback) Connect(ctx context.Context) error {
	if l.dev == nil {
		return bmserr.Configuration("loopback needs a responder")
	}
	l.attach(LinkFunc(l.send))
	l.logger().Debug().Msg("loopback connected")
	return nil
}

// Close fails any pending request and waits for in-flight replies to settle
func (l *Loopback) Close() error {
	l.detach(bmserr.TransportState("loopback closed"))
	l.wg.Wait()
	return nil
}

func (l *Loopback) send(ctx context.Context, p []byte) error {
	e := l.current()
	if e == nil {
		return bmserr.TransportState("loopback is not connected")
	}
	reply := l.dev.Handle(append([]byte(nil), p...))
	if reply == nil {
		return nil
	}

	pieces := l.shape(reply)
	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		if l.cfg.Latency > 0 {
			select {
			case <-time.After(l.cfg.Latency):
			case <-e.Done():
				return
			}
		}
		for _, piece := range pieces {
			e.Deliver(piece)
		}
	}()
	return nil
}

// shape applies noise and splitting to a reply
func (l *Loopback) shape(reply []byte) [][]byte {
	l.rngMu.Lock()
	defer l.rngMu.Unlock()

	if l.cfg.Noise {
		noise := make([]byte, 1+l.rng.Intn(8))
		for i := range noise {
			noise[i] = byte(l.rng.Intn(0x7F))
		}
		reply = append(noise, reply...)
	}
	if !l.cfg.SplitDelivery {
		return [][]byte{reply}
	}
	var pieces [][]byte
	for len(reply) > 0 {
		n := 1 + l.rng.Intn(len(reply))
		pieces = append(pieces, reply[:n])
		reply = reply[n:]
	}
	return pieces
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.bug.st/serial"

	"github.com/Thermoquad/bmsctl/pkg/bmserr"
)

// Serial link defaults
const (
	SerialDefaultBaud     = 9600
	SerialDefaultTimeout  = 1000 * time.Millisecond
	SerialDefaultInterval = 100 * time.Millisecond
)

// SerialConfig configures an RS485/UART link
type SerialConfig struct {
	Options
	Port string
	Baud int
}

// Serial drives a BMS over a serial port
type Serial struct {
	*session
	cfg  SerialConfig
	port serial.Port
}

// NewSerial creates a serial transport; defaults fill unset fields
func NewSerial(cfg SerialConfig) *Serial {
	if cfg.Baud == 0 {
		cfg.Baud = SerialDefaultBaud
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = SerialDefaultTimeout
	}
	if cfg.MinInterval == 0 {
		cfg.MinInterval = SerialDefaultInterval
	}
	return &Serial{session: newSession("serial", cfg.Options), cfg: cfg}
}

// Connect opens the port and starts the reader
func (s *Serial) Connect(ctx context.Context) error {
	if s.cfg.Port == "" {
		return bmserr.Configuration("serial port is required")
	}
	if s.connected() {
		return nil
	}

	mode := &serial.Mode{
		BaudRate: s.cfg.Baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(s.cfg.Port, mode)
	if err != nil {
		return fmt.Errorf("%w: failed to open serial port %s: %w", bmserr.ErrTransportState, s.cfg.Port, err)
	}
	// bounded reads let the reader notice Close
	if err := port.SetReadTimeout(100 * time.Millisecond); err != nil {
		port.Close()
		return fmt.Errorf("%w: %w", bmserr.ErrTransportState, err)
	}
	s.port = port

	e := s.attach(LinkFunc(func(ctx context.Context, p []byte) error {
		_, err := port.Write(p)
		return err
	}))
	go s.readLoop(port, e)

	s.logger().Info().Str("port", s.cfg.Port).Int("baud", s.cfg.Baud).Msg("serial connected")
	return nil
}

func (s *Serial) readLoop(port serial.Port, e *Engine) {
	buf := make([]byte, 256)
	for {
		n, err := port.Read(buf)
		if err != nil {
			var perr *serial.PortError
			if errors.As(err, &perr) && perr.Code() == serial.PortClosed {
				s.fail(e, bmserr.TransportState("serial port closed"))
				return
			}
			s.logger().Warn().Err(err).Msg("serial read failed")
			s.fail(e, bmserr.TransportState("serial read: %v", err))
			return
		}
		select {
		case <-e.Done():
			return
		default:
		}
		if n > 0 {
			e.Deliver(buf[:n])
		}
	}
}

// Close stops the reader and releases the port
func (s *Serial) Close() error {
	s.detach(bmserr.TransportState("serial closed"))
	if s.port == nil {
		return nil
	}
	err := s.port.Close()
	s.port = nil
	return err
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package frame

import (
	"encoding/binary"
	"fmt"

	"github.com/Thermoquad/bmsctl/pkg/bmserr"
)

// Kind classifies a parsed frame by its function code
type Kind int

const (
	KindRead Kind = iota
	KindWrite
	KindError
)

func (k Kind) String() string {
	switch k {
	case KindRead:
		return "read"
	case KindWrite:
		return "write"
	case KindError:
		return "error"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Frame is a validated BMS frame
type Frame struct {
	Kind     Kind
	Target   byte
	Source   byte
	Function byte
	Payload  []byte
	CRC      uint16
	Raw      []byte // complete wire bytes, markers included
}

// DeviceError is a device-reported error response.
// It matches bmserr.ErrProtocol with errors.Is.
type DeviceError struct {
	Target   byte
	Source   byte
	Function byte // request function code, without the error bit
	Code     byte
}

func (e *DeviceError) Error() string {
	return fmt.Sprintf("device 0x%02X rejected function 0x%02X: %s (0x%02X)",
		e.Source, e.Function, FormatException(e.Code), e.Code)
}

// Is reports protocol-class membership
func (e *DeviceError) Is(target error) bool {
	return target == bmserr.ErrProtocol
}

// DeviceError returns the device-reported error carried by an error frame,
// or nil for any other kind.
func (f Frame) DeviceError() *DeviceError {
	if f.Kind != KindError {
		return nil
	}
	var code byte
	if len(f.Payload) > 0 {
		code = f.Payload[0]
	}
	return &DeviceError{
		Target:   f.Target,
		Source:   f.Source,
		Function: f.Function &^ ErrorBit,
		Code:     code,
	}
}

// ReadData returns the register bytes of a read response after checking the
// declared byte count against the payload length.
func (f Frame) ReadData() ([]byte, error) {
	if f.Kind != KindRead {
		return nil, bmserr.Protocol("expected read response, got %s", f.Kind)
	}
	if len(f.Payload) < 1 {
		return nil, bmserr.Protocol("read response without byte count")
	}
	count := int(f.Payload[0])
	if count != len(f.Payload)-1 {
		return nil, bmserr.Protocol("read response declares %d bytes, carries %d", count, len(f.Payload)-1)
	}
	return f.Payload[1:], nil
}

// ReadRequest decodes the start address and quantity of a read request
func (f Frame) ReadRequest() (start, quantity uint16, err error) {
	if len(f.Payload) != 4 {
		return 0, 0, bmserr.Protocol("read request payload is %d bytes, want 4", len(f.Payload))
	}
	return binary.BigEndian.Uint16(f.Payload[0:2]), binary.BigEndian.Uint16(f.Payload[2:4]), nil
}

// WriteRequest decodes the start address and register values of a write request
func (f Frame) WriteRequest() (start uint16, values []uint16, err error) {
	if len(f.Payload) < 5 {
		return 0, nil, bmserr.Protocol("write request payload too short: %d bytes", len(f.Payload))
	}
	start = binary.BigEndian.Uint16(f.Payload[0:2])
	quantity := int(binary.BigEndian.Uint16(f.Payload[2:4]))
	count := int(f.Payload[4])
	if count != quantity*2 || count != len(f.Payload)-5 {
		return 0, nil, bmserr.Protocol("write request length mismatch: quantity=%d count=%d data=%d",
			quantity, count, len(f.Payload)-5)
	}
	values, err = SplitRegistersBE(f.Payload[5:])
	return start, values, err
}

// WriteAck decodes the start address and quantity echoed by a write response
func (f Frame) WriteAck() (start, quantity uint16, err error) {
	if f.Kind != KindWrite {
		return 0, 0, bmserr.Protocol("expected write response, got %s", f.Kind)
	}
	if len(f.Payload) != 4 {
		return 0, 0, bmserr.Protocol("write response payload is %d bytes, want 4", len(f.Payload))
	}
	return binary.BigEndian.Uint16(f.Payload[0:2]), binary.BigEndian.Uint16(f.Payload[2:4]), nil
}

// Key is the correlation key of an expected response
type Key struct {
	Target   byte
	Source   byte
	Function byte
}

// ExpectFor derives the response key for a request frame: addresses swap and
// the function code is accepted with or without the error bit.
func ExpectFor(request []byte) (Key, error) {
	if len(request) < MinFrameLen {
		return Key{}, bmserr.Value("request frame too short: %d bytes", len(request))
	}
	if request[0] != StartByte1 || request[1] != StartByte2 {
		return Key{}, bmserr.Value("request frame lacks start marker")
	}
	return Key{
		Target:   request[3],
		Source:   request[2],
		Function: request[4],
	}, nil
}

// Matches reports whether f answers the request described by k
func (k Key) Matches(f Frame) bool {
	if f.Target != k.Target || f.Source != k.Source {
		return false
	}
	return f.Function == k.Function || f.Function == k.Function|ErrorBit
}

func (k Key) String() string {
	return fmt.Sprintf("target=0x%02X source=0x%02X fn=0x%02X", k.Target, k.Source, k.Function)
}

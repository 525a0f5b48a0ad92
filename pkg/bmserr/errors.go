// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bmserr defines the error classes shared by the bmsctl protocol stack.
//
// Every error returned by the frame, register, parameter, tunnel and transport
// packages wraps exactly one of the sentinels below, so callers can branch with
// errors.Is regardless of which layer produced the failure.
package bmserr

import (
	"errors"
	"fmt"
)

var (
	// ErrIntegrity reports a start/trailer marker or checksum mismatch.
	// The reassembly scanner recovers from it locally; it never reaches a caller
	// of a transport request.
	ErrIntegrity = errors.New("integrity error")

	// ErrProtocol reports malformed structure, an unknown function or value
	// type, an unexpected response kind or a device-reported error response.
	ErrProtocol = errors.New("protocol error")

	// ErrTimeout reports that no matching response arrived before the deadline.
	ErrTimeout = errors.New("timeout")

	// ErrTransportState reports an operation attempted while disconnected or
	// while another request is still pending.
	ErrTransportState = errors.New("transport state error")

	// ErrConfiguration reports a missing or invalid setup parameter.
	ErrConfiguration = errors.New("configuration error")

	// ErrValue reports an unsupported delivery level or malformed input value.
	ErrValue = errors.New("value error")
)

// Integrity wraps ErrIntegrity with a formatted message.
func Integrity(format string, args ...interface{}) error {
	return wrap(ErrIntegrity, format, args...)
}

// Protocol wraps ErrProtocol with a formatted message.
func Protocol(format string, args ...interface{}) error {
	return wrap(ErrProtocol, format, args...)
}

// Timeout wraps ErrTimeout with a formatted message.
func Timeout(format string, args ...interface{}) error {
	return wrap(ErrTimeout, format, args...)
}

// TransportState wraps ErrTransportState with a formatted message.
func TransportState(format string, args ...interface{}) error {
	return wrap(ErrTransportState, format, args...)
}

// Configuration wraps ErrConfiguration with a formatted message.
func Configuration(format string, args ...interface{}) error {
	return wrap(ErrConfiguration, format, args...)
}

// Value wraps ErrValue with a formatted message.
func Value(format string, args ...interface{}) error {
	return wrap(ErrValue, format, args...)
}

func wrap(class error, format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", class, fmt.Sprintf(format, args...))
}

// Class returns the sentinel that err wraps, or nil if err belongs to none.
func Class(err error) error {
	for _, class := range []error{ErrIntegrity, ErrProtocol, ErrTimeout, ErrTransportState, ErrConfiguration, ErrValue} {
		if errors.Is(err, class) {
			return class
		}
	}
	return nil
}

// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bmserr

import (
	"errors"
	"fmt"
	"testing"
)

func TestConstructorsWrapTheirClass(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		class error
	}{
		{"integrity", Integrity("crc 0x%04X", 0x1234), ErrIntegrity},
		{"protocol", Protocol("bad kind"), ErrProtocol},
		{"timeout", Timeout("after %s", "1s"), ErrTimeout},
		{"transport", TransportState("not connected"), ErrTransportState},
		{"configuration", Configuration("topic missing"), ErrConfiguration},
		{"value", Value("qos %d", 1), ErrValue},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !errors.Is(tt.err, tt.class) {
				t.Fatalf("%v does not wrap %v", tt.err, tt.class)
			}
			if got := Class(tt.err); got != tt.class {
				t.Errorf("Class() = %v, want %v", got, tt.class)
			}
		})
	}
}

func TestClassSurvivesRewrapping(t *testing.T) {
	err := fmt.Errorf("read 0x0100: %w", Timeout("no response"))
	if Class(err) != ErrTimeout {
		t.Errorf("expected ErrTimeout through wrapping, got %v", Class(err))
	}
}

func TestClassOfForeignError(t *testing.T) {
	if Class(errors.New("io")) != nil {
		t.Error("foreign errors must not be classified")
	}
	if Class(nil) != nil {
		t.Error("nil must not be classified")
	}
}

func TestMessageFormat(t *testing.T) {
	err := Protocol("unexpected response kind %s", "write")
	if got, want := err.Error(), "protocol error: unexpected response kind write"; got != want {
		t.Errorf("Error() = %q, want %q", got, want)
	}
}

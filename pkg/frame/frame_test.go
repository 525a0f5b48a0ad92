// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package frame

import (
	"bytes"
	"errors"
	"testing"

	"github.com/Thermoquad/bmsctl/pkg/bmserr"
)

// ============================================================
// CRC Tests
// ============================================================

func TestCalculateCRC_CheckValue(t *testing.T) {
	// CRC-16/MODBUS check value
	if got := CalculateCRC([]byte("123456789")); got != 0x4B37 {
		t.Errorf("CalculateCRC(123456789) = 0x%04X, want 0x4B37", got)
	}
}

// ============================================================
// Encoder Tests
// ============================================================

func TestBuildReadFrame_Layout(t *testing.T) {
	got := BuildReadFrame(AddressHost, AddressBMS, FuncReadHolding, 0x0100, 2)

	want := []byte{0x7F, 0x55, 0x01, 0xF0, 0x03, 0x01, 0x00, 0x00, 0x02}
	if !bytes.Equal(got[:len(want)], want) {
		t.Fatalf("header = % X, want % X", got[:len(want)], want)
	}
	if len(got) != len(want)+3 {
		t.Fatalf("len = %d, want %d", len(got), len(want)+3)
	}
	crc := CalculateCRC(got[2 : len(got)-3])
	if got[len(got)-3] != byte(crc) || got[len(got)-2] != byte(crc>>8) {
		t.Errorf("crc bytes = %02X %02X, want little-endian 0x%04X", got[len(got)-3], got[len(got)-2], crc)
	}
	if got[len(got)-1] != TrailerByte {
		t.Errorf("trailer = 0x%02X", got[len(got)-1])
	}
}

func TestBuildWriteRequest_Validation(t *testing.T) {
	if _, err := BuildWriteRequest(AddressHost, AddressBMS, FuncWriteMultiple, 0, nil); !errors.Is(err, bmserr.ErrValue) {
		t.Errorf("empty values: err = %v, want ErrValue", err)
	}
	tooMany := make([]uint16, MaxRegistersPerFrame+1)
	if _, err := BuildWriteRequest(AddressHost, AddressBMS, FuncWriteMultiple, 0, tooMany); !errors.Is(err, bmserr.ErrValue) {
		t.Errorf("oversized values: err = %v, want ErrValue", err)
	}
}

func TestBuildWriteRequest_RoundTrip(t *testing.T) {
	values := []uint16{0x0102, 0xFFFF, 0x0000, 0xABCD}
	raw, err := BuildWriteRequest(AddressHost, AddressBMS, FuncWriteMultiple, 0x1000, values)
	if err != nil {
		t.Fatalf("BuildWriteRequest: %v", err)
	}
	f, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if f.Kind != KindWrite {
		t.Fatalf("kind = %s, want write", f.Kind)
	}
	start, got, err := f.WriteRequest()
	if err != nil {
		t.Fatalf("WriteRequest: %v", err)
	}
	if start != 0x1000 {
		t.Errorf("start = 0x%04X", start)
	}
	if len(got) != len(values) {
		t.Fatalf("values len = %d, want %d", len(got), len(values))
	}
	for i := range values {
		if got[i] != values[i] {
			t.Errorf("values[%d] = 0x%04X, want 0x%04X", i, got[i], values[i])
		}
	}
}

// ============================================================
// Parse Tests
// ============================================================

func TestParse_RoundTrip(t *testing.T) {
	tests := []struct {
		name     string
		target   byte
		source   byte
		function byte
		payload  []byte
		kind     Kind
	}{
		{"read request", 0x01, 0xF0, FuncReadHolding, []byte{0x01, 0x00, 0x00, 0x02}, KindRead},
		{"write ack", 0xF0, 0x01, FuncWriteMultiple, []byte{0x10, 0x00, 0x00, 0x04}, KindWrite},
		{"error response", 0xF0, 0x01, FuncReadHolding | ErrorBit, []byte{ExceptionIllegalAddress}, KindError},
		{"empty read response", 0x02, 0x03, 0x42, []byte{0x00}, KindRead},
		{"write request", 0x01, 0xF0, FuncWriteMultiple, []byte{0x10, 0x00, 0x00, 0x01, 0x02, 0xAB, 0xCD}, KindWrite},
		{"payload holding markers", 0xF0, 0x01, FuncReadHolding, []byte{0x04, 0x7F, 0x55, 0xFD, 0xFD}, KindRead},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := Parse(Encode(tt.target, tt.source, tt.function, tt.payload))
			if err != nil {
				t.Fatalf("Parse: %v", err)
			}
			if f.Target != tt.target || f.Source != tt.source || f.Function != tt.function {
				t.Errorf("addr/fn = %02X/%02X/%02X, want %02X/%02X/%02X",
					f.Target, f.Source, f.Function, tt.target, tt.source, tt.function)
			}
			if !bytes.Equal(f.Payload, tt.payload) {
				t.Errorf("payload = % X, want % X", f.Payload, tt.payload)
			}
			if f.Kind != tt.kind {
				t.Errorf("kind = %s, want %s", f.Kind, tt.kind)
			}
		})
	}
}

func TestParse_IntegrityErrors(t *testing.T) {
	valid := Encode(0xF0, 0x01, FuncReadHolding, []byte{0x02, 0x12, 0x34})

	badStart := append([]byte(nil), valid...)
	badStart[1] = 0x56
	badTrailer := append([]byte(nil), valid...)
	badTrailer[len(badTrailer)-1] = 0xFE
	badCRC := append([]byte(nil), valid...)
	badCRC[len(badCRC)-3] ^= 0xFF
	badBody := append([]byte(nil), valid...)
	badBody[6] ^= 0x01

	tests := []struct {
		name  string
		input []byte
	}{
		{"too short", valid[:7]},
		{"bad start marker", badStart},
		{"bad trailer", badTrailer},
		{"bad crc", badCRC},
		{"corrupted payload", badBody},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(tt.input)
			if !errors.Is(err, bmserr.ErrIntegrity) {
				t.Errorf("err = %v, want ErrIntegrity", err)
			}
		})
	}
}

func TestParse_LengthMismatch(t *testing.T) {
	tests := []struct {
		name     string
		function byte
		payload  []byte
	}{
		{"read response short of byte count", FuncReadHolding, []byte{0x04, 0x12, 0x34}},
		{"read response past byte count", FuncReadHolding, []byte{0x01, 0x12, 0x34}},
		{"read without payload", FuncReadUUID, nil},
		{"write payload of 3", FuncWriteMultiple, []byte{0x10, 0x00, 0x00}},
		{"write request short of byte count", FuncWriteMultiple, []byte{0x10, 0x00, 0x00, 0x01, 0x02, 0xAB}},
		{"error without code", FuncReadHolding | ErrorBit, nil},
		{"error with two bytes", FuncReadHolding | ErrorBit, []byte{0x02, 0x00}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(Encode(0xF0, 0x01, tt.function, tt.payload))
			if !errors.Is(err, bmserr.ErrIntegrity) {
				t.Errorf("err = %v, want ErrIntegrity", err)
			}
		})
	}
}

func TestFrame_ReadData(t *testing.T) {
	raw, err := EncodeReadResponse(0xF0, 0x01, FuncReadHolding, []byte{0x12, 0x34, 0x00, 0x56})
	if err != nil {
		t.Fatalf("EncodeReadResponse: %v", err)
	}
	f, err := Parse(raw)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	data, err := f.ReadData()
	if err != nil {
		t.Fatalf("ReadData: %v", err)
	}
	regs, err := SplitRegistersBE(data)
	if err != nil {
		t.Fatalf("SplitRegistersBE: %v", err)
	}
	if len(regs) != 2 || regs[0] != 0x1234 || regs[1] != 0x0056 {
		t.Errorf("regs = %04X, want [1234 0056]", regs)
	}

	// declared byte count disagrees with payload
	bad := Frame{Kind: KindRead, Payload: []byte{0x04, 0x12, 0x34}}
	if _, err := bad.ReadData(); !errors.Is(err, bmserr.ErrProtocol) {
		t.Errorf("mismatched count: err = %v, want ErrProtocol", err)
	}
}

func TestFrame_DeviceError(t *testing.T) {
	f, err := Parse(EncodeErrorResponse(0xF0, 0x01, FuncWriteMultiple, ExceptionIllegalValue))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	de := f.DeviceError()
	if de == nil {
		t.Fatal("DeviceError() = nil for error frame")
	}
	if de.Function != FuncWriteMultiple || de.Code != ExceptionIllegalValue {
		t.Errorf("device error = %+v", de)
	}
	if !errors.Is(de, bmserr.ErrProtocol) {
		t.Error("device error does not match ErrProtocol")
	}

	ok, _ := Parse(EncodeWriteResponse(0xF0, 0x01, FuncWriteMultiple, 0, 1))
	if ok.DeviceError() != nil {
		t.Error("DeviceError() != nil for write ack")
	}
}

func TestSplitRegistersBE_OddLength(t *testing.T) {
	if _, err := SplitRegistersBE([]byte{0x01, 0x02, 0x03}); !errors.Is(err, bmserr.ErrProtocol) {
		t.Errorf("err = %v, want ErrProtocol", err)
	}
}

// ============================================================
// Correlation Tests
// ============================================================

func TestExpectFor_Matches(t *testing.T) {
	req := BuildReadFrame(AddressHost, AddressBMS, FuncReadHolding, 0x0100, 2)
	key, err := ExpectFor(req)
	if err != nil {
		t.Fatalf("ExpectFor: %v", err)
	}
	if key.Target != AddressHost || key.Source != AddressBMS || key.Function != FuncReadHolding {
		t.Fatalf("key = %s", key)
	}

	tests := []struct {
		name  string
		frame Frame
		want  bool
	}{
		{"same function", Frame{Target: 0xF0, Source: 0x01, Function: 0x03}, true},
		{"error bit", Frame{Target: 0xF0, Source: 0x01, Function: 0x83}, true},
		{"other function", Frame{Target: 0xF0, Source: 0x01, Function: 0x10}, false},
		{"other function with error bit", Frame{Target: 0xF0, Source: 0x01, Function: 0x90}, false},
		{"unswapped addresses", Frame{Target: 0x01, Source: 0xF0, Function: 0x03}, false},
		{"other device", Frame{Target: 0xF0, Source: 0x02, Function: 0x03}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := key.Matches(tt.frame); got != tt.want {
				t.Errorf("Matches = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestExpectFor_Malformed(t *testing.T) {
	if _, err := ExpectFor([]byte{0x7F, 0x55, 0x01}); !errors.Is(err, bmserr.ErrValue) {
		t.Errorf("short: err = %v, want ErrValue", err)
	}
	if _, err := ExpectFor([]byte{0x00, 0x55, 0x01, 0xF0, 0x03, 0x00}); !errors.Is(err, bmserr.ErrValue) {
		t.Errorf("no marker: err = %v, want ErrValue", err)
	}
}

// ============================================================
// Formatter Tests
// ============================================================

func TestFormatFrame(t *testing.T) {
	raw, _ := EncodeReadResponse(0xF0, 0x01, FuncReadHolding, []byte{0x12, 0x34})
	f, _ := Parse(raw)
	got := FormatFrame(f)
	for _, want := range []string{"READ_HOLDING", "src=0x01", "dst=0xF0", "regs=[1234]"} {
		if !bytes.Contains([]byte(got), []byte(want)) {
			t.Errorf("FormatFrame = %q, missing %q", got, want)
		}
	}

	ef, _ := Parse(EncodeErrorResponse(0xF0, 0x01, FuncReadHolding, ExceptionBusy))
	if got := FormatFrame(ef); !bytes.Contains([]byte(got), []byte("READ_HOLDING_ERROR")) {
		t.Errorf("FormatFrame(error) = %q", got)
	}
}

package bmssim

import (
	"bytes"
	"testing"

	"github.com/Thermoquad/bmsctl/pkg/frame"
)

func mustParse(t *testing.T, b []byte) frame.Frame {
	t.Helper()
	if b == nil {
		t.Fatal("no response")
	}
	f, err := frame.Parse(b)
	if err != nil {
		t.Fatalf("Parse(% X) error: %v", b, err)
	}
	return f
}

// ============================================================
// Read / Write Tests
// ============================================================

func TestDevice_ReadRegisters(t *testing.T) {
	d := New(frame.AddressBMS)
	d.File.Set(0x0100, 0x1234)
	d.File.Set(0x0101, 0x0056)

	resp := mustParse(t, d.Handle(frame.BuildReadFrame(frame.AddressHost, frame.AddressBMS, frame.FuncReadHolding, 0x0100, 2)))
	if resp.Kind != frame.KindRead {
		t.Fatalf("kind = %s, want read", resp.Kind)
	}
	if resp.Target != frame.AddressHost || resp.Source != frame.AddressBMS {
		t.Errorf("addresses = %02X/%02X, want F0/01", resp.Target, resp.Source)
	}
	data, err := resp.ReadData()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, []byte{0x12, 0x34, 0x00, 0x56}) {
		t.Errorf("data = % X", data)
	}
}

func TestDevice_WriteRegisters(t *testing.T) {
	d := New(frame.AddressBMS)
	req, err := frame.BuildWriteRequest(frame.AddressHost, frame.AddressBMS, frame.FuncWriteMultiple, 0x0200, []uint16{1, 2, 3})
	if err != nil {
		t.Fatal(err)
	}

	resp := mustParse(t, d.Handle(req))
	start, qty, err := resp.WriteAck()
	if err != nil {
		t.Fatal(err)
	}
	if start != 0x0200 || qty != 3 {
		t.Errorf("ack = 0x%04X+%d", start, qty)
	}
	for i, want := range []uint16{1, 2, 3} {
		if got, _ := d.File.Get(0x0200 + uint16(i)); got != want {
			t.Errorf("reg 0x%04X = %d, want %d", 0x0200+i, got, want)
		}
	}
	if n := len(d.Writes()); n != 1 {
		t.Errorf("Writes() = %d entries, want 1", n)
	}
}

func TestDevice_ReadUUID(t *testing.T) {
	d := New(frame.AddressBMS)
	d.UUID = []byte{0xDE, 0xAD, 0xBE, 0xEF}

	resp := mustParse(t, d.Handle(frame.BuildReadFrame(frame.AddressHost, frame.AddressBMS, frame.FuncReadUUID, 0, 8)))
	data, err := resp.ReadData()
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(data, d.UUID) {
		t.Errorf("uuid = % X", data)
	}
}

// ============================================================
// Exception Tests
// ============================================================

func TestDevice_Exceptions(t *testing.T) {
	d := New(frame.AddressBMS)
	d.File.SetStrict(true)
	d.Protected = []Range{{First: 0x0100, Last: 0x01FF}}

	protectedWrite, _ := frame.BuildWriteRequest(frame.AddressHost, frame.AddressBMS, frame.FuncWriteMultiple, 0x00FF, []uint16{0, 0})

	tests := []struct {
		name string
		req  []byte
		code byte
	}{
		{"unknown function", frame.BuildReadFrame(frame.AddressHost, frame.AddressBMS, 0x42, 0, 1), frame.ExceptionIllegalFunction},
		{"unmapped read", frame.BuildReadFrame(frame.AddressHost, frame.AddressBMS, frame.FuncReadHolding, 0x3000, 1), frame.ExceptionIllegalAddress},
		{"zero quantity", frame.BuildReadFrame(frame.AddressHost, frame.AddressBMS, frame.FuncReadHolding, 0, 0), frame.ExceptionIllegalValue},
		{"protected write", protectedWrite, frame.ExceptionIllegalAddress},
		{"uuid unset", frame.BuildReadFrame(frame.AddressHost, frame.AddressBMS, frame.FuncReadUUID, 0, 8), frame.ExceptionIllegalFunction},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := mustParse(t, d.Handle(tt.req))
			de := resp.DeviceError()
			if de == nil {
				t.Fatalf("kind = %s, want error", resp.Kind)
			}
			if de.Code != tt.code {
				t.Errorf("code = 0x%02X, want 0x%02X", de.Code, tt.code)
			}
			if resp.Function&^frame.ErrorBit != tt.req[4] {
				t.Errorf("function = 0x%02X, want 0x%02X|0x80", resp.Function, tt.req[4])
			}
		})
	}
}

func TestDevice_IgnoresForeignAndCorrupt(t *testing.T) {
	d := New(frame.AddressBMS)

	if resp := d.Handle(frame.BuildReadFrame(frame.AddressHost, frame.AddressMeter, frame.FuncReadHolding, 0, 1)); resp != nil {
		t.Errorf("answered frame for another address: % X", resp)
	}
	corrupt := frame.BuildReadFrame(frame.AddressHost, frame.AddressBMS, frame.FuncReadHolding, 0, 1)
	corrupt[6] ^= 0xFF
	if resp := d.Handle(corrupt); resp != nil {
		t.Errorf("answered corrupt frame: % X", resp)
	}
	if n := len(d.History()); n != 0 {
		t.Errorf("history = %d, want 0", n)
	}
}

func TestDevice_FaultInjection(t *testing.T) {
	d := New(frame.AddressBMS)
	req := frame.BuildReadFrame(frame.AddressHost, frame.AddressBMS, frame.FuncReadHolding, 0, 1)

	d.DropNext(1)
	if resp := d.Handle(req); resp != nil {
		t.Error("dropped request was answered")
	}
	d.BusyNext(1)
	if de := mustParse(t, d.Handle(req)).DeviceError(); de == nil || de.Code != frame.ExceptionBusy {
		t.Errorf("busy request = %v, want busy exception", de)
	}
	if resp := mustParse(t, d.Handle(req)); resp.Kind != frame.KindRead {
		t.Errorf("recovered kind = %s, want read", resp.Kind)
	}
}

// ============================================================
// Bus Tests
// ============================================================

func TestBus_RoutesByTarget(t *testing.T) {
	bms := New(frame.AddressBMS)
	meter := New(frame.AddressMeter)
	bus := NewBus(bms, meter)

	req, _ := frame.BuildWriteRequest(frame.AddressHost, frame.AddressMeter, frame.FuncWriteMultiple, 0, []uint16{0xAABB, 0xCCDD, 0xEEFF})
	resp := mustParse(t, bus.Handle(req))
	if resp.Source != frame.AddressMeter {
		t.Errorf("source = 0x%02X, want meter", resp.Source)
	}
	if len(bms.History()) != 0 {
		t.Error("bms saw meter traffic")
	}
	if v, _ := meter.File.Get(2); v != 0xEEFF {
		t.Errorf("meter reg 2 = 0x%04X", v)
	}
}

package registers

import (
	"errors"
	"math"
	"testing"
	"unicode/utf8"

	"github.com/Thermoquad/bmsctl/pkg/bmserr"
)

// ============================================================
// View Tests
// ============================================================

func TestView_U32HighRegisterFirst(t *testing.T) {
	v := NewView(0x0100, []uint16{0x1234, 0x0056})
	got, err := v.U32(0x0100)
	if err != nil {
		t.Fatalf("U32: %v", err)
	}
	if got != 0x12340056 {
		t.Errorf("U32 = 0x%08X, want 0x12340056", got)
	}
}

func TestView_Accessors(t *testing.T) {
	v := NewView(0x10, []uint16{0xABCD, 0xFFFF, 0xFFFE})

	if b, _ := v.HighByte(0x10); b != 0xAB {
		t.Errorf("HighByte = 0x%02X", b)
	}
	if b, _ := v.LowByte(0x10); b != 0xCD {
		t.Errorf("LowByte = 0x%02X", b)
	}
	if i, _ := v.I32(0x11); i != -2 {
		t.Errorf("I32 = %d, want -2", i)
	}
	b, err := v.Bytes(0x10, 3)
	if err != nil || len(b) != 3 || b[0] != 0xAB || b[1] != 0xCD || b[2] != 0xFF {
		t.Errorf("Bytes = % X, %v", b, err)
	}
}

func TestView_OutOfRange(t *testing.T) {
	v := NewView(0x10, []uint16{1, 2})
	tests := []struct {
		name string
		fn   func() error
	}{
		{"below start", func() error { _, err := v.U16(0x0F); return err }},
		{"past end", func() error { _, err := v.U16(0x12); return err }},
		{"u32 straddles end", func() error { _, err := v.U32(0x11); return err }},
		{"bytes past end", func() error { _, err := v.Bytes(0x10, 5); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.fn(); !errors.Is(err, bmserr.ErrValue) {
				t.Errorf("err = %v, want ErrValue", err)
			}
		})
	}
}

// ============================================================
// Numeric Codec Tests
// ============================================================

func TestDecodeNumeric_Sentinels(t *testing.T) {
	scalings := []Scaling{{}, {Scale: 0.001}, {Scale: 0.1, Offset: -40}, {Scale: 10, Offset: 5}}
	v := NewView(0, []uint16{0xFFFF, 0xFFFF, 0xFFFF, 0x00FF, 0xFF00})

	for _, s := range scalings {
		if _, ok, err := DecodeNumeric(v, TypeU16, 0, ByteNone, s); ok || err != nil {
			t.Errorf("u16 sentinel with %+v: ok=%v err=%v", s, ok, err)
		}
		if _, ok, err := DecodeNumeric(v, TypeU32, 1, ByteNone, s); ok || err != nil {
			t.Errorf("u32 sentinel with %+v: ok=%v err=%v", s, ok, err)
		}
		if _, ok, err := DecodeNumeric(v, TypeU8, 3, ByteLow, s); ok || err != nil {
			t.Errorf("u8 low sentinel with %+v: ok=%v err=%v", s, ok, err)
		}
		if _, ok, err := DecodeNumeric(v, TypeU8, 4, ByteHigh, s); ok || err != nil {
			t.Errorf("u8 high sentinel with %+v: ok=%v err=%v", s, ok, err)
		}
		// the opposite bytes are real zero values
		if got, ok, _ := DecodeNumeric(v, TypeU8, 3, ByteHigh, s); !ok || got != s.Offset {
			t.Errorf("u8 high of 0x00FF with %+v = %v/%v", s, got, ok)
		}
	}
}

func TestDecodeNumeric_Scaled(t *testing.T) {
	v := NewView(0x20, []uint16{3650, 0x0001, 0x0000, 0x1E64})
	tests := []struct {
		name string
		typ  ValueType
		addr uint16
		sel  ByteSel
		s    Scaling
		want float64
	}{
		{"millivolts", TypeU16, 0x20, ByteNone, Scaling{Scale: 0.001}, 3.65},
		{"u32 raw", TypeU32, 0x21, ByteNone, Scaling{}, 65536},
		{"celsius offset", TypeU8, 0x23, ByteLow, Scaling{Scale: 1, Offset: -40}, 60},
		{"high byte", TypeU8, 0x23, ByteHigh, Scaling{}, 30},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok, err := DecodeNumeric(v, tt.typ, tt.addr, tt.sel, tt.s)
			if err != nil || !ok {
				t.Fatalf("ok=%v err=%v", ok, err)
			}
			if math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecodeNumeric_Errors(t *testing.T) {
	v := NewView(0, []uint16{1})
	if _, _, err := DecodeNumeric(v, TypeU8, 0, ByteNone, Scaling{}); !errors.Is(err, bmserr.ErrProtocol) {
		t.Errorf("missing selector: err = %v", err)
	}
	if _, _, err := DecodeNumeric(v, TypeText, 0, ByteNone, Scaling{}); !errors.Is(err, bmserr.ErrProtocol) {
		t.Errorf("text: err = %v", err)
	}
}

func TestEncodeRaw(t *testing.T) {
	tests := []struct {
		name  string
		value float64
		s     Scaling
		typ   ValueType
		want  uint32
	}{
		{"millivolts", 3.65, Scaling{Scale: 0.001}, TypeU16, 3650},
		{"offset", 25, Scaling{Scale: 0.1, Offset: -40}, TypeU16, 650},
		{"rounds half away", 2.5, Scaling{}, TypeU16, 3},
		{"u16 masks", 70000, Scaling{}, TypeU16, 70000 & 0xFFFF},
		{"u8 masks negative", -1, Scaling{}, TypeU8, 0xFF},
		{"u32 wide", 0x12340056, Scaling{}, TypeU32, 0x12340056},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := EncodeRaw(tt.value, tt.s, tt.typ)
			if err != nil {
				t.Fatalf("EncodeRaw: %v", err)
			}
			if got != tt.want {
				t.Errorf("got %d, want %d", got, tt.want)
			}
		})
	}

	if _, err := EncodeRaw(math.NaN(), Scaling{}, TypeU16); !errors.Is(err, bmserr.ErrValue) {
		t.Errorf("NaN: err = %v, want ErrValue", err)
	}
}

func TestMergeByte(t *testing.T) {
	if got := MergeByte(0x1234, ByteHigh, 0xAB); got != 0xAB34 {
		t.Errorf("high = 0x%04X", got)
	}
	if got := MergeByte(0x1234, ByteLow, 0xAB); got != 0x12AB {
		t.Errorf("low = 0x%04X", got)
	}
	if got := SplitU32(0x12340056); got != [2]uint16{0x1234, 0x0056} {
		t.Errorf("SplitU32 = %04X", got)
	}
}

// ============================================================
// Text Codec Tests
// ============================================================

func TestDecodeText(t *testing.T) {
	tests := []struct {
		name string
		in   []byte
		want string
	}{
		{"nul terminated", []byte("BMS\x00junk"), "BMS"},
		{"ff padded", []byte("BMS\xff\xff"), "BMS"},
		{"ff before nul", []byte("AB\xff\x00C"), "AB"},
		{"full width", []byte("ABCD"), "ABCD"},
		{"erased", []byte{0xFF, 0xFF, 0xFF, 0xFF}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := DecodeText(tt.in); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestEncodeText_RuneBoundary(t *testing.T) {
	tests := []struct {
		in   string
		n    int
		want string
	}{
		{"Akku", 8, "Akku"},
		{"Akkü", 5, "Akk"},  // ü would need bytes 3 and 4
		{"Akkü", 6, "Akkü"}, // fits with its terminator
		{"€€", 6, "€"},
		{"é", 2, ""},
	}
	for _, tt := range tests {
		b := EncodeText(tt.in, tt.n)
		if len(b) != tt.n {
			t.Fatalf("EncodeText(%q, %d) length %d", tt.in, tt.n, len(b))
		}
		got := DecodeText(b)
		if got != tt.want {
			t.Errorf("EncodeText(%q, %d) = %q, want %q", tt.in, tt.n, got, tt.want)
		}
		if !utf8.ValidString(got) {
			t.Errorf("EncodeText(%q, %d) produced invalid UTF-8 % X", tt.in, tt.n, b)
		}
	}
}

func TestTextToRegisters(t *testing.T) {
	regs := TextToRegisters("ABCDEFG", 6)
	want := []uint16{0x4142, 0x4344, 0x4500}
	if len(regs) != len(want) {
		t.Fatalf("regs = %04X", regs)
	}
	for i := range want {
		if regs[i] != want[i] {
			t.Errorf("regs[%d] = 0x%04X, want 0x%04X", i, regs[i], want[i])
		}
	}

	v := NewView(0, regs)
	b, _ := v.Bytes(0, 6)
	if got := DecodeText(b); got != "ABCDE" {
		t.Errorf("round trip = %q", got)
	}
}

// ============================================================
// Range Tests
// ============================================================

func TestChunkRanges(t *testing.T) {
	tests := []struct {
		qty, max int
		chunks   int
	}{
		{1, 120, 1},
		{120, 120, 1},
		{121, 120, 2},
		{300, 120, 3},
		{7, 3, 3},
	}
	for _, tt := range tests {
		rs := ChunkRanges(0x1000, tt.qty, tt.max)
		if len(rs) != tt.chunks {
			t.Errorf("qty=%d max=%d: %d chunks, want %d", tt.qty, tt.max, len(rs), tt.chunks)
			continue
		}
		next, total := 0x1000, 0
		for _, r := range rs {
			if int(r.Start) != next || r.Quantity > tt.max || r.Quantity <= 0 {
				t.Errorf("qty=%d max=%d: bad range %+v", tt.qty, tt.max, r)
			}
			next = r.End()
			total += r.Quantity
		}
		if total != tt.qty {
			t.Errorf("qty=%d max=%d: covered %d", tt.qty, tt.max, total)
		}
	}
}

func TestGroupContiguous(t *testing.T) {
	got := GroupContiguous([]uint16{0x12, 0x10, 0x11, 0x20, 0x11, 0x22, 0x21, 0x30})
	want := []Range{{0x10, 3}, {0x20, 3}, {0x30, 1}}
	if len(got) != len(want) {
		t.Fatalf("got %+v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("range %d = %+v, want %+v", i, got[i], want[i])
		}
	}
	if GroupContiguous(nil) != nil {
		t.Error("empty input should yield nil")
	}
}

// ============================================================
// File Tests
// ============================================================

func TestFile_Window(t *testing.T) {
	f := NewFile()
	if err := f.SetWindow(0x100, []uint16{1, 2, 3}); err != nil {
		t.Fatal(err)
	}
	v, err := f.Window(0xFF, 5)
	if err != nil {
		t.Fatal(err)
	}
	want := []uint16{0, 1, 2, 3, 0}
	for i := range want {
		if v.Regs[i] != want[i] {
			t.Errorf("reg %d = %d, want %d", i, v.Regs[i], want[i])
		}
	}

	f.SetStrict(true)
	if _, err := f.Window(0xFF, 2); !errors.Is(err, bmserr.ErrValue) {
		t.Errorf("strict unmapped: err = %v", err)
	}
	if addrs := f.Addresses(); len(addrs) != 3 || addrs[0] != 0x100 {
		t.Errorf("Addresses = %v", addrs)
	}
}

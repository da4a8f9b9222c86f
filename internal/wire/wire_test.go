package wire

import (
	"bytes"
	"errors"
	"math"
	"testing"
)

func TestFixedConversion(t *testing.T) {
	tests := []struct {
		name string
		in   float64
	}{
		{"zero", 0},
		{"one", 1},
		{"negative", -42.5},
		{"fraction", 3.25},
		{"small fraction", 0.00390625},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := FixedFromFloat(tt.in)
			got := f.Float()
			if math.Abs(got-tt.in) > 1.0/256.0 {
				t.Errorf("FixedFromFloat(%v).Float() = %v, want ~%v", tt.in, got, tt.in)
			}
		})
	}
}

func TestFixedFromInt(t *testing.T) {
	tests := []struct {
		in   int32
		want int32
	}{
		{0, 0},
		{1, 1},
		{-1, -1},
		{1000, 1000},
	}
	for _, tt := range tests {
		f := FixedFromInt(tt.in)
		if got := f.Int(); got != tt.want {
			t.Errorf("FixedFromInt(%d).Int() = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestEncodeDecodeRoundtrip(t *testing.T) {
	e := NewEncoder(64)
	e.PutInt32(-7)
	e.PutUint32(42)
	e.PutFixed(FixedFromFloat(1.5))
	e.PutObject(ObjectID(5))
	e.PutString("hello")
	e.PutArray([]byte{1, 2, 3})

	d := NewDecoder(e.Bytes())
	if v, err := d.Int32(); err != nil || v != -7 {
		t.Fatalf("Int32() = %d, %v, want -7, nil", v, err)
	}
	if v, err := d.Uint32(); err != nil || v != 42 {
		t.Fatalf("Uint32() = %d, %v, want 42, nil", v, err)
	}
	if v, err := d.Fixed(); err != nil || v.Float() != 1.5 {
		t.Fatalf("Fixed() = %v, %v, want 1.5, nil", v.Float(), err)
	}
	if v, err := d.Object(); err != nil || v != 5 {
		t.Fatalf("Object() = %d, %v, want 5, nil", v, err)
	}
	if v, err := d.String(); err != nil || v != "hello" {
		t.Fatalf("String() = %q, %v, want hello, nil", v, err)
	}
	if v, err := d.Array(); err != nil || !bytes.Equal(v, []byte{1, 2, 3}) {
		t.Fatalf("Array() = %v, %v, want [1 2 3], nil", v, err)
	}
	if d.HasMore() {
		t.Errorf("decoder has %d bytes remaining, want 0", d.Remaining())
	}
}

func TestDecoderErrors(t *testing.T) {
	t.Run("truncated int32", func(t *testing.T) {
		d := NewDecoder([]byte{1, 2})
		if _, err := d.Int32(); !errors.Is(err, ErrUnexpectedEOF) {
			t.Errorf("err = %v, want ErrUnexpectedEOF", err)
		}
	})
	t.Run("string length overflow", func(t *testing.T) {
		buf := make([]byte, 4)
		bytesPutUint32(buf, uint32(maxMessageSize+1))
		d := NewDecoder(buf)
		if _, err := d.String(); !errors.Is(err, ErrInvalidStringLen) {
			t.Errorf("err = %v, want ErrInvalidStringLen", err)
		}
	})
	t.Run("string not terminated", func(t *testing.T) {
		e := NewEncoder(16)
		e.PutUint32(4)
		e.buf = append(e.buf, 'a', 'b', 'c', 'x')
		d := NewDecoder(e.Bytes())
		if _, err := d.String(); !errors.Is(err, ErrStringNotTerminated) {
			t.Errorf("err = %v, want ErrStringNotTerminated", err)
		}
	})
	t.Run("array length overflow", func(t *testing.T) {
		buf := make([]byte, 4)
		bytesPutUint32(buf, uint32(maxMessageSize+1))
		d := NewDecoder(buf)
		if _, err := d.Array(); !errors.Is(err, ErrInvalidArrayLen) {
			t.Errorf("err = %v, want ErrInvalidArrayLen", err)
		}
	})
	t.Run("no more fds", func(t *testing.T) {
		d := NewDecoder(nil)
		if _, err := d.FD(); !errors.Is(err, ErrNoMoreFDs) {
			t.Errorf("err = %v, want ErrNoMoreFDs", err)
		}
	})
}

func TestPaddingFor(t *testing.T) {
	tests := []struct {
		length int
		want   int
	}{
		{0, 0},
		{1, 3},
		{2, 2},
		{3, 1},
		{4, 0},
		{5, 3},
		{8, 0},
	}
	for _, tt := range tests {
		if got := paddingFor(tt.length); got != tt.want {
			t.Errorf("paddingFor(%d) = %d, want %d", tt.length, got, tt.want)
		}
	}
}

func TestMessageSize(t *testing.T) {
	m := &Message{ObjectID: 1, Opcode: 0, Args: []byte{1, 2, 3, 4}}
	if got, want := m.Size(), headerSize+4; got != want {
		t.Errorf("Size() = %d, want %d", got, want)
	}
}

func TestEncoderReset(t *testing.T) {
	e := NewEncoder(16)
	e.PutUint32(1)
	if len(e.Bytes()) == 0 {
		t.Fatal("expected bytes after PutUint32")
	}
	e.Reset()
	if len(e.Bytes()) != 0 {
		t.Errorf("Bytes() after Reset = %d bytes, want 0", len(e.Bytes()))
	}
}

func TestDecoderRemaining(t *testing.T) {
	d := NewDecoder(make([]byte, 10))
	if got := d.Remaining(); got != 10 {
		t.Errorf("Remaining() = %d, want 10", got)
	}
	if err := d.Skip(4); err != nil {
		t.Fatalf("Skip(4) error: %v", err)
	}
	if got := d.Remaining(); got != 6 {
		t.Errorf("Remaining() after Skip(4) = %d, want 6", got)
	}
	if err := d.Skip(100); err == nil {
		t.Error("Skip(100) with 6 remaining should error")
	}
}

func TestFloatToFixedClamping(t *testing.T) {
	big := FloatToFixed(1e12)
	small := FloatToFixed(-1e12)
	if big.Float() <= 0 {
		t.Errorf("FloatToFixed(1e12).Float() = %v, want positive clamp", big.Float())
	}
	if small.Float() >= 0 {
		t.Errorf("FloatToFixed(-1e12).Float() = %v, want negative clamp", small.Float())
	}
}

func TestNewIDFull(t *testing.T) {
	e := NewEncoder(64)
	e.PutNewIDFull("wl_compositor", 4, ObjectID(9))
	d := NewDecoder(e.Bytes())
	iface, err := d.String()
	if err != nil || iface != "wl_compositor" {
		t.Fatalf("interface = %q, %v, want wl_compositor", iface, err)
	}
	version, err := d.Uint32()
	if err != nil || version != 4 {
		t.Fatalf("version = %d, %v, want 4", version, err)
	}
	id, err := d.NewID()
	if err != nil || id != 9 {
		t.Fatalf("id = %d, %v, want 9", id, err)
	}
}

func TestDecodeHeaderErrors(t *testing.T) {
	t.Run("too small", func(t *testing.T) {
		d := NewDecoder([]byte{1, 2, 3})
		if _, _, _, err := d.DecodeHeader(); !errors.Is(err, ErrMessageTooSmall) {
			t.Errorf("err = %v, want ErrMessageTooSmall", err)
		}
	})
	t.Run("size below header", func(t *testing.T) {
		e := NewEncoder(8)
		e.PutUint32(1)
		e.PutUint32(uint32(4)<<16 | 0)
		d := NewDecoder(e.Bytes())
		if _, _, _, err := d.DecodeHeader(); !errors.Is(err, ErrMessageTooSmall) {
			t.Errorf("err = %v, want ErrMessageTooSmall", err)
		}
	})
	t.Run("size too large", func(t *testing.T) {
		e := NewEncoder(8)
		e.PutUint32(1)
		e.PutUint32(uint32(maxMessageSize+100)<<16 | 0)
		d := NewDecoder(e.Bytes())
		if _, _, _, err := d.DecodeHeader(); !errors.Is(err, ErrMessageTooLarge) {
			t.Errorf("err = %v, want ErrMessageTooLarge", err)
		}
	})
}

func TestEncodeMessageTooLarge(t *testing.T) {
	msg := &Message{ObjectID: 1, Opcode: 0, Args: make([]byte, maxMessageSize)}
	if _, err := EncodeMessage(msg); !errors.Is(err, ErrMessageTooLarge) {
		t.Errorf("err = %v, want ErrMessageTooLarge", err)
	}
}

func TestMessageBuilder(t *testing.T) {
	b := NewMessageBuilder()
	b.PutInt32(1).PutString("surface").PutFD(7)
	msg := b.BuildMessage(ObjectID(3), Opcode(2))
	if msg.ObjectID != 3 || msg.Opcode != 2 {
		t.Fatalf("unexpected message header: %+v", msg)
	}
	if len(msg.FDs) != 1 || msg.FDs[0] != 7 {
		t.Fatalf("FDs = %v, want [7]", msg.FDs)
	}
	b.Reset()
	args, fds := b.Build()
	if len(args) != 0 || len(fds) != 0 {
		t.Errorf("after Reset: args=%v fds=%v, want empty", args, fds)
	}
}

func TestProtocolError(t *testing.T) {
	err := &ProtocolError{Object: 5, Code: DisplayErrorInvalidMethod, Message: "bad opcode"}
	if err.Error() == "" {
		t.Error("Error() returned empty string")
	}
}

func BenchmarkEncodeMessage(b *testing.B) {
	msg := &Message{ObjectID: 1, Opcode: 0, Args: make([]byte, 32)}
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		_, _ = EncodeMessage(msg)
	}
}

func BenchmarkDecodeMessage(b *testing.B) {
	msg := &Message{ObjectID: 1, Opcode: 0, Args: make([]byte, 32)}
	buf, _ := EncodeMessage(msg)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		d := NewDecoder(buf)
		_, _ = d.DecodeMessage()
	}
}

func BenchmarkEncoderPutString(b *testing.B) {
	e := NewEncoder(256)
	b.ReportAllocs()
	for i := 0; i < b.N; i++ {
		e.Reset()
		e.PutString("wl_compositor")
	}
}

func bytesPutUint32(buf []byte, v uint32) {
	buf[0] = byte(v)
	buf[1] = byte(v >> 8)
	buf[2] = byte(v >> 16)
	buf[3] = byte(v >> 24)
}

package mqtt

import "testing"

func TestVarIntRoundTrip(t *testing.T) {
	cases := []uint32{0, 1, 127, 128, 16383, 16384, 2097151, 2097152, MaxVarInt}

	for _, v := range cases {
		enc := NewEncoder()
		if err := enc.VarInt(&v); err != nil {
			t.Fatalf("encode %d: %v", v, err)
		}
		dec := NewDecoder(enc.Bytes())
		var got uint32
		if err := dec.VarInt(&got); err != nil {
			t.Fatalf("decode %d: %v", v, err)
		}
		if got != v {
			t.Errorf("VarInt round trip: want %d, got %d", v, got)
		}
	}
}

func TestVarIntTooLarge(t *testing.T) {
	v := uint32(MaxVarInt + 1)
	enc := NewEncoder()
	if err := enc.VarInt(&v); err != ErrMalformedVarInt {
		t.Errorf("expected ErrMalformedVarInt, got %v", err)
	}
}

func TestVarIntFiveDigitsMalformed(t *testing.T) {
	// Four continuation-set bytes and a fifth digit: exceeds the 4-digit limit.
	dec := NewDecoder([]byte{0x80, 0x80, 0x80, 0x80, 0x01})
	var v uint32
	if err := dec.VarInt(&v); err != ErrMalformedVarInt {
		t.Errorf("expected ErrMalformedVarInt, got %v", err)
	}
}

func TestFixedHeaderRoundTrip(t *testing.T) {
	cases := []FixedHeader{
		{Type: CONNECT, Remaining: 12},
		{Type: PUBLISH, Dup: true, QoS: 2, Retain: true, Remaining: 16384},
		{Type: PINGREQ, Remaining: 0},
		{Type: SUBSCRIBE, QoS: 1, Remaining: 127},
	}

	for _, fh := range cases {
		enc := NewEncoder()
		if err := enc.FixedHeader(&fh); err != nil {
			t.Fatalf("encode %+v: %v", fh, err)
		}
		dec := NewDecoder(enc.Bytes())
		var got FixedHeader
		if err := dec.FixedHeader(&got); err != nil {
			t.Fatalf("decode %+v: %v", fh, err)
		}
		if got != fh {
			t.Errorf("FixedHeader round trip: want %+v, got %+v", fh, got)
		}
	}
}

func TestStringRejectsInvalidUTF8(t *testing.T) {
	raw := []byte{0x00, 0x02, 0xff, 0xfe}
	dec := NewDecoder(raw)
	var s string
	if err := dec.String(&s); err != ErrInvalidUTF8 {
		t.Errorf("expected ErrInvalidUTF8, got %v", err)
	}
}

func TestUint8UnexpectedEOF(t *testing.T) {
	dec := NewDecoder(nil)
	var b byte
	if err := dec.Uint8(&b); err != ErrUnexpectedEOF {
		t.Errorf("expected ErrUnexpectedEOF, got %v", err)
	}
}

func TestBitsPackAcrossByteBoundary(t *testing.T) {
	enc := NewEncoder()
	a, b, c := byte(1), byte(2), byte(3)
	if err := enc.Bits(&a, 4); err != nil {
		t.Fatal(err)
	}
	if err := enc.Bits(&b, 2); err != nil {
		t.Fatal(err)
	}
	if err := enc.Bits(&c, 2); err != nil {
		t.Fatal(err)
	}
	if len(enc.Bytes()) != 1 {
		t.Fatalf("expected 1 packed byte, got %d", len(enc.Bytes()))
	}

	dec := NewDecoder(enc.Bytes())
	var ga, gb, gc byte
	dec.Bits(&ga, 4)
	dec.Bits(&gb, 2)
	dec.Bits(&gc, 2)
	if ga != a || gb != b || gc != c {
		t.Errorf("bit pack round trip: want (%d,%d,%d), got (%d,%d,%d)", a, b, c, ga, gb, gc)
	}
}

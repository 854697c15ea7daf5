package mqtt

import "testing"

func TestStreamSingleMessage(t *testing.T) {
	p := &PingreqPacket{}
	data, _ := p.Encode()

	s := NewStream(64)
	if err := s.Push(data); err != nil {
		t.Fatalf("Push: %v", err)
	}
	if !s.HasMessage() {
		t.Fatal("expected a message to be available")
	}
	msg, ok := s.Next()
	if !ok {
		t.Fatal("Next returned false")
	}
	if len(msg) != len(data) {
		t.Errorf("want %d bytes, got %d", len(data), len(msg))
	}
	if _, ok := s.Next(); ok {
		t.Error("expected no further message")
	}
}

func TestStreamByteAtATime(t *testing.T) {
	p := &PublishPacket{Topic: "a/b", QoS: 1, PacketID: 5, Payload: []byte("payload bytes")}
	data, _ := p.Encode()

	s := NewStream(256)
	for i, b := range data {
		if err := s.Push([]byte{b}); err != nil {
			t.Fatalf("Push byte %d: %v", i, err)
		}
	}
	if !s.HasMessage() {
		t.Fatal("expected a message after all bytes pushed")
	}
	msg, ok := s.Next()
	if !ok || len(msg) != len(data) {
		t.Fatalf("Next: ok=%v len=%d want=%d", ok, len(msg), len(data))
	}
}

func TestStreamMultipleMessagesInOnePush(t *testing.T) {
	p1 := &PingreqPacket{}
	p2 := &DisconnectPacket{}
	d1, _ := p1.Encode()
	d2, _ := p2.Encode()

	s := NewStream(64)
	combined := append(append([]byte{}, d1...), d2...)
	if err := s.Push(combined); err != nil {
		t.Fatalf("Push: %v", err)
	}

	first, ok := s.Next()
	if !ok || len(first) != len(d1) {
		t.Fatalf("first message: ok=%v len=%d", ok, len(first))
	}
	second, ok := s.Next()
	if !ok || len(second) != len(d2) {
		t.Fatalf("second message: ok=%v len=%d", ok, len(second))
	}
	if _, ok := s.Next(); ok {
		t.Error("expected no third message")
	}
}

// TestStreamVarIntBoundary exercises a PUBLISH whose remaining length
// crosses the single-byte VLQ boundary (128 and 16384), requiring the
// stream to wait for the full multi-byte header before it can size the
// packet.
func TestStreamVarIntBoundary(t *testing.T) {
	sizes := []int{100, 200, 16300, 16500}
	for _, n := range sizes {
		payload := make([]byte, n)
		for i := range payload {
			payload[i] = byte(i)
		}
		p := &PublishPacket{Topic: "t", Payload: payload}
		data, err := p.Encode()
		if err != nil {
			t.Fatalf("Encode size %d: %v", n, err)
		}

		s := NewStream(32768)
		half := len(data) / 2
		if err := s.Push(data[:half]); err != nil {
			t.Fatalf("Push first half (size %d): %v", n, err)
		}
		if s.HasMessage() {
			t.Fatalf("size %d: message available before all bytes pushed", n)
		}
		if err := s.Push(data[half:]); err != nil {
			t.Fatalf("Push second half (size %d): %v", n, err)
		}
		msg, ok := s.Next()
		if !ok {
			t.Fatalf("size %d: expected a message", n)
		}
		if len(msg) != len(data) {
			t.Errorf("size %d: want %d bytes, got %d", n, len(data), len(msg))
		}
	}
}

func TestStreamOverflow(t *testing.T) {
	s := NewStream(8)
	if err := s.Push(make([]byte, 9)); err != ErrOverflow {
		t.Errorf("expected ErrOverflow, got %v", err)
	}
}

func TestStreamMalformedHeaderIsSticky(t *testing.T) {
	s := NewStream(16)
	// Type byte, then four continuation bytes: VarInt can never terminate in 4 digits.
	if err := s.Push([]byte{0x10, 0x80, 0x80, 0x80, 0x80}); err == nil {
		t.Fatal("expected a malformed header error")
	}
	if s.Err() == nil {
		t.Error("expected Err() to stay sticky after a malformed header")
	}
	if err := s.Push([]byte{0x00}); err == nil {
		t.Error("expected Push to keep returning the sticky error")
	}
}

package mqtt

// DefaultBufferSize is the stream's default backing-buffer capacity.
const DefaultBufferSize = 1024

// Stream incrementally extracts whole MQTT packets out of a growing
// byte stream. It is single-reader: only the connection's own read
// loop may call Push/Next on a given Stream.
//
// The backing buffer has fixed capacity (a policy choice, not grown on
// demand): Push compacts the unread prefix to the front before giving
// up with ErrOverflow.
type Stream struct {
	buf   []byte
	start int
	end   int

	headerLen int
	remaining uint32

	err error
}

// NewStream creates a Stream with the given backing-buffer capacity.
// A capacity <= 0 uses DefaultBufferSize.
func NewStream(capacity int) *Stream {
	if capacity <= 0 {
		capacity = DefaultBufferSize
	}
	return &Stream{buf: make([]byte, capacity)}
}

// Err returns the sticky error set when the current packet's header
// turned out to be malformed rather than merely incomplete. Once set,
// the stream stops extracting messages — the caller should close the
// connection (spec.md §7: MalformedPacket closes with no response).
func (s *Stream) Err() error { return s.err }

func (s *Stream) view() []byte { return s.buf[s.start:s.end] }

// Push appends bytes to the stream, compacting the unread prefix to
// the front first if needed to make room. It fails with ErrOverflow if
// bytes still would not fit after compaction.
func (s *Stream) Push(bytes []byte) error {
	if s.err != nil {
		return s.err
	}
	if s.end+len(bytes) > len(s.buf) {
		n := copy(s.buf, s.buf[s.start:s.end])
		s.start = 0
		s.end = n
		if s.end+len(bytes) > len(s.buf) {
			return ErrOverflow
		}
	}
	copy(s.buf[s.end:], bytes)
	s.end += len(bytes)
	s.updateRemaining()
	return s.err
}

// updateRemaining attempts to decode the fixed header at the head of
// the current view. If the header's variable-length integer is
// incomplete, it leaves headerLen at 0 and waits for more bytes; any
// other decode failure is a genuine protocol error and becomes sticky.
func (s *Stream) updateRemaining() {
	if s.headerLen != 0 {
		return
	}
	view := s.view()
	if len(view) < Size {
		return
	}
	c := NewDecoder(view)
	var fh FixedHeader
	if err := c.FixedHeader(&fh); err != nil {
		if err == ErrUnexpectedEOF {
			return
		}
		s.err = err
		return
	}
	s.headerLen = c.pos
	s.remaining = fh.Remaining
}

// HasMessage reports whether a whole packet is currently available.
func (s *Stream) HasMessage() bool {
	return s.headerLen > 0 && len(s.view()) >= s.headerLen+int(s.remaining)
}

// Next returns the bytes of the current whole packet (header and
// body) and advances past it. It returns (nil, false) when no whole
// packet is yet available.
func (s *Stream) Next() ([]byte, bool) {
	if !s.HasMessage() {
		return nil, false
	}
	size := s.headerLen + int(s.remaining)
	msg := make([]byte, size)
	copy(msg, s.buf[s.start:s.start+size])
	s.start += size

	s.headerLen = 0
	s.remaining = 0
	s.updateRemaining()

	return msg, true
}

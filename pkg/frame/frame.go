package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Frame geometry.
const (
	// MTU is the largest frame on the wire (header included).
	MTU = 1024
	// HeaderSize is the size of the serialized header.
	HeaderSize = 32
	// PayloadSize is the largest payload a single frame can carry.
	PayloadSize = MTU - HeaderSize
)

// Header field offsets.
const (
	offLabel       = 0
	offSource      = 8
	offDestination = 16
	offLength      = 24
	offSequence    = 26
	offSession     = 28
	offCommand     = 29
	offQualifier   = 30
	offStatus      = 31
)

var (
	// ErrShortBuffer is returned when a buffer cannot hold a full frame.
	ErrShortBuffer = errors.New("frame: buffer smaller than MTU")
	// ErrInvalidLength is returned when a header announces an impossible length.
	ErrInvalidLength = errors.New("frame: invalid length")
)

// Header is the decoded routing header.
type Header struct {
	Label       uint64
	Source      uint64
	Destination uint64
	Length      uint16
	Sequence    uint16
	Session     uint8
	Command     uint8
	Qualifier   uint8
	Status      uint8
}

// Frame is a single protocol frame backed by an MTU-sized buffer.
//
// Besides the serialized header, a frame carries two values that never
// reach the wire: the origin (connection the frame arrived on) and the next
// hop chosen by whoever routed it.
type Frame struct {
	buf     []byte
	size    int
	origin  uint64
	nextHop uint64
}

// New allocates a frame with its own buffer. The frame starts header-only.
func New(origin uint64) *Frame {
	f, _ := Wrap(make([]byte, MTU), origin)
	f.Bind()
	return f
}

// Wrap binds a frame to buf, which must be at least MTU bytes long. The
// current contents of buf are kept; the tracked size is taken from the
// length field when it is valid and HeaderSize otherwise.
func Wrap(buf []byte, origin uint64) (*Frame, error) {
	if len(buf) < MTU {
		return nil, ErrShortBuffer
	}
	f := &Frame{buf: buf[:MTU], size: HeaderSize, origin: origin}
	if n := int(f.Length()); TestLength(n) {
		f.size = n
	}
	return f, nil
}

// TestLength reports whether n is a valid frame length.
func TestLength(n int) bool {
	return n >= HeaderSize && n <= MTU
}

// Packets returns the number of frames needed to transmit n payload bytes.
func Packets(n int) int {
	if n <= 0 {
		return 1
	}
	return (n + PayloadSize - 1) / PayloadSize
}

// PackHeader serializes h into the buffer. It fails without touching the
// buffer when h.Length is out of range.
func (f *Frame) PackHeader(h Header) bool {
	if !TestLength(int(h.Length)) {
		return false
	}
	b := f.buf
	binary.BigEndian.PutUint64(b[offLabel:], h.Label)
	binary.BigEndian.PutUint64(b[offSource:], h.Source)
	binary.BigEndian.PutUint64(b[offDestination:], h.Destination)
	binary.BigEndian.PutUint16(b[offLength:], h.Length)
	binary.BigEndian.PutUint16(b[offSequence:], h.Sequence)
	b[offSession] = h.Session
	b[offCommand] = h.Command
	b[offQualifier] = h.Qualifier
	b[offStatus] = h.Status
	f.size = int(h.Length)
	return true
}

// UnpackHeader decodes the serialized header. The second result is false
// when the encoded length is out of range.
func (f *Frame) UnpackHeader() (Header, bool) {
	b := f.buf
	h := Header{
		Label:       binary.BigEndian.Uint64(b[offLabel:]),
		Source:      binary.BigEndian.Uint64(b[offSource:]),
		Destination: binary.BigEndian.Uint64(b[offDestination:]),
		Length:      binary.BigEndian.Uint16(b[offLength:]),
		Sequence:    binary.BigEndian.Uint16(b[offSequence:]),
		Session:     b[offSession],
		Command:     b[offCommand],
		Qualifier:   b[offQualifier],
		Status:      b[offStatus],
	}
	return h, TestLength(int(h.Length))
}

// Bind writes the tracked content size into the length field, making the
// frame internally consistent.
func (f *Frame) Bind() bool {
	if !TestLength(f.size) {
		return false
	}
	binary.BigEndian.PutUint16(f.buf[offLength:], uint16(f.size))
	return true
}

// Validate reports whether the length field is in range and matches the
// tracked content size.
func (f *Frame) Validate() bool {
	n := int(f.Length())
	return TestLength(n) && n == f.size
}

// TestLength reports whether the frame's length field is in range.
func (f *Frame) TestLength() bool {
	return TestLength(int(f.Length()))
}

// CheckContext compares the header's command and qualifier.
func (f *Frame) CheckContext(command, qualifier uint8) bool {
	return f.Command() == command && f.Qualifier() == qualifier
}

// CheckContextStatus compares the header's command, qualifier and status.
func (f *Frame) CheckContextStatus(command, qualifier, status uint8) bool {
	return f.CheckContext(command, qualifier) && f.Status() == status
}

// Origin returns the identifier of the connection the frame arrived on.
func (f *Frame) Origin() uint64 { return f.origin }

// SetOrigin sets the origin.
func (f *Frame) SetOrigin(origin uint64) { f.origin = origin }

// NextHop returns the routing decision made for this frame.
func (f *Frame) NextHop() uint64 { return f.nextHop }

// SetNextHop records where the frame should be delivered.
func (f *Frame) SetNextHop(id uint64) { f.nextHop = id }

// Size returns the tracked content size (header included).
func (f *Frame) Size() int { return f.size }

func (f *Frame) Label() uint64       { return binary.BigEndian.Uint64(f.buf[offLabel:]) }
func (f *Frame) Source() uint64      { return binary.BigEndian.Uint64(f.buf[offSource:]) }
func (f *Frame) Destination() uint64 { return binary.BigEndian.Uint64(f.buf[offDestination:]) }
func (f *Frame) Length() uint16      { return binary.BigEndian.Uint16(f.buf[offLength:]) }
func (f *Frame) Sequence() uint16    { return binary.BigEndian.Uint16(f.buf[offSequence:]) }
func (f *Frame) Session() uint8      { return f.buf[offSession] }
func (f *Frame) Command() uint8      { return f.buf[offCommand] }
func (f *Frame) Qualifier() uint8    { return f.buf[offQualifier] }
func (f *Frame) Status() uint8       { return f.buf[offStatus] }

func (f *Frame) SetLabel(v uint64)       { binary.BigEndian.PutUint64(f.buf[offLabel:], v) }
func (f *Frame) SetSource(v uint64)      { binary.BigEndian.PutUint64(f.buf[offSource:], v) }
func (f *Frame) SetDestination(v uint64) { binary.BigEndian.PutUint64(f.buf[offDestination:], v) }
func (f *Frame) SetSequence(v uint16)    { binary.BigEndian.PutUint16(f.buf[offSequence:], v) }
func (f *Frame) SetSession(v uint8)      { f.buf[offSession] = v }
func (f *Frame) SetCommand(v uint8)      { f.buf[offCommand] = v }
func (f *Frame) SetQualifier(v uint8)    { f.buf[offQualifier] = v }
func (f *Frame) SetStatus(v uint8)       { f.buf[offStatus] = v }

// SetContext sets command, qualifier and status in one call.
func (f *Frame) SetContext(command, qualifier, status uint8) {
	f.buf[offCommand] = command
	f.buf[offQualifier] = qualifier
	f.buf[offStatus] = status
}

// Payload returns the payload bytes. The slice aliases the frame buffer.
func (f *Frame) Payload() []byte {
	return f.buf[HeaderSize:f.size]
}

// PayloadLength returns the number of payload bytes.
func (f *Frame) PayloadLength() int {
	return f.size - HeaderSize
}

// SetPayload replaces the payload and binds the length field.
func (f *Frame) SetPayload(p []byte) bool {
	if len(p) > PayloadSize {
		return false
	}
	copy(f.buf[HeaderSize:], p)
	f.size = HeaderSize + len(p)
	return f.Bind()
}

// SetBytes copies p into the payload at offset without changing the
// tracked size. It fails when the write would overrun the buffer.
func (f *Frame) SetBytes(offset int, p []byte) bool {
	if offset < 0 || offset+len(p) > PayloadSize {
		return false
	}
	copy(f.buf[HeaderSize+offset:], p)
	return true
}

// SetData16 writes v at the payload offset.
func (f *Frame) SetData16(offset int, v uint16) bool {
	if offset < 0 || offset+2 > PayloadSize {
		return false
	}
	binary.BigEndian.PutUint16(f.buf[HeaderSize+offset:], v)
	return true
}

// Data16 reads a 16-bit value at the payload offset.
func (f *Frame) Data16(offset int) (uint16, bool) {
	if offset < 0 || offset+2 > f.PayloadLength() {
		return 0, false
	}
	return binary.BigEndian.Uint16(f.buf[HeaderSize+offset:]), true
}

// Truncate sets the tracked size to n (header included) and binds it.
func (f *Frame) Truncate(n int) bool {
	if !TestLength(n) {
		return false
	}
	f.size = n
	return f.Bind()
}

// Bytes returns the wire image of the frame. The slice aliases the buffer.
func (f *Frame) Bytes() []byte {
	return f.buf[:f.size]
}

// Buffer returns the full backing buffer.
func (f *Frame) Buffer() []byte {
	return f.buf
}

// ReadFrom reads exactly one frame from r: the header first, then as many
// payload bytes as the header announces.
func (f *Frame) ReadFrom(r io.Reader) (int64, error) {
	n, err := io.ReadFull(r, f.buf[:HeaderSize])
	if err != nil {
		return int64(n), err
	}
	length := int(f.Length())
	if !TestLength(length) {
		return int64(n), fmt.Errorf("%w: %d", ErrInvalidLength, length)
	}
	m, err := io.ReadFull(r, f.buf[HeaderSize:length])
	if err != nil {
		if errors.Is(err, io.EOF) {
			err = io.ErrUnexpectedEOF
		}
		return int64(n + m), err
	}
	f.size = length
	return int64(n + m), nil
}

// WriteTo writes the bound frame to w.
func (f *Frame) WriteTo(w io.Writer) (int64, error) {
	if !f.Validate() {
		return 0, ErrInvalidLength
	}
	n, err := w.Write(f.Bytes())
	return int64(n), err
}

// Clone returns a deep copy of the frame including routing values.
func (f *Frame) Clone() *Frame {
	c := New(f.origin)
	copy(c.buf, f.buf)
	c.size = f.size
	c.nextHop = f.nextHop
	return c
}

// String renders the header for debugging.
func (f *Frame) String() string {
	h, _ := f.UnpackHeader()
	return fmt.Sprintf("{label=%d src=%d dst=%d len=%d seq=%d sess=%d cmd=%d qlf=%d st=%d origin=%d}",
		h.Label, h.Source, h.Destination, h.Length, h.Sequence, h.Session,
		h.Command, h.Qualifier, h.Status, f.origin)
}

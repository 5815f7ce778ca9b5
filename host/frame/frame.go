package frame

import (
	"encoding/binary"
	"fmt"

	"github.com/ardnew/softhid/pkg"
)

// =============================================================================
// Layout
// =============================================================================

// HeaderSize is the number of header bytes preceding the data area of
// every packet.
const HeaderSize = 4

// DefaultPayloadSize is the data capacity of one packet. With the header it
// fills a 64-byte HID report.
const DefaultPayloadSize = 60

// MaxPayloadSize bounds the per-packet data capacity.
const MaxPayloadSize = 4096

// MaxPayload is the largest message payload the length field can describe.
const MaxPayload = 0xFFFF

// Header flag bits (byte 0).
const (
	FlagLast  = 0x80 // Final packet of a message
	FlagEvent = 0x40 // Unsolicited device event
	SeqMask   = 0x3F // Sequence number, modulo 64
)

// Header byte offsets.
const (
	offFlags  = 0
	offOpcode = 1
	offLength = 2
)

// =============================================================================
// Codec
// =============================================================================

// Codec converts messages to fixed-size packets and back. The zero value is
// not usable; create one with [New].
type Codec struct {
	payloadSize int
}

// New returns a codec carrying payloadSize data bytes per packet.
func New(payloadSize int) (Codec, error) {
	if payloadSize < 1 || payloadSize > MaxPayloadSize {
		return Codec{}, fmt.Errorf("%w: payload size %d", pkg.ErrInvalidParameter, payloadSize)
	}
	return Codec{payloadSize: payloadSize}, nil
}

// Must is like [New] but panics on an invalid size.
func Must(payloadSize int) Codec {
	c, err := New(payloadSize)
	if err != nil {
		panic(err)
	}
	return c
}

// PayloadSize returns the data capacity of one packet.
func (c Codec) PayloadSize() int {
	return c.payloadSize
}

// PacketSize returns the logical size of one packet, header included.
func (c Codec) PacketSize() int {
	return HeaderSize + c.payloadSize
}

// PacketCount returns the number of packets a payload of n bytes occupies.
// An empty payload still needs one packet to carry the header.
func (c Codec) PacketCount(n int) int {
	if n <= 0 {
		return 1
	}
	return (n + c.payloadSize - 1) / c.payloadSize
}

// Encode writes packet seq of the message (opcode, payload) into dst, which
// must hold at least PacketSize bytes. Unused data bytes are zeroed.
func (c Codec) Encode(dst []byte, opcode uint8, payload []byte, seq int) error {
	if len(payload) > MaxPayload {
		return pkg.ErrPayloadTooLarge
	}
	if len(dst) < c.PacketSize() {
		return pkg.ErrBufferTooSmall
	}
	count := c.PacketCount(len(payload))
	if seq < 0 || seq >= count {
		return fmt.Errorf("%w: packet %d of %d", pkg.ErrInvalidParameter, seq, count)
	}

	pkt := dst[:c.PacketSize()]
	clear(pkt)

	flags := byte(seq & SeqMask)
	if seq == count-1 {
		flags |= FlagLast
	}
	pkt[offFlags] = flags
	if seq == 0 {
		pkt[offOpcode] = opcode
		binary.LittleEndian.PutUint16(pkt[offLength:], uint16(len(payload)))
	}

	start := seq * c.payloadSize
	if start < len(payload) {
		copy(pkt[HeaderSize:], payload[start:min(start+c.payloadSize, len(payload))])
	}
	return nil
}

// Segment returns every packet of a message in transmission order.
func (c Codec) Segment(opcode uint8, payload []byte) ([][]byte, error) {
	if len(payload) > MaxPayload {
		return nil, pkg.ErrPayloadTooLarge
	}
	count := c.PacketCount(len(payload))
	pkts := make([][]byte, count)
	for i := range pkts {
		pkts[i] = make([]byte, c.PacketSize())
		if err := c.Encode(pkts[i], opcode, payload, i); err != nil {
			return nil, err
		}
	}
	return pkts, nil
}

// EncodeEvent writes a single-packet unsolicited event into dst.
func (c Codec) EncodeEvent(dst []byte, code uint8, data []byte) error {
	if len(data) > c.payloadSize {
		return pkg.ErrPayloadTooLarge
	}
	if err := c.Encode(dst, code, data, 0); err != nil {
		return err
	}
	dst[offFlags] |= FlagEvent
	return nil
}

// =============================================================================
// Packet Inspection
// =============================================================================

// IsEvent reports whether pkt is an unsolicited device event.
func IsEvent(pkt []byte) bool {
	return len(pkt) > 0 && pkt[offFlags]&FlagEvent != 0
}

// DecodeEvent returns the code and data of an event packet.
func (c Codec) DecodeEvent(pkt []byte) (uint8, []byte, error) {
	if len(pkt) < c.PacketSize() {
		return 0, nil, fmt.Errorf("%w: short event packet (%d bytes)", pkg.ErrProtocol, len(pkt))
	}
	flags := pkt[offFlags]
	if flags&FlagEvent == 0 || flags&FlagLast == 0 || flags&SeqMask != 0 {
		return 0, nil, fmt.Errorf("%w: bad event flags 0x%02x", pkg.ErrProtocol, flags)
	}
	n := int(binary.LittleEndian.Uint16(pkt[offLength:]))
	if n > c.payloadSize {
		return 0, nil, fmt.Errorf("%w: event length %d", pkg.ErrProtocol, n)
	}
	data := make([]byte, n)
	copy(data, pkt[HeaderSize:HeaderSize+n])
	return pkt[offOpcode], data, nil
}

// =============================================================================
// Reassembly
// =============================================================================

// Reassembler rebuilds one message from its packets. Packets must be pushed
// in arrival order; the channel never reorders them.
type Reassembler struct {
	codec   Codec
	started bool
	done    bool
	opcode  uint8
	length  int
	seq     int
	buf     []byte
}

// NewReassembler returns a reassembler for packets produced by codec.
func NewReassembler(codec Codec) *Reassembler {
	return &Reassembler{codec: codec}
}

// Reset discards any partial message.
func (r *Reassembler) Reset() {
	r.started = false
	r.done = false
	r.opcode = 0
	r.length = 0
	r.seq = 0
	r.buf = nil
}

// Started reports whether the first packet of a message has been accepted.
func (r *Reassembler) Started() bool {
	return r.started
}

// Received returns the number of payload bytes accumulated so far.
func (r *Reassembler) Received() int {
	return len(r.buf)
}

// Push adds one packet. It returns true once the message is complete.
// Any framing violation returns an error wrapping [pkg.ErrProtocol]; the
// reassembler must be Reset before reuse.
func (r *Reassembler) Push(pkt []byte) (bool, error) {
	size := r.codec.PacketSize()
	if len(pkt) < size {
		return false, fmt.Errorf("%w: short packet (%d < %d bytes)", pkg.ErrProtocol, len(pkt), size)
	}
	if r.done {
		return false, fmt.Errorf("%w: packet after final packet", pkg.ErrProtocol)
	}

	flags := pkt[offFlags]
	if flags&FlagEvent != 0 {
		return false, fmt.Errorf("%w: event packet inside message", pkg.ErrProtocol)
	}
	if seq := int(flags & SeqMask); seq != r.seq&SeqMask {
		return false, fmt.Errorf("%w: sequence %d, want %d", pkg.ErrProtocol, seq, r.seq&SeqMask)
	}

	if !r.started {
		r.opcode = pkt[offOpcode]
		r.length = int(binary.LittleEndian.Uint16(pkt[offLength:]))
		r.buf = make([]byte, 0, r.length)
		r.started = true
	} else if pkt[offOpcode] != 0 || pkt[offLength] != 0 || pkt[offLength+1] != 0 {
		return false, fmt.Errorf("%w: header in continuation packet %d", pkg.ErrProtocol, r.seq)
	}

	take := min(r.length-len(r.buf), r.codec.payloadSize)
	r.buf = append(r.buf, pkt[HeaderSize:HeaderSize+take]...)
	r.seq++

	last := flags&FlagLast != 0
	complete := len(r.buf) == r.length && r.seq == r.codec.PacketCount(r.length)
	switch {
	case last && !complete:
		return false, fmt.Errorf("%w: final packet at %d of %d bytes", pkg.ErrProtocol, len(r.buf), r.length)
	case !last && complete:
		return false, fmt.Errorf("%w: missing final flag", pkg.ErrProtocol)
	}
	r.done = last
	return last, nil
}

// Message returns the reassembled opcode and payload. It is only valid
// after Push reported completion.
func (r *Reassembler) Message() (uint8, []byte) {
	return r.opcode, r.buf
}

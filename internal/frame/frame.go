// Package frame implements the MAC-authenticated, length-prefixed wire
// framing used by every rexec stream.
//
// A frame is MAC(20 bytes) ‖ length(4 bytes, big-endian) ‖ payload(length
// bytes). The MAC is a rolling HMAC-SHA1: every frame body (length bytes
// plus payload) feeds the same hash.Hash across the lifetime of the
// connection, so a dropped, reordered, or tampered frame desynchronises the
// chain permanently. There is no resynchronisation; a codec that detects a
// mismatch is done.
package frame

import (
	"crypto/hmac"
	"crypto/sha1"
	"encoding/binary"
	"errors"
	"hash"
)

const (
	// MACSize is the width of the HMAC-SHA1 digest prefixing every frame.
	MACSize = sha1.Size // 20

	// LengthSize is the width of the big-endian payload length field.
	LengthSize = 4

	// HeaderSize is the combined MAC + length prefix every frame carries.
	HeaderSize = MACSize + LengthSize
)

// ErrCorrupt is returned by Decoder.Next when a frame's MAC does not match
// the rolling digest. It is always fatal for the stream that produced it.
var ErrCorrupt = errors.New("frame: MAC mismatch, corrupt frame")

// Codec holds the two independent rolling HMAC-SHA1 states for one stream:
// one fed by every frame written, one fed by every frame read. Both are
// keyed with the same shared secret, but read and write never share state,
// matching the source's _rhmac/_whmac split.
type Codec struct {
	readMAC  hash.Hash
	writeMAC hash.Hash
}

// New returns a Codec keyed with key (the Context's 16-byte shared secret).
func New(key []byte) *Codec {
	return &Codec{
		readMAC:  hmac.New(sha1.New, key),
		writeMAC: hmac.New(sha1.New, key),
	}
}

// Encode frames payload, folding it into the write MAC chain and returning
// MAC ‖ length ‖ payload ready to append to a stream's output buffer.
func (c *Codec) Encode(payload []byte) []byte {
	lengthBuf := make([]byte, LengthSize)
	binary.BigEndian.PutUint32(lengthBuf, uint32(len(payload)))

	c.writeMAC.Write(lengthBuf)
	c.writeMAC.Write(payload)
	mac := c.writeMAC.Sum(nil)

	out := make([]byte, 0, HeaderSize+len(payload))
	out = append(out, mac...)
	out = append(out, lengthBuf...)
	out = append(out, payload...)
	return out
}

// Decoder accumulates inbound bytes and pops fully-buffered, MAC-verified
// frames. It is not safe for concurrent use; the broker loop owns it
// exclusively, as it owns the stream's input buffer.
type Decoder struct {
	codec *Codec
	buf   []byte
}

// NewDecoder returns a Decoder that verifies frames against codec's read
// MAC chain.
func NewDecoder(codec *Codec) *Decoder {
	return &Decoder{codec: codec}
}

// Feed appends newly-read bytes to the decoder's buffer.
func (d *Decoder) Feed(b []byte) {
	d.buf = append(d.buf, b...)
}

// Buffered reports how many bytes are currently held, awaiting a complete
// frame.
func (d *Decoder) Buffered() int {
	return len(d.buf)
}

// Next pops the next complete frame's payload from the buffer. ok is false
// when fewer than one full frame is currently buffered — the caller should
// read more and Feed again. A non-nil error means the MAC chain failed;
// the caller must treat the owning stream as corrupt and disconnect, since
// the rolling MAC can never resynchronise after this point.
func (d *Decoder) Next() (payload []byte, ok bool, err error) {
	if len(d.buf) < HeaderSize {
		return nil, false, nil
	}

	mac := d.buf[:MACSize]
	length := binary.BigEndian.Uint32(d.buf[MACSize:HeaderSize])

	if uint64(len(d.buf)) < uint64(HeaderSize)+uint64(length) {
		return nil, false, nil
	}

	body := d.buf[MACSize : HeaderSize+int(length)] // length_bytes ‖ payload
	d.codec.readMAC.Write(body)
	expected := d.codec.readMAC.Sum(nil)

	if !hmac.Equal(mac, expected) {
		return nil, false, ErrCorrupt
	}

	out := make([]byte, length)
	copy(out, d.buf[HeaderSize:HeaderSize+int(length)])

	// Advance past MAC ‖ length ‖ payload, not just length ‖ payload —
	// stopping short leaks the MAC prefix into the next frame's header.
	d.buf = d.buf[HeaderSize+int(length):]

	return out, true, nil
}

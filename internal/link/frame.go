// Package link speaks the vehicle control link: a length-prefixed binary
// telemetry protocol over a serial transport. Only the handful of message
// types the relay cares about are decoded into typed values; everything
// else on the wire is skipped.
package link

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Wire framing: 0xFE, payload length, sequence, system id, component id,
// message id, payload, then a little-endian CRC-16/X25 seeded with a
// per-message extra byte.
const (
	frameMagic     = 0xFE
	headerLen      = 6
	checksumLen    = 2
	maxPayloadSize = 255
)

// Message ids consumed by the agent.
const (
	msgIDHeartbeat = 0
	msgIDSysStatus = 1
	msgIDGPSRawInt = 24
	msgIDAttitude  = 30
)

// crcExtras seeds the checksum per message id so incompatible dialects
// fail the CRC instead of mis-decoding.
var crcExtras = map[uint8]uint8{
	msgIDHeartbeat: 50,
	msgIDSysStatus: 124,
	msgIDGPSRawInt: 24,
	msgIDAttitude:  39,
}

var errBadChecksum = errors.New("link: frame checksum mismatch")

// frame is a raw wire unit before payload decoding.
type frame struct {
	seq       uint8
	systemID  uint8
	compID    uint8
	messageID uint8
	payload   []byte
}

// crcX25 is the CRC-16/X25 accumulator used by the link protocol.
type crcX25 uint16

func newCRC() crcX25 { return 0xFFFF }

func (c *crcX25) update(b byte) {
	tmp := b ^ uint8(*c&0xFF)
	tmp ^= tmp << 4
	*c = (*c >> 8) ^ (crcX25(tmp) << 8) ^ (crcX25(tmp) << 3) ^ (crcX25(tmp) >> 4)
}

func (c *crcX25) updateBytes(bs []byte) {
	for _, b := range bs {
		c.update(b)
	}
}

func frameChecksum(f frame, extra uint8) uint16 {
	c := newCRC()
	c.update(uint8(len(f.payload)))
	c.update(f.seq)
	c.update(f.systemID)
	c.update(f.compID)
	c.update(f.messageID)
	c.updateBytes(f.payload)
	c.update(extra)
	return uint16(c)
}

// encodeFrame renders a frame to wire bytes. Used by the agent's own
// heartbeat and by tests standing in for the autopilot.
func encodeFrame(f frame) ([]byte, error) {
	if len(f.payload) > maxPayloadSize {
		return nil, fmt.Errorf("link: payload too large: %d", len(f.payload))
	}
	extra, ok := crcExtras[f.messageID]
	if !ok {
		return nil, fmt.Errorf("link: cannot encode unknown message id %d", f.messageID)
	}
	out := make([]byte, 0, headerLen+len(f.payload)+checksumLen)
	out = append(out, frameMagic, uint8(len(f.payload)), f.seq, f.systemID, f.compID, f.messageID)
	out = append(out, f.payload...)
	ck := frameChecksum(f, extra)
	out = binary.LittleEndian.AppendUint16(out, ck)
	return out, nil
}

// frameReader scans a byte stream for valid frames, resynchronizing on the
// magic byte after garbage or checksum failures.
type frameReader struct {
	r *bufio.Reader
}

func newFrameReader(r io.Reader) *frameReader {
	return &frameReader{r: bufio.NewReaderSize(r, 4096)}
}

// next returns the next frame with a verifiable checksum. Candidates are
// validated without advancing the reader, so a spurious magic byte in
// noise cannot swallow a real frame behind it; only bytes belonging to a
// verified frame are consumed. Frames with unknown message ids are
// rejected (their checksum seed is unknowable), as is any noise between
// frames. Returns the transport error on stream end.
func (fr *frameReader) next() (frame, error) {
	for {
		b, err := fr.r.ReadByte()
		if err != nil {
			return frame{}, err
		}
		if b != frameMagic {
			continue
		}
		f, size, err := fr.peekBody()
		switch {
		case err == nil:
			_, _ = fr.r.Discard(size)
			return f, nil
		case errors.Is(err, errBadChecksum),
			errors.Is(err, errUnknownMessage),
			errors.Is(err, io.EOF):
			// false magic, rescan from the byte after it
			continue
		default:
			return frame{}, err
		}
	}
}

var errUnknownMessage = errors.New("link: unknown message id")

// peekBody parses the frame body following an already-consumed magic byte,
// returning the byte count to discard once the checksum holds. A stream
// too short for the candidate reads as io.EOF.
func (fr *frameReader) peekBody() (frame, int, error) {
	hdr, err := fr.r.Peek(1)
	if err != nil {
		return frame{}, 0, err
	}
	payloadLen := int(hdr[0])
	size := headerLen - 1 + payloadLen + checksumLen
	buf, err := fr.r.Peek(size)
	if err != nil {
		return frame{}, 0, err
	}
	f := frame{seq: buf[1], systemID: buf[2], compID: buf[3], messageID: buf[4]}
	extra, ok := crcExtras[f.messageID]
	if !ok {
		return frame{}, 0, errUnknownMessage
	}
	f.payload = append([]byte(nil), buf[headerLen-1:headerLen-1+payloadLen]...)
	want := binary.LittleEndian.Uint16(buf[size-checksumLen:])
	if frameChecksum(f, extra) != want {
		return frame{}, 0, errBadChecksum
	}
	return f, size, nil
}

// Package wire implements the fixed-size datagram header, the AEAD framer
// built on top of it, and the sliding replay window, per spec.md sections
// 3 and 4.2. The byte layout is ported field-for-field from the Python
// reference's core/async_proxy.py HEADER_STRUCT = "!BBBBB8sQB", which
// packs to 22 bytes (5 id bytes + 8-byte session id + 8-byte seq + 1-byte
// epoch); spec.md's prose says "21 bytes" but its own field list sums to
// 22, so this module follows the Python struct and the field list
// verbatim rather than the rounded prose number (see DESIGN.md).
package wire

import (
	"encoding/binary"
	"fmt"

	"github.com/Kamalbura/research-sub001/internal/protoerr"
)

// HeaderLen is the fixed size, in bytes, of every wire header.
const HeaderLen = 5 + 8 + 8 + 1

// Header is the fixed prefix carried on every encrypted UDP datagram,
// network byte order, doubling as the AEAD associated data.
type Header struct {
	Version   uint8
	KemID     uint8
	KemParam  uint8
	SigID     uint8
	SigParam  uint8
	SessionID [8]byte
	Seq       uint64
	Epoch     uint8
}

// Marshal encodes h into a freshly allocated HeaderLen-byte slice.
func (h Header) Marshal() []byte {
	buf := make([]byte, HeaderLen)
	buf[0] = h.Version
	buf[1] = h.KemID
	buf[2] = h.KemParam
	buf[3] = h.SigID
	buf[4] = h.SigParam
	copy(buf[5:13], h.SessionID[:])
	binary.BigEndian.PutUint64(buf[13:21], h.Seq)
	buf[21] = h.Epoch
	return buf
}

// Unmarshal parses a Header from the front of buf. buf must be at least
// HeaderLen bytes; the caller enforces the full-packet minimum length
// (header + AEAD tag) before calling this.
func Unmarshal(buf []byte) (Header, error) {
	if len(buf) < HeaderLen {
		return Header{}, fmt.Errorf("%w: got %d bytes, need %d", protoerr.ErrHeaderTooShort, len(buf), HeaderLen)
	}
	var h Header
	h.Version = buf[0]
	h.KemID = buf[1]
	h.KemParam = buf[2]
	h.SigID = buf[3]
	h.SigParam = buf[4]
	copy(h.SessionID[:], buf[5:13])
	h.Seq = binary.BigEndian.Uint64(buf[13:21])
	h.Epoch = buf[21]
	return h, nil
}

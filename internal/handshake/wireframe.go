// Package handshake implements the TCP handshake protocol of spec.md
// section 4.3: a length-prefixed ServerHello (GCS -> Drone, transcript
// signed) followed by a ClientReply (Drone -> GCS, KEM ciphertext plus a
// PSK-HMAC mutual-auth tag), and the HKDF-SHA256 key schedule that
// derives the two directional session keys. Field layout, transcript
// construction and KDF strings are ported verbatim from the Python
// reference's core/handshake.py.
package handshake

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/Kamalbura/research-sub001/internal/protoerr"
)

// ServerHello is the GCS -> Drone handshake message.
type ServerHello struct {
	Version   uint8
	KemName   string
	SigName   string
	SessionID [8]byte
	Challenge [8]byte
	KemPub    []byte
	Signature []byte
}

func putU16String(buf []byte, s string) []byte {
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(s)))
	return append(buf, s...)
}

func putU32Bytes(buf []byte, b []byte) []byte {
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(b)))
	return append(buf, b...)
}

// Marshal produces the exact wire bytes of the ServerHello, which double
// as the signed transcript prefix and as the bytes HMAC'd by the client.
func (h *ServerHello) Marshal() []byte {
	buf := make([]byte, 0, 1+2+len(h.KemName)+2+len(h.SigName)+8+8+4+len(h.KemPub)+2+len(h.Signature))
	buf = append(buf, h.Version)
	buf = putU16String(buf, h.KemName)
	buf = putU16String(buf, h.SigName)
	buf = append(buf, h.SessionID[:]...)
	buf = append(buf, h.Challenge[:]...)
	buf = putU32Bytes(buf, h.KemPub)
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(h.Signature)))
	buf = append(buf, h.Signature...)
	return buf
}

func readU16String(r io.Reader) (string, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return "", fmt.Errorf("%w: %v", protoerr.ErrHandshakeFormat, err)
	}
	n := binary.BigEndian.Uint16(lenBuf[:])
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", fmt.Errorf("%w: %v", protoerr.ErrHandshakeFormat, err)
	}
	return string(b), nil
}

func readU32Bytes(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", protoerr.ErrHandshakeFormat, err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("%w: %v", protoerr.ErrHandshakeFormat, err)
	}
	return b, nil
}

func readU16Bytes(r io.Reader) ([]byte, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", protoerr.ErrHandshakeFormat, err)
	}
	n := binary.BigEndian.Uint16(lenBuf[:])
	b := make([]byte, n)
	if _, err := io.ReadFull(r, b); err != nil {
		return nil, fmt.Errorf("%w: %v", protoerr.ErrHandshakeFormat, err)
	}
	return b, nil
}

// ReadServerHello parses a ServerHello off r.
func ReadServerHello(r io.Reader) (*ServerHello, error) {
	h := &ServerHello{}
	var versionBuf [1]byte
	if _, err := io.ReadFull(r, versionBuf[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", protoerr.ErrHandshakeFormat, err)
	}
	h.Version = versionBuf[0]

	var err error
	if h.KemName, err = readU16String(r); err != nil {
		return nil, err
	}
	if h.SigName, err = readU16String(r); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r, h.SessionID[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", protoerr.ErrHandshakeFormat, err)
	}
	if _, err := io.ReadFull(r, h.Challenge[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", protoerr.ErrHandshakeFormat, err)
	}
	if h.KemPub, err = readU32Bytes(r); err != nil {
		return nil, err
	}
	if h.Signature, err = readU16Bytes(r); err != nil {
		return nil, err
	}
	return h, nil
}

// Transcript returns the exact bytes the GCS's signature covers: the
// version byte is inside the signed transcript to prevent downgrade.
func (h *ServerHello) Transcript() []byte {
	t := make([]byte, 0, 64+len(h.KemName)+len(h.SigName)+len(h.KemPub))
	t = append(t, h.Version)
	t = append(t, "|pq-drone-gcs:v1|"...)
	t = append(t, h.SessionID[:]...)
	t = append(t, '|')
	t = append(t, h.KemName...)
	t = append(t, '|')
	t = append(t, h.SigName...)
	t = append(t, '|')
	t = append(t, h.KemPub...)
	t = append(t, '|')
	t = append(t, h.Challenge[:]...)
	return t
}

// ClientReply is the Drone -> GCS handshake message.
type ClientReply struct {
	KemCT   []byte
	HMACTag [32]byte
}

func (c *ClientReply) Marshal() []byte {
	buf := make([]byte, 0, 4+len(c.KemCT)+32)
	buf = putU32Bytes(buf, c.KemCT)
	buf = append(buf, c.HMACTag[:]...)
	return buf
}

func ReadClientReply(r io.Reader) (*ClientReply, error) {
	c := &ClientReply{}
	kemCT, err := readU32Bytes(r)
	if err != nil {
		return nil, err
	}
	c.KemCT = kemCT
	if _, err := io.ReadFull(r, c.HMACTag[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", protoerr.ErrHandshakeFormat, err)
	}
	return c, nil
}

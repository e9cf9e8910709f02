package wire

import (
	"crypto/cipher"
	"fmt"
	"sync/atomic"

	"github.com/Kamalbura/research-sub001/internal/protoerr"
)

// IDs is the quadruple of numeric crypto ids carried in every header,
// bound to a negotiated suite so a receiver can reject cross-suite
// packets before doing any AEAD work (spec.md section 4.6).
type IDs struct {
	KemID, KemParam, SigID, SigParam uint8
}

// Sender owns one direction's outgoing AEAD state. A single Sender is
// shared by the data-plane loop and the control-drain loop (both send on
// the same encrypted socket under the same session), so seq is claimed
// with an atomic increment rather than a plain load: two concurrent
// Encrypt calls must never observe the same seq value, or they would
// emit two datagrams under the identical (epoch, seq) nonce.
type Sender struct {
	Version   uint8
	IDs       IDs
	SessionID [8]byte
	Epoch     uint8
	aead      cipher.AEAD
	seq       atomic.Uint64
}

// NewSender constructs a Sender starting at seq 0.
func NewSender(version uint8, ids IDs, sessionID [8]byte, epoch uint8, aead cipher.AEAD) *Sender {
	return &Sender{Version: version, IDs: ids, SessionID: sessionID, Epoch: epoch, aead: aead}
}

// Encrypt builds the full wire datagram for plaintext: header || AEAD
// ciphertext+tag. Returns ErrSeqExhausted instead of wrapping the
// sequence counter, forcing the caller to request a rekey per spec.md
// section 4.2 step 2 and section 7.
func (s *Sender) Encrypt(plaintext []byte) ([]byte, error) {
	next := s.seq.Add(1)
	seq := next - 1
	if seq == ^uint64(0) {
		return nil, protoerr.ErrSeqExhausted
	}
	hdr := Header{
		Version:   s.Version,
		KemID:     s.IDs.KemID,
		KemParam:  s.IDs.KemParam,
		SigID:     s.IDs.SigID,
		SigParam:  s.IDs.SigParam,
		SessionID: s.SessionID,
		Seq:       seq,
		Epoch:     s.Epoch,
	}
	aad := hdr.Marshal()
	nonce := DeriveNonce(s.Epoch, seq)
	ciphertext := s.aead.Seal(nil, nonce[:], plaintext, aad)
	s.seq.Add(1)
	return append(aad, ciphertext...), nil
}

// Receiver owns one direction's incoming AEAD state plus its replay
// window. A Receiver's expected IDs, SessionID and Epoch are fixed for
// its lifetime: it belongs to exactly one SessionContext.
type Receiver struct {
	Version   uint8
	IDs       IDs
	SessionID [8]byte
	Epoch     uint8
	aead      cipher.AEAD
	window    *ReplayWindow
}

// NewReceiver constructs a Receiver with a replay window of the given
// bit width.
func NewReceiver(version uint8, ids IDs, sessionID [8]byte, epoch uint8, aead cipher.AEAD, windowWidth uint64) *Receiver {
	return &Receiver{
		Version:   version,
		IDs:       ids,
		SessionID: sessionID,
		Epoch:     epoch,
		aead:      aead,
		window:    NewReplayWindow(windowWidth),
	}
}

// Decrypt implements the full receive-side validation pipeline of
// spec.md section 4.2: length check, header parse, version/ids/session
// check, epoch check, replay check, AEAD-open, then window commit.
func (r *Receiver) Decrypt(wireBytes []byte) ([]byte, error) {
	minLen := HeaderLen + r.aead.Overhead()
	if len(wireBytes) < minLen {
		return nil, fmt.Errorf("%w: got %d bytes, need at least %d", protoerr.ErrHeaderTooShort, len(wireBytes), minLen)
	}
	hdr, err := Unmarshal(wireBytes)
	if err != nil {
		return nil, err
	}
	if hdr.Version != r.Version {
		return nil, fmt.Errorf("%w: got %d, want %d", protoerr.ErrVersionMismatch, hdr.Version, r.Version)
	}
	if hdr.KemID != r.IDs.KemID || hdr.KemParam != r.IDs.KemParam || hdr.SigID != r.IDs.SigID || hdr.SigParam != r.IDs.SigParam {
		return nil, protoerr.ErrCryptoIDMismatch
	}
	if hdr.SessionID != r.SessionID {
		return nil, protoerr.ErrSessionMismatch
	}
	if hdr.Epoch < r.Epoch {
		return nil, protoerr.ErrEpochRegressed
	}
	if hdr.Epoch > r.Epoch {
		return nil, protoerr.ErrEpochAhead
	}
	if err := r.window.Check(hdr.Seq); err != nil {
		return nil, err
	}
	aad := wireBytes[:HeaderLen]
	ciphertext := wireBytes[HeaderLen:]
	nonce := DeriveNonce(hdr.Epoch, hdr.Seq)
	plaintext, err := r.aead.Open(nil, nonce[:], ciphertext, aad)
	if err != nil {
		return nil, protoerr.ErrAuthFail
	}
	r.window.Accept(hdr.Seq)
	return plaintext, nil
}

// SessionContext is the full, immutable-once-built crypto state for one
// direction pair, replaceable only by atomic publish (spec.md section 3).
type SessionContext struct {
	SuiteID   string
	SessionID [8]byte
	IDs       IDs
	Sender    *Sender
	Receiver  *Receiver
}

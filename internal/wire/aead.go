package wire

import (
	"crypto/aes"
	"crypto/cipher"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// NonceSize is fixed at 12 bytes for every AEAD suite this module wires up
// (AES-GCM and ChaCha20-Poly1305 both use 96-bit nonces).
const NonceSize = 12

// NewAEAD constructs the concrete cipher.AEAD for an AEAD suite token.
// ascon128 is registered in internal/suite for cartesian completeness but
// has no Go implementation anywhere in the example corpus this module was
// grounded on, so it is reported unsupported here rather than faked.
func NewAEAD(aeadToken string, key []byte) (cipher.AEAD, error) {
	switch aeadToken {
	case "aesgcm":
		block, err := aes.NewCipher(key)
		if err != nil {
			return nil, fmt.Errorf("wire: aes key setup: %w", err)
		}
		return cipher.NewGCM(block)
	case "chacha20poly1305":
		return chacha20poly1305.New(key)
	default:
		return nil, fmt.Errorf("wire: unsupported aead %q", aeadToken)
	}
}

// DeriveNonce builds the 12-byte AEAD nonce deterministically from
// (epoch, seq): high byte is epoch, remaining 11 bytes are the big-endian
// seq, per spec.md section 4.2 step 2. Nonce reuse under a fixed key is
// forbidden by construction: seq strictly increases within one epoch and
// epoch never repeats within the lifetime of a key (see SPEC_FULL.md's
// epoch/session_id decision).
func DeriveNonce(epoch uint8, seq uint64) [NonceSize]byte {
	var nonce [NonceSize]byte
	nonce[0] = epoch
	// seq is 64 bits; the remaining 11 bytes hold it right-aligned,
	// big-endian, leaving byte 1 always zero since seq never needs the
	// full width.
	b := seq
	for i := NonceSize - 1; i >= 1; i-- {
		nonce[i] = byte(b)
		b >>= 8
	}
	return nonce
}

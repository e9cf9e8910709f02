package handshake

import (
	"crypto/sha256"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	hkdfSalt = "pq-drone-gcs|hkdf|v1"
	kdfInfoPrefix = "pq-drone-gcs:kdf:v1|"
)

// DeriveKeys runs the HKDF-SHA256 key schedule of spec.md section 4.3 and
// splits the 64-byte output into the two directional 32-byte keys.
func DeriveKeys(sharedSecret []byte, sessionID [8]byte, kemName, sigName string) (keyD2G, keyG2D []byte, err error) {
	info := kdfInfoPrefix + string(sessionID[:]) + "|" + kemName + "|" + sigName
	reader := hkdf.New(sha256.New, sharedSecret, []byte(hkdfSalt), []byte(info))
	out := make([]byte, 64)
	if _, err := io.ReadFull(reader, out); err != nil {
		return nil, nil, err
	}
	return out[:32], out[32:], nil
}

// Package identity persists the GCS's signing keypair to disk for
// `init-identity` / `gcs` / `drone` to load, per spec.md section 6's
// "Persisted state": gcs_signing.key (chmod 0600 where supported) and
// gcs_signing.pub. The sidecar metadata file is a supplemental feature
// beyond what spec.md requires (see SPEC_FULL.md), grounded on the
// teacher's pattern of persisting a keypair alongside its configuration
// (PAL/server_configuration/configuration.go's Ed25519PublicKey /
// Ed25519PrivateKey fields), generalized from Ed25519 to the negotiated
// PQC signature scheme.
package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Kamalbura/research-sub001/internal/pqprim"
)

func fingerprint(pub []byte) string {
	sum := sha256.Sum256(pub)
	return hex.EncodeToString(sum[:])
}

const (
	privateKeyFile = "gcs_signing.key"
	publicKeyFile  = "gcs_signing.pub"
	metaFile       = "gcs_signing.meta.yaml"
)

// Meta is the operator-facing sidecar written next to the keypair.
type Meta struct {
	SigSuite  string    `yaml:"sig_suite"`
	CreatedAt time.Time `yaml:"created_at"`
	PubSHA256 string    `yaml:"public_key_sha256"`
}

// Generate creates a fresh signing keypair for sigToken and writes it,
// plus its metadata sidecar, into dir.
func Generate(dir, sigToken string, prims pqprim.Primitives) error {
	pub, priv, err := prims.SigKeygen(sigToken)
	if err != nil {
		return fmt.Errorf("identity: keygen: %w", err)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("identity: creating %s: %w", dir, err)
	}
	if err := os.WriteFile(filepath.Join(dir, privateKeyFile), priv, 0o600); err != nil {
		return fmt.Errorf("identity: writing private key: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, publicKeyFile), pub, 0o644); err != nil {
		return fmt.Errorf("identity: writing public key: %w", err)
	}

	meta := Meta{
		SigSuite:  sigToken,
		CreatedAt: time.Now().UTC(),
		PubSHA256: fingerprint(pub),
	}
	metaBytes, err := yaml.Marshal(meta)
	if err != nil {
		return fmt.Errorf("identity: encoding metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, metaFile), metaBytes, 0o644); err != nil {
		return fmt.Errorf("identity: writing metadata: %w", err)
	}
	return nil
}

// Load reads a previously generated keypair back from dir.
func Load(dir string) (pub, priv []byte, err error) {
	pub, err = os.ReadFile(filepath.Join(dir, publicKeyFile))
	if err != nil {
		return nil, nil, fmt.Errorf("identity: reading public key: %w", err)
	}
	priv, err = os.ReadFile(filepath.Join(dir, privateKeyFile))
	if err != nil {
		return nil, nil, fmt.Errorf("identity: reading private key: %w", err)
	}
	return pub, priv, nil
}

// LoadPublic reads just the public key, e.g. for the drone to load the
// GCS's signature public key from a file handed to it out of band.
func LoadPublic(path string) ([]byte, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("identity: reading public key %s: %w", path, err)
	}
	return b, nil
}

package pqprim

import (
	"fmt"

	circlkem "github.com/cloudflare/circl/kem"
	kemschemes "github.com/cloudflare/circl/kem/schemes"
	circlsign "github.com/cloudflare/circl/sign"
	signschemes "github.com/cloudflare/circl/sign/schemes"
)

// kemNames maps suite.KEM.Token values to circl's scheme registry names.
var kemNames = map[string]string{
	"mlkem512":  "ML-KEM-512",
	"mlkem768":  "ML-KEM-768",
	"mlkem1024": "ML-KEM-1024",
}

// sigNames maps suite.Sig.Token values to circl's scheme registry names.
// Falcon and SPHINCS+ families are deliberately absent: circl does not
// implement them in the version this module depends on, so CirclBackend
// reports only the ML-DSA family as supported; see DESIGN.md.
var sigNames = map[string]string{
	"mldsa44": "ML-DSA-44",
	"mldsa65": "ML-DSA-65",
	"mldsa87": "ML-DSA-87",
}

// CirclBackend implements Primitives on top of
// github.com/cloudflare/circl, the only PQC library present anywhere in
// the example corpus this module was grounded on.
type CirclBackend struct{}

// NewCirclBackend constructs the default PQC primitive provider.
func NewCirclBackend() *CirclBackend { return &CirclBackend{} }

func (CirclBackend) Supported() (kems []string, sigs []string) {
	for k := range kemNames {
		kems = append(kems, k)
	}
	for s := range sigNames {
		sigs = append(sigs, s)
	}
	return kems, sigs
}

func kemScheme(name string) (circlkem.Scheme, error) {
	registryName, ok := kemNames[name]
	if !ok {
		return nil, fmt.Errorf("pqprim: unsupported kem %q", name)
	}
	scheme := kemschemes.ByName(registryName)
	if scheme == nil {
		return nil, fmt.Errorf("pqprim: circl has no scheme registered for %q", registryName)
	}
	return scheme, nil
}

func sigScheme(name string) (circlsign.Scheme, error) {
	registryName, ok := sigNames[name]
	if !ok {
		return nil, fmt.Errorf("pqprim: unsupported signature scheme %q", name)
	}
	scheme := signschemes.ByName(registryName)
	if scheme == nil {
		return nil, fmt.Errorf("pqprim: circl has no scheme registered for %q", registryName)
	}
	return scheme, nil
}

// circlKemHandle wraps the decapsulation private key plus the scheme it
// belongs to so KemDecap can be a pure function of the handle.
type circlKemHandle struct {
	scheme circlkem.Scheme
	priv   circlkem.PrivateKey
}

func (h *circlKemHandle) Zeroize() {
	// circl private keys do not expose a zeroing primitive; dropping the
	// last reference and letting GC reclaim it is the best this backend
	// can offer without vendoring circl internals.
	h.priv = nil
}

func (CirclBackend) KemKeygen(name string) ([]byte, KemHandle, error) {
	scheme, err := kemScheme(name)
	if err != nil {
		return nil, nil, err
	}
	pub, priv, err := scheme.GenerateKeyPair()
	if err != nil {
		return nil, nil, fmt.Errorf("pqprim: kem keygen failed: %w", err)
	}
	pubBytes, err := pub.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("pqprim: kem public key marshal failed: %w", err)
	}
	return pubBytes, &circlKemHandle{scheme: scheme, priv: priv}, nil
}

func (CirclBackend) KemEncap(name string, pub []byte) ([]byte, []byte, error) {
	scheme, err := kemScheme(name)
	if err != nil {
		return nil, nil, err
	}
	pk, err := scheme.UnmarshalBinaryPublicKey(pub)
	if err != nil {
		return nil, nil, fmt.Errorf("pqprim: kem public key unmarshal failed: %w", err)
	}
	ct, ss, err := scheme.Encapsulate(pk)
	if err != nil {
		return nil, nil, fmt.Errorf("pqprim: kem encapsulate failed: %w", err)
	}
	return ct, ss, nil
}

func (CirclBackend) KemDecap(name string, handle KemHandle, ct []byte) ([]byte, error) {
	h, ok := handle.(*circlKemHandle)
	if !ok || h.priv == nil {
		return nil, fmt.Errorf("pqprim: invalid or zeroized kem handle for %q", name)
	}
	ss, err := h.scheme.Decapsulate(h.priv, ct)
	if err != nil {
		return nil, fmt.Errorf("pqprim: kem decapsulate failed: %w", err)
	}
	return ss, nil
}

func (CirclBackend) SigKeygen(name string) ([]byte, []byte, error) {
	scheme, err := sigScheme(name)
	if err != nil {
		return nil, nil, err
	}
	pub, priv, err := scheme.GenerateKey()
	if err != nil {
		return nil, nil, fmt.Errorf("pqprim: signature keygen failed: %w", err)
	}
	pubBytes, err := pub.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("pqprim: signature public key marshal failed: %w", err)
	}
	privBytes, err := priv.MarshalBinary()
	if err != nil {
		return nil, nil, fmt.Errorf("pqprim: signature private key marshal failed: %w", err)
	}
	return pubBytes, privBytes, nil
}

func (CirclBackend) SigSign(name string, priv []byte, msg []byte) ([]byte, error) {
	scheme, err := sigScheme(name)
	if err != nil {
		return nil, err
	}
	sk, err := scheme.UnmarshalBinaryPrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("pqprim: signature private key unmarshal failed: %w", err)
	}
	sig := scheme.Sign(sk, msg, nil)
	return sig, nil
}

func (CirclBackend) SigVerify(name string, pub []byte, msg []byte, sig []byte) (bool, error) {
	scheme, err := sigScheme(name)
	if err != nil {
		return false, err
	}
	pk, err := scheme.UnmarshalBinaryPublicKey(pub)
	if err != nil {
		return false, fmt.Errorf("pqprim: signature public key unmarshal failed: %w", err)
	}
	return scheme.Verify(pk, msg, sig, nil), nil
}

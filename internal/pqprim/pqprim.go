// Package pqprim models the post-quantum primitive provider as a
// capability trait, per spec.md section 9 Design Notes: the source's
// dynamic duck-typed primitive handles (.generate_keypair, .encap_secret,
// .decap_secret, .sign, .verify on untyped objects) become a typed
// interface injected into the handshake and registry constructors.
package pqprim

// KemHandle is the ephemeral decapsulation state returned by KemKeygen and
// consumed exactly once by KemDecap, then discarded.
type KemHandle interface {
	Zeroize()
}

// Primitives is the capability trait a concrete backend implements.
// Names passed in are suite.KEM.Token / suite.Sig.Token values, e.g.
// "mlkem768", "mldsa65".
type Primitives interface {
	KemKeygen(name string) (pub []byte, handle KemHandle, err error)
	KemEncap(name string, pub []byte) (ct []byte, sharedSecret []byte, err error)
	KemDecap(name string, handle KemHandle, ct []byte) (sharedSecret []byte, err error)

	SigKeygen(name string) (pub []byte, priv []byte, err error)
	SigSign(name string, priv []byte, msg []byte) (sig []byte, err error)
	SigVerify(name string, pub []byte, msg []byte, sig []byte) (bool, error)

	// Supported reports which KEM and signature tokens this backend can
	// actually serve, consumed by suite.Registry.ListEnabled.
	Supported() (kems []string, sigs []string)
}

package pqprim

import "testing"

func TestKemRoundTrip(t *testing.T) {
	b := NewCirclBackend()
	for _, name := range []string{"mlkem512", "mlkem768", "mlkem1024"} {
		pub, handle, err := b.KemKeygen(name)
		if err != nil {
			t.Fatalf("%s: keygen: %v", name, err)
		}
		ct, ssEncap, err := b.KemEncap(name, pub)
		if err != nil {
			t.Fatalf("%s: encap: %v", name, err)
		}
		ssDecap, err := b.KemDecap(name, handle, ct)
		if err != nil {
			t.Fatalf("%s: decap: %v", name, err)
		}
		if string(ssEncap) != string(ssDecap) {
			t.Errorf("%s: shared secret mismatch", name)
		}
		handle.Zeroize()
	}
}

func TestSigRoundTrip(t *testing.T) {
	b := NewCirclBackend()
	for _, name := range []string{"mldsa44", "mldsa65", "mldsa87"} {
		pub, priv, err := b.SigKeygen(name)
		if err != nil {
			t.Fatalf("%s: keygen: %v", name, err)
		}
		msg := []byte("pq-drone-gcs handshake transcript")
		sig, err := b.SigSign(name, priv, msg)
		if err != nil {
			t.Fatalf("%s: sign: %v", name, err)
		}
		ok, err := b.SigVerify(name, pub, msg, sig)
		if err != nil {
			t.Fatalf("%s: verify: %v", name, err)
		}
		if !ok {
			t.Errorf("%s: signature did not verify", name)
		}
		tampered := append([]byte(nil), msg...)
		tampered[0] ^= 0xFF
		ok, err = b.SigVerify(name, pub, tampered, sig)
		if err != nil {
			t.Fatalf("%s: verify tampered: %v", name, err)
		}
		if ok {
			t.Errorf("%s: signature verified over tampered message", name)
		}
	}
}

func TestSupportedExcludesFalconAndSphincs(t *testing.T) {
	b := NewCirclBackend()
	_, sigs := b.Supported()
	for _, s := range sigs {
		if s != "mldsa44" && s != "mldsa65" && s != "mldsa87" {
			t.Errorf("unexpected signature family reported supported: %s", s)
		}
	}
}

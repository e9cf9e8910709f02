package identity

import (
	"testing"

	"github.com/Kamalbura/research-sub001/internal/pqprim"
)

type fakePrimitives struct{}

func (fakePrimitives) KemKeygen(string) ([]byte, pqprim.KemHandle, error) { return nil, nil, nil }
func (fakePrimitives) KemEncap(string, []byte) ([]byte, []byte, error)    { return nil, nil, nil }
func (fakePrimitives) KemDecap(string, pqprim.KemHandle, []byte) ([]byte, error) {
	return nil, nil
}
func (fakePrimitives) SigKeygen(string) ([]byte, []byte, error) {
	return []byte("public-key-bytes"), []byte("private-key-bytes"), nil
}
func (fakePrimitives) SigSign(string, []byte, []byte) ([]byte, error)        { return nil, nil }
func (fakePrimitives) SigVerify(string, []byte, []byte, []byte) (bool, error) { return true, nil }
func (fakePrimitives) Supported() (kems []string, sigs []string)             { return nil, []string{"mldsa65"} }

func TestGenerateThenLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	if err := Generate(dir, "mldsa65", fakePrimitives{}); err != nil {
		t.Fatal(err)
	}

	pub, priv, err := Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	if string(pub) != "public-key-bytes" || string(priv) != "private-key-bytes" {
		t.Fatalf("got pub=%q priv=%q", pub, priv)
	}

	pubOnly, err := LoadPublic(dir + "/" + publicKeyFile)
	if err != nil {
		t.Fatal(err)
	}
	if string(pubOnly) != "public-key-bytes" {
		t.Fatalf("got %q", pubOnly)
	}
}

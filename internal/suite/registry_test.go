package suite

import "testing"

func TestResolveCanonicalAndAlias(t *testing.T) {
	r := NewRegistry()

	cases := []struct {
		alias string
		want  string
	}{
		{"cs-mlkem768-aesgcm-mldsa65", "cs-mlkem768-aesgcm-mldsa65"},
		{"CS-MLKEM768-AESGCM-MLDSA65", "cs-mlkem768-aesgcm-mldsa65"},
		{"cs-kyber768-aesgcm-dilithium3", "cs-mlkem768-aesgcm-mldsa65"},
		{"cs_kyber768_aesgcm_dilithium3", "cs-mlkem768-aesgcm-mldsa65"},
	}
	for _, c := range cases {
		got, err := r.Resolve(c.alias)
		if err != nil {
			t.Fatalf("Resolve(%q) error: %v", c.alias, err)
		}
		if got != c.want {
			t.Errorf("Resolve(%q) = %q, want %q", c.alias, got, c.want)
		}
	}
}

func TestResolveUnknown(t *testing.T) {
	r := NewRegistry()
	if _, err := r.Resolve("cs-nope-nope-nope"); err == nil {
		t.Fatal("expected error for unknown suite")
	}
}

func TestHeaderIDs(t *testing.T) {
	r := NewRegistry()
	kemID, kemParam, sigID, sigParam, err := r.HeaderIDs("cs-mlkem1024-chacha20poly1305-mldsa87")
	if err != nil {
		t.Fatal(err)
	}
	if kemID != 1 || kemParam != 3 || sigID != 1 || sigParam != 3 {
		t.Errorf("unexpected header ids: %d %d %d %d", kemID, kemParam, sigID, sigParam)
	}
}

type fakeCapability struct{}

func (fakeCapability) Supported() ([]string, []string) {
	return []string{"mlkem512", "mlkem768", "mlkem1024"}, []string{"mldsa44", "mldsa65", "mldsa87"}
}

func TestListEnabledExcludesUnsupportedSig(t *testing.T) {
	r := NewRegistry()
	enabled := r.ListEnabled(fakeCapability{})
	for _, s := range enabled {
		if s.Sig.ID == 2 || s.Sig.ID == 3 {
			t.Errorf("suite %s uses an unsupported signature family but was listed enabled", s.SuiteID)
		}
	}
	if len(enabled) == 0 {
		t.Fatal("expected at least one enabled suite")
	}
}

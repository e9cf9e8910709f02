// Package suite implements the static catalog of {kem, aead, sig} tuples
// described in spec.md section 4.1. IDs, aliases and suite-id formatting
// are ported from the Python reference's core/suites.py registry and
// extended to a full KEM x AEAD x SIG cartesian product.
package suite

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Kamalbura/research-sub001/internal/protoerr"
)

// KEM describes one ML-KEM parameter set.
type KEM struct {
	Token     string // canonical token, e.g. "mlkem768"
	ID        uint8
	ParamID   uint8
	NistLevel string
	Aliases   []string
}

// Sig describes one signature parameter set.
type Sig struct {
	Token     string
	ID        uint8
	ParamID   uint8
	NistLevel string
	Aliases   []string
}

// AEAD describes one AEAD algorithm.
type AEAD struct {
	Token string
	ID    uint8
}

// Suite is the immutable record composing one registry row.
type Suite struct {
	SuiteID   string
	KEM       KEM
	Sig       Sig
	AEAD      AEAD
	KDFName   string
	NistLevel string
}

// HeaderIDs returns the four numeric IDs carried on every wire header.
func (s Suite) HeaderIDs() (kemID, kemParam, sigID, sigParam uint8) {
	return s.KEM.ID, s.KEM.ParamID, s.Sig.ID, s.Sig.ParamID
}

var kems = []KEM{
	{Token: "mlkem512", ID: 1, ParamID: 1, NistLevel: "L1", Aliases: []string{"kyber512", "ml-kem-512"}},
	{Token: "mlkem768", ID: 1, ParamID: 2, NistLevel: "L3", Aliases: []string{"kyber768", "ml-kem-768"}},
	{Token: "mlkem1024", ID: 1, ParamID: 3, NistLevel: "L5", Aliases: []string{"kyber1024", "ml-kem-1024"}},
}

var sigs = []Sig{
	{Token: "mldsa44", ID: 1, ParamID: 1, NistLevel: "L1", Aliases: []string{"dilithium2", "ml-dsa-44"}},
	{Token: "mldsa65", ID: 1, ParamID: 2, NistLevel: "L3", Aliases: []string{"dilithium3", "ml-dsa-65"}},
	{Token: "mldsa87", ID: 1, ParamID: 3, NistLevel: "L5", Aliases: []string{"dilithium5", "ml-dsa-87"}},
	{Token: "falcon512", ID: 2, ParamID: 1, NistLevel: "L1", Aliases: []string{"falcon-512"}},
	{Token: "falcon1024", ID: 2, ParamID: 2, NistLevel: "L5", Aliases: []string{"falcon-1024"}},
	{Token: "sphincs128fsha2", ID: 3, ParamID: 1, NistLevel: "L1", Aliases: []string{"sphincs+-128f", "sphincssha2128fsimple"}},
	{Token: "sphincs256fsha2", ID: 3, ParamID: 2, NistLevel: "L5", Aliases: []string{"sphincs+-256f", "sphincssha2256fsimple"}},
}

var aeads = []AEAD{
	{Token: "aesgcm", ID: 1},
	{Token: "chacha20poly1305", ID: 2},
	{Token: "ascon128", ID: 3},
}

// normalizeAlias lowercases and strips everything but alphanumerics, the
// same normalization core/suites.py's _normalize_alias applies so that
// "Kyber-768", "kyber_768" and "kyber768" all resolve identically.
func normalizeAlias(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func buildSuiteID(kem KEM, aead AEAD, sig Sig) string {
	return fmt.Sprintf("cs-%s-%s-%s", kem.Token, aead.Token, sig.Token)
}

// Registry is the full static catalog plus alias lookup tables.
type Registry struct {
	suites    map[string]Suite
	aliases   map[string]string // normalized alias -> suite id
	kemByTok  map[string]KEM
	sigByTok  map[string]Sig
	aeadByTok map[string]AEAD
}

// NewRegistry builds the cartesian product of all known KEMs, AEADs and
// signatures, matching core/suites.py's _generate_suite_registry, extended
// across AEAD as spec.md section 3 requires.
func NewRegistry() *Registry {
	r := &Registry{
		suites:    make(map[string]Suite),
		aliases:   make(map[string]string),
		kemByTok:  make(map[string]KEM),
		sigByTok:  make(map[string]Sig),
		aeadByTok: make(map[string]AEAD),
	}
	for _, k := range kems {
		r.kemByTok[k.Token] = k
	}
	for _, s := range sigs {
		r.sigByTok[s.Token] = s
	}
	for _, a := range aeads {
		r.aeadByTok[a.Token] = a
	}

	for _, k := range kems {
		for _, a := range aeads {
			for _, s := range sigs {
				id := buildSuiteID(k, a, s)
				r.suites[id] = Suite{
					SuiteID:   id,
					KEM:       k,
					Sig:       s,
					AEAD:      a,
					KDFName:   "HKDF-SHA256",
					NistLevel: k.NistLevel,
				}
				r.aliases[normalizeAlias(id)] = id
				// legacy-style short aliases, e.g. cs-kyber768-aesgcm-dilithium3
				for _, ka := range k.Aliases {
					for _, sa := range s.Aliases {
						legacy := fmt.Sprintf("cs-%s-%s-%s", ka, a.Token, sa)
						r.aliases[normalizeAlias(legacy)] = id
					}
				}
			}
		}
	}
	return r
}

// Resolve performs case- and punctuation-insensitive alias lookup.
func (r *Registry) Resolve(alias string) (string, error) {
	norm := normalizeAlias(alias)
	if id, ok := r.aliases[norm]; ok && id != "" {
		return id, nil
	}
	if _, ok := r.suites[alias]; ok {
		return alias, nil
	}
	return "", fmt.Errorf("%w: %q", protoerr.ErrUnknownSuite, alias)
}

// Get returns the immutable Suite record for a canonical suite id.
func (r *Registry) Get(suiteID string) (Suite, error) {
	s, ok := r.suites[suiteID]
	if !ok {
		return Suite{}, fmt.Errorf("%w: %q", protoerr.ErrUnknownSuite, suiteID)
	}
	return s, nil
}

// HeaderIDs resolves a suite id straight to its four wire-header bytes.
func (r *Registry) HeaderIDs(suiteID string) (kemID, kemParam, sigID, sigParam uint8, err error) {
	s, err := r.Get(suiteID)
	if err != nil {
		return 0, 0, 0, 0, err
	}
	a, b, c, d := s.HeaderIDs()
	return a, b, c, d, nil
}

// Capability reports which KEM and signature tokens a primitive provider
// can actually serve.
type Capability interface {
	Supported() (kems []string, sigs []string)
}

// ListEnabled intersects the full registry with what the primitive
// provider reports as supported, matching suites.py's enabled_kems /
// enabled_sigs gating used by the control plane to reject suites the
// runtime cannot negotiate toward.
func (r *Registry) ListEnabled(cap Capability) []Suite {
	okKem := make(map[string]bool)
	okSig := make(map[string]bool)
	kemList, sigList := cap.Supported()
	for _, k := range kemList {
		okKem[k] = true
	}
	for _, s := range sigList {
		okSig[s] = true
	}
	out := make([]Suite, 0, len(r.suites))
	for _, s := range r.suites {
		if okKem[s.KEM.Token] && okSig[s.Sig.Token] {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SuiteID < out[j].SuiteID })
	return out
}

// ListAll returns every registered suite regardless of capability,
// grounded on suites.py's list_suites() used by the CLI's list-suites
// command for operator introspection.
func (r *Registry) ListAll() []Suite {
	out := make([]Suite, 0, len(r.suites))
	for _, s := range r.suites {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SuiteID < out[j].SuiteID })
	return out
}

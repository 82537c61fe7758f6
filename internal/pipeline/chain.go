package pipeline

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"fmt"
	"sync"

	"github.com/breml/rootcerts/embedded"

	"github.com/sensiblebit/vaultcert"
)

// Chain is an ordered certificate chain: leaf first, then intermediates,
// then the root when one was submitted.
type Chain struct {
	Certs []*x509.Certificate
	Key   crypto.PrivateKey

	// RootMissing is set when the chain ends at a certificate whose issuer
	// was not submitted. Roots are commonly trusted separately, so this is
	// a flag, not a failure.
	RootMissing bool

	// KnownRootIssuer is set alongside RootMissing when the absent issuer
	// matches a root in the embedded Mozilla trust store, distinguishing
	// "trusted elsewhere" from "genuinely unknown issuer".
	KnownRootIssuer bool
}

// Leaf returns the end-entity certificate.
func (c *Chain) Leaf() *x509.Certificate {
	return c.Certs[0]
}

// Intermediates returns every certificate after the leaf.
func (c *Chain) Intermediates() []*x509.Certificate {
	return c.Certs[1:]
}

// Assemble orders the parsed material into leaf → intermediate(s) → root by
// matching each certificate's issuer against another's subject. The leaf is
// the certificate that is no other certificate's issuer; ties are broken by
// the private key pairing, and any remaining ambiguity is an error rather
// than a guess.
func Assemble(m *Material) (*Chain, error) {
	if m == nil || len(m.Certs) == 0 {
		return nil, fmt.Errorf("%w: no certificates in submission", ErrChainIncomplete)
	}

	certs := dedupeCerts(m.Certs)

	leaf, err := selectLeaf(certs, m.Key)
	if err != nil {
		return nil, err
	}

	chain := &Chain{Certs: []*x509.Certificate{leaf}, Key: m.Key}
	used := map[*x509.Certificate]bool{leaf: true}

	current := leaf
	for !vaultcert.IsSelfSigned(current) {
		next, err := findIssuer(current, certs, used)
		if err != nil {
			return nil, err
		}
		if next == nil {
			break
		}
		chain.Certs = append(chain.Certs, next)
		used[next] = true
		current = next
	}

	// Every submitted certificate must have found a place; a leftover means
	// an internal link is missing.
	for _, cert := range certs {
		if !used[cert] {
			return nil, fmt.Errorf("%w: %q could not be linked into the chain",
				ErrChainIncomplete, cert.Subject.CommonName)
		}
	}

	if !vaultcert.IsSelfSigned(current) {
		chain.RootMissing = true
		chain.KnownRootIssuer = isKnownRootSubject(current.RawIssuer)
	}

	return chain, nil
}

// dedupeCerts drops byte-identical duplicates while preserving order.
func dedupeCerts(certs []*x509.Certificate) []*x509.Certificate {
	seen := make(map[string]bool, len(certs))
	out := make([]*x509.Certificate, 0, len(certs))
	for _, cert := range certs {
		tp := vaultcert.Thumbprint(cert)
		if seen[tp] {
			continue
		}
		seen[tp] = true
		out = append(out, cert)
	}
	return out
}

// selectLeaf finds the certificate that issued no other submitted
// certificate. Multiple candidates are disambiguated by the private key;
// anything still ambiguous is reported, never guessed.
func selectLeaf(certs []*x509.Certificate, key crypto.PrivateKey) (*x509.Certificate, error) {
	var candidates []*x509.Certificate
	for _, cand := range certs {
		issuesOther := false
		for _, other := range certs {
			if other == cand {
				continue
			}
			if bytes.Equal(other.RawIssuer, cand.RawSubject) {
				issuesOther = true
				break
			}
		}
		if !issuesOther {
			candidates = append(candidates, cand)
		}
	}

	switch len(candidates) {
	case 1:
		return candidates[0], nil
	case 0:
		// Every certificate issues another: a cycle, or duplicate subjects.
		return nil, fmt.Errorf("%w: no certificate qualifies as the leaf", ErrChainAmbiguous)
	}

	if key != nil {
		var matched []*x509.Certificate
		for _, cand := range candidates {
			ok, err := vaultcert.KeyMatchesCert(key, cand)
			if err == nil && ok {
				matched = append(matched, cand)
			}
		}
		if len(matched) == 1 {
			return matched[0], nil
		}
	}
	return nil, fmt.Errorf("%w: %d certificates qualify as the leaf", ErrChainAmbiguous, len(candidates))
}

// findIssuer locates the unused certificate whose subject matches cert's
// issuer. Multiple subject matches are narrowed by signature verification;
// more than one verifying issuer is ambiguous.
func findIssuer(cert *x509.Certificate, certs []*x509.Certificate, used map[*x509.Certificate]bool) (*x509.Certificate, error) {
	var matches []*x509.Certificate
	for _, cand := range certs {
		if used[cand] {
			continue
		}
		if bytes.Equal(cert.RawIssuer, cand.RawSubject) {
			matches = append(matches, cand)
		}
	}

	switch len(matches) {
	case 0:
		return nil, nil
	case 1:
		return matches[0], nil
	}

	var verified []*x509.Certificate
	for _, cand := range matches {
		if err := cert.CheckSignatureFrom(cand); err == nil {
			verified = append(verified, cand)
		}
	}
	if len(verified) == 1 {
		return verified[0], nil
	}
	return nil, fmt.Errorf("%w: %d candidate issuers for %q",
		ErrChainAmbiguous, len(matches), cert.Subject.CommonName)
}

var (
	knownRootsOnce sync.Once
	knownRoots     map[string]bool // raw subject DER, keyed by string()
)

// isKnownRootSubject reports whether rawIssuer matches the subject of a root
// in the embedded Mozilla trust store.
func isKnownRootSubject(rawIssuer []byte) bool {
	knownRootsOnce.Do(loadKnownRoots)
	return knownRoots[string(rawIssuer)]
}

func loadKnownRoots() {
	knownRoots = make(map[string]bool)
	certs, err := vaultcert.ParsePEMCertificates([]byte(embedded.MozillaCACertificatesPEM()))
	if err != nil {
		return
	}
	for _, cert := range certs {
		knownRoots[string(cert.RawSubject)] = true
	}
}

package pipeline

import (
	"crypto/x509"
	"errors"
	"testing"
)

func TestAssembleOrdersChain(t *testing.T) {
	pki := newTestPKI(t)

	// Submission order must not matter.
	orders := [][]*x509.Certificate{
		{pki.Leaf, pki.Intermediate, pki.Root},
		{pki.Root, pki.Intermediate, pki.Leaf},
		{pki.Intermediate, pki.Root, pki.Leaf},
	}
	for _, certs := range orders {
		chain, err := Assemble(&Material{Certs: certs, Key: pki.LeafKey})
		if err != nil {
			t.Fatalf("Assemble: %v", err)
		}
		if len(chain.Certs) != 3 {
			t.Fatalf("chain length = %d", len(chain.Certs))
		}
		if chain.Leaf().Subject.CommonName != "pipeline.example.com" {
			t.Errorf("leaf = %q", chain.Leaf().Subject.CommonName)
		}
		if chain.Certs[1].Subject.CommonName != "Pipeline Issuing CA" {
			t.Errorf("middle = %q", chain.Certs[1].Subject.CommonName)
		}
		if chain.RootMissing {
			t.Error("RootMissing set with the root present")
		}
	}
}

func TestAssembleSingleSelfSigned(t *testing.T) {
	pki := newTestPKI(t)

	chain, err := Assemble(&Material{Certs: []*x509.Certificate{pki.Root}})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(chain.Certs) != 1 {
		t.Fatalf("chain length = %d", len(chain.Certs))
	}
	if chain.RootMissing {
		t.Error("self-signed certificate flagged RootMissing")
	}
}

func TestAssembleRootMissing(t *testing.T) {
	pki := newTestPKI(t)

	chain, err := Assemble(&Material{
		Certs: []*x509.Certificate{pki.Leaf, pki.Intermediate},
		Key:   pki.LeafKey,
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if !chain.RootMissing {
		t.Error("RootMissing not set when the root was withheld")
	}
	if chain.KnownRootIssuer {
		t.Error("test CA reported as a known public root")
	}
	if len(chain.Certs) != 2 {
		t.Errorf("chain length = %d", len(chain.Certs))
	}
}

func TestAssembleUnlinkableCertificate(t *testing.T) {
	pki := newTestPKI(t)
	stranger := newTestPKI(t)

	// The stranger's intermediate can be placed nowhere in this chain.
	_, err := Assemble(&Material{
		Certs: []*x509.Certificate{pki.Leaf, pki.Intermediate, pki.Root, stranger.Intermediate},
		Key:   pki.LeafKey,
	})
	if !errors.Is(err, ErrChainIncomplete) {
		t.Errorf("err = %v, want ErrChainIncomplete", err)
	}
}

func TestAssembleAmbiguousWithoutKey(t *testing.T) {
	a := newTestPKI(t)
	b := newTestPKI(t)

	// Two unrelated leaves and no key to break the tie.
	_, err := Assemble(&Material{Certs: []*x509.Certificate{a.Leaf, b.Leaf}})
	if !errors.Is(err, ErrChainAmbiguous) {
		t.Errorf("err = %v, want ErrChainAmbiguous", err)
	}
}

func TestAssembleKeyBreaksLeafTie(t *testing.T) {
	a := newTestPKI(t)
	b := newTestPKI(t)

	// With the key present the paired leaf is selected, so the failure is
	// the unplaceable second leaf rather than leaf ambiguity.
	_, err := Assemble(&Material{
		Certs: []*x509.Certificate{a.Leaf, b.Leaf},
		Key:   a.LeafKey,
	})
	if !errors.Is(err, ErrChainIncomplete) {
		t.Errorf("err = %v, want ErrChainIncomplete", err)
	}
	if errors.Is(err, ErrChainAmbiguous) {
		t.Error("key failed to disambiguate the leaf")
	}
}

func TestAssembleDeduplicates(t *testing.T) {
	pki := newTestPKI(t)

	chain, err := Assemble(&Material{
		Certs: []*x509.Certificate{pki.Leaf, pki.Leaf, pki.Intermediate, pki.Root, pki.Root},
		Key:   pki.LeafKey,
	})
	if err != nil {
		t.Fatalf("Assemble: %v", err)
	}
	if len(chain.Certs) != 3 {
		t.Errorf("chain length = %d after dedupe", len(chain.Certs))
	}
}

func TestAssembleEmpty(t *testing.T) {
	if _, err := Assemble(&Material{}); !errors.Is(err, ErrChainIncomplete) {
		t.Errorf("err = %v, want ErrChainIncomplete", err)
	}
}

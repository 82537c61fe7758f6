package pipeline

import (
	"fmt"

	"github.com/sensiblebit/vaultcert"
	"github.com/sensiblebit/vaultcert/internal"
)

// Bundle is the canonical password-protected PKCS#12 container the vault
// accepts for import. It always carries a password: the caller's, or a
// generated ephemeral one recorded in PasswordGenerated.
type Bundle struct {
	PFXData  []byte
	Password string

	// PasswordGenerated is set when no caller password was supplied and an
	// ephemeral one was minted; the orchestrator surfaces it in the result.
	PasswordGenerated bool
}

// Convert produces the canonical bundle from an assembled chain. chainOnly
// permits key-less submissions (PKCS#7 chains, trust bundles), which encode
// as a certs-only trust store container.
func Convert(format Format, m *Material, chain *Chain, password string, chainOnly bool) (*Bundle, error) {
	if chain.Key == nil && !chainOnly {
		if format == FormatPKCS7 {
			return nil, fmt.Errorf("%w: PKCS#7 bundles never carry one", ErrPrivateKeyRequired)
		}
		return nil, fmt.Errorf("%w: submission contained none", ErrPrivateKeyRequired)
	}

	bundle := &Bundle{Password: password}
	if bundle.Password == "" {
		generated, err := internal.GeneratePassword(internal.GeneratedPasswordLength)
		if err != nil {
			return nil, err
		}
		bundle.Password = generated
		bundle.PasswordGenerated = true
	}

	// A PKCS#12 source that already holds exactly the desired chain under a
	// caller-supplied password passes through untouched; the password was
	// verified when the container was opened. The count compared is the
	// container's own, so a leaf-only container with separately merged
	// intermediates is re-encoded rather than passed through without them.
	if format == FormatPKCS12 && !bundle.PasswordGenerated &&
		m.PKCS12Password == bundle.Password && m.PKCS12CertCount == len(chain.Certs) {
		bundle.PFXData = m.PKCS12Original
		return bundle, verifyBundle(bundle, chain, chainOnly)
	}

	var err error
	if chain.Key == nil {
		bundle.PFXData, err = vaultcert.EncodeTrustStore(chain.Certs, bundle.Password)
	} else {
		bundle.PFXData, err = vaultcert.EncodePKCS12(chain.Key, chain.Leaf(), chain.Intermediates(), bundle.Password)
	}
	if err != nil {
		return nil, fmt.Errorf("encoding PKCS#12 bundle: %w", err)
	}

	return bundle, verifyBundle(bundle, chain, chainOnly)
}

// verifyBundle re-opens the produced container with its own password and
// checks the leaf thumbprint, catching silent corruption before anything is
// submitted to the vault.
func verifyBundle(b *Bundle, chain *Chain, chainOnly bool) error {
	if chainOnly && chain.Key == nil {
		certs, err := vaultcert.DecodeTrustStore(b.PFXData, b.Password)
		if err != nil {
			return fmt.Errorf("bundle failed round-trip verification: %w", err)
		}
		if len(certs) != len(chain.Certs) {
			return fmt.Errorf("bundle failed round-trip verification: %d certificates, want %d",
				len(certs), len(chain.Certs))
		}
		return nil
	}

	_, leaf, _, err := vaultcert.DecodePKCS12(b.PFXData, b.Password)
	if err != nil {
		return fmt.Errorf("bundle failed round-trip verification: %w", err)
	}
	if got, want := vaultcert.Thumbprint(leaf), vaultcert.Thumbprint(chain.Leaf()); got != want {
		return fmt.Errorf("bundle failed round-trip verification: leaf thumbprint %s, want %s", got, want)
	}
	return nil
}

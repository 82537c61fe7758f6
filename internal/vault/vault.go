// Package vault defines the control-plane boundary for the secret/certificate
// store and provides in-memory, SQLite-backed, and HashiCorp Vault-backed
// implementations. All remote failures are wrapped in ErrRemote; the pipeline
// never retries them.
package vault

import (
	"context"
	"crypto/rand"
	"crypto/x509"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/sensiblebit/vaultcert"
)

var (
	// ErrNotFound means the named secret or certificate does not exist in
	// the target vault.
	ErrNotFound = errors.New("not found in vault")

	// ErrRemote wraps collaborator failures: authorization, network,
	// throttling. Surfaced with the collaborator's status, never retried
	// by the pipeline.
	ErrRemote = errors.New("vault operation failed")
)

// CertificateVersion describes one stored version of a certificate. Versions
// are append-only: an import with new material creates a version, never
// overwrites one.
type CertificateVersion struct {
	Name       string
	Version    string
	Thumbprint string // SHA-1, uppercase hex
	Expires    time.Time
	Created    time.Time
	Enabled    bool
}

// Secret is a stored secret value with its version metadata.
type Secret struct {
	Name    string
	Value   string
	Version string
	Created time.Time
	Updated time.Time
}

// Client is the vault control-plane collaborator. Every method may fail with
// an error wrapping ErrRemote; lookups for absent names additionally match
// ErrNotFound.
type Client interface {
	// ImportCertificate stores a PKCS#12 bundle under name and returns the
	// new version. The vault keeps prior versions.
	ImportCertificate(ctx context.Context, vaultID, name string, pfxData []byte, password string) (*CertificateVersion, error)
	// GetCertificate returns the latest version of the named certificate.
	GetCertificate(ctx context.Context, vaultID, name string) (*CertificateVersion, error)
	// GetCertificateData returns the stored bundle bytes and password of the
	// latest version, for export.
	GetCertificateData(ctx context.Context, vaultID, name string) ([]byte, string, error)
	ListCertificates(ctx context.Context, vaultID string) ([]CertificateVersion, error)
	DeleteCertificate(ctx context.Context, vaultID, name string) error

	SetSecret(ctx context.Context, vaultID, name, value string) (*Secret, error)
	GetSecret(ctx context.Context, vaultID, name string) (*Secret, error)
	ListSecrets(ctx context.Context, vaultID string) ([]Secret, error)
	DeleteSecret(ctx context.Context, vaultID, name string) error

	// ListVaults enumerates the vaults this client can reach.
	ListVaults(ctx context.Context) ([]string, error)

	// SecretURI returns the version-less reference to a stored certificate,
	// suitable for edge-gateway attachment: the gateway resolves the latest
	// version at TLS refresh time precisely because no version is pinned.
	SecretURI(vaultID, name string) string
}

// bundleLeaf opens a PKCS#12 bundle and returns the certificate the vault
// indexes by: the keyed leaf, or the first certificate of a chain-only
// trust-store bundle.
func bundleLeaf(pfxData []byte, password string) (*x509.Certificate, error) {
	if _, leaf, _, err := vaultcert.DecodePKCS12(pfxData, password); err == nil {
		return leaf, nil
	}
	certs, err := vaultcert.DecodeTrustStore(pfxData, password)
	if err != nil {
		return nil, err
	}
	if len(certs) == 0 {
		return nil, fmt.Errorf("bundle holds no certificates")
	}
	return certs[0], nil
}

// NewVersionID returns a random 32-character hex version identifier.
func NewVersionID() string {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand.Read does not fail on supported platforms
		panic(err)
	}
	return hex.EncodeToString(buf)
}

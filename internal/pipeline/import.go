package pipeline

import (
	"context"
	"crypto"
	"crypto/x509"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/sensiblebit/vaultcert"
	"github.com/sensiblebit/vaultcert/internal"
	"github.com/sensiblebit/vaultcert/internal/vault"
)

// Disposition records what an import did to the named certificate.
type Disposition string

const (
	// DispositionCreated means the certificate did not exist and a first
	// version was written.
	DispositionCreated Disposition = "created"

	// DispositionUpdated means the certificate existed with different
	// material and a new version was appended.
	DispositionUpdated Disposition = "updated"

	// DispositionAlreadyExisted means the latest stored version already
	// holds this exact certificate; nothing was written.
	DispositionAlreadyExisted Disposition = "already_existed"
)

// ImportRequest describes one submission of certificate material. Exactly one
// of Material and Path must be set; Key and KeyPath are optional and also
// mutually exclusive.
type ImportRequest struct {
	VaultID  string // empty means the session's selected vault
	CertName string

	Material string // inline material, possibly base64-wrapped
	Path     string // file path, resolved under the sandbox root

	Key     string // separate private key material
	KeyPath string

	// Intermediates are extra PEM blocks merged before chain assembly,
	// for servers that hand out the leaf and its chain separately.
	Intermediates []string

	Password  string
	Hint      string // filename or extension; reorders detection only
	ChainOnly bool   // accept key-less material as a trust bundle
}

// ImportResult reports the outcome of a completed import.
type ImportResult struct {
	Name       string
	VaultID    string
	Thumbprint string
	Version    string
	Expires    time.Time

	Disposition Disposition

	// GeneratedPassword is the ephemeral bundle password when none was
	// supplied; empty otherwise.
	GeneratedPassword string

	RootMissing     bool
	KnownRootIssuer bool
}

// Importer runs the submission pipeline end to end: guard, detect, assemble,
// convert, submit, verify. Every failure is a StageError naming the stage
// that rejected the submission.
type Importer struct {
	Vault   vault.Client
	Guard   *internal.PathGuard
	Session *internal.Session
}

// Import normalizes the submitted material into the canonical bundle and
// writes it to the vault, skipping the write when the latest stored version
// already holds the same certificate.
func (imp *Importer) Import(ctx context.Context, req *ImportRequest) (*ImportResult, error) {
	vaultID, err := imp.Session.Resolve(req.VaultID)
	if err != nil {
		return nil, err
	}
	if req.CertName == "" {
		return nil, fmt.Errorf("certificate name is required")
	}

	data, hint, err := imp.loadSource(req)
	if err != nil {
		return nil, stageErr(StageGuard, err)
	}

	format, parseData, err := Detect(data, hint)
	if err != nil {
		return nil, stageErr(StageDetect, err)
	}
	slog.Debug("detected format", "name", req.CertName, "format", string(format))

	material, err := Parse(format, parseData, req.Password)
	if err != nil {
		return nil, stageErr(StageDetect, err)
	}

	if err := imp.mergeKey(req, material); err != nil {
		return nil, stageErr(StageDetect, err)
	}
	if err := mergeIntermediates(req.Intermediates, material); err != nil {
		return nil, stageErr(StageDetect, err)
	}

	chain, err := Assemble(material)
	if err != nil {
		return nil, stageErr(StageAssemble, err)
	}

	bundle, err := Convert(format, material, chain, req.Password, req.ChainOnly)
	if err != nil {
		return nil, stageErr(StageConvert, err)
	}

	thumbprint := vaultcert.Thumbprint(chain.Leaf())
	result := &ImportResult{
		Name:            req.CertName,
		VaultID:         vaultID,
		Thumbprint:      thumbprint,
		Expires:         chain.Leaf().NotAfter,
		RootMissing:     chain.RootMissing,
		KnownRootIssuer: chain.KnownRootIssuer,
	}
	if bundle.PasswordGenerated {
		result.GeneratedPassword = bundle.Password
	}

	existing, err := imp.Vault.GetCertificate(ctx, vaultID, req.CertName)
	switch {
	case errors.Is(err, vault.ErrNotFound):
		result.Disposition = DispositionCreated
	case err != nil:
		return nil, stageErr(StageSubmit, err)
	case existing.Thumbprint == thumbprint:
		// Same certificate already stored; appending another version
		// would only churn gateway refreshes.
		result.Disposition = DispositionAlreadyExisted
		result.Version = existing.Version
		slog.Info("certificate unchanged, skipping import",
			"vault", vaultID, "name", req.CertName, "thumbprint", thumbprint)
		return result, nil
	default:
		result.Disposition = DispositionUpdated
	}

	created, err := imp.Vault.ImportCertificate(ctx, vaultID, req.CertName, bundle.PFXData, bundle.Password)
	if err != nil {
		return nil, stageErr(StageSubmit, err)
	}
	result.Version = created.Version

	stored, err := imp.Vault.GetCertificate(ctx, vaultID, req.CertName)
	if err != nil {
		return nil, stageErr(StageVerify, err)
	}
	if stored.Thumbprint != thumbprint {
		return nil, stageErr(StageVerify, fmt.Errorf(
			"stored thumbprint %s does not match submitted %s", stored.Thumbprint, thumbprint))
	}
	if !stored.Expires.Equal(result.Expires) {
		return nil, stageErr(StageVerify, fmt.Errorf(
			"stored expiry %s does not match submitted %s", stored.Expires, result.Expires))
	}

	slog.Info("certificate imported",
		"vault", vaultID, "name", req.CertName,
		"version", result.Version, "disposition", string(result.Disposition))
	return result, nil
}

// loadSource returns the raw submission bytes and the detection hint.
func (imp *Importer) loadSource(req *ImportRequest) ([]byte, string, error) {
	if req.Material != "" && req.Path != "" {
		return nil, "", fmt.Errorf("material and path are mutually exclusive")
	}
	if req.Path != "" {
		if imp.Guard == nil {
			return nil, "", fmt.Errorf("path-based input is disabled: no allowed directory configured")
		}
		data, err := imp.Guard.ReadFile(req.Path)
		if err != nil {
			return nil, "", err
		}
		hint := req.Hint
		if hint == "" {
			hint = filepath.Base(req.Path)
		}
		return data, hint, nil
	}
	if req.Material == "" {
		return nil, "", fmt.Errorf("no certificate material supplied")
	}
	return []byte(req.Material), req.Hint, nil
}

// mergeKey attaches a separately-submitted private key, unless the container
// itself already carried one.
func (imp *Importer) mergeKey(req *ImportRequest, m *Material) error {
	if req.Key == "" && req.KeyPath == "" {
		return nil
	}
	if m.Key != nil {
		slog.Debug("container already holds a key, ignoring separate key")
		return nil
	}

	var keyData []byte
	switch {
	case req.Key != "" && req.KeyPath != "":
		return fmt.Errorf("key and key path are mutually exclusive")
	case req.KeyPath != "":
		if imp.Guard == nil {
			return fmt.Errorf("path-based input is disabled: no allowed directory configured")
		}
		data, err := imp.Guard.ReadFile(req.KeyPath)
		if err != nil {
			return err
		}
		keyData = data
	default:
		keyData = []byte(req.Key)
	}

	var key crypto.PrivateKey
	var err error
	switch {
	case vaultcert.IsEncryptedPEMKey(keyData):
		key, err = vaultcert.ParsePEMPrivateKeyWithPassword(keyData, req.Password)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPasswordInvalid, err)
		}
	case vaultcert.IsPEM(keyData):
		key, err = vaultcert.ParsePEMPrivateKey(keyData)
		if err != nil {
			return fmt.Errorf("parsing private key: %w", err)
		}
	default:
		key, err = vaultcert.ParseDERPrivateKey(keyData)
		if err != nil {
			return fmt.Errorf("parsing private key: %w", err)
		}
	}
	m.Key = key
	return nil
}

// mergeIntermediates accepts each extra blob as PEM or a single DER cert.
func mergeIntermediates(blocks []string, m *Material) error {
	for i, block := range blocks {
		data := []byte(block)
		if vaultcert.IsPEM(data) {
			certs, err := vaultcert.ParsePEMCertificates(data)
			if err != nil {
				return fmt.Errorf("parsing intermediate %d: %w", i+1, err)
			}
			m.Certs = append(m.Certs, certs...)
			continue
		}
		cert, err := x509.ParseCertificate(data)
		if err != nil {
			return fmt.Errorf("parsing intermediate %d: %w", i+1, err)
		}
		m.Certs = append(m.Certs, cert)
	}
	return nil
}

package vault

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sensiblebit/vaultcert"
)

// certEntry is one stored certificate version plus its bundle material.
type certEntry struct {
	CertificateVersion
	pfxData  []byte
	password string
}

// vaultData holds one vault's append-only version lists.
type vaultData struct {
	certs   map[string][]*certEntry
	secrets map[string][]*Secret
}

// MemVault is an in-memory Client used by tests and the local backend. It
// mirrors the remote vault's semantics: append-only versioning, latest-wins
// reads, name-scoped deletes.
type MemVault struct {
	mu     sync.Mutex
	vaults map[string]*vaultData
	now    func() time.Time
}

// NewMemVault creates an in-memory vault store containing the named vaults.
func NewMemVault(names ...string) *MemVault {
	m := &MemVault{
		vaults: make(map[string]*vaultData),
		now:    time.Now,
	}
	for _, name := range names {
		m.vaults[name] = &vaultData{
			certs:   make(map[string][]*certEntry),
			secrets: make(map[string][]*Secret),
		}
	}
	return m
}

func (m *MemVault) vault(vaultID string) (*vaultData, error) {
	v, ok := m.vaults[vaultID]
	if !ok {
		return nil, fmt.Errorf("%w: vault %q: %w", ErrRemote, vaultID, ErrNotFound)
	}
	return v, nil
}

// ImportCertificate decodes the bundle to derive thumbprint and expiry, the
// same metadata the remote control-plane computes server-side.
func (m *MemVault) ImportCertificate(ctx context.Context, vaultID, name string, pfxData []byte, password string) (*CertificateVersion, error) {
	leaf, err := bundleLeaf(pfxData, password)
	if err != nil {
		return nil, fmt.Errorf("%w: rejected bundle: %v", ErrRemote, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	v, err := m.vault(vaultID)
	if err != nil {
		return nil, err
	}

	entry := &certEntry{
		CertificateVersion: CertificateVersion{
			Name:       name,
			Version:    NewVersionID(),
			Thumbprint: vaultcert.Thumbprint(leaf),
			Expires:    leaf.NotAfter,
			Created:    m.now(),
			Enabled:    true,
		},
		pfxData:  append([]byte(nil), pfxData...),
		password: password,
	}
	v.certs[name] = append(v.certs[name], entry)
	cv := entry.CertificateVersion
	return &cv, nil
}

func (m *MemVault) GetCertificate(ctx context.Context, vaultID, name string) (*CertificateVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, err := m.latestCert(vaultID, name)
	if err != nil {
		return nil, err
	}
	cv := entry.CertificateVersion
	return &cv, nil
}

func (m *MemVault) GetCertificateData(ctx context.Context, vaultID, name string) ([]byte, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	entry, err := m.latestCert(vaultID, name)
	if err != nil {
		return nil, "", err
	}
	return append([]byte(nil), entry.pfxData...), entry.password, nil
}

func (m *MemVault) latestCert(vaultID, name string) (*certEntry, error) {
	v, err := m.vault(vaultID)
	if err != nil {
		return nil, err
	}
	versions := v.certs[name]
	if len(versions) == 0 {
		return nil, fmt.Errorf("certificate %q: %w", name, ErrNotFound)
	}
	return versions[len(versions)-1], nil
}

func (m *MemVault) ListCertificates(ctx context.Context, vaultID string) ([]CertificateVersion, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, err := m.vault(vaultID)
	if err != nil {
		return nil, err
	}
	var out []CertificateVersion
	for _, versions := range v.certs {
		if len(versions) == 0 {
			continue
		}
		out = append(out, versions[len(versions)-1].CertificateVersion)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemVault) DeleteCertificate(ctx context.Context, vaultID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, err := m.vault(vaultID)
	if err != nil {
		return err
	}
	if len(v.certs[name]) == 0 {
		return fmt.Errorf("certificate %q: %w", name, ErrNotFound)
	}
	delete(v.certs, name)
	return nil
}

func (m *MemVault) SetSecret(ctx context.Context, vaultID, name, value string) (*Secret, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, err := m.vault(vaultID)
	if err != nil {
		return nil, err
	}
	now := m.now()
	sec := &Secret{
		Name:    name,
		Value:   value,
		Version: NewVersionID(),
		Created: now,
		Updated: now,
	}
	if prior := v.secrets[name]; len(prior) > 0 {
		sec.Created = prior[0].Created
	}
	v.secrets[name] = append(v.secrets[name], sec)
	out := *sec
	return &out, nil
}

func (m *MemVault) GetSecret(ctx context.Context, vaultID, name string) (*Secret, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, err := m.vault(vaultID)
	if err != nil {
		return nil, err
	}
	versions := v.secrets[name]
	if len(versions) == 0 {
		return nil, fmt.Errorf("secret %q: %w", name, ErrNotFound)
	}
	out := *versions[len(versions)-1]
	return &out, nil
}

func (m *MemVault) ListSecrets(ctx context.Context, vaultID string) ([]Secret, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, err := m.vault(vaultID)
	if err != nil {
		return nil, err
	}
	var out []Secret
	for _, versions := range v.secrets {
		if len(versions) == 0 {
			continue
		}
		latest := *versions[len(versions)-1]
		latest.Value = "" // listings never carry values
		out = append(out, latest)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemVault) DeleteSecret(ctx context.Context, vaultID, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, err := m.vault(vaultID)
	if err != nil {
		return err
	}
	if len(v.secrets[name]) == 0 {
		return fmt.Errorf("secret %q: %w", name, ErrNotFound)
	}
	delete(v.secrets, name)
	return nil
}

func (m *MemVault) ListVaults(ctx context.Context) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, 0, len(m.vaults))
	for name := range m.vaults {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (m *MemVault) SecretURI(vaultID, name string) string {
	return fmt.Sprintf("vault://%s/certificates/%s", vaultID, name)
}

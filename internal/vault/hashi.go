package vault

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/vault/api"

	"github.com/sensiblebit/vaultcert"
)

// HashiVault is a Client backed by a HashiCorp Vault KV v2 mount. Each logical
// vault maps to a prefix under the mount; certificates and secrets live under
// separate sub-prefixes so a listing of one never leaks the other.
type HashiVault struct {
	address string
	token   string
	mount   string

	mu     sync.Mutex
	client *api.Client
}

// NewHashiVault configures a token-authenticated KV v2 client. The connection
// is established lazily on first use; token renewal is not implemented.
func NewHashiVault(address, token, mount string) *HashiVault {
	if mount == "" {
		mount = "secret"
	}
	return &HashiVault{address: address, token: token, mount: mount}
}

func (h *HashiVault) api() (*api.Client, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.client == nil {
		client, err := api.NewClient(api.DefaultConfig())
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRemote, err)
		}
		if err := client.SetAddress(h.address); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrRemote, err)
		}
		client.SetToken(h.token)
		client.SetClientTimeout(10 * time.Second)
		h.client = client
	}
	return h.client, nil
}

func (h *HashiVault) certPath(vaultID, name string) string {
	return fmt.Sprintf("%s/data/%s/certificates/%s", h.mount, vaultID, name)
}

func (h *HashiVault) secretPath(vaultID, name string) string {
	return fmt.Sprintf("%s/data/%s/secrets/%s", h.mount, vaultID, name)
}

func (h *HashiVault) metaPath(vaultID, kind string) string {
	return fmt.Sprintf("%s/metadata/%s/%s", h.mount, vaultID, kind)
}

func (h *HashiVault) ImportCertificate(ctx context.Context, vaultID, name string, pfxData []byte, password string) (*CertificateVersion, error) {
	leaf, err := bundleLeaf(pfxData, password)
	if err != nil {
		return nil, fmt.Errorf("%w: rejected bundle: %v", ErrRemote, err)
	}
	client, err := h.api()
	if err != nil {
		return nil, err
	}

	thumbprint := vaultcert.Thumbprint(leaf)
	payload := map[string]interface{}{
		"data": map[string]interface{}{
			"pfx":        base64.StdEncoding.EncodeToString(pfxData),
			"password":   password,
			"thumbprint": thumbprint,
			"expires":    leaf.NotAfter.UTC().Format(time.RFC3339),
		},
	}
	secret, err := client.Logical().WriteWithContext(ctx, h.certPath(vaultID, name), payload)
	if err != nil {
		return nil, fmt.Errorf("%w: writing certificate %q: %v", ErrRemote, name, err)
	}

	version := "1"
	created := time.Now().UTC()
	if secret != nil {
		if v, ok := secret.Data["version"].(json.Number); ok {
			version = v.String()
		}
		if t, ok := secret.Data["created_time"].(string); ok {
			if ts, err := time.Parse(time.RFC3339Nano, t); err == nil {
				created = ts
			}
		}
	}
	return &CertificateVersion{
		Name:       name,
		Version:    version,
		Thumbprint: thumbprint,
		Expires:    leaf.NotAfter,
		Created:    created,
		Enabled:    true,
	}, nil
}

func (h *HashiVault) readCert(ctx context.Context, vaultID, name string) (*api.Secret, error) {
	client, err := h.api()
	if err != nil {
		return nil, err
	}
	secret, err := client.Logical().ReadWithContext(ctx, h.certPath(vaultID, name))
	if err != nil {
		return nil, fmt.Errorf("%w: reading certificate %q: %v", ErrRemote, name, err)
	}
	if secret == nil || secret.Data["data"] == nil {
		return nil, fmt.Errorf("certificate %q: %w", name, ErrNotFound)
	}
	return secret, nil
}

func certVersionFromKV(name string, secret *api.Secret) *CertificateVersion {
	data, _ := secret.Data["data"].(map[string]interface{})
	meta, _ := secret.Data["metadata"].(map[string]interface{})

	cv := &CertificateVersion{Name: name, Enabled: true}
	if tp, ok := data["thumbprint"].(string); ok {
		cv.Thumbprint = tp
	}
	if exp, ok := data["expires"].(string); ok {
		if ts, err := time.Parse(time.RFC3339, exp); err == nil {
			cv.Expires = ts
		}
	}
	if meta != nil {
		if v, ok := meta["version"].(json.Number); ok {
			cv.Version = v.String()
		}
		if t, ok := meta["created_time"].(string); ok {
			if ts, err := time.Parse(time.RFC3339Nano, t); err == nil {
				cv.Created = ts
			}
		}
	}
	return cv
}

func (h *HashiVault) GetCertificate(ctx context.Context, vaultID, name string) (*CertificateVersion, error) {
	secret, err := h.readCert(ctx, vaultID, name)
	if err != nil {
		return nil, err
	}
	return certVersionFromKV(name, secret), nil
}

func (h *HashiVault) GetCertificateData(ctx context.Context, vaultID, name string) ([]byte, string, error) {
	secret, err := h.readCert(ctx, vaultID, name)
	if err != nil {
		return nil, "", err
	}
	data, _ := secret.Data["data"].(map[string]interface{})
	encoded, ok := data["pfx"].(string)
	if !ok {
		return nil, "", fmt.Errorf("%w: certificate %q has no bundle payload", ErrRemote, name)
	}
	pfxData, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, "", fmt.Errorf("%w: certificate %q bundle is not valid base64: %v", ErrRemote, name, err)
	}
	password, _ := data["password"].(string)
	return pfxData, password, nil
}

func (h *HashiVault) listKeys(ctx context.Context, path string) ([]string, error) {
	client, err := h.api()
	if err != nil {
		return nil, err
	}
	secret, err := client.Logical().ListWithContext(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("%w: listing %s: %v", ErrRemote, path, err)
	}
	if secret == nil || secret.Data["keys"] == nil {
		return nil, nil
	}
	raw, _ := secret.Data["keys"].([]interface{})
	keys := make([]string, 0, len(raw))
	for _, k := range raw {
		if s, ok := k.(string); ok {
			keys = append(keys, s)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

func (h *HashiVault) ListCertificates(ctx context.Context, vaultID string) ([]CertificateVersion, error) {
	names, err := h.listKeys(ctx, h.metaPath(vaultID, "certificates"))
	if err != nil {
		return nil, err
	}
	out := make([]CertificateVersion, 0, len(names))
	for _, name := range names {
		cv, err := h.GetCertificate(ctx, vaultID, name)
		if err != nil {
			return nil, err
		}
		out = append(out, *cv)
	}
	return out, nil
}

func (h *HashiVault) DeleteCertificate(ctx context.Context, vaultID, name string) error {
	if _, err := h.readCert(ctx, vaultID, name); err != nil {
		return err
	}
	client, err := h.api()
	if err != nil {
		return err
	}
	_, err = client.Logical().DeleteWithContext(ctx, h.metaPath(vaultID, "certificates")+"/"+name)
	if err != nil {
		return fmt.Errorf("%w: deleting certificate %q: %v", ErrRemote, name, err)
	}
	return nil
}

func (h *HashiVault) SetSecret(ctx context.Context, vaultID, name, value string) (*Secret, error) {
	client, err := h.api()
	if err != nil {
		return nil, err
	}
	payload := map[string]interface{}{
		"data": map[string]interface{}{"value": value},
	}
	resp, err := client.Logical().WriteWithContext(ctx, h.secretPath(vaultID, name), payload)
	if err != nil {
		return nil, fmt.Errorf("%w: writing secret %q: %v", ErrRemote, name, err)
	}
	sec := &Secret{Name: name, Value: value, Version: "1", Updated: time.Now().UTC()}
	if resp != nil {
		if v, ok := resp.Data["version"].(json.Number); ok {
			sec.Version = v.String()
		}
		if t, ok := resp.Data["created_time"].(string); ok {
			if ts, err := time.Parse(time.RFC3339Nano, t); err == nil {
				sec.Updated = ts
			}
		}
	}
	sec.Created = sec.Updated
	return sec, nil
}

func (h *HashiVault) GetSecret(ctx context.Context, vaultID, name string) (*Secret, error) {
	client, err := h.api()
	if err != nil {
		return nil, err
	}
	secret, err := client.Logical().ReadWithContext(ctx, h.secretPath(vaultID, name))
	if err != nil {
		return nil, fmt.Errorf("%w: reading secret %q: %v", ErrRemote, name, err)
	}
	if secret == nil || secret.Data["data"] == nil {
		return nil, fmt.Errorf("secret %q: %w", name, ErrNotFound)
	}
	data, _ := secret.Data["data"].(map[string]interface{})
	meta, _ := secret.Data["metadata"].(map[string]interface{})
	sec := &Secret{Name: name}
	if v, ok := data["value"].(string); ok {
		sec.Value = v
	}
	if meta != nil {
		if v, ok := meta["version"].(json.Number); ok {
			sec.Version = v.String()
		}
		if t, ok := meta["created_time"].(string); ok {
			if ts, err := time.Parse(time.RFC3339Nano, t); err == nil {
				sec.Created = ts
				sec.Updated = ts
			}
		}
	}
	return sec, nil
}

func (h *HashiVault) ListSecrets(ctx context.Context, vaultID string) ([]Secret, error) {
	names, err := h.listKeys(ctx, h.metaPath(vaultID, "secrets"))
	if err != nil {
		return nil, err
	}
	out := make([]Secret, 0, len(names))
	for _, name := range names {
		sec, err := h.GetSecret(ctx, vaultID, name)
		if err != nil {
			return nil, err
		}
		// listings never carry values
		sec.Value = ""
		out = append(out, *sec)
	}
	return out, nil
}

func (h *HashiVault) DeleteSecret(ctx context.Context, vaultID, name string) error {
	if _, err := h.GetSecret(ctx, vaultID, name); err != nil {
		return err
	}
	client, err := h.api()
	if err != nil {
		return err
	}
	_, err = client.Logical().DeleteWithContext(ctx, h.metaPath(vaultID, "secrets")+"/"+name)
	if err != nil {
		return fmt.Errorf("%w: deleting secret %q: %v", ErrRemote, name, err)
	}
	return nil
}

func (h *HashiVault) ListVaults(ctx context.Context) ([]string, error) {
	keys, err := h.listKeys(ctx, h.mount+"/metadata")
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		names = append(names, strings.TrimSuffix(k, "/"))
	}
	return names, nil
}

func (h *HashiVault) SecretURI(vaultID, name string) string {
	return fmt.Sprintf("vault://%s/certificates/%s", vaultID, name)
}

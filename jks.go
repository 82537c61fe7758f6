package vaultcert

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"fmt"
	"time"

	"github.com/pavlo-v-chernykh/keystore-go/v4"
)

// EncodeJKS creates a Java KeyStore (JKS) containing a private key entry with
// its certificate chain, for handing a vault-stored certificate to Java
// consumers. The leaf certificate and intermediates form the chain stored
// under the alias "server". The same password protects both the store and the
// key entry (standard Java convention).
func EncodeJKS(privateKey crypto.PrivateKey, leaf *x509.Certificate, caCerts []*x509.Certificate, password string) ([]byte, error) {
	pkcs8Key, err := x509.MarshalPKCS8PrivateKey(normalizeKey(privateKey))
	if err != nil {
		return nil, fmt.Errorf("marshaling private key to PKCS#8: %w", err)
	}

	chain := []keystore.Certificate{
		{Type: "X.509", Content: leaf.Raw},
	}
	for _, ca := range caCerts {
		chain = append(chain, keystore.Certificate{
			Type:    "X.509",
			Content: ca.Raw,
		})
	}

	ks := keystore.New()
	if err := ks.SetPrivateKeyEntry("server", keystore.PrivateKeyEntry{
		CreationTime:     time.Now(),
		PrivateKey:       pkcs8Key,
		CertificateChain: chain,
	}, []byte(password)); err != nil {
		return nil, fmt.Errorf("setting JKS private key entry: %w", err)
	}

	var buf bytes.Buffer
	if err := ks.Store(&buf, []byte(password)); err != nil {
		return nil, fmt.Errorf("storing JKS: %w", err)
	}

	return buf.Bytes(), nil
}

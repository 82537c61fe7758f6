package pipeline

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/sensiblebit/vaultcert"
)

// testPKI is a generated root -> intermediate -> leaf hierarchy with the
// leaf's private key, in both object and PEM form.
type testPKI struct {
	Root         *x509.Certificate
	Intermediate *x509.Certificate
	Leaf         *x509.Certificate
	LeafKey      *ecdsa.PrivateKey
}

func newTestPKI(t *testing.T) *testPKI {
	t.Helper()

	rootKey := genKey(t)
	rootTmpl := caTemplate(1, "Pipeline Root CA")
	root := issue(t, rootTmpl, rootTmpl, &rootKey.PublicKey, rootKey)

	interKey := genKey(t)
	interTmpl := caTemplate(2, "Pipeline Issuing CA")
	inter := issue(t, interTmpl, root, &interKey.PublicKey, rootKey)

	leafKey := genKey(t)
	leafTmpl := &x509.Certificate{
		SerialNumber: big.NewInt(3),
		Subject:      pkix.Name{CommonName: "pipeline.example.com"},
		DNSNames:     []string{"pipeline.example.com"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
	}
	leaf := issue(t, leafTmpl, inter, &leafKey.PublicKey, interKey)

	return &testPKI{Root: root, Intermediate: inter, Leaf: leaf, LeafKey: leafKey}
}

func caTemplate(serial int64, cn string) *x509.Certificate {
	return &x509.Certificate{
		SerialNumber:          big.NewInt(serial),
		Subject:               pkix.Name{CommonName: cn},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
	}
}

func genKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	return key
}

func issue(t *testing.T, tmpl, parent *x509.Certificate, pub *ecdsa.PublicKey, signer *ecdsa.PrivateKey) *x509.Certificate {
	t.Helper()
	der, err := x509.CreateCertificate(rand.Reader, tmpl, parent, pub, signer)
	if err != nil {
		t.Fatal(err)
	}
	cert, err := x509.ParseCertificate(der)
	if err != nil {
		t.Fatal(err)
	}
	return cert
}

func pemBundle(certs ...*x509.Certificate) []byte {
	var out []byte
	for _, cert := range certs {
		out = append(out, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw})...)
	}
	return out
}

func pemKey(t *testing.T, key *ecdsa.PrivateKey) []byte {
	t.Helper()
	der, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})
}

// pfxBundle encodes the PKI's full chain as a PKCS#12 container.
func pfxBundle(t *testing.T, pki *testPKI, password string) []byte {
	t.Helper()
	data, err := vaultcert.EncodePKCS12(pki.LeafKey, pki.Leaf,
		[]*x509.Certificate{pki.Intermediate, pki.Root}, password)
	if err != nil {
		t.Fatal(err)
	}
	return data
}

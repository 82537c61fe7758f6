package pipeline

import (
	"bytes"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"testing"

	"github.com/sensiblebit/vaultcert"
)

func TestDetectPEM(t *testing.T) {
	pki := newTestPKI(t)

	format, data, err := Detect(pemBundle(pki.Leaf), "")
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if format != FormatPEM {
		t.Errorf("format = %s, want PEM", format)
	}
	if !bytes.Contains(data, []byte("-----BEGIN CERTIFICATE-----")) {
		t.Error("returned data is not the PEM input")
	}
}

func TestDetectCRTHint(t *testing.T) {
	pki := newTestPKI(t)

	format, _, err := Detect(pemBundle(pki.Leaf), "server.crt")
	if err != nil {
		t.Fatal(err)
	}
	if format != FormatCRT {
		t.Errorf("format = %s, want CRT", format)
	}
}

func TestDetectDER(t *testing.T) {
	pki := newTestPKI(t)

	format, _, err := Detect(pki.Leaf.Raw, "")
	if err != nil {
		t.Fatal(err)
	}
	if format != FormatDER {
		t.Errorf("format = %s, want DER", format)
	}
}

func TestDetectPKCS7(t *testing.T) {
	pki := newTestPKI(t)
	der, err := vaultcert.EncodePKCS7([]*x509.Certificate{pki.Leaf, pki.Intermediate, pki.Root})
	if err != nil {
		t.Fatal(err)
	}

	format, _, err := Detect(der, "")
	if err != nil {
		t.Fatal(err)
	}
	if format != FormatPKCS7 {
		t.Errorf("format = %s, want PKCS7", format)
	}
}

func TestDetectPKCS12(t *testing.T) {
	pki := newTestPKI(t)
	pfx := pfxBundle(t, pki, "pw")

	format, _, err := Detect(pfx, "bundle.pfx")
	if err != nil {
		t.Fatal(err)
	}
	if format != FormatPKCS12 {
		t.Errorf("format = %s, want PKCS12", format)
	}
}

func TestDetectPKCS12WithoutHint(t *testing.T) {
	pki := newTestPKI(t)
	pfx := pfxBundle(t, pki, "pw")

	format, _, err := Detect(pfx, "")
	if err != nil {
		t.Fatal(err)
	}
	if format != FormatPKCS12 {
		t.Errorf("format = %s, want PKCS12", format)
	}
}

func TestDetectBase64WrappedPEM(t *testing.T) {
	pki := newTestPKI(t)
	wrapped := []byte(base64.StdEncoding.EncodeToString(pemBundle(pki.Leaf)))

	format, data, err := Detect(wrapped, "")
	if err != nil {
		t.Fatal(err)
	}
	if format != FormatPEM {
		t.Errorf("format = %s, want PEM", format)
	}
	if _, err := vaultcert.ParsePEMCertificates(data); err != nil {
		t.Errorf("returned data is not the decoded PEM: %v", err)
	}
}

func TestDetectBase64WrappedDER(t *testing.T) {
	pki := newTestPKI(t)
	wrapped := []byte(base64.StdEncoding.EncodeToString(pki.Leaf.Raw))

	format, data, err := Detect(wrapped, "")
	if err != nil {
		t.Fatal(err)
	}
	if format != FormatDER {
		t.Errorf("format = %s, want DER", format)
	}
	if !bytes.Equal(data, pki.Leaf.Raw) {
		t.Error("returned data is not the decoded DER")
	}
}

func TestDetectUnknown(t *testing.T) {
	_, _, err := Detect([]byte("this is not certificate material of any kind"), "")
	if !errors.Is(err, ErrFormatUnknown) {
		t.Errorf("err = %v, want ErrFormatUnknown", err)
	}
}

func TestDetectEmpty(t *testing.T) {
	if _, _, err := Detect(nil, ""); !errors.Is(err, ErrFormatUnknown) {
		t.Errorf("err = %v, want ErrFormatUnknown", err)
	}
}

func TestDetectOversized(t *testing.T) {
	big := make([]byte, MaxBlobSize+1)
	if _, _, err := Detect(big, ""); !errors.Is(err, ErrBlobTooLarge) {
		t.Errorf("err = %v, want ErrBlobTooLarge", err)
	}
}

func TestDetectShortBase64NotUnwrapped(t *testing.T) {
	// Short base64-looking strings must never be treated as wrapped material.
	_, _, err := Detect([]byte("dGVzdA=="), "")
	if !errors.Is(err, ErrFormatUnknown) {
		t.Errorf("err = %v, want ErrFormatUnknown", err)
	}
}

func TestParsePEMMaterialWithKey(t *testing.T) {
	pki := newTestPKI(t)
	blob := append(pemBundle(pki.Leaf, pki.Intermediate), pemKey(t, pki.LeafKey)...)

	m, err := Parse(FormatPEM, blob, "")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(m.Certs) != 2 {
		t.Errorf("certs = %d, want 2", len(m.Certs))
	}
	if m.Key == nil {
		t.Error("key not extracted")
	}
}

func TestParsePKCS12Material(t *testing.T) {
	pki := newTestPKI(t)
	pfx := pfxBundle(t, pki, "secret")

	m, err := Parse(FormatPKCS12, pfx, "secret")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if len(m.Certs) != 3 {
		t.Errorf("certs = %d, want 3", len(m.Certs))
	}
	if m.Key == nil {
		t.Error("key not extracted")
	}
	if m.PKCS12Password != "secret" {
		t.Errorf("recorded password = %q", m.PKCS12Password)
	}
	if !bytes.Equal(m.PKCS12Original, pfx) {
		t.Error("original container bytes not retained")
	}
}

func TestParsePKCS12WrongPassword(t *testing.T) {
	pki := newTestPKI(t)
	pfx := pfxBundle(t, pki, "secret")

	_, err := Parse(FormatPKCS12, pfx, "wrong")
	if !errors.Is(err, ErrPasswordInvalid) {
		t.Errorf("err = %v, want ErrPasswordInvalid", err)
	}
}

func TestParsePKCS12MissingPassword(t *testing.T) {
	pki := newTestPKI(t)
	pfx := pfxBundle(t, pki, "secret")

	// One attempt with the empty password, then failure. No guessing.
	_, err := Parse(FormatPKCS12, pfx, "")
	if !errors.Is(err, ErrPasswordInvalid) {
		t.Errorf("err = %v, want ErrPasswordInvalid", err)
	}
}

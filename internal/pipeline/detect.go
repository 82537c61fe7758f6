package pipeline

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/asn1"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	gopkcs12 "software.sslmate.com/src/go-pkcs12"

	"github.com/sensiblebit/vaultcert"
)

// Format is the detected container format of submitted certificate material.
// It is always re-derived from content; caller-supplied labels only reorder
// detection attempts.
type Format string

const (
	FormatPEM     Format = "PEM"
	FormatDER     Format = "DER"
	FormatCRT     Format = "CRT"
	FormatPKCS7   Format = "PKCS7"
	FormatPKCS12  Format = "PKCS12"
	FormatUnknown Format = "UNKNOWN"
)

// MaxBlobSize bounds memory use from oversized uploads.
const MaxBlobSize = 16 << 20

// minBase64Len bounds the "pasted base64" heuristic: shorter blobs are never
// base64-unwrapped, so short plain-text secrets cannot be misclassified as
// certificate material.
const minBase64Len = 64

// oidSignedData is the PKCS#7 signed-data content type (1.2.840.113549.1.7.2).
var oidSignedData = asn1.ObjectIdentifier{1, 2, 840, 113549, 1, 7, 2}

// Detect classifies raw material into a Format. The returned byte slice is
// the material to parse: the input itself, or its base64-decoded form when
// the blob was a pasted base64 encoding of a recognizable container.
// The hint is a filename or extension; it never decides the format.
func Detect(data []byte, hint string) (Format, []byte, error) {
	if len(data) == 0 {
		return FormatUnknown, nil, fmt.Errorf("%w: empty input", ErrFormatUnknown)
	}
	if len(data) > MaxBlobSize {
		return FormatUnknown, nil, fmt.Errorf("%w: %d bytes, limit %d", ErrBlobTooLarge, len(data), MaxBlobSize)
	}

	if decoded, ok := tryBase64Unwrap(data); ok {
		if f := classify(decoded, hint); f != FormatUnknown {
			slog.Debug("detected base64-wrapped material", "format", string(f))
			return f, decoded, nil
		}
	}

	if f := classify(data, hint); f != FormatUnknown {
		return f, data, nil
	}

	return FormatUnknown, nil, fmt.Errorf(
		"%w: tried base64 unwrap, PEM markers, PKCS#7, PKCS#12, and DER X.509", ErrFormatUnknown)
}

// classify applies the structural checks in fixed priority order.
func classify(data []byte, hint string) Format {
	if vaultcert.IsPEM(data) && hasParsablePEMBlock(data) {
		if hintIsTextualCert(hint) {
			return FormatCRT
		}
		return FormatPEM
	}

	// All remaining formats are DER structures starting with a SEQUENCE tag.
	if len(data) < 2 || data[0] != 0x30 {
		return FormatUnknown
	}

	// A .pfx/.p12 hint reorders the two structural checks; both still run.
	if hintIsPKCS12(hint) {
		if isPKCS12(data) {
			return FormatPKCS12
		}
		if isPKCS7(data) {
			return FormatPKCS7
		}
	} else {
		if isPKCS7(data) {
			return FormatPKCS7
		}
		if isPKCS12(data) {
			return FormatPKCS12
		}
	}

	if _, err := x509.ParseCertificate(data); err == nil {
		return FormatDER
	}
	return FormatUnknown
}

// tryBase64Unwrap attempts to decode the whole trimmed text as base64.
// The heuristic is deliberately bounded: the trimmed blob must be at least
// minBase64Len bytes and decode cleanly after whitespace removal.
func tryBase64Unwrap(data []byte) ([]byte, bool) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) < minBase64Len {
		return nil, false
	}
	// PEM is itself base64-adjacent text; never unwrap it.
	if vaultcert.IsPEM(trimmed) {
		return nil, false
	}
	compact := strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' || r == ' ' || r == '\t' {
			return -1
		}
		return r
	}, string(trimmed))
	decoded, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		return nil, false
	}
	return decoded, true
}

// hasParsablePEMBlock reports whether pem.Decode finds at least one block.
func hasParsablePEMBlock(data []byte) bool {
	block, _ := pem.Decode(data)
	return block != nil
}

// isPKCS7 checks for a ContentInfo whose content type is signed-data.
func isPKCS7(data []byte) bool {
	var ci struct {
		ContentType asn1.ObjectIdentifier
		Content     asn1.RawValue `asn1:"explicit,optional,tag:0"`
	}
	if _, err := asn1.Unmarshal(data, &ci); err != nil {
		return false
	}
	return ci.ContentType.Equal(oidSignedData)
}

// isPKCS12 checks for the PFX outer structure: SEQUENCE { INTEGER 3, ... }.
func isPKCS12(data []byte) bool {
	var pfx struct {
		Version  int
		AuthSafe asn1.RawValue
		MacData  asn1.RawValue `asn1:"optional"`
	}
	if _, err := asn1.Unmarshal(data, &pfx); err != nil {
		return false
	}
	return pfx.Version == 3
}

func hintIsTextualCert(hint string) bool {
	switch strings.ToLower(filepath.Ext(hint)) {
	case ".crt", ".cer":
		return true
	}
	return false
}

func hintIsPKCS12(hint string) bool {
	switch strings.ToLower(filepath.Ext(hint)) {
	case ".pfx", ".p12":
		return true
	}
	return false
}

// Material holds the parsed objects from one submission: every certificate
// found plus at most one private key. For PKCS#12 sources the original bytes
// and verified password are retained so the converter can pass the container
// through unchanged when it already matches the desired chain.
type Material struct {
	Certs []*x509.Certificate
	Key   crypto.PrivateKey

	PKCS12Original []byte
	PKCS12Password string

	// PKCS12CertCount is the number of certificates inside the original
	// container at parse time. Certs may grow afterwards when intermediates
	// are merged in from a separate submission, so the passthrough decision
	// must compare against this count, not len(Certs).
	PKCS12CertCount int
}

// Parse extracts certificates and the private key from classified material.
// For PKCS#12 the supplied password is tried, then the empty password when
// none was supplied; failure of that single attempt is ErrPasswordInvalid.
func Parse(format Format, data []byte, password string) (*Material, error) {
	switch format {
	case FormatPEM, FormatCRT:
		return parsePEMMaterial(data, password)
	case FormatDER:
		cert, err := x509.ParseCertificate(data)
		if err != nil {
			return nil, fmt.Errorf("parsing DER certificate: %w", err)
		}
		return &Material{Certs: []*x509.Certificate{cert}}, nil
	case FormatPKCS7:
		certs, err := vaultcert.DecodePKCS7(data)
		if err != nil {
			return nil, fmt.Errorf("parsing PKCS#7: %w", err)
		}
		return &Material{Certs: certs}, nil
	case FormatPKCS12:
		return parsePKCS12Material(data, password)
	default:
		return nil, fmt.Errorf("%w: %q", ErrFormatUnknown, string(format))
	}
}

func parsePEMMaterial(data []byte, password string) (*Material, error) {
	m := &Material{}
	rest := data
	for len(rest) > 0 {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		switch {
		case block.Type == "CERTIFICATE":
			cert, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, fmt.Errorf("parsing PEM certificate: %w", err)
			}
			m.Certs = append(m.Certs, cert)
		case strings.Contains(block.Type, "PRIVATE KEY"):
			if m.Key != nil {
				continue // first key wins; extra key blocks are ignored
			}
			single := pem.EncodeToMemory(block)
			encrypted := vaultcert.IsEncryptedPEMKey(single)
			key, err := vaultcert.ParsePEMPrivateKeyWithPassword(single, password)
			if err != nil {
				if encrypted {
					return nil, fmt.Errorf("%w: encrypted private key", ErrPasswordInvalid)
				}
				return nil, fmt.Errorf("parsing PEM private key: %w", err)
			}
			m.Key = key
		}
	}
	if len(m.Certs) == 0 && m.Key == nil {
		return nil, errors.New("no certificates or keys found in PEM data")
	}
	return m, nil
}

func parsePKCS12Material(data []byte, password string) (*Material, error) {
	key, leaf, caCerts, err := vaultcert.DecodePKCS12(data, password)
	if err != nil && password == "" {
		// A blob with no declared password may still be protected by the
		// literal empty string; DecodeChain already tried that, so any
		// failure here is terminal.
		return nil, fmt.Errorf("%w: PKCS#12 would not open without a password", ErrPasswordInvalid)
	}
	if err != nil {
		if errors.Is(err, gopkcs12.ErrIncorrectPassword) {
			return nil, fmt.Errorf("%w: PKCS#12 rejected the supplied password", ErrPasswordInvalid)
		}
		return nil, fmt.Errorf("parsing PKCS#12: %w", err)
	}

	m := &Material{
		Key:            key,
		PKCS12Original: data,
		PKCS12Password: password,
	}
	if leaf != nil {
		m.Certs = append(m.Certs, leaf)
	}
	m.Certs = append(m.Certs, caCerts...)
	m.PKCS12CertCount = len(m.Certs)
	return m, nil
}

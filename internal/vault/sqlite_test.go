package vault

import (
	"context"
	"errors"
	"testing"

	"github.com/sensiblebit/vaultcert"
)

func openTestDB(t *testing.T, vaults ...string) *SQLiteVault {
	t.Helper()
	db, err := OpenSQLiteVault("", vaults...)
	if err != nil {
		t.Fatalf("OpenSQLiteVault: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestSQLiteVaultImportAndGet(t *testing.T) {
	db := openTestDB(t, "prod")
	cert, pfxData := testBundle(t, "sqlite.example.com", "pw")
	ctx := context.Background()

	cv, err := db.ImportCertificate(ctx, "prod", "web-tls", pfxData, "pw")
	if err != nil {
		t.Fatalf("ImportCertificate: %v", err)
	}
	if cv.Thumbprint != vaultcert.Thumbprint(cert) {
		t.Error("stored thumbprint does not match the leaf")
	}

	got, err := db.GetCertificate(ctx, "prod", "web-tls")
	if err != nil {
		t.Fatal(err)
	}
	if got.Version != cv.Version {
		t.Error("latest version mismatch")
	}

	data, password, err := db.GetCertificateData(ctx, "prod", "web-tls")
	if err != nil {
		t.Fatal(err)
	}
	if password != "pw" {
		t.Errorf("password = %q", password)
	}
	if _, _, _, err := vaultcert.DecodePKCS12(data, password); err != nil {
		t.Errorf("stored bundle does not open: %v", err)
	}
}

func TestSQLiteVaultUnknownVault(t *testing.T) {
	db := openTestDB(t, "prod")
	_, pfxData := testBundle(t, "x.example.com", "pw")

	_, err := db.ImportCertificate(context.Background(), "nope", "x", pfxData, "pw")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestSQLiteVaultListLatestOnly(t *testing.T) {
	db := openTestDB(t, "prod")
	ctx := context.Background()

	_, pfxA := testBundle(t, "a.example.com", "pw")
	_, pfxB := testBundle(t, "b.example.com", "pw")
	if _, err := db.ImportCertificate(ctx, "prod", "web-tls", pfxA, "pw"); err != nil {
		t.Fatal(err)
	}
	second, err := db.ImportCertificate(ctx, "prod", "web-tls", pfxB, "pw")
	if err != nil {
		t.Fatal(err)
	}

	certs, err := db.ListCertificates(ctx, "prod")
	if err != nil {
		t.Fatal(err)
	}
	if len(certs) != 1 {
		t.Fatalf("listed %d entries, want 1 (latest only)", len(certs))
	}
	if certs[0].Thumbprint != second.Thumbprint {
		t.Error("listing did not surface the latest version")
	}
}

func TestSQLiteVaultSecrets(t *testing.T) {
	db := openTestDB(t, "prod")
	ctx := context.Background()

	if _, err := db.SetSecret(ctx, "prod", "api-key", "v1"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.SetSecret(ctx, "prod", "api-key", "v2"); err != nil {
		t.Fatal(err)
	}

	got, err := db.GetSecret(ctx, "prod", "api-key")
	if err != nil {
		t.Fatal(err)
	}
	if got.Value != "v2" {
		t.Errorf("latest value = %q, want v2", got.Value)
	}

	list, err := db.ListSecrets(ctx, "prod")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 {
		t.Fatalf("listed %d secrets", len(list))
	}
	if list[0].Value != "" {
		t.Error("listing leaked a secret value")
	}

	if err := db.DeleteSecret(ctx, "prod", "api-key"); err != nil {
		t.Fatal(err)
	}
	if _, err := db.GetSecret(ctx, "prod", "api-key"); !errors.Is(err, ErrNotFound) {
		t.Errorf("deleted secret still present: %v", err)
	}
}

func TestSQLiteVaultDelete(t *testing.T) {
	db := openTestDB(t, "prod")
	ctx := context.Background()

	_, pfxData := testBundle(t, "del.example.com", "pw")
	if _, err := db.ImportCertificate(ctx, "prod", "web-tls", pfxData, "pw"); err != nil {
		t.Fatal(err)
	}
	if err := db.DeleteCertificate(ctx, "prod", "web-tls"); err != nil {
		t.Fatal(err)
	}
	if err := db.DeleteCertificate(ctx, "prod", "web-tls"); !errors.Is(err, ErrNotFound) {
		t.Errorf("double delete: %v", err)
	}
}

func TestSQLiteVaultListVaults(t *testing.T) {
	db := openTestDB(t, "prod", "staging")

	names, err := db.ListVaults(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(names) != 2 || names[0] != "prod" || names[1] != "staging" {
		t.Errorf("vaults = %v", names)
	}
}

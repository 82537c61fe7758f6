package vault

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/sensiblebit/vaultcert"
)

// sqliteCertRow maps a row in the certificate_versions table.
type sqliteCertRow struct {
	Vault      string    `db:"vault"`
	Name       string    `db:"name"`
	Version    string    `db:"version"`
	Thumbprint string    `db:"thumbprint"`
	PFXData    []byte    `db:"pfx_data"`
	Password   string    `db:"password"`
	Expires    time.Time `db:"expires"`
	Created    time.Time `db:"created"`
}

// sqliteSecretRow maps a row in the secret_versions table.
type sqliteSecretRow struct {
	Vault   string    `db:"vault"`
	Name    string    `db:"name"`
	Version string    `db:"version"`
	Value   string    `db:"value"`
	Created time.Time `db:"created"`
}

// SQLiteVault is a Client backed by a local SQLite database. It exists for
// offline and development use: the schema keeps every imported version, so
// the append-only contract matches the remote control-plane.
type SQLiteVault struct {
	db *sqlx.DB
}

// OpenSQLiteVault opens (or creates) the database at path and ensures the
// named vaults exist. An empty path opens an in-memory database.
func OpenSQLiteVault(path string, vaultNames ...string) (*SQLiteVault, error) {
	dsn := path
	if dsn == "" {
		dsn = "file::memory:?_pragma=temp_store(2)&_pragma=journal_mode(off)&_pragma=synchronous(off)"
	}
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	for _, name := range vaultNames {
		if _, err := db.Exec("INSERT OR IGNORE INTO vaults (name) VALUES (?)", name); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("registering vault %q: %w", name, err)
		}
	}
	return &SQLiteVault{db: db}, nil
}

// Close releases the underlying database handle.
func (s *SQLiteVault) Close() error {
	return s.db.Close()
}

func initSchema(db *sqlx.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS vaults (
			name text PRIMARY KEY
		);
	`)
	if err != nil {
		return fmt.Errorf("creating vaults table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS certificate_versions (
			vault      text NOT NULL,
			name       text NOT NULL,
			version    text NOT NULL,
			thumbprint text NOT NULL,
			pfx_data   blob NOT NULL,
			password   text NOT NULL,
			expires    timestamp NOT NULL,
			created    timestamp NOT NULL,
			PRIMARY KEY(vault, name, version)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating certificate_versions table: %w", err)
	}

	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS secret_versions (
			vault   text NOT NULL,
			name    text NOT NULL,
			version text NOT NULL,
			value   text NOT NULL,
			created timestamp NOT NULL,
			PRIMARY KEY(vault, name, version)
		);
	`)
	if err != nil {
		return fmt.Errorf("creating secret_versions table: %w", err)
	}
	return nil
}

func (s *SQLiteVault) checkVault(vaultID string) error {
	var name string
	err := s.db.Get(&name, "SELECT name FROM vaults WHERE name = ?", vaultID)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: vault %q: %w", ErrRemote, vaultID, ErrNotFound)
	}
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRemote, err)
	}
	return nil
}

func (s *SQLiteVault) ImportCertificate(ctx context.Context, vaultID, name string, pfxData []byte, password string) (*CertificateVersion, error) {
	leaf, err := bundleLeaf(pfxData, password)
	if err != nil {
		return nil, fmt.Errorf("%w: rejected bundle: %v", ErrRemote, err)
	}
	if err := s.checkVault(vaultID); err != nil {
		return nil, err
	}

	cv := &CertificateVersion{
		Name:       name,
		Version:    NewVersionID(),
		Thumbprint: vaultcert.Thumbprint(leaf),
		Expires:    leaf.NotAfter,
		Created:    time.Now().UTC(),
		Enabled:    true,
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO certificate_versions (vault, name, version, thumbprint, pfx_data, password, expires, created)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		vaultID, name, cv.Version, cv.Thumbprint, pfxData, password, cv.Expires, cv.Created)
	if err != nil {
		return nil, fmt.Errorf("%w: storing certificate: %v", ErrRemote, err)
	}
	return cv, nil
}

func (s *SQLiteVault) latestCertRow(ctx context.Context, vaultID, name string) (*sqliteCertRow, error) {
	if err := s.checkVault(vaultID); err != nil {
		return nil, err
	}
	var row sqliteCertRow
	err := s.db.GetContext(ctx, &row, `
		SELECT * FROM certificate_versions
		WHERE vault = ? AND name = ?
		ORDER BY created DESC, version DESC LIMIT 1`, vaultID, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("certificate %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemote, err)
	}
	return &row, nil
}

func (s *SQLiteVault) GetCertificate(ctx context.Context, vaultID, name string) (*CertificateVersion, error) {
	row, err := s.latestCertRow(ctx, vaultID, name)
	if err != nil {
		return nil, err
	}
	return &CertificateVersion{
		Name:       row.Name,
		Version:    row.Version,
		Thumbprint: row.Thumbprint,
		Expires:    row.Expires,
		Created:    row.Created,
		Enabled:    true,
	}, nil
}

func (s *SQLiteVault) GetCertificateData(ctx context.Context, vaultID, name string) ([]byte, string, error) {
	row, err := s.latestCertRow(ctx, vaultID, name)
	if err != nil {
		return nil, "", err
	}
	return row.PFXData, row.Password, nil
}

func (s *SQLiteVault) ListCertificates(ctx context.Context, vaultID string) ([]CertificateVersion, error) {
	if err := s.checkVault(vaultID); err != nil {
		return nil, err
	}
	var rows []sqliteCertRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT cv.* FROM certificate_versions cv
		JOIN (
			SELECT vault, name, MAX(created) AS created FROM certificate_versions
			WHERE vault = ? GROUP BY vault, name
		) latest ON cv.vault = latest.vault AND cv.name = latest.name AND cv.created = latest.created
		ORDER BY cv.name`, vaultID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemote, err)
	}
	out := make([]CertificateVersion, 0, len(rows))
	for _, row := range rows {
		out = append(out, CertificateVersion{
			Name:       row.Name,
			Version:    row.Version,
			Thumbprint: row.Thumbprint,
			Expires:    row.Expires,
			Created:    row.Created,
			Enabled:    true,
		})
	}
	return out, nil
}

func (s *SQLiteVault) DeleteCertificate(ctx context.Context, vaultID, name string) error {
	if err := s.checkVault(vaultID); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM certificate_versions WHERE vault = ? AND name = ?", vaultID, name)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRemote, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("certificate %q: %w", name, ErrNotFound)
	}
	return nil
}

func (s *SQLiteVault) SetSecret(ctx context.Context, vaultID, name, value string) (*Secret, error) {
	if err := s.checkVault(vaultID); err != nil {
		return nil, err
	}
	sec := &Secret{
		Name:    name,
		Value:   value,
		Version: NewVersionID(),
		Updated: time.Now().UTC(),
	}
	sec.Created = sec.Updated
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO secret_versions (vault, name, version, value, created)
		VALUES (?, ?, ?, ?, ?)`,
		vaultID, name, sec.Version, value, sec.Updated)
	if err != nil {
		return nil, fmt.Errorf("%w: storing secret: %v", ErrRemote, err)
	}
	return sec, nil
}

func (s *SQLiteVault) GetSecret(ctx context.Context, vaultID, name string) (*Secret, error) {
	if err := s.checkVault(vaultID); err != nil {
		return nil, err
	}
	var row sqliteSecretRow
	err := s.db.GetContext(ctx, &row, `
		SELECT * FROM secret_versions
		WHERE vault = ? AND name = ?
		ORDER BY created DESC, version DESC LIMIT 1`, vaultID, name)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("secret %q: %w", name, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemote, err)
	}
	return &Secret{
		Name:    row.Name,
		Value:   row.Value,
		Version: row.Version,
		Created: row.Created,
		Updated: row.Created,
	}, nil
}

func (s *SQLiteVault) ListSecrets(ctx context.Context, vaultID string) ([]Secret, error) {
	if err := s.checkVault(vaultID); err != nil {
		return nil, err
	}
	var rows []sqliteSecretRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT sv.* FROM secret_versions sv
		JOIN (
			SELECT vault, name, MAX(created) AS created FROM secret_versions
			WHERE vault = ? GROUP BY vault, name
		) latest ON sv.vault = latest.vault AND sv.name = latest.name AND sv.created = latest.created
		ORDER BY sv.name`, vaultID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemote, err)
	}
	out := make([]Secret, 0, len(rows))
	for _, row := range rows {
		// listings never carry values
		out = append(out, Secret{
			Name:    row.Name,
			Version: row.Version,
			Created: row.Created,
			Updated: row.Created,
		})
	}
	return out, nil
}

func (s *SQLiteVault) DeleteSecret(ctx context.Context, vaultID, name string) error {
	if err := s.checkVault(vaultID); err != nil {
		return err
	}
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM secret_versions WHERE vault = ? AND name = ?", vaultID, name)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRemote, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("secret %q: %w", name, ErrNotFound)
	}
	return nil
}

func (s *SQLiteVault) ListVaults(ctx context.Context) ([]string, error) {
	var names []string
	if err := s.db.SelectContext(ctx, &names, "SELECT name FROM vaults ORDER BY name"); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRemote, err)
	}
	return names, nil
}

func (s *SQLiteVault) SecretURI(vaultID, name string) string {
	return fmt.Sprintf("vault://%s/certificates/%s", vaultID, name)
}

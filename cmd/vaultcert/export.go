package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sensiblebit/vaultcert"
)

var (
	exportFormat   string
	exportOutFile  string
	exportPassword string
	exportWithKey  bool
)

var exportCmd = &cobra.Command{
	Use:   "export <name>",
	Short: "Export the latest version of a vault certificate",
	Long: `Export the stored bundle in another format. PEM output holds the chain
(and the key when --with-key is set); pfx and jks re-encode the bundle under
the supplied password.`,
	Example: `  vaultcert export web-tls
  vaultcert export web-tls --format pem --with-key -o site.pem
  vaultcert export web-tls --format jks --password changeit -o site.jks`,
	Args: cobra.ExactArgs(1),
	RunE: runExport,
}

func init() {
	exportCmd.Flags().StringVar(&exportFormat, "format", "pem", "Output format: pem, pfx, jks")
	exportCmd.Flags().StringVarP(&exportOutFile, "out", "o", "", "Output file (default: stdout)")
	exportCmd.Flags().StringVarP(&exportPassword, "password", "p", "", "Password for pfx/jks output (default: the stored bundle password)")
	exportCmd.Flags().BoolVar(&exportWithKey, "with-key", false, "Include the private key in PEM output")
}

func runExport(cmd *cobra.Command, args []string) error {
	vaultID, err := resolveVault()
	if err != nil {
		return err
	}
	pfxData, storedPassword, err := theApp.vault.GetCertificateData(cmd.Context(), vaultID, args[0])
	if err != nil {
		return runErr(err)
	}

	key, leaf, caCerts, err := vaultcert.DecodePKCS12(pfxData, storedPassword)
	if err != nil {
		return runErr(fmt.Errorf("opening stored bundle: %w", err))
	}

	password := exportPassword
	if password == "" {
		password = storedPassword
	}

	var out []byte
	switch strings.ToLower(exportFormat) {
	case "pem":
		var buf strings.Builder
		buf.WriteString(vaultcert.CertToPEM(leaf))
		for _, ca := range caCerts {
			buf.WriteString(vaultcert.CertToPEM(ca))
		}
		if exportWithKey {
			keyPEM, err := vaultcert.MarshalPrivateKeyToPEM(key)
			if err != nil {
				return err
			}
			buf.WriteString(keyPEM)
		}
		out = []byte(buf.String())
	case "pfx", "p12":
		out, err = vaultcert.EncodePKCS12(key, leaf, caCerts, password)
		if err != nil {
			return err
		}
	case "jks":
		out, err = vaultcert.EncodeJKS(key, leaf, caCerts, password)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("unknown export format %q", exportFormat)
	}

	if exportOutFile == "" {
		_, err = os.Stdout.Write(out)
		return err
	}
	if err := os.WriteFile(exportOutFile, out, 0600); err != nil {
		return fmt.Errorf("writing %s: %w", exportOutFile, err)
	}
	fmt.Printf("Wrote %s (%d bytes)\n", exportOutFile, len(out))
	return nil
}

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/sensiblebit/vaultcert/internal/pipeline"
)

var (
	importMaterial  string
	importKeyPath   string
	importKey       string
	importPassword  string
	importHint      string
	importChainOnly bool
	importExtras    []string
)

var importCmd = &cobra.Command{
	Use:   "import <name> [file]",
	Short: "Import certificate material into the vault",
	Long: `Normalize certificate material and import it as a password-protected
PKCS#12 bundle. Accepts PEM, DER, PKCS#7, or PKCS#12 input, inline or from a
file under the configured allowed directory. The format is detected from the
content; a filename hint only reorders detection.

Re-importing the same certificate is a no-op: the vault's latest version is
compared by thumbprint before anything is written.`,
	Example: `  vaultcert import web-tls ./certs/site.pem
  vaultcert import web-tls ./certs/site.pfx --password s3cret
  vaultcert import ca-bundle ./certs/chain.p7b --chain-only
  vaultcert import web-tls ./certs/site.crt --key ./certs/site.key`,
	Args: cobra.RangeArgs(1, 2),
	RunE: runImport,
}

func init() {
	importCmd.Flags().StringVar(&importMaterial, "material", "", "Inline certificate material (text or base64)")
	importCmd.Flags().StringVar(&importKeyPath, "key", "", "Separate private key file (PEM or DER)")
	importCmd.Flags().StringVar(&importKey, "key-material", "", "Inline private key material (PEM)")
	importCmd.Flags().StringVarP(&importPassword, "password", "p", "", "Container password; tried once, never guessed")
	importCmd.Flags().StringVar(&importHint, "hint", "", "Filename or extension hint for format detection")
	importCmd.Flags().BoolVar(&importChainOnly, "chain-only", false, "Accept key-less material as a trust bundle")
	importCmd.Flags().StringArrayVar(&importExtras, "intermediate", nil, "Extra intermediate file (PEM), repeatable")
}

func runImport(cmd *cobra.Command, args []string) error {
	req := &pipeline.ImportRequest{
		VaultID:   vaultFlag,
		CertName:  args[0],
		Material:  importMaterial,
		Key:       importKey,
		KeyPath:   importKeyPath,
		Password:  importPassword,
		Hint:      importHint,
		ChainOnly: importChainOnly,
	}
	if len(args) == 2 {
		req.Path = args[1]
	}
	for _, path := range importExtras {
		data, err := theApp.guardedRead(path)
		if err != nil {
			return runErr(err)
		}
		req.Intermediates = append(req.Intermediates, string(data))
	}

	result, err := theApp.importer.Import(cmd.Context(), req)
	if err != nil {
		return runErr(err)
	}

	fmt.Printf("Certificate %s %s in vault %s\n", result.Name, result.Disposition, result.VaultID)
	fmt.Printf("  Thumbprint: %s\n", result.Thumbprint)
	fmt.Printf("  Version:    %s\n", result.Version)
	fmt.Printf("  Expires:    %s\n", result.Expires.Format("2006-01-02"))
	if result.GeneratedPassword != "" {
		fmt.Printf("  Bundle password (generated): %s\n", result.GeneratedPassword)
	}
	if result.RootMissing {
		if result.KnownRootIssuer {
			fmt.Println("  Note: root omitted, issuer is a known public CA")
		} else {
			fmt.Println("  Note: chain does not terminate at a stored root")
		}
	}
	return nil
}

// guardedRead reads a file through the sandbox guard.
func (a *app) guardedRead(path string) ([]byte, error) {
	if a.guard == nil {
		return nil, fmt.Errorf("path-based input is disabled: no allowed directory configured")
	}
	return a.guard.ReadFile(path)
}

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/sensiblebit/vaultcert"
	"github.com/sensiblebit/vaultcert/internal/pipeline"
)

var inspectPassword string

var inspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Detect and describe certificate material without importing it",
	Long: `Run format detection and chain assembly on a local file and print what an
import would see. Nothing is written to any vault.`,
	Args: cobra.ExactArgs(1),
	RunE: runInspect,
}

func init() {
	inspectCmd.Flags().StringVarP(&inspectPassword, "password", "p", "", "Container password")
}

func runInspect(cmd *cobra.Command, args []string) error {
	data, err := inspectRead(args[0])
	if err != nil {
		return runErr(err)
	}

	format, parseData, err := pipeline.Detect(data, filepath.Base(args[0]))
	if err != nil {
		return runErr(err)
	}
	fmt.Printf("Format: %s\n", format)

	material, err := pipeline.Parse(format, parseData, inspectPassword)
	if err != nil {
		return runErr(err)
	}
	fmt.Printf("Certificates: %d\n", len(material.Certs))
	if material.Key != nil {
		fmt.Printf("Private key: %s\n", vaultcert.KeyAlgorithmName(material.Key))
	} else {
		fmt.Println("Private key: none")
	}

	chain, err := pipeline.Assemble(material)
	if err != nil {
		return runErr(err)
	}
	fmt.Println("Chain:")
	for i, cert := range chain.Certs {
		fmt.Printf("  %d. %-12s %s\n", i+1, vaultcert.CertificateRole(cert), cert.Subject.CommonName)
		fmt.Printf("     Thumbprint: %s\n", vaultcert.Thumbprint(cert))
		fmt.Printf("     SHA-256:    %s\n", vaultcert.FingerprintSHA256(cert))
		fmt.Printf("     Expires:    %s\n", cert.NotAfter.Format("2006-01-02"))
	}
	if chain.RootMissing {
		if chain.KnownRootIssuer {
			fmt.Println("Root: omitted, issuer is a known public CA")
		} else {
			fmt.Println("Root: not present in submission")
		}
	}
	return nil
}

// inspectRead honors the configured allowed directory; without one the
// command reads anywhere, since nothing is written to a vault.
func inspectRead(path string) ([]byte, error) {
	if theApp != nil && theApp.guard != nil {
		return theApp.guard.ReadFile(path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

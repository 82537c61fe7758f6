package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var certCmd = &cobra.Command{
	Use:   "cert",
	Short: "Manage vault certificates",
}

var certListCmd = &cobra.Command{
	Use:   "list",
	Short: "List certificates in the vault",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		vaultID, err := resolveVault()
		if err != nil {
			return err
		}
		certs, err := theApp.vault.ListCertificates(cmd.Context(), vaultID)
		if err != nil {
			return runErr(err)
		}
		for _, cv := range certs {
			fmt.Printf("%-30s %s  expires %s\n", cv.Name, cv.Thumbprint, cv.Expires.Format("2006-01-02"))
		}
		return nil
	},
}

var certGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Show the latest version of a certificate",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vaultID, err := resolveVault()
		if err != nil {
			return err
		}
		cv, err := theApp.vault.GetCertificate(cmd.Context(), vaultID, args[0])
		if err != nil {
			return runErr(err)
		}
		fmt.Printf("Name:       %s\n", cv.Name)
		fmt.Printf("Version:    %s\n", cv.Version)
		fmt.Printf("Thumbprint: %s\n", cv.Thumbprint)
		fmt.Printf("Expires:    %s\n", cv.Expires.Format("2006-01-02 15:04:05 MST"))
		fmt.Printf("Created:    %s\n", cv.Created.Format("2006-01-02 15:04:05 MST"))
		return nil
	},
}

var certDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a certificate and all of its versions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vaultID, err := resolveVault()
		if err != nil {
			return err
		}
		if err := theApp.vault.DeleteCertificate(cmd.Context(), vaultID, args[0]); err != nil {
			return runErr(err)
		}
		fmt.Printf("Deleted certificate %s from vault %s\n", args[0], vaultID)
		return nil
	},
}

func init() {
	certCmd.AddCommand(certListCmd)
	certCmd.AddCommand(certGetCmd)
	certCmd.AddCommand(certDeleteCmd)
}

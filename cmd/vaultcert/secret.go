package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var secretCmd = &cobra.Command{
	Use:   "secret",
	Short: "Manage vault secrets",
}

var secretSetCmd = &cobra.Command{
	Use:   "set <name> <value>",
	Short: "Store a secret value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		vaultID, err := resolveVault()
		if err != nil {
			return err
		}
		sec, err := theApp.vault.SetSecret(cmd.Context(), vaultID, args[0], args[1])
		if err != nil {
			return runErr(err)
		}
		fmt.Printf("Stored secret %s version %s in vault %s\n", sec.Name, sec.Version, vaultID)
		return nil
	},
}

var secretGetCmd = &cobra.Command{
	Use:   "get <name>",
	Short: "Retrieve a secret value",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vaultID, err := resolveVault()
		if err != nil {
			return err
		}
		sec, err := theApp.vault.GetSecret(cmd.Context(), vaultID, args[0])
		if err != nil {
			return runErr(err)
		}
		fmt.Println(sec.Value)
		return nil
	},
}

var secretListCmd = &cobra.Command{
	Use:   "list",
	Short: "List secret names (values are never listed)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		vaultID, err := resolveVault()
		if err != nil {
			return err
		}
		secrets, err := theApp.vault.ListSecrets(cmd.Context(), vaultID)
		if err != nil {
			return runErr(err)
		}
		for _, sec := range secrets {
			fmt.Printf("%-30s version %s\n", sec.Name, sec.Version)
		}
		return nil
	},
}

var secretDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Delete a secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vaultID, err := resolveVault()
		if err != nil {
			return err
		}
		if err := theApp.vault.DeleteSecret(cmd.Context(), vaultID, args[0]); err != nil {
			return runErr(err)
		}
		fmt.Printf("Deleted secret %s from vault %s\n", args[0], vaultID)
		return nil
	},
}

func init() {
	secretCmd.AddCommand(secretSetCmd)
	secretCmd.AddCommand(secretGetCmd)
	secretCmd.AddCommand(secretListCmd)
	secretCmd.AddCommand(secretDeleteCmd)
}

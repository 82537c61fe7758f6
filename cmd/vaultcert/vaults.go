package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var vaultsCmd = &cobra.Command{
	Use:   "vaults",
	Short: "List reachable vaults",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		names, err := theApp.vault.ListVaults(cmd.Context())
		if err != nil {
			return runErr(err)
		}
		for _, name := range names {
			fmt.Println(name)
		}
		return nil
	},
}

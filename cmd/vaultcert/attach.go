package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var gatewayIDFlag string

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Manage edge-gateway certificate attachments",
}

// targetGateway picks the gateway from the flag or the config.
func targetGateway() (string, error) {
	if gatewayIDFlag != "" {
		return gatewayIDFlag, nil
	}
	if theApp.cfg.Gateway.ID != "" {
		return theApp.cfg.Gateway.ID, nil
	}
	return "default", nil
}

var gatewayAttachCmd = &cobra.Command{
	Use:   "attach <cert-name>",
	Short: "Attach a vault certificate to the gateway",
	Long: `Point a gateway listener certificate at a vault certificate. The gateway
stores the version-less secret reference, so rotated versions are picked up
on its next TLS refresh without another attach.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		vaultID, err := resolveVault()
		if err != nil {
			return err
		}
		gatewayID, err := targetGateway()
		if err != nil {
			return err
		}

		// The certificate must exist before the gateway references it.
		if _, err := theApp.vault.GetCertificate(cmd.Context(), vaultID, args[0]); err != nil {
			return runErr(err)
		}

		secretID := theApp.vault.SecretURI(vaultID, args[0])
		action, att, err := theApp.gateway.Attach(cmd.Context(), gatewayID, args[0], secretID)
		if err != nil {
			return runErr(err)
		}
		fmt.Printf("Certificate %s %s on gateway %s\n", att.Name, action, gatewayID)
		fmt.Printf("  Secret: %s\n", att.SecretID)
		return nil
	},
}

var gatewayListCmd = &cobra.Command{
	Use:   "list",
	Short: "List gateway certificate attachments",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		gatewayID, err := targetGateway()
		if err != nil {
			return err
		}
		atts, err := theApp.gateway.List(cmd.Context(), gatewayID)
		if err != nil {
			return runErr(err)
		}
		for _, att := range atts {
			fmt.Printf("%-30s %s\n", att.Name, att.SecretID)
		}
		return nil
	},
}

var gatewayRemoveCmd = &cobra.Command{
	Use:   "remove <cert-name>",
	Short: "Remove a gateway certificate attachment",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		gatewayID, err := targetGateway()
		if err != nil {
			return err
		}
		if err := theApp.gateway.Remove(cmd.Context(), gatewayID, args[0]); err != nil {
			return runErr(err)
		}
		fmt.Printf("Removed certificate %s from gateway %s\n", args[0], gatewayID)
		return nil
	},
}

func init() {
	gatewayCmd.PersistentFlags().StringVarP(&gatewayIDFlag, "gateway", "g", "", "Target gateway (overrides the configured default)")
	gatewayCmd.AddCommand(gatewayAttachCmd)
	gatewayCmd.AddCommand(gatewayListCmd)
	gatewayCmd.AddCommand(gatewayRemoveCmd)
}

package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/sensiblebit/vaultcert/internal"
	"github.com/sensiblebit/vaultcert/internal/gateway"
	"github.com/sensiblebit/vaultcert/internal/pipeline"
	"github.com/sensiblebit/vaultcert/internal/vault"
)

var (
	logLevel   string
	configPath string
	vaultFlag  string
)

// app holds the wired collaborators for the running command.
type app struct {
	cfg      *internal.Config
	vault    vault.Client
	gateway  gateway.Client
	session  *internal.Session
	guard    *internal.PathGuard
	importer *pipeline.Importer
}

var theApp *app

var rootCmd = &cobra.Command{
	Use:   "vaultcert",
	Short: "Certificate vault management tool",
	Long: "Normalize TLS/SSL certificates and keys into password-protected PKCS#12\n" +
		"bundles, import them into a secret vault, and attach them to edge gateways.",
	SilenceUsage:      true,
	PersistentPreRunE: setupApp,
}

func init() {
	// Accept underscore spellings of flag names from scripts.
	rootCmd.SetGlobalNormalizationFunc(func(f *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	rootCmd.PersistentFlags().StringVarP(&logLevel, "log-level", "l", "info", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&vaultFlag, "vault", "", "Target vault (overrides the configured default)")

	rootCmd.AddCommand(vaultsCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(certCmd)
	rootCmd.AddCommand(secretCmd)
	rootCmd.AddCommand(gatewayCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(inspectCmd)
}

func setupApp(cmd *cobra.Command, args []string) error {
	internal.SetupLogger(logLevel)

	cfg := &internal.Config{}
	if configPath != "" {
		loaded, err := internal.LoadConfig(configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	} else if err := cfg.Validate(); err != nil {
		return err
	}

	a := &app{cfg: cfg, session: internal.NewSession()}

	switch cfg.Vault.Backend {
	case "sqlite":
		db, err := vault.OpenSQLiteVault(cfg.Vault.Path, defaultVaultNames(cfg)...)
		if err != nil {
			return err
		}
		a.vault = db
	case "hashicorp":
		token := cfg.Vault.Token
		if env := os.Getenv("VAULT_TOKEN"); env != "" {
			token = env
		}
		a.vault = vault.NewHashiVault(cfg.Vault.Address, token, cfg.Vault.Mount)
	default:
		a.vault = vault.NewMemVault(defaultVaultNames(cfg)...)
	}

	a.gateway = gateway.NewMemGateway(gatewayIDs(cfg)...)

	if cfg.AllowedDir != "" {
		guard, err := internal.NewPathGuard(cfg.AllowedDir)
		if err != nil {
			return fmt.Errorf("configuring allowed directory: %w", err)
		}
		a.guard = guard
	}

	if vaultFlag != "" {
		a.session.Select(vaultFlag)
	} else if cfg.Vault.Default != "" {
		a.session.Select(cfg.Vault.Default)
	}

	a.importer = &pipeline.Importer{Vault: a.vault, Guard: a.guard, Session: a.session}
	theApp = a
	return nil
}

func defaultVaultNames(cfg *internal.Config) []string {
	if cfg.Vault.Default != "" {
		return []string{cfg.Vault.Default}
	}
	return []string{"default"}
}

func gatewayIDs(cfg *internal.Config) []string {
	if cfg.Gateway.ID != "" {
		return []string{cfg.Gateway.ID}
	}
	return []string{"default"}
}

// resolveVault picks the target vault from the flag or the session.
func resolveVault() (string, error) {
	return theApp.session.Resolve(vaultFlag)
}

// runErr sanitizes collaborator error text so rejected material is never
// echoed back to the terminal.
func runErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s", internal.SanitizeErrorText(err.Error()))
}

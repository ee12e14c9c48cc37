package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"ordito/internal/domain"
	"ordito/internal/infra/config"
)

const redacted = "<redacted>"

func newConfigCmd(opts *globalOptions) *cobra.Command {
	cfgCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect the configuration and encrypt secrets",
	}

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Print the config file in use",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), resolveConfigPath(opts.configPath))
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(resolveConfigPath(opts.configPath))
			if err != nil {
				return fmt.Errorf("config: %w", err)
			}
			redact(cfg)
			out, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	})

	cfgCmd.AddCommand(&cobra.Command{
		Use:   "encrypt [value]",
		Short: "Encrypt a gateway token for the config file",
		Long: `Encrypt a value with the passphrase in ORDITO_CONFIG_KEY and print it
with its "enc:" prefix. Paste the result as gateway.token or as a token
under gateway.auth.tokens; ordito decrypts it at load time when the same
ORDITO_CONFIG_KEY is set. Without an argument the value is read from stdin.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			passphrase := os.Getenv("ORDITO_CONFIG_KEY")
			if passphrase == "" {
				return fmt.Errorf("ORDITO_CONFIG_KEY is not set: %w", domain.ErrInvalidInput)
			}

			var value string
			if len(args) == 1 {
				value = args[0]
			} else {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("read value: %w", err)
				}
				value = strings.TrimRight(line, "\r\n")
			}
			if value == "" {
				return fmt.Errorf("empty value: %w", domain.ErrInvalidInput)
			}

			encrypted, err := config.EncryptValue(value, passphrase)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "enc:"+encrypted)
			return nil
		},
	})

	return cfgCmd
}

// redact blanks every secret in cfg.
func redact(cfg *config.Config) {
	if cfg.Gateway.Token != "" {
		cfg.Gateway.Token = redacted
	}
	for i := range cfg.Gateway.Auth.Tokens {
		cfg.Gateway.Auth.Tokens[i].Token = redacted
	}
}

package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"msgboard/crypto"
)

func newKeysCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "keys",
		Short: "Manage local account keys",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "new <name>",
		Short: "Generate a new account key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(opts)
			if err != nil {
				return err
			}
			key, created, err := crypto.EnsureAccountKey(cfg.KeysDir, args[0])
			if err != nil {
				return err
			}
			if !created {
				return errors.New("key " + args[0] + " already exists")
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", args[0], crypto.PrincipalOf(key))
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "show [name]",
		Short: "Show the principal of an account key (default: --key)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name := opts.key
			if len(args) == 1 {
				name = args[0]
			}
			cfg, _, err := loadConfig(opts)
			if err != nil {
				return err
			}
			key, err := crypto.LoadAccountKey(cfg.KeysDir, name)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", name, crypto.PrincipalOf(key))
			return err
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List account keys",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := loadConfig(opts)
			if err != nil {
				return err
			}
			names, err := crypto.ListAccountKeys(cfg.KeysDir)
			if err != nil {
				return err
			}
			for _, name := range names {
				key, err := crypto.LoadAccountKey(cfg.KeysDir, name)
				if err != nil {
					return err
				}
				if _, err := fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\n", name, crypto.PrincipalOf(key)); err != nil {
					return err
				}
			}
			return nil
		},
	})

	return cmd
}

// resolveAccount accepts a principal or key:<name> for a local key.
func resolveAccount(opts *rootOptions, account string) (string, error) {
	name, ok := strings.CutPrefix(account, "key:")
	if !ok || name == "" {
		return account, nil
	}
	cfg, _, err := loadConfig(opts)
	if err != nil {
		return "", err
	}
	key, err := crypto.LoadAccountKey(cfg.KeysDir, name)
	if err != nil {
		return "", err
	}
	return crypto.PrincipalOf(key), nil
}

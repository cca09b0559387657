package main

import (
	"fmt"

	"github.com/openmined/padsync/internal/utils"
	"github.com/spf13/cobra"
)

const tokenLength = 32

func init() {
	rootCmd.AddCommand(newConfigCmd())
}

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			write, _ := cmd.Flags().GetBool("write")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			cmd.SilenceUsage = true

			if write {
				if cfg.HTTP.Token == "" {
					token, err := utils.NewToken(tokenLength)
					if err != nil {
						return err
					}
					cfg.HTTP.Token = token
				}
				if err := cfg.Save(cfg.Path); err != nil {
					return fmt.Errorf("write config: %w", err)
				}
				fmt.Fprintln(cmd.ErrOrStderr(), green.Render("wrote "+cfg.Path))
			}

			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), gray.Render("# "+cfg.Path))
			_, err = fmt.Fprint(cmd.OutOrStdout(), out)
			return err
		},
	}
	cmd.Flags().Bool("write", false, "save the effective config, generating an API token if none is set")
	return cmd
}

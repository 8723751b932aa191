package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/irdrive/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}

	cmd.AddCommand(newConfigShowCmd())
	cmd.AddCommand(newConfigCheckCmd())

	return cmd
}

func newConfigShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Display effective configuration after all overrides",
		Long:  "Display the effective configuration. Secrets are masked.",
		Args:  cobra.NoArgs,
		RunE:  runConfigShow,
	}
}

func newConfigCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Validation already ran in the root pre-run.
			cc := mustCLIContext(cmd.Context())
			cc.Statusf("Configuration OK (%s)\n", cc.CfgPath)

			return nil
		},
	}
}

func runConfigShow(cmd *cobra.Command, _ []string) error {
	cc := mustCLIContext(cmd.Context())

	if cc.Flags.JSON {
		return printJSON(os.Stdout, cc.Cfg.Redacted())
	}

	return config.RenderEffective(cc.Cfg, cc.CfgPath, os.Stdout)
}

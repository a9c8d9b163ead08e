package cmd

import (
	"fmt"

	"github.com/MeKo-Tech/evalocr/internal/config"
	"github.com/spf13/cobra"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and create configuration files",
		Long: `Configuration is read from evalocr.yaml in the search paths, from
EVALOCR_* environment variables (for example EVALOCR_SERVER_PORT) and from
command-line flags, in increasing order of precedence. A .env file in the
working directory is loaded into the environment first.`,
	}

	initCmd := &cobra.Command{
		Use:   "init [file]",
		Short: "Write a configuration file with the default values",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			file := config.DefaultConfigFile
			if len(args) == 1 {
				file = args[0]
			}
			if err := config.GenerateDefaultConfigFile(file); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", file)
			return nil
		},
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration with credentials masked",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := a.config.Redacted()
			switch format, _ := cmd.Flags().GetString("format"); format {
			case outputFormatJSON:
				return writeJSON(cmd.OutOrStdout(), cfg)
			case "yaml":
			default:
				return fmt.Errorf("invalid output format: %s (must be one of: yaml, json)", format)
			}
			out, err := cfg.YAML()
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
	showCmd.Flags().StringP("format", "f", "yaml", "output format: yaml or json")

	pathCmd := &cobra.Command{
		Use:   "path",
		Short: "Show which configuration file is used and where files are searched",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			a.loader.PrintConfigInfo(cmd.OutOrStdout())
		},
	}

	cmd.AddCommand(initCmd, showCmd, pathCmd)
	return cmd
}

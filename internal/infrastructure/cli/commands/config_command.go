package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/doeshing/mmrl-go/internal/app"
	configapp "github.com/doeshing/mmrl-go/internal/application/config"
	"github.com/doeshing/mmrl-go/internal/infrastructure/cli/helpers"
	configinfra "github.com/doeshing/mmrl-go/internal/infrastructure/config"
)

// NewConfigCommand creates the config command with all subcommands
func NewConfigCommand(container *app.Container) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect mmrl configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd, container)
		},
	}

	configCmd.AddCommand(
		newConfigPathCommand(container),
		newConfigShowCommand(container),
		newConfigGetCommand(container),
		newConfigValidateCommand(container),
	)

	return configCmd
}

// newConfigPathCommand creates the 'config path' subcommand
func newConfigPathCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := helpers.GetConfigLoader(container)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), loader.Path())
			return nil
		},
	}
}

// newConfigShowCommand creates the 'config show' subcommand
func newConfigShowCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigShow(cmd, container)
		},
	}
}

// newConfigGetCommand creates the 'config get' subcommand
func newConfigGetCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Get a configuration value by dotted key (e.g. webui.domain)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, err := helpers.LookupConfigValue(container.Config, args[0])
			if err != nil {
				return err
			}
			return printYAMLValue(cmd.OutOrStdout(), value)
		},
	}
}

// newConfigValidateCommand creates the 'config validate' subcommand
func newConfigValidateCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			loader, err := helpers.GetConfigLoader(container)
			if err != nil {
				return err
			}
			cfg, err := loader.Load(cmd.Context())
			if err != nil {
				return err
			}
			if err := configapp.Validate(cfg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), MsgConfigurationValid)
			return nil
		},
	}
}

func runConfigShow(cmd *cobra.Command, container *app.Container) error {
	data, err := configinfra.Marshal(container.Config)
	if err != nil {
		return err
	}
	_, err = cmd.OutOrStdout().Write(data)
	return err
}

func printYAMLValue(out io.Writer, value interface{}) error {
	switch v := value.(type) {
	case map[string]interface{}, []interface{}:
		data, err := yaml.Marshal(v)
		if err != nil {
			return err
		}
		_, err = out.Write(data)
		return err
	default:
		_, err := fmt.Fprintln(out, v)
		return err
	}
}

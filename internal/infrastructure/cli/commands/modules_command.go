package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/doeshing/mmrl-go/internal/app"
	"github.com/doeshing/mmrl-go/internal/domain"
	"github.com/doeshing/mmrl-go/internal/infrastructure/cli/helpers"
)

// NewModulesCommand creates the modules command with all subcommands
func NewModulesCommand(container *app.Container) *cobra.Command {
	modulesCmd := &cobra.Command{
		Use:     "modules",
		Aliases: []string{"module", "mod"},
		Short:   "List and manage installed modules",
	}

	modulesCmd.AddCommand(
		newModulesListCommand(container),
		newModulesSyncCommand(container),
		newModulesInfoCommand(container),
		newModulesStateCommand(container, "enable", "Enable a module", (*moduleActions).enable),
		newModulesStateCommand(container, "disable", "Disable a module", (*moduleActions).disable),
		newModulesStateCommand(container, "remove", "Mark a module for removal on next boot", (*moduleActions).remove),
		newModulesStateCommand(container, "restore", "Undo a pending removal", (*moduleActions).restore),
	)

	return modulesCmd
}

// newModulesListCommand creates the 'modules list' subcommand
func newModulesListCommand(container *app.Container) *cobra.Command {
	var (
		recorded bool
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List installed modules",
		RunE: func(cmd *cobra.Command, args []string) error {
			if container.ModuleService == nil {
				return errors.New(ErrModuleServiceUnavailable)
			}
			var (
				modules []domain.ModuleDescriptor
				err     error
			)
			if recorded {
				modules, err = container.ModuleService.Recorded(cmd.Context())
			} else {
				modules, err = container.ModuleService.List(cmd.Context())
			}
			if err != nil {
				return err
			}
			return displayModules(cmd, modules, asJSON)
		},
	}

	cmd.Flags().BoolVar(&recorded, "recorded", false, "Show the local database instead of reading the device")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print modules as JSON")
	return cmd
}

// newModulesSyncCommand creates the 'modules sync' subcommand
func newModulesSyncCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Refresh the local database from the modules directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			if container.ModuleService == nil {
				return errors.New(ErrModuleServiceUnavailable)
			}
			modules, err := container.ModuleService.Sync(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Synced %d modules\n", len(modules))
			return nil
		},
	}
}

// newModulesInfoCommand creates the 'modules info' subcommand
func newModulesInfoCommand(container *app.Container) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "info <id>",
		Short: "Show an installed module's metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			module, err := container.Modules.InstalledModuleInfo(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return helpers.PrintJSON(cmd.OutOrStdout(), module)
			}
			helpers.PrintModule(cmd.OutOrStdout(), module)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the module as JSON")
	return cmd
}

type moduleActions struct {
	container *app.Container
}

func (a *moduleActions) enable(ctx context.Context, id string) (domain.ModuleDescriptor, error) {
	return a.container.ModuleService.Enable(ctx, id)
}

func (a *moduleActions) disable(ctx context.Context, id string) (domain.ModuleDescriptor, error) {
	return a.container.ModuleService.Disable(ctx, id)
}

func (a *moduleActions) remove(ctx context.Context, id string) (domain.ModuleDescriptor, error) {
	return a.container.ModuleService.Remove(ctx, id)
}

func (a *moduleActions) restore(ctx context.Context, id string) (domain.ModuleDescriptor, error) {
	return a.container.ModuleService.Restore(ctx, id)
}

// newModulesStateCommand creates one state change subcommand
func newModulesStateCommand(
	container *app.Container,
	use, short string,
	action func(*moduleActions, context.Context, string) (domain.ModuleDescriptor, error),
) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if container.ModuleService == nil {
				return errors.New(ErrModuleServiceUnavailable)
			}
			module, err := action(&moduleActions{container: container}, cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("%s %s: %w", use, args[0], err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", module.ID, helpers.StateLabel(module.State))
			return nil
		},
	}
}

func displayModules(cmd *cobra.Command, modules []domain.ModuleDescriptor, asJSON bool) error {
	out := cmd.OutOrStdout()
	if asJSON {
		if modules == nil {
			modules = []domain.ModuleDescriptor{}
		}
		return helpers.PrintJSON(out, modules)
	}
	if len(modules) == 0 {
		fmt.Fprintln(out, MsgNoModules)
		return nil
	}
	return helpers.PrintModules(out, modules)
}

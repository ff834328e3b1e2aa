package cli

import (
	"context"
	"errors"
	"os"

	"github.com/gookit/color"
	"github.com/spf13/cobra"

	"github.com/doeshing/mmrl-go/internal/app"
	"github.com/doeshing/mmrl-go/internal/infrastructure/cli/commands"
)

// Options holds CLI-level configuration.
type Options struct {
	Verbose    bool
	ConfigPath string
}

// NewRootCmd wires the cobra root command. The container is built once flags
// are parsed, so --config is honoured.
func NewRootCmd(ctx context.Context, opts Options) *cobra.Command {
	container := &app.Container{}
	built := false
	noColor := false

	root := &cobra.Command{
		Use:   "mmrl",
		Short: "mmrl - root module manager",
		Long:  "mmrl installs and manages Magisk, KernelSU and APatch modules and serves their web interfaces.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if noColor || os.Getenv("NO_COLOR") != "" {
				color.Disable()
			}
			if cmd.Annotations[commands.SkipContainerAnnotation] != "" {
				return nil
			}
			c, err := app.BuildContainer(cmd.Context(), app.Options{
				ConfigPath: opts.ConfigPath,
				Verbose:    opts.Verbose,
			})
			if err != nil {
				return err
			}
			*container = *c
			built = true
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if !built {
				return nil
			}
			built = false
			return container.Close()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&opts.ConfigPath, "config", opts.ConfigPath, "Config file (default ~/.mmrl/config.yaml, or $MMRL_CONFIG)")
	root.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", opts.Verbose, "Enable debug logging")
	root.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	root.AddCommand(
		commands.NewDetectCommand(container),
		commands.NewInstallCommand(container),
		commands.NewModulesCommand(container),
		commands.NewWebUICommand(container),
		commands.NewShellCommand(container),
		commands.NewVersionsCommand(container),
		commands.NewHistoryCommand(container),
		commands.NewStagingCommand(container),
		commands.NewDoctorCommand(container),
		commands.NewConfigCommand(container),
		commands.NewVersionCommand(),
	)
	root.SetContext(ctx)
	return root
}

// Execute runs the root command and always releases the container, even when
// the command itself fails.
func Execute(ctx context.Context, opts Options) error {
	root := NewRootCmd(ctx, opts)
	err := root.ExecuteContext(ctx)
	if err != nil {
		// cobra skips post-run hooks after a RunE error.
		if closeErr := root.PersistentPostRunE(root, nil); closeErr != nil {
			err = errors.Join(err, closeErr)
		}
	}
	return err
}

package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/doeshing/mmrl-go/internal/app"
)

// NewStagingCommand creates the staging command with all subcommands
func NewStagingCommand(container *app.Container) *cobra.Command {
	stagingCmd := &cobra.Command{
		Use:   "staging",
		Short: "Inspect the private archive staging directory",
	}

	stagingCmd.AddCommand(
		&cobra.Command{
			Use:   "list",
			Short: "List staged archives",
			RunE: func(cmd *cobra.Command, args []string) error {
				entries, err := container.Staging.Entries()
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Staging directory: %s\n", container.Staging.Path())
				for _, e := range entries {
					fmt.Fprintf(out, "  %s\n", e)
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "clear",
			Short: "Remove staged archives that are not in use",
			RunE: func(cmd *cobra.Command, args []string) error {
				n, err := container.Staging.Clear()
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d staged archives\n", n)
				return nil
			},
		},
	)

	return stagingCmd
}

package commands

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gookit/color"
	"github.com/spf13/cobra"

	"github.com/doeshing/mmrl-go/internal/app"
	"github.com/doeshing/mmrl-go/internal/domain"
)

// NewShellCommand creates the shell command with all subcommands
func NewShellCommand(container *app.Container) *cobra.Command {
	shellCmd := &cobra.Command{
		Use:   "shell",
		Short: "Run commands in the privileged shell",
	}

	shellCmd.AddCommand(newShellExecCommand(container))
	return shellCmd
}

// newShellExecCommand creates the 'shell exec' subcommand
func newShellExecCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "exec <command>...",
		Short: "Run a command as root and stream its output",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if container.Shells == nil {
				return errors.New(ErrShellUnavailable)
			}
			shell, err := container.Shells.Shell(cmd.Context())
			if err != nil {
				return err
			}

			out, errOut := cmd.OutOrStdout(), cmd.ErrOrStderr()
			result, err := shell.Run(cmd.Context(), strings.Join(args, " "), domain.LineHandler{
				Stdout: func(line string) { fmt.Fprintln(out, line) },
				Stderr: func(line string) { fmt.Fprintln(errOut, color.Warn.Sprint(line)) },
			})
			if err != nil {
				return err
			}
			if !result.Success() {
				return &domain.CommandError{Command: result.Command, ExitCode: result.ExitCode}
			}
			return nil
		},
	}
}

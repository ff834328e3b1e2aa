package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/doeshing/mmrl-go/internal/app"
	"github.com/doeshing/mmrl-go/internal/application/console"
	"github.com/doeshing/mmrl-go/internal/domain"
	"github.com/doeshing/mmrl-go/internal/infrastructure/cli/helpers"
)

type installFlags struct {
	repoURL    string
	clear      bool
	deleteZip  bool
	developer  bool
	noProgress bool
	exportDir  string
	compress   string
}

// NewInstallCommand creates the install command
func NewInstallCommand(container *app.Container) *cobra.Command {
	var flags installFlags

	cmd := &cobra.Command{
		Use:   "install <archive>...",
		Short: "Install one or more module archives",
		Long: `Install module archives in order. Each archive may be a local path,
a file:// URI or an http(s) URL. Archives that root cannot read directly are
copied into a private staging directory first.

The batch stops at the first failing archive.

Example:
  mmrl install ./module.zip
  mmrl install a.zip b.zip --export-logs ~/.mmrl/logs --compress xz`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInstall(cmd, container, args, flags)
		},
	}

	cmd.Flags().StringVar(&flags.repoURL, "repo-url", "", "Repository the archives come from")
	cmd.Flags().BoolVar(&flags.clear, "clear", false, "Clear the console before each archive of a multi-archive batch (default from config)")
	cmd.Flags().BoolVar(&flags.deleteZip, "delete-zip", false, "Delete the source archive after a successful install (default from config)")
	cmd.Flags().BoolVar(&flags.developer, "dev", false, "Print developer log lines (default from config)")
	cmd.Flags().BoolVar(&flags.noProgress, "no-progress", false, "Disable the copy progress bar")
	cmd.Flags().StringVar(&flags.exportDir, "export-logs", "", "Write the install log to this directory")
	cmd.Flags().StringVar(&flags.compress, "compress", "none", "Compression for exported logs (none|gz|xz)")
	return cmd
}

func runInstall(cmd *cobra.Command, container *app.Container, handles []string, flags installFlags) error {
	if container.InstallEngine == nil {
		return errors.New(ErrInstallEngineUnavailable)
	}
	compression, err := console.ParseCompression(flags.compress)
	if err != nil {
		return err
	}

	opts := container.Config.InstallOptions()
	if cmd.Flags().Changed("clear") {
		opts.ClearTerminalOnMultiple = flags.clear
	}
	if cmd.Flags().Changed("delete-zip") {
		opts.DeleteArchiveOnSuccess = flags.deleteZip
	}
	if cmd.Flags().Changed("dev") {
		opts.DeveloperLogging = flags.developer
	}

	req := domain.InstallRequest{Options: opts}
	for _, h := range handles {
		req.Archives = append(req.Archives, domain.Archive{Handle: h, RepoURL: flags.repoURL})
	}

	out := cmd.OutOrStdout()
	errOut := cmd.ErrOrStderr()
	withBars := !flags.noProgress && helpers.IsTerminal(errOut)

	engine := *container.InstallEngine
	if withBars {
		engine.Progress = helpers.BarProgress(errOut)
	}

	run, err := engine.Start(cmd.Context(), req)
	if err != nil {
		return err
	}

	renderer := helpers.NewConsoleRenderer(out, helpers.IsTerminal(out), withBars)
	result, err := renderer.Consume(cmd.Context(), run.Updates)
	if err != nil {
		// Interrupted while rendering; the archive in flight still completes.
		<-run.Done()
		result, _ = run.Wait(context.Background())
	}

	fmt.Fprintln(out)
	helpers.PrintInstallResult(out, result)
	run.Ack()

	if flags.exportDir != "" {
		path, err := console.ExportLogs(flags.exportDir, run.Logs(), compression, time.Now())
		if err != nil {
			return fmt.Errorf("export install log: %w", err)
		}
		fmt.Fprintf(out, "Log saved to %s\n", path)
	}

	if !result.Succeeded {
		return errors.New("installation failed")
	}
	return nil
}

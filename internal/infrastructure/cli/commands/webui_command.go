package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/doeshing/mmrl-go/internal/app"
	"github.com/doeshing/mmrl-go/internal/domain"
	"github.com/doeshing/mmrl-go/internal/infrastructure/security"
	"github.com/doeshing/mmrl-go/internal/infrastructure/webui"
)

// NewWebUICommand creates the webui command with all subcommands
func NewWebUICommand(container *app.Container) *cobra.Command {
	webuiCmd := &cobra.Command{
		Use:   "webui",
		Short: "Serve a module's web interface",
	}

	webuiCmd.AddCommand(
		newWebUIServeCommand(container),
		newWebUICheckURLCommand(container),
	)

	return webuiCmd
}

// newWebUIServeCommand creates the 'webui serve' subcommand
func newWebUIServeCommand(container *app.Container) *cobra.Command {
	var open bool

	cmd := &cobra.Command{
		Use:   "serve <module-id>",
		Short: "Serve <modules_dir>/<id>/webroot on a loopback address until interrupted",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return serveWebUI(cmd, container, args[0], open)
		},
	}

	cmd.Flags().BoolVar(&open, "open", false, "Open the entry page with the configured open command")
	return cmd
}

func serveWebUI(cmd *cobra.Command, container *app.Container, moduleID string, open bool) error {
	server, err := container.NewWebUIServer(moduleID)
	if err != nil {
		return err
	}
	if err := server.Start(); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Serving %s on %s\n", moduleID, server.URL())
	fmt.Fprintf(out, "Origin: https://%s/%s\n", container.Config.GetWebUIDomain(), webui.IndexFile)
	fmt.Fprintln(out, "Press Ctrl+C to stop")

	g, ctx := errgroup.WithContext(cmd.Context())

	// Files are read through the root shell; open it before the first request.
	g.Go(func() error {
		if _, err := container.Shells.Shell(ctx); err != nil {
			return fmt.Errorf("open root shell: %w", err)
		}
		return nil
	})

	if open {
		g.Go(func() error {
			return container.Opener.Open(ctx, server.URL())
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		return server.Stop()
	})

	err = g.Wait()
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// newWebUICheckURLCommand creates the 'webui check-url' subcommand
func newWebUICheckURLCommand(container *app.Container) *cobra.Command {
	var open bool

	cmd := &cobra.Command{
		Use:   "check-url <url>",
		Short: "Show how the web surface would handle a navigation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			guard := container.Navigation
			if !open {
				fmt.Fprintln(cmd.OutOrStdout(), guard.Classify(args[0]))
				return nil
			}
			decision, err := guard.Intercept(cmd.Context(), args[0])
			fmt.Fprintln(cmd.OutOrStdout(), decision)
			if decision == domain.NavigationExternal && !errors.Is(err, security.ErrExternalOpenFailed) {
				return nil
			}
			return err
		},
	}

	cmd.Flags().BoolVar(&open, "open", false, "Dispatch external URLs to the configured open command")
	return cmd
}

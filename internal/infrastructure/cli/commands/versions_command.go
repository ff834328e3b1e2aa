package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/doeshing/mmrl-go/internal/app"
	"github.com/doeshing/mmrl-go/internal/domain"
)

// NewVersionsCommand creates the versions command with all subcommands
func NewVersionsCommand(container *app.Container) *cobra.Command {
	versionsCmd := &cobra.Command{
		Use:   "versions",
		Short: "Manage the per-repository version cache",
	}

	versionsCmd.AddCommand(
		newVersionsListCommand(container),
		newVersionsImportCommand(container),
		newVersionsRemoveCommand(container),
	)

	return versionsCmd
}

// newVersionsListCommand creates the 'versions list' subcommand
func newVersionsListCommand(container *app.Container) *cobra.Command {
	var moduleID string

	cmd := &cobra.Command{
		Use:   "list <repo-url>",
		Short: "List cached versions of a repository",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if container.ModuleService == nil {
				return errors.New(ErrModuleServiceUnavailable)
			}
			items, err := container.ModuleService.CachedVersions(cmd.Context(), args[0], moduleID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(items) == 0 {
				fmt.Fprintln(out, MsgNoVersions)
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tVERSION\tCODE\tZIP")
			for _, item := range items {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", item.ModuleID, item.Version, item.VersionCode, item.ZipURL)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().StringVar(&moduleID, "module", "", "Only show versions of this module")
	return cmd
}

// newVersionsImportCommand creates the 'versions import' subcommand
func newVersionsImportCommand(container *app.Container) *cobra.Command {
	var repoURL string

	cmd := &cobra.Command{
		Use:   "import <file.json>",
		Short: "Insert version items from a JSON array, replacing existing rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if container.ModuleService == nil {
				return errors.New(ErrModuleServiceUnavailable)
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var items []domain.VersionItem
			if err := json.Unmarshal(data, &items); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}
			if repoURL != "" {
				for i := range items {
					items[i].RepoURL = repoURL
				}
			}
			if err := container.ModuleService.CacheVersions(cmd.Context(), items); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Cached %d versions\n", len(items))
			return nil
		},
	}

	cmd.Flags().StringVar(&repoURL, "repo-url", "", "Repository URL to assign to every item")
	return cmd
}

// newVersionsRemoveCommand creates the 'versions rm' subcommand
func newVersionsRemoveCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:     "rm <repo-url>",
		Aliases: []string{"remove"},
		Short:   "Delete every cached version of a repository",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if container.ModuleService == nil {
				return errors.New(ErrModuleServiceUnavailable)
			}
			if err := container.ModuleService.ForgetRepository(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed cached versions of %s\n", args[0])
			return nil
		},
	}
}

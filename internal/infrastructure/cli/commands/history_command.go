package commands

import (
	"errors"
	"fmt"
	"io"

	"github.com/gookit/color"
	"github.com/spf13/cobra"

	"github.com/doeshing/mmrl-go/internal/app"
)

// NewHistoryCommand creates the history command with all subcommands
func NewHistoryCommand(container *app.Container) *cobra.Command {
	var limit int

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect install history",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listHistoryEntries(cmd, container, limit)
		},
	}
	historyCmd.Flags().IntVar(&limit, "limit", DefaultHistoryLimit, "Max entries to show")

	historyCmd.AddCommand(
		newHistoryClearCommand(container),
		newHistoryExportCommand(container),
	)

	return historyCmd
}

// newHistoryClearCommand creates the 'history clear' subcommand
func newHistoryClearCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Clear install history",
		RunE: func(cmd *cobra.Command, args []string) error {
			if container.Store == nil {
				return errors.New(ErrHistoryStoreUnavailable)
			}
			if err := container.Store.ClearInstalls(cmd.Context()); err != nil {
				return fmt.Errorf("failed to clear history: %w", err)
			}
			return nil
		},
	}
}

// newHistoryExportCommand creates the 'history export' subcommand
func newHistoryExportCommand(container *app.Container) *cobra.Command {
	return &cobra.Command{
		Use:   "export <path>",
		Short: "Export install history to a JSONL file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if container.Store == nil {
				return errors.New(ErrHistoryStoreUnavailable)
			}
			if err := container.Store.ExportJSON(cmd.Context(), args[0]); err != nil {
				return fmt.Errorf("failed to export history to %s: %w", args[0], err)
			}
			return nil
		},
	}
}

// listHistoryEntries lists recent install attempts
func listHistoryEntries(cmd *cobra.Command, container *app.Container, limit int) error {
	if container.Store == nil {
		return errors.New(ErrHistoryStoreUnavailable)
	}

	records, err := container.Store.Installs(cmd.Context(), limit)
	if err != nil {
		return fmt.Errorf("failed to retrieve history records: %w", err)
	}

	out := cmd.OutOrStdout()
	if len(records) == 0 {
		fmt.Fprintln(out, MsgNoHistoryRecorded)
		return nil
	}
	for _, rec := range records {
		displayHistoryRecord(out, rec.Timestamp.Format(TimestampFormat), rec.Success, rec.ModuleID, rec.Version, rec.Backend, rec.Handle, rec.Error)
	}
	return nil
}

func displayHistoryRecord(out io.Writer, ts string, success bool, moduleID, version, backend, handle, errText string) {
	status := color.Success.Sprint("ok  ")
	if !success {
		status = color.Error.Sprint("fail")
	}
	if moduleID == "" {
		moduleID = "-"
	}
	fmt.Fprintf(out, "%s | %s | %s %s | %s | %s\n", ts, status, moduleID, version, backend, handle)
	if errText != "" {
		fmt.Fprintf(out, "    %s\n", errText)
	}
}

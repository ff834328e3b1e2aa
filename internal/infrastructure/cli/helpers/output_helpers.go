package helpers

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/gookit/color"

	"github.com/doeshing/mmrl-go/internal/domain"
)

// PrintJSON writes v as indented JSON.
func PrintJSON(out io.Writer, v interface{}) error {
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// PrintModules renders modules as an aligned table.
func PrintModules(out io.Writer, modules []domain.ModuleDescriptor) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tVERSION\tSTATE\tWEBUI\tNAME")
	for _, m := range modules {
		fmt.Fprintf(tw, "%s\t%s (%d)\t%s\t%s\t%s\n",
			m.ID, m.Version, m.VersionCode, StateLabel(m.State), yesNo(m.HasWebUI), m.DisplayName())
	}
	return tw.Flush()
}

// PrintModule renders a single module's details.
func PrintModule(out io.Writer, m domain.ModuleDescriptor) {
	fmt.Fprintf(out, "%s %s\n", color.Info.Sprint(m.DisplayName()), m.ID)
	fmt.Fprintf(out, "  Version: %s (%d)\n", m.Version, m.VersionCode)
	if m.Author != "" {
		fmt.Fprintf(out, "  Author:  %s\n", m.Author)
	}
	fmt.Fprintf(out, "  State:   %s\n", StateLabel(m.State))
	if m.Size > 0 {
		fmt.Fprintf(out, "  Size:    %s\n", humanize.Bytes(uint64(m.Size)))
	}
}

// StateLabel colors a module state.
func StateLabel(state domain.ModuleState) string {
	s := strings.ToLower(string(state))
	switch state {
	case domain.StateEnable:
		return color.Success.Sprint(s)
	case domain.StateDisable:
		return color.Gray.Sprint(s)
	case domain.StateRemove:
		return color.Error.Sprint(s)
	case domain.StateUpdate:
		return color.Warn.Sprint(s)
	default:
		return s
	}
}

// PrintInstallResult summarises a batch.
func PrintInstallResult(out io.Writer, result domain.BatchResult) {
	for _, r := range result.Results {
		name := r.Handle
		if r.Module != nil {
			name = r.Module.ID
		}
		if r.Succeeded() {
			fmt.Fprintf(out, "%s %s\n", color.Success.Sprint("OK"), name)
			continue
		}
		fmt.Fprintf(out, "%s %s (%s): %v\n", color.Error.Sprint("FAILED"), name, r.Phase, r.Err)
	}
	if result.Cancelled {
		fmt.Fprintln(out, color.Warn.Sprint("Batch cancelled"))
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

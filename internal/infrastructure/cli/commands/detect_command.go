package commands

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/doeshing/mmrl-go/internal/app"
	"github.com/doeshing/mmrl-go/internal/domain"
	"github.com/doeshing/mmrl-go/internal/infrastructure/cli/helpers"
)

// NewDetectCommand creates the detect command
func NewDetectCommand(container *app.Container) *cobra.Command {
	var (
		reinit bool
		asJSON bool
	)

	cmd := &cobra.Command{
		Use:   "detect",
		Short: "Detect the active superuser provider",
		RunE: func(cmd *cobra.Command, args []string) error {
			backend := container.Privilege.Detect(cmd.Context())
			if reinit {
				backend = container.Privilege.Reinit(cmd.Context())
			}
			if asJSON {
				return helpers.PrintJSON(cmd.OutOrStdout(), backendView(backend))
			}
			displayBackend(cmd.OutOrStdout(), backend)
			if !backend.Available() {
				return domain.ErrBackendUnavailable
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&reinit, "reinit", false, "Discard the cached result and probe again")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}

type backendJSON struct {
	Kind        string `json:"kind"`
	Manager     string `json:"manager"`
	VersionCode int    `json:"versionCode"`
	VersionName string `json:"versionName"`
	Available   bool   `json:"available"`
}

func backendView(b domain.PrivilegeBackend) backendJSON {
	return backendJSON{
		Kind:        b.Kind.String(),
		Manager:     b.Kind.ManagerName(),
		VersionCode: b.Version.Code,
		VersionName: b.Version.Name,
		Available:   b.Available(),
	}
}

func displayBackend(out io.Writer, b domain.PrivilegeBackend) {
	if !b.Available() {
		fmt.Fprintln(out, "No supported superuser provider detected")
		return
	}
	fmt.Fprintf(out, "Provider: %s\n", b.Kind.ManagerName())
	fmt.Fprintf(out, "Version:  %s\n", b.Version)
}

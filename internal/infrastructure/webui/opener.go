package webui

import (
	"context"
	"fmt"
	"net/url"

	"github.com/doeshing/mmrl-go/internal/domain"
	"github.com/doeshing/mmrl-go/internal/infrastructure/rootshell"
	"github.com/doeshing/mmrl-go/internal/ports"
)

// ShellOpener hands URLs to the device's activity manager through the
// privileged session.
type ShellOpener struct {
	command string
	shells  ports.ShellOpener
	logger  ports.Logger
}

// NewShellOpener builds an opener using webui.open_command.
func NewShellOpener(cfg domain.Config, shells ports.ShellOpener, logger ports.Logger) *ShellOpener {
	return &ShellOpener{command: cfg.GetOpenCommand(), shells: shells, logger: logger}
}

// Open implements ports.ExternalOpener.
func (o *ShellOpener) Open(ctx context.Context, rawURL string) error {
	if _, err := url.ParseRequestURI(rawURL); err != nil {
		return fmt.Errorf("open %q: %w", rawURL, err)
	}
	quoted, err := rootshell.Quote(rawURL)
	if err != nil {
		return err
	}
	shell, err := o.shells.Shell(ctx)
	if err != nil {
		return fmt.Errorf("open external: %w", err)
	}
	command := o.command + " " + quoted
	code, err := shell.ExitCode(ctx, command)
	if err != nil {
		return fmt.Errorf("open external: %w", err)
	}
	if code != 0 {
		return &domain.CommandError{Command: command, ExitCode: code}
	}
	o.logger.Info("opened external url", map[string]interface{}{
		"url": rawURL,
	})
	return nil
}

var _ ports.ExternalOpener = (*ShellOpener)(nil)

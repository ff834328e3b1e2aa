package config

import (
	"errors"
	"fmt"
	"net"
	"path/filepath"
	"strings"

	"github.com/doeshing/mmrl-go/internal/domain"
)

// Validate ensures config structure is consistent beyond what the loader checks.
func Validate(cfg domain.Config) error {
	if err := cfg.ValidateConsistency(); err != nil {
		return err
	}
	if err := validateShell(cfg.Shell); err != nil {
		return err
	}
	if err := validatePaths(cfg.Paths); err != nil {
		return err
	}
	if err := validateWebUI(cfg.WebUI); err != nil {
		return err
	}
	return validateStaging(cfg.Staging)
}

func validateShell(shell domain.ShellSettings) error {
	if strings.ContainsAny(shell.SuBinary, " \t\n") {
		return fmt.Errorf("shell.su_binary must be a single executable, got %q", shell.SuBinary)
	}
	if shell.ProbeTimeoutSeconds < 0 {
		return errors.New("shell.probe_timeout_seconds must be >= 0")
	}
	if shell.CloseGraceSeconds < 0 {
		return errors.New("shell.close_grace_seconds must be >= 0")
	}
	return nil
}

func validatePaths(paths domain.PathSettings) error {
	for key, value := range map[string]string{
		"paths.modules_dir":        paths.ModulesDir,
		"paths.modules_update_dir": paths.ModulesUpdateDir,
	} {
		if value != "" && !filepath.IsAbs(value) {
			return fmt.Errorf("%s must be absolute, got %s", key, value)
		}
	}
	if paths.ModulesDir != "" && paths.ModulesDir == paths.ModulesUpdateDir {
		return errors.New("paths.modules_dir and paths.modules_update_dir must differ")
	}
	return nil
}

func validateWebUI(webui domain.WebUISettings) error {
	if strings.ContainsAny(webui.Domain, "/:?# ") {
		return fmt.Errorf("webui.domain must be a bare host name, got %q", webui.Domain)
	}
	if webui.ListenAddr != "" {
		host, _, err := net.SplitHostPort(webui.ListenAddr)
		if err != nil {
			return fmt.Errorf("webui.listen_addr invalid: %w", err)
		}
		if ip := net.ParseIP(host); host != "localhost" && (ip == nil || !ip.IsLoopback()) {
			return fmt.Errorf("webui.listen_addr must be a loopback address, got %s", webui.ListenAddr)
		}
	}
	insets := webui.Insets
	if insets.Top < 0 || insets.Bottom < 0 || insets.Left < 0 || insets.Right < 0 {
		return errors.New("webui.insets must be >= 0")
	}
	return nil
}

func validateStaging(staging domain.StagingSettings) error {
	if staging.MaxEntries < 0 {
		return errors.New("staging.max_entries must be >= 0")
	}
	if staging.TTLMinutes < 0 {
		return errors.New("staging.ttl_minutes must be >= 0")
	}
	return nil
}

package domain

import (
	"fmt"
	"path"
	"regexp"
	"time"
)

// Rich domain model: configuration answers its own questions so callers never
// re-implement fallbacks.

// Working modes accepted in preferences.working_mode.
const (
	WorkingModeAuto     = "auto"
	WorkingModeMagisk   = "magisk"
	WorkingModeKernelSU = "kernelsu"
	WorkingModeAPatch   = "apatch"
)

// ExpectedBackend returns the backend the user pinned, if any.
func (c *Config) ExpectedBackend() (BackendKind, bool) {
	if c.Preferences.WorkingMode == "" || c.Preferences.WorkingMode == WorkingModeAuto {
		return BackendNone, false
	}
	kind, ok := ParseBackendKind(c.Preferences.WorkingMode)
	if !ok || kind == BackendNone {
		return BackendNone, false
	}
	return kind, true
}

// ShellOptions derives session flags from preferences.
func (c *Config) ShellOptions() ShellOptions {
	return ShellOptions{
		GlobalMount:   c.Shell.GlobalMount,
		DeveloperMode: c.Preferences.DeveloperMode,
	}
}

// InstallOptions derives default install toggles from preferences.
func (c *Config) InstallOptions() InstallOptions {
	return InstallOptions{
		ClearTerminalOnMultiple: c.Preferences.ClearInstallTerminal,
		DeleteArchiveOnSuccess:  c.Preferences.DeleteZipFile,
		DeveloperLogging:        c.Preferences.DeveloperMode,
	}
}

// GetSuBinary returns the su executable, defaulting to "su".
func (c *Config) GetSuBinary() string {
	if c.Shell.SuBinary == "" {
		return DefaultSuBinary
	}
	return c.Shell.SuBinary
}

// GetProbeCommand returns the backend probe argv.
func (c *Config) GetProbeCommand() []string {
	if len(c.Shell.ProbeCommand) == 0 {
		su := c.GetSuBinary()
		return []string{"sh", "-c", su + " -v; " + su + " -V"}
	}
	return c.Shell.ProbeCommand
}

// GetProbeTimeout returns the bounded detection timeout.
func (c *Config) GetProbeTimeout() time.Duration {
	if c.Shell.ProbeTimeoutSeconds <= 0 {
		return DefaultProbeTimeout
	}
	return time.Duration(c.Shell.ProbeTimeoutSeconds) * time.Second
}

// GetCloseGrace returns how long a closing shell may take before it is killed.
func (c *Config) GetCloseGrace() time.Duration {
	if c.Shell.CloseGraceSeconds <= 0 {
		return DefaultCloseGrace
	}
	return time.Duration(c.Shell.CloseGraceSeconds) * time.Second
}

// GetModulesDir returns the installed modules directory.
func (c *Config) GetModulesDir() string {
	if c.Paths.ModulesDir == "" {
		return DefaultModulesDir
	}
	return c.Paths.ModulesDir
}

// GetModulesUpdateDir returns the pending-update modules directory.
func (c *Config) GetModulesUpdateDir() string {
	if c.Paths.ModulesUpdateDir == "" {
		return DefaultModulesUpdateDir
	}
	return c.Paths.ModulesUpdateDir
}

// ModuleDir returns the directory of an installed module.
func (c *Config) ModuleDir(id string) string {
	return path.Join(c.GetModulesDir(), id)
}

// WebRoot returns the web bundle root of an installed module.
func (c *Config) WebRoot(id string) string {
	return path.Join(c.ModuleDir(id), WebRootDirName)
}

// GetWebUIDomain returns the synthetic origin host.
func (c *Config) GetWebUIDomain() string {
	if c.WebUI.Domain == "" {
		return DefaultWebUIDomain
	}
	return c.WebUI.Domain
}

// GetAllowedOriginPattern returns the navigation allow-list regex.
func (c *Config) GetAllowedOriginPattern() string {
	if c.WebUI.AllowedOriginPattern == "" {
		return "^https?://" + regexp.QuoteMeta(c.GetWebUIDomain()) + "(/.*)?$"
	}
	return c.WebUI.AllowedOriginPattern
}

// GetListenAddr returns the loopback address for the web surface.
func (c *Config) GetListenAddr() string {
	if c.WebUI.ListenAddr == "" {
		return DefaultListenAddr
	}
	return c.WebUI.ListenAddr
}

// GetOpenCommand returns the external URL opener command prefix.
func (c *Config) GetOpenCommand() string {
	if c.WebUI.OpenCommand == "" {
		return DefaultOpenCommand
	}
	return c.WebUI.OpenCommand
}

// WebUIEnvironment returns the injected runtime context.
func (c *Config) WebUIEnvironment() WebUIEnvironment {
	colors := make(map[string]string, len(c.WebUI.Colors))
	for k, v := range c.WebUI.Colors {
		colors[k] = v
	}
	return WebUIEnvironment{Insets: c.WebUI.Insets, Colors: colors}
}

// GetEventBufferSize returns the per-subscriber queue bound.
func (c *Config) GetEventBufferSize() int {
	if c.Events.BufferSize <= 0 {
		return DefaultEventBufferSize
	}
	return c.Events.BufferSize
}

// GetStagingMaxEntries returns how many staged archives are retained.
func (c *Config) GetStagingMaxEntries() int {
	if c.Staging.MaxEntries <= 0 {
		return DefaultStagingMaxEntries
	}
	return c.Staging.MaxEntries
}

// GetStagingTTL returns how long an abandoned staged archive survives.
func (c *Config) GetStagingTTL() time.Duration {
	if c.Staging.TTLMinutes <= 0 {
		return DefaultStagingTTL
	}
	return time.Duration(c.Staging.TTLMinutes) * time.Minute
}

// ValidateConsistency checks the internal consistency of the configuration.
func (c *Config) ValidateConsistency() error {
	switch c.Preferences.WorkingMode {
	case "", WorkingModeAuto, WorkingModeMagisk, WorkingModeKernelSU, WorkingModeAPatch:
	default:
		return fmt.Errorf("unknown working mode %q", c.Preferences.WorkingMode)
	}

	if _, err := regexp.Compile(c.GetAllowedOriginPattern()); err != nil {
		return fmt.Errorf("invalid allowed origin pattern: %w", err)
	}

	if c.Events.BufferSize < 0 {
		return fmt.Errorf("events buffer size must not be negative")
	}

	return nil
}

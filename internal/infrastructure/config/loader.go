package config

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/doeshing/mmrl-go/assets"
	"github.com/doeshing/mmrl-go/internal/domain"
	"github.com/doeshing/mmrl-go/internal/pkg/filesystem"
	"github.com/doeshing/mmrl-go/internal/ports"
)

// EnvPrefix namespaces environment overrides, e.g. MMRL_PREFERENCES_DEVELOPER_MODE.
const EnvPrefix = "MMRL"

// FileLoader loads YAML configuration from ~/.mmrl/config.yaml (overridable via MMRL_CONFIG).
type FileLoader struct {
	overridePath string
}

// NewFileLoader builds a new loader.
func NewFileLoader(path string) *FileLoader {
	return &FileLoader{overridePath: path}
}

// Load implements ports.ConfigProvider.
func (l *FileLoader) Load(ctx context.Context) (domain.Config, error) {
	select {
	case <-ctx.Done():
		return domain.Config{}, fmt.Errorf("load config canceled: %w", ctx.Err())
	default:
	}

	path := l.Path()
	if err := ensureConfigDir(path); err != nil {
		return domain.Config{}, fmt.Errorf("create config dir: %w", err)
	}
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		if err := writeDefault(path); err != nil {
			return domain.Config{}, fmt.Errorf("write default config: %w", err)
		}
	}

	v := viper.New()
	setDefaults(v, DefaultConfig())
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return domain.Config{}, fmt.Errorf("load config: %w", err)
	}

	var cfg domain.Config
	if err := v.Unmarshal(&cfg); err != nil {
		return domain.Config{}, fmt.Errorf("decode config: %w", err)
	}

	if colors, err := readColors(path); err == nil && len(colors) > 0 {
		cfg.WebUI.Colors = colors
	}

	cfg = hydrateDefaults(cfg)
	if err := cfg.ValidateConsistency(); err != nil {
		return domain.Config{}, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Path returns the resolved configuration file path.
func (l *FileLoader) Path() string {
	if l.overridePath != "" {
		return expandPath(l.overridePath)
	}
	if custom := os.Getenv("MMRL_CONFIG"); custom != "" {
		return expandPath(custom)
	}
	return filepath.Join(filesystem.UserHomeDir(), ".mmrl", "config.yaml")
}

// Marshal renders a config as YAML.
func Marshal(cfg domain.Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}

// readColors re-reads webui.colors verbatim; viper lowercases map keys and
// color token names are case sensitive.
func readColors(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc struct {
		WebUI struct {
			Colors map[string]string `yaml:"colors"`
		} `yaml:"webui"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, err
	}
	return doc.WebUI.Colors, nil
}

func ensureConfigDir(path string) error {
	return os.MkdirAll(filepath.Dir(path), domain.DirectoryPermissions)
}

func writeDefault(path string) error {
	data := assets.DefaultConfigYAML
	if len(data) == 0 {
		raw, err := yaml.Marshal(DefaultConfig())
		if err != nil {
			return err
		}
		data = raw
	}
	return os.WriteFile(path, data, domain.SecureFilePermissions)
}

// DefaultConfig is the configuration used for missing keys.
func DefaultConfig() domain.Config {
	return domain.Config{
		ConfigFormatVersion: "1",
		Preferences: domain.Preferences{
			WorkingMode:                  domain.WorkingModeAuto,
			ClearInstallTerminal:         true,
			UseShellForModuleStateChange: true,
		},
		Shell: domain.ShellSettings{
			SuBinary:            domain.DefaultSuBinary,
			ProbeTimeoutSeconds: int(domain.DefaultProbeTimeout.Seconds()),
			CloseGraceSeconds:   int(domain.DefaultCloseGrace.Seconds()),
		},
		Paths: domain.PathSettings{
			ModulesDir:       domain.DefaultModulesDir,
			ModulesUpdateDir: domain.DefaultModulesUpdateDir,
			Database:         "~/.mmrl/mmrl.db",
			LogDir:           "~/.mmrl/logs",
		},
		WebUI: domain.WebUISettings{
			Domain:      domain.DefaultWebUIDomain,
			ListenAddr:  domain.DefaultListenAddr,
			Colors:      map[string]string{},
			OpenCommand: domain.DefaultOpenCommand,
		},
		Events: domain.EventSettings{
			BufferSize: domain.DefaultEventBufferSize,
		},
		Staging: domain.StagingSettings{
			MaxEntries: domain.DefaultStagingMaxEntries,
			TTLMinutes: int(domain.DefaultStagingTTL.Minutes()),
		},
	}
}

func setDefaults(v *viper.Viper, d domain.Config) {
	v.SetDefault("config_format_version", d.ConfigFormatVersion)
	v.SetDefault("preferences.working_mode", d.Preferences.WorkingMode)
	v.SetDefault("preferences.developer_mode", d.Preferences.DeveloperMode)
	v.SetDefault("preferences.clear_install_terminal", d.Preferences.ClearInstallTerminal)
	v.SetDefault("preferences.delete_zip_file", d.Preferences.DeleteZipFile)
	v.SetDefault("preferences.use_shell_for_module_state_change", d.Preferences.UseShellForModuleStateChange)
	v.SetDefault("shell.su_binary", d.Shell.SuBinary)
	v.SetDefault("shell.global_mount", d.Shell.GlobalMount)
	v.SetDefault("shell.probe_command", d.Shell.ProbeCommand)
	v.SetDefault("shell.probe_timeout_seconds", d.Shell.ProbeTimeoutSeconds)
	v.SetDefault("shell.close_grace_seconds", d.Shell.CloseGraceSeconds)
	v.SetDefault("paths.modules_dir", d.Paths.ModulesDir)
	v.SetDefault("paths.modules_update_dir", d.Paths.ModulesUpdateDir)
	v.SetDefault("paths.staging_dir", d.Paths.StagingDir)
	v.SetDefault("paths.database", d.Paths.Database)
	v.SetDefault("paths.log_dir", d.Paths.LogDir)
	v.SetDefault("webui.domain", d.WebUI.Domain)
	v.SetDefault("webui.allowed_origin_pattern", d.WebUI.AllowedOriginPattern)
	v.SetDefault("webui.listen_addr", d.WebUI.ListenAddr)
	v.SetDefault("webui.insets.top", d.WebUI.Insets.Top)
	v.SetDefault("webui.insets.bottom", d.WebUI.Insets.Bottom)
	v.SetDefault("webui.insets.left", d.WebUI.Insets.Left)
	v.SetDefault("webui.insets.right", d.WebUI.Insets.Right)
	v.SetDefault("webui.colors", d.WebUI.Colors)
	v.SetDefault("webui.open_command", d.WebUI.OpenCommand)
	v.SetDefault("events.buffer_size", d.Events.BufferSize)
	v.SetDefault("staging.max_entries", d.Staging.MaxEntries)
	v.SetDefault("staging.ttl_minutes", d.Staging.TTLMinutes)
}

func hydrateDefaults(cfg domain.Config) domain.Config {
	if cfg.ConfigFormatVersion == "" {
		cfg.ConfigFormatVersion = "1"
	}
	if cfg.Paths.Database == "" {
		cfg.Paths.Database = "~/.mmrl/mmrl.db"
	}
	if cfg.Paths.LogDir == "" {
		cfg.Paths.LogDir = "~/.mmrl/logs"
	}
	cfg.Paths.Database = expandPath(cfg.Paths.Database)
	cfg.Paths.LogDir = expandPath(cfg.Paths.LogDir)
	if cfg.Paths.StagingDir != "" {
		cfg.Paths.StagingDir = expandPath(cfg.Paths.StagingDir)
	}
	if cfg.WebUI.Colors == nil {
		cfg.WebUI.Colors = map[string]string{}
	}
	return cfg
}

func expandPath(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	if len(path) > 1 && path[:2] == "~/" {
		return filepath.Join(filesystem.UserHomeDir(), path[2:])
	}
	return filepath.Clean(path)
}

var _ ports.ConfigProvider = (*FileLoader)(nil)

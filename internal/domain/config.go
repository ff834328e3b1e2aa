package domain

// Config mirrors ~/.mmrl/config.yaml.
type Config struct {
	ConfigFormatVersion string          `yaml:"config_format_version" mapstructure:"config_format_version"`
	Preferences         Preferences     `yaml:"preferences" mapstructure:"preferences"`
	Shell               ShellSettings   `yaml:"shell" mapstructure:"shell"`
	Paths               PathSettings    `yaml:"paths" mapstructure:"paths"`
	WebUI               WebUISettings   `yaml:"webui" mapstructure:"webui"`
	Events              EventSettings   `yaml:"events" mapstructure:"events"`
	Staging             StagingSettings `yaml:"staging" mapstructure:"staging"`
}

// Preferences captures user level toggles.
type Preferences struct {
	WorkingMode                  string `yaml:"working_mode" mapstructure:"working_mode"`
	DeveloperMode                bool   `yaml:"developer_mode" mapstructure:"developer_mode"`
	ClearInstallTerminal         bool   `yaml:"clear_install_terminal" mapstructure:"clear_install_terminal"`
	DeleteZipFile                bool   `yaml:"delete_zip_file" mapstructure:"delete_zip_file"`
	UseShellForModuleStateChange bool   `yaml:"use_shell_for_module_state_change" mapstructure:"use_shell_for_module_state_change"`
}

// ShellSettings configures the privileged shell and backend probe.
type ShellSettings struct {
	SuBinary            string   `yaml:"su_binary" mapstructure:"su_binary"`
	GlobalMount         bool     `yaml:"global_mount" mapstructure:"global_mount"`
	ProbeCommand        []string `yaml:"probe_command" mapstructure:"probe_command"`
	ProbeTimeoutSeconds int      `yaml:"probe_timeout_seconds" mapstructure:"probe_timeout_seconds"`
	CloseGraceSeconds   int      `yaml:"close_grace_seconds" mapstructure:"close_grace_seconds"`
}

// PathSettings locates on-device and local state.
type PathSettings struct {
	ModulesDir       string `yaml:"modules_dir" mapstructure:"modules_dir"`
	ModulesUpdateDir string `yaml:"modules_update_dir" mapstructure:"modules_update_dir"`
	StagingDir       string `yaml:"staging_dir" mapstructure:"staging_dir"`
	Database         string `yaml:"database" mapstructure:"database"`
	LogDir           string `yaml:"log_dir" mapstructure:"log_dir"`
}

// WebUISettings configures the module web surface.
type WebUISettings struct {
	Domain               string            `yaml:"domain" mapstructure:"domain"`
	AllowedOriginPattern string            `yaml:"allowed_origin_pattern" mapstructure:"allowed_origin_pattern"`
	ListenAddr           string            `yaml:"listen_addr" mapstructure:"listen_addr"`
	Insets               Insets            `yaml:"insets" mapstructure:"insets"`
	Colors               map[string]string `yaml:"colors" mapstructure:"colors"`
	OpenCommand          string            `yaml:"open_command" mapstructure:"open_command"`
}

// EventSettings sizes the install event broadcast.
type EventSettings struct {
	BufferSize int `yaml:"buffer_size" mapstructure:"buffer_size"`
}

// StagingSettings bounds the private archive directory.
type StagingSettings struct {
	MaxEntries int `yaml:"max_entries" mapstructure:"max_entries"`
	TTLMinutes int `yaml:"ttl_minutes" mapstructure:"ttl_minutes"`
}

package domain

import "time"

// File permissions constants
const (
	// DirectoryPermissions is the default permission for directories (rwxr-xr-x)
	DirectoryPermissions = 0o755
	// SecureFilePermissions is the permission for sensitive files (rw-------)
	SecureFilePermissions = 0o600
	// PrivateDirectoryPermissions keeps staged archives private to the process owner
	PrivateDirectoryPermissions = 0o700
)

// Shell and detection defaults
const (
	DefaultSuBinary     = "su"
	DefaultProbeTimeout = 5 * time.Second
	DefaultCloseGrace   = 3 * time.Second
)

// WebUI defaults
const (
	DefaultWebUIDomain = "mui.kernelsu.org"
	DefaultListenAddr  = "127.0.0.1:0"
	DefaultOpenCommand = "am start -a android.intent.action.VIEW -d"
	WebRootDirName     = "webroot"
	// ReservedWebPrefix is synthesized by the host and never read from disk.
	ReservedWebPrefix = "/mmrl/"
)

// Install and broadcast defaults
const (
	DefaultEventBufferSize   = 256
	DefaultStagingMaxEntries = 16
	DefaultStagingTTL        = 24 * time.Hour
	ModulePropFile           = "module.prop"
	InstallLogPrefix         = "Install_"
)

// Time formats
const (
	// TimestampFormat is the standard timestamp format
	TimestampFormat = time.RFC3339
	// LogFileTimestampFormat is used in exported log file names
	LogFileTimestampFormat = "2006-01-02_15-04-05"
)

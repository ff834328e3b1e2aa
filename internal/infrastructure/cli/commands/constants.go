package commands

// CLI-specific constants
const (
	// DefaultHistoryLimit bounds `history list`.
	DefaultHistoryLimit = 20

	// TimestampFormat is used for tabular timestamps.
	TimestampFormat = "2006-01-02 15:04:05"

	// SkipContainerAnnotation marks commands that run without the container.
	SkipContainerAnnotation = "mmrl/skip-container"
)

// Error messages
const (
	ErrContainerUnavailable     = "application container unavailable"
	ErrDoctorServiceUnavailable = "doctor service unavailable"
	ErrHistoryStoreUnavailable  = "history store unavailable"
	ErrInstallEngineUnavailable = "install engine unavailable"
	ErrModuleServiceUnavailable = "module service unavailable"
	ErrShellUnavailable         = "root shell unavailable"
)

// Success messages
const (
	MsgConfigurationValid = "Configuration valid"
	MsgNoHistoryRecorded  = "No history recorded yet."
	MsgNoModules          = "No modules installed."
	MsgNoVersions         = "No cached versions."
)

// Package ports defines the interfaces (ports) for the hexagonal architecture.
//
// This package establishes the contract between the application core and external
// adapters (infrastructure). Following the Ports and Adapters (Hexagonal) pattern,
// these interfaces allow the install pipeline and the web surface to remain
// independent of the su binary, the module backend, storage and the terminal.
//
// Key architectural concepts:
//   - Ports: Interfaces defined here (e.g., RootShell, ModuleManager)
//   - Adapters: Concrete implementations in the infrastructure layer
//   - Dependency inversion: Application depends on abstractions, not implementations
package ports

import (
	"context"
	"io"

	"github.com/doeshing/mmrl-go/internal/domain"
)

// ConfigProvider loads the latest configuration from persistent storage.
// Implementations typically read from ~/.mmrl/config.yaml.
type ConfigProvider interface {
	Load(context.Context) (domain.Config, error)
}

// PrivilegeProvider reports which superuser backend is active.
// Detection is bounded and never returns an error: failure means BackendNone.
type PrivilegeProvider interface {
	Detect(ctx context.Context) domain.PrivilegeBackend
	IsAvailable(ctx context.Context) bool
}

// RootShell is one live privileged session. Every method shares the session's
// single FIFO command queue.
type RootShell interface {
	Exec(ctx context.Context, command string) error
	Result(ctx context.Context, command string) (string, error)
	IsSuccess(ctx context.Context, command string) bool
	ExitCode(ctx context.Context, command string) (int, error)
	Run(ctx context.Context, command string, handler domain.LineHandler) (domain.CommandResult, error)
	ReadFile(ctx context.Context, path string) ([]byte, error)
	Alive() bool
	Close() error
}

// ShellOpener hands out the manager's single session, opening it on first use.
type ShellOpener interface {
	Shell(ctx context.Context) (RootShell, error)
}

// InstallCallback receives install script progress. Exactly one of OnSuccess or
// OnFailure is called per install, possibly from another goroutine.
type InstallCallback interface {
	OnStdout(line string)
	OnStderr(line string)
	OnSuccess(module domain.ModuleDescriptor)
	OnFailure()
}

// ModuleManager is the privileged module backend.
type ModuleManager interface {
	// ModuleInfo parses module metadata from an archive path readable by root.
	ModuleInfo(ctx context.Context, archivePath string) (domain.ModuleDescriptor, error)
	// InstalledModuleInfo re-reads metadata of an installed or pending module from disk.
	InstalledModuleInfo(ctx context.Context, id string) (domain.ModuleDescriptor, error)
	// Install runs the provider's install entry point and returns once the
	// callback has been resolved. A non-nil error means it may not have been.
	Install(ctx context.Context, archivePath string, callback InstallCallback) error
	List(ctx context.Context) ([]domain.ModuleDescriptor, error)
	SetState(ctx context.Context, id string, target domain.ModuleState) error
	DeleteFile(ctx context.Context, path string) error
}

// ContentResolver turns opaque archive handles into readable bytes.
type ContentResolver interface {
	// Resolve returns a direct filesystem path for the handle, if it has one.
	Resolve(handle string) (string, bool)
	// Open streams the handle's bytes; size is -1 when unknown.
	Open(ctx context.Context, handle string) (rc io.ReadCloser, size int64, err error)
}

// ArchiveStager owns the process-private directory archives are copied into.
type ArchiveStager interface {
	Create(name string) (path string, w io.WriteCloser, err error)
	Remove(path string) error
}

// LocalRepository persists installed module records.
type LocalRepository interface {
	InsertLocal(ctx context.Context, module domain.ModuleDescriptor) error
	GetLocal(ctx context.Context, id string) (domain.ModuleDescriptor, bool, error)
	ListLocal(ctx context.Context) ([]domain.ModuleDescriptor, error)
	DeleteLocal(ctx context.Context, id string) error
	// ReplaceLocal swaps the whole table for a fresh listing.
	ReplaceLocal(ctx context.Context, modules []domain.ModuleDescriptor) error
}

// VersionRepository is the per-repository version cache.
type VersionRepository interface {
	InsertVersions(ctx context.Context, items []domain.VersionItem) error
	DeleteVersionsByURL(ctx context.Context, repoURL string) error
	Versions(ctx context.Context, repoURL, moduleID string) ([]domain.VersionItem, error)
}

// InstallHistory records archive install attempts.
type InstallHistory interface {
	SaveInstall(ctx context.Context, record domain.InstallRecord) error
	Installs(ctx context.Context, limit int) ([]domain.InstallRecord, error)
}

// ExternalOpener hands a URL to something outside the sandboxed web surface.
type ExternalOpener interface {
	Open(ctx context.Context, rawURL string) error
}

// Logger provides structured logging abstraction for the application layer.
// Implementations can route to different backends (stdout, files, external services).
type Logger interface {
	Debug(msg string, fields map[string]interface{})
	Info(msg string, fields map[string]interface{})
	Warn(msg string, fields map[string]interface{})
	Error(msg string, err error, fields map[string]interface{})
}

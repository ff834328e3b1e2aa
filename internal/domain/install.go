package domain

import "time"

// Archive is one module package queued for installation. Handle is opaque:
// a plain path, a file:// URI or an http(s) URL.
type Archive struct {
	Handle  string
	RepoURL string
	Version *VersionItem
}

// InstallOptions are the per-request toggles.
type InstallOptions struct {
	ClearTerminalOnMultiple bool
	DeleteArchiveOnSuccess  bool
	DeveloperLogging        bool
}

// InstallRequest is an ordered batch of archives.
type InstallRequest struct {
	Archives []Archive
	Options  InstallOptions
}

// InstallPhase is the per-archive state machine position.
type InstallPhase string

const (
	PhasePending    InstallPhase = "pending"
	PhaseResolving  InstallPhase = "resolving"
	PhaseCopying    InstallPhase = "copying"
	PhaseValidating InstallPhase = "validating"
	PhaseExecuting  InstallPhase = "executing"
	PhaseSucceeded  InstallPhase = "succeeded"
	PhaseFailed     InstallPhase = "failed"
)

// ArchiveResult is the outcome for a single archive.
type ArchiveResult struct {
	Handle   string
	Phase    InstallPhase
	Module   *ModuleDescriptor
	Err      error
	Copied   bool
	Digest   string
	Duration time.Duration
}

// Succeeded reports whether the archive installed cleanly.
func (r ArchiveResult) Succeeded() bool {
	return r.Phase == PhaseSucceeded
}

// BatchResult aggregates a whole run. Results holds only attempted archives.
type BatchResult struct {
	RunID     string
	Results   []ArchiveResult
	Succeeded bool
	Cancelled bool
}

// Attempted returns how many archives were touched by the engine.
func (b BatchResult) Attempted() int {
	return len(b.Results)
}

// InstallRecord is a persisted history row for one archive attempt.
type InstallRecord struct {
	ID         int64     `json:"id"`
	RunID      string    `json:"run_id"`
	Handle     string    `json:"handle"`
	ModuleID   string    `json:"module_id"`
	Version    string    `json:"version"`
	Backend    string    `json:"backend"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
	Digest     string    `json:"digest,omitempty"`
	DurationMS int64     `json:"duration_ms"`
	Timestamp  time.Time `json:"timestamp"`
}

package domain

import "strings"

// ModuleState is the lifecycle state of an installed module.
type ModuleState string

const (
	StateEnable    ModuleState = "ENABLE"
	StateDisable   ModuleState = "DISABLE"
	StateRemove    ModuleState = "REMOVE"
	StateUpdate    ModuleState = "UPDATE"
	StateUninstall ModuleState = "UNINSTALL"
)

// ParseModuleState accepts any casing of a state name.
func ParseModuleState(value string) (ModuleState, bool) {
	switch s := ModuleState(strings.ToUpper(strings.TrimSpace(value))); s {
	case StateEnable, StateDisable, StateRemove, StateUpdate, StateUninstall:
		return s, true
	default:
		return "", false
	}
}

// ModuleDescriptor is the parsed identity and state of a module, built from
// its module.prop metadata file.
type ModuleDescriptor struct {
	ID              string      `json:"id"`
	Name            string      `json:"name"`
	Version         string      `json:"version"`
	VersionCode     int         `json:"versionCode"`
	Author          string      `json:"author"`
	Description     string      `json:"description"`
	UpdateJSON      string      `json:"updateJson,omitempty"`
	State           ModuleState `json:"state"`
	HasWebUI        bool        `json:"hasWebUI"`
	HasActionScript bool        `json:"hasActionScript"`
	Size            int64       `json:"size,omitempty"`
}

// DisplayName prefers the human name and falls back to the id.
func (m ModuleDescriptor) DisplayName() string {
	if strings.TrimSpace(m.Name) != "" {
		return m.Name
	}
	return m.ID
}

// AsInstalled returns a copy marked as freshly installed and pending activation.
func (m ModuleDescriptor) AsInstalled() ModuleDescriptor {
	m.State = StateUpdate
	return m
}

// CanToggle reports whether enable/disable is permitted for the module under
// the given provider.
func (m ModuleDescriptor) CanToggle(kind BackendKind) bool {
	if m.State == StateRemove {
		return false
	}
	if m.State == StateUpdate && kind.BlocksToggleWhileUpdating() {
		return false
	}
	return true
}

// CanRemove reports whether the module may be marked for removal.
func (m ModuleDescriptor) CanRemove() bool {
	return m.State != StateRemove
}

// CanRestore reports whether a pending removal can be undone.
func (m ModuleDescriptor) CanRestore() bool {
	return m.State == StateRemove
}

// VersionItem is one row of the per-repository version cache.
type VersionItem struct {
	RepoURL     string `json:"repoUrl"`
	ModuleID    string `json:"id"`
	Version     string `json:"version"`
	VersionCode int    `json:"versionCode"`
	ZipURL      string `json:"zipUrl"`
	Changelog   string `json:"changelog"`
	Timestamp   int64  `json:"timestamp"`
}

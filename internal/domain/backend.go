// Package domain defines core business entities and value objects for mmrl.
//
// This file contains the privilege backend model: which superuser provider is
// active on the device and the per-provider capabilities the rest of the
// application dispatches on. The domain layer is independent of infrastructure
// concerns and holds no process or I/O state.
package domain

import (
	"fmt"
	"strings"
)

// BackendKind enumerates the mutually exclusive superuser providers.
type BackendKind int

const (
	BackendNone BackendKind = iota
	BackendMagisk
	BackendKernelSU
	BackendAPatch
)

// Default on-device locations shared by all providers.
const (
	DefaultModulesDir       = "/data/adb/modules"
	DefaultModulesUpdateDir = "/data/adb/modules_update"
)

// Version is the (code, name) pair reported by the su binary.
type Version struct {
	Code int    `json:"code"`
	Name string `json:"name"`
}

// String renders the version the way `su -v` prints it.
func (v Version) String() string {
	if v.Name == "" {
		return fmt.Sprintf("%d", v.Code)
	}
	return fmt.Sprintf("%s (%d)", v.Name, v.Code)
}

// PrivilegeBackend is the detected provider together with its reported version.
// It is a value type; a detector hands out copies.
type PrivilegeBackend struct {
	Kind    BackendKind `json:"kind"`
	Version Version     `json:"version"`
}

// Available reports whether a usable provider was detected.
func (b PrivilegeBackend) Available() bool {
	return b.Kind != BackendNone
}

// String returns a stable lowercase identifier.
func (k BackendKind) String() string {
	switch k {
	case BackendMagisk:
		return "magisk"
	case BackendKernelSU:
		return "kernelsu"
	case BackendAPatch:
		return "apatch"
	default:
		return "none"
	}
}

// ManagerName is the human-facing provider name.
func (k BackendKind) ManagerName() string {
	switch k {
	case BackendMagisk:
		return "Magisk"
	case BackendKernelSU:
		return "KernelSU"
	case BackendAPatch:
		return "APatch"
	default:
		return "Unknown"
	}
}

// ParseBackendKind maps a config value or su capability tag onto a kind.
// The second return value is false for unknown input.
func ParseBackendKind(value string) (BackendKind, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "magisk":
		return BackendMagisk, true
	case "kernelsu", "ksu":
		return BackendKernelSU, true
	case "apatch", "ap":
		return BackendAPatch, true
	case "none", "":
		return BackendNone, true
	default:
		return BackendNone, false
	}
}

// InstallCommand returns the provider's module install entry point for an
// already shell-quoted archive path.
func (k BackendKind) InstallCommand(quotedPath string) (string, error) {
	switch k {
	case BackendMagisk:
		return "magisk --install-module " + quotedPath, nil
	case BackendKernelSU:
		return "ksud module install " + quotedPath, nil
	case BackendAPatch:
		return "apd module install " + quotedPath, nil
	default:
		return "", ErrBackendUnavailable
	}
}

// StateCommand returns the shell command that moves a module towards the
// requested state. quotedID and quotedDir must already be shell-quoted; quotedDir
// is the module's directory and is only used by providers that toggle flag files.
func (k BackendKind) StateCommand(target ModuleState, quotedID, quotedDir string) (string, error) {
	var tool string
	switch k {
	case BackendKernelSU:
		tool = "ksud"
	case BackendAPatch:
		tool = "apd"
	case BackendMagisk:
		return FlagStateCommand(target, quotedDir)
	default:
		return "", ErrBackendUnavailable
	}

	switch target {
	case StateEnable:
		return tool + " module enable " + quotedID, nil
	case StateDisable:
		return tool + " module disable " + quotedID, nil
	case StateRemove:
		return tool + " module uninstall " + quotedID, nil
	case StateUninstall:
		return tool + " module restore " + quotedID, nil
	default:
		return "", fmt.Errorf("unsupported state change %s for %s", target, k)
	}
}

// FlagStateCommand toggles the flag files every provider's daemon honours.
// Magisk has no CLI for state changes, so it always goes this way.
func FlagStateCommand(target ModuleState, quotedDir string) (string, error) {
	switch target {
	case StateEnable:
		return "rm -f " + quotedDir + "/disable", nil
	case StateDisable:
		return "touch " + quotedDir + "/disable", nil
	case StateRemove:
		return "touch " + quotedDir + "/remove", nil
	case StateUninstall:
		return "rm -f " + quotedDir + "/remove", nil
	default:
		return "", fmt.Errorf("unsupported state change %s", target)
	}
}

// BlocksToggleWhileUpdating reports whether the provider refuses enable/disable
// of a module that has a pending update.
func (k BackendKind) BlocksToggleWhileUpdating() bool {
	return k == BackendKernelSU || k == BackendAPatch
}

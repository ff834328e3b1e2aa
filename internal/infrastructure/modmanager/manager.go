package modmanager

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/doeshing/mmrl-go/internal/domain"
	"github.com/doeshing/mmrl-go/internal/infrastructure/rootshell"
	"github.com/doeshing/mmrl-go/internal/ports"
)

// ShellModuleManager drives the active provider through the root shell.
type ShellModuleManager struct {
	shells     ports.ShellOpener
	provider   ports.PrivilegeProvider
	modulesDir string
	updateDir  string
	// useShell selects the provider CLI over flag files for state changes.
	useShell bool
	logger   ports.Logger
}

// New builds a module manager.
func New(cfg domain.Config, shells ports.ShellOpener, provider ports.PrivilegeProvider, logger ports.Logger) *ShellModuleManager {
	return &ShellModuleManager{
		shells:     shells,
		provider:   provider,
		modulesDir: cfg.GetModulesDir(),
		updateDir:  cfg.GetModulesUpdateDir(),
		useShell:   cfg.Preferences.UseShellForModuleStateChange,
		logger:     logger,
	}
}

// ModuleInfo reads the archive through the root shell and parses its metadata.
func (m *ShellModuleManager) ModuleInfo(ctx context.Context, archivePath string) (domain.ModuleDescriptor, error) {
	shell, err := m.shells.Shell(ctx)
	if err != nil {
		return domain.ModuleDescriptor{}, err
	}
	data, err := shell.ReadFile(ctx, archivePath)
	if err != nil {
		return domain.ModuleDescriptor{}, fmt.Errorf("%w: %v", domain.ErrInvalidModule, err)
	}
	module, err := ParseArchive(data)
	if err != nil {
		return domain.ModuleDescriptor{}, fmt.Errorf("%w: %v", domain.ErrInvalidModule, err)
	}
	return module, nil
}

// InstalledModuleInfo prefers the pending update copy over the active one.
func (m *ShellModuleManager) InstalledModuleInfo(ctx context.Context, id string) (domain.ModuleDescriptor, error) {
	shell, err := m.shells.Shell(ctx)
	if err != nil {
		return domain.ModuleDescriptor{}, err
	}

	var lastErr error
	for _, dir := range []string{m.updateDir, m.modulesDir} {
		data, err := shell.ReadFile(ctx, path.Join(dir, id, domain.ModulePropFile))
		if err != nil {
			lastErr = err
			continue
		}
		module, err := ParseProps(data)
		if err != nil {
			return domain.ModuleDescriptor{}, err
		}
		if module.ID != id {
			return domain.ModuleDescriptor{}, fmt.Errorf("installed module.prop declares id %q, expected %q", module.ID, id)
		}
		return module, nil
	}
	return domain.ModuleDescriptor{}, fmt.Errorf("%w: %s: %v", domain.ErrModuleNotFound, id, lastErr)
}

// Install runs the provider's install entry point, streaming its output. On
// exit 0 the archive metadata is handed to OnSuccess; the caller is expected to
// verify the installed copy itself.
func (m *ShellModuleManager) Install(ctx context.Context, archivePath string, callback ports.InstallCallback) error {
	backend := m.provider.Detect(ctx)
	quoted, err := rootshell.Quote(archivePath)
	if err != nil {
		return err
	}
	command, err := backend.Kind.InstallCommand(quoted)
	if err != nil {
		return err
	}

	shell, err := m.shells.Shell(ctx)
	if err != nil {
		return err
	}

	res, err := shell.Run(ctx, command, domain.LineHandler{
		Stdout: callback.OnStdout,
		Stderr: callback.OnStderr,
	})
	if err != nil {
		return fmt.Errorf("run install script: %w", err)
	}

	if !res.Success() {
		callback.OnFailure()
		return &domain.CommandError{Command: command, ExitCode: res.ExitCode, Kind: domain.ErrInstallScriptFailed}
	}

	claimed, err := m.ModuleInfo(ctx, archivePath)
	if err != nil {
		m.logger.Warn("install succeeded but archive metadata is unreadable", map[string]interface{}{
			"path":  archivePath,
			"error": err.Error(),
		})
	}
	callback.OnSuccess(claimed)
	return nil
}

// SetState moves a module towards target using the provider's mechanism.
func (m *ShellModuleManager) SetState(ctx context.Context, id string, target domain.ModuleState) error {
	modules, err := m.List(ctx)
	if err != nil {
		return err
	}
	var current *domain.ModuleDescriptor
	for i := range modules {
		if modules[i].ID == id {
			current = &modules[i]
			break
		}
	}
	if current == nil {
		return fmt.Errorf("%w: %s", domain.ErrModuleNotFound, id)
	}

	backend := m.provider.Detect(ctx)
	switch target {
	case domain.StateEnable, domain.StateDisable:
		if !current.CanToggle(backend.Kind) {
			return fmt.Errorf("%w: %s is %s", domain.ErrStateChangeRefused, id, current.State)
		}
	case domain.StateRemove:
		if !current.CanRemove() {
			return fmt.Errorf("%w: %s is already marked for removal", domain.ErrStateChangeRefused, id)
		}
	case domain.StateUninstall:
		if !current.CanRestore() {
			return fmt.Errorf("%w: %s is not marked for removal", domain.ErrStateChangeRefused, id)
		}
	}

	quotedID, err := rootshell.Quote(id)
	if err != nil {
		return err
	}
	quotedDir, err := rootshell.Quote(path.Join(m.modulesDir, id))
	if err != nil {
		return err
	}
	var command string
	if m.useShell || backend.Kind == domain.BackendNone {
		command, err = backend.Kind.StateCommand(target, quotedID, quotedDir)
	} else {
		command, err = domain.FlagStateCommand(target, quotedDir)
	}
	if err != nil {
		return err
	}

	shell, err := m.shells.Shell(ctx)
	if err != nil {
		return err
	}
	code, err := shell.ExitCode(ctx, command)
	if err != nil {
		return err
	}
	if code != 0 {
		return &domain.CommandError{Command: command, ExitCode: code}
	}
	return nil
}

// DeleteFile removes a file as root.
func (m *ShellModuleManager) DeleteFile(ctx context.Context, filePath string) error {
	quoted, err := rootshell.Quote(filePath)
	if err != nil {
		return err
	}
	shell, err := m.shells.Shell(ctx)
	if err != nil {
		return err
	}
	command := "rm -f -- " + quoted
	code, err := shell.ExitCode(ctx, command)
	if err != nil {
		return err
	}
	if code != 0 {
		return &domain.CommandError{Command: command, ExitCode: code}
	}
	return nil
}

// List enumerates installed and pending modules.
func (m *ShellModuleManager) List(ctx context.Context) ([]domain.ModuleDescriptor, error) {
	script, err := listScript(m.modulesDir, m.updateDir)
	if err != nil {
		return nil, err
	}
	shell, err := m.shells.Shell(ctx)
	if err != nil {
		return nil, err
	}
	res, err := shell.Run(ctx, script, domain.LineHandler{})
	if err != nil {
		return nil, fmt.Errorf("list modules: %w", err)
	}

	modules := parseListing(res.Stdout, m.logger)
	sort.Slice(modules, func(i, j int) bool { return modules[i].ID < modules[j].ID })
	return modules, nil
}

const (
	listModuleTag  = "@@MMRL_MODULE "
	listPendingTag = "@@MMRL_PENDING "
	listFlagTag    = "@@MMRL_FLAG "
)

func listScript(modulesDir, updateDir string) (string, error) {
	mq, err := rootshell.Quote(modulesDir)
	if err != nil {
		return "", err
	}
	uq, err := rootshell.Quote(updateDir)
	if err != nil {
		return "", err
	}
	return strings.Join([]string{
		"for d in " + mq + "/*/; do",
		`  [ -f "${d}module.prop" ] || continue`,
		`  echo "` + listModuleTag + `${d%/}"`,
		`  cat "${d}module.prop"; echo`,
		`  [ -f "${d}disable" ] && echo "` + listFlagTag + `disable"`,
		`  [ -f "${d}remove" ] && echo "` + listFlagTag + `remove"`,
		`  [ -f "${d}update" ] && echo "` + listFlagTag + `update"`,
		`  [ -d "${d}webroot" ] && echo "` + listFlagTag + `webroot"`,
		`  [ -f "${d}action.sh" ] && echo "` + listFlagTag + `action"`,
		"done",
		"for d in " + uq + "/*/; do",
		`  [ -f "${d}module.prop" ] || continue`,
		`  echo "` + listPendingTag + `${d%/}"`,
		`  cat "${d}module.prop"; echo`,
		`  [ -d "${d}webroot" ] && echo "` + listFlagTag + `webroot"`,
		`  [ -f "${d}action.sh" ] && echo "` + listFlagTag + `action"`,
		"done",
		"true",
	}, "\n"), nil
}

type listEntry struct {
	pending bool
	props   []string
	flags   map[string]bool
}

func parseListing(lines []string, logger ports.Logger) []domain.ModuleDescriptor {
	var entries []*listEntry
	var cur *listEntry
	for _, line := range lines {
		switch {
		case strings.HasPrefix(line, listModuleTag), strings.HasPrefix(line, listPendingTag):
			cur = &listEntry{pending: strings.HasPrefix(line, listPendingTag), flags: map[string]bool{}}
			entries = append(entries, cur)
		case strings.HasPrefix(line, listFlagTag) && cur != nil:
			cur.flags[strings.TrimPrefix(line, listFlagTag)] = true
		case cur != nil:
			cur.props = append(cur.props, line)
		}
	}

	byID := make(map[string]domain.ModuleDescriptor)
	for _, e := range entries {
		module, err := ParseProps([]byte(strings.Join(e.props, "\n")))
		if err != nil {
			logger.Warn("skipping module with unreadable module.prop", map[string]interface{}{"error": err.Error()})
			continue
		}
		module.HasWebUI = e.flags["webroot"]
		module.HasActionScript = e.flags["action"]

		if e.pending {
			if existing, ok := byID[module.ID]; ok {
				if existing.State != domain.StateRemove {
					existing.State = domain.StateUpdate
				}
				byID[module.ID] = existing
				continue
			}
			module.State = domain.StateUpdate
			byID[module.ID] = module
			continue
		}

		switch {
		case e.flags["remove"]:
			module.State = domain.StateRemove
		case e.flags["update"]:
			module.State = domain.StateUpdate
		case e.flags["disable"]:
			module.State = domain.StateDisable
		default:
			module.State = domain.StateEnable
		}
		byID[module.ID] = module
	}

	out := make([]domain.ModuleDescriptor, 0, len(byID))
	for _, module := range byID {
		out = append(out, module)
	}
	return out
}

var _ ports.ModuleManager = (*ShellModuleManager)(nil)

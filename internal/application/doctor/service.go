package doctor

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"

	appconfig "github.com/doeshing/mmrl-go/internal/application/config"
	"github.com/doeshing/mmrl-go/internal/domain"
	"github.com/doeshing/mmrl-go/internal/infrastructure/rootshell"
	"github.com/doeshing/mmrl-go/internal/ports"
)

// MinFreeStaging is the free space below which staging is reported as a warning.
const MinFreeStaging = 100 << 20

// Pinger is satisfied by the local store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Service runs environment diagnostics.
type Service struct {
	ConfigProvider ports.ConfigProvider
	Privilege      ports.PrivilegeProvider
	Shells         ports.ShellOpener
	Store          Pinger
	StagingDir     string

	// DiskUsage and HostInfo default to gopsutil.
	DiskUsage func(ctx context.Context, path string) (*disk.UsageStat, error)
	HostInfo  func(ctx context.Context) (*host.InfoStat, error)
}

// Run executes checks and returns a report.
func (s *Service) Run(ctx context.Context) (domain.HealthReport, error) {
	var checks []domain.HealthCheck

	cfg, err := s.ConfigProvider.Load(ctx)
	if err != nil {
		checks = append(checks, fail("Config file", fmt.Sprintf("load failed: %v", err)))
		return domain.HealthReport{Checks: checks}, err
	}
	if err := appconfig.Validate(cfg); err != nil {
		checks = append(checks, fail("Config file", err.Error()))
	} else {
		checks = append(checks, ok("Config file", fmt.Sprintf("format %s, working mode %s", cfg.ConfigFormatVersion, cfg.Preferences.WorkingMode)))
	}

	checks = append(checks, s.hostCheck(ctx))

	backend := domain.PrivilegeBackend{}
	if s.Privilege != nil {
		backend = s.Privilege.Detect(ctx)
	}
	if backend.Available() {
		checks = append(checks, ok("Superuser", fmt.Sprintf("%s %s", backend.Kind.ManagerName(), backend.Version)))
	} else {
		checks = append(checks, fail("Superuser", "no supported provider detected"))
	}

	if backend.Available() && s.Shells != nil {
		checks = append(checks, s.shellChecks(ctx, cfg, backend)...)
	} else {
		checks = append(checks, warn("Root shell", "skipped without a superuser provider"))
	}

	if s.Store != nil {
		if err := s.Store.Ping(ctx); err != nil {
			checks = append(checks, fail("Database", err.Error()))
		} else {
			checks = append(checks, ok("Database", cfg.Paths.Database))
		}
	}

	if s.StagingDir != "" {
		checks = append(checks, s.stagingCheck(ctx))
	}

	return domain.HealthReport{Checks: checks}, nil
}

func (s *Service) shellChecks(ctx context.Context, cfg domain.Config, backend domain.PrivilegeBackend) []domain.HealthCheck {
	shell, err := s.Shells.Shell(ctx)
	if err != nil {
		return []domain.HealthCheck{fail("Root shell", err.Error())}
	}

	var checks []domain.HealthCheck
	uid, err := shell.Result(ctx, "id -u")
	switch {
	case err != nil:
		checks = append(checks, fail("Root shell", err.Error()))
	case strings.TrimSpace(uid) != "0":
		checks = append(checks, warn("Root shell", "session is not running as uid 0 (uid "+strings.TrimSpace(uid)+")"))
	default:
		checks = append(checks, ok("Root shell", "uid 0"))
	}

	if tool := backendTool(backend.Kind); tool != "" {
		if shell.IsSuccess(ctx, "command -v "+tool+" >/dev/null 2>&1") {
			checks = append(checks, ok("Provider CLI", tool+" found"))
		} else {
			checks = append(checks, warn("Provider CLI", tool+" not found in PATH"))
		}
	}

	for _, dir := range []string{cfg.GetModulesDir(), cfg.GetModulesUpdateDir()} {
		quoted, err := rootshell.Quote(dir)
		if err != nil {
			checks = append(checks, fail("Modules directory", err.Error()))
			continue
		}
		if shell.IsSuccess(ctx, "[ -d "+quoted+" ]") {
			checks = append(checks, ok("Modules directory", dir))
		} else if dir == cfg.GetModulesUpdateDir() {
			checks = append(checks, ok("Modules directory", dir+" (no pending updates)"))
		} else {
			checks = append(checks, warn("Modules directory", dir+" missing"))
		}
	}
	return checks
}

func (s *Service) hostCheck(ctx context.Context) domain.HealthCheck {
	info := s.HostInfo
	if info == nil {
		info = host.InfoWithContext
	}
	stat, err := info(ctx)
	if err != nil {
		return warn("Host", err.Error())
	}
	return ok("Host", fmt.Sprintf("%s %s, kernel %s (%s)", stat.Platform, stat.PlatformVersion, stat.KernelVersion, stat.KernelArch))
}

func (s *Service) stagingCheck(ctx context.Context) domain.HealthCheck {
	usage := s.DiskUsage
	if usage == nil {
		usage = disk.UsageWithContext
	}
	dir := existingParent(s.StagingDir)
	stat, err := usage(ctx, dir)
	if err != nil {
		return warn("Staging space", err.Error())
	}
	details := fmt.Sprintf("%s free on %s", humanize.IBytes(stat.Free), stat.Path)
	if stat.Free < MinFreeStaging {
		return warn("Staging space", details)
	}
	return ok("Staging space", details)
}

func backendTool(kind domain.BackendKind) string {
	switch kind {
	case domain.BackendMagisk:
		return "magisk"
	case domain.BackendKernelSU:
		return "ksud"
	case domain.BackendAPatch:
		return "apd"
	default:
		return ""
	}
}

func existingParent(dir string) string {
	for {
		if _, err := os.Stat(dir); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return dir
		}
		dir = parent
	}
}

func ok(name, details string) domain.HealthCheck {
	return domain.HealthCheck{Name: name, Status: domain.HealthOK, Details: details}
}

func warn(name, details string) domain.HealthCheck {
	return domain.HealthCheck{Name: name, Status: domain.HealthWarn, Details: details}
}

func fail(name, details string) domain.HealthCheck {
	return domain.HealthCheck{Name: name, Status: domain.HealthError, Details: details}
}

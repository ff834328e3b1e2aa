package doctor

import (
	"context"
	"errors"
	"os/exec"
	"testing"

	"github.com/shirou/gopsutil/v4/disk"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doeshing/mmrl-go/internal/domain"
	"github.com/doeshing/mmrl-go/internal/infrastructure/rootshell"
	"github.com/doeshing/mmrl-go/internal/pkg/logger"
)

type stubConfig struct {
	cfg domain.Config
	err error
}

func (s stubConfig) Load(context.Context) (domain.Config, error) {
	return s.cfg, s.err
}

type stubPrivilege struct {
	backend domain.PrivilegeBackend
}

func (s stubPrivilege) Detect(context.Context) domain.PrivilegeBackend { return s.backend }

func (s stubPrivilege) IsAvailable(context.Context) bool { return s.backend.Available() }

type stubPinger struct{ err error }

func (s stubPinger) Ping(context.Context) error { return s.err }

func statuses(report domain.HealthReport) map[string]domain.HealthStatus {
	out := map[string]domain.HealthStatus{}
	for _, c := range report.Checks {
		if _, seen := out[c.Name]; !seen {
			out[c.Name] = c.Status
		}
	}
	return out
}

func fakeHost(context.Context) (*host.InfoStat, error) {
	return &host.InfoStat{Platform: "android", PlatformVersion: "14", KernelVersion: "5.15", KernelArch: "aarch64"}, nil
}

func TestRunWithoutProvider(t *testing.T) {
	svc := &Service{
		ConfigProvider: stubConfig{cfg: domain.Config{Preferences: domain.Preferences{WorkingMode: "auto"}}},
		Privilege:      stubPrivilege{},
		Store:          stubPinger{err: errors.New("locked")},
		StagingDir:     "/nonexistent/staging",
		HostInfo:       fakeHost,
		DiskUsage: func(_ context.Context, path string) (*disk.UsageStat, error) {
			return &disk.UsageStat{Path: path, Free: 10 << 20}, nil
		},
	}

	report, err := svc.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Failed())

	got := statuses(report)
	assert.Equal(t, domain.HealthOK, got["Config file"])
	assert.Equal(t, domain.HealthOK, got["Host"])
	assert.Equal(t, domain.HealthError, got["Superuser"])
	assert.Equal(t, domain.HealthWarn, got["Root shell"])
	assert.Equal(t, domain.HealthError, got["Database"])
	assert.Equal(t, domain.HealthWarn, got["Staging space"])
}

func TestRunWithShell(t *testing.T) {
	modules := t.TempDir()
	cfg := domain.Config{
		Paths: domain.PathSettings{ModulesDir: modules, ModulesUpdateDir: modules + "_update"},
		Shell: domain.ShellSettings{CloseGraceSeconds: 1, ProbeTimeoutSeconds: 5},
	}
	privilege := stubPrivilege{backend: domain.PrivilegeBackend{Kind: domain.BackendAPatch, Version: domain.Version{Code: 10763, Name: "10763"}}}
	spawn := func(domain.ShellOptions) *exec.Cmd { return exec.Command("/bin/sh") }
	shells := rootshell.NewManagerWithSpawner(cfg, privilege, spawn, logger.NewNop())
	t.Cleanup(func() { _ = shells.Close() })

	svc := &Service{
		ConfigProvider: stubConfig{cfg: cfg},
		Privilege:      privilege,
		Shells:         shells,
		Store:          stubPinger{},
		StagingDir:     t.TempDir(),
		HostInfo:       fakeHost,
		DiskUsage: func(_ context.Context, path string) (*disk.UsageStat, error) {
			return &disk.UsageStat{Path: path, Free: 1 << 30}, nil
		},
	}

	report, err := svc.Run(context.Background())
	require.NoError(t, err)

	got := statuses(report)
	assert.Equal(t, domain.HealthOK, got["Superuser"])
	assert.Contains(t, []domain.HealthStatus{domain.HealthOK, domain.HealthWarn}, got["Root shell"])
	assert.Equal(t, domain.HealthWarn, got["Provider CLI"], "apd is not installed on the test host")
	assert.Equal(t, domain.HealthOK, got["Modules directory"])
	assert.Equal(t, domain.HealthOK, got["Database"])
	assert.Equal(t, domain.HealthOK, got["Staging space"])
}

func TestRunConfigFailure(t *testing.T) {
	svc := &Service{ConfigProvider: stubConfig{err: errors.New("broken yaml")}}
	report, err := svc.Run(context.Background())
	require.Error(t, err)
	require.Len(t, report.Checks, 1)
	assert.Equal(t, domain.HealthError, report.Checks[0].Status)
}

func TestExistingParent(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, dir, existingParent(dir+"/a/b/c"))
}

package install

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/doeshing/mmrl-go/internal/domain"
	"github.com/doeshing/mmrl-go/internal/infrastructure/staging"
	"github.com/doeshing/mmrl-go/internal/pkg/broadcast"
	"github.com/doeshing/mmrl-go/internal/pkg/logger"
	"github.com/doeshing/mmrl-go/internal/ports"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type stubPrivilege struct {
	available bool
}

func (s stubPrivilege) Detect(context.Context) domain.PrivilegeBackend {
	if !s.available {
		return domain.PrivilegeBackend{}
	}
	return domain.PrivilegeBackend{Kind: domain.BackendKernelSU, Version: domain.Version{Code: 11986, Name: "v1.0.3"}}
}

func (s stubPrivilege) IsAvailable(ctx context.Context) bool {
	return s.Detect(ctx).Available()
}

// script describes how the fake backend installs an archive.
type script struct {
	stdout   []string
	stderr   []string
	exitCode int
	// noCallback returns without resolving the callback.
	noCallback bool
	// vanish reports success without leaving the module on disk.
	vanish bool
}

// fakeModules validates by path suffix and installs by module id.
type fakeModules struct {
	mu sync.Mutex
	// metadata by archive base name; staged copies keep the base name as suffix.
	archives  map[string]domain.ModuleDescriptor
	directBad map[string]bool
	scripts   map[string]script
	installed map[string]domain.ModuleDescriptor
	deleteErr error

	infoCalls    []string
	installCalls []string
	deleted      []string
	onInstall    func(path string)
}

func newFakeModules() *fakeModules {
	return &fakeModules{
		archives:  map[string]domain.ModuleDescriptor{},
		directBad: map[string]bool{},
		scripts:   map[string]script{},
		installed: map[string]domain.ModuleDescriptor{},
	}
}

func (f *fakeModules) lookup(path string) (domain.ModuleDescriptor, bool) {
	for name, m := range f.archives {
		if strings.HasSuffix(path, name) {
			return m, true
		}
	}
	return domain.ModuleDescriptor{}, false
}

func (f *fakeModules) ModuleInfo(_ context.Context, path string) (domain.ModuleDescriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.infoCalls = append(f.infoCalls, path)
	if strings.HasPrefix(path, "/sdcard/") && f.directBad[path] {
		return domain.ModuleDescriptor{}, errors.New("permission denied")
	}
	m, ok := f.lookup(path)
	if !ok {
		return domain.ModuleDescriptor{}, domain.ErrInvalidModule
	}
	return m, nil
}

func (f *fakeModules) InstalledModuleInfo(_ context.Context, id string) (domain.ModuleDescriptor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	m, ok := f.installed[id]
	if !ok {
		return domain.ModuleDescriptor{}, domain.ErrModuleNotFound
	}
	return m, nil
}

func (f *fakeModules) Install(_ context.Context, path string, cb ports.InstallCallback) error {
	f.mu.Lock()
	f.installCalls = append(f.installCalls, path)
	m, _ := f.lookup(path)
	sc := f.scripts[m.ID]
	hook := f.onInstall
	f.mu.Unlock()

	if hook != nil {
		hook(path)
	}
	if sc.noCallback {
		return nil
	}

	// Callbacks arrive from another goroutine.
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for _, line := range sc.stdout {
			cb.OnStdout(line)
		}
		for _, line := range sc.stderr {
			cb.OnStderr(line)
		}
		if sc.exitCode == 0 {
			f.mu.Lock()
			if _, ok := f.installed[m.ID]; !ok && !sc.vanish {
				f.installed[m.ID] = m
			}
			f.mu.Unlock()
			cb.OnSuccess(m)
		} else {
			cb.OnFailure()
		}
	}()
	wg.Wait()
	if sc.exitCode != 0 {
		return &domain.CommandError{Command: "ksud module install", ExitCode: sc.exitCode, Kind: domain.ErrInstallScriptFailed}
	}
	return nil
}

func (f *fakeModules) List(context.Context) ([]domain.ModuleDescriptor, error) { return nil, nil }

func (f *fakeModules) SetState(context.Context, string, domain.ModuleState) error { return nil }

func (f *fakeModules) DeleteFile(_ context.Context, path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, path)
	return f.deleteErr
}

// fakeContent treats /sdcard paths as direct and serves bytes for every handle.
type fakeContent struct {
	mu      sync.Mutex
	data    map[string][]byte
	openErr map[string]error
	opens   []string
}

func (f *fakeContent) Resolve(handle string) (string, bool) {
	if strings.HasPrefix(handle, "/sdcard/") {
		return handle, true
	}
	return "", false
}

func (f *fakeContent) Open(_ context.Context, handle string) (io.ReadCloser, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens = append(f.opens, handle)
	if err := f.openErr[handle]; err != nil {
		return nil, 0, err
	}
	data, ok := f.data[handle]
	if !ok {
		data = []byte("PK\x03\x04 archive " + handle)
	}
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

type memoryLocal struct {
	mu      sync.Mutex
	modules map[string]domain.ModuleDescriptor
}

func (m *memoryLocal) InsertLocal(_ context.Context, module domain.ModuleDescriptor) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.modules == nil {
		m.modules = map[string]domain.ModuleDescriptor{}
	}
	m.modules[module.ID] = module
	return nil
}

func (m *memoryLocal) GetLocal(_ context.Context, id string) (domain.ModuleDescriptor, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	mod, ok := m.modules[id]
	return mod, ok, nil
}

func (m *memoryLocal) ListLocal(context.Context) ([]domain.ModuleDescriptor, error) { return nil, nil }

func (m *memoryLocal) DeleteLocal(context.Context, string) error { return nil }

func (m *memoryLocal) ReplaceLocal(context.Context, []domain.ModuleDescriptor) error { return nil }

type memoryVersions struct {
	items []domain.VersionItem
}

func (m *memoryVersions) InsertVersions(_ context.Context, items []domain.VersionItem) error {
	m.items = append(m.items, items...)
	return nil
}

func (m *memoryVersions) DeleteVersionsByURL(context.Context, string) error { return nil }

func (m *memoryVersions) Versions(context.Context, string, string) ([]domain.VersionItem, error) {
	return m.items, nil
}

type memoryHistory struct {
	mu      sync.Mutex
	records []domain.InstallRecord
}

func (m *memoryHistory) SaveInstall(_ context.Context, r domain.InstallRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
	return nil
}

func (m *memoryHistory) Installs(context.Context, int) ([]domain.InstallRecord, error) {
	return m.records, nil
}

type fixture struct {
	engine  *Engine
	modules *fakeModules
	content *fakeContent
	local   *memoryLocal
	history *memoryHistory
	stager  *staging.Dir
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		modules: newFakeModules(),
		content: &fakeContent{data: map[string][]byte{}, openErr: map[string]error{}},
		local:   &memoryLocal{},
		history: &memoryHistory{},
		stager:  staging.New(t.TempDir(), 16, time.Hour, logger.NewNop()),
	}
	f.engine = &Engine{
		Privilege: stubPrivilege{available: true},
		Modules:   f.modules,
		Content:   f.content,
		Stager:    f.stager,
		Local:     f.local,
		History:   f.history,
		Logger:    logger.NewNop(),
	}
	return f
}

func (f *fixture) addModule(archive, id, version string) {
	f.modules.archives[archive] = domain.ModuleDescriptor{ID: id, Name: id, Version: version, VersionCode: 1, State: domain.StateEnable}
}

func archives(handles ...string) []domain.Archive {
	out := make([]domain.Archive, len(handles))
	for i, h := range handles {
		out[i] = domain.Archive{Handle: h}
	}
	return out
}

// collect drains the run's primary subscription until EOF.
func collect(t *testing.T, run *Run) []domain.InstallEvent {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	var events []domain.InstallEvent
	for {
		ev, err := run.Updates.Next(ctx)
		if errors.Is(err, io.EOF) {
			return events
		}
		require.NoError(t, err)
		events = append(events, ev)
	}
}

func count(events []domain.InstallEvent, kind domain.EventKind) int {
	n := 0
	for _, ev := range events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

func lines(events []domain.InstallEvent) []string {
	var out []string
	for _, ev := range events {
		if ev.Kind == domain.EventLog {
			out = append(out, ev.Line)
		}
	}
	return out
}

// assertExplainedFailures checks every Failure is directly preceded by a Log line.
func assertExplainedFailures(t *testing.T, events []domain.InstallEvent) {
	t.Helper()
	for i, ev := range events {
		if ev.Kind != domain.EventFailure {
			continue
		}
		require.Greater(t, i, 0)
		assert.Equal(t, domain.EventLog, events[i-1].Kind, "failure without explanation")
	}
}

func start(t *testing.T, f *fixture, req domain.InstallRequest) (domain.BatchResult, []domain.InstallEvent) {
	t.Helper()
	run, err := f.engine.Start(context.Background(), req)
	require.NoError(t, err)
	events := collect(t, run)
	result, err := run.Wait(context.Background())
	require.NoError(t, err)
	return result, events
}

func TestInstall_FallbackCopyThenSuccess(t *testing.T) {
	f := newFixture(t)
	f.addModule("mod_a.zip", "mod_a", "1.0")
	f.modules.directBad["/sdcard/Download/mod_a.zip"] = true

	result, events := start(t, f, domain.InstallRequest{
		Archives: archives("/sdcard/Download/mod_a.zip"),
		Options:  domain.InstallOptions{DeveloperLogging: true},
	})

	require.True(t, result.Succeeded)
	assert.Equal(t, []string{"/sdcard/Download/mod_a.zip"}, f.content.opens, "exactly one copy")
	require.Len(t, f.modules.infoCalls, 2, "one direct validation and one retry")
	assert.Equal(t, "/sdcard/Download/mod_a.zip", f.modules.infoCalls[0])
	assert.True(t, strings.HasPrefix(f.modules.infoCalls[1], f.stager.Path()))
	require.Len(t, f.modules.installCalls, 1)
	assert.Equal(t, f.modules.infoCalls[1], f.modules.installCalls[0])

	last := events[len(events)-2]
	require.Equal(t, domain.EventSuccess, last.Kind)
	assert.Equal(t, "mod_a", last.Module.ID)
	assert.Equal(t, "1.0", last.Module.Version)
	assert.Equal(t, domain.StateUpdate, last.Module.State)

	final := events[len(events)-1]
	require.Equal(t, domain.EventFinished, final.Kind)
	assert.True(t, final.Result.Succeeded)

	assert.Contains(t, lines(events), "- Copying zip to temp directory")
	assert.Contains(t, lines(events), "- Installing mod_a.zip")
	assert.True(t, result.Results[0].Copied)
	assert.Len(t, result.Results[0].Digest, 64)

	entries, err := f.stager.Entries()
	require.NoError(t, err)
	assert.Empty(t, entries, "staged copy removed")
}

func TestInstall_DirectPathSkipsCopy(t *testing.T) {
	f := newFixture(t)
	f.addModule("mod_b.zip", "mod_b", "2.0")
	f.modules.scripts["mod_b"] = script{stdout: []string{"- Extracting", "- Done"}, stderr: []string{"warn"}}

	result, events := start(t, f, domain.InstallRequest{
		Archives: archives("/sdcard/mod_b.zip"),
		Options:  domain.InstallOptions{DeveloperLogging: true},
	})

	require.True(t, result.Succeeded)
	assert.Empty(t, f.content.opens)
	assert.Len(t, f.modules.infoCalls, 1, "never validate twice")
	assert.Contains(t, lines(events), "Path: /sdcard/mod_b.zip")
	assert.Equal(t, 2, count(events, domain.EventStdout))
	assert.Equal(t, 1, count(events, domain.EventStderr))
	assert.False(t, result.Results[0].Copied)
}

func TestInstall_ValidationFailureStopsBatch(t *testing.T) {
	for k := 1; k <= 4; k++ {
		f := newFixture(t)
		handles := []string{"/sdcard/m1.zip", "/sdcard/m2.zip", "/sdcard/m3.zip", "/sdcard/m4.zip"}
		for i, h := range handles {
			if i+1 == k {
				continue
			}
			name := h[len("/sdcard/"):]
			f.addModule(name, strings.TrimSuffix(name, ".zip"), "1")
		}

		result, events := start(t, f, domain.InstallRequest{Archives: archives(handles...)})

		assert.False(t, result.Succeeded, "k=%d", k)
		assert.Equal(t, k, result.Attempted(), "k=%d", k)
		assert.Len(t, f.modules.installCalls, k-1, "k=%d", k)
		for _, h := range handles[k:] {
			for _, call := range f.modules.infoCalls {
				assert.NotEqual(t, h, call, "archive after the failure touched")
			}
			assert.NotContains(t, f.content.opens, h)
		}
		assert.Contains(t, lines(events), "- Unable to gather module info")
		assert.Contains(t, lines(events), "- Installation aborted due to an error")
		assert.ErrorIs(t, result.Results[k-1].Err, domain.ErrInvalidModule)
		assertExplainedFailures(t, events)
	}
}

func TestInstall_SuccessStateIsAlwaysUpdate(t *testing.T) {
	for _, prior := range []domain.ModuleState{domain.StateEnable, domain.StateDisable, domain.StateRemove, domain.StateUpdate, domain.StateUninstall} {
		f := newFixture(t)
		f.addModule("x.zip", "x", "1")
		f.modules.installed["x"] = domain.ModuleDescriptor{ID: "x", Version: "1", State: prior}

		result, events := start(t, f, domain.InstallRequest{Archives: archives("/sdcard/x.zip")})

		require.True(t, result.Succeeded)
		var success *domain.ModuleDescriptor
		for _, ev := range events {
			if ev.Kind == domain.EventSuccess {
				success = ev.Module
			}
		}
		require.NotNil(t, success)
		assert.Equal(t, domain.StateUpdate, success.State, "prior %s", prior)

		stored, ok, err := f.local.GetLocal(context.Background(), "x")
		require.NoError(t, err)
		require.True(t, ok)
		assert.Equal(t, domain.StateUpdate, stored.State)
	}
}

func TestInstall_ClearTerminalAndScriptFailure(t *testing.T) {
	f := newFixture(t)
	f.addModule("one.zip", "one", "1")
	f.addModule("two.zip", "two", "1")
	f.modules.scripts["two"] = script{stdout: []string{"- Checking", "! Unsupported"}, exitCode: 1}

	result, events := start(t, f, domain.InstallRequest{
		Archives: archives("/sdcard/one.zip", "/sdcard/two.zip"),
		Options:  domain.InstallOptions{ClearTerminalOnMultiple: true},
	})

	assert.False(t, result.Succeeded)
	assert.Equal(t, 2, count(events, domain.EventClearTerminal))

	var afterSecondClear []domain.InstallEvent
	clears := 0
	for _, ev := range events {
		if ev.Kind == domain.EventClearTerminal {
			clears++
			continue
		}
		if clears == 2 {
			afterSecondClear = append(afterSecondClear, ev)
		}
	}
	assert.Equal(t, 2, count(afterSecondClear, domain.EventStdout))
	assert.Equal(t, 1, count(afterSecondClear, domain.EventFailure))
	assert.Contains(t, lines(afterSecondClear), "- Install script exited with code 1")
	assert.ErrorIs(t, result.Results[1].Err, domain.ErrInstallScriptFailed)
	assertExplainedFailures(t, events)

	final := events[len(events)-1]
	require.Equal(t, domain.EventFinished, final.Kind)
	assert.False(t, final.Result.Succeeded)
}

func TestInstall_SingleArchiveDoesNotClear(t *testing.T) {
	f := newFixture(t)
	f.addModule("one.zip", "one", "1")

	_, events := start(t, f, domain.InstallRequest{
		Archives: archives("/sdcard/one.zip"),
		Options:  domain.InstallOptions{ClearTerminalOnMultiple: true},
	})
	assert.Zero(t, count(events, domain.EventClearTerminal))
}

func TestInstall_BackendUnavailable(t *testing.T) {
	f := newFixture(t)
	f.engine.Privilege = stubPrivilege{}
	f.addModule("one.zip", "one", "1")

	result, events := start(t, f, domain.InstallRequest{Archives: archives("/sdcard/one.zip")})

	assert.False(t, result.Succeeded)
	assert.ErrorIs(t, result.Results[0].Err, domain.ErrBackendUnavailable)
	assert.Contains(t, lines(events), "- Service is not available")
	assert.Empty(t, f.modules.infoCalls)
	assertExplainedFailures(t, events)
}

func TestInstall_CopyFailure(t *testing.T) {
	f := newFixture(t)
	f.content.openErr["https://example.com/m.zip"] = errors.New("connection reset")

	result, events := start(t, f, domain.InstallRequest{Archives: archives("https://example.com/m.zip")})

	assert.False(t, result.Succeeded)
	assert.ErrorIs(t, result.Results[0].Err, domain.ErrCopyFailed)
	assert.Contains(t, lines(events), "- Copying failed")
	assert.Empty(t, f.modules.installCalls)
	assertExplainedFailures(t, events)
}

func TestInstall_RemoteArchiveReportsProgress(t *testing.T) {
	f := newFixture(t)
	f.addModule("big.zip", "big", "1")
	f.content.data["https://example.com/dl/big.zip"] = bytes.Repeat([]byte("z"), 300<<10)

	var progressed int64
	f.engine.Progress = func(total int64, description string) io.Writer {
		assert.Equal(t, int64(300<<10), total)
		assert.Equal(t, "big.zip", description)
		return writerFunc(func(p []byte) (int, error) {
			progressed += int64(len(p))
			return len(p), nil
		})
	}

	result, events := start(t, f, domain.InstallRequest{Archives: archives("https://example.com/dl/big.zip")})

	require.True(t, result.Succeeded)
	assert.Equal(t, int64(300<<10), progressed)
	assert.Equal(t, 1, count(events, domain.EventRemoveLastLine))
	assert.Positive(t, count(events, domain.EventSetLastLine))

	// Progress lines never reach the exported log.
	run, err := f.engine.Start(context.Background(), domain.InstallRequest{Archives: archives("https://example.com/dl/big.zip")})
	require.NoError(t, err)
	collect(t, run)
	for _, line := range run.Logs() {
		assert.NotContains(t, line, "%)")
	}
	assert.Contains(t, run.Logs(), "- Copied 307 kB")
}

type writerFunc func([]byte) (int, error)

func (w writerFunc) Write(p []byte) (int, error) { return w(p) }

func TestInstall_DeleteArchiveOnSuccess(t *testing.T) {
	f := newFixture(t)
	f.addModule("one.zip", "one", "1")
	f.modules.deleteErr = errors.New("read-only file system")

	result, _ := start(t, f, domain.InstallRequest{
		Archives: archives("/sdcard/one.zip"),
		Options:  domain.InstallOptions{DeleteArchiveOnSuccess: true},
	})

	assert.True(t, result.Succeeded, "deletion failure is not escalated")
	assert.Equal(t, []string{"/sdcard/one.zip"}, f.modules.deleted)
}

func TestInstall_BackendWithoutResultFails(t *testing.T) {
	f := newFixture(t)
	f.addModule("one.zip", "one", "1")
	f.modules.scripts["one"] = script{noCallback: true}

	result, events := start(t, f, domain.InstallRequest{Archives: archives("/sdcard/one.zip")})

	assert.False(t, result.Succeeded)
	assert.ErrorIs(t, result.Results[0].Err, domain.ErrInstallScriptFailed)
	assertExplainedFailures(t, events)
}

func TestInstall_UnverifiedModuleFails(t *testing.T) {
	f := newFixture(t)
	f.addModule("one.zip", "one", "1")
	f.modules.scripts["one"] = script{stdout: []string{"- Done"}, vanish: true}

	result, events := start(t, f, domain.InstallRequest{Archives: archives("/sdcard/one.zip")})

	assert.False(t, result.Succeeded, "the script's own claim is not trusted")
	assert.ErrorIs(t, result.Results[0].Err, domain.ErrModuleNotFound)
	assert.Zero(t, count(events, domain.EventSuccess))
	assert.Contains(t, lines(events), "- Unable to verify installed module")
	assertExplainedFailures(t, events)
	_, ok, _ := f.local.GetLocal(context.Background(), "one")
	assert.False(t, ok)
}

func TestInstall_CancellationBetweenArchives(t *testing.T) {
	f := newFixture(t)
	f.addModule("one.zip", "one", "1")
	f.addModule("two.zip", "two", "1")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.modules.onInstall = func(string) { cancel() }

	run, err := f.engine.Start(ctx, domain.InstallRequest{Archives: archives("/sdcard/one.zip", "/sdcard/two.zip")})
	require.NoError(t, err)
	events := collect(t, run)
	result, err := run.Wait(context.Background())
	require.NoError(t, err)

	assert.True(t, result.Cancelled)
	assert.False(t, result.Succeeded)
	require.Equal(t, 1, result.Attempted())
	assert.True(t, result.Results[0].Succeeded(), "archive in progress runs to completion")
	assert.Equal(t, 1, count(events, domain.EventSuccess))
	assert.Contains(t, lines(events), "- Installation cancelled")
}

func TestInstall_PersistsVersionsAndHistory(t *testing.T) {
	f := newFixture(t)
	versions := &memoryVersions{}
	f.engine.Versions = versions
	f.addModule("one.zip", "one", "1.2")
	f.addModule("bad.zip", "bad", "1")
	f.modules.scripts["bad"] = script{exitCode: 3}

	req := domain.InstallRequest{Archives: []domain.Archive{
		{
			Handle:  "/sdcard/one.zip",
			RepoURL: "https://repo.example/",
			Version: &domain.VersionItem{Version: "1.2", VersionCode: 12, ZipURL: "https://repo.example/one.zip"},
		},
		{Handle: "/sdcard/bad.zip"},
	}}
	result, _ := start(t, f, req)

	assert.False(t, result.Succeeded)
	require.Len(t, versions.items, 1)
	assert.Equal(t, "https://repo.example/", versions.items[0].RepoURL)
	assert.Equal(t, "one", versions.items[0].ModuleID)

	require.Len(t, f.history.records, 2)
	assert.True(t, f.history.records[0].Success)
	assert.Equal(t, "one", f.history.records[0].ModuleID)
	assert.Equal(t, "kernelsu", f.history.records[0].Backend)
	assert.Equal(t, result.RunID, f.history.records[0].RunID)
	assert.False(t, f.history.records[1].Success)
	assert.Contains(t, f.history.records[1].Error, "exited with code 3")
}

func TestInstall_LateSubscriberSeesTerminal(t *testing.T) {
	f := newFixture(t)
	f.addModule("one.zip", "one", "1")

	result, run, err := f.engine.Install(context.Background(), domain.InstallRequest{Archives: archives("/sdcard/one.zip")})
	require.NoError(t, err)
	require.True(t, result.Succeeded)

	late, err := run.Events.Subscribe()
	require.NoError(t, err)
	ev, err := late.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.EventFinished, ev.Kind)
	_, err = late.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
	run.Updates.Cancel()
}

func TestInstall_SlowObserverKeepsArchiveOutcome(t *testing.T) {
	f := newFixture(t)
	f.engine.BufferSize = 8
	noisy := make([]string, 50)
	for i := range noisy {
		noisy[i] = fmt.Sprintf("line %d", i)
	}
	f.addModule("one.zip", "one", "1")
	f.addModule("two.zip", "two", "1")
	f.modules.scripts["one"] = script{stdout: noisy}
	f.modules.scripts["two"] = script{stdout: noisy, exitCode: 1}

	run, err := f.engine.Start(context.Background(), domain.InstallRequest{Archives: archives("/sdcard/one.zip", "/sdcard/two.zip")})
	require.NoError(t, err)
	<-run.Done()

	events := collect(t, run)
	assert.Equal(t, 1, count(events, domain.EventSuccess))
	assert.Equal(t, 1, count(events, domain.EventFailure))
	assert.Equal(t, 1, count(events, domain.EventFinished))
	assert.Greater(t, run.Updates.Dropped(), uint64(0), "output lines overflowed")
}

func TestRun_AckReleasesFinished(t *testing.T) {
	f := newFixture(t)
	f.addModule("one.zip", "one", "1")

	_, run, err := f.engine.Install(context.Background(), domain.InstallRequest{Archives: archives("/sdcard/one.zip")})
	require.NoError(t, err)
	_, retained := run.Events.Terminal()
	require.True(t, retained)

	run.Ack()
	_, retained = run.Events.Terminal()
	assert.False(t, retained)
	_, err = run.Events.Subscribe()
	assert.ErrorIs(t, err, broadcast.ErrAcknowledged)
	_, err = run.Updates.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)
}

func TestStart_RejectsEmptyBatchAndMissingDeps(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Start(context.Background(), domain.InstallRequest{})
	assert.Error(t, err)

	_, err = (&Engine{}).Start(context.Background(), domain.InstallRequest{Archives: archives("/sdcard/a.zip")})
	assert.Error(t, err)
}

func TestArchiveName(t *testing.T) {
	tests := map[string]string{
		"/sdcard/Download/mod.zip":         "mod.zip",
		"file:///sdcard/x.zip":             "x.zip",
		"https://host/a/b/c.zip?token=abc": "c.zip",
		"https://host/":                    "module.zip",
		"":                                 "module.zip",
	}
	for in, want := range tests {
		assert.Equal(t, want, archiveName(in), in)
	}
}

func TestCompletionResolvesOnce(t *testing.T) {
	c := newCompletion()
	assert.True(t, c.resolve(outcome{ok: true}))
	assert.False(t, c.resolve(outcome{}))
	assert.True(t, c.wait().ok)
}

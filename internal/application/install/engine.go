// Package install runs module archive batches through the privileged backend
// and streams their progress as events.
package install

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"lukechampine.com/blake3"

	"github.com/doeshing/mmrl-go/internal/domain"
	"github.com/doeshing/mmrl-go/internal/ports"
)

// ProgressFactory returns an extra sink for copy progress, e.g. a terminal bar.
// total is -1 when the size is unknown. A sink that is also an io.Closer is
// closed once the copy ends.
type ProgressFactory func(total int64, description string) io.Writer

// Engine orchestrates archive installs end-to-end.
type Engine struct {
	Privilege ports.PrivilegeProvider
	Modules   ports.ModuleManager
	Content   ports.ContentResolver
	Stager    ports.ArchiveStager
	Local     ports.LocalRepository
	Versions  ports.VersionRepository
	History   ports.InstallHistory
	Logger    ports.Logger

	// BufferSize bounds each subscriber's event queue.
	BufferSize int
	Progress   ProgressFactory
	Now        func() time.Time
}

func (e *Engine) validate() error {
	if e.Privilege == nil || e.Modules == nil || e.Content == nil || e.Stager == nil || e.Logger == nil {
		return errors.New("install.Engine dependencies not satisfied")
	}
	return nil
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// Start launches the batch in the background. Cancelling ctx stops the batch
// between archives; an archive already running completes.
func (e *Engine) Start(ctx context.Context, req domain.InstallRequest) (*Run, error) {
	if err := e.validate(); err != nil {
		return nil, err
	}
	if len(req.Archives) == 0 {
		return nil, errors.New("no archives to install")
	}
	run, err := newRun(uuid.NewString(), e.BufferSize)
	if err != nil {
		return nil, err
	}
	go func() {
		run.finish(e.execute(ctx, run, req))
	}()
	return run, nil
}

// Install runs the batch and waits for its result.
func (e *Engine) Install(ctx context.Context, req domain.InstallRequest) (domain.BatchResult, *Run, error) {
	run, err := e.Start(ctx, req)
	if err != nil {
		return domain.BatchResult{}, nil, err
	}
	<-run.Done()
	result, err := run.Wait(context.Background())
	return result, run, err
}

func (e *Engine) execute(ctx context.Context, run *Run, req domain.InstallRequest) domain.BatchResult {
	result := domain.BatchResult{RunID: run.ID, Succeeded: true}
	clearEach := req.Options.ClearTerminalOnMultiple && len(req.Archives) > 1

	e.Logger.Info("install batch started", map[string]interface{}{
		"run":      run.ID,
		"archives": len(req.Archives),
	})

	for _, archive := range req.Archives {
		if ctx.Err() != nil {
			result.Cancelled = true
			result.Succeeded = false
			run.log("- Installation cancelled")
			break
		}
		if clearEach {
			run.publish(domain.ClearTerminalEvent())
		}

		ar := e.installArchive(context.WithoutCancel(ctx), run, archive, req.Options)
		result.Results = append(result.Results, ar)
		e.record(context.WithoutCancel(ctx), run.ID, ar)

		if !ar.Succeeded() {
			result.Succeeded = false
			run.log("- Installation aborted due to an error")
			break
		}
	}

	e.Logger.Info("install batch finished", map[string]interface{}{
		"run":       run.ID,
		"succeeded": result.Succeeded,
		"attempted": result.Attempted(),
		"cancelled": result.Cancelled,
	})
	return result
}

type archiveRun struct {
	engine  *Engine
	run     *Run
	archive domain.Archive
	opts    domain.InstallOptions
	result  domain.ArchiveResult
}

func (a *archiveRun) dev(line string) {
	a.engine.Logger.Debug(line, map[string]interface{}{"run": a.run.ID})
	if a.opts.DeveloperLogging {
		a.run.log(line)
	}
}

// fail publishes the explanation, then the Failure event.
func (a *archiveRun) fail(err error, lines ...string) domain.ArchiveResult {
	for _, line := range lines {
		a.run.log(line)
	}
	a.engine.Logger.Error("install failed", err, map[string]interface{}{
		"run":    a.run.ID,
		"handle": a.archive.Handle,
		"phase":  string(a.result.Phase),
	})
	a.result.Phase = domain.PhaseFailed
	a.result.Err = err
	a.run.publish(domain.FailureEvent())
	return a.result
}

func (e *Engine) installArchive(ctx context.Context, run *Run, archive domain.Archive, opts domain.InstallOptions) domain.ArchiveResult {
	started := e.now()
	a := &archiveRun{
		engine:  e,
		run:     run,
		archive: archive,
		opts:    opts,
		result:  domain.ArchiveResult{Handle: archive.Handle, Phase: domain.PhasePending},
	}
	res := e.runArchive(ctx, a)
	res.Duration = e.now().Sub(started)
	return res
}

func (e *Engine) runArchive(ctx context.Context, a *archiveRun) domain.ArchiveResult {
	a.result.Phase = domain.PhaseResolving
	if !e.Privilege.IsAvailable(ctx) {
		return a.fail(domain.ErrBackendUnavailable, "- Service is not available")
	}

	source, direct := e.Content.Resolve(a.archive.Handle)
	installPath := source
	var module domain.ModuleDescriptor
	validated := false

	if direct {
		a.dev("Path: " + source)
		a.result.Phase = domain.PhaseValidating
		info, err := e.Modules.ModuleInfo(ctx, source)
		if err == nil {
			module = info
			validated = true
			a.dev("Module info: " + describe(info))
		} else {
			e.Logger.Debug("direct validation failed, copying", map[string]interface{}{
				"path":  source,
				"error": err.Error(),
			})
		}
	}

	if !validated {
		a.result.Phase = domain.PhaseCopying
		a.run.log("- Copying zip to temp directory")
		staged, digest, err := e.copyArchive(ctx, a.run, a.archive.Handle)
		if err != nil {
			return a.fail(fmt.Errorf("%w: %w", domain.ErrCopyFailed, err), "- Copying failed")
		}
		defer func() {
			if err := e.Stager.Remove(staged); err != nil {
				e.Logger.Warn("remove staged archive", map[string]interface{}{
					"path":  staged,
					"error": err.Error(),
				})
			}
		}()
		a.result.Copied = true
		a.result.Digest = digest
		a.dev("Path: " + staged)

		a.result.Phase = domain.PhaseValidating
		info, err := e.Modules.ModuleInfo(ctx, staged)
		if err != nil {
			if !errors.Is(err, domain.ErrInvalidModule) {
				err = fmt.Errorf("%w: %w", domain.ErrInvalidModule, err)
			}
			return a.fail(err, "- Unable to gather module info")
		}
		module = info
		installPath = staged
		a.dev("Module info: " + describe(info))
	}

	a.result.Phase = domain.PhaseExecuting
	a.run.log("- Installing " + archiveName(a.archive.Handle))
	claimed, err := e.runScript(ctx, a.run, installPath)
	if err != nil {
		var cmdErr *domain.CommandError
		if errors.As(err, &cmdErr) {
			return a.fail(err, fmt.Sprintf("- Install script exited with code %d", cmdErr.ExitCode))
		}
		return a.fail(err, "- Installation failed: "+err.Error())
	}
	if claimed != nil && claimed.ID != module.ID {
		e.Logger.Warn("install script reported a different module", map[string]interface{}{
			"claimed":   claimed.ID,
			"validated": module.ID,
		})
	}

	installed, err := e.Modules.InstalledModuleInfo(ctx, module.ID)
	if err != nil {
		return a.fail(err, "- Unable to verify installed module")
	}
	final := installed.AsInstalled()
	a.result.Module = &final

	e.persist(ctx, a, final, source, direct)

	a.result.Phase = domain.PhaseSucceeded
	a.run.publish(domain.SuccessEvent(final))
	return a.result
}

// runScript invokes the backend and waits for the single callback outcome.
func (e *Engine) runScript(ctx context.Context, run *Run, archivePath string) (*domain.ModuleDescriptor, error) {
	done := newCompletion()
	callback := &sink{run: run, done: done}

	err := e.Modules.Install(ctx, archivePath, callback)
	if err != nil {
		done.resolve(outcome{})
		return nil, err
	}
	// The backend resolves the callback before returning; guard against one
	// that does not.
	if done.resolve(outcome{}) {
		return nil, fmt.Errorf("%w: backend returned without a result", domain.ErrInstallScriptFailed)
	}
	out := done.wait()
	if !out.ok {
		return nil, domain.ErrInstallScriptFailed
	}
	return out.module, nil
}

func (e *Engine) persist(ctx context.Context, a *archiveRun, module domain.ModuleDescriptor, source string, direct bool) {
	if e.Local != nil {
		if err := e.Local.InsertLocal(ctx, module); err != nil {
			e.Logger.Error("record installed module", err, map[string]interface{}{"module": module.ID})
		}
	}

	if e.Versions != nil && a.archive.Version != nil {
		item := *a.archive.Version
		if item.RepoURL == "" {
			item.RepoURL = a.archive.RepoURL
		}
		if item.ModuleID == "" {
			item.ModuleID = module.ID
		}
		if item.RepoURL != "" {
			if err := e.Versions.InsertVersions(ctx, []domain.VersionItem{item}); err != nil {
				e.Logger.Error("update version cache", err, map[string]interface{}{"module": module.ID})
			}
		}
	}

	if a.opts.DeleteArchiveOnSuccess && direct {
		if err := e.Modules.DeleteFile(ctx, source); err != nil {
			e.Logger.Error("delete archive", err, map[string]interface{}{"path": source})
		} else {
			a.dev("Deleted: " + source)
		}
	}
}

func (e *Engine) copyArchive(ctx context.Context, run *Run, handle string) (string, string, error) {
	rc, size, err := e.Content.Open(ctx, handle)
	if err != nil {
		return "", "", err
	}
	defer rc.Close()

	name := archiveName(handle)
	staged, w, err := e.Stager.Create(name)
	if err != nil {
		return "", "", err
	}

	hasher := blake3.New(32, nil)
	progress := &progressWriter{run: run, total: size}
	writers := []io.Writer{w, hasher, progress}
	var extra io.Writer
	if e.Progress != nil {
		if extra = e.Progress(size, name); extra != nil {
			writers = append(writers, extra)
		}
	}

	// Hide WriterTo so the copy advances in chunks and progress moves.
	n, err := io.CopyBuffer(io.MultiWriter(writers...), struct{ io.Reader }{rc}, make([]byte, 32<<10))
	if closeErr := w.Close(); err == nil {
		err = closeErr
	}
	if c, ok := extra.(io.Closer); ok {
		_ = c.Close()
	}
	progress.clear()
	if err != nil {
		if rmErr := e.Stager.Remove(staged); rmErr != nil {
			e.Logger.Warn("remove partial archive", map[string]interface{}{"path": staged, "error": rmErr.Error()})
		}
		return "", "", err
	}
	if size >= 0 && n != size {
		_ = e.Stager.Remove(staged)
		return "", "", fmt.Errorf("short copy: %d of %d bytes", n, size)
	}

	run.log(fmt.Sprintf("- Copied %s", humanize.Bytes(uint64(n))))
	return staged, hex.EncodeToString(hasher.Sum(nil)), nil
}

func (e *Engine) record(ctx context.Context, runID string, ar domain.ArchiveResult) {
	if e.History == nil {
		return
	}
	rec := domain.InstallRecord{
		RunID:      runID,
		Handle:     ar.Handle,
		Backend:    e.Privilege.Detect(ctx).Kind.String(),
		Success:    ar.Succeeded(),
		Digest:     ar.Digest,
		DurationMS: ar.Duration.Milliseconds(),
		Timestamp:  e.now(),
	}
	if ar.Module != nil {
		rec.ModuleID = ar.Module.ID
		rec.Version = ar.Module.Version
	}
	if ar.Err != nil {
		rec.Error = ar.Err.Error()
	}
	if err := e.History.SaveInstall(ctx, rec); err != nil {
		e.Logger.Warn("save install history", map[string]interface{}{"error": err.Error()})
	}
}

// archiveName is the display name of a handle: the last path element of a
// path or URL.
func archiveName(handle string) string {
	if u, err := url.Parse(handle); err == nil && u.Scheme != "" && u.Path != "" {
		handle = u.Path
	}
	name := path.Base(strings.ReplaceAll(handle, "\\", "/"))
	if name == "." || name == "/" || name == "" {
		return "module.zip"
	}
	return name
}

func describe(m domain.ModuleDescriptor) string {
	return fmt.Sprintf("id=%s name=%q version=%s (%d) author=%q", m.ID, m.Name, m.Version, m.VersionCode, m.Author)
}

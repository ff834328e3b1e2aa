package rootshell

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"

	"github.com/doeshing/mmrl-go/internal/domain"
	"github.com/doeshing/mmrl-go/internal/ports"
)

// killDrainTimeout bounds how long teardown waits for pipes to close after the
// process group was killed.
const killDrainTimeout = time.Second

// Session is one long-lived privileged shell. Commands run strictly in
// submission order on a single worker goroutine. Each is syntax-checked on
// submission and evaluated as one quoted word in the current shell, so cwd and
// environment persist and a bad command cannot swallow the sentinel markers.
//
// Close policy: queued commands that have not started complete with
// ErrSessionClosed, the in-flight command runs to completion, then the shell is
// asked to exit and its process group is killed after the grace period.
type Session struct {
	opts   domain.ShellOptions
	grace  time.Duration
	logger ports.Logger

	cmd    *exec.Cmd
	stdin  io.WriteCloser
	outCh  chan string
	errCh  chan string
	pgid   int
	alive  atomic.Bool
	killed atomic.Bool

	mu      sync.Mutex
	queue   []*request
	closed  bool
	notify  chan struct{}
	closing chan struct{}

	closeOnce sync.Once
	done      chan struct{}
}

type request struct {
	command   string
	handler   domain.LineHandler
	result    domain.CommandResult
	err       error
	done      chan struct{}
	abandoned atomic.Bool
}

func (r *request) finish(err error) {
	r.err = err
	if r.done != nil {
		close(r.done)
	}
}

func startSession(cmd *exec.Cmd, opts domain.ShellOptions, grace time.Duration, logger ports.Logger) (*Session, error) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdin pipe: %v", domain.ErrSessionStartFailed, err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stdout pipe: %v", domain.ErrSessionStartFailed, err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: stderr pipe: %v", domain.ErrSessionStartFailed, err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrSessionStartFailed, err)
	}

	s := &Session{
		opts:    opts,
		grace:   grace,
		logger:  logger,
		cmd:     cmd,
		stdin:   stdin,
		outCh:   make(chan string, 64),
		errCh:   make(chan string, 64),
		pgid:    cmd.Process.Pid,
		notify:  make(chan struct{}, 1),
		closing: make(chan struct{}),
		done:    make(chan struct{}),
	}
	s.alive.Store(true)

	go s.readLines(stdout, s.outCh)
	go s.readLines(stderr, s.errCh)
	go s.work()

	return s, nil
}

func (s *Session) readLines(r io.Reader, ch chan<- string) {
	defer close(ch)
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			select {
			case ch <- strings.TrimRight(line, "\r\n"):
			case <-s.done:
				return
			}
		}
		if err != nil {
			return
		}
	}
}

// Options returns the flags the session was opened with.
func (s *Session) Options() domain.ShellOptions {
	return s.opts
}

// Alive reports whether the shell process is still serving commands.
func (s *Session) Alive() bool {
	return s.alive.Load()
}

// Done is closed once the shell process has been reaped.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) enqueue(req *request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return domain.ErrSessionClosed
	}
	s.queue = append(s.queue, req)
	select {
	case s.notify <- struct{}{}:
	default:
	}
	return nil
}

func (s *Session) dequeue() *request {
	for {
		s.mu.Lock()
		if len(s.queue) > 0 {
			req := s.queue[0]
			s.queue[0] = nil
			s.queue = s.queue[1:]
			s.mu.Unlock()
			return req
		}
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return nil
		}

		select {
		case <-s.notify:
		case <-s.closing:
		}
	}
}

func (s *Session) work() {
	for {
		req := s.dequeue()
		if req == nil {
			break
		}
		if req.abandoned.Load() {
			req.finish(context.Canceled)
			continue
		}
		if err := s.execute(req); err != nil {
			req.finish(err)
			s.shutdown()
			continue
		}
		req.finish(nil)
	}
	s.teardown()
}

// execute writes one wrapped command and collects output until both sentinel
// markers arrive. A returned error means the shell is gone.
func (s *Session) execute(req *request) error {
	marker := "__MMRL_" + strings.ReplaceAll(uuid.NewString(), "-", "") + "__"
	// command eval keeps a syntax error in eval from exiting a POSIX shell.
	script := "{\ncommand eval " + evalWord(req.command) + "\n} </dev/null\n" +
		"__mmrl_rc=$?\n" +
		"printf '%s %d\\n' '" + marker + "' \"$__mmrl_rc\"\n" +
		"printf '%s\\n' '" + marker + "' >&2\n"

	if s.opts.DeveloperMode {
		s.logger.Debug("shell exec", map[string]interface{}{"command": req.command})
	}

	req.result.Command = req.command
	if _, err := io.WriteString(s.stdin, script); err != nil {
		return fmt.Errorf("%w: write command: %v", domain.ErrSessionClosed, err)
	}

	outCh, errCh := s.outCh, s.errCh
	gotOut, gotErr := false, false
	for !gotOut || !gotErr {
		select {
		case line, ok := <-outCh:
			if !ok {
				if !gotOut {
					return fmt.Errorf("%w: shell exited", domain.ErrSessionClosed)
				}
				outCh = nil
				continue
			}
			if idx := strings.Index(line, marker); idx >= 0 {
				if idx > 0 {
					s.emitStdout(req, line[:idx])
				}
				code, err := strconv.Atoi(strings.TrimSpace(line[idx+len(marker):]))
				if err != nil {
					code = -1
				}
				req.result.ExitCode = code
				gotOut = true
				continue
			}
			s.emitStdout(req, line)
		case line, ok := <-errCh:
			if !ok {
				if !gotErr {
					return fmt.Errorf("%w: shell exited", domain.ErrSessionClosed)
				}
				errCh = nil
				continue
			}
			if idx := strings.Index(line, marker); idx >= 0 {
				if idx > 0 {
					s.emitStderr(req, line[:idx])
				}
				gotErr = true
				continue
			}
			s.emitStderr(req, line)
		}
	}

	if s.opts.DeveloperMode && req.result.ExitCode != 0 {
		s.logger.Debug("shell exit", map[string]interface{}{"command": req.command, "code": req.result.ExitCode})
	}
	return nil
}

func (s *Session) emitStdout(req *request, line string) {
	req.result.Stdout = append(req.result.Stdout, line)
	if req.handler.Stdout != nil {
		req.handler.Stdout(line)
	}
}

func (s *Session) emitStderr(req *request, line string) {
	req.result.Stderr = append(req.result.Stderr, line)
	if req.handler.Stderr != nil {
		req.handler.Stderr(line)
	}
}

// shutdown stops accepting commands and fails everything still queued.
func (s *Session) shutdown() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		pending := s.queue
		s.queue = nil
		s.mu.Unlock()

		for _, req := range pending {
			req.finish(domain.ErrSessionClosed)
		}
		close(s.closing)
	})
}

func (s *Session) teardown() {
	s.alive.Store(false)
	_, _ = io.WriteString(s.stdin, "exit\n")
	_ = s.stdin.Close()

	if !s.drain(s.grace) {
		s.kill()
		if !s.drain(killDrainTimeout) {
			s.logger.Warn("root shell pipes still open after kill", map[string]interface{}{"pid": s.pgid})
		}
	}

	if err := s.cmd.Wait(); err != nil && !s.killed.Load() {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			s.logger.Warn("root shell wait failed", map[string]interface{}{"error": err.Error()})
		}
	}
	close(s.done)
}

// drain discards output until both pipes reach EOF or the timeout expires.
func (s *Session) drain(timeout time.Duration) bool {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	outCh, errCh := s.outCh, s.errCh
	for outCh != nil || errCh != nil {
		select {
		case _, ok := <-outCh:
			if !ok {
				outCh = nil
			}
		case _, ok := <-errCh:
			if !ok {
				errCh = nil
			}
		case <-timer.C:
			return false
		}
	}
	return true
}

func (s *Session) kill() {
	if s.killed.Swap(true) {
		return
	}
	if err := unix.Kill(-s.pgid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		s.logger.Warn("kill root shell process group", map[string]interface{}{"pid": s.pgid, "error": err.Error()})
	}
}

// Close implements ports.RootShell. It is idempotent and blocks until the
// shell process has been reaped.
func (s *Session) Close() error {
	s.shutdown()
	<-s.done
	return nil
}

// Terminate kills the shell immediately. The in-flight command fails with
// ErrSessionClosed.
func (s *Session) Terminate() {
	s.shutdown()
	s.kill()
	<-s.done
}

func (s *Session) submit(ctx context.Context, command string, handler domain.LineHandler) (domain.CommandResult, error) {
	if err := ctx.Err(); err != nil {
		return domain.CommandResult{}, err
	}
	if err := CheckSyntax(command); err != nil {
		return domain.CommandResult{}, err
	}
	req := &request{command: command, handler: handler, done: make(chan struct{})}
	if err := s.enqueue(req); err != nil {
		return domain.CommandResult{}, err
	}

	select {
	case <-req.done:
		return req.result, req.err
	case <-ctx.Done():
		// An already started command keeps running; its output is discarded.
		req.abandoned.Store(true)
		return domain.CommandResult{}, ctx.Err()
	}
}

// Exec queues a command without waiting for it.
func (s *Session) Exec(ctx context.Context, command string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := CheckSyntax(command); err != nil {
		return err
	}
	return s.enqueue(&request{command: command})
}

// Run executes a command, streaming its lines to handler in order.
func (s *Session) Run(ctx context.Context, command string, handler domain.LineHandler) (domain.CommandResult, error) {
	return s.submit(ctx, command, handler)
}

// Result returns the command's stdout with the trailing newline trimmed,
// regardless of its exit code.
func (s *Session) Result(ctx context.Context, command string) (string, error) {
	res, err := s.submit(ctx, command, domain.LineHandler{})
	if err != nil {
		return "", err
	}
	return strings.Join(res.Stdout, "\n"), nil
}

// IsSuccess reports whether the command ran and exited 0.
func (s *Session) IsSuccess(ctx context.Context, command string) bool {
	res, err := s.submit(ctx, command, domain.LineHandler{})
	return err == nil && res.Success()
}

// ExitCode returns the command's exit status.
func (s *Session) ExitCode(ctx context.Context, command string) (int, error) {
	res, err := s.submit(ctx, command, domain.LineHandler{})
	if err != nil {
		return -1, err
	}
	return res.ExitCode, nil
}

// ReadFile reads a file with root privileges. Bytes travel base64 encoded so
// binary content survives the line-oriented pipe.
func (s *Session) ReadFile(ctx context.Context, path string) ([]byte, error) {
	quoted, err := Quote(path)
	if err != nil {
		return nil, err
	}
	res, err := s.submit(ctx, "base64 < "+quoted, domain.LineHandler{})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if !res.Success() {
		return nil, fmt.Errorf("read %s: %w", path, domain.ErrNotFound)
	}
	return DecodeBase64Lines(res.Stdout)
}

// DecodeBase64Lines joins wrapped base64 output and decodes it.
func DecodeBase64Lines(lines []string) ([]byte, error) {
	data, err := base64.StdEncoding.DecodeString(strings.Join(lines, ""))
	if err != nil {
		return nil, fmt.Errorf("decode base64: %w", err)
	}
	return data, nil
}

var _ ports.RootShell = (*Session)(nil)

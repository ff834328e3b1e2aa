package privilege

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"syscall"
)

// Prober runs the backend probe and returns its stdout.
type Prober interface {
	Probe(ctx context.Context) (string, error)
}

// CommandProber runs an argv on the host, typically `sh -c "su -v; su -V"`.
type CommandProber struct {
	argv []string
}

// NewCommandProber builds a prober for argv.
func NewCommandProber(argv []string) *CommandProber {
	return &CommandProber{argv: argv}
}

// Probe implements Prober. The process and its children are killed when ctx ends.
func (p *CommandProber) Probe(ctx context.Context) (string, error) {
	if len(p.argv) == 0 {
		return "", errors.New("empty probe command")
	}

	c := exec.CommandContext(ctx, p.argv[0], p.argv[1:]...)
	c.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	c.Cancel = func() error {
		return syscall.Kill(-c.Process.Pid, syscall.SIGKILL)
	}
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	if err := c.Run(); err != nil {
		if ctx.Err() != nil {
			return "", fmt.Errorf("probe timed out: %w", ctx.Err())
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("probe exited with code %d: %s", exitErr.ExitCode(), bytes.TrimSpace(stderr.Bytes()))
		}
		return "", fmt.Errorf("run probe: %w", err)
	}
	return stdout.String(), nil
}

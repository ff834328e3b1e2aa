// Package rootshell manages the single privileged shell session shared by the
// install pipeline and the module web surface.
package rootshell

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/doeshing/mmrl-go/internal/domain"
	"github.com/doeshing/mmrl-go/internal/ports"
)

const handshakeToken = "__MMRL_READY__"

// Spawner builds the unstarted privileged process for a session.
type Spawner func(opts domain.ShellOptions) *exec.Cmd

// SuSpawner runs su, asking for the global mount namespace when requested.
func SuSpawner(su string) Spawner {
	return func(opts domain.ShellOptions) *exec.Cmd {
		if opts.GlobalMount {
			return exec.Command(su, "--mount-master")
		}
		return exec.Command(su)
	}
}

// Manager owns at most one live Session.
type Manager struct {
	provider         ports.PrivilegeProvider
	spawn            Spawner
	defaults         domain.ShellOptions
	grace            time.Duration
	handshakeTimeout time.Duration
	logger           ports.Logger

	mu      sync.Mutex
	session *Session
}

// NewManager builds a manager spawning the configured su binary.
func NewManager(cfg domain.Config, provider ports.PrivilegeProvider, logger ports.Logger) *Manager {
	return NewManagerWithSpawner(cfg, provider, SuSpawner(cfg.GetSuBinary()), logger)
}

// NewManagerWithSpawner allows replacing su, mostly for tests.
func NewManagerWithSpawner(cfg domain.Config, provider ports.PrivilegeProvider, spawn Spawner, logger ports.Logger) *Manager {
	return &Manager{
		provider:         provider,
		spawn:            spawn,
		defaults:         cfg.ShellOptions(),
		grace:            cfg.GetCloseGrace(),
		handshakeTimeout: cfg.GetProbeTimeout(),
		logger:           logger,
	}
}

// Open returns the live session, starting one if needed. The options of the
// session that is already running win over opts.
func (m *Manager) Open(ctx context.Context, opts domain.ShellOptions) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session != nil && m.session.Alive() {
		if m.session.Options() != opts {
			m.logger.Warn("root shell already open with different options", map[string]interface{}{
				"current":   fmt.Sprintf("%+v", m.session.Options()),
				"requested": fmt.Sprintf("%+v", opts),
			})
		}
		return m.session, nil
	}

	if !m.provider.IsAvailable(ctx) {
		return nil, domain.ErrBackendUnavailable
	}

	session, err := startSession(m.spawn(opts), opts, m.grace, m.logger)
	if err != nil {
		return nil, err
	}

	hctx, cancel := context.WithTimeout(ctx, m.handshakeTimeout)
	defer cancel()
	out, err := session.Result(hctx, "echo "+handshakeToken)
	if err != nil || strings.TrimSpace(out) != handshakeToken {
		session.Terminate()
		if err == nil {
			err = fmt.Errorf("unexpected handshake reply %q", out)
		}
		return nil, fmt.Errorf("%w: %v", domain.ErrSessionStartFailed, err)
	}

	m.logger.Debug("root shell opened", map[string]interface{}{
		"pid":          session.pgid,
		"global_mount": opts.GlobalMount,
	})
	m.session = session
	return session, nil
}

// Shell implements ports.ShellOpener with the configured default options.
func (m *Manager) Shell(ctx context.Context) (ports.RootShell, error) {
	return m.Open(ctx, m.defaults)
}

// Current returns the live session, if any, without opening one.
func (m *Manager) Current() (*Session, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil || !m.session.Alive() {
		return nil, false
	}
	return m.session, true
}

// Close tears down the live session. It is safe to call repeatedly.
func (m *Manager) Close() error {
	m.mu.Lock()
	session := m.session
	m.session = nil
	m.mu.Unlock()

	if session == nil {
		return nil
	}
	return session.Close()
}

var _ ports.ShellOpener = (*Manager)(nil)

package rootshell

import (
	"context"
	"os/exec"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doeshing/mmrl-go/internal/domain"
	"github.com/doeshing/mmrl-go/internal/pkg/logger"
)

func TestManager_BackendUnavailable(t *testing.T) {
	m := NewManagerWithSpawner(testConfig(), stubProvider{kind: domain.BackendNone}, shSpawner, logger.NewNop())

	_, err := m.Open(context.Background(), domain.ShellOptions{})
	assert.ErrorIs(t, err, domain.ErrBackendUnavailable)
}

func TestManager_SpawnFailure(t *testing.T) {
	spawn := func(domain.ShellOptions) *exec.Cmd { return exec.Command("/nonexistent/su") }
	m := NewManagerWithSpawner(testConfig(), stubProvider{kind: domain.BackendKernelSU}, spawn, logger.NewNop())

	_, err := m.Open(context.Background(), domain.ShellOptions{})
	assert.ErrorIs(t, err, domain.ErrSessionStartFailed)
}

func TestManager_HandshakeFailure(t *testing.T) {
	spawn := func(domain.ShellOptions) *exec.Cmd { return exec.Command("/bin/sh", "-c", "exit 1") }
	m := NewManagerWithSpawner(testConfig(), stubProvider{kind: domain.BackendAPatch}, spawn, logger.NewNop())

	_, err := m.Open(context.Background(), domain.ShellOptions{})
	assert.ErrorIs(t, err, domain.ErrSessionStartFailed)
	_, ok := m.Current()
	assert.False(t, ok)
}

func TestManager_SingleSession(t *testing.T) {
	m := NewManagerWithSpawner(testConfig(), stubProvider{kind: domain.BackendMagisk}, shSpawner, logger.NewNop())
	defer func() { _ = m.Close() }()

	first, err := m.Open(context.Background(), domain.ShellOptions{})
	require.NoError(t, err)
	second, err := m.Open(context.Background(), domain.ShellOptions{GlobalMount: true})
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, domain.ShellOptions{}, second.Options())

	shell, err := m.Shell(context.Background())
	require.NoError(t, err)
	assert.Same(t, first, shell.(*Session))

	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	third, err := m.Open(context.Background(), domain.ShellOptions{})
	require.NoError(t, err)
	assert.NotSame(t, first, third)
}

func TestSuSpawner(t *testing.T) {
	cmd := SuSpawner("su")(domain.ShellOptions{GlobalMount: true})
	assert.Equal(t, []string{"su", "--mount-master"}, cmd.Args)

	cmd = SuSpawner("/system/bin/su")(domain.ShellOptions{})
	assert.Equal(t, []string{"/system/bin/su"}, cmd.Args)
}

func TestQuote(t *testing.T) {
	q, err := Quote("/data/local/tmp/my module.zip")
	require.NoError(t, err)
	assert.Equal(t, "'/data/local/tmp/my module.zip'", q)

	q, err = Quote("it's")
	require.NoError(t, err)
	assert.NotContains(t, q, "\x00")

	_, err = Quote("bad\x00path")
	assert.Error(t, err)
}

package helpers

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doeshing/mmrl-go/internal/domain"
	configinfra "github.com/doeshing/mmrl-go/internal/infrastructure/config"
	"github.com/doeshing/mmrl-go/internal/pkg/broadcast"
)

func TestConsoleRendererPlainOutput(t *testing.T) {
	ch := broadcast.New[domain.InstallEvent](16)
	sub, err := ch.Subscribe()
	require.NoError(t, err)

	ch.Publish(domain.LogEvent("first"))
	ch.Publish(domain.SetLastLineEvent("progress"))
	ch.Publish(domain.StderrEvent("hidden"))
	ch.Publish(domain.StdoutEvent("second"))
	ch.Publish(domain.RemoveLastLineEvent())
	ch.Close(domain.FinishedEvent(domain.BatchResult{RunID: "run", Succeeded: true}))

	var out bytes.Buffer
	r := NewConsoleRenderer(&out, false, false)
	result, err := r.Consume(context.Background(), sub)
	require.NoError(t, err)

	assert.Equal(t, "run", result.RunID)
	assert.True(t, result.Succeeded)
	assert.Equal(t, "first\nsecond\n", out.String())
	assert.Equal(t, []string{"progress"}, r.Lines())
}

func TestConsoleRendererRequiresTerminalEvent(t *testing.T) {
	ch := broadcast.New[domain.InstallEvent](4)
	sub, err := ch.Subscribe()
	require.NoError(t, err)
	sub.Cancel()

	_, err = NewConsoleRenderer(&bytes.Buffer{}, false, false).Consume(context.Background(), sub)
	assert.Error(t, err)
}

func TestLookupConfigValue(t *testing.T) {
	cfg := configinfra.DefaultConfig()

	value, err := LookupConfigValue(cfg, "webui.domain")
	require.NoError(t, err)
	assert.Equal(t, "mui.kernelsu.org", value)

	value, err = LookupConfigValue(cfg, "preferences.clear_install_terminal")
	require.NoError(t, err)
	assert.Equal(t, true, value)

	_, err = LookupConfigValue(cfg, "preferences.nope")
	assert.Error(t, err)
}

func TestTraverseNestedMap(t *testing.T) {
	tree := map[string]interface{}{"a": map[string]interface{}{"b": 1}}

	v, ok := TraverseNestedMap(tree, []string{"a", "b"})
	assert.True(t, ok)
	assert.Equal(t, 1, v)

	_, ok = TraverseNestedMap(tree, []string{"a", "b", "c"})
	assert.False(t, ok)
}

func TestPrintModules(t *testing.T) {
	var out bytes.Buffer
	err := PrintModules(&out, []domain.ModuleDescriptor{
		{ID: "zygisk", Name: "Zygisk Next", Version: "1.0", VersionCode: 100, State: domain.StateEnable, HasWebUI: true},
	})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "zygisk")
	assert.Contains(t, out.String(), "Zygisk Next")
	assert.Contains(t, out.String(), "1.0 (100)")
}

func TestIsTerminalRejectsBuffers(t *testing.T) {
	assert.False(t, IsTerminal(&bytes.Buffer{}))
}

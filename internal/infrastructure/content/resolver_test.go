package content

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/doeshing/mmrl-go/internal/pkg/logger"
)

func TestResolver_Resolve(t *testing.T) {
	r := NewResolver(logger.NewNop())

	path, ok := r.Resolve("/sdcard/Download/mod.zip")
	assert.True(t, ok)
	assert.Equal(t, "/sdcard/Download/mod.zip", path)

	path, ok = r.Resolve("file:///sdcard/Download/a%20b.zip")
	assert.True(t, ok)
	assert.Equal(t, "/sdcard/Download/a b.zip", path)

	_, ok = r.Resolve("https://example.com/mod.zip")
	assert.False(t, ok)

	_, ok = r.Resolve("content://com.android.providers.downloads/document/12")
	assert.False(t, ok)

	_, ok = r.Resolve("  ")
	assert.False(t, ok)
}

func TestResolver_OpenLocal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mod.zip")
	require.NoError(t, os.WriteFile(path, []byte("payload"), 0o600))

	rc, size, err := NewResolver(logger.NewNop()).Open(context.Background(), path)
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
	assert.Equal(t, int64(7), size)
}

func TestResolver_OpenRemoteRetries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte("remote"))
	}))
	defer srv.Close()

	rc, _, err := NewResolver(logger.NewNop()).Open(context.Background(), srv.URL+"/mod.zip")
	require.NoError(t, err)
	defer rc.Close()

	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	assert.Equal(t, "remote", string(data))
	assert.Equal(t, int32(2), hits.Load())
}

func TestResolver_OpenRemoteNotFoundIsPermanent(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		http.NotFound(w, r)
	}))
	defer srv.Close()

	_, _, err := NewResolver(logger.NewNop()).Open(context.Background(), srv.URL+"/missing.zip")
	assert.Error(t, err)
	assert.Equal(t, int32(1), hits.Load())
}

func TestResolver_UnsupportedScheme(t *testing.T) {
	_, _, err := NewResolver(logger.NewNop()).Open(context.Background(), "content://downloads/12")
	assert.Error(t, err)
}

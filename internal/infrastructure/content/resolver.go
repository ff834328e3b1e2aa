// Package content resolves opaque archive handles into readable streams.
package content

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/doeshing/mmrl-go/internal/ports"
)

// DefaultHTTPTimeout bounds connecting and receiving response headers.
const DefaultHTTPTimeout = 60 * time.Second

// Resolver handles plain paths, file:// URIs and http(s) URLs.
type Resolver struct {
	client     *http.Client
	maxRetries uint64
	logger     ports.Logger
}

// NewResolver builds a resolver with a default HTTP client.
func NewResolver(logger ports.Logger) *Resolver {
	return &Resolver{
		client: &http.Client{
			Transport: &http.Transport{
				Proxy:                 http.ProxyFromEnvironment,
				ResponseHeaderTimeout: DefaultHTTPTimeout,
			},
		},
		maxRetries: 3,
		logger:     logger,
	}
}

// WithHTTPClient swaps the client, mostly for tests.
func (r *Resolver) WithHTTPClient(client *http.Client) *Resolver {
	r.client = client
	return r
}

// Resolve returns a direct filesystem path for local handles.
func (r *Resolver) Resolve(handle string) (string, bool) {
	handle = strings.TrimSpace(handle)
	if handle == "" {
		return "", false
	}
	u, err := url.Parse(handle)
	if err != nil || u.Scheme == "" {
		abs, err := filepath.Abs(handle)
		if err != nil {
			return "", false
		}
		return abs, true
	}
	if u.Scheme == "file" {
		if u.Path == "" {
			return "", false
		}
		return filepath.Clean(u.Path), true
	}
	return "", false
}

// Open streams the handle. Remote handles are fetched with a bounded retry on
// connection errors and 5xx responses.
func (r *Resolver) Open(ctx context.Context, handle string) (io.ReadCloser, int64, error) {
	if path, ok := r.Resolve(handle); ok {
		f, err := os.Open(path)
		if err != nil {
			return nil, -1, fmt.Errorf("open %s: %w", path, err)
		}
		size := int64(-1)
		if info, err := f.Stat(); err == nil {
			size = info.Size()
		}
		return f, size, nil
	}

	u, err := url.Parse(handle)
	if err != nil {
		return nil, -1, fmt.Errorf("parse handle: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, -1, fmt.Errorf("unsupported content handle scheme %q", u.Scheme)
	}
	return r.fetch(ctx, u.String())
}

func (r *Resolver) fetch(ctx context.Context, rawURL string) (io.ReadCloser, int64, error) {
	var resp *http.Response
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		res, err := r.client.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			return err
		}
		if res.StatusCode >= 500 {
			res.Body.Close()
			return fmt.Errorf("fetch %s: %s", rawURL, res.Status)
		}
		if res.StatusCode != http.StatusOK {
			res.Body.Close()
			return backoff.Permanent(fmt.Errorf("fetch %s: %s", rawURL, res.Status))
		}
		resp = res
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), r.maxRetries), ctx)
	notify := func(err error, wait time.Duration) {
		r.logger.Warn("archive download failed, retrying", map[string]interface{}{
			"url":   rawURL,
			"error": err.Error(),
			"wait":  wait.String(),
		})
	}
	if err := backoff.RetryNotify(op, policy, notify); err != nil {
		return nil, -1, err
	}
	return resp.Body, resp.ContentLength, nil
}

var _ ports.ContentResolver = (*Resolver)(nil)

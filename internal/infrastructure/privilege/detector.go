// Package privilege detects the active superuser provider.
package privilege

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/doeshing/mmrl-go/internal/domain"
	"github.com/doeshing/mmrl-go/internal/ports"
)

// Detector caches the detected backend for its lifetime. Reinit re-probes.
type Detector struct {
	prober   Prober
	timeout  time.Duration
	expected domain.BackendKind
	pinned   bool
	logger   ports.Logger

	group  singleflight.Group
	mu     sync.RWMutex
	cached *domain.PrivilegeBackend
}

// NewDetector builds a detector from configuration.
func NewDetector(cfg domain.Config, logger ports.Logger) *Detector {
	return NewDetectorWithProber(NewCommandProber(cfg.GetProbeCommand()), cfg, logger)
}

// NewDetectorWithProber allows swapping the probe, mostly for tests.
func NewDetectorWithProber(prober Prober, cfg domain.Config, logger ports.Logger) *Detector {
	expected, pinned := cfg.ExpectedBackend()
	return &Detector{
		prober:   prober,
		timeout:  cfg.GetProbeTimeout(),
		expected: expected,
		pinned:   pinned,
		logger:   logger,
	}
}

// Detect implements ports.PrivilegeProvider.
func (d *Detector) Detect(ctx context.Context) domain.PrivilegeBackend {
	d.mu.RLock()
	if d.cached != nil {
		backend := *d.cached
		d.mu.RUnlock()
		return backend
	}
	d.mu.RUnlock()
	return d.probe(ctx)
}

// IsAvailable implements ports.PrivilegeProvider.
func (d *Detector) IsAvailable(ctx context.Context) bool {
	return d.Detect(ctx).Available()
}

// Reinit drops the cached result and probes again.
func (d *Detector) Reinit(ctx context.Context) domain.PrivilegeBackend {
	d.mu.Lock()
	d.cached = nil
	d.mu.Unlock()
	return d.probe(ctx)
}

func (d *Detector) probe(ctx context.Context) domain.PrivilegeBackend {
	v, _, _ := d.group.Do("detect", func() (interface{}, error) {
		probeCtx, cancel := context.WithTimeout(ctx, d.timeout)
		defer cancel()

		out, err := d.prober.Probe(probeCtx)
		if err != nil {
			d.logger.Warn("privilege probe failed", map[string]interface{}{"error": err.Error()})
			return domain.PrivilegeBackend{}, nil
		}

		backend := Classify(out)
		if d.pinned && backend.Kind != d.expected {
			d.logger.Warn("detected backend does not match working mode", map[string]interface{}{
				"detected": backend.Kind.String(),
				"expected": d.expected.String(),
			})
			backend = domain.PrivilegeBackend{}
		}

		d.logger.Debug("privilege backend detected", map[string]interface{}{
			"kind":    backend.Kind.String(),
			"version": backend.Version.String(),
		})

		// A cancelled caller must not poison the cache with a spurious None.
		if ctx.Err() == nil {
			d.mu.Lock()
			d.cached = &backend
			d.mu.Unlock()
		}
		return backend, nil
	})
	return v.(domain.PrivilegeBackend)
}

// Classify parses probe output: line one is `<name>:<TAG>`, line two the
// numeric version code. Unknown tags classify as None.
func Classify(output string) domain.PrivilegeBackend {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	if len(lines) == 0 || strings.TrimSpace(lines[0]) == "" {
		return domain.PrivilegeBackend{}
	}

	first := strings.TrimSpace(lines[0])
	idx := strings.LastIndex(first, ":")
	if idx < 0 {
		return domain.PrivilegeBackend{}
	}
	name, tag := first[:idx], first[idx+1:]

	kind, ok := domain.ParseBackendKind(tag)
	if !ok || kind == domain.BackendNone {
		return domain.PrivilegeBackend{}
	}

	version := domain.Version{Name: name}
	if len(lines) > 1 {
		if code, err := strconv.Atoi(strings.TrimSpace(lines[1])); err == nil {
			version.Code = code
		}
	}
	if version.Code == 0 {
		if code, err := strconv.Atoi(name); err == nil {
			version.Code = code
		}
	}
	return domain.PrivilegeBackend{Kind: kind, Version: version}
}

var _ ports.PrivilegeProvider = (*Detector)(nil)

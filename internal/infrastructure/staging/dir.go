// Package staging owns the process-private directory module archives are
// copied into before validation and installation.
package staging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/doeshing/mmrl-go/internal/domain"
	"github.com/doeshing/mmrl-go/internal/ports"
)

// Dir stores staged archives. Every live entry holds an exclusive flock, so
// eviction from a concurrent mmrl process never removes an archive in use.
type Dir struct {
	dir        string
	maxEntries int
	ttl        time.Duration
	logger     ports.Logger

	mu    sync.Mutex
	locks map[string]*os.File
}

// New returns a staging directory rooted at dir, or under the system temp dir
// when dir is empty.
func New(dir string, maxEntries int, ttl time.Duration, logger ports.Logger) *Dir {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), fmt.Sprintf("mmrl-staging-%d", os.Getuid()))
	}
	return &Dir{
		dir:        dir,
		maxEntries: maxEntries,
		ttl:        ttl,
		logger:     logger,
		locks:      make(map[string]*os.File),
	}
}

// NewFromConfig builds the staging directory from configuration.
func NewFromConfig(cfg domain.Config, logger ports.Logger) *Dir {
	return New(cfg.Paths.StagingDir, cfg.GetStagingMaxEntries(), cfg.GetStagingTTL(), logger)
}

// Path exposes the staging directory path.
func (d *Dir) Path() string {
	return d.dir
}

// Create allocates a new private file named after name.
func (d *Dir) Create(name string) (string, io.WriteCloser, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := os.MkdirAll(d.dir, domain.PrivateDirectoryPermissions); err != nil {
		return "", nil, fmt.Errorf("create staging dir: %w", err)
	}
	if err := os.Chmod(d.dir, domain.PrivateDirectoryPermissions); err != nil {
		return "", nil, fmt.Errorf("restrict staging dir: %w", err)
	}
	if err := d.evictIfNeeded(); err != nil {
		d.logger.Warn("staging eviction failed", map[string]interface{}{"error": err.Error()})
	}

	f, err := os.CreateTemp(d.dir, "*-"+sanitize(name))
	if err != nil {
		return "", nil, fmt.Errorf("create staged file: %w", err)
	}
	path := f.Name()

	lock, err := os.Open(path)
	if err != nil {
		f.Close()
		_ = os.Remove(path)
		return "", nil, fmt.Errorf("lock staged file: %w", err)
	}
	if err := unix.Flock(int(lock.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		lock.Close()
		f.Close()
		_ = os.Remove(path)
		return "", nil, fmt.Errorf("lock staged file: %w", err)
	}
	d.locks[path] = lock
	return path, f, nil
}

// Remove deletes a staged file and releases its lock. Paths outside the
// staging directory are refused.
func (d *Dir) Remove(path string) error {
	if !d.contains(path) {
		return fmt.Errorf("%s is not a staged file", path)
	}

	d.mu.Lock()
	if lock, ok := d.locks[path]; ok {
		_ = unix.Flock(int(lock.Fd()), unix.LOCK_UN)
		lock.Close()
		delete(d.locks, path)
	}
	d.mu.Unlock()

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove staged file: %w", err)
	}
	return nil
}

// Entries lists staged files, oldest first.
func (d *Dir) Entries() ([]string, error) {
	infos, err := d.scan()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(infos))
	for _, info := range infos {
		out = append(out, filepath.Join(d.dir, info.name))
	}
	return out, nil
}

// Clear removes every staged file not locked by a running install.
func (d *Dir) Clear() (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	infos, err := d.scan()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, info := range infos {
		if d.tryRemove(filepath.Join(d.dir, info.name)) {
			removed++
		}
	}
	return removed, nil
}

type fileInfo struct {
	name string
	mod  time.Time
}

func (d *Dir) scan() ([]fileInfo, error) {
	files, err := os.ReadDir(d.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var infos []fileInfo
	for _, f := range files {
		if f.IsDir() {
			continue
		}
		info, err := f.Info()
		if err != nil {
			continue
		}
		infos = append(infos, fileInfo{name: f.Name(), mod: info.ModTime()})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].mod.Before(infos[j].mod) })
	return infos, nil
}

func (d *Dir) evictIfNeeded() error {
	infos, err := d.scan()
	if err != nil {
		return err
	}

	var keep []fileInfo
	for _, info := range infos {
		if d.ttl > 0 && time.Since(info.mod) > d.ttl && d.tryRemove(filepath.Join(d.dir, info.name)) {
			continue
		}
		keep = append(keep, info)
	}

	if d.maxEntries <= 0 {
		return nil
	}
	for len(keep) >= d.maxEntries {
		old := keep[0]
		keep = keep[1:]
		d.tryRemove(filepath.Join(d.dir, old.name))
	}
	return nil
}

// tryRemove deletes path unless another holder has it locked.
func (d *Dir) tryRemove(path string) bool {
	if _, mine := d.locks[path]; mine {
		return false
	}
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		return false
	}
	defer unix.Flock(int(f.Fd()), unix.LOCK_UN)
	return os.Remove(path) == nil
}

func (d *Dir) contains(path string) bool {
	rel, err := filepath.Rel(d.dir, path)
	if err != nil {
		return false
	}
	return rel != "." && !strings.HasPrefix(rel, "..") && !strings.Contains(rel, string(filepath.Separator))
}

func sanitize(name string) string {
	base := filepath.Base(name)
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '_', r == '-':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 || base == "." || base == "/" {
		return "archive.zip"
	}
	return b.String()
}

var _ ports.ArchiveStager = (*Dir)(nil)

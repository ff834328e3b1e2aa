// Package modules exposes installed-module management: listing, state
// changes and the local record and version cache kept alongside.
package modules

import (
	"context"
	"errors"
	"fmt"

	"github.com/doeshing/mmrl-go/internal/domain"
	"github.com/doeshing/mmrl-go/internal/ports"
)

// Service coordinates the module backend with local persistence.
type Service struct {
	Modules  ports.ModuleManager
	Local    ports.LocalRepository
	Versions ports.VersionRepository
	Logger   ports.Logger
}

func (s *Service) validate() error {
	if s.Modules == nil || s.Logger == nil {
		return errors.New("modules.Service dependencies not satisfied")
	}
	return nil
}

// List reads the live module listing from the device.
func (s *Service) List(ctx context.Context) ([]domain.ModuleDescriptor, error) {
	if err := s.validate(); err != nil {
		return nil, err
	}
	modules, err := s.Modules.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list modules: %w", err)
	}
	return modules, nil
}

// Sync replaces the local records with the live listing.
func (s *Service) Sync(ctx context.Context) ([]domain.ModuleDescriptor, error) {
	modules, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if s.Local == nil {
		return modules, nil
	}
	if err := s.Local.ReplaceLocal(ctx, modules); err != nil {
		return nil, fmt.Errorf("store modules: %w", err)
	}
	s.Logger.Info("modules synced", map[string]interface{}{"count": len(modules)})
	return modules, nil
}

// Recorded returns the locally stored records without touching the device.
func (s *Service) Recorded(ctx context.Context) ([]domain.ModuleDescriptor, error) {
	if s.Local == nil {
		return nil, errors.New("no local repository configured")
	}
	return s.Local.ListLocal(ctx)
}

// Enable clears a pending disable.
func (s *Service) Enable(ctx context.Context, id string) (domain.ModuleDescriptor, error) {
	return s.change(ctx, id, domain.StateEnable)
}

// Disable marks a module disabled from the next boot.
func (s *Service) Disable(ctx context.Context, id string) (domain.ModuleDescriptor, error) {
	return s.change(ctx, id, domain.StateDisable)
}

// Remove marks a module for removal on the next boot.
func (s *Service) Remove(ctx context.Context, id string) (domain.ModuleDescriptor, error) {
	return s.change(ctx, id, domain.StateRemove)
}

// Restore undoes a pending removal.
func (s *Service) Restore(ctx context.Context, id string) (domain.ModuleDescriptor, error) {
	return s.change(ctx, id, domain.StateUninstall)
}

func (s *Service) change(ctx context.Context, id string, target domain.ModuleState) (domain.ModuleDescriptor, error) {
	if err := s.validate(); err != nil {
		return domain.ModuleDescriptor{}, err
	}
	if err := s.Modules.SetState(ctx, id, target); err != nil {
		return domain.ModuleDescriptor{}, fmt.Errorf("set %s %s: %w", id, target, err)
	}

	modules, err := s.Modules.List(ctx)
	if err != nil {
		return domain.ModuleDescriptor{}, fmt.Errorf("list modules: %w", err)
	}
	for _, m := range modules {
		if m.ID != id {
			continue
		}
		if s.Local != nil {
			if err := s.Local.InsertLocal(ctx, m); err != nil {
				s.Logger.Error("record module state", err, map[string]interface{}{"module": id})
			}
		}
		s.Logger.Info("module state changed", map[string]interface{}{
			"module": id,
			"target": string(target),
			"state":  string(m.State),
		})
		return m, nil
	}
	return domain.ModuleDescriptor{}, fmt.Errorf("%w: %s", domain.ErrModuleNotFound, id)
}

// CacheVersions upserts version rows for a repository.
func (s *Service) CacheVersions(ctx context.Context, items []domain.VersionItem) error {
	if s.Versions == nil {
		return errors.New("no version cache configured")
	}
	return s.Versions.InsertVersions(ctx, items)
}

// CachedVersions returns cached versions of a module published by a repository.
func (s *Service) CachedVersions(ctx context.Context, repoURL, moduleID string) ([]domain.VersionItem, error) {
	if s.Versions == nil {
		return nil, errors.New("no version cache configured")
	}
	return s.Versions.Versions(ctx, repoURL, moduleID)
}

// ForgetRepository drops every cached version of a repository.
func (s *Service) ForgetRepository(ctx context.Context, repoURL string) error {
	if s.Versions == nil {
		return errors.New("no version cache configured")
	}
	if err := s.Versions.DeleteVersionsByURL(ctx, repoURL); err != nil {
		return fmt.Errorf("delete versions of %s: %w", repoURL, err)
	}
	return nil
}

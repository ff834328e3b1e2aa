// Package modmanager implements the privileged module backend on top of the
// root shell: archive metadata, install entry points, state changes, listing.
package modmanager

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/magiconair/properties"

	"github.com/doeshing/mmrl-go/internal/domain"
)

// moduleIDPattern is the id rule enforced by the su daemons.
var moduleIDPattern = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9._-]+$`)

// ParseProps parses a module.prop file.
func ParseProps(data []byte) (domain.ModuleDescriptor, error) {
	loader := &properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	p, err := loader.LoadBytes(data)
	if err != nil {
		return domain.ModuleDescriptor{}, fmt.Errorf("parse module.prop: %w", err)
	}

	module := domain.ModuleDescriptor{
		ID:          strings.TrimSpace(p.GetString("id", "")),
		Name:        strings.TrimSpace(p.GetString("name", "")),
		Version:     strings.TrimSpace(p.GetString("version", "")),
		VersionCode: p.GetInt("versionCode", -1),
		Author:      strings.TrimSpace(p.GetString("author", "")),
		Description: strings.TrimSpace(p.GetString("description", "")),
		UpdateJSON:  strings.TrimSpace(p.GetString("updateJson", "")),
		State:       domain.StateEnable,
	}

	if module.ID == "" {
		return domain.ModuleDescriptor{}, fmt.Errorf("module.prop: missing id")
	}
	if !moduleIDPattern.MatchString(module.ID) {
		return domain.ModuleDescriptor{}, fmt.Errorf("module.prop: invalid id %q", module.ID)
	}
	return module, nil
}

package modmanager

import (
	"bytes"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zip"

	"github.com/doeshing/mmrl-go/internal/domain"
)

// maxPropSize caps module.prop reads from untrusted archives.
const maxPropSize = 64 << 10

// ParseArchive reads module metadata from a module zip held in memory.
func ParseArchive(data []byte) (domain.ModuleDescriptor, error) {
	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return domain.ModuleDescriptor{}, fmt.Errorf("open archive: %w", err)
	}

	var (
		prop      *zip.File
		hasWebUI  bool
		hasAction bool
	)
	for _, f := range zr.File {
		name := strings.TrimPrefix(f.Name, "./")
		switch {
		case name == domain.ModulePropFile:
			prop = f
		case strings.HasPrefix(name, domain.WebRootDirName+"/"):
			hasWebUI = true
		case name == "action.sh":
			hasAction = true
		}
	}
	if prop == nil {
		return domain.ModuleDescriptor{}, fmt.Errorf("archive has no %s", domain.ModulePropFile)
	}

	rc, err := prop.Open()
	if err != nil {
		return domain.ModuleDescriptor{}, fmt.Errorf("open %s: %w", domain.ModulePropFile, err)
	}
	defer rc.Close()

	raw, err := io.ReadAll(io.LimitReader(rc, maxPropSize))
	if err != nil {
		return domain.ModuleDescriptor{}, fmt.Errorf("read %s: %w", domain.ModulePropFile, err)
	}

	module, err := ParseProps(raw)
	if err != nil {
		return domain.ModuleDescriptor{}, err
	}
	module.HasWebUI = hasWebUI
	module.HasActionScript = hasAction
	module.Size = int64(len(data))
	return module, nil
}

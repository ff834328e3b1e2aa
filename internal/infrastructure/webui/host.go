// Package webui serves a module's web bundle through the privileged shell and
// synthesizes the runtime environment under the reserved /mmrl/ prefix.
package webui

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/http"
	"path"
	"regexp"
	"sort"
	"strings"

	"github.com/doeshing/mmrl-go/internal/domain"
	"github.com/doeshing/mmrl-go/internal/infrastructure/rootshell"
	"github.com/doeshing/mmrl-go/internal/ports"
)

// IndexFile is served for directory requests and is the entry page.
const IndexFile = "index.html"

// Exit status the read script uses for a path that resolves outside the root.
const escapeExitCode = 3

var cssToken = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

var extraTypes = map[string]string{
	".js":    "text/javascript; charset=utf-8",
	".mjs":   "text/javascript; charset=utf-8",
	".css":   "text/css; charset=utf-8",
	".html":  "text/html; charset=utf-8",
	".htm":   "text/html; charset=utf-8",
	".json":  "application/json",
	".svg":   "image/svg+xml",
	".wasm":  "application/wasm",
	".woff":  "font/woff",
	".woff2": "font/woff2",
	".ttf":   "font/ttf",
	".webp":  "image/webp",
	".ico":   "image/x-icon",
}

// Host resolves request paths for one module's web root. It holds no per
// request state.
type Host struct {
	moduleID string
	root     string
	env      domain.WebUIEnvironment
	shells   ports.ShellOpener
	logger   ports.Logger
}

// NewHost builds a host for the module's webroot.
func NewHost(cfg domain.Config, moduleID string, shells ports.ShellOpener, logger ports.Logger) *Host {
	return &Host{
		moduleID: moduleID,
		root:     cfg.WebRoot(moduleID),
		env:      cfg.WebUIEnvironment(),
		shells:   shells,
		logger:   logger,
	}
}

// Root returns the on-device web root.
func (h *Host) Root() string {
	return h.root
}

// ModuleID returns the module served by this host.
func (h *Host) ModuleID() string {
	return h.moduleID
}

// Resolve maps a request path to content.
func (h *Host) Resolve(ctx context.Context, requestPath string) (domain.Content, error) {
	if !strings.HasPrefix(requestPath, "/") {
		requestPath = "/" + requestPath
	}
	rel, err := cleanRelative(requestPath)
	if err != nil {
		return domain.Content{}, err
	}
	// Reserved names are matched after cleaning so //mmrl/x and /./mmrl/x
	// never reach the disk.
	if clean := "/" + rel; clean+"/" == domain.ReservedWebPrefix || strings.HasPrefix(clean, domain.ReservedWebPrefix) {
		return h.reserved(strings.TrimPrefix(clean, domain.ReservedWebPrefix))
	}

	data, err := h.read(ctx, rel)
	if err != nil {
		return domain.Content{}, err
	}
	return domain.Content{
		Path:        "/" + rel,
		ContentType: contentType(rel, data),
		Data:        data,
	}, nil
}

func (h *Host) reserved(name string) (domain.Content, error) {
	var (
		data  []byte
		ctype string
		err   error
	)
	switch name {
	case "insets":
		data, err = json.Marshal(h.env.Insets)
		ctype = "application/json"
	case "insets.css":
		data = []byte(insetsCSS(h.env.Insets))
		ctype = "text/css; charset=utf-8"
	case "colors":
		colors := h.env.Colors
		if colors == nil {
			colors = map[string]string{}
		}
		data, err = json.Marshal(colors)
		ctype = "application/json"
	case "colors.css":
		data = []byte(colorsCSS(h.env.Colors))
		ctype = "text/css; charset=utf-8"
	default:
		return domain.Content{}, fmt.Errorf("%s%s: %w", domain.ReservedWebPrefix, name, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Content{}, fmt.Errorf("encode %s: %w", name, err)
	}
	return domain.Content{
		Path:        domain.ReservedWebPrefix + name,
		ContentType: ctype,
		Data:        data,
		Injected:    true,
	}, nil
}

func (h *Host) read(ctx context.Context, rel string) ([]byte, error) {
	script, err := readScript(h.root, rel)
	if err != nil {
		return nil, err
	}
	shell, err := h.shells.Shell(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", domain.ErrNotFound, err)
	}
	res, err := shell.Run(ctx, script, domain.LineHandler{})
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", rel, errors.Join(domain.ErrNotFound, err))
	}
	switch res.ExitCode {
	case 0:
	case escapeExitCode:
		h.logger.Warn("webui path escapes root", map[string]interface{}{
			"module": h.moduleID,
			"path":   rel,
		})
		return nil, fmt.Errorf("%s: %w", rel, domain.ErrPathEscape)
	default:
		return nil, fmt.Errorf("%s: %w", rel, domain.ErrNotFound)
	}
	data, err := rootshell.DecodeBase64Lines(res.Stdout)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", rel, errors.Join(domain.ErrNotFound, err))
	}
	return data, nil
}

// cleanRelative turns a request path into a root-relative file path. Paths
// whose ".." segments climb above the root are rejected.
func cleanRelative(requestPath string) (string, error) {
	if strings.ContainsRune(requestPath, 0) {
		return "", fmt.Errorf("nul byte in path: %w", domain.ErrPathEscape)
	}
	depth := 0
	var parts []string
	for _, seg := range strings.Split(requestPath, "/") {
		switch seg {
		case "", ".":
		case "..":
			depth--
			if depth < 0 {
				return "", fmt.Errorf("%s: %w", requestPath, domain.ErrPathEscape)
			}
			parts = parts[:len(parts)-1]
		default:
			depth++
			parts = append(parts, seg)
		}
	}
	if len(parts) == 0 || strings.HasSuffix(requestPath, "/") {
		parts = append(parts, IndexFile)
	}
	return path.Join(parts...), nil
}

// readScript canonicalizes both the root and the target so symlinks cannot
// leave the root, then emits the file base64 encoded. It runs in a subshell
// so exit does not end the session.
func readScript(root, rel string) (string, error) {
	quotedRoot, err := rootshell.Quote(root)
	if err != nil {
		return "", err
	}
	quotedTarget, err := rootshell.Quote(path.Join(root, rel))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf(`(
__root=$(realpath -- %s 2>/dev/null) || exit 2
__target=$(realpath -- %s 2>/dev/null) || exit 2
case "$__target" in
  "$__root"/*) ;;
  *) exit %d ;;
esac
[ -f "$__target" ] || exit 2
base64 < "$__target"
)`, quotedRoot, quotedTarget, escapeExitCode), nil
}

func contentType(name string, data []byte) string {
	ext := strings.ToLower(path.Ext(name))
	if t, ok := extraTypes[ext]; ok {
		return t
	}
	if t := mime.TypeByExtension(ext); t != "" {
		return t
	}
	return http.DetectContentType(data)
}

func insetsCSS(in domain.Insets) string {
	return fmt.Sprintf(`:root {
  --safe-area-inset-top: %dpx;
  --safe-area-inset-bottom: %dpx;
  --safe-area-inset-left: %dpx;
  --safe-area-inset-right: %dpx;
  --window-inset-top: %dpx;
  --window-inset-bottom: %dpx;
  --window-inset-left: %dpx;
  --window-inset-right: %dpx;
}
`, in.Top, in.Bottom, in.Left, in.Right, in.Top, in.Bottom, in.Left, in.Right)
}

func colorsCSS(colors map[string]string) string {
	keys := make([]string, 0, len(colors))
	for k := range colors {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(":root {\n")
	for _, k := range keys {
		if !cssToken.MatchString(k) || strings.ContainsAny(colors[k], ";{}<>\n") {
			continue
		}
		fmt.Fprintf(&b, "  --%s: %s;\n", k, colors[k])
	}
	b.WriteString("}\n")
	return b.String()
}

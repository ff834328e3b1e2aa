package security

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/doeshing/mmrl-go/internal/domain"
	"github.com/doeshing/mmrl-go/internal/ports"
)

// ErrExternalOpenFailed is joined to ErrUnsafeNavigation when the opener fails.
var ErrExternalOpenFailed = errors.New("external open failed")

// Schemes that are never handed to an external opener.
var blockedSchemes = map[string]struct{}{
	"javascript": {},
	"data":       {},
	"file":       {},
	"about":      {},
	"blob":       {},
}

// NavigationGuard decides whether a navigation stays inside the module web
// surface, is handed to an external opener, or is dropped.
type NavigationGuard struct {
	allowed *regexp.Regexp
	opener  ports.ExternalOpener
	logger  ports.Logger
}

// NewNavigationGuard compiles the allow-list pattern.
func NewNavigationGuard(pattern string, opener ports.ExternalOpener, logger ports.Logger) (*NavigationGuard, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile navigation allow-list: %w", err)
	}
	return &NavigationGuard{allowed: re, opener: opener, logger: logger}, nil
}

// NewNavigationGuardFromConfig builds a guard from webui settings.
func NewNavigationGuardFromConfig(cfg domain.Config, opener ports.ExternalOpener, logger ports.Logger) (*NavigationGuard, error) {
	return NewNavigationGuard(cfg.GetAllowedOriginPattern(), opener, logger)
}

// Allowed reports whether rawURL may load in place.
func (g *NavigationGuard) Allowed(rawURL string) bool {
	return g.allowed.MatchString(rawURL)
}

// Classify returns the decision for rawURL without side effects.
func (g *NavigationGuard) Classify(rawURL string) domain.NavigationDecision {
	if g.Allowed(rawURL) {
		return domain.NavigationLoad
	}
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || !u.IsAbs() {
		return domain.NavigationBlock
	}
	if _, blocked := blockedSchemes[strings.ToLower(u.Scheme)]; blocked {
		return domain.NavigationBlock
	}
	return domain.NavigationExternal
}

// Intercept applies the decision. An external URL is dispatched to the opener
// exactly once and the in-place load is cancelled with ErrUnsafeNavigation.
// Absolute URLs with a javascript, data, file, about or blob scheme are not
// external: they are blocked without any dispatch.
func (g *NavigationGuard) Intercept(ctx context.Context, rawURL string) (domain.NavigationDecision, error) {
	decision := g.Classify(rawURL)
	switch decision {
	case domain.NavigationLoad:
		return decision, nil
	case domain.NavigationExternal:
		g.logger.Info("dispatching external navigation", map[string]interface{}{
			"url": rawURL,
		})
		if g.opener == nil {
			return decision, fmt.Errorf("%w: %s", domain.ErrUnsafeNavigation, rawURL)
		}
		if err := g.opener.Open(ctx, rawURL); err != nil {
			g.logger.Error("external open failed", err, map[string]interface{}{
				"url": rawURL,
			})
			return decision, errors.Join(
				fmt.Errorf("%w: %s", domain.ErrUnsafeNavigation, rawURL),
				fmt.Errorf("%w: %w", ErrExternalOpenFailed, err),
			)
		}
		return decision, fmt.Errorf("%w: %s", domain.ErrUnsafeNavigation, rawURL)
	default:
		g.logger.Warn("blocked navigation", map[string]interface{}{
			"url": rawURL,
		})
		return domain.NavigationBlock, fmt.Errorf("%w: %s", domain.ErrUnsafeNavigation, rawURL)
	}
}

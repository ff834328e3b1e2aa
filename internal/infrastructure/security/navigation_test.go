package security

import (
	"context"
	"errors"
	"testing"

	"github.com/doeshing/mmrl-go/internal/domain"
	"github.com/doeshing/mmrl-go/internal/pkg/logger"
)

type recordingOpener struct {
	urls []string
	err  error
}

func (r *recordingOpener) Open(_ context.Context, rawURL string) error {
	r.urls = append(r.urls, rawURL)
	return r.err
}

func newGuard(t *testing.T, opener *recordingOpener) *NavigationGuard {
	t.Helper()
	cfg := domain.Config{}
	guard, err := NewNavigationGuardFromConfig(cfg, opener, logger.NewNop())
	if err != nil {
		t.Fatalf("NewNavigationGuardFromConfig error: %v", err)
	}
	return guard
}

func TestInterceptAllowsModuleDomain(t *testing.T) {
	opener := &recordingOpener{}
	guard := newGuard(t, opener)

	for _, u := range []string{
		"https://mui.kernelsu.org/index.html",
		"http://mui.kernelsu.org",
		"https://mui.kernelsu.org/",
	} {
		decision, err := guard.Intercept(context.Background(), u)
		if err != nil || decision != domain.NavigationLoad {
			t.Fatalf("%s: expected load, got %s %v", u, decision, err)
		}
	}
	if len(opener.urls) != 0 {
		t.Fatalf("opener must not be called, got %v", opener.urls)
	}
}

func TestInterceptDispatchesExternalOnce(t *testing.T) {
	opener := &recordingOpener{}
	guard := newGuard(t, opener)

	decision, err := guard.Intercept(context.Background(), "https://example.com/x")
	if decision != domain.NavigationExternal {
		t.Fatalf("expected external, got %s", decision)
	}
	if !errors.Is(err, domain.ErrUnsafeNavigation) {
		t.Fatalf("expected ErrUnsafeNavigation, got %v", err)
	}
	if len(opener.urls) != 1 || opener.urls[0] != "https://example.com/x" {
		t.Fatalf("expected exactly one open, got %v", opener.urls)
	}
}

func TestInterceptRejectsLookalikeHosts(t *testing.T) {
	opener := &recordingOpener{}
	guard := newGuard(t, opener)

	for _, u := range []string{
		"https://mui.kernelsu.org.evil.com/",
		"https://muixkernelsu.org/",
		"https://evil.com/?https://mui.kernelsu.org/",
	} {
		decision, _ := guard.Intercept(context.Background(), u)
		if decision == domain.NavigationLoad {
			t.Fatalf("%s must not load in place", u)
		}
	}
	if len(opener.urls) != 3 {
		t.Fatalf("expected three external opens, got %v", opener.urls)
	}
}

func TestInterceptBlocksRelativeAndUnsafeSchemes(t *testing.T) {
	opener := &recordingOpener{}
	guard := newGuard(t, opener)

	for _, u := range []string{
		"index.html",
		"/etc/passwd",
		"javascript:alert(1)",
		"file:///data/adb/modules",
		"data:text/html,<b>hi</b>",
		"about:blank",
		"blob:https://mui.kernelsu.org/0f1e",
		"%zz",
	} {
		decision, err := guard.Intercept(context.Background(), u)
		if decision != domain.NavigationBlock {
			t.Fatalf("%s: expected block, got %s", u, decision)
		}
		if !errors.Is(err, domain.ErrUnsafeNavigation) {
			t.Fatalf("%s: expected ErrUnsafeNavigation, got %v", u, err)
		}
	}
	if len(opener.urls) != 0 {
		t.Fatalf("blocked navigations must not dispatch, got %v", opener.urls)
	}
}

func TestInterceptReportsOpenerFailure(t *testing.T) {
	opener := &recordingOpener{err: errors.New("no activity")}
	guard := newGuard(t, opener)

	_, err := guard.Intercept(context.Background(), "https://example.com")
	if !errors.Is(err, domain.ErrUnsafeNavigation) {
		t.Fatalf("expected ErrUnsafeNavigation, got %v", err)
	}
	if !errors.Is(err, ErrExternalOpenFailed) {
		t.Fatalf("expected ErrExternalOpenFailed, got %v", err)
	}
	if len(opener.urls) != 1 {
		t.Fatalf("expected one open attempt, got %d", len(opener.urls))
	}
}

func TestNewNavigationGuardRejectsBadPattern(t *testing.T) {
	if _, err := NewNavigationGuard("(", nil, logger.NewNop()); err == nil {
		t.Fatalf("expected compile error")
	}
}

package rootshell

import (
	"fmt"
	"strings"

	"mvdan.cc/sh/v3/syntax"

	"github.com/doeshing/mmrl-go/internal/domain"
)

// Quote renders s as a single POSIX shell word. It fails for strings that
// cannot be expressed in POSIX sh, such as ones containing NUL bytes.
func Quote(s string) (string, error) {
	q, err := syntax.Quote(s, syntax.LangPOSIX)
	if err != nil {
		return "", fmt.Errorf("quote %q: %w", s, err)
	}
	return q, nil
}

// CheckSyntax parses command as a complete shell program. Unterminated quotes
// and here-documents are rejected before they can reach a session.
func CheckSyntax(command string) error {
	if strings.ContainsRune(command, 0) {
		return fmt.Errorf("%w: NUL byte in command", domain.ErrInvalidCommand)
	}
	parser := syntax.NewParser(syntax.Variant(syntax.LangBash))
	if _, err := parser.Parse(strings.NewReader(command), ""); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrInvalidCommand, err)
	}
	return nil
}

// evalWord single-quotes a whole script for eval. Unlike Quote it keeps
// newlines and control characters verbatim.
func evalWord(script string) string {
	return "'" + strings.ReplaceAll(script, "'", `'\''`) + "'"
}

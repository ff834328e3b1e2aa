package helpers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/gookit/color"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"

	"github.com/doeshing/mmrl-go/internal/application/console"
	"github.com/doeshing/mmrl-go/internal/application/install"
	"github.com/doeshing/mmrl-go/internal/domain"
	"github.com/doeshing/mmrl-go/internal/pkg/broadcast"
)

// ANSI sequences used for in-place line editing.
const (
	ansiPrevLine    = "\033[1A"
	ansiClearLine   = "\033[2K\r"
	ansiClearScreen = "\033[H\033[2J"
)

// IsTerminal reports whether w is an interactive terminal.
func IsTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// ConsoleRenderer draws install events on a line-oriented output. On a
// terminal it edits lines in place; elsewhere progress lines are dropped and
// everything else is appended.
type ConsoleRenderer struct {
	out  io.Writer
	tty  bool
	bars bool

	mu     sync.Mutex
	screen console.Terminal
}

// NewConsoleRenderer builds a renderer. withBars tells it a progress bar draws
// copy progress, so progress lines are not edited in place.
func NewConsoleRenderer(out io.Writer, tty, withBars bool) *ConsoleRenderer {
	return &ConsoleRenderer{out: out, tty: tty, bars: withBars}
}

// Render applies one action.
func (r *ConsoleRenderer) Render(a console.Action) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.screen.Apply(a)

	switch a.Kind {
	case console.ActionLog:
		fmt.Fprintln(r.out, styleLine(a.Text))
	case console.ActionSetLastLine:
		if r.tty && !r.bars {
			fmt.Fprint(r.out, ansiPrevLine+ansiClearLine)
			fmt.Fprintln(r.out, a.Text)
		}
	case console.ActionRemoveLastLine:
		if r.tty {
			fmt.Fprint(r.out, ansiPrevLine+ansiClearLine)
		}
	case console.ActionClearTerminal:
		if r.tty {
			fmt.Fprint(r.out, ansiClearScreen)
		} else {
			fmt.Fprintln(r.out)
		}
	}
}

// Lines returns what a console would currently show.
func (r *ConsoleRenderer) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.screen.Lines()
}

// Consume renders sub until the run's terminal event and returns its result.
func (r *ConsoleRenderer) Consume(ctx context.Context, sub *broadcast.Subscription[domain.InstallEvent]) (domain.BatchResult, error) {
	var result domain.BatchResult
	finished := false
	for {
		ev, err := sub.Next(ctx)
		if errors.Is(err, io.EOF) {
			if !finished {
				return result, errors.New("install run ended without a result")
			}
			return result, nil
		}
		if err != nil {
			return result, err
		}
		if ev.Kind == domain.EventFinished && ev.Result != nil {
			result = *ev.Result
			finished = true
			continue
		}
		if a, ok := console.Project(ev); ok {
			r.Render(a)
		}
	}
}

func styleLine(line string) string {
	switch {
	case strings.HasPrefix(line, "- Installation aborted"),
		strings.HasPrefix(line, "- Installation failed"),
		strings.HasPrefix(line, "- Installation cancelled"),
		strings.HasPrefix(line, "- Service is not available"),
		strings.HasPrefix(line, "- Unable to"),
		strings.HasPrefix(line, "- Copying failed"):
		return color.Error.Sprint(line)
	case strings.HasPrefix(line, "- Installing "):
		return color.Info.Sprint(line)
	default:
		return line
	}
}

// bar adapts a progress bar to io.WriteCloser.
type bar struct {
	*progressbar.ProgressBar
}

func (b bar) Close() error {
	return b.Finish()
}

// BarProgress draws copy progress as a byte progress bar on w.
func BarProgress(w io.Writer) install.ProgressFactory {
	return func(total int64, description string) io.Writer {
		return bar{progressbar.NewOptions64(total,
			progressbar.OptionSetWriter(w),
			progressbar.OptionSetDescription(description),
			progressbar.OptionShowBytes(true),
			progressbar.OptionSetWidth(30),
			progressbar.OptionThrottle(65*time.Millisecond),
			progressbar.OptionSpinnerType(14),
			progressbar.OptionClearOnFinish(),
		)}
	}
}

// StatusLabel colors a doctor status.
func StatusLabel(status domain.HealthStatus) string {
	label := "[" + strings.ToUpper(string(status)) + "]"
	switch status {
	case domain.HealthOK:
		return color.Success.Sprint(label)
	case domain.HealthWarn:
		return color.Warn.Sprint(label)
	default:
		return color.Error.Sprint(label)
	}
}

// Package console projects install events onto a line-oriented terminal and
// exports install logs.
package console

import (
	"sync"

	"github.com/doeshing/mmrl-go/internal/domain"
)

// ActionKind is a terminal instruction.
type ActionKind string

const (
	ActionSetLastLine    ActionKind = "SET_LAST_LINE"
	ActionRemoveLastLine ActionKind = "REMOVE_LAST_LINE"
	ActionClearTerminal  ActionKind = "CLEAR_TERMINAL"
	ActionLog            ActionKind = "LOG"
)

// Action is one terminal instruction with its text, if any.
type Action struct {
	Kind ActionKind
	Text string
}

// Project maps an install event to a terminal action. Stderr and terminal
// events have no display form and report false.
func Project(ev domain.InstallEvent) (Action, bool) {
	switch ev.Kind {
	case domain.EventStdout, domain.EventLog:
		return Action{Kind: ActionLog, Text: ev.Line}, true
	case domain.EventSetLastLine:
		return Action{Kind: ActionSetLastLine, Text: ev.Line}, true
	case domain.EventRemoveLastLine:
		return Action{Kind: ActionRemoveLastLine}, true
	case domain.EventClearTerminal:
		return Action{Kind: ActionClearTerminal}, true
	default:
		return Action{}, false
	}
}

// Terminal is an in-memory console that applies actions.
type Terminal struct {
	mu    sync.Mutex
	lines []string
}

// Apply executes one action.
func (t *Terminal) Apply(a Action) {
	t.mu.Lock()
	defer t.mu.Unlock()
	switch a.Kind {
	case ActionLog:
		t.lines = append(t.lines, a.Text)
	case ActionSetLastLine:
		if len(t.lines) == 0 {
			t.lines = append(t.lines, a.Text)
			return
		}
		t.lines[len(t.lines)-1] = a.Text
	case ActionRemoveLastLine:
		if len(t.lines) > 0 {
			t.lines = t.lines[:len(t.lines)-1]
		}
	case ActionClearTerminal:
		t.lines = nil
	}
}

// Feed projects and applies an event.
func (t *Terminal) Feed(ev domain.InstallEvent) {
	if a, ok := Project(ev); ok {
		t.Apply(a)
	}
}

// Lines returns a copy of the visible lines.
func (t *Terminal) Lines() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]string, len(t.lines))
	copy(out, t.lines)
	return out
}

package domain

// EventKind tags an InstallEvent.
type EventKind int

const (
	EventStdout EventKind = iota
	EventStderr
	EventLog
	EventClearTerminal
	EventSetLastLine
	EventRemoveLastLine
	EventSuccess
	EventFailure
	// EventFinished closes a run and carries the batch result.
	EventFinished
)

func (k EventKind) String() string {
	switch k {
	case EventStdout:
		return "stdout"
	case EventStderr:
		return "stderr"
	case EventLog:
		return "log"
	case EventClearTerminal:
		return "clear_terminal"
	case EventSetLastLine:
		return "set_last_line"
	case EventRemoveLastLine:
		return "remove_last_line"
	case EventSuccess:
		return "success"
	case EventFailure:
		return "failure"
	case EventFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// InstallEvent is a tagged union; only the fields relevant to Kind are set.
type InstallEvent struct {
	Kind   EventKind
	Line   string
	Module *ModuleDescriptor
	Result *BatchResult
}

func StdoutEvent(line string) InstallEvent { return InstallEvent{Kind: EventStdout, Line: line} }
func StderrEvent(line string) InstallEvent { return InstallEvent{Kind: EventStderr, Line: line} }
func LogEvent(line string) InstallEvent    { return InstallEvent{Kind: EventLog, Line: line} }
func ClearTerminalEvent() InstallEvent     { return InstallEvent{Kind: EventClearTerminal} }
func SetLastLineEvent(line string) InstallEvent {
	return InstallEvent{Kind: EventSetLastLine, Line: line}
}
func RemoveLastLineEvent() InstallEvent { return InstallEvent{Kind: EventRemoveLastLine} }
func FailureEvent() InstallEvent        { return InstallEvent{Kind: EventFailure} }

func SuccessEvent(module ModuleDescriptor) InstallEvent {
	return InstallEvent{Kind: EventSuccess, Module: &module}
}

func FinishedEvent(result BatchResult) InstallEvent {
	return InstallEvent{Kind: EventFinished, Result: &result}
}

// IsTerminal reports whether the event ends an archive or a run.
func (e InstallEvent) IsTerminal() bool {
	return e.Kind == EventSuccess || e.Kind == EventFailure || e.Kind == EventFinished
}

package domain

// ShellOptions are the flags a root shell session is opened with.
type ShellOptions struct {
	GlobalMount   bool
	DeveloperMode bool
}

// CommandResult captures one completed command in a session.
type CommandResult struct {
	Command  string
	Stdout   []string
	Stderr   []string
	ExitCode int
}

// Success reports a zero exit code.
func (r CommandResult) Success() bool {
	return r.ExitCode == 0
}

// LineHandler receives streamed output. Either func may be nil.
type LineHandler struct {
	Stdout func(line string)
	Stderr func(line string)
}

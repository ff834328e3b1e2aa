package install

import (
	"sync"

	"github.com/doeshing/mmrl-go/internal/domain"
	"github.com/doeshing/mmrl-go/internal/ports"
)

type outcome struct {
	ok     bool
	module *domain.ModuleDescriptor
}

// completion resolves at most once; later resolutions are ignored.
type completion struct {
	once sync.Once
	ch   chan outcome
}

func newCompletion() *completion {
	return &completion{ch: make(chan outcome, 1)}
}

func (c *completion) resolve(o outcome) bool {
	resolved := false
	c.once.Do(func() {
		c.ch <- o
		resolved = true
	})
	return resolved
}

func (c *completion) wait() outcome {
	return <-c.ch
}

// sink forwards script output into the run and resolves the completion.
type sink struct {
	run  *Run
	done *completion
}

func (s *sink) OnStdout(line string) {
	s.run.publish(domain.StdoutEvent(line))
}

func (s *sink) OnStderr(line string) {
	s.run.publish(domain.StderrEvent(line))
}

func (s *sink) OnSuccess(module domain.ModuleDescriptor) {
	s.done.resolve(outcome{ok: true, module: &module})
}

func (s *sink) OnFailure() {
	s.done.resolve(outcome{})
}

var _ ports.InstallCallback = (*sink)(nil)

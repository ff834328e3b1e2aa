package install

import (
	"context"
	"sync"

	"github.com/doeshing/mmrl-go/internal/domain"
	"github.com/doeshing/mmrl-go/internal/pkg/broadcast"
)

// Run is one in-flight install batch.
type Run struct {
	ID string
	// Events carries the run's progress; late observers may subscribe to it.
	Events *broadcast.Channel[domain.InstallEvent]
	// Updates is subscribed before the first event is published.
	Updates *broadcast.Subscription[domain.InstallEvent]

	mu     sync.Mutex
	logs   []string
	done   chan struct{}
	result domain.BatchResult
}

func newRun(id string, bufferSize int) (*Run, error) {
	// Per-archive Success/Failure must survive a slow observer.
	events := broadcast.New[domain.InstallEvent](bufferSize, broadcast.WithKeep(domain.InstallEvent.IsTerminal))
	sub, err := events.Subscribe()
	if err != nil {
		return nil, err
	}
	return &Run{
		ID:      id,
		Events:  events,
		Updates: sub,
		done:    make(chan struct{}),
	}, nil
}

// publish serializes delivery; callbacks may call it from other goroutines.
func (r *Run) publish(ev domain.InstallEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	switch ev.Kind {
	case domain.EventStdout, domain.EventStderr, domain.EventLog:
		r.logs = append(r.logs, ev.Line)
	}
	r.Events.Publish(ev)
}

// progress publishes a transient line that is not kept in the log.
func (r *Run) progress(ev domain.InstallEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events.Publish(ev)
}

func (r *Run) log(line string) {
	r.publish(domain.LogEvent(line))
}

func (r *Run) finish(result domain.BatchResult) {
	r.mu.Lock()
	r.result = result
	r.Events.Close(domain.FinishedEvent(result))
	r.mu.Unlock()
	close(r.done)
}

// Ack releases the retained Finished event once the caller has shown the
// result. Later subscribers get broadcast.ErrAcknowledged.
func (r *Run) Ack() {
	r.Events.Ack()
	r.Updates.Cancel()
}

// Done is closed once the batch has finished.
func (r *Run) Done() <-chan struct{} {
	return r.done
}

// Wait blocks until the batch finishes or ctx is done.
func (r *Run) Wait(ctx context.Context) (domain.BatchResult, error) {
	select {
	case <-r.done:
		r.mu.Lock()
		defer r.mu.Unlock()
		return r.result, nil
	case <-ctx.Done():
		return domain.BatchResult{}, ctx.Err()
	}
}

// Logs returns every stdout, stderr and log line published so far.
func (r *Run) Logs() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.logs))
	copy(out, r.logs)
	return out
}

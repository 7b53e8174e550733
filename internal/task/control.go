package task

import (
	"context"
	"sync"
)

// State is one node of the Coordinator's state machine:
// Idle -> Running -> (Paused <-> Running) -> (Stopped | Done).
type State int

const (
	Idle State = iota
	Running
	Paused
	Stopped
	Done
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Paused:
		return "paused"
	case Stopped:
		return "stopped"
	case Done:
		return "done"
	default:
		return "unknown"
	}
}

// Control is the Coordinator's admission gate, shared by every Layer's
// fetch.Pipeline.Run call across the task's lifetime. It implements
// fetch.Admitter: Admit blocks while paused (preserving the queue) and
// returns false once stopped (so the pipeline stops admitting new work,
// while requests already dispatched are never aborted, per §5).
type Control struct {
	mu      sync.Mutex
	state   State
	pauseCh chan struct{}
	stopCh  chan struct{}
}

// NewControl returns a Control in the Idle state.
func NewControl() *Control {
	return &Control{state: Idle, stopCh: make(chan struct{})}
}

// Start transitions Idle -> Running.
func (c *Control) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Idle {
		c.state = Running
	}
}

// Pause transitions Running -> Paused, stopping admission of new work
// while preserving the queue and letting in-flight requests complete.
func (c *Control) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Running {
		return
	}
	c.state = Paused
	c.pauseCh = make(chan struct{})
}

// Resume transitions Paused -> Running, re-admitting work.
func (c *Control) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Paused {
		return
	}
	c.state = Running
	close(c.pauseCh)
	c.pauseCh = nil
}

// Stop transitions Running or Paused -> Stopped: admission ends
// immediately and the pending queue is dropped; in-flight requests still
// complete and their results may still be persisted.
func (c *Control) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Stopped || c.state == Done {
		return
	}
	c.state = Stopped
	close(c.stopCh)
}

// Finish transitions Running -> Done, the terminal state reached when
// the last layer drains without an intervening Stop.
func (c *Control) Finish() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == Stopped {
		return
	}
	c.state = Done
}

// State returns the current state.
func (c *Control) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Admit implements fetch.Admitter. It blocks while paused and returns
// false once the task is stopped or ctx is canceled.
func (c *Control) Admit(ctx context.Context) bool {
	for {
		c.mu.Lock()
		state := c.state
		pauseCh := c.pauseCh
		c.mu.Unlock()

		switch state {
		case Stopped:
			return false
		case Paused:
			select {
			case <-pauseCh:
				continue
			case <-c.stopCh:
				return false
			case <-ctx.Done():
				return false
			}
		default:
			select {
			case <-ctx.Done():
				return false
			default:
				return true
			}
		}
	}
}

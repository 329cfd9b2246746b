package attendance

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Action identifies a kind of user-triggered network operation
type Action string

const (
	ActionLoad          Action = "load"
	ActionAddUsers      Action = "addUsers"
	ActionSendPenalties Action = "sendPenalties"
	ActionRemoveUser    Action = "removeUser"
)

type task struct {
	id     string
	cancel context.CancelFunc
}

// tasks tracks the in-flight operation of each action kind. Starting a new
// one cancels the previous one of the same kind.
type tasks struct {
	mu      sync.Mutex
	running map[Action]task
}

func newTasks() *tasks {
	return &tasks{running: make(map[Action]task)}
}

// start registers a new task for kind and returns its context and id
func (t *tasks) start(parent context.Context, kind Action) (context.Context, string) {
	ctx, cancel := context.WithCancel(parent)
	id := uuid.NewString()

	t.mu.Lock()
	defer t.mu.Unlock()
	if prev, ok := t.running[kind]; ok {
		prev.cancel()
	}
	t.running[kind] = task{id: id, cancel: cancel}
	return ctx, id
}

// current reports whether id is still the latest task for kind
func (t *tasks) current(kind Action, id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	running, ok := t.running[kind]
	return ok && running.id == id
}

// finish releases the task if it is still the latest one
func (t *tasks) finish(kind Action, id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if running, ok := t.running[kind]; ok && running.id == id {
		running.cancel()
		delete(t.running, kind)
	}
}

// inFlight returns how many tasks are running
func (t *tasks) inFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.running)
}

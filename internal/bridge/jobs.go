package bridge

import (
	"context"
	"sync"
)

// Job slot names.
const (
	slotReconnect = "reconnect"
	slotReceive   = "receive"
	slotHeartbeat = "heartbeat"
)

type job struct {
	cancel context.CancelFunc
	done   chan struct{}
}

// jobs runs named background goroutines. Starting a job in a slot cancels
// the one already there.
type jobs struct {
	base context.Context

	mu    sync.Mutex
	slots map[string]*job
	wg    sync.WaitGroup
}

func newJobs(base context.Context) *jobs {
	return &jobs{base: base, slots: map[string]*job{}}
}

func (j *jobs) Start(name string, fn func(ctx context.Context)) {
	j.mu.Lock()
	if j.base.Err() != nil {
		j.mu.Unlock()
		return
	}
	if prev := j.slots[name]; prev != nil {
		prev.cancel()
	}
	ctx, cancel := context.WithCancel(j.base)
	jb := &job{cancel: cancel, done: make(chan struct{})}
	j.slots[name] = jb
	j.wg.Add(1)
	j.mu.Unlock()

	go func() {
		defer j.wg.Done()
		defer close(jb.done)
		defer cancel()
		fn(ctx)
		j.mu.Lock()
		if j.slots[name] == jb {
			delete(j.slots, name)
		}
		j.mu.Unlock()
	}()
}

func (j *jobs) Cancel(name string) {
	j.mu.Lock()
	if jb := j.slots[name]; jb != nil {
		jb.cancel()
		delete(j.slots, name)
	}
	j.mu.Unlock()
}

func (j *jobs) Running(name string) bool {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.slots[name] != nil
}

func (j *jobs) CancelAll() {
	j.mu.Lock()
	for name, jb := range j.slots {
		jb.cancel()
		delete(j.slots, name)
	}
	j.mu.Unlock()
}

func (j *jobs) Wait() { j.wg.Wait() }

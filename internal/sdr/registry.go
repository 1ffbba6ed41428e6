package sdr

import (
	"os/exec"
	"sync"
)

// ProcessRegistry tracks the sampler subprocesses that are still running, so
// that shutdown can kill whatever a worker failed to reap
type ProcessRegistry struct {
	mu    sync.Mutex
	procs map[*exec.Cmd]struct{}
}

func NewProcessRegistry() *ProcessRegistry {
	return &ProcessRegistry{procs: make(map[*exec.Cmd]struct{})}
}

func (r *ProcessRegistry) Add(cmd *exec.Cmd) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.procs[cmd] = struct{}{}
}

func (r *ProcessRegistry) Remove(cmd *exec.Cmd) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.procs, cmd)
}

func (r *ProcessRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	return len(r.procs)
}

// KillAll force-kills every tracked process. Errors are ignored: the process
// may have exited between the worker's last check and now. Owning workers
// still reap and deregister their process.
func (r *ProcessRegistry) KillAll() {
	r.mu.Lock()
	defer r.mu.Unlock()

	for cmd := range r.procs {
		if cmd.Process != nil {
			_ = cmd.Process.Kill()
		}
	}
}

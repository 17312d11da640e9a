package shard

import (
	"errors"
	"fmt"
	"sync"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
)

// ErrPoolStopped is returned when submitting to a closed pool.
var ErrPoolStopped = errors.New("shard pool stopped")

// CoreID identifies an execution core. Core ids are dense and stable for
// the lifetime of the process.
type CoreID int

// Pool runs one task loop per execution core. Every object with per-core
// state lives on exactly one core and is only touched from that core's
// loop; cross-core communication goes through SubmitTo or InvokeOn.
type Pool struct {
	cores  []*core
	logger log.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

type core struct {
	id    CoreID
	tasks chan func()
}

const coreQueueDepth = 1024

// NewPool starts n core loops.
func NewPool(n int, logger log.Logger) *Pool {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	p := &Pool{logger: logger}
	for i := 0; i < n; i++ {
		c := &core{id: CoreID(i), tasks: make(chan func(), coreQueueDepth)}
		p.cores = append(p.cores, c)
		p.wg.Add(1)
		go p.run(c)
	}
	return p
}

func (p *Pool) run(c *core) {
	defer p.wg.Done()
	for task := range c.tasks {
		p.invoke(c, task)
	}
}

func (p *Pool) invoke(c *core, task func()) {
	defer func() {
		if r := recover(); r != nil {
			level.Error(p.logger).Log("msg", "task panicked", "core", c.id, "panic", r)
		}
	}()
	task()
}

// Size returns the number of cores.
func (p *Pool) Size() int {
	return len(p.cores)
}

// SubmitTo enqueues a fire-and-forget task on the given core. Tasks
// submitted from one goroutine to one core run in submission order.
func (p *Pool) SubmitTo(id CoreID, task func()) error {
	if int(id) < 0 || int(id) >= len(p.cores) {
		return fmt.Errorf("no such core: %d", id)
	}
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.closed {
		return ErrPoolStopped
	}
	p.cores[id].tasks <- task
	return nil
}

// Close stops accepting tasks, drains the queues and joins the loops.
func (p *Pool) Close() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	p.closed = true
	for _, c := range p.cores {
		close(c.tasks)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

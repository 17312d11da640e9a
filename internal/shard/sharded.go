package shard

import "fmt"

// Sharded holds one instance of T per core. Instances must only be touched
// from their own core, either via Local on that core's task or through
// InvokeOn.
type Sharded[T any] struct {
	pool      *Pool
	instances []T
}

// NewSharded builds one instance per core.
func NewSharded[T any](pool *Pool, build func(core CoreID) T) *Sharded[T] {
	s := &Sharded[T]{pool: pool}
	for i := 0; i < pool.Size(); i++ {
		s.instances = append(s.instances, build(CoreID(i)))
	}
	return s
}

// Local returns the instance living on the given core.
func (s *Sharded[T]) Local(core CoreID) T {
	return s.instances[core]
}

// Pool returns the underlying core pool.
func (s *Sharded[T]) Pool() *Pool {
	return s.pool
}

// InvokeOn runs fn against the destination core's instance, inside the
// given submission service group, and returns a signal of the result.
// Acquiring a service-group slot may block the caller; the slot is held
// until fn returns on the destination core.
func InvokeOn[T, R any](s *Sharded[T], dest CoreID, ssg *SMPServiceGroup, fn func(T) (R, error)) *Signal[R] {
	p := NewPromise[R]()
	ssg.acquire()
	err := s.pool.SubmitTo(dest, func() {
		defer ssg.release()
		defer func() {
			if r := recover(); r != nil {
				p.Fail(fmt.Errorf("cross-core call panicked: %v", r))
			}
		}()
		v, err := fn(s.instances[dest])
		if err != nil {
			p.Fail(err)
			return
		}
		p.Complete(v)
	})
	if err != nil {
		ssg.release()
		p.Fail(err)
	}
	return p.Signal()
}

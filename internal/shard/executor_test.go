package shard

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"
)

func TestPoolSubmitTo(t *testing.T) {
	pool := NewPool(2, nil)
	defer pool.Close()

	done := make(chan CoreID, 1)
	require.NoError(t, pool.SubmitTo(1, func() {
		done <- 1
	}))

	select {
	case core := <-done:
		require.Equal(t, CoreID(1), core)
	case <-time.After(time.Second):
		t.Fatal("task never ran")
	}
}

func TestPoolPreservesSubmissionOrder(t *testing.T) {
	pool := NewPool(1, nil)
	defer pool.Close()

	var mu sync.Mutex
	var got []int
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		i := i
		wg.Add(1)
		require.NoError(t, pool.SubmitTo(0, func() {
			mu.Lock()
			got = append(got, i)
			mu.Unlock()
			wg.Done()
		}))
	}
	wg.Wait()

	for i := 0; i < 100; i++ {
		require.Equal(t, i, got[i])
	}
}

func TestPoolSubmitToUnknownCore(t *testing.T) {
	pool := NewPool(2, nil)
	defer pool.Close()

	require.Error(t, pool.SubmitTo(7, func() {}))
}

func TestPoolSubmitAfterClose(t *testing.T) {
	pool := NewPool(1, nil)
	pool.Close()

	err := pool.SubmitTo(0, func() {})
	require.ErrorIs(t, err, ErrPoolStopped)
}

func TestShardedLocalInstances(t *testing.T) {
	pool := NewPool(3, nil)
	defer pool.Close()

	s := NewSharded(pool, func(core CoreID) int {
		return int(core) * 10
	})
	require.Equal(t, 0, s.Local(0))
	require.Equal(t, 10, s.Local(1))
	require.Equal(t, 20, s.Local(2))
}

func TestInvokeOn(t *testing.T) {
	pool := NewPool(2, nil)
	defer pool.Close()

	s := NewSharded(pool, func(core CoreID) *int {
		v := int(core)
		return &v
	})
	ssg := NewSMPServiceGroup("test", 4)

	sig := InvokeOn(s, 1, ssg, func(inst *int) (int, error) {
		return *inst + 100, nil
	})
	v, err := sig.Wait()
	require.NoError(t, err)
	require.Equal(t, 101, v)
}

func TestInvokeOnError(t *testing.T) {
	pool := NewPool(1, nil)
	defer pool.Close()

	s := NewSharded(pool, func(core CoreID) struct{} { return struct{}{} })
	ssg := NewSMPServiceGroup("test", 4)
	boom := errors.New("boom")

	sig := InvokeOn(s, 0, ssg, func(struct{}) (int, error) {
		return 0, boom
	})
	_, err := sig.Wait()
	require.Same(t, boom, err)
}

func TestInvokeOnStoppedPool(t *testing.T) {
	pool := NewPool(1, nil)
	s := NewSharded(pool, func(core CoreID) struct{} { return struct{}{} })
	ssg := NewSMPServiceGroup("test", 4)
	pool.Close()

	sig := InvokeOn(s, 0, ssg, func(struct{}) (int, error) {
		return 1, nil
	})
	_, err := sig.Wait()
	require.ErrorIs(t, err, ErrPoolStopped)
	require.Equal(t, 0, ssg.InUse())
}

func TestInvokeOnRecoversPanic(t *testing.T) {
	pool := NewPool(1, nil)
	defer pool.Close()

	s := NewSharded(pool, func(core CoreID) struct{} { return struct{}{} })
	ssg := NewSMPServiceGroup("test", 4)

	sig := InvokeOn(s, 0, ssg, func(struct{}) (int, error) {
		panic("kaboom")
	})
	_, err := sig.Wait()
	require.ErrorContains(t, err, "kaboom")
	require.Equal(t, 0, ssg.InUse())
}

func TestSMPServiceGroupBoundsConcurrency(t *testing.T) {
	pool := NewPool(4, nil)
	defer pool.Close()

	s := NewSharded(pool, func(core CoreID) struct{} { return struct{}{} })
	ssg := NewSMPServiceGroup("test", 2)

	release := make(chan struct{})
	results := make(chan error, 4)
	// acquiring a slot blocks the submitter, so each call gets its own
	// goroutine
	for i := 0; i < 4; i++ {
		core := CoreID(i)
		go func() {
			sig := InvokeOn(s, core, ssg, func(struct{}) (int, error) {
				<-release
				return int(core), nil
			})
			_, err := sig.Wait()
			results <- err
		}()
	}

	// only two slots exist, so at most two calls are ever in flight
	deadline := time.Now().Add(200 * time.Millisecond)
	for time.Now().Before(deadline) {
		require.LessOrEqual(t, ssg.InUse(), 2)
		time.Sleep(10 * time.Millisecond)
	}

	close(release)
	for i := 0; i < 4; i++ {
		require.NoError(t, <-results)
	}
	require.Equal(t, 0, ssg.InUse())
}

func TestSchedulingGroupAccounting(t *testing.T) {
	sg := NewSchedulingGroup("test", prometheus.NewRegistry())

	p := NewPromise[int]()
	sig := WithSchedulingGroup(sg, func() *Signal[int] {
		return p.Signal()
	})

	require.Equal(t, int64(1), sg.Inflight())
	require.Equal(t, int64(1), sg.Entered())

	p.Complete(7)
	v, err := sig.Wait()
	require.NoError(t, err)
	require.Equal(t, 7, v)
	require.Equal(t, int64(0), sg.Inflight())
}

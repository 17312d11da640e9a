package shard

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignalResolve(t *testing.T) {
	p := NewPromise[int]()
	go p.Complete(42)

	v, err := p.Signal().Wait()
	require.NoError(t, err)
	require.Equal(t, 42, v)
}

func TestSignalFail(t *testing.T) {
	boom := errors.New("boom")
	p := NewPromise[int]()
	p.Fail(boom)

	_, err := p.Signal().Wait()
	require.Same(t, boom, err)
}

func TestSignalResolvesOnce(t *testing.T) {
	p := NewPromise[int]()
	p.Complete(1)
	p.Complete(2)
	p.Fail(errors.New("late"))

	v, err := p.Signal().Wait()
	require.NoError(t, err)
	require.Equal(t, 1, v)
}

func TestSignalWhenReadyAfterResolve(t *testing.T) {
	s := Resolved("hello")

	var got string
	s.WhenReady(func(v string, err error) {
		got = v
	})
	require.Equal(t, "hello", got)
}

func TestSignalWhenReadyBeforeResolve(t *testing.T) {
	p := NewPromise[string]()
	got := make(chan string, 1)
	p.Signal().WhenReady(func(v string, err error) {
		got <- v
	})

	p.Complete("deferred")
	select {
	case v := <-got:
		require.Equal(t, "deferred", v)
	case <-time.After(time.Second):
		t.Fatal("continuation never ran")
	}
}

func TestThen(t *testing.T) {
	s := Then(Resolved(21), func(v int) (int, error) {
		return v * 2, nil
	})
	v, err := s.Wait()
	require.NoError(t, err)
	require.Equal(t, 42, v)
}

func TestThenPropagatesError(t *testing.T) {
	boom := errors.New("boom")
	s := Then(Failed[int](boom), func(v int) (int, error) {
		t.Fatal("must not run")
		return 0, nil
	})
	_, err := s.Wait()
	require.Same(t, boom, err)
}

func TestFlatten(t *testing.T) {
	inner := NewPromise[string]()
	outer := NewPromise[*Signal[string]]()

	flat := Flatten(outer.Signal())
	outer.Complete(inner.Signal())
	inner.Complete("nested")

	v, err := flat.Wait()
	require.NoError(t, err)
	require.Equal(t, "nested", v)
}

func TestFlattenOuterFailure(t *testing.T) {
	boom := errors.New("boom")
	flat := Flatten(Failed[*Signal[int]](boom))
	_, err := flat.Wait()
	require.Same(t, boom, err)
}

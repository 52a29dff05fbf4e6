package transport

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExecutorRunsInOrder(t *testing.T) {
	e := NewExecutor()
	defer e.Stop()

	var (
		mu  sync.Mutex
		got []int
		wg  sync.WaitGroup
	)
	for i := 0; i < 100; i++ {
		wg.Add(1)
		n := i
		e.Invoke(func(discard bool) {
			defer wg.Done()
			assert.False(t, discard)
			mu.Lock()
			got = append(got, n)
			mu.Unlock()
		})
	}
	wg.Wait()

	require.Len(t, got, 100)
	for i, n := range got {
		assert.Equal(t, i, n)
	}
}

func TestExecutorDiscardsAfterStop(t *testing.T) {
	e := NewExecutor()
	e.Stop()

	select {
	case <-e.Done():
	case <-time.After(time.Second):
		t.Fatal("executor goroutine did not exit")
	}

	called := false
	e.Invoke(func(discard bool) {
		called = true
		assert.True(t, discard)
	})
	assert.True(t, called)

	// a second stop is a no-op
	e.Stop()
}

func TestExecutorDiscardsPendingOnStop(t *testing.T) {
	e := NewExecutor()

	release := make(chan struct{})
	started := make(chan struct{})
	e.Invoke(func(discard bool) {
		close(started)
		<-release
	})
	<-started

	results := make(chan bool, 3)
	for i := 0; i < 3; i++ {
		e.Invoke(func(discard bool) { results <- discard })
	}
	assert.Equal(t, 3, e.Pending())

	e.Stop()
	close(release)

	for i := 0; i < 3; i++ {
		select {
		case discard := <-results:
			assert.True(t, discard)
		case <-time.After(time.Second):
			t.Fatal("pending action never ran")
		}
	}
}

func TestExecutorStopFromAction(t *testing.T) {
	e := NewExecutor()

	done := make(chan struct{})
	e.Invoke(func(discard bool) {
		e.Stop()
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("stop from inside an action blocked")
	}
	select {
	case <-e.Done():
	case <-time.After(time.Second):
		t.Fatal("executor goroutine did not exit")
	}
}

package concurrency

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedMutex_SerializesSameKey(t *testing.T) {
	k := NewKeyedMutex()
	var (
		mu      sync.Mutex
		active  int
		maxSeen int
		wg      sync.WaitGroup
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = k.Do("s1", func() error {
				mu.Lock()
				active++
				if active > maxSeen {
					maxSeen = active
				}
				mu.Unlock()
				time.Sleep(2 * time.Millisecond)
				mu.Lock()
				active--
				mu.Unlock()
				return nil
			})
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxSeen)
	assert.Equal(t, 0, k.Held("s1"), "entries are released")
}

func TestKeyedMutex_IndependentKeys(t *testing.T) {
	k := NewKeyedMutex()
	k.Lock("a")
	defer k.Unlock("a")

	done := make(chan struct{})
	go func() {
		k.Lock("b")
		k.Unlock("b")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on b blocked behind a")
	}
	assert.Equal(t, 1, k.Held("a"))

	k.Unlock("missing")
}

func TestGo_RecoversPanics(t *testing.T) {
	got := make(chan any, 1)
	Go("test", func() { panic("boom") }, func(r any) { got <- r })

	select {
	case r := <-got:
		require.Equal(t, "boom", r)
	case <-time.After(time.Second):
		t.Fatal("panic handler not called")
	}
}

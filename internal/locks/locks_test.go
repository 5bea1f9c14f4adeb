package locks

import (
	"sync"
	"testing"
)

func TestLockSerializesSameKey(t *testing.T) {
	r := NewRegistry()
	var counter int
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := r.Lock(42)
			counter++
			unlock()
		}()
	}
	wg.Wait()
	if counter != 50 {
		t.Fatalf("counter = %d, want 50", counter)
	}
}

func TestDifferentKeysDoNotBlock(t *testing.T) {
	r := NewRegistry()
	unlockA := r.Lock(1)
	done := make(chan struct{})
	go func() {
		unlockB := r.Lock(2)
		unlockB()
		close(done)
	}()
	<-done
	unlockA()
}

func TestForget(t *testing.T) {
	r := NewRegistry()
	unlock := r.Lock(9)
	unlock()
	r.Forget(9)
	// A fresh mutex must be handed out afterwards without deadlock.
	unlock = r.Lock(9)
	unlock()
}

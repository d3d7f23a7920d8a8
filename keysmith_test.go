package boxdrive

import (
	"math/rand"
	"sync"
	"testing"
	"time"
)

func TestKeysmithLock(t *testing.T) {
	for _, repeat := range []int{1, 2} {
		k := NewKeysmith()
		key := "a"
		for i := 0; i < repeat; i++ {
			assertKeyNotLocked(t, k, key)
			release := k.Lock(key)
			assertKeyLocked(t, k, key)
			release()
			assertKeyNotLocked(t, k, key)
		}
	}
}

func TestKeysmithLockReleasesOnPanic(t *testing.T) {
	k := NewKeysmith()
	key := "a"

	func() {
		defer func() {
			recover()
		}()
		release := k.Lock(key)
		defer release()
		assertKeyLocked(t, k, key)
		panic("boom")
	}()

	assertKeyNotLocked(t, k, key)
	if k.held != 0 {
		t.Fatalf("held = %d, want 0", k.held)
	}
}

func TestKeysmithNestedDistinctKeys(t *testing.T) {
	k := NewKeysmith()
	key1, key2 := "a", "b"

	release1 := k.Lock(key1)
	assertKeyLocked(t, k, key1)
	assertKeyNotLocked(t, k, key2)

	release2 := k.Lock(key2)
	assertKeyLocked(t, k, key1)
	assertKeyLocked(t, k, key2)

	release2()
	assertKeyNotLocked(t, k, key2)
	assertKeyLocked(t, k, key1)

	release1()
	assertKeyNotLocked(t, k, key1)
}

func TestKeysmithLockBlocksSameKey(t *testing.T) {
	k := NewKeysmith()
	key := "a"

	release := k.Lock(key)

	unblocked := make(chan struct{})
	go func() {
		r := k.Lock(key)
		r()
		close(unblocked)
	}()

	select {
	case <-unblocked:
		t.Fatal("second Lock on same key should not have proceeded yet")
	case <-time.After(20 * time.Millisecond):
	}

	release()

	select {
	case <-unblocked:
	case <-time.After(time.Second):
		t.Fatal("second Lock on same key never proceeded after release")
	}
}

func TestKeysmithLockAllWaitsForOutstandingLocks(t *testing.T) {
	k := NewKeysmith()
	key := "a"

	release := k.Lock(key)

	lockAllDone := make(chan struct{})
	go func() {
		r := k.LockAll()
		r()
		close(lockAllDone)
	}()

	select {
	case <-lockAllDone:
		t.Fatal("LockAll entered while a per-key lock is still held")
	case <-time.After(20 * time.Millisecond):
	}

	release()

	select {
	case <-lockAllDone:
	case <-time.After(time.Second):
		t.Fatal("LockAll never entered after the per-key lock released")
	}
}

func TestKeysmithLockAllBlocksNewLocks(t *testing.T) {
	k := NewKeysmith()
	key := "a"

	releaseAll := k.LockAll()

	lockDone := make(chan struct{})
	go func() {
		r := k.Lock(key)
		r()
		close(lockDone)
	}()

	select {
	case <-lockDone:
		t.Fatal("Lock admitted while LockAll is held")
	case <-time.After(20 * time.Millisecond):
	}

	releaseAll()

	select {
	case <-lockDone:
	case <-time.After(time.Second):
		t.Fatal("Lock never admitted after LockAll released")
	}
}

func TestKeysmithQuietReset(t *testing.T) {
	k := NewKeysmith()

	release1 := k.Lock("a")
	release2 := k.Lock("b")
	k.mu.Lock()
	if len(k.locks) != 2 {
		t.Fatalf("locks map len = %d, want 2", len(k.locks))
	}
	k.mu.Unlock()

	release1()
	release2()

	// Next admission should observe the map reset to empty.
	release3 := k.Lock("c")
	k.mu.Lock()
	if len(k.locks) != 1 {
		t.Fatalf("locks map len after reset = %d, want 1", len(k.locks))
	}
	k.mu.Unlock()
	release3()
}

func TestKeysmithConcurrentAccess(t *testing.T) {
	tests := []struct {
		name           string
		numKeys        int
		numLockWorkers int
		numAllWorkers  int
	}{
		{"locks and lock-all", 3, 5, 3},
		{"locks only", 3, 5, 0},
		{"lock-all only", 3, 0, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := NewKeysmith()
			keys := make([]string, tt.numKeys)
			for i := range keys {
				keys[i] = string(rune('a' + i))
			}

			var wg sync.WaitGroup
			for i := 0; i < tt.numLockWorkers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					key := keys[rand.Intn(len(keys))]
					release := k.Lock(key)
					time.Sleep(time.Millisecond)
					release()
				}()
			}
			for i := 0; i < tt.numAllWorkers; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					release := k.LockAll()
					time.Sleep(time.Millisecond)
					release()
				}()
			}
			wg.Wait()
		})
	}
}

func assertKeyLocked(t *testing.T, k *Keysmith, key string) {
	t.Helper()
	k.mu.Lock()
	defer k.mu.Unlock()
	lock, ok := k.locks[key]
	if !ok {
		t.Fatalf("key %q has no lock entry", key)
	}
	if lock.TryLock() {
		lock.Unlock()
		t.Fatalf("key %q expected to be locked", key)
	}
}

func assertKeyNotLocked(t *testing.T, k *Keysmith, key string) {
	t.Helper()
	k.mu.Lock()
	defer k.mu.Unlock()
	lock, ok := k.locks[key]
	if !ok {
		return
	}
	if !lock.TryLock() {
		t.Fatalf("key %q expected to not be locked", key)
	}
	lock.Unlock()
}

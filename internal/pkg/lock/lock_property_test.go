package lock

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

// TestConcurrentCounterSafetyProperty runs concurrent read-modify-write
// updates against one key and checks the result matches sequential execution.
func TestConcurrentCounterSafetyProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		initial := rapid.Int64Range(0, 100000).Draw(t, "initial")
		numOps := rapid.IntRange(2, 30).Draw(t, "numOps")
		key := rapid.StringMatching(`diner-[0-9]{1,6}`).Draw(t, "key")

		amounts := make([]int64, numOps)
		expected := initial
		for i := range amounts {
			amounts[i] = rapid.Int64Range(-50, 50).Draw(t, "amount")
			expected += amounts[i]
		}

		kl := New[string]()
		total := initial

		var wg sync.WaitGroup
		wg.Add(numOps)
		for _, amount := range amounts {
			go func(a int64) {
				defer wg.Done()
				_ = kl.WithLock(key, func() error {
					current := total
					total = current + a
					return nil
				})
			}(amount)
		}
		wg.Wait()

		if total != expected {
			t.Fatalf("total mismatch: expected %d, got %d", expected, total)
		}
		if kl.Len() != 0 {
			t.Fatalf("lock table should be empty after all holders left, has %d", kl.Len())
		}
	})
}

// TestIndependentKeysProperty checks locks on different keys do not interfere.
func TestIndependentKeysProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		numKeys := rapid.IntRange(2, 8).Draw(t, "numKeys")
		opsPerKey := rapid.IntRange(1, 15).Draw(t, "opsPerKey")

		kl := New[int64]()
		counters := make([]int, numKeys)

		var wg sync.WaitGroup
		wg.Add(numKeys * opsPerKey)
		for k := 0; k < numKeys; k++ {
			for j := 0; j < opsPerKey; j++ {
				go func(key int) {
					defer wg.Done()
					kl.Lock(int64(key))
					defer kl.Unlock(int64(key))
					counters[key]++
				}(k)
			}
		}
		wg.Wait()

		for k, c := range counters {
			if c != opsPerKey {
				t.Fatalf("key %d: expected %d increments, got %d", k, opsPerKey, c)
			}
		}
	})
}

// TestLockUnlockSymmetryProperty checks the lock is free after balanced cycles.
func TestLockUnlockSymmetryProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		cycles := rapid.IntRange(1, 50).Draw(t, "cycles")
		kl := New[string]()

		for i := 0; i < cycles; i++ {
			kl.Lock("k")
			kl.Unlock("k")
		}

		if !kl.TryLock("k") {
			t.Fatal("lock should be available after symmetric cycles")
		}
		kl.Unlock("k")
	})
}

func TestTryLock_OnlyOneWinner(t *testing.T) {
	kl := New[string]()
	var wins atomic.Int32
	var wg sync.WaitGroup
	start := make(chan struct{})

	const attempts = 20
	wg.Add(attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			defer wg.Done()
			<-start
			if kl.TryLock("periods") {
				wins.Add(1)
			}
		}()
	}
	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
	assert.True(t, kl.IsLocked("periods"))
	kl.Unlock("periods")
	assert.False(t, kl.IsLocked("periods"))
}

func TestLockContext_Timeout(t *testing.T) {
	kl := New[string]()
	kl.Lock("busy")
	defer kl.Unlock("busy")

	err := kl.LockContext(context.Background(), "busy", 20*time.Millisecond)
	require.ErrorIs(t, err, ErrLockTimeout)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err = kl.LockContext(ctx, "busy", 0)
	require.ErrorIs(t, err, context.Canceled)
}

func TestWithLockContext_RunsFn(t *testing.T) {
	kl := New[string]()
	ran := false
	err := kl.WithLockContext(context.Background(), "k", time.Second, func() error {
		ran = true
		assert.True(t, kl.IsLocked("k"))
		return nil
	})
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, 0, kl.Len())
}

func TestUnlock_NotHeldIsNoop(t *testing.T) {
	kl := New[string]()
	kl.Unlock("never-locked")
	assert.Equal(t, 0, kl.Len())
}

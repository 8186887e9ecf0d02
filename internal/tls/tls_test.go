package tls_test

import (
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danwails/lfconcurrent/internal/tls"
)

func TestKeySetGetPerGoroutine(t *testing.T) {
	k := tls.KeyCreate[int](nil)

	var wg sync.WaitGroup
	results := make([]int, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, ok := k.Get()
			assert.False(t, ok)
			k.Set(i * 10)
			v, ok := k.Get()
			require.True(t, ok)
			results[i] = v
		}(i)
	}
	wg.Wait()
	for i, v := range results {
		assert.Equal(t, i*10, v)
	}
}

func TestKeyGetOrCreateLazyInit(t *testing.T) {
	var inits atomic.Int32
	k := tls.KeyCreate[*int](nil)

	v1 := k.GetOrCreate(func() *int {
		inits.Add(1)
		n := 1
		return &n
	})
	v2 := k.GetOrCreate(func() *int {
		inits.Add(1)
		n := 2
		return &n
	})
	assert.Same(t, v1, v2)
	assert.EqualValues(t, 1, inits.Load())
}

func TestKeyReleaseRunsDestructorForCallingGoroutine(t *testing.T) {
	var destroyed atomic.Int32
	k := tls.KeyCreate[int](func(v int) {
		destroyed.Add(1)
	})

	k.Set(7)
	k.Release()
	assert.EqualValues(t, 1, destroyed.Load())

	// A second Release with nothing set must not re-invoke the destructor.
	k.Release()
	assert.EqualValues(t, 1, destroyed.Load())
}

func TestKeyDestructorRunsWhenGoroutineExits(t *testing.T) {
	var destroyed atomic.Int32
	k := tls.KeyCreate[int](func(v int) {
		destroyed.Add(1)
	})

	done := make(chan struct{})
	go func() {
		k.Set(42)
		close(done)
	}()
	<-done

	// The goroutine-local record becomes finalizable once the goroutine
	// above returns and no reference to it survives; nudge the collector
	// and give the finalizer queue a chance to drain.
	deadline := time.Now().Add(2 * time.Second)
	for destroyed.Load() == 0 && time.Now().Before(deadline) {
		runtime.GC()
		time.Sleep(5 * time.Millisecond)
	}
	assert.EqualValues(t, 1, destroyed.Load())
}

// TestDestructionAcrossTenGoroutinesDrivenPurelyByExit spawns ten goroutines
// that each set a value and return without ever calling Release: the only
// thing allowed to run the destructor is finalizeRecord, once each
// goroutine's own record becomes unreachable. This is the property
// TestKeyDestructorRunsWhenGoroutineExits proves for one goroutine, extended
// to ten exiting concurrently — an explicit Release call here would prove
// nothing about the finalizer path at all.
func TestDestructionAcrossTenGoroutinesDrivenPurelyByExit(t *testing.T) {
	var destroyed atomic.Int32
	k := tls.KeyCreate[int](func(v int) {
		destroyed.Add(1)
	})

	const goroutines = 10
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			k.Set(1)
		}()
	}
	wg.Wait()

	// Every goroutine above has already returned; only GC-driven finalization
	// of their now-unreachable records can still invoke the destructor.
	deadline := time.Now().Add(2 * time.Second)
	for destroyed.Load() < goroutines && time.Now().Before(deadline) {
		runtime.GC()
		time.Sleep(5 * time.Millisecond)
	}
	assert.EqualValues(t, goroutines, destroyed.Load())
}

func TestAccessorScopesToCallingGoroutine(t *testing.T) {
	k := tls.KeyCreate[string](nil)
	acc := k.Accessor()
	acc.Set("hello")
	v, ok := acc.Get()
	require.True(t, ok)
	assert.Equal(t, "hello", v)
	assert.NoError(t, acc.Close())
}

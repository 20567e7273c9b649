package debounce

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestScheduler_FiresOnceAfterQuietPeriod(t *testing.T) {
	s := New()
	defer s.Stop()

	var (
		count   atomic.Int32
		firedAt atomic.Int64
	)
	action := func() {
		count.Add(1)
		firedAt.Store(time.Now().UnixNano())
	}

	s.Schedule("doc", 100*time.Millisecond, action)
	time.Sleep(30 * time.Millisecond)
	second := time.Now()
	s.Schedule("doc", 100*time.Millisecond, action)

	// Past the first deadline but before the second one.
	time.Sleep(85 * time.Millisecond)
	assert.Equal(t, int32(0), count.Load(), "must not fire relative to the first call")

	require.Eventually(t, func() bool { return count.Load() == 1 }, time.Second, 5*time.Millisecond)
	elapsed := time.Duration(firedAt.Load() - second.UnixNano())
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)

	time.Sleep(150 * time.Millisecond)
	assert.Equal(t, int32(1), count.Load())
	assert.False(t, s.Pending("doc"))
}

func TestScheduler_Cancel(t *testing.T) {
	s := New()
	defer s.Stop()

	var count atomic.Int32
	s.Schedule("doc", 20*time.Millisecond, func() { count.Add(1) })
	require.True(t, s.Pending("doc"))

	assert.True(t, s.Cancel("doc"))
	assert.False(t, s.Cancel("doc"), "second cancel is a no-op")
	assert.False(t, s.Cancel("missing"))

	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, int32(0), count.Load())
}

func TestScheduler_CancelAfterFireIsNoop(t *testing.T) {
	s := New()
	defer s.Stop()

	done := make(chan struct{})
	s.Schedule("doc", time.Millisecond, func() { close(done) })
	<-done

	assert.False(t, s.Cancel("doc"))
}

func TestScheduler_KeysAreIndependent(t *testing.T) {
	s := New()
	defer s.Stop()

	var mu sync.Mutex
	fired := map[string]int{}
	record := func(key string) func() {
		return func() {
			mu.Lock()
			fired[key]++
			mu.Unlock()
		}
	}

	s.Schedule("a", 10*time.Millisecond, record("a"))
	s.Schedule("b", 10*time.Millisecond, record("b"))
	s.Cancel("a")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return fired["b"] == 1
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 0, fired["a"])
}

func TestScheduler_StopIgnoresLaterSchedules(t *testing.T) {
	s := New()

	var count atomic.Int32
	s.Schedule("doc", 10*time.Millisecond, func() { count.Add(1) })
	s.Stop()
	s.Schedule("doc", time.Millisecond, func() { count.Add(1) })

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), count.Load())
	assert.False(t, s.Pending("doc"))
}

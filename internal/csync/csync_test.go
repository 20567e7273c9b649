package csync

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMap_SetIfAbsentAndTake(t *testing.T) {
	m := NewMap[string, int]()

	require.True(t, m.SetIfAbsent("a", 1))
	assert.False(t, m.SetIfAbsent("a", 2))

	v, ok := m.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)

	v, ok = m.Take("a")
	require.True(t, ok)
	assert.Equal(t, 1, v)
	assert.False(t, m.Has("a"))

	_, ok = m.Take("a")
	assert.False(t, ok)
}

func TestMap_UpdateConcurrent(t *testing.T) {
	m := NewMap[string, int]()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.Update("count", func(old int, _ bool) int { return old + 1 })
		}()
	}
	wg.Wait()

	v, _ := m.Get("count")
	assert.Equal(t, 50, v)
	assert.Equal(t, 1, m.Len())
	assert.ElementsMatch(t, []string{"count"}, m.Keys())
}

func TestSlice_Tail(t *testing.T) {
	s := NewSlice[int]()
	assert.Nil(t, s.Tail(3))

	s.Append(1, 2, 3, 4)
	assert.Equal(t, []int{3, 4}, s.Tail(2))
	assert.Equal(t, []int{1, 2, 3, 4}, s.Tail(10))

	last, ok := s.Last()
	require.True(t, ok)
	assert.Equal(t, 4, last)

	s.Clear()
	assert.Equal(t, 0, s.Len())
	assert.Empty(t, s.ToSlice())
}

func TestSlice_Keep(t *testing.T) {
	s := NewSlice[int]()
	s.Append(1, 2, 3, 4, 5)

	s.Keep(3)
	assert.Equal(t, []int{3, 4, 5}, s.ToSlice())

	s.Keep(10)
	assert.Equal(t, 3, s.Len())

	s.Keep(0)
	assert.Equal(t, 0, s.Len())
}

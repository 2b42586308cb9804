package queue_test

import (
	"sync"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jvm-metadata/harvester/pkg/queue"
)

func TestQueueFIFO(t *testing.T) {
	q := queue.New[int]()
	for i := range 5 {
		require.True(t, q.Push(i))
	}
	assert.Equal(t, 5, q.Len())

	for i := range 5 {
		got, ok := q.Pop()
		require.True(t, ok)
		assert.Equal(t, i, got)
	}
}

func TestQueueCloseDrains(t *testing.T) {
	q := queue.New[string]()
	require.True(t, q.Push("a"))
	require.True(t, q.Push("b"))
	q.Close()
	q.Close()

	assert.False(t, q.Push("c"))

	got, ok := q.Pop()
	require.True(t, ok)
	assert.Equal(t, "a", got)
	got, ok = q.Pop()
	require.True(t, ok)
	assert.Equal(t, "b", got)

	_, ok = q.Pop()
	assert.False(t, ok)
}

func TestQueueBlockingPop(t *testing.T) {
	q := queue.New[int]()

	var wg sync.WaitGroup
	var mu sync.Mutex
	var got []int
	for range 3 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				v, ok := q.Pop()
				if !ok {
					return
				}
				mu.Lock()
				got = append(got, v)
				mu.Unlock()
			}
		}()
	}

	for i := range 100 {
		q.Push(i)
	}
	q.Close()
	wg.Wait()

	assert.Len(t, got, 100)
	assert.ElementsMatch(t, lo.Range(100), got)
}

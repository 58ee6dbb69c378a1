package queue

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueueCoalescesPerSKU(t *testing.T) {
	q := New()
	q.Enqueue("A", "initial")
	q.Enqueue("B", "initial")
	q.Enqueue("A", "data-changed")

	assert.Equal(t, 2, q.Size())
	items := q.Peek()
	require.Len(t, items, 2)
	assert.Equal(t, "B", items[0].SKU)
	assert.Equal(t, "A", items[1].SKU)
	assert.Equal(t, "data-changed", items[1].Reason)
}

func TestRemoveIsCompareAndDelete(t *testing.T) {
	q := New()
	first := q.Enqueue("A", "initial")
	second := q.Enqueue("A", "data-changed")

	assert.False(t, q.Remove("A", first.Seq))
	assert.True(t, q.Contains("A"))
	assert.True(t, q.Remove("A", second.Seq))
	assert.False(t, q.Contains("A"))
	assert.False(t, q.Remove("A", second.Seq))
}

func TestDequeueAllDrains(t *testing.T) {
	q := New()
	q.EnqueueAll([]string{"A", "B", "C"}, "initial")

	items := q.DequeueAll()
	require.Len(t, items, 3)
	assert.Equal(t, []string{"A", "B", "C"}, []string{items[0].SKU, items[1].SKU, items[2].SKU})
	assert.Zero(t, q.Size())
	assert.Empty(t, q.DequeueAll())
}

func TestRebuildReplacesContents(t *testing.T) {
	q := New()
	q.EnqueueAll([]string{"A", "B"}, "initial")
	q.Rebuild([]string{"C"}, "dataset-replaced")

	items := q.Peek()
	require.Len(t, items, 1)
	assert.Equal(t, "C", items[0].SKU)
	assert.Equal(t, "dataset-replaced", items[0].Reason)
}

func TestConcurrentEnqueue(t *testing.T) {
	q := New()
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q.Enqueue([]string{"A", "B", "C", "D"}[i%4], "burst")
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 4, q.Size())
}

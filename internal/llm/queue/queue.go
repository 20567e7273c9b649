package queue

import (
	"container/heap"
	"sync"
)

// Queue is a thread-safe priority queue.
// Items with higher priority are dequeued first.
// If priorities are equal, older items go first (FIFO within priority).
type Queue struct {
	items  priorityQueue
	closed bool
	mutex  sync.Mutex
	cond   *sync.Cond
}

// NewQueue creates an empty priority queue.
func NewQueue() *Queue {
	q := &Queue{
		items: make(priorityQueue, 0),
	}
	q.cond = sync.NewCond(&q.mutex)
	heap.Init(&q.items)
	return q
}

// Push adds an item to the queue in priority order.
// It returns false once the queue is closed.
func (q *Queue) Push(item *QueueItem) bool {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.closed {
		return false
	}
	heap.Push(&q.items, item)
	q.cond.Signal()
	return true
}

// Pop removes and returns the highest priority item.
// Blocks while the queue is empty; returns nil once it is closed.
func (q *Queue) Pop() *QueueItem {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for q.items.Len() == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.closed {
		return nil
	}

	return heap.Pop(&q.items).(*QueueItem)
}

// TryPop is like Pop but returns nil immediately if queue is empty.
func (q *Queue) TryPop() *QueueItem {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	if q.items.Len() == 0 {
		return nil
	}

	return heap.Pop(&q.items).(*QueueItem)
}

// Close wakes every blocked Pop and rejects further pushes. Items still
// queued are returned so the caller can cancel them.
func (q *Queue) Close() []*QueueItem {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	q.closed = true
	rest := make([]*QueueItem, len(q.items))
	copy(rest, q.items)
	q.items = q.items[:0]
	q.cond.Broadcast()
	return rest
}

// Remove removes an item by ID.
// Returns true if found and removed.
func (q *Queue) Remove(id string) bool {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	for i, item := range q.items {
		if item.ID == id {
			heap.Remove(&q.items, i)
			return true
		}
	}
	return false
}

// Len returns the number of items in queue.
func (q *Queue) Len() int {
	q.mutex.Lock()
	defer q.mutex.Unlock()
	return q.items.Len()
}

// Items returns a snapshot of all items.
func (q *Queue) Items() []*QueueItem {
	q.mutex.Lock()
	defer q.mutex.Unlock()

	result := make([]*QueueItem, len(q.items))
	copy(result, q.items)
	return result
}

// priorityQueue implements heap.Interface for priority ordering.
type priorityQueue []*QueueItem

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].Priority != pq[j].Priority {
		return pq[i].Priority > pq[j].Priority
	}
	return pq[i].Created.Before(pq[j].Created)
}

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
}

func (pq *priorityQueue) Push(x interface{}) {
	*pq = append(*pq, x.(*QueueItem))
}

func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	*pq = old[0 : n-1]
	return item
}

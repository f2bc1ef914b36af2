package testrun

import (
	"container/heap"
	"errors"
	"sync"
	"time"
)

var (
	// ErrQueueFull is returned when the queue is at max capacity.
	ErrQueueFull = errors.New("execution queue is full")
	// ErrAlreadyQueued is returned when the execution is already queued.
	ErrAlreadyQueued = errors.New("execution already queued")
)

// queuedExecution is one entry in the priority queue.
type queuedExecution struct {
	ExecutionID string
	Priority    int // higher priority drains first
	QueuedAt    time.Time
	index       int // maintained by container/heap
}

type executionHeap []*queuedExecution

func (h executionHeap) Len() int { return len(h) }

func (h executionHeap) Less(i, j int) bool {
	if h[i].Priority != h[j].Priority {
		return h[i].Priority > h[j].Priority
	}
	return h[i].QueuedAt.Before(h[j].QueuedAt)
}

func (h executionHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}

func (h *executionHeap) Push(x any) {
	n := len(*h)
	item := x.(*queuedExecution)
	item.index = n
	*h = append(*h, item)
}

func (h *executionHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.index = -1
	*h = old[0 : n-1]
	return item
}

// ExecutionQueue orders scheduled executions by (priority, queued time).
type ExecutionQueue struct {
	mu      sync.RWMutex
	heap    executionHeap
	entries map[string]*queuedExecution
	maxSize int
}

// NewExecutionQueue creates an execution queue. A maxSize of zero means
// unbounded.
func NewExecutionQueue(maxSize int) *ExecutionQueue {
	q := &ExecutionQueue{
		heap:    make(executionHeap, 0),
		entries: make(map[string]*queuedExecution),
		maxSize: maxSize,
	}
	heap.Init(&q.heap)
	return q
}

// Enqueue adds an execution to the queue.
func (q *ExecutionQueue) Enqueue(executionID string, priority int) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, exists := q.entries[executionID]; exists {
		return ErrAlreadyQueued
	}
	if q.maxSize > 0 && len(q.heap) >= q.maxSize {
		return ErrQueueFull
	}

	entry := &queuedExecution{
		ExecutionID: executionID,
		Priority:    priority,
		QueuedAt:    time.Now(),
	}
	heap.Push(&q.heap, entry)
	q.entries[executionID] = entry
	return nil
}

// Dequeue removes and returns the highest priority execution id, or ""
// when the queue is empty.
func (q *ExecutionQueue) Dequeue() string {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.heap) == 0 {
		return ""
	}
	entry := heap.Pop(&q.heap).(*queuedExecution)
	delete(q.entries, entry.ExecutionID)
	return entry.ExecutionID
}

// Remove drops a specific execution from the queue.
func (q *ExecutionQueue) Remove(executionID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	entry, exists := q.entries[executionID]
	if !exists {
		return false
	}
	heap.Remove(&q.heap, entry.index)
	delete(q.entries, executionID)
	return true
}

// Len returns the number of queued executions.
func (q *ExecutionQueue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.heap)
}

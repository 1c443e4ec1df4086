package store

// IDAllocator hands out post ids in creation order. Implementations are called with the content lock held.
type IDAllocator interface {
	Next() int64
	// Reset makes the next id at least next.
	Reset(next int64)
}

// SequenceAllocator is the default monotonic allocator starting at 1.
type SequenceAllocator struct {
	next int64
}

// NewSequenceAllocator starts a sequence at start (values below 1 start at 1).
func NewSequenceAllocator(start int64) *SequenceAllocator {
	if start < 1 {
		start = 1
	}
	return &SequenceAllocator{next: start}
}

func (a *SequenceAllocator) Next() int64 {
	id := a.next
	a.next++
	return id
}

func (a *SequenceAllocator) Reset(next int64) {
	if next > a.next {
		a.next = next
	}
}

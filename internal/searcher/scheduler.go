package searcher

import (
	"context"
	"runtime"
	"sync"
)

// defaultWorkerCount sizes the content pool to leave headroom for the
// walker and the caller, with at least one worker on small machines.
func defaultWorkerCount() int {
	n := runtime.NumCPU()
	if n < 2 {
		n = 2
	}
	if n -= 2; n < 1 {
		n = 1
	}
	return n
}

// scheduler fans discovered files out to a bounded pool of content
// workers. The walker enqueues while the pool drains, so a deep tree never
// materializes as one giant in-memory list.
type scheduler struct {
	tasks   chan FileEntry
	wg      sync.WaitGroup
	workers int
}

func newScheduler(workers int) *scheduler {
	if workers <= 0 {
		workers = defaultWorkerCount()
	}
	return &scheduler{
		tasks:   make(chan FileEntry, 2*workers),
		workers: workers,
	}
}

// start launches the pool. Each worker applies fn to every dequeued entry
// until drain closes the queue.
func (s *scheduler) start(fn func(FileEntry)) {
	for i := 0; i < s.workers; i++ {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			for entry := range s.tasks {
				fn(entry)
			}
		}()
	}
}

// enqueue hands a file to the pool. It reports false when the context ends
// first, so a cancelled run cannot wedge the walker on a full queue.
func (s *scheduler) enqueue(ctx context.Context, entry FileEntry) bool {
	select {
	case s.tasks <- entry:
		return true
	case <-ctx.Done():
		return false
	}
}

// drain closes the queue and waits for in-flight work to finish.
func (s *scheduler) drain() {
	close(s.tasks)
	s.wg.Wait()
}

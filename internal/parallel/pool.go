// Package parallel provides the worker pool that fans frame graph work
// out across CPU cores: command buffer recording during execution and
// the independent sub-steps of compilation.
package parallel

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// WorkerPool runs independent tasks on a fixed set of goroutines.
//
// Each worker owns a buffered queue and steals from its siblings when
// that queue runs dry, so one slow task does not leave the other
// workers idle.
//
// Thread safety: WorkerPool is safe for concurrent use.
type WorkerPool struct {
	// workers is the number of worker goroutines.
	workers int

	// queues holds one buffered channel per worker. A worker pulls from
	// its own queue first and steals from the others when it is empty.
	queues []chan func()

	// done signals workers to stop.
	done chan struct{}

	// wg waits for all workers to exit.
	wg sync.WaitGroup

	// running reports whether the pool accepts new work.
	running atomic.Bool
}

// NewWorkerPool starts a pool with the given number of workers.
// A count of zero or less uses GOMAXPROCS.
func NewWorkerPool(workers int) *WorkerPool {
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	// A few queue slots per worker hide submission latency without
	// holding many closures alive.
	depth := workers * 4
	if depth < 8 {
		depth = 8
	}

	p := &WorkerPool{
		workers: workers,
		queues:  make([]chan func(), workers),
		done:    make(chan struct{}),
	}
	for i := range p.queues {
		p.queues[i] = make(chan func(), depth)
	}

	p.running.Store(true)
	p.wg.Add(workers)
	for i := range workers {
		go p.work(i)
	}
	return p
}

// work is the loop each worker goroutine runs.
func (p *WorkerPool) work(id int) {
	defer p.wg.Done()

	own := p.queues[id]
	for {
		select {
		case <-p.done:
			p.drain(own)
			return
		case fn := <-own:
			if fn != nil {
				fn()
			}
		default:
			if fn := p.steal(id); fn != nil {
				fn()
				continue
			}
			// Nothing available anywhere, block on the own queue.
			select {
			case <-p.done:
				p.drain(own)
				return
			case fn := <-own:
				if fn != nil {
					fn()
				}
			}
		}
	}
}

// drain runs everything left in a queue.
func (p *WorkerPool) drain(queue chan func()) {
	for {
		select {
		case fn := <-queue:
			if fn != nil {
				fn()
			}
		default:
			return
		}
	}
}

// steal takes one task from another worker's queue. It returns nil
// when every other queue is empty.
func (p *WorkerPool) steal(self int) func() {
	for i := range p.workers {
		if i == self {
			continue
		}
		select {
		case fn := <-p.queues[i]:
			return fn
		default:
		}
	}
	return nil
}

// ExecuteAll runs every task and returns once all of them have
// finished. Tasks are spread round-robin across the workers. On a
// closed pool this is a no-op.
func (p *WorkerPool) ExecuteAll(tasks []func()) {
	if len(tasks) == 0 || !p.running.Load() {
		return
	}

	var join sync.WaitGroup
	join.Add(len(tasks))

	for i, fn := range tasks {
		task := fn
		wrapped := func() {
			defer join.Done()
			task()
		}
		select {
		case p.queues[i%p.workers] <- wrapped:
		case <-p.done:
			// Pool is shutting down, the task is dropped.
			join.Done()
		}
	}

	join.Wait()
}

// Submit queues a single task on the least loaded worker.
// On a closed pool this is a no-op.
func (p *WorkerPool) Submit(fn func()) {
	if fn == nil || !p.running.Load() {
		return
	}

	best := 0
	for i := 1; i < p.workers; i++ {
		if len(p.queues[i]) < len(p.queues[best]) {
			best = i
		}
	}

	select {
	case p.queues[best] <- fn:
	case <-p.done:
	}
}

// Close stops accepting work, lets the workers drain their queues and
// waits for them to exit. Close is safe to call more than once.
func (p *WorkerPool) Close() {
	if !p.running.CompareAndSwap(true, false) {
		return
	}
	close(p.done)
	p.wg.Wait()
}

// Workers returns the number of workers in the pool.
func (p *WorkerPool) Workers() int {
	return p.workers
}

// IsRunning reports whether the pool accepts work.
func (p *WorkerPool) IsRunning() bool {
	return p.running.Load()
}

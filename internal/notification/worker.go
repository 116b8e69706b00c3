package notification

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"
)

// Poster delivers one line of text to a channel.
type Poster interface {
	Post(ctx context.Context, webhookURL, content string) error
}

// WorkerPool posts activity feed lines in the background.
type WorkerPool struct {
	size   int
	jobs   chan string
	url    string
	poster Poster

	wg       sync.WaitGroup
	stopOnce sync.Once
	mu       sync.RWMutex
	stopped  bool
}

// NewWorkerPool creates a new worker pool posting to feedURL.
func NewWorkerPool(size, queueSize int, poster Poster, feedURL string) *WorkerPool {
	if size <= 0 {
		size = 1
	}
	if queueSize <= 0 {
		queueSize = size
	}
	return &WorkerPool{
		size:   size,
		jobs:   make(chan string, queueSize),
		url:    feedURL,
		poster: poster,
	}
}

// Start launches the worker goroutines. Workers exit once Stop has been called
// and the queue is empty.
func (wp *WorkerPool) Start(ctx context.Context) {
	for i := 0; i < wp.size; i++ {
		wp.wg.Add(1)
		go wp.worker(ctx, i)
	}
}

func (wp *WorkerPool) worker(ctx context.Context, id int) {
	defer wp.wg.Done()
	log.Debug().Int("worker", id).Msg("feed worker started")
	for line := range wp.jobs {
		if err := wp.poster.Post(ctx, wp.url, line); err != nil {
			log.Warn().Err(err).Int("worker", id).Msg("failed to post feed message")
		}
	}
	log.Debug().Int("worker", id).Msg("feed worker shutting down")
}

// Dispatch queues a line for posting. It never blocks: a full queue drops the
// line and reports false.
func (wp *WorkerPool) Dispatch(line string) bool {
	wp.mu.RLock()
	defer wp.mu.RUnlock()
	if wp.stopped {
		return false
	}
	select {
	case wp.jobs <- line:
		return true
	default:
		log.Warn().Str("line", line).Msg("feed queue full, dropping message")
		return false
	}
}

// Stop stops accepting lines and waits until the queued ones are posted.
func (wp *WorkerPool) Stop() {
	wp.stopOnce.Do(func() {
		wp.mu.Lock()
		wp.stopped = true
		close(wp.jobs)
		wp.mu.Unlock()
	})
	wp.wg.Wait()
}

package scanner

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"edgescan/internal/jobs/queue/candidates"
)

const DefaultPacing = 500 * time.Millisecond

var ErrInvalidWorkerCount = errors.New("worker count must be at least 1")

// ResultSet lists positive candidates in the order they were detected.
type ResultSet []string

type Classifier interface {
	Classify(ctx context.Context, candidate string) bool
}

// ClassifierFunc adapts a plain function to Classifier.
type ClassifierFunc func(ctx context.Context, candidate string) bool

func (f ClassifierFunc) Classify(ctx context.Context, candidate string) bool {
	return f(ctx, candidate)
}

// Progress is reported once per processed candidate, from the worker that
// processed it.
type Progress struct {
	Candidate string
	Positive  bool
	Processed int64
	Total     int
}

type Coordinator struct {
	classifier Classifier
	pacing     time.Duration
	limiter    *rate.Limiter
	queue      candidates.Queue
	progress   func(Progress)
}

type Option func(*Coordinator)

// WithPacing sets the fixed delay each worker waits after every candidate.
func WithPacing(d time.Duration) Option {
	return func(c *Coordinator) {
		if d >= 0 {
			c.pacing = d
		}
	}
}

// WithRateLimit caps probes per second across the whole pool. A non-positive
// rate disables the cap.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(c *Coordinator) {
		if perSecond <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// WithQueue replaces the per-run memory queue, e.g. with a RedisQueue.
func WithQueue(q candidates.Queue) Option {
	return func(c *Coordinator) {
		c.queue = q
	}
}

func WithProgress(fn func(Progress)) Option {
	return func(c *Coordinator) {
		c.progress = fn
	}
}

func NewCoordinator(classifier Classifier, opts ...Option) *Coordinator {
	c := &Coordinator{
		classifier: classifier,
		pacing:     DefaultPacing,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run classifies every candidate with a pool of exactly workers goroutines
// and returns the positives. It returns once the queue is drained and every
// worker has exited. If ctx is cancelled, workers stop taking new candidates
// and Run returns the partial result together with ctx.Err().
func (c *Coordinator) Run(ctx context.Context, items []string, workers int) (ResultSet, error) {
	if workers < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidWorkerCount, workers)
	}
	if c.classifier == nil {
		return nil, errors.New("scanner: classifier is nil")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	queue := c.queue
	if queue == nil {
		memoryQueue := candidates.NewMemoryQueue()
		defer memoryQueue.Close()
		queue = memoryQueue
	}

	if err := queue.Put(ctx, items...); err != nil {
		return nil, fmt.Errorf("load candidate queue: %w", err)
	}

	log.Info("Scan started", "candidates", len(items), "workers", workers, "pacing", c.pacing)
	started := time.Now()

	found := make(chan string, workers)
	aggregated := make(chan ResultSet, 1)
	go aggregate(found, aggregated)

	joinCtx, cancelJoin := context.WithCancel(ctx)
	defer cancelJoin()

	var (
		group     errgroup.Group
		processed atomic.Int64
		workErr   error
	)

	for id := 0; id < workers; id++ {
		group.Go(func() error {
			return c.work(ctx, id, queue, found, &processed, len(items))
		})
	}

	workersDone := make(chan struct{})
	go func() {
		workErr = group.Wait()
		if workErr != nil {
			// A failed worker may leave items undone; release the barrier.
			cancelJoin()
		}
		close(workersDone)
	}()

	joinErr := queue.Join(joinCtx)
	<-workersDone

	close(found)
	results := <-aggregated

	log.Info("Scan completed",
		"candidates", len(items),
		"processed", processed.Load(),
		"found", len(results),
		"duration", time.Since(started).Round(time.Millisecond),
	)

	switch {
	case ctx.Err() != nil:
		return results, ctx.Err()
	case workErr != nil:
		return results, workErr
	case joinErr != nil:
		return results, fmt.Errorf("wait for candidate queue: %w", joinErr)
	}

	return results, nil
}

func (c *Coordinator) work(ctx context.Context, id int, queue candidates.Queue, found chan<- string, processed *atomic.Int64, total int) error {
	// Done must still reach the queue for an item that was in flight when ctx
	// was cancelled.
	doneCtx := context.WithoutCancel(ctx)

	for {
		if ctx.Err() != nil {
			return nil
		}

		candidate, ok, err := queue.TryGet(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("worker %d: %w", id, err)
		}
		if !ok {
			return nil
		}

		positive := false
		if c.limiter == nil || c.limiter.Wait(ctx) == nil {
			positive = c.classifier.Classify(ctx, candidate)
		}

		if positive {
			found <- candidate
		} else {
			log.Debug("Address is not fronted", "ip", candidate, "worker", id)
		}

		count := processed.Add(1)
		if c.progress != nil {
			c.progress(Progress{Candidate: candidate, Positive: positive, Processed: count, Total: total})
		}

		if err := queue.Done(doneCtx); err != nil {
			return fmt.Errorf("worker %d: %w", id, err)
		}

		if !pause(ctx, c.pacing) {
			return nil
		}
	}
}

// aggregate is the only writer of the result set.
func aggregate(found <-chan string, out chan<- ResultSet) {
	results := ResultSet{}
	for candidate := range found {
		results = append(results, candidate)
		log.Info("Found fronted address", "ip", candidate, "total", len(results))
	}
	out <- results
}

func pause(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

package queue

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Processor pulls items from a queue and executes them.
// It bounds how many requests run in parallel so a local model server is
// not overwhelmed.
type Processor struct {
	queue      *Queue
	maxWorkers int
	semaphore  chan struct{}
	timeout    time.Duration
	logger     *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	metrics struct {
		sync.Mutex
		totalProcessed   int
		totalErrors      int
		avgResponseTime  time.Duration
		lastResponseTime time.Duration
	}

	onStart    func(item *QueueItem)
	onComplete func(item *QueueItem, err error, duration time.Duration)
}

// NewProcessor creates a processor with the specified concurrency limit.
// A zero timeout lets requests run until their own context ends.
func NewProcessor(queue *Queue, maxWorkers int, timeout time.Duration, logger *slog.Logger) *Processor {
	if maxWorkers < 1 {
		maxWorkers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Processor{
		queue:      queue,
		maxWorkers: maxWorkers,
		semaphore:  make(chan struct{}, maxWorkers),
		timeout:    timeout,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}
}

// Start begins processing items from the queue.
func (p *Processor) Start() {
	p.wg.Add(1)
	go p.run()
}

// Stop closes the queue, cancels items that never started and waits for
// in-flight requests to return.
func (p *Processor) Stop() {
	p.cancel()
	for _, item := range p.queue.Close() {
		item.Cancel()
	}
	p.wg.Wait()
}

// OnStart sets callback for when item starts processing.
func (p *Processor) OnStart(fn func(*QueueItem)) {
	p.onStart = fn
}

// OnComplete sets callback for when item finishes.
func (p *Processor) OnComplete(fn func(*QueueItem, error, time.Duration)) {
	p.onComplete = fn
}

// GetMetrics returns the moving average latency and error rate.
func (p *Processor) GetMetrics() (avgTime time.Duration, errorRate float64) {
	p.metrics.Lock()
	defer p.metrics.Unlock()

	if p.metrics.totalProcessed > 0 {
		errorRate = float64(p.metrics.totalErrors) / float64(p.metrics.totalProcessed)
	}
	return p.metrics.avgResponseTime, errorRate
}

func (p *Processor) run() {
	defer p.wg.Done()

	for {
		// Blocks until an item arrives or the queue is closed
		item := p.queue.Pop()
		if item == nil {
			return
		}

		select {
		case <-item.Context.Done():
			p.logger.Debug("skipping canceled item", "item", item.ID, "type", item.Type)
			if p.onComplete != nil {
				p.onComplete(item, item.Context.Err(), 0)
			}
			continue
		default:
		}

		select {
		case p.semaphore <- struct{}{}:
			p.wg.Add(1)
			go p.process(item)
		case <-p.ctx.Done():
			item.Cancel()
			return
		}
	}
}

func (p *Processor) process(item *QueueItem) {
	defer p.wg.Done()
	defer func() { <-p.semaphore }()

	if p.onStart != nil {
		p.onStart(item)
	}

	start := time.Now()

	ctx := item.Context
	if p.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(item.Context, p.timeout)
		defer cancel()
	}

	err := item.Request(ctx)

	duration := time.Since(start)
	p.updateMetrics(err, duration)

	if p.onComplete != nil {
		p.onComplete(item, err, duration)
	}
}

func (p *Processor) updateMetrics(err error, duration time.Duration) {
	p.metrics.Lock()
	defer p.metrics.Unlock()

	p.metrics.totalProcessed++
	if err != nil {
		p.metrics.totalErrors++
	}

	p.metrics.lastResponseTime = duration

	// Weight recent measurements more
	if p.metrics.avgResponseTime == 0 {
		p.metrics.avgResponseTime = duration
	} else {
		p.metrics.avgResponseTime = (p.metrics.avgResponseTime*4 + duration) / 5
	}
}

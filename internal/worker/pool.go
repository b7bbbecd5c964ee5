package worker

import (
	"context"
	"sync"
)

// Job represents a unit of work to be executed
type Job interface {
	Execute(ctx context.Context) Result
}

// Result represents the result of a job execution
type Result interface {
	GetError() error
}

// Pool runs jobs on a fixed number of workers pulling from one shared queue,
// so a free worker always takes the next pending job.
type Pool struct {
	workers   int
	jobQueue  chan Job
	results   chan Result
	collector *ResultCollector
	wg        sync.WaitGroup
	collected chan struct{}
	ctx       context.Context
}

// NewPool creates a new worker pool with the specified number of workers
func NewPool(ctx context.Context, workers int) *Pool {
	if workers <= 0 {
		workers = 1
	}

	return &Pool{
		workers:   workers,
		jobQueue:  make(chan Job), // Unbuffered: a job is handed out only when a worker is free
		results:   make(chan Result, workers),
		collector: NewResultCollector(),
		collected: make(chan struct{}),
		ctx:       ctx,
	}
}

// Workers returns the number of concurrent slots
func (p *Pool) Workers() int {
	return p.workers
}

// Start starts the workers and the result collector
func (p *Pool) Start() {
	for i := 0; i < p.workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}

	go func() {
		defer close(p.collected)
		for result := range p.results {
			p.collector.Add(result)
		}
	}()
}

// worker is the worker goroutine that processes jobs
func (p *Pool) worker() {
	defer p.wg.Done()

	for job := range p.jobQueue {
		p.results <- job.Execute(p.ctx)
	}
}

// Submit blocks until a worker accepts the job. It reports false when the
// pool context is done and the job was not accepted.
func (p *Pool) Submit(job Job) bool {
	if p.ctx.Err() != nil {
		return false
	}
	select {
	case <-p.ctx.Done():
		return false
	case p.jobQueue <- job:
		return true
	}
}

// Wait closes the queue, waits for in-flight jobs and returns all results
func (p *Pool) Wait() []Result {
	close(p.jobQueue)
	p.wg.Wait()
	close(p.results)
	<-p.collected
	return p.collector.Results()
}

// Run starts the pool, submits every job and waits for completion. Jobs not
// accepted before ctx is done are skipped and produce no result.
func Run(ctx context.Context, workers int, jobs []Job) []Result {
	if len(jobs) == 0 {
		return []Result{}
	}

	pool := NewPool(ctx, workers)
	pool.Start()

	for _, job := range jobs {
		if !pool.Submit(job) {
			break
		}
	}

	return pool.Wait()
}

// ResultCollector provides a safer way to collect results as they arrive
type ResultCollector struct {
	results []Result
	mu      sync.Mutex
}

// NewResultCollector creates a new result collector
func NewResultCollector() *ResultCollector {
	return &ResultCollector{
		results: make([]Result, 0),
	}
}

// Add adds a result to the collector (thread-safe)
func (c *ResultCollector) Add(result Result) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.results = append(c.results, result)
}

// Results returns all collected results
func (c *ResultCollector) Results() []Result {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.results
}

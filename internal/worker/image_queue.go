package worker

import (
	"context"
	"log"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

const (
	// DefaultWorkerCount is the default number of worker goroutines
	DefaultWorkerCount = 2

	// DefaultQueueSize is the default task buffer capacity
	DefaultQueueSize = 64
)

// Size is a target image size in pixels.
type Size struct {
	Width  int
	Height int
}

// ImageTask asks for the file at Path to be resized in place.
type ImageTask struct {
	Path string
	Size Size
}

// Processor performs one image task.
type Processor interface {
	Process(ctx context.Context, task ImageTask) error
}

// ProcessorFunc adapts a function to Processor.
type ProcessorFunc func(ctx context.Context, task ImageTask) error

func (f ProcessorFunc) Process(ctx context.Context, task ImageTask) error {
	return f(ctx, task)
}

// QueueConfig holds configuration for the image queue.
type QueueConfig struct {
	WorkerCount int // Number of worker goroutines
	QueueSize   int // Buffered tasks before Enqueue starts dropping
}

// DefaultQueueConfig returns sensible defaults.
func DefaultQueueConfig() QueueConfig {
	return QueueConfig{
		WorkerCount: DefaultWorkerCount,
		QueueSize:   DefaultQueueSize,
	}
}

// Stats is a snapshot of queue counters.
type Stats struct {
	Enqueued  int64 `json:"enqueued"`
	Dropped   int64 `json:"dropped"`
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
}

// ImageQueue is a bounded task queue served by a fixed pool of goroutines.
// Producers never block: a full buffer drops the task. Workers live for the
// life of the process.
type ImageQueue struct {
	tasks       chan ImageTask
	processor   Processor
	workerCount int

	startOnce sync.Once

	enqueued  atomic.Int64
	dropped   atomic.Int64
	processed atomic.Int64
	failed    atomic.Int64
}

// NewImageQueue creates a queue. Call Start to launch the workers.
func NewImageQueue(processor Processor, cfg QueueConfig) *ImageQueue {
	if cfg.WorkerCount <= 0 {
		cfg.WorkerCount = DefaultWorkerCount
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}

	return &ImageQueue{
		tasks:       make(chan ImageTask, cfg.QueueSize),
		processor:   processor,
		workerCount: cfg.WorkerCount,
	}
}

// Start launches the worker goroutines. Calls after the first are no-ops.
func (q *ImageQueue) Start() {
	q.startOnce.Do(func() {
		log.Printf("[ImageQueue] Starting %d workers (capacity=%d)", q.workerCount, cap(q.tasks))
		for i := 0; i < q.workerCount; i++ {
			go q.runWorker(i + 1)
		}
	})
}

// Enqueue offers a task without blocking. It returns false when the buffer is
// full and the task was dropped.
func (q *ImageQueue) Enqueue(path string, size Size) bool {
	select {
	case q.tasks <- ImageTask{Path: path, Size: size}:
		q.enqueued.Add(1)
		return true
	default:
		q.dropped.Add(1)
		log.Printf("[ImageQueue] Enqueue DROPPED: queue full path=%s", path)
		return false
	}
}

// Depth returns the number of tasks waiting in the buffer.
func (q *ImageQueue) Depth() int {
	return len(q.tasks)
}

// Capacity returns the buffer size.
func (q *ImageQueue) Capacity() int {
	return cap(q.tasks)
}

// Stats returns a snapshot of the queue counters.
func (q *ImageQueue) Stats() Stats {
	return Stats{
		Enqueued:  q.enqueued.Load(),
		Dropped:   q.dropped.Load(),
		Processed: q.processed.Load(),
		Failed:    q.failed.Load(),
	}
}

// runWorker blocks on the buffer and handles tasks one at a time.
func (q *ImageQueue) runWorker(workerID int) {
	log.Printf("[ImageWorker-%d] Started", workerID)
	for task := range q.tasks {
		q.handle(workerID, task)
	}
}

// handle runs a single task. Errors and panics end that task only.
func (q *ImageQueue) handle(workerID int, task ImageTask) {
	defer func() {
		if r := recover(); r != nil {
			q.failed.Add(1)
			log.Printf("[ImageWorker-%d] Task PANIC: path=%s panic=%v\n%s", workerID, task.Path, r, debug.Stack())
		}
	}()

	if err := q.processor.Process(context.Background(), task); err != nil {
		q.failed.Add(1)
		log.Printf("[ImageWorker-%d] Task FAILED: path=%s err=%v", workerID, task.Path, err)
		return
	}

	q.processed.Add(1)
	log.Printf("[ImageWorker-%d] Task OK: path=%s size=%dx%d", workerID, task.Path, task.Size.Width, task.Size.Height)
}

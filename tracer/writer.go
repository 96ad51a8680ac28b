package tracer

import (
	"sync"
	"time"

	"github.com/dd-trace-core/tracer/internal/log"
)

const defaultFlushInterval = 2 * time.Second
const defaultMaxQueueSize = 1000

// uploader is the agent uploader: a bounded queue of
// finished trace batches drained on a periodic interval by a single
// background worker, using a cooperative, interruptible sleep so shutdown
// can cancel it without blocking producer threads.
type uploader struct {
	mu    sync.Mutex
	queue [][]spanData

	maxQueue      int
	flushInterval time.Duration

	transport *httpTransport
	sampler   *traceSampler
	metrics   *healthMetrics

	exit chan struct{}
	wg   sync.WaitGroup
}

func newUploader(transport *httpTransport, sampler *traceSampler, flushInterval time.Duration, maxQueue int, metrics *healthMetrics) *uploader {
	if flushInterval <= 0 {
		flushInterval = defaultFlushInterval
	}
	if maxQueue <= 0 {
		maxQueue = defaultMaxQueueSize
	}
	return &uploader{
		maxQueue:      maxQueue,
		flushInterval: flushInterval,
		transport:     transport,
		sampler:       sampler,
		metrics:       metrics,
		exit:          make(chan struct{}),
	}
}

// Push enqueues a finished trace's spans. When the queue is full the
// oldest batch is dropped to apply backpressure; producer threads are
// never blocked.
func (u *uploader) Push(spans []spanData) {
	if len(spans) == 0 {
		return
	}
	u.mu.Lock()
	if len(u.queue) >= u.maxQueue {
		u.queue = u.queue[1:]
		log.WarnOnce("uploader_queue_full", "trace upload queue full, dropping oldest batch")
	}
	u.queue = append(u.queue, spans)
	u.mu.Unlock()
}

// Start launches the background flush worker.
func (u *uploader) Start() {
	u.wg.Add(1)
	go u.run()
}

func (u *uploader) run() {
	defer u.wg.Done()
	ticker := time.NewTicker(u.flushInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			u.flush()
		case <-u.exit:
			u.flush()
			return
		}
	}
}

// flush drains the queue into one payload and sends it. Failures are
// logged and the batch discarded; spans are never retained for retry.
func (u *uploader) flush() {
	u.mu.Lock()
	batch := u.queue
	u.queue = nil
	u.mu.Unlock()

	if len(batch) == 0 {
		return
	}

	rates, err := u.transport.sendTraces(batch)
	if err != nil {
		log.Error("agent flush failed: %s", err)
		u.metrics.count("flush.errors", 1)
		return
	}
	u.metrics.count("flush.traces", int64(len(batch)))
	if len(rates) > 0 && u.sampler != nil {
		u.sampler.updateAgentRates(rates)
	}
}

// Stop cancels the scheduler and waits for one final flush to complete.
// Calling it twice would panic on the closed channel, so it's the cancel
// handle itself that must be safe to use, not repeated invocation.
func (u *uploader) Stop() {
	close(u.exit)
	u.wg.Wait()
}

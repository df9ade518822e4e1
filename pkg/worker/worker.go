package worker

import (
	"context"
	"errors"
	"sync"

	"github.com/nimasrn/support-inbox/pkg/logger"
)

var ErrStopped = errors.New("worker manager stopped")

type WorkerHandler = func(workerIndex int, job interface{})

type WorkerManager struct {
	bufferSize     int
	jobChannel     chan interface{}
	numberOfWorker int
	done           chan struct{}
	exitOnce       sync.Once
	do             WorkerHandler
	waiter         *sync.WaitGroup
}

// NewWorkerManager
// is a job manager based on go routines. Define the number of internal
// workers and publish jobs with Enqueue; they are distributed among the pool.
// Exit stops the workers but never closes the job channel, since a channel
// passed in from outside may still be used by other producers.
func NewWorkerManager(bufferSize, numberOfWorkers int, jobChannel chan interface{}) *WorkerManager {
	if jobChannel == nil {
		jobChannel = make(chan interface{}, bufferSize)
	}
	if numberOfWorkers < 1 {
		numberOfWorkers = 1
	}

	return &WorkerManager{
		bufferSize:     bufferSize,
		numberOfWorker: numberOfWorkers,
		jobChannel:     jobChannel,
		done:           make(chan struct{}),
		waiter:         &sync.WaitGroup{},
	}
}

func (w *WorkerManager) GetUnreadCount() int64 {
	if w.jobChannel == nil {
		return 0
	}
	return int64(len(w.jobChannel))
}

func (w *WorkerManager) Workers() int {
	return w.numberOfWorker
}

func (w *WorkerManager) SetWorker(worker WorkerHandler) {
	w.do = worker
}

// Enqueue
// Publishes a job onto the channel, waiting for buffer space until ctx is
// done or the manager exits.
func (w *WorkerManager) Enqueue(ctx context.Context, val interface{}) error {
	select {
	case <-w.done:
		return ErrStopped
	default:
	}

	select {
	case w.jobChannel <- val:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-w.done:
		return ErrStopped
	}
}

// Start
// runs w.numberOfWorker workers and blocks until Exit is called and every
// worker has returned.
func (w *WorkerManager) Start() error {
	if w.do == nil {
		return errors.New("worker handler is not set")
	}

	w.waiter.Add(w.numberOfWorker)
	for i := 0; i < w.numberOfWorker; i++ {
		go func(index int) {
			defer w.waiter.Done()
			for {
				select {
				case <-w.done:
					return
				default:
				}

				select {
				case job := <-w.jobChannel:
					w.do(index, job)
				case <-w.done:
					return
				}
			}
		}(i)
	}
	w.waiter.Wait()

	return ErrStopped
}

// Exit
// stops all workers after their current job. Jobs still buffered are left on
// the channel. Safe to call more than once.
func (w *WorkerManager) Exit() {
	w.exitOnce.Do(func() {
		logger.Info("worker manager is shutting down", "workers", w.numberOfWorker, "unread", w.GetUnreadCount())
		close(w.done)
	})
}

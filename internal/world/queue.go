package world

import (
	"sync"

	"github.com/blukai/coopnet/internal/logger"
	"github.com/phuslu/log"
)

type Task func()

// TaskQueue hands work from network goroutines to the main loop. Queue
// never waits for the consumer.
type TaskQueue struct {
	logger *log.Logger

	mu    sync.Mutex
	tasks []Task
}

func NewTaskQueue(l *log.Logger) *TaskQueue {
	return &TaskQueue{logger: logger.OrDiscard(l)}
}

func (q *TaskQueue) Queue(task Task) {
	if task == nil {
		return
	}
	q.mu.Lock()
	q.tasks = append(q.tasks, task)
	q.mu.Unlock()
}

func (q *TaskQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Drain runs queued tasks in FIFO order on the calling goroutine until the
// queue is empty, tasks queued by running tasks included. A panicking task
// is logged and does not stop the rest. It returns the number of tasks run.
func (q *TaskQueue) Drain() int {
	n := 0
	for {
		q.mu.Lock()
		tasks := q.tasks
		q.tasks = nil
		q.mu.Unlock()

		if len(tasks) == 0 {
			return n
		}
		for _, task := range tasks {
			q.run(task)
			n++
		}
	}
}

func (q *TaskQueue) run(task Task) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error().Msgf("main loop task panicked: %v", r)
		}
	}()
	task()
}

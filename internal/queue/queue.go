package queue

import (
	"sync"

	"chatdesk-backend/pkg/logger"

	"go.uber.org/zap"
)

type Job struct {
	Fn   func() error
	Errc chan error
}

// DispatchQueueManager runs fan-out work on a fixed worker pool so event
// intake can acknowledge and return before any webhook is contacted.
type DispatchQueueManager struct {
	JobQueue   chan Job
	MaxWorkers int
	log        *logger.Logger
	wg         sync.WaitGroup
}

func NewDispatchQueueManager(queueSize int, maxWorkers int) *DispatchQueueManager {
	manager := &DispatchQueueManager{
		JobQueue:   make(chan Job, queueSize),
		MaxWorkers: maxWorkers,
		log:        logger.Global(),
	}
	manager.startWorkers()
	return manager
}

func (dqm *DispatchQueueManager) startWorkers() {
	for i := 0; i < dqm.MaxWorkers; i++ {
		dqm.wg.Add(1)
		go func(workerID int) {
			defer dqm.wg.Done()
			dqm.log.Debug("dispatch worker started", zap.Int("worker_id", workerID))
			for job := range dqm.JobQueue {
				err := job.Fn()
				if err != nil {
					dqm.log.Warn("dispatch job failed", zap.Int("worker_id", workerID), zap.Error(err))
				}
				if job.Errc != nil {
					job.Errc <- err
				}
			}
			dqm.log.Debug("dispatch worker stopped", zap.Int("worker_id", workerID))
		}(i)
	}
}

func (dqm *DispatchQueueManager) EnqueueJob(job Job) {
	dqm.JobQueue <- job
}

func (dqm *DispatchQueueManager) Shutdown() {
	close(dqm.JobQueue)
	dqm.wg.Wait()
}

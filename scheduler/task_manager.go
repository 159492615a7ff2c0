package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"pricewatch/logger"
	"pricewatch/metrics"
	"pricewatch/models"
)

var (
	errStopped   = errors.New("task manager stopped")
	errQueueFull = errors.New("task queue is full")
)

const (
	defaultQueueSize = 100
	cleanupInterval  = 5 * time.Minute
	taskRetention    = time.Hour
)

// Refresher performs the refresh work. *services.Tracker implements it.
type Refresher interface {
	RefreshItem(ctx context.Context, id string) (models.Item, models.RefreshSummary, error)
	RefreshAll(ctx context.Context) (models.RefreshSummary, error)
}

// TaskManager runs refresh tasks one at a time in submission order, so refreshes
// from the API and from cron never fetch pages in parallel.
type TaskManager struct {
	tasks     map[string]*models.UpdateTask
	done      map[string]chan struct{}
	taskQueue chan *models.UpdateTask
	refresher Refresher
	mutex     sync.RWMutex
	current   string
	closed    bool

	ctx      context.Context
	cancel   context.CancelFunc
	stopped  chan struct{}
	stopOnce sync.Once

	metrics *metrics.Metrics
	log     *zap.Logger
}

// NewTaskManager creates a task manager and starts its worker
func NewTaskManager(refresher Refresher, queueSize int, log *zap.Logger, m *metrics.Metrics) *TaskManager {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	ctx, cancel := context.WithCancel(context.Background())
	tm := &TaskManager{
		tasks:     make(map[string]*models.UpdateTask),
		done:      make(map[string]chan struct{}),
		taskQueue: make(chan *models.UpdateTask, queueSize),
		refresher: refresher,
		ctx:       ctx,
		cancel:    cancel,
		stopped:   make(chan struct{}),
		metrics:   m,
		log:       logger.OrNop(log),
	}

	go tm.processTasks()
	tm.log.Info("task manager started", zap.Int("queue_size", queueSize))
	return tm
}

// Submit queues a refresh task. A full queue or a stopped manager fails the task
// immediately.
func (tm *TaskManager) Submit(kind models.TaskKind, itemID string) models.UpdateTask {
	task := models.NewUpdateTask(kind, itemID)

	// Enqueue under the lock so drain never misses a task.
	var rejected error
	tm.mutex.Lock()
	tm.tasks[task.ID] = task
	tm.done[task.ID] = make(chan struct{})
	if tm.closed || tm.ctx.Err() != nil {
		rejected = errStopped
	} else {
		select {
		case tm.taskQueue <- task:
		default:
			rejected = errQueueFull
		}
	}
	tm.mutex.Unlock()

	if rejected != nil {
		tm.finish(task, models.RefreshSummary{}, rejected)
		tm.log.Warn("task rejected", zap.String("task_id", task.ID), zap.Error(rejected))
		return tm.snapshot(task.ID)
	}

	tm.metrics.SetQueueDepth(len(tm.taskQueue))
	tm.log.Info("task submitted", zap.String("task_id", task.ID), zap.String("kind", string(kind)), zap.String("item_id", itemID))
	return tm.snapshot(task.ID)
}

// GetTask returns a copy of the task
func (tm *TaskManager) GetTask(taskID string) (models.UpdateTask, bool) {
	tm.mutex.RLock()
	defer tm.mutex.RUnlock()

	task, exists := tm.tasks[taskID]
	if !exists {
		return models.UpdateTask{}, false
	}
	return *task, true
}

// ActiveTask returns a queued or running task of the given kind, if any
func (tm *TaskManager) ActiveTask(kind models.TaskKind) (models.UpdateTask, bool) {
	tm.mutex.RLock()
	defer tm.mutex.RUnlock()

	for _, task := range tm.tasks {
		if task.Kind == kind && task.IsActive() {
			return *task, true
		}
	}
	return models.UpdateTask{}, false
}

// Wait blocks until the task finishes or ctx is done
func (tm *TaskManager) Wait(ctx context.Context, taskID string) (models.UpdateTask, error) {
	tm.mutex.RLock()
	done, exists := tm.done[taskID]
	tm.mutex.RUnlock()
	if !exists {
		return models.UpdateTask{}, fmt.Errorf("task %s not found", taskID)
	}

	select {
	case <-done:
		return tm.snapshot(taskID), nil
	case <-ctx.Done():
		return tm.snapshot(taskID), ctx.Err()
	}
}

// CleanupOldTasks removes completed tasks older than maxAge
func (tm *TaskManager) CleanupOldTasks(maxAge time.Duration) int {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()

	removed := 0
	cutoff := time.Now().Add(-maxAge)
	for taskID, task := range tm.tasks {
		if task.IsCompleted() && task.CreatedAt.Before(cutoff) {
			delete(tm.tasks, taskID)
			delete(tm.done, taskID)
			removed++
		}
	}
	if removed > 0 {
		tm.log.Debug("cleaned up old tasks", zap.Int("removed", removed))
	}
	return removed
}

// processTasks is the single worker loop
func (tm *TaskManager) processTasks() {
	defer close(tm.stopped)

	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case task := <-tm.taskQueue:
			tm.metrics.SetQueueDepth(len(tm.taskQueue))
			tm.run(task)

		case <-ticker.C:
			tm.CleanupOldTasks(taskRetention)

		case <-tm.ctx.Done():
			tm.drain()
			tm.log.Info("task manager stopped")
			return
		}
	}
}

func (tm *TaskManager) run(task *models.UpdateTask) {
	tm.mutex.Lock()
	task.Start()
	tm.current = task.ID
	tm.mutex.Unlock()

	log := tm.log.With(zap.String("task_id", task.ID), zap.String("kind", string(task.Kind)))
	log.Info("task started")

	summary, err := tm.execute(task)
	tm.finish(task, summary, err)

	snap := tm.snapshot(task.ID)
	if err != nil {
		log.Warn("task failed", zap.Error(err), zap.Duration("duration", snap.Duration()))
		return
	}
	log.Info("task completed", zap.Duration("duration", snap.Duration()), zap.Int("updated", summary.Updated))
}

func (tm *TaskManager) execute(task *models.UpdateTask) (summary models.RefreshSummary, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("refresh panicked: %v", r)
		}
	}()

	switch task.Kind {
	case models.TaskRefreshItem:
		_, summary, err = tm.refresher.RefreshItem(tm.ctx, task.ItemID)
	case models.TaskRefreshAll:
		summary, err = tm.refresher.RefreshAll(tm.ctx)
	default:
		err = fmt.Errorf("unknown task kind %q", task.Kind)
	}
	return summary, err
}

func (tm *TaskManager) finish(task *models.UpdateTask, summary models.RefreshSummary, err error) {
	tm.mutex.Lock()
	defer tm.mutex.Unlock()

	status := models.TaskStatusCompleted
	if err != nil {
		task.Fail(err.Error())
		status = models.TaskStatusFailed
	} else {
		task.Complete(summary)
	}
	if tm.current == task.ID {
		tm.current = ""
	}
	if ch, ok := tm.done[task.ID]; ok {
		close(ch)
	}
	tm.metrics.IncRefreshRun(string(task.Kind), string(status))
}

// drain closes the queue to new submissions and fails whatever is still queued
func (tm *TaskManager) drain() {
	tm.mutex.Lock()
	tm.closed = true
	tm.mutex.Unlock()

	for {
		select {
		case task := <-tm.taskQueue:
			tm.finish(task, models.RefreshSummary{}, errStopped)
		default:
			tm.metrics.SetQueueDepth(0)
			return
		}
	}
}

func (tm *TaskManager) snapshot(taskID string) models.UpdateTask {
	tm.mutex.RLock()
	defer tm.mutex.RUnlock()
	if task, ok := tm.tasks[taskID]; ok {
		return *task
	}
	return models.UpdateTask{}
}

// Stop cancels the running task and waits for the worker to exit
func (tm *TaskManager) Stop() {
	tm.stopOnce.Do(func() {
		tm.log.Info("task manager stopping")
		tm.cancel()
	})
	<-tm.stopped
}

// GetStats returns task manager statistics
func (tm *TaskManager) GetStats() map[string]interface{} {
	tm.mutex.RLock()
	defer tm.mutex.RUnlock()

	stats := map[string]interface{}{
		"total_tasks":    len(tm.tasks),
		"workers":        1,
		"queue_size":     len(tm.taskQueue),
		"queue_capacity": cap(tm.taskQueue),
		"current_task":   tm.current,
	}

	statusCounts := make(map[string]int)
	for _, task := range tm.tasks {
		statusCounts[string(task.Status)]++
	}
	stats["tasks_by_status"] = statusCounts

	return stats
}

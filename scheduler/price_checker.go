package scheduler

import (
	"fmt"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"pricewatch/logger"
	"pricewatch/models"
)

// Submitter queues refresh tasks. *TaskManager implements it.
type Submitter interface {
	Submit(kind models.TaskKind, itemID string) models.UpdateTask
	ActiveTask(kind models.TaskKind) (models.UpdateTask, bool)
}

// PriceChecker submits a refresh_all task on a cron schedule.
type PriceChecker struct {
	cron      *cron.Cron
	spec      string
	onStart   bool
	submitter Submitter
	log       *zap.Logger
}

// NewPriceChecker validates spec (standard five-field cron syntax) and registers the job.
func NewPriceChecker(spec string, runOnStart bool, submitter Submitter, log *zap.Logger) (*PriceChecker, error) {
	pc := &PriceChecker{
		cron:      cron.New(),
		spec:      spec,
		onStart:   runOnStart,
		submitter: submitter,
		log:       logger.OrNop(log),
	}
	if _, err := pc.cron.AddFunc(spec, pc.checkAllPrices); err != nil {
		return nil, fmt.Errorf("invalid update schedule %q: %w", spec, err)
	}
	return pc, nil
}

// Start starts the scheduled price checking
func (pc *PriceChecker) Start() {
	if pc.onStart {
		pc.checkAllPrices()
	}
	pc.cron.Start()
	pc.log.Info("price checker scheduled", zap.String("schedule", pc.spec))
}

// Stop stops the scheduler and waits for a running job to return
func (pc *PriceChecker) Stop() {
	if pc.cron != nil {
		<-pc.cron.Stop().Done()
	}
}

// checkAllPrices queues a refresh of every item unless one is already pending
func (pc *PriceChecker) checkAllPrices() {
	if task, ok := pc.submitter.ActiveTask(models.TaskRefreshAll); ok {
		pc.log.Info("refresh all already pending, skipping", zap.String("task_id", task.ID))
		return
	}
	task := pc.submitter.Submit(models.TaskRefreshAll, "")
	pc.log.Info("scheduled refresh submitted", zap.String("task_id", task.ID), zap.String("status", string(task.Status)))
}

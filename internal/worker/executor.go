package worker

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Executor applies settled statuses to the ledger
type Executor struct {
	manager *WorkerManager
	logger  *zap.Logger
}

// NewExecutor creates a new status executor
func NewExecutor(manager *WorkerManager) *Executor {
	return &Executor{
		manager: manager,
		logger:  manager.logger.Named("executor"),
	}
}

// Run starts the executor loop
func (e *Executor) Run(ctx context.Context) {
	e.logger.Info("Executor started")

	for {
		select {
		case <-ctx.Done():
			e.logger.Info("Executor stopping")
			return
		case update, ok := <-e.manager.monitor.settled:
			if !ok {
				e.logger.Info("Update channel closed, executor stopping")
				return
			}
			e.apply(ctx, update)

			select {
			case e.manager.monitor.done <- update.record.ID:
			case <-ctx.Done():
				return
			}
		}
	}
}

// apply writes one status update, retrying store failures with exponential backoff
func (e *Executor) apply(ctx context.Context, update statusUpdate) {
	for attempt := 0; attempt < MaxRetries; attempt++ {
		if attempt > 0 {
			delay := BaseRetryDelay * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
		}

		updated, err := e.manager.records.UpdateRecordStatus(ctx, update.record, update.status)
		if err != nil {
			e.logger.Warn("Failed to update record status",
				zap.String("tx_id", update.record.ID),
				zap.Int("attempt", attempt+1),
				zap.Error(err))
			continue
		}

		if updated {
			e.logger.Info("Record status updated",
				zap.String("tx_id", update.record.ID),
				zap.String("session_id", update.record.SessionID),
				zap.String("status", string(update.status)))
		} else {
			e.logger.Debug("Record already settled", zap.String("tx_id", update.record.ID))
		}
		return
	}

	e.logger.Error("Giving up on record status update",
		zap.String("tx_id", update.record.ID),
		zap.Int("attempts", MaxRetries))
}

package worker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"usdcx/bridge/internal/config"
	"usdcx/bridge/internal/models"
)

// Constants for worker configuration
const (
	DefaultPollInterval = 30 * time.Second
	MonitorTimeout      = 30 * time.Second
	MaxRetries          = 3
	BaseRetryDelay      = 2 * time.Second
)

// RecordSource lists pending ledger records and settles them
type RecordSource interface {
	PendingRecords(ctx context.Context, chain models.Chain) ([]models.TxRecord, error)
	UpdateRecordStatus(ctx context.Context, rec models.TxRecord, status models.TxStatus) (bool, error)
}

// StatusChecker looks up the status of a destination-chain transaction
type StatusChecker interface {
	TxStatus(ctx context.Context, txID string) (models.TxStatus, error)
}

// WorkerManager runs the background workers that settle pending transaction records
type WorkerManager struct {
	records RecordSource
	checker StatusChecker
	cfg     config.MonitorConfig
	logger  *zap.Logger

	// Worker components
	monitor  *Monitor
	executor *Executor

	// Control
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorkerManager creates a new worker manager
func NewWorkerManager(
	records RecordSource,
	checker StatusChecker,
	cfg config.MonitorConfig,
	logger *zap.Logger,
) *WorkerManager {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = MonitorTimeout
	}

	ctx, cancel := context.WithCancel(context.Background())

	wm := &WorkerManager{
		records: records,
		checker: checker,
		cfg:     cfg,
		logger:  logger.Named("worker"),
		ctx:     ctx,
		cancel:  cancel,
	}

	wm.monitor = NewMonitor(wm)
	wm.executor = NewExecutor(wm)

	return wm
}

// Start starts all worker goroutines
func (wm *WorkerManager) Start() {
	wm.logger.Info("Starting worker manager",
		zap.Duration("poll_interval", wm.cfg.PollInterval))

	// Start monitor goroutine
	wm.wg.Add(1)
	go func() {
		defer wm.wg.Done()
		wm.monitor.Run(wm.ctx)
	}()

	// Start executor goroutine
	wm.wg.Add(1)
	go func() {
		defer wm.wg.Done()
		wm.executor.Run(wm.ctx)
	}()

	wm.logger.Info("Worker manager started")
}

// Shutdown gracefully stops all workers
func (wm *WorkerManager) Shutdown(timeout time.Duration) error {
	wm.logger.Info("Shutting down worker manager")

	// Signal workers to stop
	wm.cancel()

	// Wait for workers to finish with timeout
	done := make(chan struct{})
	go func() {
		wm.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		wm.logger.Info("Workers stopped gracefully")
	case <-time.After(timeout):
		wm.logger.Warn("Worker shutdown timed out")
	}

	wm.logger.Info("Worker manager shutdown complete")
	return nil
}

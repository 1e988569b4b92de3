package worker

import (
	"context"
	"time"

	"go.uber.org/zap"

	"usdcx/bridge/internal/models"
)

// statusUpdate is a record whose transaction reached a final status
type statusUpdate struct {
	record models.TxRecord
	status models.TxStatus
}

// Monitor polls the destination chain for pending records that have settled
type Monitor struct {
	manager *WorkerManager
	logger  *zap.Logger

	// Channel to send settled records to the executor
	settled chan statusUpdate

	// ids already handed to the executor, so a slow update is not queued twice
	inFlight map[string]bool
	done     chan string
}

// NewMonitor creates a new record monitor
func NewMonitor(manager *WorkerManager) *Monitor {
	return &Monitor{
		manager:  manager,
		logger:   manager.logger.Named("monitor"),
		settled:  make(chan statusUpdate, 100),
		inFlight: make(map[string]bool),
		done:     make(chan string, 100),
	}
}

// Run starts the monitor polling loop
func (m *Monitor) Run(ctx context.Context) {
	m.logger.Info("Monitor started",
		zap.Duration("poll_interval", m.manager.cfg.PollInterval))

	ticker := time.NewTicker(m.manager.cfg.PollInterval)
	defer ticker.Stop()

	// Initial poll
	m.poll(ctx)

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Monitor stopping")
			close(m.settled)
			return
		case id := <-m.done:
			delete(m.inFlight, id)
		case <-ticker.C:
			m.poll(ctx)
		}
	}
}

// poll executes one polling cycle
func (m *Monitor) poll(ctx context.Context) {
	pollCtx, cancel := context.WithTimeout(ctx, m.manager.cfg.Timeout)
	defer cancel()

	m.drainDone()

	records, err := m.manager.records.PendingRecords(pollCtx, models.ChainStacks)
	if err != nil {
		// records from live sessions are still returned alongside a store error
		m.logger.Error("Failed to get pending records", zap.Error(err))
	}
	if len(records) == 0 {
		return
	}

	m.logger.Debug("Checking pending records", zap.Int("count", len(records)))

	for _, rec := range records {
		select {
		case <-pollCtx.Done():
			return
		default:
		}

		if m.inFlight[rec.ID] {
			continue
		}

		status, err := m.manager.checker.TxStatus(pollCtx, rec.ID)
		if err != nil {
			m.logger.Warn("Failed to get transaction status",
				zap.String("tx_id", rec.ID),
				zap.Error(err))
			continue
		}
		if status == models.TxPending {
			continue
		}

		m.logger.Info("Transaction settled",
			zap.String("tx_id", rec.ID),
			zap.String("session_id", rec.SessionID),
			zap.String("label", rec.Label),
			zap.String("status", string(status)))

		// Send to executor
		select {
		case m.settled <- statusUpdate{record: rec, status: status}:
			m.inFlight[rec.ID] = true
		case <-ctx.Done():
			return
		default:
			m.logger.Warn("Executor channel full, skipping record",
				zap.String("tx_id", rec.ID))
		}
	}
}

func (m *Monitor) drainDone() {
	for {
		select {
		case id := <-m.done:
			delete(m.inFlight, id)
		default:
			return
		}
	}
}

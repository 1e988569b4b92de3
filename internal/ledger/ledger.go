package ledger

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"usdcx/bridge/internal/models"
)

const storeTimeout = 5 * time.Second

// Store persists ledger records
type Store interface {
	InsertTxRecord(ctx context.Context, rec *models.TxRecord) (bool, error)
	UpdateTxRecordStatus(ctx context.Context, id string, status models.TxStatus) (bool, error)
	GetTxRecordsBySession(ctx context.Context, sessionID string) ([]models.TxRecord, error)
}

// Ledger is the append-only, newest-first transaction history of one session.
// Record ids are unique; inserting an existing id is a no-op.
type Ledger struct {
	mu        sync.RWMutex
	sessionID string
	records   []models.TxRecord // oldest first
	index     map[string]int    // id -> position in records
	store     Store
	logger    *zap.Logger
}

// New creates an empty ledger. store may be nil.
func New(sessionID string, store Store, logger *zap.Logger) *Ledger {
	return &Ledger{
		sessionID: sessionID,
		index:     make(map[string]int),
		store:     store,
		logger:    logger.Named("ledger"),
	}
}

// Load seeds the ledger from the store
func (l *Ledger) Load(ctx context.Context) error {
	if l.store == nil {
		return nil
	}

	records, err := l.store.GetTxRecordsBySession(ctx, l.sessionID)
	if err != nil {
		return fmt.Errorf("failed to load ledger for session %s: %w", l.sessionID, err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	// records arrive newest first; insert oldest first
	for i := len(records) - 1; i >= 0; i-- {
		l.insertLocked(records[i])
	}
	return nil
}

// Record inserts rec at the head of the ledger. It returns false when a record with the same
// id already exists, leaving the ledger unchanged.
func (l *Ledger) Record(rec models.TxRecord) bool {
	rec.SessionID = l.sessionID
	if rec.Timestamp.IsZero() {
		rec.Timestamp = time.Now().UTC()
	}

	l.mu.Lock()
	inserted := l.insertLocked(rec)
	l.mu.Unlock()

	if !inserted {
		l.logger.Debug("Duplicate record ignored", zap.String("tx_id", rec.ID))
		return false
	}

	if l.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if _, err := l.store.InsertTxRecord(ctx, &rec); err != nil {
			l.logger.Error("Failed to persist record", zap.String("tx_id", rec.ID), zap.Error(err))
		}
	}
	return true
}

func (l *Ledger) insertLocked(rec models.TxRecord) bool {
	if _, exists := l.index[rec.ID]; exists {
		return false
	}
	l.index[rec.ID] = len(l.records)
	l.records = append(l.records, rec)
	return true
}

// All returns a copy of the records, newest first
func (l *Ledger) All() []models.TxRecord {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]models.TxRecord, len(l.records))
	for i, rec := range l.records {
		out[len(l.records)-1-i] = rec
	}
	return out
}

// Get returns the record with the given id
func (l *Ledger) Get(id string) (models.TxRecord, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	i, ok := l.index[id]
	if !ok {
		return models.TxRecord{}, false
	}
	return l.records[i], true
}

// Len returns the number of records
func (l *Ledger) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.records)
}

// Pending returns the pending records, newest first
func (l *Ledger) Pending() []models.TxRecord {
	var out []models.TxRecord
	for _, rec := range l.All() {
		if rec.Status == models.TxPending {
			out = append(out, rec)
		}
	}
	return out
}

// UpdateStatus moves a pending record to confirmed or failed. Any other transition is
// refused and reported as false.
func (l *Ledger) UpdateStatus(id string, status models.TxStatus) bool {
	if status != models.TxConfirmed && status != models.TxFailed {
		return false
	}

	l.mu.Lock()
	i, ok := l.index[id]
	if !ok || l.records[i].Status != models.TxPending {
		l.mu.Unlock()
		return false
	}
	l.records[i].Status = status
	l.mu.Unlock()

	if l.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), storeTimeout)
		defer cancel()
		if _, err := l.store.UpdateTxRecordStatus(ctx, id, status); err != nil {
			l.logger.Error("Failed to persist status", zap.String("tx_id", id), zap.Error(err))
		}
	}

	l.logger.Info("Record status updated",
		zap.String("tx_id", id),
		zap.String("status", string(status)))
	return true
}

package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"usdcx/bridge/internal/config"
	"usdcx/bridge/internal/ledger"
	"usdcx/bridge/internal/models"
	"usdcx/bridge/internal/orchestrator"
)

// RecordStore persists ledger records across sessions
type RecordStore interface {
	ledger.Store
	GetPendingTxRecords(ctx context.Context, chain models.Chain) ([]models.TxRecord, error)
}

// SessionService owns the live bridging sessions
type SessionService struct {
	mu       sync.RWMutex
	sessions map[string]*orchestrator.Orchestrator

	source  orchestrator.SourceChain
	dest    orchestrator.DestinationChain
	store   RecordStore // nil without a database
	cfg     config.OrchestratorConfig
	metrics *orchestrator.Metrics
	logger  *zap.Logger
}

// NewSessionService creates a new session service. store may be nil.
func NewSessionService(
	source orchestrator.SourceChain,
	dest orchestrator.DestinationChain,
	store RecordStore,
	cfg config.OrchestratorConfig,
	metrics *orchestrator.Metrics,
	logger *zap.Logger,
) *SessionService {
	return &SessionService{
		sessions: make(map[string]*orchestrator.Orchestrator),
		source:   source,
		dest:     dest,
		store:    store,
		cfg:      cfg,
		metrics:  metrics,
		logger:   logger.Named("sessions"),
	}
}

// CreateSession starts a new session with an empty ledger
func (s *SessionService) CreateSession(ctx context.Context) (*orchestrator.Orchestrator, error) {
	id := uuid.New().String()
	orch := s.newOrchestrator(id)

	s.mu.Lock()
	s.sessions[id] = orch
	s.mu.Unlock()

	s.logger.Info("Session created", zap.String("session_id", id))
	return orch, nil
}

// GetSession returns a live session. A session unknown in memory is restored from the
// store with its ledger history and a fresh state. Returns nil when it does not exist.
func (s *SessionService) GetSession(ctx context.Context, id string) (*orchestrator.Orchestrator, error) {
	s.mu.RLock()
	orch, ok := s.sessions[id]
	s.mu.RUnlock()
	if ok {
		return orch, nil
	}

	if s.store == nil {
		return nil, nil
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, nil
	}

	restored := s.newOrchestrator(id)
	if err := restored.Ledger().Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to restore session: %w", err)
	}
	if restored.Ledger().Len() == 0 {
		return nil, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// another request may have restored it first
	if orch, ok := s.sessions[id]; ok {
		return orch, nil
	}
	s.sessions[id] = restored

	s.logger.Info("Session restored",
		zap.String("session_id", id),
		zap.Int("records", restored.Ledger().Len()))
	return restored, nil
}

// ListSessions returns snapshots of all live sessions, most recently updated first
func (s *SessionService) ListSessions() []orchestrator.Snapshot {
	s.mu.RLock()
	snaps := make([]orchestrator.Snapshot, 0, len(s.sessions))
	for _, orch := range s.sessions {
		snaps = append(snaps, orch.Snapshot())
	}
	s.mu.RUnlock()

	sort.Slice(snaps, func(i, j int) bool {
		return snaps[i].UpdatedAt.After(snaps[j].UpdatedAt)
	})
	return snaps
}

// PendingRecords returns the pending records on chain across live sessions and, when a
// store is configured, sessions of earlier runs
func (s *SessionService) PendingRecords(ctx context.Context, chain models.Chain) ([]models.TxRecord, error) {
	seen := make(map[string]bool)
	var out []models.TxRecord

	s.mu.RLock()
	for _, orch := range s.sessions {
		for _, rec := range orch.Ledger().Pending() {
			if rec.Chain == chain {
				seen[rec.ID] = true
				out = append(out, rec)
			}
		}
	}
	s.mu.RUnlock()

	if s.store == nil {
		return out, nil
	}

	stored, err := s.store.GetPendingTxRecords(ctx, chain)
	if err != nil {
		return out, fmt.Errorf("failed to get pending records: %w", err)
	}
	for _, rec := range stored {
		if !seen[rec.ID] {
			out = append(out, rec)
		}
	}
	return out, nil
}

// UpdateRecordStatus settles a pending record. It reports whether the record changed.
func (s *SessionService) UpdateRecordStatus(ctx context.Context, rec models.TxRecord, status models.TxStatus) (bool, error) {
	s.mu.RLock()
	orch, live := s.sessions[rec.SessionID]
	s.mu.RUnlock()

	if live {
		return orch.Ledger().UpdateStatus(rec.ID, status), nil
	}
	if s.store == nil {
		return false, nil
	}

	updated, err := s.store.UpdateTxRecordStatus(ctx, rec.ID, status)
	if err != nil {
		return false, fmt.Errorf("failed to update record status: %w", err)
	}
	return updated, nil
}

func (s *SessionService) newOrchestrator(id string) *orchestrator.Orchestrator {
	l := ledger.New(id, s.store, s.logger)
	return orchestrator.New(id, s.source, s.dest, l, s.cfg, s.metrics, s.logger)
}

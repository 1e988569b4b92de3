package database

import (
	"context"

	"usdcx/bridge/internal/models"
)

// ==================== Transaction Record Queries ====================

// InsertTxRecord stores a record. It reports false when the id already exists.
func (db *DB) InsertTxRecord(ctx context.Context, rec *models.TxRecord) (bool, error) {
	query := `
		INSERT INTO tx_records (id, session_id, chain, label, subtitle, status, explorer_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`
	result, err := db.ExecContext(
		ctx, query,
		rec.ID,
		rec.SessionID,
		rec.Chain,
		rec.Label,
		rec.Subtitle,
		rec.Status,
		rec.ExplorerURL,
		rec.Timestamp,
	)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	return rows == 1, err
}

// GetTxRecordsBySession retrieves the records of a session, newest first
func (db *DB) GetTxRecordsBySession(ctx context.Context, sessionID string) ([]models.TxRecord, error) {
	var records []models.TxRecord
	query := `
		SELECT id, session_id, chain, label, subtitle, status, explorer_url, created_at
		FROM tx_records
		WHERE session_id = $1
		ORDER BY created_at DESC
	`
	err := db.SelectContext(ctx, &records, query, sessionID)
	return records, err
}

// GetPendingTxRecords retrieves the pending records on a chain, oldest first
func (db *DB) GetPendingTxRecords(ctx context.Context, chain models.Chain) ([]models.TxRecord, error) {
	var records []models.TxRecord
	query := `
		SELECT id, session_id, chain, label, subtitle, status, explorer_url, created_at
		FROM tx_records
		WHERE chain = $1 AND status = 'pending'
		ORDER BY created_at ASC
	`
	err := db.SelectContext(ctx, &records, query, chain)
	return records, err
}

// UpdateTxRecordStatus moves a pending record to status. It reports false when the record is
// missing or no longer pending.
func (db *DB) UpdateTxRecordStatus(ctx context.Context, id string, status models.TxStatus) (bool, error) {
	query := `
		UPDATE tx_records
		SET status = $1, updated_at = NOW()
		WHERE id = $2 AND status = 'pending'
	`
	result, err := db.ExecContext(ctx, query, status, id)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	return rows == 1, err
}

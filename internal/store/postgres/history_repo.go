package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/0Papitchu/GBPBot-sub003/internal/domain/model"
	"github.com/shopspring/decimal"
)

type HistoryRepo struct {
	db *DB
}

func NewHistoryRepo(db *DB) *HistoryRepo {
	return &HistoryRepo{db: db}
}

// ArchiveHistory inserts entries in one transaction. Ids already archived
// are left untouched.
func (r *HistoryRepo) ArchiveHistory(ctx context.Context, network string, entries []model.HistoryEntry) (int, error) {
	if len(entries) == 0 {
		return 0, nil
	}
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin archive: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tx_history (
			id, network, chain, status, priority, hash, confirmation_count, last_error,
			block_number, block_time, fee_paid, chain_data, created_at, last_updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		ON CONFLICT (id) DO NOTHING
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare archive: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for _, e := range entries {
		row := toHistoryRow(e)
		res, err := stmt.ExecContext(ctx,
			e.ID, network, e.Chain, e.Status, e.Priority,
			nullString(e.Hash), e.ConfirmationCount, nullString(e.LastError),
			row.blockNumber, row.blockTime, row.feePaid, row.chainData,
			e.CreatedAt, e.LastUpdatedAt,
		)
		if err != nil {
			return 0, fmt.Errorf("archive %s: %w", e.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("archive %s rows affected: %w", e.ID, err)
		}
		inserted += int(n)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit archive: %w", err)
	}
	return inserted, nil
}

// ListHistory returns archived entries, most recently updated first. An
// empty chain matches every chain.
func (r *HistoryRepo) ListHistory(ctx context.Context, network string, chain model.Chain, limit int) ([]model.HistoryEntry, error) {
	if limit <= 0 {
		limit = 100
	}
	ctx, cancel := withTimeout(ctx, DefaultQueryTimeout)
	defer cancel()

	rows, err := r.db.QueryContext(ctx, `
		SELECT id, chain, status, priority, hash, confirmation_count, last_error,
		       block_number, block_time, fee_paid, chain_data, created_at, last_updated_at
		FROM tx_history
		WHERE network = $1 AND ($2 = '' OR chain = $2)
		ORDER BY last_updated_at DESC, id
		LIMIT $3
	`, network, chain, limit)
	if err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}
	defer rows.Close()

	var out []model.HistoryEntry
	for rows.Next() {
		var (
			e         model.HistoryEntry
			hash      sql.NullString
			lastError sql.NullString
			row       historyRow
		)
		if err := rows.Scan(
			&e.ID, &e.Chain, &e.Status, &e.Priority, &hash, &e.ConfirmationCount, &lastError,
			&row.blockNumber, &row.blockTime, &row.feePaid, &row.chainData, &e.CreatedAt, &e.LastUpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan history: %w", err)
		}
		e.Hash = hash.String
		e.LastError = lastError.String
		e.Result = row.result(e.Hash, e.ConfirmationCount)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read history rows: %w", err)
	}
	return out, nil
}

// historyRow holds the nullable result columns.
type historyRow struct {
	blockNumber sql.NullInt64
	blockTime   sql.NullTime
	feePaid     decimal.NullDecimal
	chainData   []byte
}

func toHistoryRow(e model.HistoryEntry) historyRow {
	var row historyRow
	if e.Result == nil {
		return row
	}
	row.blockNumber = sql.NullInt64{Int64: e.Result.BlockNumber, Valid: true}
	if e.Result.BlockTime != nil {
		row.blockTime = sql.NullTime{Time: *e.Result.BlockTime, Valid: true}
	}
	row.feePaid = decimal.NullDecimal{Decimal: e.Result.FeePaid, Valid: true}
	if len(e.Result.ChainData) > 0 {
		row.chainData = e.Result.ChainData
	}
	return row
}

func (row historyRow) result(hash string, confirmations int) *model.Result {
	if !row.blockNumber.Valid {
		return nil
	}
	res := &model.Result{
		Hash:          hash,
		BlockNumber:   row.blockNumber.Int64,
		Confirmations: confirmations,
	}
	if row.blockTime.Valid {
		t := row.blockTime.Time.UTC()
		res.BlockTime = &t
	}
	if row.feePaid.Valid {
		res.FeePaid = row.feePaid.Decimal
	}
	if len(row.chainData) > 0 {
		res.ChainData = json.RawMessage(row.chainData)
	}
	return res
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

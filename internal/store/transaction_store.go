package store

import (
	"context"
	"fmt"

	"github.com/doug-martin/goqu/v9"

	"github.com/vbonduro/partsledger/internal/domain"
)

// TransactionStore is the append-only stock log. Rows are never updated; they
// are only deleted together with their item.
type TransactionStore struct {
	db DBTX
}

func NewTransactionStore(db DBTX) *TransactionStore {
	return &TransactionStore{db: db}
}

func (s *TransactionStore) Insert(ctx context.Context, t *domain.Transaction) (int64, error) {
	if t.Qty < 0 {
		return 0, fmt.Errorf("log %s of %d: %w", t.Type, t.Qty, ErrNegativeQuantity)
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions (item_id, user_id, type, qty, project_ref, notes, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, t.ItemID, t.UserID, string(t.Type), t.Qty, t.ProjectRef, t.Notes, t.Timestamp.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to insert transaction: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}
	return id, nil
}

type TransactionFilter struct {
	Type   domain.TransactionType
	ItemID int64
	Limit  int
}

// List returns log entries newest first, joined with item and user names.
func (s *TransactionStore) List(ctx context.Context, f TransactionFilter) ([]*domain.TransactionEntry, error) {
	q := dialect.From(goqu.T("transactions").As("t")).
		Select(
			goqu.I("t.id"), goqu.I("t.item_id"), goqu.I("t.user_id"), goqu.I("t.type"), goqu.I("t.qty"),
			goqu.I("t.project_ref"), goqu.I("t.notes"), goqu.I("t.timestamp"),
			goqu.I("i.name"),
			goqu.COALESCE(goqu.I("u.username"), ""),
			goqu.COALESCE(goqu.I("u.full_name"), ""),
		).
		Join(goqu.T("items").As("i"), goqu.On(goqu.Ex{"t.item_id": goqu.I("i.id")})).
		LeftJoin(goqu.T("users").As("u"), goqu.On(goqu.Ex{"t.user_id": goqu.I("u.id")})).
		Order(goqu.I("t.timestamp").Desc(), goqu.I("t.id").Desc())

	if f.Type != "" {
		q = q.Where(goqu.Ex{"t.type": string(f.Type)})
	}
	if f.ItemID != 0 {
		q = q.Where(goqu.Ex{"t.item_id": f.ItemID})
	}
	if f.Limit > 0 {
		q = q.Limit(uint(f.Limit))
	}

	query, args, err := q.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build transaction query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer closeRows(rows)

	var entries []*domain.TransactionEntry
	for rows.Next() {
		e := &domain.TransactionEntry{}
		var txType string
		if err := rows.Scan(&e.ID, &e.ItemID, &e.UserID, &txType, &e.Qty, &e.ProjectRef, &e.Notes, &e.Timestamp,
			&e.ItemName, &e.Username, &e.FullName); err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		e.Type = domain.TransactionType(txType)
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating transactions: %w", err)
	}

	return entries, nil
}

// LedgerMismatch is an item whose stored total disagrees with its log.
type LedgerMismatch struct {
	ItemID    int64  `json:"item_id"`
	Name      string `json:"name"`
	Footprint string `json:"footprint"`
	TotalQty  int64  `json:"total_qty"`
	LedgerQty int64  `json:"ledger_qty"`
}

// Mismatches compares every item's total against the sum of its log.
func (s *TransactionStore) Mismatches(ctx context.Context) ([]*LedgerMismatch, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT i.id, i.name, i.footprint, i.total_qty,
		       COALESCE(SUM(CASE t.type WHEN 'IN' THEN t.qty WHEN 'OUT' THEN -t.qty ELSE 0 END), 0) AS ledger_qty
		FROM items i
		LEFT JOIN transactions t ON t.item_id = i.id
		GROUP BY i.id
		HAVING ledger_qty != i.total_qty
		ORDER BY i.id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to reconcile ledger: %w", err)
	}
	defer closeRows(rows)

	var out []*LedgerMismatch
	for rows.Next() {
		m := &LedgerMismatch{}
		if err := rows.Scan(&m.ItemID, &m.Name, &m.Footprint, &m.TotalQty, &m.LedgerQty); err != nil {
			return nil, fmt.Errorf("failed to scan ledger row: %w", err)
		}
		out = append(out, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger rows: %w", err)
	}

	return out, nil
}

func (s *TransactionStore) DeleteByItem(ctx context.Context, itemID int64) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM transactions WHERE item_id = ?`, itemID)
	if err != nil {
		return fmt.Errorf("failed to delete transactions: %w", err)
	}
	return nil
}

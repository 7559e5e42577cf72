package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/vbonduro/partsledger/internal/domain"
)

type BOMStore struct {
	db DBTX
}

func NewBOMStore(db DBTX) *BOMStore {
	return &BOMStore{db: db}
}

func (s *BOMStore) Create(ctx context.Context, name, description string, createdBy *int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO boms (name, description, created_by) VALUES (?, ?, ?)
	`, name, description, createdBy)
	if err != nil {
		return 0, fmt.Errorf("failed to create bom: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}
	return id, nil
}

func (s *BOMStore) Update(ctx context.Context, id int64, name, description string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE boms SET name = ?, description = ? WHERE id = ?
	`, name, description, id)
	if err != nil {
		return fmt.Errorf("failed to update bom: %w", err)
	}

	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("bom not found")
	}
	return nil
}

const bomSelect = `
	SELECT b.id, b.name, b.description, b.created_by, b.created_at,
	       (SELECT COUNT(*) FROM bom_items bi WHERE bi.bom_id = b.id)
	FROM boms b`

func scanBOM(row rowScanner) (*domain.BOM, error) {
	bom := &domain.BOM{}
	err := row.Scan(&bom.ID, &bom.Name, &bom.Description, &bom.CreatedBy, &bom.CreatedAt, &bom.LineCount)
	return bom, err
}

func (s *BOMStore) GetByID(ctx context.Context, id int64) (*domain.BOM, error) {
	bom, err := scanBOM(s.db.QueryRowContext(ctx, bomSelect+` WHERE b.id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get bom: %w", err)
	}
	return bom, nil
}

// FindByName matches names exactly; "Widget A" and "widget a" are different
// BOMs.
func (s *BOMStore) FindByName(ctx context.Context, name string) (*domain.BOM, error) {
	bom, err := scanBOM(s.db.QueryRowContext(ctx, bomSelect+` WHERE b.name = ?`, name))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find bom: %w", err)
	}
	return bom, nil
}

func (s *BOMStore) List(ctx context.Context) ([]*domain.BOM, error) {
	rows, err := s.db.QueryContext(ctx, bomSelect+` ORDER BY b.name ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list boms: %w", err)
	}
	defer closeRows(rows)

	var boms []*domain.BOM
	for rows.Next() {
		bom, err := scanBOM(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan bom: %w", err)
		}
		boms = append(boms, bom)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating boms: %w", err)
	}

	return boms, nil
}

// ReplaceLines deletes every line of the BOM and inserts lines in order.
// Callers run it inside a transaction so readers never see a partial recipe.
func (s *BOMStore) ReplaceLines(ctx context.Context, bomID int64, lines []domain.BOMLine) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM bom_items WHERE bom_id = ?`, bomID); err != nil {
		return fmt.Errorf("failed to clear bom lines: %w", err)
	}

	for i, line := range lines {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO bom_items (bom_id, item_id, qty, position) VALUES (?, ?, ?, ?)
		`, bomID, line.ItemID, line.Qty, i)
		if err != nil {
			return fmt.Errorf("failed to insert bom line %d: %w", i, err)
		}
	}
	return nil
}

// Lines returns the recipe in order with each item's live stock. A line whose
// item no longer exists is returned with Missing set.
func (s *BOMStore) Lines(ctx context.Context, bomID int64) ([]*domain.BOMLineDetail, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT bi.item_id, bi.qty, bi.position,
		       i.id IS NULL,
		       COALESCE(i.name, ''), COALESCE(i.part_number, ''), COALESCE(i.category, ''),
		       COALESCE(i.footprint, ''), COALESCE(i.total_qty, 0)
		FROM bom_items bi
		LEFT JOIN items i ON i.id = bi.item_id
		WHERE bi.bom_id = ?
		ORDER BY bi.position ASC, bi.id ASC
	`, bomID)
	if err != nil {
		return nil, fmt.Errorf("failed to list bom lines: %w", err)
	}
	defer closeRows(rows)

	var lines []*domain.BOMLineDetail
	for rows.Next() {
		l := &domain.BOMLineDetail{}
		if err := rows.Scan(&l.ItemID, &l.Qty, &l.Position, &l.Missing,
			&l.Name, &l.PartNumber, &l.Category, &l.Footprint, &l.CurrentStock); err != nil {
			return nil, fmt.Errorf("failed to scan bom line: %w", err)
		}
		lines = append(lines, l)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating bom lines: %w", err)
	}

	return lines, nil
}

// Delete removes the BOM and its lines. Transactions logged by past
// executions are not touched.
func (s *BOMStore) Delete(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM bom_items WHERE bom_id = ?`, id); err != nil {
		return fmt.Errorf("failed to delete bom lines: %w", err)
	}

	result, err := s.db.ExecContext(ctx, `DELETE FROM boms WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete bom: %w", err)
	}

	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("bom not found")
	}
	return nil
}

// DeleteLinesByItem removes every recipe line that references the item.
func (s *BOMStore) DeleteLinesByItem(ctx context.Context, itemID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM bom_items WHERE item_id = ?`, itemID); err != nil {
		return fmt.Errorf("failed to delete bom lines: %w", err)
	}
	return nil
}

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vbonduro/partsledger/internal/domain"
)

const itemColumns = `id, name, part_number, category, footprint, item_type, total_qty,
	location, notes, image_path, datasheet_url, created_at`

type ItemStore struct {
	db DBTX
}

func NewItemStore(db DBTX) *ItemStore {
	return &ItemStore{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanItem(row rowScanner) (*domain.Item, error) {
	item := &domain.Item{}
	err := row.Scan(&item.ID, &item.Name, &item.PartNumber, &item.Category, &item.Footprint, &item.ItemType,
		&item.TotalQty, &item.Location, &item.Notes, &item.ImagePath, &item.DatasheetURL, &item.CreatedAt)
	return item, err
}

// Create inserts a new item. The footprint is stored exactly as given, so
// callers pass it through domain.NormalizeFootprint first.
func (s *ItemStore) Create(ctx context.Context, item *domain.Item) (*domain.Item, error) {
	if item.TotalQty < 0 {
		return nil, fmt.Errorf("create item %q: %w", item.Name, ErrNegativeQuantity)
	}
	itemType := item.ItemType
	if itemType == "" {
		itemType = domain.DefaultItemType
	}

	result, err := s.db.ExecContext(ctx, `
		INSERT INTO items (name, part_number, category, footprint, item_type, total_qty, location, notes, image_path, datasheet_url)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, item.Name, item.PartNumber, item.Category, item.Footprint, itemType, item.TotalQty,
		item.Location, item.Notes, item.ImagePath, item.DatasheetURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create item: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("failed to get last insert id: %w", err)
	}

	return s.GetByID(ctx, id)
}

func (s *ItemStore) GetByID(ctx context.Context, id int64) (*domain.Item, error) {
	item, err := scanItem(s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get item: %w", err)
	}
	return item, nil
}

// FindByIdentity returns the item with the given name and normalized
// footprint, or nil when there is none.
func (s *ItemStore) FindByIdentity(ctx context.Context, name, footprint string) (*domain.Item, error) {
	item, err := scanItem(s.db.QueryRowContext(ctx, `
		SELECT `+itemColumns+` FROM items WHERE name = ? AND COALESCE(footprint, '') = ?
	`, name, footprint))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find item: %w", err)
	}
	return item, nil
}

func (s *ItemStore) List(ctx context.Context) ([]*domain.Item, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+itemColumns+` FROM items ORDER BY name ASC, footprint ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list items: %w", err)
	}
	defer closeRows(rows)

	var items []*domain.Item
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan item: %w", err)
		}
		items = append(items, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating items: %w", err)
	}

	return items, nil
}

// AddQuantity increases an item's total by delta and returns the new total.
func (s *ItemStore) AddQuantity(ctx context.Context, id, delta int64) (int64, error) {
	if delta < 0 {
		return 0, fmt.Errorf("add %d to item %d: %w", delta, id, ErrNegativeQuantity)
	}

	var total int64
	err := s.db.QueryRowContext(ctx, `
		UPDATE items SET total_qty = total_qty + ? WHERE id = ? RETURNING total_qty
	`, delta, id).Scan(&total)
	if err == sql.ErrNoRows {
		return 0, fmt.Errorf("item not found")
	}
	if err != nil {
		return 0, fmt.Errorf("failed to add quantity: %w", err)
	}
	return total, nil
}

// Decrement subtracts qty from an item only if enough stock remains, in a
// single conditional statement. It returns ErrNegativeQuantity when the item
// is missing or holds fewer than qty units; nothing is written in that case.
func (s *ItemStore) Decrement(ctx context.Context, id, qty int64) (int64, error) {
	if qty <= 0 {
		return 0, fmt.Errorf("decrement item %d by %d: quantity must be positive", id, qty)
	}

	var total int64
	err := s.db.QueryRowContext(ctx, `
		UPDATE items SET total_qty = total_qty - ?
		WHERE id = ? AND total_qty >= ?
		RETURNING total_qty
	`, qty, id, qty).Scan(&total)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("decrement item %d by %d: %w", id, qty, ErrNegativeQuantity)
	}
	if err != nil {
		return 0, fmt.Errorf("failed to decrement quantity: %w", err)
	}
	return total, nil
}

// RestockFields are the optional attributes a stock-in may refresh on an
// existing item. Empty values leave the stored value untouched.
type RestockFields struct {
	Location     string
	PartNumber   string
	DatasheetURL string
	ItemType     string
	ImagePath    string
}

func (s *ItemStore) ApplyRestock(ctx context.Context, id int64, f RestockFields) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE items SET
			location      = COALESCE(NULLIF(?, ''), location),
			part_number   = COALESCE(NULLIF(?, ''), part_number),
			datasheet_url = COALESCE(NULLIF(?, ''), datasheet_url),
			item_type     = COALESCE(NULLIF(?, ''), item_type),
			image_path    = COALESCE(NULLIF(?, ''), image_path)
		WHERE id = ?
	`, f.Location, f.PartNumber, f.DatasheetURL, f.ItemType, f.ImagePath, id)
	if err != nil {
		return fmt.Errorf("failed to update item: %w", err)
	}

	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("item not found")
	}
	return nil
}

func (s *ItemStore) SetLocation(ctx context.Context, id int64, location string) error {
	result, err := s.db.ExecContext(ctx, `UPDATE items SET location = ? WHERE id = ?`, location, id)
	if err != nil {
		return fmt.Errorf("failed to move item: %w", err)
	}

	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("item not found")
	}
	return nil
}

// Delete removes the item row only. Rows referencing it must be removed
// first; foreign keys reject the delete otherwise.
func (s *ItemStore) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM items WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete item: %w", err)
	}

	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("item not found")
	}
	return nil
}

type ItemStats struct {
	ItemCount  int64 `json:"item_count"`
	TotalUnits int64 `json:"total_units"`
	LowStock   int64 `json:"low_stock"`
}

// Stats summarizes the inventory; an item is low on stock when it holds fewer
// than lowStockThreshold units.
func (s *ItemStore) Stats(ctx context.Context, lowStockThreshold int) (*ItemStats, error) {
	stats := &ItemStats{}
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(total_qty), 0),
		       COALESCE(SUM(CASE WHEN total_qty < ? THEN 1 ELSE 0 END), 0)
		FROM items
	`, lowStockThreshold).Scan(&stats.ItemCount, &stats.TotalUnits, &stats.LowStock)
	if err != nil {
		return nil, fmt.Errorf("failed to compute item stats: %w", err)
	}
	return stats, nil
}

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"

	"github.com/vbonduro/partsledger/internal/domain"
)

type ServiceOrderStore struct {
	db DBTX
}

func NewServiceOrderStore(db DBTX) *ServiceOrderStore {
	return &ServiceOrderStore{db: db}
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

func (s *ServiceOrderStore) Create(ctx context.Context, o *domain.ServiceOrder) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO service_orders (
			item_name, serial_number, customer_name, customer_contact,
			complaint, diagnosis, actions_taken, status, priority,
			date_received, due_date, completed_date, technician_id, cost_estimate, notes, created_by
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, o.ItemName, o.SerialNumber, o.CustomerName, o.CustomerContact,
		o.Complaint, o.Diagnosis, o.ActionsTaken, string(o.Status), string(o.Priority),
		o.DateReceived.UTC(), utcPtr(o.DueDate), utcPtr(o.CompletedDate), o.TechnicianID, o.CostEstimate, o.Notes, o.CreatedBy)
	if err != nil {
		return 0, fmt.Errorf("failed to create service order: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}
	return id, nil
}

func (s *ServiceOrderStore) selectOrders() *goqu.SelectDataset {
	return dialect.From(goqu.T("service_orders").As("s")).
		Select(
			goqu.I("s.id"), goqu.I("s.item_name"), goqu.I("s.serial_number"), goqu.I("s.customer_name"),
			goqu.I("s.customer_contact"), goqu.I("s.complaint"), goqu.I("s.diagnosis"), goqu.I("s.actions_taken"),
			goqu.I("s.status"), goqu.I("s.priority"), goqu.I("s.date_received"), goqu.I("s.due_date"),
			goqu.I("s.completed_date"), goqu.I("s.technician_id"), goqu.I("s.cost_estimate"), goqu.I("s.notes"),
			goqu.I("s.created_by"),
			goqu.COALESCE(goqu.I("u.username"), ""),
			goqu.COALESCE(goqu.I("c.username"), ""),
		).
		LeftJoin(goqu.T("users").As("u"), goqu.On(goqu.Ex{"s.technician_id": goqu.I("u.id")})).
		LeftJoin(goqu.T("users").As("c"), goqu.On(goqu.Ex{"s.created_by": goqu.I("c.id")}))
}

func scanServiceOrder(row rowScanner) (*domain.ServiceOrder, error) {
	o := &domain.ServiceOrder{}
	var status, priority string
	err := row.Scan(&o.ID, &o.ItemName, &o.SerialNumber, &o.CustomerName,
		&o.CustomerContact, &o.Complaint, &o.Diagnosis, &o.ActionsTaken,
		&status, &priority, &o.DateReceived, &o.DueDate,
		&o.CompletedDate, &o.TechnicianID, &o.CostEstimate, &o.Notes,
		&o.CreatedBy, &o.TechnicianName, &o.CreatedByName)
	o.Status = domain.ServiceStatus(status)
	o.Priority = domain.Priority(priority)
	return o, err
}

func (s *ServiceOrderStore) GetByID(ctx context.Context, id int64) (*domain.ServiceOrder, error) {
	query, args, err := s.selectOrders().Where(goqu.Ex{"s.id": id}).Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build service order query: %w", err)
	}

	o, err := scanServiceOrder(s.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get service order: %w", err)
	}
	return o, nil
}

type ServiceOrderFilter struct {
	Status   domain.ServiceStatus
	Priority domain.Priority
}

// List returns orders newest first. Overdue filtering is left to callers
// because it depends on the current time.
func (s *ServiceOrderStore) List(ctx context.Context, f ServiceOrderFilter) ([]*domain.ServiceOrder, error) {
	q := s.selectOrders().Order(goqu.I("s.date_received").Desc(), goqu.I("s.id").Desc())
	if f.Status != "" {
		q = q.Where(goqu.Ex{"s.status": string(f.Status)})
	}
	if f.Priority != "" {
		q = q.Where(goqu.Ex{"s.priority": string(f.Priority)})
	}

	query, args, err := q.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("failed to build service order query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list service orders: %w", err)
	}
	defer closeRows(rows)

	var orders []*domain.ServiceOrder
	for rows.Next() {
		o, err := scanServiceOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan service order: %w", err)
		}
		orders = append(orders, o)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating service orders: %w", err)
	}

	return orders, nil
}

// Update overwrites every editable field of the order.
func (s *ServiceOrderStore) Update(ctx context.Context, o *domain.ServiceOrder) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE service_orders SET
			item_name = ?, serial_number = ?, customer_name = ?, customer_contact = ?,
			complaint = ?, diagnosis = ?, actions_taken = ?, status = ?, priority = ?,
			due_date = ?, completed_date = ?, technician_id = ?, cost_estimate = ?, notes = ?
		WHERE id = ?
	`, o.ItemName, o.SerialNumber, o.CustomerName, o.CustomerContact,
		o.Complaint, o.Diagnosis, o.ActionsTaken, string(o.Status), string(o.Priority),
		utcPtr(o.DueDate), utcPtr(o.CompletedDate), o.TechnicianID, o.CostEstimate, o.Notes, o.ID)
	if err != nil {
		return fmt.Errorf("failed to update service order: %w", err)
	}

	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("service order not found")
	}
	return nil
}

func (s *ServiceOrderStore) Delete(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM service_orders WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete service order: %w", err)
	}

	n, err := rowsAffected(result)
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("service order not found")
	}
	return nil
}

func (s *ServiceOrderStore) AddPart(ctx context.Context, orderID, itemID, qty int64, at time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		INSERT INTO service_parts_used (service_order_id, item_id, qty, timestamp) VALUES (?, ?, ?, ?)
	`, orderID, itemID, qty, at.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to record part used: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}
	return id, nil
}

func (s *ServiceOrderStore) ListParts(ctx context.Context, orderID int64) ([]*domain.PartsUsed, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT sp.id, sp.service_order_id, sp.item_id, sp.qty, sp.timestamp,
		       i.name, i.part_number, i.category
		FROM service_parts_used sp
		JOIN items i ON sp.item_id = i.id
		WHERE sp.service_order_id = ?
		ORDER BY sp.timestamp DESC, sp.id DESC
	`, orderID)
	if err != nil {
		return nil, fmt.Errorf("failed to list parts used: %w", err)
	}
	defer closeRows(rows)

	var parts []*domain.PartsUsed
	for rows.Next() {
		p := &domain.PartsUsed{}
		if err := rows.Scan(&p.ID, &p.ServiceOrderID, &p.ItemID, &p.Qty, &p.Timestamp,
			&p.ItemName, &p.PartNumber, &p.Category); err != nil {
			return nil, fmt.Errorf("failed to scan part used: %w", err)
		}
		parts = append(parts, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating parts used: %w", err)
	}

	return parts, nil
}

func (s *ServiceOrderStore) DeletePartsByOrder(ctx context.Context, orderID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM service_parts_used WHERE service_order_id = ?`, orderID); err != nil {
		return fmt.Errorf("failed to delete parts used: %w", err)
	}
	return nil
}

func (s *ServiceOrderStore) DeletePartsByItem(ctx context.Context, itemID int64) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM service_parts_used WHERE item_id = ?`, itemID); err != nil {
		return fmt.Errorf("failed to delete parts used: %w", err)
	}
	return nil
}

// CountPartsByItem reports how many parts-used rows reference the item.
func (s *ServiceOrderStore) CountPartsByItem(ctx context.Context, itemID int64) (int64, error) {
	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM service_parts_used WHERE item_id = ?`, itemID).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count parts used: %w", err)
	}
	return n, nil
}

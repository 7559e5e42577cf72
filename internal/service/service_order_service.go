package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vbonduro/partsledger/internal/db"
	"github.com/vbonduro/partsledger/internal/domain"
	"github.com/vbonduro/partsledger/internal/store"
)

const (
	serviceProjectRefFormat = "Service Order #%d"
	servicePartsNotes       = "Used for service/repair"
)

type ServiceOrderService struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

func NewServiceOrderService(database *sql.DB, logger *slog.Logger) *ServiceOrderService {
	return &ServiceOrderService{db: database, logger: logger, now: time.Now}
}

// ServiceOrderInput carries the caller-editable fields of an order. Empty
// Status and Priority mean "default" on create and "unchanged" on update.
type ServiceOrderInput struct {
	ItemName        string
	SerialNumber    string
	CustomerName    string
	CustomerContact string
	Complaint       string
	Diagnosis       string
	ActionsTaken    string
	Status          domain.ServiceStatus
	Priority        domain.Priority
	DueDate         *time.Time
	CompletedDate   *time.Time
	TechnicianID    *int64
	CostEstimate    decimal.NullDecimal
	Notes           string
}

func (in *ServiceOrderInput) validate() error {
	in.ItemName = strings.TrimSpace(in.ItemName)
	in.CustomerName = strings.TrimSpace(in.CustomerName)
	in.Complaint = strings.TrimSpace(in.Complaint)

	if in.ItemName == "" {
		return domain.NewValidationError("item_name", "item name is required")
	}
	if in.CustomerName == "" {
		return domain.NewValidationError("customer_name", "customer name is required")
	}
	if in.Complaint == "" {
		return domain.NewValidationError("complaint", "complaint is required")
	}
	if in.Status != "" && !in.Status.Valid() {
		return domain.NewValidationError("status", fmt.Sprintf("unknown status %q", in.Status))
	}
	if in.Priority != "" && !in.Priority.Valid() {
		return domain.NewValidationError("priority", fmt.Sprintf("unknown priority %q", in.Priority))
	}
	if in.CostEstimate.Valid && in.CostEstimate.Decimal.IsNegative() {
		return domain.NewValidationError("cost_estimate", "cost estimate cannot be negative")
	}
	return nil
}

func (in *ServiceOrderInput) apply(o *domain.ServiceOrder) {
	o.ItemName = in.ItemName
	o.SerialNumber = in.SerialNumber
	o.CustomerName = in.CustomerName
	o.CustomerContact = in.CustomerContact
	o.Complaint = in.Complaint
	o.Diagnosis = in.Diagnosis
	o.ActionsTaken = in.ActionsTaken
	if in.Status != "" {
		o.Status = in.Status
	}
	if in.Priority != "" {
		o.Priority = in.Priority
	}
	o.DueDate = in.DueDate
	o.CompletedDate = in.CompletedDate
	o.TechnicianID = in.TechnicianID
	o.CostEstimate = in.CostEstimate
	o.Notes = in.Notes
}

func checkTechnician(ctx context.Context, tx store.DBTX, id *int64) error {
	if id == nil {
		return nil
	}
	u, err := store.NewUserStore(tx).GetByID(ctx, *id)
	if err != nil {
		return err
	}
	if u == nil {
		return &domain.NotFoundError{Entity: "user", ID: *id}
	}
	return nil
}

func (s *ServiceOrderService) Create(ctx context.Context, principal domain.Principal, in ServiceOrderInput) (*domain.ServiceOrder, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	now := s.now()
	o := &domain.ServiceOrder{
		Status:       domain.StatusPending,
		Priority:     domain.PriorityMedium,
		DateReceived: now,
		CreatedBy:    principalID(principal),
	}
	in.apply(o)
	if o.Status == domain.StatusCompleted && o.CompletedDate == nil {
		o.CompletedDate = &now
	}

	var id int64
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		if err := checkTechnician(ctx, tx, o.TechnicianID); err != nil {
			return err
		}
		var err error
		id, err = store.NewServiceOrderStore(tx).Create(ctx, o)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("service order created", "service_order_id", id, "customer", o.CustomerName, "user", principal.Username)
	return s.Get(ctx, id)
}

// Get returns the order with its parts used and derived overdue flag.
func (s *ServiceOrderService) Get(ctx context.Context, id int64) (*domain.ServiceOrder, error) {
	orders := store.NewServiceOrderStore(s.db)
	o, err := orders.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, &domain.NotFoundError{Entity: "service order", ID: id}
	}

	parts, err := orders.ListParts(ctx, id)
	if err != nil {
		return nil, err
	}
	o.PartsUsed = parts
	o.Overdue = o.IsOverdue(s.now())
	return o, nil
}

type ServiceOrderFilter struct {
	Status      domain.ServiceStatus
	Priority    domain.Priority
	OverdueOnly bool
}

func (s *ServiceOrderService) List(ctx context.Context, f ServiceOrderFilter) ([]*domain.ServiceOrder, error) {
	if f.Status != "" && !f.Status.Valid() {
		return nil, domain.NewValidationError("status", fmt.Sprintf("unknown status %q", f.Status))
	}
	if f.Priority != "" && !f.Priority.Valid() {
		return nil, domain.NewValidationError("priority", fmt.Sprintf("unknown priority %q", f.Priority))
	}

	orders, err := store.NewServiceOrderStore(s.db).List(ctx, store.ServiceOrderFilter{Status: f.Status, Priority: f.Priority})
	if err != nil {
		return nil, err
	}

	now := s.now()
	out := orders[:0]
	for _, o := range orders {
		o.Overdue = o.IsOverdue(now)
		if f.OverdueOnly && !o.Overdue {
			continue
		}
		out = append(out, o)
	}
	return out, nil
}

// Update replaces every editable field. Any status may follow any other;
// moving to completed stamps the completion date unless one is given.
func (s *ServiceOrderService) Update(ctx context.Context, principal domain.Principal, id int64, in ServiceOrderInput) (*domain.ServiceOrder, error) {
	if err := in.validate(); err != nil {
		return nil, err
	}

	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		orders := store.NewServiceOrderStore(tx)
		o, err := orders.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if o == nil {
			return &domain.NotFoundError{Entity: "service order", ID: id}
		}
		if err := checkTechnician(ctx, tx, in.TechnicianID); err != nil {
			return err
		}

		wasCompleted := o.Status == domain.StatusCompleted
		in.apply(o)
		if o.Status == domain.StatusCompleted && !wasCompleted && o.CompletedDate == nil {
			now := s.now()
			o.CompletedDate = &now
		}
		return orders.Update(ctx, o)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("service order updated", "service_order_id", id, "user", principal.Username)
	return s.Get(ctx, id)
}

// Delete removes the order and its parts-used rows. Consumed stock is not
// returned to inventory.
func (s *ServiceOrderService) Delete(ctx context.Context, principal domain.Principal, id int64) error {
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		orders := store.NewServiceOrderStore(tx)
		o, err := orders.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if o == nil {
			return &domain.NotFoundError{Entity: "service order", ID: id}
		}
		if err := orders.DeletePartsByOrder(ctx, id); err != nil {
			return err
		}
		return orders.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	s.logger.Info("service order deleted", "service_order_id", id, "user", principal.Username)
	return nil
}

type AddPartResult struct {
	PartID   int64 `json:"part_id"`
	ItemID   int64 `json:"item_id"`
	Qty      int64 `json:"qty"`
	NewStock int64 `json:"new_stock"`
}

// AddPart consumes stock for a repair: it deducts qty from the item, records
// the part against the order and logs an OUT, all in one transaction.
func (s *ServiceOrderService) AddPart(ctx context.Context, principal domain.Principal, orderID, itemID, qty int64) (*AddPartResult, error) {
	if itemID <= 0 {
		return nil, domain.NewValidationError("item_id", "item id is required")
	}
	if qty <= 0 {
		return nil, domain.NewValidationError("qty", "quantity must be greater than zero")
	}

	result := &AddPartResult{ItemID: itemID, Qty: qty}
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		orders := store.NewServiceOrderStore(tx)
		o, err := orders.GetByID(ctx, orderID)
		if err != nil {
			return err
		}
		if o == nil {
			return &domain.NotFoundError{Entity: "service order", ID: orderID}
		}

		total, err := deduct(ctx, tx, itemID, qty)
		if err != nil {
			return err
		}

		now := s.now()
		partID, err := orders.AddPart(ctx, orderID, itemID, qty, now)
		if err != nil {
			return err
		}
		if _, err := store.NewTransactionStore(tx).Insert(ctx, &domain.Transaction{
			ItemID:     itemID,
			UserID:     principalID(principal),
			Type:       domain.TransactionOut,
			Qty:        qty,
			ProjectRef: fmt.Sprintf(serviceProjectRefFormat, orderID),
			Notes:      servicePartsNotes,
			Timestamp:  now,
		}); err != nil {
			return err
		}
		result.PartID = partID
		result.NewStock = total
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("service parts added", "service_order_id", orderID, "item_id", itemID, "qty", qty, "new_stock", result.NewStock, "user", principal.Username)
	return result, nil
}

func (s *ServiceOrderService) ListParts(ctx context.Context, orderID int64) ([]*domain.PartsUsed, error) {
	orders := store.NewServiceOrderStore(s.db)
	o, err := orders.GetByID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if o == nil {
		return nil, &domain.NotFoundError{Entity: "service order", ID: orderID}
	}
	return orders.ListParts(ctx, orderID)
}

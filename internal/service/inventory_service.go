package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/vbonduro/partsledger/internal/auth"
	"github.com/vbonduro/partsledger/internal/db"
	"github.com/vbonduro/partsledger/internal/domain"
	"github.com/vbonduro/partsledger/internal/imagestore"
	"github.com/vbonduro/partsledger/internal/store"
)

// InventoryService owns every write that changes an item's quantity or
// location. Each operation runs in one database transaction and logs exactly
// one transaction row per affected item.
type InventoryService struct {
	db                *sql.DB
	images            imagestore.ImageStore
	lowStockThreshold int
	logger            *slog.Logger
	now               func() time.Time
}

func NewInventoryService(database *sql.DB, images imagestore.ImageStore, lowStockThreshold int, logger *slog.Logger) *InventoryService {
	return &InventoryService{
		db:                database,
		images:            images,
		lowStockThreshold: lowStockThreshold,
		logger:            logger,
		now:               time.Now,
	}
}

// Image is an uploaded picture accompanying a stock-in.
type Image struct {
	MimeType string
	Data     io.Reader
}

type StockInRequest struct {
	// ItemID restocks a known item. When zero the item is resolved by
	// Name and Footprint.
	ItemID       int64
	Name         string
	Footprint    *string
	PartNumber   string
	Category     string
	ItemType     string
	Location     string
	DatasheetURL string
	Quantity     int64
	ProjectRef   string
	Notes        string
	// IsNew asserts that no item with this identity exists yet.
	IsNew bool
	Image *Image
}

type StockResult struct {
	ItemID        int64 `json:"item_id"`
	NewQty        int64 `json:"new_qty"`
	TransactionID int64 `json:"transaction_id"`
	Created       bool  `json:"created"`
}

func (s *InventoryService) StockIn(ctx context.Context, principal domain.Principal, req StockInRequest) (*StockResult, error) {
	req.Name = strings.TrimSpace(req.Name)
	if req.ItemID == 0 && req.Name == "" {
		return nil, domain.NewValidationError("name", "name is required")
	}
	if req.Quantity <= 0 {
		return nil, domain.NewValidationError("qty", "quantity must be greater than zero")
	}
	footprint := domain.NormalizeFootprint(req.Footprint)

	var imageKey string
	if req.Image != nil {
		key, err := s.images.Save(ctx, req.Image.MimeType, req.Image.Data)
		if errors.Is(err, imagestore.ErrUnsupportedType) {
			return nil, domain.NewValidationError("image", err.Error())
		}
		if err != nil {
			return nil, fmt.Errorf("failed to save image: %w", err)
		}
		imageKey = key
		s.logger.Debug("image saved", "key", imageKey)
	}

	result := &StockResult{}
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		items := store.NewItemStore(tx)

		var existing *domain.Item
		var err error
		if req.ItemID != 0 {
			existing, err = items.GetByID(ctx, req.ItemID)
			if err != nil {
				return err
			}
			if existing == nil {
				return &domain.NotFoundError{Entity: "item", ID: req.ItemID}
			}
		} else {
			existing, err = items.FindByIdentity(ctx, req.Name, footprint)
			if err != nil {
				return err
			}
		}

		if existing != nil {
			if req.IsNew {
				return &domain.ConflictError{
					Entity:  "item",
					Message: fmt.Sprintf("item %q with footprint %q already exists; restock it instead", existing.Name, existing.Footprint),
				}
			}
			if req.Quantity > math.MaxInt64-existing.TotalQty {
				return domain.NewValidationError("qty", "quantity would overflow the stock counter")
			}
			total, err := items.AddQuantity(ctx, existing.ID, req.Quantity)
			if err != nil {
				return err
			}
			if err := items.ApplyRestock(ctx, existing.ID, store.RestockFields{
				Location:     req.Location,
				PartNumber:   req.PartNumber,
				DatasheetURL: req.DatasheetURL,
				ItemType:     req.ItemType,
				ImagePath:    imageKey,
			}); err != nil {
				return err
			}
			result.ItemID = existing.ID
			result.NewQty = total
		} else {
			created, err := items.Create(ctx, &domain.Item{
				Name:         req.Name,
				PartNumber:   req.PartNumber,
				Category:     req.Category,
				Footprint:    footprint,
				ItemType:     req.ItemType,
				TotalQty:     req.Quantity,
				Location:     req.Location,
				Notes:        req.Notes,
				ImagePath:    imageKey,
				DatasheetURL: req.DatasheetURL,
			})
			if store.IsUniqueViolation(err) {
				return &domain.ConflictError{Entity: "item", Message: fmt.Sprintf("item %q with footprint %q already exists", req.Name, footprint)}
			}
			if err != nil {
				return err
			}
			result.ItemID = created.ID
			result.NewQty = created.TotalQty
			result.Created = true
		}

		id, err := store.NewTransactionStore(tx).Insert(ctx, &domain.Transaction{
			ItemID:     result.ItemID,
			UserID:     principalID(principal),
			Type:       domain.TransactionIn,
			Qty:        req.Quantity,
			ProjectRef: req.ProjectRef,
			Notes:      req.Notes,
			Timestamp:  s.now(),
		})
		if err != nil {
			return err
		}
		result.TransactionID = id
		return nil
	})
	if err != nil {
		if imageKey != "" {
			if derr := s.images.Delete(context.WithoutCancel(ctx), imageKey); derr != nil {
				s.logger.Warn("failed to remove image after failed stock-in", "key", imageKey, "error", derr)
			}
		}
		return nil, err
	}

	s.logger.Info("stock in", "item_id", result.ItemID, "qty", req.Quantity, "new_qty", result.NewQty, "created", result.Created, "user", principal.Username)
	return result, nil
}

type StockOutRequest struct {
	ItemID     int64
	Quantity   int64
	ProjectRef string
	Notes      string
}

func (s *InventoryService) StockOut(ctx context.Context, principal domain.Principal, req StockOutRequest) (*StockResult, error) {
	if req.ItemID <= 0 {
		return nil, domain.NewValidationError("item_id", "item id is required")
	}
	if req.Quantity <= 0 {
		return nil, domain.NewValidationError("qty", "quantity must be greater than zero")
	}

	result := &StockResult{ItemID: req.ItemID}
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		total, err := deduct(ctx, tx, req.ItemID, req.Quantity)
		if err != nil {
			return err
		}
		id, err := store.NewTransactionStore(tx).Insert(ctx, &domain.Transaction{
			ItemID:     req.ItemID,
			UserID:     principalID(principal),
			Type:       domain.TransactionOut,
			Qty:        req.Quantity,
			ProjectRef: req.ProjectRef,
			Notes:      req.Notes,
			Timestamp:  s.now(),
		})
		if err != nil {
			return err
		}
		result.NewQty = total
		result.TransactionID = id
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("stock out", "item_id", req.ItemID, "qty", req.Quantity, "new_qty", result.NewQty, "user", principal.Username)
	return result, nil
}

type StockMoveRequest struct {
	ItemID      int64
	NewLocation string
	ProjectRef  string
	Notes       string
}

type MoveResult struct {
	ItemID        int64  `json:"item_id"`
	OldLocation   string `json:"old_location"`
	NewLocation   string `json:"new_location"`
	TransactionID int64  `json:"transaction_id"`
}

func (s *InventoryService) StockMove(ctx context.Context, principal domain.Principal, req StockMoveRequest) (*MoveResult, error) {
	req.NewLocation = strings.TrimSpace(req.NewLocation)
	if req.ItemID <= 0 {
		return nil, domain.NewValidationError("item_id", "item id is required")
	}
	if req.NewLocation == "" {
		return nil, domain.NewValidationError("new_location", "new location is required")
	}

	result := &MoveResult{ItemID: req.ItemID, NewLocation: req.NewLocation}
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		items := store.NewItemStore(tx)
		item, err := items.GetByID(ctx, req.ItemID)
		if err != nil {
			return err
		}
		if item == nil {
			return &domain.NotFoundError{Entity: "item", ID: req.ItemID}
		}
		if item.Location == req.NewLocation {
			return domain.NewValidationError("new_location", "item is already at "+req.NewLocation)
		}

		if err := items.SetLocation(ctx, item.ID, req.NewLocation); err != nil {
			return err
		}
		id, err := store.NewTransactionStore(tx).Insert(ctx, &domain.Transaction{
			ItemID:     item.ID,
			UserID:     principalID(principal),
			Type:       domain.TransactionMove,
			Qty:        0,
			ProjectRef: req.ProjectRef,
			Notes:      moveNotes(item.Location, req.NewLocation, req.Notes),
			Timestamp:  s.now(),
		})
		if err != nil {
			return err
		}
		result.OldLocation = item.Location
		result.TransactionID = id
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("stock move", "item_id", req.ItemID, "from", result.OldLocation, "to", result.NewLocation, "user", principal.Username)
	return result, nil
}

func moveNotes(oldLocation, newLocation, notes string) string {
	if oldLocation == "" {
		oldLocation = "Unknown"
	}
	return strings.TrimSpace(fmt.Sprintf("Moved from %s to %s. %s", oldLocation, newLocation, notes))
}

// DeleteItem removes an item with its log, parts-used rows and BOM lines after
// re-checking the caller's password. Nothing is written when the password is
// wrong.
func (s *InventoryService) DeleteItem(ctx context.Context, principal domain.Principal, itemID int64, password string) error {
	if password == "" {
		return domain.NewValidationError("password", "password is required")
	}

	var imageKey string
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		user, err := store.NewUserStore(tx).GetByID(ctx, principal.ID)
		if err != nil {
			return err
		}
		if user == nil || !user.IsActive {
			return &domain.AuthorizationError{Reason: "invalid password"}
		}
		ok, err := auth.CheckPassword(user.PasswordHash, password)
		if err != nil {
			return err
		}
		if !ok {
			return &domain.AuthorizationError{Reason: "invalid password"}
		}

		items := store.NewItemStore(tx)
		item, err := items.GetByID(ctx, itemID)
		if err != nil {
			return err
		}
		if item == nil {
			return &domain.NotFoundError{Entity: "item", ID: itemID}
		}

		if err := store.NewServiceOrderStore(tx).DeletePartsByItem(ctx, itemID); err != nil {
			return err
		}
		if err := store.NewTransactionStore(tx).DeleteByItem(ctx, itemID); err != nil {
			return err
		}
		if err := store.NewBOMStore(tx).DeleteLinesByItem(ctx, itemID); err != nil {
			return err
		}
		if err := items.Delete(ctx, itemID); err != nil {
			return err
		}
		imageKey = item.ImagePath
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Info("item deleted", "item_id", itemID, "user", principal.Username)

	if imageKey != "" {
		if err := s.images.Delete(ctx, imageKey); err != nil && !errors.Is(err, imagestore.ErrNotFound) {
			s.logger.Warn("failed to remove item image", "item_id", itemID, "key", imageKey, "error", err)
		}
	}
	return nil
}

func (s *InventoryService) ListItems(ctx context.Context) ([]*domain.Item, error) {
	return store.NewItemStore(s.db).List(ctx)
}

func (s *InventoryService) GetItem(ctx context.Context, id int64) (*domain.Item, error) {
	item, err := store.NewItemStore(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, &domain.NotFoundError{Entity: "item", ID: id}
	}
	return item, nil
}

func (s *InventoryService) Stats(ctx context.Context) (*store.ItemStats, error) {
	return store.NewItemStore(s.db).Stats(ctx, s.lowStockThreshold)
}

func (s *InventoryService) History(ctx context.Context, filter store.TransactionFilter) ([]*domain.TransactionEntry, error) {
	if filter.Type != "" && filter.Type != domain.TransactionIn && filter.Type != domain.TransactionOut && filter.Type != domain.TransactionMove {
		return nil, domain.NewValidationError("type", fmt.Sprintf("unknown transaction type %q", filter.Type))
	}
	return store.NewTransactionStore(s.db).List(ctx, filter)
}

// VerifyLedger returns every item whose stored total differs from the total
// rebuilt from its transaction log. An empty result means the ledger holds.
func (s *InventoryService) VerifyLedger(ctx context.Context) ([]*store.LedgerMismatch, error) {
	mismatches, err := store.NewTransactionStore(s.db).Mismatches(ctx)
	if err != nil {
		return nil, err
	}
	for _, m := range mismatches {
		s.logger.Warn("ledger mismatch", "item_id", m.ItemID, "name", m.Name, "total_qty", m.TotalQty, "ledger_qty", m.LedgerQty)
	}
	return mismatches, nil
}

// OpenImage returns a stored item image.
func (s *InventoryService) OpenImage(ctx context.Context, key string) (io.ReadCloser, string, error) {
	return s.images.Open(ctx, key)
}

// deduct removes qty units from an item inside tx. A missing item yields
// NotFoundError and too little stock an InsufficientStockError carrying the
// live quantity.
func deduct(ctx context.Context, tx store.DBTX, itemID, qty int64) (int64, error) {
	items := store.NewItemStore(tx)
	item, err := items.GetByID(ctx, itemID)
	if err != nil {
		return 0, err
	}
	if item == nil {
		return 0, &domain.NotFoundError{Entity: "item", ID: itemID}
	}

	total, err := items.Decrement(ctx, itemID, qty)
	if errors.Is(err, store.ErrNegativeQuantity) {
		return 0, &domain.InsufficientStockError{Shortfalls: []domain.Shortfall{{
			ItemID:    item.ID,
			Name:      item.Name,
			Footprint: item.Footprint,
			Needed:    qty,
			Available: item.TotalQty,
		}}}
	}
	if err != nil {
		return 0, err
	}
	return total, nil
}

func principalID(p domain.Principal) *int64 {
	if p.ID == 0 {
		return nil
	}
	id := p.ID
	return &id
}

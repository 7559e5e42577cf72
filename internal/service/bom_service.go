package service

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/vbonduro/partsledger/internal/db"
	"github.com/vbonduro/partsledger/internal/domain"
	"github.com/vbonduro/partsledger/internal/store"
)

type BOMService struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

func NewBOMService(database *sql.DB, logger *slog.Logger) *BOMService {
	return &BOMService{db: database, logger: logger, now: time.Now}
}

type BOMRequest struct {
	Name        string
	Description string
	Lines       []domain.BOMLine
}

// normalize validates the request and merges lines that name the same item,
// keeping the position of the first occurrence.
func (r *BOMRequest) normalize() error {
	r.Name = strings.TrimSpace(r.Name)
	if r.Name == "" {
		return domain.NewValidationError("name", "name is required")
	}

	merged := make([]domain.BOMLine, 0, len(r.Lines))
	index := make(map[int64]int, len(r.Lines))
	for i, line := range r.Lines {
		if line.ItemID <= 0 {
			return domain.NewValidationError("items", fmt.Sprintf("line %d: item id is required", i+1))
		}
		if line.Qty <= 0 {
			return domain.NewValidationError("items", fmt.Sprintf("line %d: quantity must be greater than zero", i+1))
		}
		if j, ok := index[line.ItemID]; ok {
			merged[j].Qty += line.Qty
			continue
		}
		index[line.ItemID] = len(merged)
		merged = append(merged, line)
	}
	r.Lines = merged
	return nil
}

func checkLineItems(ctx context.Context, tx store.DBTX, lines []domain.BOMLine) error {
	items := store.NewItemStore(tx)
	for _, line := range lines {
		item, err := items.GetByID(ctx, line.ItemID)
		if err != nil {
			return err
		}
		if item == nil {
			return &domain.NotFoundError{Entity: "item", ID: line.ItemID}
		}
	}
	return nil
}

func duplicateBOM(name string) error {
	return &domain.ConflictError{Entity: "bom", Message: fmt.Sprintf("a BOM named %q already exists", name)}
}

func (s *BOMService) Create(ctx context.Context, principal domain.Principal, req BOMRequest) (*domain.BOMDetail, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}

	var id int64
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		boms := store.NewBOMStore(tx)
		existing, err := boms.FindByName(ctx, req.Name)
		if err != nil {
			return err
		}
		if existing != nil {
			return duplicateBOM(req.Name)
		}
		if err := checkLineItems(ctx, tx, req.Lines); err != nil {
			return err
		}

		id, err = boms.Create(ctx, req.Name, req.Description, principalID(principal))
		if store.IsUniqueViolation(err) {
			return duplicateBOM(req.Name)
		}
		if err != nil {
			return err
		}
		return boms.ReplaceLines(ctx, id, req.Lines)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("bom created", "bom_id", id, "name", req.Name, "lines", len(req.Lines), "user", principal.Username)
	return s.Get(ctx, id)
}

// Update renames the BOM and replaces its whole recipe.
func (s *BOMService) Update(ctx context.Context, principal domain.Principal, id int64, req BOMRequest) (*domain.BOMDetail, error) {
	if err := req.normalize(); err != nil {
		return nil, err
	}

	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		boms := store.NewBOMStore(tx)
		bom, err := boms.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if bom == nil {
			return &domain.NotFoundError{Entity: "bom", ID: id}
		}
		other, err := boms.FindByName(ctx, req.Name)
		if err != nil {
			return err
		}
		if other != nil && other.ID != id {
			return duplicateBOM(req.Name)
		}
		if err := checkLineItems(ctx, tx, req.Lines); err != nil {
			return err
		}

		if err := boms.Update(ctx, id, req.Name, req.Description); err != nil {
			if store.IsUniqueViolation(err) {
				return duplicateBOM(req.Name)
			}
			return err
		}
		return boms.ReplaceLines(ctx, id, req.Lines)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("bom updated", "bom_id", id, "name", req.Name, "lines", len(req.Lines), "user", principal.Username)
	return s.Get(ctx, id)
}

// Get returns the recipe with each line's live stock and the number of
// complete builds current stock allows.
func (s *BOMService) Get(ctx context.Context, id int64) (*domain.BOMDetail, error) {
	boms := store.NewBOMStore(s.db)
	bom, err := boms.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if bom == nil {
		return nil, &domain.NotFoundError{Entity: "bom", ID: id}
	}

	lines, err := boms.Lines(ctx, id)
	if err != nil {
		return nil, err
	}
	return &domain.BOMDetail{BOM: *bom, Items: lines, MaxBuilds: maxBuilds(lines)}, nil
}

func maxBuilds(lines []*domain.BOMLineDetail) int64 {
	if len(lines) == 0 {
		return 0
	}
	builds := int64(-1)
	for _, l := range lines {
		if l.Missing {
			return 0
		}
		n := l.CurrentStock / l.Qty
		if builds < 0 || n < builds {
			builds = n
		}
	}
	return builds
}

func (s *BOMService) List(ctx context.Context) ([]*domain.BOM, error) {
	return store.NewBOMStore(s.db).List(ctx)
}

func (s *BOMService) Delete(ctx context.Context, principal domain.Principal, id int64) error {
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		boms := store.NewBOMStore(tx)
		bom, err := boms.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if bom == nil {
			return &domain.NotFoundError{Entity: "bom", ID: id}
		}
		return boms.Delete(ctx, id)
	})
	if err != nil {
		return err
	}

	s.logger.Info("bom deleted", "bom_id", id, "user", principal.Username)
	return nil
}

type ExecuteResult struct {
	BOMID        int64  `json:"bom_id"`
	ProjectName  string `json:"project_name"`
	Multiplier   int64  `json:"multiplier"`
	Transactions int    `json:"transactions"`
}

// Execute deducts recipe_qty * multiplier from every line's item and logs one
// OUT per line, all or nothing. Every line that cannot be covered is reported
// in a single InsufficientStockError.
func (s *BOMService) Execute(ctx context.Context, principal domain.Principal, id int64, projectName string, multiplier int64) (*ExecuteResult, error) {
	projectName = strings.TrimSpace(projectName)
	if projectName == "" {
		return nil, domain.NewValidationError("project_name", "project name is required")
	}
	if multiplier < 1 {
		return nil, domain.NewValidationError("multiplier", "multiplier must be at least 1")
	}

	result := &ExecuteResult{BOMID: id, ProjectName: projectName, Multiplier: multiplier}
	var bomName string
	err := db.WithTx(ctx, s.db, func(tx *sql.Tx) error {
		boms := store.NewBOMStore(tx)
		bom, err := boms.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if bom == nil {
			return &domain.NotFoundError{Entity: "bom", ID: id}
		}
		bomName = bom.Name

		lines, err := boms.Lines(ctx, id)
		if err != nil {
			return err
		}
		if len(lines) == 0 {
			return domain.NewValidationError("items", fmt.Sprintf("BOM %q has no items", bom.Name))
		}

		var shortfalls []domain.Shortfall
		for _, l := range lines {
			needed, ok := lineNeed(l.Qty, multiplier)
			if l.Missing || !ok || needed > l.CurrentStock {
				shortfalls = append(shortfalls, domain.Shortfall{
					ItemID:    l.ItemID,
					Name:      l.Name,
					Footprint: l.Footprint,
					Needed:    needed,
					Available: l.CurrentStock,
					Missing:   l.Missing,
				})
			}
		}
		if len(shortfalls) > 0 {
			return &domain.InsufficientStockError{Shortfalls: shortfalls}
		}

		items := store.NewItemStore(tx)
		txs := store.NewTransactionStore(tx)
		notes := fmt.Sprintf("BOM Execution: %s (x%d)", bom.Name, multiplier)
		now := s.now()
		for _, l := range lines {
			needed, _ := lineNeed(l.Qty, multiplier)
			if _, err := items.Decrement(ctx, l.ItemID, needed); err != nil {
				return fmt.Errorf("failed to deduct item %d: %w", l.ItemID, err)
			}
			if _, err := txs.Insert(ctx, &domain.Transaction{
				ItemID:     l.ItemID,
				UserID:     principalID(principal),
				Type:       domain.TransactionOut,
				Qty:        needed,
				ProjectRef: projectName,
				Notes:      notes,
				Timestamp:  now,
			}); err != nil {
				return err
			}
			result.Transactions++
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("bom executed", "bom_id", id, "name", bomName, "multiplier", multiplier, "project", projectName, "lines", result.Transactions, "user", principal.Username)
	return result, nil
}

// lineNeed returns qty * multiplier. When the product does not fit in an
// int64 it reports false and saturates at math.MaxInt64, which no stock level
// can cover.
func lineNeed(qty, multiplier int64) (int64, bool) {
	if qty > math.MaxInt64/multiplier {
		return math.MaxInt64, false
	}
	return qty * multiplier, true
}

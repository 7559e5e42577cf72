package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type TransactionType string

const (
	TransactionIn   TransactionType = "IN"
	TransactionOut  TransactionType = "OUT"
	TransactionMove TransactionType = "MOVE"
)

const DefaultItemType = "consumable"

type Item struct {
	ID           int64     `json:"id"`
	Name         string    `json:"name"`
	PartNumber   string    `json:"part_number"`
	Category     string    `json:"category"`
	Footprint    string    `json:"footprint"`
	ItemType     string    `json:"item_type"`
	TotalQty     int64     `json:"total_qty"`
	Location     string    `json:"location"`
	Notes        string    `json:"notes"`
	ImagePath    string    `json:"image_path"`
	DatasheetURL string    `json:"datasheet_url"`
	CreatedAt    time.Time `json:"created_at"`
}

// NormalizeFootprint maps an absent footprint to the empty string. It is the
// only form in which footprints are stored or compared.
func NormalizeFootprint(footprint *string) string {
	if footprint == nil {
		return ""
	}
	return *footprint
}

type Transaction struct {
	ID         int64           `json:"id"`
	ItemID     int64           `json:"item_id"`
	UserID     *int64          `json:"user_id"`
	Type       TransactionType `json:"type"`
	Qty        int64           `json:"qty"`
	ProjectRef string          `json:"project_ref"`
	Notes      string          `json:"notes"`
	Timestamp  time.Time       `json:"timestamp"`
}

// TransactionEntry is a log row joined with the names callers display.
type TransactionEntry struct {
	Transaction
	ItemName string `json:"item_name"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
}

type BOM struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedBy   *int64    `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	LineCount   int       `json:"line_count"`
}

type BOMLine struct {
	ItemID int64 `json:"item_id"`
	Qty    int64 `json:"qty"`
}

// BOMLineDetail is a recipe line joined with the live state of its item.
// Missing is set when the referenced item no longer exists.
type BOMLineDetail struct {
	ItemID       int64  `json:"item_id"`
	Qty          int64  `json:"qty"`
	Position     int    `json:"position"`
	Name         string `json:"name"`
	PartNumber   string `json:"part_number"`
	Category     string `json:"category"`
	Footprint    string `json:"footprint"`
	CurrentStock int64  `json:"current_stock"`
	Missing      bool   `json:"missing,omitempty"`
}

type BOMDetail struct {
	BOM
	Items     []*BOMLineDetail `json:"items"`
	MaxBuilds int64            `json:"max_builds"`
}

type ServiceStatus string

const (
	StatusPending      ServiceStatus = "pending"
	StatusInProgress   ServiceStatus = "in_progress"
	StatusWaitingParts ServiceStatus = "waiting_parts"
	StatusTesting      ServiceStatus = "testing"
	StatusCompleted    ServiceStatus = "completed"
	StatusDelivered    ServiceStatus = "delivered"
)

func (s ServiceStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusWaitingParts, StatusTesting, StatusCompleted, StatusDelivered:
		return true
	}
	return false
}

// Closed reports whether work on the order has finished.
func (s ServiceStatus) Closed() bool {
	return s == StatusCompleted || s == StatusDelivered
}

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	}
	return false
}

type ServiceOrder struct {
	ID              int64               `json:"id"`
	ItemName        string              `json:"item_name"`
	SerialNumber    string              `json:"serial_number"`
	CustomerName    string              `json:"customer_name"`
	CustomerContact string              `json:"customer_contact"`
	Complaint       string              `json:"complaint"`
	Diagnosis       string              `json:"diagnosis"`
	ActionsTaken    string              `json:"actions_taken"`
	Status          ServiceStatus       `json:"status"`
	Priority        Priority            `json:"priority"`
	DateReceived    time.Time           `json:"date_received"`
	DueDate         *time.Time          `json:"due_date"`
	CompletedDate   *time.Time          `json:"completed_date"`
	TechnicianID    *int64              `json:"technician_id"`
	CostEstimate    decimal.NullDecimal `json:"cost_estimate"`
	Notes           string              `json:"notes"`
	CreatedBy       *int64              `json:"created_by"`

	TechnicianName string       `json:"technician_name"`
	CreatedByName  string       `json:"created_by_name"`
	Overdue        bool         `json:"overdue"`
	PartsUsed      []*PartsUsed `json:"parts_used,omitempty"`
}

// IsOverdue reports whether the order is past its due date and still open.
func (o *ServiceOrder) IsOverdue(now time.Time) bool {
	return o.DueDate != nil && o.DueDate.Before(now) && !o.Status.Closed()
}

type PartsUsed struct {
	ID             int64     `json:"id"`
	ServiceOrderID int64     `json:"service_order_id"`
	ItemID         int64     `json:"item_id"`
	Qty            int64     `json:"qty"`
	Timestamp      time.Time `json:"timestamp"`
	ItemName       string    `json:"item_name"`
	PartNumber     string    `json:"part_number"`
	Category       string    `json:"category"`
}

type Role string

const (
	RoleAdmin Role = "admin"
	RoleUser  Role = "user"
)

func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleUser
}

type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	FullName     string    `json:"full_name"`
	Role         Role      `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
}

// Principal is the authenticated caller every core operation acts on behalf of.
type Principal struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Role     Role   `json:"role"`
}

func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

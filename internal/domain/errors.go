package domain

import (
	"fmt"
	"strings"
)

// ValidationError reports a missing or malformed field. It is returned before
// any write takes place.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// ConflictError reports a write that collides with existing state, such as a
// duplicate BOM name or an item that already exists.
type ConflictError struct {
	Entity  string
	Message string
}

func (e *ConflictError) Error() string {
	return e.Message
}

type NotFoundError struct {
	Entity string
	ID     int64
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %d not found", e.Entity, e.ID)
}

// AuthorizationError reports a failed credential or role check. Forbidden is
// set for role checks; a plain credential failure leaves it false.
type AuthorizationError struct {
	Reason    string
	Forbidden bool
}

func (e *AuthorizationError) Error() string {
	return e.Reason
}

type Shortfall struct {
	ItemID    int64  `json:"item_id"`
	Name      string `json:"name"`
	Footprint string `json:"footprint"`
	Needed    int64  `json:"needed"`
	Available int64  `json:"available"`
	Missing   bool   `json:"missing,omitempty"`
}

func (s Shortfall) String() string {
	name := s.Name
	if s.Missing {
		name = fmt.Sprintf("unknown item #%d", s.ItemID)
	}
	return fmt.Sprintf("%s (need %d, have %d)", name, s.Needed, s.Available)
}

// InsufficientStockError lists every line that cannot be covered by current
// stock.
type InsufficientStockError struct {
	Shortfalls []Shortfall
}

func (e *InsufficientStockError) Error() string {
	parts := make([]string, len(e.Shortfalls))
	for i, s := range e.Shortfalls {
		parts[i] = s.String()
	}
	return "insufficient stock: " + strings.Join(parts, ", ")
}

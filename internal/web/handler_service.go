package web

import (
	"net/http"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/vbonduro/partsledger/internal/domain"
	"github.com/vbonduro/partsledger/internal/service"
)

type serviceOrderRequest struct {
	ItemName        string               `json:"item_name"`
	SerialNumber    string               `json:"serial_number"`
	CustomerName    string               `json:"customer_name"`
	CustomerContact string               `json:"customer_contact"`
	Complaint       string               `json:"complaint"`
	Diagnosis       string               `json:"diagnosis"`
	ActionsTaken    string               `json:"actions_taken"`
	Status          domain.ServiceStatus `json:"status"`
	Priority        domain.Priority      `json:"priority"`
	DueDate         string               `json:"due_date"`
	CompletedDate   string               `json:"completed_date"`
	TechnicianID    *int64               `json:"technician_id"`
	CostEstimate    decimal.NullDecimal  `json:"cost_estimate"`
	Notes           string               `json:"notes"`
}

func (b serviceOrderRequest) toService() (service.ServiceOrderInput, error) {
	due, err := parseDate("due_date", b.DueDate)
	if err != nil {
		return service.ServiceOrderInput{}, err
	}
	completed, err := parseDate("completed_date", b.CompletedDate)
	if err != nil {
		return service.ServiceOrderInput{}, err
	}
	return service.ServiceOrderInput{
		ItemName:        b.ItemName,
		SerialNumber:    b.SerialNumber,
		CustomerName:    b.CustomerName,
		CustomerContact: b.CustomerContact,
		Complaint:       b.Complaint,
		Diagnosis:       b.Diagnosis,
		ActionsTaken:    b.ActionsTaken,
		Status:          b.Status,
		Priority:        b.Priority,
		DueDate:         due,
		CompletedDate:   completed,
		TechnicianID:    b.TechnicianID,
		CostEstimate:    b.CostEstimate,
		Notes:           b.Notes,
	}, nil
}

// parseDate accepts an RFC 3339 timestamp or a bare YYYY-MM-DD date, which is
// read as the end of that day in UTC. Empty means no date.
func parseDate(field, v string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, v)
	if err != nil {
		return nil, domain.NewValidationError(field, "expected YYYY-MM-DD or an RFC 3339 timestamp")
	}
	t = t.Add(24*time.Hour - time.Second)
	return &t, nil
}

type addPartRequest struct {
	ItemID int64 `json:"item_id"`
	Qty    int64 `json:"qty"`
}

func (s *Server) handleListServiceOrders(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	overdue, _ := strconv.ParseBool(q.Get("overdue"))
	orders, err := s.orders.List(r.Context(), service.ServiceOrderFilter{
		Status:      domain.ServiceStatus(q.Get("status")),
		Priority:    domain.Priority(q.Get("priority")),
		OverdueOnly: overdue,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", orEmpty(orders))
}

func (s *Server) handleGetServiceOrder(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	o, err := s.orders.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", o)
}

func (s *Server) handleCreateServiceOrder(w http.ResponseWriter, r *http.Request) {
	var body serviceOrderRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	in, err := body.toService()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	o, err := s.orders.Create(r.Context(), principal(r), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, "service order created", o)
}

func (s *Server) handleUpdateServiceOrder(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body serviceOrderRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	in, err := body.toService()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	o, err := s.orders.Update(r.Context(), principal(r), id, in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "service order updated", o)
}

func (s *Server) handleDeleteServiceOrder(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.orders.Delete(r.Context(), principal(r), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "service order deleted", nil)
}

func (s *Server) handleListServiceParts(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	parts, err := s.orders.ListParts(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", orEmpty(parts))
}

func (s *Server) handleAddServicePart(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body addPartRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.orders.AddPart(r.Context(), principal(r), id, body.ItemID, body.Qty)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, "part added", res)
}

package web

import (
	"fmt"
	"mime"
	"net/http"
	"time"

	"github.com/vbonduro/partsledger/internal/domain"
	"github.com/vbonduro/partsledger/internal/export"
	"github.com/vbonduro/partsledger/internal/service"
	"github.com/vbonduro/partsledger/internal/store"
)

type stockInRequest struct {
	ItemID       int64   `json:"item_id"`
	Name         string  `json:"name"`
	Footprint    *string `json:"footprint"`
	PartNumber   string  `json:"part_number"`
	Category     string  `json:"category"`
	ItemType     string  `json:"item_type"`
	Location     string  `json:"location"`
	DatasheetURL string  `json:"datasheet_url"`
	Qty          int64   `json:"qty"`
	ProjectRef   string  `json:"project_ref"`
	Notes        string  `json:"notes"`
	IsNew        bool    `json:"is_new"`
}

type stockOutRequest struct {
	ItemID     int64  `json:"item_id"`
	Qty        int64  `json:"qty"`
	ProjectRef string `json:"project_ref"`
	Notes      string `json:"notes"`
}

type stockMoveRequest struct {
	ItemID      int64  `json:"item_id"`
	NewLocation string `json:"new_location"`
	ProjectRef  string `json:"project_ref"`
	Notes       string `json:"notes"`
}

type deleteItemRequest struct {
	Password string `json:"password"`
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.inventory.ListItems(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", orEmpty(items))
}

func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	item, err := s.inventory.GetItem(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", item)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.inventory.Stats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", stats)
}

func (s *Server) handleVerifyLedger(w http.ResponseWriter, r *http.Request) {
	mismatches, err := s.inventory.VerifyLedger(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	msg := "ledger balanced"
	if len(mismatches) > 0 {
		msg = fmt.Sprintf("%d items disagree with their ledger", len(mismatches))
	}
	writeData(w, http.StatusOK, msg, orEmpty(mismatches))
}

// handleStockIn accepts either a JSON body or a multipart form carrying an
// optional image.
func (s *Server) handleStockIn(w http.ResponseWriter, r *http.Request) {
	var req service.StockInRequest
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		var err error
		if req, err = s.stockInForm(r); err != nil {
			s.writeError(w, r, err)
			return
		}
	} else {
		var body stockInRequest
		if err := decodeJSON(r, &body); err != nil {
			s.writeError(w, r, err)
			return
		}
		req = service.StockInRequest{
			ItemID:       body.ItemID,
			Name:         body.Name,
			Footprint:    body.Footprint,
			PartNumber:   body.PartNumber,
			Category:     body.Category,
			ItemType:     body.ItemType,
			Location:     body.Location,
			DatasheetURL: body.DatasheetURL,
			Quantity:     body.Qty,
			ProjectRef:   body.ProjectRef,
			Notes:        body.Notes,
			IsNew:        body.IsNew,
		}
	}

	res, err := s.inventory.StockIn(r.Context(), principal(r), req)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	writeData(w, status, "stock added", res)
}

func (s *Server) handleStockOut(w http.ResponseWriter, r *http.Request) {
	var body stockOutRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.inventory.StockOut(r.Context(), principal(r), service.StockOutRequest{
		ItemID:     body.ItemID,
		Quantity:   body.Qty,
		ProjectRef: body.ProjectRef,
		Notes:      body.Notes,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "stock removed", res)
}

func (s *Server) handleStockMove(w http.ResponseWriter, r *http.Request) {
	var body stockMoveRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	res, err := s.inventory.StockMove(r.Context(), principal(r), service.StockMoveRequest{
		ItemID:      body.ItemID,
		NewLocation: body.NewLocation,
		ProjectRef:  body.ProjectRef,
		Notes:       body.Notes,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "item moved", res)
}

func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body deleteItemRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.inventory.DeleteItem(r.Context(), principal(r), id, body.Password); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "item deleted", nil)
}

// historyFilter reads the type, item_id and limit query parameters.
func historyFilter(r *http.Request) (store.TransactionFilter, error) {
	var f store.TransactionFilter
	f.Type = domain.TransactionType(r.URL.Query().Get("type"))
	var err error
	if f.ItemID, err = queryInt64(r, "item_id"); err != nil {
		return f, err
	}
	limit, err := queryInt64(r, "limit")
	if err != nil {
		return f, err
	}
	f.Limit = int(limit)
	return f, nil
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	f, err := historyFilter(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	entries, err := s.inventory.History(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", orEmpty(entries))
}

func (s *Server) handleExportItems(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	items, err := s.inventory.ListItems(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeExport(w, r, format, "inventory", export.ItemsTable(items))
}

func (s *Server) handleExportHistory(w http.ResponseWriter, r *http.Request) {
	format, err := export.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	f, err := historyFilter(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	entries, err := s.inventory.History(r.Context(), f)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeExport(w, r, format, "history", export.HistoryTable(entries))
}

// writeExport streams t as a file download named after base and today's date.
func (s *Server) writeExport(w http.ResponseWriter, r *http.Request, format export.Format, base string, t *export.Table) {
	filename := fmt.Sprintf("%s-%s%s", base, time.Now().Format("2006-01-02"), format.Ext())
	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": filename}))
	if err := export.Write(w, format, t); err != nil {
		s.logger.Error("export failed", "path", r.URL.Path, "format", format, "error", err)
	}
}

package web

import (
	"net/http"

	"github.com/vbonduro/partsledger/internal/domain"
	"github.com/vbonduro/partsledger/internal/service"
)

type bomRequest struct {
	Name        string           `json:"name"`
	Description string           `json:"description"`
	Items       []domain.BOMLine `json:"items"`
}

func (b bomRequest) toService() service.BOMRequest {
	return service.BOMRequest{Name: b.Name, Description: b.Description, Lines: b.Items}
}

type executeRequest struct {
	ProjectName string `json:"project_name"`
	Multiplier  *int64 `json:"multiplier"`
}

func (s *Server) handleListBOMs(w http.ResponseWriter, r *http.Request) {
	boms, err := s.boms.List(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "", orEmpty(boms))
}

func (s *Server) handleGetBOM(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	bom, err := s.boms.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	bom.Items = orEmpty(bom.Items)
	writeData(w, http.StatusOK, "", bom)
}

func (s *Server) handleCreateBOM(w http.ResponseWriter, r *http.Request) {
	var body bomRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	bom, err := s.boms.Create(r.Context(), principal(r), body.toService())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	bom.Items = orEmpty(bom.Items)
	writeData(w, http.StatusCreated, "BOM created", bom)
}

func (s *Server) handleUpdateBOM(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body bomRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	bom, err := s.boms.Update(r.Context(), principal(r), id, body.toService())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	bom.Items = orEmpty(bom.Items)
	writeData(w, http.StatusOK, "BOM updated", bom)
}

func (s *Server) handleDeleteBOM(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.boms.Delete(r.Context(), principal(r), id); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "BOM deleted", nil)
}

// handleExecuteBOM builds the BOM. An absent multiplier means one build.
func (s *Server) handleExecuteBOM(w http.ResponseWriter, r *http.Request) {
	id, err := parseID(r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	var body executeRequest
	if err := decodeJSON(r, &body); err != nil {
		s.writeError(w, r, err)
		return
	}
	multiplier := int64(1)
	if body.Multiplier != nil {
		multiplier = *body.Multiplier
	}
	res, err := s.boms.Execute(r.Context(), principal(r), id, body.ProjectName, multiplier)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, "BOM executed", res)
}

package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/vbonduro/partsledger/internal/domain"
)

const maxJSONBody = 1 << 20 // 1 MB

type envelope struct {
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

type errorBody struct {
	Error      string             `json:"error"`
	Kind       string             `json:"kind"`
	Field      string             `json:"field,omitempty"`
	Shortfalls []domain.Shortfall `json:"shortfalls,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeData(w http.ResponseWriter, status int, message string, data any) {
	writeJSON(w, status, envelope{Message: message, Data: data})
}

func writeErrorMessage(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, errorBody{Error: message, Kind: kind})
}

// writeError maps a service error onto an HTTP status. Anything that is not
// a domain error is logged and reported as an opaque 500.
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr   *domain.ValidationError
		cerr   *domain.ConflictError
		serr   *domain.InsufficientStockError
		nferr  *domain.NotFoundError
		aerr   *domain.AuthorizationError
		syntax *json.SyntaxError
	)
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: verr.Error(), Kind: "validation", Field: verr.Field})
	case errors.As(err, &syntax), errors.Is(err, io.ErrUnexpectedEOF):
		writeErrorMessage(w, http.StatusBadRequest, "validation", "malformed JSON body")
	case errors.As(err, &cerr):
		writeErrorMessage(w, http.StatusConflict, "conflict", cerr.Error())
	case errors.As(err, &serr):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: serr.Error(), Kind: "insufficient_stock", Shortfalls: serr.Shortfalls})
	case errors.As(err, &nferr):
		writeErrorMessage(w, http.StatusNotFound, "not_found", nferr.Error())
	case errors.As(err, &aerr):
		if aerr.Forbidden {
			writeErrorMessage(w, http.StatusForbidden, "forbidden", aerr.Error())
			return
		}
		writeErrorMessage(w, http.StatusUnauthorized, "unauthorized", aerr.Error())
	default:
		s.logger.Error("request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		writeErrorMessage(w, http.StatusInternalServerError, "internal", "internal server error")
	}
}

// decodeJSON reads a size-limited JSON body into v. Decoding failures come
// back as validation errors.
func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxJSONBody))
	if err := dec.Decode(v); err != nil {
		if errors.Is(err, io.EOF) {
			return domain.NewValidationError("", "request body is required")
		}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return domain.NewValidationError(typeErr.Field, fmt.Sprintf("expected %s", typeErr.Type))
		}
		return domain.NewValidationError("", "malformed JSON body")
	}
	return nil
}

func parseID(r *http.Request) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.NewValidationError("id", "invalid id")
	}
	return id, nil
}

// queryInt64 parses an optional integer query parameter; absent means zero.
func queryInt64(r *http.Request, key string) (int64, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0, domain.NewValidationError(key, fmt.Sprintf("invalid %s", key))
	}
	return n, nil
}

// orEmpty turns a nil slice into an empty one so it encodes as [].
func orEmpty[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}

package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	json "github.com/goccy/go-json"

	"github.com/pixeltennis/pixeltennis/internal/remote"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error  string   `json:"error"`
	Fields []string `json:"fields,omitempty"`
}

type badRequestError struct {
	msg string
}

func (e *badRequestError) Error() string { return e.msg }

func badRequest(format string, args ...any) error {
	return &badRequestError{msg: fmt.Sprintf(format, args...)}
}

func respondJSON(w http.ResponseWriter, code int, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"failed to encode response"}`))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(data)
}

func (s *Server) handleError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		badReq  *badRequestError
		invalid validator.ValidationErrors
	)
	switch {
	case errors.As(err, &badReq):
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: badReq.msg})
	case errors.As(err, &invalid):
		fields := make([]string, 0, len(invalid))
		for _, fe := range invalid {
			fields = append(fields, fmt.Sprintf("%s:%s", fe.Field(), fe.Tag()))
		}
		respondJSON(w, http.StatusBadRequest, ErrorResponse{Error: "validation failed", Fields: fields})
	case errors.Is(err, remote.ErrNotFound):
		respondJSON(w, http.StatusNotFound, ErrorResponse{Error: "not found"})
	case errors.Is(err, context.DeadlineExceeded):
		respondJSON(w, http.StatusGatewayTimeout, ErrorResponse{Error: "backend timeout"})
	default:
		loggerFrom(r.Context(), s.logger).Error("request_failed", "path", r.URL.Path, "err", err)
		respondJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "internal error"})
	}
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, MaxBodySize))
	if err := dec.Decode(v); err != nil {
		return badRequest("invalid request body: %v", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Ping(r.Context()); err != nil {
		loggerFrom(r.Context(), s.logger).Warn("health_check_failed", "err", err)
		respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.store.FetchProfile(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handlePatchProfile(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var patch remote.ProfilePatch
	if err := decodeBody(w, r, &patch); err != nil {
		s.handleError(w, r, err)
		return
	}
	if err := s.validate.Struct(patch); err != nil {
		s.handleError(w, r, err)
		return
	}
	if patch.IsEmpty() {
		s.handleError(w, r, badRequest("empty profile patch"))
		return
	}

	if err := s.store.UpdateProfile(r.Context(), userID, patch); err != nil {
		s.handleError(w, r, err)
		return
	}
	p, err := s.store.FetchProfile(r.Context(), userID)
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	rows, err := s.store.FetchLogs(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		s.handleError(w, r, err)
		return
	}
	if rows == nil {
		rows = []remote.LogRow{}
	}
	respondJSON(w, http.StatusOK, rows)
}

func (s *Server) handleBatchLogs(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	var rows []remote.LogRow
	if err := decodeBody(w, r, &rows); err != nil {
		s.handleError(w, r, err)
		return
	}
	if len(rows) > MaxBatchSize {
		s.handleError(w, r, badRequest("batch of %d rows exceeds %d", len(rows), MaxBatchSize))
		return
	}
	for i := range rows {
		rows[i].UserID = userID
		if err := s.validate.Struct(rows[i]); err != nil {
			s.handleError(w, r, err)
			return
		}
	}

	if err := s.store.UpsertLogs(r.Context(), userID, rows); err != nil {
		s.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handlePutLog(w http.ResponseWriter, r *http.Request) {
	userID, logID := chi.URLParam(r, "userID"), chi.URLParam(r, "logID")

	var row remote.LogRow
	if err := decodeBody(w, r, &row); err != nil {
		s.handleError(w, r, err)
		return
	}
	if row.ID == "" {
		row.ID = logID
	}
	if row.ID != logID {
		s.handleError(w, r, badRequest("body id %q does not match path id %q", row.ID, logID))
		return
	}
	row.UserID = userID
	if err := s.validate.Struct(row); err != nil {
		s.handleError(w, r, err)
		return
	}

	if err := s.store.UpsertLog(r.Context(), userID, row); err != nil {
		s.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteLog(w http.ResponseWriter, r *http.Request) {
	if err := s.store.DeleteLog(r.Context(), chi.URLParam(r, "userID"), chi.URLParam(r, "logID")); err != nil {
		s.handleError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

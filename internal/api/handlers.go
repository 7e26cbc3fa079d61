package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"polynotify/internal/store"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.st.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "unhealthy",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", defaultListLimit)
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit must be an integer")
		return
	}
	if limit <= 0 || limit > maxListLimit {
		limit = defaultListLimit
	}
	skip, err := queryInt(r, "skip", 0)
	if err != nil || skip < 0 {
		writeError(w, http.StatusBadRequest, "skip must be a non-negative integer")
		return
	}

	items, err := s.st.GetAll(r.Context(), limit, skip)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Count: len(items), Items: emptyIfNil(items)})
}

func (s *Server) handleRange(w http.ResponseWriter, r *http.Request) {
	start, err := time.Parse(time.RFC3339, r.URL.Query().Get("start"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "start must be RFC3339")
		return
	}
	end, err := time.Parse(time.RFC3339, r.URL.Query().Get("end"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "end must be RFC3339")
		return
	}
	if end.Before(start) {
		writeError(w, http.StatusBadRequest, "end precedes start")
		return
	}

	items, err := s.st.GetByDateRange(r.Context(), start, end)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Count: len(items), Items: emptyIfNil(items)})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	total, err := s.st.Count(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "query failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"total": total})
}

type listResponse struct {
	Count int                  `json:"count"`
	Items []store.Notification `json:"items"`
}

func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}

func emptyIfNil(items []store.Notification) []store.Notification {
	if items == nil {
		return []store.Notification{}
	}
	return items
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

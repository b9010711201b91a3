package server

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/playperu/geooracle/internal/evidence"
)

func handleHistory(logger *slog.Logger, store evidence.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := limitParam(w, r)
		if !ok {
			return
		}
		records, err := store.Records(r.Context())
		if err != nil {
			logger.Error("reading evidence", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, evidence.History(records, limit))
	}
}

func handleLeaderboard(logger *slog.Logger, store evidence.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit, ok := limitParam(w, r)
		if !ok {
			return
		}
		records, err := store.Records(r.Context())
		if err != nil {
			logger.Error("reading evidence", "error", err)
			writeError(w, http.StatusInternalServerError, "internal error")
			return
		}
		writeJSON(w, http.StatusOK, evidence.Rank(records, limit))
	}
}

// limitParam reads ?limit=, defaulting and clamping it. A non-integer value
// is rejected.
func limitParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return evidence.DefaultLimit, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "limit must be an integer")
		return 0, false
	}
	return evidence.ClampLimit(n), true
}

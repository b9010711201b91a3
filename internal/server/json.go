package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/playperu/geooracle/internal/rooms"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func readJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, ErrorResponse{Error: msg})
}

// writeRoomError maps registry errors onto HTTP statuses. Conflicts with the
// room state are 400, matching what the contract client already handles.
func writeRoomError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, rooms.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, rooms.ErrNotCreator):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, rooms.ErrSettlement):
		writeError(w, http.StatusBadGateway, "settlement failed, resubmit to retry")
	case errors.Is(err, rooms.ErrExists),
		errors.Is(err, rooms.ErrInvalidStake),
		errors.Is(err, rooms.ErrNotWaiting),
		errors.Is(err, rooms.ErrNotActive),
		errors.Is(err, rooms.ErrNotSettled),
		errors.Is(err, rooms.ErrStaleDeployment),
		errors.Is(err, rooms.ErrSelfJoin),
		errors.Is(err, rooms.ErrNotParticipant):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, rooms.ErrAttestation):
		writeError(w, http.StatusInternalServerError, "attestation failed")
	default:
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

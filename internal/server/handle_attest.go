package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/geooracle/internal/rooms"
)

// handleAttest re-signs a settled game that is still missing its attestation.
func handleAttest(logger *slog.Logger, reg *rooms.Registry, signer rooms.Signer, broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID := chi.URLParam(r, "gameID")
		g, err := reg.Attest(gameID, signer)
		if err != nil {
			logger.Warn("attestation retry failed", "game_id", gameID, "error", err)
			writeRoomError(w, err)
			return
		}

		event := GameEvent{Type: eventGameSettled, GameID: gameID}
		if g.Winner != nil {
			event.Winner = *g.Winner
		}
		broker.Publish(event)
		writeJSON(w, http.StatusOK, g)
	}
}

package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"nhooyr.io/websocket"

	"github.com/playperu/geooracle/internal/rooms"
)

// handleGameSocket pushes the same events as the SSE stream over a
// WebSocket, one text frame per event. Client frames are discarded.
func handleGameSocket(logger *slog.Logger, reg *rooms.Registry, broker *Broker, origins []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		gameID := chi.URLParam(r, "gameID")
		if _, err := reg.Game(gameID); errors.Is(err, rooms.ErrNotFound) {
			writeError(w, http.StatusNotFound, "game not found")
			return
		}

		ch := broker.Subscribe(gameID)
		defer broker.Unsubscribe(gameID, ch)

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: origins,
		})
		if err != nil {
			logger.Error("websocket accept failed", "game_id", gameID, "error", err)
			return
		}
		defer conn.CloseNow()

		ctx, cancel := context.WithTimeout(r.Context(), 30*time.Minute)
		defer cancel()
		ctx = conn.CloseRead(ctx)

		for {
			select {
			case <-ctx.Done():
				conn.Close(websocket.StatusNormalClosure, "")
				return
			case data := <-ch:
				if err := conn.Write(ctx, websocket.MessageText, data); err != nil {
					logger.Debug("websocket write failed", "game_id", gameID, "error", err)
					return
				}
			}
		}
	}
}

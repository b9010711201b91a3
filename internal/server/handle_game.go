package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/playperu/geooracle/internal/rooms"
)

func handleGetGame(reg *rooms.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		g, err := reg.Game(chi.URLParam(r, "gameID"))
		if err != nil {
			writeRoomError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, g)
	}
}

func handleListRooms(reg *rooms.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		list := reg.Waiting()
		if list == nil {
			list = []rooms.WaitingRoom{}
		}
		writeJSON(w, http.StatusOK, list)
	}
}

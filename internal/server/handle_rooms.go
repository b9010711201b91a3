package server

import (
	"math"
	"net/http"
	"strings"

	"github.com/playperu/geooracle/internal/geoguess"
	"github.com/playperu/geooracle/internal/rooms"
)

type CreateRoomRequest struct {
	GameID      string `json:"game_id"`
	PlayerA     string `json:"player_a"`
	StakeAmount string `json:"stake_amount_mist"`
}

type JoinRoomRequest struct {
	GameID  string `json:"game_id"`
	PlayerB string `json:"player_b"`
}

type CancelRoomRequest struct {
	GameID        string `json:"game_id"`
	PlayerAddress string `json:"player_address"`
}

type RefundRoomRequest struct {
	GameID string `json:"game_id"`
}

type GuessRequest struct {
	GameID        string   `json:"game_id"`
	PlayerAddress string   `json:"player_address"`
	Lat           *float64 `json:"lat"`
	Lon           *float64 `json:"lon"`
}

// RoomResponse acknowledges a lifecycle transition.
type RoomResponse struct {
	Status string `json:"status"`
	GameID string `json:"game_id"`
}

type SubmitResponse struct {
	Status  string `json:"status"`
	Settled bool   `json:"settled"`
}

func handleCreateRoom(reg *rooms.Registry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CreateRoomRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req.GameID = strings.TrimSpace(req.GameID)
		req.PlayerA = strings.TrimSpace(req.PlayerA)
		if req.GameID == "" || req.PlayerA == "" {
			writeError(w, http.StatusBadRequest, "game_id and player_a are required")
			return
		}

		if err := reg.Create(req.GameID, req.PlayerA, strings.TrimSpace(req.StakeAmount)); err != nil {
			writeRoomError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, RoomResponse{Status: "created", GameID: req.GameID})
	}
}

func handleJoinRoom(reg *rooms.Registry, broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req JoinRoomRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req.GameID = strings.TrimSpace(req.GameID)
		req.PlayerB = strings.TrimSpace(req.PlayerB)
		if req.GameID == "" || req.PlayerB == "" {
			writeError(w, http.StatusBadRequest, "game_id and player_b are required")
			return
		}

		if err := reg.Join(req.GameID, req.PlayerB); err != nil {
			writeRoomError(w, err)
			return
		}
		broker.Publish(GameEvent{Type: eventPlayerJoined, GameID: req.GameID, Player: req.PlayerB})
		writeJSON(w, http.StatusOK, RoomResponse{Status: "joined", GameID: req.GameID})
	}
}

func handleCancelRoom(reg *rooms.Registry, broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req CancelRoomRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req.GameID = strings.TrimSpace(req.GameID)
		if req.GameID == "" {
			writeError(w, http.StatusBadRequest, "game_id is required")
			return
		}

		if err := reg.Cancel(req.GameID, strings.TrimSpace(req.PlayerAddress)); err != nil {
			writeRoomError(w, err)
			return
		}
		broker.Publish(GameEvent{Type: eventRoomCancelled, GameID: req.GameID})
		writeJSON(w, http.StatusOK, RoomResponse{Status: "cancelled", GameID: req.GameID})
	}
}

func handleRefundRoom(reg *rooms.Registry, broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RefundRoomRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req.GameID = strings.TrimSpace(req.GameID)
		if req.GameID == "" {
			writeError(w, http.StatusBadRequest, "game_id is required")
			return
		}

		if err := reg.Refund(req.GameID); err != nil {
			writeRoomError(w, err)
			return
		}
		broker.Publish(GameEvent{Type: eventRoomRefunded, GameID: req.GameID})
		writeJSON(w, http.StatusOK, RoomResponse{Status: "refunded", GameID: req.GameID})
	}
}

func handleSubmitGuess(reg *rooms.Registry, broker *Broker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req GuessRequest
		if err := readJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		req.GameID = strings.TrimSpace(req.GameID)
		req.PlayerAddress = strings.TrimSpace(req.PlayerAddress)
		if req.GameID == "" || req.PlayerAddress == "" || req.Lat == nil || req.Lon == nil {
			writeError(w, http.StatusBadRequest, "game_id, player_address, lat and lon are required")
			return
		}
		if msg := validateCoords(*req.Lat, *req.Lon); msg != "" {
			writeError(w, http.StatusBadRequest, msg)
			return
		}

		guess := geoguess.Guess{Lat: *req.Lat, Lon: *req.Lon}
		settled, err := reg.Submit(r.Context(), req.GameID, req.PlayerAddress, guess)
		if err != nil {
			writeRoomError(w, err)
			return
		}

		broker.Publish(GameEvent{Type: eventGuessSubmitted, GameID: req.GameID, Player: req.PlayerAddress})
		if settled {
			event := GameEvent{Type: eventGameSettled, GameID: req.GameID}
			if g, err := reg.Game(req.GameID); err == nil && g.Winner != nil {
				event.Winner = *g.Winner
			}
			broker.Publish(event)
		}
		writeJSON(w, http.StatusOK, SubmitResponse{Status: "submitted", Settled: settled})
	}
}

func validateCoords(lat, lon float64) string {
	if math.IsNaN(lat) || math.IsNaN(lon) || math.IsInf(lat, 0) || math.IsInf(lon, 0) {
		return "lat and lon must be finite"
	}
	if lat < -90 || lat > 90 {
		return "lat must be within [-90, 90]"
	}
	if lon < -180 || lon > 180 {
		return "lon must be within [-180, 180]"
	}
	return ""
}

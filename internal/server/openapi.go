package server

import (
	"encoding/json"
	"net/http"

	openapi "github.com/swaggest/openapi-go"
	"github.com/swaggest/openapi-go/openapi3"

	"github.com/playperu/geooracle/internal/evidence"
	"github.com/playperu/geooracle/internal/rooms"
)

// ErrorResponse is returned for all error responses.
type ErrorResponse struct {
	Error string `json:"error"`
}

type limitQuery struct {
	Limit int `query:"limit" minimum:"1" maximum:"200" default:"50"`
}

type gamePath struct {
	GameID string `path:"gameID"`
}

func newOpenAPISpec() *openapi3.Spec {
	r := openapi3.NewReflector()
	r.Spec.Info.Title = "Geo Oracle API"
	r.Spec.Info.Version = "0.1.0"
	r.Spec.Info.WithDescription("Off-chain settlement oracle for staked location-guessing games.")

	// GET /
	getInfo, _ := r.NewOperationContext(http.MethodGet, "/")
	getInfo.SetSummary("Oracle info")
	getInfo.SetDescription("Returns the oracle public key, its on-chain address and deployment identifiers.")
	getInfo.AddRespStructure(InfoResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	_ = r.AddOperation(getInfo)

	// GET /healthz
	getHealthz, _ := r.NewOperationContext(http.MethodGet, "/healthz")
	getHealthz.SetSummary("Health check")
	getHealthz.SetDescription("Returns the health status of the evidence store and signer.")
	getHealthz.AddRespStructure(map[string]HealthStatus{}, openapi.WithHTTPStatus(http.StatusOK))
	getHealthz.AddRespStructure(map[string]HealthStatus{}, openapi.WithHTTPStatus(http.StatusServiceUnavailable))
	_ = r.AddOperation(getHealthz)

	// POST /create_room
	postCreate, _ := r.NewOperationContext(http.MethodPost, "/create_room")
	postCreate.SetSummary("Create room")
	postCreate.SetDescription("Registers a waiting room for an on-chain game and assigns it a target.")
	postCreate.AddReqStructure(CreateRoomRequest{})
	postCreate.AddRespStructure(RoomResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	postCreate.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	_ = r.AddOperation(postCreate)

	// POST /join_room
	postJoin, _ := r.NewOperationContext(http.MethodPost, "/join_room")
	postJoin.SetSummary("Join room")
	postJoin.SetDescription("Seats the second player and starts the round.")
	postJoin.AddReqStructure(JoinRoomRequest{})
	postJoin.AddRespStructure(RoomResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	postJoin.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	postJoin.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(postJoin)

	// POST /cancel_room
	postCancel, _ := r.NewOperationContext(http.MethodPost, "/cancel_room")
	postCancel.SetSummary("Cancel room")
	postCancel.SetDescription("Removes a waiting room. Only the creator may cancel.")
	postCancel.AddReqStructure(CancelRoomRequest{})
	postCancel.AddRespStructure(RoomResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	postCancel.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	postCancel.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusForbidden))
	postCancel.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(postCancel)

	// POST /refund_room
	postRefund, _ := r.NewOperationContext(http.MethodPost, "/refund_room")
	postRefund.SetSummary("Refund room")
	postRefund.SetDescription("Removes an active room after an on-chain refund.")
	postRefund.AddReqStructure(RefundRoomRequest{})
	postRefund.AddRespStructure(RoomResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	postRefund.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	postRefund.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(postRefund)

	// POST /submit
	postSubmit, _ := r.NewOperationContext(http.MethodPost, "/submit")
	postSubmit.SetSummary("Submit guess")
	postSubmit.SetDescription("Records a participant's guess. The second guess settles the game.")
	postSubmit.AddReqStructure(GuessRequest{})
	postSubmit.AddRespStructure(SubmitResponse{}, openapi.WithHTTPStatus(http.StatusOK))
	postSubmit.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	postSubmit.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	postSubmit.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadGateway))
	_ = r.AddOperation(postSubmit)

	// GET /rooms
	getRooms, _ := r.NewOperationContext(http.MethodGet, "/rooms")
	getRooms.SetSummary("List waiting rooms")
	getRooms.SetDescription("Returns joinable rooms of the current deployment in creation order.")
	getRooms.AddRespStructure([]rooms.WaitingRoom{}, openapi.WithHTTPStatus(http.StatusOK))
	_ = r.AddOperation(getRooms)

	// GET /game/{gameID}
	getGame, _ := r.NewOperationContext(http.MethodGet, "/game/{gameID}")
	getGame.SetSummary("Get game")
	getGame.SetDescription("Returns the game view including signature and blob id once settled.")
	getGame.AddReqStructure(gamePath{})
	getGame.AddRespStructure(rooms.Game{}, openapi.WithHTTPStatus(http.StatusOK))
	getGame.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(getGame)

	// GET /game/{gameID}/events
	getEvents, _ := r.NewOperationContext(http.MethodGet, "/game/{gameID}/events")
	getEvents.SetSummary("SSE event stream")
	getEvents.SetDescription("Server-Sent Events stream of joins, guesses and settlement for one game.")
	getEvents.AddReqStructure(gamePath{})
	getEvents.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusOK),
		openapi.WithContentType("text/event-stream"))
	getEvents.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(getEvents)

	// GET /game/{gameID}/ws
	getSocket, _ := r.NewOperationContext(http.MethodGet, "/game/{gameID}/ws")
	getSocket.SetSummary("WebSocket event stream")
	getSocket.SetDescription("Upgrades to a WebSocket that pushes the same game events as the SSE stream.")
	getSocket.AddReqStructure(gamePath{})
	getSocket.AddRespStructure(nil, openapi.WithHTTPStatus(http.StatusSwitchingProtocols),
		openapi.WithContentType("text/plain"))
	getSocket.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(getSocket)

	// GET /history
	getHistory, _ := r.NewOperationContext(http.MethodGet, "/history")
	getHistory.SetSummary("Settlement history")
	getHistory.SetDescription("Returns the most recent settlement records, newest first.")
	getHistory.AddReqStructure(limitQuery{})
	getHistory.AddRespStructure(evidence.HistoryPage{}, openapi.WithHTTPStatus(http.StatusOK))
	getHistory.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	_ = r.AddOperation(getHistory)

	// GET /leaderboard
	getLeaderboard, _ := r.NewOperationContext(http.MethodGet, "/leaderboard")
	getLeaderboard.SetSummary("Leaderboard")
	getLeaderboard.SetDescription("Ranks winners by total net earnings derived from settlement history.")
	getLeaderboard.AddReqStructure(limitQuery{})
	getLeaderboard.AddRespStructure(evidence.Leaderboard{}, openapi.WithHTTPStatus(http.StatusOK))
	getLeaderboard.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	_ = r.AddOperation(getLeaderboard)

	// POST /admin/games/{gameID}/attest
	postAttest, _ := r.NewOperationContext(http.MethodPost, "/admin/games/{gameID}/attest")
	postAttest.SetSummary("Retry attestation")
	postAttest.SetDescription("Signs a settled game that is missing its signature. Requires operator Bearer token.")
	postAttest.AddReqStructure(gamePath{})
	postAttest.AddRespStructure(rooms.Game{}, openapi.WithHTTPStatus(http.StatusOK))
	postAttest.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusBadRequest))
	postAttest.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusUnauthorized))
	postAttest.AddRespStructure(ErrorResponse{}, openapi.WithHTTPStatus(http.StatusNotFound))
	_ = r.AddOperation(postAttest)

	return r.Spec
}

// HealthStatus documents one entry of the /healthz body.
type HealthStatus struct {
	Status string `json:"status" enum:"ok,error"`
}

func handleOpenAPI() http.HandlerFunc {
	spec := newOpenAPISpec()
	data, _ := json.MarshalIndent(spec, "", "  ")

	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(data)
	}
}

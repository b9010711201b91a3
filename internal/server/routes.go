package server

import (
	"log/slog"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/swaggest/swgui/v5emb"

	"github.com/playperu/geooracle/internal/problembank"
)

func addRoutes(r chi.Router, logger *slog.Logger, deps Deps) {
	broker := NewBroker()

	r.Get("/openapi.json", handleOpenAPI())
	r.Mount("/docs", v5emb.New("Geo Oracle API", "/openapi.json", "/docs"))

	r.Get("/", handleInfo(deps))

	// Room lifecycle, mirrored from on-chain events by the client.
	r.Post("/create_room", handleCreateRoom(deps.Rooms))
	r.Post("/join_room", handleJoinRoom(deps.Rooms, broker))
	r.Post("/cancel_room", handleCancelRoom(deps.Rooms, broker))
	r.Post("/refund_room", handleRefundRoom(deps.Rooms, broker))
	r.Post("/submit", handleSubmitGuess(deps.Rooms, broker))

	r.Get("/rooms", handleListRooms(deps.Rooms))
	r.Get("/game/{gameID}", handleGetGame(deps.Rooms))
	r.Get("/game/{gameID}/events", handleEvents(deps.Rooms, broker))
	r.Get("/game/{gameID}/ws", handleGameSocket(logger, deps.Rooms, broker, deps.CORSOrigins))

	r.Get("/history", handleHistory(logger, deps.Evidence))
	r.Get("/leaderboard", handleLeaderboard(logger, deps.Evidence))

	if deps.AdminTokenHash != "" && deps.Signer != nil {
		r.Route("/admin", func(r chi.Router) {
			r.Use(adminAuthMiddleware(deps.AdminTokenHash))
			r.Post("/games/{gameID}/attest", handleAttest(logger, deps.Rooms, deps.Signer, broker))
		})
	}

	if deps.ProblemBankDir != "" {
		if info, err := os.Stat(deps.ProblemBankDir); err == nil && info.IsDir() {
			logger.Info("serving problem bank", "dir", deps.ProblemBankDir)
			r.Handle(problembank.AssetPrefix+"/*", handleAssets(problembank.AssetPrefix, deps.ProblemBankDir))
		}
	}
}

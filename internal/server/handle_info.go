package server

import (
	"net/http"

	"github.com/playperu/geooracle/internal/rooms"
)

type WalrusInfo struct {
	PublisherURL   string `json:"publisher_url"`
	Epochs         int    `json:"epochs"`
	RequireSuccess bool   `json:"require_success"`
}

// InfoResponse describes this oracle to clients building transactions.
type InfoResponse struct {
	Status            string         `json:"status"`
	OraclePubKey      string         `json:"oracle_pub_key"`
	OraclePubKeyBytes rooms.ByteList `json:"oracle_pub_key_bytes"`
	OracleAddress     string         `json:"oracle_address"`
	PackageID         string         `json:"package_id"`
	GameConfigID      string         `json:"game_config_id"`
	Walrus            WalrusInfo     `json:"walrus"`
}

func handleInfo(deps Deps) http.HandlerFunc {
	resp := InfoResponse{
		Status:       "Oracle Online",
		PackageID:    deps.Rooms.PackageID(),
		GameConfigID: deps.GameConfigID,
		Walrus: WalrusInfo{
			PublisherURL:   deps.Walrus.PublisherURL,
			Epochs:         deps.Walrus.Epochs,
			RequireSuccess: deps.Walrus.RequireSuccess,
		},
	}
	if deps.Signer != nil {
		resp.OraclePubKey = deps.Signer.PublicKeyHex()
		resp.OraclePubKeyBytes = deps.Signer.PublicKeyBytes()
		resp.OracleAddress = deps.Signer.Address()
	}

	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, resp)
	}
}

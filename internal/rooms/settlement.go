package rooms

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/playperu/geooracle/internal/attest"
	"github.com/playperu/geooracle/internal/geoguess"
	"github.com/playperu/geooracle/internal/walrus"
)

// Uploader persists a settlement snapshot and returns its content id.
type Uploader interface {
	Upload(ctx context.Context, snapshot any) (walrus.Result, error)
}

// Signer signs attestation messages with the oracle key.
type Signer interface {
	Sign(message []byte) ([]byte, error)
}

// Input is everything settlement needs, copied out of a session.
type Input struct {
	GameID    string
	PackageID string
	PlayerA   string
	PlayerB   string
	Stake     decimal.Decimal
	Target    geoguess.Target
	GuessA    geoguess.Guess
	GuessB    geoguess.Guess
}

// Outcome is a computed, uploaded and (normally) signed result. Signature is
// nil when signing failed; SignErr then says why.
type Outcome struct {
	Winner         string
	Loser          string
	Distances      map[string]float64
	BlobID         string
	StoredOnWalrus bool
	Source         string
	Signature      []byte
	SignErr        error
	SettledAt      time.Time
}

type coords struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Snapshot is the immutable evidence document uploaded for each game.
type Snapshot struct {
	GameID    string             `json:"game_id"`
	PackageID string             `json:"package_id"`
	Target    coords             `json:"target"`
	PlayerA   string             `json:"player_a"`
	PlayerB   string             `json:"player_b"`
	Winner    string             `json:"winner"`
	Loser     string             `json:"loser"`
	Stake     string             `json:"stake_amount_mist"`
	Guesses   map[string]coords  `json:"guesses"`
	Distances map[string]float64 `json:"distances_meters"`
	SettledAt float64            `json:"settled_at"`
}

// Engine scores a finished game, uploads the evidence snapshot and signs
// the result.
type Engine struct {
	uploader Uploader
	signer   Signer
	logger   *slog.Logger
	now      func() time.Time
}

func NewEngine(logger *slog.Logger, uploader Uploader, signer Signer) *Engine {
	return &Engine{
		uploader: uploader,
		signer:   signer,
		logger:   logger,
		now:      time.Now,
	}
}

// Settle only fails when the upload fails in strict mode. A signing failure
// is reported through Outcome.SignErr.
func (e *Engine) Settle(ctx context.Context, in Input) (Outcome, error) {
	target := in.Target.Point()
	distA := geoguess.Distance(in.GuessA, target)
	distB := geoguess.Distance(in.GuessB, target)
	winner, loser := geoguess.Winner(in.PlayerA, in.PlayerB, distA, distB)

	settledAt := e.now()
	distances := map[string]float64{in.PlayerA: distA, in.PlayerB: distB}
	snap := Snapshot{
		GameID:    in.GameID,
		PackageID: in.PackageID,
		Target:    coords{Lat: in.Target.Lat, Lon: in.Target.Lon},
		PlayerA:   in.PlayerA,
		PlayerB:   in.PlayerB,
		Winner:    winner,
		Loser:     loser,
		Stake:     in.Stake.String(),
		Guesses: map[string]coords{
			in.PlayerA: {Lat: in.GuessA.Lat, Lon: in.GuessA.Lon},
			in.PlayerB: {Lat: in.GuessB.Lat, Lon: in.GuessB.Lon},
		},
		Distances: distances,
		SettledAt: unixSeconds(settledAt),
	}

	res, err := e.uploader.Upload(ctx, snap)
	if err != nil {
		return Outcome{}, fmt.Errorf("%w: uploading snapshot: %w", ErrSettlement, err)
	}

	out := Outcome{
		Winner:         winner,
		Loser:          loser,
		Distances:      distances,
		BlobID:         res.BlobID,
		StoredOnWalrus: res.StoredOnWalrus,
		Source:         res.Source,
		SettledAt:      settledAt,
	}
	out.Signature, out.SignErr = e.sign(in.GameID, winner, res.BlobID)
	if out.SignErr != nil {
		e.logger.Error("signing failed, game settled without signature",
			"game_id", in.GameID,
			"error", out.SignErr,
		)
	}
	return out, nil
}

func (e *Engine) sign(gameID, winner, blobID string) ([]byte, error) {
	msg, err := attest.Message(gameID, winner, blobID)
	if err != nil {
		return nil, err
	}
	sig, err := e.signer.Sign(msg)
	if err != nil {
		return nil, fmt.Errorf("signing: %w", err)
	}
	return sig, nil
}

func unixSeconds(t time.Time) float64 {
	return float64(t.UnixNano()) / 1e9
}

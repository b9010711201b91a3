// Package geoguess defines the core domain types of the location wager game:
// targets, guesses and settlement records, plus the pure scoring
// rules shared by the registry and the evidence store.
package geoguess

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

// Target is the geographic point players must guess.
type Target struct {
	ID         string  `json:"id,omitempty"`
	Lat        float64 `json:"lat"`
	Lon        float64 `json:"lon"`
	ImageURL   string  `json:"image_url,omitempty"`
	Hint       string  `json:"hint,omitempty"`
	Difficulty string  `json:"difficulty,omitempty"`
}

// Point returns the target coordinates as a Guess-shaped value.
func (t Target) Point() Guess {
	return Guess{Lat: t.Lat, Lon: t.Lon}
}

type Status string

const (
	StatusWaiting Status = "waiting"
	StatusActive  Status = "active"
	StatusSettled Status = "settled"
)

// Guess is a submitted (latitude, longitude) pair. It encodes as a two
// element JSON array, the shape clients already consume.
type Guess struct {
	Lat float64
	Lon float64
}

func (g Guess) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{g.Lat, g.Lon})
}

func (g *Guess) UnmarshalJSON(data []byte) error {
	var pair [2]float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("decoding guess: %w", err)
	}
	g.Lat, g.Lon = pair[0], pair[1]
	return nil
}

// SettlementRecord is one evidence store entry. Amounts are integers in the
// smallest unit of the staked asset and encode as JSON strings.
type SettlementRecord struct {
	GameID         string          `json:"game_id"`
	Winner         string          `json:"winner"`
	Loser          string          `json:"loser"`
	StakeAmount    decimal.Decimal `json:"stake_amount_mist"`
	PayoutAmount   decimal.Decimal `json:"payout_mist"`
	NetWinAmount   decimal.Decimal `json:"net_win_mist"`
	SettledAt      float64         `json:"settled_at"`
	WalrusBlobID   string          `json:"walrus_blob_id"`
	StoredOnWalrus bool            `json:"stored_on_walrus"`
}

// NewSettlementRecord derives payout (twice the stake) and net win (the
// stake) from the stake amount.
func NewSettlementRecord(gameID, winner, loser string, stake decimal.Decimal, settledAt float64, blobID string, remote bool) SettlementRecord {
	return SettlementRecord{
		GameID:         gameID,
		Winner:         winner,
		Loser:          loser,
		StakeAmount:    stake,
		PayoutAmount:   stake.Mul(decimal.NewFromInt(2)),
		NetWinAmount:   stake,
		SettledAt:      settledAt,
		WalrusBlobID:   blobID,
		StoredOnWalrus: remote,
	}
}

// earthRadiusMeters is the IUGG mean earth radius.
const earthRadiusMeters = 6371008.8

// Distance returns the great-circle distance between a and b in meters on a
// spherical earth.
func Distance(a, b Guess) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := lat2 - lat1
	dLon := (b.Lon - a.Lon) * math.Pi / 180

	h := math.Pow(math.Sin(dLat/2), 2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Pow(math.Sin(dLon/2), 2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}

// Winner picks the player whose guess landed closer to the target. An exact
// tie goes to playerA.
func Winner(playerA, playerB string, distA, distB float64) (winner, loser string) {
	if distA <= distB {
		return playerA, playerB
	}
	return playerB, playerA
}

// MaxStakeDigits bounds stake amounts to the width of a u256.
const MaxStakeDigits = 78

// ParseStake parses a positive base-10 integer written as plain digits.
// Signs, fractions, exponents and separators are rejected.
func ParseStake(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, errors.New("stake is empty")
	}
	if len(s) > MaxStakeDigits {
		return decimal.Zero, fmt.Errorf("stake longer than %d digits", MaxStakeDigits)
	}
	for _, c := range s {
		if c < '0' || c > '9' {
			return decimal.Zero, fmt.Errorf("stake %q is not a base-10 integer", s)
		}
	}
	n, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return decimal.Zero, fmt.Errorf("stake %q is not a base-10 integer", s)
	}
	if n.Sign() <= 0 {
		return decimal.Zero, fmt.Errorf("stake %q must be greater than zero", s)
	}
	return decimal.NewFromBigInt(n, 0), nil
}

package rooms

import (
	"encoding/json"

	"github.com/playperu/geooracle/internal/attest"
	"github.com/playperu/geooracle/internal/geoguess"
)

// ByteList encodes as a JSON array of byte values, the form the contract
// client passes straight into a vector<u8> argument. A nil list encodes as null.
type ByteList []byte

func (b ByteList) MarshalJSON() ([]byte, error) {
	if b == nil {
		return []byte("null"), nil
	}
	ints := make([]int, len(b))
	for i, v := range b {
		ints[i] = int(v)
	}
	return json.Marshal(ints)
}

// Game is the public view of a session.
type Game struct {
	ID                string                    `json:"id"`
	PackageID         string                    `json:"package_id"`
	PlayerA           string                    `json:"player_a"`
	StakeAmount       string                    `json:"stake_amount_mist"`
	PlayerB           *string                   `json:"player_b"`
	Status            geoguess.Status           `json:"status"`
	Guesses           map[string]geoguess.Guess `json:"guesses"`
	StartTime         float64                   `json:"start_time"`
	Winner            *string                   `json:"winner"`
	Signature         ByteList                  `json:"signature"`
	WalrusBlobID      *string                   `json:"walrus_blob_id"`
	WalrusBlobIDBytes ByteList                  `json:"walrus_blob_id_bytes"`
	StoredOnWalrus    bool                      `json:"stored_on_walrus"`
	WalrusSource      *string                   `json:"walrus_source"`
	Distances         map[string]float64        `json:"distances"`
	TargetImage       *string                   `json:"target_image"`
	TargetHint        *string                   `json:"target_hint"`
	TargetDifficulty  *string                   `json:"target_difficulty"`
	TargetProblemID   *string                   `json:"target_problem_id"`
}

// WaitingRoom is a joinable room in the lobby listing.
type WaitingRoom struct {
	GameID      string `json:"game_id"`
	PlayerA     string `json:"player_a"`
	StakeAmount string `json:"stake_amount_mist"`
}

func (s *session) view() Game {
	g := Game{
		ID:                s.id,
		PackageID:         s.packageID,
		PlayerA:           s.playerA,
		StakeAmount:       s.stake.String(),
		PlayerB:           optional(s.playerB),
		Status:            s.status,
		Guesses:           make(map[string]geoguess.Guess, len(s.guesses)),
		StartTime:         unixSeconds(s.startTime),
		Winner:            optional(s.winner),
		WalrusBlobID:      optional(s.blobID),
		WalrusBlobIDBytes: append(ByteList{}, s.blobID...),
		StoredOnWalrus:    s.storedOnWalrus,
		WalrusSource:      optional(s.source),
		Distances:         make(map[string]float64, len(s.distances)),
		TargetImage:       optional(s.target.ImageURL),
		TargetHint:        optional(s.target.Hint),
		TargetDifficulty:  optional(s.target.Difficulty),
		TargetProblemID:   optional(s.target.ID),
	}
	if s.signature != nil {
		g.Signature = append(ByteList(nil), s.signature...)
	}
	for k, v := range s.guesses {
		g.Guesses[k] = v
	}
	for k, v := range s.distances {
		g.Distances[k] = v
	}
	return g
}

func attestMessage(s *session) ([]byte, error) {
	return attest.Message(s.id, s.winner, s.blobID)
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Package rooms runs the wager session lifecycle: creating, joining,
// cancelling and refunding rooms, collecting guesses and settling a game
// once both players have guessed.
//
// Address checks here are consistency checks only. Fund custody and
// address ownership are enforced by the on-chain contract.
package rooms

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/playperu/geooracle/internal/evidence"
	"github.com/playperu/geooracle/internal/geoguess"
)

// Catalog hands out puzzle targets.
type Catalog interface {
	Pick() geoguess.Target
}

type session struct {
	seq       uint64
	id        string
	packageID string
	playerA   string
	playerB   string
	stake     decimal.Decimal
	status    geoguess.Status
	target    geoguess.Target
	guesses   map[string]geoguess.Guess
	startTime time.Time

	// settling is set while upload and signing run outside the lock. No
	// transition is legal until it clears.
	settling bool

	winner         string
	signature      []byte
	distances      map[string]float64
	blobID         string
	storedOnWalrus bool
	source         string
}

func (s *session) participant(addr string) bool {
	return addr == s.playerA || (s.playerB != "" && addr == s.playerB)
}

// Registry is the in-memory set of live sessions. Every transition runs its
// read-check-mutate sequence under mu.
type Registry struct {
	packageID string
	catalog   Catalog
	engine    *Engine
	evidence  evidence.Store
	logger    *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	seq      uint64
	sessions map[string]*session
}

func NewRegistry(logger *slog.Logger, packageID string, catalog Catalog, engine *Engine, store evidence.Store) *Registry {
	return &Registry{
		packageID: packageID,
		catalog:   catalog,
		engine:    engine,
		evidence:  store,
		logger:    logger,
		now:       time.Now,
		sessions:  make(map[string]*session),
	}
}

// PackageID is the deployment generation new rooms are bound to.
func (r *Registry) PackageID() string { return r.packageID }

// Create opens a waiting room with a random target.
func (r *Registry) Create(gameID, playerA, stakeAmount string) error {
	stake, err := geoguess.ParseStake(stakeAmount)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidStake, err)
	}

	r.mu.Lock()
	if _, ok := r.sessions[gameID]; ok {
		r.mu.Unlock()
		return ErrExists
	}
	r.seq++
	r.sessions[gameID] = &session{
		seq:       r.seq,
		id:        gameID,
		packageID: r.packageID,
		playerA:   playerA,
		stake:     stake,
		status:    geoguess.StatusWaiting,
		target:    r.catalog.Pick(),
		guesses:   make(map[string]geoguess.Guess, 2),
		startTime: r.now(),
	}
	r.mu.Unlock()

	r.logger.Info("room created", "game_id", gameID, "player_a", playerA, "stake", stake.String())
	return nil
}

// Join seats playerB and starts the game.
func (r *Registry) Join(gameID, playerB string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[gameID]
	if !ok {
		return ErrNotFound
	}
	if s.status != geoguess.StatusWaiting {
		return ErrNotWaiting
	}
	if s.packageID != r.packageID {
		return ErrStaleDeployment
	}
	if playerB == s.playerA {
		return ErrSelfJoin
	}

	s.playerB = playerB
	s.status = geoguess.StatusActive
	s.startTime = r.now()
	r.logger.Info("room joined", "game_id", gameID, "player_b", playerB)
	return nil
}

// Cancel removes a waiting room on behalf of its creator.
func (r *Registry) Cancel(gameID, requester string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[gameID]
	if !ok {
		return ErrNotFound
	}
	if s.status != geoguess.StatusWaiting {
		return ErrNotWaiting
	}
	if s.playerA != requester {
		return ErrNotCreator
	}

	delete(r.sessions, gameID)
	r.logger.Info("room cancelled", "game_id", gameID)
	return nil
}

// Refund removes an active room whose stakes are being returned on-chain.
func (r *Registry) Refund(gameID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[gameID]
	if !ok {
		return ErrNotFound
	}
	if s.status != geoguess.StatusActive || s.settling {
		return ErrNotActive
	}

	delete(r.sessions, gameID)
	r.logger.Info("room refunded", "game_id", gameID)
	return nil
}

// Submit records a participant's guess, replacing any earlier one. The
// guess that completes the pair settles the game before Submit returns;
// settled reports whether that happened.
func (r *Registry) Submit(ctx context.Context, gameID, player string, guess geoguess.Guess) (settled bool, err error) {
	r.mu.Lock()
	s, ok := r.sessions[gameID]
	if !ok {
		r.mu.Unlock()
		return false, ErrNotFound
	}
	if s.status != geoguess.StatusActive || s.settling {
		r.mu.Unlock()
		return false, ErrNotActive
	}
	if !s.participant(player) {
		r.mu.Unlock()
		return false, ErrNotParticipant
	}

	s.guesses[player] = guess
	if len(s.guesses) < 2 {
		r.mu.Unlock()
		return false, nil
	}

	s.settling = true
	in := Input{
		GameID:    s.id,
		PackageID: s.packageID,
		PlayerA:   s.playerA,
		PlayerB:   s.playerB,
		Stake:     s.stake,
		Target:    s.target,
		GuessA:    s.guesses[s.playerA],
		GuessB:    s.guesses[s.playerB],
	}
	r.mu.Unlock()

	// The settling flag keeps s in the map until it clears below.
	out, err := r.engine.Settle(context.WithoutCancel(ctx), in)

	r.mu.Lock()
	s.settling = false
	if err != nil {
		r.mu.Unlock()
		r.logger.Error("settlement failed", "game_id", gameID, "error", err)
		return false, err
	}
	s.status = geoguess.StatusSettled
	s.winner = out.Winner
	s.distances = out.Distances
	s.blobID = out.BlobID
	s.storedOnWalrus = out.StoredOnWalrus
	s.source = out.Source
	s.signature = out.Signature
	r.mu.Unlock()

	r.logger.Info("game settled",
		"game_id", gameID,
		"winner", out.Winner,
		"blob_id", out.BlobID,
		"stored_on_walrus", out.StoredOnWalrus,
		"signed", out.Signature != nil,
	)

	if in.Stake.IsPositive() {
		rec := geoguess.NewSettlementRecord(gameID, out.Winner, out.Loser, in.Stake,
			unixSeconds(out.SettledAt), out.BlobID, out.StoredOnWalrus)
		if err := r.evidence.Append(context.WithoutCancel(ctx), rec); err != nil {
			r.logger.Error("failed to save settlement record", "game_id", gameID, "error", err)
		}
	}
	return true, nil
}

// Attest re-signs a settled game that has no signature yet. Games that are
// already signed are returned unchanged.
func (r *Registry) Attest(gameID string, signer Signer) (Game, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[gameID]
	if !ok {
		return Game{}, ErrNotFound
	}
	if s.status != geoguess.StatusSettled {
		return Game{}, ErrNotSettled
	}
	if s.signature == nil {
		msg, err := attestMessage(s)
		if err != nil {
			return Game{}, fmt.Errorf("%w: %w", ErrAttestation, err)
		}
		sig, err := signer.Sign(msg)
		if err != nil {
			return Game{}, fmt.Errorf("%w: %w", ErrAttestation, err)
		}
		s.signature = sig
		r.logger.Info("game re-attested", "game_id", gameID)
	}
	return s.view(), nil
}

// Game returns a snapshot of one session.
func (r *Registry) Game(gameID string) (Game, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.sessions[gameID]
	if !ok {
		return Game{}, ErrNotFound
	}
	return s.view(), nil
}

// Waiting lists joinable rooms of the current deployment in creation order.
func (r *Registry) Waiting() []WaitingRoom {
	r.mu.Lock()
	defer r.mu.Unlock()

	open := slices.SortedFunc(maps.Values(r.sessions), func(a, b *session) int {
		return cmp.Compare(a.seq, b.seq)
	})
	rooms := make([]WaitingRoom, 0, len(open))
	for _, s := range open {
		if s.status != geoguess.StatusWaiting || s.packageID != r.packageID {
			continue
		}
		rooms = append(rooms, WaitingRoom{
			GameID:      s.id,
			PlayerA:     s.playerA,
			StakeAmount: s.stake.String(),
		})
	}
	return rooms
}

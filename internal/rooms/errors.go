package rooms

import "errors"

var (
	ErrNotFound        = errors.New("game not found")
	ErrExists          = errors.New("game id already exists")
	ErrInvalidStake    = errors.New("invalid stake amount")
	ErrNotWaiting      = errors.New("game is not waiting for players")
	ErrNotActive       = errors.New("game not active")
	ErrNotSettled      = errors.New("game is not settled")
	ErrStaleDeployment = errors.New("room belongs to an older deployment")
	ErrSelfJoin        = errors.New("cannot join your own room")
	ErrNotCreator      = errors.New("only creator can cancel waiting game")
	ErrNotParticipant  = errors.New("player is not part of this game")
	ErrSettlement      = errors.New("settlement failed")
	ErrAttestation     = errors.New("attestation failed")
)

package server

import (
	"encoding/json"
	"sync"
)

// GameEvent is the payload published to a game's subscribers.
type GameEvent struct {
	Type   string `json:"type"`
	GameID string `json:"gameId"`
	Player string `json:"player,omitempty"`
	Winner string `json:"winner,omitempty"`
}

const (
	eventPlayerJoined   = "player_joined"
	eventGuessSubmitted = "guess_submitted"
	eventGameSettled    = "game_settled"
	eventRoomCancelled  = "room_cancelled"
	eventRoomRefunded   = "room_refunded"
)

// Broker is an in-process pub/sub for SSE events, keyed by game ID.
type Broker struct {
	mu   sync.RWMutex
	subs map[string]map[chan []byte]struct{}
}

func NewBroker() *Broker {
	return &Broker{
		subs: make(map[string]map[chan []byte]struct{}),
	}
}

// Subscribe returns a channel that receives JSON-encoded events for the game.
func (b *Broker) Subscribe(gameID string) chan []byte {
	ch := make(chan []byte, 16)
	b.mu.Lock()
	if b.subs[gameID] == nil {
		b.subs[gameID] = make(map[chan []byte]struct{})
	}
	b.subs[gameID][ch] = struct{}{}
	b.mu.Unlock()
	return ch
}

// Unsubscribe removes a channel from the game's subscribers.
func (b *Broker) Unsubscribe(gameID string, ch chan []byte) {
	b.mu.Lock()
	delete(b.subs[gameID], ch)
	if len(b.subs[gameID]) == 0 {
		delete(b.subs, gameID)
	}
	b.mu.Unlock()
}

// Publish fans an event out to the game's subscribers without blocking.
func (b *Broker) Publish(event GameEvent) {
	data, _ := json.Marshal(event)
	b.mu.RLock()
	for ch := range b.subs[event.GameID] {
		select {
		case ch <- data:
		default:
			// Slow subscriber; it will catch up from GET /game/{id}.
		}
	}
	b.mu.RUnlock()
}

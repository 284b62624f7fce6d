package presence

import (
	"sort"
	"time"
)

// Store keeps one Player per connection id.
type Store struct {
	players map[string]*Player
}

// NewStore creates an empty presence store.
func NewStore() *Store {
	return &Store{players: make(map[string]*Player)}
}

// Put inserts or replaces the player with p.ID.
func (s *Store) Put(p Player) {
	s.players[p.ID] = &p
}

// Get returns the player owned by connection id.
func (s *Store) Get(id string) (Player, bool) {
	p, ok := s.players[id]
	if !ok {
		return Player{}, false
	}
	return *p, true
}

// Has reports whether connection id owns a player.
func (s *Store) Has(id string) bool {
	_, ok := s.players[id]
	return ok
}

// Move overwrites the location of an existing player.
func (s *Store) Move(id string, pos Position, now time.Time) (Player, bool) {
	p, ok := s.players[id]
	if !ok {
		return Player{}, false
	}
	p.X, p.Y, p.Direction = pos.X, pos.Y, pos.Direction
	p.UpdatedAt = now
	return *p, true
}

// Remove deletes and returns the player owned by connection id.
func (s *Store) Remove(id string) (Player, bool) {
	p, ok := s.players[id]
	if !ok {
		return Player{}, false
	}
	delete(s.players, id)
	return *p, true
}

// List returns all players ordered by join time.
func (s *Store) List() []Player {
	out := make([]Player, 0, len(s.players))
	for _, p := range s.players {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ConnectedAt.Equal(out[j].ConnectedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].ConnectedAt.Before(out[j].ConnectedAt)
	})
	return out
}

// Len returns the number of players.
func (s *Store) Len() int {
	return len(s.players)
}

package memory

import (
	"context"
	"sort"
	"sync"

	"trivia-service/internal/domain"
)

// Scoreboard keeps players and scores in process. It implements app.ScoreLedger and app.Players.
type Scoreboard struct {
	mu      sync.RWMutex
	players map[int64]*domain.Player
}

func NewScoreboard() *Scoreboard {
	return &Scoreboard{players: make(map[int64]*domain.Player)}
}

func (s *Scoreboard) AddScore(_ context.Context, participantID int64, delta int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playerLocked(participantID).Score += delta
	return nil
}

func (s *Scoreboard) Score(_ context.Context, participantID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if p, ok := s.players[participantID]; ok {
		return p.Score, nil
	}
	return 0, nil
}

func (s *Scoreboard) RegisterPlayer(_ context.Context, userID int64, displayName string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.playerLocked(userID).DisplayName = displayName
	return nil
}

// Leaderboard orders by score, then by name.
func (s *Scoreboard) Leaderboard(_ context.Context, limit int) ([]domain.LeaderboardEntry, error) {
	s.mu.RLock()
	entries := make([]domain.LeaderboardEntry, 0, len(s.players))
	for _, p := range s.players {
		entries = append(entries, domain.LeaderboardEntry{
			UserID:      p.UserID,
			DisplayName: p.DisplayName,
			Score:       p.Score,
		})
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Score != entries[j].Score {
			return entries[i].Score > entries[j].Score
		}
		return entries[i].DisplayName < entries[j].DisplayName
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (s *Scoreboard) playerLocked(userID int64) *domain.Player {
	p, ok := s.players[userID]
	if !ok {
		p = &domain.Player{UserID: userID}
		s.players[userID] = p
	}
	return p
}

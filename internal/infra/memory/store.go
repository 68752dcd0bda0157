package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vaywinar/cerdas-cermat/internal/domain"
)

// Store is an in-memory implementation of game.Store. It is the default
// backend when no Redis is configured; state lives for the process
// lifetime only.
type Store struct {
	mu       sync.RWMutex
	clock    func() time.Time
	players  map[int]domain.Player
	sessions map[int]domain.GameSession
	answers  map[int]domain.PlayerAnswer

	nextPlayerID  int
	nextSessionID int
	nextAnswerID  int
}

func NewStore() *Store {
	return NewStoreWithClock(time.Now)
}

// NewStoreWithClock allows deterministic timestamps in tests.
func NewStoreWithClock(clock func() time.Time) *Store {
	return &Store{
		clock:         clock,
		players:       make(map[int]domain.Player),
		sessions:      make(map[int]domain.GameSession),
		answers:       make(map[int]domain.PlayerAnswer),
		nextPlayerID:  1,
		nextSessionID: 1,
		nextAnswerID:  1,
	}
}

func (s *Store) Player(_ context.Context, id int) (domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	player, ok := s.players[id]
	if !ok {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	return player, nil
}

func (s *Store) PlayerBySessionID(_ context.Context, sessionID string) (domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, player := range s.players {
		if player.SessionID == sessionID {
			return player, nil
		}
	}
	return domain.Player{}, domain.ErrPlayerNotFound
}

func (s *Store) CreatePlayer(_ context.Context, name, sessionID string) (domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	player := domain.Player{
		ID:        s.nextPlayerID,
		Name:      name,
		SessionID: sessionID,
		CreatedAt: s.clock(),
	}
	s.nextPlayerID++
	s.players[player.ID] = player
	return player, nil
}

func (s *Store) Players(_ context.Context) ([]domain.Player, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	players := make([]domain.Player, 0, len(s.players))
	for _, player := range s.players {
		players = append(players, player)
	}
	sort.Slice(players, func(i, j int) bool { return players[i].ID < players[j].ID })
	return players, nil
}

// Leaderboard returns all players ordered by score descending. Tie order
// falls back to registration order.
func (s *Store) Leaderboard(ctx context.Context) ([]domain.Player, error) {
	players, err := s.Players(ctx)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(players, func(i, j int) bool { return players[i].Score > players[j].Score })
	return players, nil
}

func (s *Store) CreateSession(_ context.Context, round int, mode domain.GameMode) (domain.GameSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session := domain.GameSession{
		ID:        s.nextSessionID,
		Round:     round,
		Mode:      mode,
		Status:    domain.StatusActive,
		CreatedAt: s.clock(),
	}
	s.nextSessionID++
	s.sessions[session.ID] = session
	return session, nil
}

func (s *Store) SetCurrentQuestion(_ context.Context, sessionID, questionID int) (domain.GameSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.GameSession{}, domain.ErrSessionNotFound
	}
	session.CurrentQuestionID = questionID
	s.sessions[sessionID] = session
	return session, nil
}

func (s *Store) CompleteSession(_ context.Context, sessionID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, ok := s.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	session.Status = domain.StatusCompleted
	s.sessions[sessionID] = session
	return nil
}

func (s *Store) RecordAnswer(_ context.Context, answer domain.PlayerAnswer) (domain.PlayerAnswer, domain.Player, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	player, ok := s.players[answer.PlayerID]
	if !ok {
		return domain.PlayerAnswer{}, domain.Player{}, domain.ErrPlayerNotFound
	}

	answer.ID = s.nextAnswerID
	answer.CreatedAt = s.clock()
	s.nextAnswerID++
	s.answers[answer.ID] = answer

	player.Score += answer.PointsAwarded
	s.players[player.ID] = player
	return answer, player, nil
}

// Session looks up a game session by id.
func (s *Store) Session(_ context.Context, id int) (domain.GameSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	session, ok := s.sessions[id]
	if !ok {
		return domain.GameSession{}, domain.ErrSessionNotFound
	}
	return session, nil
}

// AnswersForPlayer returns the audit trail of one player's submissions.
func (s *Store) AnswersForPlayer(_ context.Context, playerID int) ([]domain.PlayerAnswer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	answers := make([]domain.PlayerAnswer, 0)
	for _, answer := range s.answers {
		if answer.PlayerID == playerID {
			answers = append(answers, answer)
		}
	}
	sort.Slice(answers, func(i, j int) bool { return answers[i].ID < answers[j].ID })
	return answers, nil
}

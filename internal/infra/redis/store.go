package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/vaywinar/cerdas-cermat/internal/domain"
)

// Store is a Redis-backed implementation of game.Store.
// Layout:
//   - player profiles as JSON at player:{id}
//   - session-id -> player-id index in the hash players:session
//   - scores in the sorted set players:score (member = player id), which
//     doubles as the leaderboard
//   - game sessions as JSON at game:{id}
//   - answer records appended to the list answers
//
// Scores live only in the sorted set so a point delta is a single
// ZINCRBY; profiles never go stale.
type Store struct {
	client *redis.Client
	clock  func() time.Time
}

func NewStore(client *redis.Client) *Store {
	return &Store{client: client, clock: time.Now}
}

const (
	keySessionIndex  = "players:session"
	keyScores        = "players:score"
	keyAnswers       = "answers"
	keyNextPlayerID  = "players:next_id"
	keyNextSessionID = "games:next_id"
	keyNextAnswerID  = "answers:next_id"
)

func playerKey(id int) string  { return "player:" + strconv.Itoa(id) }
func sessionKey(id int) string { return "game:" + strconv.Itoa(id) }

func (s *Store) Player(ctx context.Context, id int) (domain.Player, error) {
	raw, err := s.client.Get(ctx, playerKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	if err != nil {
		return domain.Player{}, fmt.Errorf("load player: %w", err)
	}
	var player domain.Player
	if err := json.Unmarshal(raw, &player); err != nil {
		return domain.Player{}, fmt.Errorf("unmarshal player: %w", err)
	}

	score, err := s.client.ZScore(ctx, keyScores, strconv.Itoa(id)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return domain.Player{}, fmt.Errorf("load score: %w", err)
	}
	player.Score = int(score)
	return player, nil
}

func (s *Store) PlayerBySessionID(ctx context.Context, sessionID string) (domain.Player, error) {
	idStr, err := s.client.HGet(ctx, keySessionIndex, sessionID).Result()
	if errors.Is(err, redis.Nil) {
		return domain.Player{}, domain.ErrPlayerNotFound
	}
	if err != nil {
		return domain.Player{}, fmt.Errorf("load session index: %w", err)
	}
	id, err := strconv.Atoi(idStr)
	if err != nil {
		return domain.Player{}, fmt.Errorf("corrupt session index: %w", err)
	}
	return s.Player(ctx, id)
}

func (s *Store) CreatePlayer(ctx context.Context, name, sessionID string) (domain.Player, error) {
	id, err := s.client.Incr(ctx, keyNextPlayerID).Result()
	if err != nil {
		return domain.Player{}, fmt.Errorf("allocate player id: %w", err)
	}

	player := domain.Player{
		ID:        int(id),
		Name:      name,
		SessionID: sessionID,
		CreatedAt: s.clock(),
	}
	raw, err := json.Marshal(player)
	if err != nil {
		return domain.Player{}, err
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, playerKey(player.ID), raw, 0)
	pipe.HSet(ctx, keySessionIndex, sessionID, player.ID)
	pipe.ZAdd(ctx, keyScores, redis.Z{Score: 0, Member: strconv.Itoa(player.ID)})
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.Player{}, fmt.Errorf("store player: %w", err)
	}
	return player, nil
}

func (s *Store) Players(ctx context.Context) ([]domain.Player, error) {
	// The score set holds every registered player id.
	members, err := s.client.ZRange(ctx, keyScores, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list players: %w", err)
	}
	players := make([]domain.Player, 0, len(members))
	for _, member := range members {
		id, err := strconv.Atoi(member)
		if err != nil {
			continue
		}
		player, err := s.Player(ctx, id)
		if err != nil {
			continue
		}
		players = append(players, player)
	}
	return players, nil
}

func (s *Store) Leaderboard(ctx context.Context) ([]domain.Player, error) {
	entries, err := s.client.ZRevRangeWithScores(ctx, keyScores, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load leaderboard: %w", err)
	}
	players := make([]domain.Player, 0, len(entries))
	for _, entry := range entries {
		member, ok := entry.Member.(string)
		if !ok {
			continue
		}
		id, err := strconv.Atoi(member)
		if err != nil {
			continue
		}
		player, err := s.Player(ctx, id)
		if err != nil {
			continue
		}
		players = append(players, player)
	}
	return players, nil
}

func (s *Store) CreateSession(ctx context.Context, round int, mode domain.GameMode) (domain.GameSession, error) {
	id, err := s.client.Incr(ctx, keyNextSessionID).Result()
	if err != nil {
		return domain.GameSession{}, fmt.Errorf("allocate session id: %w", err)
	}
	session := domain.GameSession{
		ID:        int(id),
		Round:     round,
		Mode:      mode,
		Status:    domain.StatusActive,
		CreatedAt: s.clock(),
	}
	if err := s.writeSession(ctx, session); err != nil {
		return domain.GameSession{}, err
	}
	return session, nil
}

func (s *Store) SetCurrentQuestion(ctx context.Context, sessionID, questionID int) (domain.GameSession, error) {
	session, err := s.session(ctx, sessionID)
	if err != nil {
		return domain.GameSession{}, err
	}
	session.CurrentQuestionID = questionID
	if err := s.writeSession(ctx, session); err != nil {
		return domain.GameSession{}, err
	}
	return session, nil
}

func (s *Store) CompleteSession(ctx context.Context, sessionID int) error {
	session, err := s.session(ctx, sessionID)
	if err != nil {
		return err
	}
	session.Status = domain.StatusCompleted
	return s.writeSession(ctx, session)
}

func (s *Store) RecordAnswer(ctx context.Context, answer domain.PlayerAnswer) (domain.PlayerAnswer, domain.Player, error) {
	player, err := s.Player(ctx, answer.PlayerID)
	if err != nil {
		return domain.PlayerAnswer{}, domain.Player{}, err
	}

	id, err := s.client.Incr(ctx, keyNextAnswerID).Result()
	if err != nil {
		return domain.PlayerAnswer{}, domain.Player{}, fmt.Errorf("allocate answer id: %w", err)
	}
	answer.ID = int(id)
	answer.CreatedAt = s.clock()

	raw, err := json.Marshal(answer)
	if err != nil {
		return domain.PlayerAnswer{}, domain.Player{}, err
	}

	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, keyAnswers, raw)
	incr := pipe.ZIncrBy(ctx, keyScores, float64(answer.PointsAwarded), strconv.Itoa(answer.PlayerID))
	if _, err := pipe.Exec(ctx); err != nil {
		return domain.PlayerAnswer{}, domain.Player{}, fmt.Errorf("record answer: %w", err)
	}

	player.Score = int(incr.Val())
	return answer, player, nil
}

func (s *Store) session(ctx context.Context, id int) (domain.GameSession, error) {
	raw, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.GameSession{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.GameSession{}, fmt.Errorf("load session: %w", err)
	}
	var session domain.GameSession
	if err := json.Unmarshal(raw, &session); err != nil {
		return domain.GameSession{}, fmt.Errorf("unmarshal session: %w", err)
	}
	return session, nil
}

func (s *Store) writeSession(ctx context.Context, session domain.GameSession) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, sessionKey(session.ID), raw, 0).Err(); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

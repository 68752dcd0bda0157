package redis

import (
	"context"
	"encoding/json"
	"errors"
	"math/rand"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/vaywinar/cerdas-cermat/internal/domain"
)

// QuestionLoader fetches quiz content from a backing store (e.g., Postgres).
type QuestionLoader interface {
	LoadQuestions(ctx context.Context) ([]domain.Question, error)
}

// QuestionCatalog caches the question set in Redis as a JSON blob with a
// TTL and falls back to a loader on cache miss. The catalog is shared, so
// a restarted process reuses a warm cache.
type QuestionCatalog struct {
	client *redis.Client
	loader QuestionLoader
	ttl    time.Duration
	sf     singleflight.Group
	rnd    *rand.Rand
}

const keyCatalog = "questions:catalog"

func NewQuestionCatalog(client *redis.Client, loader QuestionLoader, ttl time.Duration) *QuestionCatalog {
	return &QuestionCatalog{
		client: client,
		loader: loader,
		ttl:    ttl,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (c *QuestionCatalog) Questions(ctx context.Context) ([]domain.Question, error) {
	if cached, ok := c.fromCache(ctx); ok {
		return cached, nil
	}

	result, err, _ := c.sf.Do(keyCatalog, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		if cached, ok := c.fromCache(ctx); ok {
			return cached, nil
		}

		questions, err := c.loader.LoadQuestions(ctx)
		if err != nil {
			return nil, err
		}

		raw, err := json.Marshal(questions)
		if err != nil {
			return nil, err
		}
		// best-effort cache fill
		_ = c.client.Set(ctx, keyCatalog, raw, c.ttlWithJitter()).Err()
		return questions, nil
	})
	if err != nil {
		return nil, err
	}
	return result.([]domain.Question), nil
}

func (c *QuestionCatalog) QuestionsByType(ctx context.Context, t domain.QuestionType) ([]domain.Question, error) {
	questions, err := c.Questions(ctx)
	if err != nil {
		return nil, err
	}
	matching := make([]domain.Question, 0, len(questions))
	for _, q := range questions {
		if q.Type == t {
			matching = append(matching, q)
		}
	}
	return matching, nil
}

func (c *QuestionCatalog) fromCache(ctx context.Context) ([]domain.Question, bool) {
	raw, err := c.client.Get(ctx, keyCatalog).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		return nil, false
	}
	var questions []domain.Question
	if err := json.Unmarshal(raw, &questions); err != nil {
		return nil, false
	}
	return questions, true
}

func (c *QuestionCatalog) ttlWithJitter() time.Duration {
	if c.ttl <= 0 {
		return 0
	}
	jitterMax := int64(c.ttl) / 10
	return c.ttl + time.Duration(c.rnd.Int63n(jitterMax+1))
}

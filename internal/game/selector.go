package game

import (
	"math/rand"

	"github.com/vaywinar/cerdas-cermat/internal/domain"
)

// pickQuestion returns a uniformly random question from pool, excluding
// at most the single id of the previously shown question. Only the
// immediately prior question is excluded, not the full history; repeats
// across a long round are possible and intentional.
func pickQuestion(pool []domain.Question, excludeID int, rnd *rand.Rand) (domain.Question, error) {
	eligible := make([]domain.Question, 0, len(pool))
	for _, q := range pool {
		if q.ID != excludeID {
			eligible = append(eligible, q)
		}
	}
	if len(eligible) == 0 {
		return domain.Question{}, domain.ErrQuestionsExhausted
	}
	return eligible[rnd.Intn(len(eligible))], nil
}

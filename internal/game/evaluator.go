package game

import (
	"strings"

	"github.com/vaywinar/cerdas-cermat/internal/domain"
)

var choiceLetters = []string{"a", "b", "c", "d"}

// Evaluate scores a submitted answer against a question and returns
// whether it was correct plus the signed point delta.
//
// Multiple choice expects a letter a-d naming an option index; the option
// text at that index is compared case-sensitively against the stored
// correct answer, and anything unrecognized is simply wrong. Short
// answers compare case-insensitively with surrounding whitespace trimmed
// on both sides. Incorrect answers cost the question's penalty, so scores
// can go negative.
func Evaluate(q domain.Question, submitted string) (bool, int) {
	answer := strings.TrimSpace(submitted)

	var correct bool
	switch q.Type {
	case domain.MultipleChoice:
		idx := letterIndex(strings.ToLower(answer))
		if idx >= 0 && idx < len(q.Options) {
			correct = q.Options[idx] == q.CorrectAnswer
		}
	case domain.ShortAnswer:
		correct = strings.EqualFold(answer, strings.TrimSpace(q.CorrectAnswer))
	}

	if correct {
		return true, q.Points
	}
	return false, -q.WrongAnswerPenalty
}

func letterIndex(s string) int {
	for i, letter := range choiceLetters {
		if s == letter {
			return i
		}
	}
	return -1
}

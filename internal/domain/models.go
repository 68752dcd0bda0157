package domain

import "time"

// Role classifies a live connection. Every connection starts as a
// spectator until it registers.
type Role string

const (
	RoleAdmin     Role = "admin"
	RolePlayer    Role = "player"
	RoleSpectator Role = "spectator"
)

// QuestionType distinguishes the two round formats.
type QuestionType string

const (
	MultipleChoice QuestionType = "multiple_choice"
	ShortAnswer    QuestionType = "short_answer"
)

// GameMode controls question advancement: auto runs a countdown per
// question, manual waits for the admin.
type GameMode string

const (
	ModeAuto   GameMode = "auto"
	ModeManual GameMode = "manual"
)

// GameStatus is the lifecycle state of a game session.
type GameStatus string

const (
	StatusActive    GameStatus = "active"
	StatusCompleted GameStatus = "completed"
)

// Player represents a registered contestant and their cumulative score.
// Players are keyed by a session identifier so a reconnecting client
// gets its score back.
type Player struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	SessionID string    `json:"sessionId"`
	Score     int       `json:"score"`
	CreatedAt time.Time `json:"createdAt"`
}

// Question is immutable quiz content. Options is only set for
// multiple-choice questions and is index-addressable (a, b, c, d).
type Question struct {
	ID                 int          `json:"id"`
	Text               string       `json:"text"`
	Type               QuestionType `json:"type"`
	Category           string       `json:"category"`
	Options            []string     `json:"options,omitempty"`
	CorrectAnswer      string       `json:"correctAnswer"`
	Points             int          `json:"points"`
	WrongAnswerPenalty int          `json:"wrongAnswerPenalty"`
}

// GameSession tracks one game. At most one session is active at a time.
type GameSession struct {
	ID                int        `json:"id"`
	Round             int        `json:"round"`
	Mode              GameMode   `json:"mode"`
	Status            GameStatus `json:"status"`
	CurrentQuestionID int        `json:"currentQuestionId,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
}

// PlayerAnswer is the append-only scoring record for one submission.
// PointsAwarded is signed: penalties are negative.
type PlayerAnswer struct {
	ID            int       `json:"id"`
	PlayerID      int       `json:"playerId"`
	QuestionID    int       `json:"questionId"`
	Answer        string    `json:"answer"`
	IsCorrect     bool      `json:"isCorrect"`
	PointsAwarded int       `json:"pointsAwarded"`
	TimeToAnswer  int64     `json:"timeToAnswer"` // milliseconds
	CreatedAt     time.Time `json:"createdAt"`
}

// ValidRound reports whether r is a playable round number.
func ValidRound(r int) bool {
	return r == 1 || r == 2
}

// QuestionTypeForRound maps a round number to the question format it
// uses: round 1 is multiple choice, round 2 is short answer.
func QuestionTypeForRound(round int) QuestionType {
	if round == 1 {
		return MultipleChoice
	}
	return ShortAnswer
}

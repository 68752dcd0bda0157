package domain

import "errors"

var (
	// ErrNameRequired is returned when a player registers without a name.
	ErrNameRequired = errors.New("player name is required")
	// ErrInvalidRole is returned for registration with an unknown role.
	ErrInvalidRole = errors.New("invalid role")
	// ErrInvalidRound is returned when a game is started with a round other than 1 or 2.
	ErrInvalidRound = errors.New("round must be 1 or 2")
	// ErrInvalidMode is returned when a game is started with an unknown mode.
	ErrInvalidMode = errors.New("mode must be auto or manual")
	// ErrNotAuthorized is returned when a connection's role does not permit an action.
	ErrNotAuthorized = errors.New("not authorized")
	// ErrNoActiveGame is returned for actions that need an active game session.
	ErrNoActiveGame = errors.New("no active game session")
	// ErrManualModeOnly is returned for actions only valid in manual mode.
	ErrManualModeOnly = errors.New("only available in manual mode")
	// ErrQuestionsExhausted is returned when no eligible question remains for the round.
	ErrQuestionsExhausted = errors.New("no more questions available")
	// ErrPlayerNotFound is returned when a referenced player does not exist.
	ErrPlayerNotFound = errors.New("player not found")
	// ErrSessionNotFound is returned when a referenced game session does not exist.
	ErrSessionNotFound = errors.New("game session not found")
)

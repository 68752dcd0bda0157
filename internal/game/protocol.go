package game

import (
	"encoding/json"

	"github.com/vaywinar/cerdas-cermat/internal/domain"
)

// Inbound message kinds.
const (
	MsgRegister     = "register"
	MsgStartGame    = "startGame"
	MsgNextQuestion = "nextQuestion"
	MsgSelectPlayer = "selectPlayer"
	MsgSubmitAnswer = "submitAnswer"
	MsgPressBuzzer  = "pressBuzzer"
	MsgEndGame      = "endGame"
)

// Outbound message kinds.
const (
	EvtRegisterResponse       = "registerResponse"
	EvtGameState              = "gameState"
	EvtGameStarted            = "gameStarted"
	EvtNewQuestion            = "newQuestion"
	EvtTimeUpdate             = "timeUpdate"
	EvtTimeUp                 = "timeUp"
	EvtBuzzerPressed          = "buzzerPressed"
	EvtBuzzerSuccess          = "buzzerSuccess"
	EvtBuzzerFail             = "buzzerFail"
	EvtPlayerSelected         = "playerSelected"
	EvtPlayerSelectionChanged = "playerSelectionChanged"
	EvtAnswerResult           = "answerResult"
	EvtPlayerAnswered         = "playerAnswered"
	EvtBuzzerReset            = "buzzerReset"
	EvtGameEnded              = "gameEnded"
	EvtPlayerList             = "playerList"
	EvtLeaderboard            = "leaderboard"
	EvtError                  = "error"
)

// requiredRole declares, per inbound message kind, the role a connection
// must hold. An empty role means any connection may send the message.
// Checks happen once in the dispatcher, never inside handlers.
var requiredRole = map[string]domain.Role{
	MsgRegister:     "",
	MsgStartGame:    domain.RoleAdmin,
	MsgNextQuestion: domain.RoleAdmin,
	MsgSelectPlayer: domain.RoleAdmin,
	MsgEndGame:      domain.RoleAdmin,
	MsgSubmitAnswer: domain.RolePlayer,
	MsgPressBuzzer:  domain.RolePlayer,
}

// Envelope is the wire frame for every message in both directions.
// Data carries the payload; Error is set instead of Data on failures.
type Envelope struct {
	Type    string          `json:"type"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   string          `json:"error,omitempty"`
	Details string          `json:"details,omitempty"`
}

type registerPayload struct {
	Role domain.Role `json:"role"`
	Name string      `json:"name"`
}

type startGamePayload struct {
	Round int             `json:"round"`
	Mode  domain.GameMode `json:"mode"`
}

type selectPlayerPayload struct {
	PlayerID int `json:"playerId"`
}

type submitAnswerPayload struct {
	Answer string `json:"answer"`
}

type registerResponsePayload struct {
	Success bool           `json:"success"`
	Role    domain.Role    `json:"role,omitempty"`
	Player  *domain.Player `json:"player,omitempty"`
	Error   string         `json:"error,omitempty"`
}

type gameStatePayload struct {
	GameSession *domain.GameSession `json:"gameSession"`
	Question    *domain.Question    `json:"question"`
	TimeLeft    int                 `json:"timeLeft"`
}

type gameStartedPayload struct {
	GameSession domain.GameSession `json:"gameSession"`
}

type newQuestionPayload struct {
	Question     domain.Question `json:"question"`
	TimeLeft     int             `json:"timeLeft"`
	BuzzerActive bool            `json:"buzzerActive"`
}

type timeUpdatePayload struct {
	TimeLeft int `json:"timeLeft"`
}

type timeUpPayload struct {
	CorrectAnswer string `json:"correctAnswer"`
}

type buzzerPressedPayload struct {
	PlayerID   int    `json:"playerId"`
	PlayerName string `json:"playerName"`
}

type canAnswerPayload struct {
	CanAnswer bool `json:"canAnswer"`
}

type playerSelectionChangedPayload struct {
	SelectedPlayerID int    `json:"selectedPlayerId"`
	PlayerName       string `json:"playerName"`
}

type answerResultPayload struct {
	IsCorrect     bool `json:"isCorrect"`
	PointsAwarded int  `json:"pointsAwarded"`
	PlayerScore   int  `json:"playerScore"`
}

type playerAnsweredPayload struct {
	PlayerID      int    `json:"playerId"`
	PlayerName    string `json:"playerName"`
	IsCorrect     bool   `json:"isCorrect"`
	PointsAwarded int    `json:"pointsAwarded"`
	Answer        string `json:"answer"`
}

type buzzerResetPayload struct {
	BuzzerActive bool `json:"buzzerActive"`
}

type gameEndedPayload struct {
	Message string `json:"message"`
}

type playerListPayload struct {
	Players []domain.Player `json:"players"`
}

type leaderboardPayload struct {
	Leaderboard []domain.Player `json:"leaderboard"`
}

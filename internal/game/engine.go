package game

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/vaywinar/cerdas-cermat/internal/domain"
)

// Store abstracts how players, sessions and answers are persisted
// (in-memory, Redis, etc). No business logic lives behind it.
type Store interface {
	Player(ctx context.Context, id int) (domain.Player, error)
	PlayerBySessionID(ctx context.Context, sessionID string) (domain.Player, error)
	CreatePlayer(ctx context.Context, name, sessionID string) (domain.Player, error)
	Players(ctx context.Context) ([]domain.Player, error)
	Leaderboard(ctx context.Context) ([]domain.Player, error)
	CreateSession(ctx context.Context, round int, mode domain.GameMode) (domain.GameSession, error)
	SetCurrentQuestion(ctx context.Context, sessionID, questionID int) (domain.GameSession, error)
	CompleteSession(ctx context.Context, sessionID int) error
	// RecordAnswer appends the answer record and applies its point delta
	// to the player's score, returning the updated player. The two
	// writes are atomic from the caller's perspective.
	RecordAnswer(ctx context.Context, answer domain.PlayerAnswer) (domain.PlayerAnswer, domain.Player, error)
}

// QuestionRepository loads quiz content (from cache/backing store).
type QuestionRepository interface {
	Questions(ctx context.Context) ([]domain.Question, error)
	QuestionsByType(ctx context.Context, t domain.QuestionType) ([]domain.Question, error)
}

// Config tunes the engine's timing behavior.
type Config struct {
	// QuestionSeconds is the countdown per question in auto mode.
	QuestionSeconds int
	// AdvanceDelay is the pause before moving on after timeUp or after a
	// correct manual-mode answer.
	AdvanceDelay time.Duration
}

// DefaultConfig matches the classic cerdas cermat pacing.
func DefaultConfig() Config {
	return Config{QuestionSeconds: 30, AdvanceDelay: 3 * time.Second}
}

// Engine owns the single active game: round, mode, current question,
// countdown and buzzer. Every inbound event and timer callback runs on
// one event loop goroutine, in arrival order, so buzzer races resolve
// deterministically and no event observes another's half-applied
// transition.
type Engine struct {
	store     Store
	questions QuestionRepository
	hub       *Hub
	clock     clockwork.Clock
	rnd       *rand.Rand
	cfg       Config

	cmds chan func()
	done chan struct{}

	// Everything below is owned by the event loop.
	ctx             context.Context
	session         *domain.GameSession
	current         *domain.Question
	timeLeft        int
	timerGen        uint64
	questionShownAt time.Time
	buzzer          buzzerState
	answered        map[int]struct{}
}

// buzzerState arbitrates the first-to-buzz race for manual round 2.
type buzzerState struct {
	active    bool
	first     *Connection
	pressedAt time.Time
}

func NewEngine(store Store, questions QuestionRepository, hub *Hub, clock clockwork.Clock, cfg Config) *Engine {
	if cfg.QuestionSeconds <= 0 {
		cfg.QuestionSeconds = DefaultConfig().QuestionSeconds
	}
	if cfg.AdvanceDelay <= 0 {
		cfg.AdvanceDelay = DefaultConfig().AdvanceDelay
	}
	return &Engine{
		store:     store,
		questions: questions,
		hub:       hub,
		clock:     clock,
		rnd:       rand.New(rand.NewSource(clock.Now().UnixNano())),
		cfg:       cfg,
		cmds:      make(chan func()),
		done:      make(chan struct{}),
		answered:  make(map[int]struct{}),
	}
}

// Run processes events until ctx is canceled. It must be running before
// any other method is called.
func (e *Engine) Run(ctx context.Context) {
	e.ctx = ctx
	defer close(e.done)
	for {
		select {
		case <-ctx.Done():
			return
		case fn := <-e.cmds:
			fn()
		}
	}
}

// do posts fn to the event loop and waits for it to finish, making each
// caller-visible operation transactional with respect to engine state.
func (e *Engine) do(fn func()) {
	finished := make(chan struct{})
	select {
	case e.cmds <- func() { fn(); close(finished) }:
		select {
		case <-finished:
		case <-e.done:
		}
	case <-e.done:
	}
}

// Dispatch routes one raw inbound frame from a connection. Parse
// failures and role mismatches produce error replies, never dropped
// connections.
func (e *Engine) Dispatch(c *Connection, raw []byte) {
	var msg Envelope
	if err := json.Unmarshal(raw, &msg); err != nil {
		e.hub.SendError(c, "failed to process message", err.Error())
		return
	}

	role, known := requiredRole[msg.Type]
	if !known {
		e.hub.SendError(c, fmt.Sprintf("unknown message type: %s", msg.Type), "")
		return
	}

	e.do(func() {
		if role != "" && c.Role != role {
			e.hub.SendError(c, domain.ErrNotAuthorized.Error(),
				fmt.Sprintf("%s requires the %s role", msg.Type, role))
			return
		}
		e.route(c, msg)
	})
}

func (e *Engine) route(c *Connection, msg Envelope) {
	switch msg.Type {
	case MsgRegister:
		var p registerPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			e.hub.SendError(c, "invalid register payload", err.Error())
			return
		}
		e.handleRegister(c, p.Role, p.Name)
	case MsgStartGame:
		var p startGamePayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			e.hub.SendError(c, "invalid startGame payload", err.Error())
			return
		}
		e.handleStartGame(c, p.Round, p.Mode)
	case MsgNextQuestion:
		e.handleNextQuestion(c)
	case MsgSelectPlayer:
		var p selectPlayerPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			e.hub.SendError(c, "invalid selectPlayer payload", err.Error())
			return
		}
		e.handleSelectPlayer(c, p.PlayerID)
	case MsgSubmitAnswer:
		var p submitAnswerPayload
		if err := json.Unmarshal(msg.Data, &p); err != nil {
			e.hub.SendError(c, "invalid submitAnswer payload", err.Error())
			return
		}
		e.handleSubmitAnswer(c, p.Answer)
	case MsgPressBuzzer:
		e.handlePressBuzzer(c)
	case MsgEndGame:
		e.handleEndGame()
	}
}

// Connect registers a fresh connection and, when a game is in progress,
// catches it up with the current state.
func (e *Engine) Connect(c *Connection) {
	e.do(func() {
		e.hub.Add(c)
		if e.session != nil {
			e.hub.SendTo(c, EvtGameState, gameStatePayload{
				GameSession: e.session,
				Question:    e.current,
				TimeLeft:    e.timeLeft,
			})
		}
	})
}

// Disconnect removes a connection and tells everyone the roster changed.
// The underlying Player record survives, so a reconnect under the same
// session identifier picks the score back up.
func (e *Engine) Disconnect(c *Connection) {
	e.do(func() {
		e.hub.Remove(c)
		e.broadcastPlayerList()
	})
}

// Register binds a role (and for players, an identity) to a connection.
func (e *Engine) Register(c *Connection, role domain.Role, name string) {
	e.do(func() { e.handleRegister(c, role, name) })
}

// StartGame starts a new game session, ending any active one first.
func (e *Engine) StartGame(c *Connection, round int, mode domain.GameMode) {
	e.do(func() { e.handleStartGame(c, round, mode) })
}

// NextQuestion advances the active game to a fresh question.
func (e *Engine) NextQuestion(c *Connection) {
	e.do(func() { e.handleNextQuestion(c) })
}

// SelectPlayer lets the admin hand the floor to a player in manual mode.
func (e *Engine) SelectPlayer(c *Connection, playerID int) {
	e.do(func() { e.handleSelectPlayer(c, playerID) })
}

// SubmitAnswer scores a player's answer to the current question.
func (e *Engine) SubmitAnswer(c *Connection, answer string) {
	e.do(func() { e.handleSubmitAnswer(c, answer) })
}

// PressBuzzer records a buzzer press; the first press wins the floor.
func (e *Engine) PressBuzzer(c *Connection) {
	e.do(func() { e.handlePressBuzzer(c) })
}

// EndGame completes the active session. No-op when nothing is running.
func (e *Engine) EndGame() {
	e.do(func() { e.handleEndGame() })
}

// Snapshot is a read-only view of the live game for the query API.
type Snapshot struct {
	GameSession  *domain.GameSession `json:"gameSession"`
	Question     *domain.Question    `json:"currentQuestion"`
	TimeLeft     int                 `json:"timeLeft"`
	BuzzerActive bool                `json:"buzzerActive"`
}

// CurrentState returns a consistent snapshot of the running game.
func (e *Engine) CurrentState() Snapshot {
	var snap Snapshot
	e.do(func() {
		snap = Snapshot{
			GameSession:  e.session,
			Question:     e.current,
			TimeLeft:     e.timeLeft,
			BuzzerActive: e.buzzer.active,
		}
	})
	return snap
}

func (e *Engine) handleRegister(c *Connection, role domain.Role, name string) {
	switch role {
	case domain.RoleAdmin:
		c.Role = domain.RoleAdmin
		e.hub.SendTo(c, EvtRegisterResponse, registerResponsePayload{Success: true, Role: domain.RoleAdmin})
		log.Info().Str("conn", c.ID).Msg("admin registered")

	case domain.RolePlayer:
		if strings.TrimSpace(name) == "" {
			e.hub.SendTo(c, EvtRegisterResponse, registerResponsePayload{Success: false, Error: domain.ErrNameRequired.Error()})
			return
		}
		player, err := e.store.PlayerBySessionID(e.ctx, c.SessionID)
		if errors.Is(err, domain.ErrPlayerNotFound) {
			player, err = e.store.CreatePlayer(e.ctx, strings.TrimSpace(name), c.SessionID)
		}
		if err != nil {
			e.hub.SendTo(c, EvtRegisterResponse, registerResponsePayload{Success: false, Error: err.Error()})
			return
		}
		c.Role = domain.RolePlayer
		c.PlayerID = player.ID
		e.hub.SendTo(c, EvtRegisterResponse, registerResponsePayload{Success: true, Role: domain.RolePlayer, Player: &player})
		e.broadcastPlayerList()
		log.Info().Str("conn", c.ID).Int("player", player.ID).Str("name", player.Name).Msg("player registered")

	case domain.RoleSpectator:
		c.Role = domain.RoleSpectator
		e.hub.SendTo(c, EvtRegisterResponse, registerResponsePayload{Success: true, Role: domain.RoleSpectator})

	default:
		e.hub.SendTo(c, EvtRegisterResponse, registerResponsePayload{Success: false, Error: domain.ErrInvalidRole.Error()})
	}
}

func (e *Engine) handleStartGame(c *Connection, round int, mode domain.GameMode) {
	if e.session != nil {
		e.handleEndGame()
	}
	if !domain.ValidRound(round) {
		e.reportError(c, domain.ErrInvalidRound)
		return
	}
	if mode != domain.ModeAuto && mode != domain.ModeManual {
		e.reportError(c, domain.ErrInvalidMode)
		return
	}

	session, err := e.store.CreateSession(e.ctx, round, mode)
	if err != nil {
		e.reportError(c, fmt.Errorf("failed to start game: %w", err))
		return
	}

	e.session = &session
	e.current = nil
	e.timeLeft = 0
	e.timerGen++
	e.buzzer = buzzerState{}
	e.answered = make(map[int]struct{})

	e.hub.BroadcastAll(EvtGameStarted, gameStartedPayload{GameSession: session})
	log.Info().Int("round", round).Str("mode", string(mode)).Msg("game started")

	if mode == domain.ModeAuto {
		e.handleNextQuestion(c)
	}
}

func (e *Engine) handleNextQuestion(c *Connection) {
	if e.session == nil {
		e.reportError(c, domain.ErrNoActiveGame)
		return
	}

	// Invalidating the generation cancels any running countdown and any
	// scheduled auto-advance.
	e.timerGen++
	e.buzzer = buzzerState{}
	e.answered = make(map[int]struct{})

	pool, err := e.questions.QuestionsByType(e.ctx, domain.QuestionTypeForRound(e.session.Round))
	if err != nil {
		e.reportError(c, fmt.Errorf("failed to load questions: %w", err))
		return
	}

	question, err := pickQuestion(pool, e.session.CurrentQuestionID, e.rnd)
	if err != nil {
		e.reportError(c, err)
		return
	}

	session, err := e.store.SetCurrentQuestion(e.ctx, e.session.ID, question.ID)
	if err != nil {
		e.reportError(c, fmt.Errorf("failed to advance question: %w", err))
		return
	}

	e.session = &session
	e.current = &question
	e.timeLeft = 0
	e.questionShownAt = e.clock.Now()

	if session.Mode == domain.ModeAuto {
		e.timeLeft = e.cfg.QuestionSeconds
		e.startTimer(e.timerGen)
	} else if session.Round == 2 {
		e.buzzer.active = true
	}

	e.hub.BroadcastAll(EvtNewQuestion, newQuestionPayload{
		Question:     question,
		TimeLeft:     e.timeLeft,
		BuzzerActive: e.buzzer.active,
	})
	log.Info().Int("question", question.ID).Str("category", question.Category).Msg("new question")
}

// startTimer runs the countdown for one question generation. The ticker
// goroutine posts every tick back into the event loop; once the
// generation dies (question advanced, game ended, countdown finished)
// the loop reports it stale and the goroutine exits.
func (e *Engine) startTimer(gen uint64) {
	ctx := e.ctx
	go func() {
		ticker := e.clock.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.Chan():
				if !e.tick(gen) {
					return
				}
			}
		}
	}()
}

// tick applies one countdown step and reports whether the timer is still
// live.
func (e *Engine) tick(gen uint64) bool {
	alive := false
	e.do(func() {
		if gen != e.timerGen || e.session == nil || e.current == nil {
			return
		}
		e.timeLeft--
		e.hub.BroadcastAll(EvtTimeUpdate, timeUpdatePayload{TimeLeft: e.timeLeft})
		if e.timeLeft > 0 {
			alive = true
			return
		}

		e.timerGen++
		e.hub.BroadcastAll(EvtTimeUp, timeUpPayload{CorrectAnswer: e.current.CorrectAnswer})
		if e.session.Status == domain.StatusActive && e.session.Mode == domain.ModeAuto {
			e.scheduleAdvance(e.timerGen)
		}
	})
	return alive
}

// scheduleAdvance moves to the next question after the configured delay,
// unless the generation has been superseded in the meantime.
func (e *Engine) scheduleAdvance(gen uint64) {
	ctx := e.ctx
	go func() {
		select {
		case <-ctx.Done():
		case <-e.clock.After(e.cfg.AdvanceDelay):
			e.do(func() {
				if gen == e.timerGen && e.session != nil {
					e.handleNextQuestion(nil)
				}
			})
		}
	}()
}

func (e *Engine) handlePressBuzzer(c *Connection) {
	if e.current == nil || !e.buzzer.active || c.PlayerID == 0 {
		return
	}

	if e.buzzer.first != nil {
		e.hub.SendTo(c, EvtBuzzerFail, canAnswerPayload{CanAnswer: false})
		return
	}

	// First press wins. The event loop serializes presses, so there is
	// never a window where two connections are both told they won.
	e.buzzer.first = c
	e.buzzer.pressedAt = e.clock.Now()

	player, err := e.store.Player(e.ctx, c.PlayerID)
	if err != nil {
		log.Error().Err(err).Int("player", c.PlayerID).Msg("lookup buzzer winner")
	}
	e.hub.BroadcastAll(EvtBuzzerPressed, buzzerPressedPayload{PlayerID: c.PlayerID, PlayerName: player.Name})
	e.hub.SendTo(c, EvtBuzzerSuccess, canAnswerPayload{CanAnswer: true})
	log.Info().Int("player", c.PlayerID).Str("name", player.Name).Msg("buzzer won")
}

func (e *Engine) handleSelectPlayer(c *Connection, playerID int) {
	if e.session == nil {
		e.reportError(c, domain.ErrNoActiveGame)
		return
	}
	if e.session.Mode != domain.ModeManual {
		e.reportError(c, domain.ErrManualModeOnly)
		return
	}

	target, ok := e.hub.ByPlayer(playerID)
	if !ok {
		e.reportError(c, domain.ErrPlayerNotFound)
		return
	}

	player, err := e.store.Player(e.ctx, playerID)
	if err != nil {
		e.reportError(c, err)
		return
	}

	e.hub.SendTo(target, EvtPlayerSelected, canAnswerPayload{CanAnswer: true})
	e.hub.BroadcastAll(EvtPlayerSelectionChanged, playerSelectionChangedPayload{
		SelectedPlayerID: playerID,
		PlayerName:       player.Name,
	})
}

func (e *Engine) handleSubmitAnswer(c *Connection, rawAnswer string) {
	// Silent no-ops, not errors: no open question, unregistered
	// connection, duplicate answer, or answering out of turn.
	if e.current == nil || c.PlayerID == 0 {
		return
	}
	if _, already := e.answered[c.PlayerID]; already {
		return
	}
	manualBuzzerRound := e.session != nil &&
		e.session.Mode == domain.ModeManual && e.session.Round == 2
	if manualBuzzerRound {
		if e.buzzer.first == nil || e.buzzer.first.ID != c.ID {
			return
		}
	}

	answer := strings.TrimSpace(rawAnswer)
	correct, points := Evaluate(*e.current, answer)

	activated := e.questionShownAt
	if !e.buzzer.pressedAt.IsZero() {
		activated = e.buzzer.pressedAt
	}

	record, player, err := e.store.RecordAnswer(e.ctx, domain.PlayerAnswer{
		PlayerID:      c.PlayerID,
		QuestionID:    e.current.ID,
		Answer:        answer,
		IsCorrect:     correct,
		PointsAwarded: points,
		TimeToAnswer:  e.clock.Now().Sub(activated).Milliseconds(),
	})
	if err != nil {
		e.hub.SendError(c, "failed to submit answer", err.Error())
		return
	}
	e.answered[c.PlayerID] = struct{}{}

	e.hub.SendTo(c, EvtAnswerResult, answerResultPayload{
		IsCorrect:     correct,
		PointsAwarded: points,
		PlayerScore:   player.Score,
	})
	e.hub.BroadcastAll(EvtPlayerAnswered, playerAnsweredPayload{
		PlayerID:      player.ID,
		PlayerName:    player.Name,
		IsCorrect:     correct,
		PointsAwarded: points,
		Answer:        answer,
	})

	if manualBuzzerRound {
		if correct {
			e.timerGen++
			e.scheduleAdvance(e.timerGen)
		} else {
			// Reopen the race for the same question: only the winner is
			// cleared, the buzzer stays armed.
			e.buzzer.first = nil
			e.buzzer.pressedAt = time.Time{}
			e.hub.BroadcastAll(EvtBuzzerReset, buzzerResetPayload{BuzzerActive: true})
		}
	}

	e.broadcastLeaderboard()
	log.Info().
		Int("player", player.ID).
		Bool("correct", correct).
		Int("points", points).
		Int64("latencyMs", record.TimeToAnswer).
		Msg("answer scored")
}

func (e *Engine) handleEndGame() {
	if e.session == nil {
		return
	}
	if err := e.store.CompleteSession(e.ctx, e.session.ID); err != nil {
		log.Error().Err(err).Int("session", e.session.ID).Msg("complete session")
	}

	e.timerGen++
	e.session = nil
	e.current = nil
	e.timeLeft = 0
	e.buzzer = buzzerState{}
	e.answered = make(map[int]struct{})

	e.hub.BroadcastAll(EvtGameEnded, gameEndedPayload{Message: "Game has ended"})
	e.broadcastLeaderboard()
	log.Info().Msg("game ended")
}

func (e *Engine) broadcastPlayerList() {
	players, err := e.store.Players(e.ctx)
	if err != nil {
		log.Error().Err(err).Msg("load player list")
		return
	}
	e.hub.BroadcastAll(EvtPlayerList, playerListPayload{Players: players})
}

func (e *Engine) broadcastLeaderboard() {
	leaderboard, err := e.store.Leaderboard(e.ctx)
	if err != nil {
		log.Error().Err(err).Msg("load leaderboard")
		return
	}
	e.hub.BroadcastAll(EvtLeaderboard, leaderboardPayload{Leaderboard: leaderboard})
}

// reportError surfaces a failure to its originating connection, or to
// all admins when the event had no originator (timer callbacks).
func (e *Engine) reportError(c *Connection, err error) {
	log.Warn().Err(err).Msg("game action failed")
	if c != nil {
		e.hub.SendError(c, err.Error(), "")
		return
	}
	e.hub.BroadcastErrorRole(domain.RoleAdmin, err.Error())
}

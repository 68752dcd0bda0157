package game

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"

	"github.com/vaywinar/cerdas-cermat/internal/domain"
	"github.com/vaywinar/cerdas-cermat/internal/infra/memory"
)

func TestRegisterRoles(t *testing.T) {
	env := newTestEnv(t, testQuestions())

	admin := env.connect()
	env.engine.Register(admin, domain.RoleAdmin, "")
	if admin.Role != domain.RoleAdmin {
		t.Fatalf("expected admin role, got %s", admin.Role)
	}

	player := env.connect()
	env.engine.Register(player, domain.RolePlayer, "Alice")
	if player.Role != domain.RolePlayer || player.PlayerID == 0 {
		t.Fatalf("expected bound player, got role=%s playerID=%d", player.Role, player.PlayerID)
	}
	resp := requireType(t, drain(player), EvtRegisterResponse)
	var payload registerResponsePayload
	mustUnmarshal(t, resp.Data, &payload)
	if !payload.Success || payload.Player == nil || payload.Player.Name != "Alice" {
		t.Fatalf("unexpected register response: %+v", payload)
	}
}

func TestRegisterPlayerRequiresName(t *testing.T) {
	env := newTestEnv(t, testQuestions())

	player := env.connect()
	env.engine.Register(player, domain.RolePlayer, "   ")

	resp := requireType(t, drain(player), EvtRegisterResponse)
	var payload registerResponsePayload
	mustUnmarshal(t, resp.Data, &payload)
	if payload.Success {
		t.Fatalf("expected registration failure for empty name")
	}
	if player.Role != domain.RoleSpectator {
		t.Fatalf("connection should stay spectator, got %s", player.Role)
	}
}

func TestDispatchEnforcesRoles(t *testing.T) {
	env := newTestEnv(t, testQuestions())

	spectator := env.connect()
	env.engine.Dispatch(spectator, rawMsg(t, MsgStartGame, startGamePayload{Round: 1, Mode: domain.ModeAuto}))

	if msg := requireType(t, drain(spectator), EvtError); msg.Error == "" {
		t.Fatalf("expected error reply for unauthorized startGame")
	}
	if env.engine.CurrentState().GameSession != nil {
		t.Fatalf("unauthorized startGame must not start a game")
	}
}

func TestDispatchRejectsUnknownType(t *testing.T) {
	env := newTestEnv(t, testQuestions())

	c := env.connect()
	env.engine.Dispatch(c, []byte(`{"type":"teleport","data":{}}`))
	if msg := requireType(t, drain(c), EvtError); msg.Error == "" {
		t.Fatalf("expected error for unknown message type")
	}

	env.engine.Dispatch(c, []byte(`not even json`))
	if msg := requireType(t, drain(c), EvtError); msg.Error == "" {
		t.Fatalf("expected error for malformed frame")
	}
}

func TestStartGameValidation(t *testing.T) {
	env := newTestEnv(t, testQuestions())
	admin := env.admin()

	env.engine.StartGame(admin, 3, domain.ModeAuto)
	if msg := requireType(t, drain(admin), EvtError); msg.Error != domain.ErrInvalidRound.Error() {
		t.Fatalf("expected round validation error, got %q", msg.Error)
	}

	env.engine.StartGame(admin, 1, "turbo")
	if msg := requireType(t, drain(admin), EvtError); msg.Error != domain.ErrInvalidMode.Error() {
		t.Fatalf("expected mode validation error, got %q", msg.Error)
	}
	if env.engine.CurrentState().GameSession != nil {
		t.Fatalf("invalid parameters must not start a game")
	}
}

func TestStartGameEndsActiveSession(t *testing.T) {
	env := newTestEnv(t, testQuestions())
	admin := env.admin()

	env.engine.StartGame(admin, 1, domain.ModeManual)
	first := env.engine.CurrentState().GameSession
	if first == nil || first.Status != domain.StatusActive {
		t.Fatalf("expected active session, got %+v", first)
	}

	env.engine.StartGame(admin, 2, domain.ModeManual)
	second := env.engine.CurrentState().GameSession
	if second == nil || second.ID == first.ID {
		t.Fatalf("expected a fresh session, got %+v", second)
	}

	prior, err := env.store.Session(context.Background(), first.ID)
	if err != nil {
		t.Fatalf("load prior session: %v", err)
	}
	if prior.Status != domain.StatusCompleted {
		t.Fatalf("prior session should be completed, got %s", prior.Status)
	}

	msgs := drain(admin)
	if countType(msgs, EvtGameEnded) != 1 || countType(msgs, EvtGameStarted) != 2 {
		t.Fatalf("expected gameEnded between two gameStarted broadcasts, got %v", typesOf(msgs))
	}
}

func TestNextQuestionRequiresActiveGame(t *testing.T) {
	env := newTestEnv(t, testQuestions())
	admin := env.admin()

	env.engine.NextQuestion(admin)
	if msg := requireType(t, drain(admin), EvtError); msg.Error != domain.ErrNoActiveGame.Error() {
		t.Fatalf("expected state error, got %q", msg.Error)
	}
}

func TestNextQuestionExhaustion(t *testing.T) {
	// Single short-answer question: the anti-repeat filter leaves nothing
	// the second time around.
	env := newTestEnv(t, []domain.Question{saQuestion(3, "Jakarta")})
	admin := env.admin()

	env.engine.StartGame(admin, 2, domain.ModeManual)
	env.engine.NextQuestion(admin)
	if env.engine.CurrentState().Question == nil {
		t.Fatalf("expected a question on first advance")
	}
	drain(admin)

	env.engine.NextQuestion(admin)
	if msg := requireType(t, drain(admin), EvtError); msg.Error != domain.ErrQuestionsExhausted.Error() {
		t.Fatalf("expected exhaustion error, got %q", msg.Error)
	}
}

func TestNextQuestionExcludesPrevious(t *testing.T) {
	questions := []domain.Question{saQuestion(1, "a"), saQuestion(2, "b")}
	env := newTestEnv(t, questions)
	admin := env.admin()

	env.engine.StartGame(admin, 2, domain.ModeManual)
	for i := 0; i < 6; i++ {
		prev := env.engine.CurrentState().GameSession.CurrentQuestionID
		env.engine.NextQuestion(admin)
		next := env.engine.CurrentState().GameSession.CurrentQuestionID
		if prev != 0 && next == prev {
			t.Fatalf("question %d repeated back to back", next)
		}
	}
}

func TestBuzzerFirstPressWins(t *testing.T) {
	env := newTestEnv(t, testQuestions())
	admin := env.admin()
	p1 := env.player("Alice")
	p2 := env.player("Bob")
	p3 := env.player("Cindy")

	env.engine.StartGame(admin, 2, domain.ModeManual)
	env.engine.NextQuestion(admin)
	if !env.engine.CurrentState().BuzzerActive {
		t.Fatalf("buzzer should be armed in manual round 2")
	}
	drainAll(p1, p2, p3)

	env.engine.PressBuzzer(p2)
	env.engine.PressBuzzer(p1)
	env.engine.PressBuzzer(p3)

	winners, losers := 0, 0
	for _, c := range []*Connection{p1, p2, p3} {
		for _, msg := range drain(c) {
			switch msg.Type {
			case EvtBuzzerSuccess:
				winners++
				if c != p2 {
					t.Fatalf("buzzer win went to the wrong player")
				}
			case EvtBuzzerFail:
				losers++
			}
		}
	}
	if winners != 1 || losers != 2 {
		t.Fatalf("expected exactly one winner and two losers, got %d/%d", winners, losers)
	}
}

func TestBuzzerIgnoredWhenInactive(t *testing.T) {
	env := newTestEnv(t, testQuestions())
	admin := env.admin()
	p1 := env.player("Alice")

	// Round 1 manual: no buzzer, no timer.
	env.engine.StartGame(admin, 1, domain.ModeManual)
	env.engine.NextQuestion(admin)
	drain(p1)

	env.engine.PressBuzzer(p1)
	if msgs := drain(p1); len(msgs) != 0 {
		t.Fatalf("inactive buzzer press should be a silent no-op, got %v", typesOf(msgs))
	}
}

func TestSubmitAnswerScoresOncePerQuestion(t *testing.T) {
	env := newTestEnv(t, testQuestions())
	admin := env.admin()
	p1 := env.player("Alice")

	env.engine.StartGame(admin, 1, domain.ModeManual)
	env.engine.NextQuestion(admin)
	q := env.engine.CurrentState().Question
	drain(p1)

	env.engine.SubmitAnswer(p1, "a")
	env.engine.SubmitAnswer(p1, "b")

	msgs := drain(p1)
	if countType(msgs, EvtAnswerResult) != 1 {
		t.Fatalf("expected exactly one scored answer, got %v", typesOf(msgs))
	}
	answers, err := env.store.AnswersForPlayer(context.Background(), p1.PlayerID)
	if err != nil {
		t.Fatalf("load answers: %v", err)
	}
	if len(answers) != 1 || answers[0].QuestionID != q.ID {
		t.Fatalf("expected one answer record for question %d, got %+v", q.ID, answers)
	}
}

func TestManualRoundTwoBuzzerFlow(t *testing.T) {
	env := newTestEnv(t, []domain.Question{saQuestion(3, "Jakarta"), saQuestion(4, "Soekarno")})
	admin := env.admin()
	p1 := env.player("Alice")
	p2 := env.player("Bob")

	env.engine.StartGame(admin, 2, domain.ModeManual)
	env.engine.NextQuestion(admin)
	drainAll(admin, p1, p2)

	// Submissions without the buzzer win are silently dropped.
	env.engine.SubmitAnswer(p2, "Jakarta")
	if msgs := drain(p2); countType(msgs, EvtAnswerResult) != 0 {
		t.Fatalf("non-winner submission must be ignored, got %v", typesOf(msgs))
	}

	env.engine.PressBuzzer(p1)
	drainAll(admin, p1, p2)

	// A wrong answer reopens the buzzer, keeping it armed.
	env.engine.SubmitAnswer(p1, "Bandung")
	state := env.engine.CurrentState()
	if !state.BuzzerActive {
		t.Fatalf("buzzer should stay armed after a wrong answer")
	}
	msgs := drain(p1)
	if countType(msgs, EvtBuzzerReset) != 1 {
		t.Fatalf("expected buzzerReset broadcast, got %v", typesOf(msgs))
	}
	result := requireType(t, msgs, EvtAnswerResult)
	var res answerResultPayload
	mustUnmarshal(t, result.Data, &res)
	if res.IsCorrect || res.PointsAwarded != -15 {
		t.Fatalf("expected penalty of -15, got %+v", res)
	}

	// The floor is open again; the other player takes it and scores.
	env.engine.PressBuzzer(p2)
	env.engine.SubmitAnswer(p2, " jakarta ")
	msgs = drain(p2)
	result = requireType(t, msgs, EvtAnswerResult)
	mustUnmarshal(t, result.Data, &res)
	if !res.IsCorrect || res.PointsAwarded != 20 {
		t.Fatalf("expected +20 for correct answer, got %+v", res)
	}

	// The correct answer schedules an advance to the next question.
	env.advanceUntil(func() bool {
		s := env.engine.CurrentState()
		return s.Question != nil && s.Question.ID != 3
	}, "question did not advance after the delay")
}

func TestAutoModeTimerProtocol(t *testing.T) {
	env := newTestEnv(t, []domain.Question{
		mcQuestion(1), mcQuestion(2), mcQuestion(5),
	})
	admin := env.admin()

	env.engine.StartGame(admin, 1, domain.ModeAuto)
	first := env.engine.CurrentState()
	if first.Question == nil || first.TimeLeft != env.cfg.QuestionSeconds {
		t.Fatalf("auto mode should open a question with a full countdown, got %+v", first)
	}

	// The countdown ticker is the only clock waiter at this point.
	env.clock.BlockUntil(1)
	for i := 0; i < env.cfg.QuestionSeconds; i++ {
		env.clock.Advance(time.Second)
		expected := env.cfg.QuestionSeconds - i - 1
		waitFor(t, func() bool {
			return env.engine.CurrentState().TimeLeft == expected
		}, "tick was not processed")
	}

	msgs := drain(admin)
	if countType(msgs, EvtTimeUp) != 1 {
		t.Fatalf("expected exactly one timeUp, got %v", typesOf(msgs))
	}
	if countType(msgs, EvtTimeUpdate) != env.cfg.QuestionSeconds {
		t.Fatalf("expected %d timeUpdate broadcasts, got %d", env.cfg.QuestionSeconds, countType(msgs, EvtTimeUpdate))
	}

	// The scheduled advance fires once after the configured delay.
	env.advanceUntil(func() bool {
		s := env.engine.CurrentState()
		return s.Question != nil && s.Question.ID != first.Question.ID
	}, "auto mode did not advance after timeUp")
}

func TestNewQuestionCancelsOutstandingTimer(t *testing.T) {
	env := newTestEnv(t, []domain.Question{
		mcQuestion(1), mcQuestion(2), mcQuestion(5),
	})
	admin := env.admin()

	env.engine.StartGame(admin, 1, domain.ModeAuto)
	env.clock.BlockUntil(1)
	env.clock.Advance(time.Second)
	waitFor(t, func() bool {
		return env.engine.CurrentState().TimeLeft == env.cfg.QuestionSeconds-1
	}, "first tick missing")

	// Replacing the question must cancel the first countdown. The stale
	// ticker stays registered until its next fire, so the fresh one is
	// the second waiter.
	env.engine.NextQuestion(admin)
	if got := env.engine.CurrentState().TimeLeft; got != env.cfg.QuestionSeconds {
		t.Fatalf("new question should reset the countdown, got %d", got)
	}
	drain(admin)
	env.clock.BlockUntil(2)

	for i := 0; i < env.cfg.QuestionSeconds-1; i++ {
		env.clock.Advance(time.Second)
		expected := env.cfg.QuestionSeconds - i - 1
		waitFor(t, func() bool {
			return env.engine.CurrentState().TimeLeft == expected
		}, "tick was not processed")
	}

	// Old timer generations must not leak a premature timeUp.
	if msgs := drain(admin); countType(msgs, EvtTimeUp) != 0 {
		t.Fatalf("superseded timer fired, got %v", typesOf(msgs))
	}
}

func TestEndGameClearsState(t *testing.T) {
	env := newTestEnv(t, testQuestions())
	admin := env.admin()

	env.engine.EndGame() // no-op without a session
	if msgs := drain(admin); countType(msgs, EvtGameEnded) != 0 {
		t.Fatalf("endGame without a session should be silent")
	}

	env.engine.StartGame(admin, 2, domain.ModeManual)
	env.engine.NextQuestion(admin)
	env.engine.EndGame()

	state := env.engine.CurrentState()
	if state.GameSession != nil || state.Question != nil || state.BuzzerActive {
		t.Fatalf("expected cleared state after endGame, got %+v", state)
	}
	msgs := drain(admin)
	if countType(msgs, EvtGameEnded) != 1 || countType(msgs, EvtLeaderboard) != 1 {
		t.Fatalf("expected gameEnded plus final leaderboard, got %v", typesOf(msgs))
	}
}

func TestReconnectKeepsScore(t *testing.T) {
	env := newTestEnv(t, testQuestions())
	admin := env.admin()

	p1 := env.connectWithSession("kiosk-7")
	env.engine.Register(p1, domain.RolePlayer, "Alice")
	firstID := p1.PlayerID

	env.engine.StartGame(admin, 1, domain.ModeManual)
	env.engine.NextQuestion(admin)
	env.engine.SubmitAnswer(p1, "a")

	env.engine.Disconnect(p1)

	p2 := env.connectWithSession("kiosk-7")
	env.engine.Register(p2, domain.RolePlayer, "Alice")
	if p2.PlayerID != firstID {
		t.Fatalf("reconnect should rebind player %d, got %d", firstID, p2.PlayerID)
	}

	player, err := env.store.Player(context.Background(), p2.PlayerID)
	if err != nil {
		t.Fatalf("load player: %v", err)
	}
	if player.Score == 0 {
		t.Fatalf("score should survive the disconnect, got %d", player.Score)
	}
}

func TestConnectDuringGameReceivesState(t *testing.T) {
	env := newTestEnv(t, testQuestions())
	admin := env.admin()

	env.engine.StartGame(admin, 1, domain.ModeManual)
	env.engine.NextQuestion(admin)

	late := env.connect()
	msg := requireType(t, drain(late), EvtGameState)
	var payload gameStatePayload
	mustUnmarshal(t, msg.Data, &payload)
	if payload.GameSession == nil || payload.Question == nil {
		t.Fatalf("late joiner should receive the running game, got %+v", payload)
	}
}

func TestSelectPlayer(t *testing.T) {
	env := newTestEnv(t, testQuestions())
	admin := env.admin()
	p1 := env.player("Alice")

	env.engine.StartGame(admin, 1, domain.ModeManual)
	drainAll(admin, p1)

	env.engine.SelectPlayer(admin, p1.PlayerID)
	selected := requireType(t, drain(p1), EvtPlayerSelected)
	var payload canAnswerPayload
	mustUnmarshal(t, selected.Data, &payload)
	if !payload.CanAnswer {
		t.Fatalf("selected player should be told canAnswer=true")
	}
	if countType(drain(admin), EvtPlayerSelectionChanged) != 1 {
		t.Fatalf("expected playerSelectionChanged broadcast")
	}

	env.engine.SelectPlayer(admin, 999)
	if msg := requireType(t, drain(admin), EvtError); msg.Error != domain.ErrPlayerNotFound.Error() {
		t.Fatalf("expected not-found error, got %q", msg.Error)
	}
}

// --- test environment ---

type testEnv struct {
	t      *testing.T
	engine *Engine
	hub    *Hub
	store  *memory.Store
	clock  *clockwork.FakeClock
	cfg    Config
}

func newTestEnv(t *testing.T, questions []domain.Question) *testEnv {
	t.Helper()
	clock := clockwork.NewFakeClock()
	store := memory.NewStoreWithClock(clock.Now)
	catalog := memory.NewQuestionCatalog(memory.NewStaticQuestionLoader(questions), time.Minute)
	hub := NewHub()
	cfg := Config{QuestionSeconds: 3, AdvanceDelay: 2 * time.Second}
	engine := NewEngine(store, catalog, hub, clock, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go engine.Run(ctx)

	return &testEnv{t: t, engine: engine, hub: hub, store: store, clock: clock, cfg: cfg}
}

// advanceUntil nudges the fake clock in small steps until cond holds.
// Used where the clock waiter is registered by a goroutine the test
// cannot otherwise synchronize with.
func (env *testEnv) advanceUntil(cond func() bool, msg string) {
	env.t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		env.clock.Advance(100 * time.Millisecond)
		time.Sleep(time.Millisecond)
	}
	env.t.Fatal(msg)
}

func (env *testEnv) connect() *Connection {
	return env.connectWithSession("")
}

func (env *testEnv) connectWithSession(sessionID string) *Connection {
	c := env.hub.NewConnection(sessionID)
	env.engine.Connect(c)
	return c
}

func (env *testEnv) admin() *Connection {
	c := env.connect()
	env.engine.Register(c, domain.RoleAdmin, "")
	drain(c)
	return c
}

func (env *testEnv) player(name string) *Connection {
	c := env.connect()
	env.engine.Register(c, domain.RolePlayer, name)
	drain(c)
	return c
}

func drain(c *Connection) []Envelope {
	var msgs []Envelope
	for {
		select {
		case frame := <-c.send:
			var env Envelope
			if err := json.Unmarshal(frame, &env); err == nil {
				msgs = append(msgs, env)
			}
		default:
			return msgs
		}
	}
}

func drainAll(conns ...*Connection) {
	for _, c := range conns {
		drain(c)
	}
}

func requireType(t *testing.T, msgs []Envelope, typ string) Envelope {
	t.Helper()
	for _, msg := range msgs {
		if msg.Type == typ {
			return msg
		}
	}
	t.Fatalf("no %s message in %v", typ, typesOf(msgs))
	return Envelope{}
}

func countType(msgs []Envelope, typ string) int {
	n := 0
	for _, msg := range msgs {
		if msg.Type == typ {
			n++
		}
	}
	return n
}

func typesOf(msgs []Envelope) []string {
	types := make([]string, 0, len(msgs))
	for _, msg := range msgs {
		types = append(types, msg.Type)
	}
	return types
}

func mustUnmarshal(t *testing.T, raw json.RawMessage, v any) {
	t.Helper()
	if err := json.Unmarshal(raw, v); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
}

func rawMsg(t *testing.T, typ string, payload any) []byte {
	t.Helper()
	data, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	raw, err := json.Marshal(Envelope{Type: typ, Data: data})
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}
	return raw
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal(msg)
}

func mcQuestion(id int) domain.Question {
	return domain.Question{
		ID:   id,
		Text: "Siapakah penemu bola lampu?",
		Type: domain.MultipleChoice, Category: "Sains",
		Options:            []string{"Thomas Edison", "Albert Einstein", "Isaac Newton", "Nikola Tesla"},
		CorrectAnswer:      "Thomas Edison",
		Points:             10,
		WrongAnswerPenalty: 5,
	}
}

func saQuestion(id int, answer string) domain.Question {
	return domain.Question{
		ID:   id,
		Text: "Apa nama ibukota Indonesia?",
		Type: domain.ShortAnswer, Category: "Geografi",
		CorrectAnswer:      answer,
		Points:             20,
		WrongAnswerPenalty: 15,
	}
}

func testQuestions() []domain.Question {
	return []domain.Question{
		mcQuestion(1), mcQuestion(2),
		saQuestion(3, "Jakarta"), saQuestion(4, "Soekarno"),
	}
}

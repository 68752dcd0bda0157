package http

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/julienschmidt/httprouter"

	"github.com/vaywinar/cerdas-cermat/internal/domain"
	"github.com/vaywinar/cerdas-cermat/internal/game"
	"github.com/vaywinar/cerdas-cermat/internal/infra/memory"
)

func newAPIServer(t *testing.T) (*httptest.Server, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	catalog := memory.NewQuestionCatalog(memory.NewStaticQuestionLoader(sampleQuestions()), time.Minute)
	hub := game.NewHub()
	engine := game.NewEngine(store, catalog, hub, clockwork.NewRealClock(), game.DefaultConfig())

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go engine.Run(ctx)

	router := httprouter.New()
	NewAPIHandler(engine, store, catalog).Register(router)
	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server, store
}

func getJSON(t *testing.T, url string, v any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", url, resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("GET %s: content type %q", url, ct)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
}

func TestAPIListQuestions(t *testing.T) {
	server, _ := newAPIServer(t)

	var questions []domain.Question
	getJSON(t, server.URL+"/api/questions", &questions)
	if len(questions) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(questions))
	}
}

func TestAPILeaderboard(t *testing.T) {
	server, store := newAPIServer(t)
	ctx := context.Background()

	alice, _ := store.CreatePlayer(ctx, "Alice", "s1")
	bob, _ := store.CreatePlayer(ctx, "Bob", "s2")
	store.RecordAnswer(ctx, domain.PlayerAnswer{PlayerID: alice.ID, PointsAwarded: 10})
	store.RecordAnswer(ctx, domain.PlayerAnswer{PlayerID: bob.ID, PointsAwarded: 20})

	var leaderboard []domain.Player
	getJSON(t, server.URL+"/api/leaderboard", &leaderboard)
	if len(leaderboard) != 2 || leaderboard[0].Name != "Bob" {
		t.Fatalf("unexpected leaderboard: %+v", leaderboard)
	}
}

func TestAPIGameStateIdleByDefault(t *testing.T) {
	server, _ := newAPIServer(t)

	var snap game.Snapshot
	getJSON(t, server.URL+"/api/game", &snap)
	if snap.GameSession != nil || snap.Question != nil || snap.BuzzerActive {
		t.Fatalf("expected idle snapshot, got %+v", snap)
	}
}

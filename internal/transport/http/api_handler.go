package http

import (
	"encoding/json"
	"net/http"

	"github.com/julienschmidt/httprouter"
	"github.com/rs/zerolog/log"

	"github.com/vaywinar/cerdas-cermat/internal/game"
)

// APIHandler serves the read-only query endpoints: question catalog,
// leaderboard and a snapshot of the running game. No mutation happens
// here; everything goes through the engine or the store directly.
type APIHandler struct {
	engine    *game.Engine
	store     game.Store
	questions game.QuestionRepository
}

func NewAPIHandler(engine *game.Engine, store game.Store, questions game.QuestionRepository) *APIHandler {
	return &APIHandler{engine: engine, store: store, questions: questions}
}

// Register mounts the API routes on the router.
func (h *APIHandler) Register(router *httprouter.Router) {
	router.GET("/api/questions", h.listQuestions)
	router.GET("/api/leaderboard", h.leaderboard)
	router.GET("/api/game", h.gameState)
}

func (h *APIHandler) listQuestions(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	questions, err := h.questions.Questions(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch questions")
		log.Error().Err(err).Msg("list questions")
		return
	}
	writeJSON(w, questions)
}

func (h *APIHandler) leaderboard(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	leaderboard, err := h.store.Leaderboard(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to fetch leaderboard")
		log.Error().Err(err).Msg("leaderboard")
		return
	}
	writeJSON(w, leaderboard)
}

func (h *APIHandler) gameState(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	writeJSON(w, h.engine.CurrentState())
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Error().Err(err).Msg("encode response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

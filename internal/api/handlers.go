package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/veibelle/skinmatch/internal/history"
	"github.com/veibelle/skinmatch/internal/identity"
	"github.com/veibelle/skinmatch/internal/pipeline"
	"github.com/veibelle/skinmatch/internal/quiz"
	"github.com/veibelle/skinmatch/internal/recommend"
)

const maxRequestBodySize = 1 << 20 // 1MB

type AppDeps struct {
	Collector *quiz.Collector
	Submitter *pipeline.Submitter
	History   *history.Reconciler
	Token     string
}

func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Get("/quiz", handleGetQuiz(deps))
		r.Put("/quiz/skin-type", handleAnswer(deps, func(c *quiz.Collector, v string) (quiz.State, error) {
			return c.SetSkinType(v)
		}))
		r.Post("/quiz/concerns", handleAnswer(deps, func(c *quiz.Collector, v string) (quiz.State, error) {
			return c.ToggleConcern(v)
		}))
		r.Put("/quiz/product-type", handleAnswer(deps, func(c *quiz.Collector, v string) (quiz.State, error) {
			return c.SetProductType(v)
		}))
		r.Post("/quiz/allergens", handleAnswer(deps, func(c *quiz.Collector, v string) (quiz.State, error) {
			return c.ToggleAllergen(v)
		}))
		r.Post("/quiz/allergens/custom", handleAnswer(deps, func(c *quiz.Collector, v string) (quiz.State, error) {
			return c.AddAllergen(v)
		}))
		r.Post("/quiz/eye-concerns", handleAnswer(deps, func(c *quiz.Collector, v string) (quiz.State, error) {
			return c.ToggleEyeConcern(v)
		}))
		r.Put("/quiz/pregnancy", handleAnswer(deps, func(c *quiz.Collector, v string) (quiz.State, error) {
			return c.SetPregnancy(quiz.Pregnancy(v))
		}))
		r.Post("/quiz/next", handleNavigate(deps, quiz.EventNext))
		r.Post("/quiz/back", handleNavigate(deps, quiz.EventBack))
		r.Post("/quiz/retake", handleNavigate(deps, quiz.EventRetake))
		r.Post("/quiz/submit", handleSubmit(deps))

		r.Get("/dashboard", handleDashboard(deps))
		r.Get("/history", handleListHistory(deps))
		r.Delete("/history", handleClearHistory(deps))
		r.Get("/history/remote", handleRemoteHistory(deps))
		r.Get("/history/merged", handleMergedHistory(deps))
		r.Get("/history/{id}", handleGetHistory(deps))
	})

	return r
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(v)
}

type quizStateResponse struct {
	Step       int          `json:"step"`
	TotalSteps int          `json:"totalSteps"`
	Progress   int          `json:"progress"`
	Profile    quiz.Profile `json:"profile"`
}

func stateResponse(st quiz.State) quizStateResponse {
	return quizStateResponse{
		Step:       int(st.Step),
		TotalSteps: quiz.TotalSteps,
		Progress:   st.Progress(),
		Profile:    st.Profile,
	}
}

// quizError maps collector errors onto HTTP responses. Validation and
// gating problems are client errors; anything else is a server fault.
func quizError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, quiz.ErrInvalidAnswer),
		errors.Is(err, quiz.ErrEmptyAllergen),
		errors.Is(err, quiz.ErrDuplicateAllergen),
		errors.Is(err, quiz.ErrStepIncomplete),
		errors.Is(err, quiz.ErrInvalidTransition):
		httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
	default:
		httpError(w, http.StatusInternalServerError, "api_error", "%v", err)
	}
}

func handleGetQuiz(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := deps.Collector.State()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load quiz state: %v", err)
			return
		}
		writeJSON(w, stateResponse(st))
	}
}

type answerRequest struct {
	Value string `json:"value"`
}

func handleAnswer(deps AppDeps, apply func(*quiz.Collector, string) (quiz.State, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		var req answerRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}

		st, err := apply(deps.Collector, req.Value)
		if err != nil {
			quizError(w, err)
			return
		}
		writeJSON(w, stateResponse(st))
	}
}

func handleNavigate(deps AppDeps, event quiz.Event) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		st, err := deps.Collector.Apply(event)
		if err != nil {
			quizError(w, err)
			return
		}
		writeJSON(w, stateResponse(st))
	}
}

type submitResponse struct {
	SessionID string              `json:"sessionId"`
	Results   []recommend.Product `json:"results"`
	Message   string              `json:"message,omitempty"`
}

func handleSubmit(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		res, err := deps.Submitter.Submit(r.Context())
		if errors.Is(err, pipeline.ErrSubmissionInFlight) {
			httpError(w, http.StatusConflict, "conflict", "%v", err)
			return
		}
		if err != nil {
			quizError(w, err)
			return
		}

		if !res.Outcome.OK() {
			httpError(w, http.StatusBadGateway, "api_error", "%s", res.Outcome.Failure.Message)
			return
		}

		writeJSON(w, submitResponse{
			SessionID: res.Profile.SessionID,
			Results:   res.Outcome.Products,
			Message:   res.Outcome.Note,
		})
	}
}

func handleDashboard(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entry, err := deps.History.Latest()
		if errors.Is(err, history.ErrNoSession) {
			httpError(w, http.StatusNotFound, "not_found", "no completed session yet")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to load latest session: %v", err)
			return
		}
		writeJSON(w, entry)
	}
}

func handleListHistory(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)

		entries, err := deps.History.Local(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list history: %v", err)
			return
		}
		if entries == nil {
			entries = []history.Entry{}
		}
		writeJSON(w, entries)
	}
}

func handleClearHistory(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := deps.History.Clear(); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to clear history: %v", err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func handleRemoteHistory(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := deps.History.Remote(r.Context())
		if err != nil {
			remoteHistoryError(w, err)
			return
		}
		if entries == nil {
			entries = []history.Entry{}
		}
		writeJSON(w, entries)
	}
}

func handleMergedHistory(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries, err := deps.History.Merged(r.Context())
		if err != nil {
			remoteHistoryError(w, err)
			return
		}
		if entries == nil {
			entries = []history.Entry{}
		}
		writeJSON(w, entries)
	}
}

func remoteHistoryError(w http.ResponseWriter, err error) {
	if errors.Is(err, identity.ErrNoIdentity) {
		httpError(w, http.StatusNotFound, "not_found", "no account signed in")
		return
	}
	httpError(w, http.StatusBadGateway, "api_error", "history service unavailable: %v", err)
}

func handleGetHistory(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		entry, err := deps.History.Get(id)
		if errors.Is(err, history.ErrNoSession) {
			httpError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get session: %v", err)
			return
		}
		writeJSON(w, entry)
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/desertthunder/moodtape/internal/formatter"
	"github.com/desertthunder/moodtape/internal/models"
	"github.com/desertthunder/moodtape/internal/repositories"
	"github.com/desertthunder/moodtape/internal/shared"
	"github.com/desertthunder/moodtape/internal/tasks"
	"github.com/gorilla/mux"
)

// DefaultRequestTimeout bounds one recommendation request: every generation attempt plus the searches.
const DefaultRequestTimeout = 2 * time.Minute

const maxBodyBytes = 64 << 10

// Recommender runs the full pipeline for one intent.
type Recommender interface {
	Recommend(ctx context.Context, intent models.UserIntent, progress chan<- tasks.ProgressUpdate) (*tasks.Result, error)
}

// RunStore is the subset of the run repository the API reads and deletes from.
type RunStore interface {
	Find(ref string) (*models.Run, error)
	List(criteria map[string]any) ([]*models.Run, error)
	Delete(id string) error
}

// API serves recommendations and run history.
type API struct {
	recommender Recommender
	slot        *tasks.ResultSlot
	runs        RunStore
	logger      *log.Logger
	timeout     time.Duration
}

// APIOption configures an [API].
type APIOption func(*API)

// WithRunStore enables the /api/history routes. Without it they answer 503.
func WithRunStore(runs RunStore) APIOption {
	return func(a *API) { a.runs = runs }
}

// WithRequestTimeout overrides [DefaultRequestTimeout].
func WithRequestTimeout(d time.Duration) APIOption {
	return func(a *API) {
		if d > 0 {
			a.timeout = d
		}
	}
}

// NewAPI creates the API handler. slot is read by the /latest routes and should be the pipeline's own slot.
func NewAPI(recommender Recommender, slot *tasks.ResultSlot, logger *log.Logger, opts ...APIOption) *API {
	if logger == nil {
		logger = log.New(io.Discard)
	}
	if slot == nil {
		slot = &tasks.ResultSlot{}
	}
	a := &API{
		recommender: recommender,
		slot:        slot,
		logger:      shared.WithLogger(logger, "component", "api"),
		timeout:     DefaultRequestTimeout,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

const apiPrefix = "/api"

// RegisterRoutes implements [Handler].
func (a *API) RegisterRoutes(router *mux.Router) {
	// Routes sit on the root router so a method mismatch reaches its 405 handler.
	route := func(path string, h http.HandlerFunc, method string) {
		router.HandleFunc(apiPrefix+path, h).Methods(method)
	}
	route("/recommendations", a.CreateRecommendation, http.MethodPost)
	route("/recommendations/latest", a.LatestRecommendation, http.MethodGet)
	route("/recommendations/latest/export", a.ExportLatest, http.MethodGet)
	route("/history", a.ListHistory, http.MethodGet)
	route("/history/{id}", a.GetHistory, http.MethodGet)
	route("/history/{id}/export", a.ExportHistory, http.MethodGet)
	route("/history/{id}", a.DeleteHistory, http.MethodDelete)
}

// recommendationView is the JSON shape of a result or a saved run.
type recommendationView struct {
	RunID     string                `json:"run_id,omitempty"`
	Sequence  int                   `json:"sequence,omitempty"`
	Model     string                `json:"model"`
	Intent    models.UserIntent     `json:"intent"`
	Strategy  models.Strategy       `json:"strategy"`
	Tracks    []models.ExportRecord `json:"tracks"`
	CreatedAt time.Time             `json:"created_at"`
}

func resultView(r *tasks.Result) recommendationView {
	return recommendationView{
		RunID:     r.RunID,
		Model:     r.ModelID,
		Intent:    r.Intent,
		Strategy:  r.Strategy,
		Tracks:    r.Tracks.Records(),
		CreatedAt: r.CreatedAt,
	}
}

func runView(run *models.Run) recommendationView {
	return recommendationView{
		RunID:     run.ID(),
		Sequence:  run.Sequence(),
		Model:     run.ModelID(),
		Intent:    run.Intent(),
		Strategy:  run.Strategy(),
		Tracks:    run.Tracks().Records(),
		CreatedAt: run.CreatedAt(),
	}
}

// CreateRecommendation handles POST /api/recommendations
func (a *API) CreateRecommendation(w http.ResponseWriter, r *http.Request) {
	if a.recommender == nil {
		a.respondWithErr(w, shared.ErrServiceUnavailable)
		return
	}

	intent := models.NewUserIntent()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&intent); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), a.timeout)
	defer cancel()

	result, err := a.recommender.Recommend(ctx, intent, nil)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = fmt.Errorf("%w: %v", shared.ErrTimeout, err)
		}
		a.respondWithErr(w, err)
		return
	}

	respondWithJSON(w, http.StatusCreated, resultView(result))
}

// LatestRecommendation handles GET /api/recommendations/latest
func (a *API) LatestRecommendation(w http.ResponseWriter, r *http.Request) {
	result, ok := a.slot.Latest()
	if !ok {
		a.respondWithErr(w, shared.ErrNoResult)
		return
	}
	respondWithJSON(w, http.StatusOK, resultView(result))
}

// ExportLatest handles GET /api/recommendations/latest/export?format=
func (a *API) ExportLatest(w http.ResponseWriter, r *http.Request) {
	result, ok := a.slot.Latest()
	if !ok {
		a.respondWithErr(w, shared.ErrNoResult)
		return
	}
	a.export(w, r, result.Strategy, result.Tracks)
}

// ListHistory handles GET /api/history?limit=&market=
func (a *API) ListHistory(w http.ResponseWriter, r *http.Request) {
	if a.runs == nil {
		a.respondWithErr(w, shared.ErrServiceUnavailable)
		return
	}

	criteria := map[string]any{}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 1 {
			respondWithError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		criteria["limit"] = min(limit, repositories.MaxListLimit)
	}
	if market := r.URL.Query().Get("market"); market != "" {
		criteria["market"] = market
	}

	runs, err := a.runs.List(criteria)
	if err != nil {
		a.respondWithErr(w, err)
		return
	}

	views := make([]recommendationView, len(runs))
	for i, run := range runs {
		views[i] = runView(run)
	}
	respondWithJSON(w, http.StatusOK, map[string]any{"runs": views, "count": len(views)})
}

// GetHistory handles GET /api/history/{id}
func (a *API) GetHistory(w http.ResponseWriter, r *http.Request) {
	run, ok := a.findRun(w, r)
	if !ok {
		return
	}
	respondWithJSON(w, http.StatusOK, runView(run))
}

// ExportHistory handles GET /api/history/{id}/export?format=
func (a *API) ExportHistory(w http.ResponseWriter, r *http.Request) {
	run, ok := a.findRun(w, r)
	if !ok {
		return
	}
	a.export(w, r, run.Strategy(), run.Tracks())
}

// DeleteHistory handles DELETE /api/history/{id}
func (a *API) DeleteHistory(w http.ResponseWriter, r *http.Request) {
	run, ok := a.findRun(w, r)
	if !ok {
		return
	}
	if err := a.runs.Delete(run.ID()); err != nil {
		a.respondWithErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) findRun(w http.ResponseWriter, r *http.Request) (*models.Run, bool) {
	if a.runs == nil {
		a.respondWithErr(w, shared.ErrServiceUnavailable)
		return nil, false
	}
	run, err := a.runs.Find(mux.Vars(r)["id"])
	if err != nil {
		a.respondWithErr(w, err)
		return nil, false
	}
	return run, true
}

func (a *API) export(w http.ResponseWriter, r *http.Request, s models.Strategy, tracks models.TrackList) {
	format, err := formatter.ParseFormat(r.URL.Query().Get("format"))
	if err != nil {
		a.respondWithErr(w, err)
		return
	}

	body, err := formatter.Export(format, s, tracks)
	if err != nil {
		a.respondWithErr(w, err)
		return
	}

	w.Header().Set("Content-Type", formatter.ContentType(format))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", formatter.Filename(s.PlaylistTheme, format)))
	w.WriteHeader(http.StatusOK)
	w.Write(body)
}

// respondWithErr maps err to a status and a user-facing message. Internal errors are logged, never returned.
func (a *API) respondWithErr(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		a.logger.Error("request failed", "status", code, "error", err)
	}
	respondWithError(w, code, shared.UserMessage(err))
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, shared.ErrInvalidInput), errors.Is(err, shared.ErrInvalidFlag), errors.Is(err, shared.ErrInvalidArgument):
		return http.StatusBadRequest
	case errors.Is(err, shared.ErrRunNotFound), errors.Is(err, shared.ErrNoResult):
		return http.StatusNotFound
	case errors.Is(err, shared.ErrCatalogAuth), errors.Is(err, shared.ErrMissingCredentials), errors.Is(err, shared.ErrServiceUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, shared.ErrStrategyGeneration), errors.Is(err, shared.ErrCatalogRequest):
		return http.StatusBadGateway
	case errors.Is(err, shared.ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	response, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"failed to encode response"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	w.Write(response)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}

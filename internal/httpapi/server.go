// Package httpapi exposes the assessment pipeline over HTTP using chi's
// router and middleware stack.
package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"gohypo/app"
	"gohypo/domain/core"
	"gohypo/internal/drift"
	"gohypo/internal/memory"
)

// Server wraps the Orchestrator behind a chi router.
type Server struct {
	router       *chi.Mux
	orchestrator *app.Orchestrator
}

// NewServer builds a Server bound to the given Orchestrator.
func NewServer(orchestrator *app.Orchestrator) *Server {
	s := &Server{router: chi.NewRouter(), orchestrator: orchestrator}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.Compress(5))
}

func (s *Server) setupRoutes() {
	s.router.Get("/healthz", s.handleHealth)
	s.router.Post("/v1/assessments", s.handleAssess)
}

// ServeHTTP satisfies http.Handler so Server can be passed directly to
// http.ListenAndServe.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// assessRequestPayload is the wire shape external callers post; it maps
// directly onto app.AssessRequest, keeping the drift windows optional.
type assessRequestPayload struct {
	ImageRefs []string `json:"image_refs"`

	Agent      string `json:"agent"`
	PropertyID string `json:"property_id"`

	PropertyType  string `json:"property_type"`
	PropertyClass string `json:"property_class"`
	AgeBin        string `json:"age_bin"`
	Region        string `json:"region"`

	PropertyAgeYears float64 `json:"property_age_years"`
	LightingQuality  float64 `json:"lighting_quality"`
	ImageClarity     float64 `json:"image_clarity"`

	DamageTypeHint string `json:"damage_type_hint"`

	SystemPrompt string `json:"system_prompt"`
	UserPrompt   string `json:"user_prompt"`

	Drift *drift.Context `json:"drift,omitempty"`
}

func (s *Server) handleAssess(w http.ResponseWriter, r *http.Request) {
	var payload assessRequestPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	req := app.AssessRequest{
		ImageRefs:        payload.ImageRefs,
		Agent:            memory.AgentID(payload.Agent),
		PropertyID:       core.PropertyID(payload.PropertyID),
		PropertyType:     payload.PropertyType,
		PropertyClass:    payload.PropertyClass,
		AgeBin:           payload.AgeBin,
		Region:           payload.Region,
		PropertyAgeYears: payload.PropertyAgeYears,
		LightingQuality:  payload.LightingQuality,
		ImageClarity:     payload.ImageClarity,
		DamageTypeHint:   payload.DamageTypeHint,
		SystemPrompt:     payload.SystemPrompt,
		UserPrompt:       payload.UserPrompt,
		Drift:            payload.Drift,
	}

	result, err := s.orchestrator.Assess(r.Context(), req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(result)
}

package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pagesplit/pagesplit/internal/stats"
	"github.com/pagesplit/pagesplit/internal/store"
)

type HealthResponse struct {
	Status           string `json:"status"`
	ExperimentsCount int    `json:"experiments_count"`
	DBSizeBytes      int64  `json:"db_size_bytes"`
	UptimeSeconds    int64  `json:"uptime_seconds"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	experiments, err := s.store.ListExperiments(r.Context())
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var dbSize int64
	row := s.store.DB().QueryRow("SELECT page_count * page_size FROM pragma_page_count(), pragma_page_size()")
	_ = row.Scan(&dbSize)

	response := HealthResponse{
		Status:           "ok",
		ExperimentsCount: len(experiments),
		DBSizeBytes:      dbSize,
		UptimeSeconds:    int64(time.Since(s.startTime).Seconds()),
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// AssignRequest asks for a variant assignment for one visitor page view.
type AssignRequest struct {
	LandingPageID string `json:"landing_page_id"`
}

type AssignResponse struct {
	ExperimentID string               `json:"experiment_id"`
	VariantID    string               `json:"variant_id"`
	Content      store.ContentPayload `json:"content"`
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	setCORS(w, "POST, OPTIONS")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.LandingPageID == "" {
		http.Error(w, "landing_page_id required", http.StatusBadRequest)
		return
	}

	ctx := r.Context()

	exp, err := s.engine.ActiveExperiment(ctx, req.LandingPageID)
	if err != nil {
		s.logger.Error("active experiment lookup failed", zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if exp == nil {
		// No active experiment: caller renders its default content untracked.
		w.WriteHeader(http.StatusNoContent)
		return
	}

	variant, err := s.engine.SelectVariant(ctx, exp.ID)
	if err != nil {
		s.logger.Error("variant selection failed",
			zap.String("experiment_id", exp.ID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	if variant == nil {
		// The experiment completed between lookup and selection.
		w.WriteHeader(http.StatusNoContent)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(AssignResponse{
		ExperimentID: exp.ID,
		VariantID:    variant.ID,
		Content:      variant.Content,
	})
}

// ConvertRequest attributes a conversion to the variant the visitor was
// assigned at render time.
type ConvertRequest struct {
	ExperimentID string `json:"experiment_id"`
	VariantID    string `json:"variant_id"`
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	setCORS(w, "POST, OPTIONS")
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req ConvertRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.ExperimentID == "" || req.VariantID == "" {
		http.Error(w, "Missing required fields", http.StatusBadRequest)
		return
	}

	err := s.engine.RecordConversion(r.Context(), req.ExperimentID, req.VariantID)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Experiment not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.logger.Error("conversion tracking failed",
			zap.String("experiment_id", req.ExperimentID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CreateExperimentRequest carries the creation payload; the first variant
// is by convention the existing control content.
type CreateExperimentRequest struct {
	LandingPageID string                 `json:"landing_page_id"`
	Variants      []store.ContentPayload `json:"variants"`
}

func (s *Server) handleExperiments(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.listExperiments(w, r)
	case http.MethodPost:
		s.createExperiment(w, r)
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) createExperiment(w http.ResponseWriter, r *http.Request) {
	var req CreateExperimentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return
	}
	if req.LandingPageID == "" {
		http.Error(w, "landing_page_id required", http.StatusBadRequest)
		return
	}

	exp, err := s.store.CreateExperiment(r.Context(), req.LandingPageID, req.Variants)
	if errors.Is(err, store.ErrTooFewVariants) || errors.Is(err, store.ErrActiveExperimentExists) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err != nil {
		s.logger.Error("experiment creation failed",
			zap.String("landing_page_id", req.LandingPageID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	s.logger.Info("experiment created",
		zap.String("experiment_id", exp.ID),
		zap.String("landing_page_id", exp.LandingPageID),
		zap.Int("variants", len(exp.Variants)))

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(exp)
}

type experimentResults struct {
	Experiment   *store.Experiment     `json:"experiment"`
	Significance *significanceView     `json:"significance,omitempty"`
	Results      []stats.VariantResult `json:"results"`
}

type significanceView struct {
	Confident       bool    `json:"confident"`
	ConfidenceLevel float64 `json:"confidence_level"`
	LeadingVariant  int     `json:"leading_variant"`
}

func (s *Server) listExperiments(w http.ResponseWriter, r *http.Request) {
	experiments, err := s.store.ListExperiments(r.Context())
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	views := make([]experimentResults, len(experiments))
	for i, exp := range experiments {
		views[i] = buildResults(exp)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"experiments": views})
}

// handleExperiment serves /api/experiments/{id} and
// /api/experiments/{id}/winner.
func (s *Server) handleExperiment(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/experiments/")
	if rest == "" {
		http.NotFound(w, r)
		return
	}

	if id, ok := strings.CutSuffix(rest, "/winner"); ok {
		s.determineWinner(w, r, id)
		return
	}

	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	exp, err := s.engine.GetResults(r.Context(), rest)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Experiment not found", http.StatusNotFound)
		return
	}
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	results := buildResults(exp)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}

type winnerResponse struct {
	Winner *store.Variant `json:"winner"`
	// Determined is false when no variant has enough impressions yet;
	// the experiment stays active.
	Determined bool `json:"determined"`
}

func (s *Server) determineWinner(w http.ResponseWriter, r *http.Request, experimentID string) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	winner, err := s.engine.DetermineWinner(r.Context(), experimentID)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, "Experiment not found", http.StatusNotFound)
		return
	}
	if errors.Is(err, store.ErrAlreadyCompleted) {
		http.Error(w, "Experiment already completed", http.StatusConflict)
		return
	}
	if err != nil {
		s.logger.Error("winner determination failed",
			zap.String("experiment_id", experimentID), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(winnerResponse{
		Winner:     winner,
		Determined: winner != nil,
	})
}

func buildResults(exp *store.Experiment) experimentResults {
	view := experimentResults{Experiment: exp}

	result := stats.Analyze(exp)
	view.Results = result.Variants
	view.Significance = &significanceView{
		Confident:       result.Confident,
		ConfidenceLevel: result.ConfidenceLevel,
		LeadingVariant:  result.LeadingVariant,
	}

	return view
}

func setCORS(w http.ResponseWriter, methods string) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", methods)
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
}

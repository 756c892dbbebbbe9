// Package api exposes HTTP handlers for the classification service.
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"example.com/classification/internal/auth"
	"example.com/classification/internal/brief"
	"example.com/classification/internal/domain"
	"example.com/classification/internal/engine"
	"example.com/classification/internal/persistence"
	"example.com/classification/internal/registry"
)

// Handler coordinates HTTP requests with the engine, registry, and brief
// services.
type Handler struct {
	engine   *engine.Service
	trainer  *engine.Trainer
	registry *registry.Service
	briefs   *brief.Service
}

// NewHandler builds a Handler.
func NewHandler(eng *engine.Service, trainer *engine.Trainer, reg *registry.Service, briefs *brief.Service) *Handler {
	return &Handler{engine: eng, trainer: trainer, registry: reg, briefs: briefs}
}

// RegisterRoutes wires endpoints to the mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/v1/classifications", h.classifications)
	mux.HandleFunc("/v1/records/", h.recordHistory)
	mux.HandleFunc("/v1/models", h.models)
	mux.HandleFunc("/v1/models/", h.modelByID)
	mux.HandleFunc("/v1/brief", h.brief)
	mux.HandleFunc("/v1/feedback", h.feedback)
	mux.HandleFunc("/healthz", healthz)
}

// healthz reports a simple OK status for container health checks.
func healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) classifications(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeClassificationsWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope classifications:write required")
		return
	}

	var req ClassifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	result, err := h.engine.Classify(r.Context(), engine.ClassifyInput{
		TenantID:  claims.TenantID,
		RecordIDs: req.RecordIDs,
		From:      req.From,
		To:        req.To,
	})
	if err != nil {
		if errors.Is(err, domain.ErrUnmappedCluster) {
			writeError(w, http.StatusUnprocessableEntity, "unmapped_cluster", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	writeJSON(w, http.StatusOK, toClassifyResponse(result))
}

func (h *Handler) recordHistory(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	rest := strings.TrimPrefix(r.URL.Path, "/v1/records/")
	recordID, suffix, found := strings.Cut(rest, "/")
	if !found || suffix != "history" || recordID == "" {
		writeError(w, http.StatusNotFound, "not_found", "unknown resource")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeClassificationsRead) && !claims.HasScope(auth.ScopeClassificationsWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope classifications:read required")
		return
	}

	limit := 20
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			if parsed > 100 {
				parsed = 100
			}
			limit = parsed
		}
	}

	cursor, err := persistence.DecodeCursor(r.URL.Query().Get("cursor"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", "invalid cursor")
		return
	}

	decisions, next, err := h.engine.History(r.Context(), claims.TenantID, recordID, cursor, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]DecisionView, 0, len(decisions))
	for _, d := range decisions {
		items = append(items, toDecisionView(d))
	}
	writeJSON(w, http.StatusOK, HistoryResponse{
		Items:      items,
		NextCursor: persistence.EncodeCursor(next),
	})
}

func (h *Handler) models(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}

	switch r.Method {
	case http.MethodPost:
		h.trainModel(w, r, claims)
	case http.MethodGet:
		h.listModels(w, r, claims)
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) trainModel(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
	if !claims.HasScope(auth.ScopeModelsManage) {
		writeError(w, http.StatusForbidden, "forbidden", "scope models:manage required")
		return
	}

	var req TrainModelRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	model, invalid, err := h.trainer.Train(r.Context(), claims.TenantID, req.From, req.To, req.ParentModelID)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientTrainingData) {
			writeError(w, http.StatusUnprocessableEntity, "insufficient_training_data", err.Error())
			return
		}
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	resp := TrainModelResponse{ModelView: toModelView(*model)}
	for _, flagged := range invalid {
		resp.Invalid = append(resp.Invalid, InvalidRecordView{
			RecordID: flagged.RecordID,
			Field:    flagged.Field,
			Reason:   flagged.Reason,
		})
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (h *Handler) listModels(w http.ResponseWriter, r *http.Request, claims *auth.Claims) {
	if !claims.HasScope(auth.ScopeModelsManage) && !claims.HasScope(auth.ScopeClassificationsRead) {
		writeError(w, http.StatusForbidden, "forbidden", "scope models:manage required")
		return
	}

	models, err := h.registry.List(r.Context(), claims.TenantID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	items := make([]ModelView, 0, len(models))
	for _, m := range models {
		items = append(items, toModelView(m))
	}
	writeJSON(w, http.StatusOK, ListModelsResponse{Items: items})
}

func (h *Handler) modelByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/v1/models/")
	modelID, action, _ := strings.Cut(rest, "/")
	if modelID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "missing model id")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeModelsManage) {
		writeError(w, http.StatusForbidden, "forbidden", "scope models:manage required")
		return
	}

	switch {
	case r.Method == http.MethodPost && action == "activate":
		if err := h.registry.Activate(r.Context(), claims.TenantID, modelID); err != nil {
			if errors.Is(err, domain.ErrActivationConflict) {
				writeError(w, http.StatusConflict, "activation_conflict", err.Error())
				return
			}
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"model_id": modelID, "status": string(registry.StatusActive)})
	case r.Method == http.MethodGet && action == "":
		model, err := h.registry.Get(r.Context(), claims.TenantID, modelID)
		if err != nil {
			if errors.Is(err, domain.ErrModelNotFound) {
				writeError(w, http.StatusNotFound, "not_found", "model not found")
				return
			}
			writeError(w, http.StatusInternalServerError, "server_error", err.Error())
			return
		}
		writeJSON(w, http.StatusOK, toModelView(*model))
	default:
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
	}
}

func (h *Handler) brief(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeClassificationsRead) && !claims.HasScope(auth.ScopeClassificationsWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope classifications:read required")
		return
	}

	to := time.Now().UTC()
	from := to.AddDate(0, 0, -28)
	if raw := r.URL.Query().Get("from"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "invalid from timestamp")
			return
		}
		from = parsed
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "validation_failed", "invalid to timestamp")
			return
		}
		to = parsed
	}
	if !to.After(from) {
		writeError(w, http.StatusBadRequest, "validation_failed", "to must be after from")
		return
	}

	result, err := h.briefs.Get(r.Context(), claims.TenantID, from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) feedback(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "unsupported method")
		return
	}

	claims, ok := auth.FromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized", "missing bearer token")
		return
	}
	if !claims.HasScope(auth.ScopeClassificationsWrite) {
		writeError(w, http.StatusForbidden, "forbidden", "scope classifications:write required")
		return
	}

	var req FeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "unable to parse body")
		return
	}
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, "validation_failed", err.Error())
		return
	}

	fb, err := h.engine.SubmitFeedback(r.Context(), engine.FeedbackInput{
		TenantID:  claims.TenantID,
		RecordID:  req.RecordID,
		UserLabel: domain.Label(req.UserLabel),
		Certainty: req.Certainty,
		Comments:  req.Comments,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "server_error", err.Error())
		return
	}

	writeJSON(w, http.StatusCreated, FeedbackResponse{
		FeedbackID: fb.ID,
		RecordID:   fb.RecordID,
		AILabel:    string(fb.AILabel),
		UserLabel:  string(fb.UserLabel),
	})
}

// ClassifyRequest selects records by ids or by time window.
type ClassifyRequest struct {
	RecordIDs []string  `json:"record_ids,omitempty"`
	From      time.Time `json:"from,omitempty"`
	To        time.Time `json:"to,omitempty"`
}

// Validate ensures request correctness.
func (r ClassifyRequest) Validate() error {
	if len(r.RecordIDs) == 0 {
		if r.From.IsZero() || r.To.IsZero() {
			return errors.New("record_ids or a from/to window is required")
		}
		if !r.To.After(r.From) {
			return errors.New("to must be after from")
		}
	}
	return nil
}

// ClassifiedRecordView is one labeled record in the classify response.
type ClassifiedRecordView struct {
	RecordID      string  `json:"record_id"`
	Label         string  `json:"label"`
	Confidence    float64 `json:"confidence"`
	Source        string  `json:"source"`
	PreviousLabel string  `json:"previous_label,omitempty"`
}

// InvalidRecordView reports one skipped record.
type InvalidRecordView struct {
	RecordID string `json:"record_id"`
	Field    string `json:"field"`
	Reason   string `json:"reason"`
}

// ClassifyResponse is the batch outcome.
type ClassifyResponse struct {
	ModelID string                 `json:"model_id,omitempty"`
	Source  string                 `json:"source,omitempty"`
	Items   []ClassifiedRecordView `json:"items"`
	Invalid []InvalidRecordView    `json:"invalid,omitempty"`
}

func toClassifyResponse(result *engine.ClassifyResult) ClassifyResponse {
	resp := ClassifyResponse{
		ModelID: result.ModelID,
		Source:  string(result.Source),
		Items:   make([]ClassifiedRecordView, 0, len(result.Items)),
	}
	for _, item := range result.Items {
		resp.Items = append(resp.Items, ClassifiedRecordView{
			RecordID:      item.RecordID,
			Label:         string(item.Label),
			Confidence:    item.Confidence,
			Source:        string(item.Source),
			PreviousLabel: string(item.PreviousLabel),
		})
	}
	for _, invalid := range result.Invalid {
		resp.Invalid = append(resp.Invalid, InvalidRecordView{
			RecordID: invalid.RecordID,
			Field:    invalid.Field,
			Reason:   invalid.Reason,
		})
	}
	return resp
}

// DecisionView is one audit entry in the history response.
type DecisionView struct {
	DecisionID    string    `json:"decision_id"`
	RecordID      string    `json:"record_id"`
	ModelID       string    `json:"model_id,omitempty"`
	PreviousLabel string    `json:"previous_label,omitempty"`
	NewLabel      string    `json:"new_label"`
	Source        string    `json:"source"`
	Confidence    float64   `json:"confidence"`
	Reason        string    `json:"reason,omitempty"`
	DecidedAt     time.Time `json:"decided_at"`
}

func toDecisionView(d domain.Decision) DecisionView {
	return DecisionView{
		DecisionID:    d.ID,
		RecordID:      d.RecordID,
		ModelID:       d.ModelID,
		PreviousLabel: string(d.PreviousLabel),
		NewLabel:      string(d.NewLabel),
		Source:        string(d.Source),
		Confidence:    d.Confidence,
		Reason:        d.Reason,
		DecidedAt:     d.DecidedAt,
	}
}

// HistoryResponse packages history results.
type HistoryResponse struct {
	Items      []DecisionView `json:"items"`
	NextCursor string         `json:"next_cursor,omitempty"`
}

// TrainModelRequest is the payload for POST /v1/models.
type TrainModelRequest struct {
	From          time.Time `json:"from"`
	To            time.Time `json:"to"`
	ParentModelID *string   `json:"parent_model_id,omitempty"`
}

// Validate ensures request correctness.
func (r TrainModelRequest) Validate() error {
	if r.From.IsZero() || r.To.IsZero() {
		return errors.New("from and to are required")
	}
	if !r.To.After(r.From) {
		return errors.New("to must be after from")
	}
	return nil
}

// ModelView exposes registry metadata about a model.
type ModelView struct {
	ModelID       string    `json:"model_id"`
	Version       string    `json:"version"`
	Status        string    `json:"status"`
	ParentModelID *string   `json:"parent_model_id,omitempty"`
	TrainedFrom   time.Time `json:"trained_from"`
	TrainedTo     time.Time `json:"trained_to"`
	TrainingSize  int       `json:"training_size"`
	Inertia       float64   `json:"inertia"`
	TrainedAt     time.Time `json:"trained_at"`
}

func toModelView(m registry.Model) ModelView {
	return ModelView{
		ModelID:       m.ID,
		Version:       m.Version,
		Status:        string(m.Status),
		ParentModelID: m.ParentModelID,
		TrainedFrom:   m.TrainedFrom,
		TrainedTo:     m.TrainedTo,
		TrainingSize:  m.Metrics.TrainingSize,
		Inertia:       m.Metrics.Inertia,
		TrainedAt:     m.TrainedAt,
	}
}

// TrainModelResponse reports the registered model plus any records the
// training window excluded as invalid.
type TrainModelResponse struct {
	ModelView
	Invalid []InvalidRecordView `json:"invalid,omitempty"`
}

// ListModelsResponse packages model listings.
type ListModelsResponse struct {
	Items []ModelView `json:"items"`
}

// FeedbackRequest is the payload for POST /v1/feedback.
type FeedbackRequest struct {
	RecordID  string  `json:"record_id"`
	UserLabel string  `json:"user_label"`
	Certainty float64 `json:"certainty"`
	Comments  string  `json:"comments,omitempty"`
}

// Validate ensures request correctness.
func (r FeedbackRequest) Validate() error {
	if strings.TrimSpace(r.RecordID) == "" {
		return errors.New("record_id is required")
	}
	if !domain.Label(r.UserLabel).Valid() {
		return errors.New("user_label must be one of run, walk, mixed, outlier")
	}
	if r.Certainty < 0 || r.Certainty > 1 {
		return errors.New("certainty must be between 0 and 1")
	}
	return nil
}

// FeedbackResponse describes the stored correction.
type FeedbackResponse struct {
	FeedbackID string `json:"feedback_id"`
	RecordID   string `json:"record_id"`
	AILabel    string `json:"ai_label,omitempty"`
	UserLabel  string `json:"user_label"`
}

func writeError(w http.ResponseWriter, status int, code, detail string) {
	payload := map[string]string{
		"type":   code,
		"detail": detail,
	}
	writeJSON(w, status, payload)
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

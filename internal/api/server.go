package api

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/rosariomoscato/Design-Buddy/internal/credit"
	"github.com/rosariomoscato/Design-Buddy/internal/domain"
	"github.com/rosariomoscato/Design-Buddy/internal/id"
	"github.com/rosariomoscato/Design-Buddy/internal/queue"
	"github.com/rosariomoscato/Design-Buddy/internal/storage"
	"github.com/rosariomoscato/Design-Buddy/internal/store"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel/trace"
)

// DesignCreditCost is debited for every generation request.
const DesignCreditCost = 1

const creditHistoryLimit = 20

type Server struct {
	logger       *log.Logger
	credits      *credit.Service
	designs      store.DesignStore
	queueClient  queueEnqueuer
	storage      objectStorage
	presignTTL   time.Duration
	userIDHeader string
	rateLimiter  RateLimiter
	metrics      *metrics
	tracer       trace.Tracer
	mux          *http.ServeMux
}

type queueEnqueuer interface {
	EnqueueGenerateDesign(ctx context.Context, payload queue.GenerateDesignPayload) (*asynq.TaskInfo, error)
}

type objectStorage interface {
	WriteObject(ctx context.Context, objectKey string, data []byte, contentType string) error
	PresignedGetURL(ctx context.Context, objectKey string, expiry time.Duration) (string, error)
}

type Options struct {
	UserIDHeader string
	PresignTTL   time.Duration
	RateLimiter  RateLimiter
	Tracer       trace.Tracer
}

func NewServer(
	logger *log.Logger,
	credits *credit.Service,
	designs store.DesignStore,
	queueClient queueEnqueuer,
	storage objectStorage,
	opts Options,
) *Server {
	if opts.PresignTTL <= 0 {
		opts.PresignTTL = 15 * time.Minute
	}
	if strings.TrimSpace(opts.UserIDHeader) == "" {
		opts.UserIDHeader = "X-User-ID"
	}
	if storage == nil {
		storage = unavailableObjectStorage{}
	}

	s := &Server{
		logger:       logger,
		credits:      credits,
		designs:      designs,
		queueClient:  queueClient,
		storage:      storage,
		presignTTL:   opts.PresignTTL,
		userIDHeader: opts.UserIDHeader,
		rateLimiter:  opts.RateLimiter,
		metrics:      newMetrics(),
		tracer:       opts.Tracer,
		mux:          http.NewServeMux(),
	}
	s.routes()
	return s
}

type unavailableObjectStorage struct{}

func (unavailableObjectStorage) WriteObject(_ context.Context, _ string, _ []byte, _ string) error {
	return errors.New("object storage is unavailable")
}

func (unavailableObjectStorage) PresignedGetURL(_ context.Context, _ string, _ time.Duration) (string, error) {
	return "", errors.New("object storage is unavailable")
}

func (s *Server) Handler() http.Handler {
	return s.metrics.withHTTPMetrics(s.withTracing(s.withRateLimit(s.mux)))
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())
	s.mux.HandleFunc("POST /v1/users", s.handleProvisionUser)
	s.mux.HandleFunc("GET /v1/credits", s.handleGetCredits)
	s.mux.HandleFunc("POST /v1/designs", s.handleCreateDesign)
	s.mux.HandleFunc("GET /v1/designs/", s.handleGetDesign)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleProvisionUser grants the starting credits to the calling identity.
// It backs account provisioning, so a store failure here is surfaced as a
// hard error rather than a business result.
func (s *Server) handleProvisionUser(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.identity(w, r)
	if !ok {
		return
	}

	if err := s.credits.InitializeAccount(r.Context(), userID); err != nil {
		s.logger.Printf("initialize account failed user_id=%s err=%v", userID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to initialize account"})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"user_id": userID,
		"credits": domain.StartingCredits,
	})
}

func (s *Server) handleGetCredits(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.identity(w, r)
	if !ok {
		return
	}

	balance, err := s.credits.GetBalance(r.Context(), userID)
	if err != nil {
		s.logger.Printf("get balance failed user_id=%s err=%v", userID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to fetch credit information"})
		return
	}

	history, err := s.credits.GetHistory(r.Context(), userID, creditHistoryLimit)
	if err != nil {
		s.logger.Printf("get history failed user_id=%s err=%v", userID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to fetch credit information"})
		return
	}
	if history == nil {
		history = []domain.UsageRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"credits": balance,
		"history": history,
	})
}

func (s *Server) handleCreateDesign(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.identity(w, r)
	if !ok {
		return
	}

	var req domain.CreateDesignRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if err := req.Validate(); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	imageData, err := decodeImageData(req.ImageData)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	description := fmt.Sprintf("AI design generation for %s in %s style", req.RoomType, req.DesignStyle)
	debit := s.credits.Debit(r.Context(), userID, DesignCreditCost, description)
	if !debit.Success {
		s.metrics.debitsTotal.WithLabelValues("rejected").Inc()
		status, message := debitFailureResponse(debit.Err)
		writeJSON(w, status, map[string]string{"error": message})
		return
	}
	s.metrics.debitsTotal.WithLabelValues("ok").Inc()

	now := time.Now().UTC()
	designID := id.New()
	sourceKey := storage.SourceKey(designID)

	job := domain.DesignJob{
		ID:          designID,
		UserID:      userID,
		Status:      domain.DesignStatusCreated,
		RoomType:    strings.ToLower(strings.TrimSpace(req.RoomType)),
		DesignStyle: strings.ToLower(strings.TrimSpace(req.DesignStyle)),
		WebhookURL:  req.WebhookURL,
		SourceKey:   sourceKey,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := s.storage.WriteObject(r.Context(), sourceKey, imageData, "image/jpeg"); err != nil {
		s.logger.Printf("store source image failed design_id=%s err=%v", designID, err)
		s.refundSubmission(r.Context(), userID)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to store source image"})
		return
	}

	if err := s.designs.Create(r.Context(), job); err != nil {
		s.logger.Printf("create design job failed design_id=%s err=%v", designID, err)
		s.refundSubmission(r.Context(), userID)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to create design job"})
		return
	}

	payload := queue.GenerateDesignPayload{
		JobID:       job.ID,
		UserID:      userID,
		RoomType:    job.RoomType,
		DesignStyle: job.DesignStyle,
		SourceKey:   job.SourceKey,
		WebhookURL:  job.WebhookURL,
		CreditsUsed: DesignCreditCost,
		RequestedAt: now,
	}

	taskInfo, err := s.queueClient.EnqueueGenerateDesign(r.Context(), payload)
	if err != nil {
		s.logger.Printf("enqueue failed design_id=%s err=%v", job.ID, err)
		s.refundSubmission(r.Context(), userID)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to enqueue design generation"})
		return
	}
	s.metrics.designsEnqueued.WithLabelValues(taskInfo.Queue).Inc()

	if _, err := s.designs.UpdateStatus(r.Context(), job.ID, domain.DesignStatusQueued); err != nil {
		s.logger.Printf("update status failed design_id=%s err=%v", job.ID, err)
	}

	writeJSON(w, http.StatusAccepted, map[string]any{
		"design_id":         job.ID,
		"status":            domain.DesignStatusQueued,
		"remaining_credits": debit.NewBalance,
		"status_url":        fmt.Sprintf("/v1/designs/%s", job.ID),
	})
}

func (s *Server) handleGetDesign(w http.ResponseWriter, r *http.Request) {
	userID, ok := s.identity(w, r)
	if !ok {
		return
	}

	designID, err := extractDesignIDFromPath(r.URL.Path)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	job, found, err := s.designs.Get(r.Context(), designID)
	if err != nil {
		s.logger.Printf("fetch design failed design_id=%s err=%v", designID, err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "failed to load design"})
		return
	}
	if !found || job.UserID != userID {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "design not found"})
		return
	}

	response := map[string]any{
		"design_id":    job.ID,
		"status":       job.Status,
		"room_type":    job.RoomType,
		"design_style": job.DesignStyle,
		"created_at":   job.CreatedAt,
		"updated_at":   job.UpdatedAt,
	}
	if job.FailureReason != "" {
		response["failure_reason"] = job.FailureReason
	}
	if job.Status == domain.DesignStatusSucceeded && job.OutputKey != "" {
		url, err := s.storage.PresignedGetURL(r.Context(), job.OutputKey, s.presignTTL)
		if err != nil {
			s.logger.Printf("presign output failed design_id=%s err=%v", job.ID, err)
		} else {
			response["image_url"] = url
		}
	}

	writeJSON(w, http.StatusOK, response)
}

// identity resolves the calling user from the configured header. The
// actual authentication happened upstream; an absent header means the
// request never passed through it.
func (s *Server) identity(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID := strings.TrimSpace(r.Header.Get(s.userIDHeader))
	if userID == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "authentication required"})
		return "", false
	}
	return userID, true
}

// refundSubmission compensates the debit when the generation never made it
// onto the queue. Best effort, same as the worker-side refund protocol.
func (s *Server) refundSubmission(ctx context.Context, userID string) {
	s.metrics.refundsTotal.Inc()
	s.credits.Refund(ctx, userID, DesignCreditCost, "Refund: design generation could not be submitted")
}

func debitFailureResponse(err error) (int, string) {
	switch {
	case errors.Is(err, store.ErrInsufficientCredits):
		return http.StatusPaymentRequired, "insufficient credits"
	case errors.Is(err, store.ErrAccountNotFound):
		return http.StatusNotFound, "account not found"
	case errors.Is(err, credit.ErrInvalidAmount):
		return http.StatusBadRequest, "invalid credit amount"
	default:
		return http.StatusInternalServerError, "failed to use credits"
	}
}

func decodeImageData(data string) ([]byte, error) {
	data = strings.TrimSpace(data)
	// Browsers often submit data URLs; accept both forms.
	if idx := strings.Index(data, ";base64,"); idx >= 0 {
		data = data[idx+len(";base64,"):]
	}
	decoded, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		return nil, fmt.Errorf("invalid image_data: %w", err)
	}
	if len(decoded) == 0 {
		return nil, errors.New("invalid image_data: empty image")
	}
	return decoded, nil
}

func extractDesignIDFromPath(path string) (string, error) {
	trimmed := strings.TrimPrefix(path, "/v1/designs/")
	parts := strings.Split(strings.Trim(trimmed, "/"), "/")
	if len(parts) != 1 || parts[0] == "" {
		return "", errors.New("expected path format /v1/designs/{id}")
	}
	return parts[0], nil
}

func decodeJSON(r *http.Request, into any) error {
	const maxBodyBytes = 24 << 20
	limited := io.LimitReader(r.Body, maxBodyBytes)
	decoder := json.NewDecoder(limited)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON body: multiple JSON values are not allowed")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

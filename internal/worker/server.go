package worker

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/rosariomoscato/Design-Buddy/internal/config"
	"github.com/rosariomoscato/Design-Buddy/internal/credit"
	"github.com/rosariomoscato/Design-Buddy/internal/domain"
	"github.com/rosariomoscato/Design-Buddy/internal/genai"
	"github.com/rosariomoscato/Design-Buddy/internal/imageprep"
	"github.com/rosariomoscato/Design-Buddy/internal/queue"
	"github.com/rosariomoscato/Design-Buddy/internal/storage"
	"github.com/rosariomoscato/Design-Buddy/internal/store"
	"github.com/rosariomoscato/Design-Buddy/internal/webhook"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Server struct {
	logger        *log.Logger
	server        *asynq.Server
	sem           chan struct{}
	credits       *credit.Service
	designs       store.DesignStore
	storage       objectStorage
	generator     designGenerator
	prep          imageprep.Preprocessor
	webhookClient webhookSender
	metrics       *metrics
	tracer        trace.Tracer
}

type designGenerator interface {
	GenerateDesign(ctx context.Context, req genai.GenerateRequest) (genai.GenerateResult, error)
}

type objectStorage interface {
	ReadObject(ctx context.Context, objectKey string) ([]byte, error)
	WriteObject(ctx context.Context, objectKey string, data []byte, contentType string) error
}

type webhookSender interface {
	Send(ctx context.Context, endpoint, event string, payload any) error
}

func NewServer(
	logger *log.Logger,
	queueCfg config.QueueConfig,
	workerCfg config.WorkerConfig,
	credits *credit.Service,
	designs store.DesignStore,
	storageClient objectStorage,
	generator designGenerator,
	webhookClient *webhook.Client,
) (*Server, error) {
	if storageClient == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if generator == nil {
		return nil, fmt.Errorf("design generator is required")
	}

	prep, err := imageprep.New()
	if err != nil {
		return nil, fmt.Errorf("initialize image preprocessor: %w", err)
	}

	s := &Server{
		logger: logger,
		server: asynq.NewServer(
			queueCfg.RedisClientOpt(),
			asynq.Config{
				Concurrency: workerCfg.Concurrency,
				Queues: map[string]int{
					queueCfg.Name: 1,
				},
				LogLevel: asynq.InfoLevel,
				ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
					retried, _ := asynq.GetRetryCount(ctx)
					maxRetry, _ := asynq.GetMaxRetry(ctx)
					logger.Printf("task failed type=%s retry=%d/%d err=%v", task.Type(), retried, maxRetry, err)
				}),
			},
		),
		sem:           make(chan struct{}, max(1, workerCfg.MaxActiveJobs)),
		credits:       credits,
		designs:       designs,
		storage:       storageClient,
		generator:     generator,
		prep:          prep,
		webhookClient: webhookClient,
		metrics:       newMetrics(),
		tracer:        otel.Tracer("designbuddy/worker"),
	}
	return s, nil
}

func (s *Server) Run() error {
	mux := asynq.NewServeMux()
	mux.HandleFunc(queue.TypeGenerateDesign, s.handleGenerateDesign)
	return s.server.Run(mux)
}

func (s *Server) MetricsHandler() http.Handler {
	return s.metrics.Handler()
}

func (s *Server) handleGenerateDesign(ctx context.Context, task *asynq.Task) error {
	startedAt := time.Now()
	outcome := domain.DesignStatusFailed

	payload, err := queue.ParseGenerateDesignPayload(task)
	if err != nil {
		return fmt.Errorf("parse payload: %v: %w", err, asynq.SkipRetry)
	}

	ctx, span := s.tracer.Start(ctx, "worker.generate_design", trace.WithSpanKind(trace.SpanKindConsumer))
	span.SetAttributes(
		attribute.String("design.id", payload.JobID),
		attribute.String("design.room_type", payload.RoomType),
		attribute.String("design.style", payload.DesignStyle),
	)
	defer span.End()
	defer func() {
		s.metrics.jobDuration.WithLabelValues(outcome).Observe(time.Since(startedAt).Seconds())
		s.metrics.jobsTotal.WithLabelValues(outcome).Inc()
	}()

	s.sem <- struct{}{}
	s.metrics.activeJobs.Inc()
	defer func() {
		<-s.sem
		s.metrics.activeJobs.Dec()
	}()

	s.logger.Printf(
		"Generating... design_id=%s user_id=%s room=%s style=%s",
		payload.JobID,
		payload.UserID,
		payload.RoomType,
		payload.DesignStyle,
	)

	s.updateStatus(ctx, payload.JobID, domain.DesignStatusProcessing)

	sourceImage, err := s.storage.ReadObject(ctx, payload.SourceKey)
	if err != nil {
		span.RecordError(err)
		if s.lastAttempt(ctx) {
			span.SetStatus(codes.Error, "source image unavailable")
			s.failJob(ctx, payload, domain.FailureProviderError, err)
			return fmt.Errorf("read source image: %v: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("read source image: %w", err)
	}

	prepared, _, _, err := s.prep.PrepareJPEG(ctx, sourceImage, imageprep.DefaultMaxDimension, imageprep.DefaultJPEGQuality)
	if err != nil {
		// A photo that cannot be decoded is the caller's input, so the
		// debit stands and there is nothing to retry.
		span.RecordError(err)
		span.SetStatus(codes.Error, "source image invalid")
		s.failJob(ctx, payload, domain.FailureInvalidImage, err)
		return fmt.Errorf("prepare source image: %v: %w", err, asynq.SkipRetry)
	}

	result, err := s.generator.GenerateDesign(ctx, genai.GenerateRequest{
		RoomType:    payload.RoomType,
		DesignStyle: payload.DesignStyle,
		ImageJPEG:   prepared,
	})
	if err != nil {
		span.RecordError(err)
		reason := genai.FailureReason(err)
		if reason == domain.FailureProviderError && !s.lastAttempt(ctx) {
			// Transient provider trouble: let asynq retry before giving
			// the credit back.
			return fmt.Errorf("generate design: %w", err)
		}
		span.SetStatus(codes.Error, "generation failed")
		s.failJob(ctx, payload, reason, err)
		return fmt.Errorf("generate design: %v: %w", err, asynq.SkipRetry)
	}

	outputKey := storage.OutputKey(payload.JobID, result.MimeType)
	if err := s.storage.WriteObject(ctx, outputKey, result.ImageData, result.MimeType); err != nil {
		span.RecordError(err)
		if s.lastAttempt(ctx) {
			span.SetStatus(codes.Error, "store output failed")
			s.failJob(ctx, payload, domain.FailureProviderError, err)
			return fmt.Errorf("store generated image: %v: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("store generated image: %w", err)
	}

	if _, err := s.designs.MarkSucceeded(ctx, payload.JobID, outputKey); err != nil {
		s.logger.Printf("mark succeeded failed design_id=%s err=%v", payload.JobID, err)
	}
	s.metrics.imagesGenerated.Inc()

	s.logger.Printf("Generated design_id=%s output=%s bytes=%d", payload.JobID, outputKey, len(result.ImageData))

	// Delivery failure is not worth re-running a finished generation;
	// the webhook client already retried internally.
	if err := s.dispatchWebhook(ctx, payload, webhook.EventDesignCompleted, map[string]any{
		"design_id":    payload.JobID,
		"status":       domain.DesignStatusSucceeded,
		"room_type":    payload.RoomType,
		"design_style": payload.DesignStyle,
		"output_key":   outputKey,
		"requested_at": payload.RequestedAt,
		"completed_at": time.Now().UTC(),
	}); err != nil {
		span.RecordError(err)
	}

	outcome = domain.DesignStatusSucceeded
	span.SetStatus(codes.Ok, "generated")
	return nil
}

// failJob finalizes an abandoned generation: the job is marked failed
// with its classified reason, the debit is refunded when the failure is
// provider-attributable, and the failure webhook goes out. The refund is
// best effort and never blocks the rest of the cleanup.
func (s *Server) failJob(ctx context.Context, payload queue.GenerateDesignPayload, reason string, cause error) {
	if _, err := s.designs.MarkFailed(ctx, payload.JobID, reason); err != nil {
		s.logger.Printf("mark failed errored design_id=%s err=%v", payload.JobID, err)
	}

	if domain.ProviderAttributable(reason) && payload.CreditsUsed > 0 {
		s.credits.Refund(ctx, payload.UserID, payload.CreditsUsed, refundDescription(reason))
		s.metrics.creditsRefunded.Add(float64(payload.CreditsUsed))
	}

	if err := s.dispatchWebhook(ctx, payload, webhook.EventDesignFailed, map[string]any{
		"design_id":      payload.JobID,
		"status":         domain.DesignStatusFailed,
		"failure_reason": reason,
		"requested_at":   payload.RequestedAt,
		"failed_at":      time.Now().UTC(),
		"error":          cause.Error(),
	}); err != nil {
		s.logger.Printf("failure webhook errored design_id=%s err=%v", payload.JobID, err)
	}
}

func refundDescription(reason string) string {
	switch reason {
	case domain.FailureRegionRestricted:
		return "Refund due to geographical restrictions"
	case domain.FailureQuotaExhausted:
		return "Refund due to provider quota exhaustion"
	default:
		return "Refund: design generation failed"
	}
}

func (s *Server) lastAttempt(ctx context.Context) bool {
	retried, ok := asynq.GetRetryCount(ctx)
	if !ok {
		return true
	}
	maxRetry, ok := asynq.GetMaxRetry(ctx)
	if !ok {
		return true
	}
	return retried >= maxRetry
}

func (s *Server) updateStatus(ctx context.Context, designID, status string) {
	if s.designs == nil {
		return
	}
	if _, err := s.designs.UpdateStatus(ctx, designID, status); err != nil {
		s.logger.Printf("design status update failed design_id=%s status=%s err=%v", designID, status, err)
	}
}

func (s *Server) dispatchWebhook(ctx context.Context, payload queue.GenerateDesignPayload, event string, body map[string]any) error {
	if payload.WebhookURL == "" || s.webhookClient == nil {
		return nil
	}

	if err := s.webhookClient.Send(ctx, payload.WebhookURL, event, body); err != nil {
		s.logger.Printf("webhook delivery failed design_id=%s event=%s err=%v", payload.JobID, event, err)
		return fmt.Errorf("dispatch webhook: %w", err)
	}

	return nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

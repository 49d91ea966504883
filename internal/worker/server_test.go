package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io"
	"log"
	"sync"
	"testing"

	"github.com/rosariomoscato/Design-Buddy/internal/credit"
	"github.com/rosariomoscato/Design-Buddy/internal/domain"
	"github.com/rosariomoscato/Design-Buddy/internal/genai"
	"github.com/rosariomoscato/Design-Buddy/internal/imageprep"
	"github.com/rosariomoscato/Design-Buddy/internal/queue"
	"github.com/rosariomoscato/Design-Buddy/internal/store"
	"github.com/hibiken/asynq"
	"go.opentelemetry.io/otel"
)

type fakeGenerator struct {
	result genai.GenerateResult
	err    error

	mu    sync.Mutex
	calls int
}

func (f *fakeGenerator) GenerateDesign(_ context.Context, _ genai.GenerateRequest) (genai.GenerateResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return genai.GenerateResult{}, f.err
	}
	return f.result, nil
}

type memoryObjectStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemoryObjectStorage() *memoryObjectStorage {
	return &memoryObjectStorage{objects: make(map[string][]byte)}
}

func (m *memoryObjectStorage) ReadObject(_ context.Context, objectKey string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[objectKey]
	if !ok {
		return nil, fmt.Errorf("object %q not found", objectKey)
	}
	return data, nil
}

func (m *memoryObjectStorage) WriteObject(_ context.Context, objectKey string, data []byte, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[objectKey] = append([]byte(nil), data...)
	return nil
}

type testEnv struct {
	server  *Server
	ledger  *store.MemoryLedgerStore
	designs *store.MemoryDesignStore
	storage *memoryObjectStorage
	credits *credit.Service
}

func newTestEnv(t *testing.T, generator *fakeGenerator) *testEnv {
	t.Helper()

	logger := log.New(io.Discard, "", 0)
	ledger := store.NewMemoryLedgerStore()
	designs := store.NewMemoryDesignStore()
	storage := newMemoryObjectStorage()
	credits := credit.NewService(ledger, logger)

	prep, err := imageprep.New()
	if err != nil {
		t.Fatalf("imageprep.New: %v", err)
	}

	return &testEnv{
		server: &Server{
			logger:    logger,
			sem:       make(chan struct{}, 2),
			credits:   credits,
			designs:   designs,
			storage:   storage,
			generator: generator,
			prep:      prep,
			metrics:   newMetrics(),
			tracer:    otel.Tracer("designbuddy/worker_test"),
		},
		ledger:  ledger,
		designs: designs,
		storage: storage,
		credits: credits,
	}
}

func buildTestPNG(t *testing.T, width, height int) []byte {
	t.Helper()

	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x % 256), G: uint8(y % 256), B: 120, A: 255})
		}
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

// seedJob provisions an account, applies the submit-time debit, stores a
// source photo, and persists the job the same way the API does before
// enqueueing, returning the payload the worker would receive.
func seedJob(t *testing.T, env *testEnv, sourceImage []byte) queue.GenerateDesignPayload {
	t.Helper()
	ctx := context.Background()

	if err := env.credits.InitializeAccount(ctx, "user-1"); err != nil {
		t.Fatalf("initialize account: %v", err)
	}
	debit := env.credits.Debit(ctx, "user-1", 1, "Design generation")
	if !debit.Success {
		t.Fatalf("debit: %v", debit.Err)
	}

	sourceKey := "uploads/job-1/source.png"
	if err := env.storage.WriteObject(ctx, sourceKey, sourceImage, "image/png"); err != nil {
		t.Fatalf("store source image: %v", err)
	}

	job := domain.DesignJob{
		ID:          "job-1",
		UserID:      "user-1",
		Status:      domain.DesignStatusQueued,
		RoomType:    "living_room",
		DesignStyle: "modern",
		SourceKey:   sourceKey,
	}
	if err := env.designs.Create(ctx, job); err != nil {
		t.Fatalf("create design job: %v", err)
	}

	return queue.GenerateDesignPayload{
		JobID:       job.ID,
		UserID:      job.UserID,
		RoomType:    job.RoomType,
		DesignStyle: job.DesignStyle,
		SourceKey:   job.SourceKey,
		CreditsUsed: 1,
	}
}

func getJob(t *testing.T, env *testEnv, id string) domain.DesignJob {
	t.Helper()

	job, found, err := env.designs.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if !found {
		t.Fatalf("job %q not found", id)
	}
	return job
}

func runTask(t *testing.T, env *testEnv, payload queue.GenerateDesignPayload) error {
	t.Helper()

	task, err := queue.NewGenerateDesignTask(payload)
	if err != nil {
		t.Fatalf("build task: %v", err)
	}
	return env.server.handleGenerateDesign(context.Background(), task)
}

func TestGenerateDesignSuccessStoresOutputAndKeepsDebit(t *testing.T) {
	generator := &fakeGenerator{result: genai.GenerateResult{
		ImageData: []byte("generated-bytes"),
		MimeType:  "image/png",
	}}
	env := newTestEnv(t, generator)
	payload := seedJob(t, env, buildTestPNG(t, 64, 48))

	if err := runTask(t, env, payload); err != nil {
		t.Fatalf("handleGenerateDesign: %v", err)
	}

	job := getJob(t, env, payload.JobID)
	if job.Status != domain.DesignStatusSucceeded {
		t.Fatalf("status = %q, want %q", job.Status, domain.DesignStatusSucceeded)
	}
	if job.OutputKey != "outputs/job-1/design.png" {
		t.Fatalf("output key = %q", job.OutputKey)
	}

	stored, err := env.storage.ReadObject(context.Background(), job.OutputKey)
	if err != nil {
		t.Fatalf("read output: %v", err)
	}
	if !bytes.Equal(stored, []byte("generated-bytes")) {
		t.Fatal("stored output does not match generated image")
	}

	balance, err := env.credits.GetBalance(context.Background(), payload.UserID)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if want := int64(domain.StartingCredits - 1); balance != want {
		t.Fatalf("balance = %d, want %d", balance, want)
	}
	records, err := env.credits.GetHistory(context.Background(), payload.UserID, 10)
	if err != nil {
		t.Fatalf("get history: %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("usage records = %d, want 1", len(records))
	}
	if generator.calls != 1 {
		t.Fatalf("generator calls = %d, want 1", generator.calls)
	}
}

func TestGenerateDesignRegionRestrictionRefundsDebit(t *testing.T) {
	generator := &fakeGenerator{err: fmt.Errorf("generate: %w", genai.ErrRegionRestricted)}
	env := newTestEnv(t, generator)
	payload := seedJob(t, env, buildTestPNG(t, 64, 48))

	err := runTask(t, env, payload)
	if err == nil {
		t.Fatal("expected task error")
	}
	if !asynqSkipRetry(err) {
		t.Fatalf("err = %v, want SkipRetry", err)
	}

	job := getJob(t, env, payload.JobID)
	if job.Status != domain.DesignStatusFailed {
		t.Fatalf("status = %q, want %q", job.Status, domain.DesignStatusFailed)
	}
	if job.FailureReason != domain.FailureRegionRestricted {
		t.Fatalf("failure reason = %q, want %q", job.FailureReason, domain.FailureRegionRestricted)
	}

	balance, balErr := env.credits.GetBalance(context.Background(), payload.UserID)
	if balErr != nil {
		t.Fatalf("get balance: %v", balErr)
	}
	if want := int64(domain.StartingCredits); balance != want {
		t.Fatalf("balance after refund = %d, want %d", balance, want)
	}

	records, histErr := env.credits.GetHistory(context.Background(), payload.UserID, 10)
	if histErr != nil {
		t.Fatalf("get history: %v", histErr)
	}
	if len(records) != 2 {
		t.Fatalf("usage records = %d, want debit plus refund", len(records))
	}
	if records[0].Delta != 1 || records[1].Delta != -1 {
		t.Fatalf("record deltas = %d,%d, want 1,-1", records[0].Delta, records[1].Delta)
	}
}

func TestGenerateDesignInvalidSourceImageKeepsDebit(t *testing.T) {
	generator := &fakeGenerator{}
	env := newTestEnv(t, generator)
	payload := seedJob(t, env, []byte("definitely not an image"))

	err := runTask(t, env, payload)
	if err == nil {
		t.Fatal("expected task error")
	}
	if !asynqSkipRetry(err) {
		t.Fatalf("err = %v, want SkipRetry", err)
	}
	if generator.calls != 0 {
		t.Fatalf("generator calls = %d, want 0", generator.calls)
	}

	job := getJob(t, env, payload.JobID)
	if job.FailureReason != domain.FailureInvalidImage {
		t.Fatalf("failure reason = %q, want %q", job.FailureReason, domain.FailureInvalidImage)
	}

	balance, balErr := env.credits.GetBalance(context.Background(), payload.UserID)
	if balErr != nil {
		t.Fatalf("get balance: %v", balErr)
	}
	if want := int64(domain.StartingCredits - 1); balance != want {
		t.Fatalf("balance = %d, want debit kept at %d", balance, want)
	}
}

func TestGenerateDesignQuotaExhaustionRefundsDebit(t *testing.T) {
	generator := &fakeGenerator{err: genai.ErrQuotaExhausted}
	env := newTestEnv(t, generator)
	payload := seedJob(t, env, buildTestPNG(t, 64, 48))

	if err := runTask(t, env, payload); err == nil {
		t.Fatal("expected task error")
	}

	balance, err := env.credits.GetBalance(context.Background(), payload.UserID)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	if want := int64(domain.StartingCredits); balance != want {
		t.Fatalf("balance after refund = %d, want %d", balance, want)
	}

	job := getJob(t, env, payload.JobID)
	if job.FailureReason != domain.FailureQuotaExhausted {
		t.Fatalf("failure reason = %q, want %q", job.FailureReason, domain.FailureQuotaExhausted)
	}
}

func asynqSkipRetry(err error) bool {
	return errors.Is(err, asynq.SkipRetry)
}

package genai

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func newTestClient(baseURL string) *Client {
	return NewClient(Config{
		APIKey:         "test-key",
		Model:          "test-model",
		BaseURL:        baseURL,
		Timeout:        2 * time.Second,
		MaxAttempts:    2,
		InitialBackoff: 5 * time.Millisecond,
		MaxBackoff:     10 * time.Millisecond,
	})
}

func TestGenerateDesignReturnsImage(t *testing.T) {
	imageData := base64.StdEncoding.EncodeToString([]byte("fake-image-bytes"))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("x-goog-api-key") != "test-key" {
			t.Errorf("expected api key header, got %q", r.Header.Get("x-goog-api-key"))
		}
		if !strings.HasSuffix(r.URL.Path, "models/test-model:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"here"},{"inlineData":{"mimeType":"image/png","data":"` + imageData + `"}}]}}]}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	result, err := client.GenerateDesign(context.Background(), GenerateRequest{
		RoomType:    "kitchen",
		DesignStyle: "modern",
		ImageJPEG:   []byte("source"),
	})
	if err != nil {
		t.Fatalf("generate design: %v", err)
	}
	if string(result.ImageData) != "fake-image-bytes" {
		t.Fatalf("unexpected image data %q", result.ImageData)
	}
	if result.MimeType != "image/png" {
		t.Fatalf("unexpected mime type %q", result.MimeType)
	}
	if !strings.Contains(result.Prompt, "kitchen") || !strings.Contains(result.Prompt, "modern") {
		t.Fatalf("prompt missing room or style: %q", result.Prompt)
	}
}

func TestGenerateDesignClassifiesRegionRestriction(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"code":400,"message":"User location is not supported for the API use.","status":"FAILED_PRECONDITION"}}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	_, err := client.GenerateDesign(context.Background(), GenerateRequest{
		RoomType:    "kitchen",
		DesignStyle: "modern",
		ImageJPEG:   []byte("source"),
	})
	if !errors.Is(err, ErrRegionRestricted) {
		t.Fatalf("expected ErrRegionRestricted, got %v", err)
	}
}

func TestGenerateDesignClassifiesQuotaExhaustion(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"code":429,"message":"Resource has been exhausted","status":"RESOURCE_EXHAUSTED"}}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	_, err := client.GenerateDesign(context.Background(), GenerateRequest{
		RoomType:    "kitchen",
		DesignStyle: "modern",
		ImageJPEG:   []byte("source"),
	})
	if !errors.Is(err, ErrQuotaExhausted) {
		t.Fatalf("expected ErrQuotaExhausted, got %v", err)
	}
}

func TestGenerateDesignRetriesTransientFailures(t *testing.T) {
	attempts := 0
	imageData := base64.StdEncoding.EncodeToString([]byte("ok"))
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"error":{"code":502,"message":"upstream unavailable","status":"UNAVAILABLE"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"inlineData":{"mimeType":"image/png","data":"` + imageData + `"}}]}}]}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	result, err := client.GenerateDesign(context.Background(), GenerateRequest{
		RoomType:    "bedroom",
		DesignStyle: "rustic",
		ImageJPEG:   []byte("source"),
	})
	if err != nil {
		t.Fatalf("generate design: %v", err)
	}
	if attempts != 2 {
		t.Fatalf("expected 2 attempts, got %d", attempts)
	}
	if string(result.ImageData) != "ok" {
		t.Fatalf("unexpected image data %q", result.ImageData)
	}
}

func TestGenerateDesignNoImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"sorry, text only"}]}}]}`))
	}))
	defer srv.Close()

	client := newTestClient(srv.URL)
	_, err := client.GenerateDesign(context.Background(), GenerateRequest{
		RoomType:    "kitchen",
		DesignStyle: "modern",
		ImageJPEG:   []byte("source"),
	})
	if !errors.Is(err, ErrNoImage) {
		t.Fatalf("expected ErrNoImage, got %v", err)
	}
}

func TestFailureReason(t *testing.T) {
	if got := FailureReason(ErrRegionRestricted); got != "region_restricted" {
		t.Fatalf("expected region_restricted, got %s", got)
	}
	if got := FailureReason(ErrQuotaExhausted); got != "quota_exhausted" {
		t.Fatalf("expected quota_exhausted, got %s", got)
	}
	if got := FailureReason(errors.New("boom")); got != "provider_error" {
		t.Fatalf("expected provider_error, got %s", got)
	}
}

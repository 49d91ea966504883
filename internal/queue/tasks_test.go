package queue

import (
	"testing"
	"time"
)

func TestGenerateDesignTaskRoundTrip(t *testing.T) {
	payload := GenerateDesignPayload{
		JobID:       "design-123",
		UserID:      "user-1",
		RoomType:    "kitchen",
		DesignStyle: "modern",
		SourceKey:   "uploads/design-123/source.jpg",
		CreditsUsed: 1,
		RequestedAt: time.Now().UTC(),
	}

	task, err := NewGenerateDesignTask(payload)
	if err != nil {
		t.Fatalf("NewGenerateDesignTask returned error: %v", err)
	}
	if task.Type() != TypeGenerateDesign {
		t.Fatalf("expected task type %q, got %q", TypeGenerateDesign, task.Type())
	}

	parsed, err := ParseGenerateDesignPayload(task)
	if err != nil {
		t.Fatalf("ParseGenerateDesignPayload returned error: %v", err)
	}

	if parsed.JobID != payload.JobID {
		t.Fatalf("expected job_id %q, got %q", payload.JobID, parsed.JobID)
	}
	if parsed.RoomType != "kitchen" || parsed.DesignStyle != "modern" {
		t.Fatalf("unexpected room/style: %s/%s", parsed.RoomType, parsed.DesignStyle)
	}
	if parsed.CreditsUsed != 1 {
		t.Fatalf("expected credits_used 1, got %d", parsed.CreditsUsed)
	}
}

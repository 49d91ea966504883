package queue

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

const TypeGenerateDesign = "design:generate"

type GenerateDesignPayload struct {
	JobID       string    `json:"job_id"`
	UserID      string    `json:"user_id"`
	RoomType    string    `json:"room_type"`
	DesignStyle string    `json:"design_style"`
	SourceKey   string    `json:"source_key"`
	WebhookURL  string    `json:"webhook_url,omitempty"`
	CreditsUsed int64     `json:"credits_used"`
	RequestedAt time.Time `json:"requested_at"`
}

func NewGenerateDesignTask(payload GenerateDesignPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal generate payload: %w", err)
	}
	return asynq.NewTask(TypeGenerateDesign, body), nil
}

func ParseGenerateDesignPayload(task *asynq.Task) (GenerateDesignPayload, error) {
	var payload GenerateDesignPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return GenerateDesignPayload{}, fmt.Errorf("unmarshal generate payload: %w", err)
	}
	return payload, nil
}

package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	DesignStatusCreated    = "created"
	DesignStatusQueued     = "queued"
	DesignStatusProcessing = "processing"
	DesignStatusSucceeded  = "succeeded"
	DesignStatusFailed     = "failed"
)

// Failure reasons recorded on a design job when generation does not
// complete. All but FailureInvalidImage are attributable to the provider
// side of the generation and trigger the credit refund protocol; an
// undecodable upload is the caller's own input and is not refunded.
const (
	FailureRegionRestricted = "region_restricted"
	FailureQuotaExhausted   = "quota_exhausted"
	FailureProviderError    = "provider_error"
	FailureInvalidImage     = "invalid_image"
)

var roomTypes = map[string]bool{
	"living room": true,
	"bedroom":     true,
	"kitchen":     true,
	"bathroom":    true,
	"dining room": true,
	"home office": true,
	"nursery":     true,
	"balcony":     true,
}

var designStyles = map[string]bool{
	"modern":        true,
	"minimalist":    true,
	"scandinavian":  true,
	"industrial":    true,
	"bohemian":      true,
	"rustic":        true,
	"mid-century":   true,
	"traditional":   true,
	"japandi":       true,
	"mediterranean": true,
}

type CreateDesignRequest struct {
	RoomType    string `json:"room_type"`
	DesignStyle string `json:"design_style"`
	// ImageData is the uploaded room photo, base64-encoded JPEG or PNG.
	ImageData  string `json:"image_data"`
	WebhookURL string `json:"webhook_url,omitempty"`
}

type DesignJob struct {
	ID            string
	UserID        string
	Status        string
	RoomType      string
	DesignStyle   string
	WebhookURL    string
	SourceKey     string
	OutputKey     string
	FailureReason string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

func (r CreateDesignRequest) Validate() error {
	roomType := strings.ToLower(strings.TrimSpace(r.RoomType))
	if roomType == "" {
		return errors.New("room_type is required")
	}
	if !roomTypes[roomType] {
		return fmt.Errorf("unsupported room_type: %s", r.RoomType)
	}

	style := strings.ToLower(strings.TrimSpace(r.DesignStyle))
	if style == "" {
		return errors.New("design_style is required")
	}
	if !designStyles[style] {
		return fmt.Errorf("unsupported design_style: %s", r.DesignStyle)
	}

	if strings.TrimSpace(r.ImageData) == "" {
		return errors.New("image_data is required")
	}
	return nil
}

// ProviderAttributable reports whether a failure reason obliges a credit
// refund: the user paid for an operation the provider could not deliver.
func ProviderAttributable(reason string) bool {
	switch reason {
	case FailureRegionRestricted, FailureQuotaExhausted, FailureProviderError:
		return true
	default:
		return false
	}
}

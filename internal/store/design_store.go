package store

import (
	"context"
	"errors"

	"github.com/rosariomoscato/Design-Buddy/internal/domain"
)

var ErrDesignNotFound = errors.New("design job not found")

type DesignStore interface {
	Create(ctx context.Context, job domain.DesignJob) error
	Get(ctx context.Context, id string) (domain.DesignJob, bool, error)
	UpdateStatus(ctx context.Context, id, status string) (domain.DesignJob, error)
	// MarkSucceeded records the generated image's object key alongside the
	// terminal status.
	MarkSucceeded(ctx context.Context, id, outputKey string) (domain.DesignJob, error)
	// MarkFailed records the classified failure reason alongside the
	// terminal status.
	MarkFailed(ctx context.Context, id, reason string) (domain.DesignJob, error)
}

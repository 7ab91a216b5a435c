// Package sink delivers finished transcripts to downstream consumers.
package sink

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Transcript is one handled wake-word trigger.
type Transcript struct {
	Text          string    `json:"text"`
	Label         string    `json:"label"`
	Score         float64   `json:"score"`
	CorrelationID string    `json:"correlation_id"`
	DetectedAt    time.Time `json:"detected_at"`
	HandledAt     time.Time `json:"handled_at"`
}

type Sink interface {
	Deliver(ctx context.Context, t Transcript) error
	Close() error
}

// Multi fans a transcript out to every sink. Every sink is attempted even
// when an earlier one fails.
type Multi []Sink

func (m Multi) Deliver(ctx context.Context, t Transcript) error {
	var errs []error
	for i, s := range m {
		if err := s.Deliver(ctx, t); err != nil {
			errs = append(errs, fmt.Errorf("sink %d: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

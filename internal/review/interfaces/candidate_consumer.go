package interfaces

import (
	"context"
	"errors"

	recordevents "bms-cloud/internal/records/application/events"
	reviewapp "bms-cloud/internal/review/application"
)

// CandidateConsumer adapts new-system-candidate events into the review
// application service.
type CandidateConsumer struct {
	app *reviewapp.Service
}

// NewCandidateConsumer constructs a consumer.
func NewCandidateConsumer(app *reviewapp.Service) (*CandidateConsumer, error) {
	if app == nil {
		return nil, errors.New("review consumer: nil service")
	}
	return &CandidateConsumer{app: app}, nil
}

// Consume handles a new system candidate event.
func (c *CandidateConsumer) Consume(ctx context.Context, event recordevents.NewSystemCandidate) error {
	return c.app.HandleCandidate(ctx, event)
}

package notify

import (
	"context"

	reviewapp "bms-cloud/internal/review/application"
)

// MultiNotifier dispatches review events to multiple notifiers.
type MultiNotifier struct {
	notifiers []reviewapp.ReviewNotifier
}

// NewMultiNotifier constructs a MultiNotifier.
func NewMultiNotifier(notifiers ...reviewapp.ReviewNotifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Notify forwards events to all notifiers.
func (m *MultiNotifier) Notify(ctx context.Context, event reviewapp.ReviewEvent) {
	if m == nil {
		return
	}
	for _, notifier := range m.notifiers {
		if notifier != nil {
			notifier.Notify(ctx, event)
		}
	}
}

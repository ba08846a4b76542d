package notify

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"strings"
	"sync"
	"time"

	fleet "bms-cloud/internal/fleet/domain"
	"bms-cloud/internal/observability/metrics"
	reviewapp "bms-cloud/internal/review/application"
	review "bms-cloud/internal/review/domain"
)

// SystemReader loads fleet system metadata for display names.
type SystemReader interface {
	Get(ctx context.Context, id string) (*fleet.System, error)
}

// ItemReader loads review items for escalation checks.
type ItemReader interface {
	Get(ctx context.Context, id string) (*review.Item, error)
}

// Clock provides time for scheduling.
type Clock interface {
	Now() time.Time
}

// QueueURLResolver provides a link to the review queue for an item.
type QueueURLResolver func(ctx context.Context, item review.Item) string

type sendRecord struct {
	at   time.Time
	hash string
}

// Notifier sends review notifications via a channel and reminds the
// operator when an item stays open.
type Notifier struct {
	systems        SystemReader
	items          ItemReader
	channel        Channel
	template       *Template
	escalation     time.Duration
	clock          Clock
	mu             sync.Mutex
	timers         map[string]*time.Timer
	sent           map[string]sendRecord
	cooldown       time.Duration
	dedupeWindow   time.Duration
	queueURL       QueueURLResolver
	requestTimeout time.Duration
}

// Option configures the notifier.
type Option func(*Notifier)

// WithEscalation configures the open-item reminder delay.
func WithEscalation(after time.Duration) Option {
	return func(n *Notifier) {
		if after > 0 {
			n.escalation = after
		}
	}
}

// WithClock overrides the default clock.
func WithClock(clock Clock) Option {
	return func(n *Notifier) {
		if clock != nil {
			n.clock = clock
		}
	}
}

// WithRequestTimeout overrides the default timeout for escalation checks.
func WithRequestTimeout(timeout time.Duration) Option {
	return func(n *Notifier) {
		if timeout > 0 {
			n.requestTimeout = timeout
		}
	}
}

// WithCooldown sets a minimum interval between notifications for the same
// item and event.
func WithCooldown(interval time.Duration) Option {
	return func(n *Notifier) {
		if interval > 0 {
			n.cooldown = interval
		}
	}
}

// WithDedupeWindow suppresses identical notifications within the window.
func WithDedupeWindow(window time.Duration) Option {
	return func(n *Notifier) {
		if window > 0 {
			n.dedupeWindow = window
		}
	}
}

// WithQueueURLResolver injects a queue link resolver.
func WithQueueURLResolver(resolver QueueURLResolver) Option {
	return func(n *Notifier) {
		if resolver != nil {
			n.queueURL = resolver
		}
	}
}

// NewNotifier constructs a review notifier.
func NewNotifier(systems SystemReader, items ItemReader, channel Channel, template *Template, opts ...Option) (*Notifier, error) {
	if items == nil {
		return nil, errors.New("review notifier: nil item reader")
	}
	if channel == nil {
		return nil, errors.New("review notifier: nil channel")
	}
	if template == nil {
		defaultTemplate, err := NewTemplate("")
		if err != nil {
			return nil, err
		}
		template = defaultTemplate
	}
	n := &Notifier{
		systems:        systems,
		items:          items,
		channel:        channel,
		template:       template,
		clock:          systemClock{},
		timers:         make(map[string]*time.Timer),
		sent:           make(map[string]sendRecord),
		requestTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n, nil
}

// Notify implements reviewapp.ReviewNotifier.
func (n *Notifier) Notify(ctx context.Context, event reviewapp.ReviewEvent) {
	if n == nil || n.channel == nil {
		return
	}
	n.dispatch(ctx, event.Type, event.Item)

	switch event.Type {
	case "opened":
		n.scheduleEscalation(event.Item)
	case "confirmed", "dismissed":
		n.cancelEscalation(event.Item.ID)
	}
}

// Close stops all pending escalation timers.
func (n *Notifier) Close() {
	if n == nil {
		return
	}
	n.mu.Lock()
	timers := n.timers
	n.timers = make(map[string]*time.Timer)
	n.mu.Unlock()
	for _, timer := range timers {
		if timer != nil {
			timer.Stop()
		}
	}
}

func (n *Notifier) dispatch(ctx context.Context, eventType string, item review.Item) {
	queueURL := ""
	if n.queueURL != nil {
		queueURL = n.queueURL(ctx, item)
	}
	data := n.buildTemplateData(ctx, eventType, item, queueURL)
	content, err := n.template.Render(data)
	if err != nil {
		return
	}
	if !n.shouldSend(item.ID, eventType, content) {
		return
	}
	if err := n.channel.Send(ctx, content); err != nil {
		metrics.IncReviewNotify("webhook", metrics.ResultError)
		return
	}
	metrics.IncReviewNotify("webhook", metrics.ResultSuccess)
	n.markSent(item.ID, eventType, content)
}

func (n *Notifier) scheduleEscalation(item review.Item) {
	if n == nil || n.escalation <= 0 || item.ID == "" {
		return
	}
	n.mu.Lock()
	if existing, ok := n.timers[item.ID]; ok {
		if existing != nil {
			existing.Stop()
		}
	}
	timer := time.AfterFunc(n.escalation, func() {
		n.runEscalation(item.ID)
	})
	n.timers[item.ID] = timer
	n.mu.Unlock()
}

func (n *Notifier) cancelEscalation(itemID string) {
	if n == nil || itemID == "" {
		return
	}
	n.mu.Lock()
	timer := n.timers[itemID]
	delete(n.timers, itemID)
	n.mu.Unlock()
	if timer != nil {
		timer.Stop()
	}
}

func (n *Notifier) runEscalation(itemID string) {
	if n == nil || itemID == "" {
		return
	}
	n.mu.Lock()
	delete(n.timers, itemID)
	n.mu.Unlock()

	ctx := context.Background()
	if n.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.requestTimeout)
		defer cancel()
	}

	item, err := n.items.Get(ctx, itemID)
	if err != nil || item == nil {
		return
	}
	if !item.Open() {
		return
	}
	n.dispatch(ctx, "escalated", *item)
}

func (n *Notifier) buildTemplateData(ctx context.Context, eventType string, item review.Item, queueURL string) TemplateData {
	systemName := item.SystemID
	if n.systems != nil && item.SystemID != "" {
		if system, err := n.systems.Get(ctx, item.SystemID); err == nil && system != nil && system.Name != "" {
			systemName = system.Name
		}
	}
	if systemName == "" {
		systemName = "unassigned"
	}
	openedAt := item.CreatedAt
	if openedAt.IsZero() {
		openedAt = item.UpdatedAt
	}

	return TemplateData{
		System:     systemName,
		SystemID:   item.SystemID,
		SnapshotID: item.SnapshotID,
		Kind:       item.Kind,
		Reason:     item.Reason,
		Candidates: strings.Join(item.CandidateIDs, ", "),
		OpenedAt:   openedAt.UTC().Format(time.RFC3339),
		Status:     item.Status,
		QueueURL:   queueURL,
		Event:      eventType,
		EventLabel: eventLabel(eventType),
	}
}

func eventLabel(event string) string {
	switch event {
	case "opened":
		return "Opened"
	case "confirmed":
		return "Confirmed"
	case "dismissed":
		return "Dismissed"
	case "escalated":
		return "Still Open"
	default:
		return event
	}
}

func (n *Notifier) shouldSend(itemID, eventType, content string) bool {
	if n == nil {
		return false
	}
	if n.cooldown <= 0 && n.dedupeWindow <= 0 {
		return true
	}
	key := notificationKey(itemID, eventType)
	now := n.clock.Now().UTC()
	hash := hashContent(content)

	n.mu.Lock()
	record, ok := n.sent[key]
	n.mu.Unlock()
	if !ok {
		return true
	}
	if n.cooldown > 0 && now.Sub(record.at) < n.cooldown {
		return false
	}
	if n.dedupeWindow > 0 && record.hash == hash && now.Sub(record.at) < n.dedupeWindow {
		return false
	}
	return true
}

func (n *Notifier) markSent(itemID, eventType, content string) {
	if n == nil {
		return
	}
	key := notificationKey(itemID, eventType)
	n.mu.Lock()
	n.sent[key] = sendRecord{
		at:   n.clock.Now().UTC(),
		hash: hashContent(content),
	}
	n.mu.Unlock()
}

func notificationKey(itemID, eventType string) string {
	return itemID + "|" + eventType
}

func hashContent(content string) string {
	sum := sha1.Sum([]byte(content))
	return hex.EncodeToString(sum[:8])
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

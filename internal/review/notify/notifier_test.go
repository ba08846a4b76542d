package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	fleet "bms-cloud/internal/fleet/domain"
	reviewapp "bms-cloud/internal/review/application"
	review "bms-cloud/internal/review/domain"
)

type stubSystemRepo struct {
	system *fleet.System
}

func (s stubSystemRepo) Get(_ context.Context, _ string) (*fleet.System, error) {
	return s.system, nil
}

type stubItemRepo struct {
	item *review.Item
}

func (s stubItemRepo) Get(_ context.Context, _ string) (*review.Item, error) {
	return s.item, nil
}

func openItem() *review.Item {
	return &review.Item{
		ID:           "review-1",
		TenantID:     "tenant-1",
		SnapshotID:   "snap-1",
		Status:       review.StatusOpen,
		Kind:         "ambiguous",
		Reason:       "fuzzy distance tie",
		CandidateIDs: []string{"sys-1", "sys-2"},
		CreatedAt:    time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC),
		UpdatedAt:    time.Date(2026, 3, 10, 8, 0, 0, 0, time.UTC),
	}
}

func TestWebhookNotifierPayload(t *testing.T) {
	payloadCh := make(chan webhookPayload, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		var payload webhookPayload
		if err := json.Unmarshal(body, &payload); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		payloadCh <- payload
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	channel, err := NewWebhookChannel(server.URL)
	if err != nil {
		t.Fatalf("new webhook channel: %v", err)
	}
	tpl, err := NewTemplate("")
	if err != nil {
		t.Fatalf("new template: %v", err)
	}

	item := openItem()
	notifier, err := NewNotifier(
		stubSystemRepo{},
		stubItemRepo{item: item},
		channel,
		tpl,
		WithQueueURLResolver(func(_ context.Context, _ review.Item) string {
			return "http://example.com/review"
		}),
	)
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}

	notifier.Notify(context.Background(), reviewapp.ReviewEvent{Type: "opened", Item: *item})

	select {
	case payload := <-payloadCh:
		if payload.MsgType != "text" {
			t.Fatalf("expected msgtype text, got %s", payload.MsgType)
		}
		content := payload.Text.Content
		checks := []string{
			"[Review Opened]",
			"Snapshot: snap-1",
			"Outcome: ambiguous",
			"Reason: fuzzy distance tie",
			"Candidates: sys-1, sys-2",
			"Opened: 2026-03-10T08:00:00Z",
			"Current Status: open",
			"Queue: http://example.com/review",
		}
		for _, expected := range checks {
			if !strings.Contains(content, expected) {
				t.Fatalf("expected content to include %q, got %s", expected, content)
			}
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for webhook payload")
	}
}

type recordingChannel struct {
	mu       sync.Mutex
	contents []string
}

func (r *recordingChannel) Send(_ context.Context, content string) error {
	r.mu.Lock()
	r.contents = append(r.contents, content)
	r.mu.Unlock()
	return nil
}

func (r *recordingChannel) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.contents)
}

func (r *recordingChannel) Latest() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.contents) == 0 {
		return ""
	}
	return r.contents[len(r.contents)-1]
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

func (f *fakeClock) Add(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

func TestNotifierCooldown(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 10, 10, 0, 0, 0, time.UTC)}
	channel := &recordingChannel{}
	tpl, err := NewTemplate("")
	if err != nil {
		t.Fatalf("new template: %v", err)
	}
	item := openItem()

	notifier, err := NewNotifier(
		stubSystemRepo{},
		stubItemRepo{item: item},
		channel,
		tpl,
		WithClock(clock),
		WithCooldown(10*time.Minute),
	)
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}

	notifier.Notify(context.Background(), reviewapp.ReviewEvent{Type: "opened", Item: *item})
	notifier.Notify(context.Background(), reviewapp.ReviewEvent{Type: "opened", Item: *item})
	if got := channel.Count(); got != 1 {
		t.Fatalf("expected 1 notification during cooldown, got %d", got)
	}

	clock.Add(11 * time.Minute)
	notifier.Notify(context.Background(), reviewapp.ReviewEvent{Type: "opened", Item: *item})
	if got := channel.Count(); got != 2 {
		t.Fatalf("expected 2 notifications after cooldown, got %d", got)
	}
}

func TestNotifierDedupeWindow(t *testing.T) {
	clock := &fakeClock{now: time.Date(2026, 3, 10, 11, 0, 0, 0, time.UTC)}
	channel := &recordingChannel{}
	tpl, err := NewTemplate("")
	if err != nil {
		t.Fatalf("new template: %v", err)
	}
	item := openItem()

	notifier, err := NewNotifier(
		stubSystemRepo{},
		stubItemRepo{item: item},
		channel,
		tpl,
		WithClock(clock),
		WithDedupeWindow(30*time.Minute),
	)
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}

	notifier.Notify(context.Background(), reviewapp.ReviewEvent{Type: "opened", Item: *item})
	clock.Add(5 * time.Minute)
	notifier.Notify(context.Background(), reviewapp.ReviewEvent{Type: "opened", Item: *item})
	if got := channel.Count(); got != 1 {
		t.Fatalf("expected 1 notification during dedupe window, got %d", got)
	}

	item.Reason = "fuzzy distance tie between three systems"
	notifier.Notify(context.Background(), reviewapp.ReviewEvent{Type: "opened", Item: *item})
	if got := channel.Count(); got != 2 {
		t.Fatalf("expected notification when content changes, got %d", got)
	}
}

func TestNotifierEscalatesOpenItem(t *testing.T) {
	channel := &recordingChannel{}
	tpl, err := NewTemplate("")
	if err != nil {
		t.Fatalf("new template: %v", err)
	}
	item := openItem()

	notifier, err := NewNotifier(
		stubSystemRepo{},
		stubItemRepo{item: item},
		channel,
		tpl,
		WithEscalation(20*time.Millisecond),
		WithRequestTimeout(200*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}

	notifier.Notify(context.Background(), reviewapp.ReviewEvent{Type: "opened", Item: *item})

	deadline := time.After(300 * time.Millisecond)
	for {
		if channel.Count() >= 2 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("expected escalation notification, got %d", channel.Count())
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}

	if !strings.Contains(channel.Latest(), "Still Open") {
		t.Fatalf("expected escalated notification content, got %s", channel.Latest())
	}
}

func TestNotifierEscalationCancelledOnResolve(t *testing.T) {
	channel := &recordingChannel{}
	tpl, err := NewTemplate("")
	if err != nil {
		t.Fatalf("new template: %v", err)
	}
	item := openItem()

	notifier, err := NewNotifier(
		stubSystemRepo{},
		stubItemRepo{item: item},
		channel,
		tpl,
		WithEscalation(40*time.Millisecond),
	)
	if err != nil {
		t.Fatalf("new notifier: %v", err)
	}

	notifier.Notify(context.Background(), reviewapp.ReviewEvent{Type: "opened", Item: *item})
	resolved := *item
	resolved.Status = review.StatusDismissed
	notifier.Notify(context.Background(), reviewapp.ReviewEvent{Type: "dismissed", Item: resolved})

	time.Sleep(100 * time.Millisecond)
	if got := channel.Count(); got != 2 {
		t.Fatalf("expected opened+dismissed only, got %d", got)
	}
	if strings.Contains(channel.Latest(), "Still Open") {
		t.Fatalf("escalation fired after resolution")
	}
}

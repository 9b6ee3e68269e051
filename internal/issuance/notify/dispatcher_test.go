package notify

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/chainmint/issuer/internal/core/domain"
)

type countingSender struct {
	mu        sync.Mutex
	attempts  int
	failUntil int
	delivered []domain.Notification
}

func (s *countingSender) Send(ctx context.Context, n domain.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.attempts++
	if s.attempts <= s.failUntil {
		return errors.New("endpoint unavailable")
	}
	s.delivered = append(s.delivered, n)
	return nil
}

func (s *countingSender) snapshot() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.attempts, len(s.delivered)
}

func testNotification() domain.Notification {
	return domain.Notification{
		Event:        domain.EventDeploymentStarted,
		DeploymentID: "dep-1",
		Network:      "voi-mainnet",
		OccurredAt:   time.Now(),
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func TestDispatcher_Delivers(t *testing.T) {
	sender := &countingSender{}
	d := NewDispatcher(sender, Config{Workers: 1, MaxAttempts: 3, BaseDelay: time.Millisecond}, nil)
	d.Start(context.Background())
	defer d.Close()

	if err := d.TriggerNotification(context.Background(), testNotification()); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	waitFor(t, func() bool { _, n := sender.snapshot(); return n == 1 })
}

func TestDispatcher_RetriesThenSucceeds(t *testing.T) {
	sender := &countingSender{failUntil: 2}
	d := NewDispatcher(sender, Config{Workers: 1, MaxAttempts: 3, BaseDelay: time.Millisecond}, nil)
	d.Start(context.Background())
	defer d.Close()

	if err := d.TriggerNotification(context.Background(), testNotification()); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	waitFor(t, func() bool { _, n := sender.snapshot(); return n == 1 })
	attempts, _ := sender.snapshot()
	if attempts != 3 {
		t.Errorf("attempts = %d, want 3", attempts)
	}
}

func TestDispatcher_RetriesAreBounded(t *testing.T) {
	sender := &countingSender{failUntil: 100}
	d := NewDispatcher(sender, Config{Workers: 1, MaxAttempts: 2, BaseDelay: time.Millisecond}, nil)
	d.Start(context.Background())

	if err := d.TriggerNotification(context.Background(), testNotification()); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	if err := d.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	attempts, delivered := sender.snapshot()
	if attempts != 2 {
		t.Errorf("attempts = %d, want 2 (capped)", attempts)
	}
	if delivered != 0 {
		t.Errorf("delivered = %d, want 0", delivered)
	}
}

func TestDispatcher_FullQueueDrops(t *testing.T) {
	sender := &countingSender{}
	// No workers started: nothing drains the queue.
	d := NewDispatcher(sender, Config{QueueSize: 1, Workers: 1, MaxAttempts: 1, BaseDelay: time.Millisecond}, nil)

	if err := d.TriggerNotification(context.Background(), testNotification()); err != nil {
		t.Fatalf("first enqueue should succeed: %v", err)
	}
	if err := d.TriggerNotification(context.Background(), testNotification()); err == nil {
		t.Error("second enqueue should report the drop")
	}
}

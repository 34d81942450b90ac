package dlq_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/fedibits/relay/delivery"
	"github.com/fedibits/relay/dlq"
	"github.com/fedibits/relay/id"
	"github.com/fedibits/relay/internal/entity"
	"github.com/fedibits/relay/store/memory"
)

func ctx() context.Context { return context.Background() }

func newService() (*dlq.Service, *memory.Store) {
	store := memory.New()
	svc := dlq.NewService(store, nil)
	return svc, store
}

func failedDelivery(inbox string) *delivery.Delivery {
	return &delivery.Delivery{
		Entity:         entity.New(),
		ID:             id.NewDeliveryID(),
		Inbox:          inbox,
		Activity:       json.RawMessage(`{"type":"Create"}`),
		AttemptCount:   5,
		LastStatusCode: 500,
	}
}

func TestPushFailed(t *testing.T) {
	svc, store := newService()

	d := failedDelivery("https://mastodon.example/inbox")

	err := svc.PushFailed(ctx(), d, "server error", 500)
	if err != nil {
		t.Fatal(err)
	}

	// Verify entry was stored.
	entries, err := store.ListDLQ(ctx(), dlq.ListOpts{Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	entry := entries[0]
	if entry.DeliveryID != d.ID {
		t.Fatalf("delivery ID mismatch: got %v, want %v", entry.DeliveryID, d.ID)
	}
	if entry.Inbox != "https://mastodon.example/inbox" {
		t.Fatalf("inbox mismatch: got %q", entry.Inbox)
	}
	if string(entry.Activity) != `{"type":"Create"}` {
		t.Fatalf("activity mismatch: got %s", entry.Activity)
	}
	if entry.Error != "server error" {
		t.Fatalf("error: got %q, want %q", entry.Error, "server error")
	}
	if entry.AttemptCount != 5 {
		t.Fatalf("attempt count: got %d, want 5", entry.AttemptCount)
	}
	if entry.LastStatusCode != 500 {
		t.Fatalf("status code: got %d, want 500", entry.LastStatusCode)
	}
	if entry.FailedAt.IsZero() {
		t.Fatal("expected FailedAt to be set")
	}
}

func TestPushMultipleAndList(t *testing.T) {
	svc, _ := newService()

	for range 3 {
		if err := svc.PushFailed(ctx(), failedDelivery("https://example.com/inbox"), "err", 500); err != nil {
			t.Fatal(err)
		}
	}

	entries, err := svc.List(ctx(), dlq.ListOpts{Limit: 10})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
}

func TestGetDLQEntry(t *testing.T) {
	svc, _ := newService()

	if err := svc.PushFailed(ctx(), failedDelivery("https://example.com/inbox"), "err", 500); err != nil {
		t.Fatal(err)
	}

	entries, _ := svc.List(ctx(), dlq.ListOpts{Limit: 1})
	if len(entries) == 0 {
		t.Fatal("expected at least 1 entry")
	}

	got, err := svc.Get(ctx(), entries[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != entries[0].ID {
		t.Fatal("ID mismatch on Get")
	}
}

func TestCount(t *testing.T) {
	svc, _ := newService()

	count, err := svc.Count(ctx())
	if err != nil {
		t.Fatal(err)
	}
	if count != 0 {
		t.Fatalf("expected 0, got %d", count)
	}

	for range 5 {
		svc.PushFailed(ctx(), failedDelivery("https://example.com/inbox"), "err", 500)
	}

	count, err = svc.Count(ctx())
	if err != nil {
		t.Fatal(err)
	}
	if count != 5 {
		t.Fatalf("expected 5, got %d", count)
	}
}

func TestReplay(t *testing.T) {
	svc, store := newService()

	svc.PushFailed(ctx(), failedDelivery("https://pleroma.example/inbox"), "err", 500)

	entries, _ := svc.List(ctx(), dlq.ListOpts{Limit: 1})
	if len(entries) == 0 {
		t.Fatal("expected entry")
	}

	if err := svc.Replay(ctx(), entries[0].ID); err != nil {
		t.Fatal(err)
	}

	// A fresh pending delivery should be queued for the same inbox.
	pending, err := store.CountPending(ctx())
	if err != nil {
		t.Fatal(err)
	}
	if pending != 1 {
		t.Fatalf("expected 1 pending delivery after replay, got %d", pending)
	}

	ds, err := store.Dequeue(ctx(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(ds) != 1 {
		t.Fatalf("expected 1 dequeued delivery, got %d", len(ds))
	}
	if ds[0].Inbox != "https://pleroma.example/inbox" {
		t.Fatalf("replayed inbox: got %q", ds[0].Inbox)
	}

	// The entry stays in the queue, marked as replayed.
	got, err := svc.Get(ctx(), entries[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ReplayedAt == nil {
		t.Fatal("expected ReplayedAt to be set")
	}
}

func TestPurge(t *testing.T) {
	svc, _ := newService()

	svc.PushFailed(ctx(), failedDelivery("https://example.com/inbox"), "err", 500)

	removed, err := svc.Purge(ctx(), time.Now().Add(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	if removed != 1 {
		t.Fatalf("expected 1 purged entry, got %d", removed)
	}

	count, _ := svc.Count(ctx())
	if count != 0 {
		t.Fatalf("expected empty queue after purge, got %d", count)
	}
}

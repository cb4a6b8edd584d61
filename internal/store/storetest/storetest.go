// Package storetest holds behavioural tests shared by every store implementation.
package storetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/capitalize-ai/healthassist/internal/model"
	"github.com/capitalize-ai/healthassist/internal/store"
)

// Factory builds a fresh, empty store driven by the given clock.
type Factory func(t *testing.T, now store.Clock) store.Store

// StepClock returns a clock that advances by step on every call.
func StepClock(start time.Time, step time.Duration) store.Clock {
	var mu sync.Mutex
	cur := start
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur = cur.Add(step)
		return cur
	}
}

// Run executes the shared suite against the store produced by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("CreateSeedsWelcome", func(t *testing.T) { testCreateSeedsWelcome(t, newStore) })
	t.Run("CreateWithoutWelcome", func(t *testing.T) { testCreateWithoutWelcome(t, newStore) })
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, newStore) })
	t.Run("ListOrderedByActivity", func(t *testing.T) { testListOrderedByActivity(t, newStore) })
	t.Run("ListEmptyOwner", func(t *testing.T) { testListEmptyOwner(t, newStore) })
	t.Run("Rename", func(t *testing.T) { testRename(t, newStore) })
	t.Run("AppendUpdatesParent", func(t *testing.T) { testAppendUpdatesParent(t, newStore) })
	t.Run("AppendMissing", func(t *testing.T) { testAppendMissing(t, newStore) })
	t.Run("AppendClockSkew", func(t *testing.T) { testAppendClockSkew(t, newStore) })
	t.Run("DeleteCascades", func(t *testing.T) { testDeleteCascades(t, newStore) })
	t.Run("ConcurrentAppends", func(t *testing.T) { testConcurrentAppends(t, newStore) })
}

var base = time.Date(2024, 5, 13, 9, 0, 0, 0, time.UTC)

func testCreateSeedsWelcome(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, StepClock(base, time.Millisecond))

	conv, err := s.CreateConversation(ctx, store.CreateParams{OwnerID: "1", Title: "Hello", Welcome: "welcome"})
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	if conv.ID == "" || conv.OwnerID != "1" || conv.Title != "Hello" {
		t.Fatalf("unexpected conversation: %+v", conv)
	}
	if !conv.CreatedAt.Equal(conv.UpdatedAt) {
		t.Fatalf("created_at %v != updated_at %v", conv.CreatedAt, conv.UpdatedAt)
	}

	msgs, err := s.ListMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 welcome message, got %d", len(msgs))
	}
	if msgs[0].Role != model.RoleAssistant || msgs[0].Content != "welcome" {
		t.Fatalf("unexpected welcome message: %+v", msgs[0])
	}

	got, err := s.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if got.Title != "Hello" || !got.CreatedAt.Equal(conv.CreatedAt) {
		t.Fatalf("unexpected fetched conversation: %+v", got)
	}
}

func testCreateWithoutWelcome(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, StepClock(base, time.Millisecond))

	conv, err := s.CreateConversation(ctx, store.CreateParams{OwnerID: "1", Title: "empty"})
	if err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}
	msgs, err := s.ListMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("expected no messages, got %d", len(msgs))
	}
}

func testGetMissing(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, StepClock(base, time.Millisecond))

	if _, err := s.GetConversation(ctx, store.NewID()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.RenameConversation(ctx, store.NewID(), "x"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound on rename, got %v", err)
	}
	msgs, err := s.ListMessages(ctx, store.NewID())
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if msgs == nil || len(msgs) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", msgs)
	}
}

func testListOrderedByActivity(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, StepClock(base, time.Millisecond))

	first, _ := s.CreateConversation(ctx, store.CreateParams{OwnerID: "1", Title: "first"})
	second, _ := s.CreateConversation(ctx, store.CreateParams{OwnerID: "1", Title: "second"})
	if _, err := s.CreateConversation(ctx, store.CreateParams{OwnerID: "2", Title: "other"}); err != nil {
		t.Fatalf("CreateConversation: %v", err)
	}

	convs, err := s.ListConversations(ctx, "1")
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(convs) != 2 || convs[0].ID != second.ID || convs[1].ID != first.ID {
		t.Fatalf("unexpected order before append: %+v", convs)
	}

	if _, err := s.AppendMessage(ctx, first.ID, model.RoleUser, "bump"); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	convs, err = s.ListConversations(ctx, "1")
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if len(convs) != 2 || convs[0].ID != first.ID {
		t.Fatalf("expected appended conversation first, got %+v", convs)
	}
}

func testListEmptyOwner(t *testing.T, newStore Factory) {
	s := newStore(t, StepClock(base, time.Millisecond))

	convs, err := s.ListConversations(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("ListConversations: %v", err)
	}
	if convs == nil || len(convs) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", convs)
	}
}

func testRename(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, StepClock(base, time.Millisecond))

	conv, _ := s.CreateConversation(ctx, store.CreateParams{OwnerID: "1", Title: "old"})
	renamed, err := s.RenameConversation(ctx, conv.ID, "new")
	if err != nil {
		t.Fatalf("RenameConversation: %v", err)
	}
	if renamed.Title != "new" {
		t.Fatalf("expected title new, got %q", renamed.Title)
	}
	if !renamed.UpdatedAt.After(conv.UpdatedAt) {
		t.Fatalf("rename did not bump updated_at: %v -> %v", conv.UpdatedAt, renamed.UpdatedAt)
	}
	if !renamed.CreatedAt.Equal(conv.CreatedAt) {
		t.Fatalf("rename changed created_at")
	}
}

func testAppendUpdatesParent(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, StepClock(base, time.Millisecond))

	conv, _ := s.CreateConversation(ctx, store.CreateParams{OwnerID: "1", Title: "t", Welcome: "hi"})
	prev := conv.UpdatedAt

	for i := 0; i < 5; i++ {
		before, _ := s.ListMessages(ctx, conv.ID)

		msg, err := s.AppendMessage(ctx, conv.ID, model.RoleUser, fmt.Sprintf("m%d", i))
		if err != nil {
			t.Fatalf("AppendMessage: %v", err)
		}

		after, _ := s.ListMessages(ctx, conv.ID)
		if len(after) != len(before)+1 {
			t.Fatalf("append changed length by %d", len(after)-len(before))
		}

		got, err := s.GetConversation(ctx, conv.ID)
		if err != nil {
			t.Fatalf("GetConversation: %v", err)
		}
		if got.UpdatedAt.Before(prev) {
			t.Fatalf("updated_at went backwards: %v -> %v", prev, got.UpdatedAt)
		}
		if got.UpdatedAt.Before(got.CreatedAt) {
			t.Fatalf("updated_at %v before created_at %v", got.UpdatedAt, got.CreatedAt)
		}
		if !got.UpdatedAt.Equal(msg.Timestamp) {
			t.Fatalf("updated_at %v != message timestamp %v", got.UpdatedAt, msg.Timestamp)
		}
		prev = got.UpdatedAt
	}

	msgs, _ := s.ListMessages(ctx, conv.ID)
	if msgs[0].Content != "hi" || msgs[len(msgs)-1].Content != "m4" {
		t.Fatalf("unexpected message order: first=%q last=%q", msgs[0].Content, msgs[len(msgs)-1].Content)
	}
	assertOrdered(t, msgs)
}

func testAppendMissing(t *testing.T, newStore Factory) {
	s := newStore(t, StepClock(base, time.Millisecond))

	_, err := s.AppendMessage(context.Background(), store.NewID(), model.RoleUser, "orphan")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testAppendClockSkew(t *testing.T, newStore Factory) {
	ctx := context.Background()

	// The clock jumps backwards after creation.
	var calls int
	clock := func() time.Time {
		calls++
		if calls == 1 {
			return base
		}
		return base.Add(-time.Hour)
	}
	s := newStore(t, clock)

	conv, _ := s.CreateConversation(ctx, store.CreateParams{OwnerID: "1", Title: "t"})
	msg, err := s.AppendMessage(ctx, conv.ID, model.RoleUser, "late")
	if err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if msg.Timestamp.Before(conv.CreatedAt) {
		t.Fatalf("message timestamp %v before conversation creation %v", msg.Timestamp, conv.CreatedAt)
	}

	got, _ := s.GetConversation(ctx, conv.ID)
	if got.UpdatedAt.Before(got.CreatedAt) {
		t.Fatalf("updated_at %v before created_at %v", got.UpdatedAt, got.CreatedAt)
	}
}

func testDeleteCascades(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, StepClock(base, time.Millisecond))

	conv, _ := s.CreateConversation(ctx, store.CreateParams{OwnerID: "1", Title: "t", Welcome: "hi"})
	if _, err := s.AppendMessage(ctx, conv.ID, model.RoleUser, "hello"); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}

	deleted, err := s.DeleteConversation(ctx, conv.ID)
	if err != nil || !deleted {
		t.Fatalf("expected deletion, got deleted=%v err=%v", deleted, err)
	}

	msgs, err := s.ListMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != 0 {
		t.Fatalf("orphaned messages survived: %d", len(msgs))
	}
	if _, err := s.GetConversation(ctx, conv.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}

	deleted, err = s.DeleteConversation(ctx, conv.ID)
	if err != nil || deleted {
		t.Fatalf("second delete: deleted=%v err=%v", deleted, err)
	}
	deleted, err = s.DeleteConversation(ctx, store.NewID())
	if err != nil || deleted {
		t.Fatalf("delete of unknown id: deleted=%v err=%v", deleted, err)
	}
}

func testConcurrentAppends(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t, nil)

	conv, _ := s.CreateConversation(ctx, store.CreateParams{OwnerID: "1", Title: "t"})

	const workers, perWorker = 4, 10
	var wg sync.WaitGroup
	errs := make(chan error, workers*perWorker)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				if _, err := s.AppendMessage(ctx, conv.ID, model.RoleUser, fmt.Sprintf("w%d-%d", w, i)); err != nil {
					errs <- err
				}
			}
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent AppendMessage: %v", err)
	}

	msgs, err := s.ListMessages(ctx, conv.ID)
	if err != nil {
		t.Fatalf("ListMessages: %v", err)
	}
	if len(msgs) != workers*perWorker {
		t.Fatalf("expected %d messages, got %d", workers*perWorker, len(msgs))
	}
	assertOrdered(t, msgs)
}

func assertOrdered(t *testing.T, msgs []model.Message) {
	t.Helper()
	for i := 1; i < len(msgs); i++ {
		if msgs[i].Timestamp.Before(msgs[i-1].Timestamp) {
			t.Fatalf("messages out of order at %d: %v before %v", i, msgs[i].Timestamp, msgs[i-1].Timestamp)
		}
	}
}

package service

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/capitalize-ai/healthassist/internal/model"
	"github.com/capitalize-ai/healthassist/internal/store"
)

func TestCreateConversation(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	tests := []struct {
		name  string
		title string
		want  string
	}{
		{name: "explicit title", title: "Allergies", want: "Allergies"},
		{name: "empty title", title: "", want: DefaultTitle},
		{name: "blank title", title: "   ", want: DefaultTitle},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conv, err := f.convs.Create(ctx, "owner", &model.CreateConversationRequest{Title: tt.title})
			if err != nil {
				t.Fatalf("Create() error = %v", err)
			}
			if conv.Title != tt.want {
				t.Errorf("Title = %q, want %q", conv.Title, tt.want)
			}

			detail, err := f.convs.Detail(ctx, "owner", conv.ID)
			if err != nil {
				t.Fatalf("Detail() error = %v", err)
			}
			if len(detail.Messages) != 1 || detail.Messages[0].Content != WelcomeMessage {
				t.Errorf("Messages = %+v, want the welcome message", detail.Messages)
			}
		})
	}

	_, err := f.convs.Create(ctx, "owner", &model.CreateConversationRequest{Title: strings.Repeat("t", MaxTitleBytes+1)})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("Create() with long title error = %v, want ErrValidation", err)
	}
}

func TestListIsOwnerScoped(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	for _, owner := range []string{"a", "a", "b"} {
		if _, err := f.convs.Create(ctx, owner, &model.CreateConversationRequest{}); err != nil {
			t.Fatalf("Create() error = %v", err)
		}
	}

	list, err := f.convs.List(ctx, "a")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if list.Total != 2 || len(list.Conversations) != 2 {
		t.Errorf("List(a) = %d conversations, want 2", list.Total)
	}
	for _, c := range list.Conversations {
		if c.OwnerID != "a" {
			t.Errorf("List(a) returned conversation of %q", c.OwnerID)
		}
	}

	empty, err := f.convs.List(ctx, "nobody")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if empty.Total != 0 || empty.Conversations == nil {
		t.Errorf("List(nobody) = %+v, want empty non-nil list", empty)
	}
}

func TestRenameConversation(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	conv, err := f.convs.Create(ctx, "owner", &model.CreateConversationRequest{Title: "Old"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	renamed, err := f.convs.Rename(ctx, "owner", conv.ID, &model.RenameConversationRequest{Title: "New"})
	if err != nil {
		t.Fatalf("Rename() error = %v", err)
	}
	if renamed.Title != "New" {
		t.Errorf("Title = %q", renamed.Title)
	}
	if renamed.UpdatedAt.Before(conv.UpdatedAt) {
		t.Errorf("UpdatedAt went backwards")
	}

	tests := []struct {
		name    string
		owner   string
		id      string
		title   string
		wantErr error
	}{
		{name: "empty title", owner: "owner", id: conv.ID, title: " ", wantErr: ErrValidation},
		{name: "missing", owner: "owner", id: store.NewID(), title: "x", wantErr: ErrNotFound},
		{name: "other owner", owner: "intruder", id: conv.ID, title: "x", wantErr: ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.convs.Rename(ctx, tt.owner, tt.id, &model.RenameConversationRequest{Title: tt.title})
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Rename() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	got, err := f.convs.Get(ctx, "owner", conv.ID)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got.Title != "New" {
		t.Errorf("Title after rejected renames = %q, want New", got.Title)
	}
	if !got.UpdatedAt.Equal(renamed.UpdatedAt) {
		t.Errorf("UpdatedAt after rejected renames = %v, want %v", got.UpdatedAt, renamed.UpdatedAt)
	}
}

func TestDeleteConversation(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	turn, err := f.messages.PostMessage(ctx, "owner", "", "stress")
	if err != nil {
		t.Fatalf("PostMessage() error = %v", err)
	}
	id := turn.Conversation.ID

	if _, err := f.convs.Delete(ctx, "intruder", id); !errors.Is(err, ErrForbidden) {
		t.Errorf("Delete() by other owner error = %v, want ErrForbidden", err)
	}

	deleted, err := f.convs.Delete(ctx, "owner", id)
	if err != nil || !deleted {
		t.Fatalf("Delete() = %v, %v; want true, nil", deleted, err)
	}

	msgs, err := f.store.ListMessages(ctx, id)
	if err != nil {
		t.Fatalf("ListMessages() error = %v", err)
	}
	if len(msgs) != 0 {
		t.Errorf("%d messages survived deletion", len(msgs))
	}

	if _, err := f.convs.Get(ctx, "owner", id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get() after delete error = %v, want ErrNotFound", err)
	}

	deleted, err = f.convs.Delete(ctx, "owner", id)
	if err != nil || deleted {
		t.Errorf("second Delete() = %v, %v; want false, nil", deleted, err)
	}
}

func TestAppendMessage(t *testing.T) {
	f := newFixture(t, nil, nil)
	ctx := context.Background()

	conv, err := f.convs.Create(ctx, "owner", &model.CreateConversationRequest{})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	msg, err := f.convs.Append(ctx, "owner", conv.ID, &model.AppendMessageRequest{Role: model.RoleUser, Content: "hi"})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if msg.ConversationID != conv.ID || msg.Role != model.RoleUser {
		t.Errorf("Append() = %+v", msg)
	}

	tests := []struct {
		name    string
		owner   string
		req     model.AppendMessageRequest
		wantErr error
	}{
		{name: "bad role", owner: "owner", req: model.AppendMessageRequest{Role: "system", Content: "x"}, wantErr: ErrValidation},
		{name: "empty content", owner: "owner", req: model.AppendMessageRequest{Role: model.RoleUser}, wantErr: ErrValidation},
		{name: "other owner", owner: "intruder", req: model.AppendMessageRequest{Role: model.RoleUser, Content: "x"}, wantErr: ErrForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.convs.Append(ctx, tt.owner, conv.ID, &tt.req); !errors.Is(err, tt.wantErr) {
				t.Errorf("Append() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	list, err := f.convs.Messages(ctx, "owner", conv.ID)
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(list.Messages) != 2 {
		t.Errorf("got %d messages, want 2", len(list.Messages))
	}

	if _, err := f.convs.Messages(ctx, "intruder", conv.ID); !errors.Is(err, ErrForbidden) {
		t.Errorf("Messages() by other owner error = %v, want ErrForbidden", err)
	}
}

func TestValidationErrorMatches(t *testing.T) {
	err := error(&ValidationError{Field: "title", Reason: "cannot be empty"})
	if !errors.Is(err, ErrValidation) {
		t.Error("ValidationError does not match ErrValidation")
	}
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "title" {
		t.Errorf("errors.As() = %+v", ve)
	}
	if err.Error() != "invalid title: cannot be empty" {
		t.Errorf("Error() = %q", err.Error())
	}
}

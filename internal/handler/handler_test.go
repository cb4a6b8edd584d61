package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap/zaptest"

	"github.com/capitalize-ai/healthassist/internal/gateway"
	"github.com/capitalize-ai/healthassist/internal/model"
	"github.com/capitalize-ai/healthassist/internal/service"
	"github.com/capitalize-ai/healthassist/internal/store"
	"github.com/capitalize-ai/healthassist/internal/store/memory"
	"github.com/capitalize-ai/healthassist/pkg/logger"
)

const testSecret = "handler-test-secret"

type testServer struct {
	t      *testing.T
	srv    *httptest.Server
	tokens map[string]string
}

func newTestServer(t *testing.T, st store.Store, checks map[string]Pinger) *testServer {
	t.Helper()
	log := logger.Wrap(zaptest.NewLogger(t))
	if st == nil {
		st = memory.New(nil)
	}

	convs := service.NewConversationService(st, nil, log)
	msgs := service.NewMessageService(convs, gateway.New(nil, nil, gateway.DefaultConfig(), log), log)

	router := NewRouter(RouterConfig{
		Conversations:     convs,
		Messages:          msgs,
		Health:            NewHealthHandler(checks),
		Logger:            log,
		JWTSecret:         testSecret,
		RateLimitRequests: 1000,
		RateLimitWindow:   time.Minute,
	})

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{t: t, srv: srv, tokens: map[string]string{}}
}

func (s *testServer) token(user string) string {
	if tok, ok := s.tokens[user]; ok {
		return tok
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   user,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString([]byte(testSecret))
	if err != nil {
		s.t.Fatalf("SignedString() error = %v", err)
	}
	s.tokens[user] = signed
	return signed
}

func (s *testServer) do(user, method, path string, body interface{}, out interface{}) int {
	s.t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			s.t.Fatalf("encode body: %v", err)
		}
	}

	req, err := http.NewRequest(method, s.srv.URL+path, &buf)
	if err != nil {
		s.t.Fatalf("NewRequest() error = %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+s.token(user))
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		s.t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	if out != nil && (resp.StatusCode < 300 || resp.StatusCode == http.StatusBadGateway) {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			s.t.Fatalf("decode %s %s response: %v", method, path, err)
		}
	}
	return resp.StatusCode
}

func TestRequiresAuthentication(t *testing.T) {
	s := newTestServer(t, nil, nil)

	if code := s.do("", http.MethodGet, "/api/v1/conversations", nil, nil); code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", code)
	}
	if code := s.do("", http.MethodGet, "/health", nil, nil); code != http.StatusOK {
		t.Errorf("/health status = %d, want 200", code)
	}
}

func TestChatFlow(t *testing.T) {
	s := newTestServer(t, nil, nil)

	var turn model.Turn
	code := s.do("alice", http.MethodPost, "/api/v1/chat", model.ChatRequest{Content: "What are flu symptoms?"}, &turn)
	if code != http.StatusCreated {
		t.Fatalf("POST /chat status = %d, want 201", code)
	}
	if turn.Conversation == nil || turn.UserMessage == nil || turn.AssistantMessage == nil {
		t.Fatalf("turn = %+v", turn)
	}
	if turn.AssistantMessage.Content != gateway.DefaultRules[0].Reply {
		t.Errorf("reply = %q, want flu template", turn.AssistantMessage.Content)
	}
	id := turn.Conversation.ID

	var followUp model.Turn
	code = s.do("alice", http.MethodPost, "/api/v1/chat", model.ChatRequest{ConversationID: id, Content: "and for sleep?"}, &followUp)
	if code != http.StatusOK {
		t.Fatalf("follow-up status = %d, want 200", code)
	}
	if followUp.Conversation.ID != id {
		t.Errorf("follow-up went to %s, want %s", followUp.Conversation.ID, id)
	}

	var list model.ListConversationsResponse
	if code := s.do("alice", http.MethodGet, "/api/v1/conversations", nil, &list); code != http.StatusOK {
		t.Fatalf("list status = %d", code)
	}
	if list.Total != 1 || list.Conversations[0].Title != "What are flu symptoms?" {
		t.Errorf("list = %+v", list)
	}

	var detail model.ConversationDetail
	if code := s.do("alice", http.MethodGet, "/api/v1/conversations/"+id, nil, &detail); code != http.StatusOK {
		t.Fatalf("get status = %d", code)
	}
	if len(detail.Messages) != 5 {
		t.Errorf("got %d messages, want 5", len(detail.Messages))
	}

	var msgs model.ListMessagesResponse
	if code := s.do("alice", http.MethodGet, "/api/v1/conversations/"+id+"/messages", nil, &msgs); code != http.StatusOK {
		t.Fatalf("messages status = %d", code)
	}
	if len(msgs.Messages) != 5 {
		t.Errorf("got %d messages, want 5", len(msgs.Messages))
	}

	if code := s.do("bob", http.MethodGet, "/api/v1/conversations/"+id, nil, nil); code != http.StatusForbidden {
		t.Errorf("other user get status = %d, want 403", code)
	}
	if code := s.do("bob", http.MethodPost, "/api/v1/chat", model.ChatRequest{ConversationID: id, Content: "hi"}, nil); code != http.StatusForbidden {
		t.Errorf("other user chat status = %d, want 403", code)
	}
}

func TestChatValidation(t *testing.T) {
	s := newTestServer(t, nil, nil)

	tests := []struct {
		name string
		body interface{}
		want int
	}{
		{name: "empty content", body: model.ChatRequest{Content: ""}, want: http.StatusBadRequest},
		{name: "bad conversation id", body: model.ChatRequest{ConversationID: "42", Content: "hi"}, want: http.StatusBadRequest},
		{name: "unknown conversation", body: model.ChatRequest{ConversationID: store.NewID(), Content: "hi"}, want: http.StatusNotFound},
		{name: "too long", body: model.ChatRequest{Content: strings.Repeat("x", service.MaxContentBytes+1)}, want: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if code := s.do("alice", http.MethodPost, "/api/v1/chat", tt.body, nil); code != tt.want {
				t.Errorf("status = %d, want %d", code, tt.want)
			}
		})
	}
}

func TestConversationCRUD(t *testing.T) {
	s := newTestServer(t, nil, nil)

	var conv model.Conversation
	if code := s.do("alice", http.MethodPost, "/api/v1/conversations", nil, &conv); code != http.StatusCreated {
		t.Fatalf("create status = %d", code)
	}
	if conv.Title != service.DefaultTitle {
		t.Errorf("Title = %q, want %q", conv.Title, service.DefaultTitle)
	}
	path := "/api/v1/conversations/" + conv.ID

	var renamed model.Conversation
	if code := s.do("alice", http.MethodPatch, path, model.RenameConversationRequest{Title: "Allergies"}, &renamed); code != http.StatusOK {
		t.Fatalf("rename status = %d", code)
	}
	if renamed.Title != "Allergies" {
		t.Errorf("renamed title = %q", renamed.Title)
	}

	if code := s.do("alice", http.MethodPatch, path, model.RenameConversationRequest{Title: ""}, nil); code != http.StatusBadRequest {
		t.Errorf("empty rename status = %d, want 400", code)
	}
	if code := s.do("bob", http.MethodPatch, path, model.RenameConversationRequest{Title: "mine"}, nil); code != http.StatusForbidden {
		t.Errorf("foreign rename status = %d, want 403", code)
	}

	var msg model.Message
	code := s.do("alice", http.MethodPost, path+"/messages", model.AppendMessageRequest{Role: model.RoleUser, Content: "pollen"}, &msg)
	if code != http.StatusCreated {
		t.Fatalf("append status = %d", code)
	}
	if code := s.do("alice", http.MethodPost, path+"/messages", model.AppendMessageRequest{Role: "system", Content: "x"}, nil); code != http.StatusBadRequest {
		t.Errorf("bad role status = %d, want 400", code)
	}

	if code := s.do("bob", http.MethodDelete, path, nil, nil); code != http.StatusForbidden {
		t.Errorf("foreign delete status = %d, want 403", code)
	}
	if code := s.do("alice", http.MethodDelete, path, nil, nil); code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", code)
	}
	if code := s.do("alice", http.MethodGet, path, nil, nil); code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", code)
	}
	if code := s.do("alice", http.MethodDelete, path, nil, nil); code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", code)
	}
	if code := s.do("alice", http.MethodGet, "/api/v1/conversations/not-a-uuid", nil, nil); code != http.StatusBadRequest {
		t.Errorf("bad id status = %d, want 400", code)
	}
}

// replyFailingStore fails every assistant append after the welcome seed.
type replyFailingStore struct {
	store.Store
}

func (s replyFailingStore) AppendMessage(ctx context.Context, conversationID string, role model.Role, content string) (*model.Message, error) {
	if role == model.RoleAssistant {
		return nil, store.Wrap("insert message", errors.New("connection reset"))
	}
	return s.Store.AppendMessage(ctx, conversationID, role, content)
}

func TestChatIncompleteTurn(t *testing.T) {
	s := newTestServer(t, replyFailingStore{Store: memory.New(nil)}, nil)

	var resp model.IncompleteTurnResponse
	code := s.do("alice", http.MethodPost, "/api/v1/chat", model.ChatRequest{Content: "insomnia"}, &resp)
	if code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", code)
	}
	if !resp.Incomplete || resp.UserMessage == nil || resp.UserMessage.Content != "insomnia" {
		t.Errorf("response = %+v", resp)
	}
}

// storageDownStore fails every read.
type storageDownStore struct {
	store.Store
}

func (storageDownStore) ListConversations(ctx context.Context, ownerID string) ([]model.Conversation, error) {
	return nil, store.Wrap("list conversations", errors.New("connection refused"))
}

func TestStorageFailureIs500(t *testing.T) {
	s := newTestServer(t, storageDownStore{Store: memory.New(nil)}, nil)

	if code := s.do("alice", http.MethodGet, "/api/v1/conversations", nil, nil); code != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", code)
	}
}

type pinger struct {
	mu  sync.Mutex
	err error
}

func (p *pinger) Ping(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}

func TestReady(t *testing.T) {
	db := &pinger{}
	s := newTestServer(t, nil, map[string]Pinger{"store": db, "nats": nil})

	if code := s.do("", http.MethodGet, "/ready", nil, nil); code != http.StatusOK {
		t.Errorf("ready status = %d, want 200", code)
	}

	db.mu.Lock()
	db.err = errors.New("database is locked")
	db.mu.Unlock()

	if code := s.do("", http.MethodGet, "/ready", nil, nil); code != http.StatusServiceUnavailable {
		t.Errorf("ready status = %d, want 503", code)
	}
}

func TestUnauthenticatedRequestsAreRateLimited(t *testing.T) {
	log := logger.Wrap(zaptest.NewLogger(t))
	convs := service.NewConversationService(memory.New(nil), nil, log)
	router := NewRouter(RouterConfig{
		Conversations:     convs,
		Messages:          service.NewMessageService(convs, gateway.New(nil, nil, gateway.DefaultConfig(), log), log),
		Logger:            log,
		JWTSecret:         testSecret,
		RateLimitRequests: 2,
		RateLimitWindow:   time.Minute,
	})

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/conversations", nil)
		req.RemoteAddr = "192.0.2.7:40000"
		req.Header.Set("Authorization", "Bearer not-a-token")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		codes = append(codes, rec.Code)
	}

	want := []int{http.StatusUnauthorized, http.StatusUnauthorized, http.StatusTooManyRequests}
	for i := range want {
		if codes[i] != want[i] {
			t.Fatalf("status codes = %v, want %v", codes, want)
		}
	}
}

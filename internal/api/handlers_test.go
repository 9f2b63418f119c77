package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"travelchat/internal/auth"
	"travelchat/internal/chats"
	"travelchat/internal/session"
	"travelchat/internal/users"
	"travelchat/pkg/config"
	"travelchat/pkg/db"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSigningKey = "test-signing-key"

type stubGenerator struct {
	response    string
	calls       int
	lastHistory []session.Message
}

func (s *stubGenerator) GenerateResponse(_ context.Context, _ string, _ string, history []session.Message) string {
	s.calls++
	s.lastHistory = history
	return s.response
}

type testEnv struct {
	server      *httptest.Server
	generator   *stubGenerator
	chatService *chats.Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cfg := &config.Config{
		DBDriver:   "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "test.db"),
	}
	database, err := db.NewDB(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { database.Close() })
	require.NoError(t, db.InitSchema(database, "sqlite"))

	userService := users.NewService(users.NewRepository(database))
	chatService := chats.NewService(chats.NewRepository(database))
	generator := &stubGenerator{response: "Когда планируете поездку?"}

	handler := NewHandler(userService, chatService, generator, testSigningKey)

	mux := http.NewServeMux()
	mux.Handle("/register", http.HandlerFunc(handler.RegisterHandler))
	mux.Handle("/login", http.HandlerFunc(handler.LoginHandler))
	mux.Handle("/verify", auth.JWTMiddleware(http.HandlerFunc(handler.VerifyHandler), testSigningKey))
	mux.Handle("/chat", auth.JWTMiddleware(http.HandlerFunc(handler.ChatHandler), testSigningKey))
	mux.Handle("/chats/{username}", auth.JWTMiddleware(http.HandlerFunc(handler.ListChatsHandler), testSigningKey))

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	return &testEnv{server: server, generator: generator, chatService: chatService}
}

func (e *testEnv) do(t *testing.T, method, path, token string, body interface{}) (int, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, data
}

func (e *testEnv) register(t *testing.T, username, password string) int {
	status, _ := e.do(t, http.MethodPost, "/register", "", CredentialsRequest{Username: username, Password: password})
	return status
}

func (e *testEnv) login(t *testing.T, username, password string) string {
	status, body := e.do(t, http.MethodPost, "/login", "", CredentialsRequest{Username: username, Password: password})
	require.Equal(t, http.StatusOK, status)

	var resp LoginResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	require.Equal(t, "bearer", resp.TokenType)
	require.Equal(t, username, resp.Username)
	return resp.AccessToken
}

func TestRegisterAndLogin(t *testing.T) {
	env := newTestEnv(t)

	assert.Equal(t, http.StatusOK, env.register(t, "bob", "pw1"))
	assert.Equal(t, http.StatusBadRequest, env.register(t, "bob", "pw2"))

	token := env.login(t, "bob", "pw1")
	assert.NotEmpty(t, token)

	status, _ := env.do(t, http.MethodPost, "/login", "", CredentialsRequest{Username: "bob", Password: "pw2"})
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestRegister_Validation(t *testing.T) {
	env := newTestEnv(t)

	status, _ := env.do(t, http.MethodPost, "/register", "", CredentialsRequest{Username: "bob"})
	assert.Equal(t, http.StatusBadRequest, status)

	status, _ = env.do(t, http.MethodGet, "/register", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, status)
}

func TestVerify(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "bob", "pw1")
	token := env.login(t, "bob", "pw1")

	status, body := env.do(t, http.MethodPost, "/verify", token, nil)
	require.Equal(t, http.StatusOK, status)

	var resp VerifyResponse
	require.NoError(t, json.Unmarshal(body, &resp))
	assert.Equal(t, "bob", resp.Username)

	status, _ = env.do(t, http.MethodPost, "/verify", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)

	status, _ = env.do(t, http.MethodPost, "/verify", "мусор", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestChat_CreateThenAppend(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "bob", "pw1")
	token := env.login(t, "bob", "pw1")

	// Без chat_id создается ровно один новый чат с одной репликой.
	status, body := env.do(t, http.MethodPost, "/chat", token, ChatRequest{
		Username: "bob",
		Message:  "Plan a trip to Kyoto",
	})
	require.Equal(t, http.StatusOK, status)

	var first ChatResponse
	require.NoError(t, json.Unmarshal(body, &first))
	assert.Equal(t, "Когда планируете поездку?", first.Response)
	require.Greater(t, first.ChatID, int64(0))

	// С chat_id реплика добавляется в тот же чат, новый не создается.
	status, body = env.do(t, http.MethodPost, "/chat", token, ChatRequest{
		Username: "bob",
		ChatID:   &first.ChatID,
		Message:  "Budget is $2000",
	})
	require.Equal(t, http.StatusOK, status)

	var second ChatResponse
	require.NoError(t, json.Unmarshal(body, &second))
	assert.Equal(t, first.ChatID, second.ChatID)

	status, body = env.do(t, http.MethodGet, "/chats/bob", token, nil)
	require.Equal(t, http.StatusOK, status)

	var chatList []chats.Chat
	require.NoError(t, json.Unmarshal(body, &chatList))
	require.Len(t, chatList, 1)
	assert.Equal(t, "Plan a trip to Kyoto...", chatList[0].Title)
	require.Len(t, chatList[0].Messages, 2)
	assert.Equal(t, "Plan a trip to Kyoto", chatList[0].Messages[0].UserInput)
	assert.Equal(t, "Budget is $2000", chatList[0].Messages[1].UserInput)

	assert.Equal(t, 2, env.generator.calls)
}

func TestChat_TitleDerivation(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "bob", "pw1")
	token := env.login(t, "bob", "pw1")

	longMessage := "Очень длинное сообщение, которое обязательно придется обрезать"
	status, _ := env.do(t, http.MethodPost, "/chat", token, ChatRequest{Username: "bob", Message: longMessage})
	require.Equal(t, http.StatusOK, status)

	// Явный заголовок имеет приоритет над производным.
	status, _ = env.do(t, http.MethodPost, "/chat", token, ChatRequest{Username: "bob", Message: "привет", Title: "Мой чат"})
	require.Equal(t, http.StatusOK, status)

	_, body := env.do(t, http.MethodGet, "/chats/bob", token, nil)
	var chatList []chats.Chat
	require.NoError(t, json.Unmarshal(body, &chatList))
	require.Len(t, chatList, 2)
	assert.Equal(t, string([]rune(longMessage)[:30])+"...", chatList[0].Title)
	assert.Equal(t, "Мой чат", chatList[1].Title)
}

func TestChat_IdentityMismatchRejectedBeforeAnyMutation(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "pw1")
	env.register(t, "bob", "pw1")
	aliceToken := env.login(t, "alice", "pw1")

	status, _ := env.do(t, http.MethodPost, "/chat", aliceToken, ChatRequest{Username: "bob", Message: "привет"})
	assert.Equal(t, http.StatusForbidden, status)

	// Ни генератор, ни хранилище не были затронуты.
	assert.Equal(t, 0, env.generator.calls)
	chatList, err := env.chatService.ListChats(context.Background(), "bob")
	require.NoError(t, err)
	assert.Empty(t, chatList)
}

func TestChat_UnknownChatID(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "bob", "pw1")
	token := env.login(t, "bob", "pw1")

	missingID := int64(9999)
	status, _ := env.do(t, http.MethodPost, "/chat", token, ChatRequest{Username: "bob", ChatID: &missingID, Message: "привет"})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, 0, env.generator.calls)
}

func TestChat_ForeignChatForbidden(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "pw1")
	env.register(t, "bob", "pw1")
	bobToken := env.login(t, "bob", "pw1")
	aliceToken := env.login(t, "alice", "pw1")

	status, body := env.do(t, http.MethodPost, "/chat", bobToken, ChatRequest{Username: "bob", Message: "привет"})
	require.Equal(t, http.StatusOK, status)
	var created ChatResponse
	require.NoError(t, json.Unmarshal(body, &created))

	status, _ = env.do(t, http.MethodPost, "/chat", aliceToken, ChatRequest{Username: "alice", ChatID: &created.ChatID, Message: "взлом"})
	assert.Equal(t, http.StatusForbidden, status)

	chatList, err := env.chatService.ListChats(context.Background(), "bob")
	require.NoError(t, err)
	require.Len(t, chatList, 1)
	assert.Len(t, chatList[0].Messages, 1)
}

func TestChat_HistoryPassedToGenerator(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "bob", "pw1")
	token := env.login(t, "bob", "pw1")

	status, _ := env.do(t, http.MethodPost, "/chat", token, ChatRequest{
		Username: "bob",
		Message:  "продолжим",
		Messages: []session.Message{
			{Role: "user", Content: "привет", Timestamp: "2025-08-01T10:00:00Z"},
			{Role: "assistant", Content: "здравствуйте", Timestamp: "2025-08-01T10:00:05Z"},
		},
	})
	require.Equal(t, http.StatusOK, status)
	require.Len(t, env.generator.lastHistory, 2)
	assert.Equal(t, "привет", env.generator.lastHistory[0].Content)
}

func TestListChats_ForbiddenForOtherUser(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "pw1")
	aliceToken := env.login(t, "alice", "pw1")

	status, _ := env.do(t, http.MethodGet, "/chats/bob", aliceToken, nil)
	assert.Equal(t, http.StatusForbidden, status)

	status, _ = env.do(t, http.MethodGet, "/chats/alice", "", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestListChats_EmptyIsJSONArray(t *testing.T) {
	env := newTestEnv(t)
	env.register(t, "alice", "pw1")
	token := env.login(t, "alice", "pw1")

	status, body := env.do(t, http.MethodGet, "/chats/alice", token, nil)
	require.Equal(t, http.StatusOK, status)
	assert.JSONEq(t, "[]", string(body))
}

func TestDeriveTitle(t *testing.T) {
	assert.Equal(t, "Plan a trip to Kyoto...", deriveTitle("Plan a trip to Kyoto"))

	long := deriveTitle("аaаaаaаaаaаaаaаaаaаaаaаaаaаaаaаaаaаaаaаa")
	assert.Equal(t, fmt.Sprintf("%s...", string([]rune("аaаaаaаaаaаaаaаaаaаaаaаaаaаaаaаaаaаaаaаa")[:30])), long)
}

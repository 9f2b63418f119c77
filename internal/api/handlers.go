package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"travelchat/internal/auth"
	"travelchat/internal/chats"
	"travelchat/internal/session"
	"travelchat/internal/users"

	"github.com/sirupsen/logrus"
)

const tokenTTL = 7 * 24 * time.Hour

type ResponseGenerator interface {
	GenerateResponse(ctx context.Context, sessionID, userInput string, history []session.Message) string
}

type Handler struct {
	userService   *users.Service
	chatService   *chats.Service
	generator     ResponseGenerator
	jwtSigningKey string
}

func NewHandler(
	userService *users.Service,
	chatService *chats.Service,
	generator ResponseGenerator,
	jwtKey string,
) *Handler {
	return &Handler{
		userService:   userService,
		chatService:   chatService,
		generator:     generator,
		jwtSigningKey: jwtKey,
	}
}

type CredentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type MessageResponse struct {
	Message string `json:"message"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	Username    string `json:"username"`
}

type VerifyResponse struct {
	Username string `json:"username"`
}

type ChatRequest struct {
	Username string            `json:"username"`
	ChatID   *int64            `json:"chat_id,omitempty"`
	Message  string            `json:"message"`
	Title    string            `json:"title,omitempty"`
	Messages []session.Message `json:"messages,omitempty"`
}

type ChatResponse struct {
	Response string `json:"response"`
	ChatID   int64  `json:"chat_id"`
}

func (h *Handler) RegisterHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Метод не разрешен", http.StatusMethodNotAllowed)
		return
	}

	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Некорректное тело запроса", http.StatusBadRequest)
		return
	}

	if req.Username == "" || req.Password == "" {
		http.Error(w, "Имя пользователя и пароль обязательны", http.StatusBadRequest)
		return
	}

	if _, err := h.userService.RegisterUser(r.Context(), req.Username, req.Password); err != nil {
		if errors.Is(err, users.ErrUserAlreadyExists) {
			http.Error(w, "Пользователь с таким именем уже существует", http.StatusBadRequest)
		} else {
			logrus.Errorf("Ошибка регистрации пользователя '%s': %v", req.Username, err)
			http.Error(w, "Ошибка при регистрации пользователя", http.StatusInternalServerError)
		}
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{Message: "Регистрация прошла успешно"})
}

func (h *Handler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Метод не разрешен", http.StatusMethodNotAllowed)
		return
	}

	var req CredentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Некорректное тело запроса", http.StatusBadRequest)
		return
	}

	if req.Username == "" || req.Password == "" {
		http.Error(w, "Имя пользователя и пароль обязательны", http.StatusBadRequest)
		return
	}

	user, err := h.userService.AuthenticateUser(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, users.ErrInvalidCredentials) {
			http.Error(w, "Неверное имя пользователя или пароль", http.StatusUnauthorized)
		} else {
			logrus.Errorf("Ошибка аутентификации пользователя '%s': %v", req.Username, err)
			http.Error(w, "Ошибка аутентификации", http.StatusInternalServerError)
		}
		return
	}

	tokenString, err := auth.GenerateJWTToken(user.Username, h.jwtSigningKey, tokenTTL)
	if err != nil {
		logrus.Errorf("Ошибка генерации JWT токена: %v", err)
		http.Error(w, "Ошибка при генерации токена", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		AccessToken: tokenString,
		TokenType:   "bearer",
		Username:    user.Username,
	})
}

func (h *Handler) VerifyHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Метод не разрешен", http.StatusMethodNotAllowed)
		return
	}

	username, ok := auth.GetUsernameFromContext(r.Context())
	if !ok {
		logrus.Error("Не удалось извлечь имя пользователя из контекста в VerifyHandler")
		http.Error(w, "Невалидный токен", http.StatusUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, VerifyResponse{Username: username})
}

func (h *Handler) ChatHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Метод не разрешен", http.StatusMethodNotAllowed)
		return
	}

	tokenUsername, ok := auth.GetUsernameFromContext(r.Context())
	if !ok {
		logrus.Error("Не удалось извлечь имя пользователя из контекста в ChatHandler")
		http.Error(w, "Невалидный токен", http.StatusUnauthorized)
		return
	}

	var req ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Некорректное тело запроса", http.StatusBadRequest)
		return
	}

	if req.Username == "" || req.Message == "" {
		http.Error(w, "Имя пользователя и сообщение обязательны", http.StatusBadRequest)
		return
	}

	// Проверка владельца — до любого обращения к хранилищу и генератору.
	if req.Username != tokenUsername {
		logrus.Warnf("Пользователь '%s' попытался писать в чат от имени '%s'", tokenUsername, req.Username)
		http.Error(w, "Доступ запрещен", http.StatusForbidden)
		return
	}

	if req.ChatID != nil {
		chat, err := h.chatService.GetChat(r.Context(), *req.ChatID)
		if err != nil {
			logrus.Errorf("Ошибка при получении чата %d: %v", *req.ChatID, err)
			http.Error(w, "Ошибка при получении чата", http.StatusInternalServerError)
			return
		}
		if chat == nil {
			http.Error(w, "Чат не найден", http.StatusNotFound)
			return
		}
		if chat.Username != tokenUsername {
			logrus.Warnf("Пользователь '%s' попытался писать в чужой чат %d", tokenUsername, *req.ChatID)
			http.Error(w, "Доступ запрещен", http.StatusForbidden)
			return
		}
	}

	response := h.generator.GenerateResponse(r.Context(), req.Username, req.Message, req.Messages)

	var chatID int64
	if req.ChatID != nil {
		chatID = *req.ChatID
		if err := h.chatService.AppendTurn(r.Context(), chatID, req.Message, response); err != nil {
			if errors.Is(err, chats.ErrChatNotFound) {
				http.Error(w, "Чат не найден", http.StatusNotFound)
			} else {
				logrus.Errorf("Ошибка при сохранении реплики в чат %d: %v", chatID, err)
				http.Error(w, "Ошибка при сохранении сообщения", http.StatusInternalServerError)
			}
			return
		}
	} else {
		title := req.Title
		if title == "" {
			title = deriveTitle(req.Message)
		}
		newChatID, err := h.chatService.CreateChat(r.Context(), req.Username, title, req.Message, response)
		if err != nil {
			logrus.Errorf("Ошибка при создании чата для пользователя '%s': %v", req.Username, err)
			http.Error(w, "Ошибка при создании чата", http.StatusInternalServerError)
			return
		}
		chatID = newChatID
	}

	writeJSON(w, http.StatusOK, ChatResponse{Response: response, ChatID: chatID})
}

func (h *Handler) ListChatsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Метод не разрешен", http.StatusMethodNotAllowed)
		return
	}

	tokenUsername, ok := auth.GetUsernameFromContext(r.Context())
	if !ok {
		logrus.Error("Не удалось извлечь имя пользователя из контекста в ListChatsHandler")
		http.Error(w, "Невалидный токен", http.StatusUnauthorized)
		return
	}

	username := r.PathValue("username")
	if username == "" {
		http.Error(w, "Не указано имя пользователя", http.StatusBadRequest)
		return
	}

	if username != tokenUsername {
		logrus.Warnf("Пользователь '%s' попытался прочитать чаты '%s'", tokenUsername, username)
		http.Error(w, "Доступ запрещен", http.StatusForbidden)
		return
	}

	chatList, err := h.chatService.ListChats(r.Context(), username)
	if err != nil {
		logrus.Errorf("Ошибка при получении чатов пользователя '%s': %v", username, err)
		http.Error(w, "Ошибка при получении чатов", http.StatusInternalServerError)
		return
	}
	if chatList == nil {
		chatList = []chats.Chat{}
	}

	writeJSON(w, http.StatusOK, chatList)
}

func deriveTitle(message string) string {
	runes := []rune(message)
	if len(runes) > 30 {
		runes = runes[:30]
	}
	return string(runes) + "..."
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		logrus.Errorf("Ошибка при сериализации ответа в JSON: %v", err)
	}
}

package chats

import (
	"context"
	"errors"

	"github.com/sirupsen/logrus"
)

var ErrChatNotFound = errors.New("чат не найден")

type Service struct {
	repo *Repository
}

func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) CreateChat(ctx context.Context, username, title, userInput, botResponse string) (int64, error) {
	logrus.Debugf("Создание чата '%s' для пользователя %s", title, username)
	return s.repo.CreateChat(ctx, username, title, userInput, botResponse)
}

func (s *Service) AppendTurn(ctx context.Context, chatID int64, userInput, botResponse string) error {
	logrus.Debugf("Добавление реплики в чат %d", chatID)
	return s.repo.AppendTurn(ctx, chatID, userInput, botResponse)
}

func (s *Service) GetChat(ctx context.Context, chatID int64) (*Chat, error) {
	return s.repo.GetChat(ctx, chatID)
}

func (s *Service) ListChats(ctx context.Context, username string) ([]Chat, error) {
	logrus.Debugf("Получение чатов пользователя %s", username)
	return s.repo.ListChats(ctx, username)
}

package users

import (
	"context"
	"errors"
	"fmt"

	"travelchat/internal/auth"

	"github.com/sirupsen/logrus"
)

var (
	ErrUserAlreadyExists  = errors.New("пользователь с таким именем уже существует")
	ErrInvalidCredentials = errors.New("неверное имя пользователя или пароль")
)

type Service struct {
	repo *Repository
}

func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

func (s *Service) RegisterUser(ctx context.Context, username, password string) (*User, error) {
	hashedPassword, err := auth.HashPassword(password)
	if err != nil {
		logrus.Errorf("Ошибка хеширования пароля для пользователя '%s': %v", username, err)
		return nil, fmt.Errorf("внутренняя ошибка сервера при хешировании пароля")
	}

	user, err := s.repo.CreateUser(ctx, username, hashedPassword)
	if err != nil {
		if errors.Is(err, ErrUserAlreadyExists) {
			return nil, ErrUserAlreadyExists
		}
		logrus.Errorf("Ошибка создания пользователя '%s' в репозитории: %v", username, err)
		return nil, fmt.Errorf("внутренняя ошибка сервера при создании пользователя")
	}

	logrus.Infof("Зарегистрирован пользователь '%s'", username)
	return user, nil
}

func (s *Service) AuthenticateUser(ctx context.Context, username, password string) (*User, error) {
	user, err := s.repo.GetUserByUsername(ctx, username)
	if err != nil {
		logrus.Errorf("Ошибка при получении пользователя '%s' для аутентификации: %v", username, err)
		return nil, fmt.Errorf("внутренняя ошибка сервера при аутентификации")
	}
	if user == nil {
		return nil, ErrInvalidCredentials
	}

	if !auth.CheckPasswordHash(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}

	return user, nil
}

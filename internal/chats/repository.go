package chats

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"travelchat/pkg/db"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type Repository struct {
	db *sqlx.DB
}

func NewRepository(database *sqlx.DB) *Repository {
	return &Repository{db: database}
}

func (r *Repository) CreateChat(ctx context.Context, username, title, userInput, botResponse string) (int64, error) {
	var chatID int64

	err := db.WithRetry(func() error {
		tx, err := r.db.BeginTxx(ctx, nil)
		if err != nil {
			return fmt.Errorf("ошибка при открытии транзакции: %w", err)
		}
		defer tx.Rollback()

		now := time.Now().UTC()

		insertChat := tx.Rebind(`INSERT INTO chats (username, title, created_at) VALUES (?, ?, ?) RETURNING id`)
		if err := tx.GetContext(ctx, &chatID, insertChat, username, title, now); err != nil {
			return fmt.Errorf("ошибка при создании чата: %w", err)
		}

		insertTurn := tx.Rebind(`INSERT INTO chat_messages (chat_id, user_input, bot_response, created_at) VALUES (?, ?, ?, ?)`)
		if _, err := tx.ExecContext(ctx, insertTurn, chatID, userInput, botResponse, now); err != nil {
			return fmt.Errorf("ошибка при сохранении первой реплики чата: %w", err)
		}

		return tx.Commit()
	})
	if err != nil {
		return 0, err
	}

	return chatID, nil
}

func (r *Repository) AppendTurn(ctx context.Context, chatID int64, userInput, botResponse string) error {
	query := r.db.Rebind(`INSERT INTO chat_messages (chat_id, user_input, bot_response, created_at) VALUES (?, ?, ?, ?)`)

	err := db.WithRetry(func() error {
		_, execErr := r.db.ExecContext(ctx, query, chatID, userInput, botResponse, time.Now().UTC())
		return execErr
	})
	if err != nil {
		if isForeignKeyViolation(err) {
			return ErrChatNotFound
		}
		return fmt.Errorf("ошибка при сохранении реплики чата %d: %w", chatID, err)
	}
	return nil
}

func (r *Repository) GetChat(ctx context.Context, chatID int64) (*Chat, error) {
	query := r.db.Rebind(`SELECT id, username, title, created_at FROM chats WHERE id = ?`)

	var chat Chat
	err := db.WithRetry(func() error {
		return r.db.GetContext(ctx, &chat, query, chatID)
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("ошибка при получении чата %d: %w", chatID, err)
	}
	return &chat, nil
}

func (r *Repository) ListChats(ctx context.Context, username string) ([]Chat, error) {
	chatsQuery := r.db.Rebind(`
		SELECT id, username, title, created_at
		FROM chats
		WHERE username = ?
		ORDER BY created_at ASC, id ASC
	`)

	var chatList []Chat
	err := db.WithRetry(func() error {
		return r.db.SelectContext(ctx, &chatList, chatsQuery, username)
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка при получении чатов пользователя %s: %w", username, err)
	}

	turnsQuery := r.db.Rebind(`
		SELECT cm.id, cm.chat_id, cm.user_input, cm.bot_response, cm.created_at
		FROM chat_messages cm
		JOIN chats c ON c.id = cm.chat_id
		WHERE c.username = ?
		ORDER BY cm.created_at ASC, cm.id ASC
	`)

	var turns []Turn
	err = db.WithRetry(func() error {
		return r.db.SelectContext(ctx, &turns, turnsQuery, username)
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка при получении реплик чатов пользователя %s: %w", username, err)
	}

	turnsByChat := make(map[int64][]Turn, len(chatList))
	for _, turn := range turns {
		turnsByChat[turn.ChatID] = append(turnsByChat[turn.ChatID], turn)
	}

	result := make([]Chat, len(chatList))
	for i, chat := range chatList {
		chat.Messages = turnsByChat[chat.ID]
		if chat.Messages == nil {
			chat.Messages = []Turn{}
		}
		result[i] = chat
	}
	return result, nil
}

func isForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23503"
	}
	return strings.Contains(err.Error(), "FOREIGN KEY constraint failed")
}

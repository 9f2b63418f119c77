package chats

import (
	"time"
)

type Chat struct {
	ID        int64     `db:"id" json:"id"`
	Username  string    `db:"username" json:"username"`
	Title     string    `db:"title" json:"title"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
	Messages  []Turn    `json:"messages"`
}

type Turn struct {
	ID          int64     `db:"id" json:"id"`
	ChatID      int64     `db:"chat_id" json:"chat_id"`
	UserInput   string    `db:"user_input" json:"user_input"`
	BotResponse string    `db:"bot_response" json:"bot_response"`
	CreatedAt   time.Time `db:"created_at" json:"timestamp"`
}

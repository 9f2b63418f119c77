package db

import (
	"fmt"
	"strings"
	"time"

	"travelchat/pkg/config"

	_ "github.com/glebarez/go-sqlite"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"
)

const (
	maxRetries = 3
	retryDelay = 100 * time.Millisecond
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
}

func NewDB(cfg *config.Config) (*sqlx.DB, error) {
	var (
		db  *sqlx.DB
		err error
	)

	switch cfg.DBDriver {
	case "postgres":
		connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			cfg.PostgresHost, cfg.PostgresPort, cfg.PostgresUser, cfg.PostgresPassword, cfg.PostgresDB)
		db, err = sqlx.Open("postgres", connStr)
	case "sqlite":
		dsn := "file:" + cfg.SQLitePath + "?_pragma=busy_timeout(10000)&_pragma=foreign_keys(1)"
		db, err = sqlx.Open("sqlite", dsn)
	default:
		return nil, fmt.Errorf("неизвестный драйвер базы данных: %s", cfg.DBDriver)
	}
	if err != nil {
		return nil, err
	}

	if err := db.Ping(); err != nil {
		return nil, err
	}

	logrus.Infof("Успешное подключение к базе данных (%s)", cfg.DBDriver)
	return db, nil
}

const schemaSQLite = `
CREATE TABLE IF NOT EXISTS users (
	username TEXT PRIMARY KEY,
	password_hash TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS chats (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	username TEXT NOT NULL,
	title TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	FOREIGN KEY (username) REFERENCES users(username)
);

CREATE TABLE IF NOT EXISTS chat_messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	chat_id INTEGER NOT NULL,
	user_input TEXT NOT NULL,
	bot_response TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	FOREIGN KEY (chat_id) REFERENCES chats(id) ON DELETE CASCADE
);`

const schemaPostgres = `
CREATE TABLE IF NOT EXISTS users (
	username TEXT PRIMARY KEY,
	password_hash TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS chats (
	id BIGSERIAL PRIMARY KEY,
	username TEXT NOT NULL REFERENCES users(username),
	title TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS chat_messages (
	id BIGSERIAL PRIMARY KEY,
	chat_id BIGINT NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
	user_input TEXT NOT NULL,
	bot_response TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);`

func InitSchema(db *sqlx.DB, driver string) error {
	schema := schemaSQLite
	if driver == "postgres" {
		schema = schemaPostgres
	}
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("ошибка при инициализации схемы базы данных: %w", err)
	}
	logrus.Info("Схема базы данных инициализирована")
	return nil
}

func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "SQLITE_BUSY")
}

func WithRetry(fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxRetries; attempt++ {
		err = fn()
		if err == nil || !IsBusy(err) {
			return err
		}
		logrus.Warnf("База данных заблокирована (попытка %d из %d): %v", attempt, maxRetries, err)
		time.Sleep(retryDelay)
	}
	return fmt.Errorf("база данных осталась заблокирована после %d попыток: %w", maxRetries, err)
}

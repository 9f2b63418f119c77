package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"travelchat/internal/api"
	"travelchat/internal/assistant"
	"travelchat/internal/auth"
	"travelchat/internal/chats"
	"travelchat/internal/middleware"
	"travelchat/internal/session"
	"travelchat/internal/users"
	"travelchat/pkg/config"
	"travelchat/pkg/db"

	"github.com/sirupsen/logrus"
)

func main() {

	logrus.SetFormatter(&logrus.JSONFormatter{})
	logrus.SetOutput(os.Stdout)
	logrus.SetLevel(logrus.InfoLevel)

	cfg := config.LoadConfig()

	database, err := db.NewDB(cfg)
	if err != nil {
		logrus.Fatalf("Ошибка при подключении к базе данных: %v", err)
	}
	defer database.Close()

	if err := db.InitSchema(database, cfg.DBDriver); err != nil {
		logrus.Fatalf("Ошибка при инициализации схемы базы данных: %v", err)
	}

	userRepo := users.NewRepository(database)
	userService := users.NewService(userRepo)

	chatRepo := chats.NewRepository(database)
	chatService := chats.NewService(chatRepo)

	sessionStore := session.NewStore(time.Duration(cfg.SessionTTLMinutes) * time.Minute)
	assistantService := assistant.NewService(cfg, sessionStore)

	apiHandler := api.NewHandler(userService, chatService, assistantService, cfg.JWTSigningKey)

	mux := http.NewServeMux()

	mux.Handle("/register", middleware.CORSMiddleware(middleware.RequestIDMiddleware(http.HandlerFunc(apiHandler.RegisterHandler))))

	mux.Handle("/login", middleware.CORSMiddleware(middleware.RequestIDMiddleware(http.HandlerFunc(apiHandler.LoginHandler))))

	verifyHandler := http.HandlerFunc(apiHandler.VerifyHandler)
	mux.Handle("/verify", middleware.CORSMiddleware(middleware.RequestIDMiddleware(auth.JWTMiddleware(verifyHandler, cfg.JWTSigningKey))))

	chatHandler := http.HandlerFunc(apiHandler.ChatHandler)
	mux.Handle("/chat", middleware.CORSMiddleware(middleware.RequestIDMiddleware(auth.JWTMiddleware(chatHandler, cfg.JWTSigningKey))))

	listChatsHandler := http.HandlerFunc(apiHandler.ListChatsHandler)
	mux.Handle("/chats/{username}", middleware.CORSMiddleware(middleware.RequestIDMiddleware(auth.JWTMiddleware(listChatsHandler, cfg.JWTSigningKey))))

	server := &http.Server{
		Addr:    cfg.ServerHost + ":" + cfg.ServerPort,
		Handler: mux,
	}

	go func() {
		logrus.Infof("Сервер запущен на порту %s", cfg.ServerPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("Ошибка при запуске сервера: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logrus.Info("Завершение работы сервера...")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		logrus.Fatalf("Ошибка при остановке сервера: %v", err)
	}

	logrus.Info("Сервер остановлен")
}

package assistant

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"travelchat/internal/session"
	"travelchat/pkg/config"

	"github.com/sashabaranov/go-openai"
	"github.com/sirupsen/logrus"
)

const apologyMessage = "Приношу извинения, у меня возникли трудности с ответом. Попробуйте переформулировать вопрос."

type Service struct {
	client   *openai.Client
	model    string
	sessions *session.Store
}

func NewService(cfg *config.Config, sessions *session.Store) *Service {
	clientConfig := openai.DefaultConfig(cfg.OpenAIKey)
	if cfg.OpenAIBaseURL != "" {
		clientConfig.BaseURL = cfg.OpenAIBaseURL
	}

	model := cfg.ChatModel
	if model == "" {
		model = openai.GPT4Dot1
	}

	return &Service{
		client:   openai.NewClientWithConfig(clientConfig),
		model:    model,
		sessions: sessions,
	}
}

func (s *Service) GenerateResponse(ctx context.Context, sessionID, userInput string, history []session.Message) string {
	travelCtx := s.sessions.Get(sessionID)
	travelCtx.ResetTranscript(history)
	travelCtx.AddMessage("user", userInput)

	systemPrompt := buildTravelPrompt(travelCtx)

	messages := make([]openai.ChatCompletionMessage, 0, len(travelCtx.Messages)+1)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleSystem,
		Content: systemPrompt,
	})
	for _, msg := range travelCtx.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    msg.Role,
			Content: msg.Content,
		})
	}

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    s.model,
		Messages: messages,
	})
	if err != nil {
		logModelError(sessionID, err)
		return apologyMessage
	}

	if len(resp.Choices) == 0 || strings.TrimSpace(resp.Choices[0].Message.Content) == "" {
		logrus.Errorf("Пустой ответ модели для сессии %s", sessionID)
		return apologyMessage
	}

	answer := strings.TrimSpace(resp.Choices[0].Message.Content)
	travelCtx.AddMessage("assistant", answer)
	s.sessions.Put(sessionID, travelCtx)

	return answer
}

func logModelError(sessionID string, err error) {
	var apiErr *openai.APIError
	var urlErr *url.Error
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		logrus.Errorf("Таймаут запроса к модели для сессии %s: %v", sessionID, err)
	case errors.As(err, &urlErr) && urlErr.Timeout():
		logrus.Errorf("Таймаут запроса к модели для сессии %s: %v", sessionID, err)
	case errors.As(err, &apiErr):
		logrus.Errorf("Ошибка API модели для сессии %s (HTTP %d): %v", sessionID, apiErr.HTTPStatusCode, err)
	case errors.As(err, &urlErr):
		logrus.Errorf("Транспортная ошибка при запросе к модели для сессии %s: %v", sessionID, err)
	default:
		logrus.Errorf("Некорректный ответ модели для сессии %s: %v", sessionID, err)
	}
}

func buildTravelPrompt(travelCtx *session.TravelContext) string {
	missing := travelCtx.MissingInfo()
	if len(missing) > 0 {
		return fmt.Sprintf(
			"Ты туристический ассистент. По ходу диалога нужно выяснить: %s. "+
				"Естественно спроси ровно об ОДНОЙ недостающей детали. Известная информация: %s.",
			strings.Join(missing, ", "), travelCtx.FactsSummary())
	}
	return fmt.Sprintf(`Составь подробный маршрут путешествия:
Место: %s
Даты: %s
Бюджет: %s
Интересы: %s
Укажи конкретные места, время и стоимость.`,
		travelCtx.Fact("location"), travelCtx.Fact("dates"), travelCtx.Fact("budget"), travelCtx.Fact("interests"))
}

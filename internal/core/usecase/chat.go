package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kirillkom/uk-legal-assistant/internal/core/domain"
	"github.com/kirillkom/uk-legal-assistant/internal/core/ports"
)

const defaultHistoryLimit = 20

// ChatUseCase answers a message and persists the exchange.
type ChatUseCase struct {
	answerer     ports.LegalAnswerer
	history      ports.ChatHistoryStore
	historyLimit int
}

func NewChatUseCase(answerer ports.LegalAnswerer, history ports.ChatHistoryStore, historyLimit int) *ChatUseCase {
	if historyLimit <= 0 {
		historyLimit = defaultHistoryLimit
	}
	return &ChatUseCase{
		answerer:     answerer,
		history:      history,
		historyLimit: historyLimit,
	}
}

func (uc *ChatUseCase) Chat(ctx context.Context, req domain.AnswerRequest) (*domain.Answer, error) {
	req.Query = strings.TrimSpace(req.Query)
	req.UserID = strings.TrimSpace(req.UserID)
	req.SessionID = strings.TrimSpace(req.SessionID)
	if req.Query == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chat", errors.New("message is required"))
	}
	if req.UserID == "" || req.SessionID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chat", errors.New("user_id and session_id are required"))
	}

	if len(req.PriorTurns) == 0 {
		messages, err := uc.history.ListMessages(ctx, req.UserID, req.SessionID, uc.historyLimit)
		if err != nil {
			return nil, fmt.Errorf("load chat history: %w", err)
		}
		req.PriorTurns = turnsFromMessages(messages)
	}

	answer, err := uc.answerer.Answer(ctx, req)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	if err := uc.history.AppendMessage(ctx, domain.ChatMessage{
		SessionID: req.SessionID,
		UserID:    req.UserID,
		Role:      domain.RoleHuman,
		Content:   req.Query,
		CreatedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("save user message: %w", err)
	}
	if err := uc.history.AppendMessage(ctx, domain.ChatMessage{
		SessionID: req.SessionID,
		UserID:    req.UserID,
		Role:      domain.RoleAI,
		Content:   answer.Text,
		Mode:      string(answer.Mode),
		CreatedAt: now,
	}); err != nil {
		return nil, fmt.Errorf("save assistant message: %w", err)
	}
	return answer, nil
}

func (uc *ChatUseCase) History(ctx context.Context, userID, sessionID string) ([]domain.ChatMessage, error) {
	userID = strings.TrimSpace(userID)
	sessionID = strings.TrimSpace(sessionID)
	if userID == "" || sessionID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "chat history", errors.New("user_id and session_id are required"))
	}
	messages, err := uc.history.ListMessages(ctx, userID, sessionID, uc.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("list chat history: %w", err)
	}
	return messages, nil
}

func turnsFromMessages(messages []domain.ChatMessage) []domain.Turn {
	turns := make([]domain.Turn, 0, len(messages))
	for _, m := range messages {
		if m.Role != domain.RoleHuman && m.Role != domain.RoleAI {
			continue
		}
		turns = append(turns, domain.Turn{Role: m.Role, Text: m.Content})
	}
	return turns
}

package service

import (
	"context"
	"fmt"
	"strings"

	"sorare-coach/internal/api"
	"sorare-coach/internal/constants"

	"github.com/rs/zerolog"
)

type ChatCompleter interface {
	Enabled() bool
	Complete(ctx context.Context, messages []api.ChatMessage) (string, api.ChatUsage, error)
}

type CoachRequest struct {
	UserMessage         string            `json:"userMessage" validate:"required"`
	ConversationHistory []api.ChatMessage `json:"conversationHistory" validate:"dive"`
	SystemPrompt        string            `json:"systemPrompt"`
}

type CoachReply struct {
	Response string        `json:"response"`
	Usage    api.ChatUsage `json:"usage"`
}

type CoachService struct {
	completer ChatCompleter
	logger    zerolog.Logger
}

func NewCoachService(completer *api.OpenAIClient, logger zerolog.Logger) *CoachService {
	return newCoachService(completer, logger)
}

func newCoachService(completer ChatCompleter, logger zerolog.Logger) *CoachService {
	return &CoachService{completer: completer, logger: logger.With().Str("component", "coach").Logger()}
}

func (s *CoachService) Enabled() bool {
	return s.completer.Enabled()
}

// Ask sends the system prompt, the most recent history and the new user
// message as one stateless completion.
func (s *CoachService) Ask(ctx context.Context, req CoachRequest) (*CoachReply, error) {
	if !s.completer.Enabled() {
		return nil, api.ErrCoachDisabled
	}

	ctx, cancel := context.WithTimeout(ctx, constants.CoachTimeout)
	defer cancel()

	messages := BuildCoachMessages(req)
	s.logger.Info().Int("messages", len(messages)).Msg("sending coach request")

	content, usage, err := s.completer.Complete(ctx, messages)
	if err != nil {
		s.logger.Error().Err(err).Msg("coach completion failed")
		return nil, fmt.Errorf("coach completion failed: %w", err)
	}
	return &CoachReply{Response: content, Usage: usage}, nil
}

// BuildCoachMessages keeps at most the last CoachHistoryLimit history
// messages.
func BuildCoachMessages(req CoachRequest) []api.ChatMessage {
	history := req.ConversationHistory
	if len(history) > constants.CoachHistoryLimit {
		history = history[len(history)-constants.CoachHistoryLimit:]
	}

	messages := make([]api.ChatMessage, 0, len(history)+2)
	if prompt := strings.TrimSpace(req.SystemPrompt); prompt != "" {
		messages = append(messages, api.ChatMessage{Role: "system", Content: prompt})
	}
	messages = append(messages, history...)
	messages = append(messages, api.ChatMessage{Role: "user", Content: req.UserMessage})
	return messages
}

// Package services – MessageService
//
// This file implements MessageService, the application-level component that
// persists conversation turns around streaming response generation.
// Persistence is deliberately decoupled from the stream: a failed insert is
// logged and surfaced as a nil message, never as a reason to abort an
// in-flight response that the client is already consuming.
//
// Observability: public methods are OpenTelemetry-instrumented; spans include
// conversation identifiers and pagination parameters where applicable.

package services

import (
	"context"
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/lexstream/go-counsel-backend/internal/domain"
	"github.com/lexstream/go-counsel-backend/internal/repo"

	// OpenTelemetry
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ValidateQuery normalizes a query and enforces service limits. It returns
// the trimmed query, ErrEmptyQuery when nothing usable remains, or ErrTooLong
// when the query exceeds maxRunes (0 disables the limit).
func ValidateQuery(query string, maxRunes int) (string, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return "", ErrEmptyQuery
	}
	if maxRunes > 0 && utf8.RuneCountInString(query) > maxRunes {
		return "", ErrTooLong
	}
	return query, nil
}

// MessageService coordinates message persistence around response streaming.
type MessageService struct {
	DB  *gorm.DB
	Log zerolog.Logger
}

// NewMessageService constructs a MessageService.
func NewMessageService(db *gorm.DB, log zerolog.Logger) *MessageService {
	return &MessageService{DB: db, Log: log}
}

// SaveUser persists the user turn of a chat request. Metadata records the
// request shape (document-context ids, preloaded-snippet type) for later
// inspection. Persistence failures are logged and reported as a nil message;
// response generation continues regardless.
func (s *MessageService) SaveUser(ctx context.Context, conversationID, content string, metadata map[string]any) *domain.Message {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "SaveUser",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)),
	)
	defer span.End()

	m, err := repo.CreateMessage(s.DB.WithContext(ctx), repo.NewMessage{
		ConversationID: conversationID,
		Role:           domain.RoleUser,
		Content:        content,
		Metadata:       metadata,
	})
	if err != nil {
		s.Log.Error().Err(err).Str("conversation_id", conversationID).Msg("persist user message failed")
		return nil
	}
	return m
}

// SaveAssistant persists the assistant turn once streaming finishes, along
// with the model id that produced it. Persistence failures are logged and
// reported as a nil message.
func (s *MessageService) SaveAssistant(ctx context.Context, conversationID, content, model string, metadata map[string]any) *domain.Message {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "SaveAssistant",
		trace.WithAttributes(attribute.String("conversation.id", conversationID)),
	)
	defer span.End()

	var modelPtr *string
	if model != "" {
		modelPtr = &model
	}
	m, err := repo.CreateMessage(s.DB.WithContext(ctx), repo.NewMessage{
		ConversationID: conversationID,
		Role:           domain.RoleAssistant,
		Content:        content,
		Model:          modelPtr,
		Metadata:       metadata,
	})
	if err != nil {
		s.Log.Error().Err(err).Str("conversation_id", conversationID).Msg("persist assistant message failed")
		return nil
	}
	return m
}

// ListPage returns paginated messages for a conversation owned by userID.
func (s *MessageService) ListPage(ctx context.Context, userID, conversationID string, page, pageSize int) ([]domain.Message, int64, error) {
	tr := otel.Tracer("services/MessageService")
	ctx, span := tr.Start(ctx, "ListPage",
		trace.WithAttributes(
			attribute.String("conversation.id", conversationID),
			attribute.Int("page", page),
			attribute.Int("page_size", pageSize),
		),
	)
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	// Ensure the conversation exists and belongs to the user.
	if _, err := repo.GetConversation(ctx, s.DB, conversationID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, 0, ErrConversationNotFound
		}
		return nil, 0, err
	}

	total, err := repo.CountMessages(s.DB.WithContext(ctx), conversationID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Message{}, 0, nil
	}

	items, err := repo.ListMessagesPage(s.DB.WithContext(ctx), conversationID, offset, pageSize)
	return items, total, err
}

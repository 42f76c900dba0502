// Package services – ConversationService
//
// This file implements the ConversationService, which manages the lifecycle of
// conversations. It resolves incoming chat requests to an existing conversation
// (enforcing ownership) or lazily creates one titled after the opening user
// message, and coordinates repository operations for listing (with pagination)
// and renaming.
//
// Service-level errors (e.g., ErrConversationNotFound) are returned for
// predictable cases so handlers can map them to HTTP results consistently.
package services

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"gorm.io/gorm"

	"github.com/lexstream/go-counsel-backend/internal/domain"
)

// ConversationRepo defines the repository contract required by
// ConversationService. Implementations are responsible for persistence of
// conversation aggregates.
type ConversationRepo interface {
	// CreateConversation inserts a new conversation row for the given user and case.
	CreateConversation(ctx context.Context, db *gorm.DB, userID, caseID, title string) (*domain.Conversation, error)

	// GetConversation fetches a conversation by ID ensuring it belongs to the user.
	GetConversation(ctx context.Context, db *gorm.DB, id, userID string) (*domain.Conversation, error)

	// UpdateConversationTitle updates a conversation’s title (only if it belongs to the user).
	UpdateConversationTitle(ctx context.Context, db *gorm.DB, id, userID, title string) error

	// CountConversations returns the total number of conversations for pagination.
	CountConversations(ctx context.Context, db *gorm.DB, userID string) (int64, error)

	// ListConversationsPage returns a page of conversations belonging to the user.
	ListConversationsPage(ctx context.Context, db *gorm.DB, userID string, offset, limit int) ([]domain.Conversation, error)
}

// ConversationService provides conversation-level operations such as
// resolving, listing, and renaming. It enforces title rules and ownership
// constraints.
type ConversationService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
	// Repo is the conversation repository used by this service.
	Repo ConversationRepo

	// TitleMaxLen caps stored titles by rune length.
	TitleMaxLen int
	// TitleLocale selects casing rules for derived titles.
	TitleLocale language.Tag
}

// NewConversationService constructs a ConversationService with sane defaults
// for title handling.
func NewConversationService(db *gorm.DB, r ConversationRepo) *ConversationService {
	return &ConversationService{
		DB:          db,
		Repo:        r,
		TitleMaxLen: 50,
		TitleLocale: language.Und,
	}
}

// Resolve returns the conversation a chat request should append to. When
// conversationID is non-empty the conversation must already exist and belong
// to userID; a missing or foreign conversation yields ErrConversationNotFound.
// When conversationID is empty a new conversation is created for the case,
// titled after the opening user message. The returned bool reports whether a
// conversation was created.
func (s *ConversationService) Resolve(ctx context.Context, userID, caseID, conversationID, firstUserMsg string) (*domain.Conversation, bool, error) {
	if conversationID != "" {
		c, err := s.Repo.GetConversation(ctx, s.DB, conversationID, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil, false, ErrConversationNotFound
			}
			return nil, false, err
		}
		return c, false, nil
	}
	c, err := s.Repo.CreateConversation(ctx, s.DB, userID, caseID, s.deriveTitle(firstUserMsg))
	if err != nil {
		return nil, false, err
	}
	return c, true, nil
}

// ListPage returns a page of conversations for a user (paginated).
// It applies defaults for invalid page/pageSize and returns total count.
func (s *ConversationService) ListPage(ctx context.Context, userID string, page, pageSize int) ([]domain.Conversation, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := s.Repo.CountConversations(ctx, s.DB, userID)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Conversation{}, 0, nil
	}

	items, err := s.Repo.ListConversationsPage(ctx, s.DB, userID, offset, pageSize)
	return items, total, err
}

// UpdateTitle renames a conversation, ensuring it exists and belongs to the
// given user. Falls back to "Untitled" if title is blank.
func (s *ConversationService) UpdateTitle(ctx context.Context, userID, conversationID, title string) error {
	title = normalizeTitle(title)
	if title == "" {
		title = "Untitled"
	}
	// Ensure the conversation exists and belongs to the user.
	if _, err := s.Repo.GetConversation(ctx, s.DB, conversationID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrConversationNotFound
		}
		return err
	}
	return s.Repo.UpdateConversationTitle(ctx, s.DB, conversationID, userID, s.clip(title))
}

// deriveTitle builds a conversation title from the opening user message:
// whitespace-normalized, title-cased (acronyms left intact), and clipped to
// TitleMaxLen runes on a word boundary with a trailing ellipsis.
func (s *ConversationService) deriveTitle(msg string) string {
	t := normalizeTitle(msg)
	if t == "" {
		return "New conversation"
	}
	t = cases.Title(s.TitleLocale, cases.NoLower).String(t)
	if s.TitleMaxLen <= 0 || utf8.RuneCountInString(t) <= s.TitleMaxLen {
		return t
	}
	runes := []rune(t)
	clipped := string(runes[:s.TitleMaxLen])
	// Back up to the last word boundary unless the cut landed on one.
	if runes[s.TitleMaxLen] != ' ' {
		if i := strings.LastIndexByte(clipped, ' '); i > 0 {
			clipped = clipped[:i]
		}
	}
	return strings.TrimRight(clipped, " ") + "…"
}

// clip truncates a title to the configured maximum rune length.
func (s *ConversationService) clip(title string) string {
	if s.TitleMaxLen > 0 && utf8.RuneCountInString(title) > s.TitleMaxLen {
		return string([]rune(title)[:s.TitleMaxLen])
	}
	return title
}

// normalizeTitle trims whitespace and collapses multiple spaces to one.
func normalizeTitle(s string) string {
	s = whitespaceRE.ReplaceAllString(strings.TrimSpace(s), " ")
	return s
}

// whitespaceRE collapses consecutive whitespace to a single space.
var whitespaceRE = regexp.MustCompile(`\s+`)

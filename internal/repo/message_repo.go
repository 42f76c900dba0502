// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message model.
package repo

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/lexstream/go-counsel-backend/internal/domain"
)

// NewMessage describes a message row to insert. Model and Metadata are
// optional; Metadata records the document-context ids and preloaded-snippet
// type active when the message was sent.
type NewMessage struct {
	ConversationID string
	Role           string
	Content        string
	Model          *string
	Metadata       map[string]any
}

// CreateMessage inserts a new message row.
func CreateMessage(db *gorm.DB, nm NewMessage) (*domain.Message, error) {
	m := &domain.Message{
		ID:             uuid.NewString(),
		ConversationID: nm.ConversationID,
		Role:           nm.Role,
		Content:        nm.Content,
		Model:          nm.Model,
		Metadata:       nm.Metadata,
		CreatedAt:      time.Now().UTC(),
	}
	return m, db.Create(m).Error
}

// ListMessages returns messages ordered deterministically (CreatedAt ASC, ID ASC).
func ListMessages(db *gorm.DB, conversationID string, limit int) ([]domain.Message, error) {
	var out []domain.Message
	q := db.Where("conversation_id = ?", conversationID).Order("created_at ASC, id ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	err := q.Find(&out).Error
	return out, err
}

// CountMessages uses a raw COUNT so a missing table surfaces as an error (as tests expect).
func CountMessages(db *gorm.DB, conversationID string) (int64, error) {
	var total int64
	err := db.Raw("SELECT COUNT(*) FROM messages WHERE conversation_id = ?", conversationID).Scan(&total).Error
	return total, err
}

// ListMessagesPage returns a paginated slice ordered (CreatedAt ASC, ID ASC).
func ListMessagesPage(db *gorm.DB, conversationID string, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// UpdateMessageScore stores the latest feedback value on the message row.
// Returns ErrNotFound when no message with the given ID exists.
func UpdateMessageScore(db *gorm.DB, id string, score float64) error {
	res := db.Model(&domain.Message{}).Where("id = ?", id).Update("score", score)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetMessage fetches a message by ID.
func GetMessage(db *gorm.DB, id string) (*domain.Message, error) {
	var m domain.Message
	if err := db.Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

// LatestAssistantMessage returns the most recent assistant-role message in a
// conversation, or ErrNotFound when the conversation has none.
func LatestAssistantMessage(db *gorm.DB, conversationID string) (*domain.Message, error) {
	var m domain.Message
	err := db.
		Where("conversation_id = ? AND role = ?", conversationID, domain.RoleAssistant).
		Order("created_at DESC, id DESC").
		First(&m).Error
	if err != nil {
		return nil, err
	}
	return &m, nil
}

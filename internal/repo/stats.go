// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides small aggregate/statistics queries used
// for conditional responses (ETag generation) in the HTTP layer and for the
// usage-stats endpoint. Each function is context-aware and safe to call from
// services or handlers.
package repo

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/lexstream/go-counsel-backend/internal/domain"
)

// ConversationsStats returns aggregate metadata for a user's conversations:
// the total number of rows and the maximum UpdatedAt timestamp among those
// rows. When the user has no conversations, the returned count is 0 and
// maxUpdatedAt is nil.
//
// Return values:
//   - count:        total conversations for userID
//   - maxUpdatedAt: pointer to the greatest UpdatedAt, or nil if no rows
//   - err:          database error, if any
func ConversationsStats(ctx context.Context, db *gorm.DB, userID string) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Conversation{}).Where("user_id = ?", userID)

	// Count
	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// MessagesStats returns aggregate metadata for messages within a given
// conversation: the total number of rows and the maximum UpdatedAt timestamp
// among those rows. When the conversation has no messages, the returned count
// is 0 and maxUpdatedAt is nil.
func MessagesStats(ctx context.Context, db *gorm.DB, conversationID string) (count int64, maxUpdatedAt *time.Time, err error) {
	q := db.WithContext(ctx).Model(&domain.Message{}).Where("conversation_id = ?", conversationID)

	// Count
	if err = q.Count(&count).Error; err != nil {
		return 0, nil, err
	}
	if count == 0 {
		return 0, nil, nil
	}

	// Get latest updated_at (avoid MAX() -> TEXT in SQLite)
	var row struct {
		UpdatedAt time.Time
	}
	if err = q.Select("updated_at").Order("updated_at DESC").Limit(1).Scan(&row).Error; err != nil {
		return 0, nil, err
	}
	return count, &row.UpdatedAt, nil
}

// UsageStats holds the aggregate counters served by the stats endpoint.
type UsageStats struct {
	Conversations     int64 `json:"conversations"`
	Messages          int64 `json:"messages"`
	AssistantMessages int64 `json:"assistant_messages"`
	VerificationNotes int64 `json:"verification_notes"`
	Documents         int64 `json:"documents"`
}

// CollectUsageStats gathers instance-wide row counts. Verification notes are
// the system-role messages appended by the citation verifier, identified by
// the "kind" marker the verifier writes into message metadata.
func CollectUsageStats(ctx context.Context, db *gorm.DB) (*UsageStats, error) {
	var s UsageStats
	h := db.WithContext(ctx)

	if err := h.Model(&domain.Conversation{}).Count(&s.Conversations).Error; err != nil {
		return nil, err
	}
	if err := h.Model(&domain.Message{}).Count(&s.Messages).Error; err != nil {
		return nil, err
	}
	if err := h.Model(&domain.Message{}).Where("role = ?", domain.RoleAssistant).Count(&s.AssistantMessages).Error; err != nil {
		return nil, err
	}
	if err := h.Model(&domain.Message{}).
		Where("role = ? AND metadata LIKE ?", domain.RoleSystem, `%"kind":"citation_verification"%`).
		Count(&s.VerificationNotes).Error; err != nil {
		return nil, err
	}
	if err := h.Model(&domain.Document{}).Count(&s.Documents).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the Message
// model, including the unique-key insert primitive that backs message
// deduplication.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/elementalclinic/go-clinic-backend/internal/domain"
)

// MessageExists reports whether a message with the given dedup key is already
// stored. It is a cheap short-circuit for duplicate webhook deliveries; the
// authoritative guarantee remains the unique index checked by
// TryInsertMessage, since two concurrent deliveries can both pass this check.
func MessageExists(ctx context.Context, db *gorm.DB, dedupKey string) (bool, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("dedup_key = ?", dedupKey).
		Count(&total).Error
	return total > 0, err
}

// TryInsertMessage inserts a message row keyed by dedupKey. The returned bool
// reports whether the row was inserted: a unique-index violation means the
// key was already processed and yields (nil, false, nil), never an error.
// Duplicate races are an expected outcome, not a failure.
func TryInsertMessage(ctx context.Context, db *gorm.DB, conversationID, dedupKey, role, content string) (*domain.Message, bool, error) {
	m := &domain.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           role,
		Content:        content,
		DedupKey:       dedupKey,
		CreatedAt:      time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(m).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	return m, true, nil
}

// CountMessages returns the total number of messages in a conversation.
func CountMessages(ctx context.Context, db *gorm.DB, conversationID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Message{}).
		Where("conversation_id = ?", conversationID).
		Count(&total).Error
	return total, err
}

// ListMessages returns all messages of a conversation ordered
// deterministically (CreatedAt ASC, ID ASC).
func ListMessages(ctx context.Context, db *gorm.DB, conversationID string) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Find(&out).Error
	return out, err
}

// ListMessagesWindow returns up to limit messages in chronological order,
// skipping offset rows from the start. Combined with CountMessages this
// yields the sliding context window: skip max(0, total-limit), take limit.
func ListMessagesWindow(ctx context.Context, db *gorm.DB, conversationID string, offset, limit int) ([]domain.Message, error) {
	var out []domain.Message
	err := db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

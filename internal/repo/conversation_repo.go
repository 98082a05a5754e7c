// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Conversation model.
//
// Error semantics:
//   - When a conversation is not found, functions return gorm.ErrRecordNotFound
//     (also exported here as ErrNotFound for convenience).
//   - CreateConversation maps the partial-unique-index violation on
//     (user_id WHERE status='ACTIVE') to ErrActiveConversationExists so the
//     session manager can re-read the winning row instead of inspecting
//     driver-specific error text.
package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/elementalclinic/go-clinic-backend/internal/domain"
)

// ErrActiveConversationExists indicates that another ACTIVE conversation for
// the same user already holds the unique slot.
var ErrActiveConversationExists = errors.New("active conversation already exists")

// FindActiveConversation returns the most recently created ACTIVE
// conversation for userID, or ErrNotFound when the user has none. The
// ordering tie-breaks on id for determinism when timestamps collide.
func FindActiveConversation(ctx context.Context, db *gorm.DB, userID string) (*domain.Conversation, error) {
	var c domain.Conversation
	err := db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, domain.ConversationActive).
		Order("created_at DESC, id DESC").
		First(&c).Error
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateConversation inserts a new ACTIVE conversation for userID. If the
// user already holds the ACTIVE slot, ErrActiveConversationExists is
// returned.
func CreateConversation(ctx context.Context, db *gorm.DB, userID string) (*domain.Conversation, error) {
	c := &domain.Conversation{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    domain.ConversationActive,
		CreatedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(c).Error; err != nil {
		if isUniqueViolation(err) {
			return nil, ErrActiveConversationExists
		}
		return nil, err
	}
	return c, nil
}

// GetConversation fetches a conversation by ID, or ErrNotFound if missing.
func GetConversation(ctx context.Context, db *gorm.DB, id string) (*domain.Conversation, error) {
	var c domain.Conversation
	if err := db.WithContext(ctx).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// UpdateConversationStatus sets the status of a conversation. The write is
// unconditional on the previous status; closing an already-closed
// conversation simply rewrites the terminal state, which keeps the operation
// idempotent for callers. Returns ErrNotFound when the row does not exist.
func UpdateConversationStatus(ctx context.Context, db *gorm.DB, id, status string) error {
	res := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ?", id).
		Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// TouchConversation bumps updated_at so "most recent activity" queries stay
// accurate after a message insert.
func TouchConversation(ctx context.Context, db *gorm.DB, id string) error {
	return db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("id = ?", id).
		Update("updated_at", time.Now().UTC()).Error
}

// CountActiveConversations returns the number of ACTIVE conversations owned
// by userID. Exposed for invariant checks in monitoring and tests.
func CountActiveConversations(ctx context.Context, db *gorm.DB, userID string) (int64, error) {
	var total int64
	err := db.WithContext(ctx).
		Model(&domain.Conversation{}).
		Where("user_id = ? AND status = ?", userID, domain.ConversationActive).
		Count(&total).Error
	return total, err
}

// isUniqueViolation reports whether err is a unique-constraint failure.
// glebarez/sqlite often returns plain-text errors for UNIQUE violations.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	low := strings.ToLower(err.Error())
	return strings.Contains(low, "unique constraint failed") ||
		strings.Contains(low, "constraint failed: unique")
}

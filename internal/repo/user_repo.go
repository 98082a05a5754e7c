// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the User model.
//
// All functions are context-aware and accept a *gorm.DB handle, making them
// safe for use within transactions or connection-scoped operations.
// They follow the "thin repository" approach: no business logic, only CRUD
// persistence and query composition.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/elementalclinic/go-clinic-backend/internal/domain"
)

// ErrNotFound is returned when a requested record does not exist.
// It aliases gorm.ErrRecordNotFound for convenience and consistency
// across the service layer and handlers.
var ErrNotFound = gorm.ErrRecordNotFound

// FindOrCreateUser resolves a user by its external platform identifier,
// creating the row on first contact. When the row already exists, username
// and full name are filled in if they were previously empty and a value is
// now available; existing values are kept.
func FindOrCreateUser(ctx context.Context, db *gorm.DB, platformUserID string, username, fullName *string) (*domain.User, error) {
	var u domain.User
	err := db.WithContext(ctx).
		Where("platform_user_id = ?", platformUserID).
		First(&u).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		u = domain.User{
			ID:             uuid.NewString(),
			PlatformUserID: platformUserID,
			Username:       username,
			FullName:       fullName,
			CreatedAt:      time.Now().UTC(),
		}
		if cerr := db.WithContext(ctx).Create(&u).Error; cerr != nil {
			// A concurrent first-contact race may have inserted the row; re-read.
			if rerr := db.WithContext(ctx).Where("platform_user_id = ?", platformUserID).First(&u).Error; rerr != nil {
				return nil, cerr
			}
		}
		return &u, nil
	}
	if err != nil {
		return nil, err
	}

	updates := map[string]any{}
	if u.Username == nil && username != nil {
		updates["username"] = *username
	}
	if u.FullName == nil && fullName != nil {
		updates["full_name"] = *fullName
	}
	if len(updates) > 0 {
		if uerr := db.WithContext(ctx).Model(&u).Updates(updates).Error; uerr != nil {
			return nil, uerr
		}
	}
	return &u, nil
}

// GetUser fetches a user by primary key, or ErrNotFound if missing.
func GetUser(ctx context.Context, db *gorm.DB, id string) (*domain.User, error) {
	var u domain.User
	if err := db.WithContext(ctx).Where("id = ?", id).First(&u).Error; err != nil {
		return nil, err
	}
	return &u, nil
}

// SetUserPhoneIfEmpty writes phone onto the user only when no phone is stored
// yet. The conditional UPDATE makes the backfill race-safe: two concurrent
// bookings cannot overwrite each other, and an existing phone is never
// replaced. The returned bool reports whether a row was updated.
func SetUserPhoneIfEmpty(ctx context.Context, db *gorm.DB, id, phone string) (bool, error) {
	res := db.WithContext(ctx).
		Model(&domain.User{}).
		Where("id = ? AND (phone IS NULL OR phone = '')", id).
		Update("phone", phone)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

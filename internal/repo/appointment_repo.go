// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the
// Appointment model.
package repo

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/elementalclinic/go-clinic-backend/internal/domain"
)

// CreateAppointment inserts a new PENDING appointment row.
func CreateAppointment(ctx context.Context, db *gorm.DB, userID, conversationID, patientName, phone string, serviceType, preferredTime, notes *string) (*domain.Appointment, error) {
	a := &domain.Appointment{
		ID:             uuid.NewString(),
		UserID:         userID,
		ConversationID: conversationID,
		PatientName:    patientName,
		Phone:          phone,
		ServiceType:    serviceType,
		PreferredTime:  preferredTime,
		Notes:          notes,
		Status:         domain.AppointmentPending,
		CreatedAt:      time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(a).Error; err != nil {
		return nil, err
	}
	return a, nil
}

// GetAppointment fetches an appointment by ID, or ErrNotFound if missing.
func GetAppointment(ctx context.Context, db *gorm.DB, id string) (*domain.Appointment, error) {
	var a domain.Appointment
	if err := db.WithContext(ctx).Where("id = ?", id).First(&a).Error; err != nil {
		return nil, err
	}
	return &a, nil
}

// ListUserAppointments returns all appointments of a user, most recent first.
func ListUserAppointments(ctx context.Context, db *gorm.DB, userID string) ([]domain.Appointment, error) {
	var out []domain.Appointment
	err := db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Find(&out).Error
	return out, err
}

// CountAppointments returns the total number of appointments in the store.
func CountAppointments(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.Appointment{}).Count(&total).Error
	return total, err
}

// ListAppointmentsPage returns a paginated slice of all appointments, most
// recent first. Used by the admin listing endpoint.
func ListAppointmentsPage(ctx context.Context, db *gorm.DB, offset, limit int) ([]domain.Appointment, error) {
	var out []domain.Appointment
	err := db.WithContext(ctx).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&out).Error
	return out, err
}

// UpdateAppointmentStatus moves an appointment to a new status. Returns
// ErrNotFound when the row does not exist.
func UpdateAppointmentStatus(ctx context.Context, db *gorm.DB, id, status string) error {
	res := db.WithContext(ctx).
		Model(&domain.Appointment{}).
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

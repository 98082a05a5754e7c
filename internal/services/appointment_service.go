// Package services – AppointmentService
//
// This file implements the booking recorder. Recording a booking has three
// effects: insert the PENDING appointment, flip the owning conversation to
// APPOINTMENT_BOOKED, and backfill the user's phone when it was unset. The
// three writes run in one transaction so a partially booked state (a PENDING
// appointment on a conversation still marked ACTIVE) cannot be observed.
package services

import (
	"context"

	"gorm.io/gorm"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/elementalclinic/go-clinic-backend/internal/domain"
	"github.com/elementalclinic/go-clinic-backend/internal/llm"
	"github.com/elementalclinic/go-clinic-backend/internal/repo"
)

// AppointmentService persists accepted booking candidates and exposes
// appointment queries for the admin surface.
type AppointmentService struct {
	// DB is the GORM handle used for persistence.
	DB *gorm.DB
}

// NewAppointmentService constructs an AppointmentService.
func NewAppointmentService(db *gorm.DB) *AppointmentService {
	return &AppointmentService{DB: db}
}

// Record persists an accepted candidate as a PENDING appointment, moves the
// owning conversation to APPOINTMENT_BOOKED, and backfills the user's phone
// when none is stored. An existing phone is never overwritten.
func (s *AppointmentService) Record(ctx context.Context, cand *llm.AppointmentCandidate, userID, conversationID string) (*domain.Appointment, error) {
	tr := otel.Tracer("services/AppointmentService")
	ctx, span := tr.Start(ctx, "Record",
		trace.WithAttributes(
			attribute.String("user.id", userID),
			attribute.String("conversation.id", conversationID),
		),
	)
	defer span.End()

	var appt *domain.Appointment
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		a, err := repo.CreateAppointment(ctx, tx, userID, conversationID,
			cand.PatientName, cand.Phone, cand.ServiceType, cand.PreferredTime, cand.Notes)
		if err != nil {
			return err
		}
		appt = a

		if err := repo.UpdateConversationStatus(ctx, tx, conversationID, domain.ConversationAppointmentBooked); err != nil {
			return err
		}

		_, err = repo.SetUserPhoneIfEmpty(ctx, tx, userID, cand.Phone)
		return err
	})
	if err != nil {
		return nil, err
	}
	return appt, nil
}

// ListPage returns a page of all appointments, most recent first, plus the
// total count for pagination metadata.
func (s *AppointmentService) ListPage(ctx context.Context, page, pageSize int) ([]domain.Appointment, int64, error) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	total, err := repo.CountAppointments(ctx, s.DB)
	if err != nil {
		return nil, 0, err
	}
	if total == 0 {
		return []domain.Appointment{}, 0, nil
	}

	items, err := repo.ListAppointmentsPage(ctx, s.DB, offset, pageSize)
	return items, total, err
}

// UserAppointments returns all appointments of one user, most recent first.
func (s *AppointmentService) UserAppointments(ctx context.Context, userID string) ([]domain.Appointment, error) {
	return repo.ListUserAppointments(ctx, s.DB, userID)
}

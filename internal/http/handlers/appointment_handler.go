// Appointment HTTP handlers.
//
// This file exposes the read-only admin listing over recorded appointments:
//   - GET /appointments   (paginated, most recent first)
//
// Appointments are written exclusively by the booking recorder; staff move
// them out of PENDING through other channels, so no mutating endpoint is
// exposed here.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/elementalclinic/go-clinic-backend/internal/domain"
	"github.com/elementalclinic/go-clinic-backend/internal/utils"
)

// AppointmentService defines the appointment queries consumed by HTTP
// handlers.
type AppointmentService interface {
	// ListPage returns a page of appointments and the total count.
	ListPage(ctx context.Context, page, pageSize int) ([]domain.Appointment, int64, error)
}

// AppointmentHandlers groups the appointment endpoints.
type AppointmentHandlers struct {
	apptSvc AppointmentService
}

// NewAppointmentHandlers constructs appointment handlers bound to the given
// service.
func NewAppointmentHandlers(apptSvc AppointmentService) *AppointmentHandlers {
	return &AppointmentHandlers{apptSvc: apptSvc}
}

// Pagination carries pagination metadata for list responses.
type Pagination struct {
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalItems int64 `json:"total_items"`
}

// ListAppointmentsResponse contains a page of appointments and pagination
// metadata.
type ListAppointmentsResponse struct {
	Appointments []domain.Appointment `json:"appointments"`
	Pagination   Pagination           `json:"pagination"`
}

// clampPagination parses page/page_size from query parameters, applies sane
// defaults and caps, and returns the validated (page, pageSize).
func clampPagination(c *gin.Context) (page, pageSize int) {
	const (
		defaultPage     = 1
		defaultPageSize = 20
		maxPageSize     = 100
	)
	page = utils.AtoiDefault(c.Query("page"), defaultPage)
	if page < 1 {
		page = 1
	}
	pageSize = utils.AtoiDefault(c.Query("page_size"), defaultPageSize)
	if pageSize < 1 {
		pageSize = 1
	}
	if pageSize > maxPageSize {
		pageSize = maxPageSize
	}
	return
}

// List godoc
// @ID          listAppointments
// @Summary     List recorded appointments, most recent first
// @Produce     json
// @Param       page query int false "page number"
// @Param       page_size query int false "page size (max 100)"
// @Success     200 {object} ListAppointmentsResponse
// @Failure     500 {object} ErrorResponse
// @Router      /appointments [get]
func (h *AppointmentHandlers) List(c *gin.Context) {
	page, pageSize := clampPagination(c)

	items, total, err := h.apptSvc.ListPage(c.Request.Context(), page, pageSize)
	if err != nil {
		fail(c, http.StatusInternalServerError, ErrCodeListFailed, "failed to list appointments")
		return
	}

	ok(c, http.StatusOK, ListAppointmentsResponse{
		Appointments: items,
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			TotalItems: total,
		},
	})
}

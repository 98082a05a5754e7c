package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/elementalclinic/go-clinic-backend/internal/domain"
)

type fakeApptService struct {
	items []domain.Appointment
	total int64
	err   error

	gotPage, gotPageSize int
}

func (f *fakeApptService) ListPage(_ context.Context, page, pageSize int) ([]domain.Appointment, int64, error) {
	f.gotPage, f.gotPageSize = page, pageSize
	return f.items, f.total, f.err
}

func newApptRouter(svc AppointmentService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	h := NewAppointmentHandlers(svc)
	r := gin.New()
	r.GET("/appointments", h.List)
	return r
}

func TestListAppointments_OK(t *testing.T) {
	svc := &fakeApptService{
		items: []domain.Appointment{
			{ID: "a-1", PatientName: "Jane Doe", Phone: "5551234567", Status: domain.AppointmentPending},
		},
		total: 41,
	}
	r := newApptRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/appointments?page=3&page_size=10", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", w.Code, w.Body.String())
	}
	if svc.gotPage != 3 || svc.gotPageSize != 10 {
		t.Fatalf("pagination not forwarded: page=%d size=%d", svc.gotPage, svc.gotPageSize)
	}

	var body ListAppointmentsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if len(body.Appointments) != 1 || body.Appointments[0].ID != "a-1" {
		t.Fatalf("unexpected items: %+v", body.Appointments)
	}
	if body.Pagination.Page != 3 || body.Pagination.PageSize != 10 || body.Pagination.TotalItems != 41 {
		t.Fatalf("unexpected pagination: %+v", body.Pagination)
	}
}

func TestListAppointments_ClampsPagination(t *testing.T) {
	svc := &fakeApptService{}
	r := newApptRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/appointments?page=-4&page_size=5000", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	if svc.gotPage != 1 || svc.gotPageSize != 100 {
		t.Fatalf("expected clamped pagination, got page=%d size=%d", svc.gotPage, svc.gotPageSize)
	}
}

func TestListAppointments_Defaults(t *testing.T) {
	svc := &fakeApptService{}
	r := newApptRouter(svc)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/appointments", nil)
	r.ServeHTTP(w, req)

	if svc.gotPage != 1 || svc.gotPageSize != 20 {
		t.Fatalf("expected defaults, got page=%d size=%d", svc.gotPage, svc.gotPageSize)
	}
	_ = w
}

func TestListAppointments_ServiceFailure(t *testing.T) {
	r := newApptRouter(&fakeApptService{err: errors.New("db down")})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/appointments", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", w.Code)
	}
	var er ErrorResponse
	if err := json.Unmarshal(w.Body.Bytes(), &er); err != nil || er.Code != ErrCodeListFailed {
		t.Fatalf("unexpected error body: %s (err=%v)", w.Body.String(), err)
	}
}

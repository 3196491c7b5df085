package api

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"atelier/internal/access"
	"atelier/internal/db"
	"atelier/internal/model"
)

// Manager is the admin back office.
type Manager interface {
	ListBookings(ctx context.Context, p access.Principal, filter db.BookingFilter) ([]model.Booking, error)
	GetBooking(ctx context.Context, p access.Principal, id int64) (*model.Booking, error)
	UpdateStatus(ctx context.Context, p access.Principal, id int64, status model.BookingStatus) (*model.Booking, error)
	UpdatePayment(ctx context.Context, p access.Principal, id int64, status model.PaymentStatus) (*model.Booking, error)
	ListSchedule(ctx context.Context, p access.Principal) ([]model.WeeklySchedule, error)
	SetSchedule(ctx context.Context, p access.Principal, row *model.WeeklySchedule) error
	ListBlockedDates(ctx context.Context, p access.Principal, from, to time.Time) ([]model.BlockedDate, error)
	BlockDate(ctx context.Context, p access.Principal, date time.Time, reason string) error
	UnblockDate(ctx context.Context, p access.Principal, date time.Time) error
	ListServices(ctx context.Context, p access.Principal) ([]model.Service, error)
	CreateService(ctx context.Context, p access.Principal, svc *model.Service) error
	UpdateService(ctx context.Context, p access.Principal, svc *model.Service) error
	Export(ctx context.Context, p access.Principal, w io.Writer) error
}

type statusRequest struct {
	Status model.BookingStatus `json:"status"`
}

type paymentRequest struct {
	PaymentStatus model.PaymentStatus `json:"payment_status"`
}

type scheduleRequest struct {
	StartTime   string `json:"start_time"`
	EndTime     string `json:"end_time"`
	IsAvailable bool   `json:"is_available"`
}

type blockRequest struct {
	Date   string `json:"date"`
	Reason string `json:"reason"`
}

type serviceRequest struct {
	Name            string `json:"name"`
	Description     string `json:"description"`
	DurationMinutes int    `json:"duration_minutes"`
	PriceCents      int64  `json:"price_cents"`
	PaymentLink     string `json:"payment_link"`
	IsActive        *bool  `json:"is_active"`
	SortOrder       int    `json:"sort_order"`
}

func (req serviceRequest) toModel() *model.Service {
	active := true
	if req.IsActive != nil {
		active = *req.IsActive
	}
	return &model.Service{
		Name:            req.Name,
		Description:     req.Description,
		DurationMinutes: req.DurationMinutes,
		PriceCents:      req.PriceCents,
		PaymentLink:     req.PaymentLink,
		IsActive:        active,
		SortOrder:       req.SortOrder,
	}
}

func pathID(r *http.Request, name string) (int64, error) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s", name)
	}
	return id, nil
}

func optionalDate(raw, field string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	d, err := time.Parse(model.DateLayout, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s format; expected YYYY-MM-DD", field)
	}
	return d, nil
}

// GET /api/admin/bookings?from=&to=&status=&limit=&offset=
func (s *HTTPServer) handleAdminListBookings(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := db.BookingFilter{
		From:   q.Get("from"),
		To:     q.Get("to"),
		Status: model.BookingStatus(q.Get("status")),
	}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		if raw := q.Get(name); raw != "" {
			v, err := strconv.Atoi(raw)
			if err != nil || v < 0 {
				writeError(w, http.StatusBadRequest, "invalid "+name)
				return
			}
			*dst = v
		}
	}

	list, err := s.manager.ListBookings(r.Context(), access.FromContext(r.Context()), filter)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// GET /api/admin/bookings/{id}
func (s *HTTPServer) handleAdminGetBooking(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	b, err := s.manager.GetBooking(r.Context(), access.FromContext(r.Context()), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// PATCH /api/admin/bookings/{id}/status
func (s *HTTPServer) handleAdminUpdateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req statusRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	b, err := s.manager.UpdateStatus(r.Context(), access.FromContext(r.Context()), id, req.Status)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// PATCH /api/admin/bookings/{id}/payment
func (s *HTTPServer) handleAdminUpdatePayment(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req paymentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	b, err := s.manager.UpdatePayment(r.Context(), access.FromContext(r.Context()), id, req.PaymentStatus)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// GET /api/admin/schedule
func (s *HTTPServer) handleAdminListSchedule(w http.ResponseWriter, r *http.Request) {
	rows, err := s.manager.ListSchedule(r.Context(), access.FromContext(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// PUT /api/admin/schedule/{day}
func (s *HTTPServer) handleAdminSetSchedule(w http.ResponseWriter, r *http.Request) {
	day, err := strconv.Atoi(r.PathValue("day"))
	if err != nil || !model.ValidWeekday(day) {
		writeError(w, http.StatusBadRequest, "invalid day; expected 0-6 (0=Sunday)")
		return
	}
	var req scheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	row := &model.WeeklySchedule{
		DayOfWeek:   day,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
		IsAvailable: req.IsAvailable,
	}
	if err := s.manager.SetSchedule(r.Context(), access.FromContext(r.Context()), row); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, row)
}

// GET /api/admin/blocked-dates?from=&to=
func (s *HTTPServer) handleAdminListBlockedDates(w http.ResponseWriter, r *http.Request) {
	from, err := optionalDate(r.URL.Query().Get("from"), "from")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	to, err := optionalDate(r.URL.Query().Get("to"), "to")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	list, err := s.manager.ListBlockedDates(r.Context(), access.FromContext(r.Context()), from, to)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// POST /api/admin/blocked-dates
func (s *HTTPServer) handleAdminBlockDate(w http.ResponseWriter, r *http.Request) {
	var req blockRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if req.Date == "" {
		writeError(w, http.StatusBadRequest, "date is required")
		return
	}
	date, err := optionalDate(req.Date, "date")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := s.manager.BlockDate(r.Context(), access.FromContext(r.Context()), date, req.Reason); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, model.BlockedDate{Date: req.Date, Reason: req.Reason, CreatedAt: time.Now().UTC()})
}

// DELETE /api/admin/blocked-dates/{date}
func (s *HTTPServer) handleAdminUnblockDate(w http.ResponseWriter, r *http.Request) {
	date, err := time.Parse(model.DateLayout, r.PathValue("date"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid date format; expected YYYY-MM-DD")
		return
	}
	if err := s.manager.UnblockDate(r.Context(), access.FromContext(r.Context()), date); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/admin/services
func (s *HTTPServer) handleAdminListServices(w http.ResponseWriter, r *http.Request) {
	list, err := s.manager.ListServices(r.Context(), access.FromContext(r.Context()))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// POST /api/admin/services
func (s *HTTPServer) handleAdminCreateService(w http.ResponseWriter, r *http.Request) {
	var req serviceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	svc := req.toModel()
	if err := s.manager.CreateService(r.Context(), access.FromContext(r.Context()), svc); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, svc)
}

// PUT /api/admin/services/{id}
func (s *HTTPServer) handleAdminUpdateService(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req serviceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	svc := req.toModel()
	svc.ID = id
	if err := s.manager.UpdateService(r.Context(), access.FromContext(r.Context()), svc); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, svc)
}

// GET /api/admin/export
func (s *HTTPServer) handleAdminExport(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="atelier_%s.xlsx"`, time.Now().Format("2006-01-02")))

	// The workbook is only written to w once every table is read.
	if err := s.manager.Export(r.Context(), access.FromContext(r.Context()), w); err != nil {
		w.Header().Del("Content-Disposition")
		s.writeServiceError(w, r, err)
	}
}

package handler

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/campus-canteen/api/internal/report"
	"github.com/campus-canteen/api/internal/service"
	"github.com/go-chi/chi/v5"
)

// ReportServicer defines the service methods needed by report handlers.
// Satisfied by *service.ReportService.
type ReportServicer interface {
	Daily(ctx context.Context, date time.Time) (*service.DailyReport, error)
	DailyCSV(ctx context.Context, date time.Time, w io.Writer) error
	Summary(ctx context.Context) (*report.Summary, error)
	Location() *time.Location
}

// ReportsHandler handles admin report endpoints.
type ReportsHandler struct {
	svc ReportServicer
	now func() time.Time
}

// NewReportsHandler creates a new ReportsHandler.
func NewReportsHandler(svc ReportServicer) *ReportsHandler {
	return &ReportsHandler{svc: svc, now: time.Now}
}

// RegisterRoutes registers report endpoints.
// Expected to be mounted at /api/admin/reports.
func (h *ReportsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/daily", h.Daily)
	r.Get("/daily.csv", h.DailyCSV)
	r.Get("/summary", h.Summary)
}

// --- Response types ---

type popularItemResponse struct {
	Name     string `json:"name"`
	Quantity int64  `json:"quantity"`
	Revenue  string `json:"revenue"`
}

type dailyReportResponse struct {
	Date          string                `json:"date"`
	TotalOrders   int                   `json:"totalOrders"`
	TotalRevenue  string                `json:"totalRevenue"`
	AvgOrderValue string                `json:"avgOrderValue"`
	PopularItems  []popularItemResponse `json:"popularItems"`
	Orders        []service.OrderView   `json:"orders"`
}

type summaryResponse struct {
	TotalOrders     int64  `json:"totalOrders"`
	PendingPayments int64  `json:"pendingPayments"`
	VerifiedOrders  int64  `json:"verifiedOrders"`
	CompletedOrders int64  `json:"completedOrders"`
	TotalRevenue    string `json:"totalRevenue"`
}

// --- Handlers ---

// Daily handles GET /api/admin/reports/daily?date=YYYY-MM-DD.
// The date defaults to today in the business zone.
func (h *ReportsHandler) Daily(w http.ResponseWriter, r *http.Request) {
	date, ok := h.parseDate(w, r)
	if !ok {
		return
	}

	rep, err := h.svc.Daily(r.Context(), date)
	if err != nil {
		writeServiceError(w, r, "daily report", err)
		return
	}

	items := make([]popularItemResponse, len(rep.PopularItems))
	for i, p := range rep.PopularItems {
		items[i] = popularItemResponse{
			Name:     p.Name,
			Quantity: p.Quantity,
			Revenue:  p.Revenue.StringFixed(2),
		}
	}

	writeJSON(w, http.StatusOK, dailyReportResponse{
		Date:          rep.Date.Format(dateLayout),
		TotalOrders:   rep.TotalOrders,
		TotalRevenue:  rep.TotalRevenue.StringFixed(2),
		AvgOrderValue: rep.AvgOrderValue.StringFixed(2),
		PopularItems:  items,
		Orders:        service.Views(rep.Orders),
	})
}

// DailyCSV handles GET /api/admin/reports/daily.csv?date=YYYY-MM-DD.
func (h *ReportsHandler) DailyCSV(w http.ResponseWriter, r *http.Request) {
	date, ok := h.parseDate(w, r)
	if !ok {
		return
	}

	var buf bytes.Buffer
	if err := h.svc.DailyCSV(r.Context(), date, &buf); err != nil {
		writeServiceError(w, r, "daily report csv", err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="orders-`+date.Format(dateLayout)+`.csv"`)
	w.WriteHeader(http.StatusOK)
	w.Write(buf.Bytes()) //nolint:errcheck
}

// Summary handles GET /api/admin/reports/summary.
func (h *ReportsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.svc.Summary(r.Context())
	if err != nil {
		writeServiceError(w, r, "order summary", err)
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse{
		TotalOrders:     sum.TotalOrders,
		PendingPayments: sum.PendingPayments,
		VerifiedOrders:  sum.VerifiedOrders,
		CompletedOrders: sum.CompletedOrders,
		TotalRevenue:    sum.TotalRevenue.StringFixed(2),
	})
}

// --- Helpers ---

// parseDate reads ?date in the business zone and writes a 400 on a bad value.
func (h *ReportsHandler) parseDate(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	loc := h.svc.Location()
	s := r.URL.Query().Get("date")
	if s == "" {
		now := h.now().In(loc)
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, loc), true
	}
	date, err := time.ParseInLocation(dateLayout, s, loc)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid date format, expected YYYY-MM-DD"})
		return time.Time{}, false
	}
	return date, true
}

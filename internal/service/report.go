package service

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/campus-canteen/api/internal/database"
	"github.com/campus-canteen/api/internal/report"
	"github.com/google/uuid"
)

// reportStatuses are the statuses counted as sales in the daily report.
var reportStatuses = []string{
	string(database.OrderStatusVerified),
	string(database.OrderStatusPreparing),
	string(database.OrderStatusReady),
	string(database.OrderStatusCompleted),
}

// ReportStore defines the DB methods needed for reports.
// Satisfied by *database.Queries.
type ReportStore interface {
	ListOrdersForReport(ctx context.Context, arg database.ListOrdersForReportParams) ([]database.Order, error)
	ListOrderItemsByOrders(ctx context.Context, orderIDs []uuid.UUID) ([]database.OrderItem, error)
	GetOrderSummary(ctx context.Context) (database.GetOrderSummaryRow, error)
}

// DailyReport is the aggregate plus the orders it was computed from.
type DailyReport struct {
	report.Daily
	Orders []OrderDetail
}

// ReportService builds the admin reports.
type ReportService struct {
	store ReportStore
	loc   *time.Location
}

func NewReportService(store ReportStore, loc *time.Location) *ReportService {
	if loc == nil {
		loc = time.UTC
	}
	return &ReportService{store: store, loc: loc}
}

// Location is the business time zone reports are computed in.
func (s *ReportService) Location() *time.Location { return s.loc }

// Daily reports the counted orders created on the calendar day of date in
// the business zone.
func (s *ReportService) Daily(ctx context.Context, date time.Time) (*DailyReport, error) {
	details, start, err := s.dayOrders(ctx, date)
	if err != nil {
		return nil, err
	}

	input := make([]report.Order, len(details))
	for i, d := range details {
		input[i] = report.Order{
			TotalAmount: numericToDecimal(d.Order.TotalAmount),
			Lines:       reportLines(d.Items),
		}
	}

	return &DailyReport{
		Daily:  report.BuildDaily(start, input),
		Orders: details,
	}, nil
}

// DailyCSV writes the daily report orders as CSV.
func (s *ReportService) DailyCSV(ctx context.Context, date time.Time, w io.Writer) error {
	details, _, err := s.dayOrders(ctx, date)
	if err != nil {
		return err
	}

	rows := make([]report.Row, len(details))
	for i, d := range details {
		rows[i] = report.Row{
			OrderID:   d.Order.OrderID,
			Student:   d.Order.StudentName,
			Phone:     d.Order.StudentPhone,
			Lines:     reportLines(d.Items),
			Amount:    numericToDecimal(d.Order.TotalAmount),
			Status:    string(d.Order.Status),
			CreatedAt: d.Order.CreatedAt,
		}
	}
	return report.WriteCSV(w, rows, s.loc)
}

// Summary reports counts and completed revenue across all orders.
func (s *ReportService) Summary(ctx context.Context) (*report.Summary, error) {
	row, err := s.store.GetOrderSummary(ctx)
	if err != nil {
		return nil, fmt.Errorf("get order summary: %w", err)
	}
	return &report.Summary{
		TotalOrders:     row.TotalOrders,
		PendingPayments: row.PendingPayments,
		VerifiedOrders:  row.VerifiedOrders,
		CompletedOrders: row.CompletedOrders,
		TotalRevenue:    numericToDecimal(row.TotalRevenue),
	}, nil
}

func (s *ReportService) dayOrders(ctx context.Context, date time.Time) ([]OrderDetail, time.Time, error) {
	start, end := report.Window(date, s.loc)

	orders, err := s.store.ListOrdersForReport(ctx, database.ListOrdersForReportParams{
		StartTime: start,
		EndTime:   end,
		Statuses:  reportStatuses,
	})
	if err != nil {
		return nil, start, fmt.Errorf("list orders for report: %w", err)
	}

	details, err := attachItems(ctx, s.store, orders)
	if err != nil {
		return nil, start, err
	}
	return details, start, nil
}

func reportLines(items []database.OrderItem) []report.Line {
	lines := make([]report.Line, len(items))
	for i, it := range items {
		lines[i] = report.Line{
			Name:     it.Name,
			Price:    numericToDecimal(it.Price),
			Quantity: it.Quantity,
		}
	}
	return lines
}

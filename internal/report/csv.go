package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const csvTimeLayout = "2006-01-02 15:04"

var csvHeader = []string{"Order ID", "Student", "Phone", "Items", "Amount", "Status", "Time"}

// Row is one order in the CSV export.
type Row struct {
	OrderID   string
	Student   string
	Phone     string
	Lines     []Line
	Amount    decimal.Decimal
	Status    string
	CreatedAt time.Time
}

// WriteCSV writes rows with a header. Times are rendered in loc.
func WriteCSV(w io.Writer, rows []Row, loc *time.Location) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range rows {
		rec := []string{
			r.OrderID,
			r.Student,
			r.Phone,
			formatLines(r.Lines),
			r.Amount.StringFixed(2),
			r.Status,
			r.CreatedAt.In(loc).Format(csvTimeLayout),
		}
		if err := cw.Write(rec); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func formatLines(lines []Line) string {
	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = fmt.Sprintf("%s x%d", l.Name, l.Quantity)
	}
	return strings.Join(parts, "; ")
}

// Package report aggregates orders into the admin daily report and exports it.
package report

import (
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// PopularLimit caps the popular items list.
const PopularLimit = 10

// Line is one snapshotted order line.
type Line struct {
	Name     string
	Price    decimal.Decimal
	Quantity int32
}

// Order is the part of an order the aggregation reads.
type Order struct {
	TotalAmount decimal.Decimal
	Lines       []Line
}

type PopularItem struct {
	Name     string
	Quantity int64
	Revenue  decimal.Decimal
}

type Daily struct {
	Date          time.Time
	TotalOrders   int
	TotalRevenue  decimal.Decimal
	AvgOrderValue decimal.Decimal
	PopularItems  []PopularItem
}

// Summary is the dashboard snapshot across all time.
type Summary struct {
	TotalOrders     int64
	PendingPayments int64
	VerifiedOrders  int64
	CompletedOrders int64
	TotalRevenue    decimal.Decimal
}

// Window returns [start, end) covering the calendar day of date in loc.
// end is the next local midnight, so DST days are 23 or 25 hours long.
func Window(date time.Time, loc *time.Location) (time.Time, time.Time) {
	d := date.In(loc)
	start := time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, loc)
	return start, start.AddDate(0, 0, 1)
}

// BuildDaily aggregates orders, which the caller has already filtered to the
// day and to counted statuses. Popular items are keyed by name; ties keep the
// order in which items were first seen.
func BuildDaily(date time.Time, orders []Order) Daily {
	revenue := decimal.Zero
	index := make(map[string]int)
	var items []PopularItem

	for _, o := range orders {
		revenue = revenue.Add(o.TotalAmount)
		for _, l := range o.Lines {
			lineRevenue := l.Price.Mul(decimal.NewFromInt32(l.Quantity))
			i, ok := index[l.Name]
			if !ok {
				index[l.Name] = len(items)
				items = append(items, PopularItem{Name: l.Name, Revenue: decimal.Zero})
				i = len(items) - 1
			}
			items[i].Quantity += int64(l.Quantity)
			items[i].Revenue = items[i].Revenue.Add(lineRevenue)
		}
	}

	slices.SortStableFunc(items, func(a, b PopularItem) int {
		switch {
		case a.Quantity > b.Quantity:
			return -1
		case a.Quantity < b.Quantity:
			return 1
		}
		return 0
	})
	if len(items) > PopularLimit {
		items = items[:PopularLimit]
	}
	if items == nil {
		items = []PopularItem{}
	}

	avg := decimal.Zero
	if len(orders) > 0 {
		avg = revenue.Div(decimal.NewFromInt(int64(len(orders)))).Round(2)
	}

	return Daily{
		Date:          date,
		TotalOrders:   len(orders),
		TotalRevenue:  revenue,
		AvgOrderValue: avg,
		PopularItems:  items,
	}
}

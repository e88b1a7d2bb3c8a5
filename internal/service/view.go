package service

import (
	"time"

	"github.com/campus-canteen/api/internal/database"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
)

// OrderDetail is an order with its snapshotted lines in position order.
type OrderDetail struct {
	Order database.Order
	Items []database.OrderItem
}

// OrderView is the JSON shape of an order in REST responses and realtime
// payloads.
type OrderView struct {
	OrderID             string             `json:"orderId"`
	StudentName         string             `json:"studentName"`
	StudentPhone        string             `json:"studentPhone"`
	Items               []OrderItemView    `json:"items"`
	TotalAmount         string             `json:"totalAmount"`
	SpecialInstructions string             `json:"specialInstructions"`
	Status              string             `json:"status"`
	PaymentDetails      PaymentDetailsView `json:"paymentDetails"`
	CreatedAt           time.Time          `json:"createdAt"`
	UpdatedAt           time.Time          `json:"updatedAt"`
}

type OrderItemView struct {
	MenuItemID string `json:"menuItemId"`
	Name       string `json:"name"`
	Price      string `json:"price"`
	Quantity   int32  `json:"quantity"`
}

type PaymentDetailsView struct {
	UpiID            string     `json:"upiId"`
	PaymentProof     string     `json:"paymentProof,omitempty"`
	VerifiedBy       string     `json:"verifiedBy,omitempty"`
	VerificationTime *time.Time `json:"verificationTime,omitempty"`
	RejectionReason  string     `json:"rejectionReason,omitempty"`
}

// NewOrderView renders an order and its items.
func NewOrderView(o database.Order, items []database.OrderItem) OrderView {
	views := make([]OrderItemView, len(items))
	for i, it := range items {
		views[i] = OrderItemView{
			MenuItemID: it.MenuItemID.String(),
			Name:       it.Name,
			Price:      Money(it.Price),
			Quantity:   it.Quantity,
		}
	}

	var verifiedAt *time.Time
	if o.VerificationTime.Valid {
		t := o.VerificationTime.Time
		verifiedAt = &t
	}

	return OrderView{
		OrderID:             o.OrderID,
		StudentName:         o.StudentName,
		StudentPhone:        o.StudentPhone,
		Items:               views,
		TotalAmount:         Money(o.TotalAmount),
		SpecialInstructions: o.SpecialInstructions,
		Status:              string(o.Status),
		PaymentDetails: PaymentDetailsView{
			UpiID:            o.UpiID,
			PaymentProof:     o.PaymentProof,
			VerifiedBy:       o.VerifiedBy,
			VerificationTime: verifiedAt,
			RejectionReason:  o.RejectionReason,
		},
		CreatedAt: o.CreatedAt,
		UpdatedAt: o.UpdatedAt,
	}
}

// View renders d.
func (d OrderDetail) View() OrderView {
	return NewOrderView(d.Order, d.Items)
}

// Views renders a list of details.
func Views(details []OrderDetail) []OrderView {
	out := make([]OrderView, len(details))
	for i, d := range details {
		out[i] = d.View()
	}
	return out
}

// Money formats a numeric as a fixed two-place decimal string.
func Money(n pgtype.Numeric) string {
	return numericToDecimal(n).StringFixed(2)
}

func numericToDecimal(n pgtype.Numeric) decimal.Decimal {
	if !n.Valid {
		return decimal.Zero
	}
	val, err := n.Value()
	if err != nil || val == nil {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(val.(string))
	if err != nil {
		return decimal.Zero
	}
	return d
}

func decimalToNumeric(d decimal.Decimal) pgtype.Numeric {
	var n pgtype.Numeric
	_ = n.Scan(d.StringFixed(2))
	return n
}

// NumericToDecimal exposes the conversion for handlers.
func NumericToDecimal(n pgtype.Numeric) decimal.Decimal { return numericToDecimal(n) }

// DecimalToNumeric exposes the conversion for handlers.
func DecimalToNumeric(d decimal.Decimal) pgtype.Numeric { return decimalToNumeric(d) }

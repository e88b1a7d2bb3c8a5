package database

import (
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

type OrderStatus string

const (
	OrderStatusPendingPayment   OrderStatus = "pending_payment"
	OrderStatusPaymentSubmitted OrderStatus = "payment_submitted"
	OrderStatusVerified         OrderStatus = "verified"
	OrderStatusRejected         OrderStatus = "rejected"
	OrderStatusPreparing        OrderStatus = "preparing"
	OrderStatusReady            OrderStatus = "ready"
	OrderStatusCompleted        OrderStatus = "completed"
	OrderStatusCancelled        OrderStatus = "cancelled"
)

// Valid reports whether s is one of the statuses allowed by the orders CHECK constraint.
func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPendingPayment,
		OrderStatusPaymentSubmitted,
		OrderStatusVerified,
		OrderStatusRejected,
		OrderStatusPreparing,
		OrderStatusReady,
		OrderStatusCompleted,
		OrderStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no transition leaves s.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusRejected || s == OrderStatusCancelled
}

type UserRole string

const (
	UserRoleAdmin   UserRole = "admin"
	UserRoleKitchen UserRole = "kitchen"
)

type MenuItem struct {
	ID          uuid.UUID      `json:"id"`
	Name        string         `json:"name"`
	Category    string         `json:"category"`
	Description string         `json:"description"`
	Price       pgtype.Numeric `json:"price"`
	Image       string         `json:"image"`
	IsAvailable bool           `json:"is_available"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

type Order struct {
	ID                  uuid.UUID          `json:"id"`
	OrderID             string             `json:"order_id"`
	StudentName         string             `json:"student_name"`
	StudentPhone        string             `json:"student_phone"`
	TotalAmount         pgtype.Numeric     `json:"total_amount"`
	SpecialInstructions string             `json:"special_instructions"`
	Status              OrderStatus        `json:"status"`
	UpiID               string             `json:"upi_id"`
	PaymentProof        string             `json:"payment_proof"`
	VerifiedBy          string             `json:"verified_by"`
	VerificationTime    pgtype.Timestamptz `json:"verification_time"`
	RejectionReason     string             `json:"rejection_reason"`
	CreatedAt           time.Time          `json:"created_at"`
	UpdatedAt           time.Time          `json:"updated_at"`
}

type OrderItem struct {
	ID         uuid.UUID      `json:"id"`
	OrderID    uuid.UUID      `json:"order_id"`
	MenuItemID uuid.UUID      `json:"menu_item_id"`
	Name       string         `json:"name"`
	Price      pgtype.Numeric `json:"price"`
	Quantity   int32          `json:"quantity"`
	Position   int32          `json:"position"`
}

type Setting struct {
	ID           int32     `json:"id"`
	CanteenName  string    `json:"canteen_name"`
	UpiID        string    `json:"upi_id"`
	UpiQrCode    string    `json:"upi_qr_code"`
	ContactPhone string    `json:"contact_phone"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"password_hash"`
	Role         UserRole  `json:"role"`
	CreatedAt    time.Time `json:"created_at"`
}

package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/campus-canteen/api/internal/middleware"
	"github.com/campus-canteen/api/internal/service"
	"github.com/go-chi/chi/v5"
)

const dateLayout = "2006-01-02"

// OrderServicer defines the service methods needed by order handlers.
// Satisfied by *service.OrderService; narrow interface for testability.
type OrderServicer interface {
	CreateOrder(ctx context.Context, req service.CreateOrderRequest) (*service.OrderDetail, error)
	GetOrder(ctx context.Context, orderID string) (*service.OrderDetail, error)
	ListOrdersByPhone(ctx context.Context, phone string) ([]service.OrderDetail, error)
	ListPendingVerification(ctx context.Context) ([]service.OrderDetail, error)
	ListKitchenOrders(ctx context.Context) ([]service.OrderDetail, error)
	ListOrders(ctx context.Context, f service.ListOrdersFilter) (*service.OrderPage, error)
	SubmitPayment(ctx context.Context, orderID, paymentProof string) (*service.OrderDetail, error)
	VerifyPayment(ctx context.Context, orderID, action, reason, adminUsername string) (*service.OrderDetail, error)
	SetStatus(ctx context.Context, orderID, status, actor, username string) (*service.OrderDetail, error)
}

// OrderHandler handles order endpoints for customers, admins and the kitchen.
type OrderHandler struct {
	svc OrderServicer
	loc *time.Location
}

// NewOrderHandler creates a new OrderHandler. loc is the zone admin date
// filters are read in.
func NewOrderHandler(svc OrderServicer, loc *time.Location) *OrderHandler {
	if loc == nil {
		loc = time.UTC
	}
	return &OrderHandler{svc: svc, loc: loc}
}

// RegisterRoutes registers the public order endpoints.
// Expected to be mounted at /api/orders. createMW wraps only order creation.
func (h *OrderHandler) RegisterRoutes(r chi.Router, createMW ...func(http.Handler) http.Handler) {
	r.With(createMW...).Post("/", h.Create)
	r.Get("/phone/{phone}", h.ListByPhone)
	r.Get("/{orderId}", h.Get)
	r.Put("/{orderId}/submit-payment", h.SubmitPayment)
}

// RegisterAdminRoutes registers admin order endpoints.
// Expected to be mounted at /api/admin/orders behind the admin role check.
func (h *OrderHandler) RegisterAdminRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Get("/pending-verification", h.ListPendingVerification)
	r.Put("/{orderId}/verify-payment", h.VerifyPayment)
	r.Put("/{orderId}/status", h.SetStatus)
}

// RegisterKitchenRoutes registers kitchen endpoints.
// Expected to be mounted at /api/kitchen/orders behind the kitchen role check.
func (h *OrderHandler) RegisterKitchenRoutes(r chi.Router) {
	r.Get("/", h.ListKitchen)
	r.Put("/{orderId}/status", h.SetStatus)
}

// --- Request / Response types ---

type createOrderRequest struct {
	StudentName         string                   `json:"studentName" validate:"required,max=100"`
	StudentPhone        string                   `json:"studentPhone" validate:"required,max=20"`
	SpecialInstructions string                   `json:"specialInstructions" validate:"max=500"`
	Items               []createOrderItemRequest `json:"items" validate:"required,min=1,dive"`
}

type createOrderItemRequest struct {
	MenuItemID string `json:"menuItemId" validate:"required"`
	Quantity   int32  `json:"quantity" validate:"min=1"`
}

type submitPaymentRequest struct {
	PaymentProof string `json:"paymentProof" validate:"max=500"`
}

type verifyPaymentRequest struct {
	Action          string `json:"action" validate:"required,oneof=approve reject"`
	RejectionReason string `json:"rejectionReason" validate:"max=500"`
}

type setStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

type orderListResponse struct {
	Orders      []service.OrderView `json:"orders"`
	Total       int64               `json:"total"`
	TotalPages  int                 `json:"totalPages"`
	CurrentPage int                 `json:"currentPage"`
	Limit       int                 `json:"limit"`
}

// --- Public handlers ---

// Create handles POST /api/orders.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	svcReq := service.CreateOrderRequest{
		StudentName:         req.StudentName,
		StudentPhone:        req.StudentPhone,
		SpecialInstructions: req.SpecialInstructions,
		Items:               make([]service.CreateOrderItemRequest, len(req.Items)),
	}
	for i, item := range req.Items {
		svcReq.Items[i] = service.CreateOrderItemRequest{
			MenuItemID: item.MenuItemID,
			Quantity:   item.Quantity,
		}
	}

	order, err := h.svc.CreateOrder(r.Context(), svcReq)
	if err != nil {
		writeServiceError(w, r, "create order", err)
		return
	}
	writeJSON(w, http.StatusCreated, order.View())
}

// Get handles GET /api/orders/{orderId}.
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	order, err := h.svc.GetOrder(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		writeServiceError(w, r, "get order", err)
		return
	}
	writeJSON(w, http.StatusOK, order.View())
}

// ListByPhone handles GET /api/orders/phone/{phone}.
func (h *OrderHandler) ListByPhone(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.ListOrdersByPhone(r.Context(), chi.URLParam(r, "phone"))
	if err != nil {
		writeServiceError(w, r, "list orders by phone", err)
		return
	}
	writeJSON(w, http.StatusOK, service.Views(orders))
}

// SubmitPayment handles PUT /api/orders/{orderId}/submit-payment. The body
// is optional.
func (h *OrderHandler) SubmitPayment(w http.ResponseWriter, r *http.Request) {
	var req submitPaymentRequest
	if err := decodeJSON(r, &req, true); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	order, err := h.svc.SubmitPayment(r.Context(), chi.URLParam(r, "orderId"), req.PaymentProof)
	if err != nil {
		writeServiceError(w, r, "submit payment", err)
		return
	}
	writeJSON(w, http.StatusOK, order.View())
}

// --- Staff handlers ---

// List handles GET /api/admin/orders?status=&startDate=&endDate=&page=&limit=.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	f, err := h.parseListFilter(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	page, err := h.svc.ListOrders(r.Context(), f)
	if err != nil {
		writeServiceError(w, r, "list orders", err)
		return
	}
	writeJSON(w, http.StatusOK, orderListResponse{
		Orders:      service.Views(page.Orders),
		Total:       page.Total,
		TotalPages:  page.TotalPages,
		CurrentPage: page.CurrentPage,
		Limit:       page.Limit,
	})
}

// ListPendingVerification handles GET /api/admin/orders/pending-verification.
func (h *OrderHandler) ListPendingVerification(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.ListPendingVerification(r.Context())
	if err != nil {
		writeServiceError(w, r, "list pending verification", err)
		return
	}
	writeJSON(w, http.StatusOK, service.Views(orders))
}

// ListKitchen handles GET /api/kitchen/orders.
func (h *OrderHandler) ListKitchen(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.ListKitchenOrders(r.Context())
	if err != nil {
		writeServiceError(w, r, "list kitchen orders", err)
		return
	}
	writeJSON(w, http.StatusOK, service.Views(orders))
}

// VerifyPayment handles PUT /api/admin/orders/{orderId}/verify-payment.
func (h *OrderHandler) VerifyPayment(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req verifyPaymentRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	order, err := h.svc.VerifyPayment(r.Context(), chi.URLParam(r, "orderId"), req.Action, req.RejectionReason, claims.Username)
	if err != nil {
		writeServiceError(w, r, "verify payment", err)
		return
	}
	writeJSON(w, http.StatusOK, order.View())
}

// SetStatus handles PUT .../orders/{orderId}/status for admin and kitchen.
// The acting role is taken from the token, not from the route.
func (h *OrderHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "not authenticated"})
		return
	}

	var req setStatusRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	order, err := h.svc.SetStatus(r.Context(), chi.URLParam(r, "orderId"), req.Status, claims.Role, claims.Username)
	if err != nil {
		writeServiceError(w, r, "set order status", err)
		return
	}
	writeJSON(w, http.StatusOK, order.View())
}

// --- Helpers ---

// parseListFilter reads the admin list query. Dates are whole days in the
// business zone; endDate is inclusive.
func (h *OrderHandler) parseListFilter(r *http.Request) (service.ListOrdersFilter, error) {
	q := r.URL.Query()
	f := service.ListOrdersFilter{Status: q.Get("status")}

	if s := q.Get("page"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return f, fmt.Errorf("invalid page")
		}
		f.Page = n
	}
	if s := q.Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 1 {
			return f, fmt.Errorf("invalid limit")
		}
		f.Limit = n
	}

	if s := q.Get("startDate"); s != "" {
		t, err := time.ParseInLocation(dateLayout, s, h.loc)
		if err != nil {
			return f, fmt.Errorf("invalid startDate format, expected YYYY-MM-DD")
		}
		f.Start = t
	}
	if s := q.Get("endDate"); s != "" {
		t, err := time.ParseInLocation(dateLayout, s, h.loc)
		if err != nil {
			return f, fmt.Errorf("invalid endDate format, expected YYYY-MM-DD")
		}
		f.End = t.AddDate(0, 0, 1)
	}
	return f, nil
}

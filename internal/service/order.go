package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/campus-canteen/api/internal/database"
	"github.com/campus-canteen/api/internal/enum"
	"github.com/campus-canteen/api/internal/lifecycle"
	"github.com/campus-canteen/api/internal/logger"
	"github.com/campus-canteen/api/internal/notify"
	"github.com/campus-canteen/api/internal/orderid"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	maxOrderIDRetries = 3
	orderIDConstraint = "orders_order_id_key"
	phoneLookupLimit  = 20

	DefaultPageSize = 50
	MaxPageSize     = 100
)

// TxBeginner starts a new database transaction.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// DB is a pool: it runs single statements and starts transactions.
// Satisfied by *pgxpool.Pool.
type DB interface {
	database.DBTX
	TxBeginner
}

// MenuLookup resolves a menu item at order creation.
type MenuLookup interface {
	GetMenuItem(ctx context.Context, id uuid.UUID) (database.MenuItem, error)
}

// SettingsLookup reads the canteen settings row.
type SettingsLookup interface {
	GetSettings(ctx context.Context) (database.Setting, error)
}

// OrderStore defines the DB methods the order service needs.
// Satisfied by *database.Queries (and its WithTx variant).
type OrderStore interface {
	MenuLookup
	SettingsLookup
	NextOrderSequence(ctx context.Context, arg database.NextOrderSequenceParams) (int32, error)
	CreateOrder(ctx context.Context, arg database.CreateOrderParams) (database.Order, error)
	CreateOrderItem(ctx context.Context, arg database.CreateOrderItemParams) (database.OrderItem, error)
	GetOrderByOrderID(ctx context.Context, orderID string) (database.Order, error)
	ListOrdersByPhone(ctx context.Context, arg database.ListOrdersByPhoneParams) ([]database.Order, error)
	ListOrdersByStatuses(ctx context.Context, statuses []string) ([]database.Order, error)
	ListOrders(ctx context.Context, arg database.ListOrdersParams) ([]database.Order, error)
	CountOrders(ctx context.Context, arg database.CountOrdersParams) (int64, error)
	TransitionOrder(ctx context.Context, arg database.TransitionOrderParams) (database.Order, error)
	ListOrderItemsByOrder(ctx context.Context, orderID uuid.UUID) ([]database.OrderItem, error)
	ListOrderItemsByOrders(ctx context.Context, orderIDs []uuid.UUID) ([]database.OrderItem, error)
}

// NewOrderStore creates an OrderStore from a DBTX (pool or tx).
// This allows the service to create store instances from transactions.
type NewOrderStore func(db database.DBTX) OrderStore

// CreateOrderRequest is the input for creating an order.
type CreateOrderRequest struct {
	StudentName         string
	StudentPhone        string
	SpecialInstructions string
	Items               []CreateOrderItemRequest
}

// CreateOrderItemRequest is a single line in the order.
type CreateOrderItemRequest struct {
	MenuItemID string
	Quantity   int32
}

// ListOrdersFilter selects orders for the admin list. Zero values mean no
// filter; End is exclusive.
type ListOrdersFilter struct {
	Status string
	Start  time.Time
	End    time.Time
	Page   int
	Limit  int
}

// OrderPage is one page of the admin list.
type OrderPage struct {
	Orders      []OrderDetail
	Total       int64
	TotalPages  int
	CurrentPage int
	Limit       int
}

// OrderConfig holds the deployment-specific settings of the order service.
type OrderConfig struct {
	// Location decides the calendar day an order id belongs to.
	Location *time.Location
	// DefaultUpiID is stamped on orders when the settings row has none.
	DefaultUpiID string
}

// OrderService handles order business logic.
type OrderService struct {
	db         DB
	newStore   NewOrderStore
	notifier   notify.Notifier
	loc        *time.Location
	defaultUPI string
	now        func() time.Time
}

// NewOrderService creates a new OrderService.
func NewOrderService(db DB, newStore NewOrderStore, notifier notify.Notifier, cfg OrderConfig) *OrderService {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.DefaultUpiID == "" {
		cfg.DefaultUpiID = enum.DefaultUpiID
	}
	return &OrderService{
		db:         db,
		newStore:   newStore,
		notifier:   notifier,
		loc:        cfg.Location,
		defaultUPI: cfg.DefaultUpiID,
		now:        time.Now,
	}
}

// preparedOrder is a fully validated order ready to insert.
type preparedOrder struct {
	name         string
	phone        string
	instructions string
	upiID        string
	total        decimal.Decimal
	items        []database.CreateOrderItemParams
}

// CreateOrder validates every line against the menu, snapshots names and
// prices, and inserts the order with a freshly allocated id in one
// transaction. Order id collisions are retried up to maxOrderIDRetries times.
func (s *OrderService) CreateOrder(ctx context.Context, req CreateOrderRequest) (*OrderDetail, error) {
	p, err := s.prepareOrder(ctx, req)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < maxOrderIDRetries; attempt++ {
		result, err := s.createOrderTx(ctx, p)
		if err == nil {
			return result, nil
		}
		if isOrderIDConflict(err) {
			logger.Log.Warn("order id collision, retrying", zap.Int("attempt", attempt+1), zap.Error(err))
			lastErr = err
			continue
		}
		return nil, err
	}
	return nil, fmt.Errorf("allocate order id after %d attempts: %w", maxOrderIDRetries, lastErr)
}

func (s *OrderService) prepareOrder(ctx context.Context, req CreateOrderRequest) (*preparedOrder, error) {
	name := strings.TrimSpace(req.StudentName)
	if name == "" {
		return nil, ErrMissingName
	}
	phone := strings.TrimSpace(req.StudentPhone)
	if phone == "" {
		return nil, ErrMissingPhone
	}
	if len(req.Items) == 0 {
		return nil, ErrEmptyItems
	}

	store := s.newStore(s.db)

	total := decimal.Zero
	items := make([]database.CreateOrderItemParams, 0, len(req.Items))
	for i, item := range req.Items {
		if item.Quantity < 1 {
			return nil, fmt.Errorf("item[%d]: %w", i, ErrInvalidQuantity)
		}
		menuID, err := uuid.Parse(item.MenuItemID)
		if err != nil {
			return nil, fmt.Errorf("item[%d]: %w", i, ErrInvalidMenuItemID)
		}

		menuItem, err := store.GetMenuItem(ctx, menuID)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, fmt.Errorf("item[%d]: %w", i, ErrMenuItemNotFound)
			}
			return nil, fmt.Errorf("item[%d]: get menu item: %w", i, err)
		}
		if !menuItem.IsAvailable {
			return nil, fmt.Errorf("item[%d] %s: %w", i, menuItem.Name, ErrMenuItemUnavailable)
		}

		price := numericToDecimal(menuItem.Price)
		total = total.Add(price.Mul(decimal.NewFromInt32(item.Quantity)))

		items = append(items, database.CreateOrderItemParams{
			MenuItemID: menuID,
			Name:       menuItem.Name,
			Price:      decimalToNumeric(price),
			Quantity:   item.Quantity,
			Position:   int32(i),
		})
	}

	upiID := s.defaultUPI
	settings, err := store.GetSettings(ctx)
	switch {
	case err == nil:
		if settings.UpiID != "" {
			upiID = settings.UpiID
		}
	case errors.Is(err, pgx.ErrNoRows):
	default:
		return nil, fmt.Errorf("get settings: %w", err)
	}

	return &preparedOrder{
		name:         name,
		phone:        phone,
		instructions: strings.TrimSpace(req.SpecialInstructions),
		upiID:        upiID,
		total:        total,
		items:        items,
	}, nil
}

// isOrderIDConflict checks if the error is a unique constraint violation
// on the public order id.
func isOrderIDConflict(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.UniqueViolation && pgErr.ConstraintName == orderIDConstraint
	}
	return false
}

// createOrderTx allocates the id and inserts the order in a single transaction.
func (s *OrderService) createOrderTx(ctx context.Context, p *preparedOrder) (*OrderDetail, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	store := s.newStore(tx)

	today := orderid.Today(s.now(), s.loc)
	seq, err := store.NextOrderSequence(ctx, database.NextOrderSequenceParams{
		OrderDate: pgtype.Date{Time: today, Valid: true},
		Prefix:    orderid.Prefix(today),
	})
	if err != nil {
		return nil, fmt.Errorf("next order sequence: %w", err)
	}

	order, err := store.CreateOrder(ctx, database.CreateOrderParams{
		OrderID:             orderid.Format(today, int(seq)),
		StudentName:         p.name,
		StudentPhone:        p.phone,
		TotalAmount:         decimalToNumeric(p.total),
		SpecialInstructions: p.instructions,
		UpiID:               p.upiID,
	})
	if err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}

	items := make([]database.OrderItem, 0, len(p.items))
	for _, params := range p.items {
		params.OrderID = order.ID
		item, err := store.CreateOrderItem(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("create order item: %w", err)
		}
		items = append(items, item)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}

	return &OrderDetail{Order: order, Items: items}, nil
}

// GetOrder returns the order with public id orderID.
func (s *OrderService) GetOrder(ctx context.Context, orderID string) (*OrderDetail, error) {
	store := s.newStore(s.db)

	order, err := store.GetOrderByOrderID(ctx, orderID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrOrderNotFound
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	items, err := store.ListOrderItemsByOrder(ctx, order.ID)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}
	return &OrderDetail{Order: order, Items: items}, nil
}

// ListOrdersByPhone returns the most recent orders placed with phone.
func (s *OrderService) ListOrdersByPhone(ctx context.Context, phone string) ([]OrderDetail, error) {
	phone = strings.TrimSpace(phone)
	if phone == "" {
		return nil, ErrMissingPhone
	}

	store := s.newStore(s.db)
	orders, err := store.ListOrdersByPhone(ctx, database.ListOrdersByPhoneParams{
		StudentPhone: phone,
		Limit:        phoneLookupLimit,
	})
	if err != nil {
		return nil, fmt.Errorf("list orders by phone: %w", err)
	}
	return attachItems(ctx, store, orders)
}

// ListPendingVerification returns orders awaiting an admin decision, oldest first.
func (s *OrderService) ListPendingVerification(ctx context.Context) ([]OrderDetail, error) {
	return s.listByStatuses(ctx, database.OrderStatusPaymentSubmitted)
}

// ListKitchenOrders returns the kitchen queue, oldest first.
func (s *OrderService) ListKitchenOrders(ctx context.Context) ([]OrderDetail, error) {
	return s.listByStatuses(ctx,
		database.OrderStatusVerified,
		database.OrderStatusPreparing,
		database.OrderStatusReady,
	)
}

func (s *OrderService) listByStatuses(ctx context.Context, statuses ...database.OrderStatus) ([]OrderDetail, error) {
	names := make([]string, len(statuses))
	for i, st := range statuses {
		names[i] = string(st)
	}

	store := s.newStore(s.db)
	orders, err := store.ListOrdersByStatuses(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("list orders by status: %w", err)
	}
	return attachItems(ctx, store, orders)
}

// ListOrders returns one page of orders, newest first.
func (s *OrderService) ListOrders(ctx context.Context, f ListOrdersFilter) (*OrderPage, error) {
	status := pgtype.Text{}
	if f.Status != "" {
		if !database.OrderStatus(f.Status).Valid() {
			return nil, ErrInvalidStatus
		}
		status = pgtype.Text{String: f.Status, Valid: true}
	}

	start := pgtype.Timestamptz{}
	if !f.Start.IsZero() {
		start = pgtype.Timestamptz{Time: f.Start, Valid: true}
	}
	end := pgtype.Timestamptz{}
	if !f.End.IsZero() {
		end = pgtype.Timestamptz{Time: f.End, Valid: true}
	}
	if start.Valid && end.Valid && !f.Start.Before(f.End) {
		return nil, ErrInvalidDateRange
	}

	page := f.Page
	if page < 1 {
		page = 1
	}
	limit := f.Limit
	if limit < 1 {
		limit = DefaultPageSize
	}
	if limit > MaxPageSize {
		limit = MaxPageSize
	}

	offset := int64(page-1) * int64(limit)
	if offset > math.MaxInt32 {
		return nil, ErrPageOutOfRange
	}

	store := s.newStore(s.db)
	total, err := store.CountOrders(ctx, database.CountOrdersParams{
		Status:    status,
		StartDate: start,
		EndDate:   end,
	})
	if err != nil {
		return nil, fmt.Errorf("count orders: %w", err)
	}

	orders, err := store.ListOrders(ctx, database.ListOrdersParams{
		Status:    status,
		StartDate: start,
		EndDate:   end,
		Limit:     int32(limit),
		Offset:    int32(offset),
	})
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}

	details, err := attachItems(ctx, store, orders)
	if err != nil {
		return nil, err
	}

	return &OrderPage{
		Orders:      details,
		Total:       total,
		TotalPages:  int(math.Ceil(float64(total) / float64(limit))),
		CurrentPage: page,
		Limit:       limit,
	}, nil
}

type itemLister interface {
	ListOrderItemsByOrders(ctx context.Context, orderIDs []uuid.UUID) ([]database.OrderItem, error)
}

// attachItems loads the lines of every order in one query.
func attachItems(ctx context.Context, store itemLister, orders []database.Order) ([]OrderDetail, error) {
	details := make([]OrderDetail, len(orders))
	if len(orders) == 0 {
		return details, nil
	}

	ids := make([]uuid.UUID, len(orders))
	for i, o := range orders {
		ids[i] = o.ID
	}
	items, err := store.ListOrderItemsByOrders(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("list order items: %w", err)
	}

	byOrder := make(map[uuid.UUID][]database.OrderItem, len(orders))
	for _, it := range items {
		byOrder[it.OrderID] = append(byOrder[it.OrderID], it)
	}
	for i, o := range orders {
		lines := byOrder[o.ID]
		if lines == nil {
			lines = []database.OrderItem{}
		}
		details[i] = OrderDetail{Order: o, Items: lines}
	}
	return details, nil
}

// SubmitPayment records the customer's claim to have paid.
func (s *OrderService) SubmitPayment(ctx context.Context, orderID, paymentProof string) (*OrderDetail, error) {
	v := lifecycle.Decide(enum.EntrySubmitPayment, enum.ActorCustomer, database.OrderStatusPaymentSubmitted)
	return s.apply(ctx, orderID, v, stamps{paymentProof: strings.TrimSpace(paymentProof)})
}

// VerifyPayment records the admin's decision on a submitted payment.
// action is "approve" or "reject"; an empty reason on reject gets the default.
func (s *OrderService) VerifyPayment(ctx context.Context, orderID, action, reason, adminUsername string) (*OrderDetail, error) {
	var target database.OrderStatus
	switch action {
	case enum.VerifyActionApprove:
		target = database.OrderStatusVerified
	case enum.VerifyActionReject:
		target = database.OrderStatusRejected
		reason = strings.TrimSpace(reason)
		if reason == "" {
			reason = enum.DefaultRejectionReason
		}
	default:
		return nil, ErrInvalidAction
	}

	v := lifecycle.Decide(enum.EntryVerifyPayment, enum.ActorAdmin, target)
	return s.apply(ctx, orderID, v, stamps{verifiedBy: adminUsername, rejectionReason: reason})
}

// SetStatus moves an order along an admin or kitchen edge. actor is the
// caller's role.
func (s *OrderService) SetStatus(ctx context.Context, orderID, status, actor, username string) (*OrderDetail, error) {
	v := lifecycle.Decide(enum.EntrySetStatus, actor, database.OrderStatus(status))
	return s.apply(ctx, orderID, v, stamps{verifiedBy: username})
}

// stamps carries the payment fields a rule may fill in.
type stamps struct {
	paymentProof    string
	verifiedBy      string
	rejectionReason string
}

// apply performs the conditional update for an allowed verdict and fans out
// the result. A miss is resolved into not-found or a transition conflict.
func (s *OrderService) apply(ctx context.Context, orderID string, v lifecycle.Verdict, st stamps) (*OrderDetail, error) {
	switch v.Outcome {
	case lifecycle.InvalidTarget:
		return nil, ErrInvalidStatus
	case lifecycle.Forbidden:
		return nil, ErrForbiddenTransition
	}
	rule := v.Rule

	params := database.TransitionOrderParams{
		OrderID:      orderID,
		Status:       rule.To,
		FromStatuses: rule.FromStrings(),
	}
	switch rule.Stamp {
	case lifecycle.StampPaymentProof:
		if st.paymentProof != "" {
			params.PaymentProof = pgtype.Text{String: st.paymentProof, Valid: true}
		}
	case lifecycle.StampVerification:
		params.VerifiedBy = pgtype.Text{String: st.verifiedBy, Valid: true}
		params.VerificationTime = pgtype.Timestamptz{Time: s.now(), Valid: true}
	case lifecycle.StampRejection:
		params.VerifiedBy = pgtype.Text{String: st.verifiedBy, Valid: true}
		params.VerificationTime = pgtype.Timestamptz{Time: s.now(), Valid: true}
		params.RejectionReason = pgtype.Text{String: st.rejectionReason, Valid: true}
	}

	store := s.newStore(s.db)
	order, err := store.TransitionOrder(ctx, params)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("transition order: %w", err)
		}
		current, gerr := store.GetOrderByOrderID(ctx, orderID)
		if gerr != nil {
			if errors.Is(gerr, pgx.ErrNoRows) {
				return nil, ErrOrderNotFound
			}
			return nil, fmt.Errorf("get order: %w", gerr)
		}
		return nil, &TransitionError{From: current.Status, To: rule.To}
	}

	// The transition is already committed.
	items, err := store.ListOrderItemsByOrder(ctx, order.ID)
	if err != nil {
		logger.Log.Error("list order items after transition",
			zap.String("order_id", order.OrderID),
			zap.String("status", string(order.Status)),
			zap.Error(err),
		)
		items = []database.OrderItem{}
	}
	detail := &OrderDetail{Order: order, Items: items}

	s.publish(rule, detail)
	return detail, nil
}

func (s *OrderService) publish(rule lifecycle.Rule, d *OrderDetail) {
	if len(rule.Notify) == 0 {
		return
	}
	payload, err := json.Marshal(d.View())
	if err != nil {
		logger.Log.Error("encode order event", zap.String("order_id", d.Order.OrderID), zap.Error(err))
		return
	}

	if rule.Notifies(lifecycle.RoomKitchen) {
		s.notifier.Publish(enum.ChannelKitchen, notify.Event{Type: enum.EventOrderVerified, Payload: payload})
	}
	if rule.Notifies(lifecycle.RoomOrder) {
		s.notifier.Publish(notify.OrderChannel(d.Order.OrderID), notify.Event{Type: enum.EventOrderUpdated, Payload: payload})
	}
}

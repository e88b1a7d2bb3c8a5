//go:build integration

package handler_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/campus-canteen/api/internal/config"
	"github.com/campus-canteen/api/internal/database"
	"github.com/campus-canteen/api/internal/notify"
	"github.com/campus-canteen/api/internal/router"
	"github.com/campus-canteen/api/internal/ws"
	"github.com/gorilla/websocket"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/crypto/bcrypt"
)

const integrationSecret = "integration-test-secret"

// TestIntegrationFlow drives one order through the full API against a real
// PostgreSQL database: menu setup, placement, payment review, kitchen
// progress and the daily report.
func TestIntegrationFlow(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connStr := setupPostgresContainer(t, ctx)
	if _, err := database.RunMigrations(connStr); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	defer pool.Close()

	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	cfg := &config.Config{
		JWTSecret:      integrationSecret,
		Location:       loc,
		DefaultUpiID:   "canteen@oksbi",
		CORSOrigins:    []string{"http://localhost:5173"},
		OrderRateLimit: 1000,
		OrderRateBurst: 100,
	}
	queries := database.New(pool)
	hub := ws.NewHub()
	go hub.Run(ctx) //nolint:errcheck

	r := router.New(cfg, queries, pool, hub, notify.Multi{hub})
	server := httptest.NewServer(r)
	defer server.Close()

	createUser(t, ctx, queries, "admin", "admin-pass", database.UserRoleAdmin)
	createUser(t, ctx, queries, "kitchen", "kitchen-pass", database.UserRoleKitchen)

	// --- 1. Health ---
	rr := doRequest(t, r, "GET", "/health", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("health: got %d", rr.Code)
	}

	// --- 2. Login ---
	adminToken := login(t, r, "admin", "admin-pass")
	kitchenToken := login(t, r, "kitchen", "kitchen-pass")

	// --- 3. Menu ---
	thali := createMenuItem(t, r, adminToken, "Veg Thali", "Meals", "40")
	chai := createMenuItem(t, r, adminToken, "Chai", "Beverages", "10")

	// --- 4. Kitchen subscribes before the order is verified ---
	kitchenConn := dialWS(t, server, kitchenToken)
	joinChannel(t, kitchenConn, "kitchen")

	// --- 5. Place an order ---
	rr = postJSON(t, r, "/api/orders", map[string]interface{}{
		"studentName":  "Asha",
		"studentPhone": "9876543210",
		"items": []map[string]interface{}{
			{"menuItemId": thali, "quantity": 2},
			{"menuItemId": chai, "quantity": 1},
		},
	})
	if rr.Code != http.StatusCreated {
		t.Fatalf("create order: got %d; body: %s", rr.Code, rr.Body.String())
	}
	order := decodeResponse(t, rr)
	orderID := order["orderId"].(string)
	wantPrefix := "ORD" + time.Now().In(loc).Format("20060102")
	if !strings.HasPrefix(orderID, wantPrefix) || len(orderID) != len(wantPrefix)+3 {
		t.Errorf("orderId: got %s, want %sNNN", orderID, wantPrefix)
	}
	if order["totalAmount"] != "90.00" {
		t.Errorf("totalAmount: got %v, want 90.00", order["totalAmount"])
	}

	// --- 6. A later price change does not touch the order ---
	rr = doRequest(t, r, "PUT", "/api/menu/"+thali, map[string]string{"price": "55"}, adminToken)
	if rr.Code != http.StatusOK {
		t.Fatalf("update menu item: got %d", rr.Code)
	}
	rr = doRequest(t, r, "GET", "/api/orders/"+orderID, nil, "")
	if got := decodeResponse(t, rr)["totalAmount"]; got != "90.00" {
		t.Errorf("total after menu edit: got %v, want 90.00", got)
	}

	// --- 7. Customer follows the order and submits payment ---
	customerConn := dialWS(t, server, "")
	joinChannel(t, customerConn, notify.OrderChannel(orderID))

	rr = doRequest(t, r, "PUT", "/api/orders/"+orderID+"/submit-payment", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("submit payment: got %d; body: %s", rr.Code, rr.Body.String())
	}
	rr = doRequest(t, r, "PUT", "/api/orders/"+orderID+"/submit-payment", nil, "")
	if rr.Code != http.StatusConflict {
		t.Errorf("second submit: got %d, want %d", rr.Code, http.StatusConflict)
	}

	// --- 8. Admin review ---
	rr = doRequest(t, r, "GET", "/api/admin/orders/pending-verification", nil, adminToken)
	if list := decodeList(t, rr); len(list) != 1 || list[0]["orderId"] != orderID {
		t.Fatalf("pending verification: got %v", list)
	}

	rr = doRequest(t, r, "PUT", "/api/kitchen/orders/"+orderID+"/status", map[string]string{"status": "verified"}, kitchenToken)
	if rr.Code != http.StatusForbidden {
		t.Errorf("kitchen verify: got %d, want %d", rr.Code, http.StatusForbidden)
	}

	rr = doRequest(t, r, "PUT", "/api/admin/orders/"+orderID+"/verify-payment", map[string]string{"action": "approve"}, adminToken)
	if rr.Code != http.StatusOK {
		t.Fatalf("approve: got %d; body: %s", rr.Code, rr.Body.String())
	}
	verified := decodeResponse(t, rr)
	pd := verified["paymentDetails"].(map[string]interface{})
	if verified["status"] != "verified" || pd["verifiedBy"] != "admin" || pd["verificationTime"] == nil {
		t.Errorf("approved order: got %v", verified)
	}
	expectEvent(t, kitchenConn, "order.verified")
	expectEvent(t, customerConn, "order.updated")

	// --- 9. Kitchen progress ---
	rr = doRequest(t, r, "GET", "/api/kitchen/orders", nil, kitchenToken)
	if list := decodeList(t, rr); len(list) != 1 {
		t.Fatalf("kitchen queue: got %d orders", len(list))
	}
	for _, status := range []string{"preparing", "ready", "completed"} {
		rr = doRequest(t, r, "PUT", "/api/kitchen/orders/"+orderID+"/status", map[string]string{"status": status}, kitchenToken)
		if rr.Code != http.StatusOK {
			t.Fatalf("set %s: got %d; body: %s", status, rr.Code, rr.Body.String())
		}
	}
	rr = doRequest(t, r, "PUT", "/api/kitchen/orders/"+orderID+"/status", map[string]string{"status": "preparing"}, kitchenToken)
	if rr.Code != http.StatusConflict {
		t.Errorf("reopen completed: got %d, want %d", rr.Code, http.StatusConflict)
	}

	// --- 10. History and reports ---
	rr = doRequest(t, r, "GET", "/api/orders/phone/9876543210", nil, "")
	if list := decodeList(t, rr); len(list) != 1 || list[0]["status"] != "completed" {
		t.Errorf("phone history: got %v", list)
	}

	today := time.Now().In(loc).Format("2006-01-02")
	rr = doRequest(t, r, "GET", "/api/admin/reports/daily?date="+today, nil, adminToken)
	if rr.Code != http.StatusOK {
		t.Fatalf("daily report: got %d", rr.Code)
	}
	daily := decodeResponse(t, rr)
	if daily["totalOrders"] != float64(1) || daily["totalRevenue"] != "90.00" {
		t.Errorf("daily report: got %v", daily)
	}
	popular := daily["popularItems"].([]interface{})
	if first := popular[0].(map[string]interface{}); first["name"] != "Veg Thali" || first["revenue"] != "80.00" {
		t.Errorf("popular items: got %v", popular)
	}

	rr = doRequest(t, r, "GET", "/api/admin/reports/daily.csv?date="+today, nil, adminToken)
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), orderID+",Asha,9876543210,Veg Thali x2; Chai x1,90.00,completed,") {
		t.Errorf("daily csv: got %d %q", rr.Code, rr.Body.String())
	}

	rr = doRequest(t, r, "GET", "/api/admin/reports/summary", nil, adminToken)
	summary := decodeResponse(t, rr)
	if summary["totalOrders"] != float64(1) || summary["completedOrders"] != float64(1) || summary["totalRevenue"] != "90.00" {
		t.Errorf("summary: got %v", summary)
	}
}

// TestIntegrationConcurrentOrders places orders in parallel and checks that
// every order gets its own id.
func TestIntegrationConcurrentOrders(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	connStr := setupPostgresContainer(t, ctx)
	if _, err := database.RunMigrations(connStr); err != nil {
		t.Fatalf("run migrations: %v", err)
	}
	pool, err := pgxpool.New(ctx, connStr)
	if err != nil {
		t.Fatalf("create pool: %v", err)
	}
	defer pool.Close()

	cfg := &config.Config{
		JWTSecret:      integrationSecret,
		Location:       time.UTC,
		DefaultUpiID:   "canteen@oksbi",
		OrderRateLimit: 1000,
		OrderRateBurst: 100,
	}
	queries := database.New(pool)
	hub := ws.NewHub()
	go hub.Run(ctx) //nolint:errcheck
	r := router.New(cfg, queries, pool, hub, hub)

	createUser(t, ctx, queries, "admin", "admin-pass", database.UserRoleAdmin)
	token := login(t, r, "admin", "admin-pass")
	itemID := createMenuItem(t, r, token, "Samosa", "Snacks", "15")

	const n = 20
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = make(map[string]bool)
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rr := postJSON(t, r, "/api/orders", map[string]interface{}{
				"studentName":  fmt.Sprintf("Student %d", i),
				"studentPhone": fmt.Sprintf("90000000%02d", i),
				"items":        []map[string]interface{}{{"menuItemId": itemID, "quantity": 1}},
			})
			if rr.Code != http.StatusCreated {
				t.Errorf("order %d: got %d; body: %s", i, rr.Code, rr.Body.String())
				return
			}
			resp := decodeResponse(t, rr)
			mu.Lock()
			ids[resp["orderId"].(string)] = true
			mu.Unlock()
		}(i)
	}
	wg.Wait()

	if len(ids) != n {
		t.Errorf("unique order ids: got %d, want %d", len(ids), n)
	}
}

// --- Helpers ---

func setupPostgresContainer(t *testing.T, ctx context.Context) string {
	t.Helper()

	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("canteen_test"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("start postgres container: %v", err)
	}
	t.Cleanup(func() {
		if err := pgContainer.Terminate(context.Background()); err != nil {
			t.Logf("terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("get connection string: %v", err)
	}
	return connStr
}

func createUser(t *testing.T, ctx context.Context, q *database.Queries, username, password string, role database.UserRole) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	if _, err := q.UpsertUser(ctx, database.UpsertUserParams{
		Username:     username,
		PasswordHash: string(hash),
		Role:         role,
	}); err != nil {
		t.Fatalf("create user %s: %v", username, err)
	}
}

func login(t *testing.T, r http.Handler, username, password string) string {
	t.Helper()
	rr := postJSON(t, r, "/api/auth/login", map[string]string{"username": username, "password": password})
	if rr.Code != http.StatusOK {
		t.Fatalf("login %s: got %d; body: %s", username, rr.Code, rr.Body.String())
	}
	return decodeResponse(t, rr)["token"].(string)
}

func createMenuItem(t *testing.T, r http.Handler, token, name, category, price string) string {
	t.Helper()
	rr := doRequest(t, r, "POST", "/api/menu", map[string]string{
		"name":     name,
		"category": category,
		"price":    price,
	}, token)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create menu item %s: got %d; body: %s", name, rr.Code, rr.Body.String())
	}
	return decodeResponse(t, rr)["id"].(string)
}

func dialWS(t *testing.T, server *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws"
	if token != "" {
		url += "?token=" + token
	}
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func joinChannel(t *testing.T, conn *websocket.Conn, channel string) {
	t.Helper()
	if err := conn.WriteJSON(map[string]string{"action": "join", "channel": channel}); err != nil {
		t.Fatalf("join %s: %v", channel, err)
	}
	var ack map[string]interface{}
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&ack); err != nil {
		t.Fatalf("read join ack: %v", err)
	}
	if ack["type"] != "joined" {
		t.Fatalf("join %s: got %v", channel, ack)
	}
}

func expectEvent(t *testing.T, conn *websocket.Conn, eventType string) {
	t.Helper()
	var ev notify.Event
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if err := conn.ReadJSON(&ev); err != nil {
		t.Fatalf("read %s event: %v", eventType, err)
	}
	if ev.Type != eventType {
		t.Fatalf("event: got %q, want %q", ev.Type, eventType)
	}
}

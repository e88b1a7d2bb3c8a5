package handler_test

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/campus-canteen/api/internal/database"
	"github.com/campus-canteen/api/internal/handler"
	"github.com/campus-canteen/api/internal/middleware"
	"github.com/campus-canteen/api/internal/service"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// --- Mock MenuStore ---

type mockMenuStore struct {
	mu         sync.Mutex
	items      map[uuid.UUID]database.MenuItem
	order      []uuid.UUID
	lastList   database.ListMenuItemsParams
	lastUpdate database.UpdateMenuItemParams
	err        error
}

func newMockMenuStore() *mockMenuStore {
	return &mockMenuStore{items: map[uuid.UUID]database.MenuItem{}}
}

func (m *mockMenuStore) add(name, category, price string, available bool) database.MenuItem {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Date(2026, 10, 14, 8, 0, 0, 0, time.UTC)
	item := database.MenuItem{
		ID:          uuid.New(),
		Name:        name,
		Category:    category,
		Price:       makeNumeric(price),
		IsAvailable: available,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	m.items[item.ID] = item
	m.order = append(m.order, item.ID)
	return item
}

func (m *mockMenuStore) ListMenuItems(_ context.Context, arg database.ListMenuItemsParams) ([]database.MenuItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastList = arg
	if m.err != nil {
		return nil, m.err
	}
	var out []database.MenuItem
	for _, id := range m.order {
		item, ok := m.items[id]
		if !ok {
			continue
		}
		if arg.Category.Valid && item.Category != arg.Category.String {
			continue
		}
		if arg.AvailableOnly && !item.IsAvailable {
			continue
		}
		out = append(out, item)
	}
	return out, nil
}

func (m *mockMenuStore) GetMenuItem(_ context.Context, id uuid.UUID) (database.MenuItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return database.MenuItem{}, m.err
	}
	item, ok := m.items[id]
	if !ok {
		return database.MenuItem{}, pgx.ErrNoRows
	}
	return item, nil
}

func (m *mockMenuStore) CreateMenuItem(_ context.Context, arg database.CreateMenuItemParams) (database.MenuItem, error) {
	if m.err != nil {
		return database.MenuItem{}, m.err
	}
	item := m.add(arg.Name, arg.Category, service.Money(arg.Price), arg.IsAvailable)
	m.mu.Lock()
	defer m.mu.Unlock()
	item.Description = arg.Description
	item.Image = arg.Image
	m.items[item.ID] = item
	return item, nil
}

func (m *mockMenuStore) UpdateMenuItem(_ context.Context, arg database.UpdateMenuItemParams) (database.MenuItem, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastUpdate = arg
	if m.err != nil {
		return database.MenuItem{}, m.err
	}
	item, ok := m.items[arg.ID]
	if !ok {
		return database.MenuItem{}, pgx.ErrNoRows
	}
	if arg.Name.Valid {
		item.Name = arg.Name.String
	}
	if arg.Category.Valid {
		item.Category = arg.Category.String
	}
	if arg.Price.Valid {
		item.Price = arg.Price
	}
	if arg.IsAvailable.Valid {
		item.IsAvailable = arg.IsAvailable.Bool
	}
	m.items[arg.ID] = item
	return item, nil
}

func (m *mockMenuStore) DeleteMenuItem(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	if _, ok := m.items[id]; !ok {
		return pgx.ErrNoRows
	}
	delete(m.items, id)
	return nil
}

func setupMenuRouter(store *mockMenuStore) *chi.Mux {
	h := handler.NewMenuHandler(store)
	r := chi.NewRouter()
	r.Route("/api/menu", func(r chi.Router) {
		h.RegisterRoutes(r)
		r.With(middleware.Authenticate(testSecret), middleware.RequireRole("admin")).Group(h.RegisterAdminRoutes)
	})
	return r
}

// --- Tests ---

func TestMenuList_Filters(t *testing.T) {
	store := newMockMenuStore()
	store.add("Samosa", "Snacks", "15", true)
	store.add("Veg Thali", "Meals", "40", true)
	store.add("Paneer Roll", "Snacks", "35", false)
	r := setupMenuRouter(store)

	rr := doRequest(t, r, "GET", "/api/menu", nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	if list := decodeList(t, rr); len(list) != 3 {
		t.Errorf("all items: got %d, want 3", len(list))
	}

	rr = doRequest(t, r, "GET", "/api/menu?category=Snacks&available=true", nil, "")
	list := decodeList(t, rr)
	if len(list) != 1 || list[0]["name"] != "Samosa" || list[0]["price"] != "15.00" {
		t.Errorf("filtered: got %v", list)
	}
	if !store.lastList.Category.Valid || store.lastList.Category.String != "Snacks" || !store.lastList.AvailableOnly {
		t.Errorf("params: got %+v", store.lastList)
	}
}

func TestMenuList_BadAvailableFlag(t *testing.T) {
	r := setupMenuRouter(newMockMenuStore())

	rr := doRequest(t, r, "GET", "/api/menu?available=sometimes", nil, "")
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
	if resp := decodeResponse(t, rr); resp["error"] != "invalid available flag" {
		t.Errorf("error: got %v", resp["error"])
	}
}

func TestMenuList_StoreError(t *testing.T) {
	store := newMockMenuStore()
	store.err = errors.New("connection refused")
	r := setupMenuRouter(store)

	rr := doRequest(t, r, "GET", "/api/menu", nil, "")
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusInternalServerError)
	}
}

func TestMenuGet(t *testing.T) {
	store := newMockMenuStore()
	item := store.add("Chai", "Beverages", "10", true)
	r := setupMenuRouter(store)

	rr := doRequest(t, r, "GET", "/api/menu/"+item.ID.String(), nil, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d", rr.Code)
	}
	resp := decodeResponse(t, rr)
	if resp["id"] != item.ID.String() || resp["isAvailable"] != true {
		t.Errorf("item: got %v", resp)
	}

	rr = doRequest(t, r, "GET", "/api/menu/"+uuid.New().String(), nil, "")
	if rr.Code != http.StatusNotFound {
		t.Errorf("missing: got %d, want %d", rr.Code, http.StatusNotFound)
	}

	rr = doRequest(t, r, "GET", "/api/menu/not-a-uuid", nil, "")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("bad id: got %d, want %d", rr.Code, http.StatusBadRequest)
	}
}

func TestMenuCreate(t *testing.T) {
	r := setupMenuRouter(newMockMenuStore())
	token := tokenFor(t, "admin", "admin")

	rr := doRequest(t, r, "POST", "/api/menu", map[string]interface{}{
		"name":     "Masala Dosa",
		"category": "Meals",
		"price":    "45.5",
	}, token)
	if rr.Code != http.StatusCreated {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}
	resp := decodeResponse(t, rr)
	if resp["price"] != "45.50" {
		t.Errorf("price: got %v", resp["price"])
	}
	if resp["isAvailable"] != true {
		t.Errorf("isAvailable should default to true, got %v", resp["isAvailable"])
	}
}

func TestMenuCreate_Validation(t *testing.T) {
	r := setupMenuRouter(newMockMenuStore())
	token := tokenFor(t, "admin", "admin")

	tests := []struct {
		name string
		body map[string]interface{}
		want string
	}{
		{"missing name", map[string]interface{}{"category": "Meals", "price": "10"}, "name is required"},
		{"missing price", map[string]interface{}{"name": "X", "category": "Meals"}, "price is required"},
		{"bad price", map[string]interface{}{"name": "X", "category": "Meals", "price": "ten"}, "invalid price"},
		{"negative price", map[string]interface{}{"name": "X", "category": "Meals", "price": "-1"}, "price must be >= 0"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := doRequest(t, r, "POST", "/api/menu", tt.body, token)
			if rr.Code != http.StatusBadRequest {
				t.Fatalf("status: got %d, want %d", rr.Code, http.StatusBadRequest)
			}
			if resp := decodeResponse(t, rr); resp["error"] != tt.want {
				t.Errorf("error: got %v, want %q", resp["error"], tt.want)
			}
		})
	}
}

func TestMenuAdminRoutes_RequireAdmin(t *testing.T) {
	store := newMockMenuStore()
	item := store.add("Chai", "Beverages", "10", true)
	r := setupMenuRouter(store)
	body := map[string]interface{}{"name": "X", "category": "Meals", "price": "10"}

	if rr := doRequest(t, r, "POST", "/api/menu", body, ""); rr.Code != http.StatusUnauthorized {
		t.Errorf("create without token: got %d, want %d", rr.Code, http.StatusUnauthorized)
	}
	if rr := doRequest(t, r, "DELETE", "/api/menu/"+item.ID.String(), nil, tokenFor(t, "cook", "kitchen")); rr.Code != http.StatusForbidden {
		t.Errorf("delete as kitchen: got %d, want %d", rr.Code, http.StatusForbidden)
	}
}

func TestMenuUpdate_PartialKeepsOthers(t *testing.T) {
	store := newMockMenuStore()
	item := store.add("Chai", "Beverages", "10", true)
	r := setupMenuRouter(store)

	rr := doRequest(t, r, "PUT", "/api/menu/"+item.ID.String(), map[string]interface{}{
		"price":       "12",
		"isAvailable": false,
	}, tokenFor(t, "admin", "admin"))
	if rr.Code != http.StatusOK {
		t.Fatalf("status: got %d; body: %s", rr.Code, rr.Body.String())
	}

	resp := decodeResponse(t, rr)
	if resp["name"] != "Chai" || resp["price"] != "12.00" || resp["isAvailable"] != false {
		t.Errorf("updated item: got %v", resp)
	}
	if store.lastUpdate.Name.Valid || store.lastUpdate.Category.Valid {
		t.Errorf("omitted fields should be unset: %+v", store.lastUpdate)
	}
}

func TestMenuUpdate_NotFound(t *testing.T) {
	r := setupMenuRouter(newMockMenuStore())

	rr := doRequest(t, r, "PUT", "/api/menu/"+uuid.New().String(), map[string]interface{}{"name": "X"}, tokenFor(t, "admin", "admin"))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusNotFound)
	}
	if resp := decodeResponse(t, rr); resp["error"] != "menu item not found" {
		t.Errorf("error: got %v", resp["error"])
	}
}

func TestMenuDelete(t *testing.T) {
	store := newMockMenuStore()
	item := store.add("Chai", "Beverages", "10", true)
	r := setupMenuRouter(store)
	token := tokenFor(t, "admin", "admin")

	rr := doRequest(t, r, "DELETE", "/api/menu/"+item.ID.String(), nil, token)
	if rr.Code != http.StatusNoContent {
		t.Fatalf("status: got %d, want %d", rr.Code, http.StatusNoContent)
	}

	rr = doRequest(t, r, "DELETE", "/api/menu/"+item.ID.String(), nil, token)
	if rr.Code != http.StatusNotFound {
		t.Errorf("second delete: got %d, want %d", rr.Code, http.StatusNotFound)
	}
}

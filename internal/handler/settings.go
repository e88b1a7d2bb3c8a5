package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/campus-canteen/api/internal/database"
	"github.com/campus-canteen/api/internal/enum"
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5"
)

// SettingsStore defines the database methods needed by settings handlers.
// Satisfied by *database.Queries.
type SettingsStore interface {
	GetSettings(ctx context.Context) (database.Setting, error)
	UpsertSettings(ctx context.Context, arg database.UpsertSettingsParams) (database.Setting, error)
}

// SettingsHandler serves the single canteen settings record.
type SettingsHandler struct {
	store      SettingsStore
	defaultUPI string
}

func NewSettingsHandler(store SettingsStore, defaultUPI string) *SettingsHandler {
	if defaultUPI == "" {
		defaultUPI = enum.DefaultUpiID
	}
	return &SettingsHandler{store: store, defaultUPI: defaultUPI}
}

// RegisterRoutes registers GET /api/settings.
func (h *SettingsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/", h.Get)
}

// RegisterAdminRoutes registers PUT /api/settings on an admin router.
func (h *SettingsHandler) RegisterAdminRoutes(r chi.Router) {
	r.Put("/", h.Update)
}

type updateSettingsRequest struct {
	CanteenName  *string `json:"canteenName" validate:"omitempty,min=1,max=100"`
	UpiID        *string `json:"upiId" validate:"omitempty,min=3,max=100"`
	UpiQrCode    *string `json:"upiQrCode" validate:"omitempty,max=2000"`
	ContactPhone *string `json:"contactPhone" validate:"omitempty,max=20"`
}

type settingsResponse struct {
	CanteenName  string `json:"canteenName"`
	UpiID        string `json:"upiId"`
	UpiQrCode    string `json:"upiQrCode"`
	ContactPhone string `json:"contactPhone"`
}

func toSettingsResponse(s database.Setting) settingsResponse {
	return settingsResponse{
		CanteenName:  s.CanteenName,
		UpiID:        s.UpiID,
		UpiQrCode:    s.UpiQrCode,
		ContactPhone: s.ContactPhone,
	}
}

// Get returns the settings, or the defaults when none are stored.
func (h *SettingsHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, err := h.store.GetSettings(r.Context())
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			writeJSON(w, http.StatusOK, settingsResponse{
				CanteenName: enum.DefaultCanteenName,
				UpiID:       h.defaultUPI,
			})
			return
		}
		writeInternal(w, r, "get settings", err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsResponse(s))
}

// Update merges the supplied fields into the settings record.
func (h *SettingsHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateSettingsRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}

	s, err := h.store.UpsertSettings(r.Context(), database.UpsertSettingsParams{
		CanteenName:  optionalText(req.CanteenName),
		UpiID:        optionalText(req.UpiID),
		UpiQrCode:    optionalText(req.UpiQrCode),
		ContactPhone: optionalText(req.ContactPhone),
	})
	if err != nil {
		writeInternal(w, r, "update settings", err)
		return
	}
	writeJSON(w, http.StatusOK, toSettingsResponse(s))
}

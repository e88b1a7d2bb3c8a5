package database

import (
	"context"

	"github.com/jackc/pgx/v5/pgtype"
)

const getSettings = `
SELECT id, canteen_name, upi_id, upi_qr_code, contact_phone, updated_at
FROM settings
WHERE id = 1
`

func (q *Queries) GetSettings(ctx context.Context) (Setting, error) {
	row := q.db.QueryRow(ctx, getSettings)
	var i Setting
	err := row.Scan(
		&i.ID,
		&i.CanteenName,
		&i.UpiID,
		&i.UpiQrCode,
		&i.ContactPhone,
		&i.UpdatedAt,
	)
	return i, err
}

const upsertSettings = `
INSERT INTO settings (id, canteen_name, upi_id, upi_qr_code, contact_phone)
VALUES (1, COALESCE($1, 'College Canteen'), COALESCE($2, 'canteen@oksbi'), COALESCE($3, ''), COALESCE($4, ''))
ON CONFLICT (id) DO UPDATE
SET canteen_name  = COALESCE($1, settings.canteen_name),
    upi_id        = COALESCE($2, settings.upi_id),
    upi_qr_code   = COALESCE($3, settings.upi_qr_code),
    contact_phone = COALESCE($4, settings.contact_phone),
    updated_at    = now()
RETURNING id, canteen_name, upi_id, upi_qr_code, contact_phone, updated_at
`

type UpsertSettingsParams struct {
	CanteenName  pgtype.Text `json:"canteen_name"`
	UpiID        pgtype.Text `json:"upi_id"`
	UpiQrCode    pgtype.Text `json:"upi_qr_code"`
	ContactPhone pgtype.Text `json:"contact_phone"`
}

func (q *Queries) UpsertSettings(ctx context.Context, arg UpsertSettingsParams) (Setting, error) {
	row := q.db.QueryRow(ctx, upsertSettings,
		arg.CanteenName,
		arg.UpiID,
		arg.UpiQrCode,
		arg.ContactPhone,
	)
	var i Setting
	err := row.Scan(
		&i.ID,
		&i.CanteenName,
		&i.UpiID,
		&i.UpiQrCode,
		&i.ContactPhone,
		&i.UpdatedAt,
	)
	return i, err
}

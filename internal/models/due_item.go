package models

import "time"

// DueItem is one row of the resolver query: a property whose rent is due
// (or whose contract expires) on the day being processed. Nullable columns
// map to pointers, same as the DB.
type DueItem struct {
	PropertyID   string     `db:"property_id"`
	PropertyName string     `db:"property_name"`
	ShortCode    *string    `db:"property_short_code"`
	TenantName   *string    `db:"tenant_name"`
	TenantPhone  *string    `db:"tenant_phone"` // E.164
	OwnerPhone   *string    `db:"owner_phone"`  // E.164
	RentAmount   *float64   `db:"rent_amount"`
	Currency     *string    `db:"currency"` // 3-letter code
	DueDate      time.Time  `db:"due_date"` // date only, UTC
}

// HasTenantContact reports whether the item carries enough data for a
// tenant-targeted message. Items without it are skipped, not failed.
func (d *DueItem) HasTenantContact() bool {
	return d.TenantName != nil && *d.TenantName != "" &&
		d.TenantPhone != nil && *d.TenantPhone != ""
}

// HasAmount reports whether both amount and currency are present (and the
// amount is non-zero); only then does the message carry an amount clause.
func (d *DueItem) HasAmount() bool {
	return d.RentAmount != nil && *d.RentAmount != 0 &&
		d.Currency != nil && *d.Currency != ""
}

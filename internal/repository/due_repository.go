package repository

import (
	"context"
	"fmt"
	"time"

	"rent_notifications/internal/models"
	"rent_notifications/internal/sms"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DueRepository is the recipient resolver: a thin adapter over the database
// functions that own all due-date logic. Rows come back already joined;
// the repository only maps them into DueItem and coerces phone numbers.
type DueRepository struct {
	db *pgxpool.Pool
	sb sq.StatementBuilderType
}

func NewDueRepository(db *pgxpool.Pool) *DueRepository {
	return &DueRepository{
		db: db,
		sb: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

const dueItemColumns = `property_id::text, property_name, property_short_code,
tenant_name, tenant_phone, owner_phone, rent_amount, currency, due_date`

// PropertiesDueToday returns every property whose rent is due today.
// The full set is assumed to fit in memory (tens to low hundreds of rows).
func (r *DueRepository) PropertiesDueToday(ctx context.Context) ([]models.DueItem, error) {
	rows, err := r.db.Query(ctx, `SELECT `+dueItemColumns+` FROM get_properties_due_today()`)
	if err != nil {
		return nil, fmt.Errorf("query properties due today: %w", err)
	}
	defer rows.Close()

	return scanDueItems(rows)
}

// ContractsExpiring returns properties whose lease contract ends within
// thresholdDays from today.
func (r *DueRepository) ContractsExpiring(ctx context.Context, thresholdDays int) ([]models.DueItem, error) {
	if thresholdDays <= 0 {
		return nil, fmt.Errorf("thresholdDays must be positive")
	}

	rows, err := r.db.Query(ctx, `SELECT `+dueItemColumns+` FROM get_contracts_expiring($1)`, thresholdDays)
	if err != nil {
		return nil, fmt.Errorf("query contracts expiring: %w", err)
	}
	defer rows.Close()

	return scanDueItems(rows)
}

// PropertiesDueOn returns unpaid properties with rent due on the given date,
// used by the e-mail reminder windows. Column names follow the dashboard's
// properties table.
func (r *DueRepository) PropertiesDueOn(ctx context.Context, date time.Time) ([]models.DueItem, error) {
	q := r.sb.
		Select(
			"id::text",
			"emertimi",
			"grupi",
			"emri_qiraxhiut",
			"tel_qiraxhiut",
			"NULL::text AS owner_phone",
			"qera_mujore",
			"monedha",
			"data_qirase",
		).
		From("properties").
		Where(sq.Eq{"data_qirase": date.UTC().Format("2006-01-02")}).
		Where(sq.Eq{"status": "Pa Paguar"}).
		OrderBy("emertimi ASC")

	sqlStr, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build properties due on sql: %w", err)
	}

	rows, err := r.db.Query(ctx, sqlStr, args...)
	if err != nil {
		return nil, fmt.Errorf("query properties due on %s: %w", date.Format("2006-01-02"), err)
	}
	defer rows.Close()

	return scanDueItems(rows)
}

func scanDueItems(rows pgx.Rows) ([]models.DueItem, error) {
	items := make([]models.DueItem, 0, 32)

	for rows.Next() {
		var it models.DueItem
		if err := rows.Scan(
			&it.PropertyID,
			&it.PropertyName,
			&it.ShortCode,
			&it.TenantName,
			&it.TenantPhone,
			&it.OwnerPhone,
			&it.RentAmount,
			&it.Currency,
			&it.DueDate,
		); err != nil {
			return nil, fmt.Errorf("scan due item: %w", err)
		}

		// Coerce phones at the boundary. A number that does not normalize
		// to E.164 counts as absent, which routes the item into the
		// insufficient-data skip path instead of a guaranteed send failure.
		it.TenantPhone = normalizePhone(it.TenantPhone)
		it.OwnerPhone = normalizePhone(it.OwnerPhone)

		items = append(items, it)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate due items: %w", err)
	}

	return items, nil
}

func normalizePhone(p *string) *string {
	if p == nil || *p == "" {
		return nil
	}
	n, err := sms.Normalize(*p)
	if err != nil {
		return nil
	}
	return &n
}

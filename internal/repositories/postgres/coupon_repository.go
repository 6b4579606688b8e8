package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"

	domain "github.com/hanko-field/storefront/internal/domain"
	"github.com/hanko-field/storefront/internal/repositories"
)

const couponColumns = `code, adjustment_kind, adjustment_value, min_purchase, starts_at, ends_at, active,
		usage_limit, used_count, applicable_categories, description, created_at, updated_at`

// CouponRepository implements repositories.CouponRepository on a coupons table. Usage counters
// rely on single conditional UPDATE statements so no explicit row locks are held.
type CouponRepository struct {
	db *sql.DB
}

var _ repositories.CouponRepository = (*CouponRepository)(nil)

// NewCouponRepository constructs a Postgres-backed coupon repository.
func NewCouponRepository(db *sql.DB) (*CouponRepository, error) {
	if db == nil {
		return nil, errors.New("coupon repository requires a database handle")
	}
	return &CouponRepository{db: db}, nil
}

func (r *CouponRepository) Insert(ctx context.Context, coupon domain.Coupon) error {
	row, err := encodeRow(coupon)
	if err != nil {
		return wrapError("coupons.insert", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO coupons (`+couponColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		row.args()...,
	)
	return wrapError("coupons.insert", err)
}

// Update never writes used_count, and the limit guard is evaluated against the stored count
// in the same statement.
func (r *CouponRepository) Update(ctx context.Context, coupon domain.Coupon) (domain.Coupon, error) {
	row, err := encodeRow(coupon)
	if err != nil {
		return domain.Coupon{}, wrapError("coupons.update", err)
	}
	updated, err := scanCoupon(r.db.QueryRowContext(ctx, `
		UPDATE coupons
		SET adjustment_kind = $2, adjustment_value = $3, min_purchase = $4, starts_at = $5,
		    ends_at = $6, active = $7, usage_limit = $8, applicable_categories = $9,
		    description = $10, updated_at = $11
		WHERE code = $1 AND ($8::bigint IS NULL OR used_count <= $8::bigint)
		RETURNING `+couponColumns,
		row.code, row.kind, row.value, row.minPurchase, row.startsAt, row.endsAt, row.active,
		row.usageLimit, row.categories, row.description, row.updatedAt,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Coupon{}, r.explainMiss(ctx, "coupons.update", coupon.Code,
			repositories.NewCouponUsageError("coupons.update", repositories.CouponUsageLimitBelowUsed, "usage limit is below the current used count"))
	}
	if err != nil {
		return domain.Coupon{}, wrapError("coupons.update", err)
	}
	return updated, nil
}

func (r *CouponRepository) Delete(ctx context.Context, code string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM coupons WHERE code = $1`, code)
	return r.requireRow("coupons.delete", code, res, err)
}

func (r *CouponRepository) FindByCode(ctx context.Context, code string) (domain.Coupon, error) {
	coupon, err := scanCoupon(r.db.QueryRowContext(ctx,
		`SELECT `+couponColumns+` FROM coupons WHERE code = $1`, code))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Coupon{}, notFound("coupons.get", code)
	}
	if err != nil {
		return domain.Coupon{}, wrapError("coupons.get", err)
	}
	return coupon, nil
}

func (r *CouponRepository) List(ctx context.Context, filter repositories.CouponListFilter) ([]domain.Coupon, error) {
	query := `SELECT ` + couponColumns + ` FROM coupons`
	if filter.ActiveOnly {
		query += ` WHERE active`
	}
	rows, err := r.db.QueryContext(ctx, query+` ORDER BY code`)
	if err != nil {
		return nil, wrapError("coupons.list", err)
	}
	defer rows.Close()

	var out []domain.Coupon
	for rows.Next() {
		coupon, err := scanCoupon(rows)
		if err != nil {
			return nil, wrapError("coupons.list", err)
		}
		out = append(out, coupon)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapError("coupons.list", err)
	}
	return out, nil
}

func (r *CouponRepository) IncrementUsage(ctx context.Context, code string, at time.Time) (domain.Coupon, error) {
	coupon, err := scanCoupon(r.db.QueryRowContext(ctx, `
		UPDATE coupons
		SET used_count = used_count + 1, updated_at = $2
		WHERE code = $1 AND (usage_limit IS NULL OR used_count < usage_limit)
		RETURNING `+couponColumns, code, at.UTC()))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Coupon{}, r.explainMiss(ctx, "coupons.increment_usage", code,
			repositories.NewCouponUsageError("coupons.increment_usage", repositories.CouponUsageLimitReached, "coupon usage limit reached"))
	}
	if err != nil {
		return domain.Coupon{}, wrapError("coupons.increment_usage", err)
	}
	return coupon, nil
}

func (r *CouponRepository) ReleaseUsage(ctx context.Context, code string, at time.Time) (domain.Coupon, error) {
	coupon, err := scanCoupon(r.db.QueryRowContext(ctx, `
		UPDATE coupons
		SET used_count = used_count - 1, updated_at = $2
		WHERE code = $1 AND used_count > 0
		RETURNING `+couponColumns, code, at.UTC()))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Coupon{}, r.explainMiss(ctx, "coupons.release_usage", code,
			repositories.NewCouponUsageError("coupons.release_usage", repositories.CouponUsageNotRedeemed, "coupon has no recorded usage"))
	}
	if err != nil {
		return domain.Coupon{}, wrapError("coupons.release_usage", err)
	}
	return coupon, nil
}

// explainMiss distinguishes a missing coupon from a guard that did not hold.
func (r *CouponRepository) explainMiss(ctx context.Context, op, code string, guardErr error) error {
	var exists bool
	if err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM coupons WHERE code = $1)`, code).Scan(&exists); err != nil {
		return wrapError(op, err)
	}
	if !exists {
		return notFound(op, code)
	}
	return guardErr
}

func (r *CouponRepository) requireRow(op, code string, res sql.Result, err error) error {
	if err != nil {
		return wrapError(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return wrapError(op, err)
	}
	if n == 0 {
		return notFound(op, code)
	}
	return nil
}

type couponRow struct {
	code        string
	kind        string
	value       int64
	minPurchase int64
	startsAt    sql.NullTime
	endsAt      sql.NullTime
	active      bool
	usageLimit  sql.NullInt64
	usedCount   int64
	categories  pq.StringArray
	description string
	createdAt   time.Time
	updatedAt   time.Time
}

func encodeRow(c domain.Coupon) (couponRow, error) {
	row := couponRow{
		code:        c.Code,
		minPurchase: c.MinPurchase,
		active:      c.Active,
		usedCount:   c.UsedCount,
		categories:  pq.StringArray(c.ApplicableCategories),
		description: c.Description,
		createdAt:   c.CreatedAt.UTC(),
		updatedAt:   c.UpdatedAt.UTC(),
	}
	if row.categories == nil {
		row.categories = pq.StringArray{}
	}
	switch a := c.Adjustment.(type) {
	case domain.Percentage:
		row.kind, row.value = string(domain.AdjustmentPercentage), a.BasisPoints
	case domain.Flat:
		row.kind, row.value = string(domain.AdjustmentFlat), a.Amount
	default:
		return couponRow{}, fmt.Errorf("coupon %s has no adjustment", c.Code)
	}
	if c.StartsAt != nil {
		row.startsAt = sql.NullTime{Time: c.StartsAt.UTC(), Valid: true}
	}
	if c.EndsAt != nil {
		row.endsAt = sql.NullTime{Time: c.EndsAt.UTC(), Valid: true}
	}
	if c.UsageLimit != nil {
		row.usageLimit = sql.NullInt64{Int64: *c.UsageLimit, Valid: true}
	}
	return row, nil
}

func (row couponRow) args() []any {
	return []any{
		row.code, row.kind, row.value, row.minPurchase, row.startsAt, row.endsAt, row.active,
		row.usageLimit, row.usedCount, row.categories, row.description, row.createdAt, row.updatedAt,
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCoupon(s scanner) (domain.Coupon, error) {
	var row couponRow
	if err := s.Scan(
		&row.code, &row.kind, &row.value, &row.minPurchase, &row.startsAt, &row.endsAt, &row.active,
		&row.usageLimit, &row.usedCount, &row.categories, &row.description, &row.createdAt, &row.updatedAt,
	); err != nil {
		return domain.Coupon{}, err
	}
	return row.decode()
}

func (row couponRow) decode() (domain.Coupon, error) {
	coupon := domain.Coupon{
		Code:        row.code,
		MinPurchase: row.minPurchase,
		Active:      row.active,
		UsedCount:   row.usedCount,
		Description: row.description,
		CreatedAt:   row.createdAt.UTC(),
		UpdatedAt:   row.updatedAt.UTC(),
	}
	switch domain.AdjustmentKind(strings.TrimSpace(row.kind)) {
	case domain.AdjustmentPercentage:
		coupon.Adjustment = domain.Percentage{BasisPoints: row.value}
	case domain.AdjustmentFlat:
		coupon.Adjustment = domain.Flat{Amount: row.value}
	default:
		return domain.Coupon{}, fmt.Errorf("coupon %s: unknown adjustment kind %q", row.code, row.kind)
	}
	if len(row.categories) > 0 {
		coupon.ApplicableCategories = []string(row.categories)
	}
	if row.startsAt.Valid {
		t := row.startsAt.Time.UTC()
		coupon.StartsAt = &t
	}
	if row.endsAt.Valid {
		t := row.endsAt.Time.UTC()
		coupon.EndsAt = &t
	}
	if row.usageLimit.Valid {
		limit := row.usageLimit.Int64
		coupon.UsageLimit = &limit
	}
	return coupon, nil
}

package dividend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/fiscalia/fiscalia/internal/audit"
	"github.com/fiscalia/fiscalia/internal/platform/db"
	"github.com/fiscalia/fiscalia/internal/platform/httpx"
)

var (
	ErrNotFound      = fmt.Errorf("dividend record %w", httpx.ErrNotFound)
	ErrAlreadyExists = fmt.Errorf("dividend record %w", httpx.ErrDuplicate)
)

// Repository persists dividend records.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, id uuid.UUID) (*Dividend, error)
	GetByKey(ctx context.Context, period int, instrument string, paymentDate time.Time, seq *int) (*Dividend, error)
	List(ctx context.Context, f ListFilters) ([]Dividend, int, error)
	Create(ctx context.Context, d Dividend) error
	Update(ctx context.Context, d Dividend) error
	Delete(ctx context.Context, id uuid.UUID) error
	Audit() audit.Recorder
}

type repository struct {
	db   audit.DBTX
	pool *pgxpool.Pool
}

// NewRepository returns the pgx-backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool, pool: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, Repository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &repository{db: tx, pool: r.pool})
	})
}

func (r *repository) Audit() audit.Recorder {
	return audit.NewWriter(r.db)
}

const selectColumns = `
	id, market_type, information_origin, commercial_period, instrument,
	payment_date, description, capital_event_seq, tax_treatment,
	update_factor::text, amount::text, historical_value::text, factors,
	created_by, created_at, updated_by, updated_at`

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*Dividend, error) {
	row := r.db.QueryRow(ctx, fmt.Sprintf("SELECT %s FROM dividend_records WHERE id = $1", selectColumns), id)
	return scanDividend(row)
}

// GetByKey matches the natural key. IS NOT DISTINCT FROM lets a NULL sequence
// match rows without one.
func (r *repository) GetByKey(ctx context.Context, period int, instrument string, paymentDate time.Time, seq *int) (*Dividend, error) {
	row := r.db.QueryRow(ctx, fmt.Sprintf(`
		SELECT %s FROM dividend_records
		WHERE commercial_period = $1 AND instrument = $2 AND payment_date = $3
		  AND capital_event_seq IS NOT DISTINCT FROM $4`, selectColumns),
		period, instrument, paymentDate, seqArg(seq))
	return scanDividend(row)
}

func (r *repository) List(ctx context.Context, f ListFilters) ([]Dividend, int, error) {
	var conditions []string
	var args []any
	argPos := 1

	add := func(cond string, val any) {
		conditions = append(conditions, fmt.Sprintf(cond, argPos))
		args = append(args, val)
		argPos++
	}

	if f.MarketType != "" {
		add("market_type = $%d", f.MarketType)
	}
	if f.InformationOrigin != "" {
		add("information_origin = $%d", f.InformationOrigin)
	}
	if f.CommercialPeriod != nil {
		add("commercial_period = $%d", *f.CommercialPeriod)
	}
	if f.Instrument != "" {
		add("instrument ILIKE $%d", "%"+f.Instrument+"%")
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + conditions[0]
		for i := 1; i < len(conditions); i++ {
			whereClause += " AND " + conditions[i]
		}
	}

	var total int
	if err := r.db.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM dividend_records %s", whereClause), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		SELECT %s FROM dividend_records %s
		ORDER BY commercial_period DESC, instrument, payment_date
		LIMIT $%d OFFSET $%d`, selectColumns, whereClause, argPos, argPos+1)
	args = append(args, f.PerPage, (f.Page-1)*f.PerPage)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var dividends []Dividend
	for rows.Next() {
		d, err := scanDividend(rows)
		if err != nil {
			return nil, 0, err
		}
		dividends = append(dividends, *d)
	}
	return dividends, total, rows.Err()
}

func (r *repository) Create(ctx context.Context, d Dividend) error {
	factors, err := marshalFactors(d.Factors)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, `
		INSERT INTO dividend_records (id, market_type, information_origin, commercial_period,
			instrument, payment_date, description, capital_event_seq, tax_treatment,
			update_factor, amount, historical_value, factors,
			created_by, created_at, updated_by, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		d.ID, string(d.MarketType), string(d.InformationOrigin), d.CommercialPeriod,
		d.Instrument, d.PaymentDate, d.Description, seqArg(d.CapitalEventSeq), string(d.TaxTreatment),
		decimalArg(d.UpdateFactor), d.Amount.String(), decimalArg(d.HistoricalValue), factors,
		d.CreatedBy, d.CreatedAt, d.UpdatedBy, d.UpdatedAt)
	if err != nil && isUniqueViolation(err) {
		return fmt.Errorf("%w: %s period %d", ErrAlreadyExists, d.Instrument, d.CommercialPeriod)
	}
	return err
}

func (r *repository) Update(ctx context.Context, d Dividend) error {
	factors, err := marshalFactors(d.Factors)
	if err != nil {
		return err
	}
	tag, err := r.db.Exec(ctx, `
		UPDATE dividend_records
		SET market_type = $2, information_origin = $3, description = $4, tax_treatment = $5,
		    update_factor = $6, amount = $7, historical_value = $8, factors = $9,
		    updated_by = $10, updated_at = $11
		WHERE id = $1`,
		d.ID, string(d.MarketType), string(d.InformationOrigin), d.Description, string(d.TaxTreatment),
		decimalArg(d.UpdateFactor), d.Amount.String(), decimalArg(d.HistoricalValue), factors,
		d.UpdatedBy, d.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, "DELETE FROM dividend_records WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func seqArg(seq *int) any {
	if seq == nil {
		return nil
	}
	return *seq
}

func decimalArg(d *decimal.Decimal) any {
	if d == nil {
		return nil
	}
	return d.String()
}

func marshalFactors(factors map[string]FactorEntry) ([]byte, error) {
	if factors == nil {
		factors = map[string]FactorEntry{}
	}
	data, err := json.Marshal(factors)
	if err != nil {
		return nil, fmt.Errorf("dividend: marshal factors: %w", err)
	}
	return data, nil
}

func scanDividend(row pgx.Row) (*Dividend, error) {
	var d Dividend
	var marketType, origin, treatment, amount string
	var seq pgtype.Int8
	var updateFactor, historical pgtype.Text
	var factors []byte
	var paymentDate pgtype.Date
	var createdAt, updatedAt pgtype.Timestamptz
	err := row.Scan(&d.ID, &marketType, &origin, &d.CommercialPeriod, &d.Instrument,
		&paymentDate, &d.Description, &seq, &treatment,
		&updateFactor, &amount, &historical, &factors,
		&d.CreatedBy, &createdAt, &d.UpdatedBy, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	d.MarketType = MarketType(marketType)
	d.InformationOrigin = InformationOrigin(origin)
	d.TaxTreatment = TaxTreatment(treatment)
	if paymentDate.Valid {
		d.PaymentDate = paymentDate.Time
	}
	if seq.Valid {
		v := int(seq.Int64)
		d.CapitalEventSeq = &v
	}
	if d.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("dividend: parse amount: %w", err)
	}
	if updateFactor.Valid {
		f, err := decimal.NewFromString(updateFactor.String)
		if err != nil {
			return nil, fmt.Errorf("dividend: parse update factor: %w", err)
		}
		d.UpdateFactor = &f
	}
	if historical.Valid {
		h, err := decimal.NewFromString(historical.String)
		if err != nil {
			return nil, fmt.Errorf("dividend: parse historical value: %w", err)
		}
		d.HistoricalValue = &h
	}
	if len(factors) > 0 {
		if err := json.Unmarshal(factors, &d.Factors); err != nil {
			return nil, fmt.Errorf("dividend: unmarshal factors: %w", err)
		}
	}
	if createdAt.Valid {
		d.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		d.UpdatedAt = updatedAt.Time
	}
	return &d, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

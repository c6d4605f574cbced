package taxgrade

import (
	"context"
	"errors"
	"fmt"

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
	ErrNotFound      = fmt.Errorf("tax grade %w", httpx.ErrNotFound)
	ErrAlreadyExists = fmt.Errorf("tax grade %w", httpx.ErrDuplicate)
)

// Repository persists tax grades. Audit returns a recorder bound to the same
// connection, so a mutation and its ledger entry share one transaction when
// called inside WithTx.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, Repository) error) error
	Get(ctx context.Context, id uuid.UUID) (*TaxGrade, error)
	GetByKey(ctx context.Context, taxpayerID string, fiscalYear int) (*TaxGrade, error)
	List(ctx context.Context, f ListFilters) ([]TaxGrade, int, error)
	ListByYear(ctx context.Context, year int, status Status) ([]TaxGrade, error)
	Create(ctx context.Context, g TaxGrade) error
	Update(ctx context.Context, g TaxGrade) error
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
	id, taxpayer_id, name, fiscal_year, source_type, origin,
	amount::text, factor::text, calculation_basis, status,
	created_by, created_at, updated_by, updated_at`

func (r *repository) Get(ctx context.Context, id uuid.UUID) (*TaxGrade, error) {
	row := r.db.QueryRow(ctx, fmt.Sprintf("SELECT %s FROM tax_grades WHERE id = $1", selectColumns), id)
	return scanTaxGrade(row)
}

func (r *repository) GetByKey(ctx context.Context, taxpayerID string, fiscalYear int) (*TaxGrade, error) {
	row := r.db.QueryRow(ctx,
		fmt.Sprintf("SELECT %s FROM tax_grades WHERE taxpayer_id = $1 AND fiscal_year = $2", selectColumns),
		taxpayerID, fiscalYear)
	return scanTaxGrade(row)
}

func (r *repository) List(ctx context.Context, f ListFilters) ([]TaxGrade, int, error) {
	var conditions []string
	var args []any
	argPos := 1

	add := func(cond string, val any) {
		conditions = append(conditions, fmt.Sprintf(cond, argPos))
		args = append(args, val)
		argPos++
	}

	if f.TaxpayerID != "" {
		add("taxpayer_id = $%d", f.TaxpayerID)
	}
	if f.FiscalYear != nil {
		add("fiscal_year = $%d", *f.FiscalYear)
	}
	if f.SourceType != "" {
		add("source_type = $%d", f.SourceType)
	}
	if f.Status != "" {
		add("status = $%d", f.Status)
	}
	if f.YearFrom != nil {
		add("fiscal_year >= $%d", *f.YearFrom)
	}
	if f.YearTo != nil {
		add("fiscal_year <= $%d", *f.YearTo)
	}
	if !f.DateFrom.IsZero() {
		add("created_at >= $%d", f.DateFrom)
	}
	if !f.DateTo.IsZero() {
		add("created_at <= $%d", f.DateTo)
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + conditions[0]
		for i := 1; i < len(conditions); i++ {
			whereClause += " AND " + conditions[i]
		}
	}

	var total int
	if err := r.db.QueryRow(ctx, fmt.Sprintf("SELECT COUNT(*) FROM tax_grades %s", whereClause), args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`SELECT %s FROM tax_grades %s ORDER BY fiscal_year DESC, taxpayer_id LIMIT $%d OFFSET $%d`,
		selectColumns, whereClause, argPos, argPos+1)
	args = append(args, f.PerPage, (f.Page-1)*f.PerPage)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var grades []TaxGrade
	for rows.Next() {
		g, err := scanTaxGrade(rows)
		if err != nil {
			return nil, 0, err
		}
		grades = append(grades, *g)
	}
	return grades, total, rows.Err()
}

func (r *repository) ListByYear(ctx context.Context, year int, status Status) ([]TaxGrade, error) {
	rows, err := r.db.Query(ctx,
		fmt.Sprintf("SELECT %s FROM tax_grades WHERE fiscal_year = $1 AND status = $2 ORDER BY taxpayer_id", selectColumns),
		year, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grades []TaxGrade
	for rows.Next() {
		g, err := scanTaxGrade(rows)
		if err != nil {
			return nil, err
		}
		grades = append(grades, *g)
	}
	return grades, rows.Err()
}

func (r *repository) Create(ctx context.Context, g TaxGrade) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO tax_grades (id, taxpayer_id, name, fiscal_year, source_type, origin,
			amount, factor, calculation_basis, status, created_by, created_at, updated_by, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		g.ID, g.TaxpayerID, g.Name, g.FiscalYear, string(g.SourceType), string(g.Origin),
		g.Amount.String(), factorArg(g.Factor), g.CalculationBasis, string(g.Status),
		g.CreatedBy, g.CreatedAt, g.UpdatedBy, g.UpdatedAt)
	if err != nil && isUniqueViolation(err) {
		return fmt.Errorf("%w: taxpayer %s year %d", ErrAlreadyExists, g.TaxpayerID, g.FiscalYear)
	}
	return err
}

func (r *repository) Update(ctx context.Context, g TaxGrade) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE tax_grades
		SET name = $2, source_type = $3, amount = $4, factor = $5,
		    calculation_basis = $6, status = $7, updated_by = $8, updated_at = $9
		WHERE id = $1`,
		g.ID, g.Name, string(g.SourceType), g.Amount.String(), factorArg(g.Factor),
		g.CalculationBasis, string(g.Status), g.UpdatedBy, g.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func factorArg(f *decimal.Decimal) any {
	if f == nil {
		return nil
	}
	return f.String()
}

func scanTaxGrade(row pgx.Row) (*TaxGrade, error) {
	var g TaxGrade
	var sourceType, origin, status, amount string
	var factor pgtype.Text
	var createdAt, updatedAt pgtype.Timestamptz
	err := row.Scan(&g.ID, &g.TaxpayerID, &g.Name, &g.FiscalYear, &sourceType, &origin,
		&amount, &factor, &g.CalculationBasis, &status,
		&g.CreatedBy, &createdAt, &g.UpdatedBy, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	g.SourceType = SourceType(sourceType)
	g.Origin = Origin(origin)
	g.Status = Status(status)
	if g.Amount, err = decimal.NewFromString(amount); err != nil {
		return nil, fmt.Errorf("taxgrade: parse amount: %w", err)
	}
	if factor.Valid {
		f, err := decimal.NewFromString(factor.String)
		if err != nil {
			return nil, fmt.Errorf("taxgrade: parse factor: %w", err)
		}
		g.Factor = &f
	}
	if createdAt.Valid {
		g.CreatedAt = createdAt.Time
	}
	if updatedAt.Valid {
		g.UpdatedAt = updatedAt.Time
	}
	return &g, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

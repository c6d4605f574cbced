package audit

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
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx so that callers can
// record audit entries inside the same transaction as the mutation they
// describe.
type DBTX interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Writer appends entries to audit_logs.
type Writer struct {
	db DBTX
}

// NewWriter returns a Writer bound to the given connection or transaction.
func NewWriter(db DBTX) *Writer {
	return &Writer{db: db}
}

// Record persists the ledger entry.
func (w *Writer) Record(ctx context.Context, e Entry) error {
	if w == nil || w.db == nil {
		return errors.New("audit: writer not initialised")
	}
	if e.Action == "" || e.Entity == "" || e.EntityID == "" {
		return errors.New("audit: entry requires action/entity/entity_id")
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	before, err := marshalSnapshot(e.Before)
	if err != nil {
		return fmt.Errorf("audit: marshal before: %w", err)
	}
	after, err := marshalSnapshot(e.After)
	if err != nil {
		return fmt.Errorf("audit: marshal after: %w", err)
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	_, err = w.db.Exec(ctx, `
		INSERT INTO audit_logs (id, actor_id, entity, entity_id, action, before, after, ip_address, user_agent, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		e.ID, e.ActorID, e.Entity, e.EntityID, string(e.Action), before, after, e.IPAddress, e.UserAgent, e.At)
	return err
}

func marshalSnapshot(m map[string]any) ([]byte, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Repository reads the ledger.
type Repository interface {
	List(ctx context.Context, f Filters) ([]Entry, int, error)
}

type repository struct {
	db DBTX
}

// NewRepository returns the pgx-backed read side of the ledger.
func NewRepository(db DBTX) Repository {
	return &repository{db: db}
}

func (r *repository) List(ctx context.Context, f Filters) ([]Entry, int, error) {
	var conditions []string
	var args []any
	argPos := 1

	add := func(cond string, val any) {
		conditions = append(conditions, fmt.Sprintf(cond, argPos))
		args = append(args, val)
		argPos++
	}

	if f.Entity != "" {
		add("entity = $%d", f.Entity)
	}
	if f.EntityID != "" {
		add("entity_id = $%d", f.EntityID)
	}
	if f.Action != "" {
		add("action = $%d", f.Action)
	}
	if f.ActorID != "" {
		add("actor_id = $%d", f.ActorID)
	}
	if !f.From.IsZero() {
		add("occurred_at >= $%d", f.From)
	}
	if !f.To.IsZero() {
		add("occurred_at <= $%d", f.To)
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + conditions[0]
		for i := 1; i < len(conditions); i++ {
			whereClause += " AND " + conditions[i]
		}
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) FROM audit_logs %s", whereClause)
	var total int
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := fmt.Sprintf(`
		SELECT id, actor_id, entity, entity_id, action, before, after, ip_address, user_agent, occurred_at
		FROM audit_logs
		%s
		ORDER BY occurred_at DESC
		LIMIT $%d OFFSET $%d
	`, whereClause, argPos, argPos+1)
	args = append(args, f.PerPage, (f.Page-1)*f.PerPage)

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var action string
		var before, after []byte
		var ip, agent pgtype.Text
		var at pgtype.Timestamptz
		if err := rows.Scan(&e.ID, &e.ActorID, &e.Entity, &e.EntityID, &action, &before, &after, &ip, &agent, &at); err != nil {
			return nil, 0, err
		}
		e.Action = Action(action)
		if len(before) > 0 {
			if err := json.Unmarshal(before, &e.Before); err != nil {
				return nil, 0, fmt.Errorf("audit: unmarshal before: %w", err)
			}
		}
		if len(after) > 0 {
			if err := json.Unmarshal(after, &e.After); err != nil {
				return nil, 0, fmt.Errorf("audit: unmarshal after: %w", err)
			}
		}
		if ip.Valid {
			e.IPAddress = ip.String
		}
		if agent.Valid {
			e.UserAgent = agent.String
		}
		if at.Valid {
			e.At = at.Time
		}
		entries = append(entries, e)
	}

	return entries, total, rows.Err()
}

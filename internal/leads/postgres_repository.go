package leads

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const leadColumns = `id, name, email, phone, case_type, county, urgency, how_found, how_found_detail,
		message, lead_source, checkpoint_id, status, ip_address, user_agent, created_at, updated_at`

// PostgresRepository stores leads in the relational database.
type PostgresRepository struct {
	pool pgxQuerier
}

// NewPostgresRepository initializes a repo backed by a pgx pool.
func NewPostgresRepository(pool pgxQuerier) *PostgresRepository {
	if pool == nil {
		panic("leads: pgx pool required")
	}
	return &PostgresRepository{pool: pool}
}

// Create inserts a new row.
func (r *PostgresRepository) Create(ctx context.Context, req *CreateLeadRequest) (*Lead, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	lead := req.toLead(uuid.New().String(), time.Time{})
	query := `
		INSERT INTO leads (id, name, email, phone, case_type, county, urgency, how_found, how_found_detail,
			message, lead_source, checkpoint_id, status, ip_address, user_agent)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at, updated_at
	`
	if err := r.pool.QueryRow(ctx, query,
		lead.ID,
		lead.Name,
		lead.Email,
		lead.Phone,
		lead.CaseType,
		lead.County,
		lead.Urgency,
		lead.HowFound,
		lead.HowFoundDetail,
		lead.Message,
		lead.LeadSource,
		lead.CheckpointID,
		string(lead.Status),
		lead.IPAddress,
		lead.UserAgent,
	).Scan(&lead.CreatedAt, &lead.UpdatedAt); err != nil {
		return nil, fmt.Errorf("leads: insert failed: %w", err)
	}
	return lead, nil
}

// GetByID fetches a single lead.
func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*Lead, error) {
	query := `SELECT ` + leadColumns + ` FROM leads WHERE id = $1`
	lead, err := scanLead(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: select failed: %w", err)
	}
	return lead, nil
}

// List returns leads newest first.
func (r *PostgresRepository) List(ctx context.Context, filter ListFilter) ([]*Lead, error) {
	filter = filter.normalized()

	var (
		where []string
		args  []any
	)
	if filter.LeadSource != "" {
		args = append(args, filter.LeadSource)
		where = append(where, fmt.Sprintf("lead_source = $%d", len(args)))
	}
	if filter.CaseType != "" {
		args = append(args, filter.CaseType)
		where = append(where, fmt.Sprintf("case_type = $%d", len(args)))
	}
	query := `SELECT ` + leadColumns + ` FROM leads`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, filter.Limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("leads: list failed: %w", err)
	}
	defer rows.Close()

	out := []*Lead{}
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("leads: scan failed: %w", err)
		}
		out = append(out, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("leads: list failed: %w", err)
	}
	return out, nil
}

// UpdateStatus moves a lead to a new follow-up status.
func (r *PostgresRepository) UpdateStatus(ctx context.Context, id string, status Status) (*Lead, error) {
	if !status.Valid() {
		return nil, ErrInvalidStatus
	}
	query := `UPDATE leads SET status = $2, updated_at = NOW() WHERE id = $1 RETURNING ` + leadColumns
	lead, err := scanLead(r.pool.QueryRow(ctx, query, id, string(status)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("leads: update status failed: %w", err)
	}
	return lead, nil
}

func scanLead(row pgx.Row) (*Lead, error) {
	var (
		lead   Lead
		status string
	)
	if err := row.Scan(
		&lead.ID,
		&lead.Name,
		&lead.Email,
		&lead.Phone,
		&lead.CaseType,
		&lead.County,
		&lead.Urgency,
		&lead.HowFound,
		&lead.HowFoundDetail,
		&lead.Message,
		&lead.LeadSource,
		&lead.CheckpointID,
		&status,
		&lead.IPAddress,
		&lead.UserAgent,
		&lead.CreatedAt,
		&lead.UpdatedAt,
	); err != nil {
		return nil, err
	}
	lead.Status = Status(status)
	return &lead, nil
}

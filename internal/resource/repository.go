package resource

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const selectColumns = `id, kind, name, location, requires_approval, quantity, status, created_at, updated_at`

type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func (r *Repository) Get(ctx context.Context, ref Ref) (*Resource, error) {
	const q = `SELECT ` + selectColumns + ` FROM resources WHERE kind = $1 AND id = $2`
	return scanOne(r.db.QueryRow(ctx, q, string(ref.Kind), ref.ID))
}

func (r *Repository) List(ctx context.Context, kind Kind) ([]Resource, error) {
	q := `SELECT ` + selectColumns + ` FROM resources`
	var args []any
	if kind != "" {
		q += ` WHERE kind = $1`
		args = append(args, string(kind))
	}
	q += ` ORDER BY kind, name, id`

	rows, err := r.db.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Resource
	for rows.Next() {
		var res Resource
		if err := rows.Scan(
			&res.ID, &res.Kind, &res.Name, &res.Location, &res.RequiresApproval, &res.Quantity, &res.Status,
			&res.CreatedAt, &res.UpdatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, res)
	}
	return out, rows.Err()
}

// Upsert writes a catalog entry. Administrative CRUD lives elsewhere; this is
// used by dev tooling to stand up resources.
func (r *Repository) Upsert(ctx context.Context, res Resource) (*Resource, error) {
	if res.Status == "" {
		res.Status = StatusAvailable
	}
	if res.Quantity < 1 {
		res.Quantity = 1
	}
	const q = `
INSERT INTO resources (id, kind, name, location, requires_approval, quantity, status)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (id) DO UPDATE SET
  name = EXCLUDED.name,
  location = EXCLUDED.location,
  requires_approval = EXCLUDED.requires_approval,
  quantity = EXCLUDED.quantity,
  status = EXCLUDED.status,
  updated_at = NOW()
RETURNING ` + selectColumns
	return scanOne(r.db.QueryRow(ctx, q,
		res.ID, string(res.Kind), res.Name, res.Location, res.RequiresApproval, res.Quantity, string(res.Status),
	))
}

// GetForUpdate loads the resource row and locks it until tx ends. Every
// admission for the same resource queues behind this lock.
func GetForUpdate(ctx context.Context, tx pgx.Tx, ref Ref) (*Resource, error) {
	const q = `SELECT ` + selectColumns + ` FROM resources WHERE kind = $1 AND id = $2 FOR UPDATE`
	return scanOne(tx.QueryRow(ctx, q, string(ref.Kind), ref.ID))
}

func scanOne(row pgx.Row) (*Resource, error) {
	var res Resource
	if err := row.Scan(
		&res.ID, &res.Kind, &res.Name, &res.Location, &res.RequiresApproval, &res.Quantity, &res.Status,
		&res.CreatedAt, &res.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &res, nil
}

package repository

import (
	"context"
	"errors"
	"fmt"

	"trash2action-backend/internal/model"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const identityColumns = `id, display_name, role, account_type, email, avatar, approved, created_at`

// IdentityRepository reads the identities mirrored from the auth subsystem.
type IdentityRepository struct {
	pool *pgxpool.Pool
}

func NewIdentityRepository(pool *pgxpool.Pool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

func scanIdentity(row pgx.Row) (*model.Identity, error) {
	i := &model.Identity{}
	err := row.Scan(&i.ID, &i.DisplayName, &i.Role, &i.AccountType, &i.Email, &i.Avatar, &i.Approved, &i.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, model.ErrNotFound
		}
		return nil, err
	}
	return i, nil
}

func (r *IdentityRepository) Lookup(ctx context.Context, id string) (*model.Identity, error) {
	return scanIdentity(r.pool.QueryRow(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE id = $1`, id))
}

// LookupMany resolves ids in one round trip. Unknown ids are absent from the result.
func (r *IdentityRepository) LookupMany(ctx context.Context, ids []string) (map[string]*model.Identity, error) {
	out := make(map[string]*model.Identity, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+identityColumns+` FROM identities WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, fmt.Errorf("query identities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		i, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan identity: %w", err)
		}
		out[i.ID] = i
	}
	return out, rows.Err()
}

func (r *IdentityRepository) ListAdmins(ctx context.Context) ([]model.Identity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+identityColumns+`
		FROM identities
		WHERE role = $1 AND account_type = $2 AND approved
		ORDER BY id
	`, model.RoleResponder, model.AccountAdmin)
	if err != nil {
		return nil, fmt.Errorf("query admins: %w", err)
	}
	defer rows.Close()

	var admins []model.Identity
	for rows.Next() {
		i, err := scanIdentity(rows)
		if err != nil {
			return nil, fmt.Errorf("scan admin: %w", err)
		}
		admins = append(admins, *i)
	}
	return admins, rows.Err()
}

// Upsert mirrors one identity, used when seeding a database from YAML.
func (r *IdentityRepository) Upsert(ctx context.Context, i model.Identity) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO identities (id, display_name, role, account_type, email, avatar, approved)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			role = EXCLUDED.role,
			account_type = EXCLUDED.account_type,
			email = EXCLUDED.email,
			avatar = EXCLUDED.avatar,
			approved = EXCLUDED.approved
	`, i.ID, i.DisplayName, i.Role, i.AccountType, i.Email, i.Avatar, i.Approved)
	if err != nil {
		return fmt.Errorf("upsert identity %s: %w", i.ID, err)
	}
	return nil
}

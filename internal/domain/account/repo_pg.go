package account

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/therapy/clinic/internal/platform/apperr"
	"github.com/therapy/clinic/internal/platform/db"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) db.Querier {
	return db.Conn(ctx, r.pool)
}

const accountCols = `id, username, email, password_hash, mobile_no, address, role, created_at, updated_at`

func scanAccount(row pgx.Row) (*Account, error) {
	var a Account
	err := row.Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &a.MobileNo, &a.Address, &a.Role, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *repoPG) Create(ctx context.Context, a *Account) error {
	a.ID = uuid.New()
	now := time.Now().UTC()
	a.CreatedAt, a.UpdatedAt = now, now
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO accounts (id, username, email, password_hash, mobile_no, address, role, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		a.ID, a.Username, a.Email, a.PasswordHash, a.MobileNo, a.Address, a.Role, a.CreatedAt, a.UpdatedAt,
	)
	return apperr.FromPG("create", "account", err)
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	a, err := scanAccount(r.conn(ctx).QueryRow(ctx, `SELECT `+accountCols+` FROM accounts WHERE id = $1`, id))
	if err != nil {
		return nil, apperr.FromPG("get", "account", err)
	}
	return a, nil
}

func (r *repoPG) GetByUsername(ctx context.Context, username string) (*Account, error) {
	a, err := scanAccount(r.conn(ctx).QueryRow(ctx, `SELECT `+accountCols+` FROM accounts WHERE username = $1`, username))
	if err != nil {
		return nil, apperr.FromPG("get", "account", err)
	}
	return a, nil
}

func (r *repoPG) Update(ctx context.Context, a *Account) error {
	a.UpdatedAt = time.Now().UTC()
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE accounts SET email=$2, password_hash=$3, mobile_no=$4, address=$5, role=$6, updated_at=$7
		WHERE id = $1`,
		a.ID, a.Email, a.PasswordHash, a.MobileNo, a.Address, a.Role, a.UpdatedAt,
	)
	if err != nil {
		return apperr.FromPG("update", "account", err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFoundf("update", "account", "no account %s", a.ID)
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, limit, offset int) ([]*Account, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM accounts`).Scan(&total); err != nil {
		return nil, 0, apperr.FromPG("list", "account", err)
	}

	rows, err := r.conn(ctx).Query(ctx, `SELECT `+accountCols+` FROM accounts ORDER BY username LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, 0, apperr.FromPG("list", "account", err)
	}
	defer rows.Close()

	var items []*Account
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, 0, apperr.FromPG("list", "account", err)
		}
		items = append(items, a)
	}
	return items, total, apperr.FromPG("list", "account", rows.Err())
}

package session

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	pkgerrors "github.com/pkg/errors"
)

var ErrUserNotFound = errors.New("user not found")

type User struct {
	ID                int64
	PhoneNumber       string
	State             State
	Name              string
	Address           string
	Email             string
	LastShownProducts []string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// UserStore is what the state machine needs from user persistence.
type UserStore interface {
	GetByPhone(ctx context.Context, phone string) (*User, error)
	Create(ctx context.Context, phone string, state State) (*User, error)
	SetState(ctx context.Context, userID int64, state State) error
	// SetCatalogSnapshot persists the state and the shown-title snapshot in
	// one write; numeric selections index into exactly this snapshot.
	SetCatalogSnapshot(ctx context.Context, userID int64, state State, titles []string) error
	UpdateCustomerInfo(ctx context.Context, phone string, name, address *string) error
	SetEmailIfEmpty(ctx context.Context, phone, email string) error
}

type UserRepo struct {
	DB *pgxpool.Pool
}

var _ UserStore = (*UserRepo)(nil)

const selectUser = `SELECT id, phone_number, state, name, address, email, last_shown_products, created_at, updated_at
                    FROM users`

func (r *UserRepo) GetByPhone(ctx context.Context, phone string) (*User, error) {
	row := r.DB.QueryRow(ctx, selectUser+` WHERE phone_number = $1`, phone)
	return scanUser(row)
}

func (r *UserRepo) Create(ctx context.Context, phone string, state State) (*User, error) {
	row := r.DB.QueryRow(ctx, `INSERT INTO users (phone_number, state)
	                           VALUES ($1, $2)
	                           RETURNING id, phone_number, state, name, address, email, last_shown_products, created_at, updated_at`,
		phone, string(state))
	return scanUser(row)
}

func (r *UserRepo) SetState(ctx context.Context, userID int64, state State) error {
	_, err := r.DB.Exec(ctx, `UPDATE users SET state = $2, updated_at = now() WHERE id = $1`, userID, string(state))
	return pkgerrors.Wrap(err, "set state")
}

func (r *UserRepo) SetCatalogSnapshot(ctx context.Context, userID int64, state State, titles []string) error {
	b, err := json.Marshal(titles)
	if err != nil {
		return pkgerrors.Wrap(err, "marshal snapshot")
	}
	_, err = r.DB.Exec(ctx, `UPDATE users SET state = $2, last_shown_products = $3, updated_at = now()
	                         WHERE id = $1`, userID, string(state), b)
	return pkgerrors.Wrap(err, "set catalog snapshot")
}

func (r *UserRepo) UpdateCustomerInfo(ctx context.Context, phone string, name, address *string) error {
	if name == nil && address == nil {
		return nil
	}
	_, err := r.DB.Exec(ctx, `UPDATE users
	                          SET name = COALESCE($2, name), address = COALESCE($3, address), updated_at = now()
	                          WHERE phone_number = $1`, phone, name, address)
	return pkgerrors.Wrap(err, "update customer info")
}

func (r *UserRepo) SetEmailIfEmpty(ctx context.Context, phone, email string) error {
	_, err := r.DB.Exec(ctx, `UPDATE users SET email = $2, updated_at = now()
	                          WHERE phone_number = $1 AND email = ''`, phone, email)
	return pkgerrors.Wrap(err, "set email")
}

func scanUser(row pgx.Row) (*User, error) {
	var u User
	var state string
	var shown []byte
	err := row.Scan(&u.ID, &u.PhoneNumber, &state, &u.Name, &u.Address, &u.Email, &shown, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, pkgerrors.Wrap(err, "scan user")
	}
	u.State = State(state)
	if len(shown) > 0 {
		if err := json.Unmarshal(shown, &u.LastShownProducts); err != nil {
			return nil, pkgerrors.Wrap(err, "decode snapshot")
		}
	}
	return &u, nil
}

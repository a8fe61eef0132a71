package resource

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"

	"github.com/pulsar-labs/pulse/internal/cache"
	"github.com/pulsar-labs/pulse/internal/domain"
)

type userAdapter struct{}

func (userAdapter) Kind() string        { return "users" }
func (userAdapter) EventPrefix() string { return "user" }
func (userAdapter) Table() string       { return "users" }

func (userAdapter) Columns() []string {
	return []string{
		"id", "email", "name", "provider", "provider_user_id",
		"role", "active", "created_at", "updated_at",
	}
}

func (userAdapter) ValidateInput(in *domain.UserInput) error {
	return in.Validate()
}

func (userAdapter) ValidateUpdate(up *domain.UserUpdate) error {
	return up.Validate()
}

func (userAdapter) InsertColumns(in *domain.UserInput) ([]string, []any) {
	role := in.Role
	if role == "" {
		role = "user"
	}
	return []string{"email", "name", "provider", "provider_user_id", "role", "active"},
		[]any{in.Email, in.Name, in.Provider, in.ProviderUserID, role, true}
}

func (userAdapter) UpdateColumns(up *domain.UserUpdate) ([]string, []any) {
	var cols []string
	var vals []any
	if up.Email != nil {
		cols = append(cols, "email")
		vals = append(vals, *up.Email)
	}
	if up.Name != nil {
		cols = append(cols, "name")
		vals = append(vals, *up.Name)
	}
	if up.Role != nil {
		cols = append(cols, "role")
		vals = append(vals, *up.Role)
	}
	if up.Active != nil {
		cols = append(cols, "active")
		vals = append(vals, *up.Active)
	}
	return cols, vals
}

func (userAdapter) Scan(rs RowScanner) (*domain.User, error) {
	var u domain.User
	err := rs.Scan(
		&u.ID, &u.Email, &u.Name, &u.Provider, &u.ProviderUserID,
		&u.Role, &u.Active, &u.CreatedAt, &u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (userAdapter) Project(u *domain.User) *domain.UserOutput {
	return &domain.UserOutput{
		ID:        u.ID,
		Email:     u.Email,
		Name:      u.Name,
		Provider:  u.Provider,
		Role:      u.Role,
		Active:    u.Active,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

func (userAdapter) ID(u *domain.User) int64 { return u.ID }

// UserService wraps the engine with user-specific lookups.
type UserService struct {
	*Engine[domain.User, domain.UserInput, domain.UserUpdate, domain.UserOutput]
	db PgxPool
}

func NewUserService(db PgxPool, channel Broadcaster, events EventEmitter, c *cache.Cache, logger *slog.Logger) *UserService {
	return &UserService{
		Engine: NewEngine[domain.User, domain.UserInput, domain.UserUpdate, domain.UserOutput](
			userAdapter{}, db, channel, events, c, logger,
		),
		db: db,
	}
}

func (s *UserService) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `
		SELECT id, email, name, provider, provider_user_id, role, active, created_at, updated_at
		FROM users
		WHERE email = $1
	`

	row := s.db.QueryRow(ctx, query, email)
	u, err := userAdapter{}.Scan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	return u, nil
}

func (s *UserService) GetByProvider(ctx context.Context, provider, providerUserID string) (*domain.User, error) {
	query := `
		SELECT id, email, name, provider, provider_user_id, role, active, created_at, updated_at
		FROM users
		WHERE provider = $1 AND provider_user_id = $2
	`

	row := s.db.QueryRow(ctx, query, provider, providerUserID)
	u, err := userAdapter{}.Scan(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get user by provider: %w", err)
	}
	return u, nil
}

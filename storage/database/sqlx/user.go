package sqlxrepos

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/ada/core"
	"github.com/trezcool/ada/core/user"
	"github.com/trezcool/ada/storage/database"
)

const userColumns = "id, name, username, email, is_active, roles, password_hash, created_at, updated_at, last_login FROM users"

type userRow struct {
	ID           int64       `db:"id"`
	Name         string      `db:"name"`
	Username     string      `db:"username"`
	Email        null.String `db:"email"`
	IsActive     bool        `db:"is_active"`
	Roles        string      `db:"roles"` // comma separated
	PasswordHash []byte      `db:"password_hash"`
	CreatedAt    time.Time   `db:"created_at"`
	UpdatedAt    time.Time   `db:"updated_at"`
	LastLogin    null.Time   `db:"last_login"`
}

func (row userRow) unboil() user.User {
	var roles []string
	if row.Roles != "" {
		roles = strings.Split(row.Roles, ",")
	}
	return user.User{
		ID:           row.ID,
		Name:         row.Name,
		Username:     row.Username,
		Email:        row.Email.String,
		IsActive:     row.IsActive,
		Roles:        roles,
		PasswordHash: row.PasswordHash,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
		LastLogin:    row.LastLogin.Time.UTC(),
	}
}

type userRepository struct {
	base
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(exec core.DBExecutor) *userRepository {
	return &userRepository{base{exec: exec}}
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	id, err := insertReturningID(ctx, repo.getExec(exec),
		`INSERT INTO users (name, username, email, is_active, roles, password_hash, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?) RETURNING id`,
		usr.Name, usr.Username, null.NewString(usr.Email, usr.Email != ""), usr.IsActive,
		strings.Join(usr.Roles, ","), usr.PasswordHash, usr.CreatedAt.UTC(), usr.UpdatedAt.UTC(),
	)
	if err != nil {
		if database.IsUniqueViolation(err, "username") {
			return user.User{}, user.ErrUsernameExists
		}
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	usr.ID = id
	return usr, nil
}

func (repo userRepository) GetUserByID(ctx context.Context, id int64, exec ...core.DBExecutor) (user.User, error) {
	var row userRow
	if err := get(ctx, repo.getExec(exec), user.ErrNotFound, &row, "SELECT "+userColumns+" WHERE id = ?", id); err != nil {
		return user.User{}, errors.Wrap(err, "getting user by ID")
	}
	return row.unboil(), nil
}

func (repo userRepository) GetUserByUsername(ctx context.Context, username string, exec ...core.DBExecutor) (user.User, error) {
	var row userRow
	if err := get(ctx, repo.getExec(exec), user.ErrNotFound, &row, "SELECT "+userColumns+" WHERE username = ?", username); err != nil {
		return user.User{}, errors.Wrap(err, "getting user by username")
	}
	return row.unboil(), nil
}

func (repo userRepository) QueryUsers(ctx context.Context, exec ...core.DBExecutor) ([]user.User, error) {
	var rows []userRow
	if err := selectAll(ctx, repo.getExec(exec), &rows, "SELECT "+userColumns+" ORDER BY username"); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, row.unboil())
	}
	return users, nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User, exec ...core.DBExecutor) (user.User, error) {
	n, err := execRowsAffected(ctx, repo.getExec(exec),
		`UPDATE users SET name = ?, username = ?, email = ?, is_active = ?, roles = ?, password_hash = ?, updated_at = ?, last_login = ?
		WHERE id = ?`,
		usr.Name, usr.Username, null.NewString(usr.Email, usr.Email != ""), usr.IsActive, strings.Join(usr.Roles, ","),
		usr.PasswordHash, usr.UpdatedAt.UTC(), null.NewTime(usr.LastLogin.UTC(), !usr.LastLogin.IsZero()), usr.ID,
	)
	if err != nil {
		if database.IsUniqueViolation(err, "username") {
			return user.User{}, user.ErrUsernameExists
		}
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return usr, nil
}

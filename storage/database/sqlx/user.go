package sqlxrepos

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/pixelforegllc/quantummftools-dash/core"
	"github.com/pixelforegllc/quantummftools-dash/core/user"
)

const userColumns = "id, username, email, password_hash, role, ad_username, is_active, permissions, last_login, created_at, updated_at"

type userRow struct {
	ID           string              `db:"id"`
	Username     string              `db:"username"`
	Email        string              `db:"email"`
	PasswordHash string              `db:"password_hash"`
	Role         string              `db:"role"`
	ADUsername   null.String         `db:"ad_username"`
	IsActive     bool                `db:"is_active"`
	Permissions  jsonValue[[]string] `db:"permissions"`
	LastLogin    null.Time           `db:"last_login"`
	CreatedAt    time.Time           `db:"created_at"`
	UpdatedAt    time.Time           `db:"updated_at"`
}

type userRepository struct {
	db *sqlx.DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *sqlx.DB) *userRepository {
	return &userRepository{db: db}
}

func (repo userRepository) toRow(usr user.User) userRow {
	perms := usr.Permissions
	if perms == nil {
		perms = []string{}
	}
	return userRow{
		ID:           usr.ID,
		Username:     usr.Username,
		Email:        usr.Email,
		PasswordHash: string(usr.PasswordHash),
		Role:         usr.Role,
		ADUsername:   null.NewString(usr.ADUsername, usr.ADUsername != ""),
		IsActive:     usr.IsActive,
		Permissions:  jsonValue[[]string]{perms},
		LastLogin:    nullTime(usr.LastLogin),
		CreatedAt:    usr.CreatedAt.UTC(),
		UpdatedAt:    usr.UpdatedAt.UTC(),
	}
}

func (repo userRepository) fromRow(row userRow) user.User {
	usr := user.User{
		ID:           row.ID,
		Username:     row.Username,
		Email:        row.Email,
		PasswordHash: []byte(row.PasswordHash),
		Role:         row.Role,
		ADUsername:   row.ADUsername.String,
		IsActive:     row.IsActive,
		Permissions:  row.Permissions.V,
		CreatedAt:    row.CreatedAt.UTC(),
		UpdatedAt:    row.UpdatedAt.UTC(),
	}
	if usr.Permissions == nil {
		usr.Permissions = []string{}
	}
	if row.LastLogin.Valid {
		t := row.LastLogin.Time.UTC()
		usr.LastLogin = &t
	}
	return usr
}

func (repo userRepository) CheckUniqueness(ctx context.Context, username, email string, excludedUsers ...user.User) error {
	q := "SELECT username, email FROM users WHERE (username = ? OR email = ?)"
	args := []interface{}{username, email}
	if len(excludedUsers) > 0 {
		ids := make([]string, 0, len(excludedUsers))
		for _, u := range excludedUsers {
			ids = append(ids, u.ID)
		}
		q += " AND id NOT IN (?)"
		args = append(args, ids)
	}

	q, args, err := sqlx.In(q, args...)
	if err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}
	var found []struct {
		Username string `db:"username"`
		Email    string `db:"email"`
	}
	if err = repo.db.SelectContext(ctx, &found, repo.db.Rebind(q), args...); err != nil {
		return errors.Wrap(err, "checking user uniqueness")
	}
	for _, u := range found {
		if u.Username == username {
			return user.ErrUsernameExists
		}
	}
	if len(found) > 0 {
		return user.ErrEmailExists
	}
	return nil
}

func (repo userRepository) CreateUser(ctx context.Context, usr user.User) (user.User, error) {
	if usr.ID == "" {
		usr.ID = uuid.NewString()
	}
	q := `INSERT INTO users (` + userColumns + `) VALUES
		(:id, :username, :email, :password_hash, :role, :ad_username, :is_active, :permissions, :last_login, :created_at, :updated_at)`
	if _, err := repo.db.NamedExecContext(ctx, q, repo.toRow(usr)); err != nil {
		return user.User{}, errors.Wrap(err, "inserting user")
	}
	return repo.GetUser(ctx, user.GetFilter{ID: usr.ID})
}

func (repo userRepository) QueryUsers(ctx context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	var w where
	if filter != nil {
		// users with Username or Email matching the search keyword
		if filter.Search != "" {
			val := likePattern(filter.Search)
			w.add(fmt.Sprintf("("+likeExpr+" OR "+likeExpr+")", "username", "email"), val, val)
		}
		if len(filter.Roles) > 0 {
			w.add("role IN (?)", filter.Roles)
		}
		if filter.IsActive != nil {
			w.add("is_active = ?", *filter.IsActive)
		}
	}

	q, args, err := sqlx.In("SELECT "+userColumns+" FROM users"+w.String()+orderBy(userOrdering(ordering)), w.args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	var rows []userRow
	if err = repo.db.SelectContext(ctx, &rows, repo.db.Rebind(q), args...); err != nil {
		return nil, errors.Wrap(err, "querying users")
	}
	users := make([]user.User, 0, len(rows))
	for _, row := range rows {
		users = append(users, repo.fromRow(row))
	}
	return users, nil
}

func (repo userRepository) GetUser(ctx context.Context, filter user.GetFilter) (user.User, error) {
	var w where
	switch {
	case filter.ID != "":
		if _, err := uuid.Parse(filter.ID); err != nil {
			return user.User{}, user.ErrNotFound
		}
		w.add("id = ?", filter.ID)
	case filter.Username != "":
		w.add("username = ?", filter.Username)
	case filter.Email != "":
		w.add("email = ?", filter.Email)
	case filter.UsernameOrEmail != "":
		w.add("(username = ? OR email = LOWER(?))", filter.UsernameOrEmail, filter.UsernameOrEmail)
	default:
		return user.User{}, user.ErrNotFound
	}

	var row userRow
	q := repo.db.Rebind("SELECT " + userColumns + " FROM users" + w.String() + " LIMIT 1")
	if err := repo.db.GetContext(ctx, &row, q, w.args...); err != nil {
		return user.User{}, trapNoRowsErr(err, user.ErrNotFound, "finding user")
	}
	return repo.fromRow(row), nil
}

func (repo userRepository) UpdateUser(ctx context.Context, usr user.User) (user.User, error) {
	q := `UPDATE users SET username = :username, email = :email, password_hash = :password_hash, role = :role,
		ad_username = :ad_username, is_active = :is_active, permissions = :permissions, last_login = :last_login,
		updated_at = :updated_at WHERE id = :id`
	res, err := repo.db.NamedExecContext(ctx, q, repo.toRow(usr))
	if err != nil {
		return user.User{}, errors.Wrap(err, "updating user")
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return user.User{}, user.ErrNotFound
	}
	return repo.GetUser(ctx, user.GetFilter{ID: usr.ID})
}

func (repo userRepository) DeleteUsersByID(ctx context.Context, ids ...string) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	q, args, err := sqlx.In("DELETE FROM users WHERE id IN (?)", ids)
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	res, err := repo.db.ExecContext(ctx, repo.db.Rebind(q), args...)
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, "deleting users")
	}
	return int(n), nil
}

var userSortFields = map[string]string{
	"username":  "username",
	"email":     "email",
	"role":      "role",
	"isActive":  "is_active",
	"lastLogin": "last_login",
	"createdAt": "created_at",
	"updatedAt": "updated_at",
}

// userOrdering maps API field names to columns, dropping unknown fields. Newest first by default.
func userOrdering(ordering []core.DBOrdering) []core.DBOrdering {
	ords := make([]core.DBOrdering, 0, len(ordering)+1)
	for _, ord := range ordering {
		if col, ok := userSortFields[ord.Field]; ok {
			ords = append(ords, core.DBOrdering{Field: col, Ascending: ord.Ascending})
		}
	}
	if len(ords) == 0 {
		ords = append(ords, core.DBOrdering{Field: "created_at"})
	}
	return append(ords, core.DBOrdering{Field: "id", Ascending: true})
}

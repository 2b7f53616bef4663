// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/taibuivan/yomira-iam/internal/platform/apperr"
	"github.com/taibuivan/yomira-iam/internal/platform/dberr"
	"github.com/taibuivan/yomira-iam/internal/platform/postgres"
)

// # Unit of Work

// PostgresStore implements [Store] over a pgx pool or an open transaction.
type PostgresStore struct {
	db      postgres.DBTX
	starter postgres.TxStarter // nil when db is already a transaction
}

// NewPostgresStore creates a [Store] backed by the given pool.
func NewPostgresStore(pool postgres.TxStarter) *PostgresStore {
	return &PostgresStore{db: pool, starter: pool}
}

func (store *PostgresStore) Users() UserRepository {
	return NewUserRepository(store.db)
}

func (store *PostgresStore) Roles() RoleRepository {
	return NewRoleRepository(store.db)
}

func (store *PostgresStore) RefreshTokens() RefreshTokenRepository {
	return NewRefreshTokenRepository(store.db)
}

/*
WithinTx runs fn inside a READ COMMITTED transaction.

Description: The store handed to fn shares the transaction. Nested calls reuse
the outer transaction instead of opening a second one.

Parameters:
  - context: context.Context
  - fn: func(Store) error

Returns:
  - error: fn's error, or begin/commit failures
*/
func (store *PostgresStore) WithinTx(context context.Context, fn func(tx Store) error) error {
	if store.starter == nil {
		return fn(store)
	}

	return postgres.WithTx(context, store.starter, func(tx pgx.Tx) error {
		return fn(&PostgresStore{db: tx})
	})
}

// # User Repository

const selectAccount = `
	SELECT id, username, email, passwordhash, COALESCE(firstname, ''), COALESCE(lastname, ''),
	       isactive, resettokenhash, resettokenexpiry, createdat, updatedat
	FROM users.account`

// PostgresUserRepository implements [UserRepository] using pgx.
type PostgresUserRepository struct {
	db postgres.DBTX
}

// NewUserRepository creates a new PostgreSQL implementation of the UserRepository.
func NewUserRepository(db postgres.DBTX) *PostgresUserRepository {
	return &PostgresUserRepository{db: db}
}

func (repository *PostgresUserRepository) FindByID(context context.Context, id int64) (*User, error) {
	return repository.findOne(context, selectAccount+` WHERE id = $1`, id)
}

func (repository *PostgresUserRepository) FindByUsername(context context.Context, username string) (*User, error) {
	return repository.findOne(context, selectAccount+` WHERE username = $1`, username)
}

func (repository *PostgresUserRepository) FindByEmail(context context.Context, email string) (*User, error) {
	return repository.findOne(context, selectAccount+` WHERE email = $1`, email)
}

func (repository *PostgresUserRepository) FindByResetTokenHash(context context.Context, tokenHash string) (*User, error) {
	return repository.findOne(context, selectAccount+` WHERE resettokenhash = $1`, tokenHash)
}

func (repository *PostgresUserRepository) LockByID(context context.Context, id int64) (*User, error) {
	return repository.findOne(context, selectAccount+` WHERE id = $1 FOR UPDATE`, id)
}

func (repository *PostgresUserRepository) LockByResetTokenHash(context context.Context, tokenHash string) (*User, error) {
	return repository.findOne(context, selectAccount+` WHERE resettokenhash = $1 FOR UPDATE`, tokenHash)
}

/*
findOne scans a single account row and hydrates its roles.

Parameters:
  - context: context.Context
  - query: string (must select the selectAccount columns)
  - argument: any

Returns:
  - *User: Account with roles and permissions
  - error: apperr.NotFound or database errors
*/
func (repository *PostgresUserRepository) findOne(context context.Context, query string, argument any) (*User, error) {
	user := &User{}
	err := repository.db.QueryRow(context, query, argument).Scan(
		&user.ID,
		&user.Username,
		&user.Email,
		&user.PasswordHash,
		&user.FirstName,
		&user.LastName,
		&user.IsActive,
		&user.ResetTokenHash,
		&user.ResetTokenExpiry,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		return nil, dberr.Wrap(err, "User")
	}

	roles, err := loadRoles(context, repository.db, user.ID)
	if err != nil {
		return nil, err
	}
	user.Roles = roles

	return user, nil
}

/*
Create persists a new user record into the users.account table.

Parameters:
  - context: context.Context
  - user: *User (ID and timestamps are filled in)

Returns:
  - error: apperr.Conflict on duplicate username/email, or database errors
*/
func (repository *PostgresUserRepository) Create(context context.Context, user *User) error {
	const query = `
		INSERT INTO users.account (username, email, passwordhash, firstname, lastname, isactive)
		VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6)
		RETURNING id, createdat, updatedat`

	err := repository.db.QueryRow(context, query,
		user.Username,
		user.Email,
		user.PasswordHash,
		user.FirstName,
		user.LastName,
		user.IsActive,
	).Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)

	if err != nil {
		if dberr.IsUniqueViolation(err) {
			conflict := apperr.Conflict("Username or email already exists")
			conflict.Cause = err
			return conflict
		}
		return fmt.Errorf("postgres_user_repo_create_failed: %w", err)
	}

	return nil
}

func (repository *PostgresUserRepository) UpdatePassword(context context.Context, userID int64, newHash string) error {
	const query = `
		UPDATE users.account
		SET passwordhash = $2, updatedat = NOW()
		WHERE id = $1`

	return repository.execOne(context, "update_password", query, userID, newHash)
}

func (repository *PostgresUserRepository) SetResetToken(context context.Context, userID int64, tokenHash string, expiresAt time.Time) error {
	const query = `
		UPDATE users.account
		SET resettokenhash = $2, resettokenexpiry = $3, updatedat = NOW()
		WHERE id = $1`

	return repository.execOne(context, "set_reset_token", query, userID, tokenHash, expiresAt)
}

func (repository *PostgresUserRepository) ClearResetToken(context context.Context, userID int64) error {
	const query = `
		UPDATE users.account
		SET resettokenhash = NULL, resettokenexpiry = NULL, updatedat = NOW()
		WHERE id = $1`

	return repository.execOne(context, "clear_reset_token", query, userID)
}

func (repository *PostgresUserRepository) SetActive(context context.Context, userID int64, active bool) error {
	const query = `
		UPDATE users.account
		SET isactive = $2, updatedat = NOW()
		WHERE id = $1`

	return repository.execOne(context, "set_active", query, userID, active)
}

// execOne runs an UPDATE that must touch exactly one account.
func (repository *PostgresUserRepository) execOne(context context.Context, operation, query string, arguments ...any) error {
	tag, err := repository.db.Exec(context, query, arguments...)
	if err != nil {
		return fmt.Errorf("postgres_user_repo_%s_failed: %w", operation, err)
	}
	if tag.RowsAffected() == 0 {
		return apperr.NotFound("User")
	}
	return nil
}

/*
loadRoles fetches the user's roles and their permissions in one query.

Roles without permissions are kept. Rows arrive ordered by role then
permission name, so consecutive rows share a role.
*/
func loadRoles(context context.Context, db postgres.DBTX, userID int64) ([]Role, error) {
	const query = `
		SELECT r.id, r.name, COALESCE(r.description, ''),
		       p.id, p.name, p.description, p.resource, p.action
		FROM users.account_role ar
		JOIN users.role r ON r.id = ar.roleid
		LEFT JOIN users.role_permission rp ON rp.roleid = r.id
		LEFT JOIN users.permission p ON p.id = rp.permissionid
		WHERE ar.accountid = $1
		ORDER BY r.name, p.name`

	rows, err := db.Query(context, query, userID)
	if err != nil {
		return nil, fmt.Errorf("postgres_user_repo_load_roles_failed: %w", err)
	}
	defer rows.Close()

	roles := make([]Role, 0)
	for rows.Next() {
		var (
			role                                  Role
			permissionID                          *int64
			permissionName, permissionDescription *string
			permissionResource, permissionAction  *string
		)

		if err := rows.Scan(
			&role.ID, &role.Name, &role.Description,
			&permissionID, &permissionName, &permissionDescription, &permissionResource, &permissionAction,
		); err != nil {
			return nil, fmt.Errorf("postgres_user_repo_scan_role_failed: %w", err)
		}

		if len(roles) == 0 || roles[len(roles)-1].ID != role.ID {
			roles = append(roles, role)
		}

		if permissionID == nil {
			continue
		}

		current := &roles[len(roles)-1]
		current.Permissions = append(current.Permissions, Permission{
			ID:          *permissionID,
			Name:        deref(permissionName),
			Description: deref(permissionDescription),
			Resource:    deref(permissionResource),
			Action:      deref(permissionAction),
		})
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres_user_repo_load_roles_failed: %w", err)
	}

	return roles, nil
}

func deref(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

// # Role Repository

// PostgresRoleRepository implements [RoleRepository] using pgx.
type PostgresRoleRepository struct {
	db postgres.DBTX
}

// NewRoleRepository creates a new PostgreSQL implementation of the RoleRepository.
func NewRoleRepository(db postgres.DBTX) *PostgresRoleRepository {
	return &PostgresRoleRepository{db: db}
}

/*
FindOrCreate returns the named role, inserting it on first use.

Description: The no-op DO UPDATE makes RETURNING yield the existing row when
the name is already taken.

Parameters:
  - context: context.Context
  - name: string
  - description: string

Returns:
  - *Role: The role (permissions are not loaded)
  - error: Database errors
*/
func (repository *PostgresRoleRepository) FindOrCreate(context context.Context, name, description string) (*Role, error) {
	const query = `
		INSERT INTO users.role (name, description)
		VALUES ($1, NULLIF($2, ''))
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name, COALESCE(description, '')`

	role := &Role{}
	if err := repository.db.QueryRow(context, query, name, description).Scan(&role.ID, &role.Name, &role.Description); err != nil {
		return nil, fmt.Errorf("postgres_role_repo_find_or_create_failed: %w", err)
	}

	return role, nil
}

func (repository *PostgresRoleRepository) Assign(context context.Context, userID, roleID int64) error {
	const query = `
		INSERT INTO users.account_role (accountid, roleid)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING`

	if _, err := repository.db.Exec(context, query, userID, roleID); err != nil {
		if dberr.IsForeignKeyViolation(err) {
			return apperr.NotFound("User")
		}
		return fmt.Errorf("postgres_role_repo_assign_failed: %w", err)
	}

	return nil
}

// # Refresh Token Repository

// PostgresRefreshTokenRepository implements [RefreshTokenRepository] using pgx.
type PostgresRefreshTokenRepository struct {
	db postgres.DBTX
}

// NewRefreshTokenRepository creates a new PostgreSQL implementation of the RefreshTokenRepository.
func NewRefreshTokenRepository(db postgres.DBTX) *PostgresRefreshTokenRepository {
	return &PostgresRefreshTokenRepository{db: db}
}

func (repository *PostgresRefreshTokenRepository) Create(context context.Context, token *RefreshToken) error {
	const query = `
		INSERT INTO users.refresh_token (userid, tokenhash, expiresat, isrevoked)
		VALUES ($1, $2, $3, $4)
		RETURNING id, createdat`

	err := repository.db.QueryRow(context, query,
		token.UserID,
		token.TokenHash,
		token.ExpiresAt,
		token.IsRevoked,
	).Scan(&token.ID, &token.CreatedAt)

	if err != nil {
		return fmt.Errorf("postgres_refresh_token_repo_create_failed: %w", err)
	}

	return nil
}

func (repository *PostgresRefreshTokenRepository) FindActiveByHash(context context.Context, tokenHash string) (*RefreshToken, error) {
	const query = `
		SELECT id, userid, tokenhash, expiresat, isrevoked, createdat
		FROM users.refresh_token
		WHERE tokenhash = $1 AND isrevoked = FALSE`

	return scanRefreshToken(repository.db.QueryRow(context, query, tokenHash))
}

/*
Consume deletes the active token row and returns it.

Description: The DELETE takes the row lock itself, so a concurrent Consume of
the same digest blocks until this transaction ends and then matches nothing.

Parameters:
  - context: context.Context
  - tokenHash: string

Returns:
  - *RefreshToken: The deleted row
  - error: apperr.NotFound when already consumed, or database errors
*/
func (repository *PostgresRefreshTokenRepository) Consume(context context.Context, tokenHash string) (*RefreshToken, error) {
	const query = `
		DELETE FROM users.refresh_token
		WHERE tokenhash = $1 AND isrevoked = FALSE
		RETURNING id, userid, tokenhash, expiresat, isrevoked, createdat`

	return scanRefreshToken(repository.db.QueryRow(context, query, tokenHash))
}

func (repository *PostgresRefreshTokenRepository) DeleteByUser(context context.Context, userID int64) (int64, error) {
	const query = `DELETE FROM users.refresh_token WHERE userid = $1`

	tag, err := repository.db.Exec(context, query, userID)
	if err != nil {
		return 0, fmt.Errorf("postgres_refresh_token_repo_delete_by_user_failed: %w", err)
	}

	return tag.RowsAffected(), nil
}

func (repository *PostgresRefreshTokenRepository) DeleteExpired(context context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM users.refresh_token WHERE expiresat < $1`

	tag, err := repository.db.Exec(context, query, now)
	if err != nil {
		return 0, fmt.Errorf("postgres_refresh_token_repo_delete_expired_failed: %w", err)
	}

	return tag.RowsAffected(), nil
}

func scanRefreshToken(row pgx.Row) (*RefreshToken, error) {
	token := &RefreshToken{}
	err := row.Scan(
		&token.ID,
		&token.UserID,
		&token.TokenHash,
		&token.ExpiresAt,
		&token.IsRevoked,
		&token.CreatedAt,
	)
	if err != nil {
		return nil, dberr.Wrap(err, "Refresh token")
	}
	return token, nil
}

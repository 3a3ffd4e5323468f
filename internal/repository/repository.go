package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/passhport/passhportd/internal/models"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect"
)

const commentIndex = "users_comment_idx"

// Repository provides database operations
type Repository struct {
	db   *bun.DB
	conn bun.IDB
}

// NewRepository initializes a new repository
func NewRepository(db *bun.DB) *Repository {
	return &Repository{db: db, conn: db}
}

// RunInTx runs fn with a repository bound to a single transaction.
// The transaction commits when fn returns nil and rolls back otherwise.
func (r *Repository) RunInTx(ctx context.Context, fn func(ctx context.Context, tx *Repository) error) error {
	return r.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(ctx, &Repository{db: r.db, conn: tx})
	})
}

// Migrate creates the users table and its indexes if they are missing
func (r *Repository) Migrate(ctx context.Context) error {
	_, err := r.conn.NewCreateTable().
		Model((*models.User)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to create users table: %w", err)
	}

	q := r.conn.NewCreateIndex().
		Model((*models.User)(nil)).
		Index(commentIndex).
		Column("comment")
	// MySQL has no CREATE INDEX IF NOT EXISTS.
	if r.db.Dialect().Name() != dialect.MySQL {
		q = q.IfNotExists()
	}
	if _, err := q.Exec(ctx); err != nil && !isDuplicateIndex(err) {
		return fmt.Errorf("failed to create comment index: %w", err)
	}
	return nil
}

func isDuplicateIndex(err error) bool {
	var mysqlErr *mysql.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == 1061
}

// ListEmails returns every email ordered lexicographically
func (r *Repository) ListEmails(ctx context.Context) ([]string, error) {
	var emails []string
	err := r.conn.NewSelect().
		Model((*models.User)(nil)).
		Column("email").
		Order("email ASC").
		Scan(ctx, &emails)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	return emails, nil
}

// SearchEmails returns the emails containing pattern. SQL wildcards in
// pattern keep their meaning.
func (r *Repository) SearchEmails(ctx context.Context, pattern string) ([]string, error) {
	var emails []string
	err := r.conn.NewSelect().
		Model((*models.User)(nil)).
		Column("email").
		Where("email LIKE ?", "%"+pattern+"%").
		Order("email ASC").
		Scan(ctx, &emails)
	if err != nil {
		return nil, fmt.Errorf("failed to search users: %w", err)
	}
	return emails, nil
}

// FindByEmail retrieves a user by exact email
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	user := &models.User{}
	err := r.conn.NewSelect().
		Model(user).
		Where("email = ?", email).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	return user, nil
}

// EmailExists reports whether a user already uses email
func (r *Repository) EmailExists(ctx context.Context, email string) (bool, error) {
	return r.exists(ctx, "email", email)
}

// SSHKeyExists reports whether a user already uses sshkey
func (r *Repository) SSHKeyExists(ctx context.Context, sshkey string) (bool, error) {
	return r.exists(ctx, "sshkey", sshkey)
}

func (r *Repository) exists(ctx context.Context, column, value string) (bool, error) {
	ok, err := r.conn.NewSelect().
		Model((*models.User)(nil)).
		Where("? = ?", bun.Ident(column), value).
		Exists(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check %s: %w", column, err)
	}
	return ok, nil
}

// CreateUser inserts a new user and sets its ID
func (r *Repository) CreateUser(ctx context.Context, user *models.User) error {
	if _, err := r.conn.NewInsert().Model(user).Exec(ctx); err != nil {
		return fmt.Errorf("failed to create user: %w", mapError(err))
	}
	return nil
}

// UpdateUser writes the given columns of user in a single statement.
// MySQL reports zero affected rows for unchanged values, so callers load the
// user first to know it exists.
func (r *Repository) UpdateUser(ctx context.Context, user *models.User, columns ...string) error {
	if len(columns) == 0 {
		return nil
	}
	_, err := r.conn.NewUpdate().
		Model(user).
		Column(columns...).
		WherePK().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to update user: %w", mapError(err))
	}
	return nil
}

// DeleteByEmail removes the user with the exact email
func (r *Repository) DeleteByEmail(ctx context.Context, email string) error {
	res, err := r.conn.NewDelete().
		Model((*models.User)(nil)).
		Where("email = ?", email).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", mapError(err))
	}
	return expectRows(res)
}

// AllUsers returns every user ordered by email
func (r *Repository) AllUsers(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := r.conn.NewSelect().Model(&users).Order("email ASC").Scan(ctx); err != nil {
		return nil, fmt.Errorf("failed to load users: %w", err)
	}
	return users, nil
}

// CountUsers returns the number of users
func (r *Repository) CountUsers(ctx context.Context) (int, error) {
	n, err := r.conn.NewSelect().Model((*models.User)(nil)).Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return n, nil
}

// Ping checks that the database is reachable
func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Maintain runs engine specific housekeeping on the users table
func (r *Repository) Maintain(ctx context.Context) error {
	var stmts []string
	switch r.db.Dialect().Name() {
	case dialect.SQLite:
		stmts = []string{"PRAGMA optimize", "VACUUM"}
	case dialect.PG:
		stmts = []string{"VACUUM ANALYZE users"}
	case dialect.MySQL:
		stmts = []string{"OPTIMIZE TABLE users"}
	}
	for _, stmt := range stmts {
		if _, err := r.db.NewRaw(stmt).Exec(ctx); err != nil {
			return fmt.Errorf("failed to run %q: %w", stmt, err)
		}
	}
	return nil
}

func expectRows(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

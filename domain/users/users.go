package users

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"repairdesk/infrastructure/argon"
	"repairdesk/infrastructure/audit"
	"repairdesk/infrastructure/rbac"
	"repairdesk/infrastructure/sqlite"
	"repairdesk/models"
)

var (
	ErrNameRequired       = errors.New("user name is required")
	ErrUserExists         = errors.New("user already exists")
	ErrInvalidCredentials = errors.New("invalid user name or password")
	ErrLastAdmin          = errors.New("cannot remove the last admin")
)

// UserView is a user without credentials.
type UserView struct {
	ID        int64     `bun:"id"`
	Name      string    `bun:"name"`
	Role      string    `bun:"role"`
	CreatedAt time.Time `bun:"created_at"`
}

// Session is the result of a successful Authenticate.
type Session struct {
	UserID      int64
	Name        string
	Role        string
	Permissions []string
}

func (s Session) Can(perm string) bool {
	return rbac.HasPermission(s.Role, perm)
}

// Add creates a user after validating the role and password policy.
func Add(ctx context.Context, db *sqlite.DB, auditSvc *audit.Service, actor, name, password, role string, policy Policy) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, ErrNameRequired
	}
	role, err := rbac.NormalizeRole(role)
	if err != nil {
		return 0, err
	}
	if err := policy.Validate(password); err != nil {
		return 0, err
	}
	hash, salt, err := hashPassword(password)
	if err != nil {
		return 0, err
	}

	var id int64
	err = db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		exists, err := sqlite.Exists(ctx, tx, `SELECT COUNT(1) FROM users WHERE LOWER(name) = LOWER(?)`, name)
		if err != nil {
			return err
		}
		if exists {
			return ErrUserExists
		}
		stamp := sqlite.FormatTime(time.Now())
		id, err = sqlite.LastInsertID(ctx, tx, `
INSERT INTO users (name, password_hash, salt, role, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)`, name, hash, salt, role, stamp, stamp)
		if err != nil {
			return err
		}
		return auditSvc.Write(ctx, tx, actor, audit.ActionCreate, "users", id, nil, map[string]string{"name": name, "role": role})
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func hashPassword(password string) (string, string, error) {
	hash, err := argon.CreateHash(password, argon.DefaultParams)
	if err != nil {
		return "", "", err
	}
	salt, err := argon.SaltOf(hash)
	if err != nil {
		return "", "", err
	}
	return hash, salt, nil
}

func findByName(ctx context.Context, tx bun.Tx, name string) (models.User, error) {
	var user models.User
	err := tx.NewSelect().
		Model(&user).
		Where("LOWER(u.name) = ?", strings.ToLower(strings.TrimSpace(name))).
		Limit(1).
		Scan(ctx)
	return user, err
}

// Get looks a user up by name, case-insensitively.
func Get(ctx context.Context, db *sqlite.DB, name string) (models.User, bool, error) {
	var user models.User
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var err error
		user, err = findByName(ctx, tx, name)
		return err
	})
	if errors.Is(err, sql.ErrNoRows) {
		return models.User{}, false, nil
	}
	if err != nil {
		return models.User{}, false, err
	}
	return user, true, nil
}

func List(ctx context.Context, db *sqlite.DB) ([]UserView, error) {
	users := make([]UserView, 0)
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewRaw("SELECT id, name, role, created_at FROM users ORDER BY id ASC").Scan(ctx, &users)
	})
	return users, err
}

// Authenticate checks the password and returns a Session. Unknown users and
// wrong passwords both yield ErrInvalidCredentials.
func Authenticate(ctx context.Context, db *sqlite.DB, name, password string) (Session, error) {
	user, ok, err := Get(ctx, db, name)
	if err != nil {
		return Session{}, err
	}
	if !ok {
		return Session{}, ErrInvalidCredentials
	}
	match, err := argon.ComparePasswordAndHash(password, user.PasswordHash)
	if err != nil {
		return Session{}, err
	}
	if !match {
		return Session{}, ErrInvalidCredentials
	}
	if argon.NeedsRehash(user.PasswordHash, argon.DefaultParams) {
		if err := setPassword(ctx, db, user.ID, password); err != nil {
			db.Logger.Warn("rehash password", "user", user.Name, "error", err)
		}
	}
	return Session{
		UserID:      user.ID,
		Name:        user.Name,
		Role:        user.Role,
		Permissions: rbac.Permissions(user.Role),
	}, nil
}

func setPassword(ctx context.Context, db *sqlite.DB, userID int64, password string) error {
	hash, salt, err := hashPassword(password)
	if err != nil {
		return err
	}
	return db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		_, err := tx.ExecContext(ctx, `UPDATE users SET password_hash = ?, salt = ?, updated_at = ? WHERE id = ?`,
			hash, salt, sqlite.FormatTime(time.Now()), userID)
		return err
	})
}

// ChangePassword sets a new password for name after checking the policy. It
// reports false for an unknown user.
func ChangePassword(ctx context.Context, db *sqlite.DB, auditSvc *audit.Service, actor, name, password string, policy Policy) (bool, error) {
	if err := policy.Validate(password); err != nil {
		return false, err
	}
	hash, salt, err := hashPassword(password)
	if err != nil {
		return false, err
	}
	changed := false
	err = db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		user, err := findByName(ctx, tx, name)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `UPDATE users SET password_hash = ?, salt = ?, updated_at = ? WHERE id = ?`,
			hash, salt, sqlite.FormatTime(time.Now()), user.ID); err != nil {
			return err
		}
		changed = true
		return auditSvc.Write(ctx, tx, actor, audit.ActionUpdate, "users", user.ID, nil, map[string]string{"password": "changed"})
	})
	return changed, err
}

// ChangeRole moves a user to role. Demoting the last admin is refused.
func ChangeRole(ctx context.Context, db *sqlite.DB, auditSvc *audit.Service, actor, name, role string) (bool, error) {
	role, err := rbac.NormalizeRole(role)
	if err != nil {
		return false, err
	}
	changed := false
	err = db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		user, err := findByName(ctx, tx, name)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if user.Role == role {
			changed = true
			return nil
		}
		if user.Role == rbac.RoleAdmin {
			if err := requireOtherAdmin(ctx, tx, user.ID); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, `UPDATE users SET role = ?, updated_at = ? WHERE id = ?`,
			role, sqlite.FormatTime(time.Now()), user.ID); err != nil {
			return err
		}
		changed = true
		return auditSvc.Write(ctx, tx, actor, audit.ActionUpdate, "users", user.ID,
			map[string]string{"role": user.Role}, map[string]string{"role": role})
	})
	return changed, err
}

func requireOtherAdmin(ctx context.Context, tx bun.Tx, userID int64) error {
	ok, err := sqlite.Exists(ctx, tx, `SELECT COUNT(1) FROM users WHERE role = ? AND id <> ?`, rbac.RoleAdmin, userID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrLastAdmin
	}
	return nil
}

// Delete removes a user and their reset tokens. The last admin cannot be deleted.
func Delete(ctx context.Context, db *sqlite.DB, auditSvc *audit.Service, actor, name string) (bool, error) {
	deleted := false
	err := db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		user, err := findByName(ctx, tx, name)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if user.Role == rbac.RoleAdmin {
			if err := requireOtherAdmin(ctx, tx, user.ID); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, user.ID); err != nil {
			return err
		}
		deleted = true
		return auditSvc.Write(ctx, tx, actor, audit.ActionDelete, "users", user.ID, map[string]string{"name": user.Name, "role": user.Role}, nil)
	})
	return deleted, err
}

// EnsureAdmin creates the named admin or resets its password and role. It
// skips the password policy so operators can restore access with any password.
func EnsureAdmin(ctx context.Context, db *sqlite.DB, name, password string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrNameRequired
	}
	hash, salt, err := hashPassword(password)
	if err != nil {
		return err
	}
	stamp := sqlite.FormatTime(time.Now())
	return db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		existing, err := findByName(ctx, tx, name)
		switch {
		case err == nil:
			_, err = tx.ExecContext(ctx, `
UPDATE users SET password_hash = ?, salt = ?, role = ?, updated_at = ? WHERE id = ?`,
				hash, salt, rbac.RoleAdmin, stamp, existing.ID)
			return err
		case !errors.Is(err, sql.ErrNoRows):
			return err
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO users (name, password_hash, salt, role, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?)`, name, hash, salt, rbac.RoleAdmin, stamp, stamp)
		return err
	})
}

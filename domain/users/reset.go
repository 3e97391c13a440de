package users

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"repairdesk/infrastructure/sqlite"
	"repairdesk/models"
)

// DefaultResetTTL is how long a reset token stays valid when no ttl is given.
const DefaultResetTTL = time.Hour

var ErrTokenExpired = errors.New("password reset token expired")

// CreatePasswordReset issues a single-use token for name. It reports false
// for an unknown user.
func CreatePasswordReset(ctx context.Context, db *sqlite.DB, name string, ttl time.Duration, now time.Time) (string, bool, error) {
	if ttl <= 0 {
		ttl = DefaultResetTTL
	}
	token := uuid.NewString()
	created := false
	err := db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		user, err := findByName(ctx, tx, name)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		reset := &models.PasswordReset{
			UserID:    user.ID,
			Token:     token,
			ExpiresAt: now.Add(ttl).Unix(),
		}
		if _, err := tx.NewInsert().Model(reset).Exec(ctx); err != nil {
			return err
		}
		created = true
		return nil
	})
	if err != nil || !created {
		return "", false, err
	}
	return token, true, nil
}

// ResetPassword consumes token and sets the user's password. Unknown tokens
// report false; expired tokens are deleted and yield ErrTokenExpired.
func ResetPassword(ctx context.Context, db *sqlite.DB, token, password string, policy Policy, now time.Time) (bool, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return false, nil
	}
	if err := policy.Validate(password); err != nil {
		return false, err
	}
	hash, salt, err := hashPassword(password)
	if err != nil {
		return false, err
	}

	reset := false
	var expired bool
	err = db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var pr models.PasswordReset
		err := tx.NewSelect().Model(&pr).Where("pw.token = ?", token).Scan(ctx)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM password_resets WHERE id = ?`, pr.ID); err != nil {
			return err
		}
		if pr.Expired(now) {
			expired = true
			return nil
		}
		if _, err := tx.ExecContext(ctx, `UPDATE users SET password_hash = ?, salt = ?, updated_at = ? WHERE id = ?`,
			hash, salt, sqlite.FormatTime(now), pr.UserID); err != nil {
			return err
		}
		reset = true
		return nil
	})
	if err != nil {
		return false, err
	}
	if expired {
		return false, ErrTokenExpired
	}
	return reset, nil
}

// PurgeExpiredResets deletes every token that expired before now.
func PurgeExpiredResets(ctx context.Context, db *sqlite.DB, now time.Time) (int64, error) {
	var n int64
	err := db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var err error
		n, err = sqlite.RowsAffected(ctx, tx, `DELETE FROM password_resets WHERE expires_at <= ?`, now.Unix())
		return err
	})
	return n, err
}

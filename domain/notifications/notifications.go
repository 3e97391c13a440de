// Package notifications keeps a log of messages handed to external senders.
// Delivery itself happens elsewhere.
package notifications

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"repairdesk/infrastructure/sqlite"
	"repairdesk/models"
)

const (
	ChannelSMS      = "sms"
	ChannelEmail    = "email"
	ChannelWhatsApp = "whatsapp"
)

var (
	ErrRecipientRequired = errors.New("recipient is required")
	ErrMessageRequired   = errors.New("message is required")
	ErrUnknownChannel    = errors.New("unknown notification channel")
)

func validChannel(c string) bool {
	switch c {
	case ChannelSMS, ChannelEmail, ChannelWhatsApp:
		return true
	}
	return false
}

// Log records a message sent to recipient over channel.
func Log(ctx context.Context, db *sqlite.DB, recipient, channel, message string) (int64, error) {
	recipient = strings.TrimSpace(recipient)
	channel = strings.ToLower(strings.TrimSpace(channel))
	if recipient == "" {
		return 0, ErrRecipientRequired
	}
	if strings.TrimSpace(message) == "" {
		return 0, ErrMessageRequired
	}
	if !validChannel(channel) {
		return 0, ErrUnknownChannel
	}
	var id int64
	err := db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		var err error
		id, err = sqlite.LastInsertID(ctx, tx, `
INSERT INTO notifications (recipient, channel, message, created_at) VALUES (?, ?, ?, ?)`,
			recipient, channel, message, sqlite.FormatTime(time.Now()))
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// List returns notifications newest first, only those for recipient when it
// is not empty.
func List(ctx context.Context, db *sqlite.DB, recipient string) ([]models.Notification, error) {
	out := make([]models.Notification, 0)
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		q := tx.NewSelect().Model(&out).OrderExpr("n.created_at DESC, n.id DESC")
		if r := strings.TrimSpace(recipient); r != "" {
			q = q.Where("n.recipient = ?", r)
		}
		return q.Scan(ctx)
	})
	return out, err
}

// Package tickets tracks customer tickets through a closed set of states.
// Every state change appends to the ticket's timeline in the same
// transaction that updates its current state.
package tickets

import (
	"context"
	"database/sql"
	"errors"
	"iter"
	"strings"
	"time"

	"github.com/uptrace/bun"

	"repairdesk/infrastructure/sqlite"
	"repairdesk/models"
)

type State string

const (
	StateReceived  State = "recibido"
	StateInRepair  State = "en_reparacion"
	StateReady     State = "listo"
	StateDelivered State = "entregado"
)

var (
	ErrInvalidState    = errors.New("invalid ticket state")
	ErrClientRequired  = errors.New("client name is required")
	ErrDeviceRequired  = errors.New("device is required")
	ErrPhotoPathNeeded = errors.New("photo path is required")
)

var aliases = map[string]State{
	"received":      StateReceived,
	"in_repair":     StateInRepair,
	"en reparación": StateInRepair,
	"en reparacion": StateInRepair,
	"ready":         StateReady,
	"delivered":     StateDelivered,
}

// States returns the states in their usual order.
func States() []State {
	return []State{StateReceived, StateInRepair, StateReady, StateDelivered}
}

// ParseState accepts the canonical identifiers and their English or legacy
// spellings.
func ParseState(s string) (State, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	for _, st := range States() {
		if v == string(st) {
			return st, nil
		}
	}
	if st, ok := aliases[v]; ok {
		return st, nil
	}
	return "", ErrInvalidState
}

// Entry is one timeline row.
type Entry struct {
	State     State     `bun:"state"`
	ChangedAt time.Time `bun:"changed_at"`
}

// Entries is a ticket timeline, oldest first.
type Entries []Entry

// All yields the entries in order. It can be ranged over any number of times.
func (e Entries) All() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for _, entry := range e {
			if !yield(entry) {
				return
			}
		}
	}
}

// States returns just the states, in order.
func (e Entries) States() []State {
	out := make([]State, 0, len(e))
	for entry := range e.All() {
		out = append(out, entry.State)
	}
	return out
}

var now = time.Now

// Create opens a ticket in the received state with its first timeline entry
// and any photo references, all in one transaction.
func Create(ctx context.Context, db *sqlite.DB, clientName, device, description string, photos ...string) (int64, error) {
	clientName, device = strings.TrimSpace(clientName), strings.TrimSpace(device)
	if clientName == "" {
		return 0, ErrClientRequired
	}
	if device == "" {
		return 0, ErrDeviceRequired
	}
	for _, p := range photos {
		if strings.TrimSpace(p) == "" {
			return 0, ErrPhotoPathNeeded
		}
	}

	var id int64
	err := db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		at := sqlite.FormatTime(now())
		var err error
		id, err = sqlite.LastInsertID(ctx, tx, `
INSERT INTO tickets (client_name, device, description, state, created_at)
VALUES (?, ?, ?, ?, ?)`, clientName, device, description, string(StateReceived), at)
		if err != nil {
			return err
		}
		if err := appendState(ctx, tx, id, StateReceived, at); err != nil {
			return err
		}
		for _, p := range photos {
			if _, err := tx.ExecContext(ctx, `INSERT INTO ticket_photos (ticket_id, path) VALUES (?, ?)`, id, strings.TrimSpace(p)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

func appendState(ctx context.Context, tx bun.Tx, ticketID int64, state State, at string) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO ticket_states (ticket_id, state, changed_at) VALUES (?, ?, ?)`, ticketID, string(state), at)
	return err
}

// UpdateState moves a ticket to state. Any state may follow any other. It
// reports false when the ticket does not exist.
func UpdateState(ctx context.Context, db *sqlite.DB, ticketID int64, state string) (bool, error) {
	st, err := ParseState(state)
	if err != nil {
		return false, err
	}
	updated := false
	err = db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		n, err := sqlite.RowsAffected(ctx, tx, `UPDATE tickets SET state = ? WHERE id = ?`, string(st), ticketID)
		if err != nil || n == 0 {
			return err
		}
		if err := appendState(ctx, tx, ticketID, st, sqlite.FormatTime(now())); err != nil {
			return err
		}
		updated = true
		return nil
	})
	return updated, err
}

// Timeline returns the ticket's state changes ordered by time, then by the
// order they were written. An unknown ticket has an empty timeline.
func Timeline(ctx context.Context, db *sqlite.DB, ticketID int64) (Entries, error) {
	entries := make(Entries, 0)
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewSelect().
			TableExpr("ticket_states").
			Column("state", "changed_at").
			Where("ticket_id = ?", ticketID).
			OrderExpr("changed_at ASC, id ASC").
			Scan(ctx, &entries)
	})
	return entries, err
}

func Get(ctx context.Context, db *sqlite.DB, id int64) (models.Ticket, bool, error) {
	var t models.Ticket
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewSelect().Model(&t).Where("t.id = ?", id).Scan(ctx)
	})
	if errors.Is(err, sql.ErrNoRows) {
		return models.Ticket{}, false, nil
	}
	if err != nil {
		return models.Ticket{}, false, err
	}
	return t, true, nil
}

// Filter narrows Search. Client and Device match substrings; State matches
// exactly. Empty fields are ignored.
type Filter struct {
	Client string
	Device string
	State  string
}

func Search(ctx context.Context, db *sqlite.DB, f Filter) ([]models.Ticket, error) {
	var state State
	if strings.TrimSpace(f.State) != "" {
		var err error
		if state, err = ParseState(f.State); err != nil {
			return nil, err
		}
	}
	out := make([]models.Ticket, 0)
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		q := tx.NewSelect().Model(&out).OrderExpr("t.created_at DESC, t.id DESC")
		if c := strings.TrimSpace(f.Client); c != "" {
			q = q.Where("t.client_name LIKE ?", "%"+c+"%")
		}
		if d := strings.TrimSpace(f.Device); d != "" {
			q = q.Where("t.device LIKE ?", "%"+d+"%")
		}
		if state != "" {
			q = q.Where("t.state = ?", string(state))
		}
		return q.Scan(ctx)
	})
	return out, err
}

// AddPhoto attaches a photo reference. It reports false for an unknown ticket.
func AddPhoto(ctx context.Context, db *sqlite.DB, ticketID int64, path string) (int64, bool, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return 0, false, ErrPhotoPathNeeded
	}
	var id int64
	err := db.WithWriteTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		ok, err := sqlite.Exists(ctx, tx, `SELECT COUNT(1) FROM tickets WHERE id = ?`, ticketID)
		if err != nil || !ok {
			return err
		}
		id, err = sqlite.LastInsertID(ctx, tx, `INSERT INTO ticket_photos (ticket_id, path) VALUES (?, ?)`, ticketID, path)
		return err
	})
	return id, id > 0, err
}

func Photos(ctx context.Context, db *sqlite.DB, ticketID int64) ([]models.TicketPhoto, error) {
	photos := make([]models.TicketPhoto, 0)
	err := db.WithReadTx(ctx, func(ctx context.Context, tx bun.Tx) error {
		return tx.NewSelect().Model(&photos).Where("tp.ticket_id = ?", ticketID).OrderExpr("tp.id ASC").Scan(ctx)
	})
	return photos, err
}

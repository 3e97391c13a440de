package tickets

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repairdesk/infrastructure/sqlite/sqlitetest"
)

func fixedClock(t *testing.T, at time.Time) {
	t.Helper()
	prev := now
	now = func() time.Time { return at }
	t.Cleanup(func() { now = prev })
}

func TestTicketLifecycle(t *testing.T) {
	db := sqlitetest.Open(t)
	ctx := context.Background()

	id, err := Create(ctx, db, "Ana", "Samsung A10", "no enciende")
	require.NoError(t, err)

	ok, err := UpdateState(ctx, db, id, "en_reparacion")
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = UpdateState(ctx, db, id, "listo")
	require.NoError(t, err)
	require.True(t, ok)

	timeline, err := Timeline(ctx, db, id)
	require.NoError(t, err)
	assert.Equal(t, []State{StateReceived, StateInRepair, StateReady}, timeline.States())

	_, err = UpdateState(ctx, db, id, "bogus")
	assert.ErrorIs(t, err, ErrInvalidState)

	ticket, found, err := Get(ctx, db, id)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, string(StateReady), ticket.State)

	timeline, err = Timeline(ctx, db, id)
	require.NoError(t, err)
	assert.Len(t, timeline, 3, "a rejected state must not reach the timeline")
}

func TestTimelineGrowsByOnePerUpdate(t *testing.T) {
	db := sqlitetest.Open(t)
	ctx := context.Background()
	fixedClock(t, time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC))

	id, err := Create(ctx, db, "Luis", "iPhone", "")
	require.NoError(t, err)

	updates := []string{"listo", "recibido", "entregado", "delivered", "en reparación"}
	for _, s := range updates {
		ok, err := UpdateState(ctx, db, id, s)
		require.NoError(t, err)
		require.True(t, ok)
	}

	timeline, err := Timeline(ctx, db, id)
	require.NoError(t, err)
	require.Len(t, timeline, 1+len(updates))
	assert.Equal(t, []State{StateReceived, StateReady, StateReceived, StateDelivered, StateDelivered, StateInRepair}, timeline.States(),
		"equal timestamps keep insertion order")
	for entry := range timeline.All() {
		assert.True(t, entry.ChangedAt.Equal(time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)))
	}

	ok, err := UpdateState(ctx, db, 9999, "listo")
	require.NoError(t, err)
	assert.False(t, ok)
	empty, err := Timeline(ctx, db, 9999)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestCreateValidation(t *testing.T) {
	db := sqlitetest.Open(t)
	ctx := context.Background()

	_, err := Create(ctx, db, " ", "LG", "")
	assert.ErrorIs(t, err, ErrClientRequired)
	_, err = Create(ctx, db, "Ana", "", "")
	assert.ErrorIs(t, err, ErrDeviceRequired)
	_, err = Create(ctx, db, "Ana", "LG", "", "a.jpg", " ")
	assert.ErrorIs(t, err, ErrPhotoPathNeeded)

	found, err := Search(ctx, db, Filter{})
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestParseState(t *testing.T) {
	cases := map[string]State{
		"recibido":      StateReceived,
		" LISTO ":       StateReady,
		"in_repair":     StateInRepair,
		"En Reparación": StateInRepair,
		"delivered":     StateDelivered,
	}
	for in, want := range cases {
		got, err := ParseState(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseState("cerrado")
	assert.ErrorIs(t, err, ErrInvalidState)
}

func TestSearchAndPhotos(t *testing.T) {
	db := sqlitetest.Open(t)
	ctx := context.Background()

	ana, err := Create(ctx, db, "Ana Perez", "Samsung A10", "", "fotos/1.jpg")
	require.NoError(t, err)
	_, err = Create(ctx, db, "Luis", "Samsung S9", "")
	require.NoError(t, err)
	_, err = UpdateState(ctx, db, ana, "listo")
	require.NoError(t, err)

	bySamsung, err := Search(ctx, db, Filter{Device: "Samsung"})
	require.NoError(t, err)
	assert.Len(t, bySamsung, 2)

	byClient, err := Search(ctx, db, Filter{Client: "ana"})
	require.NoError(t, err)
	require.Len(t, byClient, 1)
	assert.Equal(t, ana, byClient[0].ID)

	byState, err := Search(ctx, db, Filter{State: "ready"})
	require.NoError(t, err)
	require.Len(t, byState, 1)
	assert.Equal(t, ana, byState[0].ID)

	_, err = Search(ctx, db, Filter{State: "bogus"})
	assert.ErrorIs(t, err, ErrInvalidState)

	photoID, ok, err := AddPhoto(ctx, db, ana, "fotos/2.jpg")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Positive(t, photoID)
	_, ok, err = AddPhoto(ctx, db, 9999, "fotos/3.jpg")
	require.NoError(t, err)
	assert.False(t, ok)
	_, _, err = AddPhoto(ctx, db, ana, "")
	assert.ErrorIs(t, err, ErrPhotoPathNeeded)

	photos, err := Photos(ctx, db, ana)
	require.NoError(t, err)
	require.Len(t, photos, 2)
	assert.Equal(t, "fotos/1.jpg", photos[0].Path)
	assert.Equal(t, "fotos/2.jpg", photos[1].Path)
}

package notifications_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"repairdesk/domain/notifications"
	"repairdesk/infrastructure/sqlite/sqlitetest"
)

func TestLogAndList(t *testing.T) {
	db := sqlitetest.Open(t)
	ctx := context.Background()

	_, err := notifications.Log(ctx, db, "", notifications.ChannelSMS, "hola")
	assert.ErrorIs(t, err, notifications.ErrRecipientRequired)
	_, err = notifications.Log(ctx, db, "555", notifications.ChannelSMS, "  ")
	assert.ErrorIs(t, err, notifications.ErrMessageRequired)
	_, err = notifications.Log(ctx, db, "555", "paloma", "hola")
	assert.ErrorIs(t, err, notifications.ErrUnknownChannel)

	first, err := notifications.Log(ctx, db, "555", "SMS", "su equipo esta listo")
	require.NoError(t, err)
	second, err := notifications.Log(ctx, db, "ana@example.com", notifications.ChannelEmail, "presupuesto")
	require.NoError(t, err)
	third, err := notifications.Log(ctx, db, "555", notifications.ChannelWhatsApp, "recordatorio")
	require.NoError(t, err)

	all, err := notifications.List(ctx, db, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []int64{third, second, first}, []int64{all[0].ID, all[1].ID, all[2].ID})

	mine, err := notifications.List(ctx, db, "555")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	assert.Equal(t, notifications.ChannelSMS, mine[1].Channel)
}

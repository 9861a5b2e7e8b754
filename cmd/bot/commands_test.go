package main

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ykvlv/payment-reminder-bot/internal/config"
	"github.com/ykvlv/payment-reminder-bot/internal/domain"
)

func TestExitCode(t *testing.T) {
	assert.Equal(t, 2, exitCode(fmt.Errorf("%w: BOT_TOKEN", domain.ErrConfig)))
	assert.Equal(t, 1, exitCode(errors.New("network")))
}

func TestCheckTime(t *testing.T) {
	cfg := config.Config{ReminderTZ: "Asia/Bishkek", ReminderHour: 10, ReminderMinute: 30}

	got, err := checkTime(cfg, "17.09.2025")
	require.NoError(t, err)
	assert.Equal(t, "2025-09-17 10:30", got.Format("2006-01-02 15:04"))
	assert.Equal(t, "Asia/Bishkek", got.Location().String())

	_, err = checkTime(cfg, "2025-09-17")
	assert.ErrorIs(t, err, domain.ErrParse)
}

func TestRootCmd_HasSubcommands(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"serve", "check"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err)
		assert.Equal(t, name, cmd.Name())
	}
}

func TestCheckCmd_HelpMentionsDayLock(t *testing.T) {
	cmd, _, err := newRootCmd().Find([]string{"check"})
	require.NoError(t, err)
	assert.Contains(t, cmd.Long, "bypasses the Redis day lock")
	assert.NotNil(t, cmd.Flags().Lookup("date"))
}

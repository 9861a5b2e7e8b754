package telegram

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/ykvlv/payment-reminder-bot/internal/domain"
	"github.com/ykvlv/payment-reminder-bot/internal/store"
)

type fakeBot struct {
	mu    sync.Mutex
	texts []string
	err   error
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		b.texts = append(b.texts, m.Text)
	}
	return tgbotapi.Message{}, b.err
}

func (b *fakeBot) last() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.texts) == 0 {
		return ""
	}
	return b.texts[len(b.texts)-1]
}

func newTestRouter(t *testing.T) (*Router, *fakeBot, store.Repo) {
	t.Helper()
	repo, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	bot := &fakeBot{}
	return NewRouter(bot, zap.NewNop(), repo), bot, repo
}

func say(r *Router, chatID int64, text string) {
	r.HandleUpdate(context.Background(), tgbotapi.Update{
		Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}, Text: text},
	})
}

func TestSplitCommand(t *testing.T) {
	cases := []struct{ in, cmd, args string }{
		{"/setday 18", "/setday", "18"},
		{"/SetName@pay_bot Ivanov  Ivan", "/setname", "Ivanov  Ivan"},
		{"/stop", "/stop", ""},
		{"hello", "", "hello"},
	}
	for _, tc := range cases {
		cmd, args := splitCommand(tc.in)
		assert.Equal(t, tc.cmd, cmd, tc.in)
		assert.Equal(t, tc.args, args, tc.in)
	}
}

func TestOnboarding_HappyPath(t *testing.T) {
	r, bot, repo := newTestRouter(t)

	say(r, 42, "/start")
	assert.Equal(t, stepAwaitingName, r.sessions.get(42).step)

	say(r, 42, "Ivanov")
	assert.Contains(t, bot.last(), "Surname Name", "re-prompt on invalid name")
	assert.Equal(t, stepAwaitingName, r.sessions.get(42).step)

	say(r, 42, "Ivanov Ivan")
	assert.Equal(t, stepAwaitingStartDate, r.sessions.get(42).step)

	say(r, 42, "31.02.2025")
	assert.Contains(t, bot.last(), "DD.MM.YYYY", "re-prompt on impossible date")
	_, err := repo.Get(context.Background(), 42)
	assert.ErrorIs(t, err, domain.ErrNotFound, "no record before onboarding completes")

	say(r, 42, "30.01.2025")
	assert.Contains(t, bot.last(), "Payment day: 28")
	assert.Equal(t, stepNone, r.sessions.get(42).step)

	s, err := repo.Get(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, "Ivanov Ivan", s.DisplayName)
	assert.Equal(t, 28, s.DueDay)
	assert.True(t, s.Active)
}

func TestOnboarding_RepeatedDoesNotDuplicate(t *testing.T) {
	r, _, repo := newTestRouter(t)
	for _, date := range []string{"05.03.2025", "18.09.2025"} {
		say(r, 7, "/start")
		say(r, 7, "Petrov Petr")
		say(r, 7, date)
	}
	list, err := repo.ListActive(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, 18, list[0].DueDay)
}

func TestOnboarding_Cancel(t *testing.T) {
	r, bot, _ := newTestRouter(t)
	say(r, 1, "/start")
	say(r, 1, "/cancel")
	assert.Equal(t, cancelText, bot.last())
	n := len(bot.texts)
	say(r, 1, "Ivanov Ivan")
	assert.Len(t, bot.texts, n, "free text without a dialogue is ignored")
}

func TestEditCommands_RequireRegistration(t *testing.T) {
	r, bot, _ := newTestRouter(t)
	for _, cmd := range []string{"/setday 5", "/setname A B", "/setstart 01.01.2025", "/stop", "/resume", "/status"} {
		say(r, 99, cmd)
		assert.Equal(t, registerFirst, bot.last(), cmd)
	}
}

func TestEditCommands(t *testing.T) {
	r, bot, repo := newTestRouter(t)
	ctx := context.Background()
	require.NoError(t, repo.Upsert(ctx, &domain.Subscriber{ChatID: 5, DisplayName: "A B", DueDay: 3, Active: true}))

	say(r, 5, "/setday 29")
	assert.Contains(t, bot.last(), "1..28")
	say(r, 5, "/setday x")
	assert.Contains(t, bot.last(), "1..28")
	say(r, 5, "/setday")
	assert.Equal(t, setDayUsage, bot.last())
	say(r, 5, "/setday 18")
	assert.Contains(t, bot.last(), "updated: 18")

	say(r, 5, "/setname Solo")
	assert.Equal(t, setNameUsage, bot.last())
	say(r, 5, "/setname Ivanov Ivan")

	say(r, 5, "/setstart 18/09/2025")
	assert.Equal(t, badSetStart, bot.last())
	say(r, 5, "/setstart 31.12.2025")
	assert.Contains(t, bot.last(), "recomputed: 28")

	say(r, 5, "/stop")
	assert.Equal(t, stoppedText, bot.last())

	s, err := repo.Get(ctx, 5)
	require.NoError(t, err)
	assert.Equal(t, "Ivanov Ivan", s.DisplayName)
	assert.Equal(t, 28, s.DueDay)
	assert.False(t, s.Active)
	require.NotNil(t, s.StartDate)
	assert.Equal(t, "31.12.2025", domain.FormatCalendarDate(*s.StartDate))

	say(r, 5, "/resume")
	assert.Equal(t, resumedText, bot.last())
	say(r, 5, "/status")
	assert.Contains(t, bot.last(), "Enabled")
	assert.Contains(t, bot.last(), "31.12.2025")
}

func TestSendMessage(t *testing.T) {
	r, bot, _ := newTestRouter(t)
	require.NoError(t, r.SendMessage(context.Background(), 1, "hi"))
	assert.Equal(t, "hi", bot.last())

	bot.err = &tgbotapi.Error{Code: 403, Message: "Forbidden: bot was blocked by the user"}
	err := r.SendMessage(context.Background(), 1, "hi")
	var apiErr *tgbotapi.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 403, apiErr.Code)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, r.SendMessage(ctx, 1, "hi"), context.Canceled)
}

func TestStep_String(t *testing.T) {
	assert.Equal(t, "none", stepNone.String())
	assert.Equal(t, "awaiting_name", stepAwaitingName.String())
	assert.Equal(t, "awaiting_start_date", stepAwaitingStartDate.String())
}

func TestSessions_Expire(t *testing.T) {
	s := newSessions(time.Minute)
	clock := time.Date(2025, time.September, 17, 10, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return clock }

	s.begin(1)
	assert.Equal(t, stepAwaitingName, s.get(1).step)

	clock = clock.Add(2 * time.Minute)
	assert.Equal(t, stepNone, s.get(1).step)
	assert.Equal(t, 1, s.sweep())
	assert.Equal(t, 0, s.sweep())
}

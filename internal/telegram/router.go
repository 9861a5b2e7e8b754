package telegram

import (
	"context"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/ykvlv/payment-reminder-bot/internal/store"
)

// sessionTTL bounds how long an unfinished onboarding is remembered.
const sessionTTL = 30 * time.Minute

// Bot is the part of *tgbotapi.BotAPI the router uses.
type Bot interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// Router wires Telegram updates to handlers and holds onboarding sessions.
type Router struct {
	bot      Bot
	log      *zap.Logger
	repo     store.Repo
	sessions *sessions
	now      func() time.Time
}

// NewRouter creates a new Telegram router.
func NewRouter(bot Bot, log *zap.Logger, repo store.Repo) *Router {
	if log == nil {
		log = zap.NewNop()
	}
	return &Router{
		bot:      bot,
		log:      log.Named("telegram"),
		repo:     repo,
		sessions: newSessions(sessionTTL),
		now:      time.Now,
	}
}

// splitCommand splits "/cmd@bot arg1 arg2" into "/cmd" and "arg1 arg2".
func splitCommand(text string) (cmd, args string) {
	if !strings.HasPrefix(text, "/") {
		return "", text
	}
	cmd, args, _ = strings.Cut(text, " ")
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	return strings.ToLower(cmd), strings.TrimSpace(args)
}

// HandleUpdate routes a single update to the appropriate handler.
func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message == nil {
		return
	}
	msg := upd.Message
	chatID := msg.Chat.ID
	text := strings.TrimSpace(msg.Text)

	cmd, args := splitCommand(text)
	switch cmd {
	case "/start":
		r.handleStart(chatID)
	case "/cancel":
		r.handleCancel(chatID)
	case "/setday":
		r.handleSetDay(ctx, chatID, args)
	case "/setname":
		r.handleSetName(ctx, chatID, args)
	case "/setstart":
		r.handleSetStart(ctx, chatID, args)
	case "/stop":
		r.handleSetActive(ctx, chatID, false)
	case "/resume":
		r.handleSetActive(ctx, chatID, true)
	case "/status":
		r.handleStatus(ctx, chatID)
	case "/help":
		r.sendText(chatID, commandsHelpText)
	case "":
		// Free-form text drives the onboarding dialogue.
		r.handleDialogue(ctx, chatID, text)
	default:
		// Unknown command: ignore silently
	}
}

// SweepSessions drops abandoned onboarding dialogues.
func (r *Router) SweepSessions() {
	if n := r.sessions.sweep(); n > 0 {
		r.log.Debug("expired onboarding sessions dropped", zap.Int("count", n))
	}
}

// SendMessage sends a plain text message to the given chat.
// This makes Router satisfy notify.Sender.
func (r *Router) SendMessage(ctx context.Context, chatID int64, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := r.bot.Send(tgbotapi.NewMessage(chatID, text))
	return err
}

func (r *Router) sendText(chatID int64, text string) {
	if _, err := r.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		r.log.Warn("reply failed", zap.Int64("chatID", chatID), zap.Error(err))
	}
}

func (r *Router) sendMarkdown(chatID int64, text string) {
	m := tgbotapi.NewMessage(chatID, text)
	m.ParseMode = tgbotapi.ModeMarkdown
	if _, err := r.bot.Send(m); err != nil {
		r.log.Warn("reply failed", zap.Int64("chatID", chatID), zap.Error(err))
	}
}

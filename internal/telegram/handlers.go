package telegram

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/ykvlv/payment-reminder-bot/internal/domain"
)

// --- Onboarding dialogue ---

func (r *Router) handleStart(chatID int64) {
	r.sessions.begin(chatID)
	r.sendMarkdown(chatID, askNameText)
}

func (r *Router) handleCancel(chatID int64) {
	r.sessions.end(chatID)
	r.sendText(chatID, cancelText)
}

func (r *Router) handleDialogue(ctx context.Context, chatID int64, text string) {
	cur := r.sessions.get(chatID)
	switch cur.step {
	case stepAwaitingName:
		name, err := domain.ValidateDisplayName(text)
		if err != nil {
			r.sendMarkdown(chatID, badNameText)
			return
		}
		r.sessions.nameAccepted(chatID, name)
		r.sendMarkdown(chatID, askStartText)

	case stepAwaitingStartDate:
		start, err := domain.ParseCalendarDate(text)
		if err != nil {
			r.sendMarkdown(chatID, badStartText)
			return
		}
		s := &domain.Subscriber{
			ChatID:      chatID,
			DisplayName: cur.name,
			StartDate:   &start,
			DueDay:      domain.DueDayFromDate(start),
			Active:      true,
			CreatedAt:   r.now().UTC(),
		}
		if err := r.repo.Upsert(ctx, s); err != nil {
			r.log.Error("upsert failed", zap.Int64("chatID", chatID), zap.Error(err))
			r.sendText(chatID, storeErrorText)
			return
		}
		r.sessions.end(chatID)
		r.log.Info("subscriber registered", zap.Int64("chatID", chatID), zap.Int("dueDay", s.DueDay))
		r.sendText(chatID, registeredText(s.DisplayName, domain.FormatCalendarDate(start), s.DueDay))

	default:
		// No dialogue in progress: ignore free-form message
	}
}

// --- Edit commands ---

// replyStoreErr answers a failed store call; NotFound means onboarding never completed.
func (r *Router) replyStoreErr(chatID int64, op string, err error) {
	if errors.Is(err, domain.ErrNotFound) {
		r.sendText(chatID, registerFirst)
		return
	}
	r.log.Error(op+" failed", zap.Int64("chatID", chatID), zap.Error(err))
	r.sendText(chatID, storeErrorText)
}

func (r *Router) handleSetDay(ctx context.Context, chatID int64, args string) {
	if _, err := r.repo.Get(ctx, chatID); err != nil {
		r.replyStoreErr(chatID, "get", err)
		return
	}
	if args == "" {
		r.sendText(chatID, setDayUsage)
		return
	}
	day, err := domain.ParseDueDay(args)
	if err != nil {
		r.sendText(chatID, setDayRange+"\n"+setDayUsage)
		return
	}
	if err := r.repo.UpdateDueDay(ctx, chatID, day); err != nil {
		r.replyStoreErr(chatID, "UpdateDueDay", err)
		return
	}
	r.sendText(chatID, fmt.Sprintf("✅ Payment day updated: %d", day))
}

func (r *Router) handleSetName(ctx context.Context, chatID int64, args string) {
	if _, err := r.repo.Get(ctx, chatID); err != nil {
		r.replyStoreErr(chatID, "get", err)
		return
	}
	name, err := domain.ValidateDisplayName(args)
	if err != nil {
		r.sendText(chatID, setNameUsage)
		return
	}
	if err := r.repo.UpdateDisplayName(ctx, chatID, name); err != nil {
		r.replyStoreErr(chatID, "UpdateDisplayName", err)
		return
	}
	r.sendText(chatID, "✅ Name updated: "+name)
}

func (r *Router) handleSetStart(ctx context.Context, chatID int64, args string) {
	if _, err := r.repo.Get(ctx, chatID); err != nil {
		r.replyStoreErr(chatID, "get", err)
		return
	}
	if args == "" {
		r.sendText(chatID, setStartUsage)
		return
	}
	start, err := domain.ParseCalendarDate(args)
	if err != nil {
		r.sendText(chatID, badSetStart)
		return
	}
	day := domain.DueDayFromDate(start)
	if err := r.repo.UpdateStart(ctx, chatID, start, day); err != nil {
		r.replyStoreErr(chatID, "UpdateStart", err)
		return
	}
	r.sendText(chatID, fmt.Sprintf("✅ Start date updated: %s\n✅ Payment day recomputed: %d",
		domain.FormatCalendarDate(start), day))
}

// --- Stop / Resume / Status ---

func (r *Router) handleSetActive(ctx context.Context, chatID int64, active bool) {
	if err := r.repo.SetActive(ctx, chatID, active); err != nil {
		r.replyStoreErr(chatID, "SetActive", err)
		return
	}
	if active {
		r.sendText(chatID, resumedText)
		return
	}
	r.sendText(chatID, stoppedText)
}

func (r *Router) handleStatus(ctx context.Context, chatID int64) {
	s, err := r.repo.Get(ctx, chatID)
	if err != nil {
		r.replyStoreErr(chatID, "get", err)
		return
	}
	r.sendText(chatID, statusText(s))
}

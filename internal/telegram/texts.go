package telegram

import (
	"fmt"

	"github.com/ykvlv/payment-reminder-bot/internal/domain"
)

// UI texts in English
const (
	askNameText = "👋 Hi! Let's register.\n\n" +
		"Enter your *Surname Name* (example: Ivanov Ivan)."
	badNameText      = "Please enter *Surname Name* in one line.\nExample: Ivanov Ivan"
	askStartText     = "Great. Now enter your *start date* as DD.MM.YYYY.\nExample: 18.09.2025"
	badStartText     = "Invalid date format.\nUse *DD.MM.YYYY*\nExample: 18.09.2025"
	cancelText       = "OK, registration cancelled. Send /start to begin again."
	registerFirst    = "Register first: /start"
	storeErrorText   = "Something went wrong. Please try again later."
	setDayUsage      = "Usage: /setday 1..28\nExample: /setday 18"
	setDayRange      = "Payment day must be 1..28 (this works for every month)."
	setNameUsage     = "Usage: /setname Surname Name\nExample: /setname Ivanov Ivan"
	setStartUsage    = "Usage: /setstart DD.MM.YYYY\nExample: /setstart 18.09.2025"
	badSetStart      = "Invalid date. Example: /setstart 18.09.2025"
	stoppedText      = "⛔ Reminders disabled. Turn them back on: /resume"
	resumedText      = "✅ Reminders enabled."
	commandsHelpText = "Commands:\n" +
		"/setday 18 — change payment day\n" +
		"/setname Surname Name — change name\n" +
		"/setstart 18.09.2025 — change start date (recomputes payment day)\n" +
		"/stop — disable reminders\n" +
		"/resume — enable reminders\n" +
		"/status — show your settings"
)

func registeredText(name string, start string, dueDay int) string {
	return fmt.Sprintf("Done ✅\nName: %s\nStart date: %s\nPayment day: %d\n\n"+
		"I will remind you 1 day before the payment.\n\n%s",
		name, start, dueDay, commandsHelpText)
}

func statusText(s *domain.Subscriber) string {
	start := "—"
	if s.StartDate != nil {
		start = domain.FormatCalendarDate(*s.StartDate)
	}
	enabled := "✅ Enabled"
	if !s.Active {
		enabled = "⏸ Stopped"
	}
	return fmt.Sprintf("🧾 Your settings:\n• Name: %s\n• Start date: %s\n• Payment day: %d\n• Reminders: %s",
		s.DisplayName, start, s.DueDay, enabled)
}

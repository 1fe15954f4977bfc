package notify

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/telebot.v3"

	"schoolops/internal/engine"
)

// Notifier sends attendance alerts to a Telegram chat. A nil Notifier is
// a no-op, so callers can pass one through unconditionally.
type Notifier struct {
	bot    *telebot.Bot
	chatID int64
}

// New connects a Telegram bot for the given chat. Returns nil (a no-op
// notifier) when no token is configured.
func New(token string, chatID int64) (*Notifier, error) {
	if token == "" || chatID == 0 {
		return nil, nil
	}
	bot, err := telebot.NewBot(telebot.Settings{
		Token:  token,
		Poller: &telebot.LongPoller{Timeout: 10 * time.Second},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &Notifier{bot: bot, chatID: chatID}, nil
}

// StreakAlert reports a student whose consecutive-absence count reached
// the alert threshold.
func (n *Notifier) StreakAlert(st engine.Student, streak engine.StreakResult) error {
	if n == nil {
		return nil
	}
	text := fmt.Sprintf(
		"⚠️ %s (class %s) has been absent %d school days in a row.\nDates: %s",
		st.FullName, st.Class, streak.Count, strings.Join(streak.Dates, ", "),
	)
	return n.send(text)
}

// DailySummary reports the day's absences for one class.
func (n *Notifier) DailySummary(dateKey, classKey string, absent []string) error {
	if n == nil {
		return nil
	}
	if len(absent) == 0 {
		return n.send(fmt.Sprintf("✅ %s — class %s: no absences.", dateKey, classKey))
	}
	return n.send(fmt.Sprintf(
		"📋 %s — class %s: %d absent\n%s",
		dateKey, classKey, len(absent), strings.Join(absent, "\n"),
	))
}

func (n *Notifier) send(text string) error {
	_, err := n.bot.Send(&telebot.Chat{ID: n.chatID}, text)
	return err
}

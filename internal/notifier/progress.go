// Package notifier renders batch activity into Telegram messages.
package notifier

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/suspectuso/sova-bot/internal/batch"
	"github.com/suspectuso/sova-bot/internal/checkin"
)

// Messenger is the part of the bot the notifier writes through.
type Messenger interface {
	EditMessage(ctx context.Context, chatID int64, messageID int, text string) error
	SendNotification(ctx context.Context, userID int64, text string) error
}

// ProgressMessage keeps one status message up to date. Edits are spaced by
// at least interval; the final event of a run is always rendered.
type ProgressMessage struct {
	m         Messenger
	f         Formatter
	chatID    int64
	messageID int
	interval  time.Duration
	log       *slog.Logger
	now       func() time.Time

	mu       sync.Mutex
	last     time.Time
	lastText string
}

// NewProgressMessage creates a reporter editing messageID in chatID.
func NewProgressMessage(m Messenger, f Formatter, chatID int64, messageID int, interval time.Duration, log *slog.Logger) *ProgressMessage {
	return &ProgressMessage{
		m:         m,
		f:         f,
		chatID:    chatID,
		messageID: messageID,
		interval:  interval,
		log:       log,
		now:       time.Now,
	}
}

// OnProgress implements batch.Reporter.
func (p *ProgressMessage) OnProgress(ctx context.Context, ev batch.Progress) {
	p.update(ctx, p.f.BatchProgress(ev), ev.Done())
}

// OnCheckin renders a check-in sweep event.
func (p *ProgressMessage) OnCheckin(ctx context.Context, ev checkin.Progress) {
	p.update(ctx, p.f.CheckinProgress(ev), ev.Done())
}

// Finish replaces the message with text regardless of the edit interval.
func (p *ProgressMessage) Finish(ctx context.Context, text string) {
	p.update(ctx, text, true)
}

func (p *ProgressMessage) update(ctx context.Context, text string, force bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.now()
	if !force && !p.last.IsZero() && now.Sub(p.last) < p.interval {
		return
	}
	// Telegram rejects edits that do not change the text.
	if text == p.lastText {
		return
	}

	if err := p.m.EditMessage(ctx, p.chatID, p.messageID, text); err != nil {
		p.log.Warn("edit progress message", "chat_id", p.chatID, "error", err)
		return
	}
	p.last = now
	p.lastText = text
}

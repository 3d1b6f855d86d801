package telegram

import (
	"context"
	"fmt"
	"html"
	"strings"

	"reminder_engine/internal/domain/reminder"

	"github.com/sirupsen/logrus"
	"gopkg.in/telebot.v3"
)

// maxMessageLen is Telegram's limit for a single text message.
const maxMessageLen = 4096

// maxSubjectLen bounds the escaped subject so the recipient list keeps most of the message.
const maxSubjectLen = 512

// Publisher posts a summary of every batch to an operator chat. The topic is ignored.
type Publisher struct {
	client Client
	chatID int64
	logger logrus.FieldLogger
}

func NewPublisher(client Client, chatID int64, logger logrus.FieldLogger) *Publisher {
	return &Publisher{client: client, chatID: chatID, logger: logger}
}

func (p *Publisher) Publish(ctx context.Context, _ string, event reminder.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	text := Summary(event)
	if err := p.client.SendMessage(p.chatID, text, &telebot.SendOptions{ParseMode: telebot.ModeHTML, DisableWebPagePreview: true}); err != nil {
		return fmt.Errorf("telegram send to chat %d: %w", p.chatID, err)
	}
	p.logger.WithFields(logrus.Fields{"chat_id": p.chatID, "recipients": len(event.Recipients)}).Debug("Reminder batch summary sent to Telegram")
	return nil
}

// Summary renders the batch as Telegram HTML, truncated to fit one message.
func Summary(event reminder.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>%s</b>\n", escapeTruncated(event.Subject, maxSubjectLen))
	fmt.Fprintf(&b, "Tick: <code>%s</code>\n", html.EscapeString(event.TickTimestampUTC))
	fmt.Fprintf(&b, "Recipients (%d):\n", len(event.Recipients))

	const more = "…and %d more"
	for i, r := range event.Recipients {
		line := "• " + html.EscapeString(r) + "\n"
		tail := fmt.Sprintf(more, len(event.Recipients)-i)
		if b.Len()+len(line)+len(tail) > maxMessageLen {
			b.WriteString(tail)
			return b.String()
		}
		b.WriteString(line)
	}
	return strings.TrimSuffix(b.String(), "\n")
}

// escapeTruncated HTML-escapes s and cuts it to at most limit bytes, never inside a rune
// or an entity.
func escapeTruncated(s string, limit int) string {
	escaped := html.EscapeString(s)
	if len(escaped) <= limit {
		return escaped
	}
	const ellipsis = "…"
	var b strings.Builder
	for _, r := range s {
		part := html.EscapeString(string(r))
		if b.Len()+len(part)+len(ellipsis) > limit {
			break
		}
		b.WriteString(part)
	}
	b.WriteString(ellipsis)
	return b.String()
}

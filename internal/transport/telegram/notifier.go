package telegram

import (
	"context"
	"log/slog"

	tele "gopkg.in/telebot.v4"

	"trivia-service/internal/domain"
)

// Sender is the part of *tele.Bot used to deliver messages.
type Sender interface {
	Send(to tele.Recipient, what interface{}, opts ...interface{}) (*tele.Message, error)
}

// Notifier renders engine notifications and sends them to their chats in order.
// Notify only queues; Run does the network calls.
type Notifier struct {
	sender Sender
	log    *slog.Logger
	queue  chan domain.Notification
}

const notifyBuffer = 512

func NewNotifier(sender Sender, log *slog.Logger) *Notifier {
	if log == nil {
		log = slog.Default()
	}
	return &Notifier{sender: sender, log: log, queue: make(chan domain.Notification, notifyBuffer)}
}

func (n *Notifier) Notify(_ context.Context, note domain.Notification) {
	select {
	case n.queue <- note:
	default:
		n.log.Warn("chat notification dropped, queue full", "kind", note.Kind, "chat", note.ChatID)
	}
}

// Run delivers queued notifications until ctx is cancelled.
func (n *Notifier) Run(ctx context.Context) error {
	for {
		select {
		case note := <-n.queue:
			n.deliver(note)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (n *Notifier) deliver(note domain.Notification) {
	reply := Render(note)
	if reply.Text == "" {
		return
	}
	if _, err := n.sender.Send(tele.ChatID(note.ChatID), reply.Text, reply.options()...); err != nil {
		n.log.Error("send notification", "kind", note.Kind, "chat", note.ChatID, "err", err)
	}
}

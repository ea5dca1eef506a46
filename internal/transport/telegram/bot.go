// Package telegram runs the quiz as a Telegram bot.
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"
)

const menuQuizText = "🚀 Начать игру /quiz"

// Bot wires Handlers to a long-polling telebot instance.
type Bot struct {
	bot *tele.Bot
	log *slog.Logger
}

func NewBot(token string, pollTimeout time.Duration, log *slog.Logger) (*Bot, error) {
	if log == nil {
		log = slog.Default()
	}
	if pollTimeout <= 0 {
		pollTimeout = 10 * time.Second
	}
	tb, err := tele.NewBot(tele.Settings{
		Token:  token,
		Poller: &tele.LongPoller{Timeout: pollTimeout},
		OnError: func(err error, c tele.Context) {
			log.Error("telegram handler failed", "err", err)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Bot{bot: tb, log: log}, nil
}

// Sender exposes the client for the notifier.
func (b *Bot) Sender() Sender {
	return b.bot
}

// Run polls for updates until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	go b.bot.Start()
	b.log.Info("telegram bot started", "username", b.bot.Me.Username)
	<-ctx.Done()
	b.bot.Stop()
	return ctx.Err()
}

// Mount routes every command and callback to h.
func (b *Bot) Mount(h *Handlers) {
	b.bot.Handle("/start", func(c tele.Context) error {
		return reply(c, h.Start(context.Background(), c.Sender()))
	})
	b.bot.Handle("/help", func(c tele.Context) error {
		return reply(c, h.Help())
	})
	b.bot.Handle("/removekeyboard", func(c tele.Context) error {
		return reply(c, h.RemoveKeyboard())
	})
	b.bot.Handle("/quiz", func(c tele.Context) error {
		return reply(c, h.Quiz(context.Background(), c.Sender()))
	})
	b.bot.Handle("/stop", func(c tele.Context) error {
		return reply(c, h.Stop(context.Background(), c.Sender(), c.Chat().ID))
	})
	b.bot.Handle("/skip", func(c tele.Context) error {
		return reply(c, h.Skip(context.Background(), c.Sender(), c.Chat().ID))
	})
	b.bot.Handle("/hint", func(c tele.Context) error {
		return reply(c, h.Hint(context.Background(), c.Sender(), c.Chat().ID))
	})
	b.bot.Handle("/top", func(c tele.Context) error {
		return reply(c, h.Top(context.Background()))
	})
	b.bot.Handle("/setname", func(c tele.Context) error {
		return reply(c, h.SetName(context.Background(), c.Sender(), c.Message().Payload))
	})
	b.bot.Handle("/add", func(c tele.Context) error {
		return reply(c, h.AddQuestion(context.Background(), c.Sender(), c.Message().Payload))
	})
	b.bot.Handle("/delete", func(c tele.Context) error {
		return reply(c, h.DeleteQuestion(context.Background(), c.Sender(), c.Message().Payload))
	})
	b.bot.Handle("/showall", func(c tele.Context) error {
		return reply(c, h.ShowAll(context.Background(), c.Sender()))
	})
	b.bot.Handle(tele.OnCallback, func(c tele.Context) error {
		_ = c.Respond()
		r := h.Callback(context.Background(), c.Sender(), c.Chat().ID, c.Callback().Data)
		return c.Edit(r.Text, r.options()...)
	})
	b.bot.Handle(tele.OnText, func(c tele.Context) error {
		text := c.Text()
		if strings.TrimSpace(text) == menuQuizText {
			return reply(c, h.Quiz(context.Background(), c.Sender()))
		}
		private := c.Chat().Type == tele.ChatPrivate
		return reply(c, h.Answer(context.Background(), c.Sender(), c.Chat().ID, private, text))
	})
}

func reply(c tele.Context, r Reply) error {
	if r.Text == "" {
		return nil
	}
	return c.Send(r.Text, r.options()...)
}

package cli

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"trivia-service/internal/app"
	"trivia-service/internal/config"
	"trivia-service/internal/domain"
	"trivia-service/internal/infra/messaging"
	"trivia-service/internal/observability"
	transport "trivia-service/internal/transport/http"
	"trivia-service/internal/transport/telegram"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the trivia engine, the Telegram bot and the live feed",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := observability.NewLogger(cfg.Log.Level, cfg.Log.Format)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	be, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer be.Close()
	if n, err := be.seed(ctx, domain.SampleQuestions()); err != nil {
		return err
	} else if n > 0 {
		log.Info("question bank seeded", "questions", n)
	}

	g, ctx := errgroup.WithContext(ctx)

	feed := transport.NewFeed(64)
	sinks := app.MultiNotifier{feed}

	if cfg.AMQP.URL != "" {
		conn, err := messaging.Dial(cfg.AMQP.URL)
		if err != nil {
			return err
		}
		defer conn.Close()
		publisher, err := messaging.NewPublisher(conn.Channel(), cfg.AMQP.Queue, log.With("component", "amqp"))
		if err != nil {
			return err
		}
		sinks = append(sinks, publisher)
		g.Go(func() error { return ignoreCanceled(publisher.Run(ctx)) })
	}

	var bot *telegram.Bot
	if cfg.Telegram.Token != "" {
		bot, err = telegram.NewBot(cfg.Telegram.Token, config.Duration(cfg.Telegram.PollTimeout, 10*time.Second), log.With("component", "telegram"))
		if err != nil {
			return err
		}
		chat := telegram.NewNotifier(bot.Sender(), log.With("component", "telegram"))
		sinks = append(sinks, chat)
		g.Go(func() error { return ignoreCanceled(chat.Run(ctx)) })
	} else {
		log.Warn("telegram token not configured, bot disabled")
	}

	opts := []app.Option{
		app.WithLogger(log.With("component", "engine")),
		app.WithTiming(timingFrom(cfg.Quiz)),
	}
	if marker := be.sessionMarker(cfg, log.With("component", "session_marker")); marker != nil {
		opts = append(opts, app.WithSessionObserver(marker))
		g.Go(func() error { return ignoreCanceled(marker.Run(ctx)) })
	}
	engine := app.NewEngine(app.NewTimerScheduler(), be.source, be.ledger, sinks, opts...)
	g.Go(func() error { return ignoreCanceled(engine.Run(ctx)) })

	if bot != nil {
		bot.Mount(telegram.NewHandlers(engine, be.catalog(log), cfg.Telegram.AdminID, log.With("component", "telegram")))
		g.Go(func() error { return ignoreCanceled(bot.Run(ctx)) })
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}
	ws := transport.NewWSHandler(engine, feed, log.With("component", "ws"))
	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           transport.NewMux(ws, engine),
		ReadHeaderTimeout: 15 * time.Second,
	}

	g.Go(func() error {
		log.Info("starting trivia service", "addr", server.Addr, "driver", be.driver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func timingFrom(q config.QuizConfig) app.Timing {
	def := app.DefaultTiming()
	return app.Timing{
		FormatReveal: config.Duration(q.FormatReveal, def.FormatReveal),
		AutoHint:     config.Duration(q.AutoHint, def.AutoHint),
		Timeout:      config.Duration(q.Timeout, def.Timeout),
		HintTimeout:  config.Duration(q.HintTimeout, def.HintTimeout),
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

package cli

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"

	"trivia-service/internal/app"
	"trivia-service/internal/config"
	"trivia-service/internal/domain"
	"trivia-service/internal/infra/memory"
	"trivia-service/internal/infra/postgres"
	redisinfra "trivia-service/internal/infra/redis"
	"trivia-service/internal/infra/sqlite"
)

// store is what every storage driver provides.
type store interface {
	app.QuestionBank
	app.ScoreLedger
	app.Players
	memory.QuestionLoader
}

// backend is the storage side of the service: the question bank, its cache and the score ledger.
type backend struct {
	driver  string
	store   store
	seed    func(ctx context.Context, questions []domain.Question) (int, error)
	redis   *redis.Client
	source  app.QuestionSource
	cache   app.CacheInvalidator
	ledger  app.ScoreLedger
	players app.Players
	closers []func()
}

func openBackend(ctx context.Context, cfg config.Config, log *slog.Logger) (*backend, error) {
	b := &backend{driver: cfg.Storage.Driver}
	if err := b.openStore(ctx, cfg, log); err != nil {
		b.Close()
		return nil, err
	}
	b.ledger, b.players = b.store, b.store

	cacheTTL := config.Duration(cfg.Quiz.CacheTTL, 10*time.Minute)
	if cfg.Redis.Addr == "" {
		repo := memory.NewQuestionRepository(b.store, cacheTTL)
		b.source, b.cache = repo, repo
		return b, nil
	}

	b.redis = redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	b.closers = append(b.closers, func() { _ = b.redis.Close() })
	if err := b.redis.Ping(ctx).Err(); err != nil {
		b.Close()
		return nil, fmt.Errorf("connect redis %s: %w", cfg.Redis.Addr, err)
	}
	repo := redisinfra.NewQuestionRepository(b.redis, b.store, cacheTTL)
	b.source, b.cache = repo, repo
	if cfg.Redis.Scores {
		ledger := redisinfra.NewScoreLedger(b.redis)
		b.ledger, b.players = ledger, ledger
	}
	log.Info("redis attached", "addr", cfg.Redis.Addr, "scores", cfg.Redis.Scores)
	return b, nil
}

func (b *backend) openStore(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	switch cfg.Storage.Driver {
	case config.DriverMemory:
		bank := memory.NewQuestionBank(domain.SampleQuestions())
		b.store = memoryStore{QuestionBank: bank, Scoreboard: memory.NewScoreboard()}
		b.seed = func(context.Context, []domain.Question) (int, error) { return 0, nil }
	case config.DriverSQLite:
		s, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return err
		}
		b.closers = append(b.closers, func() { _ = s.Close() })
		b.store, b.seed = s, s.Seed
	case config.DriverPostgres:
		group, err := postgres.Migrate(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		if !group.IsZero() {
			log.Info("postgres migrations applied", "group", group.String())
		}
		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return fmt.Errorf("connect postgres: %w", err)
		}
		b.closers = append(b.closers, pool.Close)
		s := postgres.NewStore(pool)
		b.store, b.seed = s, s.Seed
	default:
		return fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
	log.Info("storage opened", "driver", cfg.Storage.Driver)
	return nil
}

// sessionMarker returns the Redis liveness marker, or nil without Redis.
func (b *backend) sessionMarker(cfg config.Config, log *slog.Logger) *redisinfra.SessionMarker {
	if b.redis == nil {
		return nil
	}
	return redisinfra.NewSessionMarker(b.redis, config.Duration(cfg.Redis.TTL, 2*time.Hour), log)
}

func (b *backend) catalog(log *slog.Logger) *app.Catalog {
	return app.NewCatalog(b.store, b.cache, b.players, log)
}

// Close releases connections in reverse order of opening.
func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		b.closers[i]()
	}
	b.closers = nil
}

// memoryStore joins the in-process bank and scoreboard into one store.
type memoryStore struct {
	*memory.QuestionBank
	*memory.Scoreboard
}

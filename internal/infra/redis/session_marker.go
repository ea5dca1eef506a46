package redis

import (
	"context"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"trivia-service/internal/domain"
)

// SessionMarker mirrors live sessions as expiring Redis keys so other processes can tell
// a chat is busy. Sessions themselves stay in process.
// The observer methods only queue; Run talks to Redis, so a slow server never holds up the engine.
type SessionMarker struct {
	client *redis.Client
	ttl    time.Duration
	log    *slog.Logger
	ops    chan markerOp
}

type markerOp struct {
	key  domain.SessionKey
	live bool
}

const markerBuffer = 256

func NewSessionMarker(client *redis.Client, ttl time.Duration, log *slog.Logger) *SessionMarker {
	if log == nil {
		log = slog.Default()
	}
	return &SessionMarker{client: client, ttl: ttl, log: log, ops: make(chan markerOp, markerBuffer)}
}

// SessionInstalled sets or refreshes the marker of key.
func (m *SessionMarker) SessionInstalled(key domain.SessionKey) {
	m.enqueue(markerOp{key: key, live: true})
}

func (m *SessionMarker) SessionRemoved(key domain.SessionKey) {
	m.enqueue(markerOp{key: key})
}

func (m *SessionMarker) enqueue(op markerOp) {
	select {
	case m.ops <- op:
	default:
		m.log.Warn("session marker update dropped, queue full", "key", op.key, "live", op.live)
	}
}

// Run applies queued updates until ctx is cancelled, then flushes what is already queued.
func (m *SessionMarker) Run(ctx context.Context) error {
	for {
		select {
		case op := <-m.ops:
			m.apply(ctx, op)
		case <-ctx.Done():
			m.flush()
			return ctx.Err()
		}
	}
}

func (m *SessionMarker) flush() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	for {
		select {
		case op := <-m.ops:
			m.apply(ctx, op)
		default:
			return
		}
	}
}

func (m *SessionMarker) apply(ctx context.Context, op markerOp) {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if op.live {
		if err := m.client.Set(ctx, m.key(op.key), time.Now().UTC().Format(time.RFC3339), m.ttl).Err(); err != nil {
			m.log.Warn("mark session", "key", op.key, "err", err)
		}
		return
	}
	if err := m.client.Del(ctx, m.key(op.key)).Err(); err != nil {
		m.log.Warn("unmark session", "key", op.key, "err", err)
	}
}

// Live reports whether a marker exists for key.
func (m *SessionMarker) Live(ctx context.Context, key domain.SessionKey) (bool, error) {
	n, err := m.client.Exists(ctx, m.key(key)).Result()
	return n > 0, err
}

func (m *SessionMarker) key(key domain.SessionKey) string {
	return "trivia:session:" + key.String()
}

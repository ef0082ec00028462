package persistence

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/helpdesk-relay/internal/config"
	"github.com/spec-kit/helpdesk-relay/pkg/util/errorutil"
)

// ErrRedisDisabled is reported by readiness checks when no address is configured.
var ErrRedisDisabled = errors.New("redis not configured")

// ErrTicketBusy means another delivery held the ticket lock for the whole wait window.
var ErrTicketBusy = errors.New("ticket lock wait exceeded")

// Redis wraps the go-redis client. A nil Client means sequencing is disabled.
type Redis struct {
	Client *redis.Client
}

// NewRedis builds a client when an address is configured. An unreachable server is only logged.
func NewRedis(cfg config.RedisConfig, logger *zap.Logger) *Redis {
	if cfg.Addr == "" {
		logger.Warn("REDIS_ADDR not provided; per-ticket sequencing disabled")
		return &Redis{}
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Warn("unable to reach redis", zap.Error(err))
	} else {
		logger.Info("connected to redis")
	}

	return &Redis{Client: client}
}

// Enabled reports whether a client is configured.
func (r *Redis) Enabled() bool {
	return r != nil && r.Client != nil
}

// Close closes the client.
func (r *Redis) Close() {
	if r.Enabled() {
		_ = r.Client.Close()
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if !r.Enabled() {
		return ErrRedisDisabled
	}
	return r.Client.Ping(ctx).Err()
}

// releaseScript deletes the lock only if it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

const (
	lockPrefix    = "helpdesk-relay:ticket:"
	lockRetryStep = 50 * time.Millisecond
)

// Release frees a lock taken by Sequencer.Acquire.
type Release func(ctx context.Context)

// Sequencer serializes deliveries that touch the same ticket.
type Sequencer struct {
	client *redis.Client
	ttl    time.Duration
	wait   time.Duration
	logger *zap.Logger
}

// NewSequencer returns a sequencer backed by r. Without a client every Acquire succeeds immediately.
func NewSequencer(r *Redis, cfg config.RelayConfig, logger *zap.Logger) *Sequencer {
	s := &Sequencer{ttl: cfg.LockTTL(), wait: cfg.LockWait(), logger: logger}
	if r.Enabled() {
		s.client = r.Client
	}
	return s
}

// Enabled reports whether locks are actually taken.
func (s *Sequencer) Enabled() bool {
	return s != nil && s.client != nil
}

// Acquire takes the lock for key, polling until the wait window closes. Redis errors are logged and the
// delivery proceeds unlocked.
func (s *Sequencer) Acquire(ctx context.Context, key string) (Release, error) {
	noop := func(context.Context) {}
	if !s.Enabled() || key == "" {
		return noop, nil
	}

	lockKey := lockPrefix + key
	token := uuid.NewString()
	deadline := time.NewTimer(s.wait)
	defer deadline.Stop()
	ticker := time.NewTicker(lockRetryStep)
	defer ticker.Stop()

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ok, err := s.client.SetNX(ctx, lockKey, token, s.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			s.logger.Warn("ticket lock unavailable; continuing unlocked", zap.String("key", key), zap.Error(err))
			return noop, nil
		}
		if ok {
			return func(ctx context.Context) {
				if err := releaseScript.Run(ctx, s.client, []string{lockKey}, token).Err(); err != nil {
					s.logger.Warn("ticket lock release failed", zap.String("key", key), zap.Error(err))
				}
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-deadline.C:
			return nil, &errorutil.DomainError{
				Code:       errorutil.CodeInternal,
				Message:    "ticket is being relayed by another delivery",
				HTTPStatus: http.StatusInternalServerError,
				Details:    map[string]any{"ticket": key},
				Err:        ErrTicketBusy,
			}
		case <-ticker.C:
		}
	}
}

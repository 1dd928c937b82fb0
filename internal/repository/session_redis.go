package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/tictactoe-rooms/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-rooms/internal/entity"
)

const maxUpdateRetries = 16

var errTooManyRetries = errors.New("too many concurrent updates")

type dbSession struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

// NewRedisSessionRepository - sessions expire ttl after their last write; zero keeps them forever.
func NewRedisSessionRepository(client *redis.Client, ttl time.Duration) SessionRepository {
	return &dbSession{
		client: client,
		ttl:    ttl,
		now:    time.Now,
	}
}

func sessionKey(id string) string {
	return "session:" + id
}

func (that *dbSession) GetOrCreate(ctx context.Context, id string) (*entity.Session, error) {
	sessionJSON, err := json.Marshal(entity.NewSession(id, that.now()))
	if err != nil {
		return nil, fmt.Errorf("could not marshal session: %w", err)
	}

	if err = that.client.SetNX(ctx, sessionKey(id), sessionJSON, that.ttl).Err(); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return that.Get(ctx, id)
}

func (that *dbSession) Get(ctx context.Context, id string) (*entity.Session, error) {
	return that.get(ctx, that.client, id)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (that *dbSession) get(ctx context.Context, client getter, id string) (*entity.Session, error) {
	response, err := client.Get(ctx, sessionKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("%w: %s", apperror.ErrSessionNotFound, id)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session entity.Session
	if err = json.Unmarshal([]byte(response), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &session, nil
}

// Update - optimistic read-modify-write; retried when another writer touches the key first.
func (that *dbSession) Update(ctx context.Context, id string, fn func(session *entity.Session) error) (*entity.Session, error) {
	key := sessionKey(id)

	var updated *entity.Session

	txf := func(tx *redis.Tx) error {
		session, err := that.get(ctx, tx, id)
		if err != nil {
			return err
		}

		if err = fn(session); err != nil {
			return err
		}

		session.UpdatedAt = that.now()

		sessionJSON, err := json.Marshal(session)
		if err != nil {
			return fmt.Errorf("could not marshal session: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, sessionJSON, that.ttl)
			return nil
		})
		if err != nil {
			return err
		}

		updated = session

		return nil
	}

	for range maxUpdateRetries {
		err := that.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}

		if err != nil {
			return nil, err
		}

		return updated, nil
	}

	return nil, fmt.Errorf("failed to update session %s: %w", id, errTooManyRetries)
}

// Evict - keys expire on their own. A newcomer to an expired id gets a fresh epoch instead.
func (that *dbSession) Evict(_ context.Context, _ time.Duration) ([]*entity.Session, error) {
	return nil, nil
}

func (that *dbSession) Ping(ctx context.Context) error {
	if err := that.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}

	return nil
}

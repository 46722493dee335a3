package session

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"babygen/internal/domain"
)

const keyPrefix = "babygen:session:"

// RedisOptions configure the Redis-backed store.
type RedisOptions struct {
	Addr     string
	Username string
	Password string
	UseTLS   bool
	TTL      time.Duration
}

// RedisStore keeps sessions in Redis with a sliding TTL, for deployments
// where the API process is restarted or scaled.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(ctx context.Context, opts RedisOptions) (*RedisStore, error) {
	var tlsConfig *tls.Config
	if opts.UseTLS {
		tlsConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(&redis.Options{
		Addr:      opts.Addr,
		Username:  opts.Username,
		Password:  opts.Password,
		TLSConfig: tlsConfig,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		return nil, err
	}
	ttl := opts.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

func (s *RedisStore) Load(ctx context.Context, id string) (*domain.SessionState, error) {
	raw, err := s.client.Get(ctx, keyPrefix+id).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, domain.ErrSessionNotFound
		}
		return nil, err
	}
	var state domain.SessionState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, err
	}
	if state.StageArtifacts == nil {
		state.StageArtifacts = make(map[domain.GenerationStage]domain.SourceArtifact)
	}
	return &state, nil
}

func (s *RedisStore) Save(ctx context.Context, state *domain.SessionState) error {
	raw, err := json.Marshal(state)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, keyPrefix+state.ID, raw, s.ttl).Err()
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	return s.client.Del(ctx, keyPrefix+id).Err()
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

var ErrNotFound = errors.New("session: credential not found")

// Credential is a persisted platform login. Cookie is the sealed cookie blob.
type Credential struct {
	OwnerKey  string    `json:"owner_key"`
	Cookie    string    `json:"cookie"`
	RemoteUID string    `json:"remote_uid"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (c Credential) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// CookieStore keeps one credential per owner key.
type CookieStore interface {
	Get(ctx context.Context, ownerKey string) (Credential, error)
	Set(ctx context.Context, c Credential) error
}

type MemoryStore struct {
	mu    sync.RWMutex
	creds map[string]Credential
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{creds: map[string]Credential{}}
}

func (m *MemoryStore) Get(_ context.Context, ownerKey string) (Credential, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.creds[ownerKey]
	if !ok {
		return Credential{}, ErrNotFound
	}
	return c, nil
}

func (m *MemoryStore) Set(_ context.Context, c Credential) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.creds[c.OwnerKey] = c
	return nil
}

// RedisStore keeps credentials in Redis with a TTL matching their expiry.
type RedisStore struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, prefix: "seatsched:cookie:", now: time.Now}
}

func (r *RedisStore) key(ownerKey string) string { return r.prefix + ownerKey }

func (r *RedisStore) Get(ctx context.Context, ownerKey string) (Credential, error) {
	data, err := r.client.Get(ctx, r.key(ownerKey)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Credential{}, ErrNotFound
	}
	if err != nil {
		return Credential{}, fmt.Errorf("session: redis get: %w", err)
	}
	var c Credential
	if err := json.Unmarshal(data, &c); err != nil {
		return Credential{}, fmt.Errorf("session: decode credential: %w", err)
	}
	return c, nil
}

func (r *RedisStore) Set(ctx context.Context, c Credential) error {
	ttl := c.ExpiresAt.Sub(r.now())
	if ttl <= 0 {
		return nil
	}
	data, err := json.Marshal(c)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.key(c.OwnerKey), data, ttl).Err(); err != nil {
		return fmt.Errorf("session: redis set: %w", err)
	}
	return nil
}

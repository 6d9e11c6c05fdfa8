package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/andyleap/oidcflow/internal/models"
	"github.com/redis/go-redis/v9"
)

const codeKeyPrefix = "auth_code:"

// redeemScript returns the stored grant and deletes the key, but only when the
// stored client_id matches ARGV[1]. A mismatch leaves the grant in place.
var redeemScript = redis.NewScript(`
local owner = redis.call('HGET', KEYS[1], 'client_id')
if not owner or owner ~= ARGV[1] then
	return false
end
local grant = redis.call('HGET', KEYS[1], 'grant')
redis.call('DEL', KEYS[1])
return grant
`)

type RedisCodeStore struct {
	client *redis.Client
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisCodeStore(client *redis.Client, ttl time.Duration) *RedisCodeStore {
	return &RedisCodeStore{
		client: client,
		ttl:    normalizeTTL(ttl),
		now:    time.Now,
	}
}

func codeKey(code string) string {
	return fmt.Sprintf("%s%s", codeKeyPrefix, code)
}

func (r *RedisCodeStore) Issue(ctx context.Context, clientID, scope string) (string, error) {
	code, err := generateCode()
	if err != nil {
		return "", err
	}

	now := r.now()
	grant := models.AuthorizationGrant{
		Code:      code,
		ClientID:  clientID,
		Scope:     scope,
		IssuedAt:  now,
		ExpiresAt: now.Add(r.ttl),
	}

	data, err := json.Marshal(grant)
	if err != nil {
		return "", fmt.Errorf("failed to marshal authorization grant: %w", err)
	}

	key := codeKey(code)
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, key, "client_id", clientID, "grant", data)
		pipe.PExpire(ctx, key, r.ttl)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to save authorization code: %w", err)
	}

	return code, nil
}

func (r *RedisCodeStore) Redeem(ctx context.Context, code, clientID string) (*models.AuthorizationGrant, error) {
	data, err := redeemScript.Run(ctx, r.client, []string{codeKey(code)}, clientID).Text()
	if errors.Is(err, redis.Nil) {
		return nil, ErrInvalidGrant
	}
	if err != nil {
		return nil, fmt.Errorf("failed to redeem authorization code: %w", err)
	}

	var grant models.AuthorizationGrant
	if err := json.Unmarshal([]byte(data), &grant); err != nil {
		return nil, fmt.Errorf("failed to unmarshal authorization grant: %w", err)
	}

	// The key can briefly outlive the recorded deadline.
	if grant.Expired(r.now()) {
		return nil, ErrInvalidGrant
	}

	grant.Consumed = true
	return &grant, nil
}

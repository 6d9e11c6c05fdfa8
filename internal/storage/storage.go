package storage

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/andyleap/oidcflow/internal/models"
)

const (
	// DefaultCodeTTL is how long an authorization code stays redeemable.
	DefaultCodeTTL = 10 * time.Minute

	codeBytes = 32
)

// ErrInvalidGrant is returned for every failed redemption: unknown, already
// used, expired, or issued to a different client.
var ErrInvalidGrant = errors.New("invalid grant")

// CodeStore issues and redeems single-use authorization codes.
type CodeStore interface {
	Issue(ctx context.Context, clientID, scope string) (string, error)
	Redeem(ctx context.Context, code, clientID string) (*models.AuthorizationGrant, error)
}

// KeySource loads PEM encoded signing key material.
type KeySource interface {
	LoadSigningKey(ctx context.Context) ([]byte, error)
}

func generateCode() (string, error) {
	b := make([]byte, codeBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate authorization code: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func normalizeTTL(ttl time.Duration) time.Duration {
	if ttl <= 0 || ttl > DefaultCodeTTL {
		return DefaultCodeTTL
	}
	return ttl
}

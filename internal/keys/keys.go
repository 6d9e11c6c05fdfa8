// Package keys holds the RSA signing key of the authorization server and its
// public JWKS representation.
package keys

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"

	"github.com/go-jose/go-jose/v4"
)

const (
	// Algorithm is the only signing algorithm this server issues tokens with.
	Algorithm = "RS256"

	// DefaultBits is the modulus size used by Generate when bits is zero.
	DefaultBits = 2048

	minBits = 2048
)

var (
	ErrNoPEMBlock       = errors.New("no PEM block found")
	ErrUnsupportedKey   = errors.New("unsupported key type")
	ErrKeyTooSmall      = errors.New("RSA key is too small")
	ErrEmptyKeyMaterial = errors.New("empty key material")
)

// Source yields PEM encoded private key bytes.
type Source interface {
	LoadSigningKey(ctx context.Context) ([]byte, error)
}

// KeyMaterial is an RSA keypair with a stable key id.
type KeyMaterial struct {
	priv *rsa.PrivateKey
	kid  string
}

// New wraps priv. An empty kid is replaced by the RFC 7638 thumbprint of the
// public key.
func New(priv *rsa.PrivateKey, kid string) (*KeyMaterial, error) {
	if priv == nil {
		return nil, ErrEmptyKeyMaterial
	}
	if priv.N.BitLen() < minBits {
		return nil, fmt.Errorf("%w: %d bits", ErrKeyTooSmall, priv.N.BitLen())
	}

	if kid == "" {
		var err error
		kid, err = Thumbprint(&priv.PublicKey)
		if err != nil {
			return nil, err
		}
	}

	return &KeyMaterial{priv: priv, kid: kid}, nil
}

// Generate creates a fresh keypair. Used for development when no key is configured.
func Generate(bits int, kid string) (*KeyMaterial, error) {
	if bits == 0 {
		bits = DefaultBits
	}
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, fmt.Errorf("failed to generate RSA key: %w", err)
	}
	return New(priv, kid)
}

// FromPEM parses a PKCS1 or PKCS8 RSA private key.
func FromPEM(data []byte, kid string) (*KeyMaterial, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, ErrNoPEMBlock
	}

	if priv, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return New(priv, kid)
	}

	key, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse signing key: %w", err)
	}

	priv, ok := key.(*rsa.PrivateKey)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, key)
	}

	return New(priv, kid)
}

// Load reads the key from source and parses it. The raw PEM buffer is
// cleared before returning.
func Load(ctx context.Context, source Source, kid string) (*KeyMaterial, error) {
	data, err := source.LoadSigningKey(ctx)
	if err != nil {
		return nil, err
	}
	defer clear(data)

	if len(data) == 0 {
		return nil, ErrEmptyKeyMaterial
	}

	return FromPEM(data, kid)
}

// PublicKeyFromPEM parses a PKIX or PKCS1 RSA public key.
func PublicKeyFromPEM(data []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, ErrNoPEMBlock
	}

	if pub, err := x509.ParsePKCS1PublicKey(block.Bytes); err == nil {
		return pub, nil
	}

	key, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}

	pub, ok := key.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedKey, key)
	}
	return pub, nil
}

// Thumbprint computes the RFC 7638 SHA-256 thumbprint of pub, base64url encoded.
func Thumbprint(pub crypto.PublicKey) (string, error) {
	jwk := jose.JSONWebKey{Key: pub}

	thumbprint, err := jwk.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", fmt.Errorf("failed to compute key thumbprint: %w", err)
	}

	return base64.RawURLEncoding.EncodeToString(thumbprint), nil
}

func (k *KeyMaterial) KeyID() string { return k.kid }

func (k *KeyMaterial) Algorithm() string { return Algorithm }

func (k *KeyMaterial) PrivateKey() *rsa.PrivateKey { return k.priv }

func (k *KeyMaterial) PublicKey() *rsa.PublicKey { return &k.priv.PublicKey }

// PublicJWK returns the public half as a signing JWK.
func (k *KeyMaterial) PublicJWK() jose.JSONWebKey {
	return jose.JSONWebKey{
		Key:       k.PublicKey(),
		KeyID:     k.kid,
		Algorithm: Algorithm,
		Use:       "sig",
	}
}

// PublicJWKS returns the key set published at the jwks endpoint.
func (k *KeyMaterial) PublicJWKS() jose.JSONWebKeySet {
	return jose.JSONWebKeySet{Keys: []jose.JSONWebKey{k.PublicJWK()}}
}

// PublicKeyPEM encodes the public key as a PKIX PEM block.
func (k *KeyMaterial) PublicKeyPEM() ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(k.PublicKey())
	if err != nil {
		return nil, fmt.Errorf("failed to marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}

package auth

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	defaultStateTTL    = 10 * time.Minute
	stateNonceBytes    = 32
	stateTokenAudience = "oauth-state"
)

var (
	// ErrInvalidState indicates the OAuth state cookie is missing, forged, expired or mismatched.
	ErrInvalidState = errors.New("oauth state: invalid")
)

// OAuthState is the round-trip data of one provider handshake.
type OAuthState struct {
	Provider string
	Nonce    string
	Verifier string
	Next     string
}

type stateClaims struct {
	Provider string `json:"provider"`
	Verifier string `json:"verifier"`
	Next     string `json:"next,omitempty"`
	jwt.RegisteredClaims
}

// StateCodecConfig configures the OAuth state codec.
type StateCodecConfig struct {
	SigningSecret []byte
	TTL           time.Duration
	Clock         func() time.Time
}

// StateCodec signs OAuth handshake state into a short-lived token kept in a cookie.
// The nonce travels as the provider's state parameter and must match on callback.
type StateCodec struct {
	signingSecret []byte
	ttl           time.Duration
	clock         func() time.Time
}

// NewStateCodec constructs a StateCodec.
func NewStateCodec(cfg StateCodecConfig) (*StateCodec, error) {
	if len(cfg.SigningSecret) == 0 {
		return nil, errMissingSigningSecret
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &StateCodec{
		signingSecret: append([]byte(nil), cfg.SigningSecret...),
		ttl:           ttl,
		clock:         clock,
	}, nil
}

// ExpiresAt returns when a state encoded now stops being valid.
func (c *StateCodec) ExpiresAt() time.Time {
	return c.clock().UTC().Add(c.ttl)
}

// Begin creates a fresh state for the provider with a random nonce.
func (c *StateCodec) Begin(provider, verifier, next string) (OAuthState, error) {
	nonce, err := randomToken(stateNonceBytes)
	if err != nil {
		return OAuthState{}, err
	}
	return OAuthState{
		Provider: provider,
		Nonce:    nonce,
		Verifier: verifier,
		Next:     next,
	}, nil
}

// Encode signs the state.
func (c *StateCodec) Encode(state OAuthState) (string, error) {
	if strings.TrimSpace(state.Nonce) == "" || strings.TrimSpace(state.Provider) == "" {
		return "", ErrInvalidState
	}
	now := c.clock().UTC()
	claims := stateClaims{
		Provider: state.Provider,
		Verifier: state.Verifier,
		Next:     state.Next,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        state.Nonce,
			Audience:  jwt.ClaimStrings{stateTokenAudience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(c.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.signingSecret)
}

// Decode verifies the token and checks it belongs to the provider and nonce seen on callback.
func (c *StateCodec) Decode(token, provider, nonce string) (OAuthState, error) {
	if strings.TrimSpace(token) == "" || strings.TrimSpace(nonce) == "" {
		return OAuthState{}, ErrInvalidState
	}
	claims := &stateClaims{}
	_, err := jwt.ParseWithClaims(
		token,
		claims,
		func(t *jwt.Token) (interface{}, error) {
			return c.signingSecret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithAudience(stateTokenAudience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.clock),
	)
	if err != nil {
		return OAuthState{}, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if claims.ID != nonce || claims.Provider != provider {
		return OAuthState{}, ErrInvalidState
	}
	return OAuthState{
		Provider: claims.Provider,
		Nonce:    claims.ID,
		Verifier: claims.Verifier,
		Next:     claims.Next,
	}, nil
}

func randomToken(size int) (string, error) {
	b := make([]byte, size)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("oauth state: generate nonce: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

package feedtoken

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Token errors.
var (
	ErrMalformed = errors.New("invalid feed token format")
	ErrSignature = errors.New("invalid feed token signature")
	ErrExpired   = errors.New("feed token expired")
)

// Claims is the content of a verified feed token.
type Claims struct {
	ActorID     string
	DisplayName string
	ExpiresAt   time.Time
}

// Signer creates and validates calendar feed tokens. Calendar clients cannot
// send bearer headers, so the subscription URL carries the actor identity.
type Signer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewSigner constructs a signer with the provided secret and TTL.
func NewSigner(secret string, ttl time.Duration) *Signer {
	if ttl <= 0 {
		ttl = 90 * 24 * time.Hour
	}
	return &Signer{
		secret: []byte(secret),
		ttl:    ttl,
		now:    time.Now,
	}
}

// Generate returns a signed token for the actor.
func (s *Signer) Generate(actorID, displayName string) (string, time.Time, error) {
	if actorID == "" {
		return "", time.Time{}, fmt.Errorf("actorID required")
	}
	if len(s.secret) == 0 {
		return "", time.Time{}, fmt.Errorf("signing secret missing")
	}
	expiresAt := s.now().Add(s.ttl).Truncate(time.Second)
	encodedActor := base64.RawURLEncoding.EncodeToString([]byte(actorID))
	encodedName := base64.RawURLEncoding.EncodeToString([]byte(displayName))
	ts := strconv.FormatInt(expiresAt.Unix(), 10)
	signature := s.sign(encodedActor, encodedName, ts)
	return strings.Join([]string{encodedActor, encodedName, ts, signature}, "."), expiresAt, nil
}

// Parse validates a token and returns the embedded claims.
func (s *Signer) Parse(token string) (Claims, error) {
	parts := strings.Split(token, ".")
	if len(parts) != 4 {
		return Claims{}, ErrMalformed
	}
	encodedActor, encodedName, ts, signature := parts[0], parts[1], parts[2], parts[3]

	expected := s.sign(encodedActor, encodedName, ts)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return Claims{}, ErrSignature
	}

	actor, err := base64.RawURLEncoding.DecodeString(encodedActor)
	if err != nil || len(actor) == 0 {
		return Claims{}, ErrMalformed
	}
	name, err := base64.RawURLEncoding.DecodeString(encodedName)
	if err != nil {
		return Claims{}, ErrMalformed
	}
	expUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return Claims{}, ErrMalformed
	}
	expiresAt := time.Unix(expUnix, 0)
	if s.now().After(expiresAt) {
		return Claims{}, ErrExpired
	}
	return Claims{ActorID: string(actor), DisplayName: string(name), ExpiresAt: expiresAt}, nil
}

func (s *Signer) sign(parts ...string) string {
	mac := hmac.New(sha256.New, s.secret)
	_, _ = mac.Write([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(mac.Sum(nil))
}

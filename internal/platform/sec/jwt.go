// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package sec provides cryptographic primitives and token management.
//
// # Architecture
//
// This package isolates security-sensitive code (Hashing, JWT Signing, opaque
// token generation) from the domain logic. The [TokenService] is injected into
// the auth service through its TokenProvider interface.
package sec

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/taibuivan/yomira-iam/internal/platform/constants"
)

var (
	// ErrTokenExpired is returned by [TokenService.VerifyToken] when the exp claim is in the past.
	ErrTokenExpired = errors.New("sec: token expired")

	// ErrTokenInvalid covers every other verification failure.
	ErrTokenInvalid = errors.New("sec: token invalid")
)

// AuthClaims represents the payload embedded inside a JWT Access Token.
//
// The claims are informational. Authorization decisions are made against the
// user record reloaded on every request, not against these values.
type AuthClaims struct {
	jwt.RegisteredClaims

	Username    string   `json:"username"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// UserID parses the numeric subject claim.
func (claims *AuthClaims) UserID() (int64, error) {
	id, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: malformed subject %q", ErrTokenInvalid, claims.Subject)
	}
	return id, nil
}

// TokenSubject is the identity an access token is minted for.
type TokenSubject struct {
	UserID      int64
	Username    string
	Roles       []string
	Permissions []string
}

// TokenService handles generation and verification of JWT access tokens.
//
// It signs with HS256 when built from a shared secret and RS256 when built from
// a PEM key pair. Verification only accepts the algorithm the service signs with.
type TokenService struct {
	method     jwt.SigningMethod
	signingKey any
	verifyKey  any
	issuer     string
	now        func() time.Time
}

// TokenOption customises a [TokenService].
type TokenOption func(*TokenService)

// WithTokenClock overrides the wall clock used for iat/exp and for validation.
func WithTokenClock(now func() time.Time) TokenOption {
	return func(service *TokenService) {
		service.now = now
	}
}

// NewHMACTokenService creates a TokenService signing with HS256.
func NewHMACTokenService(secret, issuer string, opts ...TokenOption) (*TokenService, error) {
	if len(secret) < constants.MinHMACSecretLength {
		return nil, fmt.Errorf("sec: signing secret must be at least %d bytes", constants.MinHMACSecretLength)
	}

	service := &TokenService{
		method:     jwt.SigningMethodHS256,
		signingKey: []byte(secret),
		verifyKey:  []byte(secret),
		issuer:     issuer,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service, nil
}

// NewRSATokenService creates a TokenService signing with RS256.
// It reads RSA keys from the provided filesystem paths.
func NewRSATokenService(privateKeyPath, publicKeyPath, issuer string, opts ...TokenOption) (*TokenService, error) {
	privateKeyData, err := os.ReadFile(privateKeyPath)
	if err != nil {
		return nil, fmt.Errorf("sec: failed to read private key from %s: %w", privateKeyPath, err)
	}

	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyData)
	if err != nil {
		return nil, fmt.Errorf("sec: failed to parse private key: %w", err)
	}

	publicKeyData, err := os.ReadFile(publicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("sec: failed to read public key from %s: %w", publicKeyPath, err)
	}

	publicKey, err := jwt.ParseRSAPublicKeyFromPEM(publicKeyData)
	if err != nil {
		return nil, fmt.Errorf("sec: failed to parse public key: %w", err)
	}

	return NewRSATokenServiceFromKeys(privateKey, publicKey, issuer, opts...), nil
}

// NewRSATokenServiceFromKeys creates an RS256 TokenService from parsed keys.
func NewRSATokenServiceFromKeys(privateKey *rsa.PrivateKey, publicKey *rsa.PublicKey, issuer string, opts ...TokenOption) *TokenService {
	service := &TokenService{
		method:     jwt.SigningMethodRS256,
		signingKey: privateKey,
		verifyKey:  publicKey,
		issuer:     issuer,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(service)
	}
	return service
}

// GenerateAccessToken creates a new JWT access token for a user.
func (service *TokenService) GenerateAccessToken(subject TokenSubject, timeToLive time.Duration) (string, error) {
	currentTime := service.now()
	claims := AuthClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(subject.UserID, 10),
			Issuer:    service.issuer,
			IssuedAt:  jwt.NewNumericDate(currentTime),
			ExpiresAt: jwt.NewNumericDate(currentTime.Add(timeToLive)),
		},
		Username:    subject.Username,
		Roles:       subject.Roles,
		Permissions: subject.Permissions,
	}

	token := jwt.NewWithClaims(service.method, claims)
	signedToken, err := token.SignedString(service.signingKey)
	if err != nil {
		return "", fmt.Errorf("sec: failed to sign token: %w", err)
	}

	return signedToken, nil
}

/*
VerifyToken checks the signature and validity of a JWT string.

Returns:
  - *AuthClaims: The decoded claims on success
  - error: Wraps [ErrTokenExpired] for an elapsed exp claim, [ErrTokenInvalid] otherwise
*/
func (service *TokenService) VerifyToken(tokenString string) (*AuthClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &AuthClaims{}, func(token *jwt.Token) (any, error) {
		return service.verifyKey, nil
	},
		jwt.WithValidMethods([]string{service.method.Alg()}),
		jwt.WithIssuer(service.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(service.now),
	)

	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, fmt.Errorf("%w: %w", ErrTokenExpired, err)
		}
		return nil, fmt.Errorf("%w: %w", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*AuthClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("%w: unexpected claims", ErrTokenInvalid)
	}

	return claims, nil
}

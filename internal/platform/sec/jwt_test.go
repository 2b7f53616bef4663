// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package sec_test

import (
	"crypto/rand"
	"crypto/rsa"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/yomira-iam/internal/platform/sec"
)

const testIssuer = "yomira-iam-test"

func newHMAC(t *testing.T, now func() time.Time) *sec.TokenService {
	t.Helper()
	service, err := sec.NewHMACTokenService("unit-test-secret-0123456789abcdef0123456789abcdef", testIssuer, sec.WithTokenClock(now))
	require.NoError(t, err)
	return service
}

/*
TestTokenService_HMACRoundTrip verifies that claims survive signing and verification.
*/
func TestTokenService_HMACRoundTrip(t *testing.T) {
	service := newHMAC(t, time.Now)

	token, err := service.GenerateAccessToken(sec.TokenSubject{
		UserID:      42,
		Username:    "alice",
		Roles:       []string{"user"},
		Permissions: []string{"profile.read"},
	}, time.Hour)
	require.NoError(t, err)

	claims, err := service.VerifyToken(token)
	require.NoError(t, err)

	userID, err := claims.UserID()
	require.NoError(t, err)
	assert.Equal(t, int64(42), userID)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, []string{"user"}, claims.Roles)
	assert.Equal(t, []string{"profile.read"}, claims.Permissions)
	assert.Equal(t, testIssuer, claims.Issuer)
}

/*
TestTokenService_Expired verifies that an elapsed token maps to ErrTokenExpired.
*/
func TestTokenService_Expired(t *testing.T) {
	issuedAt := time.Now().Add(-2 * time.Hour)
	signer := newHMAC(t, func() time.Time { return issuedAt })
	verifier := newHMAC(t, time.Now)

	token, err := signer.GenerateAccessToken(sec.TokenSubject{UserID: 1, Username: "bob"}, time.Hour)
	require.NoError(t, err)

	_, err = verifier.VerifyToken(token)
	require.ErrorIs(t, err, sec.ErrTokenExpired)
	assert.NotErrorIs(t, err, sec.ErrTokenInvalid)
}

func TestTokenService_Invalid(t *testing.T) {
	service := newHMAC(t, time.Now)
	other, err := sec.NewHMACTokenService("another-secret-0123456789abcdef0123456789abcdef", testIssuer)
	require.NoError(t, err)
	foreignIssuer, err := sec.NewHMACTokenService("unit-test-secret-0123456789abcdef0123456789abcdef", "someone-else")
	require.NoError(t, err)

	foreignSig, err := other.GenerateAccessToken(sec.TokenSubject{UserID: 1}, time.Hour)
	require.NoError(t, err)
	foreignIss, err := foreignIssuer.GenerateAccessToken(sec.TokenSubject{UserID: 1}, time.Hour)
	require.NoError(t, err)
	valid, err := service.GenerateAccessToken(sec.TokenSubject{UserID: 1}, time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name  string
		token string
	}{
		{"garbage", "not-a-jwt"},
		{"empty", ""},
		{"wrong_secret", foreignSig},
		{"wrong_issuer", foreignIss},
		{"tampered_signature", valid[:strings.LastIndex(valid, ".")] + ".AAAA"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := service.VerifyToken(tt.token)
			require.ErrorIs(t, err, sec.ErrTokenInvalid)
		})
	}
}

/*
TestTokenService_RejectsAlgorithmSwitch ensures an RS256 verifier refuses HS256 tokens.
*/
func TestTokenService_RejectsAlgorithmSwitch(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	rsaService := sec.NewRSATokenServiceFromKeys(key, &key.PublicKey, testIssuer)
	hmacService := newHMAC(t, time.Now)

	rsaToken, err := rsaService.GenerateAccessToken(sec.TokenSubject{UserID: 7}, time.Hour)
	require.NoError(t, err)
	claims, err := rsaService.VerifyToken(rsaToken)
	require.NoError(t, err)
	assert.Equal(t, "7", claims.Subject)

	hmacToken, err := hmacService.GenerateAccessToken(sec.TokenSubject{UserID: 7}, time.Hour)
	require.NoError(t, err)
	_, err = rsaService.VerifyToken(hmacToken)
	require.ErrorIs(t, err, sec.ErrTokenInvalid)
}

func TestNewHMACTokenService_RejectsWeakSecret(t *testing.T) {
	tests := []struct {
		name   string
		secret string
	}{
		{name: "empty", secret: ""},
		{name: "one_byte", secret: "x"},
		{name: "one_short", secret: strings.Repeat("k", 31)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sec.NewHMACTokenService(tt.secret, testIssuer)
			require.Error(t, err)
		})
	}

	_, err := sec.NewHMACTokenService(strings.Repeat("k", 32), testIssuer)
	require.NoError(t, err)
}

func TestAuthClaims_UserID_Malformed(t *testing.T) {
	claims := &sec.AuthClaims{}
	claims.Subject = "abc"

	_, err := claims.UserID()
	require.ErrorIs(t, err, sec.ErrTokenInvalid)
}

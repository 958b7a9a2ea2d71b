package siwex

import (
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/walletgate/internal/common"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDomain = "localhost:3000"

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func buildMessage(domain, address, extra string) string {
	return fmt.Sprintf(
		"%s wants you to sign in with your Ethereum account:\n%s\n\nSign in to the marketplace.\n\n"+
			"URI: http://%s\nVersion: 1\nChain ID: 1\nNonce: abcdef123456\nIssued At: 2025-06-01T11:59:00Z%s",
		domain, address, domain, extra)
}

func newKey(t *testing.T) (*ecdsa.PrivateKey, string) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	return key, crypto.PubkeyToAddress(key.PublicKey).Hex()
}

func sign(t *testing.T, msg string, key *ecdsa.PrivateKey) string {
	t.Helper()
	sig, err := Sign([]byte(msg), key)
	require.NoError(t, err)
	return sig
}

func newTestVerifier(opts ...Option) *Verifier {
	return NewVerifier(testDomain, append([]Option{WithClock(func() time.Time { return fixedNow })}, opts...)...)
}

func TestVerify_ValidSignature(t *testing.T) {
	key, addr := newKey(t)
	msg := buildMessage(testDomain, addr, "")

	id, err := newTestVerifier().Verify(msg, sign(t, msg, key))
	require.NoError(t, err)
	assert.Equal(t, strings.ToLower(addr), id.Address)
	assert.Equal(t, 1, id.ChainID)
	assert.Equal(t, "abcdef123456", id.Nonce)
	assert.False(t, id.Bypassed)
}

func TestVerify_AcceptsLowRecoveryID(t *testing.T) {
	key, addr := newKey(t)
	msg := buildMessage(testDomain, addr, "")

	sig, err := crypto.Sign(PersonalHash([]byte(msg)), key)
	require.NoError(t, err)

	_, err = newTestVerifier().Verify(msg, fmt.Sprintf("0x%x", sig))
	assert.NoError(t, err)
}

func TestVerify_TamperedMessage(t *testing.T) {
	key, addr := newKey(t)
	msg := buildMessage(testDomain, addr, "")
	sig := sign(t, msg, key)

	tampered := strings.Replace(msg, "Nonce: abcdef123456", "Nonce: abcdef123457", 1)

	_, err := newTestVerifier().Verify(tampered, sig)
	assert.ErrorIs(t, err, common.ErrSignatureInvalid)
}

func TestVerify_TamperedSignature(t *testing.T) {
	key, addr := newKey(t)
	msg := buildMessage(testDomain, addr, "")
	sig := []byte(sign(t, msg, key))

	// flip one nibble of r
	if sig[10] == 'f' {
		sig[10] = 'e'
	} else {
		sig[10] = 'f'
	}

	_, err := newTestVerifier().Verify(msg, string(sig))
	assert.ErrorIs(t, err, common.ErrSignatureInvalid)
}

func TestVerify_SignedByAnotherKey(t *testing.T) {
	_, addr := newKey(t)
	other, _ := newKey(t)
	msg := buildMessage(testDomain, addr, "")

	_, err := newTestVerifier().Verify(msg, sign(t, msg, other))
	assert.ErrorIs(t, err, common.ErrSignatureInvalid)
}

func TestVerify_DomainMismatch(t *testing.T) {
	key, addr := newKey(t)
	msg := buildMessage("evil.example", addr, "")

	_, err := newTestVerifier().Verify(msg, sign(t, msg, key))
	assert.ErrorIs(t, err, common.ErrDomainMismatch)
}

func TestVerify_DomainIsCaseInsensitive(t *testing.T) {
	key, addr := newKey(t)
	msg := buildMessage("LOCALHOST:3000", addr, "")

	_, err := newTestVerifier().Verify(msg, sign(t, msg, key))
	assert.NoError(t, err)
}

func TestVerify_Expired(t *testing.T) {
	key, addr := newKey(t)
	msg := buildMessage(testDomain, addr, "\nExpiration Time: 2025-06-01T11:59:30Z")

	_, err := newTestVerifier().Verify(msg, sign(t, msg, key))
	assert.ErrorIs(t, err, common.ErrMessageExpired)
}

func TestVerify_MalformedSignature(t *testing.T) {
	_, addr := newKey(t)
	msg := buildMessage(testDomain, addr, "")

	for _, sig := range []string{"", "0x0", "nothex", "0x" + strings.Repeat("ab", 64)} {
		_, err := newTestVerifier().Verify(msg, sig)
		assert.ErrorIs(t, err, common.ErrSignatureInvalid, "signature %q", sig)
	}
}

func TestVerify_MalformedMessage(t *testing.T) {
	_, addr := newKey(t)

	tests := map[string]string{
		"empty":      "",
		"free text":  "please let me in",
		"no nonce":   strings.Replace(buildMessage(testDomain, addr, ""), "Nonce: abcdef123456\n", "", 1),
		"bad header": strings.Replace(buildMessage(testDomain, addr, ""), "wants you", "would like you", 1),
	}

	for name, msg := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := newTestVerifier().Verify(msg, "0x00")
			assert.ErrorIs(t, err, common.ErrMalformedMessage)
		})
	}
}

func TestVerify_Bypass(t *testing.T) {
	v := newTestVerifier(WithBypass(DemoAddresses...))
	msg := buildMessage(testDomain, DemoAddresses[0], "")

	id, err := v.Verify(msg, "0x0")
	require.NoError(t, err)
	assert.True(t, id.Bypassed)
	assert.Equal(t, DemoAddresses[0], id.Address)
}

func TestVerify_BypassStillChecksDomain(t *testing.T) {
	v := newTestVerifier(WithBypass(DemoAddresses...))
	msg := buildMessage("evil.example", DemoAddresses[1], "")

	_, err := v.Verify(msg, "0x0")
	assert.ErrorIs(t, err, common.ErrDomainMismatch)
}

func TestVerify_BypassDisabled(t *testing.T) {
	msg := buildMessage(testDomain, DemoAddresses[0], "")

	_, err := newTestVerifier().Verify(msg, "0x0")
	require.Error(t, err)
	assert.True(t,
		errors.Is(err, common.ErrMalformedMessage) || errors.Is(err, common.ErrSignatureInvalid),
		"unexpected error %v", err)
}

func TestClaimedAddress(t *testing.T) {
	_, addr := newKey(t)

	got, ok := ClaimedAddress(buildMessage(testDomain, addr, ""))
	assert.True(t, ok)
	assert.Equal(t, strings.ToLower(addr), got)

	_, ok = ClaimedAddress("garbage")
	assert.False(t, ok)
}

func TestPersonalHash_MatchesGethTextHash(t *testing.T) {
	for _, data := range [][]byte{
		[]byte(""),
		[]byte("hello"),
		[]byte(buildMessage(testDomain, "0x0000000000000000000000000000000000000001", "")),
	} {
		assert.Equal(t, accounts.TextHash(data), PersonalHash(data), string(data))
	}
}

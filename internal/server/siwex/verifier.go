// Package siwex verifies Sign-In with Ethereum (EIP-4361) messages.
//
// Verification is pure: it parses the message, checks the domain and the
// validity window, and recovers the signer from an EIP-191 personal-sign
// signature over the exact message text. A configured set of demo principals
// may skip the signature check in non-production deployments.
package siwex

import (
	"crypto/ecdsa"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/dmitrijs2005/walletgate/internal/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spruceid/siwe-go"
	"golang.org/x/crypto/sha3"
)

// DemoAddresses are the principals accepted without a signature when the
// test-address bypass is enabled.
var DemoAddresses = []string{
	"0x" + strings.Repeat("a", 40),
	"0x" + strings.Repeat("b", 40),
	"0x" + strings.Repeat("c", 40),
}

const signatureLength = 65

var headerRe = regexp.MustCompile(`^(\S+) wants you to sign in with your Ethereum account:\r?\n(0x[0-9a-fA-F]{40})\r?\n`)

// VerifiedIdentity is the outcome of a successful verification.
type VerifiedIdentity struct {
	Address  string // lower-case
	Domain   string
	ChainID  int
	Nonce    string
	Bypassed bool
}

type Verifier struct {
	domain string
	bypass map[string]struct{}
	now    func() time.Time
}

type Option func(*Verifier)

// WithBypass lets the given addresses sign in without a valid signature.
func WithBypass(addresses ...string) Option {
	return func(v *Verifier) {
		for _, a := range addresses {
			v.bypass[strings.ToLower(a)] = struct{}{}
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

func NewVerifier(domain string, opts ...Option) *Verifier {
	v := &Verifier{
		domain: domain,
		bypass: make(map[string]struct{}),
		now:    time.Now,
	}
	for _, o := range opts {
		o(v)
	}
	return v
}

// ClaimedAddress extracts the lower-cased address from the message header
// without validating the rest of the message.
func ClaimedAddress(message string) (string, bool) {
	_, addr, ok := parseHeader(message)
	return addr, ok
}

func parseHeader(message string) (domain, address string, ok bool) {
	m := headerRe.FindStringSubmatch(message)
	if m == nil {
		return "", "", false
	}
	return m[1], strings.ToLower(m[2]), true
}

// Verify checks message and signature and returns the verified identity.
// Errors match common.ErrMalformedMessage, common.ErrDomainMismatch,
// common.ErrMessageExpired or common.ErrSignatureInvalid.
func (v *Verifier) Verify(message, signature string) (*VerifiedIdentity, error) {
	domain, claimed, ok := parseHeader(message)
	if !ok {
		return nil, fmt.Errorf("%w: missing sign-in header", common.ErrMalformedMessage)
	}

	if _, bypass := v.bypass[claimed]; bypass {
		if !strings.EqualFold(domain, v.domain) {
			return nil, common.ErrDomainMismatch
		}
		return &VerifiedIdentity{Address: claimed, Domain: domain, Bypassed: true}, nil
	}

	msg, err := siwe.ParseMessage(message)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrMalformedMessage, err)
	}

	if !strings.EqualFold(msg.GetDomain(), v.domain) {
		return nil, common.ErrDomainMismatch
	}

	if ok, err := msg.ValidAt(v.now()); !ok {
		return nil, fmt.Errorf("%w: %v", common.ErrMessageExpired, err)
	}

	recovered, err := recoverAddress([]byte(message), signature)
	if err != nil {
		return nil, err
	}

	address := strings.ToLower(msg.GetAddress().Hex())
	if recovered != address {
		return nil, common.ErrSignatureInvalid
	}

	return &VerifiedIdentity{
		Address: address,
		Domain:  msg.GetDomain(),
		ChainID: msg.GetChainID(),
		Nonce:   msg.GetNonce(),
	}, nil
}

// PersonalHash is the EIP-191 personal-sign digest of data.
func PersonalHash(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	fmt.Fprintf(h, "\x19Ethereum Signed Message:\n%d", len(data))
	h.Write(data)
	return h.Sum(nil)
}

// Sign produces a 0x-prefixed personal-sign signature with V in {27, 28}.
func Sign(data []byte, key *ecdsa.PrivateKey) (string, error) {
	sig, err := crypto.Sign(PersonalHash(data), key)
	if err != nil {
		return "", err
	}
	sig[64] += 27
	return hexutil.Encode(sig), nil
}

func recoverAddress(data []byte, signature string) (string, error) {
	sig, err := hexutil.Decode(signature)
	if err != nil || len(sig) != signatureLength {
		return "", common.ErrSignatureInvalid
	}

	switch sig[64] {
	case 0, 1:
	case 27, 28:
		sig[64] -= 27
	default:
		return "", common.ErrSignatureInvalid
	}

	pub, err := crypto.SigToPub(PersonalHash(data), sig)
	if err != nil {
		return "", common.ErrSignatureInvalid
	}

	return strings.ToLower(crypto.PubkeyToAddress(*pub).Hex()), nil
}

// Package siwelogin builds and signs Sign-In with Ethereum messages for the
// login endpoint. It backs the siwe-login developer tool.
package siwelogin

import (
	"bytes"
	"context"
	"crypto/ecdsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/dmitrijs2005/walletgate/internal/server/siwex"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/spruceid/siwe-go"
)

const defaultStatement = "Sign in to the marketplace."

type Params struct {
	Domain    string
	URI       string
	ChainID   int
	Statement string
	TTL       time.Duration
	Now       time.Time
}

// Body is the JSON accepted by POST /api/login/siwe.
type Body struct {
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

// Build creates a fresh SIWE message for key and signs it.
func Build(p Params, key *ecdsa.PrivateKey) (*Body, error) {
	if p.Now.IsZero() {
		p.Now = time.Now()
	}
	if p.Statement == "" {
		p.Statement = defaultStatement
	}
	if p.URI == "" {
		p.URI = "https://" + p.Domain
	}

	options := map[string]interface{}{
		"statement": p.Statement,
		"chainId":   p.ChainID,
		"issuedAt":  p.Now.UTC(),
	}
	if p.TTL > 0 {
		options["expirationTime"] = p.Now.Add(p.TTL).UTC()
	}

	address := crypto.PubkeyToAddress(key.PublicKey).Hex()
	msg, err := siwe.InitMessage(p.Domain, address, p.URI, siwe.GenerateNonce(), options)
	if err != nil {
		return nil, fmt.Errorf("error building message: %w", err)
	}

	text := msg.String()
	sig, err := siwex.Sign([]byte(text), key)
	if err != nil {
		return nil, fmt.Errorf("error signing message: %w", err)
	}

	return &Body{Message: text, Signature: sig}, nil
}

// Post submits body to the server at baseURL and returns the raw response.
func Post(ctx context.Context, client *http.Client, baseURL string, body *Body) (int, []byte, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return 0, nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimRight(baseURL, "/")+"/api/login/siwe", bytes.NewReader(payload))
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	return resp.StatusCode, data, err
}

// Command siwe-login signs a Sign-In with Ethereum message with a local key
// and prints the login request body, or submits it when -server is set.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/dmitrijs2005/walletgate/internal/siwelogin"
)

func main() {

	domain := flag.String("domain", "", "domain the message is bound to (prompted when empty)")
	uri := flag.String("uri", "", "resource URI (defaults to https://<domain>)")
	chainID := flag.Int("chain", 1, "EIP-155 chain id")
	ttl := flag.Duration("ttl", 5*time.Minute, "message validity")
	serverURL := flag.String("server", "", "server base URL; when set the request is submitted")
	flag.Parse()

	if *domain == "" {
		d, err := siwelogin.GetSimpleText(bufio.NewReader(os.Stdin), "Domain (e.g. localhost:3000)", os.Stderr)
		if err != nil {
			log.Fatalf("%v", err)
		}
		*domain = d
	}

	key, err := siwelogin.GetPrivateKey(os.Stderr)
	if err != nil {
		log.Fatalf("%v", err)
	}

	body, err := siwelogin.Build(siwelogin.Params{
		Domain:  *domain,
		URI:     *uri,
		ChainID: *chainID,
		TTL:     *ttl,
	}, key)
	if err != nil {
		log.Fatalf("%v", err)
	}

	if *serverURL == "" {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(body); err != nil {
			log.Fatalf("%v", err)
		}
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	status, data, err := siwelogin.Post(ctx, http.DefaultClient, *serverURL, body)
	if err != nil {
		log.Fatalf("%v", err)
	}
	fmt.Printf("%d %s\n", status, data)
}

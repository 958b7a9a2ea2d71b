package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/walletgate/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-d string   PostgreSQL DSN
//	-s string   JWT HMAC secret key
//	-t int      session token validity, minutes
//	-o string   SIWE domain
//	-p string   profile (development, demo, production)
//	-b bool     enable the demo-address signature bypass
//	-n int      login attempts per rate window
//	-w int      rate window, seconds
//	-i bool     additionally rate limit logins per client IP
//	-x string   payment webhook secret
//	-l string   log level
//
// Duration flags are integers (minutes for -t, seconds for -w).
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:],
		[]string{"-a", "-d", "-s", "-t", "-o", "-p", "-b", "-n", "-w", "-i", "-x", "-l"},
		"-b", "-i")

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddrHTTP, "a", config.EndpointAddrHTTP, "address and port to run server")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "secret key")

	sessionValidity := fs.Int("t", int(config.SessionTokenValidityDuration.Minutes()), "session_token_validity_duration (in minutes)")

	fs.StringVar(&config.Domain, "o", config.Domain, "SIWE domain")
	fs.StringVar(&config.Profile, "p", config.Profile, "profile")
	fs.BoolVar(&config.TestAddressBypass, "b", config.TestAddressBypass, "test address signature bypass")
	fs.IntVar(&config.RateLimitMaxAttempts, "n", config.RateLimitMaxAttempts, "login attempts per window")

	window := fs.Int("w", int(config.RateLimitWindow.Seconds()), "rate limit window (in seconds)")

	fs.BoolVar(&config.RateLimitPerIP, "i", config.RateLimitPerIP, "rate limit per client IP")
	fs.StringVar(&config.WebhookSecret, "x", config.WebhookSecret, "payment webhook secret")
	fs.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.SessionTokenValidityDuration = time.Duration(*sessionValidity) * time.Minute
	config.RateLimitWindow = time.Duration(*window) * time.Second
}

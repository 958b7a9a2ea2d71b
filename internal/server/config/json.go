package config

import (
	"encoding/json"
	"os"

	"github.com/dmitrijs2005/walletgate/internal/flagx"
	"github.com/dmitrijs2005/walletgate/internal/timex"
)

// JsonConfig is the on-disk shape of the config file. Durations accept
// "90s"-style strings or integer nanoseconds. Pointer fields distinguish
// "absent" from an explicit false/zero, so a partial file only overrides
// what it names.
type JsonConfig struct {
	EndpointAddrHTTP             string          `json:"endpoint_addr_http"`
	DatabaseDSN                  string          `json:"database_dsn"`
	SecretKey                    string          `json:"secret_key"`
	SessionTokenValidityDuration *timex.Duration `json:"session_token_validity_duration"`
	Domain                       string          `json:"domain"`
	Profile                      string          `json:"profile"`
	TestAddressBypass            *bool           `json:"test_address_bypass"`
	RateLimitMaxAttempts         *int            `json:"rate_limit_max_attempts"`
	RateLimitWindow              *timex.Duration `json:"rate_limit_window"`
	RateLimitPerIP               *bool           `json:"rate_limit_per_ip"`
	BlockBannedLogin             *bool           `json:"block_banned_login"`
	RequestTimeout               *timex.Duration `json:"request_timeout"`
	WebhookSecret                string          `json:"webhook_secret"`
	HTTPRequestsPerSecond        *float64        `json:"http_requests_per_second"`
	HTTPBurst                    *int            `json:"http_burst"`
	LogLevel                     string          `json:"log_level"`
}

// parseJson overlays values from the file named by -c/-config onto config.
// Without the flag nothing is loaded. An unreadable file or invalid JSON
// panics, since the server cannot start on a config it was told to use.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JSONConfigPath()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	c.apply(config)
}

func (c *JsonConfig) apply(config *Config) {
	setString(&config.EndpointAddrHTTP, c.EndpointAddrHTTP)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.SecretKey, c.SecretKey)
	setString(&config.Domain, c.Domain)
	setString(&config.Profile, c.Profile)
	setString(&config.WebhookSecret, c.WebhookSecret)
	setString(&config.LogLevel, c.LogLevel)

	if c.SessionTokenValidityDuration != nil {
		config.SessionTokenValidityDuration = c.SessionTokenValidityDuration.Duration
	}
	if c.RateLimitWindow != nil {
		config.RateLimitWindow = c.RateLimitWindow.Duration
	}
	if c.RequestTimeout != nil {
		config.RequestTimeout = c.RequestTimeout.Duration
	}
	if c.TestAddressBypass != nil {
		config.TestAddressBypass = *c.TestAddressBypass
	}
	if c.RateLimitPerIP != nil {
		config.RateLimitPerIP = *c.RateLimitPerIP
	}
	if c.BlockBannedLogin != nil {
		config.BlockBannedLogin = *c.BlockBannedLogin
	}
	if c.RateLimitMaxAttempts != nil {
		config.RateLimitMaxAttempts = *c.RateLimitMaxAttempts
	}
	if c.HTTPRequestsPerSecond != nil {
		config.HTTPRequestsPerSecond = *c.HTTPRequestsPerSecond
	}
	if c.HTTPBurst != nil {
		config.HTTPBurst = *c.HTTPBurst
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

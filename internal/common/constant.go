// Package common contains shared constants and sentinel errors used across
// walletgate components.
package common

// Roles a marketplace user can hold.
const (
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
	RoleAdmin  = "admin"
)

// Account statuses.
const (
	StatusActive   = "active"
	StatusBanned   = "banned"
	StatusInactive = "inactive"
)

// Ledger movement kinds.
const (
	KindCredit = "credit"
	KindDebit  = "debit"
)

// Profiles. The test-address bypass is never honoured under ProfileProduction.
const (
	ProfileDevelopment = "development"
	ProfileDemo        = "demo"
	ProfileProduction  = "production"
)

// WebhookSecretHeaderName carries the shared secret on payment webhook calls.
const WebhookSecretHeaderName = "X-Webhook-Secret"

// RequestIDHeaderName is echoed back on every HTTP response.
const RequestIDHeaderName = "X-Request-ID"

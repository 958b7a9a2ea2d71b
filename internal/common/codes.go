package common

import "errors"

// Machine-readable codes carried next to MESSAGE in error responses and used
// as metric outcome labels.
const (
	CodeRateLimited         = "RATE_LIMITED"
	CodeMalformedMessage    = "MALFORMED_MESSAGE"
	CodeDomainMismatch      = "DOMAIN_MISMATCH"
	CodeSignatureInvalid    = "SIGNATURE_INVALID"
	CodeMessageExpired      = "MESSAGE_EXPIRED"
	CodeUserBanned          = "USER_BANNED"
	CodeUserNotFound        = "USER_NOT_FOUND"
	CodeInvalidAmount       = "INVALID_AMOUNT"
	CodeInsufficientFunds   = "INSUFFICIENT_FUNDS"
	CodeExternalRefConflict = "EXTERNAL_REF_CONFLICT"
	CodeStorageUnavailable  = "STORAGE_UNAVAILABLE"
	CodeInvalidRequest      = "INVALID_REQUEST"
	CodeUnauthorized        = "UNAUTHORIZED"
	CodeInternal            = "INTERNAL"
)

var codes = []struct {
	err  error
	code string
}{
	{ErrRateLimited, CodeRateLimited},
	{ErrMalformedMessage, CodeMalformedMessage},
	{ErrDomainMismatch, CodeDomainMismatch},
	{ErrSignatureInvalid, CodeSignatureInvalid},
	{ErrMessageExpired, CodeMessageExpired},
	{ErrUserBanned, CodeUserBanned},
	{ErrUserNotFound, CodeUserNotFound},
	{ErrInvalidAmount, CodeInvalidAmount},
	{ErrInsufficientFunds, CodeInsufficientFunds},
	{ErrExternalRefConflict, CodeExternalRefConflict},
	{ErrStorageUnavailable, CodeStorageUnavailable},
	{ErrInvalidRequest, CodeInvalidRequest},
	{ErrorUnauthorized, CodeUnauthorized},
	{ErrInvalidToken, CodeUnauthorized},
	{ErrTokenExpired, CodeUnauthorized},
}

// Classify returns the code and the sentinel of the first known error in
// err's chain. Unknown errors yield CodeInternal and ErrorInternal.
func Classify(err error) (string, error) {
	for _, c := range codes {
		if errors.Is(err, c.err) {
			return c.code, c.err
		}
	}
	return CodeInternal, ErrorInternal
}

// ErrorCode is the code half of Classify.
func ErrorCode(err error) string {
	code, _ := Classify(err)
	return code
}

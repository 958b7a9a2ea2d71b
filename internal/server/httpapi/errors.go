package httpapi

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/dmitrijs2005/walletgate/internal/common"
	"github.com/dmitrijs2005/walletgate/internal/server/ratelimit"
)

// errorBody is the JSON shape of every error response.
type errorBody struct {
	Message string `json:"MESSAGE"`
	Code    string `json:"code"`
}

var statusByCode = map[string]int{
	common.CodeRateLimited:         http.StatusTooManyRequests,
	common.CodeMalformedMessage:    http.StatusBadRequest,
	common.CodeDomainMismatch:      http.StatusBadRequest,
	common.CodeMessageExpired:      http.StatusBadRequest,
	common.CodeInvalidAmount:       http.StatusBadRequest,
	common.CodeInvalidRequest:      http.StatusBadRequest,
	common.CodeSignatureInvalid:    http.StatusUnauthorized,
	common.CodeUnauthorized:        http.StatusUnauthorized,
	common.CodeUserBanned:          http.StatusForbidden,
	common.CodeUserNotFound:        http.StatusNotFound,
	common.CodeInsufficientFunds:   http.StatusConflict,
	common.CodeExternalRefConflict: http.StatusConflict,
	common.CodeStorageUnavailable:  http.StatusServiceUnavailable,
}

// statusFor maps err to its HTTP status and error body. Server-side failures
// never expose the underlying error text.
func statusFor(err error) (int, errorBody) {
	code, sentinel := common.Classify(err)

	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}

	msg := sentinel.Error()
	if status >= http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	return status, errorBody{Message: msg, Code: code}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, body := statusFor(err)

	var rlErr *ratelimit.Error
	if errors.As(err, &rlErr) {
		w.Header().Set("Retry-After", strconv.Itoa(int(math.Ceil(math.Max(rlErr.RetryAfter.Seconds(), 1)))))
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error(r.Context(), "request failed", "path", r.URL.Path, "code", body.Code, "error", err)
	}

	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
